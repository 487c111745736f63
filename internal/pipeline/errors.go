package pipeline

import "fmt"

// BuildStepError records the failure of one pipeline step's action.
type BuildStepError struct {
	Step string
	Err  error
}

func (e *BuildStepError) Error() string {
	return fmt.Sprintf("step %s: %v", e.Step, e.Err)
}

func (e *BuildStepError) Unwrap() error { return e.Err }

// MissingArtifactError is returned when a step's arguments reference an
// artifact of a step that failed or was skipped, so the artifact was never
// produced.
type MissingArtifactError struct {
	Step     string
	Producer string
	Artifact string
}

func (e *MissingArtifactError) Error() string {
	return fmt.Sprintf("step %s: artifact %s.%s was never produced", e.Step, e.Producer, e.Artifact)
}
