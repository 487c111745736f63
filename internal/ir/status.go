package ir

// ResourceStatus tracks a resource node through its lifecycle.
type ResourceStatus string

const (
	StatusPending    ResourceStatus = "pending"
	StatusCreating   ResourceStatus = "creating"
	StatusCreated    ResourceStatus = "created"
	StatusFailed     ResourceStatus = "failed"
	StatusDestroying ResourceStatus = "destroying"
	StatusDestroyed  ResourceStatus = "destroyed"
)

// Terminal reports whether the status is a terminal success state.
func (s ResourceStatus) Terminal() bool {
	return s == StatusCreated || s == StatusDestroyed
}

// StepStatus tracks a build pipeline step through its lifecycle.
type StepStatus string

const (
	StepPending   StepStatus = "pending"
	StepRunning   StepStatus = "running"
	StepSucceeded StepStatus = "succeeded"
	StepFailed    StepStatus = "failed"
	StepSkipped   StepStatus = "skipped"
)
