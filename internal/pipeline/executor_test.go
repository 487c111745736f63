package pipeline

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stackform-io/stackform/internal/ir"
)

// recordingRunner is a scriptable in-memory runner.
type recordingRunner struct {
	name string

	mu   sync.Mutex
	runs []string

	fail      map[string]error
	artifacts map[string]map[string]string
	onRun     func(req *StepRequest)
}

func newRecordingRunner(name string) *recordingRunner {
	return &recordingRunner{
		name:      name,
		fail:      make(map[string]error),
		artifacts: make(map[string]map[string]string),
	}
}

func (r *recordingRunner) Name() string { return r.name }

func (r *recordingRunner) Run(ctx context.Context, req *StepRequest) (map[string]string, error) {
	r.mu.Lock()
	r.runs = append(r.runs, req.ID)
	r.mu.Unlock()
	if r.onRun != nil {
		r.onRun(req)
	}
	if err := r.fail[req.ID]; err != nil {
		return nil, err
	}
	return r.artifacts[req.ID], nil
}

func (r *recordingRunner) ran(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, got := range r.runs {
		if got == id {
			return true
		}
	}
	return false
}

func testExecutor(runner *recordingRunner) *Executor {
	runners := NewRunnerRegistry()
	runners.Register(runner)
	return NewExecutor(runners, "abc123")
}

func TestRun_ArtifactFlow(t *testing.T) {
	decl := parsePipeline(t, `
pipeline "release" {
  step "build" {
    action = "work"
  }

  step "push" {
    action = "work"
    image  = "${step.build.image}:${revision}"
  }
}
`, "release")
	p, err := Build(decl)
	require.NoError(t, err)

	runner := newRecordingRunner("work")
	runner.artifacts["build"] = map[string]string{"image": "registry/app"}

	var pushImage string
	runner.onRun = func(req *StepRequest) {
		if req.ID == "push" {
			pushImage, _ = req.Args["image"].(string)
		}
	}

	exec := testExecutor(runner)
	result, err := exec.Run(context.Background(), p)
	require.NoError(t, err)

	assert.Equal(t, ir.StepSucceeded, result.Steps["build"].Status)
	assert.Equal(t, ir.StepSucceeded, result.Steps["push"].Status)
	assert.Equal(t, "registry/app:abc123", pushImage)
	assert.Equal(t, map[string]string{"image": "registry/app"}, result.Steps["build"].Artifacts)
}

func TestRun_FailureSkipsDownstream(t *testing.T) {
	decl := parsePipeline(t, `
pipeline "release" {
  step "a" {
    action = "work"
  }

  step "b" {
    action   = "work"
    wait_for = ["a"]
  }

  step "c" {
    action   = "work"
    wait_for = ["a", "b"]
  }
}
`, "release")
	p, err := Build(decl)
	require.NoError(t, err)

	runner := newRecordingRunner("work")
	runner.fail["a"] = fmt.Errorf("compile error")

	exec := testExecutor(runner)
	result, err := exec.Run(context.Background(), p)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed at step(s) a")

	assert.Equal(t, ir.StepFailed, result.Steps["a"].Status)
	assert.Equal(t, ir.StepSkipped, result.Steps["b"].Status)
	assert.Equal(t, ir.StepSkipped, result.Steps["c"].Status)

	// Skipped steps never reach a runner.
	assert.False(t, runner.ran("b"))
	assert.False(t, runner.ran("c"))

	var stepErr *BuildStepError
	require.ErrorAs(t, result.Steps["a"].Err, &stepErr)
	assert.Equal(t, "a", stepErr.Step)
}

func TestRun_IndependentSiblingFinishes(t *testing.T) {
	decl := parsePipeline(t, `
pipeline "release" {
  step "bad" {
    action = "work"
  }

  step "good" {
    action = "work"
  }
}
`, "release")
	p, err := Build(decl)
	require.NoError(t, err)

	runner := newRecordingRunner("work")
	runner.fail["bad"] = fmt.Errorf("boom")

	exec := testExecutor(runner)
	exec.Parallelism = 2
	result, err := exec.Run(context.Background(), p)
	require.Error(t, err)

	assert.Equal(t, ir.StepFailed, result.Steps["bad"].Status)
	// The sibling already started; it runs to completion.
	assert.Contains(t, []ir.StepStatus{ir.StepSucceeded, ir.StepSkipped}, result.Steps["good"].Status)
	assert.NotEqual(t, ir.StepRunning, result.Steps["good"].Status)
}

func TestRunStep_MissingArtifact(t *testing.T) {
	decl := parsePipeline(t, `
pipeline "release" {
  step "build" {
    action = "work"
  }

  step "push" {
    action = "work"
    image  = step.build.image
  }
}
`, "release")
	p, err := Build(decl)
	require.NoError(t, err)

	runner := newRecordingRunner("work")
	exec := testExecutor(runner)

	result := &Result{Steps: map[string]*StepResult{
		"build": {Status: ir.StepFailed},
		"push":  {Status: ir.StepPending},
	}}

	_, err = exec.runStep(context.Background(), p.Steps["push"], result, nil)
	var missing *MissingArtifactError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, "push", missing.Step)
	assert.Equal(t, "build", missing.Producer)
	assert.Equal(t, "image", missing.Artifact)
}

func TestRun_UnknownAction(t *testing.T) {
	decl := parsePipeline(t, `
pipeline "release" {
  step "weird" {
    action = "teleport"
  }
}
`, "release")
	p, err := Build(decl)
	require.NoError(t, err)

	exec := testExecutor(newRecordingRunner("work"))
	result, err := exec.Run(context.Background(), p)
	require.Error(t, err)
	assert.Equal(t, ir.StepFailed, result.Steps["weird"].Status)
	assert.Contains(t, result.Steps["weird"].Err.Error(), "unknown step action")
}
