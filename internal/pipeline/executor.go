package pipeline

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/hashicorp/hcl/v2"
	"github.com/zclconf/go-cty/cty"
	"golang.org/x/sync/errgroup"

	"github.com/stackform-io/stackform/internal/ir"
	"github.com/stackform-io/stackform/internal/lang"
	"github.com/stackform-io/stackform/internal/logging"
)

// StepRequest is what a runner receives for one step execution.
type StepRequest struct {
	ID       string
	Action   string
	Args     map[string]any
	Revision string
	WorkDir  string
}

// Runner executes one kind of step action. The returned map is the step's
// published artifacts, available to later steps as step.<id>.<name>.
type Runner interface {
	Name() string
	Run(ctx context.Context, req *StepRequest) (map[string]string, error)
}

// RunnerRegistry maps action names to runners.
type RunnerRegistry struct {
	mu      sync.RWMutex
	runners map[string]Runner
}

func NewRunnerRegistry() *RunnerRegistry {
	return &RunnerRegistry{runners: make(map[string]Runner)}
}

func (r *RunnerRegistry) Register(runner Runner) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runners[runner.Name()] = runner
}

func (r *RunnerRegistry) Get(action string) (Runner, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	runner, ok := r.runners[action]
	if !ok {
		return nil, fmt.Errorf("unknown step action %q", action)
	}
	return runner, nil
}

// StepResult is the recorded outcome of one step.
type StepResult struct {
	Status    ir.StepStatus
	Artifacts map[string]string
	Err       error
}

// Result is the full outcome of a pipeline run, keyed by step id.
type Result struct {
	Steps map[string]*StepResult
}

// Failed returns the ids of every failed step, sorted.
func (r *Result) Failed() []string {
	var out []string
	for id, sr := range r.Steps {
		if sr.Status == ir.StepFailed {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}

// Executor runs pipelines batch by batch. The first step failure aborts the
// run: in-flight batch siblings finish, and every step that has not started
// yet is marked Skipped without running.
type Executor struct {
	Runners     *RunnerRegistry
	Vars        map[string]cty.Value
	Revision    string
	WorkDir     string
	Parallelism int
}

func NewExecutor(runners *RunnerRegistry, revision string) *Executor {
	return &Executor{
		Runners:     runners,
		Vars:        map[string]cty.Value{},
		Revision:    revision,
		Parallelism: 4,
	}
}

// Run executes the pipeline. The returned Result always covers every step;
// the error summarizes failures, if any.
func (e *Executor) Run(ctx context.Context, p *Pipeline) (*Result, error) {
	result := &Result{Steps: make(map[string]*StepResult, len(p.Steps))}
	for id := range p.Steps {
		result.Steps[id] = &StepResult{Status: ir.StepPending}
	}

	artifacts := make(map[string]map[string]string)
	var artifactsMu sync.Mutex
	var aborted atomic.Bool

	for _, batch := range p.Batches() {
		if aborted.Load() {
			for _, id := range batch {
				result.Steps[id].Status = ir.StepSkipped
			}
			continue
		}

		var group errgroup.Group
		group.SetLimit(e.Parallelism)
		for _, id := range batch {
			node := p.Steps[id]
			group.Go(func() error {
				if aborted.Load() {
					result.Steps[id].Status = ir.StepSkipped
					return nil
				}
				sr := result.Steps[id]
				sr.Status = ir.StepRunning

				artifactsMu.Lock()
				snapshot := make(map[string]map[string]string, len(artifacts))
				for k, v := range artifacts {
					snapshot[k] = v
				}
				artifactsMu.Unlock()

				arts, err := e.runStep(ctx, node, result, snapshot)
				if err != nil {
					sr.Status = ir.StepFailed
					sr.Err = err
					aborted.Store(true)
					logging.Error("pipeline step failed", "pipeline", p.Name, "step", id, "error", err)
					return nil
				}
				sr.Status = ir.StepSucceeded
				sr.Artifacts = arts
				artifactsMu.Lock()
				artifacts[id] = arts
				artifactsMu.Unlock()
				logging.Info("pipeline step succeeded", "pipeline", p.Name, "step", id)
				return nil
			})
		}
		group.Wait()
	}

	if failed := result.Failed(); len(failed) > 0 {
		return result, fmt.Errorf("pipeline %s failed at step(s) %s", p.Name, strings.Join(failed, ", "))
	}
	return result, nil
}

func (e *Executor) runStep(ctx context.Context, node *StepNode, result *Result, artifacts map[string]map[string]string) (map[string]string, error) {
	// Any artifact reference into a failed or skipped step means the value
	// cannot exist; report that precisely instead of a generic eval error.
	for _, expr := range node.Decl.Args {
		if err := e.checkArtifactRefs(node.ID, expr, result); err != nil {
			return nil, err
		}
	}

	evalCtx := lang.StepContext(e.Vars, e.Revision, artifacts)
	args, err := lang.EvalAttrs(node.Decl.Args, evalCtx)
	if err != nil {
		return nil, &BuildStepError{Step: node.ID, Err: err}
	}

	runner, err := e.Runners.Get(node.Decl.Action)
	if err != nil {
		return nil, &BuildStepError{Step: node.ID, Err: err}
	}

	arts, err := runner.Run(ctx, &StepRequest{
		ID:       node.ID,
		Action:   node.Decl.Action,
		Args:     args,
		Revision: e.Revision,
		WorkDir:  e.WorkDir,
	})
	if err != nil {
		return nil, &BuildStepError{Step: node.ID, Err: err}
	}
	return arts, nil
}

func (e *Executor) checkArtifactRefs(stepID string, expr hcl.Expression, result *Result) error {
	for _, trav := range expr.Variables() {
		if trav.RootName() != lang.RootStep || len(trav) < 3 {
			continue
		}
		producer, ok := trav[1].(hcl.TraverseAttr)
		if !ok {
			continue
		}
		artifact, ok := trav[2].(hcl.TraverseAttr)
		if !ok {
			continue
		}
		sr, known := result.Steps[producer.Name]
		if !known {
			continue
		}
		if sr.Status == ir.StepFailed || sr.Status == ir.StepSkipped {
			return &MissingArtifactError{Step: stepID, Producer: producer.Name, Artifact: artifact.Name}
		}
	}
	return nil
}
