package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/zclconf/go-cty/cty"
	"golang.org/x/sync/errgroup"

	"github.com/stackform-io/stackform/internal/ir"
	"github.com/stackform-io/stackform/internal/lang"
	"github.com/stackform-io/stackform/internal/logging"
	"github.com/stackform-io/stackform/internal/provider"
)

// DefaultParallelism caps how many resources of one batch run concurrently.
const DefaultParallelism = 10

// Engine executes plans against providers and mutates state as it goes.
// Callers persist the state after every run, including failed ones, so that
// partial progress survives.
type Engine struct {
	Registry    *provider.Registry
	Parallelism int
	Retry       RetryPolicy

	// Settings carries per-provider configuration (region, endpoints),
	// passed once on first use.
	Settings map[string]map[string]string

	configured   map[string]bool
	configuredMu sync.Mutex
	stateMu      sync.Mutex
}

func New(reg *provider.Registry) *Engine {
	return &Engine{
		Registry:    reg,
		Parallelism: DefaultParallelism,
		Retry:       DefaultRetryPolicy(),
		configured:  make(map[string]bool),
	}
}

// Apply executes the plan batch by batch. Nodes in the same batch run
// concurrently; when any node fails, its batch siblings finish but no later
// batch starts, and the run returns a PartialApplyError naming every node
// that failed. State reflects exactly what ran.
func (e *Engine) Apply(ctx context.Context, g *Graph, plan *ir.Plan, st *ir.State, vars map[string]cty.Value) error {
	// Removed resources go first, in reverse creation order.
	for _, c := range plan.Changes {
		if c.Action != ir.ActionDelete {
			continue
		}
		if err := e.deleteResource(ctx, st, c.Address); err != nil {
			return err
		}
	}

	// Seed the reference values from prior state so NOOP nodes still
	// resolve for their dependents.
	values := make(map[string]map[string]any)
	for _, rs := range st.Resources {
		if rs.Status == ir.StatusCreated {
			values[rs.Addr()] = rs.Attributes()
		}
	}
	var valuesMu sync.Mutex

	var (
		failMu sync.Mutex
		failed []string
		errs   []error
	)

	for _, batch := range plan.Batches {
		var group errgroup.Group
		group.SetLimit(e.Parallelism)
		for _, addr := range batch {
			change := plan.Change(addr)
			if change == nil || change.Action == ir.ActionNoOp {
				continue
			}
			node := g.Nodes[addr]
			group.Go(func() error {
				valuesMu.Lock()
				snapshot := make(map[string]map[string]any, len(values))
				for k, v := range values {
					snapshot[k] = v
				}
				valuesMu.Unlock()
				// An attribute expression may still name an excluded branch
				// member; resolve it to the active member's values.
				for excluded, act := range g.Aliases {
					if v, ok := snapshot[act]; ok {
						snapshot[excluded] = v
					}
				}

				outputs, err := e.applyNode(ctx, node, st, vars, snapshot)
				if err != nil {
					failMu.Lock()
					failed = append(failed, addr)
					errs = append(errs, err)
					failMu.Unlock()
					return nil
				}
				valuesMu.Lock()
				values[addr] = outputs
				valuesMu.Unlock()
				return nil
			})
		}
		group.Wait()
		if len(failed) > 0 {
			sort.Strings(failed)
			return &PartialApplyError{Failed: failed, Errs: errs}
		}
	}
	st.Serial++
	return nil
}

// applyNode converges one resource and records the outcome in state. The
// returned map is the node's resolved attribute view for downstream
// references.
func (e *Engine) applyNode(ctx context.Context, node *Node, st *ir.State, vars map[string]cty.Value, values map[string]map[string]any) (map[string]any, error) {
	decl := node.Decl
	log := logging.With("resource", node.Addr)

	evalCtx, err := lang.ResourceContext(vars, values)
	if err != nil {
		return nil, &NodeApplyError{Address: node.Addr, Err: err}
	}
	inputs, err := lang.EvalAttrs(decl.Attrs, evalCtx)
	if err != nil {
		return nil, &NodeApplyError{Address: node.Addr, Err: err}
	}
	desired, err := json.Marshal(inputs)
	if err != nil {
		return nil, &NodeApplyError{Address: node.Addr, Err: err}
	}

	p, err := e.provider(ctx, decl.Provider)
	if err != nil {
		return nil, &NodeApplyError{Address: node.Addr, Err: err}
	}

	prior := st.Resource(node.Addr)
	var priorState json.RawMessage
	if prior != nil && len(prior.Outputs) > 0 {
		priorState, _ = json.Marshal(prior.Attributes())
	}

	rs := &ir.ResourceState{
		Type:         decl.Type,
		Name:         decl.Name,
		Provider:     decl.Provider,
		Status:       ir.StatusCreating,
		Inputs:       inputs,
		Dependencies: node.Deps,
	}
	e.stateUpsert(st, rs)

	log.Info("applying resource")
	timeout := e.timeoutFor(decl)
	var resp *provider.ApplyResponse
	err = e.Retry.RetryWithBackoff(ctx, node.Addr, func(ctx context.Context) error {
		opCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		var applyErr error
		resp, applyErr = p.Apply(opCtx, &provider.ApplyRequest{
			Type:    decl.Type,
			Name:    decl.Name,
			Desired: desired,
			Prior:   priorState,
		})
		return applyErr
	})
	if err != nil {
		rs.Status = ir.StatusFailed
		e.stateUpsert(st, rs)
		log.Error("resource apply failed", "error", err)
		return nil, &NodeApplyError{Address: node.Addr, Err: err}
	}

	if len(resp.State) > 0 {
		if err := json.Unmarshal(resp.State, &rs.Outputs); err != nil {
			rs.Status = ir.StatusFailed
			e.stateUpsert(st, rs)
			return nil, &NodeApplyError{Address: node.Addr, Err: fmt.Errorf("decoding provider state: %w", err)}
		}
	}
	rs.Status = ir.StatusCreated
	rs.InputsHash = DeclHash(decl.RawAttrs)
	e.stateUpsert(st, rs)
	log.Info("resource created")
	return rs.Attributes(), nil
}

// Destroy removes every resource in state, strictly one at a time, in the
// exact reverse of creation order. The first failure stops the walk; already
// destroyed resources are gone from state.
func (e *Engine) Destroy(ctx context.Context, st *ir.State) error {
	for _, addr := range DestroyOrder(st) {
		if err := e.deleteResource(ctx, st, addr); err != nil {
			return err
		}
	}
	st.Serial++
	return nil
}

// deleteResource removes one resource. A Read existence check first makes
// re-running a partially failed destroy a no-op for already-gone objects.
func (e *Engine) deleteResource(ctx context.Context, st *ir.State, addr string) error {
	rs := st.Resource(addr)
	if rs == nil {
		return nil
	}
	log := logging.With("resource", addr)

	p, err := e.provider(ctx, rs.Provider)
	if err != nil {
		return &NodeApplyError{Address: addr, Err: err}
	}

	current, _ := json.Marshal(rs.Attributes())
	id, _ := rs.Outputs["id"].(string)

	read, err := p.Read(ctx, &provider.ReadRequest{Type: rs.Type, ID: id, Current: current})
	if err == nil && read != nil && !read.Exists {
		log.Info("resource already gone, removing from state")
		st.Remove(addr)
		return nil
	}

	rs.Status = ir.StatusDestroying
	log.Info("destroying resource")
	err = e.Retry.RetryWithBackoff(ctx, addr, func(ctx context.Context) error {
		opCtx, cancel := context.WithTimeout(ctx, DefaultTimeout)
		defer cancel()
		return p.Delete(opCtx, &provider.DeleteRequest{Type: rs.Type, ID: id, Current: current})
	})
	if err != nil {
		rs.Status = ir.StatusFailed
		log.Error("resource destroy failed", "error", err)
		return &NodeApplyError{Address: addr, Err: err}
	}
	st.Remove(addr)
	log.Info("resource destroyed")
	return nil
}

// ApplySingle re-applies one already-created resource with attribute
// overrides merged over its recorded inputs. Used by pipeline deploy steps to
// roll a new artifact onto an existing resource.
func (e *Engine) ApplySingle(ctx context.Context, st *ir.State, addr string, overrides map[string]any) error {
	rs := st.Resource(addr)
	if rs == nil {
		return fmt.Errorf("resource %s is not in state", addr)
	}
	p, err := e.provider(ctx, rs.Provider)
	if err != nil {
		return &NodeApplyError{Address: addr, Err: err}
	}

	inputs := make(map[string]any, len(rs.Inputs)+len(overrides))
	for k, v := range rs.Inputs {
		inputs[k] = v
	}
	for k, v := range overrides {
		inputs[k] = v
	}
	desired, err := json.Marshal(inputs)
	if err != nil {
		return &NodeApplyError{Address: addr, Err: err}
	}
	prior, _ := json.Marshal(rs.Attributes())

	var resp *provider.ApplyResponse
	err = e.Retry.RetryWithBackoff(ctx, addr, func(ctx context.Context) error {
		opCtx, cancel := context.WithTimeout(ctx, DefaultTimeout)
		defer cancel()
		var applyErr error
		resp, applyErr = p.Apply(opCtx, &provider.ApplyRequest{
			Type:    rs.Type,
			Name:    rs.Name,
			Desired: desired,
			Prior:   prior,
		})
		return applyErr
	})
	if err != nil {
		rs.Status = ir.StatusFailed
		return &NodeApplyError{Address: addr, Err: err}
	}

	rs.Inputs = inputs
	if len(resp.State) > 0 {
		if err := json.Unmarshal(resp.State, &rs.Outputs); err != nil {
			return &NodeApplyError{Address: addr, Err: fmt.Errorf("decoding provider state: %w", err)}
		}
	}
	rs.Status = ir.StatusCreated
	st.Serial++
	return nil
}

// provider loads and configures a provider on first use.
func (e *Engine) provider(ctx context.Context, name string) (provider.Interface, error) {
	if err := e.Registry.LoadProvider(name); err != nil {
		return nil, err
	}
	p, err := e.Registry.Get(name)
	if err != nil {
		return nil, err
	}
	e.configuredMu.Lock()
	defer e.configuredMu.Unlock()
	if !e.configured[name] {
		if err := p.Configure(ctx, e.Settings[name]); err != nil {
			return nil, fmt.Errorf("configuring provider %s: %w", name, err)
		}
		e.configured[name] = true
	}
	return p, nil
}

func (e *Engine) timeoutFor(decl *lang.Resource) time.Duration {
	if decl.Timeout == "" {
		return DefaultTimeout
	}
	d, err := time.ParseDuration(decl.Timeout)
	if err != nil || d <= 0 {
		return DefaultTimeout
	}
	return d
}

// stateUpsert serializes state mutations from concurrent batch workers.
func (e *Engine) stateUpsert(st *ir.State, rs *ir.ResourceState) {
	e.stateMu.Lock()
	defer e.stateMu.Unlock()
	st.Upsert(rs)
}
