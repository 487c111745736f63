package engine

import (
	"fmt"
	"sort"

	"github.com/zclconf/go-cty/cty"

	"github.com/stackform-io/stackform/internal/ir"
	"github.com/stackform-io/stackform/internal/lang"
)

// ResolveOutputs evaluates the configuration's output expressions against
// state and stores them on the state object. An output whose referenced
// resources have not all converged is skipped and reported in the returned
// pending list.
func ResolveOutputs(cfg *lang.Config, st *ir.State, vars map[string]cty.Value) ([]string, error) {
	values := make(map[string]map[string]any)
	ready := make(map[string]bool)
	for _, rs := range st.Resources {
		if rs.Status == ir.StatusCreated {
			values[rs.Addr()] = rs.Attributes()
			ready[rs.Addr()] = true
		}
	}
	evalCtx, err := lang.ResourceContext(vars, values)
	if err != nil {
		return nil, err
	}

	var pending []string
	if st.Outputs == nil {
		st.Outputs = make(map[string]any)
	}
	for _, out := range cfg.Outputs {
		refs, err := lang.ResourceRefs(out.Value)
		if err != nil {
			return nil, fmt.Errorf("output %q: %w", out.Name, err)
		}
		unresolved := false
		for _, ref := range refs {
			if !ready[ref] {
				unresolved = true
				break
			}
		}
		if unresolved {
			pending = append(pending, out.Name)
			delete(st.Outputs, out.Name)
			continue
		}

		val, diags := out.Value.Value(evalCtx)
		if diags.HasErrors() {
			return nil, fmt.Errorf("output %q: %s", out.Name, diags.Error())
		}
		gv, err := lang.CtyToGo(val)
		if err != nil {
			return nil, fmt.Errorf("output %q: %w", out.Name, err)
		}
		st.Outputs[out.Name] = gv
	}
	sort.Strings(pending)
	return pending, nil
}
