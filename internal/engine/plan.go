package engine

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"time"

	"github.com/stackform-io/stackform/internal/ir"
)

// CreatePlan diffs the resolved graph against prior state and returns the
// plan for the run. A node is created when state has no successful record of
// it, updated when its declaration hash changed, and left alone otherwise.
// Resources present in state but gone from the configuration are scheduled
// for deletion in reverse creation order.
func CreatePlan(g *Graph, st *ir.State) *ir.Plan {
	plan := &ir.Plan{
		Metadata: &ir.PlanMetadata{Timestamp: time.Now().UTC().Format(time.RFC3339)},
		Summary:  &ir.PlanSummary{},
		Batches:  Schedule(g),
	}

	for _, batch := range plan.Batches {
		for _, addr := range batch {
			n := g.Nodes[addr]
			change := &ir.ResourceChange{
				Address:  addr,
				Provider: n.Decl.Provider,
			}
			prior := st.Resource(addr)
			hash := DeclHash(n.Decl.RawAttrs)
			switch {
			case prior == nil || prior.Status != ir.StatusCreated:
				change.Action = ir.ActionCreate
				change.Diff = diffAttrs(nil, n.Decl.RawAttrs)
				plan.Summary.Create++
			case prior.InputsHash != hash:
				change.Action = ir.ActionUpdate
				change.Diff = diffAttrs(prior.Inputs, n.Decl.RawAttrs)
				plan.Summary.Update++
			default:
				change.Action = ir.ActionNoOp
				plan.Summary.NoOp++
			}
			plan.Changes = append(plan.Changes, change)
		}
	}

	// Deletes in reverse creation order, after every create/update entry.
	for i := len(st.Resources) - 1; i >= 0; i-- {
		rs := st.Resources[i]
		if _, ok := g.Nodes[rs.Addr()]; ok && g.Nodes[rs.Addr()].Included {
			continue
		}
		plan.Changes = append(plan.Changes, &ir.ResourceChange{
			Address:  rs.Addr(),
			Action:   ir.ActionDelete,
			Provider: rs.Provider,
			Diff:     deleteDiff(rs.Inputs),
		})
		plan.Summary.Delete++
	}
	return plan
}

// DeclHash hashes a declaration's attribute source text. The hash is stored
// in state and compared on the next run to detect changes without
// re-evaluating expressions.
func DeclHash(rawAttrs map[string]string) string {
	keys := make([]string, 0, len(rawAttrs))
	for k := range rawAttrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	h := sha256.New()
	for _, k := range keys {
		fmt.Fprintf(h, "%s=%s\n", k, rawAttrs[k])
	}
	return hex.EncodeToString(h.Sum(nil))
}

func diffAttrs(before map[string]any, after map[string]string) map[string]*ir.AttributeDiff {
	diff := make(map[string]*ir.AttributeDiff, len(after))
	for k, src := range after {
		d := &ir.AttributeDiff{After: src, Action: "create"}
		if before != nil {
			if prev, ok := before[k]; ok {
				d.Before = prev
				d.Action = "update"
			}
		}
		diff[k] = d
	}
	for k, prev := range before {
		if _, ok := after[k]; !ok {
			diff[k] = &ir.AttributeDiff{Before: prev, Action: "delete"}
		}
	}
	return diff
}

func deleteDiff(before map[string]any) map[string]*ir.AttributeDiff {
	diff := make(map[string]*ir.AttributeDiff, len(before))
	for k, prev := range before {
		diff[k] = &ir.AttributeDiff{Before: prev, Action: "delete"}
	}
	return diff
}
