package ir

// Action is the operation a plan schedules for one resource.
type Action string

const (
	ActionCreate Action = "CREATE"
	ActionUpdate Action = "UPDATE"
	ActionDelete Action = "DELETE"
	ActionNoOp   Action = "NOOP"
)

// Plan is a calculated execution plan: what to do, in which batches.
type Plan struct {
	Metadata *PlanMetadata     `json:"metadata"`
	Changes  []*ResourceChange `json:"changes"`
	Summary  *PlanSummary      `json:"summary"`

	// Batches is the full creation-order batch sequence over included
	// nodes; the executor skips entries whose action is NOOP. Deletes are
	// not batched: they run in exact reverse of the recorded creation
	// order.
	Batches [][]string `json:"batches"`
}

type PlanMetadata struct {
	Timestamp string `json:"timestamp"`
}

type ResourceChange struct {
	Address  string                    `json:"address"`
	Action   Action                    `json:"action"`
	Provider string                    `json:"provider"`
	Diff     map[string]*AttributeDiff `json:"diff,omitempty"`
}

type AttributeDiff struct {
	Before any    `json:"before,omitempty"`
	After  any    `json:"after,omitempty"`
	Action string `json:"action"` // "create", "update", "delete"
}

type PlanSummary struct {
	Create int `json:"create"`
	Update int `json:"update"`
	Delete int `json:"delete"`
	NoOp   int `json:"noop"`
}

// HasChanges reports whether the plan performs any operation at all.
func (p *Plan) HasChanges() bool {
	return p.Summary.Create+p.Summary.Update+p.Summary.Delete > 0
}

// Change returns the planned change for addr, or nil.
func (p *Plan) Change(addr string) *ResourceChange {
	for _, c := range p.Changes {
		if c.Address == addr {
			return c
		}
	}
	return nil
}
