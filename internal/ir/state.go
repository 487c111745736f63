package ir

import "fmt"

// State is the persisted record of everything a previous run converged.
// Resources are kept in creation order; destroy walks that slice backwards,
// which is what guarantees a node is never deleted while a dependent exists.
type State struct {
	Version   int              `json:"version"`
	Serial    int              `json:"serial"`
	Lineage   string           `json:"lineage"`
	Resources []*ResourceState `json:"resources"`
	Outputs   map[string]any   `json:"outputs,omitempty"`
}

// ResourceState is the per-node snapshot carried across runs.
type ResourceState struct {
	Type         string         `json:"type"`
	Name         string         `json:"name"`
	Provider     string         `json:"provider"`
	Status       ResourceStatus `json:"status"`
	Inputs       map[string]any `json:"inputs,omitempty"`
	InputsHash   string         `json:"inputsHash,omitempty"`
	Outputs      map[string]any `json:"outputs,omitempty"`
	Dependencies []string       `json:"dependencies,omitempty"`
}

// Addr returns the resource address (type.name).
func (r *ResourceState) Addr() string {
	return fmt.Sprintf("%s.%s", r.Type, r.Name)
}

// NewState returns an empty state ready for a first run.
func NewState() *State {
	return &State{Version: 1, Serial: 0}
}

// Resource looks up a resource snapshot by address, or nil.
func (s *State) Resource(addr string) *ResourceState {
	for _, r := range s.Resources {
		if r.Addr() == addr {
			return r
		}
	}
	return nil
}

// Upsert replaces the snapshot for rs.Addr() in place, or appends it,
// preserving creation order for existing entries.
func (s *State) Upsert(rs *ResourceState) {
	for i, r := range s.Resources {
		if r.Addr() == rs.Addr() {
			s.Resources[i] = rs
			return
		}
	}
	s.Resources = append(s.Resources, rs)
}

// Remove drops the snapshot for addr, if present.
func (s *State) Remove(addr string) {
	for i, r := range s.Resources {
		if r.Addr() == addr {
			s.Resources = append(s.Resources[:i], s.Resources[i+1:]...)
			return
		}
	}
}

// Attributes returns the merged input/output attribute view of a resource,
// outputs winning on key collisions. This is the value set that reference
// expressions resolve against after the node reaches a success state.
func (r *ResourceState) Attributes() map[string]any {
	merged := make(map[string]any, len(r.Inputs)+len(r.Outputs))
	for k, v := range r.Inputs {
		merged[k] = v
	}
	for k, v := range r.Outputs {
		merged[k] = v
	}
	return merged
}
