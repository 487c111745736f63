package engine

import (
	"sort"

	"github.com/stackform-io/stackform/internal/ir"
)

// Schedule partitions the included nodes into execution batches. Every node
// in a batch has all of its dependencies satisfied by earlier batches, so
// batch members can run concurrently. Within a batch, addresses sort
// ascending to keep runs deterministic.
func Schedule(g *Graph) [][]string {
	indegree := make(map[string]int)
	dependents := make(map[string][]string)
	for _, n := range g.Nodes {
		if !n.Included {
			continue
		}
		if _, ok := indegree[n.Addr]; !ok {
			indegree[n.Addr] = 0
		}
		for _, dep := range n.Deps {
			indegree[n.Addr]++
			dependents[dep] = append(dependents[dep], n.Addr)
		}
	}

	var ready []string
	for addr, d := range indegree {
		if d == 0 {
			ready = append(ready, addr)
		}
	}

	var batches [][]string
	for len(ready) > 0 {
		sort.Strings(ready)
		batch := ready
		ready = nil
		for _, addr := range batch {
			for _, dep := range dependents[addr] {
				indegree[dep]--
				if indegree[dep] == 0 {
					ready = append(ready, dep)
				}
			}
		}
		batches = append(batches, batch)
	}
	return batches
}

// DestroyOrder returns resource addresses in the exact reverse of the order
// they were created, as recorded in state. Destroys run sequentially so a
// resource is never removed before everything that was built on top of it.
func DestroyOrder(st *ir.State) []string {
	out := make([]string, 0, len(st.Resources))
	for i := len(st.Resources) - 1; i >= 0; i-- {
		out = append(out, st.Resources[i].Addr())
	}
	return out
}
