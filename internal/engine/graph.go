package engine

import (
	"sort"

	"github.com/stackform-io/stackform/internal/lang"
)

// Node is one resource in the dependency graph. Deps holds the addresses of
// every resource this node reads, whether through an attribute expression,
// its condition, or an explicit depends_on entry.
type Node struct {
	Addr string
	Decl *lang.Resource
	Deps []string

	// Included is cleared when the node's condition evaluates false. An
	// excluded node stays in the graph for reference checking but never
	// reaches a provider.
	Included bool
}

// Graph is the full resource dependency graph for one configuration.
type Graph struct {
	Nodes map[string]*Node

	// Aliases maps each excluded branch member to the active member of its
	// group. References naming the excluded member resolve to the active
	// member's values at apply time. Written by ResolveConditions.
	Aliases map[string]string
}

// BuildGraph wires resource declarations into a graph, deriving edges from
// expression references and depends_on lists. It fails on references to
// undeclared resources and on dependency cycles.
func BuildGraph(cfg *lang.Config) (*Graph, error) {
	g := &Graph{
		Nodes:   make(map[string]*Node, len(cfg.Resources)),
		Aliases: make(map[string]string),
	}
	for _, r := range cfg.Resources {
		g.Nodes[r.Addr()] = &Node{Addr: r.Addr(), Decl: r, Included: true}
	}

	for _, r := range cfg.Resources {
		node := g.Nodes[r.Addr()]
		seen := make(map[string]bool)

		addDep := func(dep string) error {
			if _, ok := g.Nodes[dep]; !ok {
				return &UnknownReferenceError{Referencer: r.Addr(), Reference: dep}
			}
			if dep != r.Addr() && !seen[dep] {
				seen[dep] = true
				node.Deps = append(node.Deps, dep)
			}
			return nil
		}

		for _, expr := range r.Attrs {
			refs, err := lang.ResourceRefs(expr)
			if err != nil {
				return nil, err
			}
			for _, dep := range refs {
				if err := addDep(dep); err != nil {
					return nil, err
				}
			}
		}
		if r.Condition != nil {
			refs, err := lang.ResourceRefs(r.Condition)
			if err != nil {
				return nil, err
			}
			for _, dep := range refs {
				if err := addDep(dep); err != nil {
					return nil, err
				}
			}
		}
		for _, dep := range r.DependsOn {
			if err := addDep(dep); err != nil {
				return nil, err
			}
		}
		sort.Strings(node.Deps)
	}

	if cycle := g.findCycle(); cycle != nil {
		return nil, &CyclicDependencyError{Nodes: cycle}
	}
	return g, nil
}

// Dependents returns the addresses that list addr as a dependency.
func (g *Graph) Dependents(addr string) []string {
	var out []string
	for _, n := range g.Nodes {
		for _, dep := range n.Deps {
			if dep == addr {
				out = append(out, n.Addr)
				break
			}
		}
	}
	sort.Strings(out)
	return out
}

// findCycle runs a depth-first search with an explicit recursion stack and
// returns the first cycle found, closed back on its starting node.
func (g *Graph) findCycle() []string {
	const (
		white = iota
		grey
		black
	)
	color := make(map[string]int, len(g.Nodes))
	var stack []string

	var visit func(addr string) []string
	visit = func(addr string) []string {
		color[addr] = grey
		stack = append(stack, addr)
		for _, dep := range g.Nodes[addr].Deps {
			switch color[dep] {
			case grey:
				// Slice the stack from the first occurrence of dep to close
				// the cycle.
				for i, a := range stack {
					if a == dep {
						cycle := append([]string{}, stack[i:]...)
						return append(cycle, dep)
					}
				}
			case white:
				if cycle := visit(dep); cycle != nil {
					return cycle
				}
			}
		}
		stack = stack[:len(stack)-1]
		color[addr] = black
		return nil
	}

	addrs := make([]string, 0, len(g.Nodes))
	for addr := range g.Nodes {
		addrs = append(addrs, addr)
	}
	sort.Strings(addrs)
	for _, addr := range addrs {
		if color[addr] == white {
			stack = stack[:0]
			if cycle := visit(addr); cycle != nil {
				return cycle
			}
		}
	}
	return nil
}
