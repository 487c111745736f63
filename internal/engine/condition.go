package engine

import (
	"fmt"
	"sort"

	"github.com/zclconf/go-cty/cty"

	"github.com/stackform-io/stackform/internal/lang"
)

// ResolveConditions evaluates every node's condition against the bound
// variables and marks excluded nodes. Branch groups are then checked for the
// exactly-one-active rule, and edges into excluded branch members are
// rewritten to the active member. A remaining edge from an included node to
// an excluded one is an error.
func ResolveConditions(g *Graph, vars map[string]cty.Value) error {
	ctx := lang.VariableContext(vars)

	branches := make(map[string][]*Node)
	for _, n := range sortedNodes(g) {
		if n.Decl.Condition != nil {
			ok, err := lang.EvalBool(n.Decl.Condition, ctx)
			if err != nil {
				return fmt.Errorf("condition for %s: %w", n.Addr, err)
			}
			n.Included = ok
		}
		if n.Decl.Branch != "" {
			branches[n.Decl.Branch] = append(branches[n.Decl.Branch], n)
		}
	}

	// Each branch group must resolve to exactly one active member.
	active := make(map[string]string)
	groups := make([]string, 0, len(branches))
	for name := range branches {
		groups = append(groups, name)
	}
	sort.Strings(groups)
	var problems []string
	for _, name := range groups {
		var on []string
		for _, n := range branches[name] {
			if n.Included {
				on = append(on, n.Addr)
			}
		}
		switch len(on) {
		case 1:
			active[name] = on[0]
		case 0:
			problems = append(problems, fmt.Sprintf("branch %q has no active member", name))
		default:
			problems = append(problems, fmt.Sprintf("branch %q has %d active members (%v), want exactly one", name, len(on), on))
		}
	}
	if len(problems) > 0 {
		return &lang.ValidationError{Problems: problems}
	}

	// Excluded branch members alias the active member, so both the edges
	// below and attribute references at apply time resolve to it.
	if g.Aliases == nil {
		g.Aliases = make(map[string]string)
	}
	for _, name := range groups {
		for _, n := range branches[name] {
			if !n.Included {
				g.Aliases[n.Addr] = active[name]
			}
		}
	}

	// Rewrite edges pointing at an excluded branch member to the group's
	// active member. Dependencies on excluded non-branch nodes are only an
	// error when the dependent itself is included.
	for _, n := range sortedNodes(g) {
		if !n.Included {
			continue
		}
		seen := make(map[string]bool)
		deps := n.Deps[:0]
		for _, dep := range n.Deps {
			target := g.Nodes[dep]
			if !target.Included {
				if target.Decl.Branch != "" {
					dep = active[target.Decl.Branch]
				} else {
					return &UnsatisfiedDependencyError{Node: n.Addr, Dependency: target.Addr}
				}
			}
			if dep != n.Addr && !seen[dep] {
				seen[dep] = true
				deps = append(deps, dep)
			}
		}
		sort.Strings(deps)
		n.Deps = deps
	}
	return nil
}

func sortedNodes(g *Graph) []*Node {
	nodes := make([]*Node, 0, len(g.Nodes))
	for _, n := range g.Nodes {
		nodes = append(nodes, n)
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].Addr < nodes[j].Addr })
	return nodes
}
