package pipeline

import (
	"fmt"
	"sort"
	"strings"

	"github.com/stackform-io/stackform/internal/lang"
)

// StepNode is one step in a resolved pipeline graph. Deps combines explicit
// wait_for entries with implicit edges from step.<id>.<artifact> references
// in the step's arguments.
type StepNode struct {
	ID   string
	Decl *lang.Step
	Deps []string
}

// Pipeline is a validated, acyclic step graph ready for execution.
type Pipeline struct {
	Name  string
	Steps map[string]*StepNode
	Order []string // declaration order, for stable reporting
}

// Build resolves a pipeline declaration into a step graph, deriving edges
// and rejecting unknown step references and cycles.
func Build(decl *lang.Pipeline) (*Pipeline, error) {
	p := &Pipeline{
		Name:  decl.Name,
		Steps: make(map[string]*StepNode, len(decl.Steps)),
	}
	for _, s := range decl.Steps {
		if _, dup := p.Steps[s.ID]; dup {
			return nil, fmt.Errorf("pipeline %s: duplicate step %q", decl.Name, s.ID)
		}
		p.Steps[s.ID] = &StepNode{ID: s.ID, Decl: s}
		p.Order = append(p.Order, s.ID)
	}

	for _, node := range p.Steps {
		seen := make(map[string]bool)
		addDep := func(dep string) error {
			if _, ok := p.Steps[dep]; !ok {
				return fmt.Errorf("pipeline %s: step %s references unknown step %q", decl.Name, node.ID, dep)
			}
			if dep != node.ID && !seen[dep] {
				seen[dep] = true
				node.Deps = append(node.Deps, dep)
			}
			return nil
		}
		for _, dep := range node.Decl.WaitFor {
			if err := addDep(dep); err != nil {
				return nil, err
			}
		}
		for _, expr := range node.Decl.Args {
			for _, dep := range lang.StepRefs(expr) {
				if err := addDep(dep); err != nil {
					return nil, err
				}
			}
		}
		sort.Strings(node.Deps)
	}

	if cycle := p.findCycle(); cycle != nil {
		return nil, fmt.Errorf("pipeline %s: dependency cycle: %s", decl.Name, strings.Join(cycle, " -> "))
	}
	return p, nil
}

// Batches partitions the steps into concurrent execution rounds, every step
// waiting on all of its dependencies from earlier rounds.
func (p *Pipeline) Batches() [][]string {
	indegree := make(map[string]int, len(p.Steps))
	dependents := make(map[string][]string)
	for _, n := range p.Steps {
		indegree[n.ID] = len(n.Deps)
		for _, dep := range n.Deps {
			dependents[dep] = append(dependents[dep], n.ID)
		}
	}

	var ready []string
	for id, d := range indegree {
		if d == 0 {
			ready = append(ready, id)
		}
	}

	var batches [][]string
	for len(ready) > 0 {
		sort.Strings(ready)
		batch := ready
		ready = nil
		for _, id := range batch {
			for _, dep := range dependents[id] {
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

func (p *Pipeline) findCycle() []string {
	const (
		white = iota
		grey
		black
	)
	color := make(map[string]int, len(p.Steps))
	var stack []string

	var visit func(id string) []string
	visit = func(id string) []string {
		color[id] = grey
		stack = append(stack, id)
		for _, dep := range p.Steps[id].Deps {
			switch color[dep] {
			case grey:
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
		color[id] = black
		return nil
	}

	for _, id := range p.Order {
		if color[id] == white {
			stack = stack[:0]
			if cycle := visit(id); cycle != nil {
				return cycle
			}
		}
	}
	return nil
}
