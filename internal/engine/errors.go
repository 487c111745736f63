package engine

import (
	"fmt"
	"strings"
)

// CyclicDependencyError is returned when the resource graph contains a
// dependency cycle. Nodes lists the addresses on the cycle in traversal
// order.
type CyclicDependencyError struct {
	Nodes []string
}

func (e *CyclicDependencyError) Error() string {
	return fmt.Sprintf("dependency cycle: %s", strings.Join(e.Nodes, " -> "))
}

// UnknownReferenceError is returned when an expression or depends_on entry
// names a resource that is not declared in the configuration.
type UnknownReferenceError struct {
	Referencer string
	Reference  string
}

func (e *UnknownReferenceError) Error() string {
	return fmt.Sprintf("%s references unknown resource %s", e.Referencer, e.Reference)
}

// UnsatisfiedDependencyError is returned when an included resource depends
// on a resource that condition evaluation excluded from the run.
type UnsatisfiedDependencyError struct {
	Node       string
	Dependency string
}

func (e *UnsatisfiedDependencyError) Error() string {
	return fmt.Sprintf("%s depends on %s, which is excluded by its condition", e.Node, e.Dependency)
}

// TransientAPIError wraps a remote API failure that is safe to retry.
type TransientAPIError struct {
	Err error
}

func (e *TransientAPIError) Error() string {
	return fmt.Sprintf("transient API error: %v", e.Err)
}

func (e *TransientAPIError) Unwrap() error { return e.Err }

// NodeApplyError records a failure to converge one resource, after retries
// were exhausted or a permanent error was hit.
type NodeApplyError struct {
	Address string
	Err     error
}

func (e *NodeApplyError) Error() string {
	return fmt.Sprintf("apply %s: %v", e.Address, e.Err)
}

func (e *NodeApplyError) Unwrap() error { return e.Err }

// PartialApplyError is returned when an apply run converged some resources
// before one or more failures stopped it. State has already been persisted
// for everything that ran.
type PartialApplyError struct {
	Failed []string
	Errs   []error
}

func (e *PartialApplyError) Error() string {
	msgs := make([]string, 0, len(e.Errs))
	for _, err := range e.Errs {
		msgs = append(msgs, err.Error())
	}
	return fmt.Sprintf("apply incomplete, %d resource(s) failed: %s",
		len(e.Failed), strings.Join(msgs, "; "))
}

func (e *PartialApplyError) Unwrap() []error { return e.Errs }
