package workflow

import (
	"fmt"
	"strings"
)

// Structured validation errors. Build collects every violation it finds
// into one pkg/errors.MultiError instead of stopping at the first, so a
// misconfigured workflow is fixable in a single pass.

// DuplicateNameError reports a second declaration of an agent name within
// one workflow.
type DuplicateNameError struct {
	Name string
}

func (e *DuplicateNameError) Error() string {
	return fmt.Sprintf("agent name %q is already declared in this workflow", e.Name)
}

// UnknownAgentError reports a sub-agent or entry-point reference that does
// not resolve to any declared agent. ReferencedBy is empty for the entry
// point.
type UnknownAgentError struct {
	Name         string
	ReferencedBy string
}

func (e *UnknownAgentError) Error() string {
	if e.ReferencedBy == "" {
		return fmt.Sprintf("entry point references unknown agent %q", e.Name)
	}
	return fmt.Sprintf("agent %q references unknown agent %q", e.ReferencedBy, e.Name)
}

// UnknownToolError reports a tool reference that does not resolve in the
// tool registry.
type UnknownToolError struct {
	Name  string
	Agent string
}

func (e *UnknownToolError) Error() string {
	return fmt.Sprintf("agent %q references unknown tool %q", e.Agent, e.Name)
}

// CyclicReferenceError reports a cycle in the sub-agent graph. Path holds
// the agent names along the cycle, first repeated last.
type CyclicReferenceError struct {
	Path []string
}

func (e *CyclicReferenceError) Error() string {
	return fmt.Sprintf("cyclic agent reference: %s", strings.Join(e.Path, " -> "))
}

// FieldError reports a single invalid field on one agent configuration.
type FieldError struct {
	Agent  string
	Field  string
	Reason string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("agent %q: invalid %s: %s", e.Agent, e.Field, e.Reason)
}

// InvariantError signals a compiler bug: compilation reached a state the
// validated configuration should have made impossible.
type InvariantError struct {
	Stage  string
	Detail string
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("compiler invariant violated during %s: %s", e.Stage, e.Detail)
}
