package graph

import (
	"fmt"
	"strings"
)

// Errors fall into two classes. Validation errors (DuplicateNameError,
// InvalidNodeError, FormatArityError) mean the caller supplied bad input and
// can correct it before composing again. Structural errors
// (CycleDetectedError, DanglingReferenceError) indicate a defect in how the
// topology was assembled and are never expected from a correct caller.
// Composition is all-or-nothing: a failed Finalize yields no partial graph.

// DuplicateNameError means the same logical name was added twice.
type DuplicateNameError struct {
	LogicalName string
}

func (e DuplicateNameError) Error() string {
	return fmt.Sprintf("duplicate logical name: %q", e.LogicalName)
}

// InvalidNodeError means a node declaration is malformed.
type InvalidNodeError struct {
	LogicalName string
	Reason      string
}

func (e InvalidNodeError) Error() string {
	return fmt.Sprintf("invalid node %q: %s", e.LogicalName, e.Reason)
}

// FormatArityError means a Fmt template's %s verbs do not match its
// argument count.
type FormatArityError struct {
	Node     string
	Property string
	Format   string
	Verbs    int
	Args     int
}

func (e FormatArityError) Error() string {
	return fmt.Sprintf("format %q on %s.%s has %d verbs but %d arguments",
		e.Format, e.Node, e.Property, e.Verbs, e.Args)
}

// CycleDetectedError means a node depends, directly or transitively, on its
// own output. Names lists the logical names participating in the cycle.
type CycleDetectedError struct {
	Names []string
}

func (e CycleDetectedError) Error() string {
	if len(e.Names) == 0 {
		return "dependency cycle detected"
	}
	return "dependency cycle detected: " + strings.Join(e.Names, " -> ") + " -> " + e.Names[0]
}

// DanglingReferenceError means a deferred value points at a node that was
// never added to the graph being finalized.
type DanglingReferenceError struct {
	Node      string
	Attribute string
	Source    string
}

func (e DanglingReferenceError) Error() string {
	return fmt.Sprintf("node %q references attribute %q of %q, which is not part of the graph",
		e.Node, e.Attribute, e.Source)
}
