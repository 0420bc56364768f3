package graph

import (
	"fmt"
	"sort"
)

// Value is a property value on a Node. It is either concrete data known at
// composition time (Literal, List, Map, Fmt over literals) or a Deferred
// placeholder that only the provisioning engine can resolve.
type Value interface {
	isValue()
}

// Literal wraps a concrete value known at composition time.
// Supported underlying types are string, bool, int, int64 and float64.
type Literal struct {
	V any
}

// List is an ordered collection of values.
type List struct {
	Items []Value
}

// Map is a string-keyed collection of values.
type Map struct {
	Entries map[string]Value
}

// Deferred is a placeholder for an attribute of a node that does not exist
// until the provisioning engine materializes it. It carries an explicit
// back-reference to its source node; the composer never dereferences it,
// only propagates it into dependent nodes.
type Deferred struct {
	Source    *Node
	Attribute string
}

// Fmt is a string template combining literal text with embedded values.
// Each %s verb in Format consumes one argument; the engine substitutes
// resolved argument values at materialization time.
type Fmt struct {
	Format string
	Args   []Value
}

func (Literal) isValue()  {}
func (List) isValue()     {}
func (Map) isValue()      {}
func (Deferred) isValue() {}
func (Fmt) isValue()      {}

// Address returns the attribute address this placeholder resolves to,
// e.g. "aws_vpc.core.id".
func (d Deferred) Address() string {
	if d.Source == nil {
		return "<nil>." + d.Attribute
	}
	return d.Source.Address() + "." + d.Attribute
}

// Str wraps a string literal.
func Str(s string) Literal { return Literal{V: s} }

// Num wraps an integer literal.
func Num(n int) Literal { return Literal{V: n} }

// Float wraps a floating point literal.
func Float(f float64) Literal { return Literal{V: f} }

// Bool wraps a boolean literal.
func Bool(b bool) Literal { return Literal{V: b} }

// Strs builds a List of string literals.
func Strs(ss ...string) List {
	items := make([]Value, len(ss))
	for i, s := range ss {
		items[i] = Str(s)
	}
	return List{Items: items}
}

// Values builds a List from the given values.
func Values(vs ...Value) List {
	return List{Items: vs}
}

// Format builds a Fmt template. The number of %s verbs in format must match
// the number of arguments; the mismatch is reported at finalize time.
func Format(format string, args ...Value) Fmt {
	return Fmt{Format: format, Args: args}
}

// entryKeys returns the map's keys in sorted order. Walks must visit
// entries deterministically: edge order, and with it the render hash,
// depends on visit order.
func entryKeys(m Map) []string {
	keys := make([]string, 0, len(m.Entries))
	for k := range m.Entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// walkDeferred invokes fn for every Deferred reachable from v, including
// those nested in lists, maps and templates.
func walkDeferred(v Value, fn func(Deferred)) {
	switch t := v.(type) {
	case Deferred:
		fn(t)
	case List:
		for _, item := range t.Items {
			walkDeferred(item, fn)
		}
	case Map:
		for _, k := range entryKeys(t) {
			walkDeferred(t.Entries[k], fn)
		}
	case Fmt:
		for _, arg := range t.Args {
			walkDeferred(arg, fn)
		}
	}
}

// walkLiteral invokes fn for every Literal reachable from v.
func walkLiteral(v Value, fn func(Literal)) {
	switch t := v.(type) {
	case Literal:
		fn(t)
	case List:
		for _, item := range t.Items {
			walkLiteral(item, fn)
		}
	case Map:
		for _, k := range entryKeys(t) {
			walkLiteral(t.Entries[k], fn)
		}
	case Fmt:
		for _, arg := range t.Args {
			walkLiteral(arg, fn)
		}
	}
}

func validateLiteral(l Literal) error {
	switch l.V.(type) {
	case string, bool, int, int64, float64:
		return nil
	default:
		return fmt.Errorf("unsupported literal type %T", l.V)
	}
}
