// Package engine defines the boundary to the external provisioning engine.
// The composer hands a finalized graph across this boundary; the engine
// creates real resources and resolves deferred values to concrete data. The
// in-memory Fake stands in for a real engine in tests.
package engine

import (
	"context"
	"fmt"

	"github.com/telhaus/cirrus/pkg/graph"
)

// Materializer creates concrete resources for every node of a finalized
// graph, in topological order, and records the attributes that deferred
// values resolve to. Implementations own all cloud I/O and its failure
// modes; the composer never performs any.
type Materializer interface {
	Materialize(ctx context.Context, g *graph.Graph) (*MaterializedGraph, error)
}

// MaterializedGraph maps each node address to the concrete attributes the
// engine assigned to it.
type MaterializedGraph struct {
	Attributes map[string]map[string]string
}

// UnresolvedReferenceError means a deferred value points at an attribute the
// engine never assigned.
type UnresolvedReferenceError struct {
	Address   string
	Attribute string
}

func (e UnresolvedReferenceError) Error() string {
	return fmt.Sprintf("attribute %q of %q was never materialized", e.Attribute, e.Address)
}

// Resolve replaces every deferred value reachable from v with the concrete
// data assigned during materialization. Literals pass through unchanged;
// lists, maps and templates resolve element-wise and transitively.
func (m *MaterializedGraph) Resolve(v graph.Value) (any, error) {
	switch t := v.(type) {
	case graph.Literal:
		return t.V, nil
	case graph.List:
		out := make([]any, len(t.Items))
		for i, item := range t.Items {
			resolved, err := m.Resolve(item)
			if err != nil {
				return nil, err
			}
			out[i] = resolved
		}
		return out, nil
	case graph.Map:
		out := make(map[string]any, len(t.Entries))
		for k, entry := range t.Entries {
			resolved, err := m.Resolve(entry)
			if err != nil {
				return nil, err
			}
			out[k] = resolved
		}
		return out, nil
	case graph.Deferred:
		return m.resolveDeferred(t)
	case graph.Fmt:
		args := make([]any, len(t.Args))
		for i, arg := range t.Args {
			resolved, err := m.Resolve(arg)
			if err != nil {
				return nil, err
			}
			args[i] = resolved
		}
		return sprintf(t.Format, args), nil
	default:
		return nil, fmt.Errorf("unknown value type %T", v)
	}
}

func (m *MaterializedGraph) resolveDeferred(d graph.Deferred) (string, error) {
	if d.Source == nil {
		return "", UnresolvedReferenceError{Address: "<nil>", Attribute: d.Attribute}
	}
	attrs, ok := m.Attributes[d.Source.Address()]
	if !ok {
		return "", UnresolvedReferenceError{Address: d.Source.Address(), Attribute: d.Attribute}
	}
	value, ok := attrs[d.Attribute]
	if !ok {
		return "", UnresolvedReferenceError{Address: d.Source.Address(), Attribute: d.Attribute}
	}
	return value, nil
}

func sprintf(format string, args []any) string {
	converted := make([]any, len(args))
	for i, a := range args {
		converted[i] = fmt.Sprintf("%v", a)
	}
	return fmt.Sprintf(format, converted...)
}
