package graph

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dominikbraun/graph"
	"github.com/google/uuid"
)

// graphVersion is the version of the graph artifact format.
const graphVersion = "v1"

// Builder accumulates resource nodes for one composition pass and finalizes
// them into an acyclic Graph. A Builder is single-owner: it is not safe for
// concurrent use and is discarded after Finalize.
type Builder struct {
	name   string
	passID string
	nodes  map[string]*Node
	order  []string
	sealed map[string]string
}

// NewBuilder creates a builder for a graph with the given name.
func NewBuilder(name string) *Builder {
	return &Builder{
		name:   name,
		passID: uuid.NewString(),
		nodes:  make(map[string]*Node),
		sealed: make(map[string]string),
	}
}

// AddNode declares a resource node. The logical name must be unique within
// the graph; a second node with the same name fails with DuplicateNameError.
// No I/O happens here, this is pure bookkeeping.
func (b *Builder) AddNode(kind, logicalName string, properties map[string]Value) (*Node, error) {
	if kind == "" {
		return nil, InvalidNodeError{LogicalName: logicalName, Reason: "kind is required"}
	}
	if logicalName == "" {
		return nil, InvalidNodeError{LogicalName: logicalName, Reason: "logical name is required"}
	}
	if _, exists := b.nodes[logicalName]; exists {
		return nil, DuplicateNameError{LogicalName: logicalName}
	}

	props := make(map[string]Value, len(properties))
	for k, v := range properties {
		props[k] = v
	}

	n := &Node{
		Kind:        kind,
		LogicalName: logicalName,
		Properties:  props,
	}
	b.nodes[logicalName] = n
	b.order = append(b.order, logicalName)
	return n, nil
}

// Reference creates a deferred value for an attribute of the given node.
// It is pure and side-effect-free; the dependency edge it implies is
// constructed at finalize time. The node does not need to be materialized,
// or even added to this builder yet.
func (b *Builder) Reference(n *Node, attribute string) Deferred {
	return Deferred{Source: n, Attribute: attribute}
}

// Seal records sensitive material for an attribute of the given node. The
// plaintext never enters node properties; it travels to the provisioning
// engine through the finalized graph's sealed store, excluded from hashing
// and serialization.
func (b *Builder) Seal(n *Node, attribute, plaintext string) {
	b.sealed[n.Address()+"."+attribute] = plaintext
}

// Finalize validates the accumulated nodes, infers dependency edges from
// deferred references, and topologically sorts the result. It fails with
// DanglingReferenceError if a deferred value points outside the graph and
// with CycleDetectedError, naming the participating logical names, if the
// edge relation is cyclic.
func (b *Builder) Finalize() (*Graph, error) {
	index := make(map[string]int, len(b.order))
	for i, name := range b.order {
		index[name] = i
	}

	dg := graph.New(graph.StringHash, graph.Directed(), graph.PreventCycles())
	for _, name := range b.order {
		if err := dg.AddVertex(name); err != nil {
			return nil, fmt.Errorf("adding vertex %s: %w", name, err)
		}
	}

	var edges []Edge
	for _, name := range b.order {
		n := b.nodes[name]
		for _, key := range n.propertyKeys() {
			if err := b.validateProperty(n, key); err != nil {
				return nil, err
			}
			var deferredErr error
			walkDeferred(n.Properties[key], func(d Deferred) {
				if deferredErr != nil {
					return
				}
				deferredErr = b.addEdge(dg, &edges, n, key, d)
			})
			if deferredErr != nil {
				return nil, deferredErr
			}
		}
	}

	sorted, err := graph.StableTopologicalSort(dg, func(a, c string) bool {
		return index[a] < index[c]
	})
	if err != nil {
		// PreventCycles already rejected cyclic edges, so this is unreachable
		// in practice.
		return nil, CycleDetectedError{}
	}

	nodes := make([]*Node, len(sorted))
	for i, name := range sorted {
		nodes[i] = b.nodes[name]
	}

	sealed := make(map[string]string, len(b.sealed))
	for k, v := range b.sealed {
		sealed[k] = v
	}

	g := &Graph{
		Metadata: Metadata{
			Name:    b.name,
			Version: graphVersion,
			PassID:  b.passID,
		},
		Nodes:  nodes,
		Edges:  edges,
		sealed: sealed,
	}
	g.SetHash()
	return g, nil
}

// addEdge registers the dependency implied by a deferred value: the source
// node must be materialized before the consuming node.
func (b *Builder) addEdge(dg graph.Graph[string, string], edges *[]Edge, n *Node, key string, d Deferred) error {
	if d.Source == nil || b.nodes[d.Source.LogicalName] != d.Source {
		return DanglingReferenceError{
			Node:      n.Address(),
			Attribute: d.Attribute,
			Source:    sourceAddress(d),
		}
	}
	if d.Source == n {
		return CycleDetectedError{Names: []string{n.LogicalName}}
	}

	err := dg.AddEdge(d.Source.LogicalName, n.LogicalName)
	switch {
	case err == nil:
		*edges = append(*edges, Edge{From: d.Source.LogicalName, To: n.LogicalName})
		return nil
	case errors.Is(err, graph.ErrEdgeAlreadyExists):
		return nil
	case errors.Is(err, graph.ErrEdgeCreatesCycle):
		// The rejected edge closes a path from the consumer back to the
		// source; that path names every participant.
		names, pathErr := graph.ShortestPath(dg, n.LogicalName, d.Source.LogicalName)
		if pathErr != nil {
			names = []string{n.LogicalName, d.Source.LogicalName}
		}
		return CycleDetectedError{Names: names}
	default:
		return fmt.Errorf("adding edge %s -> %s: %w", d.Source.LogicalName, n.LogicalName, err)
	}
}

func (b *Builder) validateProperty(n *Node, key string) error {
	var err error
	walkLiteral(n.Properties[key], func(l Literal) {
		if err == nil {
			if lerr := validateLiteral(l); lerr != nil {
				err = InvalidNodeError{LogicalName: n.LogicalName, Reason: fmt.Sprintf("property %s: %v", key, lerr)}
			}
		}
	})
	if err != nil {
		return err
	}
	return validateFormats(n, key, n.Properties[key])
}

func validateFormats(n *Node, key string, v Value) error {
	switch t := v.(type) {
	case Fmt:
		verbs := strings.Count(t.Format, "%s")
		if verbs != len(t.Args) {
			return FormatArityError{
				Node:     n.LogicalName,
				Property: key,
				Format:   t.Format,
				Verbs:    verbs,
				Args:     len(t.Args),
			}
		}
		for _, arg := range t.Args {
			if err := validateFormats(n, key, arg); err != nil {
				return err
			}
		}
	case List:
		for _, item := range t.Items {
			if err := validateFormats(n, key, item); err != nil {
				return err
			}
		}
	case Map:
		for _, entry := range t.Entries {
			if err := validateFormats(n, key, entry); err != nil {
				return err
			}
		}
	}
	return nil
}

func sourceAddress(d Deferred) string {
	if d.Source == nil {
		return "<nil>"
	}
	return d.Source.Address()
}
