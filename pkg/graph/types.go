package graph

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// Node is a single declared resource: a kind, a logical name unique within
// the graph, and the desired properties. Properties may contain Deferred
// values pointing at attributes of other nodes.
type Node struct {
	Kind        string
	LogicalName string
	Properties  map[string]Value
}

// Address returns the node's stable address within the graph,
// e.g. "aws_subnet.core-private".
func (n *Node) Address() string {
	return n.Kind + "." + n.LogicalName
}

// Property returns the named property value, if set.
func (n *Node) Property(name string) (Value, bool) {
	v, ok := n.Properties[name]
	return v, ok
}

// propertyKeys returns the property names in sorted order for deterministic
// iteration.
func (n *Node) propertyKeys() []string {
	keys := make([]string, 0, len(n.Properties))
	for k := range n.Properties {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Edge records that From must be materialized before To.
type Edge struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// Metadata contains information about a finalized graph.
type Metadata struct {
	// Name is a human-readable name for the graph, usually the environment name.
	Name string `json:"name"`

	// Version is the version of the graph format.
	Version string `json:"version"`

	// PassID uniquely identifies the composition pass that produced the graph.
	PassID string `json:"passId"`

	// RenderHash is a hash of the finalized graph for change detection.
	RenderHash string `json:"renderHash,omitempty"`
}

// Graph is a finalized, acyclic set of resource nodes. Nodes are ordered
// topologically: a node appears after every node it depends on. A Graph is
// immutable; it is rebuilt from scratch on the next composition pass.
type Graph struct {
	Metadata Metadata
	Nodes    []*Node
	Edges    []Edge

	// sealed holds sensitive material generated during composition, keyed by
	// attribute address. It is excluded from hashing and serialization and is
	// handed to the provisioning engine out of band.
	sealed map[string]string
}

// Node looks up a node by logical name.
func (g *Graph) Node(logicalName string) (*Node, bool) {
	for _, n := range g.Nodes {
		if n.LogicalName == logicalName {
			return n, true
		}
	}
	return nil, false
}

// SealedValue returns the sensitive material sealed under the given
// attribute address, e.g. "credential.core-admin-password.value". It is
// intended for the provisioning engine only; sealed values never appear in
// node properties or rendered artifacts.
func (g *Graph) SealedValue(address string) (string, bool) {
	v, ok := g.sealed[address]
	return v, ok
}

// ComputeHash computes a hash of the graph's nodes and edges for change
// detection. Metadata and sealed material are excluded, so two passes that
// declare the same resources hash identically.
func (g *Graph) ComputeHash() string {
	type hashable struct {
		Nodes []*Node `json:"nodes"`
		Edges []Edge  `json:"edges"`
	}
	data, err := json.Marshal(hashable{Nodes: g.Nodes, Edges: g.Edges})
	if err != nil {
		// Finalize validates every literal and only the five Value kinds
		// exist, so a finalized graph always marshals. Reaching this is a
		// programming error, not a condition to degrade into a hash value.
		panic(fmt.Sprintf("graph: hashing unmarshalable graph %q: %v", g.Metadata.Name, err))
	}
	return fmt.Sprintf("%x", xxhash.Sum64(data))
}

// SetHash computes and sets the RenderHash field.
func (g *Graph) SetHash() {
	g.Metadata.RenderHash = g.ComputeHash()
}

// HasChanged reports whether the graph differs from the one that produced
// previousHash.
func (g *Graph) HasChanged(previousHash string) bool {
	if previousHash == "" {
		return true
	}
	return g.ComputeHash() != previousHash
}

// MarshalJSON renders the graph as a document of metadata, nodes and edges.
// Sealed material is never included.
func (g *Graph) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Metadata Metadata `json:"metadata"`
		Nodes    []*Node  `json:"nodes"`
		Edges    []Edge   `json:"edges"`
	}{
		Metadata: g.Metadata,
		Nodes:    g.Nodes,
		Edges:    g.Edges,
	})
}

// DOT exports the graph in Graphviz DOT form for inspection.
func (g *Graph) DOT() string {
	var b strings.Builder
	b.WriteString("digraph cirrus {\n")
	b.WriteString("  rankdir=LR;\n")
	b.WriteString("  node [shape=box, style=rounded];\n")
	for _, n := range g.Nodes {
		fmt.Fprintf(&b, "  %q [label=\"%s\\n(%s)\"];\n", n.LogicalName, n.LogicalName, n.Kind)
	}
	for _, e := range g.Edges {
		fmt.Fprintf(&b, "  %q -> %q;\n", e.From, e.To)
	}
	b.WriteString("}\n")
	return b.String()
}

// MarshalJSON renders a node as kind, name and properties.
func (n *Node) MarshalJSON() ([]byte, error) {
	props := make(map[string]json.RawMessage, len(n.Properties))
	for _, k := range n.propertyKeys() {
		raw, err := marshalValue(n.Properties[k])
		if err != nil {
			return nil, fmt.Errorf("property %s: %w", k, err)
		}
		props[k] = raw
	}
	return json.Marshal(struct {
		Kind       string                     `json:"kind"`
		Name       string                     `json:"name"`
		Properties map[string]json.RawMessage `json:"properties,omitempty"`
	}{
		Kind:       n.Kind,
		Name:       n.LogicalName,
		Properties: props,
	})
}

func marshalValue(v Value) (json.RawMessage, error) {
	switch t := v.(type) {
	case Literal:
		return json.Marshal(t.V)
	case List:
		items := make([]json.RawMessage, len(t.Items))
		for i, item := range t.Items {
			raw, err := marshalValue(item)
			if err != nil {
				return nil, err
			}
			items[i] = raw
		}
		return json.Marshal(items)
	case Map:
		entries := make(map[string]json.RawMessage, len(t.Entries))
		for k, entry := range t.Entries {
			raw, err := marshalValue(entry)
			if err != nil {
				return nil, err
			}
			entries[k] = raw
		}
		return json.Marshal(entries)
	case Deferred:
		return json.Marshal(map[string]string{"$ref": t.Address()})
	case Fmt:
		args := make([]json.RawMessage, len(t.Args))
		for i, arg := range t.Args {
			raw, err := marshalValue(arg)
			if err != nil {
				return nil, err
			}
			args[i] = raw
		}
		return json.Marshal(struct {
			Format string            `json:"$format"`
			Args   []json.RawMessage `json:"args"`
		}{Format: t.Format, Args: args})
	default:
		return nil, fmt.Errorf("unknown value type %T", v)
	}
}
