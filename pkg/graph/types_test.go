package graph

import (
	"encoding/json"
	"strings"
	"testing"
)

func composeTestGraph(t *testing.T) *Graph {
	t.Helper()
	b := NewBuilder("hash-test")
	vpc, err := b.AddNode("aws_vpc", "vpc", map[string]Value{
		"cidr_block": Str("10.0.0.0/16"),
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := b.AddNode("aws_subnet", "subnet", map[string]Value{
		"vpc_id": b.Reference(vpc, "id"),
	}); err != nil {
		t.Fatal(err)
	}
	g, err := b.Finalize()
	if err != nil {
		t.Fatal(err)
	}
	return g
}

func TestComputeHashStableAcrossPasses(t *testing.T) {
	first := composeTestGraph(t)
	second := composeTestGraph(t)

	if first.Metadata.PassID == second.Metadata.PassID {
		t.Error("PassID should differ between composition passes")
	}
	// Hash covers only nodes and edges, so identical declarations from
	// different passes hash identically.
	if first.ComputeHash() != second.ComputeHash() {
		t.Error("identical graphs from different passes should hash identically")
	}
	if first.HasChanged(second.Metadata.RenderHash) {
		t.Error("HasChanged() = true for identical declarations")
	}
	if !first.HasChanged("") {
		t.Error("HasChanged(\"\") = false, want true")
	}
}

func TestComputeHashDetectsChange(t *testing.T) {
	g := composeTestGraph(t)

	b := NewBuilder("hash-test")
	if _, err := b.AddNode("aws_vpc", "vpc", map[string]Value{
		"cidr_block": Str("10.1.0.0/16"),
	}); err != nil {
		t.Fatal(err)
	}
	changed, err := b.Finalize()
	if err != nil {
		t.Fatal(err)
	}
	if !changed.HasChanged(g.Metadata.RenderHash) {
		t.Error("HasChanged() = false for a different declaration")
	}
}

func TestGraphJSONRedactsSealedMaterial(t *testing.T) {
	b := NewBuilder("secrets")
	cred, err := b.AddNode("credential", "admin", map[string]Value{
		"length": Num(32),
	})
	if err != nil {
		t.Fatal(err)
	}
	b.Seal(cred, "value", "never-serialized")
	g, err := b.Finalize()
	if err != nil {
		t.Fatal(err)
	}

	data, err := json.Marshal(g)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if strings.Contains(string(data), "never-serialized") {
		t.Error("sealed material leaked into graph JSON")
	}
}

func TestGraphJSONDeferredRendering(t *testing.T) {
	g := composeTestGraph(t)
	data, err := json.Marshal(g)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `"$ref":"aws_vpc.vpc.id"`) {
		t.Errorf("deferred value not rendered as reference: %s", data)
	}
}

func TestGraphDOT(t *testing.T) {
	g := composeTestGraph(t)
	dot := g.DOT()
	for _, want := range []string{"digraph", `"vpc" -> "subnet"`, "aws_subnet"} {
		if !strings.Contains(dot, want) {
			t.Errorf("DOT() missing %q:\n%s", want, dot)
		}
	}
}

func TestNodeAddress(t *testing.T) {
	n := &Node{Kind: "aws_vpc", LogicalName: "core"}
	if got := n.Address(); got != "aws_vpc.core" {
		t.Errorf("Address() = %q, want %q", got, "aws_vpc.core")
	}
	d := Deferred{Source: n, Attribute: "id"}
	if got := d.Address(); got != "aws_vpc.core.id" {
		t.Errorf("Deferred.Address() = %q, want %q", got, "aws_vpc.core.id")
	}
}

func TestComputeHashPanicsOnUnmarshalableGraph(t *testing.T) {
	g := composeTestGraph(t)
	// Inject a value no finalized graph can contain; hashing must fail
	// loudly instead of degrading to an empty hash.
	g.Nodes[0].Properties["bad"] = Literal{V: make(chan int)}

	defer func() {
		if recover() == nil {
			t.Error("ComputeHash() did not panic on unmarshalable graph")
		}
	}()
	g.ComputeHash()
}
