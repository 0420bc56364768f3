package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/cespare/xxhash/v2"

	"github.com/telhaus/cirrus/pkg/graph"
)

// Fake is an in-memory materializer for tests. It walks the graph in
// topological order and assigns deterministic identifiers derived from each
// node's address, so repeated runs over the same graph produce identical
// attributes. Sealed material is consumed from the graph's sealed store the
// way a real engine would.
type Fake struct {
	// FailAt, when set, aborts materialization at the named node.
	FailAt string
}

var _ Materializer = (*Fake)(nil)

// Materialize assigns fake attributes to every node.
func (f *Fake) Materialize(_ context.Context, g *graph.Graph) (*MaterializedGraph, error) {
	out := &MaterializedGraph{
		Attributes: make(map[string]map[string]string, len(g.Nodes)),
	}
	for _, n := range g.Nodes {
		if f.FailAt != "" && n.LogicalName == f.FailAt {
			return nil, fmt.Errorf("materializing %s: injected failure", n.Address())
		}
		out.Attributes[n.Address()] = f.attributes(g, n)
	}
	return out, nil
}

func (f *Fake) attributes(g *graph.Graph, n *graph.Node) map[string]string {
	id := fmt.Sprintf("%s-%08x", kindPrefix(n.Kind), xxhash.Sum64String(n.Address())&0xffffffff)
	attrs := map[string]string{
		"id":       id,
		"arn":      "arn:aws:fake:eu-central-1:000000000000:" + n.Address(),
		"name":     n.LogicalName,
		"endpoint": n.LogicalName + ".cluster.fake.internal",
	}
	// A real engine receives generated plaintext out of band; the fake reads
	// it straight from the sealed store.
	prefix := n.Address() + "."
	for _, attr := range []string{"value"} {
		if v, ok := g.SealedValue(prefix + attr); ok {
			attrs[attr] = v
		}
	}
	return attrs
}

func kindPrefix(kind string) string {
	kind = strings.TrimPrefix(kind, "aws_")
	if i := strings.Index(kind, "_"); i > 0 {
		return kind[:i]
	}
	return kind
}
