// Package synth renders a finalized resource graph into the artifacts the
// provisioning engine consumes: a Terraform-style HCL document and a JSON
// graph document. Deferred values become attribute traversal expressions;
// sealed material is never rendered.
package synth

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/hashicorp/hcl/v2/hclwrite"
	"github.com/sourcegraph/conc/iter"
	"github.com/zclconf/go-cty/cty"

	"github.com/telhaus/cirrus/pkg/graph"
)

// Renderer renders finalized graphs. The zero value is ready to use.
type Renderer struct{}

// HCL renders one resource block per node, in topological order. Rendering
// is pure per-node work, so blocks render in parallel and assemble in
// order afterward.
func (r *Renderer) HCL(g *graph.Graph) ([]byte, error) {
	blocks, err := iter.MapErr(g.Nodes, func(n **graph.Node) ([]byte, error) {
		return renderBlock(*n)
	})
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "# Generated by cirrus for %q, pass %s. Do not edit.\n",
		g.Metadata.Name, g.Metadata.PassID)
	for _, block := range blocks {
		buf.WriteByte('\n')
		buf.Write(block)
	}
	return buf.Bytes(), nil
}

// JSON renders the graph document, including metadata and the render hash.
func (r *Renderer) JSON(g *graph.Graph) ([]byte, error) {
	return json.MarshalIndent(g, "", "  ")
}

func renderBlock(n *graph.Node) ([]byte, error) {
	f := hclwrite.NewEmptyFile()
	block := f.Body().AppendNewBlock("resource", []string{n.Kind, n.LogicalName})

	keys := make([]string, 0, len(n.Properties))
	for k := range n.Properties {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		tokens, err := tokensForValue(n.Properties[key])
		if err != nil {
			return nil, fmt.Errorf("rendering %s.%s: %w", n.Address(), key, err)
		}
		block.Body().SetAttributeRaw(key, tokens)
	}
	return f.Bytes(), nil
}

func tokensForValue(v graph.Value) (hclwrite.Tokens, error) {
	switch t := v.(type) {
	case graph.Literal:
		ctyVal, err := ctyLiteral(t)
		if err != nil {
			return nil, err
		}
		return hclwrite.TokensForValue(ctyVal), nil

	case graph.List:
		items := make([]hclwrite.Tokens, len(t.Items))
		for i, item := range t.Items {
			tokens, err := tokensForValue(item)
			if err != nil {
				return nil, err
			}
			items[i] = tokens
		}
		return hclwrite.TokensForTuple(items), nil

	case graph.Map:
		keys := make([]string, 0, len(t.Entries))
		for k := range t.Entries {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		attrs := make([]hclwrite.ObjectAttrTokens, 0, len(keys))
		for _, k := range keys {
			tokens, err := tokensForValue(t.Entries[k])
			if err != nil {
				return nil, err
			}
			attrs = append(attrs, hclwrite.ObjectAttrTokens{
				Name:  hclwrite.TokensForValue(cty.StringVal(k)),
				Value: tokens,
			})
		}
		return hclwrite.TokensForObject(attrs), nil

	case graph.Deferred:
		return hclwrite.TokensForTraversal(traversal(t)), nil

	case graph.Fmt:
		return templateTokens(t)

	default:
		return nil, fmt.Errorf("unknown value type %T", v)
	}
}

func ctyLiteral(l graph.Literal) (cty.Value, error) {
	switch v := l.V.(type) {
	case string:
		return cty.StringVal(v), nil
	case bool:
		return cty.BoolVal(v), nil
	case int:
		return cty.NumberIntVal(int64(v)), nil
	case int64:
		return cty.NumberIntVal(v), nil
	case float64:
		return cty.NumberFloatVal(v), nil
	default:
		return cty.NilVal, fmt.Errorf("unsupported literal type %T", l.V)
	}
}

func traversal(d graph.Deferred) hcl.Traversal {
	tr := hcl.Traversal{
		hcl.TraverseRoot{Name: d.Source.Kind},
		hcl.TraverseAttr{Name: d.Source.LogicalName},
	}
	for _, part := range strings.Split(d.Attribute, ".") {
		tr = append(tr, hcl.TraverseAttr{Name: part})
	}
	return tr
}

// templateTokens renders a Fmt value as a quoted template: literal text
// stays literal, embedded values become ${...} interpolations.
func templateTokens(f graph.Fmt) (hclwrite.Tokens, error) {
	parts := strings.Split(f.Format, "%s")
	if len(parts) != len(f.Args)+1 {
		return nil, fmt.Errorf("format %q has %d verbs but %d arguments",
			f.Format, len(parts)-1, len(f.Args))
	}

	tokens := hclwrite.Tokens{
		{Type: hclsyntax.TokenOQuote, Bytes: []byte(`"`)},
	}
	appendLit := func(s string) {
		if s != "" {
			tokens = append(tokens, &hclwrite.Token{
				Type:  hclsyntax.TokenQuotedLit,
				Bytes: []byte(s),
			})
		}
	}

	appendLit(parts[0])
	for i, arg := range f.Args {
		if lit, ok := arg.(graph.Literal); ok {
			if s, isStr := lit.V.(string); isStr {
				appendLit(s)
				appendLit(parts[i+1])
				continue
			}
		}
		inner, err := tokensForValue(arg)
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, &hclwrite.Token{
			Type:  hclsyntax.TokenTemplateInterp,
			Bytes: []byte("${"),
		})
		tokens = append(tokens, inner...)
		tokens = append(tokens, &hclwrite.Token{
			Type:  hclsyntax.TokenTemplateSeqEnd,
			Bytes: []byte("}"),
		})
		appendLit(parts[i+1])
	}
	tokens = append(tokens, &hclwrite.Token{
		Type:  hclsyntax.TokenCQuote,
		Bytes: []byte(`"`),
	})
	return tokens, nil
}
