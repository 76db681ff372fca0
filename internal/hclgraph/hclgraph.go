package hclgraph

import (
	"context"
	"errors"
	"fmt"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"

	"github.com/seabeeberry/Graphite/internal/ctxlog"
	"github.com/seabeeberry/Graphite/internal/document"
)

// ErrBadDocument is returned for .graph files that parse but do not form a
// loadable document.
var ErrBadDocument = errors.New("hclgraph: invalid document")

// hclInput represents a single `input` block: wired with from, or a static
// literal expression. Expressions are captured unevaluated and resolved
// without any variable scope, so a literal really is a literal.
type hclInput struct {
	From    string         `hcl:"from,optional"`
	Literal hcl.Expression `hcl:"literal,optional"`
}

type hclNode struct {
	ID     string      `hcl:"id,label"`
	Op     string      `hcl:"op,label"`
	Inputs []*hclInput `hcl:"input,block"`
}

type hclParam struct {
	Name string `hcl:"name,label"`
}

// hclNetwork is a reusable sub-graph definition. Nodes inside it may name
// other networks as their op; a node at the top level does too.
type hclNetwork struct {
	Name   string      `hcl:"name,label"`
	Params []*hclParam `hcl:"param,block"`
	Nodes  []*hclNode  `hcl:"node,block"`
	Output string      `hcl:"output"`
}

type hclDocument struct {
	Networks []*hclNetwork `hcl:"network,block"`
	Nodes    []*hclNode    `hcl:"node,block"`
}

// LoadFile parses a .graph file into an editable document graph.
func LoadFile(ctx context.Context, path string) (*document.Graph, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("loading graph document", "path", path)

	parser := hclparse.NewParser()
	hclFile, diags := parser.ParseHCLFile(path)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse %s: %w", path, diags)
	}
	return load(hclFile.Body, path)
}

// LoadBytes parses in-memory document source; filename only labels
// diagnostics.
func LoadBytes(src []byte, filename string) (*document.Graph, error) {
	parser := hclparse.NewParser()
	hclFile, diags := parser.ParseHCL(src, filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse %s: %w", filename, diags)
	}
	return load(hclFile.Body, filename)
}

func load(body hcl.Body, name string) (*document.Graph, error) {
	var doc hclDocument
	if diags := gohcl.DecodeBody(body, nil, &doc); diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode %s: %w", name, diags)
	}

	networks := make(map[string]*hclNetwork, len(doc.Networks))
	for _, net := range doc.Networks {
		if _, ok := networks[net.Name]; ok {
			return nil, fmt.Errorf("%w: duplicate network %q", ErrBadDocument, net.Name)
		}
		networks[net.Name] = net
	}

	b := &builder{networks: networks, building: make(map[string]bool)}
	g := document.New()
	if err := b.addNodes(g, doc.Nodes); err != nil {
		return nil, err
	}
	return g, nil
}

type builder struct {
	networks map[string]*hclNetwork
	building map[string]bool
}

func (b *builder) addNodes(g *document.Graph, nodes []*hclNode) error {
	for _, hn := range nodes {
		n := &document.Node{ID: document.NodeID(hn.ID)}
		if net, ok := b.networks[hn.Op]; ok {
			sub, err := b.buildNetwork(net)
			if err != nil {
				return fmt.Errorf("node %q: %w", hn.ID, err)
			}
			n.Kind = document.KindNetwork
			n.Network = sub
		} else {
			n.Op = hn.Op
		}
		for i, hi := range hn.Inputs {
			in, err := buildInput(hi)
			if err != nil {
				return fmt.Errorf("node %q input %d: %w", hn.ID, i, err)
			}
			n.Inputs = append(n.Inputs, in)
		}
		if err := g.AddNode(n); err != nil {
			return err
		}
	}
	return nil
}

// buildNetwork instantiates a fresh sub-graph per use so each network node
// owns its nested graph. building guards against a network reaching itself
// through its own definition.
func (b *builder) buildNetwork(net *hclNetwork) (*document.Graph, error) {
	if b.building[net.Name] {
		return nil, fmt.Errorf("%w: network %q instantiates itself", document.ErrUnboundedRecursion, net.Name)
	}
	b.building[net.Name] = true
	defer delete(b.building, net.Name)

	g := document.New()
	for i, p := range net.Params {
		err := g.AddNode(&document.Node{
			ID:    document.NodeID(p.Name),
			Kind:  document.KindParameter,
			Param: i,
		})
		if err != nil {
			return nil, fmt.Errorf("network %q: %w", net.Name, err)
		}
	}
	if err := b.addNodes(g, net.Nodes); err != nil {
		return nil, fmt.Errorf("network %q: %w", net.Name, err)
	}
	if net.Output == "" {
		return nil, fmt.Errorf("%w: network %q has no output", ErrBadDocument, net.Name)
	}
	if _, ok := g.Node(document.NodeID(net.Output)); !ok {
		return nil, fmt.Errorf("%w: network %q output %q not found", ErrBadDocument, net.Name, net.Output)
	}
	g.Output = document.NodeID(net.Output)
	return g, nil
}

func buildInput(hi *hclInput) (document.Input, error) {
	// gohcl hands back an expression even when the attribute is absent, so
	// absence shows up as the null it evaluates to.
	var lit cty.Value
	if hi.Literal != nil {
		v, diags := hi.Literal.Value(nil)
		if diags.HasErrors() {
			return document.Input{}, fmt.Errorf("%w: literal is not static: %s", ErrBadDocument, diags.Error())
		}
		lit = v
	}
	hasLiteral := lit != cty.NilVal && !lit.IsNull()

	if hi.From != "" {
		if hasLiteral {
			return document.Input{}, fmt.Errorf("%w: input has both from and literal", ErrBadDocument)
		}
		return document.Input{From: document.NodeID(hi.From)}, nil
	}
	if !hasLiteral {
		return document.Input{}, fmt.Errorf("%w: input needs from or literal", ErrBadDocument)
	}
	return document.Input{Literal: lit}, nil
}
