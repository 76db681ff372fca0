// Package proto is the compilation output model: a flat, acyclic, fully
// type-resolved sequence of concrete operation calls. Nodes reference each
// other by index into one arena slice, inputs reference only earlier
// indices, and the whole graph is immutable once built.
package proto

import (
	"github.com/zclconf/go-cty/cty"

	"github.com/seabeeberry/Graphite/internal/catalog"
)

// Input is one resolved input of a proto node: either the output of an
// earlier node (Node >= 0) or an embedded literal.
type Input struct {
	Node    int
	Literal cty.Value
}

// Wired reports whether the input references another proto node.
func (in Input) Wired() bool { return in.Node >= 0 }

// LiteralInput embeds a literal value.
func LiteralInput(v cty.Value) Input { return Input{Node: -1, Literal: v} }

// NodeInput references the output of the proto node at index i.
func NodeInput(i int) Input { return Input{Node: i} }

// Node is the flattened counterpart of a document node: one concrete
// operation instance with resolved types.
//
// Err carries a per-node resolution error marker. A marked node has no
// instance; evaluating it (or anything downstream of it) fails with the
// marker, while unaffected parts of the graph stay evaluable.
type Node struct {
	// Identity is the originating document node's identity path through
	// inlined networks, e.g. "blur/inner/add". The executor keys cache
	// reuse across recompilations on it.
	Identity string

	// Instance is the monomorphized operation. Nil when Err is set.
	Instance *catalog.Instance

	Inputs []Input

	// Type is the resolved output type.
	Type cty.Type

	Err error
}

// Graph is an immutable compilation result. Nodes are in topological
// order: every input references a strictly smaller index.
type Graph struct {
	// Generation uniquely identifies this compilation for cache lifecycle.
	Generation string

	Nodes []Node

	index map[string]int
}

// New builds a graph over nodes, indexing them and every alias identity
// (network and parameter nodes that inlining collapsed onto an inner node).
func New(generation string, nodes []Node, aliases map[string]int) *Graph {
	idx := make(map[string]int, len(nodes)+len(aliases))
	for i, n := range nodes {
		idx[n.Identity] = i
	}
	for id, i := range aliases {
		idx[id] = i
	}
	return &Graph{Generation: generation, Nodes: nodes, index: idx}
}

// Index maps a document node identity (or identity path) to its proto node.
func (g *Graph) Index(identity string) (int, bool) {
	i, ok := g.index[identity]
	return i, ok
}

// Identities returns the identity-to-index mapping, aliases included.
func (g *Graph) Identities() map[string]int {
	out := make(map[string]int, len(g.index))
	for k, v := range g.index {
		out[k] = v
	}
	return out
}

// Equal reports structural equality of two graphs: same node sequence,
// operation keys, types, inputs, and error markers. Generation is ignored;
// compiling an unedited document twice must yield Equal graphs.
func Equal(a, b *Graph) bool {
	if len(a.Nodes) != len(b.Nodes) {
		return false
	}
	for i := range a.Nodes {
		if !nodeEqual(&a.Nodes[i], &b.Nodes[i]) {
			return false
		}
	}
	return true
}

func nodeEqual(a, b *Node) bool {
	if a.Identity != b.Identity || len(a.Inputs) != len(b.Inputs) {
		return false
	}
	if (a.Err == nil) != (b.Err == nil) {
		return false
	}
	if a.Err == nil {
		if a.Instance.Key != b.Instance.Key || !a.Type.Equals(b.Type) {
			return false
		}
	}
	for i := range a.Inputs {
		ai, bi := a.Inputs[i], b.Inputs[i]
		if ai.Node != bi.Node {
			return false
		}
		if !ai.Wired() {
			if ai.Literal == cty.NilVal || bi.Literal == cty.NilVal {
				if ai.Literal != bi.Literal {
					return false
				}
			} else if !ai.Literal.RawEquals(bi.Literal) {
				return false
			}
		}
	}
	return true
}
