package document

import (
	"fmt"

	"github.com/zclconf/go-cty/cty"
)

// NodeID is the stable identifier of a node within its containing graph.
// Identity survives position and wiring changes but not deletion followed
// by recreation; incremental recompilation keys cache reuse on it.
type NodeID string

// Kind distinguishes the three node implementations.
type Kind int

const (
	// KindPrimitive references an operation in the catalog by name.
	KindPrimitive Kind = iota
	// KindNetwork nests a sub-graph; the node's inputs feed the sub-graph's
	// parameter nodes positionally and its output is the sub-graph's
	// designated output node.
	KindNetwork
	// KindParameter is a passthrough inside a network: it produces the
	// surrounding network node's input at position Param.
	KindParameter
)

// Input is one input port of a node: either wired to an upstream node's
// output or holding a literal value. A wired port has From set; a literal
// port has From empty and Literal non-nil.
type Input struct {
	From    NodeID
	Literal cty.Value
}

// Wired reports whether the input takes its value from an upstream node.
func (in Input) Wired() bool { return in.From != "" }

// Node is one unit of computation in the user-authored graph. Every node
// has exactly one output.
type Node struct {
	ID      NodeID
	Kind    Kind
	Op      string // KindPrimitive: catalog operation name
	Network *Graph // KindNetwork: the nested sub-graph
	Param   int    // KindParameter: position in the surrounding node's inputs
	Inputs  []Input
}

// Graph is the mutable, user-editable node graph. The editor shell owns it
// and hands it to the compiler by reference per compilation pass. Iteration
// order is insertion order, which keeps compilation deterministic.
//
// When a Graph is nested inside a KindNetwork node, Output designates the
// exposed output node, and KindParameter nodes expose inputs.
type Graph struct {
	nodes  map[NodeID]*Node
	order  []NodeID
	Output NodeID
}

// New creates an empty graph.
func New() *Graph {
	return &Graph{nodes: make(map[NodeID]*Node)}
}

// AddNode inserts a node. The node's ID must be unused.
func (g *Graph) AddNode(n *Node) error {
	if n.ID == "" {
		return fmt.Errorf("%w: empty id", ErrUnknownNode)
	}
	if _, ok := g.nodes[n.ID]; ok {
		return fmt.Errorf("%w: %q", ErrDuplicateNode, n.ID)
	}
	g.nodes[n.ID] = n
	g.order = append(g.order, n.ID)
	return nil
}

// RemoveNode deletes a node. Wires referencing the removed node are left in
// place and reported by Validate as dangling; callers are expected to
// rewire. A recreated node with the same ID is a new identity.
func (g *Graph) RemoveNode(id NodeID) error {
	if _, ok := g.nodes[id]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownNode, id)
	}
	delete(g.nodes, id)
	for i, oid := range g.order {
		if oid == id {
			g.order = append(g.order[:i], g.order[i+1:]...)
			break
		}
	}
	return nil
}

// Connect wires the output of from into input port index of to. At most one
// wire per input port; an existing wire or literal is replaced.
func (g *Graph) Connect(from, to NodeID, input int) error {
	if _, ok := g.nodes[from]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownNode, from)
	}
	dst, ok := g.nodes[to]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownNode, to)
	}
	if input < 0 || input >= len(dst.Inputs) {
		return fmt.Errorf("%w: %q input %d", ErrBadInputIndex, to, input)
	}
	dst.Inputs[input] = Input{From: from}
	return nil
}

// Disconnect removes the wire into input port index of id, leaving the port
// holding a null literal.
func (g *Graph) Disconnect(id NodeID, input int) error {
	n, ok := g.nodes[id]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownNode, id)
	}
	if input < 0 || input >= len(n.Inputs) {
		return fmt.Errorf("%w: %q input %d", ErrBadInputIndex, id, input)
	}
	n.Inputs[input] = Input{Literal: cty.NilVal}
	return nil
}

// SetLiteral assigns a literal default to input port index of id, replacing
// any wire. Version stamps derive from the literal's fingerprint, so the
// edit dirties exactly the nodes downstream of this port.
func (g *Graph) SetLiteral(id NodeID, input int, v cty.Value) error {
	n, ok := g.nodes[id]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownNode, id)
	}
	if input < 0 || input >= len(n.Inputs) {
		return fmt.Errorf("%w: %q input %d", ErrBadInputIndex, id, input)
	}
	n.Inputs[input] = Input{Literal: v}
	return nil
}

// Node returns a node by ID.
func (g *Graph) Node(id NodeID) (*Node, bool) {
	n, ok := g.nodes[id]
	return n, ok
}

// Len returns the number of nodes.
func (g *Graph) Len() int { return len(g.order) }

// Nodes returns all nodes in insertion order.
func (g *Graph) Nodes() []*Node {
	out := make([]*Node, 0, len(g.order))
	for _, id := range g.order {
		out = append(out, g.nodes[id])
	}
	return out
}
