package document

import "fmt"

// ExtractNetwork moves the member nodes into a fresh nested sub-graph and
// replaces them with a single KindNetwork node named id. Wires from outside
// into the selection become network parameters, one per distinct outside
// source, in the order the members encounter them. output designates the
// exposed output and must be the only member the outside consumes.
func (g *Graph) ExtractNetwork(id NodeID, members []NodeID, output NodeID) error {
	if len(members) == 0 {
		return fmt.Errorf("%w: empty selection", ErrBadExtraction)
	}
	inside := make(map[NodeID]bool, len(members))
	for _, m := range members {
		if _, ok := g.nodes[m]; !ok {
			return fmt.Errorf("%w: %q", ErrUnknownNode, m)
		}
		inside[m] = true
	}
	if !inside[output] {
		return fmt.Errorf("%w: output %q is not a member", ErrBadExtraction, output)
	}
	// The id frees up if it belongs to a member, so only outside
	// collisions are real.
	if _, ok := g.nodes[id]; ok && !inside[id] {
		return fmt.Errorf("%w: %q", ErrDuplicateNode, id)
	}

	// A network exposes exactly one output, so nothing but output may feed
	// a node that stays behind.
	for _, oid := range g.order {
		if inside[oid] {
			continue
		}
		for i, in := range g.nodes[oid].Inputs {
			if in.Wired() && inside[in.From] && in.From != output {
				return fmt.Errorf("%w: %q input %d consumes interior member %q", ErrBadExtraction, oid, i, in.From)
			}
		}
	}

	inner := New()
	inner.Output = output
	var paramOrder []NodeID // distinct outside sources, in encounter order
	paramIndex := make(map[NodeID]int)

	for _, oid := range g.order {
		if !inside[oid] {
			continue
		}
		n := g.nodes[oid]
		for i, in := range n.Inputs {
			if !in.Wired() || inside[in.From] {
				continue
			}
			src := in.From
			if _, ok := paramIndex[src]; !ok {
				idx := len(paramOrder)
				paramIndex[src] = idx
				paramOrder = append(paramOrder, src)
				if err := inner.AddNode(&Node{ID: src, Kind: KindParameter, Param: idx}); err != nil {
					return err
				}
			}
			n.Inputs[i] = Input{From: src}
		}
	}
	for _, oid := range g.order {
		if inside[oid] {
			if err := inner.AddNode(g.nodes[oid]); err != nil {
				return err
			}
		}
	}

	// Splice the network node into the earliest member's position and drop
	// the members from this graph.
	pos := -1
	newOrder := g.order[:0]
	for i, oid := range g.order {
		if inside[oid] {
			if pos == -1 {
				pos = i
			}
			delete(g.nodes, oid)
			continue
		}
		newOrder = append(newOrder, oid)
	}
	if pos > len(newOrder) {
		pos = len(newOrder)
	}
	g.order = append(newOrder[:pos:pos], append([]NodeID{id}, newOrder[pos:]...)...)

	netNode := &Node{ID: id, Kind: KindNetwork, Network: inner}
	for _, src := range paramOrder {
		netNode.Inputs = append(netNode.Inputs, Input{From: src})
	}
	g.nodes[id] = netNode

	for _, oid := range g.order {
		if oid == id {
			continue
		}
		n := g.nodes[oid]
		for i, in := range n.Inputs {
			if in.Wired() && in.From == output {
				n.Inputs[i] = Input{From: id}
			}
		}
	}
	if g.Output == output {
		g.Output = id
	}
	return nil
}

// EmbedNetwork inlines the KindNetwork node id into this graph, replacing
// it with the sub-graph's nodes. Inlined ids take the identity-path form
// id/inner, so compiled identities are unchanged by the edit and cached
// results stay reusable. Parameter nodes dissolve into the network node's
// own inputs.
func (g *Graph) EmbedNetwork(id NodeID) error {
	n, ok := g.nodes[id]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownNode, id)
	}
	if n.Kind != KindNetwork || n.Network == nil {
		return fmt.Errorf("%w: %q is not a network node", ErrBadExtraction, id)
	}
	inner := n.Network
	if _, ok := inner.nodes[inner.Output]; !ok {
		return fmt.Errorf("%w: network %q output %q", ErrDanglingReference, id, inner.Output)
	}

	prefix := string(id) + "/"
	bindings := make(map[NodeID]Input)
	var moved []*Node
	for _, iid := range inner.order {
		in := inner.nodes[iid]
		if in.Kind == KindParameter {
			if in.Param < 0 || in.Param >= len(n.Inputs) {
				return fmt.Errorf("%w: network %q parameter %q position %d", ErrBadInputIndex, id, iid, in.Param)
			}
			bindings[iid] = n.Inputs[in.Param]
			continue
		}
		moved = append(moved, in)
	}
	for _, m := range moved {
		if _, taken := g.nodes[NodeID(prefix+string(m.ID))]; taken {
			return fmt.Errorf("%w: %q", ErrDuplicateNode, prefix+string(m.ID))
		}
	}

	outputID := NodeID(prefix + string(inner.Output))
	if bound, ok := bindings[inner.Output]; ok {
		// The output is a bare parameter; consumers take the binding directly.
		for _, oid := range g.order {
			out := g.nodes[oid]
			for i, in := range out.Inputs {
				if in.Wired() && in.From == id {
					out.Inputs[i] = bound
				}
			}
		}
	}

	for _, m := range moved {
		m.ID = NodeID(prefix + string(m.ID))
		for i, in := range m.Inputs {
			if !in.Wired() {
				continue
			}
			if bound, ok := bindings[in.From]; ok {
				m.Inputs[i] = bound
				continue
			}
			m.Inputs[i] = Input{From: NodeID(prefix + string(in.From))}
		}
		g.nodes[m.ID] = m
	}

	pos := 0
	for i, oid := range g.order {
		if oid == id {
			pos = i
			break
		}
	}
	delete(g.nodes, id)
	movedIDs := make([]NodeID, len(moved))
	for i, m := range moved {
		movedIDs[i] = m.ID
	}
	g.order = append(g.order[:pos:pos], append(movedIDs, g.order[pos+1:]...)...)

	if _, stillOutput := bindings[inner.Output]; !stillOutput {
		for _, oid := range g.order {
			out := g.nodes[oid]
			for i, in := range out.Inputs {
				if in.Wired() && in.From == id {
					out.Inputs[i] = Input{From: outputID}
				}
			}
		}
		if g.Output == id {
			g.Output = outputID
		}
	} else if g.Output == id {
		// Output bound to a parameter: fall back to whatever fed it, if wired.
		if b := bindings[inner.Output]; b.Wired() {
			g.Output = b.From
		} else {
			g.Output = ""
		}
	}
	return nil
}
