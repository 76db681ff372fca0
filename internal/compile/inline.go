package compile

import (
	"fmt"

	"github.com/zclconf/go-cty/cty"

	"github.com/seabeeberry/Graphite/internal/document"
)

// flatRef is a resolved input source in the flattened graph: either the
// identity of a producing node, or a literal embedded directly.
type flatRef struct {
	identity string
	literal  cty.Value
}

// flatNode is a primitive node after inlining, addressed by its identity
// path. err marks nodes that could not be flattened cleanly; they are kept
// so downstream nodes can report which upstream failed.
type flatNode struct {
	identity string
	op       string
	inputs   []flatRef
	err      error
}

type flattener struct {
	maxDepth int
	nodes    []*flatNode

	// aliases maps identities that produce no proto node (network nodes,
	// parameter nodes, folded constants) to what they stand for.
	aliases map[string]flatRef
}

// inline walks g depth-first, appending primitive nodes to fl.nodes under
// prefix and recording aliases for everything else. bindings carries the
// surrounding network's resolved inputs, indexed by parameter position.
func (fl *flattener) inline(g *document.Graph, prefix string, bindings []flatRef, depth int) error {
	if depth > fl.maxDepth {
		return fmt.Errorf("%w: inlining exceeded depth %d at %q", document.ErrUnboundedRecursion, fl.maxDepth, prefix)
	}

	for _, n := range g.Nodes() {
		id := prefix + string(n.ID)
		switch n.Kind {
		case document.KindParameter:
			if n.Param < 0 || n.Param >= len(bindings) {
				return fmt.Errorf("%w: parameter %d at %q", ErrUnboundParameter, n.Param, id)
			}
			fl.aliases[id] = bindings[n.Param]

		case document.KindNetwork:
			if n.Network == nil || n.Network.Output == "" {
				return fmt.Errorf("%w: network %q has no output", document.ErrDanglingReference, id)
			}
			childBindings := make([]flatRef, len(n.Inputs))
			for i, in := range n.Inputs {
				ref, err := resolveInput(g, prefix, in)
				if err != nil {
					return fmt.Errorf("network %q input %d: %w", id, i, err)
				}
				childBindings[i] = ref
			}
			if err := fl.inline(n.Network, id+"/", childBindings, depth+1); err != nil {
				return err
			}
			fl.aliases[id] = flatRef{identity: id + "/" + string(n.Network.Output)}

		default:
			fn := &flatNode{identity: id, op: n.Op, inputs: make([]flatRef, len(n.Inputs))}
			for i, in := range n.Inputs {
				ref, err := resolveInput(g, prefix, in)
				if err != nil {
					return fmt.Errorf("node %q input %d: %w", id, i, err)
				}
				fn.inputs[i] = ref
			}
			// A constant is a passthrough; folding it to an alias lets a
			// literal tweak leave the rest of the graph's identities and
			// stamps untouched.
			if n.Op == "constant" && len(fn.inputs) == 1 {
				fl.aliases[id] = fn.inputs[0]
				continue
			}
			fl.nodes = append(fl.nodes, fn)
		}
	}
	return nil
}

func resolveInput(g *document.Graph, prefix string, in document.Input) (flatRef, error) {
	if !in.Wired() {
		return flatRef{literal: in.Literal}, nil
	}
	if _, ok := g.Node(in.From); !ok {
		return flatRef{}, fmt.Errorf("%w: wire from %q", document.ErrDanglingReference, in.From)
	}
	return flatRef{identity: prefix + string(in.From)}, nil
}

// resolveAliases collapses alias chains so every input ref points at a flat
// node or a literal. Chains loop only on defective self-referential alias
// structures, which validation rejects; the guard keeps compilation total.
func (fl *flattener) resolveAliases() error {
	chase := func(ref flatRef) (flatRef, error) {
		seen := make(map[string]bool)
		for ref.identity != "" {
			next, ok := fl.aliases[ref.identity]
			if !ok {
				return ref, nil
			}
			if seen[ref.identity] {
				return flatRef{}, fmt.Errorf("%w: alias chain at %q", document.ErrCycleDetected, ref.identity)
			}
			seen[ref.identity] = true
			ref = next
		}
		return ref, nil
	}

	for id, ref := range fl.aliases {
		final, err := chase(ref)
		if err != nil {
			return err
		}
		fl.aliases[id] = final
	}
	for _, fn := range fl.nodes {
		for i, ref := range fn.inputs {
			final, err := chase(ref)
			if err != nil {
				return err
			}
			fn.inputs[i] = final
		}
	}
	return nil
}
