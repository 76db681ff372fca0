package document

import (
	"errors"
	"fmt"

	"github.com/seabeeberry/Graphite/internal/value"
)

// SignatureSource is the slice of the operation catalog validation needs:
// the declared parameter and result types of a primitive operation. The
// first overload's declared types are used; exact overload selection is the
// compiler's job.
type SignatureSource interface {
	Signature(op string) (params []value.Type, result value.Type, ok bool)
}

// Validate checks the graph's structural invariants and best-effort port
// type compatibility against sigs (which may be nil to skip type checks).
// All findings are aggregated into one error with errors.Join.
//
// Validation covers each nested network recursively, plus the
// composition-level invariant that no network transitively contains itself.
func (g *Graph) Validate(sigs SignatureSource) error {
	return g.validate(sigs, map[*Graph]bool{})
}

func (g *Graph) validate(sigs SignatureSource, stack map[*Graph]bool) error {
	if stack[g] {
		return fmt.Errorf("%w: network contains itself", ErrUnboundedRecursion)
	}
	stack[g] = true
	defer delete(stack, g)

	var errs []error
	if err := g.checkReferences(); err != nil {
		errs = append(errs, err)
	} else if err := g.detectCycles(); err != nil {
		// Cycle detection assumes references resolve.
		errs = append(errs, err)
	}
	if sigs != nil {
		if err := g.checkTypes(sigs); err != nil {
			errs = append(errs, err)
		}
	}
	for _, n := range g.Nodes() {
		if n.Kind == KindNetwork && n.Network != nil {
			if err := n.Network.validate(sigs, stack); err != nil {
				errs = append(errs, fmt.Errorf("network %q: %w", n.ID, err))
			}
		}
	}
	return errors.Join(errs...)
}

// checkReferences verifies that every wire names an existing node.
func (g *Graph) checkReferences() error {
	var errs []error
	for _, n := range g.Nodes() {
		for i, in := range n.Inputs {
			if !in.Wired() {
				continue
			}
			if _, ok := g.nodes[in.From]; !ok {
				errs = append(errs, fmt.Errorf("%w: %q input %d references %q", ErrDanglingReference, n.ID, i, in.From))
			}
		}
	}
	if g.Output != "" {
		if _, ok := g.nodes[g.Output]; !ok {
			errs = append(errs, fmt.Errorf("%w: output references %q", ErrDanglingReference, g.Output))
		}
	}
	return errors.Join(errs...)
}

// detectCycles runs a three-state depth-first search over the wires.
func (g *Graph) detectCycles() error {
	visited := make(map[NodeID]bool)
	onStack := make(map[NodeID]bool)

	var dfs func(id NodeID, path []NodeID) error
	dfs = func(id NodeID, path []NodeID) error {
		visited[id] = true
		onStack[id] = true
		path = append(path, id)

		for _, in := range g.nodes[id].Inputs {
			if !in.Wired() {
				continue
			}
			next := in.From
			if !visited[next] {
				if err := dfs(next, path); err != nil {
					return err
				}
			} else if onStack[next] {
				return fmt.Errorf("%w: %v", ErrCycleDetected, append(path, next))
			}
		}

		onStack[id] = false
		return nil
	}

	for _, id := range g.order {
		if !visited[id] {
			if err := dfs(id, nil); err != nil {
				return err
			}
		}
	}
	return nil
}

// checkTypes verifies, per wire, that the producer's declared result type
// can feed the consumer's declared parameter type. Generic declarations
// unify with anything here; the compiler settles them for real.
func (g *Graph) checkTypes(sigs SignatureSource) error {
	var errs []error
	for _, n := range g.Nodes() {
		if n.Kind != KindPrimitive {
			continue
		}
		params, _, ok := sigs.Signature(n.Op)
		if !ok {
			continue // unknown op surfaces as a resolution error at compile time
		}
		for i, in := range n.Inputs {
			if i >= len(params) || !in.Wired() {
				continue
			}
			src, ok := g.nodes[in.From]
			if !ok || src.Kind != KindPrimitive {
				continue
			}
			_, result, ok := sigs.Signature(src.Op)
			if !ok || result.IsGeneric() || params[i].IsGeneric() {
				continue
			}
			if !params[i].Assignable(result.Concrete) {
				errs = append(errs, fmt.Errorf("%w: %s output %s cannot feed %s input %d (%s)",
					ErrTypeIncompatible, src.ID, result, n.ID, i, params[i]))
			}
		}
	}
	return errors.Join(errs...)
}
