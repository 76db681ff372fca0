package compile

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/zclconf/go-cty/cty"

	"github.com/seabeeberry/Graphite/internal/catalog"
	"github.com/seabeeberry/Graphite/internal/ctxlog"
	"github.com/seabeeberry/Graphite/internal/document"
	"github.com/seabeeberry/Graphite/internal/proto"
)

// ErrUnboundParameter is returned when a parameter node appears outside a
// network, or names an input position its surrounding network lacks.
var ErrUnboundParameter = errors.New("compile: unbound parameter")

// DefaultMaxDepth bounds network inlining. Self-referential compositions
// that slip past validation hit this bound instead of recursing forever.
const DefaultMaxDepth = 64

// Compiler turns a document graph into a proto graph. Compilation is pure:
// the document is only read, and compiling the same document twice yields
// structurally equal proto graphs.
type Compiler struct {
	cat      *catalog.Catalog
	maxDepth int
}

// Option configures a Compiler.
type Option func(*Compiler)

// WithMaxDepth overrides the inlining depth bound.
func WithMaxDepth(d int) Option {
	return func(c *Compiler) { c.maxDepth = d }
}

// New creates a compiler resolving operations against cat.
func New(cat *catalog.Catalog, opts ...Option) *Compiler {
	c := &Compiler{cat: cat, maxDepth: DefaultMaxDepth}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Compile flattens, type-resolves, and topologically orders the document.
//
// Structural defects (cycles, dangling wires, unbounded network recursion)
// fail the whole compilation. Resolution defects (no matching overload,
// ambiguity) mark only the affected proto node, so unaffected parts of the
// graph stay evaluable.
func (c *Compiler) Compile(ctx context.Context, doc *document.Graph) (*proto.Graph, error) {
	logger := ctxlog.FromContext(ctx)

	fl := &flattener{maxDepth: c.maxDepth, aliases: make(map[string]flatRef)}
	if err := fl.inline(doc, "", nil, 0); err != nil {
		return nil, err
	}
	if err := fl.resolveAliases(); err != nil {
		return nil, err
	}
	logger.Debug("graph flattened", "nodes", len(fl.nodes), "aliases", len(fl.aliases))

	order, err := topoOrder(fl.nodes)
	if err != nil {
		return nil, err
	}

	nodes, index := c.resolveTypes(fl, order)

	aliasIndex := make(map[string]int)
	for id, ref := range fl.aliases {
		if ref.identity == "" {
			continue // aliases folded onto literals have no proto node
		}
		if i, ok := index[ref.identity]; ok {
			aliasIndex[id] = i
		}
	}

	pg := proto.New(uuid.NewString(), nodes, aliasIndex)
	logger.Debug("compilation finished", "generation", pg.Generation, "proto_nodes", len(nodes))
	return pg, nil
}

// resolveTypes monomorphizes every flat node against the catalog, in
// topological order so each node sees its inputs' concrete types.
func (c *Compiler) resolveTypes(fl *flattener, order []*flatNode) ([]proto.Node, map[string]int) {
	nodes := make([]proto.Node, 0, len(order))
	index := make(map[string]int, len(order))

	for _, fn := range order {
		pn := proto.Node{Identity: fn.identity, Err: fn.err}
		pn.Inputs = make([]proto.Input, len(fn.inputs))

		var argTypes []cty.Type
		if pn.Err == nil {
			argTypes = make([]cty.Type, len(fn.inputs))
		}
		for i, ref := range fn.inputs {
			if ref.identity == "" {
				pn.Inputs[i] = proto.LiteralInput(ref.literal)
				if pn.Err == nil {
					if ref.literal == cty.NilVal {
						// Disconnected port: resolution proceeds and the
						// executor reports the missing input on demand.
						argTypes[i] = cty.DynamicPseudoType
					} else {
						argTypes[i] = ref.literal.Type()
					}
				}
				continue
			}
			up := index[ref.identity]
			pn.Inputs[i] = proto.NodeInput(up)
			if pn.Err != nil {
				continue
			}
			if upErr := nodes[up].Err; upErr != nil {
				pn.Err = fmt.Errorf("input %d from unresolved node %q: %w", i, ref.identity, upErr)
				continue
			}
			argTypes[i] = nodes[up].Type
		}

		if pn.Err == nil {
			inst, err := c.cat.Resolve(fn.op, argTypes)
			if err != nil {
				pn.Err = fmt.Errorf("node %q: %w", fn.identity, err)
			} else {
				pn.Instance = inst
				pn.Type = inst.Result
			}
		}

		index[fn.identity] = len(nodes)
		nodes = append(nodes, pn)
	}
	return nodes, index
}

// topoOrder runs Kahn's algorithm over the flat nodes. The ready set is
// processed in sorted identity order so compilation is deterministic.
func topoOrder(nodes []*flatNode) ([]*flatNode, error) {
	byID := make(map[string]*flatNode, len(nodes))
	inDegree := make(map[string]int, len(nodes))
	dependents := make(map[string][]string)
	for _, n := range nodes {
		byID[n.identity] = n
		inDegree[n.identity] = 0
	}
	for _, n := range nodes {
		for _, ref := range n.inputs {
			if ref.identity == "" {
				continue
			}
			inDegree[n.identity]++
			dependents[ref.identity] = append(dependents[ref.identity], n.identity)
		}
	}

	var ready []string
	for id, d := range inDegree {
		if d == 0 {
			ready = append(ready, id)
		}
	}
	sort.Strings(ready)

	order := make([]*flatNode, 0, len(nodes))
	for len(ready) > 0 {
		id := ready[0]
		ready = ready[1:]
		order = append(order, byID[id])

		deps := dependents[id]
		sort.Strings(deps)
		var unlocked []string
		for _, dep := range deps {
			inDegree[dep]--
			if inDegree[dep] == 0 {
				unlocked = append(unlocked, dep)
			}
		}
		// Keep the ready set sorted as nodes unlock.
		ready = mergeSorted(ready, unlocked)
	}

	if len(order) != len(nodes) {
		var stuck []string
		for id, d := range inDegree {
			if d > 0 {
				stuck = append(stuck, id)
			}
		}
		sort.Strings(stuck)
		return nil, fmt.Errorf("%w: involving %v", document.ErrCycleDetected, stuck)
	}
	return order, nil
}

func mergeSorted(a, b []string) []string {
	if len(b) == 0 {
		return a
	}
	out := make([]string, 0, len(a)+len(b))
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		if a[i] <= b[j] {
			out = append(out, a[i])
			i++
		} else {
			out = append(out, b[j])
			j++
		}
	}
	out = append(out, a[i:]...)
	out = append(out, b[j:]...)
	return out
}
