package exec

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/zclconf/go-cty/cty"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/seabeeberry/Graphite/internal/backend"
	"github.com/seabeeberry/Graphite/internal/ctxlog"
	"github.com/seabeeberry/Graphite/internal/proto"
)

// Executor evaluates adopted proto graphs with memoization. Values are
// cached per node under a version stamp; adopting a recompiled graph
// carries forward every cached value whose identity and stamp survived, so
// an edit re-executes only its own downstream cone.
//
// All methods are safe for concurrent use.
type Executor struct {
	mu  sync.Mutex
	gen *generation

	be  backend.Backend
	sem *semaphore.Weighted

	countMu sync.Mutex
	counts  map[string]*atomic.Int64
}

// Option configures an Executor.
type Option func(*Executor)

// WithBackend routes fused runs through b instead of the default backend.
func WithBackend(b backend.Backend) Option {
	return func(x *Executor) { x.be = b }
}

// WithWorkers bounds concurrent operation invocations.
func WithWorkers(n int) Option {
	return func(x *Executor) {
		if n > 0 {
			x.sem = semaphore.NewWeighted(int64(n))
		}
	}
}

// New creates an executor. Without options it uses the default registered
// backend (nil if none) and one worker per CPU.
func New(opts ...Option) *Executor {
	x := &Executor{counts: make(map[string]*atomic.Int64)}
	for _, opt := range opts {
		opt(x)
	}
	if x.sem == nil {
		x.sem = semaphore.NewWeighted(int64(runtime.GOMAXPROCS(0)))
	}
	if x.be == nil {
		if b, err := backend.Default(); err == nil {
			x.be = b
		}
	}
	return x
}

// generation is the executor's view of one adopted compilation: the graph,
// its backend plan, per-node stamps, and the cache entries.
type generation struct {
	graph   *proto.Graph
	plan    *backend.Plan
	stamps  []uint64
	entries []*entry
	runs    []*runState
}

// entry is the cache slot of one node. It moves idle -> running ->
// committed; a cancelled evaluation returns it to idle so a later caller
// can claim it again. Committed entries are immutable and may be shared
// across generations.
type entry struct {
	mu      sync.Mutex
	running chan struct{}
	done    bool
	val     cty.Value
	err     error
}

func (e *entry) committed() (cty.Value, error, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.val, e.err, e.done
}

// runState tracks one fused program with the same claim discipline as an
// entry. failed records a non-cancellation dispatch error so members fall
// back to the CPU path instead of retrying a broken dispatch forever.
type runState struct {
	mu      sync.Mutex
	running chan struct{}
	done    bool
	failed  bool
	outs    []float64
}

// Adopt installs a newly compiled graph as the current generation. Cache
// entries from the previous generation carry over when the node identity
// still exists and its version stamp is unchanged; everything else starts
// cold. In-flight evaluations against the old generation finish against
// its own entries and are discarded.
func (x *Executor) Adopt(ctx context.Context, pg *proto.Graph) {
	stamps := computeStamps(pg)
	plan := backend.PlanGraph(pg)
	ng := &generation{
		graph:   pg,
		plan:    plan,
		stamps:  stamps,
		entries: make([]*entry, len(pg.Nodes)),
		runs:    make([]*runState, len(plan.Runs)),
	}
	for i := range ng.runs {
		ng.runs[i] = &runState{}
	}

	x.mu.Lock()
	old := x.gen
	reused := 0
	for i := range pg.Nodes {
		ng.entries[i] = &entry{}
		if old == nil {
			continue
		}
		j, ok := old.graph.Index(pg.Nodes[i].Identity)
		if !ok || old.stamps[j] != stamps[i] {
			continue
		}
		if _, _, done := old.entries[j].committed(); done {
			ng.entries[i] = old.entries[j]
			reused++
		}
	}
	x.gen = ng
	x.mu.Unlock()

	ctxlog.FromContext(ctx).Debug("graph adopted",
		"generation", pg.Generation, "nodes", len(pg.Nodes), "reused", reused, "fused_runs", len(plan.Runs))
}

// Generation returns the adopted graph's generation, or "" before Adopt.
func (x *Executor) Generation() string {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.gen == nil {
		return ""
	}
	return x.gen.graph.Generation
}

// Evaluate computes the value of the node with the given identity, pulling
// its transitive inputs as needed. Cached values are returned without
// re-executing anything.
func (x *Executor) Evaluate(ctx context.Context, identity string) (cty.Value, error) {
	x.mu.Lock()
	g := x.gen
	x.mu.Unlock()
	if g == nil {
		return cty.NilVal, ErrNoGraph
	}
	i, ok := g.graph.Index(identity)
	if !ok {
		return cty.NilVal, fmt.Errorf("%w: %q", ErrUnknownTarget, identity)
	}
	return x.eval(ctx, g, i)
}

// Executions reports how many times the node with the given identity has
// completed a computation since the executor was created. Cache hits and
// cancelled invocations do not count.
func (x *Executor) Executions(identity string) int64 {
	x.countMu.Lock()
	defer x.countMu.Unlock()
	if c, ok := x.counts[identity]; ok {
		return c.Load()
	}
	return 0
}

func (x *Executor) countExecution(identity string) {
	x.countMu.Lock()
	c, ok := x.counts[identity]
	if !ok {
		c = &atomic.Int64{}
		x.counts[identity] = c
	}
	x.countMu.Unlock()
	c.Add(1)
}

// eval resolves node i through its cache entry. Concurrent callers of the
// same node share one execution: the first claims the entry, the rest wait.
func (x *Executor) eval(ctx context.Context, g *generation, i int) (cty.Value, error) {
	e := g.entries[i]
	for {
		e.mu.Lock()
		if e.done {
			val, err := e.val, e.err
			e.mu.Unlock()
			return val, err
		}
		if ch := e.running; ch != nil {
			e.mu.Unlock()
			select {
			case <-ctx.Done():
				return cty.NilVal, ctx.Err()
			case <-ch:
				continue
			}
		}
		ch := make(chan struct{})
		e.running = ch
		e.mu.Unlock()

		val, err := x.compute(ctx, g, i)

		e.mu.Lock()
		if err != nil && ctx.Err() != nil && errors.Is(err, ctx.Err()) {
			// Cancelled: release the claim without committing so a later
			// evaluation starts clean.
			e.running = nil
			e.mu.Unlock()
			close(ch)
			return cty.NilVal, err
		}
		e.val, e.err, e.done = val, err, true
		e.running = nil
		e.mu.Unlock()
		close(ch)
		return val, err
	}
}

// fullyCold reports whether no member of the run holds a committed value.
// A run with cached members, typically a prefix carried over from an
// earlier generation, is evaluated per node instead: dispatching it fused
// would re-execute nodes with no dependency path from the edit that made
// the rest stale.
func (g *generation) fullyCold(prog *backend.Program) bool {
	for _, st := range prog.Steps {
		if _, _, done := g.entries[st.Node].committed(); done {
			return false
		}
	}
	return true
}

// commitIfIdle commits a value into node i's entry unless someone already
// committed or is computing it. Fused runs use it to publish sibling
// outputs.
func (g *generation) commitIfIdle(i int, val cty.Value) bool {
	e := g.entries[i]
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.done || e.running != nil {
		return false
	}
	e.val, e.done = val, true
	return true
}

func (x *Executor) compute(ctx context.Context, g *generation, i int) (cty.Value, error) {
	n := &g.graph.Nodes[i]
	if n.Err != nil {
		return cty.NilVal, &NodeError{Identity: n.Identity, Err: n.Err}
	}

	if prog, ok := g.plan.Run(i); ok && x.be != nil && g.fullyCold(prog) {
		outs, err := x.runProgram(ctx, g, prog)
		switch {
		case err == nil:
			step, _ := prog.StepFor(i)
			return cty.NumberFloatVal(outs[step]), nil
		case ctx.Err() != nil && errors.Is(err, ctx.Err()):
			return cty.NilVal, err
		default:
			ctxlog.FromContext(ctx).Warn("fused dispatch failed, falling back to per-node execution",
				"node", n.Identity, "error", err)
		}
	}

	args, err := x.gatherArgs(ctx, g, i)
	if err != nil {
		return cty.NilVal, err
	}
	return x.invoke(ctx, g, i, args)
}

// gatherArgs evaluates the node's wired inputs in parallel and embeds its
// literals.
func (x *Executor) gatherArgs(ctx context.Context, g *generation, i int) ([]cty.Value, error) {
	n := &g.graph.Nodes[i]
	args := make([]cty.Value, len(n.Inputs))
	grp, gctx := errgroup.WithContext(ctx)
	for idx, in := range n.Inputs {
		switch {
		case in.Wired():
			grp.Go(func() error {
				v, err := x.eval(gctx, g, in.Node)
				if err != nil {
					return err
				}
				args[idx] = v
				return nil
			})
		case in.Literal == cty.NilVal:
			return nil, &NodeError{Identity: n.Identity, Err: fmt.Errorf("%w: input %d", ErrMissingInput, idx)}
		default:
			args[idx] = in.Literal
		}
	}
	if err := grp.Wait(); err != nil {
		return nil, err
	}
	return args, nil
}

// invoke runs the node's CPU implementation under the worker bound, with
// panic containment.
func (x *Executor) invoke(ctx context.Context, g *generation, i int, args []cty.Value) (val cty.Value, err error) {
	n := &g.graph.Nodes[i]
	if err := x.sem.Acquire(ctx, 1); err != nil {
		return cty.NilVal, err
	}
	defer x.sem.Release(1)

	defer func() {
		if r := recover(); r != nil {
			val = cty.NilVal
			err = &NodeError{Identity: n.Identity, Err: fmt.Errorf("%w: %v", ErrOperationPanic, r)}
		}
	}()

	out, opErr := n.Instance.Fn(ctx, args)
	if opErr != nil {
		return cty.NilVal, &NodeError{Identity: n.Identity, Err: opErr}
	}
	x.countExecution(n.Identity)
	return out, nil
}

// runProgram executes a fused run at most once per generation, resolving
// its boundary inputs recursively and publishing every member's output so
// interior fan-out never forces a second dispatch.
func (x *Executor) runProgram(ctx context.Context, g *generation, prog *backend.Program) ([]float64, error) {
	var rs *runState
	for ri, p := range g.plan.Runs {
		if p == prog {
			rs = g.runs[ri]
			break
		}
	}

	for {
		rs.mu.Lock()
		if rs.done {
			outs, failed := rs.outs, rs.failed
			rs.mu.Unlock()
			if failed {
				return nil, errors.New("fused run previously failed")
			}
			return outs, nil
		}
		if ch := rs.running; ch != nil {
			rs.mu.Unlock()
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-ch:
				continue
			}
		}
		ch := make(chan struct{})
		rs.running = ch
		rs.mu.Unlock()

		outs, err := x.dispatchRun(ctx, g, prog)

		rs.mu.Lock()
		if err != nil && ctx.Err() != nil && errors.Is(err, ctx.Err()) {
			rs.running = nil
			rs.mu.Unlock()
			close(ch)
			return nil, err
		}
		rs.outs, rs.failed, rs.done = outs, err != nil, true
		rs.running = nil
		rs.mu.Unlock()
		close(ch)

		if err != nil {
			return nil, err
		}
		for si, st := range prog.Steps {
			x.countExecution(g.graph.Nodes[st.Node].Identity)
			g.commitIfIdle(st.Node, cty.NumberFloatVal(outs[si]))
		}
		return outs, nil
	}
}

func (x *Executor) dispatchRun(ctx context.Context, g *generation, prog *backend.Program) ([]float64, error) {
	inputs, err := backend.GatherInputs(prog, func(node int) (cty.Value, error) {
		return x.eval(ctx, g, node)
	})
	if err != nil {
		return nil, err
	}
	pending, err := x.be.Submit(ctx, prog, inputs)
	if err != nil {
		return nil, err
	}
	return pending.Await(ctx)
}
