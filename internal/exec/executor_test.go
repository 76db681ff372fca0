package exec

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zclconf/go-cty/cty"

	"github.com/seabeeberry/Graphite/internal/backend"
	"github.com/seabeeberry/Graphite/internal/catalog"
	"github.com/seabeeberry/Graphite/internal/compile"
	"github.com/seabeeberry/Graphite/internal/document"
	"github.com/seabeeberry/Graphite/internal/proto"
	"github.com/seabeeberry/Graphite/internal/value"
)

func compileDoc(t *testing.T, cat *catalog.Catalog, g *document.Graph) *proto.Graph {
	t.Helper()
	pg, err := compile.New(cat).Compile(context.Background(), g)
	require.NoError(t, err)
	return pg
}

func evalNumber(t *testing.T, ctx context.Context, x *Executor, identity string) float64 {
	t.Helper()
	v, err := x.Evaluate(ctx, identity)
	require.NoError(t, err)
	n, err := value.AsNumber(v)
	require.NoError(t, err)
	return n
}

// incrementalDoc builds the canonical editing scenario:
//
//	a = constant(lit)
//	b = double(a)
//	c = add(b, 10)
//	island = identity(4)    demand-driven bystander, never fused
func incrementalDoc(t *testing.T, lit int64) *document.Graph {
	t.Helper()
	g := document.New()
	require.NoError(t, g.AddNode(&document.Node{ID: "a", Op: "constant", Inputs: []document.Input{{Literal: cty.NumberIntVal(lit)}}}))
	require.NoError(t, g.AddNode(&document.Node{ID: "b", Op: "double", Inputs: []document.Input{{From: "a"}}}))
	require.NoError(t, g.AddNode(&document.Node{ID: "c", Op: "add", Inputs: []document.Input{{From: "b"}, {Literal: cty.NumberIntVal(10)}}}))
	require.NoError(t, g.AddNode(&document.Node{ID: "island", Op: "identity", Inputs: []document.Input{{Literal: cty.NumberIntVal(4)}}}))
	return g
}

func TestEvaluate(t *testing.T) {
	ctx := context.Background()
	cat := catalog.Builtin()

	t.Run("no adopted graph", func(t *testing.T) {
		_, err := New().Evaluate(ctx, "a")
		assert.ErrorIs(t, err, ErrNoGraph)
	})

	t.Run("unknown target", func(t *testing.T) {
		x := New()
		x.Adopt(ctx, compileDoc(t, cat, incrementalDoc(t, 13)))
		_, err := x.Evaluate(ctx, "no-such-node")
		assert.ErrorIs(t, err, ErrUnknownTarget)
	})

	t.Run("pulls the demanded cone only", func(t *testing.T) {
		x := New()
		x.Adopt(ctx, compileDoc(t, cat, incrementalDoc(t, 13)))

		got := evalNumber(t, ctx, x, "c")
		assert.Equal(t, 36.0, got)
		assert.EqualValues(t, 1, x.Executions("b"))
		assert.EqualValues(t, 1, x.Executions("c"))
		assert.EqualValues(t, 0, x.Executions("island"), "nothing demanded it")
	})

	t.Run("repeat evaluation is a cache hit", func(t *testing.T) {
		x := New()
		x.Adopt(ctx, compileDoc(t, cat, incrementalDoc(t, 13)))

		first := evalNumber(t, ctx, x, "c")
		second := evalNumber(t, ctx, x, "c")
		assert.Equal(t, first, second)
		assert.EqualValues(t, 1, x.Executions("c"))
	})

	t.Run("network alias identities are evaluable", func(t *testing.T) {
		inner := document.New()
		require.NoError(t, inner.AddNode(&document.Node{ID: "p", Kind: document.KindParameter, Param: 0}))
		require.NoError(t, inner.AddNode(&document.Node{ID: "d", Op: "double", Inputs: []document.Input{{From: "p"}}}))
		inner.Output = "d"

		g := document.New()
		require.NoError(t, g.AddNode(&document.Node{ID: "net", Kind: document.KindNetwork, Network: inner, Inputs: []document.Input{{Literal: cty.NumberIntVal(7)}}}))

		x := New()
		x.Adopt(ctx, compileDoc(t, cat, g))
		assert.Equal(t, 14.0, evalNumber(t, ctx, x, "net"))
		assert.Equal(t, 14.0, evalNumber(t, ctx, x, "net/d"))
		assert.EqualValues(t, 1, x.Executions("net/d"))
	})
}

func TestIncrementalReuse(t *testing.T) {
	ctx := context.Background()
	cat := catalog.Builtin()

	t.Run("literal edit re-executes only downstream of it", func(t *testing.T) {
		comp := compile.New(cat)
		x := New()

		first, err := comp.Compile(ctx, incrementalDoc(t, 13))
		require.NoError(t, err)
		x.Adopt(ctx, first)
		assert.Equal(t, 36.0, evalNumber(t, ctx, x, "c"))
		assert.Equal(t, 4.0, evalNumber(t, ctx, x, "island"))

		second, err := comp.Compile(ctx, incrementalDoc(t, 23))
		require.NoError(t, err)
		x.Adopt(ctx, second)

		assert.Equal(t, 56.0, evalNumber(t, ctx, x, "c"))
		assert.EqualValues(t, 2, x.Executions("b"), "b saw the new literal")
		assert.EqualValues(t, 2, x.Executions("c"), "c depends on b")

		assert.Equal(t, 4.0, evalNumber(t, ctx, x, "island"))
		assert.EqualValues(t, 1, x.Executions("island"), "untouched nodes keep their cache")
	})

	t.Run("editing a fused member re-executes only its suffix", func(t *testing.T) {
		comp := compile.New(cat)
		x := New()

		first, err := comp.Compile(ctx, incrementalDoc(t, 13))
		require.NoError(t, err)
		x.Adopt(ctx, first)
		assert.Equal(t, 36.0, evalNumber(t, ctx, x, "c"))

		// c's addend changes; b has no dependency path from the edit and
		// carries its cached value across the recompile.
		edited := incrementalDoc(t, 13)
		require.NoError(t, edited.SetLiteral("c", 1, cty.NumberIntVal(20)))
		second, err := comp.Compile(ctx, edited)
		require.NoError(t, err)
		x.Adopt(ctx, second)

		assert.Equal(t, 46.0, evalNumber(t, ctx, x, "c"))
		assert.EqualValues(t, 1, x.Executions("b"), "b is not downstream of the edited literal")
		assert.EqualValues(t, 2, x.Executions("c"))
	})

	t.Run("recompiling an unedited document reuses everything", func(t *testing.T) {
		comp := compile.New(cat)
		x := New()

		first, err := comp.Compile(ctx, incrementalDoc(t, 13))
		require.NoError(t, err)
		x.Adopt(ctx, first)
		evalNumber(t, ctx, x, "c")

		second, err := comp.Compile(ctx, incrementalDoc(t, 13))
		require.NoError(t, err)
		require.NotEqual(t, first.Generation, second.Generation)
		x.Adopt(ctx, second)

		assert.Equal(t, 36.0, evalNumber(t, ctx, x, "c"))
		assert.EqualValues(t, 1, x.Executions("b"))
		assert.EqualValues(t, 1, x.Executions("c"))
	})

	t.Run("sequential edits converge on the fresh-compile value", func(t *testing.T) {
		comp := compile.New(cat)
		x := New()

		base, err := comp.Compile(ctx, incrementalDoc(t, 13))
		require.NoError(t, err)
		x.Adopt(ctx, base)
		evalNumber(t, ctx, x, "c")

		// Edit one: new source literal. Edit two: new addend on c.
		edited := incrementalDoc(t, 23)
		first, err := comp.Compile(ctx, edited)
		require.NoError(t, err)
		x.Adopt(ctx, first)
		evalNumber(t, ctx, x, "c")

		require.NoError(t, edited.SetLiteral("c", 1, cty.NumberIntVal(20)))
		second, err := comp.Compile(ctx, edited)
		require.NoError(t, err)
		x.Adopt(ctx, second)
		incremental := evalNumber(t, ctx, x, "c")

		freshDoc := incrementalDoc(t, 23)
		require.NoError(t, freshDoc.SetLiteral("c", 1, cty.NumberIntVal(20)))
		fresh := New()
		fresh.Adopt(ctx, compileDoc(t, cat, freshDoc))
		got := evalNumber(t, ctx, fresh, "c")

		assert.Equal(t, got, incremental, "edit order does not change the final value")
		assert.Equal(t, 66.0, got)
	})

	t.Run("setting a literal to an equal value dirties nothing", func(t *testing.T) {
		comp := compile.New(cat)
		x := New()

		first, err := comp.Compile(ctx, incrementalDoc(t, 13))
		require.NoError(t, err)
		x.Adopt(ctx, first)
		evalNumber(t, ctx, x, "c")

		edited := incrementalDoc(t, 13)
		require.NoError(t, edited.SetLiteral("a", 0, cty.NumberIntVal(13)))
		second, err := comp.Compile(ctx, edited)
		require.NoError(t, err)
		x.Adopt(ctx, second)

		evalNumber(t, ctx, x, "c")
		assert.EqualValues(t, 1, x.Executions("c"))
	})
}

func TestFanOut(t *testing.T) {
	ctx := context.Background()
	cat := catalog.Builtin()

	// Diamond with non-fusable interior so both branches pull the shared
	// source over the CPU path concurrently.
	g := document.New()
	require.NoError(t, g.AddNode(&document.Node{ID: "s", Op: "double", Inputs: []document.Input{{Literal: cty.NumberIntVal(1)}}}))
	require.NoError(t, g.AddNode(&document.Node{ID: "l", Op: "identity", Inputs: []document.Input{{From: "s"}}}))
	require.NoError(t, g.AddNode(&document.Node{ID: "r", Op: "identity", Inputs: []document.Input{{From: "s"}}}))
	require.NoError(t, g.AddNode(&document.Node{ID: "j", Op: "add", Inputs: []document.Input{{From: "l"}, {From: "r"}}}))

	x := New()
	x.Adopt(ctx, compileDoc(t, cat, g))

	assert.Equal(t, 4.0, evalNumber(t, ctx, x, "j"))
	assert.EqualValues(t, 1, x.Executions("s"), "shared upstream runs once despite two consumers")
	assert.EqualValues(t, 1, x.Executions("l"))
	assert.EqualValues(t, 1, x.Executions("r"))
}

// failingBackend accepts every program and fails it, either at submission
// or on await.
type failingBackend struct {
	submitErr error
	awaitErr  error
}

func (failingBackend) Name() string    { return "broken" }
func (failingBackend) Available() bool { return true }

func (b failingBackend) Submit(context.Context, *backend.Program, []float64) (*backend.Pending, error) {
	if b.submitErr != nil {
		return nil, b.submitErr
	}
	p := backend.NewPending()
	p.Complete(nil, b.awaitErr)
	return p, nil
}

func TestBackendFallback(t *testing.T) {
	ctx := context.Background()
	cat := catalog.Builtin()

	run := func(t *testing.T, be backend.Backend) {
		x := New(WithBackend(be))
		x.Adopt(ctx, compileDoc(t, cat, incrementalDoc(t, 13)))

		assert.Equal(t, 36.0, evalNumber(t, ctx, x, "c"), "fallback matches the per-node value")
		assert.EqualValues(t, 1, x.Executions("b"))
		assert.EqualValues(t, 1, x.Executions("c"))
	}

	t.Run("submission failure falls back to per-node execution", func(t *testing.T) {
		run(t, failingBackend{submitErr: errors.New("device lost")})
	})

	t.Run("dispatch failure surfaced on await falls back too", func(t *testing.T) {
		run(t, failingBackend{awaitErr: errors.New("fence timeout")})
	})
}

func TestConcurrentEvaluate(t *testing.T) {
	ctx := context.Background()
	cat := catalog.Builtin()

	x := New()
	x.Adopt(ctx, compileDoc(t, cat, incrementalDoc(t, 13)))

	var wg sync.WaitGroup
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got := evalNumber(t, ctx, x, "c")
			assert.Equal(t, 36.0, got)
		}()
	}
	wg.Wait()
	assert.EqualValues(t, 1, x.Executions("c"), "concurrent demands share one execution")
}

func TestEvaluateErrors(t *testing.T) {
	ctx := context.Background()

	t.Run("resolution markers surface with the failing identity", func(t *testing.T) {
		cat := catalog.Builtin()
		g := document.New()
		require.NoError(t, g.AddNode(&document.Node{ID: "bad", Op: "frobnicate", Inputs: []document.Input{{Literal: cty.NumberIntVal(1)}}}))
		require.NoError(t, g.AddNode(&document.Node{ID: "down", Op: "identity", Inputs: []document.Input{{From: "bad"}}}))

		x := New()
		x.Adopt(ctx, compileDoc(t, cat, g))

		_, err := x.Evaluate(ctx, "down")
		require.Error(t, err)
		var ne *NodeError
		require.ErrorAs(t, err, &ne)
		assert.Equal(t, "down", ne.Identity)
		assert.ErrorIs(t, err, catalog.ErrUnknownOperation)
		assert.Contains(t, err.Error(), `"bad"`, "the marker names the node that failed to resolve")
	})

	t.Run("operation errors carry the originating node", func(t *testing.T) {
		cat := catalog.Builtin()
		g := document.New()
		require.NoError(t, g.AddNode(&document.Node{ID: "boom", Op: "divide", Inputs: []document.Input{
			{Literal: cty.NumberIntVal(1)}, {Literal: cty.NumberIntVal(0)},
		}}))
		require.NoError(t, g.AddNode(&document.Node{ID: "after", Op: "identity", Inputs: []document.Input{{From: "boom"}}}))

		x := New()

		x.Adopt(ctx, compileDoc(t, cat, g))
		_, err := x.Evaluate(ctx, "after")
		require.Error(t, err)
		var ne *NodeError
		require.ErrorAs(t, err, &ne)
		assert.Equal(t, "boom", ne.Identity)
	})

	t.Run("panicking operations are contained", func(t *testing.T) {
		cat := catalog.Builtin()
		require.NoError(t, cat.Register(&catalog.Operation{
			Name: "explode",
			Overloads: []catalog.Overload{{
				Params: []catalog.Param{{Name: "v", Type: value.ConcreteType(cty.Number)}},
				Result: value.ConcreteType(cty.Number),
				Fn: func(context.Context, []cty.Value) (cty.Value, error) {
					panic("kaboom")
				},
			}},
		}))

		g := document.New()
		require.NoError(t, g.AddNode(&document.Node{ID: "e", Op: "explode", Inputs: []document.Input{{Literal: cty.NumberIntVal(1)}}}))

		x := New()
		x.Adopt(ctx, compileDoc(t, cat, g))

		_, err := x.Evaluate(ctx, "e")
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrOperationPanic)
		assert.ErrorContains(t, err, "kaboom")
	})

	t.Run("disconnected port reports missing input", func(t *testing.T) {
		cat := catalog.Builtin()
		g := document.New()
		require.NoError(t, g.AddNode(&document.Node{ID: "hollow", Op: "identity", Inputs: []document.Input{{}}}))

		x := New()
		x.Adopt(ctx, compileDoc(t, cat, g))

		_, err := x.Evaluate(ctx, "hollow")
		assert.ErrorIs(t, err, ErrMissingInput)
	})
}

func TestCancellation(t *testing.T) {
	cat := catalog.Builtin()

	release := make(chan struct{})
	started := make(chan struct{}, 8)
	require.NoError(t, cat.Register(&catalog.Operation{
		Name: "gate",
		Overloads: []catalog.Overload{{
			Params: []catalog.Param{{Name: "v", Type: value.ConcreteType(cty.Number)}},
			Result: value.ConcreteType(cty.Number),
			Fn: func(ctx context.Context, args []cty.Value) (cty.Value, error) {
				started <- struct{}{}
				select {
				case <-release:
					return args[0], nil
				case <-ctx.Done():
					return cty.NilVal, ctx.Err()
				}
			},
		}},
	}))

	g := document.New()
	require.NoError(t, g.AddNode(&document.Node{ID: "slow", Op: "gate", Inputs: []document.Input{{Literal: cty.NumberIntVal(5)}}}))

	x := New()
	x.Adopt(context.Background(), compileDoc(t, cat, g))

	cancelCtx, cancel := context.WithCancel(context.Background())
	evalErr := make(chan error, 1)
	go func() {
		_, err := x.Evaluate(cancelCtx, "slow")
		evalErr <- err
	}()

	<-started
	cancel()
	select {
	case err := <-evalErr:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("evaluation did not observe cancellation")
	}

	// A cancelled evaluation must not poison the cache: the next demand
	// claims the entry fresh and succeeds.
	close(release)
	got := evalNumber(t, context.Background(), x, "slow")
	assert.Equal(t, 5.0, got)
	assert.EqualValues(t, 1, x.Executions("slow"), "only the completed run commits and counts")
}
