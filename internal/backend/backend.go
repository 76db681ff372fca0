package backend

import (
	"context"
	"errors"
	"fmt"

	"github.com/zclconf/go-cty/cty"
)

var (
	// ErrBackendUnavailable is returned when a requested backend is not
	// registered or cannot run on this host.
	ErrBackendUnavailable = errors.New("backend: unavailable")

	// ErrUnsupportedBoundaryType is returned when a value crossing into a
	// fused run is not a number.
	ErrUnsupportedBoundaryType = errors.New("backend: unsupported boundary type")
)

// Backend executes fused programs. Submit returns immediately; the result
// is collected through the Pending handle.
type Backend interface {
	Name() string
	Available() bool
	Submit(ctx context.Context, prog *Program, inputs []float64) (*Pending, error)
}

// Pending is an in-flight program submission.
type Pending struct {
	done chan struct{}
	out  []float64
	err  error
}

// NewPending creates an unresolved handle. Backends resolve it with
// Complete exactly once.
func NewPending() *Pending {
	return &Pending{done: make(chan struct{})}
}

// Complete resolves the handle and wakes all waiters.
func (p *Pending) Complete(out []float64, err error) {
	p.out, p.err = out, err
	close(p.done)
}

// Await blocks until the program finishes or ctx is cancelled. The step
// outputs are returned in step order.
func (p *Pending) Await(ctx context.Context) ([]float64, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-p.done:
		return p.out, p.err
	}
}

// GatherInputs resolves a program's boundary inputs to scalars. resolve is
// called with each feeding proto node index.
func GatherInputs(prog *Program, resolve func(node int) (cty.Value, error)) ([]float64, error) {
	inputs := make([]float64, len(prog.Inputs))
	for i, node := range prog.Inputs {
		v, err := resolve(node)
		if err != nil {
			return nil, err
		}
		if v.IsNull() || !v.Type().Equals(cty.Number) {
			return nil, fmt.Errorf("%w: node %d carries %s", ErrUnsupportedBoundaryType, node, v.Type().FriendlyName())
		}
		f, _ := v.AsBigFloat().Float64()
		inputs[i] = f
	}
	return inputs, nil
}
