package backend

import (
	"context"
	"fmt"

	"github.com/zclconf/go-cty/cty"
)

// softwareBackend evaluates fused programs step by step on the CPU. It is
// always available and acts as the fallback when no GPU backend can run.
type softwareBackend struct{}

func init() {
	Register(softwareBackend{})
}

func (softwareBackend) Name() string    { return "software" }
func (softwareBackend) Available() bool { return true }

func (softwareBackend) Submit(ctx context.Context, prog *Program, inputs []float64) (*Pending, error) {
	p := NewPending()
	vals := make([]float64, len(prog.Steps))
	for i, st := range prog.Steps {
		args := make([]cty.Value, len(st.Args))
		for j, a := range st.Args {
			switch a.Kind {
			case ArgInput:
				if a.Index >= len(inputs) {
					p.Complete(nil, fmt.Errorf("step %d: boundary input %d out of range", i, a.Index))
					return p, nil
				}
				args[j] = cty.NumberFloatVal(inputs[a.Index])
			case ArgStep:
				args[j] = cty.NumberFloatVal(vals[a.Index])
			default:
				args[j] = cty.NumberFloatVal(a.Literal)
			}
		}
		out, err := st.Fn(ctx, args)
		if err != nil {
			p.Complete(nil, fmt.Errorf("step %d: %w", i, err))
			return p, nil
		}
		f, _ := out.AsBigFloat().Float64()
		vals[i] = f
	}
	p.Complete(vals, nil)
	return p, nil
}
