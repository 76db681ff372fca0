package catalog

import (
	"context"
	"fmt"
	"math"

	"github.com/zclconf/go-cty/cty"

	"github.com/seabeeberry/Graphite/internal/value"
)

// Builtin returns the reference operation set: enough arithmetic, generic
// passthroughs, and vector/raster constructors to run real graphs end to
// end. The editor shell registers its full node library the same way.
func Builtin() *Catalog {
	c := New()
	registerArithmetic(c)
	registerPassthrough(c)
	registerGraphics(c)
	return c
}

func number(p string) Param { return Param{Name: p, Type: value.ConcreteType(cty.Number)} }

func numericOp(name string, arity int, kernel string, f func(args []float64) (float64, error)) *Operation {
	params := make([]Param, arity)
	for i := range params {
		params[i] = number(fmt.Sprintf("x%d", i))
	}
	return &Operation{
		Name: name,
		Overloads: []Overload{{
			Params: params,
			Result: value.ConcreteType(cty.Number),
			Kernel: &Kernel{Expr: kernel},
			Fn: func(_ context.Context, args []cty.Value) (cty.Value, error) {
				nums := make([]float64, len(args))
				for i, a := range args {
					n, err := value.AsNumber(a)
					if err != nil {
						return cty.NilVal, err
					}
					nums[i] = n
				}
				out, err := f(nums)
				if err != nil {
					return cty.NilVal, err
				}
				return value.Number(out), nil
			},
		}},
	}
}

func registerArithmetic(c *Catalog) {
	add := numericOp("add", 2, "$0 + $1", func(a []float64) (float64, error) { return a[0] + a[1], nil })
	// String concatenation shares the name; the numeric overload is
	// declared first and wins the declaration-order tie-break.
	add.Overloads = append(add.Overloads, Overload{
		Params: []Param{
			{Name: "a", Type: value.ConcreteType(cty.String)},
			{Name: "b", Type: value.ConcreteType(cty.String)},
		},
		Result: value.ConcreteType(cty.String),
		Fn: func(_ context.Context, args []cty.Value) (cty.Value, error) {
			a, err := value.AsString(args[0])
			if err != nil {
				return cty.NilVal, err
			}
			b, err := value.AsString(args[1])
			if err != nil {
				return cty.NilVal, err
			}
			return value.String(a + b), nil
		},
	})
	c.Register(add)

	c.Register(numericOp("subtract", 2, "$0 - $1", func(a []float64) (float64, error) { return a[0] - a[1], nil }))
	c.Register(numericOp("multiply", 2, "$0 * $1", func(a []float64) (float64, error) { return a[0] * a[1], nil }))
	c.Register(numericOp("divide", 2, "$0 / $1", func(a []float64) (float64, error) {
		if a[1] == 0 {
			return 0, fmt.Errorf("divide: division by zero")
		}
		return a[0] / a[1], nil
	}))
	c.Register(numericOp("double", 1, "$0 * 2.0", func(a []float64) (float64, error) { return a[0] * 2, nil }))
	c.Register(numericOp("negate", 1, "-($0)", func(a []float64) (float64, error) { return -a[0], nil }))
	c.Register(numericOp("sqrt", 1, "sqrt($0)", func(a []float64) (float64, error) { return math.Sqrt(a[0]), nil }))
}

func passthrough(_ context.Context, args []cty.Value) (cty.Value, error) {
	return args[0], nil
}

func registerPassthrough(c *Catalog) {
	// constant is declared for validation purposes; the compiler folds
	// constant nodes with literal inputs into downstream literals, so it
	// rarely executes.
	for _, name := range []string{"constant", "identity"} {
		c.Register(&Operation{
			Name: name,
			Overloads: []Overload{{
				Params: []Param{{Name: "value", Type: value.GenericType("T")}},
				Result: value.GenericType("T"),
				Fn:     passthrough,
			}},
		})
	}
}

func registerGraphics(c *Catalog) {
	c.Register(&Operation{
		Name: "circle",
		Overloads: []Overload{{
			Params: []Param{number("radius")},
			Result: value.ConcreteType(value.PathSetType),
			Fn: func(_ context.Context, args []cty.Value) (cty.Value, error) {
				r, err := value.AsNumber(args[0])
				if err != nil {
					return cty.NilVal, err
				}
				const segments = 64
				pts := make([]value.Point, segments)
				for i := range pts {
					a := 2 * math.Pi * float64(i) / segments
					pts[i] = value.Point{X: r * math.Cos(a), Y: r * math.Sin(a)}
				}
				return value.PathSetVal(&value.PathSet{Subpaths: []value.Subpath{{Points: pts, Closed: true}}}), nil
			},
		}},
	})

	c.Register(&Operation{
		Name: "translate",
		Overloads: []Overload{{
			Params: []Param{
				{Name: "paths", Type: value.ConcreteType(value.PathSetType)},
				number("dx"),
				number("dy"),
			},
			Result: value.ConcreteType(value.PathSetType),
			Fn: func(_ context.Context, args []cty.Value) (cty.Value, error) {
				ps, err := value.AsPathSet(args[0])
				if err != nil {
					return cty.NilVal, err
				}
				dx, err := value.AsNumber(args[1])
				if err != nil {
					return cty.NilVal, err
				}
				dy, err := value.AsNumber(args[2])
				if err != nil {
					return cty.NilVal, err
				}
				// The input is shared with other consumers; build a new set.
				out := &value.PathSet{Subpaths: make([]value.Subpath, len(ps.Subpaths))}
				for i, sp := range ps.Subpaths {
					pts := make([]value.Point, len(sp.Points))
					for j, p := range sp.Points {
						pts[j] = value.Point{X: p.X + dx, Y: p.Y + dy}
					}
					out.Subpaths[i] = value.Subpath{Points: pts, Closed: sp.Closed}
				}
				return value.PathSetVal(out), nil
			},
		}},
	})

	c.Register(&Operation{
		Name: "rasterize",
		Overloads: []Overload{{
			Params: []Param{
				{Name: "paths", Type: value.ConcreteType(value.PathSetType)},
				number("width"),
				number("height"),
			},
			Result: value.ConcreteType(value.RasterType),
			Fn:     rasterizeFn,
		}},
	})

	c.Register(&Operation{
		Name: "invert",
		Overloads: []Overload{{
			Params: []Param{{Name: "image", Type: value.ConcreteType(value.RasterType)}},
			Result: value.ConcreteType(value.RasterType),
			Fn: func(_ context.Context, args []cty.Value) (cty.Value, error) {
				in, err := value.AsRaster(args[0])
				if err != nil {
					return cty.NilVal, err
				}
				out := value.NewRaster(in.Width, in.Height)
				for i := 0; i < len(in.Pix); i += 4 {
					out.Pix[i+0] = 255 - in.Pix[i+0]
					out.Pix[i+1] = 255 - in.Pix[i+1]
					out.Pix[i+2] = 255 - in.Pix[i+2]
					out.Pix[i+3] = in.Pix[i+3]
				}
				return value.RasterVal(out), nil
			},
		}},
	})
}

// rasterizeFn fills closed subpaths black on white using even-odd
// point-in-polygon sampling at pixel centers. Deliberately simple: the real
// node library supplies production rasterizers; the engine treats them all
// as opaque callables.
func rasterizeFn(_ context.Context, args []cty.Value) (cty.Value, error) {
	ps, err := value.AsPathSet(args[0])
	if err != nil {
		return cty.NilVal, err
	}
	wf, err := value.AsNumber(args[1])
	if err != nil {
		return cty.NilVal, err
	}
	hf, err := value.AsNumber(args[2])
	if err != nil {
		return cty.NilVal, err
	}
	w, h := int(wf), int(hf)
	if w <= 0 || h <= 0 {
		return cty.NilVal, fmt.Errorf("rasterize: invalid size %dx%d", w, h)
	}
	out := value.NewRaster(w, h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			// Sample in a coordinate system centered on the raster.
			px := float64(x) + 0.5 - float64(w)/2
			py := float64(y) + 0.5 - float64(h)/2
			i := (y*w + x) * 4
			if insideEvenOdd(ps, px, py) {
				out.Pix[i+3] = 255
			} else {
				out.Pix[i+0], out.Pix[i+1], out.Pix[i+2], out.Pix[i+3] = 255, 255, 255, 255
			}
		}
	}
	return value.RasterVal(out), nil
}

func insideEvenOdd(ps *value.PathSet, x, y float64) bool {
	inside := false
	for _, sp := range ps.Subpaths {
		if !sp.Closed || len(sp.Points) < 3 {
			continue
		}
		j := len(sp.Points) - 1
		for i := 0; i < len(sp.Points); i++ {
			a, b := sp.Points[i], sp.Points[j]
			if (a.Y > y) != (b.Y > y) &&
				x < (b.X-a.X)*(y-a.Y)/(b.Y-a.Y)+a.X {
				inside = !inside
			}
			j = i
		}
	}
	return inside
}
