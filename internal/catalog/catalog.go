package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/zclconf/go-cty/cty"

	"github.com/seabeeberry/Graphite/internal/value"
)

// Resolution error taxonomy. These surface per node at compile time; the
// compiler marks the offending node rather than failing the whole pass.
var (
	// ErrUnknownOperation is returned when no operation has the given name.
	ErrUnknownOperation = errors.New("catalog: unknown operation")

	// ErrTypeResolution is returned when no overload instantiation
	// satisfies the concrete argument types.
	ErrTypeResolution = errors.New("catalog: no matching overload")

	// ErrAmbiguousOverload is returned when more than one instantiation
	// matches and the configured tie-break cannot pick one.
	ErrAmbiguousOverload = errors.New("catalog: ambiguous overload")
)

// CPUFunc is the interpreter-side implementation of one concrete operation
// instance. It must be pure apart from allocating its result.
type CPUFunc func(ctx context.Context, args []cty.Value) (cty.Value, error)

// Kernel declares an operation overload GPU-eligible. Expr is a WGSL
// expression template over f32 operands; input i appears as $i. The backend
// selector fuses contiguous kernel-bearing proto nodes into one compute
// dispatch.
type Kernel struct {
	Expr string
}

// Param is one declared input port of an overload.
type Param struct {
	Name string
	Type value.Type
}

// Overload is one candidate signature of an operation. Generic parameter
// types are bound against concrete argument types during resolution;
// parameters sharing a type-variable name must bind identically.
type Overload struct {
	Params []Param
	Result value.Type
	Fn     CPUFunc
	Kernel *Kernel
}

// Operation is a named group of overloads. Declaration order of overloads
// is significant: it is the resolution tie-break of last resort.
type Operation struct {
	Name      string
	Overloads []Overload
}

// TieBreak selects the policy for ranking multiple matching overloads.
type TieBreak int

const (
	// MostSpecific prefers the match binding the fewest generics, falling
	// back to declaration order among equally specific matches.
	MostSpecific TieBreak = iota
	// DeclarationOrder takes the first declared match outright.
	DeclarationOrder
	// MostSpecificStrict prefers the most specific match but reports
	// ErrAmbiguousOverload when equally specific matches remain.
	MostSpecificStrict
)

// Catalog is the operation registry the compiler resolves against and the
// executor's source of callables. Safe for concurrent use.
type Catalog struct {
	mu       sync.RWMutex
	ops      map[string]*Operation
	tieBreak TieBreak
}

// Option configures a Catalog.
type Option func(*Catalog)

// WithTieBreak sets the overload resolution tie-break policy.
func WithTieBreak(tb TieBreak) Option {
	return func(c *Catalog) { c.tieBreak = tb }
}

// New creates an empty catalog.
func New(opts ...Option) *Catalog {
	c := &Catalog{ops: make(map[string]*Operation)}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Register adds an operation. Re-registering a name replaces it.
func (c *Catalog) Register(op *Operation) error {
	if op.Name == "" {
		return fmt.Errorf("catalog: operation with empty name")
	}
	if len(op.Overloads) == 0 {
		return fmt.Errorf("catalog: operation %q has no overloads", op.Name)
	}
	for i, ov := range op.Overloads {
		if ov.Fn == nil {
			return fmt.Errorf("catalog: operation %q overload %d has no implementation", op.Name, i)
		}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ops[op.Name] = op
	return nil
}

// Operation returns a registered operation by name.
func (c *Catalog) Operation(name string) (*Operation, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	op, ok := c.ops[name]
	return op, ok
}

// Signature implements document.SignatureSource using the first overload's
// declared types, for best-effort pre-compilation validation.
func (c *Catalog) Signature(name string) ([]value.Type, value.Type, bool) {
	op, ok := c.Operation(name)
	if !ok {
		return nil, value.Type{}, false
	}
	ov := op.Overloads[0]
	params := make([]value.Type, len(ov.Params))
	for i, p := range ov.Params {
		params[i] = p.Type
	}
	return params, ov.Result, true
}

// Instance is a monomorphized operation: a concrete signature plus the
// callable the executor invokes. Key identifies the instantiation and feeds
// version stamps.
type Instance struct {
	Op     string
	Key    string
	Params []cty.Type
	Result cty.Type
	Fn     CPUFunc
	Kernel *Kernel
}

// Resolve picks the overload of name that matches the concrete argument
// types, binds its generics, and returns the monomorphized instance.
func (c *Catalog) Resolve(name string, args []cty.Type) (*Instance, error) {
	op, ok := c.Operation(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownOperation, name)
	}

	type match struct {
		inst     *Instance
		concrete int // count of non-generic params; higher is more specific
		decl     int
	}
	var matches []match
	for i, ov := range op.Overloads {
		inst, concrete, ok := instantiate(name, ov, args)
		if !ok {
			continue
		}
		matches = append(matches, match{inst: inst, concrete: concrete, decl: i})
	}
	if len(matches) == 0 {
		return nil, fmt.Errorf("%w: %s(%s)", ErrTypeResolution, name, typeList(args))
	}
	if c.tieBreak == DeclarationOrder || len(matches) == 1 {
		return matches[0].inst, nil
	}

	best := matches[0]
	tied := 1
	for _, m := range matches[1:] {
		switch {
		case m.concrete > best.concrete:
			best = m
			tied = 1
		case m.concrete == best.concrete:
			tied++
		}
	}
	if tied > 1 && c.tieBreak == MostSpecificStrict {
		return nil, fmt.Errorf("%w: %s(%s) has %d equally specific candidates", ErrAmbiguousOverload, name, typeList(args), tied)
	}
	return best.inst, nil
}

// instantiate binds one overload against concrete argument types. Returns
// the instance, the overload's concrete-parameter count, and whether it
// matched.
func instantiate(name string, ov Overload, args []cty.Type) (*Instance, int, bool) {
	if len(ov.Params) != len(args) {
		return nil, 0, false
	}
	bindings := make(map[string]cty.Type)
	concrete := 0
	for i, p := range ov.Params {
		if p.Type.IsGeneric() {
			bound, seen := bindings[p.Type.Generic]
			if seen {
				if !bound.Equals(args[i]) {
					return nil, 0, false
				}
			} else {
				bindings[p.Type.Generic] = args[i]
			}
			continue
		}
		concrete++
		if !p.Type.Assignable(args[i]) {
			return nil, 0, false
		}
	}

	result := ov.Result.Concrete
	if ov.Result.IsGeneric() {
		bound, seen := bindings[ov.Result.Generic]
		if !seen {
			return nil, 0, false // result type underdetermined
		}
		result = bound
	}

	params := make([]cty.Type, len(args))
	copy(params, args)
	return &Instance{
		Op:     name,
		Key:    fmt.Sprintf("%s(%s)", name, typeList(params)),
		Params: params,
		Result: result,
		Fn:     ov.Fn,
		Kernel: ov.Kernel,
	}, concrete, true
}

func typeList(types []cty.Type) string {
	names := make([]string, len(types))
	for i, t := range types {
		names[i] = t.FriendlyName()
	}
	return strings.Join(names, ", ")
}
