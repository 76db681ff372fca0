package value

import (
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
)

// Type describes what may flow through a port. It is either a concrete cty
// type or a type variable that the compiler binds during resolution. The
// zero Type is invalid.
type Type struct {
	// Concrete is the port's cty type. Meaningful only when Generic is empty.
	Concrete cty.Type
	// Generic names a type variable, e.g. "T". Ports sharing a variable name
	// within one operation signature must resolve to the same concrete type.
	Generic string
}

// ConcreteType wraps a cty type as a port type.
func ConcreteType(t cty.Type) Type { return Type{Concrete: t} }

// GenericType declares a type variable as a port type.
func GenericType(name string) Type { return Type{Generic: name} }

// IsGeneric reports whether the type is an unbound type variable.
func (t Type) IsGeneric() bool { return t.Generic != "" }

// Assignable reports whether a value of the given concrete type may flow
// into a port of this type. Generic ports accept anything; concrete ports
// accept equal types and types cty can safely convert.
func (t Type) Assignable(from cty.Type) bool {
	if t.IsGeneric() {
		return true
	}
	if t.Concrete.Equals(from) {
		return true
	}
	return convert.GetConversion(from, t.Concrete) != nil
}

func (t Type) String() string {
	if t.IsGeneric() {
		return t.Generic
	}
	return t.Concrete.FriendlyName()
}

// Equal reports whether two port types are identical (same variable name or
// same concrete type).
func (t Type) Equal(o Type) bool {
	if t.IsGeneric() || o.IsGeneric() {
		return t.Generic == o.Generic
	}
	return t.Concrete.Equals(o.Concrete)
}
