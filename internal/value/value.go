package value

import (
	"errors"
	"fmt"
	"reflect"

	"github.com/zclconf/go-cty/cty"
)

// ErrTypeMismatch is returned by the downcast helpers when a value's runtime
// type does not match the requested one.
var ErrTypeMismatch = errors.New("value: type mismatch")

// Raster is a CPU-side pixel buffer in RGBA order, 4 bytes per pixel.
// Rasters travel along edges inside a capsule value, so fan-out shares the
// one buffer instead of copying it. Downstream consumers must treat the
// pixels as read-only once the value has been produced.
type Raster struct {
	Width  int
	Height int
	Pix    []byte
}

// NewRaster allocates a zeroed raster of the given dimensions.
func NewRaster(width, height int) *Raster {
	return &Raster{Width: width, Height: height, Pix: make([]byte, width*height*4)}
}

// PathSet is a set of polyline subpaths in document coordinates.
type PathSet struct {
	Subpaths []Subpath
}

// Subpath is one open or closed polyline.
type Subpath struct {
	Points []Point
	Closed bool
}

// Point is a 2D coordinate.
type Point struct {
	X, Y float64
}

// Capsule types for graphics payloads. Capsule values compare and hash by
// payload identity, which is exactly the sharing semantics edges need.
var (
	RasterType  = cty.Capsule("raster", reflect.TypeOf(Raster{}))
	PathSetType = cty.Capsule("pathset", reflect.TypeOf(PathSet{}))
)

// Number wraps a float64 as an edge value.
func Number(f float64) cty.Value { return cty.NumberFloatVal(f) }

// String wraps a string as an edge value.
func String(s string) cty.Value { return cty.StringVal(s) }

// Bool wraps a bool as an edge value.
func Bool(b bool) cty.Value { return cty.BoolVal(b) }

// RasterVal wraps a raster payload as an edge value. The raster is shared,
// not copied.
func RasterVal(r *Raster) cty.Value { return cty.CapsuleVal(RasterType, r) }

// PathSetVal wraps a path set payload as an edge value. The path set is
// shared, not copied.
func PathSetVal(p *PathSet) cty.Value { return cty.CapsuleVal(PathSetType, p) }

// AsNumber downcasts an edge value to a float64.
func AsNumber(v cty.Value) (float64, error) {
	if !v.Type().Equals(cty.Number) || v.IsNull() {
		return 0, mismatch(cty.Number, v)
	}
	f, _ := v.AsBigFloat().Float64()
	return f, nil
}

// AsString downcasts an edge value to a string.
func AsString(v cty.Value) (string, error) {
	if !v.Type().Equals(cty.String) || v.IsNull() {
		return "", mismatch(cty.String, v)
	}
	return v.AsString(), nil
}

// AsBool downcasts an edge value to a bool.
func AsBool(v cty.Value) (bool, error) {
	if !v.Type().Equals(cty.Bool) || v.IsNull() {
		return false, mismatch(cty.Bool, v)
	}
	return v.True(), nil
}

// AsRaster downcasts an edge value to its shared raster payload.
func AsRaster(v cty.Value) (*Raster, error) {
	if !v.Type().Equals(RasterType) || v.IsNull() {
		return nil, mismatch(RasterType, v)
	}
	return v.EncapsulatedValue().(*Raster), nil
}

// AsPathSet downcasts an edge value to its shared path set payload.
func AsPathSet(v cty.Value) (*PathSet, error) {
	if !v.Type().Equals(PathSetType) || v.IsNull() {
		return nil, mismatch(PathSetType, v)
	}
	return v.EncapsulatedValue().(*PathSet), nil
}

func mismatch(want cty.Type, got cty.Value) error {
	return fmt.Errorf("%w: want %s, got %s", ErrTypeMismatch, want.FriendlyName(), got.Type().FriendlyName())
}
