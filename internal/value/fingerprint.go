package value

import (
	"fmt"
	"hash"
	"hash/fnv"
	"io"

	"github.com/zclconf/go-cty/cty"
)

// Fingerprint computes a deterministic 64-bit FNV-1a digest of an edge
// value. The executor derives version stamps from literal-input
// fingerprints, so two equal literals must fingerprint equally and any
// content change must change the digest.
//
// Capsule payloads (rasters, path sets) hash by payload pointer: stable for
// the lifetime of the process, which is the only lifetime a version stamp
// has.
func Fingerprint(v cty.Value) uint64 {
	h := fnv.New64a()
	fingerprintInto(h, v)
	return h.Sum64()
}

func fingerprintInto(h hash.Hash64, v cty.Value) {
	if v == cty.NilVal {
		io.WriteString(h, "\x00nil")
		return
	}
	ty := v.Type()
	io.WriteString(h, ty.FriendlyName())
	switch {
	case v.IsNull():
		io.WriteString(h, "\x00null")
	case !v.IsKnown():
		io.WriteString(h, "\x00unknown")
	case ty.Equals(cty.Number):
		io.WriteString(h, v.AsBigFloat().Text('g', -1))
	case ty.Equals(cty.String):
		io.WriteString(h, v.AsString())
	case ty.Equals(cty.Bool):
		if v.True() {
			io.WriteString(h, "t")
		} else {
			io.WriteString(h, "f")
		}
	case ty.IsCapsuleType():
		fmt.Fprintf(h, "%p", v.EncapsulatedValue())
	case v.CanIterateElements():
		it := v.ElementIterator()
		for it.Next() {
			k, ev := it.Element()
			fingerprintInto(h, k)
			fingerprintInto(h, ev)
		}
	default:
		io.WriteString(h, v.GoString())
	}
}
