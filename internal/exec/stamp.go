package exec

import (
	"encoding/binary"
	"hash/fnv"
	"io"

	"github.com/seabeeberry/Graphite/internal/proto"
	"github.com/seabeeberry/Graphite/internal/value"
)

// computeStamps derives a version stamp for every node. A stamp folds the
// monomorphized operation key, the stamps of wired inputs, and the
// fingerprints of literal inputs, so any change upstream of a node changes
// its stamp and only its own subtree goes stale. Topological order
// guarantees input stamps exist before they are read.
func computeStamps(g *proto.Graph) []uint64 {
	stamps := make([]uint64, len(g.Nodes))
	for i := range g.Nodes {
		n := &g.Nodes[i]
		h := fnv.New64a()
		if n.Err != nil {
			io.WriteString(h, "!"+n.Err.Error())
		} else {
			io.WriteString(h, n.Instance.Key)
		}
		var buf [8]byte
		for _, in := range n.Inputs {
			if in.Wired() {
				binary.LittleEndian.PutUint64(buf[:], stamps[in.Node])
			} else {
				binary.LittleEndian.PutUint64(buf[:], value.Fingerprint(in.Literal))
			}
			h.Write(buf[:])
		}
		stamps[i] = h.Sum64()
	}
	return stamps
}
