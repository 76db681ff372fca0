// Package backend selects and drives compute backends for fused scalar
// runs. Planning partitions a proto graph into contiguous runs of
// kernel-bearing nodes; each run compiles to a single program that a
// registered backend executes in one submission. The software backend is
// always present, so planning never makes a graph unevaluable.
package backend
