// Package exec is the execution engine: it adopts compiled proto graphs
// and evaluates requested nodes on demand, memoizing per-node results
// under version stamps so repeated and incremental evaluations skip
// everything whose inputs did not change. Fused runs from the backend plan
// dispatch as single programs; everything else runs node by node on a
// bounded worker pool.
package exec
