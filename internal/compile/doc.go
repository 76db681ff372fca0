// Package compile lowers editable document graphs into flat, type-resolved
// proto graphs ready for execution. It inlines nested networks into identity
// paths, monomorphizes generic operations against the catalog, and orders
// nodes deterministically so recompiling an unchanged document reproduces
// the same proto graph.
package compile
