// Package value is the dynamically typed payload model for graph edges.
//
// Edge values are cty.Value: a type-erased container with a runtime type
// tag, structural equality, and safe conversions. This package adds the
// graphics payloads the engine moves around (rasters, path sets) as capsule
// types, fallible downcast helpers, the port Type model used by the
// operation catalog and compiler, and deterministic value fingerprinting
// for the executor's version stamps.
package value
