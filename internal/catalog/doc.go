// Package catalog is the operation registry: named operations with typed,
// possibly generic overloads, the CPU callables that implement them, and
// the WGSL kernels that make some of them GPU-eligible. The compiler
// resolves an operation name plus concrete argument types to a
// monomorphized Instance; the executor invokes the instance's callable.
//
// The engine treats every operation as an opaque typed function. The
// builtin set here exists so the engine runs end to end; a full node
// library registers through the same API.
package catalog
