package document

import "errors"

// Structural error taxonomy. These surface at edit/validate time and are
// also reused by the compiler for defects that only appear after inlining.
var (
	// ErrCycleDetected is returned when the data-dependency edges form a cycle.
	ErrCycleDetected = errors.New("document: cycle detected")

	// ErrDanglingReference is returned when a wire references a node that
	// does not exist in the containing graph.
	ErrDanglingReference = errors.New("document: dangling reference")

	// ErrTypeIncompatible is returned when two connected ports' declared
	// types cannot unify. This is a best-effort pre-compilation check; full
	// resolution happens in the compiler.
	ErrTypeIncompatible = errors.New("document: incompatible port types")

	// ErrUnboundedRecursion is returned when a network (transitively)
	// contains itself, so inlining could not terminate.
	ErrUnboundedRecursion = errors.New("document: self-referential network")

	// ErrDuplicateNode is returned when adding a node whose ID is taken.
	ErrDuplicateNode = errors.New("document: duplicate node id")

	// ErrUnknownNode is returned when an edit names a node that does not exist.
	ErrUnknownNode = errors.New("document: unknown node")

	// ErrBadInputIndex is returned when an edit names an input port a node
	// does not have.
	ErrBadInputIndex = errors.New("document: input index out of range")

	// ErrBadExtraction is returned when a node selection cannot form a
	// network, for example when more than one member feeds the outside.
	ErrBadExtraction = errors.New("document: selection cannot be extracted")
)
