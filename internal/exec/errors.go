package exec

import (
	"errors"
	"fmt"
)

var (
	// ErrNoGraph is returned when Evaluate is called before any graph was
	// adopted.
	ErrNoGraph = errors.New("exec: no graph adopted")

	// ErrUnknownTarget is returned when the requested identity does not
	// exist in the adopted graph.
	ErrUnknownTarget = errors.New("exec: unknown target")

	// ErrMissingInput is returned when a node input has neither a wired
	// source nor a literal.
	ErrMissingInput = errors.New("exec: missing input")

	// ErrOperationPanic wraps a panic recovered from an operation body so
	// one misbehaving operation cannot take the engine down.
	ErrOperationPanic = errors.New("exec: operation panicked")
)

// NodeError attributes a failure to the node it originated at. Errors
// propagate downstream unchanged, so a target whose upstream failed reports
// the upstream node's identity, not its own.
type NodeError struct {
	Identity string
	Err      error
}

func (e *NodeError) Error() string {
	return fmt.Sprintf("node %q: %v", e.Identity, e.Err)
}

func (e *NodeError) Unwrap() error { return e.Err }
