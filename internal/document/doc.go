// Package document is the in-memory, user-editable node graph: nodes with
// typed input ports, wires, literal defaults, and nested sub-networks. The
// editor shell owns and edits the document; the compiler reads it and
// produces the flat proto graph the executor runs.
package document
