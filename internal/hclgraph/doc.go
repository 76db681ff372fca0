// Package hclgraph loads .graph documents written in HCL into editable
// document graphs: node blocks with wired or literal inputs, and network
// blocks defining reusable sub-graphs with positional parameters. The
// format is a convenience surface for the CLI and tests; the engine itself
// works on in-memory documents.
package hclgraph
