// Package graph implements the node-graph data model of the engine:
// nodes with typed ports, directed connections, structural validation,
// deterministic topological ordering, and JSON serialization.
//
// The graph is a pure topology owned by the control context. It knows
// nothing about processing; the engine package compiles a graph into an
// executable program. Nodes are stored arena-style in a map keyed by
// node ID, so traversal and serialization work the same at any
// subroutine nesting depth.
//
// Structural mutations are validated synchronously: an invalid edit is
// rejected with a wrapped sentinel error and leaves the graph
// unchanged.
package graph
