// Package engine runs a node graph against a fixed-size audio buffer.
//
// The engine compiles a graph into an immutable program: subroutine
// nodes are flattened, every node gets a runtime built from the
// registry, and all working buffers are allocated up front. After
// Prepare no allocation happens on the processing path.
//
// Two execution contexts share the engine. The control context edits
// the graph, compiles programs, changes parameters, and drains events.
// The real-time context calls ProcessBuffer once per period; it never
// blocks, logs, or allocates. Hand-off between the two is a published
// program snapshot plus a bounded parameter queue, both consumed only
// at buffer boundaries.
package engine
