package graph

import (
	"container/heap"
	"fmt"
)

// SortedIDs returns a deterministic topological ordering of all nodes.
// Every node appears after all nodes feeding its non-feedback inputs.
// Ties between ready nodes are broken by node creation order, so the
// ordering is stable across runs and serialization round-trips.
func (g *Graph) SortedIDs() ([]string, error) {
	indegree := make(map[string]int, len(g.nodes))
	for id := range g.nodes {
		indegree[id] = 0
	}

	for _, c := range g.conns {
		if g.isFeedbackEdge(c) {
			continue
		}
		indegree[c.To]++
	}

	ready := &seqHeap{graph: g}
	heap.Init(ready)
	for id, d := range indegree {
		if d == 0 {
			heap.Push(ready, id)
		}
	}

	order := make([]string, 0, len(g.nodes))
	for ready.Len() > 0 {
		id := heap.Pop(ready).(string)
		order = append(order, id)

		for _, c := range g.conns {
			if c.From != id || g.isFeedbackEdge(c) {
				continue
			}
			indegree[c.To]--
			if indegree[c.To] == 0 {
				heap.Push(ready, c.To)
			}
		}
	}

	// A residue means a cycle slipped in; Connect prevents this, so
	// hitting it indicates corrupted internal state.
	if len(order) != len(g.nodes) {
		return nil, fmt.Errorf("graph: %w: %d of %d nodes ordered", ErrCycle, len(order), len(g.nodes))
	}

	return order, nil
}

// seqHeap is a min-heap of node IDs keyed by node creation sequence.
type seqHeap struct {
	graph *Graph
	ids   []string
}

func (h *seqHeap) Len() int { return len(h.ids) }

func (h *seqHeap) Less(i, j int) bool {
	return h.graph.nodes[h.ids[i]].seq < h.graph.nodes[h.ids[j]].seq
}

func (h *seqHeap) Swap(i, j int) { h.ids[i], h.ids[j] = h.ids[j], h.ids[i] }

func (h *seqHeap) Push(x any) { h.ids = append(h.ids, x.(string)) }

func (h *seqHeap) Pop() any {
	last := len(h.ids) - 1
	id := h.ids[last]
	h.ids = h.ids[:last]
	return id
}
