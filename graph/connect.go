package graph

import "fmt"

// Connect adds a directed connection from an output port to an input
// port. Both ports must carry the same signal kind. A non-summing
// input accepts at most one connection. Unless the destination port is
// a feedback input, the edit is rejected if it would close a cycle.
// On error the graph is left unchanged.
func (g *Graph) Connect(from string, fromPort int, to string, toPort int) error {
	src, ok := g.nodes[from]
	if !ok {
		return fmt.Errorf("graph: connect: %w: %s", ErrUnknownNode, from)
	}
	dst, ok := g.nodes[to]
	if !ok {
		return fmt.Errorf("graph: connect: %w: %s", ErrUnknownNode, to)
	}

	if from == to {
		return fmt.Errorf("graph: connect: %w: %s", ErrSelfLoop, from)
	}

	if fromPort < 0 || fromPort >= len(src.spec.Outputs) {
		return fmt.Errorf("graph: connect: output %d on %s: %w", fromPort, from, ErrPortIndex)
	}
	if toPort < 0 || toPort >= len(dst.spec.Inputs) {
		return fmt.Errorf("graph: connect: input %d on %s: %w", toPort, to, ErrPortIndex)
	}

	out := src.spec.Outputs[fromPort]
	in := dst.spec.Inputs[toPort]

	if out.Signal != in.Signal {
		return fmt.Errorf("graph: connect %s:%d (%v) -> %s:%d (%v): %w",
			from, fromPort, out.Signal, to, toPort, in.Signal, ErrKindMismatch)
	}

	for _, c := range g.conns {
		if c == (Connection{From: from, FromPort: fromPort, To: to, ToPort: toPort}) {
			return nil // already connected
		}
	}

	if !in.Summing {
		for _, c := range g.conns {
			if c.To == to && c.ToPort == toPort {
				return fmt.Errorf("graph: connect: input %d on %s: %w", toPort, to, ErrPortOccupied)
			}
		}
	}

	// Cycle check: the edit is invalid if the source is already a
	// transitive successor of the destination over non-feedback edges.
	// Feedback inputs break the real-time dependency with one buffer
	// of latency, so they may close cycles.
	if !in.Feedback && g.reaches(to, from) {
		return fmt.Errorf("graph: connect %s -> %s: %w", from, to, ErrCycle)
	}

	g.conns = append(g.conns, Connection{From: from, FromPort: fromPort, To: to, ToPort: toPort})
	return nil
}

// Disconnect removes all connections into the given input port.
func (g *Graph) Disconnect(to string, toPort int) error {
	dst, ok := g.nodes[to]
	if !ok {
		return fmt.Errorf("graph: disconnect: %w: %s", ErrUnknownNode, to)
	}
	if toPort < 0 || toPort >= len(dst.spec.Inputs) {
		return fmt.Errorf("graph: disconnect: input %d on %s: %w", toPort, to, ErrPortIndex)
	}

	kept := g.conns[:0]
	for _, c := range g.conns {
		if c.To != to || c.ToPort != toPort {
			kept = append(kept, c)
		}
	}
	g.conns = kept

	return nil
}

// reaches reports whether dst is reachable from src over non-feedback
// edges, depth-first.
func (g *Graph) reaches(src, dst string) bool {
	if src == dst {
		return true
	}

	visited := make(map[string]bool, len(g.nodes))

	var dfs func(id string) bool
	dfs = func(id string) bool {
		if id == dst {
			return true
		}
		if visited[id] {
			return false
		}
		visited[id] = true

		for _, c := range g.conns {
			if c.From != id {
				continue
			}
			if g.isFeedbackEdge(c) {
				continue
			}
			if dfs(c.To) {
				return true
			}
		}
		return false
	}

	return dfs(src)
}

func (g *Graph) isFeedbackEdge(c Connection) bool {
	dst, ok := g.nodes[c.To]
	if !ok {
		return false
	}
	if c.ToPort < 0 || c.ToPort >= len(dst.spec.Inputs) {
		return false
	}
	return dst.spec.Inputs[c.ToPort].Feedback
}
