package graph

import (
	"errors"
	"fmt"

	"github.com/rs/xid"
)

// MaxSubgraphDepth bounds recursive subroutine nesting. A graph at
// depth 0 may contain subroutines down to this many levels.
const MaxSubgraphDepth = 8

var (
	// ErrUnknownNode is returned when a node ID does not exist.
	ErrUnknownNode = errors.New("unknown node")
	// ErrDuplicateID is returned when adding a node with an ID already in use.
	ErrDuplicateID = errors.New("duplicate node id")
	// ErrPortIndex is returned for an out-of-range port index.
	ErrPortIndex = errors.New("port index out of range")
	// ErrKindMismatch is returned when connecting ports of different signal kinds.
	ErrKindMismatch = errors.New("signal kind mismatch")
	// ErrPortOccupied is returned when a non-summing input already has a connection.
	ErrPortOccupied = errors.New("input port already connected")
	// ErrCycle is returned when a connection would close a non-feedback cycle.
	ErrCycle = errors.New("connection would create a cycle")
	// ErrSelfLoop is returned when connecting a node to itself.
	ErrSelfLoop = errors.New("connection from node to itself")
	// ErrMaxDepth is returned when subroutine nesting exceeds MaxSubgraphDepth.
	ErrMaxDepth = errors.New("subgraph nesting too deep")
	// ErrNoPorts is returned for a node spec without any ports.
	ErrNoPorts = errors.New("node spec has no ports")
)

// Kind is the node category.
type Kind int

const (
	// KindSource produces a signal and has no required audio inputs.
	KindSource Kind = iota
	// KindEffect transforms audio.
	KindEffect
	// KindAnalyzer observes a signal and emits measurements.
	KindAnalyzer
	// KindOutput delivers audio to the outside (master bus, files).
	KindOutput
	// KindControl produces or transforms control-rate signals.
	KindControl
	// KindSubroutine wraps a nested graph behind exported ports.
	KindSubroutine
	// KindScript runs user-supplied sandboxed code.
	KindScript
)

var kindNames = map[Kind]string{
	KindSource:     "source",
	KindEffect:     "effect",
	KindAnalyzer:   "analyzer",
	KindOutput:     "output",
	KindControl:    "control",
	KindSubroutine: "subroutine",
	KindScript:     "script",
}

// String returns the canonical kind name.
func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "unknown"
}

// KindByName maps a kind name back to its Kind.
func KindByName(name string) (Kind, bool) {
	for k, s := range kindNames {
		if s == name {
			return k, true
		}
	}
	return 0, false
}

// Signal is the kind of data a port carries.
type Signal int

const (
	// SignalAudio is a block of samples per buffer period.
	SignalAudio Signal = iota
	// SignalControl is one value per buffer period.
	SignalControl
)

// String returns the canonical signal name.
func (s Signal) String() string {
	switch s {
	case SignalAudio:
		return "audio"
	case SignalControl:
		return "control"
	}
	return "unknown"
}

// Port describes one input or output slot of a node.
type Port struct {
	Name   string
	Signal Signal

	// Summing marks an audio input that accepts and sums multiple
	// incoming connections.
	Summing bool

	// Feedback marks an input allowed to close a cycle. A connection
	// into a feedback port delivers the source's previous buffer, so
	// it carries exactly one buffer of latency and is excluded from
	// ordering.
	Feedback bool
}

// Param declares one named, range-bounded node parameter.
type Param struct {
	Name    string
	Min     float64
	Max     float64
	Default float64
}

// Export binds an exported port of a subroutine node to a port of a
// node inside its subgraph.
type Export struct {
	Port      Port
	NodeID    string
	PortIndex int
}

// Spec declares the immutable interface of a node: category, type
// name, ports, and parameters. The engine registry resolves type names
// to specs; the graph only stores them.
type Spec struct {
	Kind    Kind
	Type    string
	Inputs  []Port
	Outputs []Port
	Params  []Param

	// Script nodes carry their source text.
	Script string

	// Subroutine nodes carry a nested graph and port exports.
	Subgraph   *Graph
	SubInputs  []Export
	SubOutputs []Export
}

// Node is one processing unit in the graph. Its ports and parameter
// declarations are fixed by the Spec it was created from; only
// parameter values and position metadata change afterwards.
type Node struct {
	id       string
	seq      int
	spec     Spec
	values   map[string]float64
	position [2]float64
}

// ID returns the unique node ID.
func (n *Node) ID() string { return n.id }

// Kind returns the node category.
func (n *Node) Kind() Kind { return n.spec.Kind }

// Type returns the registered type name.
func (n *Node) Type() string { return n.spec.Type }

// Inputs returns the declared input ports.
func (n *Node) Inputs() []Port { return n.spec.Inputs }

// Outputs returns the declared output ports.
func (n *Node) Outputs() []Port { return n.spec.Outputs }

// Script returns the script source for script nodes, otherwise "".
func (n *Node) Script() string { return n.spec.Script }

// Subgraph returns the nested graph for subroutine nodes, otherwise nil.
func (n *Node) Subgraph() *Graph { return n.spec.Subgraph }

// Spec returns the node's full spec.
func (n *Node) Spec() Spec { return n.spec }

// Position returns the editor position metadata.
func (n *Node) Position() (x, y float64) {
	return n.position[0], n.position[1]
}

// SetPosition stores editor position metadata.
func (n *Node) SetPosition(x, y float64) {
	n.position = [2]float64{x, y}
}

// Connection is a directed edge from an output port to an input port.
type Connection struct {
	From     string
	FromPort int
	To       string
	ToPort   int
}

// Graph is the arena of nodes and connections. The zero value is not
// usable; call New.
type Graph struct {
	nodes   map[string]*Node
	created []string
	conns   []Connection
	nextSeq int
}

// New returns an empty graph.
func New() *Graph {
	return &Graph{nodes: make(map[string]*Node)}
}

// AddNode creates a node from the given spec and returns it. The node
// ID is generated.
func (g *Graph) AddNode(spec Spec) (*Node, error) {
	return g.addNode(newID(), spec)
}

// AddNodeWithID creates a node with a caller-chosen ID. Used by
// deserialization to reproduce a serialized graph exactly.
func (g *Graph) AddNodeWithID(id string, spec Spec) (*Node, error) {
	if id == "" {
		return nil, fmt.Errorf("graph: empty node id")
	}
	return g.addNode(id, spec)
}

func (g *Graph) addNode(id string, spec Spec) (*Node, error) {
	if _, exists := g.nodes[id]; exists {
		return nil, fmt.Errorf("graph: %w: %s", ErrDuplicateID, id)
	}

	if err := validateSpec(spec, 0); err != nil {
		return nil, err
	}

	n := &Node{
		id:     id,
		seq:    g.nextSeq,
		spec:   spec,
		values: make(map[string]float64, len(spec.Params)),
	}
	for _, p := range spec.Params {
		n.values[p.Name] = p.Default
	}

	g.nextSeq++
	g.nodes[id] = n
	g.created = append(g.created, id)

	return n, nil
}

// validateSpec checks a node spec for structural sanity, recursing
// into subroutine graphs with a depth budget.
func validateSpec(spec Spec, depth int) error {
	if len(spec.Inputs) == 0 && len(spec.Outputs) == 0 {
		return fmt.Errorf("graph: %w: %s", ErrNoPorts, spec.Type)
	}

	for _, p := range spec.Params {
		if p.Min > p.Max {
			return fmt.Errorf("graph: param %q: min %v > max %v", p.Name, p.Min, p.Max)
		}
	}

	if spec.Kind != KindSubroutine {
		return nil
	}

	if spec.Subgraph == nil {
		return fmt.Errorf("graph: subroutine %q has no subgraph", spec.Type)
	}

	if depth+1 > MaxSubgraphDepth {
		return fmt.Errorf("graph: %w (max %d)", ErrMaxDepth, MaxSubgraphDepth)
	}

	if len(spec.SubInputs) != len(spec.Inputs) || len(spec.SubOutputs) != len(spec.Outputs) {
		return fmt.Errorf("graph: subroutine %q export count does not match ports", spec.Type)
	}

	for _, ex := range append(append([]Export{}, spec.SubInputs...), spec.SubOutputs...) {
		inner, ok := spec.Subgraph.nodes[ex.NodeID]
		if !ok {
			return fmt.Errorf("graph: subroutine export: %w: %s", ErrUnknownNode, ex.NodeID)
		}
		_ = inner
	}

	for _, inner := range spec.Subgraph.nodes {
		if inner.spec.Kind == KindSubroutine {
			if err := validateSpec(inner.spec, depth+1); err != nil {
				return err
			}
		}
	}

	return nil
}

// Node returns the node with the given ID.
func (g *Graph) Node(id string) (*Node, bool) {
	n, ok := g.nodes[id]
	return n, ok
}

// Len returns the number of nodes.
func (g *Graph) Len() int {
	return len(g.nodes)
}

// Nodes returns all nodes in creation order.
func (g *Graph) Nodes() []*Node {
	out := make([]*Node, 0, len(g.created))
	for _, id := range g.created {
		if n, ok := g.nodes[id]; ok {
			out = append(out, n)
		}
	}
	return out
}

// Connections returns a copy of the connection set in insertion order.
func (g *Graph) Connections() []Connection {
	out := make([]Connection, len(g.conns))
	copy(out, g.conns)
	return out
}

// Incoming returns all connections into the given node.
func (g *Graph) Incoming(id string) []Connection {
	var out []Connection
	for _, c := range g.conns {
		if c.To == id {
			out = append(out, c)
		}
	}
	return out
}

// Outgoing returns all connections out of the given node.
func (g *Graph) Outgoing(id string) []Connection {
	var out []Connection
	for _, c := range g.conns {
		if c.From == id {
			out = append(out, c)
		}
	}
	return out
}

// RemoveNode disconnects all ports of the node and removes it. The
// node must not be used afterwards.
func (g *Graph) RemoveNode(id string) error {
	if _, ok := g.nodes[id]; !ok {
		return fmt.Errorf("graph: %w: %s", ErrUnknownNode, id)
	}

	kept := g.conns[:0]
	for _, c := range g.conns {
		if c.From != id && c.To != id {
			kept = append(kept, c)
		}
	}
	g.conns = kept

	delete(g.nodes, id)
	for i, cid := range g.created {
		if cid == id {
			g.created = append(g.created[:i], g.created[i+1:]...)
			break
		}
	}

	return nil
}

func newID() string {
	return xid.New().String()
}
