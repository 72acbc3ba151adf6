package graph

import (
	"encoding/json"
	"fmt"
)

// Resolver resolves a node type name to its Spec during
// deserialization. The engine registry implements it; script sources
// are passed through so script specs can be derived from the compiled
// parameter declarations.
type Resolver interface {
	Resolve(kind Kind, typ, script string) (Spec, error)
}

type docPort struct {
	Name     string `json:"name"`
	Signal   string `json:"signal"`
	Summing  bool   `json:"summing,omitempty"`
	Feedback bool   `json:"feedback,omitempty"`
}

type docExport struct {
	Port      docPort `json:"port"`
	Node      string  `json:"node"`
	PortIndex int     `json:"portIndex"`
}

type docNode struct {
	ID       string             `json:"id"`
	Kind     string             `json:"kind"`
	Type     string             `json:"type"`
	Params   map[string]float64 `json:"params,omitempty"`
	Position []float64          `json:"position,omitempty"`
	Script   string             `json:"script,omitempty"`

	Subgraph   *document   `json:"subgraph,omitempty"`
	SubInputs  []docExport `json:"subInputs,omitempty"`
	SubOutputs []docExport `json:"subOutputs,omitempty"`
}

type docConnection struct {
	From     string `json:"from"`
	FromPort int    `json:"fromPort"`
	To       string `json:"to"`
	ToPort   int    `json:"toPort"`
}

// document is the root JSON structure for a serialized graph.
type document struct {
	Nodes       []docNode       `json:"nodes"`
	Connections []docConnection `json:"connections"`
}

// Marshal serializes the graph to JSON. Deserializing the result with
// Unmarshal reproduces an equivalent topology and parameter set.
func Marshal(g *Graph) ([]byte, error) {
	doc := buildDocument(g)
	return json.MarshalIndent(doc, "", "  ")
}

func buildDocument(g *Graph) *document {
	doc := &document{}

	for _, n := range g.Nodes() {
		dn := docNode{
			ID:     n.id,
			Kind:   n.spec.Kind.String(),
			Type:   n.spec.Type,
			Script: n.spec.Script,
		}

		if len(n.values) > 0 {
			dn.Params = make(map[string]float64, len(n.values))
			for k, v := range n.values {
				dn.Params[k] = v
			}
		}

		if n.position != [2]float64{} {
			dn.Position = []float64{n.position[0], n.position[1]}
		}

		if n.spec.Kind == KindSubroutine {
			dn.Subgraph = buildDocument(n.spec.Subgraph)
			dn.SubInputs = buildExports(n.spec.SubInputs)
			dn.SubOutputs = buildExports(n.spec.SubOutputs)
		}

		doc.Nodes = append(doc.Nodes, dn)
	}

	for _, c := range g.conns {
		doc.Connections = append(doc.Connections, docConnection{
			From: c.From, FromPort: c.FromPort,
			To: c.To, ToPort: c.ToPort,
		})
	}

	return doc
}

func buildExports(exports []Export) []docExport {
	out := make([]docExport, len(exports))
	for i, ex := range exports {
		out[i] = docExport{
			Port: docPort{
				Name:     ex.Port.Name,
				Signal:   ex.Port.Signal.String(),
				Summing:  ex.Port.Summing,
				Feedback: ex.Port.Feedback,
			},
			Node:      ex.NodeID,
			PortIndex: ex.PortIndex,
		}
	}
	return out
}

// Unmarshal deserializes a graph, resolving node specs through the
// given resolver.
func Unmarshal(data []byte, resolver Resolver) (*Graph, error) {
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("graph: invalid document: %w", err)
	}
	return buildGraph(&doc, resolver)
}

func buildGraph(doc *document, resolver Resolver) (*Graph, error) {
	g := New()

	for _, dn := range doc.Nodes {
		spec, err := resolveDocNode(dn, resolver)
		if err != nil {
			return nil, err
		}

		n, err := g.AddNodeWithID(dn.ID, spec)
		if err != nil {
			return nil, err
		}

		for name, v := range dn.Params {
			if _, ok := n.paramDecl(name); !ok {
				continue // unknown params in the document are dropped
			}
			if _, _, err := g.SetParameter(dn.ID, name, v); err != nil {
				return nil, err
			}
		}

		if len(dn.Position) == 2 {
			n.SetPosition(dn.Position[0], dn.Position[1])
		}
	}

	for _, dc := range doc.Connections {
		if err := g.Connect(dc.From, dc.FromPort, dc.To, dc.ToPort); err != nil {
			return nil, err
		}
	}

	return g, nil
}

func resolveDocNode(dn docNode, resolver Resolver) (Spec, error) {
	kind, ok := KindByName(dn.Kind)
	if !ok {
		return Spec{}, fmt.Errorf("graph: unknown node kind %q", dn.Kind)
	}

	if kind != KindSubroutine {
		spec, err := resolver.Resolve(kind, dn.Type, dn.Script)
		if err != nil {
			return Spec{}, fmt.Errorf("graph: resolve node %q (%s): %w", dn.ID, dn.Type, err)
		}
		return spec, nil
	}

	if dn.Subgraph == nil {
		return Spec{}, fmt.Errorf("graph: subroutine node %q has no subgraph", dn.ID)
	}

	sub, err := buildGraph(dn.Subgraph, resolver)
	if err != nil {
		return Spec{}, err
	}

	subInputs, inputs, err := parseExports(dn.SubInputs)
	if err != nil {
		return Spec{}, fmt.Errorf("graph: subroutine node %q: %w", dn.ID, err)
	}
	subOutputs, outputs, err := parseExports(dn.SubOutputs)
	if err != nil {
		return Spec{}, fmt.Errorf("graph: subroutine node %q: %w", dn.ID, err)
	}

	return Spec{
		Kind:       KindSubroutine,
		Type:       dn.Type,
		Inputs:     inputs,
		Outputs:    outputs,
		Subgraph:   sub,
		SubInputs:  subInputs,
		SubOutputs: subOutputs,
	}, nil
}

func parseExports(docs []docExport) ([]Export, []Port, error) {
	exports := make([]Export, len(docs))
	ports := make([]Port, len(docs))

	for i, de := range docs {
		signal, err := signalByName(de.Port.Signal)
		if err != nil {
			return nil, nil, err
		}

		p := Port{
			Name:     de.Port.Name,
			Signal:   signal,
			Summing:  de.Port.Summing,
			Feedback: de.Port.Feedback,
		}
		exports[i] = Export{Port: p, NodeID: de.Node, PortIndex: de.PortIndex}
		ports[i] = p
	}

	return exports, ports, nil
}

func signalByName(name string) (Signal, error) {
	switch name {
	case "audio":
		return SignalAudio, nil
	case "control":
		return SignalControl, nil
	}
	return 0, fmt.Errorf("unknown signal kind %q", name)
}
