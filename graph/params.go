package graph

import (
	"fmt"
	"math"
)

// RangeError reports a parameter value outside its declared bounds.
type RangeError struct {
	Node  string
	Name  string
	Value float64
	Min   float64
	Max   float64
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("param %q on %s: value %v outside [%v, %v]",
		e.Name, e.Node, e.Value, e.Min, e.Max)
}

// ParamInfo describes one parameter for the external UI.
type ParamInfo struct {
	Name    string  `json:"name"`
	Min     float64 `json:"min"`
	Max     float64 `json:"max"`
	Default float64 `json:"default"`
	Current float64 `json:"current"`
}

// Parameters lists the declared parameters of a node with their
// current values, in declaration order.
func (g *Graph) Parameters(nodeID string) ([]ParamInfo, error) {
	n, ok := g.nodes[nodeID]
	if !ok {
		return nil, fmt.Errorf("graph: %w: %s", ErrUnknownNode, nodeID)
	}

	out := make([]ParamInfo, len(n.spec.Params))
	for i, p := range n.spec.Params {
		out[i] = ParamInfo{
			Name:    p.Name,
			Min:     p.Min,
			Max:     p.Max,
			Default: p.Default,
			Current: n.values[p.Name],
		}
	}
	return out, nil
}

// SetParameter sets a parameter value, clamping it into the declared
// range. It returns the effective value and whether clamping occurred.
// Unknown node or parameter names are errors; out-of-range values are
// not.
func (g *Graph) SetParameter(nodeID, name string, value float64) (float64, bool, error) {
	n, ok := g.nodes[nodeID]
	if !ok {
		return 0, false, fmt.Errorf("graph: %w: %s", ErrUnknownNode, nodeID)
	}

	p, ok := n.paramDecl(name)
	if !ok {
		return 0, false, fmt.Errorf("graph: unknown param %q on %s", name, nodeID)
	}

	clamped := clampValue(value, p)
	n.values[name] = clamped

	return clamped, clamped != value, nil
}

// SetParameterStrict sets a parameter value, failing with a RangeError
// if the value lies outside the declared bounds. Used by callers whose
// node policy is fail-instead-of-clamp.
func (g *Graph) SetParameterStrict(nodeID, name string, value float64) error {
	n, ok := g.nodes[nodeID]
	if !ok {
		return fmt.Errorf("graph: %w: %s", ErrUnknownNode, nodeID)
	}

	p, ok := n.paramDecl(name)
	if !ok {
		return fmt.Errorf("graph: unknown param %q on %s", name, nodeID)
	}

	if math.IsNaN(value) || value < p.Min || value > p.Max {
		return &RangeError{Node: nodeID, Name: name, Value: value, Min: p.Min, Max: p.Max}
	}

	n.values[name] = value
	return nil
}

// Param returns the current value of a node parameter.
func (n *Node) Param(name string) (float64, bool) {
	v, ok := n.values[name]
	return v, ok
}

// ParamOr returns the current value of a node parameter, or def if the
// parameter is not declared.
func (n *Node) ParamOr(name string, def float64) float64 {
	if v, ok := n.values[name]; ok {
		return v
	}
	return def
}

func (n *Node) paramDecl(name string) (Param, bool) {
	for _, p := range n.spec.Params {
		if p.Name == name {
			return p, true
		}
	}
	return Param{}, false
}

func clampValue(v float64, p Param) float64 {
	switch {
	case math.IsNaN(v):
		return p.Default
	case v < p.Min:
		return p.Min
	case v > p.Max:
		return p.Max
	}
	return v
}
