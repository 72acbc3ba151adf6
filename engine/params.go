package engine

import "math"

// Params holds the current parameter values for one node.
type Params map[string]float64

// Get safely extracts a parameter, returning def if missing or invalid.
func (p Params) Get(key string, def float64) float64 {
	if p == nil {
		return def
	}

	v, ok := p[key]
	if !ok || math.IsNaN(v) || math.IsInf(v, 0) {
		return def
	}

	return v
}
