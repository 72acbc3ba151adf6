package script

import (
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/hcl/v2"
	"github.com/zclconf/go-cty/cty"
)

// ErrBudget is returned when a Process call exceeds its wall-clock
// budget. The output buffer is silence in that case.
var ErrBudget = errors.New("script: time budget exceeded")

const (
	// DefaultBudget bounds one Process call when no budget is set.
	DefaultBudget = time.Millisecond

	// budgetPollInterval is how many samples are evaluated between
	// wall-clock checks. It bounds the overshoot past the budget.
	budgetPollInterval = 32
)

// Option configures a Proc.
type Option func(*Proc)

// WithBudget sets the wall-clock budget for one Process call.
func WithBudget(d time.Duration) Option {
	return func(p *Proc) {
		if d > 0 {
			p.budget = d
		}
	}
}

// Proc is the per-node execution state of a compiled script: the
// evaluation context, previous-sample memory, and the time budget.
// A Proc must only be used from one goroutine.
type Proc struct {
	script *Script
	budget time.Duration

	vars map[string]cty.Value
	ctx  *hcl.EvalContext

	sampleRate float64
	x1, y1     float64
	t          int64
}

// NewProc returns an execution context for the script at the given
// sample rate.
func (s *Script) NewProc(sampleRate float64, opts ...Option) *Proc {
	p := &Proc{
		script:     s,
		budget:     DefaultBudget,
		sampleRate: sampleRate,
		vars:       make(map[string]cty.Value, len(inputVars)+len(s.params)),
	}
	p.ctx = &hcl.EvalContext{
		Variables: p.vars,
		Functions: sandboxFuncs,
	}

	for _, opt := range opts {
		opt(p)
	}

	p.vars["sr"] = cty.NumberFloatVal(sampleRate)
	for _, decl := range s.params {
		p.vars[decl.Name] = cty.NumberFloatVal(decl.Default)
	}

	return p
}

// Budget returns the effective per-call budget.
func (p *Proc) Budget() time.Duration { return p.budget }

// SetParam updates one declared parameter for subsequent Process calls.
// Unknown names are ignored; values are clamped to the declared range.
func (p *Proc) SetParam(name string, value float64) {
	for _, decl := range p.script.params {
		if decl.Name != name {
			continue
		}
		if value < decl.Min {
			value = decl.Min
		}
		if value > decl.Max {
			value = decl.Max
		}
		p.vars[name] = cty.NumberFloatVal(value)
		return
	}
}

// Process evaluates the script for every sample of src into dst. Both
// slices must have the same length. If evaluation faults or the time
// budget is exhausted, dst is zeroed and the error describes the
// fault; the caller decides whether to keep the node silent or fall
// back to passthrough.
func (p *Proc) Process(dst, src []float64) error {
	deadline := time.Now().Add(p.budget)

	for i, x := range src {
		if i%budgetPollInterval == 0 && i > 0 && time.Now().After(deadline) {
			zero(dst)
			return fmt.Errorf("%w after %d of %d samples", ErrBudget, i, len(src))
		}

		p.vars["x"] = cty.NumberFloatVal(x)
		p.vars["x1"] = cty.NumberFloatVal(p.x1)
		p.vars["y1"] = cty.NumberFloatVal(p.y1)
		p.vars["t"] = cty.NumberIntVal(p.t)

		v, diags := p.script.process.Value(p.ctx)
		if diags.HasErrors() {
			zero(dst)
			return &Error{Diags: diags}
		}
		if v.Type() != cty.Number {
			zero(dst)
			return fmt.Errorf("script: process returned %s, want number", v.Type().FriendlyName())
		}

		y, _ := v.AsBigFloat().Float64()
		dst[i] = y

		p.x1 = x
		p.y1 = y
		p.t++
	}

	if time.Now().After(deadline) {
		zero(dst)
		return fmt.Errorf("%w after full buffer", ErrBudget)
	}

	return nil
}

// Reset clears the previous-sample memory and the sample counter.
func (p *Proc) Reset() {
	p.x1 = 0
	p.y1 = 0
	p.t = 0
}

func zero(buf []float64) {
	for i := range buf {
		buf[i] = 0
	}
}
