package engine

import (
	"fmt"

	"github.com/cwbudde/algo-patch/graph"
	"github.com/cwbudde/algo-patch/script"
)

// faultLimit is how many consecutive script faults are tolerated
// before the node degrades to passthrough for the rest of the run.
const faultLimit = 3

// scriptRuntime bridges a compiled sandbox script into the node
// contract. Faults yield silence for the buffer; after faultLimit
// consecutive faults the node passes its input through unchanged so a
// broken script cannot mute a patch indefinitely.
type scriptRuntime struct {
	proc   *script.Proc
	faults int
}

func newScriptRuntime(ctx Context, node *graph.Node) (Runtime, error) {
	compiled, err := script.Compile(node.Script())
	if err != nil {
		return nil, fmt.Errorf("engine: compile script node %s: %w", node.ID(), err)
	}

	// Half the buffer period, so one misbehaving script cannot eat the
	// entire deadline on its own.
	budget := ctx.Period() / 2

	proc := compiled.NewProc(ctx.SampleRate, script.WithBudget(budgetDuration(budget)))
	for _, p := range node.Spec().Params {
		if v, ok := node.Param(p.Name); ok {
			proc.SetParam(p.Name, v)
		}
	}

	return &scriptRuntime{proc: proc}, nil
}

func (r *scriptRuntime) Configure(_ Context, p Params) error {
	for name, v := range p {
		r.proc.SetParam(name, v)
	}

	return nil
}

func (r *scriptRuntime) Process(_ Context, in, out [][]float64) error {
	dst := out[0]
	src := in[0]
	if src == nil {
		zeroBlock(dst)
		return nil
	}

	if r.faults >= faultLimit {
		copy(dst, src)
		return nil
	}

	err := r.proc.Process(dst, src)
	if err != nil {
		r.faults++
		return err
	}

	r.faults = 0

	return nil
}

func (r *scriptRuntime) Reset() {
	r.proc.Reset()
	r.faults = 0
}
