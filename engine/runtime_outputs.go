package engine

import (
	"github.com/cwbudde/algo-patch/graph"
	vecmath "github.com/cwbudde/algo-vecmath"
)

// outRuntime handles the "out" node: it accumulates its input onto
// the engine's master bus. Multiple out nodes sum.
type outRuntime struct {
	gain    float64
	scratch []float64
}

func newOutRuntime(ctx Context, node *graph.Node) (Runtime, error) {
	return &outRuntime{
		gain:    node.ParamOr("gain", 1),
		scratch: make([]float64, ctx.BufferSize),
	}, nil
}

func (r *outRuntime) Configure(_ Context, p Params) error {
	r.gain = p.Get("gain", 1)
	return nil
}

func (r *outRuntime) Process(ctx Context, in, _ [][]float64) error {
	if in[0] == nil || ctx.Master == nil {
		return nil
	}

	if r.gain == 1 {
		vecmath.AddBlockInPlace(ctx.Master, in[0])
		return nil
	}

	vecmath.ScaleBlock(r.scratch, in[0], r.gain)
	vecmath.AddBlockInPlace(ctx.Master, r.scratch)

	return nil
}

// wavOutRuntime handles the "wav-out" node: a passthrough tap that
// hands every buffer to the configured capture sink. Without a sink it
// degrades to plain passthrough. Meant for offline rendering; a sink
// that blocks would break the real-time contract.
type wavOutRuntime struct {
	sink SampleSink
}

func newWavOutRuntime(_ Context, _ *graph.Node, sink SampleSink) (Runtime, error) {
	return &wavOutRuntime{sink: sink}, nil
}

func (r *wavOutRuntime) Configure(_ Context, _ Params) error {
	return nil
}

func (r *wavOutRuntime) Process(_ Context, in, out [][]float64) error {
	dst := out[0]
	if in[0] == nil {
		zeroBlock(dst)
	} else {
		copy(dst, in[0])
	}

	if r.sink != nil {
		r.sink.Append(dst)
	}

	return nil
}
