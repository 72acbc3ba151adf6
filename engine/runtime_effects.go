package engine

import (
	"fmt"

	"github.com/cwbudde/algo-patch/dsp/biquad"
	"github.com/cwbudde/algo-patch/dsp/delay"
	"github.com/cwbudde/algo-patch/graph"
	vecmath "github.com/cwbudde/algo-vecmath"
)

// filterRuntime handles the "filter" effect with one biquad section.
// Coefficients are redesigned only when a shaping parameter actually
// changes, never per sample.
type filterRuntime struct {
	section *biquad.Section

	shape  biquad.Shape
	freq   float64
	q      float64
	gainDB float64
}

func newFilterRuntime(ctx Context, node *graph.Node) (Runtime, error) {
	r := &filterRuntime{
		shape:  biquad.Shape(int(node.ParamOr("shape", 0))),
		freq:   node.ParamOr("freq", 1000),
		q:      node.ParamOr("q", 0.7071),
		gainDB: node.ParamOr("gainDb", 0),
	}
	r.section = biquad.NewSection(biquad.Design(r.shape, r.freq, r.q, r.gainDB, ctx.SampleRate))

	return r, nil
}

func (r *filterRuntime) Configure(ctx Context, p Params) error {
	shape := biquad.Shape(int(p.Get("shape", 0)))
	freq := p.Get("freq", 1000)
	q := p.Get("q", 0.7071)
	gainDB := p.Get("gainDb", 0)

	if shape == r.shape && freq == r.freq && q == r.q && gainDB == r.gainDB {
		return nil
	}

	r.shape, r.freq, r.q, r.gainDB = shape, freq, q, gainDB
	r.section.SetCoefficients(biquad.Design(shape, freq, q, gainDB, ctx.SampleRate))

	return nil
}

func (r *filterRuntime) Process(ctx Context, in, out [][]float64) error {
	dst := out[0]
	if in[0] == nil {
		zeroBlock(dst)
		return nil
	}

	if len(in) > 1 && in[1] != nil && in[1][0] != r.freq {
		r.freq = in[1][0]
		r.section.SetCoefficients(biquad.Design(r.shape, r.freq, r.q, r.gainDB, ctx.SampleRate))
	}

	r.section.ProcessBlockTo(dst, in[0])

	return nil
}

func (r *filterRuntime) Reset() {
	r.section.Reset()
}

const maxDelayMs = 2000

// delayRuntime handles the "delay" effect: a feedback echo inside one
// node, wet/dry mixed. The echo loop reads before it writes, so the
// effective minimum delay is one sample.
type delayRuntime struct {
	line *delay.Line

	delaySamples float64
	feedback     float64
	mix          float64
}

func newDelayRuntime(ctx Context, node *graph.Node) (Runtime, error) {
	size := int(maxDelayMs / 1000.0 * ctx.SampleRate)

	line, err := delay.New(size)
	if err != nil {
		return nil, fmt.Errorf("engine: create delay line: %w", err)
	}

	r := &delayRuntime{line: line}
	r.apply(ctx, Params{
		"timeMs":   node.ParamOr("timeMs", 250),
		"feedback": node.ParamOr("feedback", 0.3),
		"mix":      node.ParamOr("mix", 0.5),
	})

	return r, nil
}

func (r *delayRuntime) Configure(ctx Context, p Params) error {
	r.apply(ctx, p)
	return nil
}

func (r *delayRuntime) apply(ctx Context, p Params) {
	r.delaySamples = p.Get("timeMs", 250) / 1000 * ctx.SampleRate
	r.feedback = p.Get("feedback", 0.3)
	r.mix = p.Get("mix", 0.5)
}

func (r *delayRuntime) Process(_ Context, in, out [][]float64) error {
	dst := out[0]
	if in[0] == nil {
		zeroBlock(dst)
		return nil
	}

	src := in[0]
	for i, x := range src {
		wet := r.line.ReadFractional(r.delaySamples)
		r.line.Write(x + wet*r.feedback)
		dst[i] = x*(1-r.mix) + wet*r.mix
	}

	return nil
}

func (r *delayRuntime) Reset() {
	r.line.Reset()
}

// feedbackDelayRuntime handles the "fbdelay" effect, the one node type
// allowed to close a graph cycle. Its fb port receives the previous
// buffer of whatever feeds it, so the loop always carries at least one
// buffer of latency on top of the line's own delay.
type feedbackDelayRuntime struct {
	line *delay.Line

	delaySamples float64
	feedback     float64
}

func newFeedbackDelayRuntime(ctx Context, node *graph.Node) (Runtime, error) {
	size := int(maxDelayMs / 1000.0 * ctx.SampleRate)

	line, err := delay.New(size)
	if err != nil {
		return nil, fmt.Errorf("engine: create feedback delay line: %w", err)
	}

	return &feedbackDelayRuntime{
		line:         line,
		delaySamples: node.ParamOr("timeMs", 250) / 1000 * ctx.SampleRate,
		feedback:     node.ParamOr("feedback", 0.5),
	}, nil
}

func (r *feedbackDelayRuntime) Configure(ctx Context, p Params) error {
	r.delaySamples = p.Get("timeMs", 250) / 1000 * ctx.SampleRate
	r.feedback = p.Get("feedback", 0.5)

	return nil
}

func (r *feedbackDelayRuntime) Process(_ Context, in, out [][]float64) error {
	dst := out[0]

	for i := range dst {
		x := 0.0
		if in[0] != nil {
			x = in[0][i]
		}
		if in[1] != nil {
			x += in[1][i] * r.feedback
		}

		dst[i] = r.line.Tick(x, r.delaySamples)
	}

	return nil
}

func (r *feedbackDelayRuntime) Reset() {
	r.line.Reset()
}

// gainRuntime handles the "gain" effect. A connected control input
// overrides the gain parameter per buffer.
type gainRuntime struct {
	gain float64
}

func newGainRuntime(_ Context, node *graph.Node) (Runtime, error) {
	return &gainRuntime{gain: node.ParamOr("gain", 1)}, nil
}

func (r *gainRuntime) Configure(_ Context, p Params) error {
	r.gain = p.Get("gain", 1)
	return nil
}

func (r *gainRuntime) Process(_ Context, in, out [][]float64) error {
	dst := out[0]
	if in[0] == nil {
		zeroBlock(dst)
		return nil
	}

	g := r.gain
	if len(in) > 1 && in[1] != nil {
		g = in[1][0]
	}

	vecmath.ScaleBlock(dst, in[0], g)

	return nil
}
