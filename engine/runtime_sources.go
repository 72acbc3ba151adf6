package engine

import (
	"fmt"
	"math/rand"

	"github.com/cwbudde/algo-patch/dsp/osc"
	"github.com/cwbudde/algo-patch/graph"
	vecmath "github.com/cwbudde/algo-vecmath"
)

// oscRuntime handles the "osc" source. A connected control input
// overrides the freq parameter per buffer.
type oscRuntime struct {
	osc  *osc.Osc
	gain float64
}

func newOscRuntime(ctx Context, node *graph.Node) (Runtime, error) {
	o, err := osc.New(ctx.SampleRate, node.ParamOr("freq", 440), osc.Wave(int(node.ParamOr("wave", 0))))
	if err != nil {
		return nil, fmt.Errorf("engine: create oscillator: %w", err)
	}

	return &oscRuntime{osc: o, gain: node.ParamOr("gain", 1)}, nil
}

func (r *oscRuntime) Configure(_ Context, p Params) error {
	r.osc.SetFreq(p.Get("freq", 440))
	r.osc.SetWave(osc.Wave(int(p.Get("wave", 0))))
	r.gain = p.Get("gain", 1)

	return nil
}

func (r *oscRuntime) Process(_ Context, in, out [][]float64) error {
	if len(in) > 0 && in[0] != nil {
		r.osc.SetFreq(in[0][0])
	}

	dst := out[0]
	r.osc.Fill(dst)

	if r.gain != 1 {
		vecmath.ScaleBlock(dst, dst, r.gain)
	}

	return nil
}

func (r *oscRuntime) Reset() {
	r.osc.Reset()
}

type noiseRuntime struct {
	rng  *rand.Rand
	seed int64
	gain float64
}

func newNoiseRuntime(_ Context, node *graph.Node) (Runtime, error) {
	seed := int64(node.ParamOr("seed", 1))

	return &noiseRuntime{
		rng:  rand.New(rand.NewSource(seed)),
		seed: seed,
		gain: node.ParamOr("gain", 0.5),
	}, nil
}

func (r *noiseRuntime) Configure(_ Context, p Params) error {
	r.gain = p.Get("gain", 0.5)

	if seed := int64(p.Get("seed", 1)); seed != r.seed {
		r.seed = seed
		r.rng.Seed(seed)
	}

	return nil
}

func (r *noiseRuntime) Process(_ Context, _, out [][]float64) error {
	dst := out[0]
	for i := range dst {
		dst[i] = (r.rng.Float64()*2 - 1) * r.gain
	}

	return nil
}

func (r *noiseRuntime) Reset() {
	r.rng.Seed(r.seed)
}

// inputRuntime exposes the host's input bus as a source node.
type inputRuntime struct {
	gain float64
}

func newInputRuntime(_ Context, node *graph.Node) (Runtime, error) {
	return &inputRuntime{gain: node.ParamOr("gain", 1)}, nil
}

func (r *inputRuntime) Configure(_ Context, p Params) error {
	r.gain = p.Get("gain", 1)
	return nil
}

func (r *inputRuntime) Process(ctx Context, _, out [][]float64) error {
	dst := out[0]
	if ctx.Input == nil {
		zeroBlock(dst)
		return nil
	}

	vecmath.ScaleBlock(dst, ctx.Input, r.gain)

	return nil
}

// wavInRuntime plays a preloaded sample. Without a provider (or with
// a missing sample index) it stays silent rather than failing the
// whole program.
type wavInRuntime struct {
	provider SampleProvider

	data  []float64
	index int
	pos   int
	loop  bool
	gain  float64
}

func newWavInRuntime(_ Context, node *graph.Node, provider SampleProvider) (Runtime, error) {
	r := &wavInRuntime{provider: provider, index: -1}

	r.apply(Params{
		"sample": node.ParamOr("sample", 0),
		"loop":   node.ParamOr("loop", 1),
		"gain":   node.ParamOr("gain", 1),
	})

	return r, nil
}

func (r *wavInRuntime) Configure(_ Context, p Params) error {
	r.apply(p)
	return nil
}

func (r *wavInRuntime) apply(p Params) {
	r.loop = p.Get("loop", 1) >= 0.5
	r.gain = p.Get("gain", 1)

	index := int(p.Get("sample", 0))
	if index == r.index {
		return
	}

	r.index = index
	r.data = nil
	r.pos = 0

	if r.provider == nil {
		return
	}

	if data, _, ok := r.provider.Sample(index); ok {
		r.data = data
	}
}

func (r *wavInRuntime) Process(_ Context, _, out [][]float64) error {
	dst := out[0]
	if len(r.data) == 0 {
		zeroBlock(dst)
		return nil
	}

	for i := range dst {
		if r.pos >= len(r.data) {
			if !r.loop {
				zeroBlock(dst[i:])
				return nil
			}
			r.pos = 0
		}

		dst[i] = r.data[r.pos] * r.gain
		r.pos++
	}

	return nil
}

func (r *wavInRuntime) Reset() {
	r.pos = 0
}

type constRuntime struct {
	value float64
}

func newConstRuntime(_ Context, node *graph.Node) (Runtime, error) {
	return &constRuntime{value: node.ParamOr("value", 0)}, nil
}

func (r *constRuntime) Configure(_ Context, p Params) error {
	r.value = p.Get("value", 0)
	return nil
}

func (r *constRuntime) Process(_ Context, _, out [][]float64) error {
	out[0][0] = r.value
	return nil
}

// lfoRuntime produces one control value per buffer: the waveform
// sampled at the phase the buffer starts on, scaled and offset.
type lfoRuntime struct {
	freq   float64
	wave   osc.Wave
	depth  float64
	offset float64
	phase  float64
}

func newLFORuntime(_ Context, node *graph.Node) (Runtime, error) {
	return &lfoRuntime{
		freq:   node.ParamOr("freq", 1),
		wave:   osc.Wave(int(node.ParamOr("wave", 0))),
		depth:  node.ParamOr("depth", 1),
		offset: node.ParamOr("offset", 0),
	}, nil
}

func (r *lfoRuntime) Configure(_ Context, p Params) error {
	r.freq = p.Get("freq", 1)
	r.wave = osc.Wave(int(p.Get("wave", 0)))
	r.depth = p.Get("depth", 1)
	r.offset = p.Get("offset", 0)

	return nil
}

func (r *lfoRuntime) Process(ctx Context, _, out [][]float64) error {
	out[0][0] = r.offset + r.depth*osc.Sample(r.wave, r.phase)

	r.phase += r.freq * ctx.Period()
	for r.phase >= 1 {
		r.phase -= 1
	}

	return nil
}

func (r *lfoRuntime) Reset() {
	r.phase = 0
}

func zeroBlock(buf []float64) {
	for i := range buf {
		buf[i] = 0
	}
}
