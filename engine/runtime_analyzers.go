package engine

import (
	"fmt"
	"math"

	algofft "github.com/MeKo-Christian/algo-fft"
	"github.com/cwbudde/algo-patch/dsp/envelope"
	"github.com/cwbudde/algo-patch/graph"
	vecmath "github.com/cwbudde/algo-vecmath"
)

// meterRuntime handles the "meter" analyzer: an envelope follower
// whose control output is the level at the end of each buffer.
type meterRuntime struct {
	follower *envelope.Follower
}

func newMeterRuntime(ctx Context, node *graph.Node) (Runtime, error) {
	f, err := envelope.New(ctx.SampleRate, node.ParamOr("attackMs", 5), node.ParamOr("releaseMs", 50))
	if err != nil {
		return nil, fmt.Errorf("engine: create meter: %w", err)
	}

	return &meterRuntime{follower: f}, nil
}

func (r *meterRuntime) Configure(_ Context, p Params) error {
	r.follower.SetAttack(p.Get("attackMs", 5))
	r.follower.SetRelease(p.Get("releaseMs", 50))

	return nil
}

func (r *meterRuntime) Process(_ Context, in, out [][]float64) error {
	if in[0] == nil {
		out[0][0] = r.follower.Process(0)
		return nil
	}

	for _, x := range in[0] {
		r.follower.Process(x)
	}
	out[0][0] = r.follower.Envelope()

	return nil
}

func (r *meterRuntime) Reset() {
	r.follower.Reset()
}

// spectrumRuntime handles the "spectrum" analyzer. Samples accumulate
// in a ring; once a full frame is available every subsequent buffer
// recomputes a Hann-windowed FFT and emits the smoothed spectral
// centroid in Hz on the control output. The FFT size is fixed at
// prepare time; changing it requires a re-prepare.
type spectrumRuntime struct {
	plan *algofft.Plan[complex128]

	size      int
	smoothing float64

	win    []float64
	ring   []float64
	frame  []float64
	input  []complex128
	output []complex128
	re     []float64
	im     []float64
	mags   []float64

	write    int
	filled   int
	centroid float64
	ready    bool
}

func newSpectrumRuntime(_ Context, node *graph.Node) (Runtime, error) {
	size := fftSize(int(node.ParamOr("size", 1024)))

	plan, err := algofft.NewPlan64(size)
	if err != nil {
		return nil, fmt.Errorf("engine: create spectrum fft plan: %w", err)
	}

	r := &spectrumRuntime{
		plan:      plan,
		size:      size,
		smoothing: node.ParamOr("smoothing", 0.8),
		win:       make([]float64, size),
		ring:      make([]float64, size),
		frame:     make([]float64, size),
		input:     make([]complex128, size),
		output:    make([]complex128, size),
		re:        make([]float64, size/2+1),
		im:        make([]float64, size/2+1),
		mags:      make([]float64, size/2+1),
	}

	for i := range r.win {
		r.win[i] = 0.5 - 0.5*math.Cos(2*math.Pi*float64(i)/float64(size))
	}

	return r, nil
}

// fftSize snaps to the nearest supported power of two.
func fftSize(n int) int {
	size := 256
	for size < n && size < 8192 {
		size *= 2
	}
	return size
}

func (r *spectrumRuntime) Configure(_ Context, p Params) error {
	r.smoothing = p.Get("smoothing", 0.8)
	return nil
}

func (r *spectrumRuntime) Process(ctx Context, in, out [][]float64) error {
	if in[0] != nil {
		for _, x := range in[0] {
			r.ring[r.write] = x
			r.write++
			if r.write >= r.size {
				r.write = 0
			}
			if r.filled < r.size {
				r.filled++
			}
		}
	}

	if r.filled >= r.size {
		r.updateFrame(ctx.SampleRate)
	}

	out[0][0] = r.centroid

	return nil
}

func (r *spectrumRuntime) updateFrame(sampleRate float64) {
	read := r.write
	for i := 0; i < r.size; i++ {
		r.frame[i] = r.ring[read]
		read++
		if read >= r.size {
			read = 0
		}
	}

	vecmath.MulBlockInPlace(r.frame, r.win)
	for i, s := range r.frame {
		r.input[i] = complex(s, 0)
	}

	if err := r.plan.Forward(r.output, r.input); err != nil {
		return
	}

	for k := range r.re {
		r.re[k] = real(r.output[k])
		r.im[k] = imag(r.output[k])
	}
	vecmath.Magnitude(r.mags, r.re, r.im)

	binHz := sampleRate / float64(r.size)

	var weighted, total float64
	for k, m := range r.mags {
		weighted += float64(k) * binHz * m
		total += m
	}

	centroid := 0.0
	if total > 1e-12 {
		centroid = weighted / total
	}

	if !r.ready {
		r.centroid = centroid
		r.ready = true
		return
	}

	r.centroid = r.smoothing*r.centroid + (1-r.smoothing)*centroid
}

// Centroid returns the last smoothed spectral centroid in Hz.
func (r *spectrumRuntime) Centroid() float64 {
	return r.centroid
}

func (r *spectrumRuntime) Reset() {
	r.write = 0
	r.filled = 0
	r.centroid = 0
	r.ready = false
	zeroBlock(r.ring)
}
