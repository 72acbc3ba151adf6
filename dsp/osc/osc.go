// Package osc provides phase-accumulator oscillators used by source
// nodes: sine, sawtooth, square, and triangle.
package osc

import (
	"fmt"
	"math"
)

// Wave selects the oscillator waveform.
type Wave int

const (
	// WaveSine is a pure sine.
	WaveSine Wave = iota
	// WaveSaw is a rising sawtooth in [-1, 1].
	WaveSaw
	// WaveSquare is a square wave in {-1, 1}.
	WaveSquare
	// WaveTriangle is a triangle in [-1, 1].
	WaveTriangle
)

// String returns the canonical waveform name.
func (w Wave) String() string {
	switch w {
	case WaveSine:
		return "sine"
	case WaveSaw:
		return "saw"
	case WaveSquare:
		return "square"
	case WaveTriangle:
		return "triangle"
	}
	return "unknown"
}

// WaveByName maps a waveform name to its Wave.
func WaveByName(name string) (Wave, bool) {
	switch name {
	case "sine":
		return WaveSine, true
	case "saw":
		return WaveSaw, true
	case "square":
		return WaveSquare, true
	case "triangle":
		return WaveTriangle, true
	}
	return 0, false
}

// Osc is a phase-accumulator oscillator. Phase advances by freq/fs per
// sample; frequency changes take effect on the next Tick.
type Osc struct {
	sampleRate float64
	freq       float64
	wave       Wave
	phase      float64
	phaseStep  float64
}

// New returns an oscillator at the given frequency.
func New(sampleRate, freq float64, wave Wave) (*Osc, error) {
	if sampleRate <= 0 || math.IsNaN(sampleRate) || math.IsInf(sampleRate, 0) {
		return nil, fmt.Errorf("sample rate must be > 0: %f", sampleRate)
	}

	o := &Osc{sampleRate: sampleRate, wave: wave}
	o.SetFreq(freq)

	return o, nil
}

// SetFreq updates the oscillator frequency, clamped to [0, Nyquist].
func (o *Osc) SetFreq(freq float64) {
	nyquist := o.sampleRate / 2
	switch {
	case math.IsNaN(freq), freq < 0:
		freq = 0
	case freq > nyquist:
		freq = nyquist
	}

	o.freq = freq
	o.phaseStep = freq / o.sampleRate
}

// Freq returns the effective frequency in Hz.
func (o *Osc) Freq() float64 { return o.freq }

// SetWave switches the waveform without disturbing the phase.
func (o *Osc) SetWave(w Wave) {
	o.wave = w
}

// Sample evaluates one waveform at a normalized phase in [0, 1).
func Sample(w Wave, phase float64) float64 {
	switch w {
	case WaveSine:
		return math.Sin(2 * math.Pi * phase)
	case WaveSaw:
		return 2*phase - 1
	case WaveSquare:
		if phase < 0.5 {
			return 1
		}
		return -1
	case WaveTriangle:
		if phase < 0.5 {
			return 4*phase - 1
		}
		return 3 - 4*phase
	}
	return 0
}

// Tick produces one sample and advances the phase. Zero-alloc.
func (o *Osc) Tick() float64 {
	p := o.phase

	o.phase += o.phaseStep
	if o.phase >= 1 {
		o.phase -= 1
	}

	return Sample(o.wave, p)
}

// Fill writes len(dst) samples into dst. Zero-alloc.
func (o *Osc) Fill(dst []float64) {
	for i := range dst {
		dst[i] = o.Tick()
	}
}

// Reset rewinds the phase to zero.
func (o *Osc) Reset() {
	o.phase = 0
}
