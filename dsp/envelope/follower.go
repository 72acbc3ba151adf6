// Package envelope implements an exponential attack/release envelope
// follower over the rectified input signal.
package envelope

import (
	"fmt"
	"math"
)

const (
	minTimeMs = 0.01
	maxTimeMs = 10000.0
)

// Follower tracks the amplitude envelope of a signal. Attack and
// release times are converted to per-sample smoothing coefficients
// once, at construction or parameter-change time, never per sample.
type Follower struct {
	sampleRate float64
	attackMs   float64
	releaseMs  float64

	attackCoeff  float64
	releaseCoeff float64
	envelope     float64
}

// New returns a Follower for the given sample rate with attack and
// release times in milliseconds. Times outside [0.01, 10000] ms are
// clamped.
func New(sampleRate, attackMs, releaseMs float64) (*Follower, error) {
	if sampleRate <= 0 || math.IsNaN(sampleRate) || math.IsInf(sampleRate, 0) {
		return nil, fmt.Errorf("sample rate must be > 0: %f", sampleRate)
	}

	f := &Follower{sampleRate: sampleRate}
	f.SetAttack(attackMs)
	f.SetRelease(releaseMs)

	return f, nil
}

// SetAttack updates the attack time (ms) and recomputes the coefficient.
func (f *Follower) SetAttack(ms float64) {
	f.attackMs = clampTimeMs(ms)
	f.attackCoeff = timeCoeff(f.attackMs, f.sampleRate)
}

// SetRelease updates the release time (ms) and recomputes the coefficient.
func (f *Follower) SetRelease(ms float64) {
	f.releaseMs = clampTimeMs(ms)
	f.releaseCoeff = timeCoeff(f.releaseMs, f.sampleRate)
}

// Attack returns the effective attack time in milliseconds.
func (f *Follower) Attack() float64 { return f.attackMs }

// Release returns the effective release time in milliseconds.
func (f *Follower) Release() float64 { return f.releaseMs }

// Envelope returns the current envelope value.
func (f *Follower) Envelope() float64 { return f.envelope }

// Process consumes one sample and returns the updated envelope of the
// rectified input. Zero-alloc.
func (f *Follower) Process(x float64) float64 {
	source := math.Abs(x)

	if source > f.envelope {
		f.envelope = source + (f.envelope-source)*f.attackCoeff
	} else {
		f.envelope = source + (f.envelope-source)*f.releaseCoeff
	}

	return f.envelope
}

// ProcessBlock fills dst with the envelope of src. Both slices must
// have the same length. Zero-alloc.
func (f *Follower) ProcessBlock(dst, src []float64) {
	_ = dst[len(src)-1] // bounds check hint
	for i, x := range src {
		dst[i] = f.Process(x)
	}
}

// Reset clears the envelope state.
func (f *Follower) Reset() {
	f.envelope = 0
}

func clampTimeMs(ms float64) float64 {
	switch {
	case math.IsNaN(ms), ms < minTimeMs:
		return minTimeMs
	case ms > maxTimeMs:
		return maxTimeMs
	}
	return ms
}

// timeCoeff converts a time constant in ms to a one-pole smoothing
// coefficient at the given sample rate.
func timeCoeff(ms, sampleRate float64) float64 {
	return math.Exp(-1.0 / (ms * 0.001 * sampleRate))
}
