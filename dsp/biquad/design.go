package biquad

import "math"

const (
	defaultQ = 1 / math.Sqrt2

	minQ = 0.025
	maxQ = 40.0

	// minFreqHz is the lowest characteristic frequency a design accepts.
	// Below this the bilinear prewarp degenerates numerically.
	minFreqHz = 0.1

	// maxFreqRatio bounds the characteristic frequency relative to the
	// sample rate. 0.499*fs keeps w0 strictly below pi.
	maxFreqRatio = 0.499
)

// Shape identifies a filter design shape.
type Shape int

const (
	// ShapeLowpass passes frequencies below the cutoff.
	ShapeLowpass Shape = iota
	// ShapeHighpass passes frequencies above the cutoff.
	ShapeHighpass
	// ShapeBandpass passes a band around the center frequency
	// (constant skirt gain).
	ShapeBandpass
	// ShapeNotch rejects a band around the center frequency.
	ShapeNotch
	// ShapeLowShelf boosts or cuts below the corner frequency.
	ShapeLowShelf
	// ShapeHighShelf boosts or cuts above the corner frequency.
	ShapeHighShelf
	// ShapePeak boosts or cuts a band around the center frequency.
	ShapePeak
)

// String returns the canonical shape name.
func (s Shape) String() string {
	switch s {
	case ShapeLowpass:
		return "lowpass"
	case ShapeHighpass:
		return "highpass"
	case ShapeBandpass:
		return "bandpass"
	case ShapeNotch:
		return "notch"
	case ShapeLowShelf:
		return "lowshelf"
	case ShapeHighShelf:
		return "highshelf"
	case ShapePeak:
		return "peak"
	}
	return "unknown"
}

// ShapeByName maps a shape name to its Shape. The second return value
// reports whether the name is known.
func ShapeByName(name string) (Shape, bool) {
	switch name {
	case "lowpass":
		return ShapeLowpass, true
	case "highpass":
		return ShapeHighpass, true
	case "bandpass":
		return ShapeBandpass, true
	case "notch":
		return ShapeNotch, true
	case "lowshelf":
		return ShapeLowShelf, true
	case "highshelf":
		return ShapeHighShelf, true
	case "peak":
		return ShapePeak, true
	}
	return 0, false
}

// Design returns coefficients for the given shape. gainDB is only used
// by the shelf and peak shapes.
func Design(shape Shape, freq, q, gainDB, sampleRate float64) Coefficients {
	switch shape {
	case ShapeLowpass:
		return Lowpass(freq, q, sampleRate)
	case ShapeHighpass:
		return Highpass(freq, q, sampleRate)
	case ShapeBandpass:
		return Bandpass(freq, q, sampleRate)
	case ShapeNotch:
		return Notch(freq, q, sampleRate)
	case ShapeLowShelf:
		return LowShelf(freq, q, gainDB, sampleRate)
	case ShapeHighShelf:
		return HighShelf(freq, q, gainDB, sampleRate)
	case ShapePeak:
		return Peak(freq, q, gainDB, sampleRate)
	}
	return Identity()
}

// Lowpass designs a lowpass biquad at freq (Hz) with quality factor q.
func Lowpass(freq, q, sampleRate float64) Coefficients {
	w0 := clampedW0(freq, sampleRate)
	q = clampedQ(q)
	cw := math.Cos(w0)
	sw := math.Sin(w0)
	alpha := sw / (2 * q)

	b1 := 1 - cw
	b0 := b1 / 2
	b2 := b0
	a0 := 1 + alpha
	a1 := -2 * cw
	a2 := 1 - alpha

	return normalize(b0, b1, b2, a0, a1, a2)
}

// Highpass designs a highpass biquad at freq (Hz) with quality factor q.
func Highpass(freq, q, sampleRate float64) Coefficients {
	w0 := clampedW0(freq, sampleRate)
	q = clampedQ(q)
	cw := math.Cos(w0)
	sw := math.Sin(w0)
	alpha := sw / (2 * q)

	b1 := -(1 + cw)
	b0 := (1 + cw) / 2
	b2 := b0
	a0 := 1 + alpha
	a1 := -2 * cw
	a2 := 1 - alpha

	return normalize(b0, b1, b2, a0, a1, a2)
}

// Bandpass designs a constant-skirt-gain bandpass biquad.
func Bandpass(freq, q, sampleRate float64) Coefficients {
	w0 := clampedW0(freq, sampleRate)
	q = clampedQ(q)
	cw := math.Cos(w0)
	sw := math.Sin(w0)
	alpha := sw / (2 * q)

	b0 := sw / 2
	b1 := 0.0
	b2 := -sw / 2
	a0 := 1 + alpha
	a1 := -2 * cw
	a2 := 1 - alpha

	return normalize(b0, b1, b2, a0, a1, a2)
}

// Notch designs a notch biquad centered at freq (Hz).
func Notch(freq, q, sampleRate float64) Coefficients {
	w0 := clampedW0(freq, sampleRate)
	q = clampedQ(q)
	cw := math.Cos(w0)
	sw := math.Sin(w0)
	alpha := sw / (2 * q)

	b0 := 1.0
	b1 := -2 * cw
	b2 := 1.0
	a0 := 1 + alpha
	a1 := -2 * cw
	a2 := 1 - alpha

	return normalize(b0, b1, b2, a0, a1, a2)
}

// Peak designs a peaking-EQ biquad with gain in dB.
func Peak(freq, q, gainDB, sampleRate float64) Coefficients {
	w0 := clampedW0(freq, sampleRate)
	q = clampedQ(q)
	cw := math.Cos(w0)
	sw := math.Sin(w0)
	alpha := sw / (2 * q)
	a := math.Pow(10, gainDB/40)

	b0 := 1 + alpha*a
	b1 := -2 * cw
	b2 := 1 - alpha*a
	a0 := 1 + alpha/a
	a1 := -2 * cw
	a2 := 1 - alpha/a

	return normalize(b0, b1, b2, a0, a1, a2)
}

// LowShelf designs a low-shelf biquad with gain in dB. q controls the
// shelf slope; defaultQ gives the classic maximally flat shelf.
func LowShelf(freq, q, gainDB, sampleRate float64) Coefficients {
	w0 := clampedW0(freq, sampleRate)
	q = clampedQ(q)
	cw := math.Cos(w0)
	sw := math.Sin(w0)
	a := math.Pow(10, gainDB/40)
	alpha := sw / (2 * q)
	beta := 2 * math.Sqrt(a) * alpha

	b0 := a * ((a + 1) - (a-1)*cw + beta)
	b1 := 2 * a * ((a - 1) - (a+1)*cw)
	b2 := a * ((a + 1) - (a-1)*cw - beta)
	a0 := (a + 1) + (a-1)*cw + beta
	a1 := -2 * ((a - 1) + (a+1)*cw)
	a2 := (a + 1) + (a-1)*cw - beta

	return normalize(b0, b1, b2, a0, a1, a2)
}

// HighShelf designs a high-shelf biquad with gain in dB.
func HighShelf(freq, q, gainDB, sampleRate float64) Coefficients {
	w0 := clampedW0(freq, sampleRate)
	q = clampedQ(q)
	cw := math.Cos(w0)
	sw := math.Sin(w0)
	a := math.Pow(10, gainDB/40)
	alpha := sw / (2 * q)
	beta := 2 * math.Sqrt(a) * alpha

	b0 := a * ((a + 1) + (a-1)*cw + beta)
	b1 := -2 * a * ((a - 1) + (a+1)*cw)
	b2 := a * ((a + 1) + (a-1)*cw - beta)
	a0 := (a + 1) - (a-1)*cw + beta
	a1 := 2 * ((a - 1) - (a+1)*cw)
	a2 := (a + 1) - (a-1)*cw - beta

	return normalize(b0, b1, b2, a0, a1, a2)
}

// clampedW0 converts freq (Hz) to the normalized angular frequency,
// clamping into the usable (0, pi) range first.
func clampedW0(freq, sampleRate float64) float64 {
	if sampleRate <= 0 || math.IsNaN(sampleRate) || math.IsInf(sampleRate, 0) {
		sampleRate = 48000
	}

	maxFreq := sampleRate * maxFreqRatio
	switch {
	case math.IsNaN(freq), freq < minFreqHz:
		freq = minFreqHz
	case freq > maxFreq:
		freq = maxFreq
	}

	return 2 * math.Pi * freq / sampleRate
}

// clampedQ bounds the quality factor; non-finite values fall back to
// the Butterworth default.
func clampedQ(q float64) float64 {
	switch {
	case math.IsNaN(q), math.IsInf(q, 0):
		return defaultQ
	case q < minQ:
		return minQ
	case q > maxQ:
		return maxQ
	}
	return q
}

func normalize(b0, b1, b2, a0, a1, a2 float64) Coefficients {
	if a0 == 0 || math.IsNaN(a0) || math.IsInf(a0, 0) {
		return Identity()
	}

	return Coefficients{
		B0: b0 / a0,
		B1: b1 / a0,
		B2: b2 / a0,
		A1: a1 / a0,
		A2: a2 / a0,
	}
}
