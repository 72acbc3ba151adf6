package biquad

import (
	"math"
	"math/cmplx"
	"testing"
)

// responseAt evaluates |H(e^jw)| for the section at freq (Hz).
func responseAt(c Coefficients, freq, sampleRate float64) float64 {
	w := 2 * math.Pi * freq / sampleRate
	z := cmplx.Exp(complex(0, -w))

	num := complex(c.B0, 0) + complex(c.B1, 0)*z + complex(c.B2, 0)*z*z
	den := complex(1, 0) + complex(c.A1, 0)*z + complex(c.A2, 0)*z*z

	return cmplx.Abs(num / den)
}

func TestLowpassResponse(t *testing.T) {
	c := Lowpass(1000, defaultQ, 48000)

	if dc := responseAt(c, 1, 48000); !approxEqual(dc, 1, 1e-3) {
		t.Fatalf("DC gain: got %v want ~1", dc)
	}

	if hf := responseAt(c, 20000, 48000); hf > 0.01 {
		t.Fatalf("gain at 20 kHz too high: %v", hf)
	}

	cut := responseAt(c, 1000, 48000)
	if !approxEqual(cut, defaultQ, 0.01) {
		t.Fatalf("cutoff gain: got %v want ~%v", cut, defaultQ)
	}
}

func TestHighpassResponse(t *testing.T) {
	c := Highpass(1000, defaultQ, 48000)

	if dc := responseAt(c, 1, 48000); dc > 0.001 {
		t.Fatalf("DC gain: got %v want ~0", dc)
	}

	if hf := responseAt(c, 20000, 48000); !approxEqual(hf, 1, 0.01) {
		t.Fatalf("gain at 20 kHz: got %v want ~1", hf)
	}
}

func TestNotchResponse(t *testing.T) {
	c := Notch(2000, 4, 48000)

	if center := responseAt(c, 2000, 48000); center > 0.01 {
		t.Fatalf("gain at notch center: got %v want ~0", center)
	}

	if far := responseAt(c, 100, 48000); !approxEqual(far, 1, 0.05) {
		t.Fatalf("gain far from notch: got %v want ~1", far)
	}
}

func TestPeakGain(t *testing.T) {
	const gainDB = 6.0

	c := Peak(1000, 1, gainDB, 48000)

	want := math.Pow(10, gainDB/20)
	if got := responseAt(c, 1000, 48000); !approxEqual(got, want, 0.05) {
		t.Fatalf("peak gain: got %v want ~%v", got, want)
	}
}

func TestShelfGains(t *testing.T) {
	low := LowShelf(500, defaultQ, 12, 48000)
	if got := responseAt(low, 10, 48000); !approxEqual(got, math.Pow(10, 12.0/20), 0.1) {
		t.Fatalf("low shelf DC gain: got %v", got)
	}

	high := HighShelf(5000, defaultQ, -12, 48000)
	if got := responseAt(high, 22000, 48000); !approxEqual(got, math.Pow(10, -12.0/20), 0.05) {
		t.Fatalf("high shelf HF gain: got %v", got)
	}
}

func TestDesignClampsOutOfRange(t *testing.T) {
	cases := []struct {
		name string
		c    Coefficients
	}{
		{"negative freq", Lowpass(-100, defaultQ, 48000)},
		{"freq above nyquist", Lowpass(96000, defaultQ, 48000)},
		{"zero q", Lowpass(1000, 0, 48000)},
		{"nan q", Lowpass(1000, math.NaN(), 48000)},
		{"nan freq", Lowpass(math.NaN(), defaultQ, 48000)},
		{"zero sample rate", Lowpass(1000, defaultQ, 0)},
	}

	for _, tc := range cases {
		for _, v := range []float64{tc.c.B0, tc.c.B1, tc.c.B2, tc.c.A1, tc.c.A2} {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				t.Fatalf("%s: non-finite coefficient %+v", tc.name, tc.c)
			}
		}
	}
}

func TestShapeByName(t *testing.T) {
	for _, shape := range []Shape{
		ShapeLowpass, ShapeHighpass, ShapeBandpass, ShapeNotch,
		ShapeLowShelf, ShapeHighShelf, ShapePeak,
	} {
		got, ok := ShapeByName(shape.String())
		if !ok || got != shape {
			t.Fatalf("round-trip %v: got %v ok=%v", shape, got, ok)
		}
	}

	if _, ok := ShapeByName("comb"); ok {
		t.Fatal("unknown shape name accepted")
	}
}
