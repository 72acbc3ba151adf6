package wavio

import (
	"math"
	"path/filepath"
	"testing"
)

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tone.wav")

	src := make([]float64, 480)
	for i := range src {
		src[i] = 0.5 * math.Sin(2*math.Pi*440*float64(i)/48000)
	}

	if err := Save(path, src, 48000, 16); err != nil {
		t.Fatal(err)
	}

	got, rate, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}

	if rate != 48000 {
		t.Fatalf("sample rate: got %v want 48000", rate)
	}
	if len(got) != len(src) {
		t.Fatalf("length: got %d want %d", len(got), len(src))
	}

	// 16-bit quantization tolerance.
	const tol = 1.0 / 32768 * 2
	for i := range src {
		if d := math.Abs(got[i] - src[i]); d > tol {
			t.Fatalf("sample %d: got %v want %v (diff %v)", i, got[i], src[i], d)
		}
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, _, err := Load(filepath.Join(t.TempDir(), "absent.wav")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLibrary(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clip.wav")
	if err := Save(path, []float64{0.1, 0.2, 0.3}, 44100, 16); err != nil {
		t.Fatal(err)
	}

	var lib Library
	index, err := lib.Add(path)
	if err != nil {
		t.Fatal(err)
	}

	data, rate, ok := lib.Sample(index)
	if !ok || rate != 44100 || len(data) != 3 {
		t.Fatalf("sample: ok=%v rate=%v len=%d", ok, rate, len(data))
	}

	if _, _, ok := lib.Sample(99); ok {
		t.Fatal("expected miss for out-of-range index")
	}
}

func TestCaptureAppendsCopies(t *testing.T) {
	var c Capture

	block := []float64{1, 2}
	c.Append(block)
	block[0] = 99
	c.Append(block)

	got := c.Samples()
	want := []float64{1, 2, 99, 2}
	if len(got) != len(want) {
		t.Fatalf("length: got %d want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("sample %d: got %v want %v", i, got[i], want[i])
		}
	}
}
