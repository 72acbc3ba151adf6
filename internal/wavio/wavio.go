// Package wavio reads and writes mono wav files for the offline
// render path and for sample-player nodes. Multichannel files are
// downmixed on load.
package wavio

import (
	"errors"
	"fmt"
	"math"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// ErrInvalidFile is returned when a file is not a decodable wav.
var ErrInvalidFile = errors.New("wavio: not a valid wav file")

// Load reads a wav file into normalized float64 samples in [-1, 1],
// downmixing all channels, and returns the file's sample rate.
func Load(path string) ([]float64, float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("wavio: open %s: %w", path, err)
	}
	defer f.Close()

	decoder := wav.NewDecoder(f)
	if !decoder.IsValidFile() {
		return nil, 0, fmt.Errorf("%w: %s", ErrInvalidFile, path)
	}

	buf, err := decoder.FullPCMBuffer()
	if err != nil {
		return nil, 0, fmt.Errorf("wavio: decode %s: %w", path, err)
	}

	channels := buf.Format.NumChannels
	if channels < 1 {
		return nil, 0, fmt.Errorf("%w: %s: no channels", ErrInvalidFile, path)
	}

	scale := 1.0 / float64(int(1)<<(decoder.BitDepth-1))
	frames := len(buf.Data) / channels

	samples := make([]float64, frames)
	for i := range samples {
		sum := 0.0
		for c := 0; c < channels; c++ {
			sum += float64(buf.Data[i*channels+c])
		}
		samples[i] = sum * scale / float64(channels)
	}

	return samples, float64(buf.Format.SampleRate), nil
}

// Save writes mono float64 samples in [-1, 1] to a wav file. Samples
// outside the range are clipped.
func Save(path string, samples []float64, sampleRate, bitDepth int) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("wavio: create %s: %w", path, err)
	}

	encoder := wav.NewEncoder(f, sampleRate, bitDepth, 1, 1)

	peak := float64(int(1)<<(bitDepth-1) - 1)

	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: sampleRate},
		SourceBitDepth: bitDepth,
		Data:           make([]int, len(samples)),
	}
	for i, s := range samples {
		buf.Data[i] = int(math.Round(clip(s, -1, 1) * peak))
	}

	if err := encoder.Write(buf); err != nil {
		encoder.Close()
		f.Close()
		return fmt.Errorf("wavio: write %s: %w", path, err)
	}

	if err := encoder.Close(); err != nil {
		f.Close()
		return fmt.Errorf("wavio: finalize %s: %w", path, err)
	}

	return f.Close()
}

func clip(v, lo, hi float64) float64 {
	switch {
	case v < lo:
		return lo
	case v > hi:
		return hi
	}
	return v
}

type entry struct {
	data []float64
	rate float64
}

// Library holds preloaded samples addressed by index. It satisfies
// the engine's sample-provider contract.
type Library struct {
	entries []entry
}

// Add loads a wav file and appends it, returning its index.
func (l *Library) Add(path string) (int, error) {
	data, rate, err := Load(path)
	if err != nil {
		return 0, err
	}

	l.entries = append(l.entries, entry{data: data, rate: rate})

	return len(l.entries) - 1, nil
}

// Sample returns the sample data at index.
func (l *Library) Sample(index int) ([]float64, float64, bool) {
	if index < 0 || index >= len(l.entries) {
		return nil, 0, false
	}

	e := l.entries[index]

	return e.data, e.rate, true
}

// Capture accumulates processed blocks in memory, satisfying the
// engine's sample-sink contract for offline rendering.
type Capture struct {
	samples []float64
}

// Append stores a copy of the block.
func (c *Capture) Append(block []float64) {
	c.samples = append(c.samples, block...)
}

// Samples returns everything captured so far.
func (c *Capture) Samples() []float64 {
	return c.samples
}
