// Package delay implements a fixed-capacity circular delay line with
// integer and fractional (linearly interpolated) reads.
package delay

import (
	"fmt"
	"math"
)

// Line is a circular delay line. Capacity is fixed at construction;
// Write and Read never allocate.
type Line struct {
	buffer   []float64
	writePos int
}

// New returns a delay line able to express delays up to size samples.
func New(size int) (*Line, error) {
	if size <= 0 {
		return nil, fmt.Errorf("delay size must be > 0: %d", size)
	}
	return &Line{buffer: make([]float64, size)}, nil
}

// Len returns internal buffer size.
func (d *Line) Len() int {
	return len(d.buffer)
}

// Write writes one sample and advances the write position.
func (d *Line) Write(sample float64) {
	d.buffer[d.writePos] = sample
	d.writePos++
	if d.writePos >= len(d.buffer) {
		d.writePos = 0
	}
}

// Read reads an integer delay in samples relative to the most recent
// Write. delay=1 returns the last written sample; delay is clamped to
// [1, Len()].
func (d *Line) Read(delay int) float64 {
	size := len(d.buffer)
	if delay < 1 {
		delay = 1
	}
	if delay > size {
		delay = size
	}
	readPos := (d.writePos - delay + size) % size
	return d.buffer[readPos]
}

// ReadFractional reads a fractional delay with linear interpolation
// between the two adjacent samples. The delay is clamped to
// [1, Len()-1].
func (d *Line) ReadFractional(delay float64) float64 {
	size := len(d.buffer)
	if delay < 1 || math.IsNaN(delay) {
		delay = 1
	}
	maxDelay := float64(size - 1)
	if delay > maxDelay {
		delay = maxDelay
	}

	p := int(math.Floor(delay))
	t := delay - float64(p)
	if t == 0 {
		return d.Read(p)
	}

	x0 := d.Read(p)
	x1 := d.Read(p + 1)
	return x0 + t*(x1-x0)
}

// Tick writes one sample and reads the given fractional delay in the
// same step. A delay <= 1 returns the sample just written, which is
// the zero-delay passthrough case.
func (d *Line) Tick(sample, delay float64) float64 {
	d.Write(sample)
	return d.ReadFractional(delay)
}

// Reset clears line state.
func (d *Line) Reset() {
	for i := range d.buffer {
		d.buffer[i] = 0
	}
	d.writePos = 0
}
