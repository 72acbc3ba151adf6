// Package biquad implements second-order IIR filter sections in
// Direct Form II Transposed, together with RBJ cookbook coefficient
// design for the common filter shapes.
//
// Sections are pure state machines: construction and coefficient
// updates may allocate, processing never does. All internal state is
// float64 to bound error growth over long streams.
//
// Design functions clamp out-of-range frequency and Q values to their
// usable range instead of rejecting them, so a running stream is never
// interrupted by a bad parameter sweep.
package biquad
