// Package script compiles and runs user-supplied processing code in a
// sandboxed, time-budgeted execution context.
//
// A script is an HCL document with parameter declarations and a
// per-sample processing expression:
//
//	param "drive" {
//	  min     = 1
//	  max     = 10
//	  default = 2
//	}
//
//	process = tanh(x * drive)
//
// The expression is evaluated once per sample with the variables x
// (current input sample), x1 (previous input), y1 (previous output),
// t (sample index since reset), sr (sample rate), and the declared
// parameters. Only a fixed allowlist of pure math functions is
// callable; anything else is rejected at compile time. The evaluation
// context contains no host state, so there is nothing to reach even if
// static validation were bypassed.
//
// Execution is bounded by a wall-clock budget per Process call.
// Elapsed time is polled every few samples, so an overrunning script
// is cut off within the budget plus a small bounded overhead; its
// output for that buffer is silence.
package script
