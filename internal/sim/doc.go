// Package sim drives the per-frame simulation loop: it feeds geometry
// and parameters to the external engine, writes frame outputs, and asks
// the checkpoint manager to persist state at every frame boundary.
//
// The stepper is a cooperative state machine. Each Step call runs
// exactly one frame and returns; cancellation is polled only between
// engine calls and output writes, never mid-write, so honoring a cancel
// is bounded by one frame's work. The shared Status record is the only
// state visible to other goroutines and every field on it is atomic.
package sim
