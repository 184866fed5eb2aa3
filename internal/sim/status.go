package sim

import (
	"math"
	"sync/atomic"
)

// State is the stepper lifecycle.
type State int32

const (
	StateUninitialized State = iota
	StateInitialized
	StateRunning
	StateFinished
	StateCancelled
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitialized:
		return "initialized"
	case StateRunning:
		return "running"
	case StateFinished:
		return "finished"
	case StateCancelled:
		return "cancelled"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Status is the shared progress record between the stepper and whoever
// is watching it. Every field is an independent atomic; readers may see
// a progress value from one frame and a completed-frame count from the
// next, which is acceptable for reporting.
type Status struct {
	state           atomic.Int32
	progress        atomic.Uint64
	completedFrames atomic.Int64
	cancelled       atomic.Bool
	safeToExit      atomic.Bool
	errMsg          atomic.Value
}

// NewStatus returns a status record that is safe to exit and idle.
func NewStatus() *Status {
	s := &Status{}
	s.safeToExit.Store(true)
	return s
}

func (s *Status) SetState(st State) { s.state.Store(int32(st)) }
func (s *Status) State() State      { return State(s.state.Load()) }

func (s *Status) SetProgress(p float64) { s.progress.Store(math.Float64bits(p)) }
func (s *Status) Progress() float64     { return math.Float64frombits(s.progress.Load()) }

func (s *Status) CompleteFrame() int64     { return s.completedFrames.Add(1) }
func (s *Status) CompletedFrames() int64   { return s.completedFrames.Load() }
func (s *Status) ResetCompletedFrames()    { s.completedFrames.Store(0) }
func (s *Status) Cancel()                  { s.cancelled.Store(true) }
func (s *Status) Cancelled() bool          { return s.cancelled.Load() }
func (s *Status) SetSafeToExit(ok bool)    { s.safeToExit.Store(ok) }
func (s *Status) SafeToExit() bool         { return s.safeToExit.Load() }
func (s *Status) SetError(msg string)      { s.errMsg.Store(msg) }

// ErrorMessage returns the recorded failure message, or "" if none.
func (s *Status) ErrorMessage() string {
	v, _ := s.errMsg.Load().(string)
	return v
}
