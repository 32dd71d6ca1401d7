package core

import "sync/atomic"

// CaptureState is the capture-enabled signal shared by the scheduler, the source and the writer.
// Only the scheduler writes it. Loads and stores are sequentially consistent.
type CaptureState struct {
	enabled atomic.Bool
}

// NewCaptureState returns a disabled state.
func NewCaptureState() *CaptureState {
	return &CaptureState{}
}

// Enabled reports whether capture is currently enabled.
func (s *CaptureState) Enabled() bool {
	return s.enabled.Load()
}

// Set stores v and reports whether the value changed.
func (s *CaptureState) Set(v bool) bool {
	return s.enabled.Swap(v) != v
}

func (s *CaptureState) Enable() bool  { return s.Set(true) }
func (s *CaptureState) Disable() bool { return s.Set(false) }
