// Package core defines core data structures with zero external dependencies.
package core

import "time"

// Frame is one captured link-layer frame, header through payload, exactly as read from the wire.
// The queue hands ownership of Data from the source to the writer.
type Frame struct {
	Data      []byte
	Timestamp time.Time // Capture timestamp reported by the handle, zero if unknown
}

// Len returns the captured length of the frame.
func (f Frame) Len() int {
	return len(f.Data)
}
