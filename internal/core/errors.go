// Package core defines sentinel errors.
package core

import "errors"

var (
	// Startup errors, fatal before any task runs.
	ErrConfigInvalid          = errors.New("xdump: invalid configuration")
	ErrInvalidTime            = errors.New("xdump: invalid time of day")
	ErrInvalidWindow          = errors.New("xdump: invalid capture window")
	ErrInterfaceNotFound      = errors.New("xdump: network interface not found")
	ErrInvalidPath            = errors.New("xdump: invalid path")
	ErrUnsupportedCaptureType = errors.New("xdump: unsupported capture type")

	// ErrNoFrame is returned by a capture handle when no frame arrived before its poll timeout.
	ErrNoFrame = errors.New("xdump: no frame available")

	// Frame decoding errors
	ErrMalformedHeader = errors.New("xdump: malformed header")
)
