//go:build !linux

// Package afpacket reads frames from a Linux TPACKET_V3 ring.
package afpacket

import (
	"fmt"
	"time"

	"github.com/google/gopacket"

	"firestige.xyz/xdump/internal/core"
)

type Config struct {
	Interface    string
	SnapLen      int
	BufferSizeMB int
	PollTimeout  time.Duration
	BPFFilter    string
}

// Handle is unavailable outside Linux.
type Handle struct{}

func Open(cfg Config) (*Handle, error) {
	return nil, fmt.Errorf("%w: afpacket requires linux", core.ErrUnsupportedCaptureType)
}

func (h *Handle) ReadPacketData() ([]byte, gopacket.CaptureInfo, error) {
	return nil, gopacket.CaptureInfo{}, core.ErrNoFrame
}

func (h *Handle) Stats() (received, dropped uint, err error) {
	return 0, 0, nil
}

func (h *Handle) Close() {}
