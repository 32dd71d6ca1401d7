// Package libpcap reads frames from a live libpcap handle.
package libpcap

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"

	"firestige.xyz/xdump/internal/core"
)

// Config configures a live pcap handle.
type Config struct {
	Interface   string
	SnapLen     int
	Promiscuous bool
	PollTimeout time.Duration
	BPFFilter   string
}

// DefaultPollTimeout is used when Config.PollTimeout is not positive. A
// finite timeout keeps ReadPacketData returning on a quiet interface.
const DefaultPollTimeout = 100 * time.Millisecond

// Handle wraps pcap.Handle. A read timeout is reported as core.ErrNoFrame.
type Handle struct {
	h *pcap.Handle
}

func Open(cfg Config) (*Handle, error) {
	h, err := pcap.OpenLive(cfg.Interface, int32(cfg.SnapLen), cfg.Promiscuous, pollTimeout(cfg.PollTimeout))
	if err != nil {
		return nil, fmt.Errorf("open pcap on %s: %w", cfg.Interface, err)
	}

	if lt := h.LinkType(); lt != layers.LinkTypeEthernet {
		h.Close()
		return nil, fmt.Errorf("%w: link type %s on %s", core.ErrUnsupportedCaptureType, lt, cfg.Interface)
	}

	if cfg.BPFFilter != "" {
		if err := h.SetBPFFilter(cfg.BPFFilter); err != nil {
			h.Close()
			return nil, fmt.Errorf("failed to set BPF filter: %w", err)
		}
	}
	return &Handle{h: h}, nil
}

func pollTimeout(d time.Duration) time.Duration {
	if d <= 0 {
		return DefaultPollTimeout
	}
	return d
}

func (h *Handle) ReadPacketData() ([]byte, gopacket.CaptureInfo, error) {
	data, ci, err := h.h.ReadPacketData()
	if errors.Is(err, pcap.NextErrorTimeoutExpired) {
		return nil, ci, core.ErrNoFrame
	}
	return data, ci, err
}

func (h *Handle) Close() {
	h.h.Close()
}
