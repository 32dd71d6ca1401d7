//go:build linux

// Package afpacket reads frames from a Linux TPACKET_V3 ring.
package afpacket

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/afpacket"

	"firestige.xyz/xdump/internal/core"
	"firestige.xyz/xdump/internal/utils"
)

// Config configures an AF_PACKET handle.
type Config struct {
	Interface    string
	SnapLen      int
	BufferSizeMB int
	PollTimeout  time.Duration
	BPFFilter    string
}

// Handle wraps an AF_PACKET socket. A poll timeout is reported as core.ErrNoFrame.
type Handle struct {
	tp *afpacket.TPacket
}

// Open creates the ring on cfg.Interface and attaches the optional BPF prefilter.
// The socket sees all traffic addressed to the host; promiscuous mode is left to the interface setup.
func Open(cfg Config) (*Handle, error) {
	ring, err := ringSize(cfg.BufferSizeMB, cfg.SnapLen, os.Getpagesize())
	if err != nil {
		return nil, err
	}

	tp, err := afpacket.NewTPacket(
		afpacket.OptInterface(cfg.Interface),
		afpacket.OptFrameSize(ring.frameSize),
		afpacket.OptBlockSize(ring.blockSize),
		afpacket.OptNumBlocks(ring.numBlocks),
		afpacket.OptPollTimeout(cfg.PollTimeout),
		afpacket.SocketRaw,
		afpacket.TPacketVersion3,
	)
	if err != nil {
		return nil, fmt.Errorf("open af_packet on %s: %w", cfg.Interface, err)
	}

	if strings.TrimSpace(cfg.BPFFilter) != "" {
		rawBPF, err := utils.CompileBpf(cfg.BPFFilter, cfg.SnapLen)
		if err != nil {
			tp.Close()
			return nil, err
		}
		if err := tp.SetBPF(rawBPF); err != nil {
			tp.Close()
			return nil, fmt.Errorf("attach bpf filter: %w", err)
		}
	}

	return &Handle{tp: tp}, nil
}

// ReadPacketData returns a copy of the next frame.
func (h *Handle) ReadPacketData() ([]byte, gopacket.CaptureInfo, error) {
	data, ci, err := h.tp.ReadPacketData()
	if errors.Is(err, afpacket.ErrTimeout) {
		return nil, ci, core.ErrNoFrame
	}
	return data, ci, err
}

// Stats returns the kernel ring counters.
func (h *Handle) Stats() (received, dropped uint, err error) {
	_, stats, err := h.tp.SocketStats()
	if err != nil {
		return 0, 0, err
	}
	return stats.Packets(), stats.Drops(), nil
}

func (h *Handle) Close() {
	h.tp.Close()
}
