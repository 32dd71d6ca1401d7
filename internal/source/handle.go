package source

import (
	"fmt"
	"net"

	"github.com/google/gopacket"

	"firestige.xyz/xdump/internal/config"
	"firestige.xyz/xdump/internal/core"
	"firestige.xyz/xdump/internal/source/afpacket"
	"firestige.xyz/xdump/internal/source/file"
	"firestige.xyz/xdump/internal/source/libpcap"
)

// Handle yields raw link-layer frames. ReadPacketData reports "nothing yet"
// as core.ErrNoFrame and the end of input as io.EOF.
type Handle interface {
	gopacket.PacketDataSource
	Close()
}

// OpenHandle opens the handle kind named by cfg.Capture.Type.
// Live kinds resolve the interface first; a missing one is core.ErrInterfaceNotFound.
func OpenHandle(cfg *config.Config) (Handle, error) {
	c := cfg.Capture
	switch c.Type {
	case config.CaptureAFPacket:
		if err := lookupInterface(cfg.Interface); err != nil {
			return nil, err
		}
		h, err := afpacket.Open(afpacket.Config{
			Interface:    cfg.Interface,
			SnapLen:      c.SnapLen,
			BufferSizeMB: c.BufferSizeMB,
			PollTimeout:  c.PollTimeout,
			BPFFilter:    c.BPFFilter,
		})
		return wrap(h, err)
	case config.CapturePcap:
		if err := lookupInterface(cfg.Interface); err != nil {
			return nil, err
		}
		h, err := libpcap.Open(libpcap.Config{
			Interface:   cfg.Interface,
			SnapLen:     c.SnapLen,
			Promiscuous: c.Promiscuous,
			PollTimeout: c.PollTimeout,
			BPFFilter:   c.BPFFilter,
		})
		return wrap(h, err)
	case config.CaptureFile:
		h, err := file.Open(c.FilePath)
		return wrap(h, err)
	default:
		return nil, fmt.Errorf("%w: %q", core.ErrUnsupportedCaptureType, c.Type)
	}
}

// wrap keeps a failed open from returning a typed nil Handle.
func wrap[H Handle](h H, err error) (Handle, error) {
	if err != nil {
		return nil, err
	}
	return h, nil
}

func lookupInterface(name string) error {
	if _, err := net.InterfaceByName(name); err != nil {
		return fmt.Errorf("%w: %s: %v", core.ErrInterfaceNotFound, name, err)
	}
	return nil
}
