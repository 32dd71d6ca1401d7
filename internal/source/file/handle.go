// Package file replays frames from a pcap or pcapng file.
package file

import (
	"bufio"
	"bytes"
	"fmt"
	"os"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"

	"firestige.xyz/xdump/internal/core"
)

// pcapng section header block type
var ngMagic = []byte{0x0a, 0x0d, 0x0d, 0x0a}

// Handle reads an offline capture. io.EOF marks the end of the file.
type Handle struct {
	f      *os.File
	source gopacket.PacketDataSource
}

// Open opens path and detects classic pcap or pcapng from its magic.
// Only Ethernet captures are accepted.
func Open(path string) (*Handle, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open pcap file %s: %w", path, err)
	}

	r := bufio.NewReader(f)
	magic, err := r.Peek(4)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to read pcap file %s: %w", path, err)
	}

	var (
		source   gopacket.PacketDataSource
		linkType layers.LinkType
	)
	if bytes.Equal(magic, ngMagic) {
		ng, err := pcapgo.NewNgReader(r, pcapgo.DefaultNgReaderOptions)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to parse pcapng file %s: %w", path, err)
		}
		source, linkType = ng, ng.LinkType()
	} else {
		pr, err := pcapgo.NewReader(r)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to parse pcap file %s: %w", path, err)
		}
		source, linkType = pr, pr.LinkType()
	}

	if linkType != layers.LinkTypeEthernet {
		f.Close()
		return nil, fmt.Errorf("%w: link type %s in %s", core.ErrUnsupportedCaptureType, linkType, path)
	}
	return &Handle{f: f, source: source}, nil
}

func (h *Handle) ReadPacketData() ([]byte, gopacket.CaptureInfo, error) {
	return h.source.ReadPacketData()
}

func (h *Handle) Close() {
	h.f.Close()
}
