package decoder

import (
	"fmt"

	"github.com/google/gopacket"

	"firestige.xyz/xdump/internal/core"
)

const (
	protocolTCP = 6
	protocolUDP = 17
)

// decodeTransport reads source and destination ports from a TCP or UDP header.
func (d *Decoder) decodeTransport(data []byte, protocol uint8) (src, dst uint16, err error) {
	switch protocol {
	case protocolTCP:
		if err := d.tcp.DecodeFromBytes(data, gopacket.NilDecodeFeedback); err != nil {
			return 0, 0, fmt.Errorf("%w: tcp: %v", core.ErrMalformedHeader, err)
		}
		return uint16(d.tcp.SrcPort), uint16(d.tcp.DstPort), nil
	case protocolUDP:
		if err := d.udp.DecodeFromBytes(data, gopacket.NilDecodeFeedback); err != nil {
			return 0, 0, fmt.Errorf("%w: udp: %v", core.ErrMalformedHeader, err)
		}
		return uint16(d.udp.SrcPort), uint16(d.udp.DstPort), nil
	default:
		return 0, 0, fmt.Errorf("%w: protocol %d has no ports", core.ErrMalformedHeader, protocol)
	}
}
