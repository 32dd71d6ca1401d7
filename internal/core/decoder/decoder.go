// Package decoder implements the L2-L4 header walk used by the port filter.
package decoder

import (
	"github.com/google/gopacket/layers"

	"firestige.xyz/xdump/internal/core"
)

// Decoder classifies frames far enough to read transport ports.
// It reuses its layer structs between calls and is not safe for concurrent use.
type Decoder struct {
	eth layers.Ethernet
	ip4 layers.IPv4
	tcp layers.TCP
	udp layers.UDP
}

// New creates a Decoder.
func New() *Decoder {
	return &Decoder{}
}

// Decode walks Ethernet, IPv4 and TCP/UDP headers. The frame itself is never modified.
// A malformed header at any layer returns an error wrapping core.ErrMalformedHeader.
func (d *Decoder) Decode(data []byte) (core.DecodedFrame, error) {
	var out core.DecodedFrame

	etherType, payload, err := d.decodeEthernet(data)
	if err != nil {
		return out, err
	}
	out.EtherType = etherType
	if etherType != uint16(layers.EthernetTypeIPv4) {
		out.Class = core.ClassNonIPv4
		return out, nil
	}

	protocol, fragment, payload, err := d.decodeIPv4(payload)
	if err != nil {
		return out, err
	}
	out.Protocol = protocol

	switch {
	case protocol != protocolTCP && protocol != protocolUDP:
		out.Class = core.ClassOtherIP
		return out, nil
	case fragment:
		out.Class = core.ClassFragment
		return out, nil
	}

	src, dst, err := d.decodeTransport(payload, protocol)
	if err != nil {
		return out, err
	}
	out.Class = core.ClassTransport
	out.SrcPort = src
	out.DstPort = dst
	return out, nil
}
