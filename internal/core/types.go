// Package core defines core types with zero external dependencies.
package core

// FrameClass tells how far a frame could be classified by the decoder.
type FrameClass uint8

const (
	ClassNonIPv4   FrameClass = iota // Ethernet payload is not IPv4 (ARP, IPv6, VLAN, ...)
	ClassTransport                   // IPv4 carrying TCP or UDP, ports are valid
	ClassOtherIP                     // IPv4 carrying another protocol (ICMP, GRE, ...)
	ClassFragment                    // IPv4 non-initial fragment, no transport header present
)

func (c FrameClass) String() string {
	switch c {
	case ClassNonIPv4:
		return "non_ipv4"
	case ClassTransport:
		return "transport"
	case ClassOtherIP:
		return "other_ip"
	case ClassFragment:
		return "fragment"
	default:
		return "unknown"
	}
}

// DecodedFrame is the result of the L2-L4 header walk. It only carries what the port filter needs.
type DecodedFrame struct {
	Class     FrameClass
	EtherType uint16 // 0x0800=IPv4, 0x86DD=IPv6, 0x0806=ARP
	Protocol  uint8  // TCP=6, UDP=17, only set for IPv4
	SrcPort   uint16 // Only set for ClassTransport
	DstPort   uint16
}
