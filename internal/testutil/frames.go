// Package testutil builds synthetic Ethernet frames for tests.
package testutil

import (
	"net"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

var (
	srcMAC = net.HardwareAddr{0xAA, 0xBB, 0xCC, 0xDD, 0xEE, 0xFF}
	dstMAC = net.HardwareAddr{0x00, 0x11, 0x22, 0x33, 0x44, 0x55}
	srcIP  = net.IP{192, 168, 1, 1}
	dstIP  = net.IP{192, 168, 1, 2}
)

func ethernet(t layers.EthernetType) *layers.Ethernet {
	return &layers.Ethernet{SrcMAC: srcMAC, DstMAC: dstMAC, EthernetType: t}
}

func ipv4(proto layers.IPProtocol) *layers.IPv4 {
	return &layers.IPv4{
		Version:  4,
		IHL:      5,
		TTL:      64,
		Protocol: proto,
		SrcIP:    srcIP,
		DstIP:    dstIP,
	}
}

func serialize(ls ...gopacket.SerializableLayer) []byte {
	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	if err := gopacket.SerializeLayers(buf, opts, ls...); err != nil {
		panic(err)
	}
	out := make([]byte, len(buf.Bytes()))
	copy(out, buf.Bytes())
	return out
}

// TCPFrame returns an Ethernet/IPv4/TCP frame.
func TCPFrame(src, dst uint16, payload []byte) []byte {
	ip := ipv4(layers.IPProtocolTCP)
	tcp := &layers.TCP{
		SrcPort: layers.TCPPort(src),
		DstPort: layers.TCPPort(dst),
		Seq:     1,
		Window:  1024,
		ACK:     true,
		PSH:     true,
	}
	if err := tcp.SetNetworkLayerForChecksum(ip); err != nil {
		panic(err)
	}
	return serialize(ethernet(layers.EthernetTypeIPv4), ip, tcp, gopacket.Payload(payload))
}

// UDPFrame returns an Ethernet/IPv4/UDP frame.
func UDPFrame(src, dst uint16, payload []byte) []byte {
	ip := ipv4(layers.IPProtocolUDP)
	udp := &layers.UDP{SrcPort: layers.UDPPort(src), DstPort: layers.UDPPort(dst)}
	if err := udp.SetNetworkLayerForChecksum(ip); err != nil {
		panic(err)
	}
	return serialize(ethernet(layers.EthernetTypeIPv4), ip, udp, gopacket.Payload(payload))
}

// ICMPFrame returns an Ethernet/IPv4/ICMP echo request.
func ICMPFrame() []byte {
	icmp := &layers.ICMPv4{TypeCode: layers.CreateICMPv4TypeCode(layers.ICMPv4TypeEchoRequest, 0), Id: 1, Seq: 1}
	return serialize(ethernet(layers.EthernetTypeIPv4), ipv4(layers.IPProtocolICMPv4), icmp)
}

// ARPFrame returns an Ethernet/ARP request.
func ARPFrame() []byte {
	arp := &layers.ARP{
		AddrType:          layers.LinkTypeEthernet,
		Protocol:          layers.EthernetTypeIPv4,
		HwAddressSize:     6,
		ProtAddressSize:   4,
		Operation:         layers.ARPRequest,
		SourceHwAddress:   srcMAC,
		SourceProtAddress: srcIP.To4(),
		DstHwAddress:      make([]byte, 6),
		DstProtAddress:    dstIP.To4(),
	}
	return serialize(ethernet(layers.EthernetTypeARP), arp)
}

// FragmentFrame returns a non-initial IPv4 fragment whose protocol field says TCP.
func FragmentFrame() []byte {
	ip := ipv4(layers.IPProtocolTCP)
	ip.FragOffset = 185
	return serialize(ethernet(layers.EthernetTypeIPv4), ip, gopacket.Payload(make([]byte, 32)))
}

// TruncatedTCPFrame returns an IPv4 frame that claims TCP but carries only n transport bytes.
func TruncatedTCPFrame(n int) []byte {
	return serialize(ethernet(layers.EthernetTypeIPv4), ipv4(layers.IPProtocolTCP), gopacket.Payload(make([]byte, n)))
}

// TruncatedUDPFrame returns an IPv4 frame that claims UDP but carries only n transport bytes.
func TruncatedUDPFrame(n int) []byte {
	return serialize(ethernet(layers.EthernetTypeIPv4), ipv4(layers.IPProtocolUDP), gopacket.Payload(make([]byte, n)))
}
