// Package filter decides which decoded frames are forwarded to the writer.
package filter

import "firestige.xyz/xdump/internal/core"

// Verdict is the outcome of applying the filter to one frame.
type Verdict uint8

const (
	Accept Verdict = iota
	DropExcludedPort
	DropProtocol
	DropFragment
	DropHook
)

func (v Verdict) String() string {
	switch v {
	case Accept:
		return "accept"
	case DropExcludedPort:
		return "excluded_port"
	case DropProtocol:
		return "protocol"
	case DropFragment:
		return "fragment"
	case DropHook:
		return "hook"
	default:
		return "unknown"
	}
}

// PortSet is an immutable set of transport ports.
type PortSet map[uint16]struct{}

// NewPortSet builds a PortSet, duplicates are ignored.
func NewPortSet(ports []uint16) PortSet {
	s := make(PortSet, len(ports))
	for _, p := range ports {
		s[p] = struct{}{}
	}
	return s
}

func (s PortSet) Contains(port uint16) bool {
	_, ok := s[port]
	return ok
}

// Filter applies the port exclusion set and the accept hooks.
type Filter struct {
	excluded      PortSet
	chain         *Chain
	dropFragments bool
}

// New creates a Filter. With no hooks every frame that passes the port check is accepted.
func New(excludedPorts []uint16, hooks ...Hook) *Filter {
	return &Filter{
		excluded: NewPortSet(excludedPorts),
		chain:    NewChain(hooks...),
	}
}

// DropFragments makes Apply reject IPv4 non-initial fragments. By default they
// carry no ports to check and go straight to the accept hooks.
func (f *Filter) DropFragments(drop bool) *Filter {
	f.dropFragments = drop
	return f
}

// Apply returns the verdict for a decoded frame.
func (f *Filter) Apply(frame []byte, decoded core.DecodedFrame) Verdict {
	switch decoded.Class {
	case core.ClassOtherIP:
		return DropProtocol
	case core.ClassFragment:
		if f.dropFragments {
			return DropFragment
		}
	case core.ClassTransport:
		if f.excluded.Contains(decoded.SrcPort) || f.excluded.Contains(decoded.DstPort) {
			return DropExcludedPort
		}
	}

	if !f.chain.Accept(frame, decoded) {
		return DropHook
	}
	return Accept
}

// ExcludedPorts returns the number of excluded ports.
func (f *Filter) ExcludedPorts() int {
	return len(f.excluded)
}
