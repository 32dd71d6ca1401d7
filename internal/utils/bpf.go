// Package utils holds helpers shared by the capture handles.
package utils

import (
	"fmt"
	"strings"

	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"
	"golang.org/x/net/bpf"

	"firestige.xyz/xdump/internal/core"
)

// CompileBpf compiles a tcpdump-style expression for Ethernet frames into
// instructions accepted by a raw socket filter. A blank expression is an
// error; callers skip the filter instead.
func CompileBpf(expr string, snapLen int) ([]bpf.RawInstruction, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, fmt.Errorf("%w: empty BPF filter", core.ErrConfigInvalid)
	}

	compiled, err := pcap.CompileBPFFilter(layers.LinkTypeEthernet, snapLen, expr)
	if err != nil {
		return nil, fmt.Errorf("%w: BPF filter %q: %v", core.ErrConfigInvalid, expr, err)
	}

	raw := make([]bpf.RawInstruction, len(compiled))
	for i, ins := range compiled {
		raw[i] = bpf.RawInstruction{Op: ins.Code, Jt: ins.Jt, Jf: ins.Jf, K: ins.K}
	}
	if _, ok := bpf.Disassemble(raw); !ok {
		return nil, fmt.Errorf("%w: BPF filter %q compiled to unknown instructions", core.ErrConfigInvalid, expr)
	}
	return raw, nil
}
