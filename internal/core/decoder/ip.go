package decoder

import (
	"fmt"

	"github.com/google/gopacket"

	"firestige.xyz/xdump/internal/core"
)

// decodeIPv4 decodes the IPv4 header including options.
// fragment is true for non-initial fragments, which carry no transport header.
func (d *Decoder) decodeIPv4(data []byte) (protocol uint8, fragment bool, payload []byte, err error) {
	if err := d.ip4.DecodeFromBytes(data, gopacket.NilDecodeFeedback); err != nil {
		return 0, false, nil, fmt.Errorf("%w: ipv4: %v", core.ErrMalformedHeader, err)
	}
	return uint8(d.ip4.Protocol), d.ip4.FragOffset != 0, d.ip4.Payload, nil
}
