package decoder

import (
	"fmt"

	"github.com/google/gopacket"

	"firestige.xyz/xdump/internal/core"
)

// decodeEthernet decodes the Ethernet II header.
// Returns the EtherType and the remaining payload. VLAN tags are not unwrapped.
func (d *Decoder) decodeEthernet(data []byte) (uint16, []byte, error) {
	if err := d.eth.DecodeFromBytes(data, gopacket.NilDecodeFeedback); err != nil {
		return 0, nil, fmt.Errorf("%w: ethernet: %v", core.ErrMalformedHeader, err)
	}
	return uint16(d.eth.EthernetType), d.eth.Payload, nil
}
