package xtables

import (
	"encoding/binary"
	"fmt"
	"net/netip"

	"github.com/denniswebb/fwkeeper/internal/netfilter"
)

// nf_nat_range flags.
const (
	natMapIPs         = 0x01
	natProtoSpecified = 0x02
	natProtoRandom    = 0x04
	natPersistent     = 0x08
)

// natRange is the single range of struct nf_nat_ipv4_multi_range_compat.
// Addresses and ports are in network byte order.
type natRange struct {
	flags            uint32
	minIP, maxIP     netip.Addr
	minPort, maxPort uint16
}

const natRangeSize = 20

// parseNATRange reads the range count and the first range.
func parseNATRange(data []byte) (uint32, natRange) {
	r := data[4:]
	return hostOrder.Uint32(data[0:]), natRange{
		flags:   hostOrder.Uint32(r[0:]),
		minIP:   netip.AddrFrom4([4]byte(r[4:8])),
		maxIP:   netip.AddrFrom4([4]byte(r[8:12])),
		minPort: binary.BigEndian.Uint16(r[12:]),
		maxPort: binary.BigEndian.Uint16(r[14:]),
	}
}

func (r natRange) ports() string {
	if r.maxPort != r.minPort {
		return fmt.Sprintf("%d-%d", r.minPort, r.maxPort)
	}
	return fmt.Sprintf("%d", r.minPort)
}

// natTarget serializes DNAT and SNAT.
type natTarget struct {
	name   string
	option string
}

func (t natTarget) Name() string  { return t.name }
func (natTarget) Revision() uint8 { return 0 }
func (natTarget) Size() int       { return natRangeSize }

func (t natTarget) Save(_ *netfilter.IPTIP, data []byte) {
	count, r := parseNATRange(data)
	if count == 0 {
		return
	}
	fmt.Printf(" %s ", t.option)
	if r.flags&natMapIPs != 0 {
		fmt.Print(r.minIP.String())
		if r.maxIP != r.minIP {
			fmt.Print("-" + r.maxIP.String())
		}
	}
	if r.flags&natProtoSpecified != 0 {
		fmt.Print(":" + r.ports())
	}
	if r.flags&natProtoRandom != 0 {
		fmt.Print(" --random")
	}
	if r.flags&natPersistent != 0 {
		fmt.Print(" --persistent")
	}
}

// portsTarget serializes MASQUERADE and REDIRECT, which only carry ports.
type portsTarget struct {
	name string
}

func (t portsTarget) Name() string  { return t.name }
func (portsTarget) Revision() uint8 { return 0 }
func (portsTarget) Size() int       { return natRangeSize }

func (portsTarget) Save(_ *netfilter.IPTIP, data []byte) {
	_, r := parseNATRange(data)
	if r.flags&natProtoSpecified != 0 {
		fmt.Print(" --to-ports " + r.ports())
	}
	if r.flags&natProtoRandom != 0 {
		fmt.Print(" --random")
	}
}
