package xtables

import (
	"fmt"

	"github.com/denniswebb/fwkeeper/internal/netfilter"
)

// Route types, as bits of the source and destination masks.
var addrTypeNames = []flagName{
	{"UNSPEC", 1 << 0},
	{"UNICAST", 1 << 1},
	{"LOCAL", 1 << 2},
	{"BROADCAST", 1 << 3},
	{"ANYCAST", 1 << 4},
	{"MULTICAST", 1 << 5},
	{"BLACKHOLE", 1 << 6},
	{"UNREACHABLE", 1 << 7},
	{"PROHIBIT", 1 << 8},
	{"THROW", 1 << 9},
	{"NAT", 1 << 10},
	{"XRESOLVE", 1 << 11},
}

// xt_addrtype_info_v1 flags.
const (
	addrtypeInvertSource  = 0x1
	addrtypeInvertDest    = 0x2
	addrtypeLimitIfaceIn  = 0x4
	addrtypeLimitIfaceOut = 0x8
)

// addrtypeMatch serializes struct xt_addrtype_info (revision 0) and
// xt_addrtype_info_v1 (revision 1).
type addrtypeMatch struct {
	revision uint8
}

func (addrtypeMatch) Name() string      { return "addrtype" }
func (m addrtypeMatch) Revision() uint8 { return m.revision }

func (m addrtypeMatch) Size() int {
	if m.revision == 0 {
		return 12
	}
	return 8
}

func (m addrtypeMatch) Save(_ *netfilter.IPTIP, data []byte) {
	source := hostOrder.Uint16(data[0:])
	dest := hostOrder.Uint16(data[2:])

	var flags uint32
	if m.revision == 0 {
		if hostOrder.Uint32(data[4:]) != 0 {
			flags |= addrtypeInvertSource
		}
		if hostOrder.Uint32(data[8:]) != 0 {
			flags |= addrtypeInvertDest
		}
	} else {
		flags = hostOrder.Uint32(data[4:])
	}

	if source != 0 {
		invert(flags&addrtypeInvertSource != 0)
		fmt.Print(" --src-type " + joinFlags(uint32(source), addrTypeNames))
	}
	if dest != 0 {
		invert(flags&addrtypeInvertDest != 0)
		fmt.Print(" --dst-type " + joinFlags(uint32(dest), addrTypeNames))
	}
	if flags&addrtypeLimitIfaceIn != 0 {
		fmt.Print(" --limit-iface-in")
	}
	if flags&addrtypeLimitIfaceOut != 0 {
		fmt.Print(" --limit-iface-out")
	}
}
