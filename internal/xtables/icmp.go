package xtables

import (
	"fmt"

	"github.com/denniswebb/fwkeeper/internal/netfilter"
)

const icmpAnyType = 0xff

// icmpMatch is struct ipt_icmp.
type icmpMatch struct{}

func (icmpMatch) Name() string    { return "icmp" }
func (icmpMatch) Revision() uint8 { return 0 }
func (icmpMatch) Size() int       { return 4 }

func (icmpMatch) Save(_ *netfilter.IPTIP, data []byte) {
	typ, codeMin, codeMax, inv := data[0], data[1], data[2], data[3]
	invert(inv&0x01 != 0)
	if typ == icmpAnyType {
		fmt.Print(" --icmp-type any")
		return
	}
	fmt.Printf(" --icmp-type %d", typ)
	if codeMin != 0 || codeMax != 0xff {
		fmt.Printf("/%d", codeMin)
	}
}
