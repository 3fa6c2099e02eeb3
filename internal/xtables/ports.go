package xtables

import (
	"fmt"
	"strings"

	"github.com/denniswebb/fwkeeper/internal/netfilter"
)

// xt_tcp and xt_udp inverse flags.
const (
	invSrcPort = 0x01
	invDstPort = 0x02
	invFlags   = 0x04
	invOption  = 0x08
)

var tcpFlagNames = []struct {
	name string
	flag uint8
}{
	{"FIN", 0x01},
	{"SYN", 0x02},
	{"RST", 0x04},
	{"PSH", 0x08},
	{"ACK", 0x10},
	{"URG", 0x20},
}

func savePorts(option string, lo, hi uint16, inverted bool) {
	if lo == 0 && hi == 0xffff {
		return
	}
	invert(inverted)
	if lo != hi {
		fmt.Printf(" %s %d:%d", option, lo, hi)
		return
	}
	fmt.Printf(" %s %d", option, lo)
}

func tcpFlags(flags uint8) string {
	var names []string
	for _, f := range tcpFlagNames {
		if flags&f.flag != 0 {
			names = append(names, f.name)
		}
	}
	if len(names) == 0 {
		return "NONE"
	}
	return strings.Join(names, ",")
}

// tcpMatch is struct xt_tcp.
type tcpMatch struct{}

func (tcpMatch) Name() string    { return "tcp" }
func (tcpMatch) Revision() uint8 { return 0 }
func (tcpMatch) Size() int       { return 12 }

func (tcpMatch) Save(_ *netfilter.IPTIP, data []byte) {
	inv := data[11]
	savePorts("--sport", hostOrder.Uint16(data[0:]), hostOrder.Uint16(data[2:]), inv&invSrcPort != 0)
	savePorts("--dport", hostOrder.Uint16(data[4:]), hostOrder.Uint16(data[6:]), inv&invDstPort != 0)

	if option := data[8]; option != 0 || inv&invOption != 0 {
		invert(inv&invOption != 0)
		fmt.Printf(" --tcp-option %d", option)
	}
	if mask, cmp := data[9], data[10]; mask != 0 || inv&invFlags != 0 {
		invert(inv&invFlags != 0)
		fmt.Printf(" --tcp-flags %s %s", tcpFlags(mask), tcpFlags(cmp))
	}
}

// udpMatch is struct xt_udp.
type udpMatch struct{}

func (udpMatch) Name() string    { return "udp" }
func (udpMatch) Revision() uint8 { return 0 }
func (udpMatch) Size() int       { return 9 }

func (udpMatch) Save(_ *netfilter.IPTIP, data []byte) {
	inv := data[8]
	savePorts("--sport", hostOrder.Uint16(data[0:]), hostOrder.Uint16(data[2:]), inv&invSrcPort != 0)
	savePorts("--dport", hostOrder.Uint16(data[4:]), hostOrder.Uint16(data[6:]), inv&invDstPort != 0)
}

// multiport flags.
const (
	multiportSource = iota
	multiportDestination
	multiportEither
)

const multiportMaxPorts = 15

// multiportMatch is struct xt_multiport_v1.
type multiportMatch struct{}

func (multiportMatch) Name() string    { return "multiport" }
func (multiportMatch) Revision() uint8 { return 1 }
func (multiportMatch) Size() int       { return 48 }

func (multiportMatch) Save(_ *netfilter.IPTIP, data []byte) {
	flags, count := data[0], int(data[1])
	if count > multiportMaxPorts {
		count = multiportMaxPorts
	}
	port := func(i int) uint16 { return hostOrder.Uint16(data[2+2*i:]) }
	ranged := data[32:47]

	invert(data[47] != 0)
	switch flags {
	case multiportSource:
		fmt.Print(" --sports ")
	case multiportDestination:
		fmt.Print(" --dports ")
	case multiportEither:
		fmt.Print(" --ports ")
	}
	for i := 0; i < count; i++ {
		if i > 0 {
			fmt.Print(",")
		}
		fmt.Printf("%d", port(i))
		if ranged[i] != 0 && i+1 < count {
			i++
			fmt.Printf(":%d", port(i))
		}
	}
}
