package xtables

import (
	"fmt"

	"github.com/denniswebb/fwkeeper/internal/netfilter"
)

func printMark(mark, mask uint32) {
	if mask != 0xffffffff {
		fmt.Printf(" 0x%x/0x%x", mark, mask)
		return
	}
	fmt.Printf(" 0x%x", mark)
}

// markMatch is struct xt_mark_mtinfo1.
type markMatch struct{}

func (markMatch) Name() string    { return "mark" }
func (markMatch) Revision() uint8 { return 1 }
func (markMatch) Size() int       { return 9 }

func (markMatch) Save(_ *netfilter.IPTIP, data []byte) {
	invert(data[8] != 0)
	fmt.Print(" --mark")
	printMark(hostOrder.Uint32(data[0:]), hostOrder.Uint32(data[4:]))
}

// markTarget is struct xt_mark_tginfo2.
type markTarget struct{}

func (markTarget) Name() string    { return "MARK" }
func (markTarget) Revision() uint8 { return 2 }
func (markTarget) Size() int       { return 8 }

func (markTarget) Save(_ *netfilter.IPTIP, data []byte) {
	fmt.Printf(" --set-xmark 0x%x/0x%x", hostOrder.Uint32(data[0:]), hostOrder.Uint32(data[4:]))
}

// CONNMARK modes.
const (
	connmarkSet = iota
	connmarkSave
	connmarkRestore
)

// connmarkTarget is struct xt_connmark_tginfo1.
type connmarkTarget struct{}

func (connmarkTarget) Name() string    { return "CONNMARK" }
func (connmarkTarget) Revision() uint8 { return 1 }
func (connmarkTarget) Size() int       { return 13 }

func (connmarkTarget) Save(_ *netfilter.IPTIP, data []byte) {
	ctmark := hostOrder.Uint32(data[0:])
	ctmask := hostOrder.Uint32(data[4:])
	nfmask := hostOrder.Uint32(data[8:])
	switch mode := data[12]; mode {
	case connmarkSet:
		fmt.Printf(" --set-xmark 0x%x/0x%x", ctmark, ctmask)
	case connmarkSave:
		fmt.Printf(" --save-mark --nfmask 0x%x --ctmask 0x%x", nfmask, ctmask)
	case connmarkRestore:
		fmt.Printf(" --restore-mark --nfmask 0x%x --ctmask 0x%x", nfmask, ctmask)
	default:
		fmt.Printf(" [invalid mode %d]", mode)
	}
}
