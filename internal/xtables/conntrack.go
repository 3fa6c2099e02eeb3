package xtables

import (
	"encoding/binary"
	"fmt"
	"math/bits"
	"net/netip"
	"strings"

	"github.com/denniswebb/fwkeeper/internal/netfilter"
)

// flagName labels one bit of a mask.
type flagName struct {
	name string
	bit  uint32
}

// joinFlags lists the names of the bits set in mask, in table order.
func joinFlags(mask uint32, names []flagName) string {
	var set []string
	for _, f := range names {
		if mask&f.bit != 0 {
			set = append(set, f.name)
		}
	}
	return strings.Join(set, ",")
}

// Connection tracking state bits of xt_state_info.statemask.
const (
	stateInvalid     = 1 << 0
	stateEstablished = 1 << 1
	stateRelated     = 1 << 2
	stateNew         = 1 << 3
	stateUntracked   = 1 << 6
)

var stateNames = []flagName{
	{"INVALID", stateInvalid},
	{"NEW", stateNew},
	{"RELATED", stateRelated},
	{"ESTABLISHED", stateEstablished},
	{"UNTRACKED", stateUntracked},
}

// stateMatch is struct xt_state_info.
type stateMatch struct{}

func (stateMatch) Name() string    { return "state" }
func (stateMatch) Revision() uint8 { return 0 }
func (stateMatch) Size() int       { return 4 }

func (stateMatch) Save(_ *netfilter.IPTIP, data []byte) {
	fmt.Print(" --state " + joinFlags(hostOrder.Uint32(data), stateNames))
}

// commentMatch is struct xt_comment_info.
type commentMatch struct{}

const commentMaxLen = 256

func (commentMatch) Name() string    { return "comment" }
func (commentMatch) Revision() uint8 { return 0 }
func (commentMatch) Size() int       { return commentMaxLen }

func (commentMatch) Save(_ *netfilter.IPTIP, data []byte) {
	fmt.Print(" --comment")
	saveString(cString(data[:commentMaxLen]))
}

// Conntrack options, as bits of match_flags and invert_flags.
const (
	ctState = 1 << iota
	ctProto
	ctOrigSrc
	ctOrigDst
	ctReplSrc
	ctReplDst
	ctStatus
	ctExpires
	ctOrigSrcPort
	ctOrigDstPort
	ctReplSrcPort
	ctReplDstPort
	ctDirection
	ctStateAlias
)

// Conntrack state bits not shared with the state match.
const (
	ctStateSNAT      = 1 << 6
	ctStateDNAT      = 1 << 7
	ctStateUntracked = 1 << 8
)

var ctStateNames = []flagName{
	{"INVALID", stateInvalid},
	{"NEW", stateNew},
	{"RELATED", stateRelated},
	{"ESTABLISHED", stateEstablished},
	{"UNTRACKED", ctStateUntracked},
	{"SNAT", ctStateSNAT},
	{"DNAT", ctStateDNAT},
}

var ctStatusNames = []flagName{
	{"EXPECTED", 1 << 0},
	{"SEEN_REPLY", 1 << 1},
	{"ASSURED", 1 << 2},
	{"CONFIRMED", 1 << 3},
}

// Tuple slots of the address and port arrays.
const (
	ctOrigSrcSlot = iota
	ctOrigDstSlot
	ctReplSrcSlot
	ctReplDstSlot
)

// conntrackInfo holds struct xt_conntrack_mtinfo1, 2 or 3 with the state and
// status masks widened and the port ranges filled in for every revision.
type conntrackInfo struct {
	addrs, masks           [4][4]byte
	expiresMin, expiresMax uint32
	l4proto                uint16
	portLow, portHigh      [4]uint16
	matchFlags, invert     uint16
	stateMask, statusMask  uint16
}

func parseConntrack(revision uint8, data []byte) conntrackInfo {
	var c conntrackInfo
	for i := range c.addrs {
		// union nf_inet_addr is 16 bytes; IPv4 uses the first four.
		copy(c.addrs[i][:], data[32*i:])
		copy(c.masks[i][:], data[32*i+16:])
	}
	c.expiresMin = hostOrder.Uint32(data[128:])
	c.expiresMax = hostOrder.Uint32(data[132:])
	c.l4proto = hostOrder.Uint16(data[136:])
	for i := range c.portLow {
		c.portLow[i] = binary.BigEndian.Uint16(data[138+2*i:])
		c.portHigh[i] = c.portLow[i]
	}
	c.matchFlags = hostOrder.Uint16(data[146:])
	c.invert = hostOrder.Uint16(data[148:])
	if revision == 1 {
		c.stateMask = uint16(data[150])
		c.statusMask = uint16(data[151])
		return c
	}
	c.stateMask = hostOrder.Uint16(data[150:])
	c.statusMask = hostOrder.Uint16(data[152:])
	if revision >= 3 {
		for i := range c.portHigh {
			c.portHigh[i] = hostOrder.Uint16(data[154+2*i:])
		}
	}
	return c
}

// option prints "[!] --name" when flag is set and reports whether it was.
func (c conntrackInfo) option(flag uint16, name string) bool {
	if c.matchFlags&flag == 0 {
		return false
	}
	invert(c.invert&flag != 0)
	fmt.Print(" --" + name)
	return true
}

// conntrackMatch serializes xt_conntrack_mtinfo revisions 1 to 3.
type conntrackMatch struct {
	revision uint8
}

func (conntrackMatch) Name() string      { return "conntrack" }
func (m conntrackMatch) Revision() uint8 { return m.revision }

func (m conntrackMatch) Size() int {
	switch m.revision {
	case 1:
		return 152
	case 2:
		return 156
	default:
		return 164
	}
}

func (m conntrackMatch) Save(_ *netfilter.IPTIP, data []byte) {
	c := parseConntrack(m.revision, data)

	// The state alias is rendered under -m conntrack, so it is saved with
	// the conntrack option name.
	if c.option(ctState, "ctstate") {
		fmt.Print(" " + joinFlags(uint32(c.stateMask), ctStateNames))
	}
	if c.option(ctProto, "ctproto") {
		fmt.Printf(" %d", c.l4proto)
	}
	for _, a := range []struct {
		flag uint16
		name string
		slot int
	}{
		{ctOrigSrc, "ctorigsrc", ctOrigSrcSlot},
		{ctOrigDst, "ctorigdst", ctOrigDstSlot},
		{ctReplSrc, "ctreplsrc", ctReplSrcSlot},
		{ctReplDst, "ctrepldst", ctReplDstSlot},
	} {
		if c.option(a.flag, a.name) {
			fmt.Print(" " + netip.AddrFrom4(c.addrs[a.slot]).String() + maskSuffix(c.masks[a.slot]))
		}
	}
	for _, p := range []struct {
		flag uint16
		name string
		slot int
	}{
		{ctOrigSrcPort, "ctorigsrcport", ctOrigSrcSlot},
		{ctOrigDstPort, "ctorigdstport", ctOrigDstSlot},
		{ctReplSrcPort, "ctreplsrcport", ctReplSrcSlot},
		{ctReplDstPort, "ctrepldstport", ctReplDstSlot},
	} {
		if c.option(p.flag, p.name) {
			fmt.Print(" " + portRange(c.portLow[p.slot], c.portHigh[p.slot]))
		}
	}
	if c.option(ctStatus, "ctstatus") {
		status := joinFlags(uint32(c.statusMask), ctStatusNames)
		if status == "" {
			status = "NONE"
		}
		fmt.Print(" " + status)
	}
	if c.option(ctExpires, "ctexpire") {
		if c.expiresMax == c.expiresMin {
			fmt.Printf(" %d", c.expiresMin)
		} else {
			fmt.Printf(" %d:%d", c.expiresMin, c.expiresMax)
		}
	}
	if c.matchFlags&ctDirection != 0 {
		if c.invert&ctDirection != 0 {
			fmt.Print(" --ctdir REPLY")
		} else {
			fmt.Print(" --ctdir ORIGINAL")
		}
	}
}

func portRange(low, high uint16) string {
	if high != low {
		return fmt.Sprintf("%d:%d", low, high)
	}
	return fmt.Sprintf("%d", low)
}

// maskSuffix returns "" for a host mask, "/len" for a prefix and the dotted
// mask otherwise.
func maskSuffix(mask [4]byte) string {
	m := binary.BigEndian.Uint32(mask[:])
	if m == 0xffffffff {
		return ""
	}
	ones := bits.LeadingZeros32(^m)
	if m<<ones == 0 {
		return fmt.Sprintf("/%d", ones)
	}
	return "/" + netip.AddrFrom4(mask).String()
}
