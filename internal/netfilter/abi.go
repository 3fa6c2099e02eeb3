package netfilter

// Socket options of the ip_tables kernel module (linux/netfilter_ipv4/ip_tables.h).
const (
	iptBaseCtl = 64

	IPT_SO_SET_REPLACE      = iptBaseCtl
	IPT_SO_SET_ADD_COUNTERS = iptBaseCtl + 1
	IPT_SO_GET_INFO         = iptBaseCtl
	IPT_SO_GET_ENTRIES      = iptBaseCtl + 1
)

// Name and field lengths.
const (
	XT_TABLE_MAXNAMELEN     = 32
	XT_EXTENSION_MAXNAMELEN = 29
	XT_FUNCTION_MAXNAMELEN  = 30
	IFNAMSIZ                = 16
)

// Netfilter hooks, in the order the kernel lays out built-in chains.
const (
	HookPrerouting = iota
	HookInput
	HookForward
	HookOutput
	HookPostrouting

	NumHooks

	// HookNone marks a user-defined chain.
	HookNone = -1
)

// hookNames maps a hook to the name of its built-in chain.
var hookNames = [NumHooks]string{
	HookPrerouting:  "PREROUTING",
	HookInput:       "INPUT",
	HookForward:     "FORWARD",
	HookOutput:      "OUTPUT",
	HookPostrouting: "POSTROUTING",
}

// HookName returns the built-in chain name for hook, or "" when hook is out of range.
func HookName(hook int) string {
	if hook < 0 || hook >= NumHooks {
		return ""
	}
	return hookNames[hook]
}

// HookByName returns the hook of a built-in chain name.
func HookByName(name string) (int, bool) {
	for hook, n := range hookNames {
		if n == name {
			return hook, true
		}
	}
	return HookNone, false
}

// ipt_ip flags.
const (
	IPT_F_FRAG = 0x01
	IPT_F_GOTO = 0x02
)

// ipt_ip inverse flags.
const (
	IPT_INV_VIA_IN  = 0x01
	IPT_INV_VIA_OUT = 0x02
	IPT_INV_TOS     = 0x04
	IPT_INV_SRCIP   = 0x08
	IPT_INV_DSTIP   = 0x10
	IPT_INV_FRAG    = 0x20
	XT_INV_PROTO    = 0x40
)

// Netfilter verdicts (linux/netfilter.h).
const (
	NF_DROP   = 0
	NF_ACCEPT = 1
	NF_STOLEN = 2
	NF_QUEUE  = 3
	NF_REPEAT = 4
)

// Standard target verdicts as stored in xt_standard_target. Non-negative
// values are byte offsets of the jump destination within the table.
const (
	VerdictDrop   int32 = -NF_DROP - 1
	VerdictAccept int32 = -NF_ACCEPT - 1
	VerdictQueue  int32 = -NF_QUEUE - 1
	VerdictReturn int32 = -NF_REPEAT - 1
)

// Labels used in the save format for the standard verdicts.
const (
	LabelAccept = "ACCEPT"
	LabelDrop   = "DROP"
	LabelQueue  = "QUEUE"
	LabelReturn = "RETURN"
)

// errorTargetName names the target that heads user chains and terminates a table.
const errorTargetName = "ERROR"

// Structure sizes on 64-bit Linux.
const (
	SizeOfIPTIP             = 84
	SizeOfIPTEntry          = 112
	SizeOfXTEntryMatch      = 32
	SizeOfXTEntryTarget     = 32
	SizeOfXTStandardTarget  = 40
	SizeOfXTErrorTarget     = 64
	SizeOfIPTGetinfo        = 84
	SizeOfIPTGetEntries     = 40
	SizeOfIPTReplace        = 96
	SizeOfXTCounters        = 16
	entryTargetOffsetField  = 88
	entryNextOffsetField    = 90
	entryCountersField      = 96
	entryNFCacheField       = 84
	entryComeFromField      = 92
	matchNameField          = 2
	matchRevisionField      = matchNameField + XT_EXTENSION_MAXNAMELEN
	standardVerdictField    = SizeOfXTEntryTarget
	errorTargetNameField    = SizeOfXTEntryTarget
	getinfoValidHooksField  = XT_TABLE_MAXNAMELEN
	getinfoHookEntryField   = getinfoValidHooksField + 4
	getinfoUnderflowField   = getinfoHookEntryField + 4*NumHooks
	getinfoNumEntriesField  = getinfoUnderflowField + 4*NumHooks
	getinfoSizeField        = getinfoNumEntriesField + 4
	getEntriesSizeField     = XT_TABLE_MAXNAMELEN
	replaceValidHooksField  = XT_TABLE_MAXNAMELEN
	replaceNumEntriesField  = replaceValidHooksField + 4
	replaceSizeField        = replaceNumEntriesField + 4
	replaceHookEntryField   = replaceSizeField + 4
	replaceUnderflowField   = replaceHookEntryField + 4*NumHooks
	replaceNumCountersField = replaceUnderflowField + 4*NumHooks
	replaceCountersField    = replaceNumCountersField + 4
)

// alignUp rounds n up to the 8-byte alignment of xt structures (XT_ALIGN).
func alignUp(n int) int {
	return (n + 7) &^ 7
}

// IPTIP is struct ipt_ip: the IPv4 header part of a rule. Addresses and masks
// are kept in network byte order.
type IPTIP struct {
	Src                 [4]byte
	Dst                 [4]byte
	SrcMask             [4]byte
	DstMask             [4]byte
	InputInterface      [IFNAMSIZ]byte
	OutputInterface     [IFNAMSIZ]byte
	InputInterfaceMask  [IFNAMSIZ]byte
	OutputInterfaceMask [IFNAMSIZ]byte
	Protocol            uint16
	Flags               uint8
	InverseFlags        uint8
}

// Counters is struct xt_counters.
type Counters struct {
	Packets uint64
	Bytes   uint64
}

// Info is struct ipt_getinfo: the table summary returned by IPT_SO_GET_INFO.
type Info struct {
	Name       string
	ValidHooks uint32
	HookEntry  [NumHooks]uint32
	Underflow  [NumHooks]uint32
	NumEntries uint32
	Size       uint32
}
