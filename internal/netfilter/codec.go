package netfilter

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"sort"
)

// ErrMalformedTable reports a rule blob that does not follow the ipt_entry layout.
var ErrMalformedTable = errors.New("malformed rule table")

var byteOrder = binary.NativeEndian

// entry is a decoded ipt_entry before chain reconstruction.
type entry struct {
	rule      *Rule
	errorName string
	isError   bool
}

// Decode rebuilds a table from the IPT_SO_GET_INFO summary and the entry blob
// returned by IPT_SO_GET_ENTRIES. Built-in chains start at their hook entry
// offsets and end with the policy entry at their underflow offset; user chains
// start with an ERROR target naming the chain and end with an unconditional
// RETURN. The final ERROR entry terminates the table.
func Decode(info Info, blob []byte) (*Table, error) {
	entries, err := decodeEntries(blob)
	if err != nil {
		return nil, fmt.Errorf("decode table %q: %w", info.Name, err)
	}

	hookAt := map[uint32]int{}
	for hook := 0; hook < NumHooks; hook++ {
		if info.ValidHooks&(1<<hook) != 0 {
			hookAt[info.HookEntry[hook]] = hook
		}
	}

	table := &Table{Name: info.Name, NumEntries: uint32(len(entries))}
	starts := map[uint32]*Chain{}
	var current *Chain

	for i, e := range entries {
		offset := e.rule.Offset
		if hook, ok := hookAt[offset]; ok {
			closeUserChain(current)
			current = &Chain{Name: hookNames[hook], Hook: hook}
			table.Chains = append(table.Chains, current)
			starts[offset] = current
		}

		if e.isError {
			closeUserChain(current)
			current = nil
			if i == len(entries)-1 {
				break
			}
			current = &Chain{Name: e.errorName, Hook: HookNone}
			table.Chains = append(table.Chains, current)
			starts[entries[i+1].rule.Offset] = current
			continue
		}

		if current == nil {
			return nil, fmt.Errorf("%w: entry at offset %d belongs to no chain", ErrMalformedTable, offset)
		}

		if current.Builtin() && info.Underflow[current.Hook] == offset {
			current.Policy = e.rule.Target.Label()
			current.Counters = e.rule.Counters
			continue
		}

		current.Rules = append(current.Rules, e.rule)
	}
	closeUserChain(current)

	for _, e := range entries {
		t := &e.rule.Target
		if !t.Standard() || t.Verdict < 0 {
			continue
		}
		if dest, ok := starts[uint32(t.Verdict)]; ok {
			t.Chain = dest.Name
			continue
		}
		if uint32(t.Verdict) != e.rule.Offset+e.rule.Size {
			return nil, fmt.Errorf("%w: jump at offset %d to unknown offset %d", ErrMalformedTable, e.rule.Offset, t.Verdict)
		}
	}

	sortChains(table.Chains)
	return table, nil
}

// closeUserChain drops the structural RETURN that terminates a user chain.
func closeUserChain(c *Chain) {
	if c == nil || c.Builtin() || len(c.Rules) == 0 {
		return
	}
	last := c.Rules[len(c.Rules)-1]
	if isUnconditional(last) && last.Target.Standard() && last.Target.Verdict == VerdictReturn {
		c.Rules = c.Rules[:len(c.Rules)-1]
	}
}

func isUnconditional(r *Rule) bool {
	return len(r.Matches) == 0 && r.IP == IPTIP{}
}

// sortChains orders built-in chains by hook and user chains by name.
func sortChains(chains []*Chain) {
	sort.SliceStable(chains, func(i, j int) bool {
		a, b := chains[i], chains[j]
		if a.Builtin() != b.Builtin() {
			return a.Builtin()
		}
		if a.Builtin() {
			return a.Hook < b.Hook
		}
		return a.Name < b.Name
	})
}

func decodeEntries(blob []byte) ([]entry, error) {
	var entries []entry
	for offset := 0; offset < len(blob); {
		e, size, err := decodeEntry(blob[offset:])
		if err != nil {
			return nil, fmt.Errorf("entry at offset %d: %w", offset, err)
		}
		e.rule.Offset = uint32(offset)
		e.rule.Size = uint32(size)
		entries = append(entries, e)
		offset += size
	}
	return entries, nil
}

func decodeEntry(b []byte) (entry, int, error) {
	if len(b) < SizeOfIPTEntry {
		return entry{}, 0, fmt.Errorf("%w: %d bytes left, entry needs %d", ErrMalformedTable, len(b), SizeOfIPTEntry)
	}

	targetOffset := int(byteOrder.Uint16(b[entryTargetOffsetField:]))
	nextOffset := int(byteOrder.Uint16(b[entryNextOffsetField:]))
	if targetOffset < SizeOfIPTEntry || nextOffset < targetOffset+SizeOfXTEntryTarget || nextOffset > len(b) {
		return entry{}, 0, fmt.Errorf("%w: target offset %d, next offset %d", ErrMalformedTable, targetOffset, nextOffset)
	}

	rule := &Rule{
		IP:      decodeIP(b),
		NFCache: byteOrder.Uint32(b[entryNFCacheField:]),
		Counters: Counters{
			Packets: byteOrder.Uint64(b[entryCountersField:]),
			Bytes:   byteOrder.Uint64(b[entryCountersField+8:]),
		},
	}

	for m := SizeOfIPTEntry; m < targetOffset; {
		if targetOffset-m < SizeOfXTEntryMatch {
			return entry{}, 0, fmt.Errorf("%w: truncated match at %d", ErrMalformedTable, m)
		}
		size := int(byteOrder.Uint16(b[m:]))
		if size < SizeOfXTEntryMatch || m+size > targetOffset {
			return entry{}, 0, fmt.Errorf("%w: match size %d at %d", ErrMalformedTable, size, m)
		}
		rule.Matches = append(rule.Matches, Match{
			Name:     cString(b[m+matchNameField : m+matchNameField+XT_EXTENSION_MAXNAMELEN]),
			Revision: b[m+matchRevisionField],
			Data:     bytes.Clone(b[m+SizeOfXTEntryMatch : m+size]),
		})
		m += size
	}

	t := b[targetOffset:nextOffset]
	targetSize := int(byteOrder.Uint16(t))
	if targetSize < SizeOfXTEntryTarget || targetSize > len(t) {
		return entry{}, 0, fmt.Errorf("%w: target size %d", ErrMalformedTable, targetSize)
	}
	name := cString(t[matchNameField : matchNameField+XT_EXTENSION_MAXNAMELEN])

	e := entry{rule: rule}
	switch name {
	case "":
		if targetSize < standardVerdictField+4 {
			return entry{}, 0, fmt.Errorf("%w: standard target size %d", ErrMalformedTable, targetSize)
		}
		rule.Target.Verdict = int32(byteOrder.Uint32(t[standardVerdictField:]))
	case errorTargetName:
		e.isError = true
		e.errorName = cString(t[errorTargetNameField:targetSize])
	default:
		rule.Target = Target{
			Name:     name,
			Revision: t[matchRevisionField],
			Data:     bytes.Clone(t[SizeOfXTEntryTarget:targetSize]),
		}
	}
	return e, nextOffset, nil
}

func decodeIP(b []byte) IPTIP {
	var ip IPTIP
	copy(ip.Src[:], b[0:4])
	copy(ip.Dst[:], b[4:8])
	copy(ip.SrcMask[:], b[8:12])
	copy(ip.DstMask[:], b[12:16])
	copy(ip.InputInterface[:], b[16:32])
	copy(ip.OutputInterface[:], b[32:48])
	copy(ip.InputInterfaceMask[:], b[48:64])
	copy(ip.OutputInterfaceMask[:], b[64:80])
	ip.Protocol = byteOrder.Uint16(b[80:])
	ip.Flags = b[82]
	ip.InverseFlags = b[83]
	return ip
}

func encodeIP(b []byte, ip *IPTIP) {
	copy(b[0:4], ip.Src[:])
	copy(b[4:8], ip.Dst[:])
	copy(b[8:12], ip.SrcMask[:])
	copy(b[12:16], ip.DstMask[:])
	copy(b[16:32], ip.InputInterface[:])
	copy(b[32:48], ip.OutputInterface[:])
	copy(b[48:64], ip.InputInterfaceMask[:])
	copy(b[64:80], ip.OutputInterfaceMask[:])
	byteOrder.PutUint16(b[80:], ip.Protocol)
	b[82] = ip.Flags
	b[83] = ip.InverseFlags
}

func cString(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b)
}

// Encode lays a table out the way iptables-restore hands it to the kernel:
// built-in chains in hook order, each closed by its policy entry, then user
// chains framed by an ERROR head and a RETURN foot, then the terminating
// ERROR entry.
func Encode(t *Table) (Info, []byte, error) {
	chains := make([]*Chain, len(t.Chains))
	copy(chains, t.Chains)
	sort.SliceStable(chains, func(i, j int) bool {
		a, b := chains[i], chains[j]
		if a.Builtin() != b.Builtin() {
			return a.Builtin()
		}
		return a.Builtin() && a.Hook < b.Hook
	})

	info := Info{Name: t.Name}
	starts := map[string]uint32{}
	offset := 0
	for _, c := range chains {
		if c.Builtin() {
			if c.Hook >= NumHooks {
				return Info{}, nil, fmt.Errorf("chain %q: invalid hook %d", c.Name, c.Hook)
			}
			info.ValidHooks |= 1 << c.Hook
			info.HookEntry[c.Hook] = uint32(offset)
			starts[c.Name] = uint32(offset)
		} else {
			offset += SizeOfIPTEntry + SizeOfXTErrorTarget
			starts[c.Name] = uint32(offset)
		}
		for _, r := range c.Rules {
			offset += ruleSize(r)
		}
		if c.Builtin() {
			info.Underflow[c.Hook] = uint32(offset)
		}
		offset += SizeOfIPTEntry + SizeOfXTStandardTarget
	}
	offset += SizeOfIPTEntry + SizeOfXTErrorTarget

	blob := make([]byte, offset)
	w := 0
	count := uint32(0)
	put := func(ip *IPTIP, counters Counters, nfcache uint32, matches []Match, target []byte) {
		n := putEntry(blob[w:], ip, counters, nfcache, matches, target)
		w += n
		count++
	}

	for _, c := range chains {
		if !c.Builtin() {
			put(&IPTIP{}, Counters{}, 0, nil, errorTarget(c.Name))
		}
		for _, r := range c.Rules {
			target, err := encodeTarget(r, uint32(w), starts)
			if err != nil {
				return Info{}, nil, fmt.Errorf("chain %q: %w", c.Name, err)
			}
			put(&r.IP, r.Counters, r.NFCache, r.Matches, target)
		}
		if c.Builtin() {
			policy, err := VerdictTarget(c.Policy)
			if err != nil {
				return Info{}, nil, fmt.Errorf("chain %q policy: %w", c.Name, err)
			}
			put(&IPTIP{}, c.Counters, 0, nil, standardTarget(policy.Verdict))
		} else {
			put(&IPTIP{}, Counters{}, 0, nil, standardTarget(VerdictReturn))
		}
	}
	put(&IPTIP{}, Counters{}, 0, nil, errorTarget(errorTargetName))

	info.NumEntries = count
	info.Size = uint32(len(blob))
	return info, blob, nil
}

func ruleSize(r *Rule) int {
	size := SizeOfIPTEntry
	for _, m := range r.Matches {
		size += alignUp(SizeOfXTEntryMatch + len(m.Data))
	}
	if r.Target.Standard() {
		return size + SizeOfXTStandardTarget
	}
	return size + alignUp(SizeOfXTEntryTarget+len(r.Target.Data))
}

func encodeTarget(r *Rule, offset uint32, starts map[string]uint32) ([]byte, error) {
	t := r.Target
	if !t.Standard() {
		size := alignUp(SizeOfXTEntryTarget + len(t.Data))
		b := make([]byte, size)
		byteOrder.PutUint16(b, uint16(size))
		copy(b[matchNameField:matchNameField+XT_EXTENSION_MAXNAMELEN-1], t.Name)
		b[matchRevisionField] = t.Revision
		copy(b[SizeOfXTEntryTarget:], t.Data)
		return b, nil
	}
	if t.Chain != "" {
		start, ok := starts[t.Chain]
		if !ok {
			return nil, fmt.Errorf("jump to unknown chain %q", t.Chain)
		}
		return standardTarget(int32(start)), nil
	}
	if t.Verdict >= 0 {
		return standardTarget(int32(offset) + int32(ruleSize(r))), nil
	}
	return standardTarget(t.Verdict), nil
}

func standardTarget(verdict int32) []byte {
	b := make([]byte, SizeOfXTStandardTarget)
	byteOrder.PutUint16(b, SizeOfXTStandardTarget)
	byteOrder.PutUint32(b[standardVerdictField:], uint32(verdict))
	return b
}

func errorTarget(name string) []byte {
	b := make([]byte, SizeOfXTErrorTarget)
	byteOrder.PutUint16(b, SizeOfXTErrorTarget)
	copy(b[matchNameField:], errorTargetName)
	copy(b[errorTargetNameField:errorTargetNameField+XT_FUNCTION_MAXNAMELEN-1], name)
	return b
}

func putEntry(b []byte, ip *IPTIP, counters Counters, nfcache uint32, matches []Match, target []byte) int {
	encodeIP(b, ip)
	byteOrder.PutUint32(b[entryNFCacheField:], nfcache)
	byteOrder.PutUint64(b[entryCountersField:], counters.Packets)
	byteOrder.PutUint64(b[entryCountersField+8:], counters.Bytes)

	w := SizeOfIPTEntry
	for _, m := range matches {
		size := alignUp(SizeOfXTEntryMatch + len(m.Data))
		byteOrder.PutUint16(b[w:], uint16(size))
		copy(b[w+matchNameField:w+matchNameField+XT_EXTENSION_MAXNAMELEN-1], m.Name)
		b[w+matchRevisionField] = m.Revision
		copy(b[w+SizeOfXTEntryMatch:], m.Data)
		w += size
	}
	byteOrder.PutUint16(b[entryTargetOffsetField:], uint16(w))
	copy(b[w:], target)
	w += len(target)
	byteOrder.PutUint16(b[entryNextOffsetField:], uint16(w))
	return w
}

func decodeInfo(b []byte) (Info, error) {
	if len(b) < SizeOfIPTGetinfo {
		return Info{}, fmt.Errorf("%w: getinfo reply of %d bytes", ErrMalformedTable, len(b))
	}
	info := Info{
		Name:       cString(b[:XT_TABLE_MAXNAMELEN]),
		ValidHooks: byteOrder.Uint32(b[getinfoValidHooksField:]),
		NumEntries: byteOrder.Uint32(b[getinfoNumEntriesField:]),
		Size:       byteOrder.Uint32(b[getinfoSizeField:]),
	}
	for hook := 0; hook < NumHooks; hook++ {
		info.HookEntry[hook] = byteOrder.Uint32(b[getinfoHookEntryField+4*hook:])
		info.Underflow[hook] = byteOrder.Uint32(b[getinfoUnderflowField+4*hook:])
	}
	return info, nil
}

// replaceHeader builds the fixed part of struct ipt_replace. counters is the
// address of a buffer of numCounters xt_counters the kernel fills with the
// counters of the replaced entries.
func replaceHeader(info Info, numCounters uint32, counters uint64) []byte {
	b := make([]byte, SizeOfIPTReplace)
	copy(b[:XT_TABLE_MAXNAMELEN-1], info.Name)
	byteOrder.PutUint32(b[replaceValidHooksField:], info.ValidHooks)
	byteOrder.PutUint32(b[replaceNumEntriesField:], info.NumEntries)
	byteOrder.PutUint32(b[replaceSizeField:], info.Size)
	for hook := 0; hook < NumHooks; hook++ {
		byteOrder.PutUint32(b[replaceHookEntryField+4*hook:], info.HookEntry[hook])
		byteOrder.PutUint32(b[replaceUnderflowField+4*hook:], info.Underflow[hook])
	}
	byteOrder.PutUint32(b[replaceNumCountersField:], numCounters)
	byteOrder.PutUint64(b[replaceCountersField:], counters)
	return b
}
