package netfilter

import (
	"fmt"
	"net/netip"
	"strings"
)

// Table is one rule table read from the kernel. It is a snapshot: it is
// never cached across operations and changes only reach the kernel through
// Kernel.Replace.
type Table struct {
	Name   string
	Chains []*Chain

	// NumEntries is the entry count the kernel reported when the table was
	// read. Replace needs it to size the old counters buffer.
	NumEntries uint32
}

// Chain is an ordered list of rules. Built-in chains are bound to a hook
// and carry a policy; user chains have Hook == HookNone.
type Chain struct {
	Name     string
	Hook     int
	Policy   string
	Counters Counters
	Rules    []*Rule
}

// Builtin reports whether the chain is attached to a netfilter hook.
func (c *Chain) Builtin() bool {
	return c.Hook != HookNone
}

// Rule is one ipt_entry.
type Rule struct {
	IP       IPTIP
	NFCache  uint32
	Counters Counters
	Matches  []Match
	Target   Target

	// Offset and Size locate the entry in the blob it was decoded from.
	Offset uint32
	Size   uint32
}

// Match is an xt_entry_match: a named extension and its opaque parameters.
type Match struct {
	Name     string
	Revision uint8
	Data     []byte
}

// Target is an xt_entry_target. Standard targets have an empty Name and
// carry a Verdict; a jump to a user chain has Chain set.
type Target struct {
	Name     string
	Revision uint8
	Data     []byte

	Verdict int32
	Chain   string
}

// Standard reports whether the target is a built-in verdict rather than an
// extension.
func (t Target) Standard() bool {
	return t.Name == ""
}

// Label returns the word printed after -j or -g. A standard target that
// falls through to the next rule has no label.
func (t Target) Label() string {
	if !t.Standard() {
		return t.Name
	}
	if t.Chain != "" {
		return t.Chain
	}
	switch t.Verdict {
	case VerdictAccept:
		return LabelAccept
	case VerdictDrop:
		return LabelDrop
	case VerdictQueue:
		return LabelQueue
	case VerdictReturn:
		return LabelReturn
	}
	return ""
}

// VerdictTarget returns the standard target for a policy or verdict label.
func VerdictTarget(label string) (Target, error) {
	switch label {
	case LabelAccept:
		return Target{Verdict: VerdictAccept}, nil
	case LabelDrop:
		return Target{Verdict: VerdictDrop}, nil
	case LabelQueue:
		return Target{Verdict: VerdictQueue}, nil
	case LabelReturn:
		return Target{Verdict: VerdictReturn}, nil
	}
	return Target{}, fmt.Errorf("unknown verdict %q", label)
}

// Chain returns the chain with the given name.
func (t *Table) Chain(name string) (*Chain, bool) {
	for _, c := range t.Chains {
		if c.Name == name {
			return c, true
		}
	}
	return nil, false
}

// FlushChain removes every rule from one chain.
func (t *Table) FlushChain(name string) error {
	c, ok := t.Chain(name)
	if !ok {
		return fmt.Errorf("chain %q not found in table %q", name, t.Name)
	}
	c.Rules = nil
	return nil
}

// Flush removes every rule from every chain. Chains and policies stay.
func (t *Table) Flush() {
	for _, c := range t.Chains {
		c.Rules = nil
	}
}

// RuleCount returns the number of rules across all chains.
func (t *Table) RuleCount() int {
	n := 0
	for _, c := range t.Chains {
		n += len(c.Rules)
	}
	return n
}

// PrefixMatch converts an address or CIDR prefix to the address and mask
// fields of IPTIP.
func PrefixMatch(s string) (addr, mask [4]byte, err error) {
	if !strings.Contains(s, "/") {
		s += "/32"
	}
	prefix, err := netip.ParsePrefix(s)
	if err != nil {
		return addr, mask, fmt.Errorf("parse prefix %q: %w", s, err)
	}
	if !prefix.Addr().Is4() {
		return addr, mask, fmt.Errorf("prefix %q is not IPv4", s)
	}
	addr = prefix.Masked().Addr().As4()
	bits := prefix.Bits()
	for i := 0; i < 4; i++ {
		switch {
		case bits >= 8:
			mask[i] = 0xff
			bits -= 8
		case bits > 0:
			mask[i] = byte(0xff << (8 - bits))
			bits = 0
		}
	}
	return addr, mask, nil
}

// InterfaceMatch converts an interface argument as given to -i/-o into the
// name and mask fields of IPTIP. A trailing "+" matches any interface with
// that prefix.
func InterfaceMatch(s string) (name, mask [IFNAMSIZ]byte, err error) {
	if s == "" {
		return name, mask, nil
	}
	if len(s) >= IFNAMSIZ {
		return name, mask, fmt.Errorf("interface name %q too long", s)
	}
	if strings.HasSuffix(s, "+") {
		prefix := strings.TrimSuffix(s, "+")
		copy(name[:], prefix)
		for i := 0; i < len(prefix); i++ {
			mask[i] = 0xff
		}
		return name, mask, nil
	}
	copy(name[:], s)
	for i := 0; i <= len(s); i++ {
		mask[i] = 0xff
	}
	return name, mask, nil
}
