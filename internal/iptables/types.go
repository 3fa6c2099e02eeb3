package iptables

import "fmt"

// Counters are the packet and byte counters written as [packets:bytes].
type Counters struct {
	Packets uint64
	Bytes   uint64
}

func (c Counters) String() string {
	return fmt.Sprintf("[%d:%d]", c.Packets, c.Bytes)
}

// SavedChain is a ":name policy [p:b]" declaration. User chains have the
// policy "-".
type SavedChain struct {
	Name     string
	Policy   string
	Counters Counters
}

// Builtin reports whether the chain declaration carries a policy.
func (c SavedChain) Builtin() bool {
	return c.Policy != "-"
}

// SavedRule is one "-A chain ..." line. Args holds everything after the
// chain name, unquoted.
type SavedRule struct {
	Chain    string
	Args     []string
	Counters *Counters
}

// SavedTable is one "*name ... COMMIT" block.
type SavedTable struct {
	Name   string
	Chains []SavedChain
	Rules  []SavedRule
}

// Chain returns the declaration of the named chain.
func (t *SavedTable) Chain(name string) (SavedChain, bool) {
	for _, c := range t.Chains {
		if c.Name == name {
			return c, true
		}
	}
	return SavedChain{}, false
}
