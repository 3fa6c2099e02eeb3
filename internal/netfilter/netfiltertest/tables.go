package netfiltertest

import "github.com/denniswebb/fwkeeper/internal/netfilter"

// Builtin returns an empty built-in chain with the given policy.
func Builtin(name, policy string) *netfilter.Chain {
	hook, ok := netfilter.HookByName(name)
	if !ok {
		panic("netfiltertest: not a built-in chain: " + name)
	}
	return &netfilter.Chain{Name: name, Hook: hook, Policy: policy}
}

// UserChain returns an empty user-defined chain.
func UserChain(name string) *netfilter.Chain {
	return &netfilter.Chain{Name: name, Hook: netfilter.HookNone}
}

// Filter returns an empty filter table with ACCEPT policies.
func Filter() *netfilter.Table {
	return &netfilter.Table{
		Name: "filter",
		Chains: []*netfilter.Chain{
			Builtin("INPUT", netfilter.LabelAccept),
			Builtin("FORWARD", netfilter.LabelAccept),
			Builtin("OUTPUT", netfilter.LabelAccept),
		},
	}
}

// Nat returns an empty nat table with ACCEPT policies.
func Nat() *netfilter.Table {
	return &netfilter.Table{
		Name: "nat",
		Chains: []*netfilter.Chain{
			Builtin("PREROUTING", netfilter.LabelAccept),
			Builtin("INPUT", netfilter.LabelAccept),
			Builtin("OUTPUT", netfilter.LabelAccept),
			Builtin("POSTROUTING", netfilter.LabelAccept),
		},
	}
}

// Verdict returns a rule without matches ending in a standard verdict.
func Verdict(label string) *netfilter.Rule {
	target, err := netfilter.VerdictTarget(label)
	if err != nil {
		panic(err)
	}
	return &netfilter.Rule{Target: target}
}

// Jump returns a rule without matches jumping to a user chain.
func Jump(chain string) *netfilter.Rule {
	return &netfilter.Rule{Target: netfilter.Target{Chain: chain}}
}
