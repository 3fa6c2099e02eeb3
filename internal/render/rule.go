package render

import (
	"fmt"
	"math/bits"
	"net/netip"
	"strings"

	"github.com/denniswebb/fwkeeper/internal/netfilter"
	"github.com/denniswebb/fwkeeper/internal/xtables"
)

// CounterMode selects how rule counters are printed.
type CounterMode int

const (
	// CountersNone omits counters.
	CountersNone CounterMode = iota
	// CountersLeading prefixes the rule with [packets:bytes], as in save files.
	CountersLeading
	// CountersInline adds -c packets bytes before the target, as accepted by
	// iptables -A and -R.
	CountersInline
)

// CaptureFunc runs fn and returns what it printed to standard output.
type CaptureFunc func(limit int, fn func()) ([]byte, error)

// Renderer formats rules in iptables-save syntax.
type Renderer struct {
	Registry     *xtables.Registry
	Protocols    *Protocols
	CaptureLimit int
	Capture      CaptureFunc
}

// NewRenderer returns a Renderer using the built-in extensions, the system
// protocol database and the process standard output capture.
func NewRenderer(captureLimit int) *Renderer {
	return &Renderer{
		Registry:     xtables.Default,
		Protocols:    SystemProtocols(),
		CaptureLimit: captureLimit,
		Capture:      xtables.Capture,
	}
}

// Rule renders one rule of chain, without a trailing newline. A match or
// target with parameters but no registered serializer fails with
// xtables.ErrUnresolvedExtension.
func (r *Renderer) Rule(rule *netfilter.Rule, chain string, mode CounterMode) (string, error) {
	var b strings.Builder
	ip := &rule.IP

	if mode == CountersLeading {
		fmt.Fprintf(&b, "[%d:%d] ", rule.Counters.Packets, rule.Counters.Bytes)
	}
	b.WriteString("-A " + chain)

	writeAddr(&b, "-s", ip.Src, ip.SrcMask, ip.InverseFlags&netfilter.IPT_INV_SRCIP != 0)
	writeAddr(&b, "-d", ip.Dst, ip.DstMask, ip.InverseFlags&netfilter.IPT_INV_DSTIP != 0)
	writeIface(&b, 'i', ip.InputInterface, ip.InputInterfaceMask, ip.InverseFlags&netfilter.IPT_INV_VIA_IN != 0)
	writeIface(&b, 'o', ip.OutputInterface, ip.OutputInterfaceMask, ip.InverseFlags&netfilter.IPT_INV_VIA_OUT != 0)

	if ip.Protocol != 0 {
		b.WriteString(bang(ip.InverseFlags&netfilter.XT_INV_PROTO != 0) + " -p " + r.Protocols.Name(ip.Protocol))
	}
	if ip.Flags&netfilter.IPT_F_FRAG != 0 {
		b.WriteString(bang(ip.InverseFlags&netfilter.IPT_INV_FRAG != 0) + " -f")
	}

	for _, m := range rule.Matches {
		ext, err := r.Registry.Match(m.Name, m.Revision)
		if err != nil {
			if len(m.Data) > 0 {
				return "", err
			}
			b.WriteString(" -m " + m.Name)
			continue
		}
		b.WriteString(" -m " + m.Name)
		if err := r.save(&b, ext, ip, m.Data); err != nil {
			return "", fmt.Errorf("match %s: %w", m.Name, err)
		}
	}

	if mode == CountersInline {
		fmt.Fprintf(&b, " -c %d %d", rule.Counters.Packets, rule.Counters.Bytes)
	}

	if label := rule.Target.Label(); label != "" {
		verb := 'j'
		if ip.Flags&netfilter.IPT_F_GOTO != 0 {
			verb = 'g'
		}
		fmt.Fprintf(&b, " -%c %s", verb, label)
	}

	if t := rule.Target; !t.Standard() {
		ext, err := r.Registry.Target(t.Name, t.Revision)
		if err != nil {
			if len(t.Data) > 0 {
				return "", err
			}
			return b.String(), nil
		}
		if err := r.save(&b, ext, ip, t.Data); err != nil {
			return "", fmt.Errorf("target %s: %w", t.Name, err)
		}
	}

	return b.String(), nil
}

// save runs the extension serializer under capture and appends its output.
func (r *Renderer) save(b *strings.Builder, ext xtables.Extension, ip *netfilter.IPTIP, data []byte) error {
	if len(data) < ext.Size() {
		return fmt.Errorf("parameter blob of %d bytes, need %d", len(data), ext.Size())
	}
	capture := r.Capture
	if capture == nil {
		capture = xtables.Capture
	}
	out, err := capture(r.CaptureLimit, func() {
		ext.Save(ip, data)
	})
	if err != nil {
		return err
	}
	b.Write(out)
	return nil
}

func bang(inverted bool) string {
	if inverted {
		return " !"
	}
	return ""
}

// writeAddr prints " [!] -s addr/mask". The clause is left out for a zero
// address and mask that is not inverted.
func writeAddr(b *strings.Builder, option string, addr, mask [4]byte, inverted bool) {
	if addr == [4]byte{} && mask == [4]byte{} && !inverted {
		return
	}
	b.WriteString(bang(inverted) + " " + option + " " + netip.AddrFrom4(addr).String())

	m := uint32(mask[0])<<24 | uint32(mask[1])<<16 | uint32(mask[2])<<8 | uint32(mask[3])
	ones := bits.LeadingZeros32(^m)
	switch {
	case m == 0xffffffff:
		b.WriteString("/32")
	case m<<ones == 0:
		fmt.Fprintf(b, "/%d", ones)
	default:
		b.WriteString("/" + netip.AddrFrom4(mask).String())
	}
}

// writeIface prints " [!] -i name". The name is cut at the first zero mask
// byte and a "+" added when it continues there, marking a wildcard.
func writeIface(b *strings.Builder, letter byte, name, mask [netfilter.IFNAMSIZ]byte, inverted bool) {
	if mask[0] == 0 {
		return
	}
	b.WriteString(bang(inverted) + " -" + string(letter) + " ")
	for i := 0; i < netfilter.IFNAMSIZ; i++ {
		if mask[i] == 0 {
			if name[i-1] != 0 {
				b.WriteByte('+')
			}
			return
		}
		if name[i] != 0 {
			b.WriteByte(name[i])
		}
	}
}
