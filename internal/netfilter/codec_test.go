package netfilter_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/denniswebb/fwkeeper/internal/netfilter"
	"github.com/denniswebb/fwkeeper/internal/netfilter/netfiltertest"
)

func tcpRule(t *testing.T, src string) *netfilter.Rule {
	t.Helper()
	addr, mask, err := netfilter.PrefixMatch(src)
	require.NoError(t, err)
	r := netfiltertest.Verdict(netfilter.LabelAccept)
	r.IP.Src, r.IP.SrcMask = addr, mask
	r.IP.Protocol = 6
	r.Matches = []netfilter.Match{{Name: "tcp", Data: []byte{0, 0, 0xff, 0xff, 0x16, 0, 0x16, 0, 0, 0, 0, 0}}}
	r.Counters = netfilter.Counters{Packets: 3, Bytes: 180}
	return r
}

func TestEncodeEmptyFilterLayout(t *testing.T) {
	t.Parallel()

	info, blob, err := netfilter.Encode(netfiltertest.Filter())
	require.NoError(t, err)

	policy := uint32(netfilter.SizeOfIPTEntry + netfilter.SizeOfXTStandardTarget)
	require.Equal(t, "filter", info.Name)
	require.Equal(t, uint32(1<<netfilter.HookInput|1<<netfilter.HookForward|1<<netfilter.HookOutput), info.ValidHooks)
	require.Equal(t, uint32(4), info.NumEntries)
	require.Equal(t, 3*policy+netfilter.SizeOfIPTEntry+netfilter.SizeOfXTErrorTarget, info.Size)
	require.Len(t, blob, int(info.Size))
	require.Equal(t, uint32(0), info.HookEntry[netfilter.HookInput])
	require.Equal(t, uint32(0), info.Underflow[netfilter.HookInput])
	require.Equal(t, policy, info.HookEntry[netfilter.HookForward])
	require.Equal(t, 2*policy, info.Underflow[netfilter.HookOutput])
}

func TestDecodeRoundTrip(t *testing.T) {
	t.Parallel()

	table := netfiltertest.Filter()
	input, _ := table.Chain("INPUT")
	input.Counters = netfilter.Counters{Packets: 10, Bytes: 500}
	input.Rules = []*netfilter.Rule{
		tcpRule(t, "192.168.1.0/24"),
		netfiltertest.Jump("ZED"),
		netfiltertest.Jump("ALPHA"),
		{Target: netfilter.Target{Name: "LOG", Data: make([]byte, 40)}},
	}
	input.Rules[2].IP.Flags = netfilter.IPT_F_GOTO

	forward, _ := table.Chain("FORWARD")
	forward.Policy = netfilter.LabelDrop

	zed := netfiltertest.UserChain("ZED")
	zed.Rules = []*netfilter.Rule{netfiltertest.Verdict(netfilter.LabelReturn)}
	alpha := netfiltertest.UserChain("ALPHA")
	alpha.Rules = []*netfilter.Rule{netfiltertest.Verdict(netfilter.LabelDrop), netfiltertest.Jump("ZED")}
	table.Chains = append(table.Chains, zed, alpha)

	info, blob, err := netfilter.Encode(table)
	require.NoError(t, err)

	got, err := netfilter.Decode(info, blob)
	require.NoError(t, err)

	var names []string
	for _, c := range got.Chains {
		names = append(names, c.Name)
	}
	require.Equal(t, []string{"INPUT", "FORWARD", "OUTPUT", "ALPHA", "ZED"}, names)

	gotInput, ok := got.Chain("INPUT")
	require.True(t, ok)
	require.Equal(t, netfilter.LabelAccept, gotInput.Policy)
	require.Equal(t, netfilter.Counters{Packets: 10, Bytes: 500}, gotInput.Counters)
	require.Len(t, gotInput.Rules, 4)

	first := gotInput.Rules[0]
	require.Equal(t, [4]byte{192, 168, 1, 0}, first.IP.Src)
	require.Equal(t, [4]byte{255, 255, 255, 0}, first.IP.SrcMask)
	require.Equal(t, uint16(6), first.IP.Protocol)
	require.Equal(t, netfilter.Counters{Packets: 3, Bytes: 180}, first.Counters)
	require.Len(t, first.Matches, 1)
	require.Equal(t, "tcp", first.Matches[0].Name)
	require.Len(t, first.Matches[0].Data, 16, "match data is padded to 8 bytes")
	require.Equal(t, netfilter.LabelAccept, first.Target.Label())

	require.Equal(t, "ZED", gotInput.Rules[1].Target.Label())
	require.Equal(t, "ALPHA", gotInput.Rules[2].Target.Label())
	require.Equal(t, uint8(netfilter.IPT_F_GOTO), gotInput.Rules[2].IP.Flags)
	require.Equal(t, "LOG", gotInput.Rules[3].Target.Label())
	require.Len(t, gotInput.Rules[3].Target.Data, 40)

	gotForward, _ := got.Chain("FORWARD")
	require.Equal(t, netfilter.LabelDrop, gotForward.Policy)
	require.Empty(t, gotForward.Rules)

	gotZed, _ := got.Chain("ZED")
	require.False(t, gotZed.Builtin())
	require.Len(t, gotZed.Rules, 1, "an explicit RETURN survives, the chain footer does not")
	require.Equal(t, netfilter.LabelReturn, gotZed.Rules[0].Target.Label())

	gotAlpha, _ := got.Chain("ALPHA")
	require.Len(t, gotAlpha.Rules, 2)
	require.Equal(t, "ZED", gotAlpha.Rules[1].Target.Label())
}

func TestDecodeReencodesIdentically(t *testing.T) {
	t.Parallel()

	table := netfiltertest.Nat()
	custom := netfiltertest.UserChain("CUSTOM")
	custom.Rules = []*netfilter.Rule{{Target: netfilter.Target{Name: "MASQUERADE", Data: make([]byte, 24)}}}
	post, _ := table.Chain("POSTROUTING")
	post.Rules = []*netfilter.Rule{netfiltertest.Jump("CUSTOM")}
	table.Chains = append(table.Chains, custom)

	info, blob, err := netfilter.Encode(table)
	require.NoError(t, err)
	decoded, err := netfilter.Decode(info, blob)
	require.NoError(t, err)
	info2, blob2, err := netfilter.Encode(decoded)
	require.NoError(t, err)

	require.Equal(t, info, info2)
	require.Equal(t, blob, blob2)
}

func TestDecodeFallthroughHasNoLabel(t *testing.T) {
	t.Parallel()

	table := netfiltertest.Filter()
	input, _ := table.Chain("INPUT")
	input.Rules = []*netfilter.Rule{{Target: netfilter.Target{}}}

	info, blob, err := netfilter.Encode(table)
	require.NoError(t, err)
	got, err := netfilter.Decode(info, blob)
	require.NoError(t, err)

	gotInput, _ := got.Chain("INPUT")
	require.Len(t, gotInput.Rules, 1)
	require.Empty(t, gotInput.Rules[0].Target.Label())
}

func TestDecodeRejectsMalformedBlobs(t *testing.T) {
	t.Parallel()

	info, blob, err := netfilter.Encode(netfiltertest.Filter())
	require.NoError(t, err)

	tests := []struct {
		name string
		blob []byte
	}{
		{name: "truncated", blob: blob[:len(blob)-10]},
		{name: "short entry", blob: blob[:40]},
		{name: "zero next offset", blob: func() []byte {
			b := append([]byte(nil), blob...)
			b[90], b[91] = 0, 0
			return b
		}()},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := netfilter.Decode(info, tt.blob)
			require.ErrorIs(t, err, netfilter.ErrMalformedTable)
		})
	}
}

func TestEncodeRejectsUnknownJumpAndPolicy(t *testing.T) {
	t.Parallel()

	table := netfiltertest.Filter()
	input, _ := table.Chain("INPUT")
	input.Rules = []*netfilter.Rule{netfiltertest.Jump("MISSING")}
	_, _, err := netfilter.Encode(table)
	require.ErrorContains(t, err, "MISSING")

	table = netfiltertest.Filter()
	input, _ = table.Chain("INPUT")
	input.Policy = "MAYBE"
	_, _, err = netfilter.Encode(table)
	require.ErrorContains(t, err, "MAYBE")
}
