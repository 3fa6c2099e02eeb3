package persist

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/denniswebb/fwkeeper/internal/clock"
	"github.com/denniswebb/fwkeeper/internal/netfilter"
	"github.com/denniswebb/fwkeeper/internal/netfilter/netfiltertest"
	"github.com/denniswebb/fwkeeper/internal/render"
	"github.com/denniswebb/fwkeeper/internal/xtables"
)

var fixedTime = time.Date(2024, 3, 5, 9, 7, 1, 0, time.UTC)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// writeTablesFile writes a kernel style table listing and returns its path.
func writeTablesFile(t *testing.T, names ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ip_tables_names")
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(names, "\n")+"\n"), 0o644))
	return path
}

// sampleFilter returns a filter table with one rule in INPUT and a user
// chain holding a DROP.
func sampleFilter(t *testing.T) *netfilter.Table {
	t.Helper()
	table := netfiltertest.Filter()

	input, _ := table.Chain("INPUT")
	input.Counters = netfilter.Counters{Packets: 10, Bytes: 500}
	ssh := netfiltertest.Verdict(netfilter.LabelAccept)
	addr, mask, err := netfilter.PrefixMatch("192.168.1.0/24")
	require.NoError(t, err)
	ssh.IP.Src, ssh.IP.SrcMask = addr, mask
	ssh.IP.Protocol = 6
	ssh.Counters = netfilter.Counters{Packets: 3, Bytes: 180}
	input.Rules = []*netfilter.Rule{ssh, netfiltertest.Jump("LOGDROP")}

	logdrop := netfiltertest.UserChain("LOGDROP")
	logdrop.Rules = []*netfilter.Rule{netfiltertest.Verdict(netfilter.LabelDrop)}
	table.Chains = append(table.Chains, logdrop)
	return table
}

// sampleNat returns a nat table with one masquerade-free rule.
func sampleNat() *netfilter.Table {
	table := netfiltertest.Nat()
	post, _ := table.Chain("POSTROUTING")
	post.Rules = []*netfilter.Rule{netfiltertest.Verdict(netfilter.LabelAccept)}
	return table
}

// unrenderable returns a filter table holding a match no extension serializes.
func unrenderable() *netfilter.Table {
	table := netfiltertest.Filter()
	input, _ := table.Chain("INPUT")
	rule := netfiltertest.Verdict(netfilter.LabelAccept)
	rule.Matches = []netfilter.Match{{Name: "bogus", Data: []byte{1, 2, 3, 4, 5, 6, 7, 8}}}
	input.Rules = []*netfilter.Rule{rule}
	return table
}

func newKernel(t *testing.T, tables ...*netfilter.Table) *netfiltertest.Kernel {
	t.Helper()
	kernel := netfiltertest.NewKernel()
	for _, table := range tables {
		require.NoError(t, kernel.Load(table))
	}
	return kernel
}

func newWalker(kernel netfilter.Kernel) *render.Walker {
	return &render.Walker{
		Kernel:   kernel,
		Renderer: &render.Renderer{Registry: xtables.NewRegistry(), Protocols: &render.Protocols{}},
		Clock:    clock.NewMockClock(fixedTime),
		Tool:     "fwkeeper",
		Logger:   discardLogger(),
	}
}

type failure struct {
	operation string
	table     string
}

type recordingObserver struct {
	mu       sync.Mutex
	outcomes []Outcome
	failures []failure
}

func (r *recordingObserver) ObserveOutcome(o Outcome) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, o)
}

func (r *recordingObserver) ObserveTableFailure(operation, table string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures = append(r.failures, failure{operation: operation, table: table})
}

func (r *recordingObserver) last(t *testing.T) Outcome {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	require.NotEmpty(t, r.outcomes)
	return r.outcomes[len(r.outcomes)-1]
}
