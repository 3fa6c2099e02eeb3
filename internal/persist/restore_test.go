package persist

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/denniswebb/fwkeeper/internal/iptables"
	"github.com/denniswebb/fwkeeper/internal/netfilter"
)

type recordingReplayer struct {
	mu     sync.Mutex
	tables []*iptables.SavedTable
	fail   map[string]error
}

func (r *recordingReplayer) Replay(_ context.Context, table *iptables.SavedTable) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tables = append(r.tables, table)
	return r.fail[table.Name]
}

const restoreFile = `# Generated by fwkeeper on Tue Mar  5 09:07:01 2024
*filter
:INPUT DROP [0:0]
:FORWARD ACCEPT [0:0]
:OUTPUT ACCEPT [0:0]
[1:60] -A INPUT -i lo -j ACCEPT
COMMIT
*nat
:PREROUTING ACCEPT [0:0]
:INPUT ACCEPT [0:0]
:OUTPUT ACCEPT [0:0]
:POSTROUTING ACCEPT [0:0]
COMMIT
`

func newRestorer(t *testing.T, root string, kernel netfilter.Kernel, replayer Replayer, observer Observer) *Restorer {
	t.Helper()
	restorer, err := NewRestorer(RestorerConfig{
		Root:     root,
		Clearer:  newClearer(t, kernel, nil, "", nil),
		Replayer: replayer,
		Observer: observer,
		Logger:   discardLogger(),
	})
	require.NoError(t, err)
	return restorer
}

func writeRestoreFile(t *testing.T, root, contents string) string {
	t.Helper()
	path, err := DefaultSavePath(root, 4)
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o700))
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
	return path
}

func TestRestoreClearsAndReplays(t *testing.T) {
	t.Parallel()

	root := realDir(t)
	path := writeRestoreFile(t, root, restoreFile)
	kernel := newKernel(t, sampleFilter(t), sampleNat())
	replayer := &recordingReplayer{}
	observer := &recordingObserver{}

	src, err := newRestorer(t, root, kernel, replayer, observer).Restore(context.Background(), "")
	require.NoError(t, err)
	require.Equal(t, path, src)

	require.Len(t, replayer.tables, 2)
	require.Equal(t, "filter", replayer.tables[0].Name)
	require.Equal(t, "nat", replayer.tables[1].Name)
	require.Equal(t, []string{"-i", "lo", "-j", "ACCEPT"}, replayer.tables[0].Rules[0].Args)

	require.Equal(t, 1, kernel.Replaces("filter"))
	require.Equal(t, 1, kernel.Replaces("nat"))
	filter, err := kernel.Open(context.Background(), "filter")
	require.NoError(t, err)
	require.Zero(t, filter.RuleCount())

	outcome := observer.last(t)
	require.Equal(t, OpRestore, outcome.Operation)
	require.Equal(t, 2, outcome.Tables)
	require.Zero(t, outcome.Failed)
}

func TestRestoreContinuesPastFailedTable(t *testing.T) {
	t.Parallel()

	root := realDir(t)
	writeRestoreFile(t, root, restoreFile)
	replayer := &recordingReplayer{fail: map[string]error{"filter": errors.New("exit status 2")}}
	observer := &recordingObserver{}

	_, err := newRestorer(t, root, newKernel(t, sampleFilter(t), sampleNat()), replayer, observer).Restore(context.Background(), "")
	require.ErrorIs(t, err, ErrPartialFailure)
	require.ErrorContains(t, err, "table filter: replay: exit status 2")
	require.Len(t, replayer.tables, 2)
	require.Equal(t, []failure{{OpRestore, "filter"}}, observer.failures)
}

func TestRestoreSkipsReplayWhenClearFails(t *testing.T) {
	t.Parallel()

	root := realDir(t)
	writeRestoreFile(t, root, restoreFile)
	replayer := &recordingReplayer{}

	_, err := newRestorer(t, root, newKernel(t, sampleNat()), replayer, nil).Restore(context.Background(), "")
	require.ErrorIs(t, err, ErrPartialFailure)
	require.ErrorIs(t, err, netfilter.ErrTableUnavailable)
	require.Len(t, replayer.tables, 1)
	require.Equal(t, "nat", replayer.tables[0].Name)
}

func TestRestoreRejectsBadInput(t *testing.T) {
	t.Parallel()

	root := realDir(t)
	restorer := newRestorer(t, root, newKernel(t), &recordingReplayer{}, nil)

	_, err := restorer.Restore(context.Background(), filepath.Join(realDir(t), "rules.v4"))
	require.ErrorIs(t, err, ErrInvalidTarget)

	_, err = restorer.Restore(context.Background(), filepath.Join(root, "absent"))
	require.ErrorIs(t, err, ErrInvalidTarget)
	require.ErrorContains(t, err, "does not exist")

	_, err = restorer.Restore(context.Background(), "")
	require.ErrorIs(t, err, ErrInvalidTarget)

	writeRestoreFile(t, root, "*filter\n:INPUT ACCEPT [0:0]\n")
	_, err = restorer.Restore(context.Background(), "")
	require.ErrorIs(t, err, iptables.ErrSyntax)
}
