package persist

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/denniswebb/fwkeeper/internal/iptables"
)

func newSaver(t *testing.T, root, tablesFile string, renderer TableRenderer, observer Observer, guard *Guard) *Saver {
	t.Helper()
	saver, err := NewSaver(SaverConfig{
		Root:       root,
		TablesFile: tablesFile,
		Renderer:   renderer,
		Guard:      guard,
		Observer:   observer,
		Logger:     discardLogger(),
	})
	require.NoError(t, err)
	return saver
}

func TestNewSaverValidation(t *testing.T) {
	t.Parallel()

	_, err := NewSaver(SaverConfig{Renderer: newWalker(newKernel(t))})
	require.ErrorContains(t, err, "storage root is required")

	_, err = NewSaver(SaverConfig{Root: t.TempDir()})
	require.ErrorContains(t, err, "table renderer is required")
}

func TestSaveWritesEveryTable(t *testing.T) {
	t.Parallel()

	root := realDir(t)
	kernel := newKernel(t, sampleFilter(t), sampleNat())
	observer := &recordingObserver{}
	saver := newSaver(t, root, writeTablesFile(t, "nat", "filter"), newWalker(kernel), observer, nil)

	dest, err := saver.Save(context.Background(), "")
	require.NoError(t, err)
	require.Equal(t, filepath.Join(root, "iptables", "rules.v4"), dest)

	got, err := os.ReadFile(dest)
	require.NoError(t, err)

	want := "# Generated by fwkeeper on Tue Mar  5 09:07:01 2024\n" +
		"*nat\n" +
		":PREROUTING ACCEPT [0:0]\n" +
		":INPUT ACCEPT [0:0]\n" +
		":OUTPUT ACCEPT [0:0]\n" +
		":POSTROUTING ACCEPT [0:0]\n" +
		"[0:0] -A POSTROUTING -j ACCEPT\n" +
		"COMMIT\n" +
		"# Completed on Tue Mar  5 09:07:01 2024\n" +
		"# Generated by fwkeeper on Tue Mar  5 09:07:01 2024\n" +
		"*filter\n" +
		":INPUT ACCEPT [10:500]\n" +
		":FORWARD ACCEPT [0:0]\n" +
		":OUTPUT ACCEPT [0:0]\n" +
		":LOGDROP - [0:0]\n" +
		"[3:180] -A INPUT -s 192.168.1.0/24 -p tcp -j ACCEPT\n" +
		"[0:0] -A INPUT -j LOGDROP\n" +
		"[0:0] -A LOGDROP -j DROP\n" +
		"COMMIT\n" +
		"# Completed on Tue Mar  5 09:07:01 2024\n"
	require.Equal(t, want, string(got))

	info, err := os.Stat(dest)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	outcome := observer.last(t)
	require.Equal(t, OpSave, outcome.Operation)
	require.Equal(t, dest, outcome.Path)
	require.Equal(t, 2, outcome.Tables)
	require.Zero(t, outcome.Failed)
	require.NoError(t, outcome.Err)
}

func TestSaveOutputParsesBack(t *testing.T) {
	t.Parallel()

	root := realDir(t)
	kernel := newKernel(t, sampleFilter(t))
	saver := newSaver(t, root, writeTablesFile(t, "filter"), newWalker(kernel), nil, nil)

	dest, err := saver.Save(context.Background(), filepath.Join(root, "snapshot"))
	require.NoError(t, err)

	f, err := os.Open(dest)
	require.NoError(t, err)
	defer f.Close()

	tables, err := iptables.ParseSave(f)
	require.NoError(t, err)
	require.Len(t, tables, 1)

	filter := tables[0]
	require.Equal(t, []iptables.SavedChain{
		{Name: "INPUT", Policy: "ACCEPT", Counters: iptables.Counters{Packets: 10, Bytes: 500}},
		{Name: "FORWARD", Policy: "ACCEPT"},
		{Name: "OUTPUT", Policy: "ACCEPT"},
		{Name: "LOGDROP", Policy: "-"},
	}, filter.Chains)
	require.Len(t, filter.Rules, 3)
	require.Equal(t, []string{"-s", "192.168.1.0/24", "-p", "tcp", "-j", "ACCEPT"}, filter.Rules[0].Args)
	require.Equal(t, &iptables.Counters{Packets: 3, Bytes: 180}, filter.Rules[0].Counters)
	require.Equal(t, "LOGDROP", filter.Rules[2].Chain)
}

func TestSavePartialFailureKeepsOtherTables(t *testing.T) {
	t.Parallel()

	root := realDir(t)
	kernel := newKernel(t, unrenderable(), sampleNat())
	observer := &recordingObserver{}
	saver := newSaver(t, root, writeTablesFile(t, "filter", "nat", "raw"), newWalker(kernel), observer, nil)

	dest, err := saver.Save(context.Background(), "")
	require.ErrorIs(t, err, ErrPartialFailure)

	var tableErr *TableError
	require.True(t, errors.As(err, &tableErr))
	require.Equal(t, "filter", tableErr.Table)
	require.ErrorContains(t, err, "table raw")

	got, err := os.ReadFile(dest)
	require.NoError(t, err)
	require.Contains(t, string(got), "*nat\n")
	require.NotContains(t, string(got), "*filter")

	outcome := observer.last(t)
	require.Equal(t, 3, outcome.Tables)
	require.Equal(t, 2, outcome.Failed)
	require.Equal(t, []failure{{OpSave, "filter"}, {OpSave, "raw"}}, observer.failures)
}

func TestSaveRejectsInvalidTarget(t *testing.T) {
	t.Parallel()

	root := realDir(t)
	outside := filepath.Join(realDir(t), "rules.v4")
	saver := newSaver(t, root, writeTablesFile(t, "filter"), newWalker(newKernel(t, sampleFilter(t))), nil, nil)

	_, err := saver.Save(context.Background(), outside)
	require.ErrorIs(t, err, ErrInvalidTarget)

	_, err = os.Stat(outside)
	require.True(t, os.IsNotExist(err))
}

func TestSaveListingFailureLeavesFileAlone(t *testing.T) {
	t.Parallel()

	root := realDir(t)
	dest := filepath.Join(root, "rules.v4")
	require.NoError(t, os.WriteFile(dest, []byte("*filter\nCOMMIT\n"), 0o600))

	saver := newSaver(t, root, filepath.Join(t.TempDir(), "missing"), newWalker(newKernel(t)), nil, nil)
	_, err := saver.Save(context.Background(), dest)
	require.ErrorContains(t, err, "read table names")

	got, err := os.ReadFile(dest)
	require.NoError(t, err)
	require.Equal(t, "*filter\nCOMMIT\n", string(got))
}

func TestSaveAlreadyInProgress(t *testing.T) {
	t.Parallel()

	guard := NewGuard()
	release, ok := guard.TryAcquire()
	require.True(t, ok)
	defer release()

	root := realDir(t)
	saver := newSaver(t, root, writeTablesFile(t, "filter"), newWalker(newKernel(t, sampleFilter(t))), nil, guard)

	_, err := saver.Save(context.Background(), "")
	require.ErrorIs(t, err, ErrAlreadyInProgress)

	_, err = os.Stat(filepath.Join(root, "iptables"))
	require.True(t, os.IsNotExist(err))
}

type blockingRenderer struct {
	entered chan struct{}
	proceed chan struct{}
}

func (b *blockingRenderer) RenderTable(ctx context.Context, name string) ([]byte, error) {
	close(b.entered)
	<-b.proceed
	return []byte("*" + name + "\nCOMMIT\n"), nil
}

func TestSaveRejectsConcurrentSave(t *testing.T) {
	t.Parallel()

	root := realDir(t)
	renderer := &blockingRenderer{entered: make(chan struct{}), proceed: make(chan struct{})}
	saver := newSaver(t, root, writeTablesFile(t, "filter"), renderer, nil, nil)

	done := make(chan error, 1)
	go func() {
		_, err := saver.Save(context.Background(), "")
		done <- err
	}()

	<-renderer.entered
	_, err := saver.Save(context.Background(), "")
	require.ErrorIs(t, err, ErrAlreadyInProgress)

	close(renderer.proceed)
	require.NoError(t, <-done)

	got, err := os.ReadFile(filepath.Join(root, "iptables", "rules.v4"))
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(string(got), "*filter\n"))
}
