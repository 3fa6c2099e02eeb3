package persist

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func realDir(t *testing.T) string {
	t.Helper()
	dir, err := filepath.EvalSymlinks(t.TempDir())
	require.NoError(t, err)
	return dir
}

func TestDefaultSavePath(t *testing.T) {
	t.Parallel()

	path, err := DefaultSavePath("/var/lib/fwkeeper", 4)
	require.NoError(t, err)
	require.Equal(t, "/var/lib/fwkeeper/iptables/rules.v4", path)

	_, err = DefaultSavePath("/var/lib/fwkeeper", 6)
	require.ErrorIs(t, err, ErrUnsupportedVersion)
}

func TestPathPolicyAccepts(t *testing.T) {
	t.Parallel()

	root := realDir(t)
	existing := filepath.Join(root, "rules.v4")
	require.NoError(t, os.WriteFile(existing, nil, 0o600))
	require.NoError(t, os.Symlink(existing, filepath.Join(root, "current")))
	nested := filepath.Join(root, "state", "v4")
	require.NoError(t, os.MkdirAll(nested, 0o700))
	require.NoError(t, os.Symlink(nested, filepath.Join(root, "latest")))

	tests := []struct {
		name string
		path string
		want string
	}{
		{name: "existing file", path: existing, want: existing},
		{name: "missing file", path: filepath.Join(root, "new.v4"), want: filepath.Join(root, "new.v4")},
		{name: "missing directory", path: filepath.Join(root, "iptables", "rules.v4"), want: filepath.Join(root, "iptables", "rules.v4")},
		{name: "symlink inside root", path: filepath.Join(root, "current"), want: existing},
		{name: "dot segments", path: filepath.Join(root, "iptables") + "/../rules.v4", want: existing},
		{name: "parent of symlinked directory", path: filepath.Join(root, "latest") + "/../rules.v4", want: filepath.Join(root, "state", "rules.v4")},
	}

	policy := PathPolicy{Root: root}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, err := policy.Resolve(tc.path)
			require.NoError(t, err)
			require.Equal(t, tc.want, got)
		})
	}
}

func TestPathPolicyRejects(t *testing.T) {
	t.Parallel()

	root := realDir(t)
	outside := realDir(t)

	secret := filepath.Join(outside, "shadow")
	require.NoError(t, os.WriteFile(secret, nil, 0o600))
	require.NoError(t, os.Symlink(secret, filepath.Join(root, "escape")))
	require.NoError(t, os.Symlink(filepath.Join(root, "gone"), filepath.Join(root, "dangling")))
	require.NoError(t, os.Symlink(outside, filepath.Join(root, "elsewhere")))
	require.NoError(t, os.WriteFile(filepath.Join(root, "hook.sh"), nil, 0o755))
	require.NoError(t, os.Mkdir(filepath.Join(root, "iptables"), 0o700))
	require.NoError(t, os.Mkdir(filepath.Join(outside, "deep"), 0o700))
	require.NoError(t, os.Symlink(filepath.Join(outside, "deep"), filepath.Join(root, "hop")))

	tests := []struct {
		name   string
		path   string
		reason string
	}{
		{name: "empty", path: "", reason: "empty path"},
		{name: "outside root", path: filepath.Join(outside, "rules.v4"), reason: "outside storage root"},
		{name: "parent traversal", path: root + "/../rules.v4", reason: "outside storage root"},
		{name: "symlink escape", path: filepath.Join(root, "escape"), reason: "outside storage root"},
		{name: "directory symlink escape", path: filepath.Join(root, "elsewhere", "rules.v4"), reason: "outside storage root"},
		{name: "parent of escaping symlink", path: filepath.Join(root, "hop") + "/../rules.v4", reason: "outside storage root"},
		{name: "dangling symlink", path: filepath.Join(root, "dangling"), reason: "dangling symlink"},
		{name: "executable", path: filepath.Join(root, "hook.sh"), reason: "is executable"},
		{name: "directory", path: filepath.Join(root, "iptables"), reason: "is a directory"},
	}

	policy := PathPolicy{Root: root}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := policy.Resolve(tc.path)
			require.ErrorIs(t, err, ErrInvalidTarget)
			require.ErrorContains(t, err, tc.reason)
		})
	}
}

func TestPrepareDirectory(t *testing.T) {
	t.Parallel()

	t.Run("creates with mode 0700", func(t *testing.T) {
		t.Parallel()
		root := t.TempDir()
		file := filepath.Join(root, "a", "b", "rules.v4")
		require.NoError(t, prepareDirectory(file, discardLogger()))

		info, err := os.Stat(filepath.Dir(file))
		require.NoError(t, err)
		require.True(t, info.IsDir())
		require.Equal(t, os.FileMode(0o700), info.Mode().Perm())
	})

	t.Run("replaces a file", func(t *testing.T) {
		t.Parallel()
		root := t.TempDir()
		dir := filepath.Join(root, "iptables")
		require.NoError(t, os.WriteFile(dir, []byte("stale"), 0o600))

		require.NoError(t, prepareDirectory(filepath.Join(dir, "rules.v4"), discardLogger()))
		info, err := os.Stat(dir)
		require.NoError(t, err)
		require.True(t, info.IsDir())
	})

	t.Run("keeps an existing directory", func(t *testing.T) {
		t.Parallel()
		root := t.TempDir()
		dir := filepath.Join(root, "iptables")
		require.NoError(t, os.Mkdir(dir, 0o755))
		keep := filepath.Join(dir, "other")
		require.NoError(t, os.WriteFile(keep, nil, 0o600))

		require.NoError(t, prepareDirectory(filepath.Join(dir, "rules.v4"), discardLogger()))
		_, err := os.Stat(keep)
		require.NoError(t, err)
	})

	t.Run("reports failures as ErrDirectory", func(t *testing.T) {
		t.Parallel()
		root := t.TempDir()
		blocker := filepath.Join(root, "blocker")
		require.NoError(t, os.WriteFile(blocker, nil, 0o600))

		err := prepareDirectory(filepath.Join(blocker, "nested", "rules.v4"), discardLogger())
		require.True(t, errors.Is(err, ErrDirectory), "got %v", err)
	})
}
