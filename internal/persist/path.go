package persist

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"syscall"
)

// DefaultStorageRoot is the storage root used when none is configured.
const DefaultStorageRoot = "/var/lib/fwkeeper"

// DefaultSavePath returns the save file for ipVersion under root. Only IPv4
// is supported.
func DefaultSavePath(root string, ipVersion int) (string, error) {
	if ipVersion != 4 {
		return "", fmt.Errorf("%w: %d", ErrUnsupportedVersion, ipVersion)
	}
	return filepath.Join(root, "iptables", "rules.v4"), nil
}

// PathPolicy decides which files may be written or read.
type PathPolicy struct {
	Root string
}

// Resolve returns the canonical form of path: absolute, with symlinks
// resolved as far as the path exists. It fails with ErrInvalidTarget when
// the path lies outside the storage root, is a directory, is executable, or
// is a dangling symlink.
func (p PathPolicy) Resolve(path string) (string, error) {
	if path == "" {
		return "", invalidTarget(path, "empty path")
	}
	root, err := canonicalize(p.Root)
	if err != nil {
		return "", fmt.Errorf("resolve storage root: %w", err)
	}
	real, err := canonicalize(path)
	if err != nil {
		return "", invalidTarget(path, err.Error())
	}

	info, err := os.Stat(real)
	switch {
	case err == nil:
		if info.IsDir() {
			return "", invalidTarget(path, "is a directory")
		}
		if info.Mode()&0o111 != 0 {
			return "", invalidTarget(path, "is executable")
		}
		if !within(root, real) {
			return "", invalidTarget(path, "outside storage root "+root)
		}
		return real, nil

	case missing(err):
		if danglingLink(path) {
			return "", invalidTarget(path, "dangling symlink")
		}
		if !within(root, filepath.Dir(real)) {
			return "", invalidTarget(path, "outside storage root "+root)
		}
		return real, nil

	default:
		return "", invalidTarget(path, err.Error())
	}
}

// missing reports errors meaning some component of the path does not exist
// as a directory.
func missing(err error) bool {
	return errors.Is(err, fs.ErrNotExist) || errors.Is(err, syscall.ENOTDIR)
}

// maxSymlinks matches the kernel's limit on links followed in one lookup.
const maxSymlinks = 40

// canonicalize walks path one component at a time the way realpath does:
// a symlink is replaced by its target before any later ".." is applied.
// Once a component does not exist the remainder is joined lexically.
func canonicalize(path string) (string, error) {
	if !filepath.IsAbs(path) {
		wd, err := os.Getwd()
		if err != nil {
			return "", err
		}
		path = wd + string(filepath.Separator) + path
	}

	sep := string(filepath.Separator)
	pending := strings.Split(path, sep)
	resolved := sep
	exists := true
	links := 0
	for len(pending) > 0 {
		name := pending[0]
		pending = pending[1:]
		switch name {
		case "", ".":
			continue
		case "..":
			resolved = filepath.Dir(resolved)
			continue
		}

		next := filepath.Join(resolved, name)
		if !exists {
			resolved = next
			continue
		}
		info, err := os.Lstat(next)
		if missing(err) {
			exists = false
			resolved = next
			continue
		}
		if err != nil {
			return "", err
		}
		if info.Mode()&fs.ModeSymlink == 0 {
			resolved = next
			continue
		}

		links++
		if links > maxSymlinks {
			return "", fmt.Errorf("%s: too many levels of symbolic links", path)
		}
		target, err := os.Readlink(next)
		if err != nil {
			return "", err
		}
		if filepath.IsAbs(target) {
			resolved = sep
		}
		pending = append(strings.Split(target, sep), pending...)
	}
	return resolved, nil
}

// danglingLink reports whether the last component of path is a symlink whose
// target does not exist.
func danglingLink(path string) bool {
	base := filepath.Base(path)
	if base == "." || base == ".." || base == string(filepath.Separator) {
		return false
	}
	parent, err := canonicalize(filepath.Dir(path))
	if err != nil {
		return false
	}
	info, err := os.Lstat(filepath.Join(parent, base))
	if err != nil || info.Mode()&fs.ModeSymlink == 0 {
		return false
	}
	_, err = os.Stat(filepath.Join(parent, base))
	return missing(err)
}

// within reports whether path is root or below it.
func within(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}

// prepareDirectory creates the directory of file with mode 0700, removing a
// non-directory that occupies its path.
func prepareDirectory(file string, logger *slog.Logger) error {
	dir := filepath.Dir(file)
	info, err := os.Stat(dir)
	switch {
	case err == nil && info.IsDir():
		return nil
	case err == nil:
		logger.Warn("removing file in place of save directory", slog.String("path", dir))
		if err := os.Remove(dir); err != nil {
			return fmt.Errorf("%w %s: %w", ErrDirectory, dir, err)
		}
	case !missing(err):
		return fmt.Errorf("%w %s: %w", ErrDirectory, dir, err)
	}

	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("%w %s: %w", ErrDirectory, dir, err)
	}
	return nil
}
