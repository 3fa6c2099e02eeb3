package netfilter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// ErrTableUnavailable reports that a rule table could not be read from the
// kernel, even after loading the ip_tables module.
var ErrTableUnavailable = errors.New("rule table unavailable")

// Kernel is the access handle to the in-kernel rule tables.
type Kernel interface {
	// Open reads a fresh snapshot of the named table.
	Open(ctx context.Context, name string) (*Table, error)
	// Replace commits t atomically in place of the kernel's current table.
	Replace(ctx context.Context, t *Table) error
}

// ModuleLoader loads the kernel module backing the rule tables.
type ModuleLoader interface {
	Load(ctx context.Context) error
}

// UnavailableError wraps the failure to open a table. It matches
// ErrTableUnavailable.
type UnavailableError struct {
	Table string
	Err   error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("table %s: %v: %v", e.Table, ErrTableUnavailable, e.Err)
}

func (e *UnavailableError) Unwrap() error {
	return e.Err
}

func (e *UnavailableError) Is(target error) bool {
	return target == ErrTableUnavailable
}

// OpenWithRetry opens the named table. When the first attempt fails it asks
// loader to load the kernel module and tries exactly once more. A nil loader
// disables the retry.
func OpenWithRetry(ctx context.Context, kernel Kernel, loader ModuleLoader, name string, logger *slog.Logger) (*Table, error) {
	if logger == nil {
		logger = slog.Default()
	}

	table, err := kernel.Open(ctx, name)
	if err == nil {
		return table, nil
	}
	if loader == nil {
		return nil, &UnavailableError{Table: name, Err: err}
	}

	logger.Debug("table open failed, loading kernel module", slog.String("table", name), slog.Any("error", err))
	if loadErr := loader.Load(ctx); loadErr != nil {
		logger.Warn("kernel module load failed", slog.String("table", name), slog.Any("error", loadErr))
	}

	table, err = kernel.Open(ctx, name)
	if err != nil {
		return nil, &UnavailableError{Table: name, Err: err}
	}
	return table, nil
}
