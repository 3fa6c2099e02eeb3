package persist

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.uber.org/multierr"

	"github.com/denniswebb/fwkeeper/internal/netfilter"
)

// ClearerConfig holds the dependencies and settings for the Clearer.
type ClearerConfig struct {
	Kernel     netfilter.Kernel
	Loader     netfilter.ModuleLoader
	TablesFile string
	Observer   Observer
	Logger     *slog.Logger
}

// Clearer flushes kernel tables.
type Clearer struct {
	cfg    ClearerConfig
	logger *slog.Logger
}

// NewClearer validates the configuration and returns a Clearer.
func NewClearer(cfg ClearerConfig) (*Clearer, error) {
	if cfg.Kernel == nil {
		return nil, fmt.Errorf("kernel handle is required")
	}
	if cfg.TablesFile == "" {
		cfg.TablesFile = netfilter.DefaultTablesFile
	}
	if cfg.Observer == nil {
		cfg.Observer = nopObserver{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Clearer{cfg: cfg, logger: logger}, nil
}

// Clear removes every rule from every chain of table and commits the table.
// With an empty name it clears every loaded table, continuing past failures;
// the result then matches ErrPartialFailure if any table failed.
func (c *Clearer) Clear(ctx context.Context, table string) (err error) {
	start := time.Now()
	outcome := Outcome{Operation: OpClear}
	defer func() {
		outcome.Duration = time.Since(start)
		outcome.Err = err
		c.cfg.Observer.ObserveOutcome(outcome)
	}()

	names := []string{table}
	if table == "" {
		names, err = netfilter.ListTables(c.cfg.TablesFile, c.logger)
		if err != nil {
			return err
		}
	}

	var failures error
	for _, name := range names {
		outcome.Tables++
		if err := c.clearTable(ctx, name); err != nil {
			outcome.Failed++
			c.cfg.Observer.ObserveTableFailure(OpClear, name)
			c.logger.Error("table clear failed", slog.String("table", name), slog.Any("error", err))
			failures = multierr.Append(failures, &TableError{Table: name, Err: err})
		}
	}

	switch {
	case failures == nil:
		return nil
	case table != "":
		return failures
	default:
		return fmt.Errorf("%w: %w", ErrPartialFailure, failures)
	}
}

func (c *Clearer) clearTable(ctx context.Context, name string) error {
	t, err := netfilter.OpenWithRetry(ctx, c.cfg.Kernel, c.cfg.Loader, name, c.logger)
	if err != nil {
		return err
	}
	flushed := t.RuleCount()
	t.Flush()
	if err := c.cfg.Kernel.Replace(ctx, t); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	c.logger.Info("cleared table", slog.String("table", name), slog.Int("rules", flushed))
	return nil
}
