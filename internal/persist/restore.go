package persist

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/denniswebb/fwkeeper/internal/iptables"
)

// Replayer loads the chains and rules of one parsed table into the kernel.
type Replayer interface {
	Replay(ctx context.Context, table *iptables.SavedTable) error
}

// RestorerConfig holds the dependencies and settings for the Restorer.
type RestorerConfig struct {
	Root     string
	Clearer  *Clearer
	Replayer Replayer
	Guard    *Guard
	Observer Observer
	Logger   *slog.Logger
}

// Restorer loads a save file back into the kernel.
type Restorer struct {
	cfg    RestorerConfig
	policy PathPolicy
	logger *slog.Logger
}

// NewRestorer validates the configuration and returns a Restorer.
func NewRestorer(cfg RestorerConfig) (*Restorer, error) {
	if cfg.Root == "" {
		return nil, fmt.Errorf("storage root is required")
	}
	if cfg.Clearer == nil {
		return nil, fmt.Errorf("clearer is required")
	}
	if cfg.Replayer == nil {
		return nil, fmt.Errorf("replayer is required")
	}
	if cfg.Guard == nil {
		cfg.Guard = NewGuard()
	}
	if cfg.Observer == nil {
		cfg.Observer = nopObserver{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Restorer{cfg: cfg, policy: PathPolicy{Root: cfg.Root}, logger: logger}, nil
}

// Restore reads path, or the default IPv4 save file when path is empty, and
// replaces each table it names: the table is cleared, then its chains,
// policies and rules are replayed in file order. Tables not named in the file
// are left alone. A failed table does not stop the others.
func (r *Restorer) Restore(ctx context.Context, path string) (src string, err error) {
	release, ok := r.cfg.Guard.TryAcquire()
	if !ok {
		return "", ErrAlreadyInProgress
	}
	defer release()

	logger := r.logger.With(slog.String("session", uuid.NewString()), slog.String("operation", OpRestore))
	start := time.Now()
	outcome := Outcome{Operation: OpRestore}
	defer func() {
		outcome.Path = src
		outcome.Duration = time.Since(start)
		outcome.Err = err
		r.cfg.Observer.ObserveOutcome(outcome)
	}()

	if path == "" {
		if path, err = DefaultSavePath(r.cfg.Root, 4); err != nil {
			return "", err
		}
	}
	src, err = r.policy.Resolve(path)
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(src); missing(err) {
		return src, invalidTarget(path, "does not exist")
	}

	f, err := os.Open(src)
	if err != nil {
		return src, fmt.Errorf("open save file: %w", err)
	}
	defer f.Close()

	tables, err := iptables.ParseSave(f)
	if err != nil {
		return src, err
	}

	logger.Info("restoring rule tables", slog.String("path", src), slog.Int("tables", len(tables)))

	var failures error
	for _, table := range tables {
		outcome.Tables++
		if err := r.restoreTable(ctx, table); err != nil {
			outcome.Failed++
			r.cfg.Observer.ObserveTableFailure(OpRestore, table.Name)
			logger.Error("table restore failed", slog.String("table", table.Name), slog.Any("error", err))
			failures = multierr.Append(failures, &TableError{Table: table.Name, Err: err})
		}
	}
	if failures != nil {
		return src, fmt.Errorf("%w: %w", ErrPartialFailure, failures)
	}
	return src, nil
}

func (r *Restorer) restoreTable(ctx context.Context, table *iptables.SavedTable) error {
	if err := r.cfg.Clearer.clearTable(ctx, table.Name); err != nil {
		return fmt.Errorf("clear: %w", err)
	}
	if err := r.cfg.Replayer.Replay(ctx, table); err != nil {
		return fmt.Errorf("replay: %w", err)
	}
	return nil
}
