package persist

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/denniswebb/fwkeeper/internal/netfilter"
)

// TableRenderer renders the save block of one kernel table.
type TableRenderer interface {
	RenderTable(ctx context.Context, name string) ([]byte, error)
}

// SaverConfig holds the dependencies and settings for the Saver.
type SaverConfig struct {
	Root       string
	TablesFile string
	Renderer   TableRenderer
	Guard      *Guard
	Observer   Observer
	Logger     *slog.Logger
}

// Saver writes every kernel table to a save file.
type Saver struct {
	cfg    SaverConfig
	policy PathPolicy
	sink   Sink
	logger *slog.Logger
}

// NewSaver validates the configuration and returns a Saver.
func NewSaver(cfg SaverConfig) (*Saver, error) {
	if cfg.Root == "" {
		return nil, fmt.Errorf("storage root is required")
	}
	if cfg.Renderer == nil {
		return nil, fmt.Errorf("table renderer is required")
	}
	if cfg.TablesFile == "" {
		cfg.TablesFile = netfilter.DefaultTablesFile
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
	return &Saver{
		cfg:    cfg,
		policy: PathPolicy{Root: cfg.Root},
		logger: logger,
	}, nil
}

// Save writes all tables to path, or to the default IPv4 save file when path
// is empty, and returns the file written. A table that fails to render is
// skipped and the result matches ErrPartialFailure; the other tables are
// still written.
func (s *Saver) Save(ctx context.Context, path string) (dest string, err error) {
	release, ok := s.cfg.Guard.TryAcquire()
	if !ok {
		return "", ErrAlreadyInProgress
	}
	defer release()

	logger := s.logger.With(slog.String("session", uuid.NewString()), slog.String("operation", OpSave))
	start := time.Now()
	outcome := Outcome{Operation: OpSave}
	defer func() {
		outcome.Path = dest
		outcome.Duration = time.Since(start)
		outcome.Err = err
		s.cfg.Observer.ObserveOutcome(outcome)
	}()

	dest, err = s.destination(path)
	if err != nil {
		return "", err
	}
	if err := prepareDirectory(dest, logger); err != nil {
		return dest, err
	}

	names, err := netfilter.ListTables(s.cfg.TablesFile, logger)
	if err != nil {
		return dest, err
	}

	if err := s.sink.Open(dest); err != nil {
		return dest, err
	}
	defer func() {
		if cerr := s.sink.Close(); cerr != nil {
			err = multierr.Append(err, cerr)
		}
	}()

	logger.Info("saving rule tables", slog.String("path", dest), slog.Int("tables", len(names)))

	var failures error
	for _, name := range names {
		outcome.Tables++
		if err := s.saveTable(ctx, name); err != nil {
			outcome.Failed++
			s.cfg.Observer.ObserveTableFailure(OpSave, name)
			logger.Error("table save failed", slog.String("table", name), slog.Any("error", err))
			failures = multierr.Append(failures, &TableError{Table: name, Err: err})
		}
	}

	if failures != nil {
		return dest, fmt.Errorf("%w: %w", ErrPartialFailure, failures)
	}
	logger.Info("rule tables saved", slog.String("path", dest), slog.Int("tables", len(names)))
	return dest, nil
}

func (s *Saver) saveTable(ctx context.Context, name string) error {
	block, err := s.cfg.Renderer.RenderTable(ctx, name)
	if err != nil {
		return err
	}
	return s.sink.Append(block)
}

func (s *Saver) destination(path string) (string, error) {
	if path == "" {
		def, err := DefaultSavePath(s.cfg.Root, 4)
		if err != nil {
			return "", err
		}
		path = def
	}
	dest, err := s.policy.Resolve(path)
	if err != nil {
		if errors.Is(err, ErrInvalidTarget) {
			s.logger.Warn("rejected save destination", slog.String("path", path), slog.Any("error", err))
		}
		return "", err
	}
	return dest, nil
}
