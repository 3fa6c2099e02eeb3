package persist

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// SaveRunner performs one save.
type SaveRunner interface {
	Save(ctx context.Context, path string) (string, error)
}

// SaveHandler reacts to a save that wrote its file, including a partial one.
type SaveHandler interface {
	OnSaved(ctx context.Context, path string) error
}

// SchedulerConfig holds the dependencies and settings for the Scheduler.
type SchedulerConfig struct {
	Saver    SaveRunner
	Path     string
	Interval time.Duration
	Logger   *slog.Logger
	Handlers []SaveHandler
}

// Scheduler saves the rule tables periodically.
type Scheduler struct {
	cfg    SchedulerConfig
	logger *slog.Logger

	mu        sync.RWMutex
	lastSaved time.Time
	lastErr   error
}

// NewScheduler validates the configuration and returns a Scheduler ready to run.
func NewScheduler(cfg SchedulerConfig) (*Scheduler, error) {
	if cfg.Saver == nil {
		return nil, fmt.Errorf("saver is required")
	}
	if cfg.Interval <= 0 {
		return nil, fmt.Errorf("save interval must be positive")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{cfg: cfg, logger: logger}, nil
}

// Run saves immediately and then on every interval until ctx is canceled.
func (s *Scheduler) Run(ctx context.Context) {
	s.logger.Info("starting save scheduler",
		slog.String("path", s.cfg.Path),
		slog.String("interval", s.cfg.Interval.String()),
	)

	ticker := time.NewTicker(s.cfg.Interval)
	defer func() {
		ticker.Stop()
		s.logger.Info("stopping save scheduler")
	}()

	s.saveOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.saveOnce(ctx)
		}
	}
}

// LastResult returns when the last save finished and its error.
func (s *Scheduler) LastResult() (time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastSaved, s.lastErr
}

func (s *Scheduler) saveOnce(ctx context.Context) {
	path, err := s.cfg.Saver.Save(ctx, s.cfg.Path)

	s.mu.Lock()
	s.lastSaved = time.Now()
	s.lastErr = err
	s.mu.Unlock()

	switch {
	case errors.Is(err, ErrAlreadyInProgress):
		s.logger.Debug("save skipped, another save is running")
		return
	case err != nil && !errors.Is(err, ErrPartialFailure):
		s.logger.Warn("scheduled save failed", slog.Any("error", err))
		return
	case err != nil:
		s.logger.Warn("scheduled save incomplete", slog.String("path", path), slog.Any("error", err))
	default:
		s.logger.Debug("scheduled save complete", slog.String("path", path))
	}

	for _, h := range s.cfg.Handlers {
		if err := h.OnSaved(ctx, path); err != nil {
			s.logger.Warn("save handler failed",
				slog.String("path", path),
				slog.Any("error", err),
			)
		}
	}
}
