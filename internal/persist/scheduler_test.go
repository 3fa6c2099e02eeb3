package persist

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type stubSaver struct {
	mu    sync.Mutex
	calls int
	path  string
	err   error
}

func (s *stubSaver) Save(_ context.Context, path string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if path == "" {
		path = s.path
	}
	return path, s.err
}

type recordingHandler struct {
	mu    sync.Mutex
	paths []string
	err   error
	seen  chan string
}

func (h *recordingHandler) OnSaved(_ context.Context, path string) error {
	h.mu.Lock()
	h.paths = append(h.paths, path)
	h.mu.Unlock()
	if h.seen != nil {
		h.seen <- path
	}
	return h.err
}

func TestNewSchedulerValidation(t *testing.T) {
	t.Parallel()

	_, err := NewScheduler(SchedulerConfig{Interval: time.Second})
	require.ErrorContains(t, err, "saver is required")

	_, err = NewScheduler(SchedulerConfig{Saver: &stubSaver{}})
	require.ErrorContains(t, err, "save interval must be positive")
}

func TestSchedulerHandlers(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		err         error
		wantHandled bool
	}{
		{name: "success", wantHandled: true},
		{name: "partial failure", err: ErrPartialFailure, wantHandled: true},
		{name: "already in progress", err: ErrAlreadyInProgress},
		{name: "hard failure", err: ErrInvalidTarget},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			saver := &stubSaver{path: "/var/lib/fwkeeper/iptables/rules.v4", err: tc.err}
			failing := &recordingHandler{err: errors.New("publish failed")}
			handler := &recordingHandler{}
			scheduler, err := NewScheduler(SchedulerConfig{
				Saver:    saver,
				Interval: time.Minute,
				Logger:   discardLogger(),
				Handlers: []SaveHandler{failing, handler},
			})
			require.NoError(t, err)

			scheduler.saveOnce(context.Background())

			if tc.wantHandled {
				require.Equal(t, []string{saver.path}, handler.paths)
			} else {
				require.Empty(t, handler.paths)
			}
			at, lastErr := scheduler.LastResult()
			require.False(t, at.IsZero())
			require.ErrorIs(t, lastErr, tc.err)
		})
	}
}

func TestSchedulerRunSavesImmediately(t *testing.T) {
	t.Parallel()

	saver := &stubSaver{path: "/srv/rules.v4"}
	handler := &recordingHandler{seen: make(chan string, 1)}
	scheduler, err := NewScheduler(SchedulerConfig{
		Saver:    saver,
		Interval: time.Hour,
		Logger:   discardLogger(),
		Handlers: []SaveHandler{handler},
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		scheduler.Run(ctx)
		close(done)
	}()

	select {
	case path := <-handler.seen:
		require.Equal(t, "/srv/rules.v4", path)
	case <-time.After(5 * time.Second):
		t.Fatal("first save did not run")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("scheduler did not stop")
	}
	require.Equal(t, 1, saver.calls)
}
