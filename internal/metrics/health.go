package metrics

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/denniswebb/fwkeeper/internal/logging"
	"github.com/denniswebb/fwkeeper/internal/persist"
)

// HealthChecker reports ready once a save has written every table. It
// implements persist.Observer.
type HealthChecker struct {
	mu      sync.RWMutex
	savedAt time.Time
	logger  *slog.Logger
}

// NewHealthChecker returns a HealthChecker with a logger derived from the shared logging package.
func NewHealthChecker() *HealthChecker {
	logger := logging.GetLogger()
	if logger == nil {
		logger = slog.Default()
	}

	return &HealthChecker{logger: logger}
}

// SetSaved records a complete save.
func (h *HealthChecker) SetSaved(at time.Time) {
	h.mu.Lock()
	h.savedAt = at
	h.mu.Unlock()
}

// IsHealthy reports whether a complete save has happened.
func (h *HealthChecker) IsHealthy() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return !h.savedAt.IsZero()
}

// ObserveOutcome marks the checker ready after a save without errors.
func (h *HealthChecker) ObserveOutcome(o persist.Outcome) {
	if o.Operation == persist.OpSave && o.Err == nil {
		h.SetSaved(time.Now())
	}
}

// ObserveTableFailure implements persist.Observer.
func (h *HealthChecker) ObserveTableFailure(string, string) {}

// Handler produces an HTTP handler for the /healthz endpoint.
func (h *HealthChecker) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.mu.RLock()
		savedAt := h.savedAt
		h.mu.RUnlock()

		w.Header().Set("Content-Type", "text/plain; charset=utf-8")

		if !savedAt.IsZero() {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("OK\n"))
			return
		}

		h.logger.Warn("health check not yet passing", slog.Bool("saved", false))
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("Service Unavailable\n"))
	})
}
