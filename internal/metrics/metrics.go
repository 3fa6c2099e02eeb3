package metrics

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/denniswebb/fwkeeper/internal/persist"
)

// Result label values of operations_total.
const (
	ResultSuccess = "success"
	ResultPartial = "partial"
	ResultFailure = "failure"
	ResultSkipped = "skipped"
)

// Metrics bundles Prometheus instruments for save, clear and restore. It
// implements persist.Observer.
type Metrics struct {
	registry      *prometheus.Registry
	operations    *prometheus.CounterVec
	tableFailures *prometheus.CounterVec
	duration      *prometheus.HistogramVec
	lastSave      prometheus.Gauge
	rulesSaved    prometheus.Gauge
	logger        *slog.Logger
}

// NewMetrics constructs a Metrics instance with an isolated registry.
func NewMetrics(logger *slog.Logger) *Metrics {
	if logger == nil {
		logger = slog.Default()
	}
	registry := prometheus.NewRegistry()

	operations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fwkeeper",
		Name:      "operations_total",
		Help:      "Total number of save, clear and restore operations by result.",
	}, []string{"operation", "result"})

	tableFailures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fwkeeper",
		Name:      "table_failures_total",
		Help:      "Total number of tables that failed during an operation.",
	}, []string{"operation", "table"})

	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "fwkeeper",
		Name:      "operation_duration_seconds",
		Help:      "Duration of save, clear and restore operations.",
		Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
	}, []string{"operation"})

	lastSave := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "fwkeeper",
		Name:      "last_save_timestamp_seconds",
		Help:      "Unix time of the last save that wrote every table.",
	})

	rulesSaved := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "fwkeeper",
		Name:      "rules_saved",
		Help:      "Number of rules in the last written save file.",
	})

	registry.MustRegister(operations, tableFailures, duration, lastSave, rulesSaved)

	return &Metrics{
		registry:      registry,
		operations:    operations,
		tableFailures: tableFailures,
		duration:      duration,
		lastSave:      lastSave,
		rulesSaved:    rulesSaved,
		logger:        logger,
	}
}

// ObserveOutcome records a finished operation.
func (m *Metrics) ObserveOutcome(o persist.Outcome) {
	result := classify(o.Err)
	m.operations.WithLabelValues(o.Operation, result).Inc()
	if result == ResultSkipped {
		return
	}
	m.duration.WithLabelValues(o.Operation).Observe(o.Duration.Seconds())

	if o.Operation != persist.OpSave || result == ResultFailure {
		return
	}
	if result == ResultSuccess {
		m.lastSave.SetToCurrentTime()
	}
	count, err := CountSavedRules(o.Path)
	if err != nil {
		m.logger.Warn("unable to count saved rules", slog.String("path", o.Path), slog.Any("error", err))
		return
	}
	m.rulesSaved.Set(float64(count))
}

// ObserveTableFailure counts one failed table.
func (m *Metrics) ObserveTableFailure(operation, table string) {
	m.tableFailures.WithLabelValues(operation, table).Inc()
}

// Handler exposes the Prometheus scrape handler bound to the registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func classify(err error) string {
	switch {
	case err == nil:
		return ResultSuccess
	case errors.Is(err, persist.ErrAlreadyInProgress):
		return ResultSkipped
	case errors.Is(err, persist.ErrPartialFailure):
		return ResultPartial
	default:
		return ResultFailure
	}
}
