// Package metrics exposes engine health instruments. All methods are
// nil-receiver safe so services can treat the dependency as optional.
package metrics

import (
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Config labels every instrument with the deployment identity.
type Config struct {
	ServiceName string
	Environment string
}

// Metrics captures inventory engine throughput and latency signals.
type Metrics struct {
	operations  *prometheus.CounterVec
	opErrors    *prometheus.CounterVec
	opDuration  *prometheus.HistogramVec
	usageEvents *prometheus.CounterVec
}

// New registers the engine instruments on the given registerer.
func New(registerer prometheus.Registerer, cfg Config) *Metrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "fixtrack"
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "unknown"
	}
	constLabels := prometheus.Labels{
		"service": serviceName,
		"env":     environment,
	}

	operations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "fixtrack_engine_operations_total",
		Help:        "Engine operations by module and operation.",
		ConstLabels: constLabels,
	}, []string{"module", "op"})
	opErrors := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "fixtrack_engine_operation_errors_total",
		Help:        "Engine operation failures by module and operation.",
		ConstLabels: constLabels,
	}, []string{"module", "op"})
	opDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:        "fixtrack_engine_operation_duration_seconds",
		Help:        "Engine operation latency including the unit of work.",
		Buckets:     []float64{0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		ConstLabels: constLabels,
	}, []string{"module", "op"})
	usageEvents := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "fixtrack_usage_events_total",
		Help:        "Usage events recorded by level.",
		ConstLabels: constLabels,
	}, []string{"level"})

	registerer.MustRegister(
		operations,
		opErrors,
		opDuration,
		usageEvents,
	)

	return &Metrics{
		operations:  operations,
		opErrors:    opErrors,
		opDuration:  opDuration,
		usageEvents: usageEvents,
	}
}

// IncOperation counts one completed engine operation.
func (m *Metrics) IncOperation(module, op string) {
	if m == nil || m.operations == nil {
		return
	}
	m.operations.WithLabelValues(module, op).Inc()
}

// IncOperationError counts one failed engine operation.
func (m *Metrics) IncOperationError(module, op string) {
	if m == nil || m.opErrors == nil {
		return
	}
	m.opErrors.WithLabelValues(module, op).Inc()
}

// ObserveOperation records the latency of an engine operation.
func (m *Metrics) ObserveOperation(module, op string, duration time.Duration) {
	if m == nil || m.opDuration == nil {
		return
	}
	m.opDuration.WithLabelValues(module, op).Observe(duration.Seconds())
}

// AddUsageEvents counts recorded usage events by level.
func (m *Metrics) AddUsageEvents(level string, count int) {
	if m == nil || m.usageEvents == nil || count <= 0 {
		return
	}
	m.usageEvents.WithLabelValues(level).Add(float64(count))
}
