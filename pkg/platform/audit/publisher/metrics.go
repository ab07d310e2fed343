package publisher

import (
	audit "landdocs/pkg/platform/audit"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for audit delivery.
type Metrics struct {
	Emitted               *prometheus.CounterVec
	Dropped               prometheus.Counter
	CircuitBreakerDropped prometheus.Counter
	PersistFailures       prometheus.Counter
	PersistDuration       prometheus.Histogram
	CircuitBreakerState   prometheus.Gauge
}

// NewMetrics registers audit metrics with reg. Pass prometheus.DefaultRegisterer
// in production and a fresh registry in tests.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Emitted: f.NewCounterVec(prometheus.CounterOpts{
			Name: "landdocs_audit_events_emitted_total",
			Help: "Total number of audit events persisted, by category",
		}, []string{"category"}),
		Dropped: f.NewCounter(prometheus.CounterOpts{
			Name: "landdocs_audit_events_dropped_total",
			Help: "Total number of audit events dropped because the async buffer was full",
		}),
		CircuitBreakerDropped: f.NewCounter(prometheus.CounterOpts{
			Name: "landdocs_audit_circuit_breaker_dropped_total",
			Help: "Total number of audit events dropped while the circuit breaker was open",
		}),
		PersistFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "landdocs_audit_persist_failures_total",
			Help: "Total number of audit store write failures",
		}),
		PersistDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "landdocs_audit_persist_duration_seconds",
			Help:    "Time taken to write an audit event to the store",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		}),
		CircuitBreakerState: f.NewGauge(prometheus.GaugeOpts{
			Name: "landdocs_audit_circuit_breaker_state",
			Help: "Current circuit breaker state (0=closed/healthy, 1=open/unhealthy)",
		}),
	}
}

func (m *Metrics) IncEmitted(category audit.EventCategory) {
	m.Emitted.WithLabelValues(string(category)).Inc()
}

func (m *Metrics) IncDropped() {
	m.Dropped.Inc()
}

func (m *Metrics) IncCircuitBreakerDropped() {
	m.CircuitBreakerDropped.Inc()
}

func (m *Metrics) IncPersistFailures() {
	m.PersistFailures.Inc()
}

func (m *Metrics) ObservePersistDuration(seconds float64) {
	m.PersistDuration.Observe(seconds)
}

func (m *Metrics) SetCircuitBreakerState(open bool) {
	if open {
		m.CircuitBreakerState.Set(1)
	} else {
		m.CircuitBreakerState.Set(0)
	}
}
