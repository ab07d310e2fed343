package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var durationBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5}

// Metrics covers the issuance core: how requests resolve, how long they
// hold locks, and the failures that need attention.
type Metrics struct {
	Issued           *prometheus.CounterVec
	Failures         *prometheus.CounterVec
	LockTimeouts     prometheus.Counter
	DuplicateActive  prometheus.Counter
	NumbersAllocated *prometheus.CounterVec
	Retired          *prometheus.CounterVec
	IssueDuration    *prometheus.HistogramVec
}

// New registers the issuance metrics on reg. Pass a fresh registry in tests.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Issued: f.NewCounterVec(prometheus.CounterOpts{
			Name: "landdocs_issuance_total",
			Help: "Issuance requests by document type and outcome (CREATED, REUSED, SELF_HEALED, REISSUED)",
		}, []string{"document_type", "outcome"}),
		Failures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "landdocs_issuance_failures_total",
			Help: "Failed issuance requests by document type and error code",
		}, []string{"document_type", "code"}),
		LockTimeouts: f.NewCounter(prometheus.CounterOpts{
			Name: "landdocs_issuance_lock_timeouts_total",
			Help: "Scope or sequence locks not granted within the lock timeout",
		}),
		DuplicateActive: f.NewCounter(prometheus.CounterOpts{
			Name: "landdocs_issuance_duplicate_active_total",
			Help: "Inserts rejected because the scope already had an ACTIVE record",
		}),
		NumbersAllocated: f.NewCounterVec(prometheus.CounterOpts{
			Name: "landdocs_numbers_allocated_total",
			Help: "Legal numbers allocated by document type",
		}, []string{"document_type"}),
		Retired: f.NewCounterVec(prometheus.CounterOpts{
			Name: "landdocs_documents_retired_total",
			Help: "Documents marked DELETED by document type",
		}, []string{"document_type"}),
		IssueDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "landdocs_issuance_duration_seconds",
			Help:    "End-to-end issuance latency including lock waits",
			Buckets: durationBuckets,
		}, []string{"document_type"}),
	}
}

func (m *Metrics) IncIssued(documentType, outcome string) {
	m.Issued.WithLabelValues(documentType, outcome).Inc()
}

func (m *Metrics) IncFailure(documentType, code string) {
	m.Failures.WithLabelValues(documentType, code).Inc()
}

func (m *Metrics) IncLockTimeout() {
	m.LockTimeouts.Inc()
}

func (m *Metrics) IncDuplicateActive() {
	m.DuplicateActive.Inc()
}

func (m *Metrics) IncNumberAllocated(documentType string) {
	m.NumbersAllocated.WithLabelValues(documentType).Inc()
}

func (m *Metrics) IncRetired(documentType string) {
	m.Retired.WithLabelValues(documentType).Inc()
}

// ObserveIssue records latency since start.
func (m *Metrics) ObserveIssue(documentType string, start time.Time) {
	m.IssueDuration.WithLabelValues(documentType).Observe(time.Since(start).Seconds())
}
