package storage

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks storage operation counters for monitoring. A nil *Metrics
// is valid and records nothing, so tests and embedded uses can skip
// registration entirely.
type Metrics struct {
	saves           *prometheus.CounterVec
	savedBytes      *prometheus.CounterVec
	retries         *prometheus.CounterVec
	failures        *prometheus.CounterVec
	corruptions     prometheus.Counter
	quotaRejections *prometheus.CounterVec
	opDuration      *prometheus.HistogramVec
}

// NewMetrics creates and registers storage metrics on the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		saves: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "cartoprint_storage_saves_total",
			Help: "Completed save operations by namespace and outcome.",
		}, []string{"namespace", "outcome"}),
		savedBytes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "cartoprint_storage_saved_bytes_total",
			Help: "Payload bytes successfully written by namespace.",
		}, []string{"namespace"}),
		retries: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "cartoprint_storage_retries_total",
			Help: "Retry attempts by operation and error kind.",
		}, []string{"operation", "kind"}),
		failures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "cartoprint_storage_failures_total",
			Help: "Classified storage failures by error kind.",
		}, []string{"kind"}),
		corruptions: factory.NewCounter(prometheus.CounterOpts{
			Name: "cartoprint_storage_corruptions_total",
			Help: "Integrity checks that detected corruption.",
		}),
		quotaRejections: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "cartoprint_storage_quota_rejections_total",
			Help: "Writes rejected by the namespace quota check.",
		}, []string{"namespace"}),
		opDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "cartoprint_storage_operation_seconds",
			Help:    "Storage operation latency by operation.",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
	}
}

// RecordSave records a completed save attempt.
func (m *Metrics) RecordSave(ns Namespace, outcome string, bytes int64) {
	if m == nil {
		return
	}
	m.saves.WithLabelValues(string(ns), outcome).Inc()
	if outcome == "success" {
		m.savedBytes.WithLabelValues(string(ns)).Add(float64(bytes))
	}
}

// RecordRetry records one retry attempt.
func (m *Metrics) RecordRetry(operation string, kind ErrorKind) {
	if m == nil {
		return
	}
	m.retries.WithLabelValues(operation, string(kind)).Inc()
}

// RecordFailure records a classified failure that propagated to a caller.
func (m *Metrics) RecordFailure(kind ErrorKind) {
	if m == nil {
		return
	}
	m.failures.WithLabelValues(string(kind)).Inc()
}

// RecordCorruption records a detected integrity failure.
func (m *Metrics) RecordCorruption() {
	if m == nil {
		return
	}
	m.corruptions.Inc()
}

// RecordQuotaRejection records a write refused by the quota guard.
func (m *Metrics) RecordQuotaRejection(ns Namespace) {
	if m == nil {
		return
	}
	m.quotaRejections.WithLabelValues(string(ns)).Inc()
}

// ObserveDuration records the latency of one operation.
func (m *Metrics) ObserveDuration(operation string, start time.Time) {
	if m == nil {
		return
	}
	m.opDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}
