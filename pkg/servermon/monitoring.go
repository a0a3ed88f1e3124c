// The servermon package is used to update statistics used
// for monitoring the review pipeline and the API server.
package servermon

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	IngestRecordsCount = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "aegis",
		Subsystem: "ingest",
		Name:      "records_total",
		Help:      "The number of identity records ingested.",
	}, []string{"format"})
	IngestFailuresCount = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "aegis",
		Subsystem: "ingest",
		Name:      "failures_total",
		Help:      "The number of identity records rejected during ingest.",
	}, []string{"format"})
	ScoringRequestsCount = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "aegis",
		Subsystem: "scoring",
		Name:      "requests_total",
		Help:      "The number of scoring batch requests.",
	}, []string{"scorer", "outcome"})
	ScoringRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "aegis",
		Subsystem: "scoring",
		Name:      "request_duration_seconds",
		Help:      "Histogram of scoring batch time in seconds",
		Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
	}, []string{"scorer"})
	ScoringFallbacksCount = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "aegis",
		Subsystem: "scoring",
		Name:      "fallbacks_total",
		Help:      "The number of runs that switched to the fallback scorer.",
	})
	ReviewRunsCount = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "aegis",
		Subsystem: "review",
		Name:      "runs_total",
		Help:      "The number of review runs by trigger and final status.",
	}, []string{"trigger", "status"})
	ReviewRunDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "aegis",
		Subsystem: "review",
		Name:      "run_duration_seconds",
		Help:      "Histogram of review run wall-clock time in seconds",
		Buckets:   []float64{.1, .5, 1, 2.5, 5, 10, 30, 60, 300},
	})
	ReviewDecisionsCount = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "aegis",
		Subsystem: "review",
		Name:      "decisions_total",
		Help:      "The number of review decisions recorded.",
	}, []string{"decision"})
	AuditChainRecordsCount = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "aegis",
		Subsystem: "audit",
		Name:      "chain_records_total",
		Help:      "The number of records appended to audit chains.",
	})
	AuditChainVerificationsCount = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "aegis",
		Subsystem: "audit",
		Name:      "chain_verifications_total",
		Help:      "The number of audit chain verifications.",
	}, []string{"result"})
	AuthenticationAttemptsCount = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "aegis",
		Subsystem: "authn",
		Name:      "attempts_total",
		Help:      "The number of authentication attempts.",
	}, []string{"result"})
	ResponseTimeHistogram = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "aegis",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "The duration of handling an HTTP request in seconds.",
		Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
	}, []string{"route", "method", "status_code"})
)

// DurationObserver returns a function that, when run with `defer` will
// record the duration of the parent function's execution.
func DurationObserver(m *prometheus.HistogramVec, labelValues ...string) func() {
	start := time.Now()
	return func() {
		m.WithLabelValues(labelValues...).Observe(time.Since(start).Seconds())
	}
}

// ErrorCounter increases the specified counter if the error is not nil.
func ErrorCounter(m *prometheus.CounterVec, err *error, labelValues ...string) {
	if *err == nil {
		return
	}

	m.WithLabelValues(labelValues...).Inc()
}
