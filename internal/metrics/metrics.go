// Package metrics exposes prometheus instrumentation for turns, completion
// attempts and the HTTP surface.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	completionAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "codegen_completion_attempts_total",
			Help: "Completion requests sent, by attempt kind and outcome",
		},
		[]string{"attempt", "outcome"},
	)

	turnsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "codegen_turns_total",
			Help: "Turns finished, by outcome",
		},
		[]string{"outcome"},
	)

	turnDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "codegen_turn_duration_seconds",
			Help:    "Wall time from submit to commit or failure",
			Buckets: []float64{.25, .5, 1, 2.5, 5, 10, 30, 60, 120},
		},
	)

	sessionsGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "codegen_sessions",
			Help: "Number of stored sessions",
		},
	)

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "codegen_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "codegen_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	initOnce sync.Once
)

// Outcome labels.
const (
	OutcomeOK           = "ok"
	OutcomeAPIError     = "api_error"
	OutcomeNetworkError = "network_error"
	OutcomeCommitted    = "committed"
	OutcomeFailed       = "failed"
)

// Init registers all collectors with the default registry. Safe to call
// more than once.
func Init() {
	initOnce.Do(func() {
		prometheus.MustRegister(
			completionAttempts,
			turnsTotal,
			turnDuration,
			sessionsGauge,
			httpRequestsTotal,
			httpRequestDuration,
		)
	})
}

// Handler returns the prometheus scrape handler.
func Handler() http.Handler {
	Init()
	return promhttp.Handler()
}

// RecordAttempt counts one completion request.
func RecordAttempt(attempt, outcome string) {
	completionAttempts.WithLabelValues(attempt, outcome).Inc()
}

// RecordTurn counts a finished turn and observes its duration.
func RecordTurn(outcome string, d time.Duration) {
	turnsTotal.WithLabelValues(outcome).Inc()
	turnDuration.Observe(d.Seconds())
}

// SetSessions reports the current number of stored sessions.
func SetSessions(n int) {
	sessionsGauge.Set(float64(n))
}

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(method, status string, d time.Duration) {
	httpRequestsTotal.WithLabelValues(method, status).Inc()
	httpRequestDuration.WithLabelValues(method).Observe(d.Seconds())
}
