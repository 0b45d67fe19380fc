package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Prometheus metrics — bounded label sets only. Outcome labels come from
// the fixed usage-event code enumeration, never from request data.
var (
	requestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "relaykey_requests_total",
		Help: "Proxied requests by terminal outcome (forwarded or a block code)",
	}, []string{"outcome"})
	requestDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "relaykey_request_duration_seconds",
		Help:    "End-to-end latency of proxied requests",
		Buckets: prometheus.DefBuckets,
	})
	upstreamAttemptsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "relaykey_upstream_attempts_total",
		Help: "Outbound attempts issued to partners, retries included",
	})
	retriesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "relaykey_retries_total",
		Help: "Retry decisions after a retryable failure",
	}, []string{"allowed"})
	usageInsertErrorsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "relaykey_usage_insert_errors_total",
		Help: "Usage events that failed to persist (logged and dropped)",
	})
)

func init() {
	// Register eagerly. If /metrics is never mounted the registration is harmless.
	prometheus.MustRegister(requestsTotal, requestDuration, upstreamAttemptsTotal, retriesTotal, usageInsertErrorsTotal)
}

// ObserveRequest records one terminal outcome and its latency.
// outcome is "forwarded" or a block code.
func ObserveRequest(outcome string, seconds float64) {
	requestsTotal.WithLabelValues(outcome).Inc()
	requestDuration.Observe(seconds)
}

// ObserveUpstreamAttempt counts one outbound send.
func ObserveUpstreamAttempt() { upstreamAttemptsTotal.Inc() }

// ObserveRetryDecision counts a retry that was considered after a
// retryable failure; allowed reports whether the budget admitted it.
func ObserveRetryDecision(allowed bool) {
	if allowed {
		retriesTotal.WithLabelValues("true").Inc()
	} else {
		retriesTotal.WithLabelValues("false").Inc()
	}
}

// ObserveUsageInsertError counts a dropped usage event.
func ObserveUsageInsertError() { usageInsertErrorsTotal.Inc() }
