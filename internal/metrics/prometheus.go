// Package metrics exposes Prometheus collectors for tenant governance
// decisions. All Record functions are no-ops until InitPrometheus runs.
package metrics

import (
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusMetrics wraps prometheus collectors for tenantgate metrics
type PrometheusMetrics struct {
	registry *prometheus.Registry

	// Counters
	authResultsTotal       *prometheus.CounterVec
	rateLimitDecisions     *prometheus.CounterVec
	quotaDecisionsTotal    *prometheus.CounterVec
	bestEffortFailures     *prometheus.CounterVec
	httpRequestsTotal      *prometheus.CounterVec
	rateLimitFallbackTotal prometheus.Counter

	// Histograms
	httpRequestDuration *prometheus.HistogramVec

	// Gauges
	activeRequests    prometheus.Gauge
	rateLimitDegraded prometheus.Gauge
}

// Default histogram buckets for request duration (in milliseconds)
var defaultBuckets = []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000}

var promMetrics atomic.Pointer[PrometheusMetrics]

// InitPrometheus initializes the Prometheus metrics subsystem
func InitPrometheus(namespace string, buckets []float64) {
	if len(buckets) == 0 {
		buckets = defaultBuckets
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(prometheus.NewGoCollector())
	registry.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))

	pm := &PrometheusMetrics{
		registry: registry,

		authResultsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "auth_results_total",
				Help:      "Credential resolutions by flow and result",
			},
			[]string{"flow", "result"},
		),

		rateLimitDecisions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rate_limit_decisions_total",
				Help:      "Rate limiter decisions by principal kind and outcome",
			},
			[]string{"principal", "outcome"},
		),

		quotaDecisionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "quota_decisions_total",
				Help:      "Quota checks by resource kind and result",
			},
			[]string{"kind", "result"},
		),

		bestEffortFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "best_effort_failures_total",
				Help:      "Dropped side effects such as audit writes and last-used updates",
			},
			[]string{"operation"},
		),

		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "HTTP requests by method, route and status",
			},
			[]string{"method", "route", "status"},
		),

		rateLimitFallbackTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rate_limit_fallback_total",
				Help:      "Times the distributed rate limit backend degraded to local counting",
			},
		),

		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_ms",
				Help:      "HTTP request duration in milliseconds",
				Buckets:   buckets,
			},
			[]string{"method", "route"},
		),

		activeRequests: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_requests",
				Help:      "Requests currently being served",
			},
		),

		rateLimitDegraded: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "rate_limit_degraded",
				Help:      "1 while the rate limiter runs on the local fallback backend",
			},
		),
	}

	registry.MustRegister(
		pm.authResultsTotal,
		pm.rateLimitDecisions,
		pm.quotaDecisionsTotal,
		pm.bestEffortFailures,
		pm.httpRequestsTotal,
		pm.rateLimitFallbackTotal,
		pm.httpRequestDuration,
		pm.activeRequests,
		pm.rateLimitDegraded,
	)

	promMetrics.Store(pm)
}

// RecordAuthResult records the outcome of a credential resolution.
func RecordAuthResult(flow, result string) {
	if pm := promMetrics.Load(); pm != nil {
		pm.authResultsTotal.WithLabelValues(flow, result).Inc()
	}
}

// RecordRateLimitDecision records one limiter decision.
// outcome: admitted, burst, rejected, unscoped
func RecordRateLimitDecision(principal, outcome string) {
	if pm := promMetrics.Load(); pm != nil {
		pm.rateLimitDecisions.WithLabelValues(principal, outcome).Inc()
	}
}

// RecordQuotaDecision records a quota check for a resource kind.
func RecordQuotaDecision(kind string, allowed bool) {
	pm := promMetrics.Load()
	if pm == nil {
		return
	}
	result := "allowed"
	if !allowed {
		result = "denied"
	}
	pm.quotaDecisionsTotal.WithLabelValues(kind, result).Inc()
}

// RecordBestEffortFailure counts a dropped side effect.
func RecordBestEffortFailure(operation string) {
	if pm := promMetrics.Load(); pm != nil {
		pm.bestEffortFailures.WithLabelValues(operation).Inc()
	}
}

// SetRateLimitDegraded flips the degraded gauge and counts transitions into
// degraded mode.
func SetRateLimitDegraded(degraded bool) {
	pm := promMetrics.Load()
	if pm == nil {
		return
	}
	if degraded {
		pm.rateLimitFallbackTotal.Inc()
		pm.rateLimitDegraded.Set(1)
		return
	}
	pm.rateLimitDegraded.Set(0)
}

// RecordHTTPRequest records a finished HTTP request.
func RecordHTTPRequest(method, route string, status int, elapsed time.Duration) {
	pm := promMetrics.Load()
	if pm == nil {
		return
	}
	pm.httpRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	pm.httpRequestDuration.WithLabelValues(method, route).Observe(float64(elapsed.Microseconds()) / 1000)
}

// IncActiveRequests increments the active requests gauge
func IncActiveRequests() {
	if pm := promMetrics.Load(); pm != nil {
		pm.activeRequests.Inc()
	}
}

// DecActiveRequests decrements the active requests gauge
func DecActiveRequests() {
	if pm := promMetrics.Load(); pm != nil {
		pm.activeRequests.Dec()
	}
}

// PrometheusHandler returns an HTTP handler for Prometheus metrics scraping
func PrometheusHandler() http.Handler {
	pm := promMetrics.Load()
	if pm == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte("prometheus metrics not initialized"))
		})
	}
	return promhttp.HandlerFor(pm.registry, promhttp.HandlerOpts{})
}

// PrometheusRegistry returns the prometheus registry (for custom collectors)
func PrometheusRegistry() *prometheus.Registry {
	if pm := promMetrics.Load(); pm != nil {
		return pm.registry
	}
	return nil
}
