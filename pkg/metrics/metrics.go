// Package metrics defines the Prometheus collectors used by the search and
// expansion services and exposes an HTTP handler for scraping.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Adithya-Monish-Kumar-K/feedback-search/pkg/resilience"
)

// Metrics holds all Prometheus collectors.
type Metrics struct {
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge
	SearchQueriesTotal   *prometheus.CounterVec
	SearchLatency        *prometheus.HistogramVec
	SearchResultsCount   prometheus.Histogram
	CacheHitsTotal       prometheus.Counter
	CacheMissesTotal     prometheus.Counter
	DocsIndexedTotal     prometheus.Counter
	IndexFlushesTotal    *prometheus.CounterVec
	ExpansionsTotal      *prometheus.CounterVec
	ExpansionFailures    *prometheus.CounterVec
	EstimatorIterations  prometheus.Histogram
	ExpansionLatency     prometheus.Histogram
	CircuitBreakerState  *prometheus.GaugeVec
}

// New creates all collectors and registers them with reg. Tests pass a
// fresh prometheus.NewRegistry(); services pass prometheus.DefaultRegisterer.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed.",
			},
		),
		SearchQueriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "search_queries_total",
				Help: "Total search queries by result type (hit, zero_result, error).",
			},
			[]string{"result_type"},
		),
		SearchLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "search_latency_seconds",
				Help:    "Search query latency in seconds.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
			},
			[]string{"cache_status"},
		),
		SearchResultsCount: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "search_results_count",
				Help:    "Number of results returned per search query.",
				Buckets: []float64{0, 1, 5, 10, 25, 50, 100, 1000},
			},
		),
		CacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "cache_hits_total",
				Help: "Total number of cache hits.",
			},
		),
		CacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "cache_misses_total",
				Help: "Total number of cache misses.",
			},
		),
		DocsIndexedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "docs_indexed_total",
				Help: "Total documents indexed.",
			},
		),
		IndexFlushesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "index_flushes_total",
				Help: "Total index flush operations by status.",
			},
			[]string{"status"},
		),
		ExpansionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "expansions_total",
				Help: "Query expansions by outcome (expanded, fell_back, skipped).",
			},
			[]string{"outcome"},
		),
		ExpansionFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "expansion_failures_total",
				Help: "Failed expansions by the last state reached.",
			},
			[]string{"reason"},
		),
		EstimatorIterations: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "estimator_iterations",
				Help:    "EM iterations per weight estimation.",
				Buckets: []float64{1, 2, 5, 10, 20, 50, 100, 200},
			},
		),
		ExpansionLatency: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "expansion_latency_seconds",
				Help:    "Time spent expanding one query.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
			},
		),
		CircuitBreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "circuit_breaker_state",
				Help: "Circuit breaker state (0=closed, 1=open, 2=half-open).",
			},
			[]string{"name"},
		),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.SearchQueriesTotal,
		m.SearchLatency,
		m.SearchResultsCount,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.DocsIndexedTotal,
		m.IndexFlushesTotal,
		m.ExpansionsTotal,
		m.ExpansionFailures,
		m.EstimatorIterations,
		m.ExpansionLatency,
		m.CircuitBreakerState,
	)

	return m
}

// ObserveExpansion records one expansion attempt. reason is empty unless
// the outcome is a fallback.
func (m *Metrics) ObserveExpansion(outcome, reason string, iterations int, seconds float64) {
	if m == nil {
		return
	}
	m.ExpansionsTotal.WithLabelValues(outcome).Inc()
	if reason != "" {
		m.ExpansionFailures.WithLabelValues(reason).Inc()
	}
	if iterations > 0 {
		m.EstimatorIterations.Observe(float64(iterations))
	}
	m.ExpansionLatency.Observe(seconds)
}

// TrackBreaker exports cb's state on the circuit_breaker_state gauge.
func (m *Metrics) TrackBreaker(cb *resilience.CircuitBreaker) {
	if m == nil || cb == nil {
		return
	}
	gauge := m.CircuitBreakerState.WithLabelValues(cb.Name())
	gauge.Set(float64(cb.GetState()))
	cb.Notify(func(_ string, _, to resilience.State) {
		gauge.Set(float64(to))
	})
}

// Handler returns the Prometheus scrape HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
