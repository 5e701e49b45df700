// Package metrics defines the gateway's Prometheus metric set, renamed
// from the original implementation's thanos_* names to llmrouter_*.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"net/http"
)

// Metrics owns a private Registry and every counter/gauge/histogram the
// router, cache, rate limiter, and circuit breaker report into. A single
// instance is built once at startup and threaded through every component.
type Metrics struct {
	registry *prometheus.Registry

	RequestsTotal         *prometheus.CounterVec
	RequestDurationSeconds *prometheus.HistogramVec
	RequestsInFlight      *prometheus.GaugeVec

	ProviderRequestsTotal   *prometheus.CounterVec
	ProviderErrorsTotal     *prometheus.CounterVec
	ProviderDurationSeconds *prometheus.HistogramVec

	TokensUsedTotal   *prometheus.CounterVec
	EstimatedCostUSD  *prometheus.CounterVec

	CacheHitsTotal   prometheus.Counter
	CacheMissesTotal prometheus.Counter
	CacheSize        prometheus.Gauge

	RateLimitExceededTotal *prometheus.CounterVec

	CircuitBreakerState          *prometheus.GaugeVec
	CircuitBreakerFailuresTotal  *prometheus.CounterVec
}

// New builds and registers the full metric set on a fresh, private
// registry — never the global prometheus.DefaultRegisterer, so multiple
// gateway instances (e.g. in tests) never collide on metric names.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,

		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "llmrouter_requests_total",
			Help: "Total number of chat completion requests, by status code.",
		}, []string{"status"}),

		RequestDurationSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "llmrouter_request_duration_seconds",
			Help:    "End-to-end request duration, including cache/breaker/adapter time.",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10},
		}, []string{"strategy"}),

		RequestsInFlight: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "llmrouter_requests_in_flight",
			Help: "Number of requests currently being routed.",
		}, []string{"strategy"}),

		ProviderRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "llmrouter_provider_requests_total",
			Help: "Total calls made to each upstream provider, by outcome.",
		}, []string{"provider", "outcome"}),

		ProviderErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "llmrouter_provider_errors_total",
			Help: "Total upstream errors, by provider and error kind.",
		}, []string{"provider", "kind"}),

		ProviderDurationSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "llmrouter_provider_duration_seconds",
			Help:    "Upstream call latency, by provider.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"provider"}),

		TokensUsedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "llmrouter_tokens_used_total",
			Help: "Total tokens consumed, by provider and direction.",
		}, []string{"provider", "direction"}),

		EstimatedCostUSD: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "llmrouter_estimated_cost_usd",
			Help: "Estimated cost in USD, by provider and model.",
		}, []string{"provider", "model"}),

		CacheHitsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "llmrouter_cache_hits_total",
			Help: "Total response cache hits.",
		}),
		CacheMissesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "llmrouter_cache_misses_total",
			Help: "Total response cache misses (including expired entries).",
		}),
		CacheSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "llmrouter_cache_size",
			Help: "Current number of entries in the response cache.",
		}),

		RateLimitExceededTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "llmrouter_rate_limit_exceeded_total",
			Help: "Total requests rejected by the rate limiter, by key.",
		}, []string{"key"}),

		CircuitBreakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "llmrouter_circuit_breaker_state",
			Help: "Current circuit breaker state per provider (0=closed, 1=open, 2=half_open).",
		}, []string{"provider"}),

		CircuitBreakerFailuresTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "llmrouter_circuit_breaker_failures_total",
			Help: "Total failures recorded by the circuit breaker, by provider.",
		}, []string{"provider"}),
	}

	reg.MustRegister(
		m.RequestsTotal,
		m.RequestDurationSeconds,
		m.RequestsInFlight,
		m.ProviderRequestsTotal,
		m.ProviderErrorsTotal,
		m.ProviderDurationSeconds,
		m.TokensUsedTotal,
		m.EstimatedCostUSD,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.CacheSize,
		m.RateLimitExceededTotal,
		m.CircuitBreakerState,
		m.CircuitBreakerFailuresTotal,
	)

	return m
}

// Handler returns the promhttp handler serving this Metrics' private
// registry, suitable for mounting at GET /metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// BreakerStateValue maps a breaker state name to the gauge value
// CircuitBreakerState expects.
func BreakerStateValue(state string) float64 {
	switch state {
	case "open":
		return 1
	case "half_open":
		return 2
	default:
		return 0
	}
}
