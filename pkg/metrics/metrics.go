// Package metrics owns the engine's Prometheus collectors. Everything is
// registered on a caller-supplied registerer so tests can use a private
// registry.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge

	OperationsTotal   *prometheus.CounterVec
	OperationDuration *prometheus.HistogramVec
	ResultTerms       *prometheus.HistogramVec
	PolynomialsStored prometheus.Gauge

	CacheHitsTotal      prometheus.Counter
	CacheMissesTotal    prometheus.Counter
	CircuitBreakerState *prometheus.GaugeVec

	EventsDroppedTotal prometheus.Counter
}

// New creates the collectors on reg. It panics if any name is already
// registered there.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		HTTPRequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "HTTP requests by method, route pattern and status.",
		}, []string{"method", "path", "status"}),
		HTTPRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency by method and route pattern.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 4, 8),
		}, []string{"method", "path"}),
		HTTPRequestsInFlight: f.NewGauge(prometheus.GaugeOpts{
			Name: "http_requests_in_flight",
			Help: "HTTP requests currently being served.",
		}),

		OperationsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "polynomial_operations_total",
			Help: "Polynomial operations by operation and status (ok, error).",
		}, []string{"operation", "status"}),
		OperationDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "polynomial_operation_duration_seconds",
			Help:    "Polynomial operation latency, operand resolution included.",
			Buckets: prometheus.ExponentialBuckets(0.0001, 5, 8),
		}, []string{"operation"}),
		ResultTerms: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "polynomial_result_terms",
			Help:    "Terms in computed polynomials.",
			Buckets: append([]float64{0}, prometheus.ExponentialBuckets(1, 4, 7)...),
		}, []string{"operation"}),
		PolynomialsStored: f.NewGauge(prometheus.GaugeOpts{
			Name: "polynomials_stored",
			Help: "Named polynomials in the store.",
		}),

		CacheHitsTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "cache_hits_total",
			Help: "Result cache hits.",
		}),
		CacheMissesTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "cache_misses_total",
			Help: "Result cache misses.",
		}),
		CircuitBreakerState: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=open, 2=half-open).",
		}, []string{"name"}),

		EventsDroppedTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "computation_events_dropped_total",
			Help: "Computation events dropped because the collector buffer was full.",
		}),
	}
}

// Handler serves what g gathers; nil means the default registry.
func Handler(g prometheus.Gatherer) http.Handler {
	if g == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
