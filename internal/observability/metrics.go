package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registry *prometheus.Registry

	// HTTP request rate. Watch for: sudden drops (service down) or spikes.
	HTTPRequestsTotal *prometheus.CounterVec

	// HTTP request latency per request. Watch for: p95/p99 increases.
	HTTPRequestDuration *prometheus.HistogramVec

	// Concurrent requests in flight. Watch for: saturation.
	HTTPRequestsInFlight prometheus.Gauge

	// Weather provider call rate by endpoint (history, forecast, validate).
	// Watch for: error vs success ratio.
	ProviderCallsTotal *prometheus.CounterVec

	// Provider latency per request. Watch for: p95 > 2s (upstream degradation).
	ProviderDuration *prometheus.HistogramVec

	// Observation cache hits by tier (file, memcached). A low hit rate on a
	// stable date range means the cache file is not being appended.
	CacheHitsTotal *prometheus.CounterVec

	// Observation cache misses (dates that required a provider fetch).
	CacheMissesTotal prometheus.Counter

	// Observations appended to the cache file.
	CacheAppendsTotal prometheus.Counter

	// Predictions served by outcome (ok, feature_error, range_error,
	// provider_error, not_fitted).
	PredictionsTotal *prometheus.CounterVec

	// Model training duration. One sample per Build call.
	TrainingDurationSeconds prometheus.Histogram

	// Usable rows in the last training join. Watch for: drops toward zero.
	TrainingRows prometheus.Gauge

	// Cache priming runs, failures and duration (startup prefetch).
	PrimingTotal           prometheus.Counter
	PrimingErrorsTotal     prometheus.Counter
	PrimingDurationSeconds prometheus.Histogram

	// Rate limit denials. Watch for: overload, capacity exceeded.
	RateLimitDeniedTotal prometheus.Counter
)

func init() {
	registry = prometheus.NewRegistry()

	registry.MustRegister(
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)

	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "httpRequestsTotal",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "statusCode"},
	)
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "httpRequestDurationSeconds",
			Help:    "HTTP request latency in seconds (per request)",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
	HTTPRequestsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "httpRequestsInFlight",
			Help: "Number of HTTP requests currently being served",
		},
	)
	ProviderCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "providerApiCallsTotal",
			Help: "Total number of weather provider API calls",
		},
		[]string{"endpoint", "status"},
	)
	ProviderDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "providerApiDurationSeconds",
			Help:    "Weather provider API latency in seconds (per request)",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"endpoint", "status"},
	)
	CacheHitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "observationCacheHitsTotal",
			Help: "Observation cache hits by tier",
		},
		[]string{"tier"},
	)
	CacheMissesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "observationCacheMissesTotal",
			Help: "Observation cache misses requiring a provider fetch",
		},
	)
	CacheAppendsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "observationCacheAppendsTotal",
			Help: "Observations appended to the cache file",
		},
	)
	PredictionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "predictionsTotal",
			Help: "Predictions served by outcome",
		},
		[]string{"outcome"},
	)
	TrainingDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "modelTrainingDurationSeconds",
			Help:    "Demand model training duration in seconds",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
	)
	TrainingRows = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "modelTrainingRows",
			Help: "Usable rows in the last training join",
		},
	)
	PrimingTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cachePrimingTotal",
			Help: "Cache priming runs",
		},
	)
	PrimingErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cachePrimingErrorsTotal",
			Help: "Cache priming runs that ended with an error",
		},
	)
	PrimingDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "cachePrimingDurationSeconds",
			Help:    "Cache priming duration in seconds",
			Buckets: []float64{.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
	)
	RateLimitDeniedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rateLimitDeniedTotal",
			Help: "Total number of requests denied by rate limiter (429)",
		},
	)

	registry.MustRegister(
		HTTPRequestsTotal, HTTPRequestDuration, HTTPRequestsInFlight,
		ProviderCallsTotal, ProviderDuration,
		CacheHitsTotal, CacheMissesTotal, CacheAppendsTotal,
		PredictionsTotal, TrainingDurationSeconds, TrainingRows,
		PrimingTotal, PrimingErrorsTotal, PrimingDurationSeconds,
		RateLimitDeniedTotal,
	)
}

// MetricsHandler returns an http.Handler that serves application and runtime metrics.
func MetricsHandler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
