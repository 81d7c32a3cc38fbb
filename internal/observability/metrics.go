package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registry *prometheus.Registry

	// HTTP request rate. Watch for: sudden drops (service down) or spikes (traffic surge).
	HTTPRequestsTotal *prometheus.CounterVec

	// HTTP request latency per request. Watch for: p95/p99 latency increases.
	HTTPRequestDuration *prometheus.HistogramVec

	// Concurrent requests in flight. Watch for: saturation, capacity limits.
	HTTPRequestsInFlight prometheus.Gauge

	// WeatherAPI.com call rate by endpoint (current, forecast). Watch for: error vs success ratio.
	WeatherAPICallsTotal *prometheus.CounterVec

	// WeatherAPI.com latency per request. Watch for: p95 > 2s (upstream degradation).
	WeatherAPIDuration *prometheus.HistogramVec

	// Retry attempts for weather API. High retries = unstable upstream.
	WeatherAPIRetriesTotal prometheus.Counter

	// GTFS-Realtime feed fetches by feed id. Watch for: error vs success ratio per feed.
	TransitFeedFetchesTotal *prometheus.CounterVec

	// GTFS-Realtime feed fetch latency. Feeds are a few hundred KB of protobuf.
	TransitFeedDuration *prometheus.HistogramVec

	// Protobuf decode failures. Any nonzero rate means the MTA changed something.
	TransitFeedDecodeErrorsTotal prometheus.Counter

	// Static GTFS bundle downloads. Expected roughly once per day.
	TransitStaticDownloadsTotal *prometheus.CounterVec

	// Cache hits per data source (weather, forecast, transit, gtfs-static).
	CacheHitsTotal *prometheus.CounterVec

	// Expired entries served because the upstream fetch failed.
	StaleServesTotal *prometheus.CounterVec

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
	WeatherAPICallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "weatherApiCallsTotal",
			Help: "Total number of WeatherAPI.com calls",
		},
		[]string{"endpoint", "status"},
	)
	WeatherAPIDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "weatherApiDurationSeconds",
			Help:    "WeatherAPI.com latency in seconds (per request)",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"endpoint", "status"},
	)
	WeatherAPIRetriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "weatherApiRetriesTotal",
			Help: "Total number of retry attempts for weather API calls",
		},
	)
	TransitFeedFetchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "transitFeedFetchesTotal",
			Help: "Total number of GTFS-Realtime feed fetches",
		},
		[]string{"feed", "status"},
	)
	TransitFeedDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "transitFeedDurationSeconds",
			Help:    "GTFS-Realtime feed fetch latency in seconds (per request)",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"feed"},
	)
	TransitFeedDecodeErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "transitFeedDecodeErrorsTotal",
			Help: "Total number of GTFS-Realtime protobuf decode failures",
		},
	)
	TransitStaticDownloadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "transitStaticDownloadsTotal",
			Help: "Total number of static GTFS bundle downloads",
		},
		[]string{"status"},
	)
	CacheHitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cacheHitsTotal",
			Help: "Total number of cache hits by data source",
		},
		[]string{"source"},
	)
	StaleServesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "staleServesTotal",
			Help: "Expired cache entries served because the upstream fetch failed",
		},
		[]string{"source"},
	)
	RateLimitDeniedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rateLimitDeniedTotal",
			Help: "Total number of requests denied by rate limiter (429)",
		},
	)

	registry.MustRegister(
		HTTPRequestsTotal, HTTPRequestDuration, HTTPRequestsInFlight,
		WeatherAPICallsTotal, WeatherAPIDuration, WeatherAPIRetriesTotal,
		TransitFeedFetchesTotal, TransitFeedDuration, TransitFeedDecodeErrorsTotal,
		TransitStaticDownloadsTotal,
		CacheHitsTotal, StaleServesTotal,
		RateLimitDeniedTotal,
	)
}

// MetricsHandler returns an http.Handler that serves application and runtime metrics.
func MetricsHandler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
