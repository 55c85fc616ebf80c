package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registry *prometheus.Registry

	// HTTP request rate by route template.
	HTTPRequestsTotal *prometheus.CounterVec

	// HTTP request latency. Watch for: timeseries routes dominating p99.
	HTTPRequestDuration *prometheus.HistogramVec

	// Concurrent requests in flight.
	HTTPRequestsInFlight prometheus.Gauge

	// Calls to the grid file server or object store, by method (GET/HEAD) and outcome.
	GridSourceCallsTotal *prometheus.CounterVec

	// Latency of a single grid source call.
	GridSourceDuration *prometheus.HistogramVec

	// Retry attempts against the grid source. High values = flaky file server.
	GridSourceRetriesTotal prometheus.Counter

	// Cache hits/misses per backend. Hit rate = hits/(hits+misses).
	CacheHitsTotal   *prometheus.CounterVec
	CacheMissesTotal *prometheus.CounterVec

	// Cache backend errors by operation and category.
	CacheErrorsTotal *prometheus.CounterVec

	// Grids that failed to load (DataUnavailable) by variable.
	GridUnavailableTotal *prometheus.CounterVec

	// Synthetic placeholder grids served in place of real data.
	PlaceholderServesTotal *prometheus.CounterVec

	// Existence probes by result (exists, missing, error).
	ProbeRequestsTotal *prometheus.CounterVec

	// Most recent detected maximum forecast hour per variable.
	ProbeMaxHour *prometheus.GaugeVec

	// Coordinate samples by status (ok, no_data, out_of_domain).
	SampleResultsTotal *prometheus.CounterVec

	// Timeseries runs by outcome (ok, empty, out_of_domain, superseded, error).
	TimeseriesRunsTotal *prometheus.CounterVec

	// Wall time of a full timeseries run.
	TimeseriesDurationSeconds prometheus.Histogram

	// Points per completed series.
	TimeseriesPoints prometheus.Histogram

	// Circuit breaker state for the grid source (0 closed, 1 half-open, 2 open).
	CircuitBreakerState *prometheus.GaugeVec

	// Circuit breaker transitions.
	CircuitBreakerTransitionsTotal *prometheus.CounterVec

	// Cache warming runs, failures and duration.
	CacheWarmingTotal           prometheus.Counter
	CacheWarmingErrorsTotal     prometheus.Counter
	CacheWarmingDurationSeconds prometheus.Histogram

	// Rate limit denials.
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
	GridSourceCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gridSourceCallsTotal",
			Help: "Total number of grid source calls",
		},
		[]string{"method", "status"},
	)
	GridSourceDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gridSourceDurationSeconds",
			Help:    "Grid source call latency in seconds",
			Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"method", "status"},
	)
	GridSourceRetriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "gridSourceRetriesTotal",
			Help: "Total number of retry attempts against the grid source",
		},
	)
	CacheHitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cacheHitsTotal",
			Help: "Total number of grid cache hits",
		},
		[]string{"cacheType"},
	)
	CacheMissesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cacheMissesTotal",
			Help: "Total number of grid cache misses",
		},
		[]string{"cacheType"},
	)
	CacheErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cacheErrorsTotal",
			Help: "Total number of cache backend errors",
		},
		[]string{"operation", "category"},
	)
	GridUnavailableTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gridUnavailableTotal",
			Help: "Grids that could not be fetched or failed validation",
		},
		[]string{"variable", "category"},
	)
	PlaceholderServesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "placeholderServesTotal",
			Help: "Synthetic placeholder grids served in place of real data",
		},
		[]string{"variable"},
	)
	ProbeRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "probeRequestsTotal",
			Help: "Forecast hour existence probes by result",
		},
		[]string{"result"},
	)
	ProbeMaxHour = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "probeMaxHour",
			Help: "Detected maximum forecast hour per variable",
		},
		[]string{"variable", "source"},
	)
	SampleResultsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sampleResultsTotal",
			Help: "Coordinate samples by status",
		},
		[]string{"status"},
	)
	TimeseriesRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "timeseriesRunsTotal",
			Help: "Timeseries aggregation runs by outcome",
		},
		[]string{"outcome"},
	)
	TimeseriesDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "timeseriesDurationSeconds",
			Help:    "Timeseries aggregation wall time in seconds",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
	)
	TimeseriesPoints = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "timeseriesPoints",
			Help:    "Points per completed timeseries",
			Buckets: []float64{1, 24, 48, 96, 168, 240, 336, 500},
		},
	)
	CircuitBreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuitBreakerState",
			Help: "Circuit breaker state (0 closed, 1 half-open, 2 open)",
		},
		[]string{"component"},
	)
	CircuitBreakerTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuitBreakerTransitionsTotal",
			Help: "Circuit breaker state transitions",
		},
		[]string{"component", "from", "to"},
	)
	CacheWarmingTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cacheWarmingTotal",
			Help: "Total cache warming runs",
		},
	)
	CacheWarmingErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cacheWarmingErrorsTotal",
			Help: "Cache warming runs with at least one failed grid",
		},
	)
	CacheWarmingDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "cacheWarmingDurationSeconds",
			Help:    "Cache warming duration in seconds",
			Buckets: []float64{.5, 1, 5, 15, 30, 60, 120, 300},
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
		GridSourceCallsTotal, GridSourceDuration, GridSourceRetriesTotal,
		CacheHitsTotal, CacheMissesTotal, CacheErrorsTotal,
		GridUnavailableTotal, PlaceholderServesTotal,
		ProbeRequestsTotal, ProbeMaxHour,
		SampleResultsTotal,
		TimeseriesRunsTotal, TimeseriesDurationSeconds, TimeseriesPoints,
		CircuitBreakerState, CircuitBreakerTransitionsTotal,
		CacheWarmingTotal, CacheWarmingErrorsTotal, CacheWarmingDurationSeconds,
		RateLimitDeniedTotal,
	)
}

// RecordCircuitBreakerTransition counts a transition and updates the state gauge.
func RecordCircuitBreakerTransition(component, from, to string, value float64) {
	CircuitBreakerTransitionsTotal.WithLabelValues(component, from, to).Inc()
	CircuitBreakerState.WithLabelValues(component).Set(value)
}

// MetricsHandler returns an http.Handler that serves application and runtime metrics.
func MetricsHandler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
