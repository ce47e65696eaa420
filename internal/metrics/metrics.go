// Package metrics exposes Prometheus collectors for the plot crawler.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	probesTotal                   *prometheus.CounterVec
	probeDurationSeconds          prometheus.Histogram
	plotsFoundTotal               prometheus.Counter
	sheetsTotal                   *prometheus.CounterVec
	villagesTotal                 *prometheus.CounterVec
	persistenceErrorsTotal        *prometheus.CounterVec
	tilesTotal                    *prometheus.CounterVec
	tileBytesTotal                prometheus.Counter
	httpRequestsTotal             *prometheus.CounterVec
	httpRequestDurationSeconds    *prometheus.HistogramVec
	crawlerRateLimitDelaysSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		probesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "plotcrawl_probes_total",
				Help: "Total number of plot probes, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		probeDurationSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "plotcrawl_probe_duration_seconds",
				Help:    "Histogram of plot lookup latencies.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
			},
		)

		plotsFoundTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "plotcrawl_plots_found_total",
				Help: "Total number of plots confirmed present.",
			},
		)

		sheetsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "plotcrawl_sheets_total",
				Help: "Total number of sheets handled, labeled by status.",
			},
			[]string{"status"},
		)

		villagesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "plotcrawl_villages_total",
				Help: "Total number of villages handled, labeled by status.",
			},
			[]string{"status"},
		)

		persistenceErrorsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "plotcrawl_persistence_errors_total",
				Help: "Total number of failed writes, labeled by target.",
			},
			[]string{"target"},
		)

		tilesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "plotcrawl_tiles_total",
				Help: "Total number of map tiles handled, labeled by status.",
			},
			[]string{"status"},
		)

		tileBytesTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "plotcrawl_tile_bytes_total",
				Help: "Total number of tile image bytes downloaded.",
			},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)

		crawlerRateLimitDelaysSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "plotcrawl_rate_limit_delays_seconds",
				Help:    "Histogram of rate limit wait durations.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"domain"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveProbe records one plot lookup.
func ObserveProbe(outcome string, duration time.Duration) {
	Init()
	probesTotal.WithLabelValues(outcome).Inc()
	probeDurationSeconds.Observe(duration.Seconds())
}

// ObservePlotFound increments the found-plot counter.
func ObservePlotFound() {
	Init()
	plotsFoundTotal.Inc()
}

// ObserveSheet counts a sheet by status (scanned, skipped, failed).
func ObserveSheet(status string) {
	Init()
	sheetsTotal.WithLabelValues(status).Inc()
}

// ObserveVillage counts a village by status.
func ObserveVillage(status string) {
	Init()
	villagesTotal.WithLabelValues(status).Inc()
}

// ObservePersistenceError counts a failed write to target.
func ObservePersistenceError(target string) {
	Init()
	persistenceErrorsTotal.WithLabelValues(target).Inc()
}

// ObserveTile counts a tile download by status and adds its size.
func ObserveTile(status string, bytesFetched int) {
	Init()
	tilesTotal.WithLabelValues(status).Inc()
	if bytesFetched > 0 {
		tileBytesTotal.Add(float64(bytesFetched))
	}
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(domain string, duration time.Duration) {
	Init()
	crawlerRateLimitDelaysSeconds.WithLabelValues(domain).Observe(duration.Seconds())
}
