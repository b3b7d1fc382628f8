// Package metrics provides Prometheus instrumentation for slitherd.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	enabled bool

	// HTTP metrics
	httpRequestsTotal *prometheus.CounterVec
	httpDuration      *prometheus.HistogramVec

	// Analysis domain metrics
	analysisTotal   *prometheus.CounterVec
	slitherDuration prometheus.Histogram

	// Explorer metrics
	explorerFetchTotal *prometheus.CounterVec
	sourceCacheTotal   *prometheus.CounterVec
)

// Init initializes the metrics system.
func Init(enabledFlag bool) {
	enabled = enabledFlag

	if !enabled {
		return
	}

	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	analysisTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "analysis_request_total",
			Help: "Total number of contract analysis requests",
		},
		[]string{"mode", "status"},
	)

	slitherDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "slither_run_duration_seconds",
			Help:    "Slither subprocess runtime in seconds",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 240},
		},
	)

	explorerFetchTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "explorer_fetch_total",
			Help: "Total number of explorer source fetches",
		},
		[]string{"blockchain", "status"},
	)

	sourceCacheTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "source_cache_total",
			Help: "Source cache lookups by result",
		},
		[]string{"result"},
	)

	// Go runtime metrics (goroutines, memory, GC) are collected by
	// prometheus/client_golang automatically.
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	if !enabled {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		})
	}
	return promhttp.Handler()
}
