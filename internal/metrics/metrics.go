// Package metrics exposes Prometheus collectors for the listing service.
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
	ingestListingsTotal          *prometheus.CounterVec
	ingestRunsTotal              *prometheus.CounterVec
	ingestRunDurationSeconds     prometheus.Histogram
	matchQueriesTotal            *prometheus.CounterVec
	httpRequestsTotal            *prometheus.CounterVec
	httpRequestDurationSeconds   *prometheus.HistogramVec
	ingestActiveWorkers          prometheus.Gauge
	classifierBatchesTotal       *prometheus.CounterVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		ingestListingsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "listingradar_ingest_listings_total",
				Help: "Listings processed per ingestion run, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		ingestRunsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "listingradar_ingest_runs_total",
				Help: "Ingestion runs, labeled by final status.",
			},
			[]string{"status"},
		)

		ingestRunDurationSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "listingradar_ingest_run_duration_seconds",
				Help:    "Histogram of end-to-end ingestion run durations.",
				Buckets: []float64{1, 5, 15, 30, 60, 120, 300},
			},
		)

		matchQueriesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "listingradar_match_queries_total",
				Help: "Match queries executed, labeled by result.",
			},
			[]string{"result"},
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

		ingestActiveWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "listingradar_ingest_active_workers",
				Help: "Number of workers currently fetching a listing.",
			},
		)

		classifierBatchesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "listingradar_classifier_batches_total",
				Help: "Classifier batches sent, labeled by result.",
			},
			[]string{"result"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveListing increments the per-listing outcome counter.
func ObserveListing(outcome string) {
	if ingestListingsTotal == nil {
		return
	}
	ingestListingsTotal.WithLabelValues(outcome).Inc()
}

// ObserveRun records one finished ingestion run.
func ObserveRun(status string, duration time.Duration) {
	if ingestRunsTotal == nil {
		return
	}
	ingestRunsTotal.WithLabelValues(status).Inc()
	ingestRunDurationSeconds.Observe(duration.Seconds())
}

// ObserveMatchQuery increments the match query counter.
func ObserveMatchQuery(result string) {
	if matchQueriesTotal == nil {
		return
	}
	matchQueriesTotal.WithLabelValues(result).Inc()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	if httpRequestsTotal == nil {
		return
	}
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveClassifierBatch increments the classifier batch counter.
func ObserveClassifierBatch(result string) {
	if classifierBatchesTotal == nil {
		return
	}
	classifierBatchesTotal.WithLabelValues(result).Inc()
}

// IncActiveWorkers increments the active workers gauge.
func IncActiveWorkers() {
	if ingestActiveWorkers == nil {
		return
	}
	ingestActiveWorkers.Inc()
}

// DecActiveWorkers decrements the active workers gauge.
func DecActiveWorkers() {
	if ingestActiveWorkers == nil {
		return
	}
	ingestActiveWorkers.Dec()
}
