// Package metrics exposes Prometheus instrumentation for the enrichment
// pipeline: runs, stages, source adapters, the work queue and the HTTP API.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Run metrics
	RunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "luminaries_runs_total",
			Help: "Total number of enrichment runs by trigger and final status",
		},
		[]string{"trigger", "status"}, // status: ready, error, in_progress
	)

	RunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "luminaries_run_duration_seconds",
			Help:    "Duration of enrichment runs in seconds",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
		[]string{"trigger"},
	)

	StageOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "luminaries_stage_outcomes_total",
			Help: "Stage outcomes recorded on enrichment runs",
		},
		[]string{"stage", "outcome"},
	)

	// Source adapter metrics
	AdapterFetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "luminaries_adapter_fetch_duration_seconds",
			Help:    "Duration of one adapter fetch for one person",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"source"},
	)

	AdapterItems = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "luminaries_adapter_items_total",
			Help: "Raw candidate items returned by adapters",
		},
		[]string{"source"},
	)

	// Normalizer metrics
	ContentItems = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "luminaries_content_items_total",
			Help: "Normalizer decisions per candidate item",
		},
		[]string{"result"}, // inserted, updated, skipped, rejected, malformed, near_duplicate
	)

	// Queue metrics
	QueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "luminaries_queue_depth",
			Help: "Jobs waiting in the enrichment queue",
		},
	)

	QueueDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "luminaries_queue_dropped_total",
			Help: "Jobs dropped because the queue was full or closed",
		},
	)

	JobRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "luminaries_job_retries_total",
			Help: "Jobs requeued after a run could not start or failed",
		},
	)

	// HTTP metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "luminaries_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "luminaries_http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: []float64{.001, .005, .01, .05, .1, .5, 1, 5, 10},
		},
		[]string{"method", "endpoint"},
	)

	WebSocketClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "luminaries_websocket_clients",
			Help: "Connected run-status websocket clients",
		},
	)
)

// RecordRun records a finished run.
func RecordRun(trigger, status string, duration time.Duration) {
	RunsTotal.WithLabelValues(trigger, status).Inc()
	RunDuration.WithLabelValues(trigger).Observe(duration.Seconds())
}

// RecordStage records one stage outcome.
func RecordStage(stage, outcome string) {
	StageOutcomes.WithLabelValues(stage, outcome).Inc()
}

// RecordAdapterFetch records one adapter call.
func RecordAdapterFetch(source string, items int, duration time.Duration) {
	AdapterFetchDuration.WithLabelValues(source).Observe(duration.Seconds())
	AdapterItems.WithLabelValues(source).Add(float64(items))
}

// RecordContent adds n normalizer decisions of one kind. Zero is a no-op.
func RecordContent(result string, n int) {
	if n <= 0 {
		return
	}
	ContentItems.WithLabelValues(result).Add(float64(n))
}

// RecordAPIRequest records one HTTP request.
func RecordAPIRequest(method, endpoint, statusCode string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}
