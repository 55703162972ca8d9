// Package telemetry provides application-level observability for the audio catalog.
//
// # Prometheus Metrics Endpoint
//
// All metrics are registered against the default Prometheus registry and are
// served on the side-channel HTTP server started by main.go:
//
//	GET http(s)://<host>:<AUDIO_TELEMETRY_METRICS_PROMETHEUS_PORT>/metrics
//
// Default port: 9090. It is NOT served by the Gin router.
//
// # Metric Groups
//
//   - HTTP request counters and latency histograms (labelled by route template, not raw URL)
//   - Storage gateway operation latency, errors by kind, and streamed bytes
//   - NameIndex rebuilds and size
//   - Scoped downloads currently holding a temporary file
//
// # Label Cardinality
//
// Storage metrics are labelled by backend name and operation only. File ids and
// titles never appear in labels.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics: labelled by method, route template, and status code.
//
// The path label holds the Gin route template (e.g. /api/audios/:folder_id), NOT the
// raw URL, to prevent unbounded cardinality.
//
// Example PromQL queries:
//   - Request rate (req/s, 5 m window):  rate(http_requests_total[5m])
//   - p99 latency per route:             histogram_quantile(0.99, sum by (path, le) (rate(http_request_duration_seconds_bucket[5m])))
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests processed, by method, route template, and status code.",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Histogram of HTTP request latencies, by method and route template.",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"method", "path"},
	)
)

// Storage gateway metrics: recorded by the instrumented gateway wrapper.
//
// StorageOperationDuration covers the whole call for listings and GetFile, and only
// the open for StreamMedia (stream consumption is tracked by StorageStreamBytesTotal).
//
// Example PromQL queries:
//   - Slow listings:      histogram_quantile(0.95, sum by (backend, le) (rate(storage_operation_duration_seconds_bucket{op="list_files"}[15m])))
//   - Credential alerts:  increase(storage_operation_errors_total{kind="auth_expired"}[10m]) > 0
var (
	StorageOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "storage_operation_duration_seconds",
			Help:    "Duration of storage gateway operations, by backend and operation.",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"backend", "op"},
	)

	StorageOperationErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storage_operation_errors_total",
			Help: "Total number of failed storage gateway operations, by backend, operation, and error kind.",
		},
		[]string{"backend", "op", "kind"},
	)

	StorageStreamBytesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storage_stream_bytes_total",
			Help: "Total number of bytes yielded by media streams, by backend.",
		},
		[]string{"backend"},
	)
)

// Catalog metrics.
//
// NameIndexRebuildsTotal increments once per completed rebuild. Concurrent misses
// that share one rebuild count once.
var (
	NameIndexRebuildsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "catalog_name_index_rebuilds_total",
			Help: "Total number of full NameIndex rebuilds.",
		},
	)

	NameIndexEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "catalog_name_index_entries",
			Help: "Number of names in the current NameIndex snapshot.",
		},
	)

	ScopedDownloadsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "catalog_scoped_downloads_active",
			Help: "Number of temporary files currently held by scoped downloads.",
		},
	)
)
