// Package metrics holds the Prometheus collectors shared across the service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RowsParsed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "transactions_rows_parsed_total",
		Help: "Total number of data rows read from uploaded files.",
	})

	UploadBytes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "transactions_upload_bytes_total",
		Help: "Raw upload bytes read by the parser.",
	})

	RowsSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "transactions_rows_skipped_total",
		Help: "Rows dropped during normalization, labelled by reason.",
	}, []string{"reason"})

	RowsDeduplicated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "transactions_rows_deduplicated_total",
		Help: "Rows discarded because a later row in the same upload had the same id.",
	})

	RecordsPersisted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "transactions_records_persisted_total",
		Help: "Records written to the store, labelled by operation (insert, update).",
	}, []string{"operation"})

	UploadDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "transactions_upload_duration_ms",
		Help:    "End-to-end upload processing latency in milliseconds.",
		Buckets: []float64{10, 50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000},
	})

	Uploads = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "transactions_uploads_total",
		Help: "Upload requests, labelled by outcome (ok, invalid, error, rejected).",
	}, []string{"outcome"})

	ActiveUploads = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "transactions_active_uploads",
		Help: "Uploads currently being processed.",
	})

	Exports = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "transactions_exports_total",
		Help: "Spreadsheet exports, labelled by outcome (ok, invalid, empty, error).",
	}, []string{"outcome"})

	ZoneFallbacks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "transactions_zone_fallbacks_total",
		Help: "Coordinates resolved through the date-window fallback zone.",
	})

	GeoIPLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "transactions_geoip_lookups_total",
		Help: "Network-address zone lookups, labelled by status (ok, empty, invalid, canceled, error).",
	}, []string{"status"})

	ArchivedUploads = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "transactions_archived_uploads_total",
		Help: "Raw upload archive attempts, labelled by status (ok, error).",
	}, []string{"status"})

	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "transactions_http_requests_total",
		Help: "HTTP requests, labelled by route pattern, method and status code.",
	}, []string{"route", "method", "status"})

	HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "transactions_http_request_duration_seconds",
		Help:    "HTTP request latency by route pattern.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})

	RateLimited = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "transactions_rate_limited_total",
		Help: "Requests rejected by the per-address rate limiter, labelled by limiter.",
	}, []string{"limiter"})
)
