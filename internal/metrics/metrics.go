package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_catalog_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "media_catalog_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_catalog_http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
	)
)

// Database metrics
var (
	DBQueryTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_catalog_db_queries_total",
			Help: "Total number of database queries",
		},
		[]string{"operation", "status"},
	)

	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "media_catalog_db_query_duration_seconds",
			Help:    "Database query duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"operation"},
	)

	DBTransactionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "media_catalog_db_transaction_duration_seconds",
			Help:    "Duration of database transactions in seconds",
			Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30},
		},
		[]string{"result"}, // "commit", "rollback"
	)

	DBRowsAffected = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "media_catalog_db_rows_affected",
			Help:    "Number of rows affected by write operations",
			Buckets: []float64{1, 10, 50, 100, 500, 1000, 5000},
		},
		[]string{"operation"},
	)

	DBConnectionsOpen = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_catalog_db_connections_open",
			Help: "Number of open database connections",
		},
	)
)

// Catalog metrics, refreshed by the Collector
var (
	CatalogItemsTotal = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "media_catalog_items_total",
			Help: "Number of catalog items by file category",
		},
		[]string{"category"},
	)

	ProcessingStatesTotal = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "media_catalog_processing_states_total",
			Help: "Number of ledger rows by operation and status",
		},
		[]string{"operation", "status"},
	)
)

// Batch pipeline metrics
var (
	BatchRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_catalog_batch_runs_total",
			Help: "Total number of batch runs by operation and terminal state",
		},
		[]string{"operation", "result"}, // result: drained, aborted, failed
	)

	BatchRunsActive = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "media_catalog_batch_runs_active",
			Help: "Number of batch runs currently in progress",
		},
		[]string{"operation"},
	)

	BatchRunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "media_catalog_batch_run_duration_seconds",
			Help:    "Duration of batch runs in seconds",
			Buckets: []float64{1, 5, 15, 60, 300, 900, 1800, 3600, 7200},
		},
		[]string{"operation"},
	)

	BatchItemsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_catalog_batch_items_total",
			Help: "Total number of items handled by batch runs by outcome",
		},
		[]string{"operation", "outcome"}, // outcome: success, error, skipped, aborted
	)

	BatchItemDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "media_catalog_batch_item_duration_seconds",
			Help:    "Time spent in the per-item operation",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"operation"},
	)

	BatchPageFetches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_catalog_batch_page_fetches_total",
			Help: "Total number of unprocessed-item page fetches",
		},
		[]string{"operation", "status"},
	)

	ProgressFramesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_catalog_progress_frames_total",
			Help: "Total number of progress frames written by status",
		},
		[]string{"status"},
	)
)

// Abort registry metrics
var (
	AbortRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_catalog_abort_requests_total",
			Help: "Total number of abort requests by whether a local run was signalled",
		},
		[]string{"matched"}, // "true", "false"
	)

	AbortTokensActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_catalog_abort_tokens_active",
			Help: "Number of registered run tokens",
		},
	)
)

// Indexer metrics
var (
	IndexerRunsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "media_catalog_indexer_runs_total",
			Help: "Total number of indexer runs",
		},
	)

	IndexerLastRunTimestamp = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_catalog_indexer_last_run_timestamp",
			Help: "Timestamp of the last indexer run",
		},
	)

	IndexerLastRunDuration = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_catalog_indexer_last_run_duration_seconds",
			Help: "Duration of the last indexer run in seconds",
		},
	)

	IndexerFilesProcessed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "media_catalog_indexer_files_processed_total",
			Help: "Total number of files processed by the indexer",
		},
	)

	IndexerErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "media_catalog_indexer_errors_total",
			Help: "Total number of indexer errors",
		},
	)

	IndexerItemsRemoved = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "media_catalog_indexer_items_removed_total",
			Help: "Total number of catalog items removed because their file disappeared",
		},
	)

	IndexerParallelWorkers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_catalog_indexer_parallel_workers",
			Help: "Number of stat workers used by the last scan",
		},
	)

	IndexerIsRunning = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_catalog_indexer_running",
			Help: "Whether the indexer is currently running (1 = running, 0 = idle)",
		},
	)
)

// Thumbnail metrics
var (
	ThumbnailGenerationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "media_catalog_thumbnail_generation_duration_seconds",
			Help:    "Thumbnail generation duration by phase",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"phase"}, // decode, resize, encode, vips, store
	)

	ThumbnailStoreWrites = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_catalog_thumbnail_store_writes_total",
			Help: "Thumbnail blob writes by backend and status",
		},
		[]string{"backend", "status"},
	)
)

// Job queue metrics
var (
	JobsQueued = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_catalog_jobs_queued",
			Help: "Number of jobs waiting in the queue",
		},
	)

	JobsRunning = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_catalog_jobs_running",
			Help: "Number of jobs currently running",
		},
	)

	JobsCompletedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_catalog_jobs_completed_total",
			Help: "Total number of finished jobs by operation and result",
		},
		[]string{"operation", "result"},
	)
)

// Filesystem metrics
var (
	FilesystemOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "media_catalog_filesystem_operation_duration_seconds",
			Help:    "Filesystem operation duration by volume and operation",
			Buckets: []float64{0.0001, 0.001, 0.01, 0.05, 0.1, 0.5, 1, 5},
		},
		[]string{"volume", "operation"},
	)

	FilesystemOperationErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_catalog_filesystem_operation_errors_total",
			Help: "Filesystem operation errors by volume and operation",
		},
		[]string{"volume", "operation"},
	)

	FilesystemRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_catalog_filesystem_retries_total",
			Help: "Stale NFS handle retry events (stale, recovered, exhausted)",
		},
		[]string{"volume", "operation", "event"},
	)
)

// Memory metrics
var (
	MemoryUsageRatio = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_catalog_memory_usage_ratio",
			Help: "Heap allocation as a fraction of the memory limit",
		},
	)

	MemoryPaused = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_catalog_memory_paused",
			Help: "1 while background jobs are held back by memory pressure",
		},
	)

	MemoryGCPauses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "media_catalog_memory_gc_pauses_total",
			Help: "Times memory pressure crossed the critical mark",
		},
	)
)

// App info
var (
	AppInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "media_catalog_app_info",
			Help: "Build information, value is always 1",
		},
		[]string{"version", "commit", "go_version"},
	)
)
