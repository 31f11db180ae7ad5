// Package metrics provides Prometheus instrumentation for the media catalog.
//
// All metrics are registered with promauto at package init and are prefixed
// with "media_catalog_". They are served on METRICS_PORT at /metrics.
//
// # Metric Categories
//
// ## HTTP Metrics
//
//   - HTTPRequestsTotal: Counter of requests by method, path, and status
//   - HTTPRequestDuration: Histogram of request duration by method and path
//   - HTTPRequestsInFlight: Gauge of currently processing requests
//
// ## Database Metrics
//
//   - DBQueryTotal / DBQueryDuration: per-operation query counts and latency
//   - DBTransactionDuration: batch transaction time by commit/rollback
//   - DBRowsAffected: rows touched by bulk writes
//   - DBConnectionsOpen: open connections, refreshed by the Collector
//
// ## Catalog Metrics
//
//   - CatalogItemsTotal: items by file category
//   - ProcessingStatesTotal: ledger rows by operation and status
//
// ## Batch Pipeline Metrics
//
//   - BatchRunsTotal: finished runs by operation and terminal state
//   - BatchRunsActive: runs in progress
//   - BatchRunDuration: wall time of a run
//   - BatchItemsTotal: items by outcome (success, error, skipped, aborted)
//   - BatchItemDuration: time spent in the per-item operation
//   - BatchPageFetches: unprocessed-item queries by status
//   - ProgressFramesTotal: frames written to progress streams by status
//
// ## Abort Registry Metrics
//
//   - AbortRequestsTotal: abort calls, labeled by whether a local run matched
//   - AbortTokensActive: tokens currently registered
//
// ## Indexer, Thumbnail, Job, Memory and Filesystem Metrics
//
//   - Indexer*: scan runs, files seen, items removed, errors, workers, running flag
//   - ThumbnailGenerationDuration: per-phase timing (decode, resize, encode, vips, store)
//   - ThumbnailStoreWrites: blob writes by backend
//   - Jobs*: queue depth, running jobs, completions
//   - Memory*: heap usage against the limit and job backpressure pauses
//   - Filesystem*: stale NFS handle retries, reported through filesystem.Observer
//
// # Collector
//
// Gauges that reflect database state are refreshed by a Collector, which polls
// a StatsProvider (the database) on a fixed interval:
//
//	collector := metrics.NewCollector(db, time.Minute)
//	collector.Start()
//	defer collector.Stop()
//
// Call InitializeMetrics once at startup so every label combination is
// exported from the first scrape.
package metrics
