// Package main is the media catalog server.
//
// The server indexes a media directory into SQLite and runs batch
// operations over the indexed items: EXIF extraction, thumbnail generation,
// timestamp correction and image analysis. Each operation keeps a
// per-item ledger, so a batch only picks up items that still need work, and
// runs can be aborted by token and resumed later.
//
// # Application Lifecycle
//
//  1. Memory configuration: GOMEMLIMIT from MEMORY_LIMIT and MEMORY_RATIO
//  2. Configuration: .env, CONFIG_FILE and environment variables
//  3. Database: opens the catalog and seeds the default file types
//  4. Components:
//     - Thumbnail store (local directory or S3) and optional libvips
//     - Abort registry (in memory, or Redis when REDIS_ADDR is set)
//     - Indexer, rescanning every INDEX_INTERVAL
//     - Job queue gated by the memory monitor, and the cron scheduler
//     - Metrics collector
//  5. HTTP servers: the API on PORT and Prometheus on METRICS_PORT
//  6. Graceful shutdown on SIGINT/SIGTERM
//
// # Background Services
//
//   - Indexer: periodic rescans of MEDIA_DIR and the scan folders
//   - Scheduler: queues SCHEDULE_<OPERATION> runs
//   - Job queue: runs queued batches, at most PROCESS_WORKERS at once
//   - Memory monitor: holds jobs back while the heap is near the limit
//   - Metrics collector: catalog gauges every minute
//   - Vacuum: compacts the database daily
//
// # Graceful Shutdown
//
//  1. Stop the scheduler
//  2. Abort running jobs and drop queued ones
//  3. Stop the indexer, collector and memory monitor
//  4. Shut down the HTTP servers (30s timeout)
//  5. Shut down libvips and close the database
//
// Runs streaming to HTTP clients are aborted when their connection closes.
//
// # Build Requirements
//
// CGO is required for SQLite (mattn/go-sqlite3) and libvips (govips). The
// thumbnail pipeline falls back to pure Go when VIPS_ENABLED is false.
//
//	go build -o media-catalog .
//	go build -o catalogctl ./cmd/catalogctl
//
// # Related Packages
//
//   - [media-catalog/internal/batch]: the batch driver
//   - [media-catalog/internal/operations]: the per-item operations and runner
//   - [media-catalog/internal/database]: catalog and processing ledger
//   - [media-catalog/internal/handlers]: HTTP API
//   - [media-catalog/internal/indexer]: folder scanner
//   - [media-catalog/internal/jobs]: job queue and scheduler
//   - [media-catalog/internal/startup]: configuration and startup logging
package main
