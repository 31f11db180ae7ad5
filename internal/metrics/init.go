package metrics

import "media-catalog/internal/filesystem"

// operationLabels mirrors database.OperationType values. Listed here because
// database imports this package.
var operationLabels = []string{"exif", "thumbnail", "timestamp_correction", "analysis"}

// InitializeMetrics pre-populates all expected label combinations so that
// every metric is exported from the first Prometheus scrape.
// Call this once at startup after metric registration.
func InitializeMetrics() {
	for _, op := range operationLabels {
		BatchRunsActive.WithLabelValues(op)
		BatchRunDuration.WithLabelValues(op)
		BatchItemDuration.WithLabelValues(op)
		for _, result := range []string{"drained", "aborted", "failed"} {
			BatchRunsTotal.WithLabelValues(op, result)
		}
		for _, outcome := range []string{"success", "error", "skipped", "aborted"} {
			BatchItemsTotal.WithLabelValues(op, outcome)
		}
		for _, status := range []string{"success", "error"} {
			BatchPageFetches.WithLabelValues(op, status)
			JobsCompletedTotal.WithLabelValues(op, status)
		}
		for _, status := range []string{"pending", "processing", "success", "error", "skipped", "aborted"} {
			ProcessingStatesTotal.WithLabelValues(op, status)
		}
	}

	for _, status := range []string{"started", "processing", "batch_complete", "complete", "error", "aborted"} {
		ProgressFramesTotal.WithLabelValues(status)
	}

	AbortRequestsTotal.WithLabelValues("true")
	AbortRequestsTotal.WithLabelValues("false")

	for _, phase := range []string{"decode", "resize", "encode", "vips", "store"} {
		ThumbnailGenerationDuration.WithLabelValues(phase)
	}
	for _, backend := range []string{"local", "s3"} {
		ThumbnailStoreWrites.WithLabelValues(backend, "success")
		ThumbnailStoreWrites.WithLabelValues(backend, "error")
	}

	volumes := []string{"media", "cache", "database", "unknown"}
	for _, vol := range volumes {
		for _, op := range []string{"stat", "open"} {
			FilesystemOperationDuration.WithLabelValues(vol, op)
			FilesystemOperationErrors.WithLabelValues(vol, op)
			for _, ev := range filesystem.RetryEvents {
				FilesystemRetries.WithLabelValues(vol, op, string(ev))
			}
		}
	}
}
