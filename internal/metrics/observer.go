package metrics

import "media-catalog/internal/filesystem"

type filesystemObserver struct{}

// NewFilesystemObserver returns the filesystem.Observer that feeds the
// Filesystem* metrics.
func NewFilesystemObserver() filesystem.Observer {
	return filesystemObserver{}
}

func (filesystemObserver) ObserveOperation(volume, op string, seconds float64, err error) {
	FilesystemOperationDuration.WithLabelValues(volume, op).Observe(seconds)
	if err != nil {
		FilesystemOperationErrors.WithLabelValues(volume, op).Inc()
	}
}

func (filesystemObserver) ObserveRetry(volume, op string, ev filesystem.RetryEvent) {
	FilesystemRetries.WithLabelValues(volume, op, string(ev)).Inc()
}
