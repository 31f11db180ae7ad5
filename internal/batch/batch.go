package batch

import (
	"context"
	"fmt"
	"time"

	"media-catalog/internal/database"
	"media-catalog/internal/progress"
)

// Finder returns pages of items that still need an operation.
type Finder interface {
	FindUnprocessed(ctx context.Context, q database.FinderQuery) (*database.UnprocessedPage, error)
}

// Ledger records the per-item, per-operation outcome.
type Ledger interface {
	MarkStarted(ctx context.Context, itemID int64, op database.OperationType) error
	MarkSuccess(ctx context.Context, itemID int64, op database.OperationType, message string, meta database.Metadata) error
	MarkError(ctx context.Context, itemID int64, op database.OperationType, message string, meta database.Metadata) error
	MarkSkipped(ctx context.Context, itemID int64, op database.OperationType, message string, meta database.Metadata) error
	MarkAborted(ctx context.Context, itemID int64, op database.OperationType, message string) error
}

// Resolver maps an item to its file type. ok is false when the item's
// extension has no file type row.
type Resolver interface {
	Resolve(ctx context.Context, item *database.MediaItem) (ft database.FileType, ok bool, err error)
}

// AbortSignal is polled between items. *abort.Run satisfies it.
type AbortSignal interface {
	Token() string
	Aborted() bool
}

// Emitter receives progress events. Both streaming.EventStream and
// streaming.FrameWriter satisfy it. Driver.Run accepts a nil Emitter and
// drops the events.
type Emitter interface {
	Emit(ctx context.Context, ev progress.Event) error
}

// Operation is the per-item work a run performs.
type Operation interface {
	Type() database.OperationType
	// Categories limits the file categories the operation accepts. nil
	// accepts any category.
	Categories() []string
	Process(ctx context.Context, item *database.MediaItem) (Outcome, error)
}

// Outcome is what an operation reports for one item. Expected failures,
// such as an undecodable file, are returned as an error Outcome rather than
// a Go error.
type Outcome struct {
	Status   database.Status
	Message  string
	Metadata database.Metadata
}

// Success builds a success outcome.
func Success(message string, meta database.Metadata) Outcome {
	return Outcome{Status: database.StatusSuccess, Message: message, Metadata: meta}
}

// Failed builds an error outcome.
func Failed(message string, meta database.Metadata) Outcome {
	return Outcome{Status: database.StatusError, Message: message, Metadata: meta}
}

// Skipped builds a skipped outcome.
func Skipped(message string, meta database.Metadata) Outcome {
	return Outcome{Status: database.StatusSkipped, Message: message, Metadata: meta}
}

// Options tune a run.
type Options struct {
	BatchSize          int
	All                bool
	FetchSize          int
	RetryFailed        bool
	SkipLargeFiles     bool
	LargeFileThreshold int64
	ProgressEvery      int
	// FrameRate caps per-item frames per second. 0 means unlimited.
	FrameRate int
	// Method is reported in item metadata (exif: default, fast, slow).
	Method string
}

const (
	DefaultBatchSize          = 100
	DefaultFetchSize          = 1000
	DefaultLargeFileThreshold = 5 * 1024 * 1024
	DefaultProgressEvery      = 5
)

func (o Options) withDefaults() Options {
	if o.BatchSize <= 0 {
		o.BatchSize = DefaultBatchSize
	}
	if o.FetchSize <= 0 {
		o.FetchSize = DefaultFetchSize
	}
	if o.LargeFileThreshold <= 0 {
		o.LargeFileThreshold = DefaultLargeFileThreshold
	}
	if o.ProgressEvery <= 0 {
		o.ProgressEvery = DefaultProgressEvery
	}
	return o
}

// PageSize is the finder limit for one fetch.
func (o Options) PageSize() int {
	o = o.withDefaults()
	if o.All {
		return o.FetchSize
	}
	return o.BatchSize
}

// State is a driver state.
type State string

const (
	StateIdle       State = "idle"
	StateFetching   State = "fetching_page"
	StateProcessing State = "processing_item"
	StateDrained    State = "drained"
	StateAborted    State = "aborted"
	StateFailed     State = "failed"
)

// Summary describes a finished run.
type Summary struct {
	Operation database.OperationType `json:"operation"`
	Token     string                 `json:"token"`
	State     State                  `json:"state"`
	Total     int                    `json:"total"`
	Processed int                    `json:"processed"`
	Success   int                    `json:"success"`
	Failure   int                    `json:"failure"`
	Skipped   int                    `json:"skipped"`
	Pages     int                    `json:"pages"`
	Duration  time.Duration          `json:"duration"`
	Error     string                 `json:"error,omitempty"`
}

func (s Summary) String() string {
	return fmt.Sprintf("%s run %s %s: %d processed (%d succeeded, %d failed, %d skipped) in %d pages, %v",
		s.Operation, s.Token, s.State, s.Processed, s.Success, s.Failure, s.Skipped, s.Pages, s.Duration.Round(time.Millisecond))
}
