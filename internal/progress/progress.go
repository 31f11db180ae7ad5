// Package progress defines the event reported to clients while a batch run
// is in progress, and the counters it is built from.
package progress

import (
	"math"
	"sync"
	"time"
)

// Status is the kind of a progress event.
type Status string

const (
	StatusStarted       Status = "started"
	StatusProcessing    Status = "processing"
	StatusBatchComplete Status = "batch_complete"
	StatusComplete      Status = "complete"
	StatusError         Status = "error"
	StatusAborted       Status = "aborted"
)

// Terminal reports whether no further events follow s.
func (s Status) Terminal() bool {
	return s == StatusComplete || s == StatusError || s == StatusAborted
}

// ItemMetadata describes the item an event refers to.
type ItemMetadata struct {
	ItemID   int64  `json:"itemId,omitempty"`
	FileName string `json:"fileName,omitempty"`
	FileType string `json:"fileType,omitempty"`
	Method   string `json:"method,omitempty"`
}

// Event is one progress frame.
type Event struct {
	Status                 Status        `json:"status"`
	Message                string        `json:"message,omitempty"`
	Operation              string        `json:"operation"`
	TotalCount             int           `json:"totalCount"`
	ProcessedCount         int           `json:"processedCount"`
	SuccessCount           int           `json:"successCount"`
	FailureCount           int           `json:"failureCount"`
	SkippedCount           int           `json:"skippedCount"`
	PercentComplete        int           `json:"percentComplete"`
	ProcessingRate         float64       `json:"processingRate,omitempty"`
	EstimatedTimeRemaining float64       `json:"estimatedTimeRemaining,omitempty"`
	CurrentBatch           int           `json:"currentBatch,omitempty"`
	IsBatchComplete        bool          `json:"isBatchComplete,omitempty"`
	IsFinalBatch           bool          `json:"isFinalBatch,omitempty"`
	Token                  string        `json:"token,omitempty"`
	Error                  string        `json:"error,omitempty"`
	Timestamp              int64         `json:"timestamp"`
	Metadata               *ItemMetadata `json:"metadata,omitempty"`
}

// Percent returns floor(processed/total*100) capped at 100, or 0 when total
// is not positive.
func Percent(processed, total int) int {
	if total <= 0 || processed <= 0 {
		return 0
	}
	p := int(math.Floor(float64(processed) / float64(total) * 100))
	if p > 100 {
		return 100
	}
	return p
}

// Normalize fills derived fields: the timestamp when missing and the
// percentage from the counts.
func (e *Event) Normalize() {
	if e.Timestamp == 0 {
		e.Timestamp = time.Now().UnixMilli()
	}
	e.PercentComplete = Percent(e.ProcessedCount, e.TotalCount)
}

// Outcome classifies one processed item for the counters.
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeFailure
	OutcomeSkipped
)

// Counters accumulates the run totals. Processed always equals
// success + failure + skipped.
type Counters struct {
	mu      sync.Mutex
	started time.Time
	total   int
	success int
	failure int
	skipped int
}

// NewCounters starts counting at start against an expected total.
func NewCounters(start time.Time, total int) *Counters {
	return &Counters{started: start, total: total}
}

// SetTotal updates the expected total. It never shrinks below the number of
// items already processed.
func (c *Counters) SetTotal(total int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if processed := c.success + c.failure + c.skipped; total < processed {
		total = processed
	}
	c.total = total
}

// Record counts one item.
func (c *Counters) Record(o Outcome) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch o {
	case OutcomeSuccess:
		c.success++
	case OutcomeFailure:
		c.failure++
	default:
		c.skipped++
	}
	if processed := c.success + c.failure + c.skipped; processed > c.total {
		c.total = processed
	}
}

// Snapshot is a consistent copy of the counters.
type Snapshot struct {
	Total     int
	Processed int
	Success   int
	Failure   int
	Skipped   int
	Rate      float64 // items per second
	ETA       float64 // seconds
}

// Snapshot returns the counters as of now.
func (c *Counters) Snapshot(now time.Time) Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Snapshot{
		Total:     c.total,
		Success:   c.success,
		Failure:   c.failure,
		Skipped:   c.skipped,
		Processed: c.success + c.failure + c.skipped,
	}

	if elapsed := now.Sub(c.started).Seconds(); elapsed > 0 && s.Processed > 0 {
		s.Rate = math.Round(float64(s.Processed)/elapsed*100) / 100
		if remaining := s.Total - s.Processed; remaining > 0 && s.Rate > 0 {
			s.ETA = math.Round(float64(remaining) / s.Rate)
		}
	}
	return s
}

// Apply copies the snapshot into ev and normalizes it.
func (s Snapshot) Apply(ev *Event) {
	ev.TotalCount = s.Total
	ev.ProcessedCount = s.Processed
	ev.SuccessCount = s.Success
	ev.FailureCount = s.Failure
	ev.SkippedCount = s.Skipped
	ev.ProcessingRate = s.Rate
	ev.EstimatedTimeRemaining = s.ETA
	ev.Normalize()
}
