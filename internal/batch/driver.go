package batch

import (
	"context"
	"fmt"
	"runtime/debug"
	"slices"
	"time"

	"golang.org/x/time/rate"

	"media-catalog/internal/database"
	"media-catalog/internal/logging"
	"media-catalog/internal/metrics"
	"media-catalog/internal/progress"
)

const (
	msgNoFiles         = "No files to process"
	msgAborted         = "Processing aborted by user"
	msgUnsupportedType = database.MsgUnsupportedFileType
	msgIgnoredType     = "Ignored file type"
)

// Driver runs an operation over every eligible item, one page at a time.
type Driver struct {
	finder   Finder
	ledger   Ledger
	resolver Resolver
	opts     Options
	now      func() time.Time
}

// NewDriver creates a driver. Options left at zero take their defaults.
func NewDriver(finder Finder, ledger Ledger, resolver Resolver, opts Options) *Driver {
	return &Driver{
		finder:   finder,
		ledger:   ledger,
		resolver: resolver,
		opts:     opts.withDefaults(),
		now:      time.Now,
	}
}

// run holds the state of one Run call.
type run struct {
	d        *Driver
	op       Operation
	opType   database.OperationType
	signal   AbortSignal
	emit     Emitter
	ctx      context.Context
	writeCtx context.Context
	log      *logging.Logger
	counters *progress.Counters
	limiter  *rate.Limiter
	started  time.Time
	summary  Summary
	batch    int
	emitErr  bool
}

// Run processes pages until the finder is drained, the signal fires, or a
// fetch fails. Every path ends with exactly one terminal event.
func (d *Driver) Run(ctx context.Context, op Operation, signal AbortSignal, emit Emitter) (sum Summary) {
	r := &run{
		d:        d,
		op:       op,
		opType:   op.Type(),
		signal:   signal,
		emit:     emit,
		ctx:      ctx,
		writeCtx: context.WithoutCancel(ctx),
		log:      logging.Named("batch:" + string(op.Type())),
		started:  d.now(),
	}
	r.counters = progress.NewCounters(r.started, 0)
	r.summary = Summary{Operation: r.opType, Token: signal.Token(), State: StateIdle}
	if d.opts.FrameRate > 0 {
		r.limiter = rate.NewLimiter(rate.Limit(d.opts.FrameRate), 1)
	}

	opLabel := string(r.opType)
	metrics.BatchRunsActive.WithLabelValues(opLabel).Inc()

	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error("Run panicked: %v\n%s", rec, debug.Stack())
			r.fail(fmt.Sprintf("Processing failed: %v", rec))
		}

		metrics.BatchRunsActive.WithLabelValues(opLabel).Dec()
		metrics.BatchRunDuration.WithLabelValues(opLabel).Observe(r.summary.Duration.Seconds())
		metrics.BatchRunsTotal.WithLabelValues(opLabel, string(r.summary.State)).Inc()
		r.log.Info("%s", r.summary)
		sum = r.summary
	}()

	r.send(progress.Event{
		Status:  progress.StatusStarted,
		Message: fmt.Sprintf("Starting %s processing", r.opType),
	})
	r.loop()
	return r.summary
}

func (r *run) loop() {
	opts := r.d.opts
	limit := opts.PageSize()
	seen := make(map[int64]struct{})

	for {
		if r.signal.Aborted() {
			r.abort(nil)
			return
		}

		r.summary.State = StateFetching
		page, err := r.d.finder.FindUnprocessed(r.writeCtx, database.FinderQuery{
			Operation:   r.opType,
			Limit:       limit,
			Since:       r.started,
			RetryFailed: opts.RetryFailed,
			Categories:  r.op.Categories(),
		})
		if err != nil {
			metrics.BatchPageFetches.WithLabelValues(string(r.opType), "error").Inc()
			r.log.Error("Failed to fetch items: %v", err)
			r.fail(fmt.Sprintf("Failed to fetch items: %v", err))
			return
		}
		metrics.BatchPageFetches.WithLabelValues(string(r.opType), "success").Inc()
		r.summary.Pages++

		if len(page.Items) == 0 {
			if r.summary.Pages == 1 {
				r.finish(msgNoFiles)
			} else {
				r.finish("")
			}
			return
		}

		fresh := 0
		for _, item := range page.Items {
			if _, ok := seen[item.ID]; !ok {
				fresh++
			}
		}
		if fresh == 0 {
			r.log.Warn("Page %d returned only items already handled in this run; stopping", r.summary.Pages)
			r.finish("")
			return
		}

		snap := r.counters.Snapshot(r.d.now())
		if opts.All {
			r.counters.SetTotal(snap.Processed + page.TotalAvailable)
		} else {
			r.counters.SetTotal(snap.Processed + fresh)
		}
		r.batch++

		r.summary.State = StateProcessing
		for i := range page.Items {
			item := &page.Items[i]
			if _, ok := seen[item.ID]; ok {
				continue
			}
			if r.signal.Aborted() {
				r.abort(item)
				return
			}
			seen[item.ID] = struct{}{}
			r.processOne(item)
		}

		final := !opts.All || len(page.Items) < limit
		ev := progress.Event{
			Status:          progress.StatusBatchComplete,
			Message:         fmt.Sprintf("Batch %d complete", r.batch),
			IsBatchComplete: true,
			IsFinalBatch:    final,
		}
		r.send(ev)

		if final {
			r.finish("")
			return
		}
	}
}

func (r *run) processOne(item *database.MediaItem) {
	res := r.d.process(r.ctx, r.writeCtx, r.op, item, r.log)
	r.counters.Record(res.Counted)
	metrics.BatchItemsTotal.WithLabelValues(string(r.opType), string(res.Status)).Inc()

	snap := r.counters.Snapshot(r.d.now())
	ev := progress.Event{
		Status:  progress.StatusProcessing,
		Message: res.Message,
		Metadata: &progress.ItemMetadata{
			ItemID:   item.ID,
			FileName: item.FileName,
			FileType: res.FileType,
			Method:   r.d.opts.Method,
		},
	}
	if res.Status == database.StatusError {
		ev.Error = res.Message
	}
	if r.limiter == nil || r.limiter.Allow() {
		r.sendSnapshot(ev, snap)
	}

	if snap.Processed%r.d.opts.ProgressEvery == 0 {
		r.sendSnapshot(progress.Event{
			Status:  progress.StatusProcessing,
			Message: fmt.Sprintf("Processed %d of %d files", snap.Processed, snap.Total),
		}, snap)
	}
}

func (r *run) abort(item *database.MediaItem) {
	if item != nil {
		if err := r.d.ledger.MarkAborted(r.writeCtx, item.ID, r.opType, msgAborted); err != nil {
			r.log.Warn("Failed to record abort for item %d: %v", item.ID, err)
		}
		metrics.BatchItemsTotal.WithLabelValues(string(r.opType), string(database.StatusAborted)).Inc()
	}
	r.log.Info("Run %s aborted", r.summary.Token)
	r.end(StateAborted, progress.Event{Status: progress.StatusAborted, Message: msgAborted})
}

func (r *run) fail(msg string) {
	r.end(StateFailed, progress.Event{Status: progress.StatusError, Message: msg, Error: msg})
}

func (r *run) finish(msg string) {
	if msg == "" {
		snap := r.counters.Snapshot(r.d.now())
		msg = fmt.Sprintf("Processed %d files: %d succeeded, %d failed, %d skipped",
			snap.Processed, snap.Success, snap.Failure, snap.Skipped)
	}
	r.end(StateDrained, progress.Event{Status: progress.StatusComplete, Message: msg, IsFinalBatch: true})
}

// end records the terminal state and emits the terminal event. Only the
// first call has any effect.
func (r *run) end(state State, ev progress.Event) {
	switch r.summary.State {
	case StateDrained, StateAborted, StateFailed:
		return
	}

	now := r.d.now()
	snap := r.counters.Snapshot(now)
	r.summary.State = state
	r.summary.Total = snap.Total
	r.summary.Processed = snap.Processed
	r.summary.Success = snap.Success
	r.summary.Failure = snap.Failure
	r.summary.Skipped = snap.Skipped
	r.summary.Duration = now.Sub(r.started)
	if ev.Status == progress.StatusError {
		r.summary.Error = ev.Message
	}
	r.sendSnapshot(ev, snap)
}

func (r *run) send(ev progress.Event) {
	r.sendSnapshot(ev, r.counters.Snapshot(r.d.now()))
}

func (r *run) sendSnapshot(ev progress.Event, snap progress.Snapshot) {
	ev.Operation = string(r.opType)
	ev.Token = r.summary.Token
	ev.CurrentBatch = r.batch
	ev.Timestamp = r.d.now().UnixMilli()
	snap.Apply(&ev)
	if r.emit == nil {
		return
	}

	if err := r.emit.Emit(r.writeCtx, ev); err != nil && !r.emitErr {
		// Keep going; the abort signal notices a disconnected client.
		r.emitErr = true
		r.log.Debug("Failed to emit %s event: %v", ev.Status, err)
	}
}

// ItemResult is the outcome of processing one item, including the
// eligibility checks that precede the operation.
type ItemResult struct {
	Status   database.Status   `json:"status"`
	Message  string            `json:"message"`
	Metadata database.Metadata `json:"metadata,omitempty"`
	FileType string            `json:"fileType,omitempty"`
	// Counted is how the item shows in progress counters. Ineligible items
	// count as skipped whatever their ledger status.
	Counted  progress.Outcome `json:"-"`
	Eligible bool             `json:"eligible"`
}

// ProcessItem runs op on a single item with the same checks and ledger
// writes as Run.
func (d *Driver) ProcessItem(ctx context.Context, op Operation, item *database.MediaItem) ItemResult {
	res := d.process(ctx, context.WithoutCancel(ctx), op, item, logging.Named("batch:"+string(op.Type())))
	metrics.BatchItemsTotal.WithLabelValues(string(op.Type()), string(res.Status)).Inc()
	return res
}

func (d *Driver) process(ctx, writeCtx context.Context, op Operation, item *database.MediaItem, log *logging.Logger) ItemResult {
	opType := op.Type()

	res, eligible := d.classify(ctx, op, item)
	if !eligible {
		var err error
		if res.Status == database.StatusError {
			err = d.ledger.MarkError(writeCtx, item.ID, opType, res.Message, nil)
		} else {
			err = d.ledger.MarkSkipped(writeCtx, item.ID, opType, res.Message, nil)
		}
		if err != nil {
			log.Warn("Failed to record %s for item %d: %v", res.Status, item.ID, err)
		}
		res.Counted = progress.OutcomeSkipped
		return res
	}

	if err := d.ledger.MarkStarted(writeCtx, item.ID, opType); err != nil {
		log.Warn("Failed to mark item %d started: %v", item.ID, err)
	}

	start := time.Now()
	outcome, err := safeProcess(ctx, op, item)
	metrics.BatchItemDuration.WithLabelValues(string(opType)).Observe(time.Since(start).Seconds())

	if err != nil {
		outcome = Failed(err.Error(), nil)
	}
	res.Message = outcome.Message
	res.Metadata = outcome.Metadata

	switch outcome.Status {
	case database.StatusSuccess:
		res.Status = database.StatusSuccess
		res.Counted = progress.OutcomeSuccess
		err = d.ledger.MarkSuccess(writeCtx, item.ID, opType, outcome.Message, outcome.Metadata)
	case database.StatusSkipped:
		res.Status = database.StatusSkipped
		res.Counted = progress.OutcomeSkipped
		err = d.ledger.MarkSkipped(writeCtx, item.ID, opType, outcome.Message, outcome.Metadata)
	default:
		if res.Message == "" {
			res.Message = "Processing failed"
		}
		res.Status = database.StatusError
		res.Counted = progress.OutcomeFailure
		log.Debug("Item %d (%s) failed: %s", item.ID, item.FileName, res.Message)
		err = d.ledger.MarkError(writeCtx, item.ID, opType, res.Message, outcome.Metadata)
	}
	if err != nil {
		log.Warn("Failed to record %s for item %d: %v", res.Status, item.ID, err)
	}
	return res
}

// classify applies the eligibility rules in order: unresolvable type,
// ignored type, category, then size.
func (d *Driver) classify(ctx context.Context, op Operation, item *database.MediaItem) (ItemResult, bool) {
	ft, ok, err := d.resolver.Resolve(ctx, item)
	if err != nil {
		return ItemResult{Status: database.StatusError, Message: fmt.Sprintf("File type lookup failed: %v", err), FileType: item.Extension}, false
	}
	if !ok {
		return ItemResult{Status: database.StatusError, Message: msgUnsupportedType, FileType: item.Extension}, false
	}
	if ft.Ignore {
		return ItemResult{Status: database.StatusSkipped, Message: msgIgnoredType, FileType: ft.Category}, false
	}
	if cats := op.Categories(); len(cats) > 0 && !slices.Contains(cats, ft.Category) {
		return ItemResult{Status: database.StatusSkipped, Message: fmt.Sprintf("Unsupported category: %s", ft.Category), FileType: ft.Category}, false
	}
	if d.opts.SkipLargeFiles && item.SizeBytes > d.opts.LargeFileThreshold {
		return ItemResult{
			Status:   database.StatusSkipped,
			Message:  fmt.Sprintf("Large file (over %d MB)", d.opts.LargeFileThreshold/(1024*1024)),
			FileType: ft.Category,
		}, false
	}
	return ItemResult{FileType: ft.Category, Eligible: true}, true
}

func safeProcess(ctx context.Context, op Operation, item *database.MediaItem) (out Outcome, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			logging.Error("Operation %s panicked on item %d: %v\n%s", op.Type(), item.ID, rec, debug.Stack())
			err = fmt.Errorf("panic: %v", rec)
		}
	}()
	return op.Process(ctx, item)
}
