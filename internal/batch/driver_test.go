package batch

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"media-catalog/internal/database"
	"media-catalog/internal/progress"
)

func runDriver(t *testing.T, store *fakeStore, op Operation, opts Options, sig *fakeSignal) (Summary, *recorder) {
	t.Helper()
	if sig == nil {
		sig = &fakeSignal{token: "test-token"}
	}
	rec := &recorder{}
	d := NewDriver(store, store, store, opts)
	return d.Run(context.Background(), op, sig, rec), rec
}

// checkFrames verifies the invariants every event sequence must hold.
func checkFrames(t *testing.T, events []progress.Event) {
	t.Helper()

	if len(events) == 0 {
		t.Fatal("no events emitted")
	}
	if events[0].Status != progress.StatusStarted {
		t.Errorf("first event = %s, want started", events[0].Status)
	}

	terminal := 0
	var prev progress.Event
	for i, ev := range events {
		if ev.ProcessedCount != ev.SuccessCount+ev.FailureCount+ev.SkippedCount {
			t.Errorf("event %d: processed %d != %d+%d+%d", i, ev.ProcessedCount, ev.SuccessCount, ev.FailureCount, ev.SkippedCount)
		}
		if ev.ProcessedCount < prev.ProcessedCount || ev.SuccessCount < prev.SuccessCount ||
			ev.FailureCount < prev.FailureCount || ev.SkippedCount < prev.SkippedCount {
			t.Errorf("event %d: counters went backwards", i)
		}
		if ev.PercentComplete < 0 || ev.PercentComplete > 100 {
			t.Errorf("event %d: percent %d out of range", i, ev.PercentComplete)
		}
		if ev.Token == "" || ev.Operation == "" || ev.Timestamp == 0 {
			t.Errorf("event %d missing token, operation or timestamp: %+v", i, ev)
		}
		if ev.Status.Terminal() {
			terminal++
			if i != len(events)-1 {
				t.Errorf("terminal event %s at %d is not last", ev.Status, i)
			}
		}
		prev = ev
	}
	if terminal != 1 {
		t.Errorf("got %d terminal events, want 1", terminal)
	}
}

func TestPagesUntilDrained(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	for i := 0; i < 3; i++ {
		store.add(fmt.Sprintf("img%d.jpg", i), "jpg", 100)
	}
	op := &fakeOp{}

	sum, rec := runDriver(t, store, op, Options{All: true, FetchSize: 2}, nil)
	checkFrames(t, rec.all())

	if store.fetches != 2 {
		t.Errorf("fetches = %d, want 2", store.fetches)
	}
	last := rec.last()
	if last.Status != progress.StatusComplete || last.ProcessedCount != 3 {
		t.Errorf("last event = %s processed %d, want complete with 3", last.Status, last.ProcessedCount)
	}
	if last.PercentComplete != 100 {
		t.Errorf("final percent = %d, want 100", last.PercentComplete)
	}
	if sum.State != StateDrained || sum.Pages != 2 || sum.Success != 3 {
		t.Errorf("summary = %+v", sum)
	}
	if rec.count(progress.StatusBatchComplete) != 2 {
		t.Errorf("batch_complete events = %d, want 2", rec.count(progress.StatusBatchComplete))
	}
}

func TestUnresolvableFileType(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	good := store.add("a.jpg", "jpg", 10)
	bad := store.add("b.weird", "weird", 10)
	op := &fakeOp{}

	sum, rec := runDriver(t, store, op, Options{}, nil)
	checkFrames(t, rec.all())

	st, ok := store.state(bad)
	if !ok || st.status != database.StatusError || st.message != "Unsupported file type" {
		t.Errorf("state of unresolvable item = %+v, want error 'Unsupported file type'", st)
	}
	for _, id := range op.called() {
		if id == bad {
			t.Error("operation invoked for unresolvable item")
		}
	}
	if got := op.called(); len(got) != 1 || got[0] != good {
		t.Errorf("operation calls = %v, want [%d]", got, good)
	}
	if sum.Skipped != 1 || sum.Success != 1 || sum.Failure != 0 {
		t.Errorf("summary = %+v, want 1 success and 1 skipped", sum)
	}
}

func TestOperationErrorContinues(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	first := store.add("1.jpg", "jpg", 1)
	bad := store.add("2.jpg", "jpg", 1)
	next := store.add("3.jpg", "jpg", 1)
	panicky := store.add("4.jpg", "jpg", 1)

	op := &fakeOp{process: func(item *database.MediaItem) (Outcome, error) {
		switch item.ID {
		case bad:
			return Outcome{}, errBoom
		case panicky:
			panic("decoder exploded")
		}
		return Success("done", nil), nil
	}}

	sum, rec := runDriver(t, store, op, Options{}, nil)
	checkFrames(t, rec.all())

	if st, _ := store.state(bad); st.status != database.StatusError || st.message != "boom" {
		t.Errorf("failed item state = %+v, want error 'boom'", st)
	}
	if st, _ := store.state(panicky); st.status != database.StatusError || !strings.Contains(st.message, "decoder exploded") {
		t.Errorf("panicking item state = %+v, want error with panic message", st)
	}
	for _, id := range []int64{first, next} {
		if st, _ := store.state(id); st.status != database.StatusSuccess {
			t.Errorf("item %d state = %s, want success", id, st.status)
		}
	}
	if got := op.called(); len(got) != 4 {
		t.Errorf("operation calls = %v, want all 4 items", got)
	}
	if last := rec.last(); last.FailureCount < 1 || last.Status != progress.StatusComplete {
		t.Errorf("last event = %+v, want complete with failures", last)
	}
	if sum.Failure != 2 {
		t.Errorf("summary failures = %d, want 2", sum.Failure)
	}
}

func TestAbortMidRun(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	var ids []int64
	for i := 0; i < 5; i++ {
		ids = append(ids, store.add(fmt.Sprintf("%d.jpg", i), "jpg", 1))
	}
	sig := &fakeSignal{token: "abort-me"}
	op := &fakeOp{process: func(item *database.MediaItem) (Outcome, error) {
		if item.ID == ids[0] {
			sig.aborted.Store(true)
		}
		return Success("ok", nil), nil
	}}

	sum, rec := runDriver(t, store, op, Options{}, sig)
	checkFrames(t, rec.all())

	if st, _ := store.state(ids[0]); st.status != database.StatusSuccess {
		t.Errorf("item 1 state = %s, want success", st.status)
	}
	if st, _ := store.state(ids[1]); st.status != database.StatusAborted || st.message != "Processing aborted by user" {
		t.Errorf("item 2 state = %+v, want aborted", st)
	}
	for _, id := range ids[2:] {
		if _, ok := store.state(id); ok {
			t.Errorf("item %d was touched after abort", id)
		}
	}
	if got := op.called(); len(got) != 1 {
		t.Errorf("operation calls = %v, want only item 1", got)
	}
	if last := rec.last(); last.Status != progress.StatusAborted || last.Token != "abort-me" {
		t.Errorf("last event = %+v, want aborted with token", last)
	}
	if sum.State != StateAborted {
		t.Errorf("summary state = %s, want aborted", sum.State)
	}
}

func TestAbortBeforeFirstFetch(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	store.add("a.jpg", "jpg", 1)
	sig := &fakeSignal{token: "early"}
	sig.aborted.Store(true)

	sum, rec := runDriver(t, store, &fakeOp{}, Options{}, sig)
	checkFrames(t, rec.all())

	if store.fetches != 0 {
		t.Errorf("fetches = %d, want 0", store.fetches)
	}
	if sum.State != StateAborted {
		t.Errorf("state = %s, want aborted", sum.State)
	}
}

func TestNoFilesToProcess(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	sum, rec := runDriver(t, store, &fakeOp{}, Options{All: true}, nil)
	checkFrames(t, rec.all())

	last := rec.last()
	if last.Status != progress.StatusComplete || last.Message != "No files to process" {
		t.Errorf("last event = %+v, want complete 'No files to process'", last)
	}
	if last.PercentComplete != 0 || last.TotalCount != 0 {
		t.Errorf("empty run percent/total = %d/%d, want 0/0", last.PercentComplete, last.TotalCount)
	}
	if sum.State != StateDrained || store.fetches != 1 {
		t.Errorf("summary = %+v fetches = %d", sum, store.fetches)
	}
}

func TestFetchError(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	store.fetchErr = errBoom

	sum, rec := runDriver(t, store, &fakeOp{}, Options{}, nil)
	checkFrames(t, rec.all())

	last := rec.last()
	if last.Status != progress.StatusError || last.Message != "Failed to fetch items: boom" {
		t.Errorf("last event = %+v, want fetch error", last)
	}
	if sum.State != StateFailed || sum.Error == "" {
		t.Errorf("summary = %+v, want failed", sum)
	}
}

func TestEligibilityOrder(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	// The finder hides ignored types, so the resolver marks "tmp" ignored
	// behind its back. The item is also large; type policy wins.
	store.types["tmp"] = database.FileType{ID: 9, Extension: "tmp", Category: "image"}
	ignored := store.add("big.tmp", "tmp", 50*1024*1024)
	video := store.add("clip.mp4", "mp4", 1)
	large := store.add("huge.jpg", "jpg", 6*1024*1024)
	small := store.add("small.cr2", "cr2", 1024)

	resolver := &ignoringResolver{fakeStore: store, ignored: "tmp"}

	op := &fakeOp{typ: database.OpThumbnail}
	rec := &recorder{}
	d := NewDriver(store, store, resolver, Options{SkipLargeFiles: true})
	sum := d.Run(context.Background(), op, &fakeSignal{token: "t"}, rec)
	checkFrames(t, rec.all())

	want := map[int64]string{
		ignored: "Ignored file type",
		video:   "", // no categories configured on the op
		large:   "Large file (over 5 MB)",
		small:   "",
	}
	for id, msg := range want {
		st, _ := store.state(id)
		if msg == "" {
			if st.status != database.StatusSuccess {
				t.Errorf("item %d state = %+v, want success", id, st)
			}
			continue
		}
		if st.status != database.StatusSkipped || st.message != msg {
			t.Errorf("item %d state = %+v, want skipped %q", id, st, msg)
		}
	}
	if sum.Skipped != 2 || sum.Success != 2 {
		t.Errorf("summary = %+v", sum)
	}
}

type ignoringResolver struct {
	*fakeStore
	ignored string
}

func (r *ignoringResolver) Resolve(ctx context.Context, item *database.MediaItem) (database.FileType, bool, error) {
	ft, ok, err := r.fakeStore.Resolve(ctx, item)
	if item.Extension == r.ignored {
		ft.Ignore = true
	}
	return ft, ok, err
}

func TestCategoryFilter(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	img := store.add("a.jpg", "jpg", 1)
	raw := store.add("b.cr2", "cr2", 1)
	vid := store.add("c.mp4", "mp4", 1)

	op := &fakeOp{typ: database.OpAnalysis, categories: []string{"image", "raw_image"}}
	rec := &recorder{}
	// A resolver that disagrees with the finder: the finder sees mp4 as
	// image, the resolver as video.
	store.types["mp4"] = database.FileType{ID: 3, Extension: "mp4", Category: "image"}
	resolver := &categoryResolver{fakeStore: store, overrides: map[string]string{"mp4": "video"}}

	d := NewDriver(store, store, resolver, Options{})
	d.Run(context.Background(), op, &fakeSignal{token: "t"}, rec)
	checkFrames(t, rec.all())

	if st, _ := store.state(vid); st.status != database.StatusSkipped || st.message != "Unsupported category: video" {
		t.Errorf("video state = %+v", st)
	}
	for _, id := range []int64{img, raw} {
		if st, _ := store.state(id); st.status != database.StatusSuccess {
			t.Errorf("item %d state = %s, want success", id, st.status)
		}
	}
}

type categoryResolver struct {
	*fakeStore
	overrides map[string]string
}

func (r *categoryResolver) Resolve(ctx context.Context, item *database.MediaItem) (database.FileType, bool, error) {
	ft, ok, err := r.fakeStore.Resolve(ctx, item)
	if c, found := r.overrides[item.Extension]; found {
		ft.Category = c
	}
	return ft, ok, err
}

func TestIdempotentSecondRun(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	for i := 0; i < 4; i++ {
		store.add(fmt.Sprintf("%d.jpg", i), "jpg", 1)
	}
	op := &fakeOp{}

	runDriver(t, store, op, Options{All: true}, nil)
	first := len(op.called())

	sum, rec := runDriver(t, store, op, Options{All: true}, nil)
	checkFrames(t, rec.all())

	if first != 4 {
		t.Errorf("first run calls = %d, want 4", first)
	}
	if len(op.called()) != first {
		t.Errorf("second run invoked the operation %d more times", len(op.called())-first)
	}
	if rec.last().Message != "No files to process" || sum.Processed != 0 {
		t.Errorf("second run = %+v", sum)
	}
}

func TestRetryFailedTerminates(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	for i := 0; i < 7; i++ {
		id := store.add(fmt.Sprintf("%d.jpg", i), "jpg", 1)
		store.seed(id, database.StatusError)
	}
	op := &fakeOp{process: func(*database.MediaItem) (Outcome, error) {
		return Failed("still broken", nil), nil
	}}

	sum, rec := runDriver(t, store, op, Options{All: true, FetchSize: 3, RetryFailed: true}, nil)
	checkFrames(t, rec.all())

	if len(op.called()) != 7 {
		t.Errorf("calls = %d, want each failed item retried once", len(op.called()))
	}
	if sum.State != StateDrained || sum.Failure != 7 {
		t.Errorf("summary = %+v", sum)
	}
}

func TestRepeatPageGuard(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	store.sticky = true
	store.add("a.jpg", "jpg", 1)
	store.add("b.jpg", "jpg", 1)
	op := &fakeOp{}

	sum, rec := runDriver(t, store, op, Options{All: true, FetchSize: 2}, nil)
	checkFrames(t, rec.all())

	if len(op.called()) != 2 {
		t.Errorf("calls = %d, want 2", len(op.called()))
	}
	if store.fetches != 2 || sum.State != StateDrained {
		t.Errorf("fetches = %d state = %s, want 2 and drained", store.fetches, sum.State)
	}
}

func TestSinglePageWithoutAll(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	for i := 0; i < 5; i++ {
		store.add(fmt.Sprintf("%d.jpg", i), "jpg", 1)
	}

	sum, rec := runDriver(t, store, &fakeOp{}, Options{BatchSize: 2}, nil)
	checkFrames(t, rec.all())

	if store.fetches != 1 || sum.Processed != 2 {
		t.Errorf("fetches = %d processed = %d, want 1 and 2", store.fetches, sum.Processed)
	}
	if rec.last().TotalCount != 2 {
		t.Errorf("total = %d, want the page size", rec.last().TotalCount)
	}
}

func TestProgressEverySummaries(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	for i := 0; i < 10; i++ {
		store.add(fmt.Sprintf("%d.jpg", i), "jpg", 1)
	}

	_, rec := runDriver(t, store, &fakeOp{}, Options{ProgressEvery: 5}, nil)
	checkFrames(t, rec.all())

	summaries := 0
	for _, ev := range rec.all() {
		if ev.Status == progress.StatusProcessing && ev.Metadata == nil {
			summaries++
		}
	}
	if summaries != 2 {
		t.Errorf("summary frames = %d, want 2", summaries)
	}
}

func TestFrameRateLimitsItemFrames(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	for i := 0; i < 20; i++ {
		store.add(fmt.Sprintf("%d.jpg", i), "jpg", 1)
	}

	_, rec := runDriver(t, store, &fakeOp{}, Options{FrameRate: 1, ProgressEvery: 100}, nil)
	checkFrames(t, rec.all())

	itemFrames := 0
	for _, ev := range rec.all() {
		if ev.Metadata != nil {
			itemFrames++
		}
	}
	if itemFrames >= 20 {
		t.Errorf("item frames = %d, want throttled below 20", itemFrames)
	}
	if last := rec.last(); last.ProcessedCount != 20 {
		t.Errorf("final processed = %d, want 20", last.ProcessedCount)
	}
}

func TestEmitErrorsDoNotStopRun(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	store.add("a.jpg", "jpg", 1)
	store.add("b.jpg", "jpg", 1)
	op := &fakeOp{}

	rec := &recorder{err: errBoom}
	d := NewDriver(store, store, store, Options{})
	sum := d.Run(context.Background(), op, &fakeSignal{token: "t"}, rec)

	if sum.Success != 2 || sum.State != StateDrained {
		t.Errorf("summary = %+v", sum)
	}
}

func TestProcessItem(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	id := store.add("a.jpg", "jpg", 1)
	bad := store.add("a.zzz", "zzz", 1)
	items := store.items
	op := &fakeOp{process: func(*database.MediaItem) (Outcome, error) {
		return Skipped("Date already set from EXIF", nil), nil
	}}
	d := NewDriver(store, store, store, Options{})

	res := d.ProcessItem(context.Background(), op, &items[0])
	if res.Status != database.StatusSkipped || !res.Eligible || res.FileType != "image" {
		t.Errorf("ProcessItem = %+v", res)
	}
	if st, _ := store.state(id); st.status != database.StatusSkipped {
		t.Errorf("ledger = %s, want skipped", st.status)
	}

	res = d.ProcessItem(context.Background(), op, &items[1])
	if res.Eligible || res.Message != "Unsupported file type" {
		t.Errorf("ProcessItem(unresolvable) = %+v", res)
	}
	if st, _ := store.state(bad); st.status != database.StatusError {
		t.Errorf("ledger = %s, want error", st.status)
	}
}

func TestOptionsPageSize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		opts Options
		want int
	}{
		{Options{}, DefaultBatchSize},
		{Options{BatchSize: 10}, 10},
		{Options{All: true}, DefaultFetchSize},
		{Options{All: true, FetchSize: 50, BatchSize: 10}, 50},
	}
	for _, tt := range tests {
		if got := tt.opts.PageSize(); got != tt.want {
			t.Errorf("%+v.PageSize() = %d, want %d", tt.opts, got, tt.want)
		}
	}
}
