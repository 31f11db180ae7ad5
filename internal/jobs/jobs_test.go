package jobs

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"media-catalog/internal/batch"
	"media-catalog/internal/database"
)

// blockingRunner holds every run until release is closed.
type blockingRunner struct {
	release chan struct{}
	started chan database.OperationType

	mu      sync.Mutex
	tokens  []string
	running atomic.Int32
	peak    atomic.Int32
}

func newBlockingRunner() *blockingRunner {
	return &blockingRunner{
		release: make(chan struct{}),
		started: make(chan database.OperationType, 16),
	}
}

func (r *blockingRunner) run(ctx context.Context, op database.OperationType, token string) (batch.Summary, error) {
	n := r.running.Add(1)
	defer r.running.Add(-1)
	for {
		p := r.peak.Load()
		if n <= p || r.peak.CompareAndSwap(p, n) {
			break
		}
	}

	r.mu.Lock()
	r.tokens = append(r.tokens, token)
	r.mu.Unlock()
	r.started <- op

	select {
	case <-r.release:
		return batch.Summary{Operation: op, Token: token, State: batch.StateDrained, Processed: 3, Success: 3}, nil
	case <-ctx.Done():
		return batch.Summary{Operation: op, Token: token, State: batch.StateAborted}, nil
	}
}

func waitStarted(t *testing.T, r *blockingRunner) database.OperationType {
	t.Helper()
	select {
	case op := <-r.started:
		return op
	case <-time.After(2 * time.Second):
		t.Fatal("job did not start")
		return ""
	}
}

func waitIdle(t *testing.T, q *Queue) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(q.Status().Active) == 0 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("jobs did not finish")
}

func TestEnqueueDedupesByOperation(t *testing.T) {
	t.Parallel()
	r := newBlockingRunner()
	q := NewQueue(r.run, 2)
	defer q.Stop(context.Background())

	first, err := q.Enqueue(database.OpExif, TriggerManual)
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	waitStarted(t, r)

	dup, err := q.Enqueue(database.OpExif, TriggerSchedule)
	if !errors.Is(err, ErrAlreadyQueued) {
		t.Fatalf("second Enqueue error = %v, want ErrAlreadyQueued", err)
	}
	if dup.ID != first.ID {
		t.Errorf("duplicate reported job %s, want %s", dup.ID, first.ID)
	}

	if _, err := q.Enqueue(database.OpThumbnail, TriggerManual); err != nil {
		t.Errorf("Enqueue of another operation failed: %v", err)
	}
	waitStarted(t, r)

	close(r.release)
	waitIdle(t, q)

	st := q.Status()
	if len(st.History) != 2 {
		t.Fatalf("history = %d jobs, want 2", len(st.History))
	}
	for _, job := range st.History {
		if job.Status != JobCompleted || job.Summary == nil || job.Summary.Processed != 3 {
			t.Errorf("job = %+v, want completed with summary", job)
		}
		if !strings.HasPrefix(job.Token, "job-") {
			t.Errorf("token = %q, want job- prefix", job.Token)
		}
	}

	// Once finished, the operation can be queued again.
	if _, err := q.Enqueue(database.OpExif, TriggerManual); err != nil {
		t.Errorf("Enqueue after completion failed: %v", err)
	}
}

func TestQueueConcurrencyLimit(t *testing.T) {
	t.Parallel()
	r := newBlockingRunner()
	q := NewQueue(r.run, 1)
	defer q.Stop(context.Background())

	for _, op := range database.OperationTypes {
		if _, err := q.Enqueue(op, TriggerManual); err != nil {
			t.Fatalf("Enqueue(%s) failed: %v", op, err)
		}
	}
	waitStarted(t, r)

	st := q.Status()
	if st.Running != 1 || st.Queued != len(database.OperationTypes)-1 {
		t.Errorf("status = %d running, %d queued", st.Running, st.Queued)
	}

	close(r.release)
	waitIdle(t, q)

	if peak := r.peak.Load(); peak != 1 {
		t.Errorf("peak concurrency = %d, want 1", peak)
	}
	if got := len(q.Status().History); got != len(database.OperationTypes) {
		t.Errorf("history = %d, want %d", got, len(database.OperationTypes))
	}
}

func TestQueueRecordsFailures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		run     RunFunc
		wantErr string
	}{
		{
			name: "error",
			run: func(context.Context, database.OperationType, string) (batch.Summary, error) {
				return batch.Summary{}, errors.New("boom")
			},
			wantErr: "boom",
		},
		{
			name: "failed state",
			run: func(_ context.Context, op database.OperationType, _ string) (batch.Summary, error) {
				return batch.Summary{Operation: op, State: batch.StateFailed, Error: "page fetch failed"}, nil
			},
			wantErr: "page fetch failed",
		},
		{
			name: "panic",
			run: func(context.Context, database.OperationType, string) (batch.Summary, error) {
				panic("kaboom")
			},
			wantErr: "kaboom",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			q := NewQueue(tt.run, 1)
			defer q.Stop(context.Background())

			if _, err := q.Enqueue(database.OpAnalysis, TriggerManual); err != nil {
				t.Fatal(err)
			}
			waitIdle(t, q)

			hist := q.Status().History
			if len(hist) != 1 {
				t.Fatalf("history = %d, want 1", len(hist))
			}
			if hist[0].Status != JobFailed || !strings.Contains(hist[0].Error, tt.wantErr) {
				t.Errorf("job = %+v, want failed with %q", hist[0], tt.wantErr)
			}
		})
	}
}

func TestQueueStop(t *testing.T) {
	t.Parallel()
	r := newBlockingRunner()
	q := NewQueue(r.run, 1)

	if _, err := q.Enqueue(database.OpExif, TriggerManual); err != nil {
		t.Fatal(err)
	}
	waitStarted(t, r)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := q.Stop(ctx); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	hist := q.Status().History
	if len(hist) != 1 || hist[0].Summary == nil || hist[0].Summary.State != batch.StateAborted {
		t.Errorf("history = %+v, want one aborted run", hist)
	}
	if _, err := q.Enqueue(database.OpExif, TriggerManual); !errors.Is(err, ErrQueueStopped) {
		t.Errorf("Enqueue after Stop error = %v, want ErrQueueStopped", err)
	}
}

// chanGate blocks until open is closed.
type chanGate struct {
	open chan struct{}
}

func (g chanGate) Wait(ctx context.Context) error {
	select {
	case <-g.open:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func TestQueueGateHoldsJobs(t *testing.T) {
	t.Parallel()
	r := newBlockingRunner()
	q := NewQueue(r.run, 1)
	defer q.Stop(context.Background())

	gate := chanGate{open: make(chan struct{})}
	q.SetGate(gate)

	if _, err := q.Enqueue(database.OpExif, TriggerManual); err != nil {
		t.Fatal(err)
	}

	select {
	case <-r.started:
		t.Fatal("job started while the gate was closed")
	case <-time.After(20 * time.Millisecond):
	}
	if st := q.Status(); st.Queued != 1 || st.Running != 0 {
		t.Errorf("status = %d running, %d queued, want 0 and 1", st.Running, st.Queued)
	}

	close(gate.open)
	waitStarted(t, r)
	close(r.release)
	waitIdle(t, q)
}

func TestQueueStopWhileGated(t *testing.T) {
	t.Parallel()
	r := newBlockingRunner()
	q := NewQueue(r.run, 1)
	q.SetGate(chanGate{open: make(chan struct{})})

	if _, err := q.Enqueue(database.OpThumbnail, TriggerSchedule); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := q.Stop(ctx); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	hist := q.Status().History
	if len(hist) != 1 || hist[0].Status != JobFailed || hist[0].StartedAt != nil {
		t.Errorf("history = %+v, want one failed job that never started", hist)
	}
}

func TestSchedulerAdd(t *testing.T) {
	t.Parallel()
	q := NewQueue(newBlockingRunner().run, 1)
	defer q.Stop(context.Background())
	s := NewScheduler(q)

	if err := s.Add(database.OpThumbnail, "0 0 3 * * *"); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if err := s.Add(database.OpExif, "not a spec"); err == nil {
		t.Error("Add accepted an invalid spec")
	}
	if err := s.Add(database.OpThumbnail, "0 30 4 * * *"); err != nil {
		t.Fatalf("replacing schedule failed: %v", err)
	}

	got := s.Schedules()
	if len(got) != 1 || got[0].Spec != "0 30 4 * * *" {
		t.Errorf("Schedules() = %+v, want the replacement only", got)
	}

	if err := s.Add(database.OpThumbnail, ""); err != nil {
		t.Fatal(err)
	}
	if got := s.Schedules(); len(got) != 0 {
		t.Errorf("Schedules() after removal = %+v", got)
	}
}

func TestSchedulerFiresIntoQueue(t *testing.T) {
	t.Parallel()
	r := newBlockingRunner()
	q := NewQueue(r.run, 1)
	defer q.Stop(context.Background())

	s := NewScheduler(q)
	if err := s.Add(database.OpExif, "* * * * * *"); err != nil {
		t.Fatal(err)
	}
	s.Start()
	defer s.Stop()

	if op := waitStarted(t, r); op != database.OpExif {
		t.Errorf("started %s, want exif", op)
	}

	// Later firings while the job runs are dropped, not stacked.
	time.Sleep(1500 * time.Millisecond)
	if st := q.Status(); len(st.Active) != 1 {
		t.Errorf("active jobs = %d, want 1", len(st.Active))
	}
	close(r.release)
}
