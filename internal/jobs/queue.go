package jobs

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"media-catalog/internal/batch"
	"media-catalog/internal/database"
	"media-catalog/internal/logging"
	"media-catalog/internal/metrics"
)

// ErrAlreadyQueued is returned by Enqueue when a job for the same operation
// is queued or running.
var ErrAlreadyQueued = errors.New("a job for this operation is already queued or running")

// ErrQueueStopped is returned by Enqueue after Stop.
var ErrQueueStopped = errors.New("job queue stopped")

// historySize is the number of finished jobs kept for GET /api/jobs.
const historySize = 50

// RunFunc runs one batch for op under token.
type RunFunc func(ctx context.Context, op database.OperationType, token string) (batch.Summary, error)

// Trigger says what queued a job.
type Trigger string

const (
	TriggerManual   Trigger = "manual"
	TriggerSchedule Trigger = "schedule"
)

// JobStatus is the lifecycle state of a job.
type JobStatus string

const (
	JobQueued    JobStatus = "queued"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
)

// Job is one queued batch run.
type Job struct {
	ID         string                 `json:"id"`
	Operation  database.OperationType `json:"operation"`
	Token      string                 `json:"token"`
	Trigger    Trigger                `json:"trigger"`
	Status     JobStatus              `json:"status"`
	QueuedAt   time.Time              `json:"queuedAt"`
	StartedAt  *time.Time             `json:"startedAt,omitempty"`
	FinishedAt *time.Time             `json:"finishedAt,omitempty"`
	Summary    *batch.Summary         `json:"summary,omitempty"`
	Error      string                 `json:"error,omitempty"`
}

// Status is a snapshot of the queue.
type Status struct {
	Limit   int   `json:"limit"`
	Running int   `json:"running"`
	Queued  int   `json:"queued"`
	Active  []Job `json:"active"`
	History []Job `json:"history"`
}

// Gate holds jobs back before they start, for example while memory is
// under pressure.
type Gate interface {
	Wait(ctx context.Context) error
}

// Queue runs batch jobs in the background with a concurrency limit. It
// holds at most one queued or running job per operation.
type Queue struct {
	run   RunFunc
	limit int
	sem   chan struct{}
	log   *logging.Logger
	gate  Gate

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	stopped bool
	active  map[database.OperationType]*Job
	history []Job
}

// NewQueue creates a Queue that runs at most limit jobs at once.
func NewQueue(run RunFunc, limit int) *Queue {
	if limit < 1 {
		limit = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Queue{
		run:    run,
		limit:  limit,
		sem:    make(chan struct{}, limit),
		log:    logging.Named("jobs"),
		ctx:    ctx,
		cancel: cancel,
		active: make(map[database.OperationType]*Job),
	}
}

// SetGate installs g to be waited on before each job starts. Call it before
// the first Enqueue.
func (q *Queue) SetGate(g Gate) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.gate = g
}

// Enqueue queues a run of op. It returns ErrAlreadyQueued when op already
// has a queued or running job.
func (q *Queue) Enqueue(op database.OperationType, trigger Trigger) (Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.stopped {
		return Job{}, ErrQueueStopped
	}
	if existing, ok := q.active[op]; ok {
		return *existing, ErrAlreadyQueued
	}

	id := uuid.New().String()
	job := &Job{
		ID:        id,
		Operation: op,
		Token:     "job-" + id,
		Trigger:   trigger,
		Status:    JobQueued,
		QueuedAt:  time.Now(),
	}
	q.active[op] = job
	metrics.JobsQueued.Inc()
	q.log.Info("Queued %s job %s (%s)", op, job.ID, trigger)

	q.wg.Add(1)
	go q.execute(job)

	return *job, nil
}

func (q *Queue) execute(job *Job) {
	defer q.wg.Done()

	select {
	case q.sem <- struct{}{}:
	case <-q.ctx.Done():
		metrics.JobsQueued.Dec()
		q.finish(job, nil, q.ctx.Err())
		return
	}
	defer func() { <-q.sem }()

	q.mu.Lock()
	gate := q.gate
	q.mu.Unlock()
	if gate != nil {
		if err := gate.Wait(q.ctx); err != nil {
			metrics.JobsQueued.Dec()
			q.finish(job, nil, err)
			return
		}
	}

	metrics.JobsQueued.Dec()
	metrics.JobsRunning.Inc()
	defer metrics.JobsRunning.Dec()

	q.mu.Lock()
	now := time.Now()
	job.Status = JobRunning
	job.StartedAt = &now
	q.mu.Unlock()

	q.log.Info("Starting %s job %s", job.Operation, job.ID)
	sum, err := q.safeRun(job)
	q.finish(job, &sum, err)
}

func (q *Queue) safeRun(job *Job) (sum batch.Summary, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			q.log.Error("Job %s panicked: %v\n%s", job.ID, rec, debug.Stack())
			err = fmt.Errorf("job panicked: %v", rec)
		}
	}()
	return q.run(q.ctx, job.Operation, job.Token)
}

func (q *Queue) finish(job *Job, sum *batch.Summary, err error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := time.Now()
	job.FinishedAt = &now
	job.Summary = sum

	result := "error"
	switch {
	case err != nil:
		job.Status = JobFailed
		job.Error = err.Error()
		q.log.Error("%s job %s failed: %v", job.Operation, job.ID, err)
	case sum.State == batch.StateFailed:
		job.Status = JobFailed
		job.Error = sum.Error
		result = string(sum.State)
		q.log.Warn("%s job %s ended in failure: %s", job.Operation, job.ID, sum.Error)
	default:
		job.Status = JobCompleted
		result = string(sum.State)
		q.log.Info("%s job %s finished: %s", job.Operation, job.ID, sum)
	}
	metrics.JobsCompletedTotal.WithLabelValues(string(job.Operation), result).Inc()

	delete(q.active, job.Operation)
	q.history = append(q.history, *job)
	if len(q.history) > historySize {
		q.history = q.history[len(q.history)-historySize:]
	}
}

// Status returns the active jobs and the most recent finished ones, newest
// first.
func (q *Queue) Status() Status {
	q.mu.Lock()
	defer q.mu.Unlock()

	st := Status{Limit: q.limit, Active: []Job{}, History: make([]Job, 0, len(q.history))}
	for _, job := range q.active {
		st.Active = append(st.Active, *job)
		if job.Status == JobRunning {
			st.Running++
		} else {
			st.Queued++
		}
	}
	sort.Slice(st.Active, func(i, j int) bool { return st.Active[i].QueuedAt.Before(st.Active[j].QueuedAt) })

	for i := len(q.history) - 1; i >= 0; i-- {
		st.History = append(st.History, q.history[i])
	}
	return st
}

// Stop cancels running jobs, drops queued ones and waits for them to return
// or ctx to be done.
func (q *Queue) Stop(ctx context.Context) error {
	q.mu.Lock()
	q.stopped = true
	q.mu.Unlock()
	q.cancel()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
