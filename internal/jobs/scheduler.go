package jobs

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"media-catalog/internal/database"
	"media-catalog/internal/logging"
)

// Schedule is one registered cron entry.
type Schedule struct {
	Operation database.OperationType `json:"operation"`
	Spec      string                 `json:"spec"`
	Next      time.Time              `json:"next"`
	Prev      time.Time              `json:"prev,omitempty"`
}

// Scheduler enqueues jobs on cron schedules. Specs carry a seconds field
// ("0 0 3 * * *" is 03:00 daily).
type Scheduler struct {
	cron  *cron.Cron
	queue *Queue
	log   *logging.Logger

	mu      sync.Mutex
	entries map[database.OperationType]scheduled
}

type scheduled struct {
	id   cron.EntryID
	spec string
}

// NewScheduler creates a Scheduler feeding q.
func NewScheduler(q *Queue) *Scheduler {
	log := logging.Named("jobs")
	cronLog := cron.PrintfLogger(log)

	return &Scheduler{
		cron: cron.New(
			cron.WithSeconds(),
			cron.WithChain(
				cron.Recover(cronLog),
				cron.DelayIfStillRunning(cronLog),
			),
		),
		queue:   q,
		log:     log,
		entries: make(map[database.OperationType]scheduled),
	}
}

// Add schedules op on spec, replacing any earlier schedule for op. An empty
// spec removes the schedule.
func (s *Scheduler) Add(op database.OperationType, spec string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if prev, ok := s.entries[op]; ok {
		s.cron.Remove(prev.id)
		delete(s.entries, op)
	}
	if spec == "" {
		return nil
	}

	id, err := s.cron.AddFunc(spec, func() { s.fire(op) })
	if err != nil {
		return fmt.Errorf("invalid schedule %q for %s: %w", spec, op, err)
	}
	s.entries[op] = scheduled{id: id, spec: spec}
	s.log.Info("Scheduled %s: %s", op, spec)
	return nil
}

func (s *Scheduler) fire(op database.OperationType) {
	job, err := s.queue.Enqueue(op, TriggerSchedule)
	switch {
	case errors.Is(err, ErrAlreadyQueued):
		s.log.Debug("Skipping scheduled %s run: job %s is %s", op, job.ID, job.Status)
	case err != nil:
		s.log.Warn("Failed to queue scheduled %s run: %v", op, err)
	}
}

// Schedules lists registered entries ordered by operation.
func (s *Scheduler) Schedules() []Schedule {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Schedule, 0, len(s.entries))
	for op, e := range s.entries {
		entry := s.cron.Entry(e.id)
		out = append(out, Schedule{Operation: op, Spec: e.spec, Next: entry.Next, Prev: entry.Prev})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Operation < out[j].Operation })
	return out
}

// Start starts the cron loop.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop stops the cron loop and waits for running callbacks.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}
