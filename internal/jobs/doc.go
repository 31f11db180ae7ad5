// Package jobs runs batch operations in the background.
//
// A Queue accepts jobs from POST /api/process/{operation}/queue and from the
// Scheduler. Jobs run with a concurrency limit (workers.ForIO, overridable
// with PROCESS_WORKERS) and each job drives the same sequential batch driver
// an HTTP run uses, over every page. A job's abort token is "job-<id>", so
// POST /api/process/abort cancels it like any other run.
//
// The queue holds at most one queued or running job per operation, so a
// schedule that fires while the previous run is still going is dropped
// rather than stacked:
//
//	q := jobs.NewQueue(runner.RunDetached, workers.ForIO(4))
//	s := jobs.NewScheduler(q)
//	s.Add(database.OpThumbnail, "0 0 3 * * *")
//	s.Start()
//	defer s.Stop()
package jobs
