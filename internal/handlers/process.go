package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"media-catalog/internal/abort"
	"media-catalog/internal/batch"
	"media-catalog/internal/database"
	"media-catalog/internal/jobs"
	"media-catalog/internal/logging"
	"media-catalog/internal/media"
	"media-catalog/internal/operations"
	"media-catalog/internal/streaming"
)

// runRequest reads the run options and operation parameters from the query
// string, starting from the configured defaults.
func (h *Handlers) runRequest(r *http.Request, op database.OperationType) (batch.Options, operations.Params, error) {
	opts := h.runner.Defaults()
	opts.BatchSize = queryInt(r, "batchSize", opts.BatchSize)
	opts.All = queryBool(r, "all", opts.All)
	opts.RetryFailed = queryBool(r, "retryFailed", opts.RetryFailed)
	opts.SkipLargeFiles = queryBool(r, "skipLargeFiles", opts.SkipLargeFiles)

	var p operations.Params
	if op == database.OpExif {
		method, ok := media.ParseExifMethod(r.URL.Query().Get("method"))
		if !ok {
			return opts, p, errors.New("method must be one of default, fast, slow")
		}
		p.Method = method
		opts.Method = string(method)
	}
	p.Overwrite = queryBool(r, "overwrite", false)
	return opts, p, nil
}

// StartProcessing runs a batch and streams its progress frames. The first
// frame is "started" and carries the run's abort token.
func (h *Handlers) StartProcessing(w http.ResponseWriter, r *http.Request) {
	op, ok := pathOperation(w, r)
	if !ok {
		return
	}

	opts, params, err := h.runRequest(r, op)
	if err != nil {
		writeJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if _, err := h.runner.Operation(op, params); err != nil {
		logging.Error("Cannot build %s operation: %v", op, err)
		writeJSONError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	run, err := h.runner.Begin(r.Context(), r.URL.Query().Get("token"))
	if err != nil {
		if errors.Is(err, abort.ErrTokenInUse) {
			writeJSONError(w, "A run with this token is already active", http.StatusConflict)
			return
		}
		writeJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	stream := streaming.NewEventStream(r.Context(), w)
	defer stream.Close()

	if _, err := h.runner.Run(run, op, opts, params, stream); err != nil {
		logging.Error("%s run %s could not start: %v", op, run.Token(), err)
	}
}

type abortRequest struct {
	Token string `json:"token"`
}

// AbortProcessing signals the run registered under the posted token. Tokens
// with no local run are remembered, so a run starting later with that token
// begins aborted.
func (h *Handlers) AbortProcessing(w http.ResponseWriter, r *http.Request) {
	var req abortRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Token == "" {
		writeJSONError(w, "Request body must be {\"token\": \"...\"}", http.StatusBadRequest)
		return
	}

	aborted, err := h.runner.Registry().Abort(r.Context(), req.Token)
	if err != nil {
		logging.Warn("Abort of %s not recorded in store: %v", req.Token, err)
	}

	writeJSONOK(w, map[string]interface{}{
		"aborted": aborted,
		"token":   req.Token,
	})
}

// AbortAll signals every active run.
func (h *Handlers) AbortAll(w http.ResponseWriter, r *http.Request) {
	n := h.runner.Registry().AbortAll(r.Context())
	writeJSONOK(w, map[string]int{"aborted": n})
}

// ActiveRuns lists the tokens of running batches.
func (h *Handlers) ActiveRuns(w http.ResponseWriter, _ *http.Request) {
	tokens := h.runner.Registry().Active()
	writeJSONOK(w, map[string]interface{}{
		"tokens": tokens,
		"count":  len(tokens),
	})
}

// ProcessingStats is the response of GET /api/process/{operation}/stats.
type ProcessingStats struct {
	Operation database.OperationType  `json:"operation"`
	ByStatus  map[database.Status]int `json:"byStatus"`
	Remaining int                     `json:"remaining"`
	LastRun   *time.Time              `json:"lastRun,omitempty"`
}

// GetProcessingStats returns ledger counts by status, the number of items
// still eligible, and when the operation last ran.
func (h *Handlers) GetProcessingStats(w http.ResponseWriter, r *http.Request) {
	op, ok := pathOperation(w, r)
	if !ok {
		return
	}
	ctx := r.Context()

	counts, err := h.db.CountStates(ctx, op)
	if err != nil {
		writeStoreError(w, "Processing stats", err)
		return
	}

	var categories []string
	if operation, err := h.runner.Operation(op, operations.Params{}); err == nil {
		categories = operation.Categories()
	}
	remaining, err := h.db.CountEligible(ctx, op, queryBool(r, "retryFailed", false), categories)
	if err != nil {
		writeStoreError(w, "Processing stats", err)
		return
	}

	stats := ProcessingStats{Operation: op, ByStatus: counts, Remaining: remaining}
	if last, err := h.db.GetLastRun(ctx, op); err == nil && !last.IsZero() {
		stats.LastRun = &last
	}
	writeJSONOK(w, stats)
}

// ListFailed returns items whose ledger row for the operation is an error.
func (h *Handlers) ListFailed(w http.ResponseWriter, r *http.Request) {
	op, ok := pathOperation(w, r)
	if !ok {
		return
	}

	items, err := h.db.ListFailed(r.Context(), op, queryInt(r, "limit", 100))
	if err != nil {
		writeStoreError(w, "Failed items", err)
		return
	}
	if items == nil {
		items = []database.FailedItem{}
	}
	writeJSONOK(w, items)
}

// ResetStates deletes ledger rows for the operation so the items are
// processed again. ?status= limits the reset to one status.
func (h *Handlers) ResetStates(w http.ResponseWriter, r *http.Request) {
	op, ok := pathOperation(w, r)
	if !ok {
		return
	}

	var statuses []database.Status
	if s := r.URL.Query().Get("status"); s != "" {
		status, ok := database.ParseStatus(s)
		if !ok {
			writeJSONError(w, "Unknown status: "+s, http.StatusBadRequest)
			return
		}
		statuses = append(statuses, status)
	}

	n, err := h.db.ResetProcessingStates(r.Context(), op, statuses...)
	if err != nil {
		writeStoreError(w, "Processing states", err)
		return
	}
	logging.Info("Reset %d %s ledger rows", n, op)
	writeJSONOK(w, map[string]interface{}{
		"operation": op,
		"reset":     n,
	})
}

// QueueProcessing enqueues a background job for the operation.
func (h *Handlers) QueueProcessing(w http.ResponseWriter, r *http.Request) {
	op, ok := pathOperation(w, r)
	if !ok {
		return
	}

	job, err := h.queue.Enqueue(op, jobs.TriggerManual)
	switch {
	case errors.Is(err, jobs.ErrAlreadyQueued):
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		writeJSON(w, map[string]interface{}{
			"error": err.Error(),
			"job":   job,
		})
		return
	case err != nil:
		writeJSONError(w, err.Error(), http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	writeJSON(w, job)
}
