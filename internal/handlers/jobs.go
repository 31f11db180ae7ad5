package handlers

import (
	"net/http"

	"media-catalog/internal/jobs"
)

// JobsResponse is the queue snapshot plus the cron schedules.
type JobsResponse struct {
	jobs.Status
	Schedules []jobs.Schedule `json:"schedules"`
}

// GetJobs returns running and queued jobs, recent history, and schedules.
func (h *Handlers) GetJobs(w http.ResponseWriter, _ *http.Request) {
	resp := JobsResponse{
		Status:    h.queue.Status(),
		Schedules: []jobs.Schedule{},
	}
	if h.scheduler != nil {
		resp.Schedules = h.scheduler.Schedules()
	}
	writeJSONOK(w, resp)
}

// GetStats returns catalog statistics.
func (h *Handlers) GetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.db.GetCatalogStats(r.Context())
	if err != nil {
		writeStoreError(w, "Stats", err)
		return
	}
	writeJSONOK(w, stats)
}
