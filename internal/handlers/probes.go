package handlers

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"media-catalog/internal/startup"
)

// Overall health values reported by /healthz.
const (
	statusHealthy  = "healthy"
	statusStarting = "starting"
	statusDegraded = "degraded"
)

const pingTimeout = 2 * time.Second

// HealthResponse is the body of /healthz.
type HealthResponse struct {
	Status   string `json:"status"`
	Ready    bool   `json:"ready"`
	Version  string `json:"version"`
	Uptime   string `json:"uptime"`
	Database string `json:"database"`

	Scanning     bool   `json:"scanning"`
	LastScan     string `json:"lastScan,omitempty"`
	ScanError    string `json:"initialScanError,omitempty"`
	FilesIndexed int64  `json:"filesIndexed"`

	ActiveRuns  int `json:"activeRuns"`
	QueuedJobs  int `json:"queuedJobs"`
	RunningJobs int `json:"runningJobs"`

	GoVersion  string `json:"goVersion"`
	Goroutines int    `json:"numGoroutine"`
}

// HealthCheck reports indexer, database and batch state. It answers 503 until
// the first scan makes the catalog ready; a failed ping only degrades it.
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	idx := h.indexer.GetHealthStatus()

	resp := HealthResponse{
		Status:       statusHealthy,
		Ready:        idx.Ready,
		Version:      startup.Version,
		Uptime:       idx.Uptime,
		Database:     "ok",
		Scanning:     idx.Scanning,
		ScanError:    idx.InitialScanError,
		FilesIndexed: idx.FilesIndexed,
		ActiveRuns:   len(h.runner.Registry().Active()),
		GoVersion:    runtime.Version(),
		Goroutines:   runtime.NumGoroutine(),
	}
	if !idx.LastScan.IsZero() {
		resp.LastScan = idx.LastScan.Format(time.RFC3339)
	}
	if h.queue != nil {
		st := h.queue.Status()
		resp.QueuedJobs, resp.RunningJobs = st.Queued, st.Running
	}

	ctx, cancel := context.WithTimeout(r.Context(), pingTimeout)
	defer cancel()
	if err := h.db.Ping(ctx); err != nil {
		resp.Database = err.Error()
	}

	switch {
	case !idx.Ready:
		resp.Status = statusStarting
	case resp.Database != "ok" || resp.ScanError != "":
		resp.Status = statusDegraded
	}

	code := http.StatusOK
	if !idx.Ready {
		code = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	writeJSON(w, resp)
}

// LivenessCheck answers 200 while the process serves HTTP. HEAD gets no body.
func (h *Handlers) LivenessCheck(w http.ResponseWriter, r *http.Request) {
	writeProbe(w, r, http.StatusOK, "alive")
}

// ReadinessCheck answers 200 once the indexer is ready.
func (h *Handlers) ReadinessCheck(w http.ResponseWriter, r *http.Request) {
	if h.indexer.IsReady() {
		writeProbe(w, r, http.StatusOK, "ready")
		return
	}
	writeProbe(w, r, http.StatusServiceUnavailable, "not_ready")
}

func writeProbe(w http.ResponseWriter, r *http.Request, code int, status string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if r.Method != http.MethodHead {
		writeJSON(w, map[string]string{"status": status})
	}
}

// GetVersion returns the build information.
func (h *Handlers) GetVersion(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Cache-Control", "no-cache")
	writeJSONOK(w, startup.GetBuildInfo())
}

// MetricsHandler serves the default registry, with OpenMetrics when the
// scraper asks for it.
func (h *Handlers) MetricsHandler() http.Handler {
	return promhttp.HandlerFor(prometheus.DefaultGatherer, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}
