package handlers

import (
	"github.com/gorilla/mux"
)

// Router returns the API routes.
func (h *Handlers) Router() *mux.Router {
	r := mux.NewRouter()

	// Health check and version routes
	r.HandleFunc("/health", h.HealthCheck).Methods("GET")
	r.HandleFunc("/healthz", h.HealthCheck).Methods("GET")
	r.HandleFunc("/livez", h.LivenessCheck).Methods("GET", "HEAD")
	r.HandleFunc("/readyz", h.ReadinessCheck).Methods("GET", "HEAD")
	r.HandleFunc("/version", h.GetVersion).Methods("GET")

	api := r.PathPrefix("/api").Subrouter()

	// Batch processing. The literal paths must be registered before
	// {operation}, which would match them too.
	api.HandleFunc("/process/abort", h.AbortProcessing).Methods("POST")
	api.HandleFunc("/process/abort-all", h.AbortAll).Methods("POST")
	api.HandleFunc("/process/active", h.ActiveRuns).Methods("GET")
	api.HandleFunc("/process/thumbnail/validate", h.ValidateThumbnails).Methods("GET")
	api.HandleFunc("/process/{operation}", h.StartProcessing).Methods("POST")
	api.HandleFunc("/process/{operation}/stats", h.GetProcessingStats).Methods("GET")
	api.HandleFunc("/process/{operation}/failed", h.ListFailed).Methods("GET")
	api.HandleFunc("/process/{operation}/reset", h.ResetStates).Methods("POST")
	api.HandleFunc("/process/{operation}/queue", h.QueueProcessing).Methods("POST")

	// Catalog
	api.HandleFunc("/media", h.ListMedia).Methods("GET")
	api.HandleFunc("/media/{id:[0-9]+}", h.GetMedia).Methods("GET")
	api.HandleFunc("/media/{id:[0-9]+}/process/{operation}", h.ProcessMediaItem).Methods("POST")
	api.HandleFunc("/thumbnail/{id:[0-9]+}", h.GetThumbnail).Methods("GET")
	api.HandleFunc("/stats", h.GetStats).Methods("GET")
	api.HandleFunc("/duplicates", h.GetDuplicates).Methods("GET")

	// File types
	api.HandleFunc("/file-types", h.ListFileTypes).Methods("GET")
	api.HandleFunc("/file-types", h.CreateFileType).Methods("POST")
	api.HandleFunc("/file-types/{id:[0-9]+}", h.UpdateFileType).Methods("PUT")

	// Scanning
	api.HandleFunc("/scan-folders", h.ListScanFolders).Methods("GET")
	api.HandleFunc("/scan-folders", h.AddScanFolder).Methods("POST")
	api.HandleFunc("/scan-folders/{id:[0-9]+}", h.DeleteScanFolder).Methods("DELETE")
	api.HandleFunc("/scan", h.TriggerScan).Methods("POST")

	// Jobs
	api.HandleFunc("/jobs", h.GetJobs).Methods("GET")

	return r
}
