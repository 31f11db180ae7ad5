package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"media-catalog/internal/indexer"
	"media-catalog/internal/logging"
	"media-catalog/internal/streaming"
)

// ListScanFolders returns the configured scan roots.
func (h *Handlers) ListScanFolders(w http.ResponseWriter, r *http.Request) {
	folders, err := h.db.ListScanFolders(r.Context())
	if err != nil {
		writeStoreError(w, "Scan folders", err)
		return
	}
	writeJSONOK(w, folders)
}

type scanFolderRequest struct {
	Path              string `json:"path"`
	IncludeSubfolders *bool  `json:"includeSubfolders"`
}

// AddScanFolder registers a scan root. includeSubfolders defaults to true.
func (h *Handlers) AddScanFolder(w http.ResponseWriter, r *http.Request) {
	var req scanFolderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Path == "" {
		writeJSONError(w, "Request body must include a path", http.StatusBadRequest)
		return
	}
	recursive := true
	if req.IncludeSubfolders != nil {
		recursive = *req.IncludeSubfolders
	}

	folder, err := h.db.AddScanFolder(r.Context(), req.Path, recursive)
	if err != nil {
		writeJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}
	logging.Info("Scan folder added: %s (subfolders: %t)", folder.Path, folder.IncludeSubfolders)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	writeJSON(w, folder)
}

// DeleteScanFolder removes a scan root.
func (h *Handlers) DeleteScanFolder(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeJSONError(w, "Invalid scan folder id", http.StatusBadRequest)
		return
	}
	if err := h.db.DeleteScanFolder(r.Context(), id); err != nil {
		writeStoreError(w, "Scan folder", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// TriggerScan starts a scan of every root.
//
// With ?stream=true the scan runs on the request and its progress is
// streamed as frames. With ?wait=true it runs on the request and the result
// is returned as JSON. Otherwise it runs in the background and 202 is
// returned at once.
func (h *Handlers) TriggerScan(w http.ResponseWriter, r *http.Request) {
	if h.indexer.IsScanning() {
		writeJSONError(w, indexer.ErrScanInProgress.Error(), http.StatusConflict)
		return
	}

	switch {
	case queryBool(r, "stream", false):
		stream := streaming.NewEventStream(r.Context(), w)
		defer stream.Close()
		if _, err := h.indexer.Scan(r.Context(), stream); err != nil {
			logging.Warn("Streamed scan ended: %v", err)
		}

	case queryBool(r, "wait", false):
		res, err := h.indexer.Scan(r.Context(), nil)
		if errors.Is(err, indexer.ErrScanInProgress) {
			writeJSONError(w, err.Error(), http.StatusConflict)
			return
		}
		if err != nil {
			writeJSONError(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSONOK(w, res)

	default:
		go func() {
			if _, err := h.indexer.Scan(context.Background(), nil); err != nil && !errors.Is(err, indexer.ErrScanInProgress) {
				logging.Error("Background scan failed: %v", err)
			}
		}()
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		writeJSON(w, map[string]string{
			"status":  "started",
			"message": "Scan started",
		})
	}
}
