package handlers

import (
	"net/http"
	"strconv"

	"media-catalog/internal/duplicates"
	"media-catalog/internal/logging"
	"media-catalog/internal/operations"
)

// GetDuplicates groups analysed images by visual hash. ?maxDistance= sets the
// largest Hamming distance reported as similar (default 10).
func (h *Handlers) GetDuplicates(w http.ResponseWriter, r *http.Request) {
	maxDistance := duplicates.DefaultMaxDistance
	if s := r.URL.Query().Get("maxDistance"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			writeJSONError(w, "maxDistance must be a non-negative integer", http.StatusBadRequest)
			return
		}
		maxDistance = n
	}

	items, err := h.db.ListHashedItems(r.Context())
	if err != nil {
		writeStoreError(w, "Hashed items", err)
		return
	}
	res := duplicates.Find(items, maxDistance)
	logging.Debug("Duplicates: %d groups from %d hashed items", res.Stats.TotalGroups, len(items))
	writeJSONOK(w, res)
}

// ValidateThumbnails samples image items and reports drift between the
// thumbnail ledger, the recorded thumbnail paths and blob storage.
func (h *Handlers) ValidateThumbnails(w http.ResponseWriter, r *http.Request) {
	rep, err := operations.ValidateThumbnails(r.Context(), h.db, h.blobs, queryInt(r, "limit", 100))
	if err != nil {
		logging.Error("Thumbnail validation failed: %v", err)
		writeJSONError(w, "Thumbnail validation failed", http.StatusInternalServerError)
		return
	}
	writeJSONOK(w, rep)
}
