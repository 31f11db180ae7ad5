package handlers

import (
	"encoding/json"
	"net/http"

	"media-catalog/internal/database"
	"media-catalog/internal/logging"
	"media-catalog/internal/mediatypes"
)

type fileTypeRequest struct {
	Extension string `json:"extension"`
	Category  string `json:"category"`
	MimeType  string `json:"mimeType"`
	Ignore    *bool  `json:"ignore"`
}

// ListFileTypes returns the extension policy table.
func (h *Handlers) ListFileTypes(w http.ResponseWriter, r *http.Request) {
	types, err := h.db.ListFileTypes(r.Context())
	if err != nil {
		writeStoreError(w, "File types", err)
		return
	}
	writeJSONOK(w, types)
}

// CreateFileType adds an extension to the policy table.
func (h *Handlers) CreateFileType(w http.ResponseWriter, r *http.Request) {
	var req fileTypeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if mediatypes.NormalizeExtension(req.Extension) == "" {
		writeJSONError(w, "extension is required", http.StatusBadRequest)
		return
	}
	if req.Category != "" && !mediatypes.IsValidCategory(req.Category) {
		writeJSONError(w, "Unknown category: "+req.Category, http.StatusBadRequest)
		return
	}

	ft := database.FileType{Extension: req.Extension, Category: req.Category, MimeType: req.MimeType}
	if req.Ignore != nil {
		ft.Ignore = *req.Ignore
	}
	created, err := h.db.CreateFileType(r.Context(), ft)
	if err != nil {
		logging.Warn("Create file type %q: %v", req.Extension, err)
		writeJSONError(w, err.Error(), http.StatusConflict)
		return
	}
	h.resolver.Invalidate()
	logging.Info("File type %s created (category %s)", created.Extension, created.Category)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	writeJSON(w, created)
}

// UpdateFileType changes the category, mime type or ignore flag of a file
// type. Omitted fields keep their current values.
func (h *Handlers) UpdateFileType(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeJSONError(w, "Invalid file type id", http.StatusBadRequest)
		return
	}
	var req fileTypeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Category != "" && !mediatypes.IsValidCategory(req.Category) {
		writeJSONError(w, "Unknown category: "+req.Category, http.StatusBadRequest)
		return
	}

	ft, err := h.db.GetFileType(r.Context(), id)
	if err != nil {
		writeStoreError(w, "File type", err)
		return
	}
	if req.Category != "" {
		ft.Category = req.Category
	}
	if req.MimeType != "" {
		ft.MimeType = req.MimeType
	}
	if req.Ignore != nil {
		ft.Ignore = *req.Ignore
	}

	if err := h.db.UpdateFileType(r.Context(), *ft); err != nil {
		writeStoreError(w, "File type", err)
		return
	}
	h.resolver.Invalidate()
	logging.Info("File type %s updated (category %s, ignore %t)", ft.Extension, ft.Category, ft.Ignore)
	writeJSONOK(w, ft)
}
