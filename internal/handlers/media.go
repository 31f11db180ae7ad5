package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"media-catalog/internal/database"
	"media-catalog/internal/logging"
	"media-catalog/internal/media"
	"media-catalog/internal/mediatypes"
	"media-catalog/internal/storage"
)

// parseDate accepts RFC 3339 timestamps or plain YYYY-MM-DD dates.
func parseDate(s string) (*time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return &t, nil
	}
	t, err := time.ParseInLocation("2006-01-02", s, time.UTC)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// mediaFilter builds a catalog filter from the query string.
func mediaFilter(r *http.Request) (database.MediaFilter, error) {
	q := r.URL.Query()
	f := database.MediaFilter{
		Category:   q.Get("category"),
		Folder:     q.Get("folder"),
		Uniformity: q.Get("uniformity"),
		Search:     q.Get("search"),
		Sort:       q.Get("sort"),
		Order:      q.Get("order"),
		Page:       queryInt(r, "page", 1),
		PageSize:   queryInt(r, "pageSize", 50),
	}

	if f.Category != "" && !mediatypes.IsValidCategory(f.Category) {
		return f, errors.New("unknown category: " + f.Category)
	}
	switch media.Uniformity(f.Uniformity) {
	case "", media.UniformityNormal, media.UniformitySolid, media.UniformityLow:
	default:
		return f, errors.New("uniformity must be one of normal, solid_color, low_content")
	}
	switch mediatypes.SortField(f.Sort) {
	case "", mediatypes.SortByName, mediatypes.SortByDate, mediatypes.SortBySize, mediatypes.SortByCreated:
	default:
		return f, errors.New("sort must be one of name, date, size, created")
	}
	switch mediatypes.SortOrder(f.Order) {
	case "", mediatypes.SortAsc, mediatypes.SortDesc:
	default:
		return f, errors.New("order must be asc or desc")
	}

	if q.Has("hasThumbnail") {
		v := queryBool(r, "hasThumbnail", false)
		f.HasThumbnail = &v
	}
	if s := q.Get("from"); s != "" {
		t, err := parseDate(s)
		if err != nil {
			return f, errors.New("from must be a date")
		}
		f.From = t
	}
	if s := q.Get("to"); s != "" {
		t, err := parseDate(s)
		if err != nil {
			return f, errors.New("to must be a date")
		}
		f.To = t
	}
	return f, nil
}

// ListMedia returns one page of catalog items.
func (h *Handlers) ListMedia(w http.ResponseWriter, r *http.Request) {
	f, err := mediaFilter(r)
	if err != nil {
		writeJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	page, err := h.db.ListMedia(r.Context(), f)
	if err != nil {
		writeStoreError(w, "Media", err)
		return
	}
	writeJSONOK(w, page)
}

// MediaDetail is an item with its ledger rows.
type MediaDetail struct {
	Item   *database.MediaItem        `json:"item"`
	States []database.ProcessingState `json:"states"`
}

// GetMedia returns one item and its processing states.
func (h *Handlers) GetMedia(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeJSONError(w, "Invalid media id", http.StatusBadRequest)
		return
	}

	item, err := h.db.GetMediaItem(r.Context(), id)
	if err != nil {
		writeStoreError(w, "Media item", err)
		return
	}
	states, err := h.db.ListProcessingStates(r.Context(), id)
	if err != nil {
		writeStoreError(w, "Processing states", err)
		return
	}
	if states == nil {
		states = []database.ProcessingState{}
	}
	writeJSONOK(w, MediaDetail{Item: item, States: states})
}

// GetThumbnail serves a generated thumbnail from blob storage.
func (h *Handlers) GetThumbnail(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeJSONError(w, "Invalid media id", http.StatusBadRequest)
		return
	}

	data, err := h.blobs.Get(r.Context(), storage.ThumbnailKey(id))
	if errors.Is(err, storage.ErrNotFound) {
		writeJSONError(w, "Thumbnail not found", http.StatusNotFound)
		return
	}
	if err != nil {
		logging.Error("Thumbnail %d: %s get failed: %v", id, h.blobs.Name(), err)
		writeJSONError(w, "Failed to read thumbnail", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("Cache-Control", "public, max-age=86400")
	if _, err := w.Write(data); err != nil {
		logging.Debug("Thumbnail %d: write failed: %v", id, err)
	}
}

// ProcessMediaItem runs one operation on one item synchronously and
// returns the item result.
func (h *Handlers) ProcessMediaItem(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeJSONError(w, "Invalid media id", http.StatusBadRequest)
		return
	}
	op, ok := pathOperation(w, r)
	if !ok {
		return
	}
	_, params, err := h.runRequest(r, op)
	if err != nil {
		writeJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	item, err := h.db.GetMediaItem(r.Context(), id)
	if err != nil {
		writeStoreError(w, "Media item", err)
		return
	}

	res, err := h.runner.ProcessOne(r.Context(), op, params, item)
	if err != nil {
		logging.Error("Process %s on item %d: %v", op, id, err)
		writeJSONError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSONOK(w, map[string]interface{}{
		"id":        id,
		"operation": op,
		"result":    res,
	})
}
