package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"media-catalog/internal/database"
	"media-catalog/internal/logging"
	"media-catalog/internal/operations"
)

// writeJSON encodes v as JSON and writes it to the response writer.
// Any encoding or write errors are logged since we typically cannot
// recover from them in an HTTP handler context.
func writeJSON(w http.ResponseWriter, v interface{}) {
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Error("failed to encode JSON response: %v", err)
	}
}

// writeJSONOK writes v with a 200 status.
func writeJSONOK(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, v)
}

// writeJSONError writes an error response as JSON with the given status code.
func writeJSONError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	writeJSON(w, map[string]string{"error": message})
}

// writeStoreError maps a database error to 404 or 500.
func writeStoreError(w http.ResponseWriter, what string, err error) {
	if errors.Is(err, database.ErrNotFound) {
		writeJSONError(w, what+" not found", http.StatusNotFound)
		return
	}
	logging.Error("%s lookup failed: %v", what, err)
	writeJSONError(w, "Internal server error", http.StatusInternalServerError)
}

// pathID parses the {id} route variable.
func pathID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	return id, err == nil && id > 0
}

// pathOperation parses the {operation} route variable, writing a 400 when
// it is not a known operation.
func pathOperation(w http.ResponseWriter, r *http.Request) (database.OperationType, bool) {
	op, err := operations.Lookup(mux.Vars(r)["operation"])
	if err != nil {
		writeJSONError(w, err.Error(), http.StatusBadRequest)
		return "", false
	}
	return op, true
}

// queryBool reads a boolean query parameter. "1", "true", "yes" and "on"
// are true; a present but empty value is also true.
func queryBool(r *http.Request, key string, def bool) bool {
	q := r.URL.Query()
	if !q.Has(key) {
		return def
	}
	switch strings.ToLower(strings.TrimSpace(q.Get(key))) {
	case "", "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

// queryInt reads a positive integer query parameter.
func queryInt(r *http.Request, key string, def int) int {
	if n, err := strconv.Atoi(r.URL.Query().Get(key)); err == nil && n > 0 {
		return n
	}
	return def
}
