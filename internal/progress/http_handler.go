package progress

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// Handler serves the progress polling boundary.
type Handler struct {
	tracker Tracker
}

// NewHTTPHandler wraps a tracker for polling clients.
func NewHTTPHandler(tracker Tracker) *Handler {
	return &Handler{tracker: tracker}
}

// Routes mounts the polling endpoint on a chi router.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/progress/{importID}", h.get)
}

// get is safe to call repeatedly; unknown and expired identifiers are
// a 404, which clients treat as a terminal answer distinct from a
// completed-with-error result.
func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	importID := chi.URLParam(r, "importID")

	record, err := h.tracker.Get(r.Context(), importID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			http.Error(w, "import not found", http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(record)
}
