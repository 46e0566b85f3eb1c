package mapping

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/Xena75/Gestione-Partesa-sub007/internal/domain"
	"github.com/Xena75/Gestione-Partesa-sub007/internal/repository"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// Handler serves CRUD for named mapping presets.
type Handler struct {
	store    repository.MappingRepository
	registry domain.FieldRegistry
}

// NewHTTPHandler wraps a mapping store. Incoming mappings are checked
// against the canonical field registry before they are saved.
func NewHTTPHandler(store repository.MappingRepository) *Handler {
	return &Handler{
		store:    store,
		registry: domain.NewFieldRegistry(domain.DeliveryFields()),
	}
}

// Routes mounts the preset endpoints on a chi router.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/mappings", h.list)
	r.Post("/mappings", h.create)
	r.Get("/mappings/{mappingID}", h.get)
	r.Put("/mappings/{mappingID}", h.update)
	r.Delete("/mappings/{mappingID}", h.delete)
}

type mappingPayload struct {
	Name        string                `json:"name"`
	Description string                `json:"description"`
	Entries     []domain.MappingEntry `json:"entries"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	mappings, err := h.store.List(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, mappings)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var payload mappingPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, fmt.Sprintf("invalid mapping payload: %v", err), http.StatusBadRequest)
		return
	}

	columnMapping := domain.NewColumnMapping(payload.Name, payload.Description, payload.Entries)
	if err := columnMapping.Validate(h.registry); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	created, err := h.store.Create(r.Context(), columnMapping)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}

	columnMapping, err := h.store.GetByID(r.Context(), id)
	if err != nil {
		h.storeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, columnMapping)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}

	var payload mappingPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, fmt.Sprintf("invalid mapping payload: %v", err), http.StatusBadRequest)
		return
	}

	columnMapping := domain.ColumnMapping{
		ID:          id,
		Name:        payload.Name,
		Description: payload.Description,
		Entries:     payload.Entries,
	}
	if err := columnMapping.Validate(h.registry); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	updated, err := h.store.Update(r.Context(), columnMapping)
	if err != nil {
		h.storeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}

	if err := h.store.Delete(r.Context(), id); err != nil {
		h.storeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) parseID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "mappingID"))
	if err != nil {
		http.Error(w, fmt.Sprintf("invalid mapping id: %v", err), http.StatusBadRequest)
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) storeError(w http.ResponseWriter, err error) {
	if errors.Is(err, repository.ErrMappingNotFound) {
		http.Error(w, "mapping not found", http.StatusNotFound)
		return
	}
	http.Error(w, err.Error(), http.StatusInternalServerError)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(payload)
}
