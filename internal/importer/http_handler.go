package importer

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/Xena75/Gestione-Partesa-sub007/internal/domain"
	"github.com/Xena75/Gestione-Partesa-sub007/internal/repository"
	"github.com/Xena75/Gestione-Partesa-sub007/internal/workbook"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// Handler exposes the import pipeline over HTTP: upload, job listing
// and row-level diagnostics. Auth is handled upstream.
type Handler struct {
	service *Service
	jobs    repository.ImportJobRepository
	logs    repository.ImportLogRepository
}

// NewHTTPHandler wraps the service with the upload and audit routes.
func NewHTTPHandler(service *Service, jobs repository.ImportJobRepository, logs repository.ImportLogRepository) *Handler {
	return &Handler{service: service, jobs: jobs, logs: logs}
}

// Routes mounts the import endpoints on a chi router.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/imports", h.upload)
	r.Get("/imports", h.listJobs)
	r.Get("/imports/{importID}/errors", h.listErrors)
}

func (h *Handler) upload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		http.Error(w, fmt.Sprintf("invalid form data: %v", err), http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, fmt.Sprintf("file required: %v", err), http.StatusBadRequest)
		return
	}
	defer file.Close()

	payload, err := io.ReadAll(file)
	if err != nil {
		http.Error(w, fmt.Sprintf("failed to read file: %v", err), http.StatusBadRequest)
		return
	}

	req := Request{
		FileName:         header.Filename,
		Payload:          payload,
		ReplaceSessionID: strings.TrimSpace(r.FormValue("replaceSessionId")),
	}

	if name := strings.TrimSpace(r.FormValue("sheet")); name != "" {
		req.Sheet.Name = name
	} else if raw := strings.TrimSpace(r.FormValue("sheetIndex")); raw != "" {
		index, err := strconv.Atoi(raw)
		if err != nil {
			http.Error(w, "invalid sheetIndex", http.StatusBadRequest)
			return
		}
		req.Sheet = workbook.Selector{Index: index}
	}

	if raw := strings.TrimSpace(r.FormValue("mappingId")); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			http.Error(w, fmt.Sprintf("invalid mapping id: %v", err), http.StatusBadRequest)
			return
		}
		req.MappingID = &id
	} else if name := strings.TrimSpace(r.FormValue("mappingName")); name != "" {
		req.MappingName = name
	} else if raw := strings.TrimSpace(r.FormValue("mapping")); raw != "" {
		var adHoc domain.ColumnMapping
		if err := json.Unmarshal([]byte(raw), &adHoc); err != nil {
			http.Error(w, fmt.Sprintf("invalid ad-hoc mapping: %v", err), http.StatusBadRequest)
			return
		}
		req.AdHocMapping = &adHoc
	}

	importID, err := h.service.Start(r.Context(), req)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{"importId": importID})
}

func (h *Handler) listJobs(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil {
			limit = parsed
		}
	}

	jobs, err := h.jobs.ListRecent(r.Context(), limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, jobs)
}

func (h *Handler) listErrors(w http.ResponseWriter, r *http.Request) {
	importID := chi.URLParam(r, "importID")

	limit, offset := 200, 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil {
			limit = parsed
		}
	}
	if raw := r.URL.Query().Get("offset"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil {
			offset = parsed
		}
	}

	entries, err := h.logs.List(r.Context(), importID, limit, offset)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(payload)
}
