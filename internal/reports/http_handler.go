package reports

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rpattn/opsreport/internal/domain"
	"github.com/rpattn/opsreport/internal/repository"

	"github.com/google/uuid"
)

type Handler struct {
	service *Service
}

func NewHTTPHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Register mounts the query endpoints on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /uploads", h.handleListUploads)
	mux.HandleFunc("GET /uploads/{id}", h.handleGetUpload)
	mux.HandleFunc("DELETE /uploads/{id}", h.handleDeleteUpload)
	mux.HandleFunc("GET /records/{tipo}", h.handleListRecords)
	mux.HandleFunc("DELETE /records/{tipo}/{id}", h.handleDeleteRecord)
	mux.HandleFunc("GET /reports/summary", h.handleSummary)
	mux.HandleFunc("GET /ingestion-logs", h.handleIngestionLogs)
}

type errorResponse struct {
	Message string `json:"message"`
}

func (h *Handler) handleListUploads(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	kind, err := optionalKind(query.Get("tipo"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	page, err := parsePage(query)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	result, err := h.service.ListUploads(r.Context(), domain.UploadFilter{Kind: kind}, page)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) handleGetUpload(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid upload id: %w", err))
		return
	}
	upload, err := h.service.GetUpload(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, upload)
}

func (h *Handler) handleDeleteUpload(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid upload id: %w", err))
		return
	}
	if err := h.service.DeleteUpload(r.Context(), id); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleListRecords(w http.ResponseWriter, r *http.Request) {
	kind, ok := domain.ParseUploadKind(r.PathValue("tipo"))
	if !ok {
		writeError(w, http.StatusBadRequest, fmt.Errorf("tipo must be detecciones or revisiones"))
		return
	}
	query := r.URL.Query()
	page, err := parsePage(query)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	filter := domain.RecordFilter{
		Almacen:     strings.TrimSpace(query.Get("almacen")),
		Monitorista: strings.TrimSpace(query.Get("monitorista")),
		Coordinador: strings.TrimSpace(query.Get("coordinador")),
	}
	if raw := strings.TrimSpace(query.Get("uploadId")); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid uploadId: %w", err))
			return
		}
		filter.UploadID = &id
	}
	if filter.MesDesde, err = parseMonth(query.Get("mesDesde"), false); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if filter.MesHasta, err = parseMonth(query.Get("mesHasta"), true); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	result, err := h.service.ListRecords(r.Context(), kind, filter, page)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) handleDeleteRecord(w http.ResponseWriter, r *http.Request) {
	kind, ok := domain.ParseUploadKind(r.PathValue("tipo"))
	if !ok {
		writeError(w, http.StatusBadRequest, fmt.Errorf("tipo must be detecciones or revisiones"))
		return
	}
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid record id: %w", err))
		return
	}
	if err := h.service.DeleteRecord(r.Context(), kind, id); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleSummary(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	kind, err := optionalKind(query.Get("tipo"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	from, err := parseMonth(query.Get("mesDesde"), false)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	to, err := parseMonth(query.Get("mesHasta"), true)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	summary, err := h.service.Summary(r.Context(), kind, from, to)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (h *Handler) handleIngestionLogs(w http.ResponseWriter, r *http.Request) {
	page, err := parsePage(r.URL.Query())
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	entries, err := h.service.IngestionLogs(r.Context(), page)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		writeError(w, http.StatusNotFound, err)
	case errors.Is(err, ErrInvalidRange):
		writeError(w, http.StatusBadRequest, err)
	default:
		log.Printf("[HTTP] %s %s failed: %v", r.Method, r.URL.Path, err)
		writeError(w, http.StatusInternalServerError, err)
	}
}

func optionalKind(raw string) (*domain.UploadKind, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	kind, ok := domain.ParseUploadKind(raw)
	if !ok {
		return nil, fmt.Errorf("tipo must be detecciones or revisiones")
	}
	return &kind, nil
}

func parsePage(query url.Values) (Page, error) {
	var page Page
	if raw := strings.TrimSpace(query.Get("page")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return Page{}, fmt.Errorf("page must be a positive integer")
		}
		page.Number = n
	}
	if raw := strings.TrimSpace(query.Get("pageSize")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return Page{}, fmt.Errorf("pageSize must be a positive integer")
		}
		page.Size = n
	}
	return page.Normalize(), nil
}

// parseMonth accepts yyyy-MM or yyyy-MM-dd. A bare month used as an upper
// bound covers the whole month.
func parseMonth(raw string, endOfMonth bool) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	if t, err := time.Parse("2006-01-02", raw); err == nil {
		return &t, nil
	}
	t, err := time.Parse("2006-01", raw)
	if err != nil {
		return nil, fmt.Errorf("invalid month %q: expected yyyy-MM or yyyy-MM-dd", raw)
	}
	if endOfMonth {
		t = t.AddDate(0, 1, -1)
	}
	return &t, nil
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{Message: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(payload)
}
