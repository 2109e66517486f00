package ingestion

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/rpattn/opsreport/internal/auth"
)

const defaultMaxUploadBytes = 32 << 20

// Handler exposes ingestion as an HTTP endpoint.
type Handler struct {
	service  *Service
	maxBytes int64
}

// NewHTTPHandler wraps the service with the POST /upload-excel endpoint.
// maxBytes caps the request body; zero or less uses 32 MiB.
func NewHTTPHandler(service *Service, maxBytes int64) http.Handler {
	if maxBytes <= 0 {
		maxBytes = defaultMaxUploadBytes
	}
	return &Handler{service: service, maxBytes: maxBytes}
}

type uploadResponse struct {
	Message   string `json:"message"`
	UploadID  string `json:"uploadId"`
	Tipo      string `json:"tipo"`
	TotalRows int    `json:"totalRows"`
}

type errorResponse struct {
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Message: "method not allowed"})
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes)
	if err := r.ParseMultipartForm(h.maxBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, errorResponse{Message: fmt.Sprintf("file exceeds %d bytes", h.maxBytes)})
			return
		}
		writeJSON(w, http.StatusBadRequest, errorResponse{Message: ErrMissingFile.Error(), Detail: err.Error()})
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Message: ErrMissingFile.Error()})
		return
	}
	defer file.Close()

	tipo := r.URL.Query().Get("tipo")
	if strings.TrimSpace(tipo) == "" {
		tipo = r.FormValue("tipo")
	}

	userID, _ := auth.UserIDFromContext(r.Context())

	summary, err := h.service.Ingest(r.Context(), Request{
		Kind:     tipo,
		FileName: header.Filename,
		UserID:   userID,
		Data:     file,
	})
	if err != nil {
		status := statusForError(err)
		resp := errorResponse{Message: err.Error()}
		if status == http.StatusInternalServerError {
			resp = errorResponse{Message: "error processing the file", Detail: err.Error()}
			log.Printf("[HTTP] upload-excel failed: %v", err)
		}
		writeJSON(w, status, resp)
		return
	}

	writeJSON(w, http.StatusOK, uploadResponse{
		Message:   fmt.Sprintf("file processed: %d rows stored", summary.TotalRows),
		UploadID:  summary.UploadID.String(),
		Tipo:      string(summary.Kind),
		TotalRows: summary.TotalRows,
	})
}

func statusForError(err error) int {
	switch {
	case IsValidationError(err):
		return http.StatusBadRequest
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(payload)
}
