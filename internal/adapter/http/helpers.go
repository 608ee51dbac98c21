package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/atriumlabs/atrium/internal/domain"
	"github.com/atriumlabs/atrium/internal/service"
)

// maxRequestBodySize caps JSON request bodies at 1 MiB.
const maxRequestBodySize = 1 << 20

// response is the uniform JSON envelope. Success responses carry data and an
// optional message; error responses carry error and, for validation failures,
// the offending fields.
type response struct {
	Success    bool                `json:"success"`
	Data       any                 `json:"data,omitempty"`
	Message    string              `json:"message,omitempty"`
	Pagination *service.Pagination `json:"pagination,omitempty"`
	Error      string              `json:"error,omitempty"`
	Fields     []domain.FieldError `json:"fields,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, resp response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func writeData(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, response{Success: true, Data: data})
}

func writeDataMessage(w http.ResponseWriter, status int, data any, msg string) {
	writeJSON(w, status, response{Success: true, Data: data, Message: msg})
}

func writePage(w http.ResponseWriter, data any, pg *service.Pagination) {
	writeJSON(w, http.StatusOK, response{Success: true, Data: data, Pagination: pg})
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, response{Success: true, Message: msg})
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, response{Error: msg})
}

// writeDomainError maps service errors to HTTP status codes. notFound is the
// client-facing message for ErrNotFound so handlers can name the missing
// resource without leaking internal error text.
func writeDomainError(w http.ResponseWriter, err error, notFound string) {
	var ve *domain.ValidationError
	switch {
	case errors.As(err, &ve):
		writeJSON(w, http.StatusBadRequest, response{Error: "validation failed", Fields: ve.Fields})
	case errors.Is(err, domain.ErrValidation):
		writeError(w, http.StatusBadRequest, trimSentinel(err, domain.ErrValidation))
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, notFound)
	case errors.Is(err, domain.ErrSlugExists):
		writeError(w, http.StatusConflict, domain.ErrSlugExists.Error())
	case errors.Is(err, domain.ErrEmailExists):
		writeError(w, http.StatusConflict, domain.ErrEmailExists.Error())
	case errors.Is(err, domain.ErrUnauthorized):
		writeError(w, http.StatusUnauthorized, "unauthorized")
	case errors.Is(err, domain.ErrInvalidOperation):
		writeError(w, http.StatusBadRequest, trimSentinel(err, domain.ErrInvalidOperation))
	default:
		slog.Error("request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

// trimSentinel strips the wrapped sentinel suffix so clients see
// "tenant name is required" rather than "tenant name is required: validation failed".
func trimSentinel(err, sentinel error) string {
	return strings.TrimSuffix(err.Error(), ": "+sentinel.Error())
}

// readJSON decodes the request body into T, bounding its size. It writes the
// error response itself and reports false when decoding fails.
func readJSON[T any](w http.ResponseWriter, r *http.Request) (T, bool) {
	var v T
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	if err := json.NewDecoder(r.Body).Decode(&v); err != nil {
		if err.Error() == "http: request body too large" {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return v, false
		}
		writeError(w, http.StatusBadRequest, "invalid request body")
		return v, false
	}
	return v, true
}

// pathUUID parses the named chi route parameter as a UUID.
func pathUUID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid "+name)
		return uuid.Nil, false
	}
	return id, true
}
