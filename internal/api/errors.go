package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/nerrad567/gray-logic-relay/internal/relay"
)

// Error represents a structured error response.
type Error struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error codes carried in the code field.
const (
	ErrCodeBadRequest       = "bad_request"
	ErrCodeInvalidCode      = "invalid_code"
	ErrCodeNotFound         = "not_found"
	ErrCodeConflict         = "conflict"
	ErrCodeStoreUnavailable = "store_unavailable"
	ErrCodeInternal         = "internal_error"
	ErrCodeMethodNotAllow   = "method_not_allowed"
	ErrCodeTooLarge         = "payload_too_large"
)

// writeJSON writes a JSON response with the given status code and payload.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // Best-effort write to response; connection may be closed
		json.NewEncoder(w).Encode(v)
	}
}

// writeError writes a structured error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Error{
		Status:  status,
		Code:    code,
		Message: message,
	})
}

// writeBadRequest writes a 400 error response.
func writeBadRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

// writeNotFound writes a 404 error response.
func writeNotFound(w http.ResponseWriter, message string) {
	writeError(w, http.StatusNotFound, ErrCodeNotFound, message)
}

// writeInternalError writes a 500 error response.
func writeInternalError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, ErrCodeInternal, message)
}

// writeServiceError maps a relay error onto a status and code. Validation
// messages are passed through; store failures are not, since they may leak
// internals.
func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, relay.ErrInvalidCode):
		writeError(w, http.StatusBadRequest, ErrCodeInvalidCode, "code must be 6 characters from A-Z and 0-9")
	case errors.Is(err, relay.ErrInvalidInput):
		writeBadRequest(w, err.Error())
	case errors.Is(err, relay.ErrNotFound):
		writeNotFound(w, "no online device with that code")
	case errors.Is(err, relay.ErrConflict):
		writeError(w, http.StatusConflict, ErrCodeConflict, "code is held by another online device")
	case errors.Is(err, relay.ErrStoreFailure):
		s.logger.Error("store failure", "path", r.URL.Path, "error", err,
			"request_id", r.Context().Value(ctxKeyRequestID))
		writeError(w, http.StatusServiceUnavailable, ErrCodeStoreUnavailable, "store unavailable")
	default:
		s.logger.Error("unexpected error", "path", r.URL.Path, "error", err,
			"request_id", r.Context().Value(ctxKeyRequestID))
		writeInternalError(w, "internal server error")
	}
}
