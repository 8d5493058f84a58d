package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/iotail/kennel-core/internal/reservation"
)

// Error represents a structured error response.
type Error struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Common error codes.
const (
	ErrCodeBadRequest   = "bad_request"
	ErrCodeNotFound     = "not_found"
	ErrCodeUnauthorized = "unauthorised"
	ErrCodeUpstream     = "upstream_failure"
	ErrCodeInternal     = "internal_error"
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
	writeJSON(w, status, Error{Status: status, Code: code, Message: message})
}

// writeBadRequest writes a 400 error response.
func writeBadRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

// writeUnauthorized writes a 401 error response.
func writeUnauthorized(w http.ResponseWriter, message string) {
	writeError(w, http.StatusUnauthorized, ErrCodeUnauthorized, message)
}

// writeInternalError writes a 500 error response.
func writeInternalError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, ErrCodeInternal, message)
}

// writeSchedulerError maps scheduler errors onto HTTP responses.
//
// No fitting kennel is a normal negative outcome and comes back as a 200
// with status "unavailable"; the mobile clients branch on the status
// field, not the HTTP code. Catalog failures surface as 502 because the
// operation was aborted rather than partially applied.
func writeSchedulerError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, reservation.ErrUnavailable):
		writeJSON(w, http.StatusOK, map[string]string{
			"status":  "unavailable",
			"message": "no kennel of a suitable size is free",
		})
	case errors.Is(err, reservation.ErrNotFound):
		writeError(w, http.StatusNotFound, ErrCodeNotFound, err.Error())
	case errors.Is(err, reservation.ErrUnauthorized):
		writeError(w, http.StatusUnauthorized, ErrCodeUnauthorized, "unlock code mismatch")
	case errors.Is(err, reservation.ErrExternalService):
		writeError(w, http.StatusBadGateway, ErrCodeUpstream, "catalog unavailable, try again")
	default:
		writeInternalError(w, "internal server error")
	}
}
