package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"fintrack/internal/core"
	applog "fintrack/internal/log"
)

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Error ErrorDetail `json:"error"`
}

type ErrorDetail struct {
	Kind      string `json:"kind"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

// StatusFor maps a domain error to its HTTP status.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, core.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, core.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, core.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, core.ErrFileFormat):
		return http.StatusUnprocessableEntity
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(v)
}

// writeError renders err. Server-side failures are logged and their details
// kept out of the response.
func writeError(w http.ResponseWriter, r *http.Request, operation string, err error) {
	status := StatusFor(err)
	detail := ErrorDetail{
		Kind:      applog.ErrorType(err),
		Message:   core.MessageOf(err),
		RequestID: w.Header().Get("X-Request-ID"),
	}
	if status >= http.StatusInternalServerError {
		if status == http.StatusInternalServerError {
			detail.Message = "internal server error"
		}
		applog.NewStructuredLogger(nil).LogError(r.Context(), "Request failed", err, operation, nil)
	}
	writeJSON(w, status, ErrorBody{Error: detail})
}

// listOf keeps empty collections as [] rather than null.
func listOf[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
