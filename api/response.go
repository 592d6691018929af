package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/planora/planora/internal/assistant"
	"github.com/planora/planora/internal/chatlog"
	"github.com/planora/planora/internal/event"
	"github.com/planora/planora/internal/gateway"
	"github.com/planora/planora/internal/task"
)

// ErrorResponse is the JSON body returned for failed requests.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{Error: code, Message: message})
}

// writeDomainError maps domain sentinel errors to HTTP status codes.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, assistant.ErrNoTasks):
		writeError(w, http.StatusNotFound, "not_found", "No tasks found")
	case errors.Is(err, chatlog.ErrNotFound),
		errors.Is(err, task.ErrNotFound),
		errors.Is(err, event.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, assistant.ErrInvalidMode),
		errors.Is(err, assistant.ErrEmptyMessage),
		errors.Is(err, task.ErrValidation),
		errors.Is(err, task.ErrDuplicateTitle),
		errors.Is(err, event.ErrValidation),
		errors.Is(err, event.ErrConflict):
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
	case errors.Is(err, gateway.ErrUpstream):
		writeError(w, http.StatusInternalServerError, "upstream_error", "model request failed")
	default:
		slog.Error("unhandled error", "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}
