package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/nerrad567/smarthouse-core/internal/house"
	"github.com/nerrad567/smarthouse-core/internal/powerswitch"
)

// Error is the JSON body of every non-2xx response.
type Error struct {
	Status    int    `json:"status"`
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

// Error codes.
const (
	ErrCodeBadRequest        = "bad_request"
	ErrCodeNotFound          = "not_found"
	ErrCodeUnknownCommand    = "unknown_command"
	ErrCodeSwitchUnavailable = "switch_unavailable"
	ErrCodeInternal          = "internal_error"
)

// classify maps a domain error to its HTTP status and error code.
// Anything unrecognised is an internal error.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, house.ErrRoomNotFound), errors.Is(err, house.ErrDeviceNotFound):
		return http.StatusNotFound, ErrCodeNotFound
	case errors.Is(err, powerswitch.ErrUnknownCommandName):
		return http.StatusBadRequest, ErrCodeUnknownCommand
	case errors.Is(err, powerswitch.ErrConnectionFailed),
		errors.Is(err, powerswitch.ErrIO),
		errors.Is(err, context.DeadlineExceeded):
		return http.StatusBadGateway, ErrCodeSwitchUnavailable
	default:
		return http.StatusInternalServerError, ErrCodeInternal
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // best-effort write; the client may be gone
		json.NewEncoder(w).Encode(v)
	}
}

// writeError writes an Error body tagged with the request's ID.
func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	id, _ := r.Context().Value(ctxKeyRequestID).(string)
	writeJSON(w, status, Error{Status: status, Code: code, Message: message, RequestID: id})
}

// writeDomainError classifies err and writes message, or err's own text
// when message is empty. Internal errors never expose err.
func writeDomainError(w http.ResponseWriter, r *http.Request, err error, message string) {
	status, code := classify(err)
	if message == "" {
		message = err.Error()
		if code == ErrCodeInternal {
			message = http.StatusText(status)
		}
	}
	writeError(w, r, status, code, message)
}

func writeBadRequest(w http.ResponseWriter, r *http.Request, message string) {
	writeError(w, r, http.StatusBadRequest, ErrCodeBadRequest, message)
}

func writeNotFound(w http.ResponseWriter, r *http.Request, message string) {
	writeError(w, r, http.StatusNotFound, ErrCodeNotFound, message)
}
