package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/garnizeh/staffing/internal/engine"
)

type errorResponse struct {
	Error   string   `json:"error"`
	Details []string `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, v any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("encode response", slog.Any("err", err))
	}
}

var errorStatus = []struct {
	err    error
	status int
}{
	{engine.ErrInvalidInput, http.StatusBadRequest},
	{engine.ErrReservationExpired, http.StatusGone},
	{engine.ErrNotFound, http.StatusNotFound},
	{engine.ErrResourceUnavailable, http.StatusConflict},
	{engine.ErrCapacityExceeded, http.StatusConflict},
	{engine.ErrInvalidTransition, http.StatusConflict},
	{engine.ErrDuplicateProposal, http.StatusConflict},
	{engine.ErrInvalidCode, http.StatusUnprocessableEntity},
	{engine.ErrAttemptsExceeded, http.StatusTooManyRequests},
	{engine.ErrOTPDelivery, http.StatusBadGateway},
	{engine.ErrStateConflict, http.StatusInternalServerError},
}

// statusFor maps an engine error to its HTTP status. The order matters
// where one error wraps several sentinels.
func statusFor(err error) int {
	for _, e := range errorStatus {
		if errors.Is(err, e.err) {
			return e.status
		}
	}
	return http.StatusInternalServerError
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		// the engine already logged state conflicts with their detail
		logger.Error("request failed", slog.String("path", r.URL.Path), slog.Any("err", err))
		msg = http.StatusText(status)
	}
	writeJSON(w, errorResponse{Error: msg}, status)
}
