package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/cmwaters/privpoll/poll"
)

// writeJSON writes a JSON response with the given status code
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		http.Error(w, `{"error":"failed to encode response"}`, http.StatusInternalServerError)
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// statusOf maps engine error kinds to HTTP status codes. Unknown polls are
// checked first since a vote on one also reports the poll as not active.
func statusOf(err error) int {
	switch {
	case errors.Is(err, poll.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, poll.ErrNotAuthorized):
		return http.StatusForbidden
	case errors.Is(err, poll.ErrAlreadyVoted), errors.Is(err, poll.ErrPollNotActive):
		return http.StatusConflict
	case errors.Is(err, poll.ErrCryptoValidationFailed):
		return http.StatusUnprocessableEntity
	case errors.Is(err, poll.ErrInvalidOption),
		errors.Is(err, poll.ErrInvalidPoll),
		errors.Is(err, poll.ErrInvalidTimeRange),
		errors.Is(err, poll.ErrInvalidIdentity):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
