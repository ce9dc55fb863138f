// SPDX-License-Identifier: MIT

package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ManuGH/vodcast/internal/provider"
	"github.com/ManuGH/vodcast/internal/transcoder"
)

// errorResponse is the JSON envelope for every non-2xx answer.
type errorResponse struct {
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, errorResponse{
		Error:  http.StatusText(status),
		Detail: detail,
	})
}

// statusForError maps domain errors onto HTTP statuses. Anything not
// recognized counts as an upstream failure, which is a conflict rather
// than a server fault: the service itself is healthy.
func statusForError(err error) int {
	switch {
	case errors.Is(err, provider.ErrNotAllowed):
		return http.StatusForbidden
	case errors.Is(err, transcoder.ErrBadRange):
		return http.StatusBadRequest
	case errors.Is(err, transcoder.ErrUnsatisfiableRange):
		return http.StatusRequestedRangeNotSatisfiable
	default:
		return http.StatusConflict
	}
}
