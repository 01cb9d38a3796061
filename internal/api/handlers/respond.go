package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/readstack-hq/readstack/internal/core"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusFor(err), map[string]any{
		"success": false,
		"error":   err.Error(),
	})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, core.ErrBookNotFound):
		return http.StatusNotFound
	case errors.Is(err, core.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, core.ErrInvalidQuery), errors.Is(err, core.ErrUnsupportedFormat):
		return http.StatusBadRequest
	case errors.Is(err, core.ErrStorageUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, core.ErrProcessingInProgress):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
