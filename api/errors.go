package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/mukkaai/authd/auth"
	"github.com/mukkaai/authd/store"
)

// errorResponse is the uniform error body every failing endpoint returns.
type errorResponse struct {
	Error     string `json:"error"`
	Status    int    `json:"status"`
	Path      string `json:"path"`
	Timestamp string `json:"timestamp"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	writeJSON(w, status, errorResponse{
		Error:     msg,
		Status:    status,
		Path:      r.URL.Path,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// mapError converts service-layer errors to HTTP responses. Store I/O
// failures surface as a generic 500; the cause is logged by the service,
// never leaked here.
func (a *API) mapError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, auth.ErrInvalidCredentials):
		writeError(w, r, http.StatusUnauthorized, "Invalid credentials")
	case errors.Is(err, auth.ErrInvalidToken):
		writeError(w, r, http.StatusUnauthorized, "Invalid or expired refresh token")
	case errors.Is(err, auth.ErrRefreshDisabled):
		writeError(w, r, http.StatusUnauthorized, "Refresh tokens are disabled")
	case errors.Is(err, auth.ErrInvalidResetToken):
		writeError(w, r, http.StatusBadRequest, "Invalid or expired token")
	case errors.Is(err, store.ErrDuplicateUser):
		writeError(w, r, http.StatusConflict, "Username already exists")
	case errors.Is(err, store.ErrNotFound):
		writeError(w, r, http.StatusNotFound, "Not found")
	default:
		writeError(w, r, http.StatusInternalServerError, "Internal server error")
	}
}
