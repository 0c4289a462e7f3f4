package api

import (
	"context"
	"net/http"
)

// WithHealthCheck sets the probe used by the database health endpoint.
func WithHealthCheck(check func(context.Context) error) Option {
	return func(a *API) { a.healthCheck = check }
}

// Banner identifies the service and its active storage backend.
func (a *API) Banner(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"service": "authd",
		"backend": a.backendName,
	})
}

// Health is the liveness probe.
func (a *API) Health(w http.ResponseWriter, r *http.Request) {
	w.Write([]byte("OK"))
}

// HealthDB reports whether the storage backend is reachable.
func (a *API) HealthDB(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	code := http.StatusOK
	if a.healthCheck != nil {
		if err := a.healthCheck(r.Context()); err != nil {
			status = "unreachable"
			code = http.StatusServiceUnavailable
		}
	}
	writeJSON(w, code, map[string]string{
		"backend": a.backendName,
		"status":  status,
	})
}
