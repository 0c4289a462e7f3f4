// Package api exposes the session lifecycle over HTTP.
package api

import (
	"context"
	_ "embed"
	"log/slog"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/go-openapi/runtime/middleware"

	"github.com/mukkaai/authd/auth"
)

// API holds the dependencies needed by the REST handlers.
type API struct {
	svc    *auth.Service
	issuer *auth.TokenIssuer
	audit  *auditLogger
	trail  *AuditTrail

	loginLimiter *loginRateLimiter
	apiLimiter   *requestRateLimiter

	production  bool
	lockoutOn   bool
	backendName string
	healthCheck func(context.Context) error
}

//go:embed openapi.yaml
var openapiSpec []byte

// Option configures the API instance.
type Option func(*API)

// WithLogger sets the structured logger for audit events.
// If not set, a default JSON logger writing to stderr is used.
func WithLogger(logger *slog.Logger) Option {
	return func(a *API) {
		a.audit = newAuditLogger(logger)
	}
}

// WithProduction switches the API into production mode: reset tokens are
// never echoed in responses and error bodies stay generic.
func WithProduction(production bool) Option {
	return func(a *API) { a.production = production }
}

// WithAccountLockout toggles the failed-login rate limiter.
func WithAccountLockout(enabled bool) Option {
	return func(a *API) { a.lockoutOn = enabled }
}

// WithAuditTrail attaches a persistent audit trail. Without one, audit
// events go to the structured log only.
func WithAuditTrail(trail *AuditTrail) Option {
	return func(a *API) { a.trail = trail }
}

// WithBackendName records the active storage backend for the banner and
// health endpoints.
func WithBackendName(name string) Option {
	return func(a *API) { a.backendName = name }
}

// New creates a new API instance.
func New(svc *auth.Service, issuer *auth.TokenIssuer, opts ...Option) *API {
	a := &API{
		svc:          svc,
		issuer:       issuer,
		loginLimiter: newLoginRateLimiter(),
		apiLimiter:   newRequestRateLimiter(),
		lockoutOn:    true,
		backendName:  "unknown",
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.audit == nil {
		a.audit = newAuditLogger(slog.New(slog.NewJSONHandler(os.Stderr, nil)))
	}
	if a.trail != nil {
		a.audit.trail = a.trail
	}
	return a
}

// Router returns a chi.Router with all API routes mounted.
func (a *API) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(SecurityHeaders)
	r.Use(a.rateLimitRequests)

	r.Get("/", a.Banner)
	r.Get("/health", a.Health)
	r.Get("/health/db", a.HealthDB)

	r.Get("/openapi.yaml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/yaml")
		w.Write(openapiSpec)
	})

	r.Handle("/docs*", middleware.SwaggerUI(middleware.SwaggerUIOpts{
		SpecURL: "/openapi.yaml",
		Path:    "docs",
	}, nil))

	r.Handle("/redoc*", middleware.Redoc(middleware.RedocOpts{
		SpecURL: "/openapi.yaml",
		Path:    "redoc",
	}, nil))

	r.Post("/login", a.Login)
	r.Post("/logout", a.Logout)
	r.Post("/refresh-token", a.RefreshToken)
	r.Post("/forgot-password", a.ForgotPassword)
	r.Post("/reset-password", a.ResetPassword)
	r.With(a.authenticateToken).Post("/logout-all", a.LogoutAll)
	r.With(a.authenticateToken).Put("/password", a.ChangePassword)

	r.Route("/users", func(r chi.Router) {
		r.Use(a.authenticateToken)
		r.Get("/me", a.Me)
		r.Put("/me", a.UpdateMe)
		r.Put("/password", a.ChangePassword)
		r.With(a.requireAdmin).Get("/", a.ListUsers)
		r.With(a.requireAdmin).Post("/", a.CreateUser)
		r.With(a.requireAdmin).Delete("/{username}", a.DeleteUser)
	})

	r.Route("/admin", func(r chi.Router) {
		r.Use(a.authenticateToken, a.requireAdmin)
		r.Get("/audit", a.ListAudit)
	})

	return r
}
