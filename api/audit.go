package api

import (
	"log/slog"
	"net/http"
	"time"
)

// AuditEvent identifies the type of security-relevant action being logged.
type AuditEvent string

const (
	AuditLoginSuccess     AuditEvent = "login_success"
	AuditLoginFailure     AuditEvent = "login_failure"
	AuditLoginRateLimited AuditEvent = "login_rate_limited"
	AuditLogout           AuditEvent = "logout"
	AuditLogoutAll        AuditEvent = "logout_all"
	AuditTokenRefreshed   AuditEvent = "token_refreshed"
	AuditRefreshRejected  AuditEvent = "refresh_rejected"
	AuditPasswordChanged  AuditEvent = "password_changed"
	AuditPasswordReset    AuditEvent = "password_reset"
	AuditResetRequested   AuditEvent = "reset_requested"
	AuditUserCreated      AuditEvent = "user_created"
	AuditUserDeleted      AuditEvent = "user_deleted"
)

// auditLogger writes structured audit log entries and, when a trail is
// attached, persists them for later inspection.
type auditLogger struct {
	logger *slog.Logger
	trail  *AuditTrail
}

func newAuditLogger(logger *slog.Logger) *auditLogger {
	return &auditLogger{
		logger: logger.With("component", "audit"),
	}
}

// log writes a structured audit entry. Username may be empty for events
// where no account was identified.
func (al *auditLogger) log(event AuditEvent, r *http.Request, username, detail string) {
	attrs := []slog.Attr{
		slog.String("event", string(event)),
		slog.String("remote_addr", r.RemoteAddr),
		slog.String("timestamp", time.Now().UTC().Format(time.RFC3339)),
	}
	if username != "" {
		attrs = append(attrs, slog.String("username", username))
	}
	if detail != "" {
		attrs = append(attrs, slog.String("detail", detail))
	}
	al.logger.LogAttrs(r.Context(), slog.LevelInfo, "audit", attrs...)

	if al.trail != nil {
		if err := al.trail.Append(event, username, r.RemoteAddr, detail); err != nil {
			al.logger.Error("failed to persist audit entry", "error", err)
		}
	}
}
