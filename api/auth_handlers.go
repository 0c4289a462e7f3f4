package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/mukkaai/authd/auth"
)

// Login verifies credentials and establishes a session. The response body
// carries the access token; both tokens are also set as httpOnly cookies.
func (a *API) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Username == "" || req.Password == "" {
		writeError(w, r, http.StatusBadRequest, "Username and password are required")
		return
	}

	clientIP := extractClientIP(r)
	if a.lockoutOn {
		if blocked, retryAfter := a.loginLimiter.check(clientIP); blocked {
			a.audit.log(AuditLoginRateLimited, r, req.Username, "")
			writeRateLimited(w, r, retryAfter, "Too many failed login attempts; try again later")
			return
		}
	}

	session, err := a.svc.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			a.loginLimiter.recordFailure(clientIP)
			a.audit.log(AuditLoginFailure, r, req.Username, "")
			writeError(w, r, http.StatusUnauthorized, "Invalid credentials")
			return
		}
		a.mapError(w, r, err)
		return
	}

	a.loginLimiter.recordSuccess(clientIP)
	a.audit.log(AuditLoginSuccess, r, session.User.Username, "")

	writeSessionCookies(w, r, session)
	writeJSON(w, http.StatusOK, sessionResponse{
		User:      userInfo{Username: session.User.Username, Role: session.User.Role},
		Token:     session.AccessToken,
		ExpiresIn: int(a.issuer.AccessExpiry().Seconds()),
	})
}

// Logout revokes the presented refresh token and clears both cookies. The
// refresh cookie is path-scoped to the refresh endpoint, so browsers do not
// send it here; clients pass the token in the body instead. Cookies are
// cleared even when revocation fails server-side; repeated calls succeed.
func (a *API) Logout(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RefreshToken string `json:"refreshToken"`
	}
	// The body is optional; ignore decode failures.
	_ = json.NewDecoder(r.Body).Decode(&req)
	if cookie, err := r.Cookie(refreshCookieName); err == nil && cookie.Value != "" {
		req.RefreshToken = cookie.Value
	}

	if req.RefreshToken != "" {
		if err := a.svc.Logout(r.Context(), req.RefreshToken); err != nil {
			a.audit.log(AuditLogout, r, "", "revoke failed: "+err.Error())
		} else {
			a.audit.log(AuditLogout, r, "", "")
		}
	}
	clearSessionCookies(w, r)
	writeJSON(w, http.StatusOK, messageResponse{Message: "Logged out successfully"})
}

// LogoutAll revokes every refresh token belonging to the caller.
func (a *API) LogoutAll(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	if _, err := a.svc.LogoutAll(r.Context(), claims.Username); err != nil {
		a.mapError(w, r, err)
		return
	}
	a.audit.log(AuditLogoutAll, r, claims.Username, "")
	clearSessionCookies(w, r)
	writeJSON(w, http.StatusOK, messageResponse{Message: "Logged out from all devices"})
}

// RefreshToken exchanges the refresh cookie for a new access token. Only
// the access cookie is rewritten; the refresh token keeps its original
// lifetime.
func (a *API) RefreshToken(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(refreshCookieName)
	if err != nil || cookie.Value == "" {
		writeError(w, r, http.StatusUnauthorized, "Refresh token required")
		return
	}

	session, err := a.svc.Refresh(r.Context(), cookie.Value)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidToken) || errors.Is(err, auth.ErrRefreshDisabled) {
			a.audit.log(AuditRefreshRejected, r, "", "")
		}
		a.mapError(w, r, err)
		return
	}

	a.audit.log(AuditTokenRefreshed, r, session.User.Username, "")

	http.SetCookie(w, &http.Cookie{
		Name:     accessCookieName,
		Value:    session.AccessToken,
		Path:     "/",
		HttpOnly: true,
		Secure:   requestIsSecure(r),
		SameSite: http.SameSiteStrictMode,
		Expires:  session.AccessExpiresAt,
	})
	writeJSON(w, http.StatusOK, sessionResponse{
		User:      userInfo{Username: session.User.Username, Role: session.User.Role},
		Token:     session.AccessToken,
		ExpiresIn: int(a.issuer.AccessExpiry().Seconds()),
	})
}

// ForgotPassword generates a password reset token. The response is the
// same whether or not the account exists; outside production the raw token
// is included for test setups without a mail path.
func (a *API) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req forgotPasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Username == "" && req.Email == "" {
		writeError(w, r, http.StatusBadRequest, "Username or email is required")
		return
	}

	token, err := a.svc.ForgotPassword(r.Context(), req.Username, req.Email)
	if err != nil {
		a.mapError(w, r, err)
		return
	}

	resp := forgotPasswordResponse{
		Message: "If the account exists, a password reset token has been generated",
	}
	if token != nil {
		a.audit.log(AuditResetRequested, r, token.Username, "")
		if !a.production {
			resp.ResetToken = token.Token
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// ResetPassword consumes a reset token and sets a new password.
func (a *API) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Token == "" || req.NewPassword == "" {
		writeError(w, r, http.StatusBadRequest, "Token and new password are required")
		return
	}

	if err := a.svc.ResetPassword(r.Context(), req.Token, req.NewPassword); err != nil {
		a.mapError(w, r, err)
		return
	}
	a.audit.log(AuditPasswordReset, r, "", "")
	writeJSON(w, http.StatusOK, messageResponse{Message: "Password has been reset"})
}

// ChangePassword updates the caller's password after verifying the current
// one. All refresh tokens are revoked; other devices must log in again.
func (a *API) ChangePassword(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())

	var req changePasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.CurrentPassword == "" || req.NewPassword == "" {
		writeError(w, r, http.StatusBadRequest, "Current and new password are required")
		return
	}

	if err := a.svc.ChangePassword(r.Context(), claims.Username, req.CurrentPassword, req.NewPassword); err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			writeError(w, r, http.StatusUnauthorized, "Current password is incorrect")
			return
		}
		a.mapError(w, r, err)
		return
	}
	a.audit.log(AuditPasswordChanged, r, claims.Username, "")
	writeJSON(w, http.StatusOK, messageResponse{Message: "Password changed successfully"})
}
