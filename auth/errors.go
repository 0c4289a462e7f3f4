package auth

import "errors"

// ErrInvalidCredentials covers both unknown-username and wrong-password
// failures. Callers must not be able to tell the cases apart; the audit log
// records the distinction.
var ErrInvalidCredentials = errors.New("invalid credentials")

// ErrInvalidToken covers missing, revoked and expired refresh tokens
// uniformly.
var ErrInvalidToken = errors.New("invalid refresh token")

// ErrInvalidResetToken covers unknown, consumed and expired password reset
// tokens uniformly.
var ErrInvalidResetToken = errors.New("invalid or expired token")

// ErrRefreshDisabled is returned when refresh tokens are disabled by
// configuration.
var ErrRefreshDisabled = errors.New("refresh tokens are disabled")
