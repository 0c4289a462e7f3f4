// Package auth implements the session lifecycle: credential verification,
// token issuance, refresh, revocation and password recovery.
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mukkaai/authd/store"
)

const resetTokenExpiry = 60 * time.Minute

// Session is the result of a successful login or refresh.
type Session struct {
	User             *store.User
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshTokenID   string
	RefreshExpiresAt time.Time
}

// Service coordinates the credential store, token stores and issuer. All
// store I/O failures propagate as-is (they surface as 500s at the HTTP
// boundary); credential and token failures use the sentinel errors in this
// package.
type Service struct {
	users   store.UserStore
	refresh store.RefreshTokenStore
	reset   store.ResetTokenStore
	issuer  *TokenIssuer
	logger  *slog.Logger

	refreshEnabled bool
}

// Option configures the Service.
type Option func(*Service)

// WithRefreshTokens toggles refresh-token issuance. When disabled, Login
// returns sessions without a refresh token and Refresh always fails.
func WithRefreshTokens(enabled bool) Option {
	return func(s *Service) { s.refreshEnabled = enabled }
}

// NewService creates a session coordinator.
func NewService(users store.UserStore, refresh store.RefreshTokenStore, reset store.ResetTokenStore, issuer *TokenIssuer, logger *slog.Logger, opts ...Option) *Service {
	s := &Service{
		users:          users,
		refresh:        refresh,
		reset:          reset,
		issuer:         issuer,
		logger:         logger,
		refreshEnabled: true,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Login verifies credentials and issues one access token and one refresh
// token. Unknown usernames and wrong passwords both return
// ErrInvalidCredentials; the distinct cause is logged, never returned.
func (s *Service) Login(ctx context.Context, username, password string) (*Session, error) {
	user, err := s.users.FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.logger.Warn("login attempt for unknown user", "username", username)
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("looking up user: %w", err)
	}

	if !VerifyPassword(user.PasswordHash, password) {
		s.logger.Warn("password mismatch", "username", user.Username)
		return nil, ErrInvalidCredentials
	}

	accessToken, accessExp, err := s.issuer.IssueAccessToken(user)
	if err != nil {
		return nil, err
	}

	session := &Session{
		User:            user,
		AccessToken:     accessToken,
		AccessExpiresAt: accessExp,
	}

	if s.refreshEnabled {
		refreshJWT, refreshExp, err := s.issuer.newRefreshJWT(user.Username)
		if err != nil {
			return nil, err
		}
		record := &store.RefreshToken{
			ID:        uuid.NewString(),
			Token:     refreshJWT,
			Username:  user.Username,
			CreatedAt: time.Now().UTC(),
			ExpiresAt: refreshExp,
		}
		if err := s.refresh.Create(ctx, record); err != nil {
			return nil, fmt.Errorf("persisting refresh token: %w", err)
		}
		session.RefreshTokenID = record.ID
		session.RefreshExpiresAt = refreshExp
	}

	s.logger.Info("successful login", "username", user.Username)
	return session, nil
}

// Refresh exchanges a valid refresh token for a new access token. The
// refresh token itself is not rotated; the record stays valid until expiry
// or revocation. A stored JWT that fails signature verification is revoked
// immediately.
func (s *Service) Refresh(ctx context.Context, refreshTokenID string) (*Session, error) {
	if !s.refreshEnabled {
		return nil, ErrRefreshDisabled
	}

	record, err := s.refresh.FindValid(ctx, refreshTokenID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, fmt.Errorf("looking up refresh token: %w", err)
	}

	username, err := s.issuer.verifyRefreshJWT(record.Token)
	if err != nil {
		// The record is live but its JWT no longer verifies (secret
		// rotation, clock skew past embedded expiry). Revoke it so it
		// cannot be retried.
		if _, revokeErr := s.refresh.Revoke(ctx, refreshTokenID); revokeErr != nil {
			s.logger.Error("failed to revoke bad refresh token", "error", revokeErr)
		}
		return nil, ErrInvalidToken
	}

	user, err := s.users.FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, fmt.Errorf("looking up user: %w", err)
	}

	accessToken, accessExp, err := s.issuer.IssueAccessToken(user)
	if err != nil {
		return nil, err
	}
	return &Session{
		User:             user,
		AccessToken:      accessToken,
		AccessExpiresAt:  accessExp,
		RefreshTokenID:   refreshTokenID,
		RefreshExpiresAt: record.ExpiresAt,
	}, nil
}

// Logout revokes the presented refresh token. Unknown and already-revoked
// tokens are not errors; logout is idempotent.
func (s *Service) Logout(ctx context.Context, refreshTokenID string) error {
	if refreshTokenID == "" {
		return nil
	}
	if _, err := s.refresh.Revoke(ctx, refreshTokenID); err != nil {
		return fmt.Errorf("revoking refresh token: %w", err)
	}
	return nil
}

// LogoutAll revokes every refresh token for the user and returns how many
// were revoked.
func (s *Service) LogoutAll(ctx context.Context, username string) (int64, error) {
	count, err := s.refresh.RevokeAllForUser(ctx, username)
	if err != nil {
		return 0, fmt.Errorf("revoking refresh tokens: %w", err)
	}
	s.logger.Info("revoked all refresh tokens", "username", username, "count", count)
	return count, nil
}

// ChangePassword verifies the current password, stores the new hash and
// revokes all refresh tokens so other devices must re-authenticate.
func (s *Service) ChangePassword(ctx context.Context, username, currentPassword, newPassword string) error {
	user, err := s.users.FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return store.ErrNotFound
		}
		return fmt.Errorf("looking up user: %w", err)
	}

	if !VerifyPassword(user.PasswordHash, currentPassword) {
		s.logger.Warn("change password with wrong current password", "username", username)
		return ErrInvalidCredentials
	}

	if err := s.setPassword(ctx, user, newPassword); err != nil {
		return err
	}

	if _, err := s.refresh.RevokeAllForUser(ctx, username); err != nil {
		return fmt.Errorf("revoking refresh tokens: %w", err)
	}
	s.logger.Info("password changed", "username", username)
	return nil
}

// ForgotPassword generates a password reset token for the user identified by
// username or email, invalidating any earlier tokens. When no such user
// exists it returns (nil, nil): callers respond identically either way so
// accounts cannot be enumerated.
func (s *Service) ForgotPassword(ctx context.Context, username, email string) (*store.PasswordResetToken, error) {
	var user *store.User
	var err error
	switch {
	case username != "":
		user, err = s.users.FindByUsername(ctx, username)
	case email != "":
		user, err = s.users.FindByEmail(ctx, email)
	default:
		return nil, nil
	}
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.logger.Info("password reset requested for unknown account")
			return nil, nil
		}
		return nil, fmt.Errorf("looking up user: %w", err)
	}

	if _, err := s.reset.InvalidateAllForUser(ctx, user.Username); err != nil {
		return nil, fmt.Errorf("invalidating prior reset tokens: %w", err)
	}

	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return nil, fmt.Errorf("generating reset token: %w", err)
	}
	now := time.Now().UTC()
	token := &store.PasswordResetToken{
		Token:     hex.EncodeToString(raw),
		Username:  user.Username,
		CreatedAt: now,
		ExpiresAt: now.Add(resetTokenExpiry),
	}
	if err := s.reset.Create(ctx, token); err != nil {
		return nil, fmt.Errorf("persisting reset token: %w", err)
	}

	s.logger.Info("generated password reset token", "username", user.Username)
	return token, nil
}

// ResetPassword consumes a reset token exactly once, stores the new
// password hash, and revokes all outstanding refresh tokens for the user.
func (s *Service) ResetPassword(ctx context.Context, token, newPassword string) error {
	username, err := s.reset.Consume(ctx, token)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrInvalidResetToken
		}
		return fmt.Errorf("consuming reset token: %w", err)
	}

	user, err := s.users.FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return store.ErrNotFound
		}
		return fmt.Errorf("looking up user: %w", err)
	}

	if err := s.setPassword(ctx, user, newPassword); err != nil {
		return err
	}

	if _, err := s.refresh.RevokeAllForUser(ctx, username); err != nil {
		return fmt.Errorf("revoking refresh tokens: %w", err)
	}
	s.logger.Info("password reset", "username", username)
	return nil
}

func (s *Service) setPassword(ctx context.Context, user *store.User, password string) error {
	hash, err := HashPassword(password)
	if err != nil {
		return err
	}
	user.PasswordHash = hash
	user.UpdatedAt = time.Now().UTC()
	if err := s.users.Update(ctx, user); err != nil {
		return fmt.Errorf("updating user: %w", err)
	}
	return nil
}

// GetUser returns a user record; store.ErrNotFound if unknown.
func (s *Service) GetUser(ctx context.Context, username string) (*store.User, error) {
	return s.users.FindByUsername(ctx, username)
}

// ProfileUpdate carries the fields a user may change on their own record.
// Nil fields are left untouched; Preferences are merged key by key.
type ProfileUpdate struct {
	DisplayName *string
	Email       *string
	Preferences map[string]any
}

// Empty reports whether no field is set.
func (u ProfileUpdate) Empty() bool {
	return u.DisplayName == nil && u.Email == nil && len(u.Preferences) == 0
}

// UpdateProfile applies a partial profile update and returns the updated
// record.
func (s *Service) UpdateProfile(ctx context.Context, username string, update ProfileUpdate) (*store.User, error) {
	user, err := s.users.FindByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	if update.DisplayName != nil {
		user.DisplayName = *update.DisplayName
	}
	if update.Email != nil {
		user.Email = strings.ToLower(*update.Email)
	}
	if len(update.Preferences) > 0 {
		if user.Preferences == nil {
			user.Preferences = make(map[string]any)
		}
		for k, v := range update.Preferences {
			user.Preferences[k] = v
		}
	}
	user.UpdatedAt = time.Now().UTC()
	if err := s.users.Update(ctx, user); err != nil {
		return nil, fmt.Errorf("updating user: %w", err)
	}
	return user, nil
}

// ListUsers returns all users, newest first.
func (s *Service) ListUsers(ctx context.Context) ([]*store.User, error) {
	return s.users.List(ctx)
}

// CreateUser registers a new account. The password is hashed before the
// record is written; plaintext never reaches a store.
func (s *Service) CreateUser(ctx context.Context, username, password, role, email, displayName string) (*store.User, error) {
	if role == "" {
		role = store.RoleUser
	}
	hash, err := HashPassword(password)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	user := &store.User{
		Username:     strings.ToLower(username),
		PasswordHash: hash,
		Role:         role,
		Email:        strings.ToLower(email),
		DisplayName:  displayName,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}
	s.logger.Info("user created", "username", user.Username, "role", user.Role)
	return user, nil
}

// DeleteUser removes an account, revokes every refresh token it holds and
// invalidates its outstanding reset tokens. Without the latter, a reset
// token issued before deletion could take over a recreated account of the
// same name.
func (s *Service) DeleteUser(ctx context.Context, username string) error {
	deleted, err := s.users.Delete(ctx, username)
	if err != nil {
		return fmt.Errorf("deleting user: %w", err)
	}
	if !deleted {
		return store.ErrNotFound
	}
	if _, err := s.refresh.RevokeAllForUser(ctx, username); err != nil {
		return fmt.Errorf("revoking refresh tokens: %w", err)
	}
	if _, err := s.reset.InvalidateAllForUser(ctx, username); err != nil {
		return fmt.Errorf("invalidating reset tokens: %w", err)
	}
	s.logger.Info("user deleted", "username", username)
	return nil
}

// Sweep removes expired refresh tokens and stale reset tokens. Idempotent
// and safe to run concurrently with request handling.
func (s *Service) Sweep(ctx context.Context) {
	now := time.Now()
	if n, err := s.refresh.RemoveExpired(ctx, now); err != nil {
		s.logger.Error("refresh token sweep failed", "error", err)
	} else if n > 0 {
		s.logger.Info("removed expired refresh tokens", "count", n)
	}
	if n, err := s.reset.RemoveExpired(ctx, now); err != nil {
		s.logger.Error("reset token sweep failed", "error", err)
	} else if n > 0 {
		s.logger.Info("removed expired reset tokens", "count", n)
	}
}

// RunSweeper calls Sweep at the given interval until ctx is canceled.
func (s *Service) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}
