// Package store defines the persistence interfaces for users and tokens.
// Implementations live in the mongo, file and memory subpackages; callers
// depend only on these interfaces and never branch on the active backend.
package store

import (
	"context"
	"time"
)

// UserStore persists account records. Usernames are stored lowercased and
// are unique.
type UserStore interface {
	// FindByUsername returns the user or ErrNotFound.
	FindByUsername(ctx context.Context, username string) (*User, error)
	// FindByEmail returns the user or ErrNotFound.
	FindByEmail(ctx context.Context, email string) (*User, error)
	// Create inserts a new user; ErrDuplicateUser if the username is taken.
	Create(ctx context.Context, user *User) error
	// Update rewrites the user record identified by user.Username;
	// ErrNotFound if it does not exist.
	Update(ctx context.Context, user *User) error
	// Delete removes a user. Returns false if no such user existed.
	Delete(ctx context.Context, username string) (bool, error)
	// List returns all users ordered by creation time, newest first.
	List(ctx context.Context) ([]*User, error)
}

// RefreshTokenStore persists refresh tokens with expiry and revocation.
type RefreshTokenStore interface {
	// Create persists a new token record.
	Create(ctx context.Context, token *RefreshToken) error
	// FindValid returns the token identified by id only when it is neither
	// revoked nor expired. Missing, revoked and expired tokens all yield
	// ErrNotFound; callers cannot distinguish the cases.
	FindValid(ctx context.Context, id string) (*RefreshToken, error)
	// Revoke marks the token revoked. Returns false if no such token exists.
	// Revoking an already-revoked token succeeds and returns true.
	Revoke(ctx context.Context, id string) (bool, error)
	// RevokeAllForUser revokes every token for the user, returning the
	// number of tokens newly revoked.
	RevokeAllForUser(ctx context.Context, username string) (int64, error)
	// RemoveExpired deletes tokens past their expiry. Safe to call
	// concurrently and repeatedly.
	RemoveExpired(ctx context.Context, now time.Time) (int64, error)
}

// ResetTokenStore persists password reset tokens.
type ResetTokenStore interface {
	// Create persists a new reset token record.
	Create(ctx context.Context, token *PasswordResetToken) error
	// Consume atomically looks up a valid (unused, unexpired) token, marks
	// it used, and returns the associated username. Invalid tokens yield
	// ErrNotFound regardless of why they are invalid.
	Consume(ctx context.Context, token string) (string, error)
	// InvalidateAllForUser marks every unused token for the user as used,
	// returning the number invalidated.
	InvalidateAllForUser(ctx context.Context, username string) (int64, error)
	// RemoveExpired deletes expired tokens and stale used ones.
	RemoveExpired(ctx context.Context, now time.Time) (int64, error)
}
