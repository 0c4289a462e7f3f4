package store

import "time"

// User is an account record. PasswordHash is only ever written through
// auth.HashPassword; it never holds plaintext.
type User struct {
	Username     string         `bson:"username" json:"username"`
	PasswordHash string         `bson:"passwordHash" json:"passwordHash"`
	Role         string         `bson:"role" json:"role"`
	Email        string         `bson:"email,omitempty" json:"email,omitempty"`
	DisplayName  string         `bson:"displayName,omitempty" json:"displayName,omitempty"`
	Preferences  map[string]any `bson:"preferences,omitempty" json:"preferences,omitempty"`
	CreatedAt    time.Time      `bson:"createdAt" json:"createdAt"`
	UpdatedAt    time.Time      `bson:"updatedAt" json:"updatedAt"`
}

// Roles recognized by the service.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// UsedResetTokenRetention is how long consumed password reset tokens are
// kept before the expiry sweep removes them.
const UsedResetTokenRetention = 7 * 24 * time.Hour

// RefreshToken is a server-tracked long-lived credential. ID is the opaque
// identifier handed to clients (cookie value); Token is the signed JWT kept
// server-side. ID, Token and Username never change after creation.
type RefreshToken struct {
	ID        string    `bson:"_id" json:"id"`
	Token     string    `bson:"token" json:"token"`
	Username  string    `bson:"username" json:"username"`
	CreatedAt time.Time `bson:"createdAt" json:"createdAt"`
	ExpiresAt time.Time `bson:"expiresAt" json:"expiresAt"`
	IsRevoked bool      `bson:"isRevoked" json:"isRevoked"`
}

// Usable reports whether the token may still be exchanged for an access
// token: not revoked and not past expiry.
func (t *RefreshToken) Usable(now time.Time) bool {
	return !t.IsRevoked && now.Before(t.ExpiresAt)
}

// PasswordResetToken is a single-use recovery credential. At most one
// unused, unexpired token exists per user; generating a new one invalidates
// all prior tokens for that user.
type PasswordResetToken struct {
	Token     string    `bson:"token" json:"token"`
	Username  string    `bson:"username" json:"username"`
	CreatedAt time.Time `bson:"createdAt" json:"createdAt"`
	ExpiresAt time.Time `bson:"expiresAt" json:"expiresAt"`
	IsUsed    bool      `bson:"isUsed" json:"isUsed"`
}

// Usable reports whether the reset token may still be consumed.
func (t *PasswordResetToken) Usable(now time.Time) bool {
	return !t.IsUsed && now.Before(t.ExpiresAt)
}
