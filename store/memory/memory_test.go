package memory

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mukkaai/authd/store"
)

func newUser(username string) *store.User {
	now := time.Now().UTC()
	return &store.User{
		Username:     username,
		PasswordHash: "$2a$10$fakehash",
		Role:         store.RoleUser,
		Email:        username + "@example.com",
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func TestUserStoreCRUD(t *testing.T) {
	s := New()
	ctx := t.Context()

	require.NoError(t, s.Users().Create(ctx, newUser("Alice")))

	// Usernames are lowercased and lookups are case-insensitive.
	user, err := s.Users().FindByUsername(ctx, "ALICE")
	require.NoError(t, err)
	assert.Equal(t, "alice", user.Username)

	user, err = s.Users().FindByEmail(ctx, "Alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, "alice", user.Username)

	assert.ErrorIs(t, s.Users().Create(ctx, newUser("alice")), store.ErrDuplicateUser)

	user.DisplayName = "Alice A."
	require.NoError(t, s.Users().Update(ctx, user))
	user, err = s.Users().FindByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "Alice A.", user.DisplayName)

	deleted, err := s.Users().Delete(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, deleted)

	deleted, err = s.Users().Delete(ctx, "alice")
	require.NoError(t, err)
	assert.False(t, deleted)

	_, err = s.Users().FindByUsername(ctx, "alice")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestUserStoreUpdateUnknown(t *testing.T) {
	s := New()
	err := s.Users().Update(t.Context(), newUser("ghost"))
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestUserStoreListNewestFirst(t *testing.T) {
	s := New()
	ctx := t.Context()

	old := newUser("old")
	old.CreatedAt = time.Now().UTC().Add(-time.Hour)
	require.NoError(t, s.Users().Create(ctx, old))
	require.NoError(t, s.Users().Create(ctx, newUser("new")))

	users, err := s.Users().List(ctx)
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, "new", users[0].Username)
	assert.Equal(t, "old", users[1].Username)
}

func TestRefreshTokenValidity(t *testing.T) {
	s := New()
	ctx := t.Context()
	now := time.Now().UTC()

	require.NoError(t, s.RefreshTokens().Create(ctx, &store.RefreshToken{
		ID: "live", Username: "alice", CreatedAt: now, ExpiresAt: now.Add(time.Hour),
	}))
	require.NoError(t, s.RefreshTokens().Create(ctx, &store.RefreshToken{
		ID: "expired", Username: "alice", CreatedAt: now.Add(-2 * time.Hour), ExpiresAt: now.Add(-time.Hour),
	}))
	require.NoError(t, s.RefreshTokens().Create(ctx, &store.RefreshToken{
		ID: "revoked", Username: "alice", CreatedAt: now, ExpiresAt: now.Add(time.Hour), IsRevoked: true,
	}))

	token, err := s.RefreshTokens().FindValid(ctx, "live")
	require.NoError(t, err)
	assert.Equal(t, "alice", token.Username)

	// Expired, revoked and missing are indistinguishable.
	for _, id := range []string{"expired", "revoked", "missing"} {
		_, err := s.RefreshTokens().FindValid(ctx, id)
		assert.ErrorIs(t, err, store.ErrNotFound, id)
	}
}

func TestRefreshTokenRevoke(t *testing.T) {
	s := New()
	ctx := t.Context()
	now := time.Now().UTC()

	require.NoError(t, s.RefreshTokens().Create(ctx, &store.RefreshToken{
		ID: "t1", Username: "alice", CreatedAt: now, ExpiresAt: now.Add(time.Hour),
	}))

	ok, err := s.RefreshTokens().Revoke(ctx, "t1")
	require.NoError(t, err)
	assert.True(t, ok)

	// Revoking again still succeeds.
	ok, err = s.RefreshTokens().Revoke(ctx, "t1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.RefreshTokens().Revoke(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRevokeAllForUser(t *testing.T) {
	s := New()
	ctx := t.Context()
	now := time.Now().UTC()

	for _, id := range []string{"a1", "a2"} {
		require.NoError(t, s.RefreshTokens().Create(ctx, &store.RefreshToken{
			ID: id, Username: "alice", CreatedAt: now, ExpiresAt: now.Add(time.Hour),
		}))
	}
	require.NoError(t, s.RefreshTokens().Create(ctx, &store.RefreshToken{
		ID: "b1", Username: "bob", CreatedAt: now, ExpiresAt: now.Add(time.Hour),
	}))

	count, err := s.RefreshTokens().RevokeAllForUser(ctx, "alice")
	require.NoError(t, err)
	assert.EqualValues(t, 2, count)

	_, err = s.RefreshTokens().FindValid(ctx, "a1")
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = s.RefreshTokens().FindValid(ctx, "b1")
	assert.NoError(t, err)

	// Second pass revokes nothing new.
	count, err = s.RefreshTokens().RevokeAllForUser(ctx, "alice")
	require.NoError(t, err)
	assert.EqualValues(t, 0, count)
}

func TestRemoveExpiredRefreshTokens(t *testing.T) {
	s := New()
	ctx := t.Context()
	now := time.Now().UTC()

	require.NoError(t, s.RefreshTokens().Create(ctx, &store.RefreshToken{
		ID: "live", Username: "alice", CreatedAt: now, ExpiresAt: now.Add(time.Hour),
	}))
	require.NoError(t, s.RefreshTokens().Create(ctx, &store.RefreshToken{
		ID: "dead", Username: "alice", CreatedAt: now.Add(-2 * time.Hour), ExpiresAt: now.Add(-time.Hour),
	}))

	count, err := s.RefreshTokens().RemoveExpired(ctx, now)
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)

	// Idempotent.
	count, err = s.RefreshTokens().RemoveExpired(ctx, now)
	require.NoError(t, err)
	assert.EqualValues(t, 0, count)
}

func TestResetTokenConsumeOnce(t *testing.T) {
	s := New()
	ctx := t.Context()
	now := time.Now().UTC()

	require.NoError(t, s.ResetTokens().Create(ctx, &store.PasswordResetToken{
		Token: "tok", Username: "alice", CreatedAt: now, ExpiresAt: now.Add(time.Hour),
	}))

	username, err := s.ResetTokens().Consume(ctx, "tok")
	require.NoError(t, err)
	assert.Equal(t, "alice", username)

	_, err = s.ResetTokens().Consume(ctx, "tok")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestResetTokenExpiry(t *testing.T) {
	s := New()
	ctx := t.Context()
	now := time.Now().UTC()

	require.NoError(t, s.ResetTokens().Create(ctx, &store.PasswordResetToken{
		Token: "stale", Username: "alice", CreatedAt: now.Add(-2 * time.Hour), ExpiresAt: now.Add(-time.Hour),
	}))
	_, err := s.ResetTokens().Consume(ctx, "stale")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestInvalidateAllForUser(t *testing.T) {
	s := New()
	ctx := t.Context()
	now := time.Now().UTC()

	for _, tok := range []string{"r1", "r2"} {
		require.NoError(t, s.ResetTokens().Create(ctx, &store.PasswordResetToken{
			Token: tok, Username: "alice", CreatedAt: now, ExpiresAt: now.Add(time.Hour),
		}))
	}

	count, err := s.ResetTokens().InvalidateAllForUser(ctx, "alice")
	require.NoError(t, err)
	assert.EqualValues(t, 2, count)

	_, err = s.ResetTokens().Consume(ctx, "r1")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestRemoveExpiredKeepsRecentUsedResetTokens(t *testing.T) {
	s := New()
	ctx := t.Context()
	now := time.Now().UTC()

	// Used recently: kept for the retention window.
	require.NoError(t, s.ResetTokens().Create(ctx, &store.PasswordResetToken{
		Token: "recent-used", Username: "alice", CreatedAt: now.Add(-time.Hour),
		ExpiresAt: now.Add(time.Hour), IsUsed: true,
	}))
	// Used long ago: removed.
	require.NoError(t, s.ResetTokens().Create(ctx, &store.PasswordResetToken{
		Token: "old-used", Username: "alice",
		CreatedAt: now.Add(-store.UsedResetTokenRetention - time.Hour),
		ExpiresAt: now.Add(time.Hour), IsUsed: true,
	}))

	count, err := s.ResetTokens().RemoveExpired(ctx, now)
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)
}
