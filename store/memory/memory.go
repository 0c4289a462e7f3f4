// Package memory provides in-memory store implementations. State is lost
// on restart; it backs unit and end-to-end tests.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/mukkaai/authd/store"
)

type state struct {
	mu          sync.RWMutex
	users       map[string]*store.User
	refresh     map[string]*store.RefreshToken
	resetTokens map[string]*store.PasswordResetToken
}

// Store bundles in-memory implementations of the three store interfaces
// sharing one lock and dataset.
type Store struct {
	users   *UserStore
	refresh *RefreshTokenStore
	reset   *ResetTokenStore
}

// New creates an empty in-memory store.
func New() *Store {
	st := &state{
		users:       make(map[string]*store.User),
		refresh:     make(map[string]*store.RefreshToken),
		resetTokens: make(map[string]*store.PasswordResetToken),
	}
	return &Store{
		users:   &UserStore{st},
		refresh: &RefreshTokenStore{st},
		reset:   &ResetTokenStore{st},
	}
}

func (s *Store) Users() *UserStore                 { return s.users }
func (s *Store) RefreshTokens() *RefreshTokenStore { return s.refresh }
func (s *Store) ResetTokens() *ResetTokenStore     { return s.reset }

// UserStore implements store.UserStore.
type UserStore struct{ st *state }

var _ store.UserStore = (*UserStore)(nil)

func (s *UserStore) FindByUsername(_ context.Context, username string) (*store.User, error) {
	s.st.mu.RLock()
	defer s.st.mu.RUnlock()
	user, ok := s.st.users[strings.ToLower(username)]
	if !ok {
		return nil, store.ErrNotFound
	}
	u := *user
	return &u, nil
}

func (s *UserStore) FindByEmail(_ context.Context, email string) (*store.User, error) {
	s.st.mu.RLock()
	defer s.st.mu.RUnlock()
	email = strings.ToLower(email)
	for _, user := range s.st.users {
		if user.Email != "" && strings.ToLower(user.Email) == email {
			u := *user
			return &u, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *UserStore) Create(_ context.Context, user *store.User) error {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	key := strings.ToLower(user.Username)
	if _, exists := s.st.users[key]; exists {
		return store.ErrDuplicateUser
	}
	u := *user
	u.Username = key
	s.st.users[key] = &u
	return nil
}

func (s *UserStore) Update(_ context.Context, user *store.User) error {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	key := strings.ToLower(user.Username)
	if _, exists := s.st.users[key]; !exists {
		return store.ErrNotFound
	}
	u := *user
	u.Username = key
	s.st.users[key] = &u
	return nil
}

func (s *UserStore) Delete(_ context.Context, username string) (bool, error) {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	key := strings.ToLower(username)
	if _, exists := s.st.users[key]; !exists {
		return false, nil
	}
	delete(s.st.users, key)
	return true, nil
}

func (s *UserStore) List(_ context.Context) ([]*store.User, error) {
	s.st.mu.RLock()
	defer s.st.mu.RUnlock()
	users := make([]*store.User, 0, len(s.st.users))
	for _, user := range s.st.users {
		u := *user
		users = append(users, &u)
	}
	sort.Slice(users, func(i, j int) bool {
		return users[i].CreatedAt.After(users[j].CreatedAt)
	})
	return users, nil
}

// RefreshTokenStore implements store.RefreshTokenStore.
type RefreshTokenStore struct{ st *state }

var _ store.RefreshTokenStore = (*RefreshTokenStore)(nil)

func (s *RefreshTokenStore) Create(_ context.Context, token *store.RefreshToken) error {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	t := *token
	s.st.refresh[token.ID] = &t
	return nil
}

func (s *RefreshTokenStore) FindValid(_ context.Context, id string) (*store.RefreshToken, error) {
	s.st.mu.RLock()
	defer s.st.mu.RUnlock()
	token, ok := s.st.refresh[id]
	if !ok || !token.Usable(time.Now()) {
		return nil, store.ErrNotFound
	}
	t := *token
	return &t, nil
}

func (s *RefreshTokenStore) Revoke(_ context.Context, id string) (bool, error) {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	token, ok := s.st.refresh[id]
	if !ok {
		return false, nil
	}
	token.IsRevoked = true
	return true, nil
}

func (s *RefreshTokenStore) RevokeAllForUser(_ context.Context, username string) (int64, error) {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	username = strings.ToLower(username)
	var count int64
	for _, token := range s.st.refresh {
		if token.Username == username && !token.IsRevoked {
			token.IsRevoked = true
			count++
		}
	}
	return count, nil
}

func (s *RefreshTokenStore) RemoveExpired(_ context.Context, now time.Time) (int64, error) {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	var count int64
	for id, token := range s.st.refresh {
		if now.After(token.ExpiresAt) {
			delete(s.st.refresh, id)
			count++
		}
	}
	return count, nil
}

// ResetTokenStore implements store.ResetTokenStore.
type ResetTokenStore struct{ st *state }

var _ store.ResetTokenStore = (*ResetTokenStore)(nil)

func (s *ResetTokenStore) Create(_ context.Context, token *store.PasswordResetToken) error {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	t := *token
	s.st.resetTokens[token.Token] = &t
	return nil
}

func (s *ResetTokenStore) Consume(_ context.Context, tokenStr string) (string, error) {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	token, ok := s.st.resetTokens[tokenStr]
	if !ok || !token.Usable(time.Now()) {
		return "", store.ErrNotFound
	}
	token.IsUsed = true
	return token.Username, nil
}

func (s *ResetTokenStore) InvalidateAllForUser(_ context.Context, username string) (int64, error) {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	username = strings.ToLower(username)
	var count int64
	for _, token := range s.st.resetTokens {
		if token.Username == username && !token.IsUsed {
			token.IsUsed = true
			count++
		}
	}
	return count, nil
}

func (s *ResetTokenStore) RemoveExpired(_ context.Context, now time.Time) (int64, error) {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	var count int64
	for key, token := range s.st.resetTokens {
		if now.After(token.ExpiresAt) || (token.IsUsed && now.Sub(token.CreatedAt) > store.UsedResetTokenRetention) {
			delete(s.st.resetTokens, key)
			count++
		}
	}
	return count, nil
}
