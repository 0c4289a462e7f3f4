// Package file provides a JSON flat-file store implementation.
//
// The entire dataset (users, refresh tokens, reset tokens) lives in one JSON
// file that is read fully into memory at open and rewritten wholesale on
// every mutation. Writes are serialized by a process-wide mutex, which makes
// the store safe for one process only: two processes sharing the same file
// can lose each other's updates. Deployments using this backend must run a
// single instance. This is an operational constraint, not a bug.
package file

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/mukkaai/authd/store"
)

type fileData struct {
	Users               []*store.User                        `json:"users"`
	RefreshTokens       map[string]*store.RefreshToken       `json:"refreshTokens"`
	PasswordResetTokens map[string]*store.PasswordResetToken `json:"passwordResetTokens"`
}

// Store bundles file-backed implementations of the three store interfaces.
// All of them mutate the same in-memory dataset and rewrite the same file.
type Store struct {
	users   *UserStore
	refresh *RefreshTokenStore
	reset   *ResetTokenStore
}

type state struct {
	mu   sync.Mutex
	path string
	data fileData
}

// Default credentials seeded into a fresh users file so a new deployment is
// reachable. Operators are expected to change the password immediately.
const (
	seedAdminUsername = "admin"
	seedAdminPassword = "admin123"
	seedAdminEmail    = "admin@example.com"
)

// Open loads the users file at path, creating it (with a default admin user)
// if it does not exist.
func Open(path string) (*Store, error) {
	st := &state{path: path}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	raw, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := json.Unmarshal(raw, &st.data); err != nil {
			return nil, fmt.Errorf("parsing users file %s: %w", path, err)
		}
	case os.IsNotExist(err):
		if err := st.seed(); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("reading users file %s: %w", path, err)
	}

	if st.data.RefreshTokens == nil {
		st.data.RefreshTokens = make(map[string]*store.RefreshToken)
	}
	if st.data.PasswordResetTokens == nil {
		st.data.PasswordResetTokens = make(map[string]*store.PasswordResetToken)
	}

	return &Store{
		users:   &UserStore{st},
		refresh: &RefreshTokenStore{st},
		reset:   &ResetTokenStore{st},
	}, nil
}

func (s *Store) Users() *UserStore                 { return s.users }
func (s *Store) RefreshTokens() *RefreshTokenStore { return s.refresh }
func (s *Store) ResetTokens() *ResetTokenStore     { return s.reset }

// Path returns the backing file path.
func (s *Store) Path() string { return s.users.st.path }

// Export returns a snapshot of all users and refresh tokens. Used by the
// file-to-database migration command.
func (s *Store) Export() ([]*store.User, []*store.RefreshToken) {
	st := s.users.st
	st.mu.Lock()
	defer st.mu.Unlock()
	users := make([]*store.User, 0, len(st.data.Users))
	for _, user := range st.data.Users {
		u := *user
		users = append(users, &u)
	}
	tokens := make([]*store.RefreshToken, 0, len(st.data.RefreshTokens))
	for _, token := range st.data.RefreshTokens {
		t := *token
		tokens = append(tokens, &t)
	}
	return users, tokens
}

func (st *state) seed() error {
	hash, err := bcrypt.GenerateFromPassword([]byte(seedAdminPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hashing seed admin password: %w", err)
	}
	now := time.Now().UTC()
	st.data = fileData{
		Users: []*store.User{{
			Username:     seedAdminUsername,
			PasswordHash: string(hash),
			Role:         store.RoleAdmin,
			Email:        seedAdminEmail,
			CreatedAt:    now,
			UpdatedAt:    now,
		}},
		RefreshTokens:       make(map[string]*store.RefreshToken),
		PasswordResetTokens: make(map[string]*store.PasswordResetToken),
	}
	return st.save()
}

// save rewrites the whole file. Callers must hold st.mu (or be in Open,
// before the store is shared).
func (st *state) save() error {
	raw, err := json.MarshalIndent(&st.data, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding users file: %w", err)
	}
	if err := os.WriteFile(st.path, raw, 0o600); err != nil {
		return fmt.Errorf("writing users file %s: %w", st.path, err)
	}
	return nil
}

func (st *state) findUser(username string) (int, *store.User) {
	username = strings.ToLower(username)
	for i, user := range st.data.Users {
		if user.Username == username {
			return i, user
		}
	}
	return -1, nil
}

// UserStore implements store.UserStore.
type UserStore struct{ st *state }

var _ store.UserStore = (*UserStore)(nil)

func (s *UserStore) FindByUsername(_ context.Context, username string) (*store.User, error) {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	_, user := s.st.findUser(username)
	if user == nil {
		return nil, store.ErrNotFound
	}
	u := *user
	return &u, nil
}

func (s *UserStore) FindByEmail(_ context.Context, email string) (*store.User, error) {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	email = strings.ToLower(email)
	for _, user := range s.st.data.Users {
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
	if _, existing := s.st.findUser(user.Username); existing != nil {
		return store.ErrDuplicateUser
	}
	u := *user
	u.Username = strings.ToLower(user.Username)
	s.st.data.Users = append(s.st.data.Users, &u)
	return s.st.save()
}

func (s *UserStore) Update(_ context.Context, user *store.User) error {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	i, existing := s.st.findUser(user.Username)
	if existing == nil {
		return store.ErrNotFound
	}
	u := *user
	u.Username = existing.Username
	s.st.data.Users[i] = &u
	return s.st.save()
}

func (s *UserStore) Delete(_ context.Context, username string) (bool, error) {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	i, existing := s.st.findUser(username)
	if existing == nil {
		return false, nil
	}
	s.st.data.Users = append(s.st.data.Users[:i], s.st.data.Users[i+1:]...)
	return true, s.st.save()
}

func (s *UserStore) List(_ context.Context) ([]*store.User, error) {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	users := make([]*store.User, 0, len(s.st.data.Users))
	for _, user := range s.st.data.Users {
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
	s.st.data.RefreshTokens[token.ID] = &t
	return s.st.save()
}

func (s *RefreshTokenStore) FindValid(_ context.Context, id string) (*store.RefreshToken, error) {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	token, ok := s.st.data.RefreshTokens[id]
	if !ok || !token.Usable(time.Now()) {
		return nil, store.ErrNotFound
	}
	t := *token
	return &t, nil
}

func (s *RefreshTokenStore) Revoke(_ context.Context, id string) (bool, error) {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	token, ok := s.st.data.RefreshTokens[id]
	if !ok {
		return false, nil
	}
	if token.IsRevoked {
		return true, nil
	}
	token.IsRevoked = true
	return true, s.st.save()
}

func (s *RefreshTokenStore) RevokeAllForUser(_ context.Context, username string) (int64, error) {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	username = strings.ToLower(username)
	var count int64
	for _, token := range s.st.data.RefreshTokens {
		if token.Username == username && !token.IsRevoked {
			token.IsRevoked = true
			count++
		}
	}
	if count == 0 {
		return 0, nil
	}
	return count, s.st.save()
}

func (s *RefreshTokenStore) RemoveExpired(_ context.Context, now time.Time) (int64, error) {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	var count int64
	for id, token := range s.st.data.RefreshTokens {
		if now.After(token.ExpiresAt) {
			delete(s.st.data.RefreshTokens, id)
			count++
		}
	}
	if count == 0 {
		return 0, nil
	}
	return count, s.st.save()
}

// ResetTokenStore implements store.ResetTokenStore.
type ResetTokenStore struct{ st *state }

var _ store.ResetTokenStore = (*ResetTokenStore)(nil)

func (s *ResetTokenStore) Create(_ context.Context, token *store.PasswordResetToken) error {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	t := *token
	s.st.data.PasswordResetTokens[token.Token] = &t
	return s.st.save()
}

func (s *ResetTokenStore) Consume(_ context.Context, tokenStr string) (string, error) {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	token, ok := s.st.data.PasswordResetTokens[tokenStr]
	if !ok || !token.Usable(time.Now()) {
		return "", store.ErrNotFound
	}
	token.IsUsed = true
	return token.Username, s.st.save()
}

func (s *ResetTokenStore) InvalidateAllForUser(_ context.Context, username string) (int64, error) {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	username = strings.ToLower(username)
	var count int64
	for _, token := range s.st.data.PasswordResetTokens {
		if token.Username == username && !token.IsUsed {
			token.IsUsed = true
			count++
		}
	}
	if count == 0 {
		return 0, nil
	}
	return count, s.st.save()
}

func (s *ResetTokenStore) RemoveExpired(_ context.Context, now time.Time) (int64, error) {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	var count int64
	for key, token := range s.st.data.PasswordResetTokens {
		if now.After(token.ExpiresAt) || (token.IsUsed && now.Sub(token.CreatedAt) > store.UsedResetTokenRetention) {
			delete(s.st.data.PasswordResetTokens, key)
			count++
		}
	}
	if count == 0 {
		return 0, nil
	}
	return count, s.st.save()
}
