package auth

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// bcryptCost matches the work factor the service has always used; raising it
// invalidates no existing hashes since bcrypt embeds the cost per hash.
const bcryptCost = 10

// HashPassword hashes a plaintext password for storage. Empty passwords are
// rejected here so no code path can persist a hash of "".
func HashPassword(password string) (string, error) {
	if password == "" {
		return "", fmt.Errorf("password must not be empty")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return "", fmt.Errorf("hashing password: %w", err)
	}
	return string(hash), nil
}

// VerifyPassword reports whether password matches hash. It never returns an
// error: malformed hashes, empty input, and bcrypt's 72-byte limit all yield
// false. Login code depends on this being total.
func VerifyPassword(hash, password string) bool {
	if hash == "" || password == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
