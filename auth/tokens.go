package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/mukkaai/authd/store"
)

// Claims is the access-token claim set. Validity is purely cryptographic
// plus the expiry check; no server-side state is consulted.
type Claims struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

// refreshClaims is the claim set embedded in the server-side refresh JWT.
type refreshClaims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// TokenIssuer creates and verifies the two token kinds. Access tokens are
// signed with the JWT secret; refresh JWTs with a separate secret so a leak
// of one does not compromise the other.
type TokenIssuer struct {
	jwtSecret     []byte
	refreshSecret []byte
	accessExpiry  time.Duration
	refreshExpiry time.Duration
}

// NewTokenIssuer constructs a TokenIssuer with the given secrets and expiry
// windows.
func NewTokenIssuer(jwtSecret, refreshSecret string, accessExpiry, refreshExpiry time.Duration) *TokenIssuer {
	return &TokenIssuer{
		jwtSecret:     []byte(jwtSecret),
		refreshSecret: []byte(refreshSecret),
		accessExpiry:  accessExpiry,
		refreshExpiry: refreshExpiry,
	}
}

// AccessExpiry returns the configured access-token lifetime.
func (i *TokenIssuer) AccessExpiry() time.Duration { return i.accessExpiry }

// RefreshExpiry returns the configured refresh-token lifetime.
func (i *TokenIssuer) RefreshExpiry() time.Duration { return i.refreshExpiry }

// IssueAccessToken signs a short-lived access token for the user.
func (i *TokenIssuer) IssueAccessToken(user *store.User) (string, time.Time, error) {
	now := time.Now()
	expiresAt := now.Add(i.accessExpiry)
	claims := Claims{
		ID:       user.Username,
		Username: user.Username,
		Role:     user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			Subject:   user.Username,
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.jwtSecret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("signing access token: %w", err)
	}
	return token, expiresAt, nil
}

// ParseAccessToken verifies signature and expiry and returns the claims.
func (i *TokenIssuer) ParseAccessToken(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return i.jwtSecret, nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid || strings.TrimSpace(claims.Username) == "" {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}

// newRefreshJWT signs the long-lived JWT stored alongside a refresh-token
// record. Clients never see this value; they hold only the record ID.
func (i *TokenIssuer) newRefreshJWT(username string) (string, time.Time, error) {
	now := time.Now()
	expiresAt := now.Add(i.refreshExpiry)
	claims := refreshClaims{
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.refreshSecret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("signing refresh token: %w", err)
	}
	return token, expiresAt, nil
}

// verifyRefreshJWT checks the stored JWT's signature and expiry and returns
// the bound username.
func (i *TokenIssuer) verifyRefreshJWT(tokenString string) (string, error) {
	claims := &refreshClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return i.refreshSecret, nil
	})
	if err != nil {
		return "", err
	}
	if !token.Valid || claims.Username == "" {
		return "", errors.New("invalid token")
	}
	return claims.Username, nil
}
