package api

import (
	"time"

	"github.com/mukkaai/authd/store"
)

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// userInfo is the public projection of a user record. The password hash
// never appears in a response body.
type userInfo struct {
	Username    string         `json:"username"`
	Role        string         `json:"role"`
	Email       string         `json:"email,omitempty"`
	DisplayName string         `json:"displayName,omitempty"`
	Preferences map[string]any `json:"preferences,omitempty"`
	CreatedAt   time.Time      `json:"createdAt,omitempty"`
	UpdatedAt   time.Time      `json:"updatedAt,omitempty"`
}

func toUserInfo(u *store.User) userInfo {
	return userInfo{
		Username:    u.Username,
		Role:        u.Role,
		Email:       u.Email,
		DisplayName: u.DisplayName,
		Preferences: u.Preferences,
		CreatedAt:   u.CreatedAt,
		UpdatedAt:   u.UpdatedAt,
	}
}

// sessionResponse is the body for login and refresh. ExpiresIn is the
// access-token lifetime in seconds.
type sessionResponse struct {
	User      userInfo `json:"user"`
	Token     string   `json:"token"`
	ExpiresIn int      `json:"expiresIn"`
}

type messageResponse struct {
	Message string `json:"message"`
}

type forgotPasswordRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
}

// forgotPasswordResponse echoes the raw reset token only outside
// production, for test setups without a mail path.
type forgotPasswordResponse struct {
	Message    string `json:"message"`
	ResetToken string `json:"resetToken,omitempty"`
}

type resetPasswordRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"newPassword"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

type updateProfileRequest struct {
	DisplayName *string        `json:"displayName"`
	Email       *string        `json:"email"`
	Preferences map[string]any `json:"preferences"`
}

type createUserRequest struct {
	Username    string `json:"username"`
	Password    string `json:"password"`
	Role        string `json:"role"`
	Email       string `json:"email"`
	DisplayName string `json:"displayName"`
}
