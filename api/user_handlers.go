package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mukkaai/authd/auth"
	"github.com/mukkaai/authd/store"
)

// Me returns the caller's own user record.
func (a *API) Me(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	user, err := a.svc.GetUser(r.Context(), claims.Username)
	if err != nil {
		a.mapError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserInfo(user))
}

// UpdateMe applies a partial update to the caller's profile. Preferences
// merge key by key; omitted fields are untouched.
func (a *API) UpdateMe(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())

	var req updateProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, "Invalid request body")
		return
	}
	update := auth.ProfileUpdate{
		DisplayName: req.DisplayName,
		Email:       req.Email,
		Preferences: req.Preferences,
	}
	if update.Empty() {
		writeError(w, r, http.StatusBadRequest, "No fields to update")
		return
	}

	user, err := a.svc.UpdateProfile(r.Context(), claims.Username, update)
	if err != nil {
		a.mapError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserInfo(user))
}

// ListUsers returns all user records. Admin only.
func (a *API) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := a.svc.ListUsers(r.Context())
	if err != nil {
		a.mapError(w, r, err)
		return
	}
	infos := make([]userInfo, 0, len(users))
	for _, u := range users {
		infos = append(infos, toUserInfo(u))
	}
	writeJSON(w, http.StatusOK, map[string]any{"users": infos, "count": len(infos)})
}

// CreateUser registers a new account. Admin only; 409 on a duplicate
// username.
func (a *API) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Username == "" || req.Password == "" {
		writeError(w, r, http.StatusBadRequest, "Username and password are required")
		return
	}
	if req.Role != "" && req.Role != store.RoleUser && req.Role != store.RoleAdmin {
		writeError(w, r, http.StatusBadRequest, "Role must be user or admin")
		return
	}

	user, err := a.svc.CreateUser(r.Context(), req.Username, req.Password, req.Role, req.Email, req.DisplayName)
	if err != nil {
		a.mapError(w, r, err)
		return
	}
	a.audit.log(AuditUserCreated, r, user.Username, "created by "+claimsFromContext(r.Context()).Username)
	writeJSON(w, http.StatusCreated, toUserInfo(user))
}

// DeleteUser removes an account and revokes all its refresh tokens. Admin
// only; admins cannot delete themselves.
func (a *API) DeleteUser(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	username := chi.URLParam(r, "username")
	if username == claims.Username {
		writeError(w, r, http.StatusBadRequest, "Cannot delete your own account")
		return
	}

	if err := a.svc.DeleteUser(r.Context(), username); err != nil {
		a.mapError(w, r, err)
		return
	}
	a.audit.log(AuditUserDeleted, r, username, "deleted by "+claims.Username)
	writeJSON(w, http.StatusOK, messageResponse{Message: "User deleted"})
}
