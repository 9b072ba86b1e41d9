package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/memogarden/memogarden-core/internal/audit"
	"github.com/memogarden/memogarden-core/internal/auth"
	"github.com/memogarden/memogarden-core/internal/isotime"
	"github.com/memogarden/memogarden-core/internal/store"
)

type registerRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token     string     `json:"token"`
	ExpiresAt time.Time  `json:"expires_at"`
	User      store.User `json:"user"`
}

type createAPIKeyRequest struct {
	Name      string `json:"name"`
	ExpiresAt string `json:"expires_at"`
}

// handleAdminRegister creates the first (admin) account. It only answers
// loopback callers and refuses once any user exists.
func (a *API) handleAdminRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if a.bypassLocalhost || !isLoopbackRequest(r) {
		writeError(w, r, http.StatusForbidden, "registration is only available from localhost")
		return
	}

	count, err := a.auth.CountUsers(r.Context())
	if err != nil {
		handleStoreError(w, r, err)
		return
	}
	if count > 0 {
		writeError(w, r, http.StatusForbidden, "registration is closed")
		return
	}

	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Username) == "" || req.Password == "" {
		writeError(w, r, http.StatusBadRequest, "username and password are required")
		return
	}
	if len(req.Password) < 8 {
		writeError(w, r, http.StatusBadRequest, "password must be at least 8 characters")
		return
	}

	user, err := a.auth.CreateUser(r.Context(), req.Username, req.Password, true)
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			writeError(w, r, http.StatusConflict, err.Error())
			return
		}
		handleStoreError(w, r, err)
		return
	}

	_ = audit.LogEvent(r.Context(), "auth.admin.registered", map[string]any{
		"user_id":  user.ID,
		"username": user.Username,
	})
	writeJSON(w, http.StatusCreated, user)
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Username) == "" || req.Password == "" {
		writeError(w, r, http.StatusBadRequest, "username and password are required")
		return
	}

	user, err := a.auth.VerifyCredentials(r.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredential) {
			_ = audit.LogEvent(r.Context(), "auth.login.failed", map[string]any{
				"username": strings.ToLower(strings.TrimSpace(req.Username)),
			})
			writeError(w, r, http.StatusUnauthorized, "invalid credentials")
			return
		}
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}

	token, expiresAt, err := a.tokens.Issue(user.ID, user.Username, user.IsAdmin)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "token generation failed")
		return
	}

	_ = audit.LogEvent(r.Context(), "auth.login", map[string]any{
		"user_id":    user.ID,
		"username":   user.Username,
		"expires_at": isotime.Format(expiresAt),
	})
	writeJSON(w, http.StatusOK, loginResponse{
		Token:     token,
		ExpiresAt: expiresAt,
		User:      user,
	})
}

// handleLogout acknowledges the logout. Tokens are stateless; the client
// discards its copy.
func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	id, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	_ = audit.LogEvent(r.Context(), "auth.logout", map[string]any{
		"user_id": id.UserID,
	})
	writeJSON(w, http.StatusOK, map[string]any{"status": "logged_out"})
}

func (a *API) handleMe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	id, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	user, err := a.auth.GetUser(r.Context(), id.UserID)
	if err != nil {
		handleStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"user":        user,
		"auth_method": id.Method,
	})
}

func (a *API) handleAPIKeysCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		a.listAPIKeys(w, r)
	case http.MethodPost:
		a.createAPIKey(w, r)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleAPIKeyResource(w http.ResponseWriter, r *http.Request) {
	id := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api-keys/"), "/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	if r.Method != http.MethodDelete {
		methodNotAllowed(w, r, http.MethodDelete)
		return
	}
	ident, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	if err := a.auth.RevokeAPIKey(r.Context(), id, ident.UserID); err != nil {
		handleStoreError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "auth.api_key.revoked", map[string]any{
		"key_id": id,
	})
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) listAPIKeys(w http.ResponseWriter, r *http.Request) {
	ident, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	keys, err := a.auth.ListAPIKeys(r.Context(), ident.UserID)
	if err != nil {
		handleStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": keys})
}

func (a *API) createAPIKey(w http.ResponseWriter, r *http.Request) {
	ident, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	var req createAPIKeyRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		writeError(w, r, http.StatusBadRequest, "name is required")
		return
	}
	var expiresAt *time.Time
	if strings.TrimSpace(req.ExpiresAt) != "" {
		t, err := isotime.Parse(req.ExpiresAt)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "expires_at must be an ISO-8601 timestamp")
			return
		}
		expiresAt = &t
	}

	created, err := a.auth.CreateAPIKey(r.Context(), ident.UserID, name, expiresAt)
	if err != nil {
		handleStoreError(w, r, err)
		return
	}

	_ = audit.LogEvent(r.Context(), "auth.api_key.created", map[string]any{
		"key_id": created.ID,
		"name":   created.Name,
	})
	w.Header().Set("Location", "/api-keys/"+created.ID)
	writeJSON(w, http.StatusCreated, created)
}
