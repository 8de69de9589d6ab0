package httpapi

import (
	"net/http"
	"time"

	"github.com/peakfit/gymcore/internal/audit"
	"github.com/peakfit/gymcore/internal/auth"
)

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token     string `json:"token"`
	Role      string `json:"role"`
	ExpiresAt string `json:"expires_at"`
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

	result, err := a.auth.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		_ = audit.LogEvent(r.Context(), "login_denied", map[string]any{
			"username": req.Username,
		})
		handleAuthError(w, r, err)
		return
	}

	_ = audit.LogEvent(r.Context(), "login_succeeded", map[string]any{
		"username": req.Username,
		"role":     string(result.Role),
	})
	writeJSON(w, http.StatusOK, loginResponse{
		Token:     result.Token,
		Role:      string(result.Role),
		ExpiresAt: result.ExpiresAt.UTC().Format(time.RFC3339),
	})
}

func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if err := a.auth.Logout(r.Context()); err != nil {
		handleAuthError(w, r, err)
		return
	}
	if principal, ok := auth.PrincipalFromContext(r.Context()); ok {
		_ = audit.LogEvent(r.Context(), "logout", map[string]any{
			"username": principal.Username,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "logged_out"})
}

type changePasswordRequest struct {
	Username    string `json:"username"`
	OldPassword string `json:"old_password"`
	NewPassword string `json:"new_password"`
}

func (a *API) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req changePasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	if err := a.auth.ChangePassword(r.Context(), req.Username, req.OldPassword, req.NewPassword); err != nil {
		_ = audit.LogEvent(r.Context(), "password_change_denied", map[string]any{
			"username": req.Username,
		})
		handleAuthError(w, r, err)
		return
	}

	_ = audit.LogEvent(r.Context(), "password_changed", map[string]any{
		"username": req.Username,
	})
	writeJSON(w, http.StatusOK, map[string]any{"status": "password_changed"})
}
