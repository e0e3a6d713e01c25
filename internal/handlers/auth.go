package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/billchurch/webssh2-sub007/internal/audit"
	"github.com/billchurch/webssh2-sub007/internal/auth"
	"github.com/billchurch/webssh2-sub007/internal/config"
	"github.com/billchurch/webssh2-sub007/internal/middleware"
)

// TokenStore is set from main.go during init.
var TokenStore *auth.TokenStore

func Login(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if body.Username == "" || body.Password == "" {
		writeError(w, http.StatusBadRequest, "Username and password are required")
		return
	}

	if config.Cfg.AdminPasswordHash == "" {
		writeError(w, http.StatusServiceUnavailable, "Admin login is not configured")
		return
	}

	if body.Username != config.Cfg.AdminUser || !auth.CheckPassword(body.Password, config.Cfg.AdminPasswordHash) {
		audit.LogAuthFailure(body.Username, clientIP(r), "bad admin credentials")
		writeError(w, http.StatusUnauthorized, "Invalid username or password")
		return
	}

	token, err := TokenStore.Create(body.Username)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to create token")
		return
	}

	audit.LogAuthSuccess(body.Username, clientIP(r))
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"token":    token,
		"username": body.Username,
	})
}

func Logout(w http.ResponseWriter, r *http.Request) {
	if token := middleware.BearerToken(r); token != "" {
		TokenStore.Delete(token)
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
