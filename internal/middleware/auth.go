package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/billchurch/webssh2-sub007/internal/auth"
)

type contextKey string

const usernameContextKey contextKey = "username"

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// BearerToken extracts the API token from the Authorization header, falling
// back to the token query parameter for WebSocket clients, which cannot set
// request headers from the browser.
func BearerToken(r *http.Request) string {
	parts := strings.SplitN(r.Header.Get("Authorization"), " ", 2)
	if len(parts) == 2 && strings.ToLower(parts[0]) == "bearer" {
		return strings.TrimSpace(parts[1])
	}
	return r.URL.Query().Get("token")
}

// RequireToken guards a route group with bearer-token authentication against
// the given token store. The authenticated username is attached to the
// request context.
func RequireToken(tokens *auth.TokenStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := BearerToken(r)
			if token == "" {
				writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Authentication required"})
				return
			}

			username, ok := tokens.Get(token)
			if !ok {
				writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Invalid or expired token"})
				return
			}

			ctx := context.WithValue(r.Context(), usernameContextKey, username)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// Username returns the authenticated username from the request context, or
// an empty string outside an authenticated route.
func Username(r *http.Request) string {
	u, _ := r.Context().Value(usernameContextKey).(string)
	return u
}

// WithUsernameForTest attaches a username to the request context for testing.
func WithUsernameForTest(r *http.Request, username string) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), usernameContextKey, username))
}
