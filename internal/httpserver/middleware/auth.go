// Package middleware provides HTTP middleware for the notebase API.
package middleware

import (
	"context"
	"crypto/subtle"
	"net/http"
	"slices"
	"strings"

	"github.com/relicta-tech/notebase/internal/config"
)

// contextKey is a custom type for context keys to avoid collisions.
type contextKey string

const (
	// UserContextKey is the context key for the authenticated user.
	UserContextKey contextKey = "user"
)

// AuthenticatedUser represents an authenticated API client.
type AuthenticatedUser struct {
	// Name is the friendly name of the key.
	Name string
	// Roles is the list of roles the key grants.
	Roles []string
}

// HasRole checks if the user has a specific role.
func (u *AuthenticatedUser) HasRole(role string) bool {
	return slices.Contains(u.Roles, role)
}

// CanEdit reports whether the user may run commands.
func (u *AuthenticatedUser) CanEdit() bool {
	return u.HasRole(string(config.ServerRoleEditor))
}

// Auth returns authentication middleware based on the auth config.
func Auth(cfg config.ServerAuthConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch cfg.Mode {
			case config.ServerAuthNone, "":
				user := &AuthenticatedUser{
					Name:  "anonymous",
					Roles: []string{string(config.ServerRoleViewer), string(config.ServerRoleEditor)},
				}
				ctx := context.WithValue(r.Context(), UserContextKey, user)
				next.ServeHTTP(w, r.WithContext(ctx))

			case config.ServerAuthAPIKey:
				user := validateAPIKey(r, cfg.APIKeys)
				if user == nil {
					http.Error(w, "Unauthorized: invalid or missing API key", http.StatusUnauthorized)
					return
				}
				ctx := context.WithValue(r.Context(), UserContextKey, user)
				next.ServeHTTP(w, r.WithContext(ctx))

			default:
				http.Error(w, "Invalid authentication mode", http.StatusInternalServerError)
			}
		})
	}
}

// validateAPIKey validates the API key from the request.
func validateAPIKey(r *http.Request, keys []config.APIKeyConfig) *AuthenticatedUser {
	// Check X-API-Key header first
	apiKey := r.Header.Get("X-API-Key")

	// Fall back to Authorization header (Bearer token)
	if apiKey == "" {
		auth := r.Header.Get("Authorization")
		if strings.HasPrefix(auth, "Bearer ") {
			apiKey = strings.TrimPrefix(auth, "Bearer ")
		}
	}

	// Fall back to query parameter (for WebSocket connections)
	if apiKey == "" {
		apiKey = r.URL.Query().Get("api_key")
	}

	if apiKey == "" {
		return nil
	}

	for _, key := range keys {
		if subtle.ConstantTimeCompare([]byte(key.Key), []byte(apiKey)) == 1 {
			roles := key.Roles
			if len(roles) == 0 {
				roles = []string{string(config.ServerRoleViewer)}
			}
			return &AuthenticatedUser{
				Name:  key.Name,
				Roles: roles,
			}
		}
	}

	return nil
}

// GetUser retrieves the authenticated user from the request context.
func GetUser(r *http.Request) *AuthenticatedUser {
	user, ok := r.Context().Value(UserContextKey).(*AuthenticatedUser)
	if !ok {
		return nil
	}
	return user
}

// RequireRole returns middleware that requires a specific role.
func RequireRole(role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user := GetUser(r)
			if user == nil || !user.HasRole(role) {
				http.Error(w, "Forbidden: insufficient permissions", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
