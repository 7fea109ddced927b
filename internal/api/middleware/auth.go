package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/nickborrello/baystate-coordinator/internal/api/response"
	"github.com/nickborrello/baystate-coordinator/internal/credentials"
	"github.com/nickborrello/baystate-coordinator/pkg/models"
)

// Authenticator resolves a presented secret to a credential.
type Authenticator interface {
	Authenticate(ctx context.Context, presented string) (*models.Credential, error)
}

// Auth provides authentication and admin-gating middleware.
type Auth struct {
	manager Authenticator
}

// NewAuth creates a new Auth middleware.
func NewAuth(m Authenticator) *Auth {
	return &Auth{manager: m}
}

// Authenticate validates the presented secret and sets the runner identity,
// key prefix, and admin flag in the request context. Runners send the secret
// in X-API-Key; a legacy Authorization: Bearer path is still accepted.
func (a *Auth) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rawKey := extractSecret(r)
		if rawKey == "" {
			response.Error(w, http.StatusUnauthorized,
				"INVALID_CREDENTIAL", "Missing X-API-Key header", nil)
			return
		}

		cred, err := a.manager.Authenticate(r.Context(), rawKey)
		if errors.Is(err, credentials.ErrInvalidCredential) {
			response.Error(w, http.StatusUnauthorized,
				"INVALID_CREDENTIAL", "Invalid, revoked, or expired credential", nil)
			return
		}
		if err != nil {
			response.Error(w, http.StatusInternalServerError,
				"INTERNAL_ERROR", "Failed to validate credential", nil)
			return
		}

		ctx := r.Context()
		ctx = SetRunnerName(ctx, cred.RunnerName)
		ctx = setKeyPrefix(ctx, cred.Prefix)
		ctx = setAdmin(ctx, cred.Admin)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireAdmin gates credential-management routes behind an admin credential.
func (a *Auth) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !isAdmin(r) {
			response.Error(w, http.StatusForbidden,
				"FORBIDDEN", "Admin credential required", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func extractSecret(r *http.Request) string {
	if key := strings.TrimSpace(r.Header.Get("X-API-Key")); key != "" {
		return key
	}
	auth := r.Header.Get("Authorization")
	if auth == "" {
		return ""
	}
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
