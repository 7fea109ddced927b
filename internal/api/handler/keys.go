package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/nickborrello/baystate-coordinator/internal/api/response"
	"github.com/nickborrello/baystate-coordinator/internal/credentials"
	"github.com/nickborrello/baystate-coordinator/internal/store"
	"github.com/nickborrello/baystate-coordinator/pkg/models"

	"github.com/go-chi/chi/v5"
)

// CredentialManager is the credential surface the admin handlers depend on.
type CredentialManager interface {
	Issue(ctx context.Context, params credentials.IssueParams) (*credentials.Issued, error)
	List(ctx context.Context) ([]*models.Credential, error)
	Revoke(ctx context.Context, id uuid.UUID) error
	RevokeAll(ctx context.Context, runnerName string) (int, error)
}

// NewIssueCredentialHandler returns an http.HandlerFunc for
// POST /api/v1/admin/credentials. The plaintext secret appears in this
// response and nowhere else, ever.
func NewIssueCredentialHandler(mgr CredentialManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			RunnerName  string `json:"runner_name"`
			Description string `json:"description"`
			TTLSeconds  int    `json:"ttl_seconds"`
			Admin       bool   `json:"admin"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}
		if req.RunnerName == "" {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "runner_name is required", nil)
			return
		}
		if req.TTLSeconds < 0 {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "ttl_seconds must be non-negative", nil)
			return
		}

		issued, err := mgr.Issue(r.Context(), credentials.IssueParams{
			RunnerName:  req.RunnerName,
			Description: req.Description,
			TTL:         time.Duration(req.TTLSeconds) * time.Second,
			Admin:       req.Admin,
		})
		if errors.Is(err, credentials.ErrInvalidRunnerName) {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error(), nil)
			return
		}
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"Failed to issue credential", nil)
			return
		}

		response.Created(w, map[string]any{
			"credential": issued.Credential,
			"secret":     issued.Secret,
			"note":       "store this secret now; it cannot be retrieved again",
		})
	}
}

// NewListCredentialsHandler returns an http.HandlerFunc for
// GET /api/v1/admin/credentials. Only the display prefix is exposed.
func NewListCredentialsHandler(mgr CredentialManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		creds, err := mgr.List(r.Context())
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"Failed to list credentials", nil)
			return
		}
		if creds == nil {
			creds = []*models.Credential{}
		}
		response.JSON(w, creds)
	}
}

// NewRevokeCredentialHandler returns an http.HandlerFunc for
// DELETE /api/v1/admin/credentials/{credentialID}.
func NewRevokeCredentialHandler(mgr CredentialManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "credentialID"))
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "credentialID must be a UUID", nil)
			return
		}

		err = mgr.Revoke(r.Context(), id)
		if errors.Is(err, store.ErrNotFound) {
			response.Error(w, http.StatusNotFound, "NOT_FOUND", "Credential not found or already revoked", nil)
			return
		}
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"Failed to revoke credential", nil)
			return
		}

		response.JSON(w, map[string]string{"status": "revoked"})
	}
}

// NewRevokeRunnerCredentialsHandler returns an http.HandlerFunc for
// DELETE /api/v1/admin/runners/{runnerName}/credentials, the soft-disable
// path for retiring a runner.
func NewRevokeRunnerCredentialsHandler(mgr CredentialManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		runnerName := chi.URLParam(r, "runnerName")

		n, err := mgr.RevokeAll(r.Context(), runnerName)
		if errors.Is(err, credentials.ErrInvalidRunnerName) {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error(), nil)
			return
		}
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"Failed to revoke credentials", nil)
			return
		}

		response.JSON(w, map[string]any{"status": "revoked", "count": n})
	}
}
