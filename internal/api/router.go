package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	mw "github.com/nickborrello/baystate-coordinator/internal/api/middleware"
	"github.com/nickborrello/baystate-coordinator/internal/api/response"
)

// Dependencies holds all handler and middleware dependencies for the router.
type Dependencies struct {
	Auth      *mw.Auth
	RateLimit *mw.RateLimit

	HealthHandler http.HandlerFunc

	SubmitJobHandler http.HandlerFunc
	JobStatusHandler http.HandlerFunc
	ListJobsHandler  http.HandlerFunc

	ClaimHandler       http.HandlerFunc
	ChunkResultHandler http.HandlerFunc
	JobResultHandler   http.HandlerFunc
	HeartbeatHandler   http.HandlerFunc
	ListRunnersHandler http.HandlerFunc

	IssueCredentialHandler   http.HandlerFunc
	ListCredentialsHandler   http.HandlerFunc
	RevokeCredentialHandler  http.HandlerFunc
	RevokeRunnerCredsHandler http.HandlerFunc
}

// NewRouter builds the Chi router with middleware stack and all routes.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(mw.Logger)
	r.Use(mw.Recovery)

	// Public health check
	r.Get("/api/v1/health", orNotImplemented(deps.HealthHandler))

	// Authenticated routes
	r.Group(func(r chi.Router) {
		r.Use(deps.Auth.Authenticate)
		r.Use(deps.RateLimit.Limit)

		// Operator surface
		r.Post("/api/v1/jobs", orNotImplemented(deps.SubmitJobHandler))
		r.Get("/api/v1/jobs", orNotImplemented(deps.ListJobsHandler))
		r.Get("/api/v1/jobs/{jobID}", orNotImplemented(deps.JobStatusHandler))
		r.Get("/api/v1/runners", orNotImplemented(deps.ListRunnersHandler))

		// Runner protocol
		r.Post("/api/v1/runner/claim", orNotImplemented(deps.ClaimHandler))
		r.Post("/api/v1/runner/chunks/{chunkID}/result", orNotImplemented(deps.ChunkResultHandler))
		r.Post("/api/v1/runner/jobs/{jobID}/result", orNotImplemented(deps.JobResultHandler))
		r.Post("/api/v1/runner/heartbeat", orNotImplemented(deps.HeartbeatHandler))

		// Admin routes
		r.Group(func(r chi.Router) {
			r.Use(deps.Auth.RequireAdmin)

			r.Post("/api/v1/admin/credentials", orNotImplemented(deps.IssueCredentialHandler))
			r.Get("/api/v1/admin/credentials", orNotImplemented(deps.ListCredentialsHandler))
			r.Delete("/api/v1/admin/credentials/{credentialID}", orNotImplemented(deps.RevokeCredentialHandler))
			r.Delete("/api/v1/admin/runners/{runnerName}/credentials", orNotImplemented(deps.RevokeRunnerCredsHandler))
		})
	})

	return r
}

// orNotImplemented returns the handler if non-nil, or a 501 placeholder.
func orNotImplemented(h http.HandlerFunc) http.HandlerFunc {
	if h != nil {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, http.StatusNotImplemented, "NOT_IMPLEMENTED", "Endpoint not yet implemented", nil)
	}
}
