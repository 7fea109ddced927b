package handler

import (
	"context"
	"net/http"

	"github.com/nickborrello/baystate-coordinator/internal/api/response"
	"github.com/nickborrello/baystate-coordinator/internal/health"
)

// HealthChecker evaluates all health checks.
type HealthChecker interface {
	Check(ctx context.Context) []health.CheckResult
}

// NewHealthHandler returns an http.HandlerFunc for GET /api/v1/health.
// Every check is returned regardless of outcome; the HTTP status reflects
// only whether any check errored.
func NewHealthHandler(checker HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		results := checker.Check(r.Context())

		status := "ok"
		httpStatus := http.StatusOK
		if !health.Healthy(results) {
			status = "degraded"
			httpStatus = http.StatusServiceUnavailable
		}

		if httpStatus != http.StatusOK {
			response.Error(w, httpStatus, "DEGRADED", "One or more checks failing", results)
			return
		}
		response.JSON(w, map[string]any{
			"status": status,
			"checks": results,
		})
	}
}
