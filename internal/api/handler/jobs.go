package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/nickborrello/baystate-coordinator/internal/api/response"
	"github.com/nickborrello/baystate-coordinator/internal/dispatch"
	"github.com/nickborrello/baystate-coordinator/internal/scheduler"
	"github.com/nickborrello/baystate-coordinator/internal/store"
	"github.com/nickborrello/baystate-coordinator/pkg/models"

	"github.com/go-chi/chi/v5"
)

const maxSubmitSKUs = 10000

// Submitter defines the submission interface the handler depends on.
type Submitter interface {
	Submit(ctx context.Context, req scheduler.SubmitRequest) (*models.Job, dispatch.Outcome, error)
}

// StatusProvider serves aggregated job status views.
type StatusProvider interface {
	Status(ctx context.Context, jobID uuid.UUID) (*scheduler.JobStatusView, error)
}

// JobLister lists jobs for the operator surface.
type JobLister interface {
	ListJobs(ctx context.Context, filter store.JobFilter) ([]*models.Job, int, error)
}

// NewSubmitJobHandler returns an http.HandlerFunc for POST /api/v1/jobs.
func NewSubmitJobHandler(svc Submitter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			SKUs       []string `json:"skus"`
			Sources    []string `json:"sources"`
			TestMode   bool     `json:"test_mode"`
			MaxRunners int      `json:"max_runners"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}

		if len(req.SKUs) == 0 {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "skus is required", nil)
			return
		}
		if len(req.SKUs) > maxSubmitSKUs {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
				"too many skus in one submission", map[string]int{"max": maxSubmitSKUs})
			return
		}
		for _, sku := range req.SKUs {
			if sku == "" {
				response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "skus must be non-empty strings", nil)
				return
			}
		}

		job, outcome, err := svc.Submit(r.Context(), scheduler.SubmitRequest{
			SKUs:       req.SKUs,
			Sources:    req.Sources,
			TestMode:   req.TestMode,
			MaxRunners: req.MaxRunners,
		})
		if err != nil {
			if errors.Is(err, scheduler.ErrNoSKUs) {
				response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "skus is required", nil)
				return
			}
			response.Error(w, http.StatusInternalServerError, "PERSISTENCE_ERROR",
				"Failed to create job", nil)
			return
		}

		response.Accepted(w, map[string]any{
			"job":      job,
			"dispatch": outcome,
		})
	}
}

// NewJobStatusHandler returns an http.HandlerFunc for GET /api/v1/jobs/{jobID}.
func NewJobStatusHandler(svc StatusProvider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jobID, err := uuid.Parse(chi.URLParam(r, "jobID"))
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "jobID must be a UUID", nil)
			return
		}

		view, err := svc.Status(r.Context(), jobID)
		if errors.Is(err, store.ErrNotFound) {
			response.Error(w, http.StatusNotFound, "NOT_FOUND", "Job not found", nil)
			return
		}
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"Failed to load job status", nil)
			return
		}

		response.JSON(w, view)
	}
}

// NewListJobsHandler returns an http.HandlerFunc for GET /api/v1/jobs.
func NewListJobsHandler(lister JobLister) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		filter := store.JobFilter{
			Status: r.URL.Query().Get("status"),
			Page:   queryInt(r, "page", 1),
			Limit:  queryInt(r, "limit", 20),
		}

		switch filter.Status {
		case "", models.JobStatusPending, models.JobStatusRunning,
			models.JobStatusCompleted, models.JobStatusFailed:
		default:
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
				"status must be pending, running, completed, or failed", nil)
			return
		}

		jobs, total, err := lister.ListJobs(r.Context(), filter)
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"Failed to list jobs", nil)
			return
		}
		if jobs == nil {
			jobs = []*models.Job{}
		}

		response.Collection(w, jobs, response.PaginationMeta{
			Page:    filter.Page,
			Limit:   filter.Limit,
			Total:   total,
			HasNext: filter.Page*filter.Limit < total,
		})
	}
}
