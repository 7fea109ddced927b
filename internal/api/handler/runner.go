package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	mw "github.com/nickborrello/baystate-coordinator/internal/api/middleware"
	"github.com/nickborrello/baystate-coordinator/internal/api/response"
	"github.com/nickborrello/baystate-coordinator/internal/scheduler"
	"github.com/nickborrello/baystate-coordinator/internal/store"
	"github.com/nickborrello/baystate-coordinator/pkg/models"

	"github.com/go-chi/chi/v5"
)

// ClaimService is the claim protocol the runner endpoints depend on.
type ClaimService interface {
	ClaimNext(ctx context.Context, runnerName string) (*scheduler.Claim, error)
	ReportResult(ctx context.Context, report store.ChunkReport) error
	ReportJobResult(ctx context.Context, jobID uuid.UUID, succeeded bool, errorMessage string) error
	Heartbeat(ctx context.Context, update store.RunnerUpdate) error
}

// NewClaimHandler returns an http.HandlerFunc for POST /api/v1/runner/claim.
// Responds 204 when nothing is eligible; runners back off and poll again.
func NewClaimHandler(svc ClaimService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		runnerName, ok := mw.GetRunnerName(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "INVALID_CREDENTIAL", "Missing runner identity", nil)
			return
		}

		claim, err := svc.ClaimNext(r.Context(), runnerName)
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"Failed to claim work", nil)
			return
		}
		if claim == nil {
			response.NoContent(w)
			return
		}

		response.JSON(w, claim)
	}
}

// NewChunkResultHandler returns an http.HandlerFunc for
// POST /api/v1/runner/chunks/{chunkID}/result.
func NewChunkResultHandler(svc ClaimService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		runnerName, ok := mw.GetRunnerName(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "INVALID_CREDENTIAL", "Missing runner identity", nil)
			return
		}

		chunkID, err := uuid.Parse(chi.URLParam(r, "chunkID"))
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "chunkID must be a UUID", nil)
			return
		}

		var req struct {
			Status       string  `json:"status"`
			Processed    int     `json:"processed"`
			Succeeded    int     `json:"succeeded"`
			Failed       int     `json:"failed"`
			ErrorMessage *string `json:"error_message"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}
		if req.Status != models.ChunkStatusCompleted && req.Status != models.ChunkStatusFailed {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
				"status must be completed or failed", nil)
			return
		}
		if req.Processed < 0 || req.Succeeded < 0 || req.Failed < 0 {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
				"counts must be non-negative", nil)
			return
		}

		err = svc.ReportResult(r.Context(), store.ChunkReport{
			ChunkID:      chunkID,
			RunnerName:   runnerName,
			Status:       req.Status,
			Processed:    req.Processed,
			Succeeded:    req.Succeeded,
			Failed:       req.Failed,
			ErrorMessage: req.ErrorMessage,
		})
		if errors.Is(err, store.ErrNotFound) {
			response.Error(w, http.StatusNotFound, "NOT_FOUND", "Chunk not found", nil)
			return
		}
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"Failed to record chunk result", nil)
			return
		}

		response.JSON(w, map[string]string{"status": "recorded"})
	}
}

// NewJobResultHandler returns an http.HandlerFunc for
// POST /api/v1/runner/jobs/{jobID}/result, the completion path for unchunked
// jobs.
func NewJobResultHandler(svc ClaimService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, ok := mw.GetRunnerName(r); !ok {
			response.Error(w, http.StatusUnauthorized, "INVALID_CREDENTIAL", "Missing runner identity", nil)
			return
		}

		jobID, err := uuid.Parse(chi.URLParam(r, "jobID"))
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "jobID must be a UUID", nil)
			return
		}

		var req struct {
			Succeeded    bool   `json:"succeeded"`
			ErrorMessage string `json:"error_message"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}

		err = svc.ReportJobResult(r.Context(), jobID, req.Succeeded, req.ErrorMessage)
		if errors.Is(err, store.ErrNotFound) {
			response.Error(w, http.StatusNotFound, "NOT_FOUND", "Job not found", nil)
			return
		}
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"Failed to record job result", nil)
			return
		}

		response.JSON(w, map[string]string{"status": "recorded"})
	}
}

// NewHeartbeatHandler returns an http.HandlerFunc for
// POST /api/v1/runner/heartbeat.
func NewHeartbeatHandler(svc ClaimService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		runnerName, ok := mw.GetRunnerName(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "INVALID_CREDENTIAL", "Missing runner identity", nil)
			return
		}

		var req struct {
			Status   string            `json:"status"`
			JobID    *string           `json:"job_id"`
			ChunkID  *string           `json:"chunk_id"`
			Metadata map[string]string `json:"metadata"`
		}
		if r.ContentLength != 0 {
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
				return
			}
		}

		switch req.Status {
		case "", models.RunnerStatusOnline, models.RunnerStatusPolling,
			models.RunnerStatusIdle, models.RunnerStatusRunning, models.RunnerStatusBusy:
		default:
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
				"unknown runner status", nil)
			return
		}

		err := svc.Heartbeat(r.Context(), store.RunnerUpdate{
			Name:           runnerName,
			Status:         req.Status,
			CurrentJobID:   req.JobID,
			CurrentChunkID: req.ChunkID,
			Metadata:       req.Metadata,
		})
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"Failed to record heartbeat", nil)
			return
		}

		response.JSON(w, map[string]string{"status": "ok"})
	}
}
