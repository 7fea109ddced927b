package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/nickborrello/baystate-coordinator/internal/api/response"
	"github.com/nickborrello/baystate-coordinator/pkg/models"
)

// FleetStore lists runner and credential records for the operator surface.
type FleetStore interface {
	ListRunners(ctx context.Context) ([]*models.Runner, error)
	ListCredentials(ctx context.Context) ([]*models.Credential, error)
}

// runnerView is a runner with its status adjusted for staleness and its
// credential metadata attached (prefixes only, never hashes or secrets).
type runnerView struct {
	*models.Runner
	EffectiveStatus string               `json:"effective_status"`
	Credentials     []*models.Credential `json:"credentials"`
}

// NewListRunnersHandler returns an http.HandlerFunc for GET /api/v1/runners.
// A runner silent past the liveness window reads as offline no matter what
// its stored status says.
func NewListRunnersHandler(fleet FleetStore, livenessWindow time.Duration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		runners, err := fleet.ListRunners(r.Context())
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"Failed to list runners", nil)
			return
		}

		creds, err := fleet.ListCredentials(r.Context())
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"Failed to list credentials", nil)
			return
		}

		byRunner := make(map[string][]*models.Credential, len(runners))
		for _, c := range creds {
			byRunner[c.RunnerName] = append(byRunner[c.RunnerName], c)
		}

		now := time.Now().UTC()
		views := make([]runnerView, 0, len(runners))
		for _, runner := range runners {
			rc := byRunner[runner.Name]
			if rc == nil {
				rc = []*models.Credential{}
			}
			views = append(views, runnerView{
				Runner:          runner,
				EffectiveStatus: runner.EffectiveStatus(now, livenessWindow),
				Credentials:     rc,
			})
		}

		response.JSON(w, views)
	}
}
