package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/nickborrello/baystate-coordinator/internal/health"
	"github.com/nickborrello/baystate-coordinator/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeFleetStore struct {
	runners []*models.Runner
	creds   []*models.Credential
}

func (f *fakeFleetStore) ListRunners(_ context.Context) ([]*models.Runner, error) {
	return f.runners, nil
}

func (f *fakeFleetStore) ListCredentials(_ context.Context) ([]*models.Credential, error) {
	return f.creds, nil
}

func TestListRunnersHandler_EffectiveStatus(t *testing.T) {
	recent := time.Now().UTC().Add(-time.Minute)
	stale := time.Now().UTC().Add(-6 * time.Minute)

	fleet := &fakeFleetStore{
		runners: []*models.Runner{
			{Name: "runner-fresh", Status: models.RunnerStatusBusy, LastSeenAt: &recent},
			{Name: "runner-stale", Status: models.RunnerStatusBusy, LastSeenAt: &stale},
			{Name: "runner-never", Status: models.RunnerStatusOffline},
		},
		creds: []*models.Credential{
			{ID: uuid.New(), RunnerName: "runner-fresh", Prefix: "bsc_abcd"},
		},
	}
	h := NewListRunnersHandler(fleet, 5*time.Minute)

	req := httptest.NewRequest(http.MethodGet, "/runners", nil)
	rec := httptest.NewRecorder()
	h(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Data []struct {
			Name            string `json:"name"`
			EffectiveStatus string `json:"effective_status"`
			Credentials     []struct {
				Prefix string `json:"prefix"`
			} `json:"credentials"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Data, 3)

	byName := map[string]string{}
	for _, r := range body.Data {
		byName[r.Name] = r.EffectiveStatus
	}
	assert.Equal(t, models.RunnerStatusBusy, byName["runner-fresh"])
	// Silent past the window reads offline no matter the stored status.
	assert.Equal(t, models.RunnerStatusOffline, byName["runner-stale"])
	assert.Equal(t, models.RunnerStatusOffline, byName["runner-never"])

	assert.Len(t, body.Data[0].Credentials, 1)
	assert.Empty(t, body.Data[1].Credentials)
}

type fakeHealthChecker struct {
	results []health.CheckResult
}

func (f *fakeHealthChecker) Check(_ context.Context) []health.CheckResult {
	return f.results
}

func TestHealthHandler(t *testing.T) {
	t.Run("healthy", func(t *testing.T) {
		h := NewHealthHandler(&fakeHealthChecker{results: []health.CheckResult{
			{Name: "database", Status: health.StatusOK},
			{Name: "runners", Status: health.StatusWarning, Message: "no runners seen"},
		}})

		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		rec := httptest.NewRecorder()
		h(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code, "warnings alone do not degrade")
		assert.Contains(t, rec.Body.String(), `"status":"ok"`)
	})

	t.Run("degraded", func(t *testing.T) {
		h := NewHealthHandler(&fakeHealthChecker{results: []health.CheckResult{
			{Name: "database", Status: health.StatusError, Message: "unreachable"},
		}})

		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		rec := httptest.NewRecorder()
		h(rec, req)

		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.Contains(t, rec.Body.String(), "DEGRADED")
		assert.Contains(t, rec.Body.String(), "unreachable")
	})
}
