package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/nickborrello/baystate-coordinator/internal/dispatch"
	"github.com/nickborrello/baystate-coordinator/internal/scheduler"
	"github.com/nickborrello/baystate-coordinator/internal/store"
	"github.com/nickborrello/baystate-coordinator/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSubmitter struct {
	req     scheduler.SubmitRequest
	job     *models.Job
	outcome dispatch.Outcome
	err     error
}

func (f *fakeSubmitter) Submit(_ context.Context, req scheduler.SubmitRequest) (*models.Job, dispatch.Outcome, error) {
	f.req = req
	return f.job, f.outcome, f.err
}

type fakeStatusProvider struct {
	view *scheduler.JobStatusView
	err  error
}

func (f *fakeStatusProvider) Status(_ context.Context, _ uuid.UUID) (*scheduler.JobStatusView, error) {
	return f.view, f.err
}

type fakeJobLister struct {
	filter store.JobFilter
	jobs   []*models.Job
	total  int
	err    error
}

func (f *fakeJobLister) ListJobs(_ context.Context, filter store.JobFilter) ([]*models.Job, int, error) {
	f.filter = filter
	return f.jobs, f.total, f.err
}

func decodeData(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body struct {
		Data map[string]any `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body.Data
}

func TestSubmitJobHandler(t *testing.T) {
	submitter := &fakeSubmitter{
		job:     &models.Job{ID: uuid.New(), Status: models.JobStatusRunning},
		outcome: dispatch.Outcome{Mode: "push", Requested: 3, Succeeded: 3},
	}
	h := NewSubmitJobHandler(submitter)

	body := `{"skus":["SKU-1","SKU-2"],"sources":["acme"],"test_mode":true,"max_runners":2}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/jobs", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h(rec, req)

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, []string{"SKU-1", "SKU-2"}, submitter.req.SKUs)
	assert.True(t, submitter.req.TestMode)
	assert.Equal(t, 2, submitter.req.MaxRunners)

	data := decodeData(t, rec)
	assert.Contains(t, data, "job")
	assert.Contains(t, data, "dispatch")
}

func TestSubmitJobHandler_Validation(t *testing.T) {
	h := NewSubmitJobHandler(&fakeSubmitter{})

	cases := []struct {
		name string
		body string
	}{
		{"malformed json", `{"skus": [`},
		{"no skus", `{"sources":["acme"]}`},
		{"empty sku string", `{"skus":["SKU-1",""]}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/v1/jobs", strings.NewReader(tc.body))
			rec := httptest.NewRecorder()
			h(rec, req)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestSubmitJobHandler_TooManySKUs(t *testing.T) {
	h := NewSubmitJobHandler(&fakeSubmitter{})

	skus := make([]string, maxSubmitSKUs+1)
	for i := range skus {
		skus[i] = "SKU"
	}
	body, err := json.Marshal(map[string]any{"skus": skus})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/jobs", strings.NewReader(string(body)))
	rec := httptest.NewRecorder()
	h(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSubmitJobHandler_PersistenceError(t *testing.T) {
	h := NewSubmitJobHandler(&fakeSubmitter{err: errors.New("connection refused")})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/jobs", strings.NewReader(`{"skus":["SKU-1"]}`))
	rec := httptest.NewRecorder()
	h(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestJobStatusHandler(t *testing.T) {
	jobID := uuid.New()
	provider := &fakeStatusProvider{view: &scheduler.JobStatusView{
		Job:     &models.Job{ID: jobID, Status: models.JobStatusRunning},
		Chunked: true,
		Chunks:  &scheduler.ChunkProgress{Total: 3, Completed: 1},
	}}

	r := chi.NewRouter()
	r.Get("/jobs/{jobID}", NewJobStatusHandler(provider))

	req := httptest.NewRequest(http.MethodGet, "/jobs/"+jobID.String(), nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	data := decodeData(t, rec)
	assert.Equal(t, true, data["chunked"])
}

func TestJobStatusHandler_Errors(t *testing.T) {
	r := chi.NewRouter()
	r.Get("/jobs/{jobID}", NewJobStatusHandler(&fakeStatusProvider{err: store.ErrNotFound}))

	t.Run("bad uuid", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/jobs/not-a-uuid", nil)
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("not found", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/jobs/"+uuid.NewString(), nil)
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestListJobsHandler(t *testing.T) {
	lister := &fakeJobLister{
		jobs:  []*models.Job{{ID: uuid.New(), Status: models.JobStatusRunning}},
		total: 45,
	}
	h := NewListJobsHandler(lister)

	req := httptest.NewRequest(http.MethodGet, "/jobs?status=running&page=2&limit=20", nil)
	rec := httptest.NewRecorder()
	h(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, store.JobFilter{Status: "running", Page: 2, Limit: 20}, lister.filter)

	var body struct {
		Meta struct {
			Total   int  `json:"total"`
			HasNext bool `json:"has_next"`
		} `json:"meta"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 45, body.Meta.Total)
	assert.True(t, body.Meta.HasNext)
}

func TestListJobsHandler_RejectsUnknownStatus(t *testing.T) {
	h := NewListJobsHandler(&fakeJobLister{})

	req := httptest.NewRequest(http.MethodGet, "/jobs?status=archived", nil)
	rec := httptest.NewRecorder()
	h(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListJobsHandler_EmptyListIsArray(t *testing.T) {
	h := NewListJobsHandler(&fakeJobLister{})

	req := httptest.NewRequest(http.MethodGet, "/jobs", nil)
	rec := httptest.NewRecorder()
	h(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"data":[]`)
}
