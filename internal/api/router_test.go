package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	mw "github.com/nickborrello/baystate-coordinator/internal/api/middleware"
	"github.com/nickborrello/baystate-coordinator/internal/credentials"
	"github.com/nickborrello/baystate-coordinator/pkg/models"
	"github.com/stretchr/testify/assert"
)

type staticAuthenticator struct {
	cred *models.Credential
}

func (s *staticAuthenticator) Authenticate(_ context.Context, presented string) (*models.Credential, error) {
	if s.cred != nil && presented == "bsc_valid" {
		return s.cred, nil
	}
	return nil, credentials.ErrInvalidCredential
}

type noopCache struct{}

func (noopCache) Set(context.Context, string, []byte, time.Duration) error { return nil }
func (noopCache) Get(context.Context, string) ([]byte, bool, error)        { return nil, false, nil }
func (noopCache) Delete(context.Context, string) error                     { return nil }
func (noopCache) Ping(context.Context) error                               { return nil }
func (noopCache) IncrWithExpiry(context.Context, string, time.Duration) (int64, error) {
	return 1, nil
}

func testRouter(admin bool) http.Handler {
	auth := mw.NewAuth(&staticAuthenticator{cred: &models.Credential{
		RunnerName: "runner-a", Prefix: "bsc_vali", Admin: admin,
	}})
	ok := func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) }
	return NewRouter(Dependencies{
		Auth:                     auth,
		RateLimit:                mw.NewRateLimit(noopCache{}, 0),
		HealthHandler:            ok,
		SubmitJobHandler:         ok,
		JobStatusHandler:         ok,
		ListJobsHandler:          ok,
		ClaimHandler:             ok,
		ChunkResultHandler:       ok,
		JobResultHandler:         ok,
		HeartbeatHandler:         ok,
		ListRunnersHandler:       ok,
		IssueCredentialHandler:   ok,
		ListCredentialsHandler:   ok,
		RevokeCredentialHandler:  ok,
		RevokeRunnerCredsHandler: ok,
	})
}

func TestRouter_HealthIsPublic(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	rec := httptest.NewRecorder()
	testRouter(false).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRouter_ProtectedRoutesRequireAuth(t *testing.T) {
	router := testRouter(false)

	for _, route := range []struct{ method, path string }{
		{http.MethodPost, "/api/v1/jobs"},
		{http.MethodGet, "/api/v1/jobs"},
		{http.MethodGet, "/api/v1/runners"},
		{http.MethodPost, "/api/v1/runner/claim"},
		{http.MethodPost, "/api/v1/runner/heartbeat"},
		{http.MethodGet, "/api/v1/admin/credentials"},
	} {
		req := httptest.NewRequest(route.method, route.path, nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, "%s %s", route.method, route.path)

		req = httptest.NewRequest(route.method, route.path, nil)
		req.Header.Set("X-API-Key", "bsc_wrong")
		rec = httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, "%s %s with bad key", route.method, route.path)
	}
}

func TestRouter_AuthenticatedAccess(t *testing.T) {
	router := testRouter(false)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/runner/claim", nil)
	req.Header.Set("X-API-Key", "bsc_valid")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRouter_AdminGating(t *testing.T) {
	t.Run("runner credential is forbidden", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/credentials", nil)
		req.Header.Set("X-API-Key", "bsc_valid")
		rec := httptest.NewRecorder()
		testRouter(false).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("admin credential passes", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/credentials", nil)
		req.Header.Set("X-API-Key", "bsc_valid")
		rec := httptest.NewRecorder()
		testRouter(true).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
	})
}
