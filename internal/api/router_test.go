package api_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/kiranshivaraju/matchintel/internal/api"
	mw "github.com/kiranshivaraju/matchintel/internal/api/middleware"
	"github.com/kiranshivaraju/matchintel/internal/cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- stub cache ---

type stubCache struct {
	count int64
}

func (c *stubCache) Set(_ context.Context, _ string, _ []byte, _ time.Duration) error { return nil }
func (c *stubCache) Get(_ context.Context, _ string) ([]byte, bool, error)            { return nil, false, nil }
func (c *stubCache) Delete(_ context.Context, _ string) error                          { return nil }
func (c *stubCache) Ping(_ context.Context) error                                      { return nil }
func (c *stubCache) SetResult(_ context.Context, _ uuid.UUID, _ []byte, _ time.Duration) error {
	return nil
}
func (c *stubCache) GetResult(_ context.Context, _ uuid.UUID) ([]byte, bool, error) {
	return nil, false, nil
}
func (c *stubCache) IncrWithExpiry(_ context.Context, _ string, _ time.Duration) (int64, error) {
	c.count++
	return c.count, nil
}

// --- router tests ---

func echoRoute(name string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Route", name)
		w.Header().Set("X-Job-ID", chi.URLParam(r, "jobID"))
		w.WriteHeader(http.StatusOK)
	}
}

func newTestRouter(c *stubCache, limit int) http.Handler {
	return api.NewRouter(api.Dependencies{
		RateLimit: mw.NewRateLimit(c, limit),
		HealthHandler: func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{"status":"ok"}`))
		},
		CreateAnalysis: echoRoute("create-analysis"),
		ListAnalyses:   echoRoute("list-analyses"),
		GetResult:      echoRoute("get-result"),
		CreateExport:   echoRoute("create-export"),
		ListExports:    echoRoute("list-exports"),
		GetExport:      echoRoute("get-export"),
		DownloadExport: echoRoute("download-export"),
		GetStatus:      echoRoute("get-status"),
		CancelJob:      echoRoute("cancel-job"),
	})
}

func TestRouter_HealthEndpoint(t *testing.T) {
	router := newTestRouter(&stubCache{}, 60)

	req := httptest.NewRequest("GET", "/api/v1/health", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get("X-RateLimit-Limit"))
}

func TestRouter_Routes(t *testing.T) {
	router := newTestRouter(&stubCache{}, 1000)
	id := uuid.NewString()

	routes := []struct {
		method string
		path   string
		name   string
		jobID  string
	}{
		{"POST", "/api/v1/analyses", "create-analysis", ""},
		{"GET", "/api/v1/analyses?input_ref=m1", "list-analyses", ""},
		{"GET", "/api/v1/analyses/" + id + "/result", "get-result", id},
		{"POST", "/api/v1/exports", "create-export", ""},
		{"GET", "/api/v1/exports?analysis_ref=" + id, "list-exports", ""},
		{"GET", "/api/v1/exports/" + id, "get-export", id},
		{"GET", "/api/v1/exports/" + id + "/download", "download-export", id},
		{"GET", "/api/v1/jobs/" + id, "get-status", id},
		{"POST", "/api/v1/jobs/" + id + "/cancel", "cancel-job", id},
	}

	for _, rt := range routes {
		t.Run(rt.method+" "+rt.path, func(t *testing.T) {
			req := httptest.NewRequest(rt.method, rt.path, nil)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, http.StatusOK, w.Code)
			assert.Equal(t, rt.name, w.Header().Get("X-Route"))
			assert.Equal(t, rt.jobID, w.Header().Get("X-Job-ID"))
			assert.Equal(t, "1000", w.Header().Get("X-RateLimit-Limit"))
		})
	}
}

func TestRouter_RateLimited(t *testing.T) {
	router := newTestRouter(&stubCache{}, 1)

	first := httptest.NewRecorder()
	router.ServeHTTP(first, httptest.NewRequest("GET", "/api/v1/jobs/"+uuid.NewString(), nil))
	assert.Equal(t, http.StatusOK, first.Code)

	second := httptest.NewRecorder()
	router.ServeHTTP(second, httptest.NewRequest("GET", "/api/v1/jobs/"+uuid.NewString(), nil))
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
}

func TestRouter_Metrics(t *testing.T) {
	router := newTestRouter(&stubCache{}, 60)

	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.Contains(w.Body.String(), "go_goroutines"))
}

func TestRouter_UnwiredHandlerIsNotImplemented(t *testing.T) {
	router := api.NewRouter(api.Dependencies{})

	req := httptest.NewRequest("POST", "/api/v1/analyses", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotImplemented, w.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	errObj := body["error"].(map[string]any)
	assert.Equal(t, "NOT_IMPLEMENTED", errObj["code"])
}

func TestRouter_NotFound(t *testing.T) {
	router := newTestRouter(&stubCache{}, 60)

	req := httptest.NewRequest("GET", "/api/v1/nonexistent", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

var _ cache.Cache = (*stubCache)(nil)
