package metrics_test

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/yukyu/metrics"
)

func scrape(t *testing.T, p metrics.Provider) string {
	t.Helper()
	rec := httptest.NewRecorder()
	p.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	return string(body)
}

func TestPrometheusExposesCounters(t *testing.T) {
	p := metrics.New(true)

	p.IncCacheHits()
	p.IncCacheMisses()
	p.IncCacheMisses()
	p.AddLotsGenerated(3)
	p.AddLotsExpired(2)
	p.ObserveJob("grant", 10*time.Millisecond, nil)
	p.ObserveJob("expire", time.Millisecond, errors.New("locked"))

	body := scrape(t, p)
	assert.Contains(t, body, "yukyu_config_cache_hits_total 1")
	assert.Contains(t, body, "yukyu_config_cache_misses_total 2")
	assert.Contains(t, body, "yukyu_lots_generated_total 3")
	assert.Contains(t, body, "yukyu_lots_expired_total 2")
	assert.Contains(t, body, `yukyu_job_runs_total{job="grant",outcome="success"} 1`)
	assert.Contains(t, body, `yukyu_job_runs_total{job="expire",outcome="error"} 1`)
}

func TestMiddlewareUsesRoutePattern(t *testing.T) {
	p := metrics.New(true)
	r := chi.NewRouter()
	r.Use(metrics.Middleware(p))
	r.Get("/api/employees/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	r.Get("/ok", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/employees/e1", nil))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/employees/e2", nil))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/ok", nil))

	body := scrape(t, p)
	assert.Contains(t, body, `yukyu_requests_total{route="/api/employees/{id}",status="4xx"} 2`)
	assert.Contains(t, body, `yukyu_requests_total{route="/ok",status="2xx"} 1`)
}

func TestNoopHandler(t *testing.T) {
	p := metrics.New(false)
	assert.IsType(t, metrics.Noop{}, p)

	rec := httptest.NewRecorder()
	p.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
