package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gearledger/internal/metrics"
	"gearledger/internal/middleware"
)

func TestMetrics_labelsByRoutePattern(t *testing.T) {
	m := metrics.New()
	r := chi.NewRouter()
	r.Use(middleware.NewMetrics(m))
	r.Post("/equipment/{id}/claim", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
	})

	for _, id := range []string{"a", "b"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/equipment/"+id+"/claim", nil))
		require.Equal(t, http.StatusConflict, rec.Code)
	}
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/nowhere", nil))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rec.Body.String()
	assert.Contains(t, body, `gearledger_http_requests_total{method="POST",route="/equipment/{id}/claim",status="409"} 2`)
	assert.Contains(t, body, `gearledger_http_requests_total{method="GET",route="unmatched",status="404"} 1`)
	assert.Contains(t, body, "gearledger_http_requests_in_flight 0")
}
