package http

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/envlytics/analyte-resolver/internal/infrastructure/monitoring/prometheus"
	"github.com/envlytics/analyte-resolver/internal/interfaces/http/handlers"
	"github.com/envlytics/analyte-resolver/internal/interfaces/http/middleware"
)

func init() { gin.SetMode(gin.TestMode) }

func TestRouterHealthAndMetrics(t *testing.T) {
	collector, err := prometheus.NewMetricsCollector(prometheus.CollectorConfig{Namespace: "resolver"}, nil)
	require.NoError(t, err)

	r := NewRouter(RouterConfig{
		HealthHandler: handlers.NewHealthHandler("test"),
		Collector:     collector,
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRouterUnwiredRoutesAre404(t *testing.T) {
	r := NewRouter(RouterConfig{HealthHandler: handlers.NewHealthHandler("test")})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/resolve", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRouterAppliesRateLimit(t *testing.T) {
	rl := middleware.RateLimitConfig{RequestsPerSecond: 1, BurstSize: 1}
	r := NewRouter(RouterConfig{
		HealthHandler: handlers.NewHealthHandler("test"),
		RateLimit:     &rl,
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/anything", nil)
	req.RemoteAddr = "10.1.1.1:4000"
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
}
