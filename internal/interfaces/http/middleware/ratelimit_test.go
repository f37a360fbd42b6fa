package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func init() { gin.SetMode(gin.TestMode) }

func limitedRouter(cfg RateLimitConfig) *gin.Engine {
	r := gin.New()
	r.Use(RateLimit(cfg))
	r.GET("/resource", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusOK) })
	return r
}

func get(r *gin.Engine, path, addr string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	req.RemoteAddr = addr
	r.ServeHTTP(w, req)
	return w
}

func TestRateLimitExceeded(t *testing.T) {
	r := limitedRouter(RateLimitConfig{RequestsPerSecond: 0.001, BurstSize: 2})

	assert.Equal(t, http.StatusOK, get(r, "/resource", "10.0.0.1:1000").Code)
	assert.Equal(t, http.StatusOK, get(r, "/resource", "10.0.0.1:1000").Code)

	w := get(r, "/resource", "10.0.0.1:1000")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "1", w.Header().Get("Retry-After"))
}

func TestRateLimitPerClient(t *testing.T) {
	r := limitedRouter(RateLimitConfig{RequestsPerSecond: 0.001, BurstSize: 1})

	assert.Equal(t, http.StatusOK, get(r, "/resource", "10.0.0.1:1000").Code)
	assert.Equal(t, http.StatusTooManyRequests, get(r, "/resource", "10.0.0.1:1000").Code)
	// a different client keeps its own bucket
	assert.Equal(t, http.StatusOK, get(r, "/resource", "10.0.0.2:1000").Code)
}

func TestRateLimitSkipsConfiguredPaths(t *testing.T) {
	r := limitedRouter(RateLimitConfig{
		RequestsPerSecond: 0.001,
		BurstSize:         1,
		SkipPaths:         []string{"/healthz"},
	})

	for i := 0; i < 5; i++ {
		assert.Equal(t, http.StatusOK, get(r, "/healthz", "10.0.0.1:1000").Code)
	}
}

func TestRateLimitHeaders(t *testing.T) {
	r := limitedRouter(RateLimitConfig{RequestsPerSecond: 0.001, BurstSize: 5})

	w := get(r, "/resource", "10.0.0.3:1000")
	assert.Equal(t, "5", w.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "4", w.Header().Get("X-RateLimit-Remaining"))
}
