// Package http is the gin route tree and server of the public API.
package http

import (
	"github.com/gin-gonic/gin"

	"github.com/envlytics/analyte-resolver/internal/infrastructure/monitoring/logging"
	"github.com/envlytics/analyte-resolver/internal/infrastructure/monitoring/prometheus"
	"github.com/envlytics/analyte-resolver/internal/interfaces/http/handlers"
	"github.com/envlytics/analyte-resolver/internal/interfaces/http/middleware"
)

// RouterConfig aggregates the handlers and middleware of the route tree.
// Nil handlers leave their routes unregistered, which keeps tests and the
// worker binary free to wire only what they need.
type RouterConfig struct {
	ResolveHandler *handlers.ResolveHandler
	ReviewHandler  *handlers.ReviewHandler
	AnalyteHandler *handlers.AnalyteHandler
	AdminHandler   *handlers.AdminHandler
	HealthHandler  *handlers.HealthHandler

	Collector prometheus.MetricsCollector
	Metrics   *prometheus.AppMetrics
	Logger    logging.Logger

	RateLimit *middleware.RateLimitConfig
	CORS      *middleware.CORSConfig
}

// NewRouter builds the complete route tree.
func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	if cfg.CORS != nil {
		r.Use(middleware.CORS(*cfg.CORS))
	}
	if cfg.Logger != nil {
		r.Use(middleware.RequestLogging(cfg.Logger, cfg.Metrics, middleware.DefaultLoggingConfig()))
	}
	if cfg.RateLimit != nil {
		r.Use(middleware.RateLimit(*cfg.RateLimit))
	}

	if cfg.HealthHandler != nil {
		r.GET("/healthz", cfg.HealthHandler.Liveness)
		r.GET("/readyz", cfg.HealthHandler.Readiness)
	}
	if cfg.Collector != nil {
		r.GET("/metrics", gin.WrapH(cfg.Collector.Handler()))
	}

	api := r.Group("/api/v1")
	{
		if cfg.ResolveHandler != nil {
			api.POST("/resolve", cfg.ResolveHandler.Resolve)
			api.POST("/resolve/batch", cfg.ResolveHandler.ResolveBatch)
		}
		if cfg.ReviewHandler != nil {
			api.POST("/decisions/:id/validation", cfg.ReviewHandler.Validate)
			api.GET("/review-queue", cfg.ReviewHandler.Queue)
			api.GET("/review-queue/summary", cfg.ReviewHandler.Summary)
			api.GET("/review-queue/clusters", cfg.ReviewHandler.Clusters)
		}
		if cfg.AnalyteHandler != nil {
			api.GET("/analytes", cfg.AnalyteHandler.List)
			api.GET("/analytes/:id", cfg.AnalyteHandler.Get)
			api.GET("/analytes/:id/synonyms", cfg.AnalyteHandler.Synonyms)
		}
		if cfg.AdminHandler != nil {
			api.POST("/admin/rebuild-index", cfg.AdminHandler.RebuildIndex)
			api.POST("/admin/calibrate", cfg.AdminHandler.Calibrate)
		}
	}
	return r
}
