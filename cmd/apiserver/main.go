// API server entry point for the analyte resolver.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/envlytics/analyte-resolver/internal/bootstrap"
	"github.com/envlytics/analyte-resolver/internal/config"
	"github.com/envlytics/analyte-resolver/internal/infrastructure/monitoring/logging"
	httpserver "github.com/envlytics/analyte-resolver/internal/interfaces/http"
	"github.com/envlytics/analyte-resolver/internal/interfaces/http/handlers"
	"github.com/envlytics/analyte-resolver/internal/interfaces/http/middleware"
)

// Build-time variables injected via ldflags.
var version = "dev"

func main() {
	configPath := flag.String("config", "", "path to configuration file (default: environment variables)")
	port := flag.Int("port", 0, "HTTP port (overrides config)")
	flag.Parse()

	if err := run(*configPath, *port); err != nil {
		fmt.Fprintf(os.Stderr, "apiserver: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string, port int) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if port > 0 {
		cfg.Server.Port = port
	}

	logger, err := bootstrap.NewLogger(cfg.Log)
	if err != nil {
		return err
	}
	logger.Info("starting analyte resolver API server",
		logging.String("version", version),
		logging.Int("port", cfg.Server.Port))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer app.Close()

	// The matching engine cannot serve until a corpus snapshot is active.
	if err := app.Indexing.LoadActive(ctx); err != nil {
		return err
	}
	if app.Indexer != nil {
		if err := app.Indexer.EnsureIndex(ctx); err != nil {
			logger.Warn("decision index setup failed; review search degraded", logging.Err(err))
		}
	}

	router := httpserver.NewRouter(httpserver.RouterConfig{
		ResolveHandler: handlers.NewResolveHandler(app.Matching),
		ReviewHandler:  handlers.NewReviewHandler(app.Review),
		AnalyteHandler: handlers.NewAnalyteHandler(app.Analytes, app.Synonyms),
		AdminHandler:   handlers.NewAdminHandler(app.Indexing, app.Calibration),
		HealthHandler:  handlers.NewHealthHandler(version, healthCheckers(app)...),
		Collector:      app.Collector,
		Metrics:        app.Metrics,
		Logger:         logger,
		RateLimit:      rateLimitConfig(),
		CORS:           corsConfig(),
	})

	srv := httpserver.NewServer(cfg.Server, router, logger)
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	return srv.Stop(shutdownCtx)
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.Load(path)
	}
	return config.LoadFromEnv()
}

func healthCheckers(app *bootstrap.Container) []handlers.HealthChecker {
	checkers := []handlers.HealthChecker{
		handlers.CheckerFunc{CheckerName: "postgres", Fn: app.Pool.Ping},
		handlers.CheckerFunc{CheckerName: "redis", Fn: app.Redis.Ping},
	}
	if app.OpenSearch != nil {
		checkers = append(checkers, handlers.CheckerFunc{CheckerName: "opensearch", Fn: app.OpenSearch.Ping})
	}
	return checkers
}

func rateLimitConfig() *middleware.RateLimitConfig {
	cfg := middleware.DefaultRateLimitConfig()
	return &cfg
}

func corsConfig() *middleware.CORSConfig {
	cfg := middleware.DefaultCORSConfig()
	return &cfg
}
