// Background worker for the analyte resolver: periodic corpus rebuilds,
// threshold calibration and asynchronous decision indexing.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/envlytics/analyte-resolver/internal/bootstrap"
	"github.com/envlytics/analyte-resolver/internal/config"
	"github.com/envlytics/analyte-resolver/internal/infrastructure/messaging/kafka"
	"github.com/envlytics/analyte-resolver/internal/infrastructure/monitoring/logging"
)

var version = "dev"

const defaultRebuildInterval = 5 * time.Minute

func main() {
	configPath := flag.String("config", "", "path to configuration file (default: environment variables)")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "worker: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	logger, err := bootstrap.NewLogger(cfg.Log)
	if err != nil {
		return err
	}
	logger.Info("starting analyte resolver worker", logging.String("version", version))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer app.Close()

	if err := app.Indexing.LoadActive(ctx); err != nil {
		return err
	}
	if app.Indexer != nil {
		if err := app.Indexer.EnsureIndex(ctx); err != nil {
			logger.Warn("decision index setup failed; indexing loop degraded", logging.Err(err))
		}
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return rebuildLoop(ctx, app, logger) })
	if cfg.Calibration.Interval > 0 {
		g.Go(func() error { return calibrationLoop(ctx, app, logger) })
	}
	if app.Indexer != nil {
		g.Go(func() error { return consumeDecisions(ctx, app, logger) })
	}

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.Load(path)
	}
	return config.LoadFromEnv()
}

// rebuildLoop rebuilds the corpus snapshot whenever runtime learning marked
// it stale.
func rebuildLoop(ctx context.Context, app *bootstrap.Container, logger logging.Logger) error {
	interval := app.Config.Worker.RebuildInterval
	if interval <= 0 {
		interval = defaultRebuildInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			report, err := app.Indexing.RebuildIfStale(ctx)
			if err != nil {
				logger.Error("stale rebuild failed", logging.Err(err))
				continue
			}
			if report != nil && report.Skipped == "" {
				logger.Info("corpus snapshot rebuilt",
					logging.String("hash", report.Hash),
					logging.Int("analytes", report.AnalyteCount))
			}
		}
	}
}

// calibrationLoop periodically resweeps thresholds over the validated
// decision history.
func calibrationLoop(ctx context.Context, app *bootstrap.Container, logger logging.Logger) error {
	ticker := time.NewTicker(app.Config.Calibration.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			report, err := app.Calibration.Run(ctx)
			if err != nil {
				logger.Error("calibration run failed", logging.Err(err))
				continue
			}
			if report.Applied {
				logger.Info("thresholds recalibrated",
					logging.Int("sample_size", report.SampleSize),
					logging.Int("vendor_overrides", report.Overrides))
			}
		}
	}
}

// consumeDecisions indexes freshly recorded decisions into the review
// search index.  Indexing off the event stream keeps OpenSearch out of the
// resolve hot path.
func consumeDecisions(ctx context.Context, app *bootstrap.Container, logger logging.Logger) error {
	handler := func(ctx context.Context, env *kafka.EventEnvelope) error {
		var payload kafka.DecisionRecordedPayload
		if err := json.Unmarshal(env.Payload, &payload); err != nil {
			logger.Warn("malformed decision event skipped",
				logging.String("event_id", env.EventID), logging.Err(err))
			return nil
		}

		decision, err := app.Decisions.GetByID(ctx, payload.DecisionID)
		if err != nil {
			return err
		}
		return app.Indexer.IndexDecision(ctx, decision)
	}

	consumer, err := kafka.NewConsumer(app.Config.Kafka, kafka.TopicDecisionRecorded, handler, logger)
	if err != nil {
		return err
	}
	defer consumer.Close()

	return consumer.Run(ctx)
}
