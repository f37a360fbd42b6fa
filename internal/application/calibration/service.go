// Package calibration is the application service that periodically retunes
// the banding thresholds from validated decision history.
package calibration

import (
	"context"
	"time"

	"github.com/envlytics/analyte-resolver/internal/config"
	"github.com/envlytics/analyte-resolver/internal/domain/analyte"
	"github.com/envlytics/analyte-resolver/internal/domain/learning"
	"github.com/envlytics/analyte-resolver/internal/domain/resolution"
	"github.com/envlytics/analyte-resolver/internal/infrastructure/monitoring/logging"
	"github.com/envlytics/analyte-resolver/internal/infrastructure/monitoring/prometheus"
	"github.com/envlytics/analyte-resolver/pkg/errors"
)

const defaultLookback = 30 * 24 * time.Hour

// Service recalibrates the live threshold configuration.
type Service interface {
	Run(ctx context.Context) (*Report, error)
}

// Report summarizes one calibration run.
type Report struct {
	SampleSize int                    `json:"sample_size"`
	Applied    bool                   `json:"applied"`
	Global     resolution.Thresholds  `json:"global"`
	Overrides  int                    `json:"vendor_overrides"`
	Skipped    string                 `json:"skipped_reason,omitempty"`
	Window     time.Duration          `json:"lookback_window"`
}

type service struct {
	decisions  analyte.DecisionRepository
	calibrator *learning.Calibrator
	thresholds *resolution.ThresholdConfig
	lookback   time.Duration
	metrics    *prometheus.AppMetrics
	logger     logging.Logger
	now        func() time.Time
}

// NewService wires the calibration run against the shared threshold
// configuration the engine reads from.
func NewService(
	decisions analyte.DecisionRepository,
	thresholds *resolution.ThresholdConfig,
	cfg config.CalibrationConfig,
	metrics *prometheus.AppMetrics,
	logger logging.Logger,
) Service {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	params := learning.DefaultCalibrationParams()
	if cfg.TargetPrecision > 0 {
		params.TargetPrecision = cfg.TargetPrecision
	}
	if cfg.MinSampleSize > 0 {
		params.MinSample = cfg.MinSampleSize
	}
	if cfg.AutoAcceptFloor > 0 {
		params.SafetyFloorAuto = cfg.AutoAcceptFloor
	}
	if cfg.MarginFloor > 0 {
		params.SafetyFloorMargin = cfg.MarginFloor
	}
	lookback := cfg.LookbackWindow
	if lookback <= 0 {
		lookback = defaultLookback
	}
	return &service{
		decisions:  decisions,
		calibrator: learning.NewCalibrator(params, logger),
		thresholds: thresholds,
		lookback:   lookback,
		metrics:    metrics,
		logger:     logger.Named("calibration"),
		now:        time.Now,
	}
}

// Run sweeps the lookback window of validated decisions and, when the
// sample is large enough, installs the recalibrated cut points into the
// live configuration.  A thin sample keeps the previous configuration and
// is not an error.
func (s *service) Run(ctx context.Context) (*Report, error) {
	since := s.now().Add(-s.lookback)
	rows, err := s.decisions.ListValidatedSince(ctx, since, "")
	if err != nil {
		s.record("failed")
		return nil, err
	}

	outcomes := outcomesFromDecisions(rows)
	report := &Report{SampleSize: len(outcomes), Window: s.lookback, Global: s.thresholds.Global()}

	next, err := s.calibrator.Recalibrate(outcomes, s.thresholds)
	if err != nil {
		if errors.IsCode(err, errors.CodeCalibrationDataTooSmall) {
			s.record("skipped")
			report.Skipped = err.Error()
			s.logger.Info("calibration skipped", logging.Int("sample", len(outcomes)))
			return report, nil
		}
		s.record("failed")
		return nil, err
	}

	s.thresholds.SetGlobal(next.Global())
	overrides := next.VendorOverrides()
	for vendor, t := range overrides {
		s.thresholds.SetVendor(vendor, t)
	}

	report.Applied = true
	report.Global = next.Global()
	report.Overrides = len(overrides)
	s.record("applied")
	s.gauge(report.Global)
	s.logger.Info("thresholds recalibrated",
		logging.Int("sample", len(outcomes)),
		logging.Float64("auto_accept", report.Global.AutoAccept),
		logging.Float64("min_margin", report.Global.MinMargin),
		logging.Int("vendor_overrides", report.Overrides))
	return report, nil
}

func (s *service) record(status string) {
	if s.metrics != nil {
		s.metrics.CalibrationRunsTotal.WithLabelValues(status).Inc()
	}
}

func (s *service) gauge(t resolution.Thresholds) {
	if s.metrics == nil {
		return
	}
	s.metrics.ThresholdValue.WithLabelValues("auto_accept").Set(t.AutoAccept)
	s.metrics.ThresholdValue.WithLabelValues("review").Set(t.Review)
	s.metrics.ThresholdValue.WithLabelValues("min_margin").Set(t.MinMargin)
}

// outcomesFromDecisions projects validated rows into calibration samples.
// Reviewer-appended correction rows carry no cascade score and are skipped;
// the corrected originals already count as negatives.
func outcomesFromDecisions(rows []*analyte.MatchDecision) []learning.DecisionOutcome {
	outcomes := make([]learning.DecisionOutcome, 0, len(rows))
	for _, d := range rows {
		if !d.HumanValidated || d.Method == "HUMAN" || d.Method == "NONE" {
			continue
		}
		outcomes = append(outcomes, learning.DecisionOutcome{
			Vendor:  d.Vendor,
			Method:  resolution.Method(d.Method),
			Score:   d.ConfidenceScore,
			Margin:  d.Margin,
			Correct: !d.IsCorrected,
		})
	}
	return outcomes
}
