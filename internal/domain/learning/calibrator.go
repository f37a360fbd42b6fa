package learning

import (
	"sort"

	"github.com/envlytics/analyte-resolver/internal/domain/resolution"
	"github.com/envlytics/analyte-resolver/internal/infrastructure/monitoring/logging"
	"github.com/envlytics/analyte-resolver/pkg/errors"
	"github.com/envlytics/analyte-resolver/pkg/types/common"
)

// CalibrationParams bound what the sweep may choose.
type CalibrationParams struct {
	// TargetPrecision is the auto-accept precision a threshold must reach.
	TargetPrecision float64
	// MinSample is the smallest validated-decision count worth calibrating on.
	MinSample int
	// MinVendorSample gates per-vendor overrides.
	MinVendorSample int
	// SafetyFloorAuto and SafetyFloorMargin are hard lower bounds the sweep
	// can never undercut, whatever the statistics say.
	SafetyFloorAuto   float64
	SafetyFloorMargin float64
}

// DefaultCalibrationParams returns the production calibration bounds.
func DefaultCalibrationParams() CalibrationParams {
	return CalibrationParams{
		TargetPrecision:   0.99,
		MinSample:         200,
		MinVendorSample:   25,
		SafetyFloorAuto:   0.90,
		SafetyFloorMargin: 0.02,
	}
}

// DecisionOutcome is one human-validated decision the calibrator learns
// from: the score and margin the cascade produced, and whether the human
// upheld the match.
type DecisionOutcome struct {
	Vendor  common.Vendor
	Method  resolution.Method
	Score   float64
	Margin  float64
	Correct bool
}

// Calibrator recomputes band cut points from validated history.
type Calibrator struct {
	params CalibrationParams
	logger logging.Logger
}

// NewCalibrator creates a calibrator.
func NewCalibrator(params CalibrationParams, logger logging.Logger) *Calibrator {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Calibrator{params: params, logger: logger.Named("learning.calibrate")}
}

// Recalibrate sweeps the validated outcomes for the lowest auto-accept
// threshold and margin floor meeting the target precision, per vendor where
// enough confirmed history exists.  Returns CalibrationDataTooSmall when
// the window is too thin to trust; callers keep the previous configuration
// in that case.
func (c *Calibrator) Recalibrate(outcomes []DecisionOutcome, previous *resolution.ThresholdConfig) (*resolution.ThresholdConfig, error) {
	if previous == nil {
		previous = resolution.NewThresholdConfig(resolution.DefaultThresholds())
	}
	if len(outcomes) < c.params.MinSample {
		return nil, errors.Newf(errors.CodeCalibrationDataTooSmall,
			"%d validated decisions, need %d", len(outcomes), c.params.MinSample)
	}

	global := previous.Global()
	auto, margin, ok := c.sweep(outcomes)
	if !ok {
		// no cut point reaches the target; tighten to the strictest
		// observed score rather than loosening anything
		c.logger.Warn("no threshold meets target precision, keeping previous cut points",
			logging.Int("outcomes", len(outcomes)))
		auto, margin = global.AutoAccept, global.MinMargin
	}
	global.AutoAccept = c.clampAuto(auto)
	global.MinMargin = c.clampMargin(margin)

	next := resolution.NewThresholdConfig(global)

	byVendor := make(map[common.Vendor][]DecisionOutcome)
	for _, o := range outcomes {
		if !o.Vendor.IsGlobal() {
			byVendor[o.Vendor] = append(byVendor[o.Vendor], o)
		}
	}
	for vendor, vo := range byVendor {
		if len(vo) < c.params.MinVendorSample {
			continue
		}
		vAuto, vMargin, ok := c.sweep(vo)
		if !ok {
			continue
		}
		t := global
		t.AutoAccept = c.clampAuto(vAuto)
		t.MinMargin = c.clampMargin(vMargin)
		next.SetVendor(vendor, t)
		c.logger.Info("vendor thresholds calibrated",
			logging.String("vendor", string(vendor)),
			logging.Int("sample", len(vo)),
			logging.Float64("auto_accept", t.AutoAccept),
			logging.Float64("min_margin", t.MinMargin))
	}
	return next, nil
}

// sweep finds the lowest (score threshold, margin floor) pair whose
// auto-accept precision over the outcomes reaches the target.  Candidate
// cut points are the observed scores and margins themselves.
func (c *Calibrator) sweep(outcomes []DecisionOutcome) (auto, margin float64, ok bool) {
	scores := distinctAscending(outcomes, func(o DecisionOutcome) float64 { return o.Score })
	margins := distinctAscending(outcomes, func(o DecisionOutcome) float64 { return o.Margin })

	for _, s := range scores {
		if s < c.params.SafetyFloorAuto {
			continue
		}
		for _, m := range margins {
			if m < c.params.SafetyFloorMargin {
				continue
			}
			correct, total := 0, 0
			for _, o := range outcomes {
				if o.Score >= s && o.Margin >= m {
					total++
					if o.Correct {
						correct++
					}
				}
			}
			if total == 0 {
				continue
			}
			if float64(correct)/float64(total) >= c.params.TargetPrecision {
				return s, m, true
			}
		}
	}
	return 0, 0, false
}

func (c *Calibrator) clampAuto(v float64) float64 {
	if v < c.params.SafetyFloorAuto {
		c.logger.Warn("computed auto-accept threshold below safety floor",
			logging.Float64("computed", v), logging.Float64("floor", c.params.SafetyFloorAuto))
		return c.params.SafetyFloorAuto
	}
	return v
}

func (c *Calibrator) clampMargin(v float64) float64 {
	if v < c.params.SafetyFloorMargin {
		return c.params.SafetyFloorMargin
	}
	return v
}

func distinctAscending(outcomes []DecisionOutcome, get func(DecisionOutcome) float64) []float64 {
	seen := make(map[float64]struct{}, len(outcomes))
	for _, o := range outcomes {
		seen[get(o)] = struct{}{}
	}
	out := make([]float64, 0, len(seen))
	for v := range seen {
		out = append(out, v)
	}
	sort.Float64s(out)
	return out
}
