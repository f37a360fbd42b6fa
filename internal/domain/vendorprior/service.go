// Package vendorprior maintains per-vendor lab variant history and serves
// the gated, decayed prior the resolution engine boosts with.
package vendorprior

import (
	"context"
	"time"

	"github.com/envlytics/analyte-resolver/internal/domain/analyte"
	"github.com/envlytics/analyte-resolver/internal/domain/resolution"
	"github.com/envlytics/analyte-resolver/internal/infrastructure/monitoring/logging"
	"github.com/envlytics/analyte-resolver/pkg/errors"
	"github.com/envlytics/analyte-resolver/pkg/types/common"
)

// Params controls boost gating and temporal decay.
type Params struct {
	// DecayWindow is the age at which the decay bottoms out.
	DecayWindow time.Duration
	// DecayLambda is the maximum fraction shaved off a fully aged prior.
	DecayLambda float64
	// DecayFloor is the lowest decay multiplier.
	DecayFloor float64
	// MaxCollisions is the highest collision count at which a variant still
	// boosts; above it the mapping is marked unstable.
	MaxCollisions int
	// UnstableCooldown suppresses boosting for this long after a collision.
	UnstableCooldown time.Duration
}

// DefaultParams returns the uncalibrated gating parameters.
func DefaultParams() Params {
	return Params{
		DecayWindow:      180 * 24 * time.Hour,
		DecayLambda:      0.10,
		DecayFloor:       0.90,
		MaxCollisions:    2,
		UnstableCooldown: 7 * 24 * time.Hour,
	}
}

// Service is the vendor-conditioned prior layer.  All read-modify-write
// races are resolved by the repository's transactional upserts, not
// in-process locks.
type Service struct {
	variants      analyte.VariantRepository
	confirmations analyte.ConfirmationRepository
	params        Params
	logger        logging.Logger
	now           func() time.Time
}

// NewService creates the prior layer service.
func NewService(variants analyte.VariantRepository, confirmations analyte.ConfirmationRepository, params Params, logger logging.Logger) *Service {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Service{
		variants:      variants,
		confirmations: confirmations,
		params:        params,
		logger:        logger.Named("vendorprior"),
		now:           time.Now,
	}
}

// RecordObservation registers one validated sighting of (vendor, observed
// text) mapped to matchedAnalyte.  A variant is created on first sight.
// When the stored validated analyte differs, the collision counter and date
// are bumped before the mapping is overwritten (last-validated-wins), and
// confirmations of the displaced analyte stop counting toward consensus.
func (s *Service) RecordObservation(ctx context.Context, vendor common.Vendor, observed string, matched common.AnalyteID, conf analyte.ValidationConfidence) (*analyte.LabVariant, error) {
	if observed == "" {
		return nil, errors.InvalidParam("observed text is required")
	}
	now := s.now()
	v, err := s.variants.UpsertObservation(ctx, vendor, observed, now)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeDatabaseError, "upsert lab variant")
	}
	if matched == "" {
		return v, nil
	}

	if v.ValidatedAnalyteID != "" && v.ValidatedAnalyteID != matched {
		if err := s.variants.RecordCollision(ctx, v.ID, now); err != nil {
			return nil, errors.Wrap(err, errors.CodeDatabaseError, "record collision")
		}
		if _, err := s.confirmations.InvalidateForConsensus(ctx, v.ID, matched); err != nil {
			return nil, errors.Wrap(err, errors.CodeDatabaseError, "invalidate consensus")
		}
		v.CollisionCount++
		t := now
		v.LastCollision = &t
		s.logger.Warn("lab variant collision",
			logging.String("vendor", string(vendor)),
			logging.String("observed", observed),
			logging.String("previous", string(v.ValidatedAnalyteID)),
			logging.String("new", string(matched)),
			logging.Int("collisions", v.CollisionCount))
		if v.CollisionCount > s.params.MaxCollisions {
			conf = analyte.ValidationUnstable
		}
	}

	if err := s.variants.SetValidation(ctx, v.ID, matched, conf); err != nil {
		return nil, errors.Wrap(err, errors.CodeDatabaseError, "set validation")
	}
	v.ValidatedAnalyteID = matched
	v.ValidationConfidence = conf
	return v, nil
}

// RecordConfirmation appends one immutable confirmation of a variant by a
// submission.  A submission confirms a variant at most once; a duplicate is
// reported as added=false, never as an error.
func (s *Service) RecordConfirmation(ctx context.Context, vendor common.Vendor, observed string, submission common.SubmissionID, confirmed common.AnalyteID) (bool, error) {
	v, err := s.variants.Get(ctx, vendor, observed)
	if err != nil {
		if errors.IsCode(err, errors.CodeVariantNotFound) {
			if v, err = s.variants.UpsertObservation(ctx, vendor, observed, s.now()); err != nil {
				return false, errors.Wrap(err, errors.CodeDatabaseError, "create lab variant")
			}
		} else {
			return false, errors.Wrap(err, errors.CodeDatabaseError, "load lab variant")
		}
	}
	added, err := s.confirmations.Insert(ctx, &analyte.LabVariantConfirmation{
		VariantID:         v.ID,
		SubmissionID:      submission,
		ConfirmedAnalyte:  confirmed,
		ConfirmedAt:       s.now(),
		ValidForConsensus: true,
	})
	if err != nil {
		return false, errors.Wrap(err, errors.CodeDatabaseError, "insert confirmation")
	}
	return added, nil
}

// ConsensusStrength counts the distinct submissions still agreeing with the
// variant's current mapping, discounted by its collision count.  Never
// negative.
func (s *Service) ConsensusStrength(ctx context.Context, v *analyte.LabVariant) (int, error) {
	if v.ValidatedAnalyteID == "" {
		return 0, nil
	}
	confs, err := s.confirmations.ListByVariant(ctx, v.ID)
	if err != nil {
		return 0, errors.Wrap(err, errors.CodeDatabaseError, "list confirmations")
	}
	seen := make(map[common.SubmissionID]struct{})
	for _, c := range confs {
		if c.ValidForConsensus && c.ConfirmedAnalyte == v.ValidatedAnalyteID {
			seen[c.SubmissionID] = struct{}{}
		}
	}
	n := len(seen) - v.CollisionCount
	if n < 0 {
		n = 0
	}
	return n, nil
}

// Lookup implements the resolution engine's PriorSource: it returns the
// boostable prior for (vendor, normalized text), or nil when the variant is
// unknown, unvalidated, too collision-prone, cooling down after a
// collision, or without consensus.
func (s *Service) Lookup(ctx context.Context, vendor common.Vendor, normalized string) (*resolution.Prior, error) {
	v, err := s.variants.Get(ctx, vendor, normalized)
	if err != nil {
		if errors.IsCode(err, errors.CodeVariantNotFound) {
			return nil, nil
		}
		return nil, errors.Wrap(err, errors.CodeDatabaseError, "load lab variant")
	}
	if v.ValidatedAnalyteID == "" {
		return nil, nil
	}
	if v.CollisionCount > s.params.MaxCollisions {
		return nil, nil
	}
	if v.InCooldown(s.now(), s.params.UnstableCooldown) {
		return nil, nil
	}
	consensus, err := s.ConsensusStrength(ctx, v)
	if err != nil {
		return nil, err
	}
	if consensus == 0 {
		return nil, nil
	}
	return &resolution.Prior{
		AnalyteID: v.ValidatedAnalyteID,
		Consensus: consensus,
		Decay:     s.decay(v),
	}, nil
}

// decay computes the temporal confidence multiplier
// max(floor, 1 − λ·min(1, age/window)) from the variant's last sighting.
func (s *Service) decay(v *analyte.LabVariant) float64 {
	age := s.now().Sub(v.LastSeen)
	if age < 0 {
		age = 0
	}
	frac := float64(age) / float64(s.params.DecayWindow)
	if frac > 1 {
		frac = 1
	}
	d := 1 - s.params.DecayLambda*frac
	if d < s.params.DecayFloor {
		d = s.params.DecayFloor
	}
	return d
}
