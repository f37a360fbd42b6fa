// Package learning closes the feedback loop: validated synonyms flow back
// into the corpus, unresolved texts are clustered for review, and decision
// history recalibrates the confidence thresholds.
package learning

import (
	"context"
	"fmt"
	"time"
	"unicode"

	"github.com/envlytics/analyte-resolver/internal/domain/analyte"
	"github.com/envlytics/analyte-resolver/internal/domain/corpus"
	"github.com/envlytics/analyte-resolver/internal/domain/normalization"
	"github.com/envlytics/analyte-resolver/internal/infrastructure/monitoring/logging"
	"github.com/envlytics/analyte-resolver/pkg/errors"
	"github.com/envlytics/analyte-resolver/pkg/types/common"
)

const (
	// maxSynonymLength bounds raw synonym text accepted into the corpus.
	maxSynonymLength = 200

	// dualGateMargin is the cascade margin a validation must have carried
	// for fraction/group/suite analytes to accept a free-form synonym.
	dualGateMargin = 0.06

	confidenceCascadeConfirmed = 0.95
	confidenceManualOverride   = 0.70
)

// CapGate rate-limits global (vendor-less) synonym creation.  TryAcquire
// reports whether one more creation is allowed for the given day.
type CapGate interface {
	TryAcquire(ctx context.Context, day time.Time) (bool, error)
}

// Ingestor applies quality gates and writes validated synonyms back into
// the corpus.
type Ingestor struct {
	analytes   analyte.Repository
	synonyms   analyte.SynonymRepository
	provider   *corpus.Provider
	capGate    CapGate // nil disables the global daily cap
	normalizer *normalization.Normalizer
	logger     logging.Logger
	now        func() time.Time
}

// NewIngestor creates the synonym ingestion service.
func NewIngestor(analytes analyte.Repository, synonyms analyte.SynonymRepository, provider *corpus.Provider, capGate CapGate, logger logging.Logger) *Ingestor {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Ingestor{
		analytes:   analytes,
		synonyms:   synonyms,
		provider:   provider,
		capGate:    capGate,
		normalizer: normalization.NewNormalizer(),
		logger:     logger.Named("learning.ingest"),
		now:        time.Now,
	}
}

// IngestValidatedSynonym records a human-validated name for an analyte.
// Returns added=false for a duplicate of an existing (vendor, analyte,
// normalized text) synonym; gate failures are errors.  On success the
// active snapshot is flagged stale so the next rebuild picks the synonym
// up.
func (i *Ingestor) IngestValidatedSynonym(ctx context.Context, raw string, analyteID common.AnalyteID, vendor common.Vendor, cascadeConfirmed bool, cascadeMargin float64) (bool, error) {
	if err := i.checkText(raw); err != nil {
		return false, err
	}

	a, err := i.analytes.GetByID(ctx, analyteID)
	if err != nil {
		return false, err
	}
	// grouped analytes keep high precision: only an unambiguous cascade
	// pass may extend their synonym sets
	switch a.Type {
	case analyte.TypeFractionOrGroup, analyte.TypeSuite:
		if !cascadeConfirmed || cascadeMargin < dualGateMargin {
			return false, errors.New(errors.CodeInvalidParam,
				fmt.Sprintf("analyte type %s requires a cascade-confirmed validation with margin >= %.2f", a.Type, dualGateMargin))
		}
	}

	key := i.normalizer.Normalize(raw)
	if key.Primary == "" {
		return false, errors.InvalidParam("synonym text is empty after normalization")
	}

	existing, err := i.synonyms.GetByNormalized(ctx, key.Primary, vendor)
	if err != nil {
		return false, errors.Wrap(err, errors.CodeDatabaseError, "check synonym duplicate")
	}
	for _, s := range existing {
		if s.AnalyteID == analyteID && s.Vendor == vendor {
			return false, nil
		}
	}

	if vendor.IsGlobal() && i.capGate != nil {
		ok, err := i.capGate.TryAcquire(ctx, i.now())
		if err != nil {
			return false, errors.Wrap(err, errors.CodeCacheError, "daily cap check")
		}
		if !ok {
			return false, errors.New(errors.CodeDailyCapExceeded, "daily global synonym cap reached")
		}
	}

	confidence := confidenceManualOverride
	if cascadeConfirmed && cascadeMargin >= dualGateMargin {
		confidence = confidenceCascadeConfirmed
	}

	syn := &analyte.Synonym{
		AnalyteID:            analyteID,
		Raw:                  raw,
		Normalized:           key.Primary,
		Source:               analyte.SourceValidatedRuntime,
		Confidence:           confidence,
		Vendor:               vendor,
		NormalizationVersion: normalization.NormalizationVersion,
		CreatedAt:            i.now(),
	}
	if _, err := i.synonyms.Upsert(ctx, syn); err != nil {
		return false, errors.Wrap(err, errors.CodeDatabaseError, "insert synonym")
	}

	if i.provider != nil {
		i.provider.MarkStale()
	}
	i.logger.Info("synonym ingested",
		logging.String("analyte", analyteID.String()),
		logging.String("normalized", key.Primary),
		logging.String("vendor", string(vendor)),
		logging.Float64("confidence", confidence))
	return true, nil
}

// checkText enforces the length and character-set gates.
func (i *Ingestor) checkText(raw string) error {
	if raw == "" {
		return errors.New(errors.CodeEmptyObservedName, "synonym text is required")
	}
	if len(raw) > maxSynonymLength {
		return errors.Newf(errors.CodeInvalidParam, "synonym text exceeds %d bytes", maxSynonymLength)
	}
	hasLetter := false
	for _, r := range raw {
		if unicode.IsControl(r) {
			return errors.New(errors.CodeInvalidParam, "synonym text contains control characters")
		}
		if unicode.IsLetter(r) {
			hasLetter = true
		}
	}
	if !hasLetter {
		return errors.New(errors.CodeInvalidParam, "synonym text carries no letters")
	}
	return nil
}

// BulkItem is one row of a bulk ingestion request.
type BulkItem struct {
	Raw              string
	AnalyteID        common.AnalyteID
	Vendor           common.Vendor
	CascadeConfirmed bool
	CascadeMargin    float64
}

// BulkStats summarizes a bulk ingestion run.
type BulkStats struct {
	Added      int
	Duplicates int
	Rejected   int
}

// BulkIngest processes rows independently: a rejected row never aborts the
// rest.  The context is honored between rows.
func (i *Ingestor) BulkIngest(ctx context.Context, items []BulkItem) (BulkStats, error) {
	var stats BulkStats
	for _, item := range items {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		added, err := i.IngestValidatedSynonym(ctx, item.Raw, item.AnalyteID, item.Vendor, item.CascadeConfirmed, item.CascadeMargin)
		switch {
		case err != nil:
			stats.Rejected++
			i.logger.Warn("bulk row rejected",
				logging.String("analyte", item.AnalyteID.String()),
				logging.Err(err))
		case added:
			stats.Added++
		default:
			stats.Duplicates++
		}
	}
	return stats, nil
}
