package analyte

import (
	"context"
	"time"

	"github.com/envlytics/analyte-resolver/pkg/types/common"
)

// SynonymFilter restricts synonym scans.
type SynonymFilter struct {
	AnalyteID     common.AnalyteID
	Vendor        common.Vendor
	Source        SynonymSource
	MinConfidence float64
	Pagination    common.Pagination
}

// DecisionFilter restricts decision scans.
type DecisionFilter struct {
	Vendor         common.Vendor
	Band           string
	HumanValidated *bool
	Ingested       *bool
	Range          common.DateRange
	Pagination     common.Pagination
}

// Repository reads and writes canonical analytes.
type Repository interface {
	GetByID(ctx context.Context, id common.AnalyteID) (*Analyte, error)
	GetByCAS(ctx context.Context, cas string) (*Analyte, error)
	List(ctx context.Context, p common.Pagination) ([]*Analyte, int64, error)
	Create(ctx context.Context, a *Analyte) error
	Update(ctx context.Context, a *Analyte) error
	Count(ctx context.Context) (int64, error)
}

// SynonymRepository reads and writes the synonym corpus.  Upsert keys on
// (analyte_id, synonym_norm, lab_vendor); duplicates update confidence
// instead of inserting.
type SynonymRepository interface {
	GetByNormalized(ctx context.Context, norm string, vendor common.Vendor) ([]*Synonym, error)
	ListByAnalyte(ctx context.Context, id common.AnalyteID) ([]*Synonym, error)
	List(ctx context.Context, f SynonymFilter) ([]*Synonym, int64, error)
	Upsert(ctx context.Context, s *Synonym) (created bool, err error)
	Deprecate(ctx context.Context, id int64) error
	ScanAll(ctx context.Context, fn func(*Synonym) error) error
	Count(ctx context.Context) (int64, error)
}

// VariantRepository tracks per-vendor observed texts.  UpsertObservation
// keys on (lab_vendor, observed_text) and bumps frequency and last-seen on
// conflict.
type VariantRepository interface {
	Get(ctx context.Context, vendor common.Vendor, observed string) (*LabVariant, error)
	GetByID(ctx context.Context, id int64) (*LabVariant, error)
	UpsertObservation(ctx context.Context, vendor common.Vendor, observed string, seen time.Time) (*LabVariant, error)
	RecordCollision(ctx context.Context, id int64, at time.Time) error
	SetValidation(ctx context.Context, id int64, analyteID common.AnalyteID, conf ValidationConfidence) error
	ListUnvalidated(ctx context.Context, vendor common.Vendor, p common.Pagination) ([]*LabVariant, int64, error)
	CountValidatedByVendor(ctx context.Context, vendor common.Vendor) (int64, error)
}

// ConfirmationRepository stores the append-only confirmation ledger.
type ConfirmationRepository interface {
	// Insert adds one confirmation; returns created=false when the
	// (variant, submission) pair already exists.
	Insert(ctx context.Context, c *LabVariantConfirmation) (created bool, err error)
	ListByVariant(ctx context.Context, variantID int64) ([]*LabVariantConfirmation, error)
	// InvalidateForConsensus clears valid_for_consensus on every
	// confirmation of the variant that names a different analyte than the
	// one given.
	InvalidateForConsensus(ctx context.Context, variantID int64, keep common.AnalyteID) (int64, error)
}

// DecisionRepository stores the append-only match decision log.
type DecisionRepository interface {
	Insert(ctx context.Context, d *MatchDecision) error
	GetByID(ctx context.Context, id int64) (*MatchDecision, error)
	List(ctx context.Context, f DecisionFilter) ([]*MatchDecision, int64, error)
	// AttachValidation records the one permitted human validation update.
	AttachValidation(ctx context.Context, id int64, validatedID common.AnalyteID, notes string) (*MatchDecision, error)
	// InsertCorrection appends a corrected decision linked to the original
	// and flags the original as corrected, in one transaction.
	InsertCorrection(ctx context.Context, original int64, corrected *MatchDecision) error
	// ListValidatedSince returns human-validated decisions for calibration.
	ListValidatedSince(ctx context.Context, since time.Time, vendor common.Vendor) ([]*MatchDecision, error)
	MarkIngested(ctx context.Context, ids []int64) error
}

// SnapshotRepository stores corpus snapshot metadata.
type SnapshotRepository interface {
	Insert(ctx context.Context, s *CorpusSnapshot) error
	Activate(ctx context.Context, id common.ID) error
	GetActive(ctx context.Context, indexType string) (*CorpusSnapshot, error)
	List(ctx context.Context, indexType string, p common.Pagination) ([]*CorpusSnapshot, error)
}
