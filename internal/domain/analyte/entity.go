// Package analyte defines the canonical data model shared by every part of
// the resolver: analytes, synonyms, vendor variant history, match decisions,
// and corpus snapshots.
package analyte

import (
	"time"

	"github.com/envlytics/analyte-resolver/pkg/errors"
	"github.com/envlytics/analyte-resolver/pkg/types/common"
)

// ─────────────────────────────────────────────────────────────────────────────
// Enumerations
// ─────────────────────────────────────────────────────────────────────────────

// Type classifies an analyte.
type Type string

const (
	TypeSingleSubstance Type = "single_substance"
	TypeFractionOrGroup Type = "fraction_or_group"
	TypeSuite           Type = "suite"
	TypeParameter       Type = "parameter"
	TypeCalculated      Type = "calculated"
)

// Valid reports whether t is a known analyte type.
func (t Type) Valid() bool {
	switch t {
	case TypeSingleSubstance, TypeFractionOrGroup, TypeSuite, TypeParameter, TypeCalculated:
		return true
	}
	return false
}

// SynonymSource records where a synonym came from.
type SynonymSource string

const (
	SourceBootstrap        SynonymSource = "bootstrap_harvest"
	SourceValidatedRuntime SynonymSource = "validated_runtime"
	SourceLabObserved      SynonymSource = "edd_observed"
	SourceManual           SynonymSource = "manual_validation"
)

// ValidationConfidence grades a lab variant's validated mapping.
type ValidationConfidence string

const (
	ValidationHigh     ValidationConfidence = "HIGH"
	ValidationMedium   ValidationConfidence = "MEDIUM"
	ValidationLow      ValidationConfidence = "LOW"
	ValidationUnknown  ValidationConfidence = "UNKNOWN"
	ValidationUnstable ValidationConfidence = "UNSTABLE"
)

// ─────────────────────────────────────────────────────────────────────────────
// Entities
// ─────────────────────────────────────────────────────────────────────────────

// Analyte is a canonical regulated substance or group.  Immutable once
// created except by explicit curatorial edit; referenced by ID everywhere
// else and never deleted while referenced.
type Analyte struct {
	ID            common.AnalyteID `json:"analyte_id"`
	PreferredName string           `json:"preferred_name"`
	Type          Type             `json:"analyte_type"`
	CASNumber     string           `json:"cas_number,omitempty"`
	GroupCode     string           `json:"group_code,omitempty"`
	ChemicalGroup string           `json:"chemical_group,omitempty"`
	ParentID      common.AnalyteID `json:"parent_analyte_id,omitempty"`
	CreatedAt     time.Time        `json:"created_at"`
	UpdatedAt     time.Time        `json:"updated_at"`
}

// Validate checks the structural invariants of an Analyte.
func (a *Analyte) Validate() error {
	if err := a.ID.Validate(); err != nil {
		return errors.InvalidParam("analyte id is required").WithCause(err)
	}
	if a.PreferredName == "" {
		return errors.InvalidParam("analyte preferred_name is required")
	}
	if !a.Type.Valid() {
		return errors.InvalidParam("unknown analyte type " + string(a.Type))
	}
	return nil
}

// Synonym is one known textual form of an analyte's name, with provenance.
// Normalized text is unique per (vendor, analyte).  Synonyms are never
// physically deleted; deprecation drives Confidence to 0 so the audit trail
// survives.
type Synonym struct {
	ID                   int64            `json:"id"`
	AnalyteID            common.AnalyteID `json:"analyte_id"`
	Raw                  string           `json:"synonym_raw"`
	Normalized           string           `json:"synonym_norm"`
	Source               SynonymSource    `json:"harvest_source"`
	Confidence           float64          `json:"confidence"`
	Vendor               common.Vendor    `json:"lab_vendor,omitempty"`
	NormalizationVersion int              `json:"normalization_version"`
	CreatedAt            time.Time        `json:"created_at"`
}

// Validate checks the structural invariants of a Synonym.
func (s *Synonym) Validate() error {
	if err := s.AnalyteID.Validate(); err != nil {
		return errors.InvalidParam("synonym analyte_id is required").WithCause(err)
	}
	if s.Normalized == "" {
		return errors.InvalidParam("synonym normalized text is required")
	}
	if s.Confidence < 0 || s.Confidence > 1 {
		return errors.InvalidParam("synonym confidence out of [0,1]")
	}
	return nil
}

// Deprecated reports whether the synonym has been retired from matching.
func (s *Synonym) Deprecated() bool { return s.Confidence == 0 }

// LabVariant tracks how one vendor reports one normalized text: the current
// validated mapping, rolling frequency, and collision history.  Unique per
// (vendor, observed text).
type LabVariant struct {
	ID                   int64                `json:"id"`
	Vendor               common.Vendor        `json:"lab_vendor"`
	ObservedText         string               `json:"observed_text"`
	FrequencyCount       int                  `json:"frequency_count"`
	FirstSeen            time.Time            `json:"first_seen_date"`
	LastSeen             time.Time            `json:"last_seen_date"`
	CollisionCount       int                  `json:"collision_count"`
	LastCollision        *time.Time           `json:"last_collision_date,omitempty"`
	ValidatedAnalyteID   common.AnalyteID     `json:"validated_match_id,omitempty"`
	ValidationConfidence ValidationConfidence `json:"validation_confidence,omitempty"`
	NormalizationVersion int                  `json:"normalization_version"`
	CreatedAt            time.Time            `json:"created_at"`
}

// InCooldown reports whether the variant is inside the unstable cooldown
// window: its last collision happened less than cooldown ago.
func (v *LabVariant) InCooldown(now time.Time, cooldown time.Duration) bool {
	return v.LastCollision != nil && now.Sub(*v.LastCollision) < cooldown
}

// LabVariantConfirmation is one append-only validation event: a submission
// confirmed the variant as a specific analyte.  Unique per (variant,
// submission); never updated after insertion except for the
// valid-for-consensus flag, which collisions may clear.
type LabVariantConfirmation struct {
	ID                int64               `json:"id"`
	VariantID         int64               `json:"variant_id"`
	SubmissionID      common.SubmissionID `json:"submission_id"`
	ConfirmedAnalyte  common.AnalyteID    `json:"confirmed_analyte_id"`
	ConfirmedAt       time.Time           `json:"confirmed_at"`
	ValidForConsensus bool                `json:"valid_for_consensus"`
}

// MatchDecision is the immutable audit record of one resolution attempt,
// updated at most once when a human validates it.  It is the ground truth
// the threshold calibrator trains on.
type MatchDecision struct {
	ID                int64            `json:"id"`
	InputText         string           `json:"input_text"`
	NormalizedText    string           `json:"normalized_text"`
	MatchedAnalyteID  common.AnalyteID `json:"matched_analyte_id,omitempty"`
	Method            string           `json:"match_method"`
	ConfidenceScore   float64          `json:"confidence_score"`
	Margin            float64          `json:"margin"`
	Band              string           `json:"confidence_band"`
	Candidates        []RankedCandidate `json:"top_k_candidates"`
	SignalsUsed       map[string]float64 `json:"signals_used"`
	CrossMethodConflict bool           `json:"cross_method_conflict"`
	CorpusHash        string           `json:"corpus_snapshot_hash"`
	Vendor            common.Vendor    `json:"lab_vendor,omitempty"`
	DecidedAt         time.Time        `json:"decision_timestamp"`

	HumanValidated  bool   `json:"human_validated"`
	ValidationNotes string `json:"validation_notes,omitempty"`
	IsCorrected     bool   `json:"is_corrected"`
	CorrectionOf    *int64 `json:"correction_of,omitempty"`
	Ingested        bool   `json:"ingested"`
}

// RankedCandidate is one entry of a decision's ranked candidate list.
type RankedCandidate struct {
	AnalyteID common.AnalyteID `json:"analyte_id"`
	Score     float64          `json:"score"`
	Method    string           `json:"method"`
}

// CorpusSnapshot is the persisted metadata of one immutable index build.
// Exactly one snapshot is active per index type at a time.
type CorpusSnapshot struct {
	ID           common.ID `json:"id"`
	IndexType    string    `json:"index_type"` // "resolver"
	Hash         string    `json:"hash"`
	AnalyteCount int       `json:"analyte_count"`
	SynonymCount int       `json:"synonym_count"`
	Active       bool      `json:"active"`
	ArtifactPath string    `json:"artifact_path,omitempty"`
	BuiltAt      time.Time `json:"built_at"`
}
