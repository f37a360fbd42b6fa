// Package kafka publishes resolver lifecycle events.  Downstream consumers
// (LIMS ingest pipelines, audit sinks, the review indexing worker) subscribe
// to these topics instead of polling Postgres.
package kafka

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/envlytics/analyte-resolver/pkg/errors"
	"github.com/envlytics/analyte-resolver/pkg/types/common"
)

const (
	TopicDecisionRecorded  = "decision.recorded"
	TopicDecisionValidated = "decision.validated"
	TopicDecisionCorrected = "decision.corrected"
	TopicSynonymPromoted   = "synonym.promoted"
	TopicSnapshotActivated = "corpus.snapshot_activated"
)

const (
	eventSource   = "analyte-resolver"
	schemaVersion = "1.0"
)

// EventEnvelope is the wire format shared by all resolver topics.
type EventEnvelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	Source        string          `json:"source"`
	Timestamp     time.Time       `json:"timestamp"`
	SchemaVersion string          `json:"schema_version"`
	Payload       json.RawMessage `json:"payload"`
}

// NewEnvelope wraps a payload for publishing.
func NewEnvelope(eventType string, payload interface{}) (*EventEnvelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeSerialization, "failed to marshal event payload")
	}
	return &EventEnvelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		Source:        eventSource,
		Timestamp:     time.Now().UTC(),
		SchemaVersion: schemaVersion,
		Payload:       raw,
	}, nil
}

// DecisionRecordedPayload announces a freshly persisted match decision.
type DecisionRecordedPayload struct {
	DecisionID       int64            `json:"decision_id"`
	InputText        string           `json:"input_text"`
	NormalizedText   string           `json:"normalized_text"`
	MatchedAnalyteID common.AnalyteID `json:"matched_analyte_id,omitempty"`
	Method           string           `json:"match_method"`
	ConfidenceScore  float64          `json:"confidence_score"`
	Margin           float64          `json:"margin"`
	Band             string           `json:"confidence_band"`
	Vendor           common.Vendor    `json:"lab_vendor,omitempty"`
	CorpusHash       string           `json:"corpus_snapshot_hash"`
	DecidedAt        time.Time        `json:"decision_timestamp"`
}

// DecisionValidatedPayload announces a reviewer verdict on a decision.
type DecisionValidatedPayload struct {
	DecisionID          int64            `json:"decision_id"`
	ValidatedAnalyteID  common.AnalyteID `json:"validated_analyte_id"`
	WasCorrection       bool             `json:"was_correction"`
	CorrectedDecisionID *int64           `json:"corrected_decision_id,omitempty"`
	Vendor              common.Vendor    `json:"lab_vendor,omitempty"`
	ValidatedAt         time.Time        `json:"validated_at"`
}

// SynonymPromotedPayload announces a harvested synonym entering the corpus.
type SynonymPromotedPayload struct {
	SynonymID  int64            `json:"synonym_id"`
	AnalyteID  common.AnalyteID `json:"analyte_id"`
	Synonym    string           `json:"synonym_norm"`
	Vendor     common.Vendor    `json:"lab_vendor,omitempty"`
	Confidence float64          `json:"confidence"`
	Source     string           `json:"harvest_source"`
	PromotedAt time.Time        `json:"promoted_at"`
}

// SnapshotActivatedPayload announces a corpus snapshot going live.
type SnapshotActivatedPayload struct {
	SnapshotID   common.ID `json:"snapshot_id"`
	Hash         string    `json:"hash"`
	AnalyteCount int       `json:"analyte_count"`
	SynonymCount int       `json:"synonym_count"`
	ActivatedAt  time.Time `json:"activated_at"`
}
