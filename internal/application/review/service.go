// Package review is the application service behind the human review
// workflow: queue browsing, validation verdicts and the downstream learning
// side effects a verdict triggers.
package review

import (
	"context"
	"time"

	"github.com/envlytics/analyte-resolver/internal/domain/analyte"
	"github.com/envlytics/analyte-resolver/internal/domain/learning"
	"github.com/envlytics/analyte-resolver/internal/domain/resolution"
	"github.com/envlytics/analyte-resolver/internal/domain/vendorprior"
	"github.com/envlytics/analyte-resolver/internal/infrastructure/messaging/kafka"
	"github.com/envlytics/analyte-resolver/internal/infrastructure/monitoring/logging"
	"github.com/envlytics/analyte-resolver/internal/infrastructure/monitoring/prometheus"
	"github.com/envlytics/analyte-resolver/internal/infrastructure/search/opensearch"
	"github.com/envlytics/analyte-resolver/pkg/errors"
	"github.com/envlytics/analyte-resolver/pkg/types/common"
)

// methodHuman marks decision rows appended by a reviewer correction rather
// than the cascade.
const methodHuman = "HUMAN"

// EventPublisher is the slice of the Kafka producer the service needs.
type EventPublisher interface {
	PublishDecisionValidated(ctx context.Context, payload kafka.DecisionValidatedPayload) error
	PublishSynonymPromoted(ctx context.Context, payload kafka.SynonymPromotedPayload) error
}

// QueueSearcher serves review queue queries from the search index.
type QueueSearcher interface {
	Search(ctx context.Context, q opensearch.ReviewQuery) ([]opensearch.ReviewHit, int64, error)
	BandCounts(ctx context.Context) (map[string]int64, error)
}

// DecisionIndexer keeps the search projection in step with validated rows.
type DecisionIndexer interface {
	IndexDecision(ctx context.Context, d *analyte.MatchDecision) error
}

// Service drives the review queue and the validation verdict pipeline.
type Service interface {
	Validate(ctx context.Context, input *ValidateInput) (*ValidateOutput, error)
	Queue(ctx context.Context, input *QueueInput) (*QueueOutput, error)
	BandSummary(ctx context.Context) (map[string]int64, error)
	ClusterUnknowns(ctx context.Context, input *ClusterInput) ([]learning.Cluster, error)
}

// ValidateInput is one reviewer verdict on a decision.
type ValidateInput struct {
	DecisionID         int64
	ValidatedAnalyteID common.AnalyteID
	SubmissionID       common.SubmissionID
	Notes              string
}

// ValidateOutput reports what the verdict changed.
type ValidateOutput struct {
	Decision            *analyte.MatchDecision `json:"decision"`
	Confirmed           bool                   `json:"confirmed"`
	CorrectedDecisionID *int64                 `json:"corrected_decision_id,omitempty"`
	SynonymAdded        bool                   `json:"synonym_added"`
}

// QueueInput filters the review queue.
type QueueInput struct {
	Text   string
	Vendor common.Vendor
	Band   string
	Page   common.Pagination
}

// QueueItem is one pending decision, from either the search index or the
// database fallback.  Score is zero on the fallback path.
type QueueItem struct {
	DecisionID          int64            `json:"decision_id"`
	InputText           string           `json:"input_text"`
	NormalizedText      string           `json:"normalized_text"`
	MatchedAnalyteID    common.AnalyteID `json:"matched_analyte_id,omitempty"`
	Method              string           `json:"match_method"`
	ConfidenceScore     float64          `json:"confidence_score"`
	Margin              float64          `json:"margin"`
	Band                string           `json:"confidence_band"`
	CrossMethodConflict bool             `json:"cross_method_conflict"`
	Vendor              common.Vendor    `json:"lab_vendor,omitempty"`
	DecidedAt           time.Time        `json:"decision_timestamp"`
	Score               float64          `json:"relevance_score,omitempty"`
}

// QueueOutput is one page of the review queue.
type QueueOutput struct {
	Items []QueueItem `json:"items"`
	Total int64       `json:"total"`
}

// ClusterInput selects which unresolved names to cluster.
type ClusterInput struct {
	Vendor    common.Vendor
	Range     common.DateRange
	Threshold float64
}

type service struct {
	decisions analyte.DecisionRepository
	synonyms  analyte.SynonymRepository
	priors    *vendorprior.Service
	ingestor  *learning.Ingestor
	searcher  QueueSearcher   // nil falls back to the database
	indexer   DecisionIndexer // nil skips projection updates
	publisher EventPublisher
	metrics   *prometheus.AppMetrics
	logger    logging.Logger
	now       func() time.Time
}

// NewService wires the review workflow.  Searcher, indexer, publisher and
// metrics are optional; a nil value disables that integration.
func NewService(
	decisions analyte.DecisionRepository,
	synonyms analyte.SynonymRepository,
	priors *vendorprior.Service,
	ingestor *learning.Ingestor,
	searcher QueueSearcher,
	indexer DecisionIndexer,
	publisher EventPublisher,
	metrics *prometheus.AppMetrics,
	logger logging.Logger,
) Service {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &service{
		decisions: decisions,
		synonyms:  synonyms,
		priors:    priors,
		ingestor:  ingestor,
		searcher:  searcher,
		indexer:   indexer,
		publisher: publisher,
		metrics:   metrics,
		logger:    logger.Named("review"),
		now:       time.Now,
	}
}

// Validate applies a reviewer verdict.  A verdict naming the cascade's own
// match confirms the decision; any other analyte corrects it, which appends
// a linked human decision row.  Either way the verdict feeds the vendor
// prior and the synonym harvest.
func (s *service) Validate(ctx context.Context, input *ValidateInput) (*ValidateOutput, error) {
	if input == nil || input.ValidatedAnalyteID == "" {
		return nil, errors.InvalidParam("validated analyte id is required")
	}

	d, err := s.decisions.GetByID(ctx, input.DecisionID)
	if err != nil {
		return nil, err
	}
	confirmed := d.MatchedAnalyteID != "" && d.MatchedAnalyteID == input.ValidatedAnalyteID

	updated, err := s.decisions.AttachValidation(ctx, input.DecisionID, input.ValidatedAnalyteID, input.Notes)
	if err != nil {
		return nil, err
	}

	out := &ValidateOutput{Decision: updated, Confirmed: confirmed}
	if !confirmed {
		corrected := &analyte.MatchDecision{
			InputText:        d.InputText,
			NormalizedText:   d.NormalizedText,
			MatchedAnalyteID: input.ValidatedAnalyteID,
			Method:           methodHuman,
			ConfidenceScore:  1.0,
			Margin:           1.0,
			Band:             string(resolution.BandAutoAccept),
			CorpusHash:       d.CorpusHash,
			Vendor:           d.Vendor,
			DecidedAt:        s.now().UTC(),
			HumanValidated:   true,
		}
		if err := s.decisions.InsertCorrection(ctx, d.ID, corrected); err != nil {
			return nil, err
		}
		out.CorrectedDecisionID = &corrected.ID
	}

	s.learnFromVerdict(ctx, d, input, confirmed, out)
	s.reindex(ctx, updated)
	s.publishValidated(ctx, d, input, confirmed, out.CorrectedDecisionID)
	if s.metrics != nil {
		s.metrics.RecordValidation(!confirmed)
	}
	return out, nil
}

// learnFromVerdict runs the vendor prior and synonym harvest side effects.
// Failures here never fail the verdict; the decision row is already durable
// and the next validation retries the learning path.
func (s *service) learnFromVerdict(ctx context.Context, d *analyte.MatchDecision, input *ValidateInput, confirmed bool, out *ValidateOutput) {
	if s.priors != nil && !d.Vendor.IsGlobal() {
		// Variants are keyed on normalized text; the engine's prior lookup
		// queries with the normalized key, so raw text would never be found.
		if _, err := s.priors.RecordObservation(ctx, d.Vendor, d.NormalizedText, input.ValidatedAnalyteID, analyte.ValidationHigh); err != nil {
			s.logger.Warn("vendor prior observation failed",
				logging.Int64("decision_id", d.ID), logging.Err(err))
		}
		if input.SubmissionID != 0 {
			if _, err := s.priors.RecordConfirmation(ctx, d.Vendor, d.NormalizedText, input.SubmissionID, input.ValidatedAnalyteID); err != nil {
				s.logger.Warn("vendor prior confirmation failed",
					logging.Int64("decision_id", d.ID), logging.Err(err))
			}
		}
	}

	if s.ingestor == nil {
		return
	}
	added, err := s.ingestor.IngestValidatedSynonym(ctx, d.InputText, input.ValidatedAnalyteID, d.Vendor, confirmed, d.Margin)
	if err != nil {
		s.logger.Warn("synonym harvest rejected",
			logging.Int64("decision_id", d.ID), logging.Err(err))
		if s.metrics != nil && errors.IsCode(err, errors.CodeDailyCapExceeded) {
			s.metrics.SynonymCapRejections.WithLabelValues().Inc()
		}
		return
	}
	out.SynonymAdded = added
	if added {
		s.publishPromoted(ctx, d, input.ValidatedAnalyteID)
	}
}

// reindex pushes the validated row into the search projection right away.
// New decisions are indexed off the event stream, but a stale validated row
// would resurface a handled item in the queue, so this one is synchronous.
func (s *service) reindex(ctx context.Context, d *analyte.MatchDecision) {
	if s.indexer == nil {
		return
	}
	if err := s.indexer.IndexDecision(ctx, d); err != nil {
		s.logger.Warn("decision reindex failed",
			logging.Int64("decision_id", d.ID), logging.Err(err))
	}
}

// publishPromoted looks the freshly written synonym back up so the event
// carries its row id.
func (s *service) publishPromoted(ctx context.Context, d *analyte.MatchDecision, analyteID common.AnalyteID) {
	if s.metrics != nil {
		s.metrics.SynonymPromotionsTotal.WithLabelValues(string(analyte.SourceValidatedRuntime)).Inc()
	}
	if s.publisher == nil {
		return
	}
	payload := kafka.SynonymPromotedPayload{
		AnalyteID:  analyteID,
		Synonym:    d.NormalizedText,
		Vendor:     d.Vendor,
		Source:     string(analyte.SourceValidatedRuntime),
		PromotedAt: s.now().UTC(),
	}
	if rows, err := s.synonyms.GetByNormalized(ctx, d.NormalizedText, d.Vendor); err == nil {
		for _, row := range rows {
			if row.AnalyteID == analyteID && row.Vendor == d.Vendor {
				payload.SynonymID = row.ID
				payload.Confidence = row.Confidence
				break
			}
		}
	}
	err := s.publisher.PublishSynonymPromoted(ctx, payload)
	if s.metrics != nil {
		s.metrics.RecordEventPublished(kafka.TopicSynonymPromoted, err)
	}
	if err != nil {
		s.logger.Warn("synonym event publish failed", logging.Err(err))
	}
}

func (s *service) publishValidated(ctx context.Context, d *analyte.MatchDecision, input *ValidateInput, confirmed bool, correctedID *int64) {
	if s.publisher == nil {
		return
	}
	err := s.publisher.PublishDecisionValidated(ctx, kafka.DecisionValidatedPayload{
		DecisionID:          d.ID,
		ValidatedAnalyteID:  input.ValidatedAnalyteID,
		WasCorrection:       !confirmed,
		CorrectedDecisionID: correctedID,
		Vendor:              d.Vendor,
		ValidatedAt:         s.now().UTC(),
	})
	if s.metrics != nil {
		topic := kafka.TopicDecisionValidated
		if !confirmed {
			topic = kafka.TopicDecisionCorrected
		}
		s.metrics.RecordEventPublished(topic, err)
	}
	if err != nil {
		s.logger.Warn("validation event publish failed",
			logging.Int64("decision_id", d.ID), logging.Err(err))
	}
}

// Queue lists pending decisions.  The search index serves text relevance
// and filtering; when it is not wired the database answers with the same
// filters minus free-text search.
func (s *service) Queue(ctx context.Context, input *QueueInput) (*QueueOutput, error) {
	if input == nil {
		input = &QueueInput{}
	}
	input.Page.Normalize()

	if s.searcher != nil {
		return s.queueFromIndex(ctx, input)
	}
	return s.queueFromDatabase(ctx, input)
}

func (s *service) queueFromIndex(ctx context.Context, input *QueueInput) (*QueueOutput, error) {
	pending := false
	hits, total, err := s.searcher.Search(ctx, opensearch.ReviewQuery{
		Text:           input.Text,
		Vendor:         input.Vendor,
		Band:           input.Band,
		HumanValidated: &pending,
		Page:           input.Page,
	})
	if err != nil {
		s.logger.Warn("queue search failed, falling back to database", logging.Err(err))
		return s.queueFromDatabase(ctx, input)
	}

	out := &QueueOutput{Total: total, Items: make([]QueueItem, 0, len(hits))}
	for _, h := range hits {
		out.Items = append(out.Items, QueueItem{
			DecisionID:          h.Document.ID,
			InputText:           h.Document.InputText,
			NormalizedText:      h.Document.NormalizedText,
			MatchedAnalyteID:    common.AnalyteID(h.Document.MatchedAnalyteID),
			Method:              h.Document.Method,
			ConfidenceScore:     h.Document.ConfidenceScore,
			Margin:              h.Document.Margin,
			Band:                h.Document.Band,
			CrossMethodConflict: h.Document.CrossMethodConflict,
			Vendor:              common.Vendor(h.Document.Vendor),
			DecidedAt:           h.Document.DecidedAt,
			Score:               h.Score,
		})
	}
	return out, nil
}

func (s *service) queueFromDatabase(ctx context.Context, input *QueueInput) (*QueueOutput, error) {
	band := input.Band
	if band == "" {
		band = string(resolution.BandReview)
	}
	pending := false
	rows, total, err := s.decisions.List(ctx, analyte.DecisionFilter{
		Vendor:         input.Vendor,
		Band:           band,
		HumanValidated: &pending,
		Pagination:     input.Page,
	})
	if err != nil {
		return nil, err
	}

	out := &QueueOutput{Total: total, Items: make([]QueueItem, 0, len(rows))}
	for _, d := range rows {
		out.Items = append(out.Items, QueueItem{
			DecisionID:          d.ID,
			InputText:           d.InputText,
			NormalizedText:      d.NormalizedText,
			MatchedAnalyteID:    d.MatchedAnalyteID,
			Method:              d.Method,
			ConfidenceScore:     d.ConfidenceScore,
			Margin:              d.Margin,
			Band:                d.Band,
			CrossMethodConflict: d.CrossMethodConflict,
			Vendor:              d.Vendor,
			DecidedAt:           d.DecidedAt,
		})
	}
	return out, nil
}

// BandSummary counts pending decisions per confidence band.
func (s *service) BandSummary(ctx context.Context) (map[string]int64, error) {
	if s.searcher != nil {
		counts, err := s.searcher.BandCounts(ctx)
		if err == nil {
			return counts, nil
		}
		s.logger.Warn("band counts search failed, falling back to database", logging.Err(err))
	}

	pending := false
	counts := make(map[string]int64, 3)
	for _, band := range []resolution.Band{resolution.BandAutoAccept, resolution.BandReview, resolution.BandReject} {
		_, total, err := s.decisions.List(ctx, analyte.DecisionFilter{
			Band:           string(band),
			HumanValidated: &pending,
			Pagination:     common.Pagination{Page: 1, PageSize: 1},
		})
		if err != nil {
			return nil, err
		}
		counts[string(band)] = total
	}
	return counts, nil
}

// ClusterUnknowns groups unresolved rejected names for batch review, most
// frequent first.
func (s *service) ClusterUnknowns(ctx context.Context, input *ClusterInput) ([]learning.Cluster, error) {
	if input == nil {
		input = &ClusterInput{}
	}
	threshold := input.Threshold
	if threshold == 0 {
		threshold = learning.DefaultClusterThreshold
	}

	pending := false
	rows, _, err := s.decisions.List(ctx, analyte.DecisionFilter{
		Vendor:         input.Vendor,
		Band:           string(resolution.BandReject),
		HumanValidated: &pending,
		Range:          input.Range,
		Pagination:     common.Pagination{Page: 1, PageSize: 500},
	})
	if err != nil {
		return nil, err
	}

	freq := make(map[string]int, len(rows))
	for _, d := range rows {
		freq[d.NormalizedText]++
	}
	texts := make([]learning.WeightedText, 0, len(freq))
	for text, n := range freq {
		texts = append(texts, learning.WeightedText{Text: text, Frequency: n})
	}
	return learning.ClusterSimilarUnknowns(texts, threshold), nil
}
