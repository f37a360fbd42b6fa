// Package matching is the application service behind the resolve API: it
// runs the cascade, persists the decision audit row, caches hot lookups and
// fans the outcome out to Kafka and metrics.
package matching

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/envlytics/analyte-resolver/internal/domain/analyte"
	"github.com/envlytics/analyte-resolver/internal/domain/corpus"
	"github.com/envlytics/analyte-resolver/internal/domain/resolution"
	"github.com/envlytics/analyte-resolver/internal/infrastructure/database/redis"
	"github.com/envlytics/analyte-resolver/internal/infrastructure/messaging/kafka"
	"github.com/envlytics/analyte-resolver/internal/infrastructure/monitoring/logging"
	"github.com/envlytics/analyte-resolver/internal/infrastructure/monitoring/prometheus"
	"github.com/envlytics/analyte-resolver/pkg/errors"
	"github.com/envlytics/analyte-resolver/pkg/types/common"
)

const (
	cacheTTL       = 15 * time.Minute
	batchParallel  = 8
	cacheNamespace = "resolve"
)

// EventPublisher is the slice of the Kafka producer the service needs.
type EventPublisher interface {
	PublishDecisionRecorded(ctx context.Context, payload kafka.DecisionRecordedPayload) error
}

// Service resolves observed analyte names.
type Service interface {
	Resolve(ctx context.Context, input *ResolveInput) (*ResolveOutput, error)
	ResolveBatch(ctx context.Context, inputs []*ResolveInput) ([]*ResolveOutput, error)
}

// ResolveInput is one observed name to resolve.
type ResolveInput struct {
	Text   string
	Vendor common.Vendor
	// DryRun skips the decision audit row, used for exploratory lookups.
	DryRun bool
}

// ResolveOutput is the cascade outcome plus the persisted decision id
// (zero for dry runs).
type ResolveOutput struct {
	Result     *resolution.Result `json:"result"`
	DecisionID int64              `json:"decision_id,omitempty"`
}

type service struct {
	engine     *resolution.Engine
	provider   *corpus.Provider
	thresholds *resolution.ThresholdConfig
	decisions  analyte.DecisionRepository
	cache      redis.Cache // nil disables caching
	publisher  EventPublisher
	metrics    *prometheus.AppMetrics // nil disables metrics
	logger     logging.Logger
}

// NewService wires the resolve pipeline.  Cache, publisher and metrics are
// optional; a nil value disables that side effect.
func NewService(
	engine *resolution.Engine,
	provider *corpus.Provider,
	thresholds *resolution.ThresholdConfig,
	decisions analyte.DecisionRepository,
	cache redis.Cache,
	publisher EventPublisher,
	metrics *prometheus.AppMetrics,
	logger logging.Logger,
) Service {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &service{
		engine:     engine,
		provider:   provider,
		thresholds: thresholds,
		decisions:  decisions,
		cache:      cache,
		publisher:  publisher,
		metrics:    metrics,
		logger:     logger.Named("matching"),
	}
}

func (s *service) Resolve(ctx context.Context, input *ResolveInput) (*ResolveOutput, error) {
	if input == nil || strings.TrimSpace(input.Text) == "" {
		return nil, errors.New(errors.CodeEmptyObservedName, "observed name is required")
	}

	start := time.Now()
	result, err := s.resolveCached(ctx, input)
	if err != nil {
		return nil, err
	}

	out := &ResolveOutput{Result: result}
	if !input.DryRun {
		decision := decisionFromResult(result)
		if err := s.decisions.Insert(ctx, decision); err != nil {
			return nil, err
		}
		out.DecisionID = decision.ID
		s.publishRecorded(ctx, decision)
	}

	s.observe(result, time.Since(start))
	return out, nil
}

// ResolveBatch resolves inputs concurrently, preserving order.  One failed
// input fails the batch; rows are independent otherwise.
func (s *service) ResolveBatch(ctx context.Context, inputs []*ResolveInput) ([]*ResolveOutput, error) {
	outputs := make([]*ResolveOutput, len(inputs))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(batchParallel)
	for i, input := range inputs {
		i, input := i, input
		g.Go(func() error {
			out, err := s.Resolve(ctx, input)
			if err != nil {
				return err
			}
			outputs[i] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return outputs, nil
}

// resolveCached serves the engine result through the cache when one is
// wired.  The key includes the corpus hash so a snapshot swap invalidates
// every prior entry.
func (s *service) resolveCached(ctx context.Context, input *ResolveInput) (*resolution.Result, error) {
	if s.cache == nil {
		return s.engine.Resolve(ctx, input.Text, input.Vendor, s.thresholds)
	}

	key, ok := s.cacheKey(input)
	if !ok {
		return s.engine.Resolve(ctx, input.Text, input.Vendor, s.thresholds)
	}

	var result resolution.Result
	err := s.cache.GetOrSet(ctx, key, &result, cacheTTL, func(ctx context.Context) (interface{}, error) {
		if s.metrics != nil {
			s.metrics.RecordCacheAccess(cacheNamespace, false)
		}
		return s.engine.Resolve(ctx, input.Text, input.Vendor, s.thresholds)
	})
	if err != nil {
		// Cache trouble must not take resolution down.
		s.logger.Warn("cache bypass", logging.Err(err))
		return s.engine.Resolve(ctx, input.Text, input.Vendor, s.thresholds)
	}
	return &result, nil
}

func (s *service) cacheKey(input *ResolveInput) (string, bool) {
	snap, err := s.provider.Active()
	if err != nil {
		return "", false
	}
	sum := sha256.Sum256([]byte(string(input.Vendor) + "\x00" + input.Text))
	return cacheNamespace + ":" + snap.Hash + ":" + hex.EncodeToString(sum[:16]), true
}

func (s *service) publishRecorded(ctx context.Context, d *analyte.MatchDecision) {
	if s.publisher == nil {
		return
	}
	err := s.publisher.PublishDecisionRecorded(ctx, kafka.DecisionRecordedPayload{
		DecisionID:       d.ID,
		InputText:        d.InputText,
		NormalizedText:   d.NormalizedText,
		MatchedAnalyteID: d.MatchedAnalyteID,
		Method:           d.Method,
		ConfidenceScore:  d.ConfidenceScore,
		Margin:           d.Margin,
		Band:             d.Band,
		Vendor:           d.Vendor,
		CorpusHash:       d.CorpusHash,
		DecidedAt:        d.DecidedAt,
	})
	if s.metrics != nil {
		s.metrics.RecordEventPublished(kafka.TopicDecisionRecorded, err)
	}
	if err != nil {
		// The decision row is already durable; the event stream catches up
		// on the next backfill.
		s.logger.Warn("decision event publish failed",
			logging.Int64("decision_id", d.ID),
			logging.Err(err),
		)
	}
}

func (s *service) observe(r *resolution.Result, elapsed time.Duration) {
	if s.metrics == nil {
		return
	}
	method := "NONE"
	score := 0.0
	if r.Best != nil {
		method = string(r.Best.Method)
		score = r.Best.Score
	}
	s.metrics.RecordResolution(string(r.Band), method, score, r.Margin, elapsed)
	if r.CrossMethodConflict {
		s.metrics.MethodConflictsTotal.WithLabelValues().Inc()
	}
	if _, boosted := r.SignalsUsed[string(resolution.MethodVendorPrior)]; boosted {
		s.metrics.VendorBoostsTotal.WithLabelValues(string(r.Vendor)).Inc()
	}
}

// decisionFromResult projects a cascade result into its audit row.
func decisionFromResult(r *resolution.Result) *analyte.MatchDecision {
	d := &analyte.MatchDecision{
		InputText:           r.Input,
		NormalizedText:      r.Normalized.Primary,
		Method:              "NONE",
		Margin:              r.Margin,
		Band:                string(r.Band),
		SignalsUsed:         r.SignalsUsed,
		CrossMethodConflict: r.CrossMethodConflict,
		CorpusHash:          r.CorpusHash,
		Vendor:              r.Vendor,
		DecidedAt:           time.Now().UTC(),
	}
	if r.Best != nil {
		d.MatchedAnalyteID = r.Best.AnalyteID
		d.Method = string(r.Best.Method)
		d.ConfidenceScore = r.Best.Score
	}
	for _, c := range r.Candidates {
		d.Candidates = append(d.Candidates, analyte.RankedCandidate{
			AnalyteID: c.AnalyteID,
			Score:     c.Score,
			Method:    string(c.Method),
		})
	}
	return d
}
