package resolution

import (
	"context"
	"sort"
	"strings"

	"github.com/envlytics/analyte-resolver/internal/domain/corpus"
	"github.com/envlytics/analyte-resolver/internal/domain/normalization"
	"github.com/envlytics/analyte-resolver/internal/infrastructure/monitoring/logging"
	"github.com/envlytics/analyte-resolver/pkg/types/common"
)

// semanticTopK bounds the nearest-neighbor list considered per query.
const semanticTopK = 10

// fullBoostConsensus is the confirmation count at which the vendor prior
// boost reaches its configured maximum.
const fullBoostConsensus = 3

// Prior is a vendor's validated mapping for a normalized text, already
// gated by the prior layer (collision and cooldown checks applied, temporal
// decay computed).
type Prior struct {
	AnalyteID common.AnalyteID
	Consensus int
	Decay     float64 // in (0,1], 1 = fresh
}

// PriorSource looks up the usable vendor prior for a normalized text.
// Returns nil without error when no boostable prior exists.
type PriorSource interface {
	Lookup(ctx context.Context, vendor common.Vendor, normalized string) (*Prior, error)
}

// Embedder turns a query text into the embedding space of the corpus.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Engine runs the cascade against the active corpus snapshot.  It holds no
// per-call state and is safe for concurrent use.
type Engine struct {
	provider   *corpus.Provider
	normalizer *normalization.Normalizer
	prior      PriorSource           // nil disables vendor boosting
	embedder   Embedder              // nil disables the semantic stage
	vectors    corpus.VectorSearcher // nil falls back to the snapshot's own table
	logger     logging.Logger
}

// NewEngine creates a resolution engine.  prior, embedder and vectors are
// optional.
func NewEngine(provider *corpus.Provider, prior PriorSource, embedder Embedder, vectors corpus.VectorSearcher, logger logging.Logger) *Engine {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Engine{
		provider:   provider,
		normalizer: normalization.NewNormalizer(),
		prior:      prior,
		embedder:   embedder,
		vectors:    vectors,
		logger:     logger.Named("resolution"),
	}
}

// Resolve runs the full cascade for one raw text.  Unmatchable input is not
// an error: it yields a REJECT-banded result with no best match.  The only
// error condition is an uninstalled corpus index.
func (e *Engine) Resolve(ctx context.Context, raw string, vendor common.Vendor, cfg *ThresholdConfig) (*Result, error) {
	snap, err := e.provider.Active()
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		cfg = NewThresholdConfig(DefaultThresholds())
	}
	th := cfg.For(vendor)

	key := e.normalizer.Normalize(raw)
	res := &Result{
		Input:       raw,
		Normalized:  key,
		Vendor:      vendor,
		SignalsUsed: make(map[string]float64),
		CorpusHash:  snap.Hash,
	}

	agg := newAggregator()

	e.runRegistry(snap, raw, key, res, agg)
	e.runExact(snap, key, vendor, res, agg)
	e.runFuzzy(snap, key, th, res, agg)
	e.runSemantic(ctx, snap, key, th, res, agg)

	cands := agg.ranked()
	cands = e.applyPrior(ctx, vendor, key, th, res, cands)
	e.band(th, res, cands)
	return res, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Cascade stages
// ─────────────────────────────────────────────────────────────────────────────

func (e *Engine) runRegistry(snap *corpus.Snapshot, raw string, key normalization.Key, res *Result, agg *aggregator) {
	res.SignalsUsed[string(MethodRegistryExact)] = 0
	if key.CAS == "" || !normalization.IsCASFormat(strings.TrimSpace(raw)) {
		return
	}
	if id, ok := snap.LookupCAS(key.CAS); ok {
		res.SignalsUsed[string(MethodRegistryExact)] = 1.0
		agg.add(id, 1.0, MethodRegistryExact)
	}
}

func (e *Engine) runExact(snap *corpus.Snapshot, key normalization.Key, vendor common.Vendor, res *Result, agg *aggregator) {
	best := 0.0
	for _, text := range key.AllForms() {
		for _, entry := range snap.LookupExact(text, vendor) {
			score := entry.Confidence
			if score > best {
				best = score
			}
			agg.add(entry.AnalyteID, score, MethodExact)
		}
	}
	res.SignalsUsed[string(MethodExact)] = best
}

func (e *Engine) runFuzzy(snap *corpus.Snapshot, key normalization.Key, th Thresholds, res *Result, agg *aggregator) {
	best := 0.0
	for _, text := range key.AllForms() {
		for _, entry := range snap.Shortlist(text) {
			// weighted by synonym confidence so a textually perfect hit on a
			// low-trust harvested synonym cannot outrank the exact stage
			score := fuzzyScore(text, entry.Text) * entry.Confidence
			if score < th.RejectFloor {
				continue
			}
			if score > best {
				best = score
			}
			agg.add(entry.AnalyteID, score, MethodFuzzy)
		}
	}
	res.SignalsUsed[string(MethodFuzzy)] = best
}

func (e *Engine) runSemantic(ctx context.Context, snap *corpus.Snapshot, key normalization.Key, th Thresholds, res *Result, agg *aggregator) {
	if e.embedder == nil {
		return
	}
	searcher := e.vectors
	if searcher == nil {
		if !snap.HasVectors() {
			return
		}
		searcher = snap
	}

	vec, err := e.embedder.Embed(ctx, key.Primary)
	if err != nil {
		// degraded resolve, not a failure: the other stages still stand
		e.logger.Warn("semantic stage skipped: query embedding failed",
			logging.String("text", key.Primary), logging.Err(err))
		return
	}
	hits, err := searcher.SearchVector(ctx, vec, semanticTopK)
	if err != nil {
		e.logger.Warn("semantic stage skipped: vector search failed", logging.Err(err))
		return
	}

	best := 0.0
	for _, h := range hits {
		score := (h.Cosine + 1) / 2
		if score < th.RejectFloor {
			continue
		}
		if score > best {
			best = score
		}
		agg.add(h.AnalyteID, score, MethodSemantic)
	}
	res.SignalsUsed[string(MethodSemantic)] = best
}

// applyPrior boosts the vendor's validated analyte and pins it first on a
// score tie.  The boost scales with consensus strength and temporal decay,
// never exceeding the configured maximum.
func (e *Engine) applyPrior(ctx context.Context, vendor common.Vendor, key normalization.Key, th Thresholds, res *Result, cands []Candidate) []Candidate {
	if e.prior == nil || vendor.IsGlobal() || len(cands) == 0 {
		return cands
	}
	p, err := e.prior.Lookup(ctx, vendor, key.Primary)
	if err != nil {
		e.logger.Warn("vendor prior lookup failed", logging.String("vendor", string(vendor)), logging.Err(err))
		return cands
	}
	if p == nil {
		return cands
	}

	strength := float64(p.Consensus) / fullBoostConsensus
	if strength > 1 {
		strength = 1
	}
	boost := th.VendorBoost * strength * p.Decay
	if boost <= 0 {
		return cands
	}

	boosted := -1
	for i := range cands {
		if cands[i].AnalyteID == p.AnalyteID {
			cands[i].Score += boost
			if cands[i].Score > 1 {
				cands[i].Score = 1
			}
			boosted = i
			break
		}
	}
	if boosted < 0 {
		return cands
	}
	res.SignalsUsed[string(MethodVendorPrior)] = boost

	sortCandidates(cands)
	// pin the vendor's analyte ahead of equal-score rivals
	for i := 1; i < len(cands); i++ {
		if cands[i].AnalyteID == p.AnalyteID && cands[i].Score == cands[0].Score {
			pinned := cands[i]
			copy(cands[1:i+1], cands[:i])
			cands[0] = pinned
			break
		}
	}
	return cands
}

// band derives margin, conflict state and the final confidence band.
func (e *Engine) band(th Thresholds, res *Result, cands []Candidate) {
	res.Candidates = cands
	if len(cands) == 0 {
		res.Band = BandReject
		return
	}

	if len(cands) >= 2 &&
		cands[0].Method != cands[1].Method &&
		cands[0].Score-cands[1].Score < conflictDelta {
		res.CrossMethodConflict = true
		if cands[0].Score > th.DisagreementCap {
			cands[0].Score = th.DisagreementCap
		}
	}

	top := cands[0]
	res.Best = &top
	if len(cands) >= 2 {
		res.Margin = cands[0].Score - cands[1].Score
	} else {
		res.Margin = cands[0].Score
	}

	switch {
	case top.Score < th.RejectFloor:
		res.Band = BandReject
	case res.CrossMethodConflict:
		res.Band = BandReview
	case top.Score >= th.AutoAccept && res.Margin >= th.MinMargin:
		res.Band = BandAutoAccept
	default:
		res.Band = BandReview
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Aggregation
// ─────────────────────────────────────────────────────────────────────────────

// aggregator keeps the best score per analyte across methods.  Methods
// corroborate, they are not averaged: one strong signal dominates.
type aggregator struct {
	best map[common.AnalyteID]Candidate
}

func newAggregator() *aggregator {
	return &aggregator{best: make(map[common.AnalyteID]Candidate)}
}

func (a *aggregator) add(id common.AnalyteID, score float64, method Method) {
	if cur, ok := a.best[id]; ok && cur.Score >= score {
		return
	}
	a.best[id] = Candidate{AnalyteID: id, Score: score, Method: method}
}

// ranked returns the candidates ordered by score descending, analyte id
// ascending on ties, so identical inputs always rank identically.
func (a *aggregator) ranked() []Candidate {
	out := make([]Candidate, 0, len(a.best))
	for _, c := range a.best {
		out = append(out, c)
	}
	sortCandidates(out)
	return out
}

func sortCandidates(cands []Candidate) {
	sort.SliceStable(cands, func(i, j int) bool {
		if cands[i].Score != cands[j].Score {
			return cands[i].Score > cands[j].Score
		}
		return cands[i].AnalyteID < cands[j].AnalyteID
	})
}
