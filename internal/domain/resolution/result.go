// Package resolution implements the matching cascade: registry, exact,
// fuzzy and semantic scoring against the active corpus snapshot, vendor
// prior boosting, and dual-gate confidence banding.
package resolution

import (
	"github.com/envlytics/analyte-resolver/internal/domain/normalization"
	"github.com/envlytics/analyte-resolver/pkg/types/common"
)

// Method identifies one cascade stage.
type Method string

const (
	MethodRegistryExact Method = "REGISTRY_EXACT"
	MethodExact         Method = "EXACT"
	MethodFuzzy         Method = "FUZZY"
	MethodSemantic      Method = "SEMANTIC"
	MethodVendorPrior   Method = "VENDOR_PRIOR"
)

// Band is the discretized accept/review/reject decision.
type Band string

const (
	BandAutoAccept Band = "AUTO_ACCEPT"
	BandReview     Band = "REVIEW"
	BandReject     Band = "REJECT"
)

// Candidate is one ranked analyte with the method that produced its best
// score.
type Candidate struct {
	AnalyteID common.AnalyteID `json:"analyte_id"`
	Score     float64          `json:"score"`
	Method    Method           `json:"method"`
}

// Result is the full outcome of one resolve call.
type Result struct {
	Input      string            `json:"input"`
	Normalized normalization.Key `json:"normalized"`
	Vendor     common.Vendor     `json:"vendor,omitempty"`

	// Best is nil when no candidate was found at all.
	Best       *Candidate  `json:"best_match,omitempty"`
	Candidates []Candidate `json:"all_candidates"`

	// Margin is score(best) − score(runner-up), or score(best) when there
	// is no runner-up.
	Margin float64 `json:"margin"`
	Band   Band    `json:"confidence_band"`

	// SignalsUsed records each method's raw top score, including methods
	// that did not win, for auditability.
	SignalsUsed map[string]float64 `json:"signals_used"`

	// CrossMethodConflict is set when two methods disagree on the top
	// analyte with comparable confidence.
	CrossMethodConflict bool `json:"cross_method_conflict"`

	CorpusHash string `json:"corpus_snapshot_hash"`
}

// Matched reports whether the result carries a usable best match.
func (r *Result) Matched() bool { return r.Best != nil }
