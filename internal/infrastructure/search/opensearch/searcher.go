package opensearch

import (
	"bytes"
	"context"
	"encoding/json"
	"time"

	"github.com/opensearch-project/opensearch-go/v2/opensearchapi"

	"github.com/envlytics/analyte-resolver/internal/infrastructure/monitoring/logging"
	"github.com/envlytics/analyte-resolver/pkg/errors"
	"github.com/envlytics/analyte-resolver/pkg/types/common"
)

const (
	defaultSearchTimeout = 10 * time.Second
	maxPageSize          = 100
)

// ReviewQuery selects decisions for the review queue.  Text searches the
// observed and normalized names; the remaining fields are exact filters.
type ReviewQuery struct {
	Text           string
	Vendor         common.Vendor
	Band           string
	HumanValidated *bool
	Conflict       *bool
	Range          common.DateRange
	Page           common.Pagination
}

// ReviewHit is one matching decision with its relevance score.
type ReviewHit struct {
	Score    float64
	Document DecisionDocument
}

// Searcher runs review-queue queries against the decision index.
type Searcher struct {
	client  *Client
	timeout time.Duration
	logger  logging.Logger
}

func NewSearcher(client *Client, logger logging.Logger) *Searcher {
	return &Searcher{client: client, timeout: defaultSearchTimeout, logger: logger}
}

// Search returns matching decisions ranked by relevance, newest first among
// equal scores, plus the total hit count.
func (s *Searcher) Search(ctx context.Context, q ReviewQuery) ([]ReviewHit, int64, error) {
	q.Page.Normalize()
	if q.Page.PageSize > maxPageSize {
		q.Page.PageSize = maxPageSize
	}

	body, err := json.Marshal(buildReviewDSL(q))
	if err != nil {
		return nil, 0, errors.Wrap(err, errors.CodeSerialization, "failed to marshal search query")
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	req := opensearchapi.SearchRequest{
		Index: []string{s.client.DecisionIndex()},
		Body:  bytes.NewReader(body),
	}
	resp, err := req.Do(ctx, s.client.Raw())
	if err != nil {
		return nil, 0, errors.Wrap(err, errors.CodeExternalService, "search request failed")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.IsError() {
		return nil, 0, errors.Newf(errors.CodeExternalService, "search returned status %d", resp.StatusCode)
	}

	var sr struct {
		Hits struct {
			Total struct {
				Value int64 `json:"value"`
			} `json:"total"`
			Hits []struct {
				Score  float64         `json:"_score"`
				Source json.RawMessage `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return nil, 0, errors.Wrap(err, errors.CodeSerialization, "failed to decode search response")
	}

	hits := make([]ReviewHit, 0, len(sr.Hits.Hits))
	for _, h := range sr.Hits.Hits {
		var doc DecisionDocument
		if err := json.Unmarshal(h.Source, &doc); err != nil {
			s.logger.Warn("skipping undecodable decision document", logging.Err(err))
			continue
		}
		hits = append(hits, ReviewHit{Score: h.Score, Document: doc})
	}
	return hits, sr.Hits.Total.Value, nil
}

// BandCounts returns pending-review decision counts per confidence band.
func (s *Searcher) BandCounts(ctx context.Context) (map[string]int64, error) {
	dsl := map[string]interface{}{
		"size": 0,
		"query": map[string]interface{}{
			"term": map[string]interface{}{"human_validated": false},
		},
		"aggs": map[string]interface{}{
			"bands": map[string]interface{}{
				"terms": map[string]interface{}{"field": "confidence_band"},
			},
		},
	}
	body, err := json.Marshal(dsl)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeSerialization, "failed to marshal aggregation query")
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	req := opensearchapi.SearchRequest{
		Index: []string{s.client.DecisionIndex()},
		Body:  bytes.NewReader(body),
	}
	resp, err := req.Do(ctx, s.client.Raw())
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeExternalService, "aggregation request failed")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.IsError() {
		return nil, errors.Newf(errors.CodeExternalService, "aggregation returned status %d", resp.StatusCode)
	}

	var ar struct {
		Aggregations struct {
			Bands struct {
				Buckets []struct {
					Key      string `json:"key"`
					DocCount int64  `json:"doc_count"`
				} `json:"buckets"`
			} `json:"bands"`
		} `json:"aggregations"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&ar); err != nil {
		return nil, errors.Wrap(err, errors.CodeSerialization, "failed to decode aggregation response")
	}

	counts := make(map[string]int64, len(ar.Aggregations.Bands.Buckets))
	for _, b := range ar.Aggregations.Bands.Buckets {
		counts[b.Key] = b.DocCount
	}
	return counts, nil
}

func buildReviewDSL(q ReviewQuery) map[string]interface{} {
	var must []interface{}
	if q.Text != "" {
		must = append(must, map[string]interface{}{
			"multi_match": map[string]interface{}{
				"query":  q.Text,
				"fields": []string{"input_text^2", "normalized_text"},
			},
		})
	}

	var filter []interface{}
	term := func(field string, value interface{}) {
		filter = append(filter, map[string]interface{}{
			"term": map[string]interface{}{field: value},
		})
	}
	if !q.Vendor.IsGlobal() {
		term("lab_vendor", string(q.Vendor))
	}
	if q.Band != "" {
		term("confidence_band", q.Band)
	}
	if q.HumanValidated != nil {
		term("human_validated", *q.HumanValidated)
	}
	if q.Conflict != nil {
		term("cross_method_conflict", *q.Conflict)
	}
	if !q.Range.From.IsZero() || !q.Range.To.IsZero() {
		rng := map[string]interface{}{}
		if !q.Range.From.IsZero() {
			rng["gte"] = q.Range.From.Format(time.RFC3339)
		}
		if !q.Range.To.IsZero() {
			rng["lt"] = q.Range.To.Format(time.RFC3339)
		}
		filter = append(filter, map[string]interface{}{
			"range": map[string]interface{}{"decision_timestamp": rng},
		})
	}

	boolQuery := map[string]interface{}{}
	if len(must) > 0 {
		boolQuery["must"] = must
	}
	if len(filter) > 0 {
		boolQuery["filter"] = filter
	}
	if len(boolQuery) == 0 {
		boolQuery["must"] = []interface{}{map[string]interface{}{"match_all": map[string]interface{}{}}}
	}

	return map[string]interface{}{
		"from":  q.Page.Offset(),
		"size":  q.Page.PageSize,
		"query": map[string]interface{}{"bool": boolQuery},
		"sort": []interface{}{
			map[string]interface{}{"_score": map[string]interface{}{"order": "desc"}},
			map[string]interface{}{"decision_timestamp": map[string]interface{}{"order": "desc"}},
		},
	}
}
