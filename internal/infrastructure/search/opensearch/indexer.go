package opensearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/opensearch-project/opensearch-go/v2/opensearchapi"

	"github.com/envlytics/analyte-resolver/internal/domain/analyte"
	"github.com/envlytics/analyte-resolver/internal/infrastructure/monitoring/logging"
	"github.com/envlytics/analyte-resolver/pkg/errors"
)

var (
	ErrIndexCreationFailed = errors.New(errors.CodeExternalService, "index creation failed")
	ErrDocumentIndexFailed = errors.New(errors.CodeExternalService, "document index failed")
)

const defaultBulkBatchSize = 500

// DecisionDocument is the indexed projection of a match decision.  It carries
// only the fields the review queue searches and filters on.
type DecisionDocument struct {
	ID                  int64     `json:"id"`
	InputText           string    `json:"input_text"`
	NormalizedText      string    `json:"normalized_text"`
	MatchedAnalyteID    string    `json:"matched_analyte_id,omitempty"`
	Method              string    `json:"match_method"`
	ConfidenceScore     float64   `json:"confidence_score"`
	Margin              float64   `json:"margin"`
	Band                string    `json:"confidence_band"`
	CandidateAnalyteIDs []string  `json:"candidate_analyte_ids,omitempty"`
	CrossMethodConflict bool      `json:"cross_method_conflict"`
	CorpusHash          string    `json:"corpus_snapshot_hash"`
	Vendor              string    `json:"lab_vendor,omitempty"`
	DecidedAt           time.Time `json:"decision_timestamp"`
	HumanValidated      bool      `json:"human_validated"`
	IsCorrected         bool      `json:"is_corrected"`
}

// NewDecisionDocument projects a decision into its indexed form.
func NewDecisionDocument(d *analyte.MatchDecision) DecisionDocument {
	doc := DecisionDocument{
		ID:                  d.ID,
		InputText:           d.InputText,
		NormalizedText:      d.NormalizedText,
		MatchedAnalyteID:    string(d.MatchedAnalyteID),
		Method:              d.Method,
		ConfidenceScore:     d.ConfidenceScore,
		Margin:              d.Margin,
		Band:                d.Band,
		CrossMethodConflict: d.CrossMethodConflict,
		CorpusHash:          d.CorpusHash,
		Vendor:              string(d.Vendor),
		DecidedAt:           d.DecidedAt,
		HumanValidated:      d.HumanValidated,
		IsCorrected:         d.IsCorrected,
	}
	for _, c := range d.Candidates {
		doc.CandidateAnalyteIDs = append(doc.CandidateAnalyteIDs, string(c.AnalyteID))
	}
	return doc
}

// BulkItemError describes one failed document in a bulk request.
type BulkItemError struct {
	DocID     string
	ErrorType string
	Reason    string
}

// BulkResult summarises a bulk indexing run.
type BulkResult struct {
	Succeeded int
	Failed    int
	Errors    []BulkItemError
}

// Indexer writes decision documents into the review index.
type Indexer struct {
	client    *Client
	batchSize int
	refresh   string
	logger    logging.Logger
}

func NewIndexer(client *Client, batchSize int, logger logging.Logger) *Indexer {
	if batchSize <= 0 {
		batchSize = defaultBulkBatchSize
	}
	return &Indexer{client: client, batchSize: batchSize, refresh: "false", logger: logger}
}

// EnsureIndex creates the decision index with its mapping when absent.
func (i *Indexer) EnsureIndex(ctx context.Context) error {
	name := i.client.DecisionIndex()

	exists, err := i.indexExists(ctx, name)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	body, err := json.Marshal(decisionIndexMapping())
	if err != nil {
		return errors.Wrap(err, errors.CodeSerialization, "failed to marshal index mapping")
	}
	req := opensearchapi.IndicesCreateRequest{Index: name, Body: bytes.NewReader(body)}
	resp, err := req.Do(ctx, i.client.Raw())
	if err != nil {
		return errors.Wrap(err, errors.CodeExternalService, "create index request failed")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.IsError() {
		return i.wrapErrorResponse(resp, ErrIndexCreationFailed)
	}
	i.logger.Info("created decision index", logging.String("index", name))
	return nil
}

// IndexDecision writes one decision document, keyed by the decision id so
// re-indexing after validation overwrites in place.
func (i *Indexer) IndexDecision(ctx context.Context, d *analyte.MatchDecision) error {
	body, err := json.Marshal(NewDecisionDocument(d))
	if err != nil {
		return errors.Wrap(err, errors.CodeSerialization, "failed to marshal decision document")
	}

	req := opensearchapi.IndexRequest{
		Index:      i.client.DecisionIndex(),
		DocumentID: strconv.FormatInt(d.ID, 10),
		Body:       bytes.NewReader(body),
		Refresh:    i.refresh,
	}
	resp, err := req.Do(ctx, i.client.Raw())
	if err != nil {
		return errors.Wrap(err, errors.CodeExternalService, "index document request failed")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.IsError() {
		return i.wrapErrorResponse(resp, ErrDocumentIndexFailed)
	}
	return nil
}

// BulkIndex writes decisions in batches and reports per-document failures.
// Used by the backfill that rebuilds the index from Postgres.
func (i *Indexer) BulkIndex(ctx context.Context, decisions []*analyte.MatchDecision) (*BulkResult, error) {
	result := &BulkResult{}
	index := i.client.DecisionIndex()

	for start := 0; start < len(decisions); start += i.batchSize {
		end := start + i.batchSize
		if end > len(decisions) {
			end = len(decisions)
		}

		var buf bytes.Buffer
		batch := decisions[start:end]
		for _, d := range batch {
			docBytes, err := json.Marshal(NewDecisionDocument(d))
			if err != nil {
				result.Failed++
				result.Errors = append(result.Errors, BulkItemError{
					DocID:     strconv.FormatInt(d.ID, 10),
					ErrorType: "serialization_error",
					Reason:    err.Error(),
				})
				continue
			}
			fmt.Fprintf(&buf, `{"index":{"_index":%q,"_id":"%d"}}`+"\n", index, d.ID)
			buf.Write(docBytes)
			buf.WriteByte('\n')
		}
		if buf.Len() == 0 {
			continue
		}

		req := opensearchapi.BulkRequest{Body: bytes.NewReader(buf.Bytes()), Refresh: i.refresh}
		resp, err := req.Do(ctx, i.client.Raw())
		if err != nil {
			return result, errors.Wrap(err, errors.CodeExternalService, "bulk request failed")
		}

		if resp.IsError() {
			result.Failed += len(batch)
			wrapErr := i.wrapErrorResponse(resp, ErrDocumentIndexFailed)
			resp.Body.Close() //nolint:errcheck
			result.Errors = append(result.Errors, BulkItemError{
				DocID:     "batch",
				ErrorType: "http_error",
				Reason:    wrapErr.Error(),
			})
			continue
		}

		if err := i.collectBulkOutcome(resp.Body, result); err != nil {
			resp.Body.Close() //nolint:errcheck
			return result, err
		}
		resp.Body.Close() //nolint:errcheck
	}

	i.logger.Info("bulk indexed decisions",
		logging.Int("total", len(decisions)),
		logging.Int("succeeded", result.Succeeded),
		logging.Int("failed", result.Failed),
	)
	return result, nil
}

// DeleteDecision removes a document, tolerating ones never indexed.
func (i *Indexer) DeleteDecision(ctx context.Context, id int64) error {
	req := opensearchapi.DeleteRequest{
		Index:      i.client.DecisionIndex(),
		DocumentID: strconv.FormatInt(id, 10),
		Refresh:    i.refresh,
	}
	resp, err := req.Do(ctx, i.client.Raw())
	if err != nil {
		return errors.Wrap(err, errors.CodeExternalService, "delete document request failed")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode == 404 {
		return nil
	}
	if resp.IsError() {
		return i.wrapErrorResponse(resp, errors.New(errors.CodeExternalService, "delete document failed"))
	}
	return nil
}

func (i *Indexer) indexExists(ctx context.Context, name string) (bool, error) {
	req := opensearchapi.IndicesExistsRequest{Index: []string{name}}
	resp, err := req.Do(ctx, i.client.Raw())
	if err != nil {
		return false, errors.Wrap(err, errors.CodeExternalService, "index existence check failed")
	}
	defer resp.Body.Close() //nolint:errcheck

	switch resp.StatusCode {
	case 200:
		return true, nil
	case 404:
		return false, nil
	}
	return false, i.wrapErrorResponse(resp, errors.New(errors.CodeExternalService, "index existence check failed"))
}

func (i *Indexer) collectBulkOutcome(body io.Reader, result *BulkResult) error {
	var bulkResp struct {
		Errors bool `json:"errors"`
		Items  []map[string]struct {
			ID     string `json:"_id"`
			Status int    `json:"status"`
			Error  struct {
				Type   string `json:"type"`
				Reason string `json:"reason"`
			} `json:"error"`
		} `json:"items"`
	}
	if err := json.NewDecoder(body).Decode(&bulkResp); err != nil {
		return errors.Wrap(err, errors.CodeSerialization, "failed to decode bulk response")
	}

	if !bulkResp.Errors {
		result.Succeeded += len(bulkResp.Items)
		return nil
	}
	for _, item := range bulkResp.Items {
		for _, v := range item {
			if v.Status >= 200 && v.Status < 300 {
				result.Succeeded++
			} else {
				result.Failed++
				result.Errors = append(result.Errors, BulkItemError{
					DocID:     v.ID,
					ErrorType: v.Error.Type,
					Reason:    v.Error.Reason,
				})
			}
			break
		}
	}
	return nil
}

func (i *Indexer) wrapErrorResponse(resp *opensearchapi.Response, defaultErr error) error {
	var errResp struct {
		Error struct {
			Type   string `json:"type"`
			Reason string `json:"reason"`
		} `json:"error"`
	}
	bodyBytes, _ := io.ReadAll(resp.Body)
	if err := json.Unmarshal(bodyBytes, &errResp); err == nil && errResp.Error.Reason != "" {
		return errors.Wrapf(defaultErr, errors.CodeExternalService, "opensearch: %s: %s", errResp.Error.Type, errResp.Error.Reason)
	}
	return errors.Wrapf(defaultErr, errors.CodeExternalService, "opensearch status %d", resp.StatusCode)
}

func decisionIndexMapping() map[string]interface{} {
	return map[string]interface{}{
		"settings": map[string]interface{}{
			"number_of_shards":   1,
			"number_of_replicas": 1,
		},
		"mappings": map[string]interface{}{
			"properties": map[string]interface{}{
				"input_text":            map[string]interface{}{"type": "text"},
				"normalized_text":       map[string]interface{}{"type": "text"},
				"matched_analyte_id":    map[string]interface{}{"type": "keyword"},
				"match_method":          map[string]interface{}{"type": "keyword"},
				"confidence_score":      map[string]interface{}{"type": "float"},
				"margin":                map[string]interface{}{"type": "float"},
				"confidence_band":       map[string]interface{}{"type": "keyword"},
				"candidate_analyte_ids": map[string]interface{}{"type": "keyword"},
				"cross_method_conflict": map[string]interface{}{"type": "boolean"},
				"corpus_snapshot_hash":  map[string]interface{}{"type": "keyword"},
				"lab_vendor":            map[string]interface{}{"type": "keyword"},
				"decision_timestamp":    map[string]interface{}{"type": "date"},
				"human_validated":       map[string]interface{}{"type": "boolean"},
				"is_corrected":          map[string]interface{}{"type": "boolean"},
			},
		},
	}
}
