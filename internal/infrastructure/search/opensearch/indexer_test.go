package opensearch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/envlytics/analyte-resolver/internal/domain/analyte"
	"github.com/envlytics/analyte-resolver/internal/infrastructure/monitoring/logging"
)

func testDecision(id int64) *analyte.MatchDecision {
	return &analyte.MatchDecision{
		ID:              id,
		InputText:       "Benzene (SW846)",
		NormalizedText:  "benzene",
		MatchedAnalyteID: "REG153_001",
		Method:          "EXACT",
		ConfidenceScore: 0.97,
		Margin:          0.2,
		Band:            "AUTO_ACCEPT",
		Candidates: []analyte.RankedCandidate{
			{AnalyteID: "REG153_001", Score: 0.97, Method: "EXACT"},
		},
		CorpusHash: "abc123",
		Vendor:     "Caduceon",
		DecidedAt:  time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC),
	}
}

func TestEnsureIndexCreatesWhenAbsent(t *testing.T) {
	var created bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodHead:
			w.WriteHeader(http.StatusNotFound)
		case http.MethodPut:
			assert.Contains(t, r.URL.Path, "resolver-decisions")
			created = true
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{"acknowledged":true}`))
		default:
			w.WriteHeader(http.StatusBadRequest)
		}
	}))
	defer server.Close()

	indexer := NewIndexer(newTestClient(t, server.URL, ""), 0, logging.NewNopLogger())
	require.NoError(t, indexer.EnsureIndex(context.Background()))
	assert.True(t, created)
}

func TestEnsureIndexSkipsExisting(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			w.WriteHeader(http.StatusOK)
			return
		}
		t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
	}))
	defer server.Close()

	indexer := NewIndexer(newTestClient(t, server.URL, ""), 0, logging.NewNopLogger())
	assert.NoError(t, indexer.EnsureIndex(context.Background()))
}

func TestIndexDecisionUsesDecisionID(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.True(t, strings.HasSuffix(r.URL.Path, "/_doc/42"))
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"result":"created"}`))
	}))
	defer server.Close()

	indexer := NewIndexer(newTestClient(t, server.URL, ""), 0, logging.NewNopLogger())
	assert.NoError(t, indexer.IndexDecision(context.Background(), testDecision(42)))
}

func TestBulkIndexCountsFailures(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/_bulk"))
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{
			"errors": true,
			"items": [
				{"index":{"_id":"1","status":201}},
				{"index":{"_id":"2","status":400,"error":{"type":"mapper_parsing_exception","reason":"bad field"}}}
			]
		}`))
	}))
	defer server.Close()

	indexer := NewIndexer(newTestClient(t, server.URL, ""), 0, logging.NewNopLogger())
	result, err := indexer.BulkIndex(context.Background(), []*analyte.MatchDecision{testDecision(1), testDecision(2)})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Succeeded)
	assert.Equal(t, 1, result.Failed)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "2", result.Errors[0].DocID)
	assert.Equal(t, "mapper_parsing_exception", result.Errors[0].ErrorType)
}

func TestDeleteDecisionToleratesMissing(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"result":"not_found"}`))
	}))
	defer server.Close()

	indexer := NewIndexer(newTestClient(t, server.URL, ""), 0, logging.NewNopLogger())
	assert.NoError(t, indexer.DeleteDecision(context.Background(), 7))
}

func TestNewDecisionDocumentProjection(t *testing.T) {
	doc := NewDecisionDocument(testDecision(9))
	assert.Equal(t, int64(9), doc.ID)
	assert.Equal(t, "REG153_001", doc.MatchedAnalyteID)
	assert.Equal(t, []string{"REG153_001"}, doc.CandidateAnalyteIDs)
	assert.Equal(t, "Caduceon", doc.Vendor)
}
