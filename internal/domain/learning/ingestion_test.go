package learning

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/envlytics/analyte-resolver/internal/domain/analyte"
	"github.com/envlytics/analyte-resolver/internal/domain/corpus"
	"github.com/envlytics/analyte-resolver/internal/testutil"
	"github.com/envlytics/analyte-resolver/pkg/errors"
)

type fakeGate struct{ remaining int }

func (g *fakeGate) TryAcquire(_ context.Context, _ time.Time) (bool, error) {
	if g.remaining <= 0 {
		return false, nil
	}
	g.remaining--
	return true, nil
}

func newIngestor(t *testing.T, gate CapGate) (*Ingestor, *testutil.InMemorySynonymRepo, *corpus.Provider) {
	t.Helper()
	analytes := testutil.NewInMemoryAnalyteRepo(
		&analyte.Analyte{ID: "REG153_001", PreferredName: "Benzene", Type: analyte.TypeSingleSubstance},
		&analyte.Analyte{ID: "REG153_070", PreferredName: "PHC F2", Type: analyte.TypeFractionOrGroup},
	)
	synonyms := testutil.NewInMemorySynonymRepo()
	provider := corpus.NewProvider()
	return NewIngestor(analytes, synonyms, provider, gate, nil), synonyms, provider
}

func TestIngestValidatedSynonym(t *testing.T) {
	ing, synonyms, provider := newIngestor(t, nil)
	ctx := context.Background()

	added, err := ing.IngestValidatedSynonym(ctx, "Benzol", "REG153_001", "ALS", true, 0.12)
	require.NoError(t, err)
	assert.True(t, added)
	assert.True(t, provider.Stale(), "successful ingestion flags the snapshot stale")

	require.Len(t, synonyms.Synonyms, 1)
	s := synonyms.Synonyms[0]
	assert.Equal(t, "benzol", s.Normalized)
	assert.Equal(t, analyte.SourceValidatedRuntime, s.Source)
	assert.Equal(t, confidenceCascadeConfirmed, s.Confidence)
	assert.EqualValues(t, "ALS", s.Vendor)

	// manual override of a weak cascade pass gets lower confidence
	added, err = ing.IngestValidatedSynonym(ctx, "Benzole", "REG153_001", "ALS", false, 0)
	require.NoError(t, err)
	assert.True(t, added)
	assert.Equal(t, confidenceManualOverride, synonyms.Synonyms[1].Confidence)
}

func TestIngestDuplicateIsNotAnError(t *testing.T) {
	ing, synonyms, _ := newIngestor(t, nil)
	ctx := context.Background()

	added, err := ing.IngestValidatedSynonym(ctx, "Benzol", "REG153_001", "", true, 0.1)
	require.NoError(t, err)
	assert.True(t, added)

	// same normalized text, analyte and vendor: reported, not rejected
	added, err = ing.IngestValidatedSynonym(ctx, "BENZOL ", "REG153_001", "", true, 0.1)
	require.NoError(t, err)
	assert.False(t, added)
	assert.Len(t, synonyms.Synonyms, 1)

	// same text for a different vendor is a distinct synonym
	added, err = ing.IngestValidatedSynonym(ctx, "Benzol", "REG153_001", "ALS", true, 0.1)
	require.NoError(t, err)
	assert.True(t, added)
}

func TestIngestQualityGates(t *testing.T) {
	ing, _, _ := newIngestor(t, nil)
	ctx := context.Background()

	tests := []struct {
		name string
		raw  string
		code errors.ErrorCode
	}{
		{"empty", "", errors.CodeEmptyObservedName},
		{"too long", strings.Repeat("x", maxSynonymLength+1), errors.CodeInvalidParam},
		{"control characters", "benz\x01ene", errors.CodeInvalidParam},
		{"no letters", "12 34 --", errors.CodeInvalidParam},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ing.IngestValidatedSynonym(ctx, tt.raw, "REG153_001", "", true, 0.1)
			assert.True(t, errors.IsCode(err, tt.code), "got %v", err)
		})
	}

	_, err := ing.IngestValidatedSynonym(ctx, "Benzol", "REG153_999", "", true, 0.1)
	assert.True(t, errors.IsCode(err, errors.CodeAnalyteNotFound))
}

func TestIngestGroupAnalyteRequiresCascadeConfirmation(t *testing.T) {
	ing, _, _ := newIngestor(t, nil)
	ctx := context.Background()

	_, err := ing.IngestValidatedSynonym(ctx, "F2 hydrocarbons", "REG153_070", "", false, 0)
	assert.True(t, errors.IsCode(err, errors.CodeInvalidParam))

	_, err = ing.IngestValidatedSynonym(ctx, "F2 hydrocarbons", "REG153_070", "", true, 0.03)
	assert.True(t, errors.IsCode(err, errors.CodeInvalidParam), "margin below the dual gate")

	added, err := ing.IngestValidatedSynonym(ctx, "F2 hydrocarbons", "REG153_070", "", true, dualGateMargin)
	require.NoError(t, err)
	assert.True(t, added)
}

func TestIngestDailyGlobalCap(t *testing.T) {
	ing, _, _ := newIngestor(t, &fakeGate{remaining: 1})
	ctx := context.Background()

	added, err := ing.IngestValidatedSynonym(ctx, "Benzol", "REG153_001", "", true, 0.1)
	require.NoError(t, err)
	assert.True(t, added)

	_, err = ing.IngestValidatedSynonym(ctx, "Benzole", "REG153_001", "", true, 0.1)
	assert.True(t, errors.IsCode(err, errors.CodeDailyCapExceeded))

	// vendor-scoped synonyms are not subject to the global cap
	added, err = ing.IngestValidatedSynonym(ctx, "Benzole", "REG153_001", "ALS", true, 0.1)
	require.NoError(t, err)
	assert.True(t, added)
}

func TestBulkIngest(t *testing.T) {
	ing, _, _ := newIngestor(t, nil)

	stats, err := ing.BulkIngest(context.Background(), []BulkItem{
		{Raw: "Benzol", AnalyteID: "REG153_001", CascadeConfirmed: true, CascadeMargin: 0.1},
		{Raw: "Benzol", AnalyteID: "REG153_001", CascadeConfirmed: true, CascadeMargin: 0.1},
		{Raw: "", AnalyteID: "REG153_001"},
		{Raw: "Benzole", AnalyteID: "REG153_001", CascadeConfirmed: true, CascadeMargin: 0.1},
	})
	require.NoError(t, err)
	assert.Equal(t, BulkStats{Added: 2, Duplicates: 1, Rejected: 1}, stats)
}
