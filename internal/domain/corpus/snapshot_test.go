package corpus

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/envlytics/analyte-resolver/pkg/errors"
	"github.com/envlytics/analyte-resolver/pkg/types/common"
)

// buildSnapshot assembles an in-memory snapshot from raw entries, the same
// way Builder does after scanning the store.
func buildSnapshot(t *testing.T, entries []Entry) *Snapshot {
	t.Helper()
	s := &Snapshot{
		exact:       make(map[string][]int),
		vendorExact: make(map[string][]int),
		cas:         make(map[string]common.AnalyteID),
		tokens:      make(map[string][]int),
		lengthBands: make(map[int][]int),
	}
	for i := range entries {
		entries[i].ID = i
	}
	s.entries = entries
	(&Builder{}).indexEntries(s)
	s.Hash = corpusHash(s.entries)
	return s
}

func withVectors(s *Snapshot, dim int, vecs map[int][]float32) *Snapshot {
	s.dim = dim
	s.vectors = make([][]float32, len(s.entries))
	s.norms = make([]float64, len(s.entries))
	for id, v := range vecs {
		s.vectors[id] = v
		var n float64
		for _, x := range v {
			n += float64(x) * float64(x)
		}
		s.norms[id] = math.Sqrt(n)
	}
	return s
}

func testEntries() []Entry {
	return []Entry{
		{AnalyteID: "REG153_001", Text: "benzene"},
		{AnalyteID: "REG153_002", Text: "1 2 dichloroethane"},
		{AnalyteID: "REG153_003", Text: "benzene hexachloride", Vendor: "ALS"},
		{AnalyteID: "REG153_004", Text: "toluene"},
	}
}

func TestLookupExactVendorScoping(t *testing.T) {
	s := buildSnapshot(t, testEntries())

	global := s.LookupExact("benzene", "")
	require.Len(t, global, 1)
	assert.Equal(t, common.AnalyteID("REG153_001"), global[0].AnalyteID)

	// vendor entries come first, then global
	hits := s.LookupExact("benzene hexachloride", "ALS")
	require.Len(t, hits, 1)
	assert.Equal(t, common.AnalyteID("REG153_003"), hits[0].AnalyteID)

	// vendor-scoped entries are invisible to other vendors and global lookups
	assert.Empty(t, s.LookupExact("benzene hexachloride", "SGS"))
	assert.Empty(t, s.LookupExact("benzene hexachloride", ""))
}

func TestLookupCAS(t *testing.T) {
	s := buildSnapshot(t, testEntries())
	s.cas["71-43-2"] = "REG153_001"

	id, ok := s.LookupCAS("71-43-2")
	assert.True(t, ok)
	assert.Equal(t, common.AnalyteID("REG153_001"), id)

	_, ok = s.LookupCAS("50-00-0")
	assert.False(t, ok)
}

func TestShortlistSharedToken(t *testing.T) {
	s := buildSnapshot(t, testEntries())

	list := s.Shortlist("benzene chloride")
	ids := make(map[common.AnalyteID]bool)
	for _, e := range list {
		ids[e.AnalyteID] = true
	}
	assert.True(t, ids["REG153_001"], "token benzene")
	assert.True(t, ids["REG153_003"], "token benzene")
	assert.False(t, ids["REG153_004"], "no shared token, length band far off")
}

func TestShortlistLengthBandFallback(t *testing.T) {
	s := buildSnapshot(t, testEntries())

	// no shared token with "toluene" (len 7, band 1), but bands 0-2 include it
	list := s.Shortlist("xylenes")
	found := false
	for _, e := range list {
		if e.AnalyteID == "REG153_004" {
			found = true
		}
	}
	assert.True(t, found)
}

func TestSearchVector(t *testing.T) {
	s := withVectors(buildSnapshot(t, testEntries()), 3, map[int][]float32{
		0: {1, 0, 0},
		1: {0, 1, 0},
		3: {0.9, 0.1, 0},
	})

	hits, err := s.SearchVector(context.Background(), []float32{1, 0, 0}, 2)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, common.AnalyteID("REG153_001"), hits[0].AnalyteID)
	assert.InDelta(t, 1.0, hits[0].Cosine, 1e-9)
	assert.Equal(t, common.AnalyteID("REG153_004"), hits[1].AnalyteID)
	assert.Greater(t, hits[0].Cosine, hits[1].Cosine)

	_, err = s.SearchVector(context.Background(), []float32{1, 0}, 2)
	assert.True(t, errors.IsCode(err, errors.CodeVectorSearchFailed))
}

func TestSearchVectorWithoutTable(t *testing.T) {
	s := buildSnapshot(t, testEntries())
	assert.False(t, s.HasVectors())
	_, err := s.SearchVector(context.Background(), []float32{1}, 5)
	assert.True(t, errors.IsCode(err, errors.CodeVectorSearchFailed))
}

func TestCorpusHashOrderIndependent(t *testing.T) {
	a := buildSnapshot(t, testEntries())

	reversed := testEntries()
	for i, j := 0, len(reversed)-1; i < j; i, j = i+1, j-1 {
		reversed[i], reversed[j] = reversed[j], reversed[i]
	}
	b := buildSnapshot(t, reversed)

	assert.Equal(t, a.Hash, b.Hash)

	extra := append(testEntries(), Entry{AnalyteID: "REG153_005", Text: "naphthalene"})
	c := buildSnapshot(t, extra)
	assert.NotEqual(t, a.Hash, c.Hash)
}

func TestProviderLifecycle(t *testing.T) {
	p := NewProvider()

	_, err := p.Active()
	assert.True(t, errors.IsCode(err, errors.CodeIndexUnavailable))

	s := buildSnapshot(t, testEntries())
	p.Install(s)
	got, err := p.Active()
	require.NoError(t, err)
	assert.Same(t, s, got)
	assert.False(t, p.Stale())

	p.MarkStale()
	assert.True(t, p.Stale())

	s2 := buildSnapshot(t, testEntries())
	p.Install(s2)
	assert.False(t, p.Stale(), "install clears the stale flag")
}
