package corpus

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/envlytics/analyte-resolver/pkg/types/common"
)

func TestArtifactRoundTrip(t *testing.T) {
	s := buildSnapshot(t, testEntries())
	s.cas["71-43-2"] = "REG153_001"
	s.analyteCount = 4
	withVectors(s, 3, map[int][]float32{
		0: {1, 0, 0},
		1: {0, 1, 0},
		2: {0, 0, 1},
		3: {1, 1, 0},
	})

	var buf bytes.Buffer
	require.NoError(t, EncodeArtifact(&buf, s))

	restored, err := DecodeArtifact(&buf)
	require.NoError(t, err)

	assert.Equal(t, s.Hash, restored.Hash)
	assert.Equal(t, s.EntryCount(), restored.EntryCount())
	assert.Equal(t, s.AnalyteCount(), restored.AnalyteCount())
	assert.Equal(t, s.Dimension(), restored.Dimension())

	id, ok := restored.LookupCAS("71-43-2")
	require.True(t, ok)
	assert.Equal(t, common.AnalyteID("REG153_001"), id)

	// Rebuilt indexes serve the same lookups.
	got := restored.LookupExact("benzene", "")
	require.Len(t, got, 1)
	assert.Equal(t, common.AnalyteID("REG153_001"), got[0].AnalyteID)

	hits, err := restored.SearchVector(context.Background(), []float32{1, 0, 0}, 2)
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	assert.Equal(t, 0, hits[0].EntryID)
}

func TestDecodeArtifactEmpty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, EncodeArtifact(&buf, &Snapshot{entries: []Entry{{Text: "x", AnalyteID: "A"}}}))

	_, err := DecodeArtifact(&buf)
	require.NoError(t, err)

	_, err = DecodeArtifact(bytes.NewReader([]byte("junk")))
	assert.Error(t, err)
}
