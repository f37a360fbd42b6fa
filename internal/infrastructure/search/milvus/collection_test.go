package milvus

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/envlytics/analyte-resolver/internal/config"
	"github.com/envlytics/analyte-resolver/internal/domain/corpus"
	"github.com/envlytics/analyte-resolver/internal/infrastructure/monitoring/logging"
)

func embeddedTestSnapshot(t *testing.T) *corpus.Snapshot {
	t.Helper()
	snap, err := corpus.FromArtifact(&corpus.Artifact{
		Hash: "d41d8cd98f00b204e980",
		Entries: []corpus.Entry{
			{ID: 0, AnalyteID: "REG153_001", Text: "benzene", Confidence: 1},
			{ID: 1, AnalyteID: "REG153_004", Text: "toluene", Confidence: 1},
		},
		Vectors:      [][]float32{{1, 0, 0}, {0, 1, 0}},
		Dim:          3,
		AnalyteCount: 2,
	})
	require.NoError(t, err)
	return snap
}

func TestExporterRejectsUnembeddedSnapshot(t *testing.T) {
	snap, err := corpus.FromArtifact(&corpus.Artifact{
		Hash:         "abc",
		Entries:      []corpus.Entry{{ID: 0, AnalyteID: "REG153_001", Text: "benzene"}},
		AnalyteCount: 1,
	})
	require.NoError(t, err)

	c := NewClientWithMilvus(&mockMilvusClient{}, config.MilvusConfig{}, logging.NewNopLogger())
	e := NewExporter(c, logging.NewNopLogger())

	_, err = e.Export(context.Background(), snap)
	assert.Error(t, err)
}
