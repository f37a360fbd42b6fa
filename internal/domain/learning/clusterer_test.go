package learning

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClusterSimilarUnknowns(t *testing.T) {
	texts := []WeightedText{
		{Text: "benzo a pyrene", Frequency: 3},
		{Text: "benzo a pyrene total", Frequency: 1},
		{Text: "chromium hexavalent", Frequency: 7},
		{Text: "benzo a pyrenes", Frequency: 2},
		{Text: "chromium hexavelent", Frequency: 1}, // typo
	}

	clusters := ClusterSimilarUnknowns(texts, 0.85)
	require.Len(t, clusters, 3)

	// anchors surface in frequency order
	assert.Equal(t, "chromium hexavalent", clusters[0].Anchor)
	assert.Equal(t, "benzo a pyrene", clusters[1].Anchor)

	require.Len(t, clusters[0].Members, 1)
	assert.Equal(t, "chromium hexavelent", clusters[0].Members[0].Text)
	assert.GreaterOrEqual(t, clusters[0].Members[0].Similarity, 0.85)

	require.Len(t, clusters[1].Members, 1)
	assert.Equal(t, "benzo a pyrenes", clusters[1].Members[0].Text)

	// too far from its base form to attach: becomes its own anchor
	assert.Equal(t, "benzo a pyrene total", clusters[2].Anchor)
	assert.Empty(t, clusters[2].Members)
}

func TestClusterDeterministicAndOrderDependent(t *testing.T) {
	texts := []WeightedText{
		{Text: "lead dissolved", Frequency: 2},
		{Text: "lead dissolves", Frequency: 2},
	}
	a := ClusterSimilarUnknowns(texts, 0.85)
	b := ClusterSimilarUnknowns([]WeightedText{texts[1], texts[0]}, 0.85)
	assert.Equal(t, a, b, "ties break on text, not input order")
	require.Len(t, a, 1)
	assert.Equal(t, "lead dissolved", a[0].Anchor)
}

func TestClusterEmptyAndDefaults(t *testing.T) {
	assert.Empty(t, ClusterSimilarUnknowns(nil, 0))
	clusters := ClusterSimilarUnknowns([]WeightedText{{Text: "zinc", Frequency: 1}, {Text: "", Frequency: 9}}, 0)
	require.Len(t, clusters, 1)
	assert.Equal(t, "zinc", clusters[0].Anchor)
}

func TestSummarize(t *testing.T) {
	clusters := []Cluster{
		{Anchor: "a", Members: []ClusterMember{{Text: "a1"}, {Text: "a2"}}},
		{Anchor: "b"},
	}
	st := Summarize(clusters)
	assert.Equal(t, ClusterStats{Clusters: 2, Texts: 4, LargestSize: 3, Singletons: 1}, st)
}
