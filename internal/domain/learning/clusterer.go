package learning

import (
	"sort"

	"github.com/envlytics/analyte-resolver/internal/domain/resolution"
)

// DefaultClusterThreshold is the similarity above which two unknown texts
// land in the same review cluster.
const DefaultClusterThreshold = 0.85

// WeightedText is an unresolved text with its observation frequency.
type WeightedText struct {
	Text      string
	Frequency int
}

// ClusterMember is one text attached to an anchor.
type ClusterMember struct {
	Text       string
	Similarity float64
}

// Cluster groups similar unknown texts around the most frequent one.
type Cluster struct {
	Anchor  string
	Members []ClusterMember
}

// Size counts the anchor plus its members.
func (c Cluster) Size() int { return 1 + len(c.Members) }

// ClusterSimilarUnknowns groups texts by greedy single-link clustering:
// texts are visited in frequency-descending order, each unclaimed text
// opens a cluster, and later texts attach to the first anchor whose
// similarity clears the threshold.  Order-dependent and deterministic,
// trading cluster purity for speed — review batching wants stable output,
// not optimal partitions.
func ClusterSimilarUnknowns(texts []WeightedText, threshold float64) []Cluster {
	if threshold <= 0 {
		threshold = DefaultClusterThreshold
	}
	ordered := make([]WeightedText, len(texts))
	copy(ordered, texts)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].Frequency != ordered[j].Frequency {
			return ordered[i].Frequency > ordered[j].Frequency
		}
		return ordered[i].Text < ordered[j].Text
	})

	var clusters []Cluster
	for _, wt := range ordered {
		if wt.Text == "" {
			continue
		}
		attached := false
		for ci := range clusters {
			sim := resolution.Similarity(wt.Text, clusters[ci].Anchor)
			if sim >= threshold {
				clusters[ci].Members = append(clusters[ci].Members, ClusterMember{Text: wt.Text, Similarity: sim})
				attached = true
				break
			}
		}
		if !attached {
			clusters = append(clusters, Cluster{Anchor: wt.Text})
		}
	}
	return clusters
}

// ClusterStats summarizes a clustering run for review dashboards.
type ClusterStats struct {
	Clusters    int
	Texts       int
	LargestSize int
	Singletons  int
}

// Summarize computes run statistics over clusters.
func Summarize(clusters []Cluster) ClusterStats {
	st := ClusterStats{Clusters: len(clusters)}
	for _, c := range clusters {
		st.Texts += c.Size()
		if c.Size() > st.LargestSize {
			st.LargestSize = c.Size()
		}
		if len(c.Members) == 0 {
			st.Singletons++
		}
	}
	return st
}
