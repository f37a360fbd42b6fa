// Package corpus builds and serves the immutable in-memory index the
// resolution engine matches against: an entry arena with exact, blocking and
// vector indexes, swapped atomically on rebuild.
package corpus

import (
	"context"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/envlytics/analyte-resolver/internal/domain/analyte"
	"github.com/envlytics/analyte-resolver/pkg/errors"
	"github.com/envlytics/analyte-resolver/pkg/types/common"
)

// lengthBandWidth groups entries into bands of this many characters for
// fuzzy shortlisting.
const lengthBandWidth = 4

// Entry is one matchable text in the corpus.
type Entry struct {
	ID         int
	AnalyteID  common.AnalyteID
	Text       string // normalized
	Raw        string
	Vendor     common.Vendor
	Source     analyte.SynonymSource
	Confidence float64
}

// VectorHit is one semantic nearest neighbor.
type VectorHit struct {
	EntryID   int
	AnalyteID common.AnalyteID
	Cosine    float64
}

// VectorSearcher finds the nearest corpus entries to a query embedding.
// Implemented in-process by Snapshot and externally by the Milvus adapter.
type VectorSearcher interface {
	SearchVector(ctx context.Context, vec []float32, topK int) ([]VectorHit, error)
}

// Snapshot is one immutable build of the corpus index.  All lookups are
// read-only and safe for concurrent use; a rebuild produces a new Snapshot
// and installs it through the Provider.
type Snapshot struct {
	Hash    string
	BuiltAt time.Time

	entries     []Entry
	exact       map[string][]int // normalized text -> entry ids (global)
	vendorExact map[string][]int // vendor + "\x00" + text -> entry ids
	cas         map[string]common.AnalyteID
	tokens      map[string][]int
	lengthBands map[int][]int

	vectors [][]float32 // entry id -> embedding, nil when not embedded
	norms   []float64
	dim     int

	analyteCount int
}

func vendorKey(v common.Vendor, text string) string {
	return string(v) + "\x00" + text
}

// EntryCount returns the number of matchable entries.
func (s *Snapshot) EntryCount() int { return len(s.entries) }

// AnalyteCount returns the number of distinct analytes indexed.
func (s *Snapshot) AnalyteCount() int { return s.analyteCount }

// Entry returns the entry with the given arena id.
func (s *Snapshot) Entry(id int) Entry { return s.entries[id] }

// LookupCAS resolves a validated CAS registry number to its analyte.
func (s *Snapshot) LookupCAS(cas string) (common.AnalyteID, bool) {
	id, ok := s.cas[cas]
	return id, ok
}

// LookupExact returns the entries whose normalized text equals the query.
// Vendor-scoped entries for the given vendor come first, then global ones.
func (s *Snapshot) LookupExact(text string, vendor common.Vendor) []Entry {
	var out []Entry
	if !vendor.IsGlobal() {
		for _, id := range s.vendorExact[vendorKey(vendor, text)] {
			out = append(out, s.entries[id])
		}
	}
	for _, id := range s.exact[text] {
		out = append(out, s.entries[id])
	}
	return out
}

// Shortlist returns the entries worth fuzzy-scoring against the query:
// every entry sharing at least one token, widened by the query's length
// band and its neighbors.  Output is deduplicated and ordered by entry id.
func (s *Snapshot) Shortlist(text string) []Entry {
	seen := make(map[int]struct{})
	for _, tok := range strings.Fields(text) {
		for _, id := range s.tokens[tok] {
			seen[id] = struct{}{}
		}
	}
	band := len(text) / lengthBandWidth
	for b := band - 1; b <= band+1; b++ {
		for _, id := range s.lengthBands[b] {
			seen[id] = struct{}{}
		}
	}
	ids := make([]int, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	out := make([]Entry, len(ids))
	for i, id := range ids {
		out[i] = s.entries[id]
	}
	return out
}

// HasVectors reports whether the snapshot carries an embedding table.
func (s *Snapshot) HasVectors() bool { return s.dim > 0 }

// Dimension returns the embedding dimensionality, 0 when unembedded.
func (s *Snapshot) Dimension() int { return s.dim }

// Vector returns one entry's embedding, nil when the corpus is unembedded.
func (s *Snapshot) Vector(id int) []float32 {
	if s.vectors == nil {
		return nil
	}
	return s.vectors[id]
}

// SearchVector scans the embedding table for the topK entries with the
// highest cosine similarity to vec.  Exhaustive by intent: corpus scale is
// tens of thousands of entries and the scan stays in cache.
func (s *Snapshot) SearchVector(_ context.Context, vec []float32, topK int) ([]VectorHit, error) {
	if s.dim == 0 {
		return nil, errors.New(errors.CodeVectorSearchFailed, "snapshot has no embedding table")
	}
	if len(vec) != s.dim {
		return nil, errors.Newf(errors.CodeVectorSearchFailed,
			"query dimension %d does not match index dimension %d", len(vec), s.dim)
	}
	var qn float64
	for _, x := range vec {
		qn += float64(x) * float64(x)
	}
	qn = math.Sqrt(qn)
	if qn == 0 {
		return nil, errors.New(errors.CodeVectorSearchFailed, "zero query vector")
	}

	hits := make([]VectorHit, 0, len(s.entries))
	for id, row := range s.vectors {
		if row == nil || s.norms[id] == 0 {
			continue
		}
		var dot float64
		for i, x := range row {
			dot += float64(x) * float64(vec[i])
		}
		hits = append(hits, VectorHit{
			EntryID:   id,
			AnalyteID: s.entries[id].AnalyteID,
			Cosine:    dot / (s.norms[id] * qn),
		})
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Cosine > hits[j].Cosine })
	if topK > 0 && len(hits) > topK {
		hits = hits[:topK]
	}
	return hits, nil
}
