package corpus

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/envlytics/analyte-resolver/internal/domain/analyte"
	"github.com/envlytics/analyte-resolver/internal/domain/normalization"
	"github.com/envlytics/analyte-resolver/internal/infrastructure/monitoring/logging"
	"github.com/envlytics/analyte-resolver/pkg/errors"
	"github.com/envlytics/analyte-resolver/pkg/types/common"
)

// EmbeddingProvider computes text embeddings in batches.
type EmbeddingProvider interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
}

// Builder assembles a Snapshot from the canonical store.  The embedding
// provider is optional; without one the snapshot serves exact and fuzzy
// lookups only.
type Builder struct {
	analytes analyte.Repository
	synonyms analyte.SynonymRepository
	embedder EmbeddingProvider

	embedBatchSize   int
	embedConcurrency int
	logger           logging.Logger
}

// NewBuilder creates a snapshot builder.  embedder may be nil.
func NewBuilder(analytes analyte.Repository, synonyms analyte.SynonymRepository, embedder EmbeddingProvider, logger logging.Logger) *Builder {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Builder{
		analytes:         analytes,
		synonyms:         synonyms,
		embedder:         embedder,
		embedBatchSize:   64,
		embedConcurrency: 4,
		logger:           logger.Named("corpus.builder"),
	}
}

// Build scans all analytes and non-deprecated synonyms, assembles the index
// structures, embeds every distinct entry text, and returns the finished
// immutable snapshot.
func (b *Builder) Build(ctx context.Context) (*Snapshot, error) {
	start := time.Now()

	s := &Snapshot{
		BuiltAt:     start,
		exact:       make(map[string][]int),
		vendorExact: make(map[string][]int),
		cas:         make(map[string]common.AnalyteID),
		tokens:      make(map[string][]int),
		lengthBands: make(map[int][]int),
	}

	analyteSeen := make(map[common.AnalyteID]struct{})
	addEntry := func(e Entry) {
		e.ID = len(s.entries)
		s.entries = append(s.entries, e)
		analyteSeen[e.AnalyteID] = struct{}{}
	}

	norm := normalization.NewNormalizer()

	page := common.Pagination{Page: 1, PageSize: 500}
	for {
		batch, _, err := b.analytes.List(ctx, page)
		if err != nil {
			return nil, errors.Wrap(err, errors.CodeIndexBuildFailed, "scan analytes")
		}
		for _, a := range batch {
			if a.CASNumber != "" && normalization.ValidateCAS(a.CASNumber) {
				s.cas[a.CASNumber] = a.ID
			}
			addEntry(Entry{
				AnalyteID:  a.ID,
				Text:       norm.NormalizeText(a.PreferredName),
				Raw:        a.PreferredName,
				Source:     analyte.SourceBootstrap,
				Confidence: 1.0,
			})
		}
		if len(batch) < page.PageSize {
			break
		}
		page.Page++
	}

	err := b.synonyms.ScanAll(ctx, func(syn *analyte.Synonym) error {
		if syn.Deprecated() {
			return nil
		}
		addEntry(Entry{
			AnalyteID:  syn.AnalyteID,
			Text:       syn.Normalized,
			Raw:        syn.Raw,
			Vendor:     syn.Vendor,
			Source:     syn.Source,
			Confidence: syn.Confidence,
		})
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeIndexBuildFailed, "scan synonyms")
	}
	if len(s.entries) == 0 {
		return nil, errors.New(errors.CodeIndexBuildFailed, "empty corpus: no analytes or synonyms")
	}
	s.analyteCount = len(analyteSeen)

	b.indexEntries(s)
	s.Hash = corpusHash(s.entries)

	if b.embedder != nil {
		if err := b.embed(ctx, s); err != nil {
			return nil, err
		}
	}

	b.logger.Info("corpus snapshot built",
		logging.String("hash", s.Hash),
		logging.Int("entries", len(s.entries)),
		logging.Int("analytes", s.analyteCount),
		logging.Bool("vectors", s.HasVectors()),
		logging.Duration("elapsed", time.Since(start)))
	return s, nil
}

func (b *Builder) indexEntries(s *Snapshot) {
	for _, e := range s.entries {
		// Vendor-scoped entries live only in the vendor map; putting them in
		// the global map would let one lab's synonym match another lab's data.
		if e.Vendor.IsGlobal() {
			s.exact[e.Text] = append(s.exact[e.Text], e.ID)
		} else {
			k := vendorKey(e.Vendor, e.Text)
			s.vendorExact[k] = append(s.vendorExact[k], e.ID)
		}
		for _, tok := range tokenize(e.Text) {
			s.tokens[tok] = append(s.tokens[tok], e.ID)
		}
		band := len(e.Text) / lengthBandWidth
		s.lengthBands[band] = append(s.lengthBands[band], e.ID)
	}
}

func (b *Builder) embed(ctx context.Context, s *Snapshot) error {
	s.dim = b.embedder.Dimension()
	s.vectors = make([][]float32, len(s.entries))
	s.norms = make([]float64, len(s.entries))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.embedConcurrency)
	for lo := 0; lo < len(s.entries); lo += b.embedBatchSize {
		lo := lo
		hi := lo + b.embedBatchSize
		if hi > len(s.entries) {
			hi = len(s.entries)
		}
		g.Go(func() error {
			texts := make([]string, hi-lo)
			for i := lo; i < hi; i++ {
				texts[i-lo] = s.entries[i].Text
			}
			vecs, err := b.embedder.EmbedBatch(gctx, texts)
			if err != nil {
				return errors.Wrap(err, errors.CodeIndexBuildFailed, "embed batch")
			}
			if len(vecs) != hi-lo {
				return errors.Newf(errors.CodeIndexBuildFailed,
					"embedding batch returned %d vectors for %d texts", len(vecs), hi-lo)
			}
			for i, v := range vecs {
				s.vectors[lo+i] = v
				var n float64
				for _, x := range v {
					n += float64(x) * float64(x)
				}
				s.norms[lo+i] = math.Sqrt(n)
			}
			return nil
		})
	}
	return g.Wait()
}

// corpusHash fingerprints the matchable content of the corpus.  It is
// independent of entry order so functionally identical builds hash alike.
func corpusHash(entries []Entry) string {
	lines := make([]string, len(entries))
	for i, e := range entries {
		lines[i] = fmt.Sprintf("%s\x00%s\x00%s\n", e.Vendor, e.Text, e.AnalyteID)
	}
	sort.Strings(lines)
	h := sha256.New()
	for _, l := range lines {
		h.Write([]byte(l))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// tokenize returns the distinct whitespace-separated tokens of a
// normalized text, sorted for deterministic index layout.
func tokenize(text string) []string {
	seen := make(map[string]struct{})
	for _, f := range strings.Fields(text) {
		seen[f] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for f := range seen {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}
