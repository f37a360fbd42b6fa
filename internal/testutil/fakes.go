package testutil

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/envlytics/analyte-resolver/internal/domain/analyte"
	"github.com/envlytics/analyte-resolver/internal/domain/normalization"
	"github.com/envlytics/analyte-resolver/pkg/errors"
	"github.com/envlytics/analyte-resolver/pkg/types/common"
)

// ─────────────────────────────────────────────────────────────────────────────
// In-memory repositories
// ─────────────────────────────────────────────────────────────────────────────

// InMemoryAnalyteRepo is a map-backed analyte.Repository for tests.
type InMemoryAnalyteRepo struct {
	mu       sync.RWMutex
	Analytes []*analyte.Analyte
}

func NewInMemoryAnalyteRepo(as ...*analyte.Analyte) *InMemoryAnalyteRepo {
	return &InMemoryAnalyteRepo{Analytes: as}
}

func (r *InMemoryAnalyteRepo) GetByID(_ context.Context, id common.AnalyteID) (*analyte.Analyte, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, a := range r.Analytes {
		if a.ID == id {
			return a, nil
		}
	}
	return nil, errors.New(errors.CodeAnalyteNotFound, "analyte not found")
}

func (r *InMemoryAnalyteRepo) GetByCAS(_ context.Context, cas string) (*analyte.Analyte, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, a := range r.Analytes {
		if a.CASNumber == cas {
			return a, nil
		}
	}
	return nil, errors.New(errors.CodeAnalyteNotFound, "analyte not found")
}

func (r *InMemoryAnalyteRepo) List(_ context.Context, p common.Pagination) ([]*analyte.Analyte, int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p.Normalize()
	lo := p.Offset()
	if lo >= len(r.Analytes) {
		return nil, int64(len(r.Analytes)), nil
	}
	hi := lo + p.PageSize
	if hi > len(r.Analytes) {
		hi = len(r.Analytes)
	}
	return r.Analytes[lo:hi], int64(len(r.Analytes)), nil
}

func (r *InMemoryAnalyteRepo) Create(_ context.Context, a *analyte.Analyte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Analytes = append(r.Analytes, a)
	return nil
}

func (r *InMemoryAnalyteRepo) Update(_ context.Context, a *analyte.Analyte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, old := range r.Analytes {
		if old.ID == a.ID {
			r.Analytes[i] = a
			return nil
		}
	}
	return errors.New(errors.CodeAnalyteNotFound, "analyte not found")
}

func (r *InMemoryAnalyteRepo) Count(_ context.Context) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return int64(len(r.Analytes)), nil
}

// InMemorySynonymRepo is a slice-backed analyte.SynonymRepository for tests.
type InMemorySynonymRepo struct {
	mu       sync.RWMutex
	Synonyms []*analyte.Synonym
	nextID   int64
}

func NewInMemorySynonymRepo(ss ...*analyte.Synonym) *InMemorySynonymRepo {
	r := &InMemorySynonymRepo{Synonyms: ss}
	for _, s := range ss {
		if s.ID > r.nextID {
			r.nextID = s.ID
		}
	}
	return r
}

func (r *InMemorySynonymRepo) GetByNormalized(_ context.Context, norm string, vendor common.Vendor) ([]*analyte.Synonym, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*analyte.Synonym
	for _, s := range r.Synonyms {
		if s.Normalized == norm && (s.Vendor.IsGlobal() || s.Vendor == vendor) {
			out = append(out, s)
		}
	}
	return out, nil
}

func (r *InMemorySynonymRepo) ListByAnalyte(_ context.Context, id common.AnalyteID) ([]*analyte.Synonym, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*analyte.Synonym
	for _, s := range r.Synonyms {
		if s.AnalyteID == id {
			out = append(out, s)
		}
	}
	return out, nil
}

func (r *InMemorySynonymRepo) List(_ context.Context, f analyte.SynonymFilter) ([]*analyte.Synonym, int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*analyte.Synonym
	for _, s := range r.Synonyms {
		if f.AnalyteID != "" && s.AnalyteID != f.AnalyteID {
			continue
		}
		if !f.Vendor.IsGlobal() && s.Vendor != f.Vendor {
			continue
		}
		if f.Source != "" && s.Source != f.Source {
			continue
		}
		if s.Confidence < f.MinConfidence {
			continue
		}
		out = append(out, s)
	}
	return out, int64(len(out)), nil
}

func (r *InMemorySynonymRepo) Upsert(_ context.Context, s *analyte.Synonym) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, old := range r.Synonyms {
		if old.AnalyteID == s.AnalyteID && old.Normalized == s.Normalized && old.Vendor == s.Vendor {
			old.Confidence = s.Confidence
			return false, nil
		}
	}
	r.nextID++
	s.ID = r.nextID
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now()
	}
	r.Synonyms = append(r.Synonyms, s)
	return true, nil
}

func (r *InMemorySynonymRepo) Deprecate(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.Synonyms {
		if s.ID == id {
			s.Confidence = 0
			return nil
		}
	}
	return errors.New(errors.CodeSynonymNotFound, "synonym not found")
}

func (r *InMemorySynonymRepo) ScanAll(_ context.Context, fn func(*analyte.Synonym) error) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, s := range r.Synonyms {
		if err := fn(s); err != nil {
			return err
		}
	}
	return nil
}

func (r *InMemorySynonymRepo) Count(_ context.Context) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return int64(len(r.Synonyms)), nil
}

// InMemoryVariantRepo is a map-backed analyte.VariantRepository for tests.
type InMemoryVariantRepo struct {
	mu       sync.Mutex
	Variants map[string]*analyte.LabVariant // vendor + "\x00" + observed
	nextID   int64
}

func NewInMemoryVariantRepo() *InMemoryVariantRepo {
	return &InMemoryVariantRepo{Variants: make(map[string]*analyte.LabVariant)}
}

func variantKey(vendor common.Vendor, observed string) string {
	return string(vendor) + "\x00" + observed
}

// cloneVariant detaches the returned row from the stored one, the same way
// the pgx repository scans a fresh row per call.  Callers mutating the
// result must not see their edits reflected in the store.
func cloneVariant(v *analyte.LabVariant) *analyte.LabVariant {
	c := *v
	if v.LastCollision != nil {
		t := *v.LastCollision
		c.LastCollision = &t
	}
	return &c
}

func (r *InMemoryVariantRepo) Get(_ context.Context, vendor common.Vendor, observed string) (*analyte.LabVariant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if v, ok := r.Variants[variantKey(vendor, observed)]; ok {
		return cloneVariant(v), nil
	}
	return nil, errors.New(errors.CodeVariantNotFound, "variant not found")
}

func (r *InMemoryVariantRepo) GetByID(_ context.Context, id int64) (*analyte.LabVariant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, v := range r.Variants {
		if v.ID == id {
			return cloneVariant(v), nil
		}
	}
	return nil, errors.New(errors.CodeVariantNotFound, "variant not found")
}

func (r *InMemoryVariantRepo) UpsertObservation(_ context.Context, vendor common.Vendor, observed string, seen time.Time) (*analyte.LabVariant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := variantKey(vendor, observed)
	if v, ok := r.Variants[k]; ok {
		v.FrequencyCount++
		if seen.After(v.LastSeen) {
			v.LastSeen = seen
		}
		return cloneVariant(v), nil
	}
	r.nextID++
	v := &analyte.LabVariant{
		ID:                   r.nextID,
		Vendor:               vendor,
		ObservedText:         observed,
		FrequencyCount:       1,
		FirstSeen:            seen,
		LastSeen:             seen,
		NormalizationVersion: normalization.NormalizationVersion,
		CreatedAt:            seen,
	}
	r.Variants[k] = v
	return cloneVariant(v), nil
}

func (r *InMemoryVariantRepo) RecordCollision(_ context.Context, id int64, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, v := range r.Variants {
		if v.ID == id {
			v.CollisionCount++
			t := at
			v.LastCollision = &t
			return nil
		}
	}
	return errors.New(errors.CodeVariantNotFound, "variant not found")
}

func (r *InMemoryVariantRepo) SetValidation(_ context.Context, id int64, analyteID common.AnalyteID, conf analyte.ValidationConfidence) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, v := range r.Variants {
		if v.ID == id {
			v.ValidatedAnalyteID = analyteID
			v.ValidationConfidence = conf
			return nil
		}
	}
	return errors.New(errors.CodeVariantNotFound, "variant not found")
}

func (r *InMemoryVariantRepo) ListUnvalidated(_ context.Context, vendor common.Vendor, p common.Pagination) ([]*analyte.LabVariant, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*analyte.LabVariant
	for _, v := range r.Variants {
		if v.ValidatedAnalyteID != "" {
			continue
		}
		if !vendor.IsGlobal() && v.Vendor != vendor {
			continue
		}
		out = append(out, cloneVariant(v))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, int64(len(out)), nil
}

func (r *InMemoryVariantRepo) CountValidatedByVendor(_ context.Context, vendor common.Vendor) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, v := range r.Variants {
		if v.Vendor == vendor && v.ValidatedAnalyteID != "" {
			n++
		}
	}
	return n, nil
}

// InMemoryConfirmationRepo is a slice-backed analyte.ConfirmationRepository.
type InMemoryConfirmationRepo struct {
	mu            sync.Mutex
	Confirmations []*analyte.LabVariantConfirmation
	nextID        int64
}

func NewInMemoryConfirmationRepo() *InMemoryConfirmationRepo {
	return &InMemoryConfirmationRepo{}
}

func (r *InMemoryConfirmationRepo) Insert(_ context.Context, c *analyte.LabVariantConfirmation) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, old := range r.Confirmations {
		if old.VariantID == c.VariantID && old.SubmissionID == c.SubmissionID {
			return false, nil
		}
	}
	r.nextID++
	c.ID = r.nextID
	r.Confirmations = append(r.Confirmations, c)
	return true, nil
}

func (r *InMemoryConfirmationRepo) ListByVariant(_ context.Context, variantID int64) ([]*analyte.LabVariantConfirmation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*analyte.LabVariantConfirmation
	for _, c := range r.Confirmations {
		if c.VariantID == variantID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (r *InMemoryConfirmationRepo) InvalidateForConsensus(_ context.Context, variantID int64, keep common.AnalyteID) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, c := range r.Confirmations {
		if c.VariantID == variantID && c.ConfirmedAnalyte != keep && c.ValidForConsensus {
			c.ValidForConsensus = false
			n++
		}
	}
	return n, nil
}

// InMemoryDecisionRepo is a slice-backed analyte.DecisionRepository.
type InMemoryDecisionRepo struct {
	mu        sync.Mutex
	Decisions []*analyte.MatchDecision
	nextID    int64
}

func NewInMemoryDecisionRepo() *InMemoryDecisionRepo { return &InMemoryDecisionRepo{} }

func (r *InMemoryDecisionRepo) Insert(_ context.Context, d *analyte.MatchDecision) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	d.ID = r.nextID
	r.Decisions = append(r.Decisions, d)
	return nil
}

func (r *InMemoryDecisionRepo) GetByID(_ context.Context, id int64) (*analyte.MatchDecision, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, d := range r.Decisions {
		if d.ID == id {
			return d, nil
		}
	}
	return nil, errors.New(errors.CodeDecisionNotFound, "decision not found")
}

func (r *InMemoryDecisionRepo) List(_ context.Context, f analyte.DecisionFilter) ([]*analyte.MatchDecision, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*analyte.MatchDecision
	for _, d := range r.Decisions {
		if !f.Vendor.IsGlobal() && d.Vendor != f.Vendor {
			continue
		}
		if f.Band != "" && d.Band != f.Band {
			continue
		}
		if f.HumanValidated != nil && d.HumanValidated != *f.HumanValidated {
			continue
		}
		if f.Ingested != nil && d.Ingested != *f.Ingested {
			continue
		}
		out = append(out, d)
	}
	return out, int64(len(out)), nil
}

func (r *InMemoryDecisionRepo) AttachValidation(_ context.Context, id int64, validatedID common.AnalyteID, notes string) (*analyte.MatchDecision, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, d := range r.Decisions {
		if d.ID != id {
			continue
		}
		if d.HumanValidated {
			return nil, errors.New(errors.CodeDecisionAlreadyReviewed, "decision already validated")
		}
		d.HumanValidated = true
		d.ValidationNotes = notes
		if validatedID != d.MatchedAnalyteID {
			d.IsCorrected = true
		}
		return d, nil
	}
	return nil, errors.New(errors.CodeDecisionNotFound, "decision not found")
}

func (r *InMemoryDecisionRepo) InsertCorrection(_ context.Context, original int64, corrected *analyte.MatchDecision) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var orig *analyte.MatchDecision
	for _, d := range r.Decisions {
		if d.ID == original {
			orig = d
			break
		}
	}
	if orig == nil {
		return errors.New(errors.CodeDecisionNotFound, "decision not found")
	}
	orig.IsCorrected = true
	r.nextID++
	corrected.ID = r.nextID
	corrected.CorrectionOf = &original
	r.Decisions = append(r.Decisions, corrected)
	return nil
}

func (r *InMemoryDecisionRepo) ListValidatedSince(_ context.Context, since time.Time, vendor common.Vendor) ([]*analyte.MatchDecision, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*analyte.MatchDecision
	for _, d := range r.Decisions {
		if !d.HumanValidated || d.DecidedAt.Before(since) {
			continue
		}
		if !vendor.IsGlobal() && d.Vendor != vendor {
			continue
		}
		out = append(out, d)
	}
	return out, nil
}

func (r *InMemoryDecisionRepo) MarkIngested(_ context.Context, ids []int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, d := range r.Decisions {
		for _, id := range ids {
			if d.ID == id {
				d.Ingested = true
			}
		}
	}
	return nil
}

// InMemorySnapshotRepo is a slice-backed analyte.SnapshotRepository.
type InMemorySnapshotRepo struct {
	mu        sync.RWMutex
	Snapshots []*analyte.CorpusSnapshot
}

func NewInMemorySnapshotRepo() *InMemorySnapshotRepo { return &InMemorySnapshotRepo{} }

func (r *InMemorySnapshotRepo) Insert(_ context.Context, s *analyte.CorpusSnapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s.ID == "" {
		s.ID = common.NewID()
	}
	if s.BuiltAt.IsZero() {
		s.BuiltAt = time.Now().UTC()
	}
	s.Active = false
	r.Snapshots = append(r.Snapshots, s)
	return nil
}

func (r *InMemorySnapshotRepo) Activate(_ context.Context, id common.ID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var found bool
	for _, s := range r.Snapshots {
		if s.ID == id {
			found = true
			break
		}
	}
	if !found {
		return errors.New(errors.CodeNotFound, "snapshot not found")
	}
	for _, s := range r.Snapshots {
		s.Active = s.ID == id
	}
	return nil
}

func (r *InMemorySnapshotRepo) GetActive(_ context.Context, indexType string) (*analyte.CorpusSnapshot, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, s := range r.Snapshots {
		if s.Active && s.IndexType == indexType {
			return s, nil
		}
	}
	return nil, errors.New(errors.CodeIndexUnavailable, "no active corpus snapshot for "+indexType)
}

func (r *InMemorySnapshotRepo) List(_ context.Context, indexType string, _ common.Pagination) ([]*analyte.CorpusSnapshot, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*analyte.CorpusSnapshot
	for _, s := range r.Snapshots {
		if s.IndexType == indexType {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].BuiltAt.After(out[j].BuiltAt) })
	return out, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Embedding
// ─────────────────────────────────────────────────────────────────────────────

// HashEmbedder maps each text onto a deterministic vector derived from its
// bytes: stable across runs, similar texts land close, identical texts land
// identically.  Implements both the corpus EmbeddingProvider and the
// resolution Embedder contracts.
type HashEmbedder struct{ Dim int }

func (h *HashEmbedder) Dimension() int { return h.Dim }

func (h *HashEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	v := make([]float32, h.Dim)
	for j, c := range []byte(text) {
		v[j%h.Dim] += float32(c) / 128
	}
	return v, nil
}

func (h *HashEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := h.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}
