package corpus

import (
	"encoding/gob"
	"io"
	"math"
	"time"

	"github.com/envlytics/analyte-resolver/pkg/errors"
	"github.com/envlytics/analyte-resolver/pkg/types/common"
)

// Artifact is the serialisable form of a Snapshot: the entry arena, the CAS
// map and the embedding matrix.  The derived indexes are rebuilt on load, so
// the artifact stays small and the index layout can evolve without breaking
// stored snapshots.
type Artifact struct {
	Hash         string
	BuiltAt      time.Time
	Entries      []Entry
	CAS          map[string]common.AnalyteID
	Vectors      [][]float32
	Dim          int
	AnalyteCount int
}

// Export captures the snapshot's persistent state.
func (s *Snapshot) Export() *Artifact {
	return &Artifact{
		Hash:         s.Hash,
		BuiltAt:      s.BuiltAt,
		Entries:      s.entries,
		CAS:          s.cas,
		Vectors:      s.vectors,
		Dim:          s.dim,
		AnalyteCount: s.analyteCount,
	}
}

// FromArtifact reconstructs a ready-to-serve Snapshot, rebuilding the exact,
// blocking and norm tables from the arena.
func FromArtifact(a *Artifact) (*Snapshot, error) {
	if len(a.Entries) == 0 {
		return nil, errors.New(errors.CodeIndexBuildFailed, "artifact has no entries")
	}
	s := &Snapshot{
		Hash:         a.Hash,
		BuiltAt:      a.BuiltAt,
		entries:      a.Entries,
		exact:        make(map[string][]int),
		vendorExact:  make(map[string][]int),
		cas:          a.CAS,
		tokens:       make(map[string][]int),
		lengthBands:  make(map[int][]int),
		analyteCount: a.AnalyteCount,
	}
	if s.cas == nil {
		s.cas = make(map[string]common.AnalyteID)
	}
	(&Builder{}).indexEntries(s)

	if a.Dim > 0 && len(a.Vectors) == len(a.Entries) {
		s.dim = a.Dim
		s.vectors = a.Vectors
		s.norms = make([]float64, len(a.Vectors))
		for i, v := range a.Vectors {
			var n float64
			for _, x := range v {
				n += float64(x) * float64(x)
			}
			s.norms[i] = math.Sqrt(n)
		}
	}
	return s, nil
}

// EncodeArtifact gob-encodes the snapshot to w.
func EncodeArtifact(w io.Writer, s *Snapshot) error {
	if err := gob.NewEncoder(w).Encode(s.Export()); err != nil {
		return errors.Wrap(err, errors.CodeSnapshotStoreError, "failed to encode snapshot artifact")
	}
	return nil
}

// DecodeArtifact reads a gob-encoded artifact and rebuilds the Snapshot.
func DecodeArtifact(r io.Reader) (*Snapshot, error) {
	var a Artifact
	if err := gob.NewDecoder(r).Decode(&a); err != nil {
		return nil, errors.Wrap(err, errors.CodeSnapshotStoreError, "failed to decode snapshot artifact")
	}
	return FromArtifact(&a)
}
