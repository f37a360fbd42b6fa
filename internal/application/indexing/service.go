// Package indexing is the application service around corpus snapshot
// builds: rebuilding, persisting the artifact, activating the metadata row
// and hot-swapping the in-memory index.
package indexing

import (
	"context"
	"time"

	"github.com/envlytics/analyte-resolver/internal/domain/analyte"
	"github.com/envlytics/analyte-resolver/internal/domain/corpus"
	"github.com/envlytics/analyte-resolver/internal/infrastructure/messaging/kafka"
	"github.com/envlytics/analyte-resolver/internal/infrastructure/monitoring/logging"
	"github.com/envlytics/analyte-resolver/internal/infrastructure/monitoring/prometheus"
	"github.com/envlytics/analyte-resolver/pkg/errors"
)

// IndexTypeResolver is the index type this service owns in the snapshot
// metadata table.
const IndexTypeResolver = "resolver"

// ArtifactStore persists snapshot artifacts by content hash.
type ArtifactStore interface {
	Put(ctx context.Context, snap *corpus.Snapshot) (string, error)
	Get(ctx context.Context, object string) (*corpus.Snapshot, error)
}

// VectorExporter pushes snapshot embeddings into an external vector index.
type VectorExporter interface {
	Export(ctx context.Context, snap *corpus.Snapshot) (string, error)
}

// Locker serializes rebuilds across instances.
type Locker interface {
	TryLock(ctx context.Context) (bool, error)
	Unlock(ctx context.Context) error
}

// EventPublisher is the slice of the Kafka producer the service needs.
type EventPublisher interface {
	PublishSnapshotActivated(ctx context.Context, payload kafka.SnapshotActivatedPayload) error
}

// Service owns the snapshot lifecycle.
type Service interface {
	// Rebuild builds, persists and activates a fresh snapshot.
	Rebuild(ctx context.Context) (*RebuildReport, error)
	// RebuildIfStale rebuilds only when runtime learning flagged the
	// active snapshot stale.  Returns a nil report when nothing was done.
	RebuildIfStale(ctx context.Context) (*RebuildReport, error)
	// LoadActive restores the active snapshot from the artifact store at
	// startup, rebuilding from the database when none exists yet.
	LoadActive(ctx context.Context) error
}

// RebuildReport summarizes one rebuild.
type RebuildReport struct {
	SnapshotID   string        `json:"snapshot_id"`
	Hash         string        `json:"hash"`
	AnalyteCount int           `json:"analyte_count"`
	EntryCount   int           `json:"entry_count"`
	ArtifactPath string        `json:"artifact_path,omitempty"`
	Collection   string        `json:"vector_collection,omitempty"`
	BuildTime    time.Duration `json:"build_time"`
	Skipped      string        `json:"skipped_reason,omitempty"`
}

type service struct {
	builder   *corpus.Builder
	provider  *corpus.Provider
	snapshots analyte.SnapshotRepository
	store     ArtifactStore  // nil keeps snapshots in memory only
	exporter  VectorExporter // nil keeps vectors in the snapshot
	locker    Locker         // nil skips cross-instance serialization
	publisher EventPublisher
	metrics   *prometheus.AppMetrics
	logger    logging.Logger
	now       func() time.Time
}

// NewService wires the snapshot lifecycle.  Store, exporter, locker,
// publisher and metrics are optional; a nil value disables that
// integration.
func NewService(
	builder *corpus.Builder,
	provider *corpus.Provider,
	snapshots analyte.SnapshotRepository,
	store ArtifactStore,
	exporter VectorExporter,
	locker Locker,
	publisher EventPublisher,
	metrics *prometheus.AppMetrics,
	logger logging.Logger,
) Service {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &service{
		builder:   builder,
		provider:  provider,
		snapshots: snapshots,
		store:     store,
		exporter:  exporter,
		locker:    locker,
		publisher: publisher,
		metrics:   metrics,
		logger:    logger.Named("indexing"),
		now:       time.Now,
	}
}

func (s *service) Rebuild(ctx context.Context) (*RebuildReport, error) {
	if s.locker != nil {
		ok, err := s.locker.TryLock(ctx)
		if err != nil {
			return nil, err
		}
		if !ok {
			s.logger.Info("rebuild already running elsewhere, skipping")
			return &RebuildReport{Skipped: "rebuild lock held by another instance"}, nil
		}
		defer func() {
			if err := s.locker.Unlock(ctx); err != nil {
				s.logger.Warn("rebuild lock release failed", logging.Err(err))
			}
		}()
	}
	return s.rebuildLocked(ctx)
}

func (s *service) rebuildLocked(ctx context.Context) (*RebuildReport, error) {
	start := s.now()
	snap, err := s.builder.Build(ctx)
	if err != nil {
		return nil, err
	}
	elapsed := s.now().Sub(start)

	report := &RebuildReport{
		Hash:         snap.Hash,
		AnalyteCount: snap.AnalyteCount(),
		EntryCount:   snap.EntryCount(),
		BuildTime:    elapsed,
	}

	if s.store != nil {
		object, err := s.store.Put(ctx, snap)
		if err != nil {
			return nil, err
		}
		report.ArtifactPath = object
	}

	if s.exporter != nil && snap.HasVectors() {
		collection, err := s.exporter.Export(ctx, snap)
		if err != nil {
			// in-snapshot vectors still serve semantic search
			s.logger.Warn("vector export failed, serving vectors from memory",
				logging.String("hash", snap.Hash), logging.Err(err))
		} else {
			report.Collection = collection
		}
	}

	row := &analyte.CorpusSnapshot{
		IndexType:    IndexTypeResolver,
		Hash:         snap.Hash,
		AnalyteCount: snap.AnalyteCount(),
		SynonymCount: snap.EntryCount(),
		ArtifactPath: report.ArtifactPath,
		BuiltAt:      snap.BuiltAt,
	}
	if err := s.snapshots.Insert(ctx, row); err != nil {
		return nil, err
	}
	if err := s.snapshots.Activate(ctx, row.ID); err != nil {
		return nil, err
	}
	report.SnapshotID = string(row.ID)

	s.provider.Install(snap)
	s.publishActivated(ctx, row)
	if s.metrics != nil {
		s.metrics.SnapshotBuildDuration.WithLabelValues(IndexTypeResolver).Observe(elapsed.Seconds())
		s.metrics.RecordSnapshotActivated(IndexTypeResolver, snap.EntryCount(), snap.AnalyteCount())
	}
	s.logger.Info("corpus snapshot activated",
		logging.String("hash", snap.Hash),
		logging.Int("analytes", snap.AnalyteCount()),
		logging.Int("entries", snap.EntryCount()),
		logging.Duration("build_time", elapsed))
	return report, nil
}

func (s *service) RebuildIfStale(ctx context.Context) (*RebuildReport, error) {
	if !s.provider.Stale() {
		return nil, nil
	}
	return s.Rebuild(ctx)
}

func (s *service) LoadActive(ctx context.Context) error {
	row, err := s.snapshots.GetActive(ctx, IndexTypeResolver)
	if err != nil {
		if errors.IsCode(err, errors.CodeIndexUnavailable) {
			s.logger.Info("no active snapshot, building initial corpus")
			_, err := s.Rebuild(ctx)
			return err
		}
		return err
	}

	if s.store == nil || row.ArtifactPath == "" {
		// metadata without a restorable artifact; rebuild from the database
		_, err := s.Rebuild(ctx)
		return err
	}

	snap, err := s.store.Get(ctx, row.ArtifactPath)
	if err != nil {
		s.logger.Warn("snapshot artifact unreadable, rebuilding",
			logging.String("artifact", row.ArtifactPath), logging.Err(err))
		_, err := s.Rebuild(ctx)
		return err
	}

	s.provider.Install(snap)
	if s.metrics != nil {
		s.metrics.RecordSnapshotActivated(IndexTypeResolver, snap.EntryCount(), snap.AnalyteCount())
	}
	s.logger.Info("corpus snapshot restored",
		logging.String("hash", snap.Hash),
		logging.Int("entries", snap.EntryCount()))
	return nil
}

func (s *service) publishActivated(ctx context.Context, row *analyte.CorpusSnapshot) {
	if s.publisher == nil {
		return
	}
	err := s.publisher.PublishSnapshotActivated(ctx, kafka.SnapshotActivatedPayload{
		SnapshotID:   row.ID,
		Hash:         row.Hash,
		AnalyteCount: row.AnalyteCount,
		SynonymCount: row.SynonymCount,
		ActivatedAt:  s.now().UTC(),
	})
	if s.metrics != nil {
		s.metrics.RecordEventPublished(kafka.TopicSnapshotActivated, err)
	}
	if err != nil {
		s.logger.Warn("snapshot event publish failed",
			logging.String("hash", row.Hash), logging.Err(err))
	}
}
