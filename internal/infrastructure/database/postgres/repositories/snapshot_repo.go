package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/envlytics/analyte-resolver/internal/domain/analyte"
	"github.com/envlytics/analyte-resolver/internal/infrastructure/monitoring/logging"
	appErrors "github.com/envlytics/analyte-resolver/pkg/errors"
	"github.com/envlytics/analyte-resolver/pkg/types/common"
)

const snapshotColumns = `id, index_type, hash, analyte_count, synonym_count, active, artifact_path, built_at`

// SnapshotRepository is the PostgreSQL implementation of
// analyte.SnapshotRepository.
type SnapshotRepository struct {
	pool   *pgxpool.Pool
	logger Logger
}

// NewSnapshotRepository constructs a ready-to-use SnapshotRepository.
func NewSnapshotRepository(pool *pgxpool.Pool, logger Logger) *SnapshotRepository {
	return &SnapshotRepository{pool: pool, logger: logger}
}

// Insert persists new snapshot metadata.  New snapshots always start
// inactive; Activate flips them live.
func (r *SnapshotRepository) Insert(ctx context.Context, s *analyte.CorpusSnapshot) error {
	if s.ID == "" {
		s.ID = common.NewID()
	}
	if s.BuiltAt.IsZero() {
		s.BuiltAt = time.Now().UTC()
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO corpus_snapshots (
			id, index_type, hash, analyte_count, synonym_count, active, artifact_path, built_at
		) VALUES ($1,$2,$3,$4,$5,FALSE,$6,$7)`,
		s.ID, s.IndexType, s.Hash, s.AnalyteCount, s.SynonymCount, s.ArtifactPath, s.BuiltAt,
	)
	if err != nil {
		r.logger.Error("SnapshotRepository.Insert", logging.String("hash", s.Hash), logging.Err(err))
		return appErrors.Wrap(err, appErrors.CodeSnapshotStoreError, "failed to insert corpus snapshot")
	}
	s.Active = false
	return nil
}

// Activate makes the given snapshot the single active one for its index
// type, deactivating any predecessor in the same transaction.
func (r *SnapshotRepository) Activate(ctx context.Context, id common.ID) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return appErrors.Wrap(err, appErrors.CodeDBConnectionError, "failed to begin transaction")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	var indexType string
	err = tx.QueryRow(ctx, `SELECT index_type FROM corpus_snapshots WHERE id = $1 FOR UPDATE`, id).Scan(&indexType)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return appErrors.New(appErrors.CodeNotFound, "corpus snapshot "+string(id)+" not found")
		}
		return appErrors.Wrap(err, appErrors.CodeDBQueryError, "failed to lock corpus snapshot")
	}

	_, err = tx.Exec(ctx, `
		UPDATE corpus_snapshots SET active = FALSE
		WHERE index_type = $1 AND active AND id <> $2`, indexType, id)
	if err != nil {
		return appErrors.Wrap(err, appErrors.CodeDBQueryError, "failed to deactivate previous snapshot")
	}

	_, err = tx.Exec(ctx, `UPDATE corpus_snapshots SET active = TRUE WHERE id = $1`, id)
	if err != nil {
		return appErrors.Wrap(err, appErrors.CodeDBQueryError, "failed to activate snapshot")
	}

	if err := tx.Commit(ctx); err != nil {
		return appErrors.Wrap(err, appErrors.CodeDBConnectionError, "failed to commit transaction")
	}
	r.logger.Info("corpus snapshot activated",
		logging.String("snapshot_id", string(id)),
		logging.String("index_type", indexType),
	)
	return nil
}

// GetActive returns the active snapshot for one index type.
func (r *SnapshotRepository) GetActive(ctx context.Context, indexType string) (*analyte.CorpusSnapshot, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+snapshotColumns+`
		FROM corpus_snapshots WHERE index_type = $1 AND active`, indexType)
	s, err := scanSnapshot(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, appErrors.New(appErrors.CodeIndexUnavailable, "no active corpus snapshot for "+indexType)
		}
		return nil, appErrors.Wrap(err, appErrors.CodeDBQueryError, "failed to load active snapshot")
	}
	return s, nil
}

// List returns one page of snapshots for an index type, newest build first.
func (r *SnapshotRepository) List(ctx context.Context, indexType string, p common.Pagination) ([]*analyte.CorpusSnapshot, error) {
	p.Normalize()
	rows, err := r.pool.Query(ctx, `
		SELECT `+snapshotColumns+`
		FROM corpus_snapshots WHERE index_type = $1
		ORDER BY built_at DESC LIMIT $2 OFFSET $3`, indexType, p.PageSize, p.Offset())
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.CodeDBQueryError, "failed to list snapshots")
	}
	defer rows.Close()

	var out []*analyte.CorpusSnapshot
	for rows.Next() {
		s, err := scanSnapshot(rows)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.CodeDBQueryError, "failed to scan snapshot row")
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, appErrors.Wrap(err, appErrors.CodeDBQueryError, "snapshot row iteration failed")
	}
	return out, nil
}

func scanSnapshot(row pgx.Row) (*analyte.CorpusSnapshot, error) {
	var s analyte.CorpusSnapshot
	err := row.Scan(&s.ID, &s.IndexType, &s.Hash, &s.AnalyteCount, &s.SynonymCount, &s.Active, &s.ArtifactPath, &s.BuiltAt)
	if err != nil {
		return nil, err
	}
	return &s, nil
}
