package repositories

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/envlytics/analyte-resolver/internal/domain/analyte"
	"github.com/envlytics/analyte-resolver/internal/infrastructure/monitoring/logging"
	appErrors "github.com/envlytics/analyte-resolver/pkg/errors"
	"github.com/envlytics/analyte-resolver/pkg/types/common"
)

const synonymColumns = `id, analyte_id, synonym_raw, synonym_norm,
	harvest_source, confidence, lab_vendor, normalization_version, created_at`

// SynonymRepository is the PostgreSQL implementation of
// analyte.SynonymRepository.
type SynonymRepository struct {
	pool   *pgxpool.Pool
	logger Logger
}

// NewSynonymRepository constructs a ready-to-use SynonymRepository.
func NewSynonymRepository(pool *pgxpool.Pool, logger Logger) *SynonymRepository {
	return &SynonymRepository{pool: pool, logger: logger}
}

// GetByNormalized returns every synonym whose normalized text matches,
// scoped to the given vendor plus the global corpus.
func (r *SynonymRepository) GetByNormalized(ctx context.Context, norm string, vendor common.Vendor) ([]*analyte.Synonym, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+synonymColumns+`
		FROM synonyms
		WHERE synonym_norm = $1 AND (lab_vendor = '' OR lab_vendor = $2)
		ORDER BY id`, norm, vendor)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.CodeDBQueryError, "failed to query synonyms by normalized text")
	}
	defer rows.Close()
	return collectSynonyms(rows)
}

// ListByAnalyte returns every synonym of one analyte.
func (r *SynonymRepository) ListByAnalyte(ctx context.Context, id common.AnalyteID) ([]*analyte.Synonym, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+synonymColumns+`
		FROM synonyms WHERE analyte_id = $1 ORDER BY id`, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.CodeDBQueryError, "failed to query synonyms by analyte")
	}
	defer rows.Close()
	return collectSynonyms(rows)
}

// List returns one filtered page of synonyms with the total matching count.
func (r *SynonymRepository) List(ctx context.Context, f analyte.SynonymFilter) ([]*analyte.Synonym, int64, error) {
	f.Pagination.Normalize()

	var where []string
	var args []interface{}
	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if f.AnalyteID != "" {
		where = append(where, "analyte_id = "+arg(f.AnalyteID))
	}
	if !f.Vendor.IsGlobal() {
		where = append(where, "lab_vendor = "+arg(f.Vendor))
	}
	if f.Source != "" {
		where = append(where, "harvest_source = "+arg(f.Source))
	}
	if f.MinConfidence > 0 {
		where = append(where, "confidence >= "+arg(f.MinConfidence))
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int64
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM synonyms`+clause, args...).Scan(&total); err != nil {
		return nil, 0, appErrors.Wrap(err, appErrors.CodeDBQueryError, "failed to count synonyms")
	}

	query := `SELECT ` + synonymColumns + ` FROM synonyms` + clause +
		fmt.Sprintf(" ORDER BY id LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
	args = append(args, f.Pagination.PageSize, f.Pagination.Offset())

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, appErrors.Wrap(err, appErrors.CodeDBQueryError, "failed to list synonyms")
	}
	defer rows.Close()
	out, err := collectSynonyms(rows)
	if err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

// Upsert inserts a synonym or, when the (vendor, analyte, normalized) key
// already exists, refreshes its confidence and source.  Returns whether a new
// row was created.
func (r *SynonymRepository) Upsert(ctx context.Context, s *analyte.Synonym) (bool, error) {
	if err := s.Validate(); err != nil {
		return false, err
	}

	var created bool
	err := r.pool.QueryRow(ctx, `
		INSERT INTO synonyms (
			analyte_id, synonym_raw, synonym_norm, harvest_source,
			confidence, lab_vendor, normalization_version
		) VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (lab_vendor, analyte_id, synonym_norm) DO UPDATE SET
			confidence = EXCLUDED.confidence,
			harvest_source = EXCLUDED.harvest_source
		RETURNING id, (xmax = 0)`,
		s.AnalyteID, s.Raw, s.Normalized, s.Source,
		s.Confidence, s.Vendor, s.NormalizationVersion,
	).Scan(&s.ID, &created)
	if err != nil {
		r.logger.Error("SynonymRepository.Upsert",
			logging.String("analyte_id", string(s.AnalyteID)),
			logging.String("norm", s.Normalized),
			logging.Err(err),
		)
		return false, appErrors.Wrap(err, appErrors.CodeDBQueryError, "failed to upsert synonym")
	}
	return created, nil
}

// Deprecate retires a synonym from matching by driving its confidence to 0.
// The row itself is preserved for audit.
func (r *SynonymRepository) Deprecate(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `UPDATE synonyms SET confidence = 0 WHERE id = $1`, id)
	if err != nil {
		return appErrors.Wrap(err, appErrors.CodeDBQueryError, "failed to deprecate synonym")
	}
	if tag.RowsAffected() == 0 {
		return appErrors.New(appErrors.CodeSynonymNotFound, fmt.Sprintf("synonym %d not found", id))
	}
	return nil
}

// ScanAll streams every synonym through fn in ID order.  Iteration stops at
// the first error fn returns.
func (r *SynonymRepository) ScanAll(ctx context.Context, fn func(*analyte.Synonym) error) error {
	rows, err := r.pool.Query(ctx, `SELECT `+synonymColumns+` FROM synonyms ORDER BY id`)
	if err != nil {
		return appErrors.Wrap(err, appErrors.CodeDBQueryError, "failed to scan synonyms")
	}
	defer rows.Close()

	for rows.Next() {
		s, err := scanSynonym(rows)
		if err != nil {
			return appErrors.Wrap(err, appErrors.CodeDBQueryError, "failed to scan synonym row")
		}
		if err := fn(s); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return appErrors.Wrap(err, appErrors.CodeDBQueryError, "synonym row iteration failed")
	}
	return nil
}

// Count returns the total number of synonyms.
func (r *SynonymRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM synonyms`).Scan(&n); err != nil {
		return 0, appErrors.Wrap(err, appErrors.CodeDBQueryError, "failed to count synonyms")
	}
	return n, nil
}

func scanSynonym(row pgx.Row) (*analyte.Synonym, error) {
	var s analyte.Synonym
	err := row.Scan(
		&s.ID, &s.AnalyteID, &s.Raw, &s.Normalized,
		&s.Source, &s.Confidence, &s.Vendor, &s.NormalizationVersion, &s.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func collectSynonyms(rows pgx.Rows) ([]*analyte.Synonym, error) {
	var out []*analyte.Synonym
	for rows.Next() {
		s, err := scanSynonym(rows)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.CodeDBQueryError, "failed to scan synonym row")
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, appErrors.Wrap(err, appErrors.CodeDBQueryError, "synonym row iteration failed")
	}
	return out, nil
}
