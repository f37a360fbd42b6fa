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

const analyteColumns = `analyte_id, preferred_name, analyte_type,
	COALESCE(cas_number, ''), COALESCE(group_code, ''), COALESCE(chemical_group, ''),
	COALESCE(parent_analyte_id, ''), created_at, updated_at`

// AnalyteRepository is the PostgreSQL implementation of analyte.Repository.
type AnalyteRepository struct {
	pool   *pgxpool.Pool
	logger Logger
}

// NewAnalyteRepository constructs a ready-to-use AnalyteRepository.
func NewAnalyteRepository(pool *pgxpool.Pool, logger Logger) *AnalyteRepository {
	return &AnalyteRepository{pool: pool, logger: logger}
}

// GetByID loads one analyte by its primary key.
func (r *AnalyteRepository) GetByID(ctx context.Context, id common.AnalyteID) (*analyte.Analyte, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+analyteColumns+`
		FROM analytes WHERE analyte_id = $1`, id)
	a, err := scanAnalyte(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, appErrors.New(appErrors.CodeAnalyteNotFound, "analyte "+string(id)+" not found")
		}
		return nil, appErrors.Wrap(err, appErrors.CodeDBQueryError, "failed to load analyte")
	}
	return a, nil
}

// GetByCAS locates an analyte by its CAS registry number.
func (r *AnalyteRepository) GetByCAS(ctx context.Context, cas string) (*analyte.Analyte, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+analyteColumns+`
		FROM analytes WHERE cas_number = $1`, cas)
	a, err := scanAnalyte(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, appErrors.New(appErrors.CodeAnalyteNotFound, "no analyte with CAS "+cas)
		}
		return nil, appErrors.Wrap(err, appErrors.CodeDBQueryError, "failed to load analyte by CAS")
	}
	return a, nil
}

// List returns one page of analytes ordered by ID, with the total count.
func (r *AnalyteRepository) List(ctx context.Context, p common.Pagination) ([]*analyte.Analyte, int64, error) {
	p.Normalize()

	var total int64
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM analytes`).Scan(&total); err != nil {
		return nil, 0, appErrors.Wrap(err, appErrors.CodeDBQueryError, "failed to count analytes")
	}

	rows, err := r.pool.Query(ctx, `
		SELECT `+analyteColumns+`
		FROM analytes ORDER BY analyte_id LIMIT $1 OFFSET $2`, p.PageSize, p.Offset())
	if err != nil {
		return nil, 0, appErrors.Wrap(err, appErrors.CodeDBQueryError, "failed to list analytes")
	}
	defer rows.Close()

	var out []*analyte.Analyte
	for rows.Next() {
		a, err := scanAnalyte(rows)
		if err != nil {
			return nil, 0, appErrors.Wrap(err, appErrors.CodeDBQueryError, "failed to scan analyte row")
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, appErrors.Wrap(err, appErrors.CodeDBQueryError, "analyte row iteration failed")
	}
	return out, total, nil
}

// Create inserts a new analyte.
func (r *AnalyteRepository) Create(ctx context.Context, a *analyte.Analyte) error {
	if err := a.Validate(); err != nil {
		return err
	}
	now := time.Now().UTC()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now
	}
	a.UpdatedAt = now

	_, err := r.pool.Exec(ctx, `
		INSERT INTO analytes (
			analyte_id, preferred_name, analyte_type, cas_number,
			group_code, chemical_group, parent_analyte_id, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		a.ID, a.PreferredName, a.Type, textOrNull(a.CASNumber),
		textOrNull(a.GroupCode), textOrNull(a.ChemicalGroup),
		textOrNull(string(a.ParentID)), a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("AnalyteRepository.Create", logging.String("analyte_id", string(a.ID)), logging.Err(err))
		return appErrors.Wrap(err, appErrors.CodeDBQueryError, "failed to insert analyte")
	}
	return nil
}

// Update rewrites the mutable fields of an existing analyte.
func (r *AnalyteRepository) Update(ctx context.Context, a *analyte.Analyte) error {
	if err := a.Validate(); err != nil {
		return err
	}
	a.UpdatedAt = time.Now().UTC()

	tag, err := r.pool.Exec(ctx, `
		UPDATE analytes SET
			preferred_name = $2, analyte_type = $3, cas_number = $4,
			group_code = $5, chemical_group = $6, parent_analyte_id = $7,
			updated_at = $8
		WHERE analyte_id = $1`,
		a.ID, a.PreferredName, a.Type, textOrNull(a.CASNumber),
		textOrNull(a.GroupCode), textOrNull(a.ChemicalGroup),
		textOrNull(string(a.ParentID)), a.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("AnalyteRepository.Update", logging.String("analyte_id", string(a.ID)), logging.Err(err))
		return appErrors.Wrap(err, appErrors.CodeDBQueryError, "failed to update analyte")
	}
	if tag.RowsAffected() == 0 {
		return appErrors.New(appErrors.CodeAnalyteNotFound, "analyte "+string(a.ID)+" not found")
	}
	return nil
}

// Count returns the total number of analytes.
func (r *AnalyteRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM analytes`).Scan(&n); err != nil {
		return 0, appErrors.Wrap(err, appErrors.CodeDBQueryError, "failed to count analytes")
	}
	return n, nil
}

func scanAnalyte(row pgx.Row) (*analyte.Analyte, error) {
	var a analyte.Analyte
	var parent string
	err := row.Scan(
		&a.ID, &a.PreferredName, &a.Type,
		&a.CASNumber, &a.GroupCode, &a.ChemicalGroup,
		&parent, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	a.ParentID = common.AnalyteID(parent)
	return &a, nil
}
