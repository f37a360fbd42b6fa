package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/envlytics/analyte-resolver/internal/domain/analyte"
	"github.com/envlytics/analyte-resolver/internal/domain/normalization"
	"github.com/envlytics/analyte-resolver/internal/infrastructure/monitoring/logging"
	appErrors "github.com/envlytics/analyte-resolver/pkg/errors"
	"github.com/envlytics/analyte-resolver/pkg/types/common"
)

const variantColumns = `id, lab_vendor, observed_text, frequency_count,
	first_seen_date, last_seen_date, collision_count, last_collision_date,
	COALESCE(validated_match_id, ''), COALESCE(validation_confidence, ''),
	normalization_version, created_at`

// VariantRepository is the PostgreSQL implementation of
// analyte.VariantRepository.
type VariantRepository struct {
	pool   *pgxpool.Pool
	logger Logger
}

// NewVariantRepository constructs a ready-to-use VariantRepository.
func NewVariantRepository(pool *pgxpool.Pool, logger Logger) *VariantRepository {
	return &VariantRepository{pool: pool, logger: logger}
}

// Get loads the variant for one (vendor, observed text) pair.
func (r *VariantRepository) Get(ctx context.Context, vendor common.Vendor, observed string) (*analyte.LabVariant, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+variantColumns+`
		FROM lab_variants WHERE lab_vendor = $1 AND observed_text = $2`, vendor, observed)
	v, err := scanVariant(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, appErrors.New(appErrors.CodeVariantNotFound, "lab variant not found")
		}
		return nil, appErrors.Wrap(err, appErrors.CodeDBQueryError, "failed to load lab variant")
	}
	return v, nil
}

// GetByID loads one variant by primary key.
func (r *VariantRepository) GetByID(ctx context.Context, id int64) (*analyte.LabVariant, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+variantColumns+`
		FROM lab_variants WHERE id = $1`, id)
	v, err := scanVariant(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, appErrors.New(appErrors.CodeVariantNotFound, fmt.Sprintf("lab variant %d not found", id))
		}
		return nil, appErrors.Wrap(err, appErrors.CodeDBQueryError, "failed to load lab variant")
	}
	return v, nil
}

// UpsertObservation records one sighting of observed text from a vendor.  A
// new variant starts at frequency 1; an existing one gains a count and a
// fresher last-seen date.  The resulting row is returned.
func (r *VariantRepository) UpsertObservation(ctx context.Context, vendor common.Vendor, observed string, seen time.Time) (*analyte.LabVariant, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO lab_variants (lab_vendor, observed_text, first_seen_date, last_seen_date, normalization_version)
		VALUES ($1, $2, $3, $3, $4)
		ON CONFLICT (lab_vendor, observed_text) DO UPDATE SET
			frequency_count = lab_variants.frequency_count + 1,
			last_seen_date = GREATEST(lab_variants.last_seen_date, EXCLUDED.last_seen_date)
		RETURNING `+variantColumns, vendor, observed, seen, normalization.NormalizationVersion)
	v, err := scanVariant(row)
	if err != nil {
		r.logger.Error("VariantRepository.UpsertObservation",
			logging.String("vendor", string(vendor)),
			logging.String("observed", observed),
			logging.Err(err),
		)
		return nil, appErrors.Wrap(err, appErrors.CodeDBQueryError, "failed to upsert lab variant observation")
	}
	return v, nil
}

// RecordCollision increments the variant's collision count and stamps the
// collision time.
func (r *VariantRepository) RecordCollision(ctx context.Context, id int64, at time.Time) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE lab_variants SET
			collision_count = collision_count + 1,
			last_collision_date = $2
		WHERE id = $1`, id, at)
	if err != nil {
		return appErrors.Wrap(err, appErrors.CodeDBQueryError, "failed to record collision")
	}
	if tag.RowsAffected() == 0 {
		return appErrors.New(appErrors.CodeVariantNotFound, fmt.Sprintf("lab variant %d not found", id))
	}
	return nil
}

// SetValidation writes the variant's current validated mapping.
func (r *VariantRepository) SetValidation(ctx context.Context, id int64, analyteID common.AnalyteID, conf analyte.ValidationConfidence) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE lab_variants SET
			validated_match_id = $2,
			validation_confidence = $3
		WHERE id = $1`, id, textOrNull(string(analyteID)), textOrNull(string(conf)))
	if err != nil {
		return appErrors.Wrap(err, appErrors.CodeDBQueryError, "failed to set variant validation")
	}
	if tag.RowsAffected() == 0 {
		return appErrors.New(appErrors.CodeVariantNotFound, fmt.Sprintf("lab variant %d not found", id))
	}
	return nil
}

// ListUnvalidated returns one page of a vendor's variants that have no
// validated mapping yet, most frequent first.
func (r *VariantRepository) ListUnvalidated(ctx context.Context, vendor common.Vendor, p common.Pagination) ([]*analyte.LabVariant, int64, error) {
	p.Normalize()

	var total int64
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM lab_variants
		WHERE lab_vendor = $1 AND validated_match_id IS NULL`, vendor).Scan(&total)
	if err != nil {
		return nil, 0, appErrors.Wrap(err, appErrors.CodeDBQueryError, "failed to count unvalidated variants")
	}

	rows, err := r.pool.Query(ctx, `
		SELECT `+variantColumns+`
		FROM lab_variants
		WHERE lab_vendor = $1 AND validated_match_id IS NULL
		ORDER BY frequency_count DESC, observed_text
		LIMIT $2 OFFSET $3`, vendor, p.PageSize, p.Offset())
	if err != nil {
		return nil, 0, appErrors.Wrap(err, appErrors.CodeDBQueryError, "failed to list unvalidated variants")
	}
	defer rows.Close()

	var out []*analyte.LabVariant
	for rows.Next() {
		v, err := scanVariant(rows)
		if err != nil {
			return nil, 0, appErrors.Wrap(err, appErrors.CodeDBQueryError, "failed to scan variant row")
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, appErrors.Wrap(err, appErrors.CodeDBQueryError, "variant row iteration failed")
	}
	return out, total, nil
}

// CountValidatedByVendor returns how many of a vendor's variants carry a
// validated mapping.
func (r *VariantRepository) CountValidatedByVendor(ctx context.Context, vendor common.Vendor) (int64, error) {
	var n int64
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM lab_variants
		WHERE lab_vendor = $1 AND validated_match_id IS NOT NULL`, vendor).Scan(&n)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.CodeDBQueryError, "failed to count validated variants")
	}
	return n, nil
}

func scanVariant(row pgx.Row) (*analyte.LabVariant, error) {
	var v analyte.LabVariant
	err := row.Scan(
		&v.ID, &v.Vendor, &v.ObservedText, &v.FrequencyCount,
		&v.FirstSeen, &v.LastSeen, &v.CollisionCount, &v.LastCollision,
		&v.ValidatedAnalyteID, &v.ValidationConfidence,
		&v.NormalizationVersion, &v.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &v, nil
}
