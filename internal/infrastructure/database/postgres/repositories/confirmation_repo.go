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

// ConfirmationRepository is the PostgreSQL implementation of
// analyte.ConfirmationRepository.
type ConfirmationRepository struct {
	pool   *pgxpool.Pool
	logger Logger
}

// NewConfirmationRepository constructs a ready-to-use ConfirmationRepository.
func NewConfirmationRepository(pool *pgxpool.Pool, logger Logger) *ConfirmationRepository {
	return &ConfirmationRepository{pool: pool, logger: logger}
}

// Insert appends one confirmation.  The (variant, submission) pair is unique;
// a duplicate returns created=false without error.
func (r *ConfirmationRepository) Insert(ctx context.Context, c *analyte.LabVariantConfirmation) (bool, error) {
	if c.ConfirmedAt.IsZero() {
		c.ConfirmedAt = time.Now().UTC()
	}
	err := r.pool.QueryRow(ctx, `
		INSERT INTO lab_variant_confirmations (
			variant_id, submission_id, confirmed_analyte_id, confirmed_at, valid_for_consensus
		) VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (variant_id, submission_id) DO NOTHING
		RETURNING id`,
		c.VariantID, c.SubmissionID, c.ConfirmedAnalyte, c.ConfirmedAt, c.ValidForConsensus,
	).Scan(&c.ID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		r.logger.Error("ConfirmationRepository.Insert",
			logging.Int64("variant_id", c.VariantID),
			logging.Err(err),
		)
		return false, appErrors.Wrap(err, appErrors.CodeDBQueryError, "failed to insert confirmation")
	}
	return true, nil
}

// ListByVariant returns a variant's confirmations in confirmation order.
func (r *ConfirmationRepository) ListByVariant(ctx context.Context, variantID int64) ([]*analyte.LabVariantConfirmation, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, variant_id, submission_id, confirmed_analyte_id, confirmed_at, valid_for_consensus
		FROM lab_variant_confirmations
		WHERE variant_id = $1
		ORDER BY confirmed_at, id`, variantID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.CodeDBQueryError, "failed to list confirmations")
	}
	defer rows.Close()

	var out []*analyte.LabVariantConfirmation
	for rows.Next() {
		var c analyte.LabVariantConfirmation
		if err := rows.Scan(&c.ID, &c.VariantID, &c.SubmissionID, &c.ConfirmedAnalyte, &c.ConfirmedAt, &c.ValidForConsensus); err != nil {
			return nil, appErrors.Wrap(err, appErrors.CodeDBQueryError, "failed to scan confirmation row")
		}
		out = append(out, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, appErrors.Wrap(err, appErrors.CodeDBQueryError, "confirmation row iteration failed")
	}
	return out, nil
}

// InvalidateForConsensus clears the consensus flag on every confirmation of
// the variant that names a different analyte than keep.  Returns the number
// of confirmations invalidated.
func (r *ConfirmationRepository) InvalidateForConsensus(ctx context.Context, variantID int64, keep common.AnalyteID) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE lab_variant_confirmations
		SET valid_for_consensus = FALSE
		WHERE variant_id = $1 AND confirmed_analyte_id <> $2 AND valid_for_consensus`,
		variantID, keep)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.CodeDBQueryError, "failed to invalidate confirmations")
	}
	return tag.RowsAffected(), nil
}
