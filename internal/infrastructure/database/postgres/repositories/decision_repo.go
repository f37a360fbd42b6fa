package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/envlytics/analyte-resolver/internal/domain/analyte"
	"github.com/envlytics/analyte-resolver/internal/infrastructure/monitoring/logging"
	appErrors "github.com/envlytics/analyte-resolver/pkg/errors"
	"github.com/envlytics/analyte-resolver/pkg/types/common"
)

const decisionColumns = `id, input_text, normalized_text,
	COALESCE(matched_analyte_id, ''), match_method, confidence_score, margin,
	confidence_band, top_k_candidates, signals_used, cross_method_conflict,
	corpus_snapshot_hash, lab_vendor, decision_timestamp,
	human_validated, validation_notes, is_corrected, correction_of, ingested`

// DecisionRepository is the PostgreSQL implementation of
// analyte.DecisionRepository.
type DecisionRepository struct {
	pool   *pgxpool.Pool
	logger Logger
}

// NewDecisionRepository constructs a ready-to-use DecisionRepository.
func NewDecisionRepository(pool *pgxpool.Pool, logger Logger) *DecisionRepository {
	return &DecisionRepository{pool: pool, logger: logger}
}

// Insert appends one match decision and fills in its generated ID.
func (r *DecisionRepository) Insert(ctx context.Context, d *analyte.MatchDecision) error {
	if d.DecidedAt.IsZero() {
		d.DecidedAt = time.Now().UTC()
	}
	candJSON, sigJSON, err := marshalDecisionJSON(d)
	if err != nil {
		return err
	}

	err = r.pool.QueryRow(ctx, `
		INSERT INTO match_decisions (
			input_text, normalized_text, matched_analyte_id, match_method,
			confidence_score, margin, confidence_band, top_k_candidates,
			signals_used, cross_method_conflict, corpus_snapshot_hash,
			lab_vendor, decision_timestamp, human_validated, validation_notes,
			is_corrected, correction_of, ingested
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)
		RETURNING id`,
		d.InputText, d.NormalizedText, textOrNull(string(d.MatchedAnalyteID)), d.Method,
		d.ConfidenceScore, d.Margin, d.Band, candJSON,
		sigJSON, d.CrossMethodConflict, d.CorpusHash,
		d.Vendor, d.DecidedAt, d.HumanValidated, d.ValidationNotes,
		d.IsCorrected, d.CorrectionOf, d.Ingested,
	).Scan(&d.ID)
	if err != nil {
		r.logger.Error("DecisionRepository.Insert", logging.String("input", d.InputText), logging.Err(err))
		return appErrors.Wrap(err, appErrors.CodeDBQueryError, "failed to insert match decision")
	}
	return nil
}

// GetByID loads one match decision.
func (r *DecisionRepository) GetByID(ctx context.Context, id int64) (*analyte.MatchDecision, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+decisionColumns+`
		FROM match_decisions WHERE id = $1`, id)
	d, err := scanDecision(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, appErrors.New(appErrors.CodeDecisionNotFound, fmt.Sprintf("match decision %d not found", id))
		}
		return nil, appErrors.Wrap(err, appErrors.CodeDBQueryError, "failed to load match decision")
	}
	return d, nil
}

// List returns one filtered page of decisions, newest first, with the total
// matching count.
func (r *DecisionRepository) List(ctx context.Context, f analyte.DecisionFilter) ([]*analyte.MatchDecision, int64, error) {
	f.Pagination.Normalize()

	var where []string
	var args []interface{}
	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if !f.Vendor.IsGlobal() {
		where = append(where, "lab_vendor = "+arg(f.Vendor))
	}
	if f.Band != "" {
		where = append(where, "confidence_band = "+arg(f.Band))
	}
	if f.HumanValidated != nil {
		where = append(where, "human_validated = "+arg(*f.HumanValidated))
	}
	if f.Ingested != nil {
		where = append(where, "ingested = "+arg(*f.Ingested))
	}
	if !f.Range.From.IsZero() {
		where = append(where, "decision_timestamp >= "+arg(f.Range.From))
	}
	if !f.Range.To.IsZero() {
		where = append(where, "decision_timestamp <= "+arg(f.Range.To))
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int64
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM match_decisions`+clause, args...).Scan(&total); err != nil {
		return nil, 0, appErrors.Wrap(err, appErrors.CodeDBQueryError, "failed to count match decisions")
	}

	query := `SELECT ` + decisionColumns + ` FROM match_decisions` + clause +
		fmt.Sprintf(" ORDER BY decision_timestamp DESC, id DESC LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
	args = append(args, f.Pagination.PageSize, f.Pagination.Offset())

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, appErrors.Wrap(err, appErrors.CodeDBQueryError, "failed to list match decisions")
	}
	defer rows.Close()

	out, err := collectDecisions(rows)
	if err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

// AttachValidation records the single permitted human validation of a
// decision.  A second validation attempt fails; when the reviewer names a
// different analyte than the engine matched, the decision is flagged as
// corrected.
func (r *DecisionRepository) AttachValidation(ctx context.Context, id int64, validatedID common.AnalyteID, notes string) (*analyte.MatchDecision, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.CodeDBConnectionError, "failed to begin transaction")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	var validated bool
	var matched string
	err = tx.QueryRow(ctx, `
		SELECT human_validated, COALESCE(matched_analyte_id, '')
		FROM match_decisions WHERE id = $1 FOR UPDATE`, id).Scan(&validated, &matched)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, appErrors.New(appErrors.CodeDecisionNotFound, fmt.Sprintf("match decision %d not found", id))
		}
		return nil, appErrors.Wrap(err, appErrors.CodeDBQueryError, "failed to lock match decision")
	}
	if validated {
		return nil, appErrors.New(appErrors.CodeDecisionAlreadyReviewed, fmt.Sprintf("match decision %d already validated", id))
	}

	row := tx.QueryRow(ctx, `
		UPDATE match_decisions SET
			human_validated = TRUE,
			validation_notes = $2,
			is_corrected = is_corrected OR $3
		WHERE id = $1
		RETURNING `+decisionColumns,
		id, notes, matched != string(validatedID))
	d, err := scanDecision(row)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.CodeDBQueryError, "failed to attach validation")
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, appErrors.Wrap(err, appErrors.CodeDBConnectionError, "failed to commit transaction")
	}
	return d, nil
}

// InsertCorrection appends a corrected decision linked to the original and
// flags the original, in one transaction.
func (r *DecisionRepository) InsertCorrection(ctx context.Context, original int64, corrected *analyte.MatchDecision) error {
	if corrected.DecidedAt.IsZero() {
		corrected.DecidedAt = time.Now().UTC()
	}
	candJSON, sigJSON, err := marshalDecisionJSON(corrected)
	if err != nil {
		return err
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return appErrors.Wrap(err, appErrors.CodeDBConnectionError, "failed to begin transaction")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	tag, err := tx.Exec(ctx, `UPDATE match_decisions SET is_corrected = TRUE WHERE id = $1`, original)
	if err != nil {
		return appErrors.Wrap(err, appErrors.CodeDBQueryError, "failed to flag original decision")
	}
	if tag.RowsAffected() == 0 {
		return appErrors.New(appErrors.CodeDecisionNotFound, fmt.Sprintf("match decision %d not found", original))
	}

	corrected.CorrectionOf = &original
	err = tx.QueryRow(ctx, `
		INSERT INTO match_decisions (
			input_text, normalized_text, matched_analyte_id, match_method,
			confidence_score, margin, confidence_band, top_k_candidates,
			signals_used, cross_method_conflict, corpus_snapshot_hash,
			lab_vendor, decision_timestamp, human_validated, validation_notes,
			is_corrected, correction_of, ingested
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)
		RETURNING id`,
		corrected.InputText, corrected.NormalizedText, textOrNull(string(corrected.MatchedAnalyteID)), corrected.Method,
		corrected.ConfidenceScore, corrected.Margin, corrected.Band, candJSON,
		sigJSON, corrected.CrossMethodConflict, corrected.CorpusHash,
		corrected.Vendor, corrected.DecidedAt, corrected.HumanValidated, corrected.ValidationNotes,
		corrected.IsCorrected, corrected.CorrectionOf, corrected.Ingested,
	).Scan(&corrected.ID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.CodeDBQueryError, "failed to insert corrected decision")
	}

	if err := tx.Commit(ctx); err != nil {
		return appErrors.Wrap(err, appErrors.CodeDBConnectionError, "failed to commit transaction")
	}
	return nil
}

// ListValidatedSince returns human-validated decisions made at or after
// since, optionally scoped to one vendor.  This is the calibration training
// feed.
func (r *DecisionRepository) ListValidatedSince(ctx context.Context, since time.Time, vendor common.Vendor) ([]*analyte.MatchDecision, error) {
	query := `SELECT ` + decisionColumns + `
		FROM match_decisions
		WHERE human_validated AND decision_timestamp >= $1`
	args := []interface{}{since}
	if !vendor.IsGlobal() {
		query += ` AND lab_vendor = $2`
		args = append(args, vendor)
	}
	query += ` ORDER BY decision_timestamp, id`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.CodeDBQueryError, "failed to list validated decisions")
	}
	defer rows.Close()
	return collectDecisions(rows)
}

// MarkIngested flags the given decisions as consumed by synonym ingestion.
func (r *DecisionRepository) MarkIngested(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := r.pool.Exec(ctx, `UPDATE match_decisions SET ingested = TRUE WHERE id = ANY($1)`, ids)
	if err != nil {
		return appErrors.Wrap(err, appErrors.CodeDBQueryError, "failed to mark decisions ingested")
	}
	return nil
}

func marshalDecisionJSON(d *analyte.MatchDecision) ([]byte, []byte, error) {
	candidates := d.Candidates
	if candidates == nil {
		candidates = []analyte.RankedCandidate{}
	}
	candJSON, err := json.Marshal(candidates)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.CodeSerialization, "failed to marshal candidates")
	}
	signals := d.SignalsUsed
	if signals == nil {
		signals = map[string]float64{}
	}
	sigJSON, err := json.Marshal(signals)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.CodeSerialization, "failed to marshal signals")
	}
	return candJSON, sigJSON, nil
}

func scanDecision(row pgx.Row) (*analyte.MatchDecision, error) {
	var d analyte.MatchDecision
	var candJSON, sigJSON []byte
	err := row.Scan(
		&d.ID, &d.InputText, &d.NormalizedText,
		&d.MatchedAnalyteID, &d.Method, &d.ConfidenceScore, &d.Margin,
		&d.Band, &candJSON, &sigJSON, &d.CrossMethodConflict,
		&d.CorpusHash, &d.Vendor, &d.DecidedAt,
		&d.HumanValidated, &d.ValidationNotes, &d.IsCorrected, &d.CorrectionOf, &d.Ingested,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(candJSON, &d.Candidates); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(sigJSON, &d.SignalsUsed); err != nil {
		return nil, err
	}
	return &d, nil
}

func collectDecisions(rows pgx.Rows) ([]*analyte.MatchDecision, error) {
	var out []*analyte.MatchDecision
	for rows.Next() {
		d, err := scanDecision(rows)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.CodeDBQueryError, "failed to scan decision row")
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, appErrors.Wrap(err, appErrors.CodeDBQueryError, "decision row iteration failed")
	}
	return out, nil
}
