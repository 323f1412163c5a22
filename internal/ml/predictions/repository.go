package predictions

import (
	"context"
	"errors"
	"time"

	"headline-vol/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"go.opentelemetry.io/otel/trace"
)

type pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository keeps one scoring record per (date, model version).
type Repository struct {
	pool   pool
	tracer trace.Tracer
}

func NewRepository(pool pool, tracer trace.Tracer) *Repository {
	return &Repository{pool: pool, tracer: tracer}
}

const selectColumns = `
SELECT prediction_date, mean_proba, mean_class, majority_vote,
       max_proba, max_class, num_headlines, model_version,
       true_label, COALESCE(error, ''), scored_at
FROM daily_predictions`

func (r *Repository) Upsert(ctx context.Context, rec domain.ScoringRecord) error {
	_, span := r.tracer.Start(ctx, "daily-predictions.upsert")
	defer span.End()

	day, err := time.Parse(time.DateOnly, rec.Date)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx, `
INSERT INTO daily_predictions (
    prediction_date, model_version,
    mean_proba, mean_class, majority_vote,
    max_proba, max_class, num_headlines,
    true_label, error, scored_at, updated_at
) VALUES (
    $1, $2,
    $3, $4, $5,
    $6, $7, $8,
    $9, NULLIF($10, ''), $11, NOW()
)
ON CONFLICT (prediction_date, model_version) DO UPDATE SET
    mean_proba = EXCLUDED.mean_proba,
    mean_class = EXCLUDED.mean_class,
    majority_vote = EXCLUDED.majority_vote,
    max_proba = EXCLUDED.max_proba,
    max_class = EXCLUDED.max_class,
    num_headlines = EXCLUDED.num_headlines,
    true_label = COALESCE(EXCLUDED.true_label, daily_predictions.true_label),
    error = EXCLUDED.error,
    scored_at = EXCLUDED.scored_at,
    updated_at = NOW()`,
		day,
		rec.ModelVersion,
		rec.PredictionMeanProba,
		int16(rec.PredictionMeanClass),
		int16(rec.PredictionMajorityVote),
		rec.PredictionMaxProba,
		int16(rec.PredictionMaxClass),
		rec.NumHeadlines,
		labelArg(rec.TrueLabel),
		rec.Error,
		rec.Timestamp.UTC(),
	)
	return err
}

// ResolveLabel records the realised direction for every record of day.
func (r *Repository) ResolveLabel(ctx context.Context, day time.Time, label int) error {
	_, span := r.tracer.Start(ctx, "daily-predictions.resolve-label")
	defer span.End()

	tag, err := r.pool.Exec(ctx, `
UPDATE daily_predictions
SET true_label = $2, updated_at = NOW()
WHERE prediction_date = $1`, domain.TruncateDay(day), int16(label))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// ListUnlabeled returns up to limit distinct days still waiting for their
// realised label, oldest first.
func (r *Repository) ListUnlabeled(ctx context.Context, limit int) ([]time.Time, error) {
	_, span := r.tracer.Start(ctx, "daily-predictions.list-unlabeled")
	defer span.End()

	if limit <= 0 {
		limit = 200
	}
	rows, err := r.pool.Query(ctx, `
SELECT DISTINCT prediction_date
FROM daily_predictions
WHERE true_label IS NULL
ORDER BY prediction_date ASC
LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	days := make([]time.Time, 0)
	for rows.Next() {
		var day time.Time
		if err := rows.Scan(&day); err != nil {
			return nil, err
		}
		days = append(days, day.UTC())
	}
	return days, rows.Err()
}

// ListRange returns records dated within [from, to], oldest first.
func (r *Repository) ListRange(ctx context.Context, from, to time.Time) ([]domain.ScoringRecord, error) {
	_, span := r.tracer.Start(ctx, "daily-predictions.list-range")
	defer span.End()

	rows, err := r.pool.Query(ctx, selectColumns+`
WHERE prediction_date >= $1 AND prediction_date <= $2
ORDER BY prediction_date ASC, scored_at ASC`, domain.TruncateDay(from), domain.TruncateDay(to))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRecords(rows)
}

// ListRecent returns the newest limit records, newest first.
func (r *Repository) ListRecent(ctx context.Context, limit int) ([]domain.ScoringRecord, error) {
	_, span := r.tracer.Start(ctx, "daily-predictions.list-recent")
	defer span.End()

	if limit <= 0 {
		limit = 30
	}
	rows, err := r.pool.Query(ctx, selectColumns+`
ORDER BY prediction_date DESC, scored_at DESC
LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRecords(rows)
}

func (r *Repository) Latest(ctx context.Context) (*domain.ScoringRecord, error) {
	_, span := r.tracer.Start(ctx, "daily-predictions.latest")
	defer span.End()

	rec, err := scanRecord(r.pool.QueryRow(ctx, selectColumns+`
ORDER BY prediction_date DESC, scored_at DESC
LIMIT 1`))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return rec, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecords(rows pgx.Rows) ([]domain.ScoringRecord, error) {
	out := make([]domain.ScoringRecord, 0)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

func scanRecord(s scanner) (*domain.ScoringRecord, error) {
	var (
		out                         domain.ScoringRecord
		day                         time.Time
		meanClass, majority, maxCls int16
		label                       pgtype.Int2
	)
	if err := s.Scan(
		&day,
		&out.PredictionMeanProba,
		&meanClass,
		&majority,
		&out.PredictionMaxProba,
		&maxCls,
		&out.NumHeadlines,
		&out.ModelVersion,
		&label,
		&out.Error,
		&out.Timestamp,
	); err != nil {
		return nil, err
	}
	out.Date = domain.DateKey(day)
	out.PredictionMeanClass = int(meanClass)
	out.PredictionMajorityVote = int(majority)
	out.PredictionMaxClass = int(maxCls)
	out.Timestamp = out.Timestamp.UTC()
	if label.Valid {
		v := int(label.Int16)
		out.TrueLabel = &v
	}
	return &out, nil
}

func labelArg(v *int) any {
	if v == nil {
		return nil
	}
	return int16(*v)
}
