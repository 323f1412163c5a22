package features

import (
	"context"
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
}

// Repository stores daily volatility observations so production scoring can
// build snapshots from history.
type Repository struct {
	pool   pool
	tracer trace.Tracer
}

func NewRepository(pool pool, tracer trace.Tracer) *Repository {
	return &Repository{pool: pool, tracer: tracer}
}

func (r *Repository) UpsertObservations(ctx context.Context, obs []domain.VolatilityObservation) error {
	if len(obs) == 0 {
		return nil
	}
	_, span := r.tracer.Start(ctx, "volatility-repo.upsert")
	defer span.End()

	for _, o := range obs {
		_, err := r.pool.Exec(ctx, `
INSERT INTO volatility_observations (obs_date, realized_vol, tr_vol, park_vol, updated_at)
VALUES ($1, $2, $3, $4, NOW())
ON CONFLICT (obs_date) DO UPDATE SET
    realized_vol = EXCLUDED.realized_vol,
    tr_vol = EXCLUDED.tr_vol,
    park_vol = EXCLUDED.park_vol,
    updated_at = NOW()`,
			domain.TruncateDay(o.Date),
			nullable(o.Values, domain.MetricRealizedVol),
			nullable(o.Values, domain.MetricTrueRangeVol),
			nullable(o.Values, domain.MetricParkinsonVol),
		)
		if err != nil {
			return err
		}
	}
	return nil
}

// ListBefore returns up to limit observations strictly before date, oldest first.
func (r *Repository) ListBefore(ctx context.Context, date time.Time, limit int) ([]domain.VolatilityObservation, error) {
	_, span := r.tracer.Start(ctx, "volatility-repo.list-before")
	defer span.End()

	if limit <= 0 {
		limit = 30
	}
	rows, err := r.pool.Query(ctx, `
SELECT obs_date, realized_vol, tr_vol, park_vol
FROM (
    SELECT obs_date, realized_vol, tr_vol, park_vol
    FROM volatility_observations
    WHERE obs_date < $1
    ORDER BY obs_date DESC
    LIMIT $2
) recent
ORDER BY obs_date ASC`, domain.TruncateDay(date), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanObservations(rows)
}

func scanObservations(rows pgx.Rows) ([]domain.VolatilityObservation, error) {
	result := make([]domain.VolatilityObservation, 0)
	for rows.Next() {
		var (
			date               time.Time
			realized, tr, park pgtype.Float8
		)
		if err := rows.Scan(&date, &realized, &tr, &park); err != nil {
			return nil, err
		}
		values := make(map[string]float64, 3)
		if realized.Valid {
			values[domain.MetricRealizedVol] = realized.Float64
		}
		if tr.Valid {
			values[domain.MetricTrueRangeVol] = tr.Float64
		}
		if park.Valid {
			values[domain.MetricParkinsonVol] = park.Float64
		}
		result = append(result, domain.VolatilityObservation{Date: date.UTC(), Values: values})
	}
	return result, rows.Err()
}

func nullable(values map[string]float64, key string) *float64 {
	v, ok := values[key]
	if !ok {
		return nil
	}
	return &v
}
