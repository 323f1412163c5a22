package monitoring

import (
	"context"
	"time"

	"headline-vol/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel/trace"
)

type pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// Repository stores monitoring runs in volatility_metrics.
type Repository struct {
	pool   pool
	tracer trace.Tracer
}

func NewRepository(pool pool, tracer trace.Tracer) *Repository {
	return &Repository{pool: pool, tracer: tracer}
}

func (r *Repository) InsertMetrics(ctx context.Context, rows []domain.MonitoringMetric) error {
	_, span := r.tracer.Start(ctx, "monitoring-repository.insert-metrics")
	defer span.End()

	if len(rows) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, m := range rows {
		batch.Queue(`
INSERT INTO volatility_metrics (timestamp, metric_name, metric_value, model_version)
VALUES ($1, $2, $3, $4)`, m.Timestamp.UTC(), m.Name, m.Value, m.ModelVersion)
	}
	results := r.pool.SendBatch(ctx, batch)
	defer results.Close()
	for range rows {
		if _, err := results.Exec(); err != nil {
			return err
		}
	}
	return nil
}

// ListSince returns metric rows newer than since, oldest first. An empty
// name returns every metric.
func (r *Repository) ListSince(ctx context.Context, name string, since time.Time) ([]domain.MonitoringMetric, error) {
	_, span := r.tracer.Start(ctx, "monitoring-repository.list-since")
	defer span.End()

	rows, err := r.pool.Query(ctx, `
SELECT metric_name, metric_value, COALESCE(model_version, ''), timestamp
FROM volatility_metrics
WHERE timestamp >= $1 AND ($2::text = '' OR metric_name = $2)
ORDER BY timestamp ASC, metric_name ASC`, since.UTC(), name)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.MonitoringMetric, 0)
	for rows.Next() {
		var m domain.MonitoringMetric
		if err := rows.Scan(&m.Name, &m.Value, &m.ModelVersion, &m.Timestamp); err != nil {
			return nil, err
		}
		m.Timestamp = m.Timestamp.UTC()
		out = append(out, m)
	}
	return out, rows.Err()
}
