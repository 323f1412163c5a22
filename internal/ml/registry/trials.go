package registry

import (
	"context"
	"encoding/json"
	"time"

	"headline-vol/internal/domain"

	"github.com/jackc/pgx/v5"
)

// RecordTrial appends one search trial to the experiment log.
func (r *Repository) RecordTrial(ctx context.Context, modelKey string, trial domain.SearchTrial) error {
	_, span := r.tracer.Start(ctx, "model-registry.record-trial")
	defer span.End()

	metrics, err := json.Marshal(trial.Metrics)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx, `
INSERT INTO search_trials (
    session_id, model_key, trial_number,
    params_json, metrics_json, loss, error,
    started_at, duration_ms
) VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), $8, $9)`,
		trial.SessionID,
		modelKey,
		trial.Number,
		fallbackJSON(trial.ParamsJSON),
		string(metrics),
		trial.Loss,
		trial.Error,
		trial.StartedAt.UTC(),
		trial.Duration.Milliseconds(),
	)
	return err
}

// ListTrials returns a session's trials ordered by trial number.
func (r *Repository) ListTrials(ctx context.Context, sessionID string) ([]domain.SearchTrial, error) {
	_, span := r.tracer.Start(ctx, "model-registry.list-trials")
	defer span.End()

	rows, err := r.pool.Query(ctx, `
SELECT session_id::text, trial_number, params_json, metrics_json, loss, COALESCE(error, ''), started_at, duration_ms
FROM search_trials
WHERE session_id = $1
ORDER BY trial_number ASC`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTrials(rows)
}

func scanTrials(rows pgx.Rows) ([]domain.SearchTrial, error) {
	out := make([]domain.SearchTrial, 0)
	for rows.Next() {
		var (
			t          domain.SearchTrial
			metrics    string
			durationMs int64
		)
		if err := rows.Scan(&t.SessionID, &t.Number, &t.ParamsJSON, &metrics, &t.Loss, &t.Error, &t.StartedAt, &durationMs); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(metrics), &t.Metrics); err != nil {
			return nil, err
		}
		t.StartedAt = t.StartedAt.UTC()
		t.Duration = time.Duration(durationMs) * time.Millisecond
		out = append(out, t)
	}
	return out, rows.Err()
}
