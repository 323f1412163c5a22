package registry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"headline-vol/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Repository is the Postgres-backed model registry. Each model key has
// monotonically increasing versions and at most one version per active stage.
type Repository struct {
	pool   pool
	tracer trace.Tracer
}

func NewRepository(pool pool, tracer trace.Tracer) *Repository {
	return &Repository{pool: pool, tracer: tracer}
}

const selectColumns = `
SELECT id, model_key, version, stage, feature_spec_version,
       trained_from, trained_to, trained_at,
       hyperparams_json, metrics_json, description,
       artifact_format, artifact_blob,
       stage_changed_at, created_at
FROM model_versions`

// Register stores a new version of artifact.ModelKey in stage None and
// returns it with its assigned version.
func (r *Repository) Register(ctx context.Context, artifact domain.ModelArtifact) (*domain.ModelArtifact, error) {
	ctx, span := r.tracer.Start(ctx, "model-registry.register")
	defer span.End()

	if artifact.ModelKey == "" || len(artifact.ArtifactBlob) == 0 {
		return nil, errors.New("invalid model artifact payload")
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, artifact.ModelKey); err != nil {
		return nil, err
	}
	var version int
	if err := tx.QueryRow(ctx, `SELECT COALESCE(MAX(version), 0) + 1 FROM model_versions WHERE model_key = $1`, artifact.ModelKey).Scan(&version); err != nil {
		return nil, err
	}

	out, err := scanArtifact(tx.QueryRow(ctx, `
INSERT INTO model_versions (
    model_key, version, stage, feature_spec_version,
    trained_from, trained_to, trained_at,
    hyperparams_json, metrics_json, description,
    artifact_format, artifact_blob
) VALUES (
    $1, $2, $3, $4,
    $5, $6, COALESCE($7, NOW()),
    $8, $9, $10,
    $11, $12
)
RETURNING id, model_key, version, stage, feature_spec_version,
          trained_from, trained_to, trained_at,
          hyperparams_json, metrics_json, description,
          artifact_format, artifact_blob,
          stage_changed_at, created_at`,
		artifact.ModelKey,
		version,
		string(domain.StageNone),
		artifact.FeatureSpecVersion,
		artifact.TrainedFrom.UTC(),
		artifact.TrainedTo.UTC(),
		nullIfZeroTime(artifact.TrainedAt),
		fallbackJSON(artifact.HyperparamsJSON),
		fallbackJSON(artifact.MetricsJSON),
		artifact.Description,
		artifact.ArtifactFormat,
		artifact.ArtifactBlob,
	))
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Int("version", out.Version))
	return out, nil
}

// Load returns the newest version in stage, or ErrModelUnavailable.
func (r *Repository) Load(ctx context.Context, modelKey string, stage domain.Stage) (*domain.ModelArtifact, error) {
	_, span := r.tracer.Start(ctx, "model-registry.load")
	defer span.End()
	span.SetAttributes(attribute.String("stage", string(stage)))

	out, err := r.getOne(ctx, selectColumns+`
WHERE model_key = $1 AND stage = $2
ORDER BY version DESC
LIMIT 1`, modelKey, string(stage))
	if err != nil {
		return nil, err
	}
	if out == nil {
		return nil, fmt.Errorf("%w: no %s version of %s", domain.ErrModelUnavailable, stage, modelKey)
	}
	return out, nil
}

// LoadServing prefers Production and falls back to Staging.
func (r *Repository) LoadServing(ctx context.Context, modelKey string) (*domain.ModelArtifact, error) {
	out, err := r.Load(ctx, modelKey, domain.StageProduction)
	if err == nil {
		return out, nil
	}
	if !errors.Is(err, domain.ErrModelUnavailable) {
		return nil, err
	}
	out, err = r.Load(ctx, modelKey, domain.StageStaging)
	if errors.Is(err, domain.ErrModelUnavailable) {
		return nil, fmt.Errorf("%w: no Production or Staging version of %s", domain.ErrModelUnavailable, modelKey)
	}
	return out, err
}

func (r *Repository) GetVersion(ctx context.Context, modelKey string, version int) (*domain.ModelArtifact, error) {
	_, span := r.tracer.Start(ctx, "model-registry.get-version")
	defer span.End()

	out, err := r.getOne(ctx, selectColumns+`
WHERE model_key = $1 AND version = $2`, modelKey, version)
	if err != nil {
		return nil, err
	}
	if out == nil {
		return nil, fmt.Errorf("%w: %s version %d", domain.ErrModelUnavailable, modelKey, version)
	}
	return out, nil
}

func (r *Repository) GetLatest(ctx context.Context, modelKey string) (*domain.ModelArtifact, error) {
	_, span := r.tracer.Start(ctx, "model-registry.get-latest")
	defer span.End()

	return r.getOne(ctx, selectColumns+`
WHERE model_key = $1
ORDER BY version DESC
LIMIT 1`, modelKey)
}

// TransitionStage moves version into stage. Moving into Staging or
// Production archives whichever version held that stage before.
func (r *Repository) TransitionStage(ctx context.Context, modelKey string, version int, stage domain.Stage) error {
	_, span := r.tracer.Start(ctx, "model-registry.transition-stage")
	defer span.End()
	span.SetAttributes(attribute.Int("version", version), attribute.String("stage", string(stage)))

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if stage == domain.StageStaging || stage == domain.StageProduction {
		if _, err := tx.Exec(ctx, `
UPDATE model_versions
SET stage = $3, stage_changed_at = NOW()
WHERE model_key = $1 AND stage = $2 AND version <> $4`,
			modelKey, string(stage), string(domain.StageArchived), version); err != nil {
			return err
		}
	}
	tag, err := tx.Exec(ctx, `
UPDATE model_versions
SET stage = $3, stage_changed_at = NOW()
WHERE model_key = $1 AND version = $2`, modelKey, version, string(stage))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s version %d", domain.ErrModelUnavailable, modelKey, version)
	}
	return tx.Commit(ctx)
}

// ListVersions returns metadata for the newest versions without artifact blobs.
func (r *Repository) ListVersions(ctx context.Context, modelKey string, limit int) ([]domain.ModelArtifact, error) {
	_, span := r.tracer.Start(ctx, "model-registry.list-versions")
	defer span.End()

	if limit <= 0 {
		limit = 20
	}
	rows, err := r.pool.Query(ctx, `
SELECT id, model_key, version, stage, feature_spec_version,
       trained_from, trained_to, trained_at,
       hyperparams_json, metrics_json, description,
       artifact_format, ''::bytea,
       stage_changed_at, created_at
FROM model_versions
WHERE model_key = $1
ORDER BY version DESC
LIMIT $2`, modelKey, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.ModelArtifact, 0)
	for rows.Next() {
		a, err := scanArtifact(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

func (r *Repository) getOne(ctx context.Context, query string, args ...any) (*domain.ModelArtifact, error) {
	out, err := scanArtifact(r.pool.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return out, nil
}

func scanArtifact(row pgx.Row) (*domain.ModelArtifact, error) {
	var (
		out   domain.ModelArtifact
		stage string
	)
	err := row.Scan(
		&out.ID,
		&out.ModelKey,
		&out.Version,
		&stage,
		&out.FeatureSpecVersion,
		&out.TrainedFrom,
		&out.TrainedTo,
		&out.TrainedAt,
		&out.HyperparamsJSON,
		&out.MetricsJSON,
		&out.Description,
		&out.ArtifactFormat,
		&out.ArtifactBlob,
		&out.StageChangedAt,
		&out.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	out.Stage = domain.Stage(stage)
	out.TrainedFrom = out.TrainedFrom.UTC()
	out.TrainedTo = out.TrainedTo.UTC()
	out.TrainedAt = out.TrainedAt.UTC()
	out.CreatedAt = out.CreatedAt.UTC()
	if out.StageChangedAt != nil {
		t := out.StageChangedAt.UTC()
		out.StageChangedAt = &t
	}
	return &out, nil
}

func fallbackJSON(v string) string {
	if v == "" {
		return "{}"
	}
	return v
}

func nullIfZeroTime(v time.Time) any {
	if v.IsZero() {
		return nil
	}
	return v.UTC()
}
