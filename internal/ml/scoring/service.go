package scoring

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"headline-vol/internal/domain"
	"headline-vol/internal/metrics"
	"headline-vol/internal/ml/dataset"
	"headline-vol/internal/ml/features"
	"headline-vol/internal/ml/pipeline"
	"headline-vol/internal/objectstore"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type ModelSource interface {
	LoadServing(ctx context.Context, modelKey string) (*domain.ModelArtifact, error)
}

type PredictionStore interface {
	Upsert(ctx context.Context, rec domain.ScoringRecord) error
}

// ServingModel is a fitted model together with the feature schema it reads.
type ServingModel interface {
	Predictor
	Schema() features.Schema
}

type Config struct {
	ModelKey  string
	Bucket    string
	TablePath string
}

// Service is the production scoring flow: load the serving model once,
// score days from the featurised table and persist the records.
type Service struct {
	tracer      trace.Tracer
	scorer      *Scorer
	models      ModelSource
	store       objectstore.Store
	predictions PredictionStore
	recorder    *metrics.Recorder
	cfg         Config

	decode func([]byte) (ServingModel, error)
	now    func() time.Time
}

// DayOutcome is the result of one day of a backfill. Err is set when that
// day failed; other days are unaffected.
type DayOutcome struct {
	Date   string
	Record *domain.ScoringRecord
	Err    error
}

func NewService(tracer trace.Tracer, models ModelSource, store objectstore.Store, predictions PredictionStore, recorder *metrics.Recorder, cfg Config) *Service {
	if cfg.ModelKey == "" {
		cfg.ModelKey = "headline_vol"
	}
	if cfg.Bucket == "" {
		cfg.Bucket = "headline-vol"
	}
	if cfg.TablePath == "" {
		cfg.TablePath = dataset.PathTestTall
	}
	return &Service{
		tracer:      tracer,
		scorer:      NewScorer(tracer),
		models:      models,
		store:       store,
		predictions: predictions,
		recorder:    recorder,
		cfg:         cfg,
		decode: func(blob []byte) (ServingModel, error) {
			return pipeline.UnmarshalBinary(blob)
		},
		now: time.Now,
	}
}

type servingEnv struct {
	model   ServingModel
	version string
	rows    []domain.TallRecord
}

func (s *Service) prepare(ctx context.Context) (*servingEnv, error) {
	artifact, err := s.models.LoadServing(ctx, s.cfg.ModelKey)
	if err != nil {
		return nil, err
	}
	model, err := s.decode(artifact.ArtifactBlob)
	if err != nil {
		return nil, fmt.Errorf("decode model %s v%d: %w", artifact.ModelKey, artifact.Version, err)
	}
	rows, err := dataset.LoadTall(ctx, s.store, s.cfg.Bucket, s.cfg.TablePath)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: scoring table %s is empty", domain.ErrDataIntegrity, s.cfg.TablePath)
	}
	return &servingEnv{model: model, version: strconv.Itoa(artifact.Version), rows: rows}, nil
}

// ScoreDate scores one day with the serving model. When the table has no
// rows for date the first available date is scored instead.
func (s *Service) ScoreDate(ctx context.Context, date time.Time) (domain.ScoringRecord, error) {
	ctx, span := s.tracer.Start(ctx, "scoring-service.score-date")
	defer span.End()

	env, err := s.prepare(ctx)
	if err != nil {
		span.RecordError(err)
		return domain.ScoringRecord{}, err
	}
	day := domain.DateKey(date)
	if len(dataset.RowsOn(env.rows, day)) == 0 {
		fallback := dataset.Dates(env.rows)[0]
		log.Warn().Str("requested", day).Str("fallback", fallback).Msg("no rows for requested date, scoring first available date")
		day = fallback
	}
	span.SetAttributes(attribute.String("date", day))
	return s.scoreOne(ctx, env, day)
}

// ScoreDays scores every date independently. A day that fails is reported
// in its outcome and does not stop the others; only a failure to load the
// model or the table is returned as an error.
func (s *Service) ScoreDays(ctx context.Context, dates []time.Time) ([]DayOutcome, error) {
	ctx, span := s.tracer.Start(ctx, "scoring-service.score-days")
	defer span.End()

	env, err := s.prepare(ctx)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	out := make([]DayOutcome, 0, len(dates))
	for _, d := range dates {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		day := domain.DateKey(d)
		rec, err := s.scoreOne(ctx, env, day)
		if err != nil {
			log.Error().Err(err).Str("date", day).Msg("scoring day failed")
			out = append(out, DayOutcome{Date: day, Err: err})
			continue
		}
		out = append(out, DayOutcome{Date: day, Record: &rec})
	}
	return out, nil
}

func (s *Service) scoreOne(ctx context.Context, env *servingEnv, day string) (domain.ScoringRecord, error) {
	start := s.now()
	defer s.recorder.ObserveSince("score_day", start)

	date, err := time.Parse(time.DateOnly, day)
	if err != nil {
		return domain.ScoringRecord{}, fmt.Errorf("%w: bad date %q", domain.ErrDataIntegrity, day)
	}
	rows := dataset.RowsOn(env.rows, day)
	headlines := make([]string, len(rows))
	for i, r := range rows {
		headlines[i] = r.Headline
	}
	var (
		snap  domain.HistoricalFeatureSet
		label *int
	)
	if len(rows) > 0 {
		snap = features.SnapshotFromRow(rows[0], env.model.Schema())
		label = &rows[0].Label
	}

	res, err := s.scorer.ScoreDay(ctx, env.model, env.version, date, headlines, snap, label)
	if err != nil {
		s.recorder.RecordDayScored("failed")
		return domain.ScoringRecord{}, err
	}
	rec := res.Record(s.now())
	if err := s.persist(ctx, res, rec); err != nil {
		s.recorder.RecordDayScored("failed")
		return domain.ScoringRecord{}, err
	}
	status := "ok"
	if res.Error != "" {
		status = "empty"
	}
	s.recorder.RecordDayScored(status)
	log.Info().
		Str("date", rec.Date).
		Str("model_version", rec.ModelVersion).
		Int("num_headlines", rec.NumHeadlines).
		Float64("mean_proba", rec.PredictionMeanProba).
		Int("mean_class", rec.PredictionMeanClass).
		Msg("scored day")
	return rec, nil
}

// SaveResult persists a day scored outside the table flow, such as live
// headlines, the same way ScoreDate does.
func (s *Service) SaveResult(ctx context.Context, res DailyResult) (domain.ScoringRecord, error) {
	ctx, span := s.tracer.Start(ctx, "scoring-service.save-result")
	defer span.End()

	rec := res.Record(s.now())
	if err := s.persist(ctx, res, rec); err != nil {
		span.RecordError(err)
		s.recorder.RecordDayScored("failed")
		return domain.ScoringRecord{}, err
	}
	status := "ok"
	if res.Error != "" {
		status = "empty"
	}
	s.recorder.RecordDayScored(status)
	return rec, nil
}

func (s *Service) persist(ctx context.Context, res DailyResult, rec domain.ScoringRecord) error {
	if err := dataset.SaveRecords(ctx, s.store, s.cfg.Bucket, dataset.PredictionPath(rec.Date), []domain.ScoringRecord{rec}); err != nil {
		return err
	}
	if detailed := res.Detailed(); len(detailed) > 0 {
		if err := dataset.SaveRecords(ctx, s.store, s.cfg.Bucket, dataset.DetailedPath(rec.Date), detailed); err != nil {
			return err
		}
	}
	if s.predictions == nil {
		return nil
	}
	if err := s.predictions.Upsert(ctx, rec); err != nil {
		return fmt.Errorf("upsert daily prediction %s: %w", rec.Date, err)
	}
	return nil
}

// LoadRecord reads a persisted daily record back from object storage.
func (s *Service) LoadRecord(ctx context.Context, day string) (*domain.ScoringRecord, error) {
	recs, err := dataset.LoadRecords[domain.ScoringRecord](ctx, s.store, s.cfg.Bucket, dataset.PredictionPath(day))
	if err != nil {
		if errors.Is(err, objectstore.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	if len(recs) == 0 {
		return nil, nil
	}
	return &recs[0], nil
}
