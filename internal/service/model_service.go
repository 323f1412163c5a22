package service

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"headline-vol/internal/domain"
	"headline-vol/internal/ml/features"
	"headline-vol/internal/ml/pipeline"
	"headline-vol/internal/ml/scoring"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// historyDays bounds the observations read to build a snapshot; it covers
// the longest lag and window with room for gaps.
const historyDays = 40

type ModelSource interface {
	LoadServing(ctx context.Context, modelKey string) (*domain.ModelArtifact, error)
}

type HistorySource interface {
	ListBefore(ctx context.Context, date time.Time, limit int) ([]domain.VolatilityObservation, error)
}

// ModelInfo describes the model currently served.
type ModelInfo struct {
	ModelKey           string    `json:"model_key"`
	Version            int       `json:"version"`
	Stage              string    `json:"stage"`
	FeatureSpecVersion string    `json:"feature_spec_version"`
	TrainedAt          time.Time `json:"trained_at"`
	VocabularySize     int       `json:"vocabulary_size"`
	NumericFeatures    int       `json:"numeric_features"`
	Hyperparams        string    `json:"hyperparams"`
	Metrics            string    `json:"metrics"`
	LoadedAt           time.Time `json:"loaded_at"`
}

// DayRequest is one day of headlines to score.
type DayRequest struct {
	Date      time.Time
	Headlines []string
}

// DayResult pairs a request with its result or error.
type DayResult struct {
	Result scoring.DailyResult
	Err    error
}

type servedModel struct {
	model *pipeline.Model
	info  ModelInfo
}

// ModelService serves predictions from the registry's serving model. The
// model is swapped atomically on Reload; in-flight predictions keep the
// model they started with.
type ModelService struct {
	tracer   trace.Tracer
	models   ModelSource
	history  HistorySource
	scorer   *scoring.Scorer
	modelKey string
	features features.Config

	mu      sync.RWMutex
	current *servedModel
	now     func() time.Time
}

func NewModelService(tracer trace.Tracer, models ModelSource, history HistorySource, modelKey string) *ModelService {
	return &ModelService{
		tracer:   tracer,
		models:   models,
		history:  history,
		scorer:   scoring.NewScorer(tracer),
		modelKey: modelKey,
		features: features.DefaultConfig(),
		now:      time.Now,
	}
}

// Reload fetches the serving model (Production, else Staging) and swaps it in.
func (s *ModelService) Reload(ctx context.Context) (ModelInfo, error) {
	ctx, span := s.tracer.Start(ctx, "model-service.reload")
	defer span.End()

	artifact, err := s.models.LoadServing(ctx, s.modelKey)
	if err != nil {
		span.RecordError(err)
		return ModelInfo{}, err
	}
	model, err := pipeline.UnmarshalBinary(artifact.ArtifactBlob)
	if err != nil {
		return ModelInfo{}, fmt.Errorf("decode model %s v%d: %w", artifact.ModelKey, artifact.Version, err)
	}
	info := ModelInfo{
		ModelKey:           artifact.ModelKey,
		Version:            artifact.Version,
		Stage:              string(artifact.Stage),
		FeatureSpecVersion: artifact.FeatureSpecVersion,
		TrainedAt:          model.TrainedAt(),
		VocabularySize:     model.VocabularySize(),
		NumericFeatures:    len(model.Schema().Numeric),
		Hyperparams:        artifact.HyperparamsJSON,
		Metrics:            artifact.MetricsJSON,
		LoadedAt:           s.now().UTC(),
	}

	s.mu.Lock()
	s.current = &servedModel{model: model, info: info}
	s.mu.Unlock()

	span.SetAttributes(attribute.Int("version", info.Version), attribute.String("stage", info.Stage))
	log.Info().Str("model_key", info.ModelKey).Int("version", info.Version).Str("stage", info.Stage).Msg("serving model loaded")
	return info, nil
}

// Info returns the served model's metadata or ErrModelUnavailable.
func (s *ModelService) Info() (ModelInfo, error) {
	cur := s.served()
	if cur == nil {
		return ModelInfo{}, domain.ErrModelUnavailable
	}
	return cur.info, nil
}

func (s *ModelService) served() *servedModel {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// PredictDay scores one day of headlines. The numeric snapshot comes from
// stored volatility history before date; without history the neutral
// snapshot is used.
func (s *ModelService) PredictDay(ctx context.Context, date time.Time, headlines []string) (scoring.DailyResult, error) {
	ctx, span := s.tracer.Start(ctx, "model-service.predict-day")
	defer span.End()

	cur := s.served()
	if cur == nil {
		return scoring.DailyResult{}, domain.ErrModelUnavailable
	}
	snap, err := s.snapshot(ctx, date)
	if err != nil {
		span.RecordError(err)
		return scoring.DailyResult{}, err
	}
	return s.scorer.ScoreDay(ctx, cur.model, strconv.Itoa(cur.info.Version), date, headlines, snap, nil)
}

// PredictBatch scores each day independently with the same model.
func (s *ModelService) PredictBatch(ctx context.Context, days []DayRequest) ([]DayResult, error) {
	if s.served() == nil {
		return nil, domain.ErrModelUnavailable
	}
	out := make([]DayResult, len(days))
	for i, d := range days {
		res, err := s.PredictDay(ctx, d.Date, d.Headlines)
		out[i] = DayResult{Result: res, Err: err}
	}
	return out, nil
}

func (s *ModelService) snapshot(ctx context.Context, date time.Time) (domain.HistoricalFeatureSet, error) {
	if s.history == nil {
		return features.NeutralSnapshot(date, s.features), nil
	}
	obs, err := s.history.ListBefore(ctx, date, historyDays)
	if err != nil {
		return domain.HistoricalFeatureSet{}, fmt.Errorf("load volatility history: %w", err)
	}
	if len(obs) == 0 {
		log.Debug().Str("date", domain.DateKey(date)).Msg("no volatility history, using neutral snapshot")
		return features.NeutralSnapshot(date, s.features), nil
	}
	return features.Snapshot(obs, date, s.features), nil
}
