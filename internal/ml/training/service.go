package training

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"headline-vol/internal/domain"
	"headline-vol/internal/metrics"
	"headline-vol/internal/ml/dataset"
	"headline-vol/internal/ml/evaluate"
	"headline-vol/internal/ml/features"
	"headline-vol/internal/ml/pipeline"
	"headline-vol/internal/ml/search"
	"headline-vol/internal/objectstore"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type ModelRegistry interface {
	Register(ctx context.Context, artifact domain.ModelArtifact) (*domain.ModelArtifact, error)
	Load(ctx context.Context, modelKey string, stage domain.Stage) (*domain.ModelArtifact, error)
	TransitionStage(ctx context.Context, modelKey string, version int, stage domain.Stage) error
}

type TrialLog interface {
	RecordTrial(ctx context.Context, modelKey string, trial domain.SearchTrial) error
}

// promotionMetric decides automatic promotion to Production.
const promotionMetric = "test_daily_mean_proba_roc_auc"

type Config struct {
	ModelKey    string
	Bucket      string
	MaxEvals    int
	Parallelism int
	Seed        uint64
	Space       search.Space
	Features    features.Config

	// AutoPromote moves the new version to Production when no Production
	// version exists or it beats it by MinAUCGain on the test split.
	AutoPromote bool
	MinAUCGain  float64
}

type Service struct {
	tracer   trace.Tracer
	store    objectstore.Store
	registry ModelRegistry
	trials   TrialLog
	recorder *metrics.Recorder
	cfg      Config

	newSessionID func() string
	now          func() time.Time
}

type RunResult struct {
	SessionID    string
	ModelKey     string
	Version      int
	Stage        domain.Stage
	BestTrial    int
	BestParams   pipeline.Params
	Trials       int
	FailedTrials int
	Metrics      map[string]float64
	Promoted     bool
	PromoteError error
}

func NewService(tracer trace.Tracer, store objectstore.Store, registry ModelRegistry, trials TrialLog, recorder *metrics.Recorder, cfg Config) *Service {
	if cfg.ModelKey == "" {
		cfg.ModelKey = "headline_vol"
	}
	if cfg.Bucket == "" {
		cfg.Bucket = "headline-vol"
	}
	if cfg.MaxEvals <= 0 {
		cfg.MaxEvals = 10
	}
	if cfg.Parallelism <= 0 {
		cfg.Parallelism = 1
	}
	if cfg.Space.MaxFeatures == nil {
		cfg.Space = search.DefaultSpace()
	}
	if cfg.Features.Lags == nil && cfg.Features.Windows == nil {
		cfg.Features = features.DefaultConfig()
	}
	if cfg.MinAUCGain <= 0 {
		cfg.MinAUCGain = 0.01
	}
	return &Service{
		tracer:       tracer,
		store:        store,
		registry:     registry,
		trials:       trials,
		recorder:     recorder,
		cfg:          cfg,
		newSessionID: uuid.NewString,
		now:          time.Now,
	}
}

// Run searches hyperparameters on the stored train/val tables, retrains the
// best parameter set, evaluates it and registers it in Staging.
func (s *Service) Run(ctx context.Context) (*RunResult, error) {
	ctx, span := s.tracer.Start(ctx, "ml-training.run")
	defer span.End()

	train, val, test, err := s.loadSplits(ctx)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	schema := s.cfg.Features.Schema()
	sessionID := s.newSessionID()
	span.SetAttributes(attribute.String("session_id", sessionID), attribute.Int("train_rows", len(train)))
	log.Info().
		Str("session_id", sessionID).
		Int("train_rows", len(train)).
		Int("val_rows", len(val)).
		Int("test_rows", len(test)).
		Int("max_evals", s.cfg.MaxEvals).
		Msg("starting hyperparameter search")

	driver := search.NewDriver(s.cfg.Space, search.NewRandomSampler(s.cfg.Seed), search.Config{
		MaxEvals:    s.cfg.MaxEvals,
		Parallelism: s.cfg.Parallelism,
	}, s.tracer)
	driver.OnTrial(func(ctx context.Context, t search.Trial) {
		s.recordTrial(ctx, sessionID, t)
	})

	start := s.now()
	res, err := driver.Run(ctx, search.ValidationObjective(train, val, schema))
	s.recorder.ObserveSince("search", start)
	if err != nil {
		return nil, err
	}

	fitStart := s.now()
	model, err := pipeline.Fit(train, schema, res.Best.Params)
	s.recorder.ObserveSince("fit", fitStart)
	if err != nil {
		return nil, fmt.Errorf("retrain best params (trial %d): %w", res.Best.Number, err)
	}

	valReport, err := search.EvaluateSplit(model, val, "val")
	if err != nil {
		return nil, fmt.Errorf("evaluate val: %w", err)
	}
	valReport.Daily = nil
	testReport, err := search.EvaluateSplit(model, test, "test")
	if err != nil {
		return nil, fmt.Errorf("evaluate test: %w", err)
	}
	flat := evaluate.MergeFlat(valReport, testReport)
	flat["best_trial_loss"] = res.Best.Loss

	blob, err := model.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("marshal model: %w", err)
	}

	result := &RunResult{
		SessionID:  sessionID,
		ModelKey:   s.cfg.ModelKey,
		BestTrial:  res.Best.Number,
		BestParams: res.Best.Params,
		Trials:     len(res.Trials),
		Metrics:    flat,
	}
	for _, t := range res.Trials {
		if t.Status == search.StatusFailed {
			result.FailedTrials++
		}
	}

	trainedFrom, trainedTo := dateRange(train)
	if err := s.persistAndMaybePromote(ctx, result, domain.ModelArtifact{
		ModelKey:           s.cfg.ModelKey,
		FeatureSpecVersion: schema.Version,
		TrainedFrom:        trainedFrom,
		TrainedTo:          trainedTo,
		TrainedAt:          model.TrainedAt(),
		HyperparamsJSON:    res.Best.Params.JSON(),
		MetricsJSON:        metricsJSON(flat),
		Description:        fmt.Sprintf("search session %s, best trial %d of %d", sessionID, res.Best.Number, len(res.Trials)),
		ArtifactFormat:     pipeline.ArtifactFormat,
		ArtifactBlob:       blob,
	}); err != nil {
		return nil, err
	}

	log.Info().
		Str("model_key", result.ModelKey).
		Int("version", result.Version).
		Str("stage", string(result.Stage)).
		Float64("test_daily_mean_proba_roc_auc", flat[promotionMetric]).
		Msg("training run registered model")
	return result, nil
}

func (s *Service) loadSplits(ctx context.Context) (train, val, test []domain.TallRecord, err error) {
	paths := []string{dataset.PathTrainTall, dataset.PathValTall, dataset.PathTestTall}
	out := make([][]domain.TallRecord, len(paths))
	for i, p := range paths {
		rows, err := dataset.LoadTall(ctx, s.store, s.cfg.Bucket, p)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("load %s: %w", p, err)
		}
		if len(rows) == 0 {
			return nil, nil, nil, fmt.Errorf("%w: %s is empty", domain.ErrDataIntegrity, p)
		}
		out[i] = rows
	}
	return out[0], out[1], out[2], nil
}

func (s *Service) recordTrial(ctx context.Context, sessionID string, t search.Trial) {
	s.recorder.RecordTrial(string(t.Status))
	if s.trials == nil {
		return
	}
	rec := domain.SearchTrial{
		SessionID:  sessionID,
		Number:     t.Number,
		ParamsJSON: t.Params.JSON(),
		Metrics:    t.Outcome.Report.Flatten(),
		Loss:       t.Loss,
		StartedAt:  t.StartedAt,
		Duration:   t.Duration,
	}
	if t.Outcome.Err != nil {
		rec.Error = t.Outcome.Err.Error()
	} else {
		rec.Metrics["score"] = t.Outcome.Score
	}
	if err := s.trials.RecordTrial(ctx, s.cfg.ModelKey, rec); err != nil {
		log.Warn().Err(err).Int("trial", t.Number).Msg("failed to record search trial")
	}
}

func (s *Service) persistAndMaybePromote(ctx context.Context, result *RunResult, artifact domain.ModelArtifact) error {
	inserted, err := s.registry.Register(ctx, artifact)
	if err != nil {
		return fmt.Errorf("register model: %w", err)
	}
	result.Version = inserted.Version
	result.Stage = domain.StageNone

	if err := s.registry.TransitionStage(ctx, inserted.ModelKey, inserted.Version, domain.StageStaging); err != nil {
		return fmt.Errorf("stage model v%d: %w", inserted.Version, err)
	}
	result.Stage = domain.StageStaging

	if !s.cfg.AutoPromote {
		return nil
	}
	promote, err := s.shouldPromote(ctx, result.Metrics[promotionMetric], inserted.Version)
	if err != nil {
		result.PromoteError = err
		return nil
	}
	if !promote {
		return nil
	}
	if err := s.registry.TransitionStage(ctx, inserted.ModelKey, inserted.Version, domain.StageProduction); err != nil {
		result.PromoteError = err
		return nil
	}
	result.Stage = domain.StageProduction
	result.Promoted = true
	return nil
}

func (s *Service) shouldPromote(ctx context.Context, newAUC float64, newVersion int) (bool, error) {
	current, err := s.registry.Load(ctx, s.cfg.ModelKey, domain.StageProduction)
	if errors.Is(err, domain.ErrModelUnavailable) {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	if current.Version == newVersion {
		return true, nil
	}
	currentAUC, ok := metricValue(current.MetricsJSON, promotionMetric)
	if !ok {
		return true, nil
	}
	return newAUC >= currentAUC+s.cfg.MinAUCGain, nil
}

func dateRange(rows []domain.TallRecord) (time.Time, time.Time) {
	var from, to time.Time
	for i, r := range rows {
		if i == 0 || r.Date.Before(from) {
			from = r.Date
		}
		if i == 0 || r.Date.After(to) {
			to = r.Date
		}
	}
	return from, to
}

func metricsJSON(m map[string]float64) string {
	b, err := json.Marshal(m)
	if err != nil {
		return "{}"
	}
	return string(b)
}

func metricValue(metricsJSON, key string) (float64, bool) {
	var m map[string]float64
	if err := json.Unmarshal([]byte(metricsJSON), &m); err != nil {
		return 0, false
	}
	v, ok := m[key]
	return v, ok
}
