package handler

import (
	"context"
	"strings"
	"time"

	"headline-vol/internal/domain"
	"headline-vol/internal/ml/aggregate"
	"headline-vol/internal/ml/scoring"
	"headline-vol/internal/ml/training"
	"headline-vol/internal/service"

	"go.opentelemetry.io/otel/trace"
)

var fixedNow = time.Date(2016, 7, 1, 12, 0, 0, 0, time.UTC)

func newTestHandler(models ModelServer) *Handler {
	tracer := trace.NewNoopTracerProvider().Tracer("test")
	h := New(tracer, models, nil, "")
	h.now = func() time.Time { return fixedNow }
	return h
}

// modelServerStub scores a headline 0.8 when it contains "crash" and 0.3 otherwise.
type modelServerStub struct {
	loaded    bool
	version   int
	reloadErr error
	lastDate  time.Time
	reloads   int
}

func (s *modelServerStub) Reload(ctx context.Context) (service.ModelInfo, error) {
	s.reloads++
	if s.reloadErr != nil {
		return service.ModelInfo{}, s.reloadErr
	}
	s.loaded = true
	s.version++
	return service.ModelInfo{ModelKey: "headline_vol", Version: s.version, Stage: string(domain.StageProduction)}, nil
}

func (s *modelServerStub) Info() (service.ModelInfo, error) {
	if !s.loaded {
		return service.ModelInfo{}, domain.ErrModelUnavailable
	}
	return service.ModelInfo{ModelKey: "headline_vol", Version: s.version}, nil
}

func (s *modelServerStub) PredictDay(ctx context.Context, date time.Time, headlines []string) (scoring.DailyResult, error) {
	if !s.loaded {
		return scoring.DailyResult{}, domain.ErrModelUnavailable
	}
	s.lastDate = date
	preds := make([]domain.HeadlinePrediction, 0, len(headlines))
	for _, h := range headlines {
		p := 0.3
		if strings.Contains(h, "crash") {
			p = 0.8
		}
		preds = append(preds, domain.NewHeadlinePrediction(h, p))
	}
	if len(preds) == 0 {
		return scoring.EmptyResult(date, "1", nil), nil
	}
	agg, err := aggregate.Day(date, preds, nil)
	if err != nil {
		return scoring.DailyResult{}, err
	}
	return scoring.DailyResult{Aggregate: agg, Predictions: preds, ModelVersion: "1"}, nil
}

func (s *modelServerStub) PredictBatch(ctx context.Context, days []service.DayRequest) ([]service.DayResult, error) {
	out := make([]service.DayResult, len(days))
	for i, d := range days {
		res, err := s.PredictDay(ctx, d.Date, d.Headlines)
		out[i] = service.DayResult{Result: res, Err: err}
	}
	return out, nil
}

type predictionReaderStub struct {
	latest    *domain.ScoringRecord
	recent    []domain.ScoringRecord
	err       error
	lastLimit int
}

func (s *predictionReaderStub) Latest(ctx context.Context) (*domain.ScoringRecord, error) {
	return s.latest, s.err
}

func (s *predictionReaderStub) Recent(ctx context.Context, limit int) ([]domain.ScoringRecord, error) {
	s.lastLimit = limit
	return s.recent, s.err
}

type mlTrainingRunnerStub struct {
	result *training.RunResult
	err    error
}

func (s mlTrainingRunnerStub) Run(ctx context.Context) (*training.RunResult, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.result, nil
}

type mlScoringRunnerStub struct {
	record   domain.ScoringRecord
	outcomes []scoring.DayOutcome
	err      error
	gotDate  time.Time
	gotDates []time.Time
}

func (s *mlScoringRunnerStub) ScoreDate(ctx context.Context, date time.Time) (domain.ScoringRecord, error) {
	s.gotDate = date
	return s.record, s.err
}

func (s *mlScoringRunnerStub) ScoreDays(ctx context.Context, dates []time.Time) ([]scoring.DayOutcome, error) {
	s.gotDates = dates
	return s.outcomes, s.err
}
