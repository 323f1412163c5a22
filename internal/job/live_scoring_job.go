package job

import (
	"context"
	"time"

	"headline-vol/internal/domain"
	"headline-vol/internal/ml/scoring"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type HeadlineSource interface {
	Headlines(ctx context.Context, date time.Time) ([]string, error)
}

type DayPredictor interface {
	PredictDay(ctx context.Context, date time.Time, headlines []string) (scoring.DailyResult, error)
}

type ResultSaver interface {
	SaveResult(ctx context.Context, res scoring.DailyResult) (domain.ScoringRecord, error)
}

// LiveScoringJob scores the current day from live feed headlines once a
// day. It replaces MLScoringJob when headline feeds are configured.
type LiveScoringJob struct {
	tracer    trace.Tracer
	source    HeadlineSource
	predictor DayPredictor
	saver     ResultSaver
	cache     CacheInvalidator
	scoreHour int
	now       func() time.Time
}

func NewLiveScoringJob(tracer trace.Tracer, source HeadlineSource, predictor DayPredictor, saver ResultSaver, cache CacheInvalidator, scoreHourUTC int) *LiveScoringJob {
	if scoreHourUTC < 0 || scoreHourUTC > 23 {
		scoreHourUTC = 0
	}
	return &LiveScoringJob{
		tracer:    tracer,
		source:    source,
		predictor: predictor,
		saver:     saver,
		cache:     cache,
		scoreHour: scoreHourUTC,
		now:       time.Now,
	}
}

func (j *LiveScoringJob) Start(ctx context.Context) {
	if j.source == nil || j.predictor == nil || j.saver == nil {
		log.Warn().Msg("live scoring job disabled: missing dependency")
		<-ctx.Done()
		return
	}
	runDaily(ctx, j.scoreHour, j.runOnce)
}

func (j *LiveScoringJob) runOnce(ctx context.Context) {
	ctx, span := j.tracer.Start(ctx, "live-scoring-job.run-once")
	defer span.End()

	day := domain.TruncateDay(j.now())
	headlines, err := j.source.Headlines(ctx, day)
	if err != nil {
		span.RecordError(err)
		log.Error().Err(err).Msg("live headline collection error")
		return
	}
	span.SetAttributes(attribute.Int("headlines", len(headlines)))

	res, err := j.predictor.PredictDay(ctx, day, headlines)
	if err != nil {
		span.RecordError(err)
		log.Error().Err(err).Msg("live scoring error")
		return
	}
	rec, err := j.saver.SaveResult(ctx, res)
	if err != nil {
		span.RecordError(err)
		log.Error().Err(err).Str("date", domain.DateKey(day)).Msg("live scoring persist error")
		return
	}
	if j.cache != nil {
		j.cache.Invalidate(ctx)
	}
	log.Info().
		Str("date", rec.Date).
		Str("model_version", rec.ModelVersion).
		Int("num_headlines", rec.NumHeadlines).
		Float64("mean_proba", rec.PredictionMeanProba).
		Msg("live scoring result")
}
