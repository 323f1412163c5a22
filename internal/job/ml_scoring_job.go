package job

import (
	"context"
	"time"

	"headline-vol/internal/domain"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/trace"
)

type MLScorer interface {
	ScoreDate(ctx context.Context, date time.Time) (domain.ScoringRecord, error)
}

// CacheInvalidator drops cached reads of the latest prediction.
type CacheInvalidator interface {
	Invalidate(ctx context.Context)
}

// MLScoringJob scores the previous, complete day once a day with the
// serving model.
type MLScoringJob struct {
	tracer    trace.Tracer
	scorer    MLScorer
	cache     CacheInvalidator
	scoreHour int
	now       func() time.Time
}

func NewMLScoringJob(tracer trace.Tracer, scorer MLScorer, cache CacheInvalidator, scoreHourUTC int) *MLScoringJob {
	if scoreHourUTC < 0 || scoreHourUTC > 23 {
		scoreHourUTC = 0
	}
	return &MLScoringJob{tracer: tracer, scorer: scorer, cache: cache, scoreHour: scoreHourUTC, now: time.Now}
}

func (j *MLScoringJob) Start(ctx context.Context) {
	if j.scorer == nil {
		log.Warn().Msg("ML scoring job disabled: no scorer")
		<-ctx.Done()
		return
	}
	runDaily(ctx, j.scoreHour, j.runOnce)
}

func (j *MLScoringJob) runOnce(ctx context.Context) {
	ctx, span := j.tracer.Start(ctx, "ml-scoring-job.run-once")
	defer span.End()

	rec, err := j.scorer.ScoreDate(ctx, domain.TruncateDay(j.now()).AddDate(0, 0, -1))
	if err != nil {
		log.Error().Err(err).Msg("ML scoring error")
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
		Int("majority_vote", rec.PredictionMajorityVote).
		Msg("ML scoring result")
}
