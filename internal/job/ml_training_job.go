package job

import (
	"context"
	"time"

	"headline-vol/internal/ml/training"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/trace"
)

type MLTrainer interface {
	Run(ctx context.Context) (*training.RunResult, error)
}

type MLTrainingJob struct {
	tracer    trace.Tracer
	service   MLTrainer
	trainHour int
}

func NewMLTrainingJob(tracer trace.Tracer, service MLTrainer, trainHourUTC int) *MLTrainingJob {
	if trainHourUTC < 0 || trainHourUTC > 23 {
		trainHourUTC = 0
	}
	return &MLTrainingJob{tracer: tracer, service: service, trainHour: trainHourUTC}
}

func (j *MLTrainingJob) Start(ctx context.Context) {
	if j.service == nil {
		log.Warn().Msg("ML training job disabled: no service")
		<-ctx.Done()
		return
	}
	runDaily(ctx, j.trainHour, j.runOnce)
}

func (j *MLTrainingJob) runOnce(ctx context.Context) {
	_, span := j.tracer.Start(ctx, "ml-training-job.run-once")
	defer span.End()

	res, err := j.service.Run(ctx)
	if err != nil {
		log.Error().Err(err).Msg("ML training error")
		return
	}
	ev := log.Info().
		Str("model", res.ModelKey).
		Int("version", res.Version).
		Str("stage", string(res.Stage)).
		Int("trials", res.Trials).
		Int("failed_trials", res.FailedTrials).
		Bool("promoted", res.Promoted)
	if auc, ok := res.Metrics["test_daily_mean_proba_roc_auc"]; ok {
		ev = ev.Float64("test_daily_auc", auc)
	}
	ev.Msg("ML training result")
	if res.PromoteError != nil {
		log.Warn().Err(res.PromoteError).Int("version", res.Version).Msg("ML promotion failed")
	}
}

// runDaily calls fn once a day at hour UTC until ctx is cancelled.
func runDaily(ctx context.Context, hour int, fn func(context.Context)) {
	for {
		next := nextRunUTC(time.Now().UTC(), hour)
		wait := time.Until(next)
		if wait < time.Second {
			wait = time.Second
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			fn(ctx)
		}
	}
}

func nextRunUTC(now time.Time, hour int) time.Time {
	run := time.Date(now.Year(), now.Month(), now.Day(), hour, 0, 0, 0, time.UTC)
	if !run.After(now) {
		run = run.Add(24 * time.Hour)
	}
	return run
}
