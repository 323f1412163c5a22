package job

import (
	"context"
	"time"

	"headline-vol/internal/ml/monitoring"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/trace"
)

type MonitoringRunner interface {
	Run(ctx context.Context) (*monitoring.Report, error)
}

type MonitoringJob struct {
	tracer       trace.Tracer
	runner       MonitoringRunner
	pollInterval time.Duration
}

func NewMonitoringJob(tracer trace.Tracer, runner MonitoringRunner, pollInterval time.Duration) *MonitoringJob {
	if pollInterval <= 0 {
		pollInterval = time.Hour
	}
	return &MonitoringJob{tracer: tracer, runner: runner, pollInterval: pollInterval}
}

func (j *MonitoringJob) Start(ctx context.Context) {
	if j.runner == nil {
		log.Warn().Msg("Monitoring job disabled: no runner")
		<-ctx.Done()
		return
	}

	j.runOnce(ctx)
	ticker := time.NewTicker(j.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			j.runOnce(ctx)
		}
	}
}

func (j *MonitoringJob) runOnce(ctx context.Context) {
	_, span := j.tracer.Start(ctx, "monitoring-job.run-once")
	defer span.End()

	report, err := j.runner.Run(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Monitoring cycle error")
		return
	}
	log.Info().
		Str("model_version", report.ModelVersion).
		Int("metrics", len(report.Metrics)).
		Int("alerts", len(report.Alerts)).
		Msg("Monitoring cycle complete")
}
