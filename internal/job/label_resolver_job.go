package job

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// LabelResolver sets the true label on scored days whose realized
// volatility is now known.
type LabelResolver interface {
	ResolveOutcomes(ctx context.Context, limit int) (int, error)
}

// maxResolvePasses bounds how many full batches one run drains.
const maxResolvePasses = 10

// LabelResolverJob periodically backfills labels on daily_predictions.
// A run keeps pulling batches while they come back full, so a long backlog
// after downtime clears in one run.
type LabelResolverJob struct {
	tracer    trace.Tracer
	resolver  LabelResolver
	cache     CacheInvalidator
	interval  time.Duration
	batchSize int
}

func NewLabelResolverJob(tracer trace.Tracer, resolver LabelResolver, cache CacheInvalidator, interval time.Duration, batchSize int) *LabelResolverJob {
	if interval <= 0 {
		interval = 6 * time.Hour
	}
	if batchSize <= 0 {
		batchSize = 200
	}
	return &LabelResolverJob{tracer: tracer, resolver: resolver, cache: cache, interval: interval, batchSize: batchSize}
}

func (j *LabelResolverJob) Start(ctx context.Context) {
	if j.resolver == nil {
		log.Warn().Msg("label resolver job disabled: no resolver")
		<-ctx.Done()
		return
	}
	j.runOnce(ctx)
	ticker := time.NewTicker(j.interval)
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

func (j *LabelResolverJob) runOnce(ctx context.Context) int {
	ctx, span := j.tracer.Start(ctx, "label-resolver-job.run-once")
	defer span.End()

	total := 0
	for pass := 0; pass < maxResolvePasses; pass++ {
		n, err := j.resolver.ResolveOutcomes(ctx, j.batchSize)
		if err != nil {
			span.RecordError(err)
			log.Error().Err(err).Int("resolved", total).Msg("label resolver error")
			break
		}
		total += n
		if n < j.batchSize {
			break
		}
	}
	span.SetAttributes(attribute.Int("resolved", total))
	if total > 0 {
		if j.cache != nil {
			j.cache.Invalidate(ctx)
		}
		log.Info().Int("resolved", total).Msg("labels resolved")
	}
	return total
}
