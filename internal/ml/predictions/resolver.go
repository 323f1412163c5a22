package predictions

import (
	"context"
	"errors"
	"fmt"
	"time"

	"headline-vol/internal/domain"
	"headline-vol/internal/ml/features"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type LabelStore interface {
	ListUnlabeled(ctx context.Context, limit int) ([]time.Time, error)
	ResolveLabel(ctx context.Context, day time.Time, label int) error
}

type ObservationSource interface {
	ListBefore(ctx context.Context, date time.Time, limit int) ([]domain.VolatilityObservation, error)
}

// Resolver backfills true labels on scored days once the day's realized
// volatility and the previous day's are both observed.
type Resolver struct {
	tracer  trace.Tracer
	store   LabelStore
	history ObservationSource
}

func NewResolver(tracer trace.Tracer, store LabelStore, history ObservationSource) *Resolver {
	return &Resolver{tracer: tracer, store: store, history: history}
}

// ResolveOutcomes labels up to limit pending days and returns how many were
// resolved. Days whose observations are not in yet are left for a later run.
func (r *Resolver) ResolveOutcomes(ctx context.Context, limit int) (int, error) {
	ctx, span := r.tracer.Start(ctx, "outcome-resolver.resolve")
	defer span.End()

	days, err := r.store.ListUnlabeled(ctx, limit)
	if err != nil {
		return 0, fmt.Errorf("list unlabeled days: %w", err)
	}

	resolved := 0
	for _, day := range days {
		label, ok, err := r.labelFor(ctx, day)
		if err != nil {
			return resolved, err
		}
		if !ok {
			continue
		}
		if err := r.store.ResolveLabel(ctx, day, label); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				continue
			}
			return resolved, fmt.Errorf("resolve %s: %w", domain.DateKey(day), err)
		}
		resolved++
	}
	span.SetAttributes(attribute.Int("pending", len(days)), attribute.Int("resolved", resolved))
	if resolved > 0 {
		log.Info().Int("resolved", resolved).Int("pending", len(days)).Msg("resolved daily prediction labels")
	}
	return resolved, nil
}

func (r *Resolver) labelFor(ctx context.Context, day time.Time) (int, bool, error) {
	obs, err := r.history.ListBefore(ctx, day.AddDate(0, 0, 1), 2)
	if err != nil {
		return 0, false, fmt.Errorf("observations for %s: %w", domain.DateKey(day), err)
	}
	if len(obs) < 2 || domain.DateKey(obs[1].Date) != domain.DateKey(day) {
		return 0, false, nil
	}
	label, ok := features.VolUp(obs[0].Values, obs[1].Values)
	return label, ok, nil
}
