package service

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"headline-vol/internal/domain"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/trace"
)

const (
	latestCacheKey = "headline-vol:latest-prediction"
	latestCacheTTL = 10 * time.Minute
)

type PredictionRepository interface {
	Latest(ctx context.Context) (*domain.ScoringRecord, error)
	ListRecent(ctx context.Context, limit int) ([]domain.ScoringRecord, error)
}

type RedisClient interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// PredictionService reads persisted daily predictions, caching the latest
// record in Redis.
type PredictionService struct {
	tracer trace.Tracer
	repo   PredictionRepository
	redis  RedisClient
}

func NewPredictionService(tracer trace.Tracer, repo PredictionRepository, redisClient RedisClient) *PredictionService {
	return &PredictionService{tracer: tracer, repo: repo, redis: redisClient}
}

// Latest returns the most recent daily record, or nil when none exists.
func (s *PredictionService) Latest(ctx context.Context) (*domain.ScoringRecord, error) {
	ctx, span := s.tracer.Start(ctx, "prediction-service.latest")
	defer span.End()

	if s.redis != nil {
		cached, err := s.getCached(ctx)
		if err != nil {
			log.Warn().Err(err).Msg("redis cache read error")
		}
		if cached != nil {
			return cached, nil
		}
	}

	rec, err := s.repo.Latest(ctx)
	if err != nil || rec == nil {
		return rec, err
	}
	if s.redis != nil {
		if data, err := json.Marshal(rec); err == nil {
			if err := s.redis.Set(ctx, latestCacheKey, data, latestCacheTTL).Err(); err != nil {
				log.Warn().Err(err).Msg("redis cache write error")
			}
		}
	}
	return rec, nil
}

func (s *PredictionService) Recent(ctx context.Context, limit int) ([]domain.ScoringRecord, error) {
	ctx, span := s.tracer.Start(ctx, "prediction-service.recent")
	defer span.End()
	return s.repo.ListRecent(ctx, limit)
}

// Invalidate drops the cached latest record after a scoring run.
func (s *PredictionService) Invalidate(ctx context.Context) {
	if s.redis == nil {
		return
	}
	if err := s.redis.Del(ctx, latestCacheKey).Err(); err != nil {
		log.Warn().Err(err).Msg("redis cache invalidate error")
	}
}

func (s *PredictionService) getCached(ctx context.Context) (*domain.ScoringRecord, error) {
	data, err := s.redis.Get(ctx, latestCacheKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var rec domain.ScoringRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}
