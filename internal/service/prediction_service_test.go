package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"headline-vol/internal/domain"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/trace"
)

type fakeRedis struct {
	data map[string]string
}

func (f *fakeRedis) Set(ctx context.Context, key string, value interface{}, _ time.Duration) *redis.StatusCmd {
	switch v := value.(type) {
	case []byte:
		f.data[key] = string(v)
	case string:
		f.data[key] = v
	}
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeRedis) Get(ctx context.Context, key string) *redis.StringCmd {
	v, ok := f.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (f *fakeRedis) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	for _, k := range keys {
		delete(f.data, k)
	}
	return redis.NewIntResult(int64(len(keys)), nil)
}

type fakePredictionRepo struct {
	latest *domain.ScoringRecord
	calls  int
	err    error
}

func (f *fakePredictionRepo) Latest(ctx context.Context) (*domain.ScoringRecord, error) {
	f.calls++
	return f.latest, f.err
}

func (f *fakePredictionRepo) ListRecent(ctx context.Context, limit int) ([]domain.ScoringRecord, error) {
	if f.latest == nil {
		return nil, f.err
	}
	return []domain.ScoringRecord{*f.latest}, f.err
}

func TestLatestCachesRecord(t *testing.T) {
	repo := &fakePredictionRepo{latest: &domain.ScoringRecord{Date: "2016-06-24", PredictionMeanProba: 0.61, ModelVersion: "2"}}
	cache := &fakeRedis{data: map[string]string{}}
	svc := NewPredictionService(trace.NewNoopTracerProvider().Tracer("test"), repo, cache)

	for i := 0; i < 3; i++ {
		rec, err := svc.Latest(context.Background())
		if err != nil || rec == nil || rec.Date != "2016-06-24" {
			t.Fatalf("unexpected latest %+v (%v)", rec, err)
		}
	}
	if repo.calls != 1 {
		t.Fatalf("expected one repository call, got %d", repo.calls)
	}

	svc.Invalidate(context.Background())
	if _, err := svc.Latest(context.Background()); err != nil {
		t.Fatalf("Latest: %v", err)
	}
	if repo.calls != 2 {
		t.Fatalf("expected repository call after invalidate, got %d", repo.calls)
	}
}

func TestLatestWithoutCache(t *testing.T) {
	repo := &fakePredictionRepo{err: errors.New("db down")}
	svc := NewPredictionService(trace.NewNoopTracerProvider().Tracer("test"), repo, nil)
	if _, err := svc.Latest(context.Background()); err == nil {
		t.Fatal("expected repository error")
	}

	repo.err = nil
	rec, err := svc.Latest(context.Background())
	if err != nil || rec != nil {
		t.Fatalf("expected nil record, got %+v (%v)", rec, err)
	}
}
