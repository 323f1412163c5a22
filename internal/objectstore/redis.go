package objectstore

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/trace"
)

type redisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Scan(ctx context.Context, cursor uint64, match string, count int64) *redis.ScanCmd
}

// RedisStore keeps objects under "bucket:path" keys.
type RedisStore struct {
	client redisClient
	tracer trace.Tracer
}

func NewRedisStore(client redisClient, tracer trace.Tracer) *RedisStore {
	return &RedisStore{client: client, tracer: tracer}
}

func (s *RedisStore) Get(ctx context.Context, bucket, path string) ([]byte, error) {
	_, span := s.tracer.Start(ctx, "objectstore.redis.get")
	defer span.End()

	if err := validate(bucket, path); err != nil {
		return nil, err
	}
	data, err := s.client.Get(ctx, key(bucket, path)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	return data, err
}

func (s *RedisStore) Put(ctx context.Context, bucket, path string, data []byte) error {
	_, span := s.tracer.Start(ctx, "objectstore.redis.put")
	defer span.End()

	if err := validate(bucket, path); err != nil {
		return err
	}
	return s.client.Set(ctx, key(bucket, path), data, 0).Err()
}

func (s *RedisStore) List(ctx context.Context, bucket, prefix string) ([]string, error) {
	_, span := s.tracer.Start(ctx, "objectstore.redis.list")
	defer span.End()

	if err := validatePrefix(bucket, prefix); err != nil {
		return nil, err
	}

	match := key(bucket, escapeGlob(prefix)) + "*"
	base := bucket + ":"
	out := make([]string, 0)
	var cursor uint64
	for {
		keys, next, err := s.client.Scan(ctx, cursor, match, 200).Result()
		if err != nil {
			return nil, err
		}
		for _, k := range keys {
			out = append(out, strings.TrimPrefix(k, base))
		}
		if next == 0 {
			break
		}
		cursor = next
	}
	sort.Strings(out)
	return out, nil
}

func key(bucket, path string) string {
	return bucket + ":" + path
}

func escapeGlob(s string) string {
	r := strings.NewReplacer(`*`, `\*`, `?`, `\?`, `[`, `\[`, `]`, `\]`)
	return r.Replace(s)
}
