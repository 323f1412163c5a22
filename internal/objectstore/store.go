// Package objectstore is a small bucket/path blob store used for datasets,
// daily prediction records and detailed predictions.
package objectstore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/trace"
)

var ErrNotFound = errors.New("object not found")

type Store interface {
	Get(ctx context.Context, bucket, path string) ([]byte, error)
	Put(ctx context.Context, bucket, path string, data []byte) error
	List(ctx context.Context, bucket, prefix string) ([]string, error)
}

func validate(bucket, path string) error {
	if strings.TrimSpace(bucket) == "" {
		return fmt.Errorf("objectstore: empty bucket")
	}
	if strings.TrimSpace(path) == "" {
		return fmt.Errorf("objectstore: empty path")
	}
	if strings.Contains(path, "..") || strings.Contains(bucket, "..") || strings.ContainsAny(bucket, "/:") {
		return fmt.Errorf("objectstore: invalid location %s/%s", bucket, path)
	}
	return nil
}

// validatePrefix checks a List location. An empty prefix lists the whole
// bucket.
func validatePrefix(bucket, prefix string) error {
	if strings.TrimSpace(bucket) == "" {
		return fmt.Errorf("objectstore: empty bucket")
	}
	if strings.Contains(prefix, "..") || strings.Contains(bucket, "..") || strings.ContainsAny(bucket, "/:") {
		return fmt.Errorf("objectstore: invalid location %s/%s", bucket, prefix)
	}
	return nil
}

// Open returns the store for backend ("file" or "redis").
func Open(backend, root string, client *redis.Client, tracer trace.Tracer) (Store, error) {
	switch strings.ToLower(backend) {
	case "", "file":
		if root == "" {
			root = "data"
		}
		return NewFileStore(root, tracer), nil
	case "redis":
		if client == nil {
			return nil, fmt.Errorf("objectstore: redis backend requires a redis client")
		}
		return NewRedisStore(client, tracer), nil
	default:
		return nil, fmt.Errorf("objectstore: unknown backend %q", backend)
	}
}
