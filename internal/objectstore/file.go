package objectstore

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.opentelemetry.io/otel/trace"
)

// FileStore keeps each bucket as a directory under root.
type FileStore struct {
	root   string
	tracer trace.Tracer
}

func NewFileStore(root string, tracer trace.Tracer) *FileStore {
	return &FileStore{root: root, tracer: tracer}
}

func (s *FileStore) Get(ctx context.Context, bucket, path string) ([]byte, error) {
	_, span := s.tracer.Start(ctx, "objectstore.file.get")
	defer span.End()

	if err := validate(bucket, path); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.location(bucket, path))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	return data, err
}

// Put writes through a temp file and rename so readers never see a partial object.
func (s *FileStore) Put(ctx context.Context, bucket, path string, data []byte) error {
	_, span := s.tracer.Start(ctx, "objectstore.file.put")
	defer span.End()

	if err := validate(bucket, path); err != nil {
		return err
	}
	target := s.location(bucket, path)
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(target), ".put-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), target)
}

func (s *FileStore) List(ctx context.Context, bucket, prefix string) ([]string, error) {
	_, span := s.tracer.Start(ctx, "objectstore.file.list")
	defer span.End()

	if err := validatePrefix(bucket, prefix); err != nil {
		return nil, err
	}

	base := filepath.Join(s.root, bucket)
	out := make([]string, 0)
	err := filepath.WalkDir(base, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return fs.SkipAll
			}
			return err
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), ".put-") {
			return nil
		}
		rel, err := filepath.Rel(base, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if strings.HasPrefix(rel, prefix) {
			out = append(out, rel)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(out)
	return out, nil
}

func (s *FileStore) location(bucket, path string) string {
	return filepath.Join(s.root, bucket, filepath.FromSlash(path))
}
