package dataset

import (
	"bytes"
	"context"
	"fmt"

	"headline-vol/internal/domain"
	"headline-vol/internal/objectstore"
)

// Object paths inside the data bucket.
const (
	PathTrainTall   = "processed/train_tall"
	PathValTall     = "processed/val_tall"
	PathTestTall    = "processed/test_tall"
	PathFullTall    = "processed/volatility_tall_dataset"
	PathPredictions = "predictions/"
	PathDetailed    = "predictions/detailed/"
	detailedSuffix  = "_detailed"
)

func PredictionPath(day string) string {
	return PathPredictions + day
}

func DetailedPath(day string) string {
	return PathDetailed + day + detailedSuffix
}

func SaveTall(ctx context.Context, store objectstore.Store, bucket, path string, rows []domain.TallRecord) error {
	data, err := EncodeTall(rows)
	if err != nil {
		return err
	}
	if err := store.Put(ctx, bucket, path, data); err != nil {
		return fmt.Errorf("put %s/%s: %w", bucket, path, err)
	}
	return nil
}

func LoadTall(ctx context.Context, store objectstore.Store, bucket, path string) ([]domain.TallRecord, error) {
	data, err := store.Get(ctx, bucket, path)
	if err != nil {
		return nil, fmt.Errorf("get %s/%s: %w", bucket, path, err)
	}
	return DecodeTall(data)
}

func SaveRecords[T any](ctx context.Context, store objectstore.Store, bucket, path string, records []T) error {
	var buf bytes.Buffer
	if err := WriteRecords(&buf, records); err != nil {
		return err
	}
	if err := store.Put(ctx, bucket, path, buf.Bytes()); err != nil {
		return fmt.Errorf("put %s/%s: %w", bucket, path, err)
	}
	return nil
}

func LoadRecords[T any](ctx context.Context, store objectstore.Store, bucket, path string) ([]T, error) {
	data, err := store.Get(ctx, bucket, path)
	if err != nil {
		return nil, fmt.Errorf("get %s/%s: %w", bucket, path, err)
	}
	return ReadRecords[T](bytes.NewReader(data))
}
