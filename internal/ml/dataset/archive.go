package dataset

import (
	"context"
	"fmt"
	"strings"
	"time"

	"headline-vol/internal/domain"
	"headline-vol/internal/objectstore"
)

// RecordArchive reads the daily scoring records kept in the object store.
// It serves monitoring when no Postgres database is configured.
type RecordArchive struct {
	store  objectstore.Store
	bucket string
}

func NewRecordArchive(store objectstore.Store, bucket string) *RecordArchive {
	return &RecordArchive{store: store, bucket: bucket}
}

// Days lists the dates with a stored daily record, oldest first. Detailed
// records and unrelated keys under the predictions prefix are skipped.
func (a *RecordArchive) Days(ctx context.Context) ([]time.Time, error) {
	keys, err := a.store.List(ctx, a.bucket, PathPredictions)
	if err != nil {
		return nil, fmt.Errorf("list %s/%s: %w", a.bucket, PathPredictions, err)
	}
	days := make([]time.Time, 0, len(keys))
	for _, k := range keys {
		name := strings.TrimPrefix(k, PathPredictions)
		if strings.Contains(name, "/") {
			continue
		}
		day, err := time.Parse(time.DateOnly, name)
		if err != nil {
			continue
		}
		days = append(days, day)
	}
	return days, nil
}

// ListRange loads the records dated from..to inclusive, oldest first.
func (a *RecordArchive) ListRange(ctx context.Context, from, to time.Time) ([]domain.ScoringRecord, error) {
	days, err := a.Days(ctx)
	if err != nil {
		return nil, err
	}
	from, to = domain.TruncateDay(from), domain.TruncateDay(to)
	out := make([]domain.ScoringRecord, 0)
	for _, day := range days {
		if day.Before(from) || day.After(to) {
			continue
		}
		recs, err := LoadRecords[domain.ScoringRecord](ctx, a.store, a.bucket, PredictionPath(domain.DateKey(day)))
		if err != nil {
			return nil, err
		}
		out = append(out, recs...)
	}
	return out, nil
}
