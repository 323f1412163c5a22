package predictions

import (
	"context"
	"errors"
	"testing"
	"time"

	"headline-vol/internal/domain"

	"go.opentelemetry.io/otel/trace"
)

type fakeLabelStore struct {
	days     []time.Time
	resolved map[string]int
	failOn   string
}

func (f *fakeLabelStore) ListUnlabeled(ctx context.Context, limit int) ([]time.Time, error) {
	return f.days, nil
}

func (f *fakeLabelStore) ResolveLabel(ctx context.Context, day time.Time, label int) error {
	if domain.DateKey(day) == f.failOn {
		return errors.New("db down")
	}
	if f.resolved == nil {
		f.resolved = map[string]int{}
	}
	f.resolved[domain.DateKey(day)] = label
	return nil
}

type fakeObservations struct {
	byDay map[string]float64
}

func (f fakeObservations) ListBefore(ctx context.Context, date time.Time, limit int) ([]domain.VolatilityObservation, error) {
	out := make([]domain.VolatilityObservation, 0, limit)
	for d := date.AddDate(0, 0, -limit); d.Before(date); d = d.AddDate(0, 0, 1) {
		if v, ok := f.byDay[domain.DateKey(d)]; ok {
			out = append(out, domain.VolatilityObservation{Date: d, Values: map[string]float64{domain.MetricRealizedVol: v}})
		}
	}
	return out, nil
}

func day(s string) time.Time {
	t, _ := time.Parse(time.DateOnly, s)
	return t
}

func TestResolveOutcomes(t *testing.T) {
	store := &fakeLabelStore{days: []time.Time{day("2016-06-23"), day("2016-06-24"), day("2016-06-27")}}
	history := fakeObservations{byDay: map[string]float64{
		"2016-06-22": 0.010,
		"2016-06-23": 0.012,
		"2016-06-24": 0.009,
	}}
	r := NewResolver(trace.NewNoopTracerProvider().Tracer("test"), store, history)

	n, err := r.ResolveOutcomes(context.Background(), 10)
	if err != nil {
		t.Fatalf("ResolveOutcomes: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 resolved, got %d", n)
	}
	if store.resolved["2016-06-23"] != 1 || store.resolved["2016-06-24"] != 0 {
		t.Fatalf("unexpected labels %+v", store.resolved)
	}
	if _, ok := store.resolved["2016-06-27"]; ok {
		t.Fatal("day without observation must stay pending")
	}
}

func TestResolveOutcomesStopsOnStoreError(t *testing.T) {
	store := &fakeLabelStore{days: []time.Time{day("2016-06-23")}, failOn: "2016-06-23"}
	history := fakeObservations{byDay: map[string]float64{"2016-06-22": 0.01, "2016-06-23": 0.02}}
	r := NewResolver(trace.NewNoopTracerProvider().Tracer("test"), store, history)

	if _, err := r.ResolveOutcomes(context.Background(), 10); err == nil {
		t.Fatal("expected error")
	}
}
