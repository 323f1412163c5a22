package monitoring

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"headline-vol/internal/domain"

	"go.opentelemetry.io/otel/trace"
)

type stubSource struct {
	records  []domain.ScoringRecord
	err      error
	from, to time.Time
}

func (s *stubSource) ListRange(ctx context.Context, from, to time.Time) ([]domain.ScoringRecord, error) {
	s.from, s.to = from, to
	return s.records, s.err
}

type memStore struct {
	rows []domain.MonitoringMetric
}

func (m *memStore) InsertMetrics(ctx context.Context, rows []domain.MonitoringMetric) error {
	m.rows = append(m.rows, rows...)
	return nil
}

type recordingNotifier struct {
	alerts []domain.Alert
}

func (n *recordingNotifier) NotifyAlerts(ctx context.Context, alerts []domain.Alert) error {
	n.alerts = append(n.alerts, alerts...)
	return errors.New("telegram down")
}

func label(v int) *int { return &v }

func record(date string, proba float64, trueLabel *int) domain.ScoringRecord {
	return domain.ScoringRecord{
		Date:                date,
		PredictionMeanProba: proba,
		PredictionMeanClass: domain.ClassFor(proba),
		NumHeadlines:        20,
		ModelVersion:        "4",
		TrueLabel:           trueLabel,
	}
}

func TestComputePerfectPredictions(t *testing.T) {
	m := Compute([]domain.ScoringRecord{
		record("2016-06-20", 0.8, label(1)),
		record("2016-06-21", 0.3, label(0)),
		record("2016-06-22", 0.7, label(1)),
		record("2016-06-23", 0.6, nil),
		{Date: "2016-06-24", PredictionMeanProba: 0.5, Error: "no headlines provided"},
	})
	if m[MetricAccuracy] != 1 || m[MetricF1] != 1 || m[MetricAUC] != 1 {
		t.Fatalf("expected perfect scores, got %v", m)
	}
	if m[MetricPredictionDays] != 5 || m[MetricLabelledDays] != 3 || m[MetricEmptyDays] != 1 {
		t.Fatalf("unexpected counts %v", m)
	}
	if m[MetricMeanHeadlines] != 20 {
		t.Fatalf("expected 20 mean headlines, got %v", m[MetricMeanHeadlines])
	}
	if m[MetricProbaQ05] < 0.3 || m[MetricProbaQ95] > 0.8 || m[MetricProbaQ05] > m[MetricProbaQ95] {
		t.Fatalf("unexpected quantiles %v/%v", m[MetricProbaQ05], m[MetricProbaQ95])
	}
}

func TestComputeWithoutLabelsOmitsClassification(t *testing.T) {
	m := Compute([]domain.ScoringRecord{record("2016-06-20", 0.8, nil)})
	if _, ok := m[MetricAccuracy]; ok {
		t.Fatal("accuracy must be omitted without labels")
	}
	if len(CheckAlerts(m, DefaultThresholds())) != 0 {
		t.Fatal("no alerts expected without classification metrics")
	}
}

func TestComputeSingleClassAUC(t *testing.T) {
	m := Compute([]domain.ScoringRecord{record("2016-06-20", 0.8, label(1)), record("2016-06-21", 0.6, label(1))})
	if math.Abs(m[MetricAUC]-0.5) > 1e-12 {
		t.Fatalf("expected auc fallback 0.5, got %v", m[MetricAUC])
	}
}

func TestCheckAlertsBelowThresholds(t *testing.T) {
	alerts := CheckAlerts(map[string]float64{MetricAccuracy: 0.51, MetricF1: 0.50, MetricAUC: 0.4}, DefaultThresholds())
	if len(alerts) != 2 {
		t.Fatalf("expected 2 alerts, got %+v", alerts)
	}
	if alerts[0].Metric != MetricAccuracy || alerts[1].Metric != MetricAUC {
		t.Fatalf("unexpected alert order %+v", alerts)
	}
}

func TestRunPersistsAndNotifies(t *testing.T) {
	src := &stubSource{records: []domain.ScoringRecord{
		record("2016-06-20", 0.8, label(0)),
		record("2016-06-21", 0.3, label(1)),
	}}
	store := &memStore{}
	notifier := &recordingNotifier{}
	svc := NewService(trace.NewNoopTracerProvider().Tracer("test"), src, store, notifier, nil, Config{DaysBack: 7})
	svc.now = func() time.Time { return time.Date(2016, 6, 25, 9, 0, 0, 0, time.UTC) }

	report, err := svc.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !src.from.Equal(time.Date(2016, 6, 18, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected window start %v", src.from)
	}
	if len(report.Alerts) != 3 || len(notifier.alerts) != 3 {
		t.Fatalf("expected 3 alerts, got %d/%d", len(report.Alerts), len(notifier.alerts))
	}
	if len(store.rows) != len(report.Metrics) {
		t.Fatalf("expected %d stored metrics, got %d", len(report.Metrics), len(store.rows))
	}
	if store.rows[0].ModelVersion != "4" {
		t.Fatalf("unexpected model version %q", store.rows[0].ModelVersion)
	}
}

func TestRunPropagatesSourceErrors(t *testing.T) {
	svc := NewService(trace.NewNoopTracerProvider().Tracer("test"), &stubSource{err: errors.New("boom")}, nil, nil, nil, Config{})
	if _, err := svc.Run(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}
