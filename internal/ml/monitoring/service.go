// Package monitoring tracks the live quality of daily predictions once their
// true labels are known.
package monitoring

import (
	"context"
	"fmt"
	"sort"
	"time"

	"headline-vol/internal/domain"
	"headline-vol/internal/metrics"
	"headline-vol/internal/ml/evaluate"
	"headline-vol/internal/ta"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Metric names written to volatility_metrics.
const (
	MetricAccuracy       = "accuracy"
	MetricF1             = "f1"
	MetricAUC            = "auc"
	MetricProbaQ05       = "prediction_mean_proba_quantile_0.05"
	MetricProbaQ95       = "prediction_mean_proba_quantile_0.95"
	MetricPredictionDays = "prediction_days"
	MetricLabelledDays   = "labelled_days"
	MetricEmptyDays      = "empty_days"
	MetricMeanHeadlines  = "mean_num_headlines"
)

// Thresholds are lower bounds; a metric below its bound raises an alert.
type Thresholds struct {
	Accuracy float64
	F1       float64
	AUC      float64
}

func DefaultThresholds() Thresholds {
	return Thresholds{Accuracy: 0.52, F1: 0.50, AUC: 0.52}
}

type RecordSource interface {
	ListRange(ctx context.Context, from, to time.Time) ([]domain.ScoringRecord, error)
}

type MetricStore interface {
	InsertMetrics(ctx context.Context, rows []domain.MonitoringMetric) error
}

// Notifier delivers alerts to operators.
type Notifier interface {
	NotifyAlerts(ctx context.Context, alerts []domain.Alert) error
}

type Config struct {
	DaysBack   int
	Thresholds Thresholds
}

type Service struct {
	tracer   trace.Tracer
	source   RecordSource
	store    MetricStore
	notifier Notifier
	recorder *metrics.Recorder
	cfg      Config
	now      func() time.Time
}

// Report is the outcome of one monitoring run.
type Report struct {
	From         time.Time          `json:"from"`
	To           time.Time          `json:"to"`
	ModelVersion string             `json:"model_version"`
	Metrics      map[string]float64 `json:"metrics"`
	Alerts       []domain.Alert     `json:"alerts"`
}

func NewService(tracer trace.Tracer, source RecordSource, store MetricStore, notifier Notifier, recorder *metrics.Recorder, cfg Config) *Service {
	if cfg.DaysBack <= 0 {
		cfg.DaysBack = 7
	}
	if cfg.Thresholds == (Thresholds{}) {
		cfg.Thresholds = DefaultThresholds()
	}
	return &Service{tracer: tracer, source: source, store: store, notifier: notifier, recorder: recorder, cfg: cfg, now: time.Now}
}

// Run computes metrics over the last DaysBack days of daily predictions,
// persists them and notifies on threshold breaches.
func (s *Service) Run(ctx context.Context) (*Report, error) {
	ctx, span := s.tracer.Start(ctx, "monitoring.run")
	defer span.End()

	to := domain.TruncateDay(s.now())
	from := to.AddDate(0, 0, -s.cfg.DaysBack)
	records, err := s.source.ListRange(ctx, from, to)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("load daily predictions: %w", err)
	}

	report := &Report{From: from, To: to, Metrics: Compute(records)}
	if len(records) > 0 {
		report.ModelVersion = latestVersion(records)
	}
	report.Alerts = CheckAlerts(report.Metrics, s.cfg.Thresholds)
	span.SetAttributes(attribute.Int("records", len(records)), attribute.Int("alerts", len(report.Alerts)))

	for name, v := range report.Metrics {
		s.recorder.RecordMonitoringValue(name, v)
	}
	if s.store != nil && len(report.Metrics) > 0 {
		ts := s.now().UTC()
		rows := make([]domain.MonitoringMetric, 0, len(report.Metrics))
		for _, name := range sortedKeys(report.Metrics) {
			rows = append(rows, domain.MonitoringMetric{Name: name, Value: report.Metrics[name], ModelVersion: report.ModelVersion, Timestamp: ts})
		}
		if err := s.store.InsertMetrics(ctx, rows); err != nil {
			return nil, fmt.Errorf("save monitoring metrics: %w", err)
		}
	}

	for _, a := range report.Alerts {
		s.recorder.RecordAlert(a.Metric)
		log.Warn().Str("metric", a.Metric).Float64("value", a.Value).Float64("threshold", a.Threshold).Msg(a.Message)
	}
	if len(report.Alerts) > 0 && s.notifier != nil {
		if err := s.notifier.NotifyAlerts(ctx, report.Alerts); err != nil {
			log.Error().Err(err).Int("alerts", len(report.Alerts)).Msg("failed to deliver monitoring alerts")
		}
	}
	log.Info().
		Int("records", len(records)).
		Int("alerts", len(report.Alerts)).
		Str("model_version", report.ModelVersion).
		Msg("monitoring run complete")
	return report, nil
}

// Compute derives monitoring metrics from daily records. Classification
// metrics need labelled, non-empty days and are omitted otherwise.
func Compute(records []domain.ScoringRecord) map[string]float64 {
	out := map[string]float64{MetricPredictionDays: float64(len(records))}
	var (
		labels    []int
		classes   []int
		probs     []float64
		allProbs  []float64
		headlines float64
		empty     int
	)
	for _, r := range records {
		if r.Error != "" || r.NumHeadlines == 0 {
			empty++
			continue
		}
		headlines += float64(r.NumHeadlines)
		allProbs = append(allProbs, r.PredictionMeanProba)
		if r.TrueLabel == nil {
			continue
		}
		labels = append(labels, *r.TrueLabel)
		classes = append(classes, r.PredictionMeanClass)
		probs = append(probs, r.PredictionMeanProba)
	}
	out[MetricEmptyDays] = float64(empty)
	out[MetricLabelledDays] = float64(len(labels))
	if len(allProbs) > 0 {
		out[MetricMeanHeadlines] = headlines / float64(len(allProbs))
		out[MetricProbaQ05] = ta.Quantile(allProbs, 0.05)
		out[MetricProbaQ95] = ta.Quantile(allProbs, 0.95)
	}
	if len(labels) > 0 {
		m := evaluate.Headline(labels, probs, classes)
		out[MetricAccuracy] = m.Accuracy
		out[MetricF1] = m.F1
		out[MetricAUC] = *m.AUC
	}
	return out
}

// CheckAlerts returns one alert per performance metric below its threshold.
func CheckAlerts(m map[string]float64, t Thresholds) []domain.Alert {
	bounds := []struct {
		name  string
		bound float64
	}{
		{MetricAccuracy, t.Accuracy},
		{MetricF1, t.F1},
		{MetricAUC, t.AUC},
	}
	var alerts []domain.Alert
	for _, b := range bounds {
		v, ok := m[b.name]
		if !ok || v >= b.bound {
			continue
		}
		alerts = append(alerts, domain.Alert{
			Metric:    b.name,
			Value:     v,
			Threshold: b.bound,
			Message:   fmt.Sprintf("Low %s: %.3f < %.3f", b.name, v, b.bound),
		})
	}
	return alerts
}

func latestVersion(records []domain.ScoringRecord) string {
	latest := records[0]
	for _, r := range records[1:] {
		if r.Date > latest.Date || (r.Date == latest.Date && r.Timestamp.After(latest.Timestamp)) {
			latest = r
		}
	}
	return latest.ModelVersion
}

func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
