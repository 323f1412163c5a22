package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"headline-vol/internal/config"
	"headline-vol/internal/domain"
	"headline-vol/internal/ml/dataset"
	"headline-vol/internal/ml/monitoring"
	"headline-vol/internal/ml/scoring"
	"headline-vol/internal/ml/training"
	"headline-vol/internal/objectstore"

	"go.opentelemetry.io/otel/trace"
)

type trainerStub struct {
	res *training.RunResult
	err error
}

func (s *trainerStub) Run(context.Context) (*training.RunResult, error) { return s.res, s.err }

type scorerStub struct {
	dates    []time.Time
	batch    []time.Time
	failDays map[string]bool
}

func (s *scorerStub) ScoreDate(_ context.Context, date time.Time) (domain.ScoringRecord, error) {
	s.dates = append(s.dates, date)
	return domain.ScoringRecord{Date: domain.DateKey(date), NumHeadlines: 2, ModelVersion: "3"}, nil
}

func (s *scorerStub) ScoreDays(_ context.Context, dates []time.Time) ([]scoring.DayOutcome, error) {
	s.batch = dates
	out := make([]scoring.DayOutcome, 0, len(dates))
	for _, d := range dates {
		key := domain.DateKey(d)
		if s.failDays[key] {
			out = append(out, scoring.DayOutcome{Date: key, Err: errors.New("no headlines")})
			continue
		}
		out = append(out, scoring.DayOutcome{Date: key, Record: &domain.ScoringRecord{Date: key}})
	}
	return out, nil
}

type monitorStub struct{}

func (monitorStub) Run(context.Context) (*monitoring.Report, error) {
	return &monitoring.Report{
		ModelVersion: "3",
		Metrics:      map[string]float64{"accuracy": 0.4},
		Alerts:       []domain.Alert{{Metric: "accuracy", Value: 0.4, Threshold: 0.5, Message: "accuracy below threshold"}},
	}, nil
}

type registryStub struct {
	key     string
	version int
	stage   domain.Stage
	session string
}

func (s *registryStub) TransitionStage(_ context.Context, key string, version int, stage domain.Stage) error {
	s.key, s.version, s.stage = key, version, stage
	return nil
}

func (s *registryStub) ListTrials(_ context.Context, sessionID string) ([]domain.SearchTrial, error) {
	s.session = sessionID
	return []domain.SearchTrial{{SessionID: sessionID, Number: 0, Loss: -0.61}}, nil
}

type observationStub struct {
	obs []domain.VolatilityObservation
}

func (s *observationStub) UpsertObservations(_ context.Context, obs []domain.VolatilityObservation) error {
	s.obs = append(s.obs, obs...)
	return nil
}

type resolverStub struct {
	limit int
}

func (s *resolverStub) ResolveOutcomes(_ context.Context, limit int) (int, error) {
	s.limit = limit
	return 4, nil
}

func newTestApp(t *testing.T) (*app, *bytes.Buffer) {
	t.Helper()
	tracer := trace.NewNoopTracerProvider().Tracer("test")
	out := &bytes.Buffer{}
	return &app{
		cfg:   &config.Config{Bucket: "headline-vol", ModelKey: "headline_vol"},
		store: objectstore.NewFileStore(t.TempDir(), tracer),
		out:   out,
	}, out
}

func writeWideCSV(t *testing.T, days int) string {
	t.Helper()
	var b strings.Builder
	b.WriteString("Date,vol_up,Top1,Top2,realized_vol,tr_vol,park_vol\n")
	start := time.Date(2016, 1, 4, 0, 0, 0, 0, time.UTC)
	for i := 0; i < days; i++ {
		d := start.AddDate(0, 0, i)
		vol := 0.1 + float64(i%5)*0.02
		fmt.Fprintf(&b, "%s,%d,b'Markets slide %d',Oil rebounds %d,%.3f,%.3f,%.3f\n",
			d.Format(time.DateOnly), i%2, i, i, vol, vol*1.1, vol*0.9)
	}
	path := filepath.Join(t.TempDir(), "wide.csv")
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		t.Fatalf("write csv: %v", err)
	}
	return path
}

func TestPreprocessWritesSplitsAndObservations(t *testing.T) {
	a, out := newTestApp(t)
	obs := &observationStub{}
	a.observations = obs

	if err := a.run(context.Background(), []string{"preprocess", "-csv", writeWideCSV(t, 20)}); err != nil {
		t.Fatalf("preprocess returned error: %v", err)
	}

	ctx := context.Background()
	full, err := dataset.LoadTall(ctx, a.store, "headline-vol", dataset.PathFullTall)
	if err != nil {
		t.Fatalf("load full table: %v", err)
	}
	if len(full) != 40 {
		t.Fatalf("expected 40 tall rows, got %d", len(full))
	}
	total := 0
	for _, path := range []string{dataset.PathTrainTall, dataset.PathValTall, dataset.PathTestTall} {
		rows, err := dataset.LoadTall(ctx, a.store, "headline-vol", path)
		if err != nil {
			t.Fatalf("load %s: %v", path, err)
		}
		if len(rows) == 0 {
			t.Fatalf("expected rows in %s", path)
		}
		total += len(rows)
	}
	if total != len(full) {
		t.Fatalf("splits hold %d rows, full table %d", total, len(full))
	}
	for _, r := range full {
		for _, m := range domain.VolatilityMetrics {
			if _, ok := r.Features[m]; ok {
				t.Fatalf("same-day metric %s leaked into the table", m)
			}
		}
	}

	if len(obs.obs) != 20 {
		t.Fatalf("expected 20 observations, got %d", len(obs.obs))
	}
	if _, ok := obs.obs[0].Values[domain.MetricParkinsonVol]; !ok {
		t.Fatalf("expected observation values, got %+v", obs.obs[0])
	}

	var summary map[string]int
	if err := json.Unmarshal(out.Bytes(), &summary); err != nil {
		t.Fatalf("decode summary: %v", err)
	}
	if summary["days"] != 20 || summary["rows"] != 40 {
		t.Fatalf("unexpected summary %+v", summary)
	}
}

func TestPreprocessRequiresCSV(t *testing.T) {
	a, _ := newTestApp(t)
	if err := a.run(context.Background(), []string{"preprocess"}); err == nil {
		t.Fatal("expected error without -csv")
	}
}

func TestPreprocessRejectsBadFile(t *testing.T) {
	a, _ := newTestApp(t)
	path := filepath.Join(t.TempDir(), "bad.csv")
	if err := os.WriteFile(path, []byte("Headline\nfoo\n"), 0o644); err != nil {
		t.Fatalf("write csv: %v", err)
	}
	err := a.run(context.Background(), []string{"preprocess", "-csv", path})
	if !errors.Is(err, domain.ErrDataIntegrity) {
		t.Fatalf("expected data integrity error, got %v", err)
	}
}

func TestTrainPrintsResult(t *testing.T) {
	a, out := newTestApp(t)
	a.trainer = &trainerStub{res: &training.RunResult{
		SessionID:    "s-1",
		ModelKey:     "headline_vol",
		Version:      2,
		Stage:        domain.StageStaging,
		Trials:       5,
		PromoteError: errors.New("registry down"),
	}}

	if err := a.run(context.Background(), []string{"train"}); err != nil {
		t.Fatalf("train returned error: %v", err)
	}
	var got map[string]any
	if err := json.Unmarshal(out.Bytes(), &got); err != nil {
		t.Fatalf("decode output: %v", err)
	}
	if got["version"] != float64(2) || got["promote_error"] != "registry down" {
		t.Fatalf("unexpected output %+v", got)
	}
}

func TestTrainPropagatesError(t *testing.T) {
	a, _ := newTestApp(t)
	a.trainer = &trainerStub{err: domain.ErrDataIntegrity}
	if err := a.run(context.Background(), []string{"train"}); !errors.Is(err, domain.ErrDataIntegrity) {
		t.Fatalf("expected data integrity error, got %v", err)
	}
}

func TestScoreSingleDate(t *testing.T) {
	a, out := newTestApp(t)
	scorer := &scorerStub{}
	a.scorer = scorer

	if err := a.run(context.Background(), []string{"score", "-date", "2016-06-24"}); err != nil {
		t.Fatalf("score returned error: %v", err)
	}
	if len(scorer.dates) != 1 || domain.DateKey(scorer.dates[0]) != "2016-06-24" {
		t.Fatalf("unexpected scored dates %v", scorer.dates)
	}
	if !strings.Contains(out.String(), `"model_version": "3"`) {
		t.Fatalf("unexpected output %s", out.String())
	}
}

func TestScoreDefaultsToYesterday(t *testing.T) {
	origNow := nowFunc
	defer func() { nowFunc = origNow }()
	nowFunc = func() time.Time { return time.Date(2016, 6, 25, 9, 30, 0, 0, time.UTC) }

	a, _ := newTestApp(t)
	scorer := &scorerStub{}
	a.scorer = scorer

	if err := a.run(context.Background(), []string{"score"}); err != nil {
		t.Fatalf("score returned error: %v", err)
	}
	if len(scorer.dates) != 1 || domain.DateKey(scorer.dates[0]) != "2016-06-24" {
		t.Fatalf("expected the previous day to be scored, got %v", scorer.dates)
	}
}

func TestMonitorWithoutPostgresReadsObjectStore(t *testing.T) {
	ctx := context.Background()
	tracer := trace.NewNoopTracerProvider().Tracer("test")
	store := objectstore.NewFileStore(t.TempDir(), tracer)
	cfg := &config.Config{Bucket: "headline-vol", ModelKey: "headline_vol", MLMonitorDaysBack: 7}
	up := 1
	for i := 1; i <= 3; i++ {
		day := domain.DateKey(time.Now().AddDate(0, 0, -i))
		rec := domain.ScoringRecord{Date: day, NumHeadlines: 4, PredictionMeanProba: 0.7, PredictionMeanClass: 1, TrueLabel: &up, ModelVersion: "2"}
		if err := dataset.SaveRecords(ctx, store, cfg.Bucket, dataset.PredictionPath(day), []domain.ScoringRecord{rec}); err != nil {
			t.Fatalf("SaveRecords: %v", err)
		}
	}

	a := newApp(cfg, tracer, store)
	if a.monitor == nil {
		t.Fatal("expected an object-store monitor without Postgres")
	}
	out := &bytes.Buffer{}
	a.out = out
	if err := a.run(ctx, []string{"monitor"}); err != nil {
		t.Fatalf("monitor returned error: %v", err)
	}
	var report monitoring.Report
	if err := json.Unmarshal(out.Bytes(), &report); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if report.Metrics[monitoring.MetricPredictionDays] != 3 || report.Metrics[monitoring.MetricAccuracy] != 1 || report.ModelVersion != "2" {
		t.Fatalf("unexpected report %+v", report)
	}
}

func TestSearchSpaceUsesConfiguredClassifiers(t *testing.T) {
	space := searchSpace(&config.Config{MLClassifiers: []string{"xgboost", "logreg"}})
	if len(space.Classifiers) != 2 || space.Classifiers[1] != "logreg" {
		t.Fatalf("unexpected classifiers %v", space.Classifiers)
	}
	if def := searchSpace(&config.Config{}); len(def.Classifiers) != 1 || def.Classifiers[0] != "xgboost" {
		t.Fatalf("expected default classifiers, got %v", def.Classifiers)
	}
	if len(space.MaxFeatures) == 0 {
		t.Fatal("expected the rest of the default space")
	}
}

func TestScoreRangeReportsFailures(t *testing.T) {
	a, out := newTestApp(t)
	scorer := &scorerStub{failDays: map[string]bool{"2016-06-25": true}}
	a.scorer = scorer

	if err := a.run(context.Background(), []string{"score", "-from", "2016-06-24", "-to", "2016-06-26"}); err != nil {
		t.Fatalf("score returned error: %v", err)
	}
	if len(scorer.batch) != 3 {
		t.Fatalf("expected 3 days, got %d", len(scorer.batch))
	}
	var got []dayReport
	if err := json.Unmarshal(out.Bytes(), &got); err != nil {
		t.Fatalf("decode output: %v", err)
	}
	if got[1].Error != "no headlines" || got[0].Record == nil || got[2].Error != "" {
		t.Fatalf("unexpected report %+v", got)
	}
}

func TestScoreRejectsBadRange(t *testing.T) {
	a, _ := newTestApp(t)
	a.scorer = &scorerStub{}
	cases := [][]string{
		{"score", "-from", "2016-06-24"},
		{"score", "-from", "2016-06-26", "-to", "2016-06-24"},
		{"score", "-date", "24/06/2016"},
	}
	for _, args := range cases {
		if err := a.run(context.Background(), args); err == nil {
			t.Fatalf("expected error for %v", args)
		}
	}
}

func TestPostgresCommandsNeedDatabase(t *testing.T) {
	a, _ := newTestApp(t)
	for _, args := range [][]string{{"train"}, {"score"}, {"monitor"}, {"resolve"}, {"promote", "-version", "1"}, {"trials", "-session", "x"}} {
		if err := a.run(context.Background(), args); !errors.Is(err, errNeedsPostgres) {
			t.Fatalf("%v: expected errNeedsPostgres, got %v", args, err)
		}
	}
}

func TestMonitorPrintsReport(t *testing.T) {
	a, out := newTestApp(t)
	a.monitor = monitorStub{}
	if err := a.run(context.Background(), []string{"monitor"}); err != nil {
		t.Fatalf("monitor returned error: %v", err)
	}
	if !strings.Contains(out.String(), "accuracy below threshold") {
		t.Fatalf("expected alert in output, got %s", out.String())
	}
}

func TestPromote(t *testing.T) {
	a, _ := newTestApp(t)
	reg := &registryStub{}
	a.registry = reg

	if err := a.run(context.Background(), []string{"promote", "-version", "4", "-stage", "staging"}); err != nil {
		t.Fatalf("promote returned error: %v", err)
	}
	if reg.key != "headline_vol" || reg.version != 4 || reg.stage != domain.StageStaging {
		t.Fatalf("unexpected transition %+v", reg)
	}
	if err := a.run(context.Background(), []string{"promote", "-version", "4", "-stage", "live"}); err == nil {
		t.Fatal("expected error for unknown stage")
	}
	if err := a.run(context.Background(), []string{"promote"}); err == nil {
		t.Fatal("expected error without -version")
	}
}

func TestResolveAndTrials(t *testing.T) {
	a, out := newTestApp(t)
	res := &resolverStub{}
	reg := &registryStub{}
	a.resolver = res
	a.registry = reg

	if err := a.run(context.Background(), []string{"resolve", "-limit", "10"}); err != nil {
		t.Fatalf("resolve returned error: %v", err)
	}
	if res.limit != 10 || !strings.Contains(out.String(), `"resolved": 4`) {
		t.Fatalf("unexpected resolve run: limit=%d out=%s", res.limit, out.String())
	}

	out.Reset()
	if err := a.run(context.Background(), []string{"trials", "-session", "abc"}); err != nil {
		t.Fatalf("trials returned error: %v", err)
	}
	if reg.session != "abc" || !strings.Contains(out.String(), `"SessionID": "abc"`) {
		t.Fatalf("unexpected trials output %s", out.String())
	}
	if err := a.run(context.Background(), []string{"trials"}); err == nil {
		t.Fatal("expected error without -session")
	}
}

func TestUnknownCommand(t *testing.T) {
	a, _ := newTestApp(t)
	if err := a.run(context.Background(), []string{"deploy"}); err == nil {
		t.Fatal("expected error for unknown command")
	}
	if err := a.run(context.Background(), nil); err == nil {
		t.Fatal("expected error without a command")
	}
}

func TestDayRangeIsInclusive(t *testing.T) {
	days, err := dayRange("2016-02-27", "2016-03-01")
	if err != nil {
		t.Fatalf("dayRange returned error: %v", err)
	}
	if len(days) != 4 || domain.DateKey(days[2]) != "2016-02-29" {
		t.Fatalf("unexpected days %v", days)
	}
}
