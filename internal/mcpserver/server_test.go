package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"headline-vol/internal/domain"
	"headline-vol/internal/ml/aggregate"
	"headline-vol/internal/ml/scoring"
	"headline-vol/internal/service"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.opentelemetry.io/otel/trace"
)

var fixedNow = time.Date(2016, 7, 1, 12, 0, 0, 0, time.UTC)

type modelStub struct {
	lastDate time.Time
}

func (s *modelStub) Info() (service.ModelInfo, error) {
	return service.ModelInfo{ModelKey: "headline_vol", Version: 3, Stage: string(domain.StageProduction)}, nil
}

func (s *modelStub) PredictDay(_ context.Context, date time.Time, headlines []string) (scoring.DailyResult, error) {
	s.lastDate = date
	if len(headlines) == 0 {
		return scoring.EmptyResult(date, "3", nil), nil
	}
	preds := make([]domain.HeadlinePrediction, 0, len(headlines))
	for _, h := range headlines {
		p := 0.3
		if strings.Contains(h, "crash") {
			p = 0.9
		}
		preds = append(preds, domain.NewHeadlinePrediction(h, p))
	}
	agg, err := aggregate.Day(date, preds, nil)
	if err != nil {
		return scoring.DailyResult{}, err
	}
	return scoring.DailyResult{Aggregate: agg, Predictions: preds, ModelVersion: "3"}, nil
}

type predictionStub struct {
	latest *domain.ScoringRecord
	recent []domain.ScoringRecord
	limit  int
}

func (s *predictionStub) Latest(context.Context) (*domain.ScoringRecord, error) { return s.latest, nil }

func (s *predictionStub) Recent(_ context.Context, limit int) ([]domain.ScoringRecord, error) {
	s.limit = limit
	return s.recent, nil
}

type metricStub struct {
	name  string
	since time.Time
	err   error
}

func (s *metricStub) ListSince(_ context.Context, name string, since time.Time) ([]domain.MonitoringMetric, error) {
	s.name, s.since = name, since
	if s.err != nil {
		return nil, s.err
	}
	return []domain.MonitoringMetric{
		{Name: name, Value: 0.55, ModelVersion: "3", Timestamp: fixedNow.AddDate(0, 0, -2)},
		{Name: name, Value: 0.61, ModelVersion: "3", Timestamp: fixedNow.AddDate(0, 0, -1)},
	}, nil
}

func newTestServer(deps Deps) *Server {
	s := New(trace.NewNoopTracerProvider().Tracer("test"), deps)
	s.now = func() time.Time { return fixedNow }
	return s
}

func intPtr(v int) *int { return &v }

func TestScoreHeadlinesDefaultsToToday(t *testing.T) {
	models := &modelStub{}
	s := newTestServer(Deps{Models: models})

	_, out, err := s.scoreHeadlines(context.Background(), nil, ScoreHeadlinesInput{Headlines: []string{"Markets crash", "Oil steady"}})
	if err != nil {
		t.Fatalf("scoreHeadlines returned error: %v", err)
	}
	if domain.DateKey(models.lastDate) != "2016-07-01" {
		t.Fatalf("expected today's date, got %s", models.lastDate)
	}
	if out.Record.NumHeadlines != 2 || len(out.Predictions) != 2 {
		t.Fatalf("unexpected result %+v", out)
	}
	if out.Record.PredictionMaxClass != 1 || math.Abs(out.Record.PredictionMeanProba-0.6) > 1e-9 {
		t.Fatalf("unexpected aggregate %+v", out.Record)
	}
	if out.Confidence == "" {
		t.Fatal("expected a confidence level")
	}
}

func TestScoreHeadlinesRejectsBadDate(t *testing.T) {
	s := newTestServer(Deps{Models: &modelStub{}})
	if _, _, err := s.scoreHeadlines(context.Background(), nil, ScoreHeadlinesInput{Date: "07/01/2016"}); err == nil {
		t.Fatal("expected error for malformed date")
	}
}

func TestRecentPredictionsHitRate(t *testing.T) {
	preds := &predictionStub{recent: []domain.ScoringRecord{
		{Date: "2016-06-30", PredictionMeanClass: 1, TrueLabel: intPtr(1)},
		{Date: "2016-06-29", PredictionMeanClass: 0, TrueLabel: intPtr(1)},
		{Date: "2016-06-28", PredictionMeanClass: 1},
		{Date: "2016-06-27", PredictionMeanClass: 0, TrueLabel: intPtr(0), Error: "no headlines"},
	}}
	s := newTestServer(Deps{Predictions: preds})

	_, out, err := s.recentPredictions(context.Background(), nil, RecentPredictionsInput{})
	if err != nil {
		t.Fatalf("recentPredictions returned error: %v", err)
	}
	if preds.limit != defaultDays {
		t.Fatalf("expected default limit %d, got %d", defaultDays, preds.limit)
	}
	if out.HitRate == nil || *out.HitRate != 0.5 {
		t.Fatalf("expected hit rate 0.5, got %v", out.HitRate)
	}

	if _, _, err := s.recentPredictions(context.Background(), nil, RecentPredictionsInput{Limit: 400}); err == nil {
		t.Fatal("expected error for limit above maximum")
	}
}

func TestLatestPredictionNotFound(t *testing.T) {
	s := newTestServer(Deps{Predictions: &predictionStub{}})
	_, out, err := s.latestPrediction(context.Background(), nil, LatestPredictionInput{})
	if err != nil {
		t.Fatalf("latestPrediction returned error: %v", err)
	}
	if out.Found || out.Record != nil {
		t.Fatalf("expected no record, got %+v", out)
	}
}

func TestMonitoringMetrics(t *testing.T) {
	metrics := &metricStub{}
	s := newTestServer(Deps{Metrics: metrics})

	_, out, err := s.monitoringMetrics(context.Background(), nil, MonitoringMetricsInput{Name: " roc_auc ", Days: 7})
	if err != nil {
		t.Fatalf("monitoringMetrics returned error: %v", err)
	}
	if metrics.name != "roc_auc" || !metrics.since.Equal(fixedNow.AddDate(0, 0, -7)) {
		t.Fatalf("unexpected query name=%q since=%s", metrics.name, metrics.since)
	}
	if len(out.Points) != 2 || out.Points[1].Value != 0.61 {
		t.Fatalf("unexpected points %+v", out.Points)
	}

	if _, _, err := s.monitoringMetrics(context.Background(), nil, MonitoringMetricsInput{}); err == nil {
		t.Fatal("expected error without a name")
	}
	metrics.err = errors.New("db down")
	if _, _, err := s.monitoringMetrics(context.Background(), nil, MonitoringMetricsInput{Name: "accuracy"}); err == nil {
		t.Fatal("expected repository error")
	}
}

func TestRunRejectsUnknownTransport(t *testing.T) {
	s := newTestServer(Deps{})
	err := s.Run(context.Background(), Config{Transport: "websocket"})
	if err == nil || !strings.Contains(err.Error(), "not supported") {
		t.Fatalf("expected unsupported transport error, got %v", err)
	}
}

func TestHTTPAddr(t *testing.T) {
	if got := HTTPAddr("", 8090); got != "localhost:8090" {
		t.Fatalf("unexpected addr %q", got)
	}
	if got := HTTPAddr("0.0.0.0", 9000); got != "0.0.0.0:9000" {
		t.Fatalf("unexpected addr %q", got)
	}
}

func TestToolsOverInMemoryTransport(t *testing.T) {
	s := newTestServer(Deps{
		Models:      &modelStub{},
		Predictions: &predictionStub{latest: &domain.ScoringRecord{Date: "2016-06-30", ModelVersion: "3"}},
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	serverTransport, clientTransport := mcp.NewInMemoryTransports()
	serverSession, err := s.mcp.Connect(ctx, serverTransport, nil)
	if err != nil {
		t.Fatalf("connect server: %v", err)
	}
	defer serverSession.Close()

	client := mcp.NewClient(&mcp.Implementation{Name: "client", Version: "v0.0.1"}, nil)
	session, err := client.Connect(ctx, clientTransport, nil)
	if err != nil {
		t.Fatalf("connect client: %v", err)
	}
	defer session.Close()

	tools, err := session.ListTools(ctx, nil)
	if err != nil {
		t.Fatalf("list tools: %v", err)
	}
	names := make(map[string]bool)
	for _, tool := range tools.Tools {
		names[tool.Name] = true
	}
	for _, want := range []string{"score_headlines", "model_info", "latest_prediction", "recent_predictions"} {
		if !names[want] {
			t.Fatalf("tool %s not registered, got %v", want, names)
		}
	}
	if names["monitoring_metrics"] {
		t.Fatal("monitoring_metrics registered without a metric reader")
	}

	res, err := session.CallTool(ctx, &mcp.CallToolParams{
		Name:      "score_headlines",
		Arguments: map[string]any{"date": "2016-06-24", "headlines": []string{"Stocks crash on Brexit"}},
	})
	if err != nil {
		t.Fatalf("call score_headlines: %v", err)
	}
	if res.IsError || len(res.Content) == 0 {
		t.Fatalf("unexpected tool result %+v", res)
	}
	text, ok := res.Content[0].(*mcp.TextContent)
	if !ok {
		t.Fatalf("expected text content, got %T", res.Content[0])
	}
	var out ScoreHeadlinesResult
	if err := json.Unmarshal([]byte(text.Text), &out); err != nil {
		t.Fatalf("decode tool output: %v", err)
	}
	if out.Record.Date != "2016-06-24" || out.Record.PredictionMeanClass != 1 {
		t.Fatalf("unexpected record %+v", out.Record)
	}
}
