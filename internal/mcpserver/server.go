// Package mcpserver exposes the scoring and prediction history as MCP tools.
package mcpserver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"headline-vol/internal/domain"
	"headline-vol/internal/ml/scoring"
	"headline-vol/internal/service"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	serverName    = "headline-vol"
	serverVersion = "v1.0.0"

	TransportStdio = "stdio"
	TransportHTTP  = "http"

	maxRecent   = 365
	maxMetrics  = 500
	defaultDays = 30
)

type ModelServer interface {
	Info() (service.ModelInfo, error)
	PredictDay(ctx context.Context, date time.Time, headlines []string) (scoring.DailyResult, error)
}

type PredictionReader interface {
	Latest(ctx context.Context) (*domain.ScoringRecord, error)
	Recent(ctx context.Context, limit int) ([]domain.ScoringRecord, error)
}

type MetricReader interface {
	ListSince(ctx context.Context, name string, since time.Time) ([]domain.MonitoringMetric, error)
}

// Deps are the backends behind the tools. A nil member disables its tools.
type Deps struct {
	Models      ModelServer
	Predictions PredictionReader
	Metrics     MetricReader
}

type Config struct {
	Transport string
	HTTPAddr  string
}

type ScoreHeadlinesInput struct {
	Date      string   `json:"date,omitempty" jsonschema:"calendar day YYYY-MM-DD, defaults to today"`
	Headlines []string `json:"headlines" jsonschema:"headlines published on that day"`
}

type ScoreHeadlinesResult struct {
	Record      domain.ScoringRecord        `json:"record"`
	Predictions []domain.HeadlinePrediction `json:"predictions"`
	Confidence  string                      `json:"confidence_level"`
}

type ModelInfoInput struct{}

type LatestPredictionInput struct{}

type LatestPredictionResult struct {
	Found  bool                  `json:"found"`
	Record *domain.ScoringRecord `json:"record,omitempty"`
}

type RecentPredictionsInput struct {
	Limit int `json:"limit,omitempty" jsonschema:"number of days, 1 to 365, default 30"`
}

type RecentPredictionsResult struct {
	Records []domain.ScoringRecord `json:"records"`
	HitRate *float64               `json:"hit_rate,omitempty"`
}

type MonitoringMetricsInput struct {
	Name string `json:"name" jsonschema:"metric name, for example accuracy or roc_auc"`
	Days int    `json:"days,omitempty" jsonschema:"look-back window in days, default 30"`
}

type MetricPoint struct {
	Value        float64   `json:"value"`
	ModelVersion string    `json:"model_version"`
	Timestamp    time.Time `json:"timestamp"`
}

type MonitoringMetricsResult struct {
	Name   string        `json:"name"`
	Points []MetricPoint `json:"points"`
}

type Server struct {
	tracer trace.Tracer
	deps   Deps
	now    func() time.Time
	mcp    *mcp.Server
}

func New(tracer trace.Tracer, deps Deps) *Server {
	s := &Server{
		tracer: tracer,
		deps:   deps,
		now:    time.Now,
		mcp:    mcp.NewServer(&mcp.Implementation{Name: serverName, Version: serverVersion}, nil),
	}
	s.register()
	return s
}

func (s *Server) register() {
	if s.deps.Models != nil {
		mcp.AddTool(s.mcp, &mcp.Tool{
			Name:        "score_headlines",
			Description: "Scores one day's headlines with the serving model and returns the daily aggregate",
		}, s.scoreHeadlines)
		mcp.AddTool(s.mcp, &mcp.Tool{
			Name:        "model_info",
			Description: "Describes the model currently being served",
		}, s.modelInfo)
	}
	if s.deps.Predictions != nil {
		mcp.AddTool(s.mcp, &mcp.Tool{
			Name:        "latest_prediction",
			Description: "Returns the most recent stored daily prediction",
		}, s.latestPrediction)
		mcp.AddTool(s.mcp, &mcp.Tool{
			Name:        "recent_predictions",
			Description: "Lists recent daily predictions, newest first, with the hit rate over labeled days",
		}, s.recentPredictions)
	}
	if s.deps.Metrics != nil {
		mcp.AddTool(s.mcp, &mcp.Tool{
			Name:        "monitoring_metrics",
			Description: "Returns the history of one monitoring metric",
		}, s.monitoringMetrics)
	}
}

func (s *Server) scoreHeadlines(ctx context.Context, _ *mcp.CallToolRequest, in ScoreHeadlinesInput) (*mcp.CallToolResult, ScoreHeadlinesResult, error) {
	ctx, span := s.tracer.Start(ctx, "mcp.score_headlines")
	defer span.End()

	day := domain.TruncateDay(s.now())
	if strings.TrimSpace(in.Date) != "" {
		parsed, err := time.Parse(time.DateOnly, strings.TrimSpace(in.Date))
		if err != nil {
			return nil, ScoreHeadlinesResult{}, fmt.Errorf("date must be YYYY-MM-DD: %w", err)
		}
		day = parsed
	}
	span.SetAttributes(attribute.String("date", domain.DateKey(day)), attribute.Int("headlines", len(in.Headlines)))

	res, err := s.deps.Models.PredictDay(ctx, day, in.Headlines)
	if err != nil {
		span.RecordError(err)
		return nil, ScoreHeadlinesResult{}, err
	}
	rec := res.Record(s.now())
	return nil, ScoreHeadlinesResult{
		Record:      rec,
		Predictions: res.Predictions,
		Confidence:  scoring.Confidence(rec.PredictionMeanProba),
	}, nil
}

func (s *Server) modelInfo(ctx context.Context, _ *mcp.CallToolRequest, _ ModelInfoInput) (*mcp.CallToolResult, service.ModelInfo, error) {
	_, span := s.tracer.Start(ctx, "mcp.model_info")
	defer span.End()

	info, err := s.deps.Models.Info()
	if err != nil {
		span.RecordError(err)
		return nil, service.ModelInfo{}, err
	}
	return nil, info, nil
}

func (s *Server) latestPrediction(ctx context.Context, _ *mcp.CallToolRequest, _ LatestPredictionInput) (*mcp.CallToolResult, LatestPredictionResult, error) {
	ctx, span := s.tracer.Start(ctx, "mcp.latest_prediction")
	defer span.End()

	rec, err := s.deps.Predictions.Latest(ctx)
	if err != nil {
		span.RecordError(err)
		return nil, LatestPredictionResult{}, err
	}
	return nil, LatestPredictionResult{Found: rec != nil, Record: rec}, nil
}

func (s *Server) recentPredictions(ctx context.Context, _ *mcp.CallToolRequest, in RecentPredictionsInput) (*mcp.CallToolResult, RecentPredictionsResult, error) {
	ctx, span := s.tracer.Start(ctx, "mcp.recent_predictions")
	defer span.End()

	limit := in.Limit
	if limit == 0 {
		limit = defaultDays
	}
	if limit < 1 || limit > maxRecent {
		return nil, RecentPredictionsResult{}, fmt.Errorf("limit must be between 1 and %d", maxRecent)
	}
	span.SetAttributes(attribute.Int("limit", limit))

	records, err := s.deps.Predictions.Recent(ctx, limit)
	if err != nil {
		span.RecordError(err)
		return nil, RecentPredictionsResult{}, err
	}
	if records == nil {
		records = []domain.ScoringRecord{}
	}
	return nil, RecentPredictionsResult{Records: records, HitRate: hitRate(records)}, nil
}

// hitRate is the share of labeled records whose mean-probability class
// matched the label. Nil when nothing is labeled yet.
func hitRate(records []domain.ScoringRecord) *float64 {
	labeled, hits := 0, 0
	for _, r := range records {
		if r.TrueLabel == nil || r.Error != "" {
			continue
		}
		labeled++
		if r.PredictionMeanClass == *r.TrueLabel {
			hits++
		}
	}
	if labeled == 0 {
		return nil
	}
	rate := float64(hits) / float64(labeled)
	return &rate
}

func (s *Server) monitoringMetrics(ctx context.Context, _ *mcp.CallToolRequest, in MonitoringMetricsInput) (*mcp.CallToolResult, MonitoringMetricsResult, error) {
	ctx, span := s.tracer.Start(ctx, "mcp.monitoring_metrics")
	defer span.End()

	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, MonitoringMetricsResult{}, errors.New("name is required")
	}
	days := in.Days
	if days <= 0 {
		days = defaultDays
	}
	span.SetAttributes(attribute.String("metric", name), attribute.Int("days", days))

	rows, err := s.deps.Metrics.ListSince(ctx, name, s.now().AddDate(0, 0, -days))
	if err != nil {
		span.RecordError(err)
		return nil, MonitoringMetricsResult{}, err
	}
	if len(rows) > maxMetrics {
		rows = rows[len(rows)-maxMetrics:]
	}
	points := make([]MetricPoint, 0, len(rows))
	for _, m := range rows {
		points = append(points, MetricPoint{Value: m.Value, ModelVersion: m.ModelVersion, Timestamp: m.Timestamp})
	}
	return nil, MonitoringMetricsResult{Name: name, Points: points}, nil
}

// Run serves until ctx ends, over stdio or streamable HTTP.
func (s *Server) Run(ctx context.Context, cfg Config) error {
	switch cfg.Transport {
	case "", TransportStdio:
		return s.serve(ctx, &mcp.StdioTransport{})
	case TransportHTTP:
		return s.serveHTTP(ctx, cfg.HTTPAddr)
	default:
		return fmt.Errorf("transport %q is not supported", cfg.Transport)
	}
}

func (s *Server) serve(ctx context.Context, transport mcp.Transport) error {
	err := s.mcp.Run(ctx, transport)
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("serve MCP: %w", err)
	}
	return nil
}

func (s *Server) serveHTTP(ctx context.Context, addr string) error {
	if addr == "" {
		addr = "localhost:8090"
	}
	handler := mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server { return s.mcp }, nil)
	srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("MCP HTTP transport listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// HTTPAddr joins a bind host and port.
func HTTPAddr(bind string, port int) string {
	if bind == "" {
		bind = "localhost"
	}
	return net.JoinHostPort(bind, strconv.Itoa(port))
}
