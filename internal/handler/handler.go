package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"headline-vol/internal/domain"
	"headline-vol/internal/ml/scoring"
	"headline-vol/internal/ml/training"
	"headline-vol/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/trace"
)

type ModelServer interface {
	Reload(ctx context.Context) (service.ModelInfo, error)
	Info() (service.ModelInfo, error)
	PredictDay(ctx context.Context, date time.Time, headlines []string) (scoring.DailyResult, error)
	PredictBatch(ctx context.Context, days []service.DayRequest) ([]service.DayResult, error)
}

type PredictionReader interface {
	Latest(ctx context.Context) (*domain.ScoringRecord, error)
	Recent(ctx context.Context, limit int) ([]domain.ScoringRecord, error)
}

type MLTrainingRunner interface {
	Run(ctx context.Context) (*training.RunResult, error)
}

type MLScoringRunner interface {
	ScoreDate(ctx context.Context, date time.Time) (domain.ScoringRecord, error)
	ScoreDays(ctx context.Context, dates []time.Time) ([]scoring.DayOutcome, error)
}

type Handler struct {
	tracer      trace.Tracer
	models      ModelServer
	predictions PredictionReader
	mlTrainer   MLTrainingRunner
	mlScorer    MLScoringRunner
	apiKey      string
	startedAt   time.Time
	now         func() time.Time
}

func New(tracer trace.Tracer, models ModelServer, predictions PredictionReader, apiKey string) *Handler {
	return &Handler{
		tracer:      tracer,
		models:      models,
		predictions: predictions,
		apiKey:      apiKey,
		startedAt:   time.Now(),
		now:         time.Now,
	}
}

func (h *Handler) SetMLTrainingRunner(r MLTrainingRunner) {
	h.mlTrainer = r
}

func (h *Handler) SetMLScoringRunner(r MLScoringRunner) {
	h.mlScorer = r
}

func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", h.Health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.POST("/predict", h.Predict)
	r.POST("/predict/batch", h.PredictBatch)
	r.GET("/model/info", h.ModelInfo)

	protected := r.Group("/", APIKeyAuth(h.apiKey))
	protected.POST("/model/reload", h.ReloadModel)

	api := r.Group("/api")
	api.GET("/predictions/latest", h.LatestPrediction)
	api.GET("/predictions", h.RecentPredictions)

	ml := api.Group("/ml", APIKeyAuth(h.apiKey))
	ml.POST("/train", h.TriggerMLTraining)
	ml.POST("/score", h.TriggerMLScoring)
}

// writeError maps pipeline errors onto HTTP status codes.
func writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrModelUnavailable):
		status = http.StatusServiceUnavailable
	case errors.Is(err, domain.ErrDataIntegrity), errors.Is(err, domain.ErrLeakage):
		status = http.StatusBadRequest
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

// parseDay reads YYYY-MM-DD; empty means today in UTC.
func (h *Handler) parseDay(raw string) (time.Time, error) {
	if raw == "" {
		return domain.TruncateDay(h.now()), nil
	}
	t, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		return time.Time{}, errors.New("date must be YYYY-MM-DD")
	}
	return t, nil
}
