package handler

import (
	"net/http"
	"time"

	"headline-vol/internal/domain"
	"headline-vol/internal/ml/scoring"
	"headline-vol/internal/service"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
)

const maxBatchDays = 366

type PredictRequest struct {
	Headline string `json:"headline" binding:"required"`
	Date     string `json:"date,omitempty"`
}

type PredictResponse struct {
	Headline            string  `json:"headline"`
	PredictionProba     float64 `json:"prediction_probability"`
	PredictionClass     int     `json:"prediction_class"`
	ConfidenceLevel     string  `json:"confidence_level"`
	ModelVersion        string  `json:"model_version"`
	PredictionTimestamp string  `json:"prediction_timestamp"`
	ProcessingTimeMS    float64 `json:"processing_time_ms"`
}

type BatchRequest struct {
	Date      string   `json:"date,omitempty"`
	Headlines []string `json:"headlines" binding:"required,min=1,max=100"`
}

type DayBatch struct {
	Date      string   `json:"date" binding:"required"`
	Headlines []string `json:"headlines"`
}

type MultiDayRequest struct {
	Days []DayBatch `json:"days" binding:"required,min=1,dive"`
}

type DailyResponse struct {
	Record      domain.ScoringRecord        `json:"record"`
	Predictions []domain.HeadlinePrediction `json:"predictions"`
	Confidence  string                      `json:"confidence_level"`
}

// Predict godoc
// @Summary      Predict volatility direction for one headline
// @Description  Scores a single headline against the historical snapshot of the given day
// @Tags         predict
// @Accept       json
// @Produce      json
// @Param        request  body      PredictRequest  true  "Headline"
// @Success      200      {object}  PredictResponse
// @Failure      400      {object}  map[string]string
// @Failure      503      {object}  map[string]string
// @Router       /predict [post]
func (h *Handler) Predict(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "handler.predict")
	defer span.End()
	start := h.now()

	var req PredictRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	day, err := h.parseDay(req.Date)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	res, err := h.models.PredictDay(ctx, day, []string{req.Headline})
	if err != nil {
		writeError(c, err)
		return
	}
	if len(res.Predictions) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": scoring.NoHeadlinesError})
		return
	}
	p := res.Predictions[0]
	span.SetAttributes(attribute.Float64("probability", p.Probability))
	now := h.now()
	c.JSON(http.StatusOK, PredictResponse{
		Headline:            p.Headline,
		PredictionProba:     p.Probability,
		PredictionClass:     p.Class,
		ConfidenceLevel:     scoring.Confidence(p.Probability),
		ModelVersion:        res.ModelVersion,
		PredictionTimestamp: now.UTC().Format(time.RFC3339),
		ProcessingTimeMS:    float64(now.Sub(start).Microseconds()) / 1000,
	})
}

// PredictBatch godoc
// @Summary      Predict and aggregate one day of headlines
// @Description  Scores every headline of one day and aggregates them with the mean, majority and max policies. Send {"days": [...]} to score several days.
// @Tags         predict
// @Accept       json
// @Produce      json
// @Param        request  body      BatchRequest  true  "Headlines of one day"
// @Success      200      {object}  DailyResponse
// @Failure      400      {object}  map[string]string
// @Failure      503      {object}  map[string]string
// @Router       /predict/batch [post]
func (h *Handler) PredictBatch(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "handler.predict-batch")
	defer span.End()

	if c.Query("multi") == "true" {
		h.predictDays(c)
		return
	}
	var req BatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	day, err := h.parseDay(req.Date)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	res, err := h.models.PredictDay(ctx, day, req.Headlines)
	if err != nil {
		writeError(c, err)
		return
	}
	span.SetAttributes(attribute.Int("num_headlines", res.Aggregate.NumHeadlines))
	c.JSON(http.StatusOK, h.dailyResponse(res))
}

func (h *Handler) predictDays(c *gin.Context) {
	var req MultiDayRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if len(req.Days) > maxBatchDays {
		c.JSON(http.StatusBadRequest, gin.H{"error": "too many days in one request"})
		return
	}
	days := make([]service.DayRequest, len(req.Days))
	for i, d := range req.Days {
		day, err := h.parseDay(d.Date)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "index": i})
			return
		}
		days[i] = service.DayRequest{Date: day, Headlines: d.Headlines}
	}
	results, err := h.models.PredictBatch(c.Request.Context(), days)
	if err != nil {
		writeError(c, err)
		return
	}
	out := make([]gin.H, len(results))
	for i, r := range results {
		if r.Err != nil {
			out[i] = gin.H{"date": req.Days[i].Date, "error": r.Err.Error()}
			continue
		}
		out[i] = gin.H{"date": req.Days[i].Date, "result": h.dailyResponse(r.Result)}
	}
	c.JSON(http.StatusOK, gin.H{"days": out})
}

func (h *Handler) dailyResponse(res scoring.DailyResult) DailyResponse {
	rec := res.Record(h.now())
	preds := res.Predictions
	if preds == nil {
		preds = []domain.HeadlinePrediction{}
	}
	return DailyResponse{Record: rec, Predictions: preds, Confidence: scoring.Confidence(rec.PredictionMeanProba)}
}
