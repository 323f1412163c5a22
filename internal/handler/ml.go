package handler

import (
	"net/http"
	"time"

	"headline-vol/internal/domain"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
)

type ScoreRequest struct {
	Date  string   `json:"date,omitempty"`
	Dates []string `json:"dates,omitempty"`
}

// TriggerMLTraining godoc
// @Summary      Trigger a hyperparameter search and retrain
// @Description  Runs the search driver, retrains on the best parameters and registers the new version in Staging
// @Tags         ml
// @Produce      json
// @Success      200  {object}  map[string]interface{}
// @Failure      503  {object}  map[string]string
// @Failure      500  {object}  map[string]string
// @Security     ApiKeyAuth
// @Router       /api/ml/train [post]
func (h *Handler) TriggerMLTraining(c *gin.Context) {
	if h.mlTrainer == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "ml training service unavailable"})
		return
	}

	ctx, span := h.tracer.Start(c.Request.Context(), "handler.trigger-ml-training")
	defer span.End()

	res, err := h.mlTrainer.Run(ctx)
	if err != nil {
		writeError(c, err)
		return
	}
	span.SetAttributes(attribute.Int("version", res.Version))

	body := gin.H{
		"status":        "ok",
		"session_id":    res.SessionID,
		"model_key":     res.ModelKey,
		"version":       res.Version,
		"stage":         res.Stage,
		"best_trial":    res.BestTrial,
		"best_params":   res.BestParams,
		"trials":        res.Trials,
		"failed_trials": res.FailedTrials,
		"metrics":       res.Metrics,
		"promoted":      res.Promoted,
	}
	if res.PromoteError != nil {
		body["promote_error"] = res.PromoteError.Error()
	}
	c.JSON(http.StatusOK, body)
}

// TriggerMLScoring godoc
// @Summary      Score stored days with the serving model
// @Description  Scores one date (yesterday when omitted, falling back to the first available day) or an explicit list of dates
// @Tags         ml
// @Accept       json
// @Produce      json
// @Param        request  body      ScoreRequest  false  "Dates to score"
// @Success      200      {object}  map[string]interface{}
// @Failure      400      {object}  map[string]string
// @Failure      503      {object}  map[string]string
// @Security     ApiKeyAuth
// @Router       /api/ml/score [post]
func (h *Handler) TriggerMLScoring(c *gin.Context) {
	if h.mlScorer == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "ml scoring service unavailable"})
		return
	}

	ctx, span := h.tracer.Start(c.Request.Context(), "handler.trigger-ml-scoring")
	defer span.End()

	var req ScoreRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	if len(req.Dates) == 0 {
		day, err := h.parseDay(req.Date)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if req.Date == "" {
			day = day.AddDate(0, 0, -1)
		}
		rec, err := h.mlScorer.ScoreDate(ctx, day)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok", "records": []domain.ScoringRecord{rec}})
		return
	}

	dates := make([]time.Time, len(req.Dates))
	for i, raw := range req.Dates {
		day, err := time.Parse(time.DateOnly, raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "date must be YYYY-MM-DD", "index": i})
			return
		}
		dates[i] = day
	}
	outcomes, err := h.mlScorer.ScoreDays(ctx, dates)
	if err != nil {
		writeError(c, err)
		return
	}
	records := make([]domain.ScoringRecord, 0, len(outcomes))
	failures := make([]gin.H, 0)
	for _, o := range outcomes {
		if o.Err != nil {
			failures = append(failures, gin.H{"date": o.Date, "error": o.Err.Error()})
			continue
		}
		if o.Record != nil {
			records = append(records, *o.Record)
		}
	}
	span.SetAttributes(attribute.Int("scored", len(records)), attribute.Int("failed", len(failures)))
	c.JSON(http.StatusOK, gin.H{"status": "ok", "records": records, "failures": failures})
}
