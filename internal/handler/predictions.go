package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

const maxRecentLimit = 365

// LatestPrediction godoc
// @Summary      Latest daily prediction
// @Tags         predictions
// @Produce      json
// @Success      200  {object}  domain.ScoringRecord
// @Failure      404  {object}  map[string]string
// @Router       /api/predictions/latest [get]
func (h *Handler) LatestPrediction(c *gin.Context) {
	if h.predictions == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "prediction store unavailable"})
		return
	}
	ctx, span := h.tracer.Start(c.Request.Context(), "handler.latest-prediction")
	defer span.End()

	rec, err := h.predictions.Latest(ctx)
	if err != nil {
		writeError(c, err)
		return
	}
	if rec == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no predictions yet"})
		return
	}
	c.JSON(http.StatusOK, rec)
}

// RecentPredictions godoc
// @Summary      Recent daily predictions
// @Tags         predictions
// @Produce      json
// @Param        limit  query     int  false  "Number of days (default 30)"
// @Success      200    {array}   domain.ScoringRecord
// @Failure      400    {object}  map[string]string
// @Router       /api/predictions [get]
func (h *Handler) RecentPredictions(c *gin.Context) {
	if h.predictions == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "prediction store unavailable"})
		return
	}
	ctx, span := h.tracer.Start(c.Request.Context(), "handler.recent-predictions")
	defer span.End()

	limit := 30
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > maxRecentLimit {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be between 1 and 365"})
			return
		}
		limit = n
	}
	recs, err := h.predictions.Recent(ctx, limit)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, recs)
}
