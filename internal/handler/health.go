package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

type HealthResponse struct {
	Status        string  `json:"status"`
	ModelLoaded   bool    `json:"model_loaded"`
	ModelVersion  int     `json:"model_version,omitempty"`
	UptimeSeconds float64 `json:"uptime_seconds"`
}

// Health godoc
// @Summary      Health check
// @Description  Reports whether a serving model is loaded
// @Tags         health
// @Produce      json
// @Success      200  {object}  HealthResponse
// @Router       /health [get]
func (h *Handler) Health(c *gin.Context) {
	resp := HealthResponse{Status: "unhealthy", UptimeSeconds: time.Since(h.startedAt).Seconds()}
	if h.models != nil {
		if info, err := h.models.Info(); err == nil {
			resp.Status = "healthy"
			resp.ModelLoaded = true
			resp.ModelVersion = info.Version
		}
	}
	c.JSON(http.StatusOK, resp)
}
