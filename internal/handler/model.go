package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// ModelInfo godoc
// @Summary      Served model metadata
// @Tags         model
// @Produce      json
// @Success      200  {object}  service.ModelInfo
// @Failure      503  {object}  map[string]string
// @Router       /model/info [get]
func (h *Handler) ModelInfo(c *gin.Context) {
	info, err := h.models.Info()
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, info)
}

// ReloadModel godoc
// @Summary      Reload the serving model
// @Description  Loads the Production model from the registry, falling back to Staging
// @Tags         model
// @Produce      json
// @Success      200  {object}  map[string]interface{}
// @Failure      503  {object}  map[string]string
// @Security     ApiKeyAuth
// @Router       /model/reload [post]
func (h *Handler) ReloadModel(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "handler.reload-model")
	defer span.End()

	info, err := h.models.Reload(ctx)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "model reloaded", "model": info})
}
