package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/retrotrack/backend/internal/service"
)

// @Summary Fill optimized times
// @Description Runs one enrichment pass over routes that have no optimized time yet.
// @Tags reports
// @Produce json
// @Param id path string true "dataset id"
// @Success 200 {object} service.FillResult
// @Router /api/datasets/{id}/optimize [post]
func (h *Handler) OptimizeDataset(c *gin.Context) {
	ds, ok := h.ownedDataset(c)
	if !ok {
		return
	}
	res, err := h.Pipeline.Fill(c.Request.Context(), ds.ID)
	if err != nil {
		h.Logger.Warn().Err(err).Str("dataset_id", ds.ID).Msg("fill pass failed")
		writeError(c, http.StatusInternalServerError, "DB_ERROR", "Failed to save optimized times", gin.H{
			"error":   err.Error(),
			"pending": len(res.Pending),
		})
		return
	}
	c.JSON(http.StatusOK, res)
}

// @Summary Inefficient routes
// @Description Delay table for the dataset. Does not query external services.
// @Tags reports
// @Produce json
// @Param id path string true "dataset id"
// @Success 200 {array} models.DelayRow
// @Router /api/datasets/{id}/inefficient [get]
func (h *Handler) InefficientRoutes(c *gin.Context) {
	ds, ok := h.ownedDataset(c)
	if !ok {
		return
	}
	routes, err := h.Repo.ListRoutes(c.Request.Context(), ds.ID)
	if err != nil {
		writeError(c, http.StatusInternalServerError, "DB_ERROR", "Failed to list routes", err.Error())
		return
	}
	c.JSON(http.StatusOK, service.DelayTable(routes))
}

// @Summary Cost analysis
// @Description Cost table for routes with an optimized time. Does not query external services.
// @Tags reports
// @Produce json
// @Param id path string true "dataset id"
// @Success 200 {array} models.CostRow
// @Router /api/datasets/{id}/cost-analysis [get]
func (h *Handler) CostAnalysis(c *gin.Context) {
	ds, ok := h.ownedDataset(c)
	if !ok {
		return
	}
	routes, err := h.Repo.ListRoutes(c.Request.Context(), ds.ID)
	if err != nil {
		writeError(c, http.StatusInternalServerError, "DB_ERROR", "Failed to list routes", err.Error())
		return
	}
	c.JSON(http.StatusOK, service.CostTable(routes))
}

// @Summary Dataset summary
// @Description Fills missing optimized times, then aggregates delay and cost figures.
// @Tags reports
// @Produce json
// @Param id path string true "dataset id"
// @Success 200 {object} models.SummaryReport
// @Router /api/datasets/{id}/summary [get]
func (h *Handler) Summary(c *gin.Context) {
	ds, ok := h.ownedDataset(c)
	if !ok {
		return
	}
	rep, err := h.Pipeline.Summarize(c.Request.Context(), ds.ID)
	if err != nil {
		writeError(c, http.StatusInternalServerError, "DB_ERROR", "Failed to build summary", err.Error())
		return
	}
	c.JSON(http.StatusOK, rep)
}
