package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/retrotrack/backend/internal/db"
	"github.com/retrotrack/backend/internal/http/middleware"
	"github.com/retrotrack/backend/internal/models"
	"github.com/retrotrack/backend/internal/service"
)

type Handler struct {
	Repo           db.Repository
	Pipeline       *service.Pipeline
	Validator      *validator.Validate
	Logger         zerolog.Logger
	UploadDir      string
	MaxUploadBytes int64
}

type datasetParams struct {
	ID string `uri:"id" validate:"required,uuid"`
}

// @Summary Health check
// @Tags health
// @Produce json
// @Success 200 {object} map[string]string
// @Failure 503 {object} map[string]any
// @Router /healthz [get]
func (h *Handler) Healthz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()
	if err := h.Repo.Ping(ctx); err != nil {
		writeError(c, http.StatusServiceUnavailable, "DB_UNAVAILABLE", "Database unavailable", err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// ownedDataset loads the :id dataset and checks it belongs to the caller.
// Datasets of other users are reported as missing.
func (h *Handler) ownedDataset(c *gin.Context) (models.Dataset, bool) {
	params := datasetParams{ID: c.Param("id")}
	if err := h.Validator.Struct(params); err != nil {
		writeError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid dataset id", err.Error())
		return models.Dataset{}, false
	}
	ds, err := h.Repo.GetDataset(c.Request.Context(), params.ID)
	if errors.Is(err, db.ErrNotFound) || (err == nil && ds.UserID != userID(c)) {
		writeError(c, http.StatusNotFound, "NOT_FOUND", "Dataset not found", nil)
		return models.Dataset{}, false
	}
	if err != nil {
		writeError(c, http.StatusInternalServerError, "DB_ERROR", "Failed to load dataset", err.Error())
		return models.Dataset{}, false
	}
	return ds, true
}

func userID(c *gin.Context) string {
	return c.GetString(middleware.UserIDKey)
}

func writeError(c *gin.Context, status int, code string, message string, details any) {
	c.JSON(status, gin.H{
		"error": gin.H{
			"code":    code,
			"message": message,
			"details": details,
		},
	})
}
