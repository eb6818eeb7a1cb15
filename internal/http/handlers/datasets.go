package handlers

import (
	"errors"
	"net/http"
	"os"
	"path/filepath"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/retrotrack/backend/internal/db"
	"github.com/retrotrack/backend/internal/http/middleware"
	"github.com/retrotrack/backend/internal/ingest"
	"github.com/retrotrack/backend/internal/service"
)

// @Summary Upload a workbook
// @Description Upload an .xls or .xlsx workbook. Inefficient shipments are stored as a new dataset.
// @Tags datasets
// @Accept multipart/form-data
// @Produce json
// @Param X-User-Id header string true "owner"
// @Param file formData file true "workbook"
// @Success 201 {object} service.IngestResult
// @Failure 400 {object} map[string]any
// @Failure 413 {object} map[string]any
// @Router /api/datasets [post]
func (h *Handler) UploadDataset(c *gin.Context) {
	if c.Request.ContentLength > h.MaxUploadBytes {
		writeError(c, http.StatusRequestEntityTooLarge, "FILE_TOO_LARGE", "File exceeds upload limit", gin.H{"limit_bytes": h.MaxUploadBytes})
		return
	}
	// multipart framing adds a little on top of the file itself
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.MaxUploadBytes+64<<10)

	fh, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(c, http.StatusRequestEntityTooLarge, "FILE_TOO_LARGE", "File exceeds upload limit", gin.H{"limit_bytes": h.MaxUploadBytes})
			return
		}
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "file required", nil)
		return
	}
	name := filepath.Base(fh.Filename)
	if !ingest.SupportedExtension(name) {
		writeError(c, http.StatusBadRequest, "UNSUPPORTED_FILE", "file must be .xls or .xlsx", nil)
		return
	}

	uid := userID(c)
	if !middleware.ValidUserID(uid) || !filepath.IsLocal(uid) {
		writeError(c, http.StatusBadRequest, "INVALID_USER", "user id is not usable as an upload directory", nil)
		return
	}
	dir := filepath.Join(h.UploadDir, uid)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		writeError(c, http.StatusInternalServerError, "STORAGE_ERROR", "Failed to prepare upload directory", err.Error())
		return
	}
	dst := filepath.Join(dir, uuid.NewString()+"_"+name)
	if err := c.SaveUploadedFile(fh, dst); err != nil {
		writeError(c, http.StatusInternalServerError, "STORAGE_ERROR", "Failed to save upload", err.Error())
		return
	}
	info, err := os.Stat(dst)
	if err != nil {
		_ = os.Remove(dst)
		writeError(c, http.StatusInternalServerError, "STORAGE_ERROR", "Failed to stat upload", err.Error())
		return
	}
	if info.Size() > h.MaxUploadBytes {
		_ = os.Remove(dst)
		writeError(c, http.StatusRequestEntityTooLarge, "FILE_TOO_LARGE", "File exceeds upload limit", gin.H{"limit_bytes": h.MaxUploadBytes})
		return
	}

	res, err := h.Pipeline.Ingest(c.Request.Context(), service.Upload{
		UserID:    userID(c),
		Filename:  name,
		Path:      dst,
		SizeBytes: info.Size(),
	})
	if err != nil {
		_ = os.Remove(dst)
		var perr *ingest.ParseError
		if errors.As(err, &perr) {
			writeError(c, http.StatusBadRequest, "PARSE_ERROR", "Workbook could not be read", perr.Err.Error())
			return
		}
		h.Logger.Error().Err(err).Str("filename", name).Msg("ingest failed")
		writeError(c, http.StatusInternalServerError, "DB_ERROR", "Failed to store dataset", err.Error())
		return
	}
	c.JSON(http.StatusCreated, res)
}

// @Summary List datasets
// @Tags datasets
// @Produce json
// @Param X-User-Id header string true "owner"
// @Success 200 {array} models.Dataset
// @Router /api/datasets [get]
func (h *Handler) ListDatasets(c *gin.Context) {
	list, err := h.Repo.ListDatasets(c.Request.Context(), userID(c))
	if err != nil {
		writeError(c, http.StatusInternalServerError, "DB_ERROR", "Failed to list datasets", err.Error())
		return
	}
	c.JSON(http.StatusOK, list)
}

// @Summary Dataset metadata
// @Tags datasets
// @Produce json
// @Param id path string true "dataset id"
// @Success 200 {object} models.Dataset
// @Failure 404 {object} map[string]any
// @Router /api/datasets/{id} [get]
func (h *Handler) GetDataset(c *gin.Context) {
	ds, ok := h.ownedDataset(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, ds)
}

// @Summary Delete a dataset and its routes
// @Tags datasets
// @Produce json
// @Param id path string true "dataset id"
// @Success 200 {object} map[string]any
// @Router /api/datasets/{id} [delete]
func (h *Handler) DeleteDataset(c *gin.Context) {
	ds, ok := h.ownedDataset(c)
	if !ok {
		return
	}
	removed, err := h.Repo.DeleteDataset(c.Request.Context(), ds.ID)
	if errors.Is(err, db.ErrNotFound) {
		writeError(c, http.StatusNotFound, "NOT_FOUND", "Dataset not found", nil)
		return
	}
	if err != nil {
		writeError(c, http.StatusInternalServerError, "DB_ERROR", "Failed to delete dataset", err.Error())
		return
	}
	h.Logger.Info().Str("dataset_id", ds.ID).Int64("routes_removed", removed).Msg("dataset deleted")
	c.JSON(http.StatusOK, gin.H{"id": ds.ID, "routes_removed": removed})
}

// @Summary Re-derive routes from the stored parse
// @Tags datasets
// @Produce json
// @Param id path string true "dataset id"
// @Success 200 {object} map[string]any
// @Router /api/datasets/{id}/rederive [post]
func (h *Handler) RederiveDataset(c *gin.Context) {
	ds, ok := h.ownedDataset(c)
	if !ok {
		return
	}
	inserted, err := h.Pipeline.Rederive(c.Request.Context(), ds.ID)
	if err != nil {
		writeError(c, http.StatusInternalServerError, "DB_ERROR", "Failed to re-derive routes", err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": ds.ID, "inserted": inserted})
}
