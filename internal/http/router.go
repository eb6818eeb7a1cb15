package httpapi

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/retrotrack/backend/internal/config"
	"github.com/retrotrack/backend/internal/db"
	"github.com/retrotrack/backend/internal/http/handlers"
	"github.com/retrotrack/backend/internal/http/middleware"
	"github.com/retrotrack/backend/internal/metrics"
	"github.com/retrotrack/backend/internal/service"

	_ "github.com/retrotrack/backend/docs"
)

func Router(cfg config.Config, repo db.Repository, pipeline *service.Pipeline, logger zerolog.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(logger))
	r.MaxMultipartMemory = cfg.MaxUploadBytes()

	corsCfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", middleware.UserIDHeader, middleware.RequestIDHeader},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if cfg.CORSAllowed == "*" {
		corsCfg.AllowAllOrigins = true
		corsCfg.AllowCredentials = false
	} else {
		corsCfg.AllowOrigins = []string{cfg.CORSAllowed}
	}
	r.Use(cors.New(corsCfg))

	h := &handlers.Handler{
		Repo:           repo,
		Pipeline:       pipeline,
		Validator:      validator.New(),
		Logger:         logger,
		UploadDir:      cfg.UploadDir,
		MaxUploadBytes: cfg.MaxUploadBytes(),
	}

	r.GET("/healthz", h.Healthz)
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	api := r.Group("/api")
	api.Use(middleware.RequireUser())
	api.Use(middleware.Timeout(cfg.RequestTimeout))
	{
		api.POST("/datasets", h.UploadDataset)
		api.GET("/datasets", h.ListDatasets)
		api.GET("/datasets/:id", h.GetDataset)
		api.DELETE("/datasets/:id", h.DeleteDataset)
		api.POST("/datasets/:id/rederive", h.RederiveDataset)
		api.POST("/datasets/:id/optimize", h.OptimizeDataset)
		api.GET("/datasets/:id/inefficient", h.InefficientRoutes)
		api.GET("/datasets/:id/cost-analysis", h.CostAnalysis)
		api.GET("/datasets/:id/summary", h.Summary)
	}

	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	return r
}
