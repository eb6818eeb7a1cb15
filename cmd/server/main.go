package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/retrotrack/backend/internal/config"
	"github.com/retrotrack/backend/internal/db"
	"github.com/retrotrack/backend/internal/geo"
	httpapi "github.com/retrotrack/backend/internal/http"
	"github.com/retrotrack/backend/internal/metrics"
	"github.com/retrotrack/backend/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	zerolog.TimeFieldFormat = time.RFC3339
	level, _ := zerolog.ParseLevel(cfg.LogLevel)
	logger := log.Level(level).With().Str("service", "retrotrack-backend").Logger()

	ctx := context.Background()
	dsn := cfg.DatabaseURL
	if cfg.DBDriver == "sqlite" {
		dsn = cfg.SQLitePath
	}
	repo, err := db.Open(ctx, cfg.DBDriver, dsn)
	if err != nil {
		logger.Fatal().Err(err).Str("driver", cfg.DBDriver).Msg("failed to open db")
	}
	defer repo.Close()

	metrics.Init()

	geocoder, router := providers(cfg, logger)
	cache, closeCache := geocodeCache(ctx, cfg, logger)
	defer closeCache()

	pipeline := &service.Pipeline{
		Repo: repo,
		Optimizer: &service.Optimizer{
			Geocoder: geo.CachedGeocoder{Next: geocoder, Cache: cache, Logger: logger},
			Router:   router,
			Store:    repo,
			Workers:  cfg.RouteWorkers,
			Logger:   logger,
		},
		Logger:         logger,
		EnrichOnUpload: cfg.EnrichOnUpload,
		FillBudget:     cfg.FillBudget,
	}

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: httpapi.Router(cfg, repo, pipeline, logger),
	}

	go func() {
		logger.Info().Str("port", cfg.Port).Str("geo_provider", cfg.GeoProvider).Msg("server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctxShutdown)
	logger.Info().Msg("server stopped")
}

func providers(cfg config.Config, logger zerolog.Logger) (geo.Geocoder, geo.Router) {
	switch cfg.GeoProvider {
	case "geoapify":
		g := geo.NewGeoapify(cfg.GeoapifyBaseURL, cfg.GeoapifyAPIKey, cfg.GeoapifyLang, cfg.GeoRPS)
		return g, g
	case "nominatim":
		// Nominatim has no routing; distances fall back to the straight-line estimate.
		logger.Info().Msg("using nominatim geocoder with straight-line routing")
		return geo.NewNominatim(cfg.NominatimURL, "retrotrack-backend/1.0"), geo.MockRouter{}
	default:
		logger.Info().Msg("using mock geo providers")
		return geo.MockGeocoder{}, geo.MockRouter{}
	}
}

func geocodeCache(ctx context.Context, cfg config.Config, logger zerolog.Logger) (geo.GeocodeCache, func()) {
	if cfg.RedisURL == "" {
		return geo.NewMemoryCache(), func() {}
	}
	rc, err := geo.NewRedisCache(ctx, cfg.RedisURL, cfg.GeocodeCacheTTL)
	if err != nil {
		logger.Warn().Err(err).Msg("redis unavailable, using in-memory geocode cache")
		return geo.NewMemoryCache(), func() {}
	}
	return rc, func() { _ = rc.Close() }
}
