package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/irfndi/celebrum-forecast/internal/api"
	"github.com/irfndi/celebrum-forecast/internal/api/handlers"
	"github.com/irfndi/celebrum-forecast/internal/cache"
	"github.com/irfndi/celebrum-forecast/internal/config"
	"github.com/irfndi/celebrum-forecast/internal/database"
	"github.com/irfndi/celebrum-forecast/internal/ingest"
	"github.com/irfndi/celebrum-forecast/internal/logging"
	"github.com/irfndi/celebrum-forecast/internal/models"
	"github.com/irfndi/celebrum-forecast/internal/services"
	"github.com/irfndi/celebrum-forecast/internal/telemetry"
)

const serviceName = "celebrum-forecast"

func main() {
	// A missing .env file is fine; the environment may already be set.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := logging.NewLogger(cfg.LogLevel, cfg.Environment)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.WithError(err).Error("Forecast run failed")
		os.Exit(1)
	}
}

// run computes forecasts for every configured instrument, publishes them to
// the enabled sinks and, when the server is enabled, serves them until ctx is
// cancelled.
func run(ctx context.Context, cfg *config.Config, logger *logrus.Logger) error {
	logging.LogStartup(logger, serviceName, telemetry.ServiceVersion, len(cfg.Instruments))

	provider, err := telemetry.InitTracer(ctx, cfg.Telemetry, cfg.Environment, nil)
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := provider.Shutdown(shutdownCtx); err != nil {
			logger.WithError(err).Warn("Failed to flush traces")
		}
	}()

	series, err := loadSeries(cfg, logger)
	if err != nil {
		return err
	}

	svc, err := services.NewForecastService(cfg, logger)
	if err != nil {
		return err
	}
	results, failures := svc.ComputeAll(ctx, series)
	for _, failure := range failures {
		logger.WithError(failure).Warn("Skipping instrument")
	}
	if len(results) == 0 && len(series) > 0 {
		return errors.Join(failures...)
	}

	var (
		forecastCache cache.ForecastCache = cache.NewMemoryForecastCache()
		store         handlers.ForecastStore
		checks        = map[string]handlers.HealthChecker{"database": nil, "redis": nil}
	)

	if cfg.Redis.Enabled {
		redisClient, err := database.NewRedisConnection(ctx, cfg.Redis)
		if err != nil {
			return err
		}
		defer redisClient.Close()

		ttl, err := cfg.Redis.TTLDuration()
		if err != nil {
			return err
		}
		redisCache := cache.NewRedisForecastCache(redisClient.Client, ttl, logger)
		defer redisCache.LogStats()
		forecastCache = redisCache
		checks["redis"] = redisClient
	}

	if cfg.Database.Enabled {
		db, err := database.NewPostgresConnection(ctx, cfg.Database)
		if err != nil {
			return err
		}
		defer db.Close()

		traced := database.NewTracedDB(db.Pool)
		if err := database.Migrate(ctx, traced); err != nil {
			return err
		}
		repo := database.NewForecastRepository(traced)
		if err := saveAll(ctx, repo, results); err != nil {
			return err
		}
		store = repo
		checks["database"] = db
	}

	for _, result := range results {
		if err := forecastCache.Set(ctx, result); err != nil {
			logging.WithInstrument(logger, result.Instrument).WithError(err).Warn("Failed to cache forecast")
		}
	}

	if !cfg.Server.Enabled {
		logging.LogShutdown(logger, serviceName, "completed")
		return nil
	}

	router := newRouter(cfg, logger, forecastCache, store, checks)
	return serve(ctx, cfg.Server.Port, router, logger)
}

// loadSeries reads every configured instrument's price file.
func loadSeries(cfg *config.Config, logger *logrus.Logger) ([]*models.PriceSeries, error) {
	opts, err := ingest.OptionsFromConfig(cfg.Data)
	if err != nil {
		return nil, err
	}
	loader := ingest.NewLoader(opts, logger)

	series := make([]*models.PriceSeries, 0, len(cfg.Instruments))
	for _, instrument := range cfg.Instruments {
		path := instrument.File
		if !filepath.IsAbs(path) {
			path = filepath.Join(cfg.Data.Directory, path)
		}
		ps, err := loader.LoadFile(instrument.Name, path)
		if err != nil {
			return nil, err
		}
		series = append(series, ps)
	}
	return series, nil
}

type forecastSaver interface {
	Save(ctx context.Context, forecast *models.ForecastResult) error
}

func saveAll(ctx context.Context, repo forecastSaver, results []*models.ForecastResult) error {
	for _, result := range results {
		if err := repo.Save(ctx, result); err != nil {
			return err
		}
	}
	return nil
}

func newRouter(
	cfg *config.Config,
	logger *logrus.Logger,
	forecastCache cache.ForecastCache,
	store handlers.ForecastStore,
	checks map[string]handlers.HealthChecker,
) *gin.Engine {
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())

	name := cfg.Telemetry.ServiceName
	if name == "" {
		name = serviceName
	}
	api.SetupRoutes(router, name,
		handlers.NewHealthHandler(telemetry.ServiceVersion, checks),
		handlers.NewForecastHandler(forecastCache, store, logger),
	)
	return router
}

func serve(ctx context.Context, port int, handler http.Handler, logger *logrus.Logger) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.WithField("port", port).Info("Server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("failed to start server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("Shutting down server...")

	// Give outstanding requests a deadline for completion
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	logging.LogShutdown(logger, serviceName, "signal")
	return nil
}
