// Package app assembles the scheduling API from configuration.
package app

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/lesson-scheduler/api/swagger"
	"github.com/noah-isme/lesson-scheduler/internal/handler"
	"github.com/noah-isme/lesson-scheduler/internal/middleware"
	"github.com/noah-isme/lesson-scheduler/internal/repository"
	"github.com/noah-isme/lesson-scheduler/internal/repository/memory"
	"github.com/noah-isme/lesson-scheduler/internal/service"
	"github.com/noah-isme/lesson-scheduler/migrations"
	"github.com/noah-isme/lesson-scheduler/pkg/cache"
	"github.com/noah-isme/lesson-scheduler/pkg/config"
	"github.com/noah-isme/lesson-scheduler/pkg/database"
	"github.com/noah-isme/lesson-scheduler/pkg/jobs"
	"github.com/noah-isme/lesson-scheduler/pkg/logger"
	corsmiddleware "github.com/noah-isme/lesson-scheduler/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/lesson-scheduler/pkg/middleware/requestid"
)

// App owns the HTTP router and the resources behind it.
type App struct {
	Router *gin.Engine

	logger  *zap.Logger
	queue   *jobs.Queue
	closers []func() error
}

// New opens storage and cache according to cfg and builds the router.
func New(ctx context.Context, cfg *config.Config, logr *zap.Logger) (*App, error) {
	if logr == nil {
		logr = zap.NewNop()
	}
	a := &App{logger: logr}
	probes := make(map[string]handler.ReadinessProbe)

	store, err := a.openStore(ctx, cfg, probes)
	if err != nil {
		a.Close()
		return nil, err
	}

	redisClient, err := cache.NewRedis(ctx, cfg.Redis)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	if redisClient != nil {
		a.closers = append(a.closers, redisClient.Close)
		probes["redis"] = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
	}

	metrics := service.NewMetricsService()
	cacheSvc := service.NewCacheService(
		repository.NewCacheRepository(redisClient, logr),
		metrics,
		cfg.Stats.CacheTTL,
		logr,
		cfg.Stats.CacheEnabled && redisClient != nil,
	)

	stats := service.NewWeeklyStatsService(store, cacheSvc, cfg.Scheduling, cfg.Stats, metrics, logr)
	if cacheSvc.Enabled() {
		a.queue = jobs.NewQueue("weekly-stats-warm", stats.WarmJob, jobs.QueueConfig{
			Workers:    cfg.Stats.Workers,
			BufferSize: 64,
			MaxRetries: 2,
			RetryDelay: time.Second,
			Logger:     logr,
		})
		stats.AttachQueue(a.queue)
		if cfg.StorageDriver == config.StorageDriverMemory {
			if err := stats.Purge(ctx); err != nil {
				logr.Warn("cached weekly stats not purged", zap.Error(err))
			}
		}
	}

	checker := service.NewConflictChecker(store, cfg.Scheduling, metrics, logr)
	lessons := service.NewLessonService(store, checker, cfg.Scheduling, logr,
		service.WithStatsInvalidator(stats),
		service.WithLessonMetrics(metrics),
	)

	handlers := handler.Handlers{
		Availability:   handler.NewAvailabilityHandler(checker, service.NewAvailabilityService(store, cfg.Scheduling, logr)),
		Lessons:        handler.NewLessonHandler(lessons, service.NewReadReceiptService(store, logr)),
		ChangeRequests: handler.NewChangeRequestHandler(service.NewChangeRequestService(store, lessons, logr)),
		Stats:          handler.NewStatsHandler(stats),
	}
	a.Router = newRouter(cfg, logr, metrics, service.NewTokenService(cfg.JWT), handlers, probes)
	return a, nil
}

func (a *App) openStore(ctx context.Context, cfg *config.Config, probes map[string]handler.ReadinessProbe) (repository.Store, error) {
	switch cfg.StorageDriver {
	case config.StorageDriverMemory:
		store := memory.New()
		if cfg.MemorySeedFile != "" {
			file, err := os.Open(cfg.MemorySeedFile)
			if err != nil {
				return nil, fmt.Errorf("open seed file: %w", err)
			}
			defer file.Close()
			if err := store.LoadFixture(file); err != nil {
				return nil, err
			}
		}
		a.logger.Warn("using in-memory storage; data is lost on restart")
		return store, nil
	case config.StorageDriverPostgres, "":
		db, err := database.NewPostgres(ctx, cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		a.closers = append(a.closers, db.Close)
		if cfg.Database.AutoMigrate {
			if err := migrations.Up(ctx, db.DB); err != nil {
				return nil, err
			}
			version, _ := migrations.Version(ctx, db.DB)
			a.logger.Info("database migrated", zap.Int64("version", version))
		}
		probes["postgres"] = db.PingContext
		return repository.NewPostgresStore(db), nil
	}
	return nil, fmt.Errorf("unknown storage driver %q", cfg.StorageDriver)
}

func newRouter(cfg *config.Config, logr *zap.Logger, metrics *service.MetricsService, tokens middleware.TokenValidator, handlers handler.Handlers, probes map[string]handler.ReadinessProbe) *gin.Engine {
	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metrics, "/metrics"))

	ops := handler.NewMetricsHandler(metrics, probes)
	r.GET("/health", ops.Health)
	r.GET("/ready", ops.Ready)
	r.GET("/metrics", ops.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	handler.RegisterRoutes(r.Group(cfg.APIPrefix), tokens, handlers)
	return r
}

// Start launches background workers. They stop when ctx is cancelled or Close is called.
func (a *App) Start(ctx context.Context) {
	if a.queue != nil {
		a.queue.Start(ctx)
	}
}

// Close stops workers and releases connections.
func (a *App) Close() {
	if a.queue != nil {
		a.queue.Stop()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("failed to release resource", zap.Error(err))
		}
	}
	a.closers = nil
}
