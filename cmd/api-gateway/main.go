package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/timetable-engine/internal/handler"
	"github.com/noah-isme/timetable-engine/internal/middleware"
	"github.com/noah-isme/timetable-engine/internal/repository"
	"github.com/noah-isme/timetable-engine/internal/service"
	"github.com/noah-isme/timetable-engine/pkg/cache"
	"github.com/noah-isme/timetable-engine/pkg/config"
	"github.com/noah-isme/timetable-engine/pkg/database"
	"github.com/noah-isme/timetable-engine/pkg/jobs"
	"github.com/noah-isme/timetable-engine/pkg/logger"
	corsmiddleware "github.com/noah-isme/timetable-engine/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/timetable-engine/pkg/middleware/requestid"
	"github.com/noah-isme/timetable-engine/pkg/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close() //nolint:errcheck

	cacheRepo := repository.NewCacheRepository(nil, logr)
	if cfg.Cache.Enabled {
		redisClient, err := cache.NewRedis(cfg.Redis)
		if err != nil {
			logr.Sugar().Warnw("redis unavailable, snapshot cache disabled", "error", err)
			cfg.Cache.Enabled = false
		} else {
			cacheRepo = repository.NewCacheRepository(redisClient, logr)
			defer redisClient.Close() //nolint:errcheck
		}
	}

	configRepo := repository.NewTimetableConfigRepository(db)
	entityRepo := repository.NewEntityRepository(db)

	metrics := service.NewMetricsService()
	cacheSvc := service.NewCacheService(cacheRepo, metrics, cfg.Cache.TTL, logr, cfg.Cache.Enabled)
	locks := service.NewConfigLockRegistry()
	entities := service.NewEntityLoader(entityRepo)

	allocSvc := service.NewAllocationService(configRepo, entities, locks, cacheSvc, metrics, nil, logr)
	lifecycleSvc := service.NewLifecycleService(configRepo, locks, cacheSvc, nil, logr, service.LifecycleServiceConfig{
		DefaultPublishThreshold: cfg.Engine.PublishThreshold,
	})

	allocHandler := handler.NewAllocationHandler(allocSvc)
	lifecycleHandler := handler.NewLifecycleHandler(lifecycleSvc)
	metricsHandler := handler.NewMetricsHandler(metrics)

	var exportHandler *handler.ExportHandler
	if cfg.Export.Enabled {
		archive, err := storage.NewExportArchive(cfg.Export.StorageDir)
		if err != nil {
			logr.Sugar().Fatalw("failed to prepare export archive", "error", err)
		}
		signer := storage.NewDownloadSigner(cfg.Export.SignedURLSecret, cfg.Export.SignedURLTTL)
		exportSvc := service.NewExportService(configRepo, entities, archive, signer, service.ExportConfig{
			APIPrefix: cfg.APIPrefix,
			ResultTTL: cfg.Export.SignedURLTTL,
		}, logr, nil, nil)

		var exportJobs *service.ExportJobService
		queue := jobs.NewQueue("timetable_export", func(ctx context.Context, job jobs.Job) error {
			return exportJobs.Handle(ctx, job)
		}, jobs.QueueConfig{
			Workers:    cfg.Export.WorkerConcurrency,
			MaxRetries: cfg.Export.WorkerRetries,
			Logger:     logr,
		})
		exportJobs = service.NewExportJobService(queue, exportSvc, logr, service.ExportJobServiceConfig{
			ResultTTL:  cfg.Export.SignedURLTTL,
			MaxRetries: cfg.Export.WorkerRetries,
		})
		queue.Start(ctx)
		defer queue.Stop()
		exportJobs.StartCleanup(ctx)
		exportHandler = handler.NewExportHandler(exportJobs)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metrics))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", metricsHandler.Prometheus)

	api := r.Group(cfg.APIPrefix)
	{
		configs := api.Group("/configs")
		configs.POST("", lifecycleHandler.Create)
		configs.GET("/:id", lifecycleHandler.Get)
		configs.POST("/:id/clone", lifecycleHandler.Clone)
		configs.POST("/:id/publish", lifecycleHandler.Publish)
		configs.POST("/:id/lock", lifecycleHandler.Lock)
		configs.POST("/:id/archive", lifecycleHandler.Archive)
		configs.PUT("/:id/pin", lifecycleHandler.Pin)

		configs.GET("/:id/assignments", allocHandler.List)
		configs.POST("/:id/assignments", allocHandler.Propose)
		configs.POST("/:id/assignments/bulk", allocHandler.BulkApply)
		configs.PUT("/:id/assignments/:assignmentId/move", allocHandler.Move)
		configs.DELETE("/:id/assignments/:assignmentId", allocHandler.Remove)
		configs.POST("/:id/probe", allocHandler.Probe)

		if exportHandler != nil {
			configs.POST("/:id/export", exportHandler.Generate)
			api.GET("/export/jobs/:jobId", exportHandler.Status)
			api.GET("/export/:token", exportHandler.Download)
		}
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	server := &http.Server{Addr: addr, Handler: r}

	go func() {
		logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Sugar().Infow("server shutting down")
	if err := server.Shutdown(context.Background()); err != nil {
		logr.Sugar().Warnw("shutdown error", "error", err)
	}
}
