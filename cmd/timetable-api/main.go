package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/timetable-engine/api/swagger"
	"github.com/noah-isme/timetable-engine/internal/handler"
	internalmiddleware "github.com/noah-isme/timetable-engine/internal/middleware"
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

// @title Timetable Engine API
// @version 1.0.0
// @description Constraint-based timetable generation, conflict detection, repair and interactive editing.
// @BasePath /api/v1
// @schemes http

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

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer db.Close() //nolint:errcheck

	var redisClient *redis.Client
	if client, err := cache.NewRedis(ctx, cfg.Redis); err != nil {
		logr.Warn("redis unavailable, editor sessions stay in memory", zap.Error(err))
	} else {
		redisClient = client
	}

	metrics := service.NewMetricsService()
	validate := validator.New()

	cacheRepo := repository.NewCacheRepository(redisClient, logr)
	defer cacheRepo.Close() //nolint:errcheck
	cacheSvc := service.NewCacheService(cacheRepo, metrics, cfg.Editor.SessionTTL, logr, redisClient != nil)

	versionRepo := repository.NewTimetableVersionRepository(db)
	generator := service.NewTimetableGeneratorService(
		versionRepo,
		repository.NewTimetableSlotRepository(db),
		db,
		metrics,
		validate,
		logr,
		service.TimetableGeneratorConfig{
			ProposalTTL:          cfg.Scheduler.ProposalTTL,
			SolveTimeout:         cfg.Scheduler.SolveTimeout,
			MaxBacktrackAttempts: cfg.Scheduler.MaxBacktrackAttempts,
			MaxRepairIterations:  cfg.Scheduler.MaxRepairIterations,
		},
	)
	editor := service.NewEditorSessionService(generator, cacheSvc, metrics, validate, logr, service.EditorSessionConfig{
		SessionTTL:   cfg.Editor.SessionTTL,
		HistoryLimit: cfg.Editor.HistoryLimit,
	})

	cron := jobs.NewScheduler(logr)
	limiter := internalmiddleware.NewRateLimiter(cfg.Scheduler.RateLimitPerMinute, logr)
	mustRegister(logr, cron, "purge-proposals", "@every 5m", generator.PurgeExpiredProposals)
	mustRegister(logr, cron, "purge-editor-sessions", "@every 5m", editor.PurgeExpired)
	mustRegister(logr, cron, "sweep-rate-limiter", "@every 10m", func(context.Context) error {
		limiter.Sweep()
		return nil
	})

	var exportHandler *handler.ExportHandler
	var exportQueue *jobs.Queue
	if cfg.Exports.Enabled {
		exportHandler, exportQueue = wireExports(ctx, cfg, db, versionRepo, generator, cron, logr)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr, "/health", "/ready", "/metrics"))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(internalmiddleware.Metrics(metrics, "/health", "/ready", "/metrics"))
	r.Use(internalmiddleware.WithResponseMeta())

	metricsHandler := handler.NewMetricsHandler(metrics, map[string]handler.ReadinessCheck{
		"postgres": db.PingContext,
		"redis": func(ctx context.Context) error {
			if redisClient == nil {
				return nil
			}
			return cacheRepo.Ping(ctx)
		},
	})
	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	api.GET("/metrics/summary", metricsHandler.Snapshot)

	if cfg.Scheduler.Enabled {
		timetables := handler.NewTimetableHandler(generator)
		group := api.Group("/timetables")
		group.POST("/generate", limiter.Middleware(), timetables.Generate)
		group.POST("/detect", timetables.Detect)
		group.POST("/repair", limiter.Middleware(), timetables.Repair)
		group.POST("/save", internalmiddleware.Audit(logr, "timetable.save"), timetables.Save)
		group.GET("", timetables.List)
		group.GET("/:id/slots", timetables.Slots)
		group.POST("/:id/publish", internalmiddleware.Audit(logr, "timetable.publish"), timetables.Publish)
		group.DELETE("/:id", internalmiddleware.Audit(logr, "timetable.delete"), timetables.Delete)
		if exportHandler != nil {
			group.POST("/:id/exports", internalmiddleware.Audit(logr, "timetable.export"), exportHandler.Create)
		}

		editorHandler := handler.NewEditorHandler(editor)
		sessions := api.Group("/editor/sessions")
		sessions.POST("", editorHandler.Open)
		sessions.GET("/:id", editorHandler.Get)
		sessions.DELETE("/:id", editorHandler.Close)
		sessions.POST("/:id/move", editorHandler.Move)
		sessions.POST("/:id/swap", editorHandler.Swap)
		sessions.POST("/:id/insert", editorHandler.Insert)
		sessions.POST("/:id/update", editorHandler.Update)
		sessions.POST("/:id/remove", editorHandler.Remove)
		sessions.POST("/:id/undo", editorHandler.Undo)
		sessions.POST("/:id/repair", limiter.Middleware(), editorHandler.Repair)
		sessions.POST("/:id/commit", internalmiddleware.Audit(logr, "editor.commit"), editorHandler.Commit)
	}

	if exportHandler != nil {
		api.GET("/exports/:jobId", exportHandler.Status)
		api.GET("/exports/download/:token", exportHandler.Download)
	}

	cron.Start()

	addr := fmt.Sprintf(":%d", cfg.Port)
	server := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logr.Warn("http shutdown", zap.Error(err))
	}
	cron.Stop(shutdownCtx)
	if exportQueue != nil {
		exportQueue.Stop()
	}
}

func wireExports(
	ctx context.Context,
	cfg *config.Config,
	db *sqlx.DB,
	versions *repository.TimetableVersionRepository,
	generator *service.TimetableGeneratorService,
	cron *jobs.Scheduler,
	logr *zap.Logger,
) (*handler.ExportHandler, *jobs.Queue) {
	store, err := storage.NewLocalStorage(cfg.Exports.StorageDir)
	if err != nil {
		logr.Fatal("failed to prepare export storage", zap.Error(err))
	}
	signer := storage.NewSignedURLSigner(cfg.Exports.SigningSecret, cfg.Exports.SignedURLTTL)
	exporter := service.NewExportService(generator, store, signer, service.ExportConfig{
		APIPrefix: cfg.APIPrefix,
		ResultTTL: cfg.Exports.RetentionPeriod,
	}, logr)

	exportRepo := repository.NewExportJobRepository(db)
	worker := service.NewExportWorker(exportRepo, exporter, logr)

	// jobSvc is assigned once the queue exists; the hook only fires after workers start.
	var jobSvc *service.ExportJobService
	onExhausted := func(ctx context.Context, job jobs.Job, err error) {
		jobSvc.MarkExhausted(ctx, job, err)
	}
	queue := jobs.NewQueue("timetable-exports", worker.Handle, jobs.QueueConfig{
		Workers:     cfg.Exports.WorkerConcurrency,
		MaxRetries:  cfg.Exports.WorkerRetries,
		RetryDelay:  2 * time.Second,
		Logger:      logr,
		OnExhausted: onExhausted,
	})
	jobSvc = service.NewExportJobService(exportRepo, versions, queue, exporter, logr, service.ExportJobServiceConfig{
		ResultTTL: cfg.Exports.RetentionPeriod,
	})

	queue.Start(ctx)
	jobSvc.RecoverPendingJobs(ctx)
	mustRegister(logr, cron, "cleanup-exports", cfg.Exports.CleanupSchedule, jobSvc.CleanupExpired)

	return handler.NewExportHandler(jobSvc), queue
}

func mustRegister(logr *zap.Logger, cron *jobs.Scheduler, name, spec string, fn func(context.Context) error) {
	if err := cron.Register(name, spec, fn); err != nil {
		logr.Fatal("failed to register cron job", zap.String("job", name), zap.Error(err))
	}
}
