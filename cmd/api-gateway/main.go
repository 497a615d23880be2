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
	_ "time/tzdata"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/adelinocpp/postgraduate-schedules/api/swagger"
	"github.com/adelinocpp/postgraduate-schedules/internal/handler"
	internalmiddleware "github.com/adelinocpp/postgraduate-schedules/internal/middleware"
	"github.com/adelinocpp/postgraduate-schedules/internal/repository"
	"github.com/adelinocpp/postgraduate-schedules/internal/service"
	"github.com/adelinocpp/postgraduate-schedules/pkg/cache"
	"github.com/adelinocpp/postgraduate-schedules/pkg/config"
	"github.com/adelinocpp/postgraduate-schedules/pkg/database"
	"github.com/adelinocpp/postgraduate-schedules/pkg/export"
	"github.com/adelinocpp/postgraduate-schedules/pkg/jobs"
	"github.com/adelinocpp/postgraduate-schedules/pkg/logger"
	corsmiddleware "github.com/adelinocpp/postgraduate-schedules/pkg/middleware/cors"
	reqidmiddleware "github.com/adelinocpp/postgraduate-schedules/pkg/middleware/requestid"
	"github.com/adelinocpp/postgraduate-schedules/pkg/notify"
	"github.com/adelinocpp/postgraduate-schedules/pkg/storage"
)

// @title Postgraduate Schedules API
// @version 1.0.0
// @description Generates, validates, versions and publishes postgraduate class timetables.
// @BasePath /api/v1
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

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

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect database", zap.Error(err))
	}
	defer db.Close() //nolint:errcheck
	if err := database.EnsureSchema(ctx, db); err != nil {
		logr.Fatal("failed to prepare schema", zap.Error(err))
	}

	var redisClient *redis.Client
	if cfg.Cache.Enabled {
		redisClient, err = cache.NewRedis(cfg.Redis)
		if err != nil {
			logr.Warn("redis unavailable, caching disabled", zap.Error(err))
			redisClient = nil
		}
	}

	metricsSvc := service.NewMetricsService()
	cacheRepo := repository.NewCacheRepository(redisClient, logr)
	defer cacheRepo.Close() //nolint:errcheck
	cacheSvc := service.NewCacheService(cacheRepo, metricsSvc, cfg.Cache.TTL, logr, cfg.Cache.Enabled && redisClient != nil)

	plan, err := config.LoadPlan(cfg.Scheduler.PlanFile)
	if err != nil {
		logr.Fatal("failed to load slot plan", zap.Error(err))
	}
	holidays, err := repository.LoadHolidayTable(cfg.Scheduler.HolidaysFile)
	if err != nil {
		logr.Fatal("failed to load holidays", zap.Error(err))
	}
	if holidays.Skipped > 0 {
		logr.Warn("holiday entries skipped", zap.Int("skipped", holidays.Skipped), zap.String("file", cfg.Scheduler.HolidaysFile))
	}

	localStorage, err := storage.NewLocalStorage(cfg.Exports.StorageDir)
	if err != nil {
		logr.Fatal("failed to init export storage", zap.Error(err))
	}
	signer := storage.NewSignedURLSigner(cfg.Exports.SignedURLSecret, cfg.Exports.SignedURLTTL)
	exportSvc := service.NewExportService(localStorage, signer, service.Renderers{
		CSV:  export.NewCSVExporter(cfg.Exports.Comma()),
		PDF:  export.NewPDFExporter(),
		XLSX: export.NewXLSXExporter(),
		ICS:  export.NewICSExporter("-//postgraduate-schedules//timetables//PT", time.Now),
	}, service.ExportConfig{
		APIPrefix: cfg.APIPrefix,
		ResultTTL: cfg.Exports.ResultTTL,
		Location:  cfg.Exports.Location(),
	}, metricsSvc, logr)

	var notifier notify.Notifier = notify.NewLogNotifier(logr)
	if cfg.Notifications.EmailEnabled {
		smtp := cfg.Notifications.SMTP
		notifier = notify.NewSMTPNotifier(notify.SMTPConfig{
			Host:       smtp.Host,
			Port:       smtp.Port,
			Username:   smtp.Username,
			Password:   smtp.Password,
			From:       smtp.From,
			Recipients: cfg.Notifications.Recipients,
		}, logr)
	}

	timetableRepo := repository.NewTimetableRepository(db)
	worker := service.NewPublishWorker(timetableRepo, exportSvc, notifier, cfg.Publish.Formats, metricsSvc, logr)
	publishQueue := jobs.NewQueue("publish", worker.Handle, jobs.QueueConfig{
		Workers:    cfg.Publish.WorkerConcurrency,
		MaxRetries: cfg.Publish.WorkerRetries,
		RetryDelay: 2 * time.Second,
		Logger:     logr,
	})
	publishQueue.Start(ctx)
	defer publishQueue.Stop()

	timetableSvc, err := service.NewTimetableService(service.TimetableDeps{
		Plan:        plan,
		Holidays:    holidays.Table,
		Disciplines: repository.NewFileDisciplineSource(cfg.Scheduler.DisciplinesDir, plan),
		Repo:        timetableRepo,
		Tx:          db,
		Cache:       cacheSvc,
		Metrics:     metricsSvc,
		Publisher:   publishQueue,
		Validator:   validator.New(),
		Logger:      logr,
	}, service.TimetableConfig{
		ProposalTTL:      cfg.Scheduler.ProposalTTL,
		BatchConcurrency: cfg.Scheduler.BatchConcurrency,
	})
	if err != nil {
		logr.Fatal("failed to build timetable service", zap.Error(err))
	}

	checks := map[string]handler.ReadinessCheck{
		"database": db.PingContext,
	}
	if redisClient != nil {
		checks["redis"] = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
	}

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(internalmiddleware.Metrics(metricsSvc, "/metrics", "/health", "/ready"))

	handler.RegisterRoutes(r, handler.Routes{
		Prefix:     cfg.APIPrefix,
		Timetables: handler.NewTimetableHandler(timetableSvc),
		Exports:    handler.NewExportHandler(timetableSvc, exportSvc),
		Metrics:    handler.NewMetricsHandler(metricsSvc, checks),
		Tokens: service.NewTokenService(service.TokenConfig{
			Secret: cfg.JWT.Secret,
			Expiry: cfg.JWT.Expiration,
		}),
		Audit: logr.Named("audit"),
	})

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	go runExportCleanup(ctx, exportSvc, cfg.Exports, logr)

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{Addr: addr, Handler: r, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("graceful shutdown failed", zap.Error(err))
	}
	logr.Info("server stopped")
}

func runExportCleanup(ctx context.Context, exports *service.ExportService, cfg config.ExportsConfig, logr *zap.Logger) {
	if cfg.CleanupInterval <= 0 {
		return
	}
	ticker := time.NewTicker(cfg.CleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := exports.Cleanup(cfg.ResultTTL)
			if err != nil {
				logr.Warn("export cleanup failed", zap.Error(err))
				continue
			}
			if len(removed) > 0 {
				logr.Info("expired exports removed", zap.Int("count", len(removed)))
			}
		}
	}
}
