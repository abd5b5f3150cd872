package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	_ "github.com/noah-isme/taxfiling-tracker/api/swagger"
	"github.com/noah-isme/taxfiling-tracker/internal/catalog"
	"github.com/noah-isme/taxfiling-tracker/internal/handler"
	"github.com/noah-isme/taxfiling-tracker/internal/repository"
	"github.com/noah-isme/taxfiling-tracker/internal/service"
	"github.com/noah-isme/taxfiling-tracker/pkg/cache"
	"github.com/noah-isme/taxfiling-tracker/pkg/config"
	"github.com/noah-isme/taxfiling-tracker/pkg/database"
	"github.com/noah-isme/taxfiling-tracker/pkg/export"
	"github.com/noah-isme/taxfiling-tracker/pkg/jobs"
	"github.com/noah-isme/taxfiling-tracker/pkg/logger"
	"github.com/noah-isme/taxfiling-tracker/pkg/mailer"
	"github.com/noah-isme/taxfiling-tracker/pkg/storage"
)

// @title Tax Filing Tracker API
// @version 1.0.0
// @description Tax filing request intake, status tracking and back office.
// @BasePath /api/v1
// @schemes http https
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

const shutdownTimeout = 15 * time.Second

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

	if err := run(cfg, logr); err != nil {
		logr.Fatal("server failed", zap.Error(err))
	}
}

func run(cfg *config.Config, logr *zap.Logger) error {
	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	cat, err := catalog.Load(cfg.Catalog.File)
	if err != nil {
		return fmt.Errorf("load status catalog: %w", err)
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close() //nolint:errcheck

	metrics := service.NewMetricsService()
	cacheStore, cachePing, closeCache := buildCache(cfg, logr)
	defer closeCache()
	cacheSvc := service.NewCacheService(cacheStore, metrics, cfg.Cache.TTL, logger.Component(logr, "cache"), cacheStore != nil)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	worker := service.NewNotificationWorker(buildMailer(cfg, logr), metrics, logger.Component(logr, "notifications"))
	queue := jobs.NewQueue("notifications", worker.Handle, jobs.QueueConfig{
		Workers:    cfg.Notifications.Workers,
		MaxRetries: cfg.Notifications.Retries,
		RetryDelay: cfg.Notifications.RetryDelay,
		Logger:     logger.Component(logr, "jobs"),
		OnDrop:     worker.OnDrop,
	})
	queue.Start(context.Background())

	documents, err := storage.NewDocumentStorage(cfg.Documents.StorageDir, cfg.Documents.BaseURL, cfg.Documents.MaxFileSizeBytes)
	if err != nil {
		return err
	}
	signingSecret := cfg.Documents.SignedURLSecret
	if signingSecret == "" {
		signingSecret = cfg.JWT.Secret
	}
	signer := storage.NewSignedURLSigner(signingSecret, cfg.Documents.SignedURLTTL)

	deps := &dependencies{
		cfg:        cfg,
		logger:     logr,
		db:         db,
		catalog:    cat,
		metrics:    metrics,
		cache:      cacheSvc,
		cachePing:  cachePing,
		queue:      queue,
		documents:  documents,
		signer:     signer,
		validate:   validator.New(),
		csv:        export.NewCSVExporter(true),
		pdf:        export.NewPDFExporter(),
		repository: repository.NewRequestRepository(db),
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           newRouter(deps),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logr.Info("server starting", zap.String("addr", srv.Addr), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logr.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			queue.Stop()
			return fmt.Errorf("http server: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("http shutdown failed", zap.Error(err))
	}
	queue.Shutdown(shutdownCtx)
	logr.Info("server stopped")
	return nil
}

func buildCache(cfg *config.Config, logr *zap.Logger) (service.CacheStore, handler.Pinger, func()) {
	switch cfg.Cache.Driver {
	case config.CacheDriverRedis:
		client, err := cache.NewRedis(cfg.Redis)
		if err != nil {
			logr.Warn("redis unavailable, using in-process cache", zap.String("addr", cache.Addr(cfg.Redis)), zap.Error(err))
			return repository.NewMemoryCacheRepository(cfg.Cache.LRUSize, cfg.Cache.TTL), nil, func() {}
		}
		repo := repository.NewCacheRepository(client, logger.Component(logr, "redis"))
		return repo, repo, func() { _ = repo.Close() }
	case config.CacheDriverMemory:
		return repository.NewMemoryCacheRepository(cfg.Cache.LRUSize, cfg.Cache.TTL), nil, func() {}
	default:
		return nil, nil, func() {}
	}
}

func buildMailer(cfg *config.Config, logr *zap.Logger) mailer.Mailer {
	if cfg.SMTP.Host == "" {
		logr.Info("SMTP host not configured, notifications are logged only")
		return mailer.NewLogMailer(logger.Component(logr, "mailer"))
	}
	return mailer.NewSMTPMailer(mailer.SMTPConfig{
		Host:     cfg.SMTP.Host,
		Port:     cfg.SMTP.Port,
		User:     cfg.SMTP.User,
		Password: cfg.SMTP.Password,
		From:     cfg.SMTP.From,
	})
}

type dependencies struct {
	cfg        *config.Config
	logger     *zap.Logger
	db         *sqlx.DB
	catalog    *catalog.Catalog
	metrics    *service.MetricsService
	cache      *service.CacheService
	cachePing  handler.Pinger
	queue      *jobs.Queue
	documents  *storage.DocumentStorage
	signer     *storage.SignedURLSigner
	validate   *validator.Validate
	csv        *export.CSVExporter
	pdf        *export.PDFExporter
	repository *repository.RequestRepository
}
