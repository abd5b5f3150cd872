package main

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/noah-isme/taxfiling-tracker/internal/handler"
	"github.com/noah-isme/taxfiling-tracker/internal/middleware"
	"github.com/noah-isme/taxfiling-tracker/internal/models"
	"github.com/noah-isme/taxfiling-tracker/internal/service"
	"github.com/noah-isme/taxfiling-tracker/pkg/config"
	"github.com/noah-isme/taxfiling-tracker/pkg/logger"
	corsmiddleware "github.com/noah-isme/taxfiling-tracker/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/taxfiling-tracker/pkg/middleware/requestid"
)

func newRouter(d *dependencies) *gin.Engine {
	cfg := d.cfg
	repo := d.repository

	invalidator := service.NewInvalidator(d.cache, logger.Component(d.logger, "cache"))
	notifier := service.NewNotificationService(d.queue, d.catalog, cfg.Catalog.ApprovedClausePlacement, d.metrics, logger.Component(d.logger, "notifications"))

	queries := service.NewQueryService(service.QueryServiceParams{
		Store:    repo,
		Catalog:  d.catalog,
		Cache:    d.cache,
		CacheTTL: cfg.Cache.TTL,
		Metrics:  d.metrics,
		Logger:   logger.Component(d.logger, "queries"),
	})
	transitions := service.NewTransitionService(service.TransitionServiceParams{
		Store:           repo,
		Catalog:         d.catalog,
		Invalidator:     invalidator,
		Notifier:        notifier,
		Metrics:         d.metrics,
		ClausePlacement: cfg.Catalog.ApprovedClausePlacement,
		Logger:          logger.Component(d.logger, "transitions"),
	})
	notes := service.NewNoteService(repo, invalidator, d.metrics, logger.Component(d.logger, "notes"))
	lifecycle := service.NewLifecycleService(service.LifecycleServiceParams{
		Store:          repo,
		Documents:      d.documents,
		Invalidator:    invalidator,
		Metrics:        d.metrics,
		PurgeDocuments: cfg.Documents.PurgeOnDelete,
		Logger:         logger.Component(d.logger, "lifecycle"),
	})
	intake := service.NewIntakeService(service.IntakeServiceParams{
		Store:       repo,
		Documents:   d.documents,
		Catalog:     d.catalog,
		Invalidator: invalidator,
		Notifier:    notifier,
		Validator:   d.validate,
		MaxFileSize: cfg.Documents.MaxFileSizeBytes,
		Metrics:     d.metrics,
		Logger:      logger.Component(d.logger, "intake"),
	})
	documentSvc := service.NewDocumentService(repo, d.documents, d.signer, cfg.APIPrefix+"/documents/download", logger.Component(d.logger, "documents"))
	exports := service.NewExportService(queries, d.csv, d.pdf, logger.Component(d.logger, "exports"))
	auth := service.NewAuthService(logger.Component(d.logger, "auth"), service.AuthConfig{
		AccessTokenSecret: cfg.JWT.Secret,
		Issuer:            cfg.JWT.Issuer,
	})

	requests := handler.NewRequestHandler(intake, queries, documentSvc)
	downloads := handler.NewDocumentHandler(documentSvc)
	admin := handler.NewAdminHandler(handler.AdminHandlerParams{
		Queries:     queries,
		Transitions: transitions,
		Notes:       notes,
		Lifecycle:   lifecycle,
		Exports:     exports,
		Catalog:     d.catalog,
	})
	ops := handler.NewOpsHandler(d.metrics, map[string]handler.Pinger{
		"database": handler.PingFunc(d.db.PingContext),
		"cache":    d.cachePing,
	})

	r := gin.New()
	r.MaxMultipartMemory = cfg.Documents.MaxFileSizeBytes
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(d.logger))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(d.metrics, "/metrics"))

	r.GET("/health", ops.Health)
	r.GET("/ready", ops.Ready)
	r.GET("/metrics", ops.Prometheus)
	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	api.GET("/documents/download", downloads.Download)

	user := api.Group("", middleware.JWT(auth))
	user.POST("/requests", requests.Create)
	user.GET("/requests", requests.List)
	user.GET("/requests/:id", requests.Get)
	user.POST("/requests/:id/documents", requests.UploadDocument)
	user.GET("/requests/:id/documents/:index/link", requests.DocumentLink)

	audit := logger.Component(d.logger, "admin")
	staff := api.Group("/admin", middleware.JWT(auth), middleware.RequireRoles(models.RoleAdmin))
	staff.GET("/requests", admin.List)
	staff.GET("/requests/export", admin.Export)
	staff.PUT("/requests/:id/status", middleware.Audit(audit, "update_status"), admin.UpdateStatus)
	staff.POST("/requests/:id/notes", middleware.Audit(audit, "add_note"), admin.AddNote)
	staff.DELETE("/requests/:id", middleware.Audit(audit, "soft_delete"), admin.Delete)
	staff.POST("/requests/:id/restore", middleware.Audit(audit, "restore"), admin.Restore)
	staff.GET("/statistics", admin.Statistics)
	staff.GET("/statuses", admin.Statuses)

	return r
}
