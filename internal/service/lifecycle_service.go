package service

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/taxfiling-tracker/internal/models"
	"github.com/noah-isme/taxfiling-tracker/internal/repository"
	appErrors "github.com/noah-isme/taxfiling-tracker/pkg/errors"
)

const purgeConcurrency = 3

type lifecycleStore interface {
	GetByID(ctx context.Context, id string) (*models.TaxRequest, error)
	SetDeleted(ctx context.Context, id string) (*models.TaxRequest, error)
	Restore(ctx context.Context, id string) (*models.TaxRequest, error)
}

type documentRemover interface {
	Delete(location string) error
}

// LifecycleServiceParams groups the collaborators of LifecycleService.
type LifecycleServiceParams struct {
	Store          lifecycleStore
	Documents      documentRemover
	Invalidator    *Invalidator
	Metrics        *MetricsService
	PurgeDocuments bool
	Logger         *zap.Logger
}

// LifecycleService soft deletes and restores requests.
type LifecycleService struct {
	store       lifecycleStore
	documents   documentRemover
	invalidator *Invalidator
	metrics     *MetricsService
	purge       bool
	logger      *zap.Logger
}

// NewLifecycleService constructs the service.
func NewLifecycleService(params LifecycleServiceParams) *LifecycleService {
	logger := params.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LifecycleService{
		store:       params.Store,
		documents:   params.Documents,
		invalidator: params.Invalidator,
		metrics:     params.Metrics,
		purge:       params.PurgeDocuments,
		logger:      logger,
	}
}

// SoftDelete flags a request as deleted. Attached documents are removed from
// storage first; removal failures are logged and never block the flag.
// The locators stay on the record.
func (s *LifecycleService) SoftDelete(ctx context.Context, id, actorID string) error {
	req, err := s.store.GetByID(ctx, id)
	if err != nil {
		if repository.IsNoRows(err) {
			return appErrors.ErrNotFound
		}
		return appErrors.Persistence(err, "failed to load request")
	}

	if s.purge && s.documents != nil && len(req.W2Files) > 0 {
		s.purgeDocuments(req)
	}

	start := time.Now()
	updated, err := s.store.SetDeleted(ctx, id)
	s.metrics.ObserveDBQuery("soft_delete", time.Since(start))
	if err != nil {
		if repository.IsNoRows(err) {
			return appErrors.ErrNotFound
		}
		s.logger.Error("soft delete failed", zap.String("request_id", id), zap.Error(err))
		return appErrors.Persistence(err, "failed to delete request")
	}

	s.invalidator.Invalidate(ctx, updated)
	s.logger.Info("request soft deleted", zap.String("request_id", id), zap.String("actor_id", actorID))
	return nil
}

// Restore clears the deleted flag. Requests that are not deleted are NotFound.
func (s *LifecycleService) Restore(ctx context.Context, id, actorID string) error {
	start := time.Now()
	updated, err := s.store.Restore(ctx, id)
	s.metrics.ObserveDBQuery("restore", time.Since(start))
	if err != nil {
		if repository.IsNoRows(err) {
			return appErrors.ErrNotFound
		}
		s.logger.Error("restore failed", zap.String("request_id", id), zap.Error(err))
		return appErrors.Persistence(err, "failed to restore request")
	}

	s.invalidator.Invalidate(ctx, updated)
	s.logger.Info("request restored", zap.String("request_id", id), zap.String("actor_id", actorID))
	return nil
}

func (s *LifecycleService) purgeDocuments(req *models.TaxRequest) {
	var g errgroup.Group
	g.SetLimit(purgeConcurrency)
	for _, location := range req.W2Files {
		location := location
		g.Go(func() error {
			err := s.documents.Delete(location)
			s.metrics.RecordDocumentPurge(err == nil)
			if err != nil {
				s.logger.Warn("document removal failed",
					zap.String("request_id", req.ID),
					zap.String("location", location),
					zap.Error(err),
				)
			}
			return err
		})
	}
	if err := g.Wait(); err != nil {
		s.logger.Warn("document purge incomplete", zap.String("request_id", req.ID))
	}
}
