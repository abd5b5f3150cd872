package service

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/taxfiling-tracker/internal/catalog"
	"github.com/noah-isme/taxfiling-tracker/internal/models"
	"github.com/noah-isme/taxfiling-tracker/internal/repository"
	"github.com/noah-isme/taxfiling-tracker/pkg/config"
	appErrors "github.com/noah-isme/taxfiling-tracker/pkg/errors"
)

type transitionStore interface {
	ApplyTransition(ctx context.Context, params repository.TransitionParams) (*models.TaxRequest, error)
}

type statusNotifier interface {
	StatusChanged(ctx context.Context, req *models.TaxRequest, entry models.StatusHistoryEntry)
}

// TransitionInput describes a requested status change.
type TransitionInput struct {
	RecordID            string
	Status              string
	ActorID             string
	Comment             *string
	DescriptionOverride *string
	PaymentDate         *time.Time
}

// TransitionServiceParams groups the collaborators of TransitionService.
type TransitionServiceParams struct {
	Store           transitionStore
	Catalog         *catalog.Catalog
	Invalidator     *Invalidator
	Notifier        statusNotifier
	Metrics         *MetricsService
	ClausePlacement string
	Logger          *zap.Logger
}

// TransitionService moves requests between catalog statuses. Any status may
// follow any other, including itself, so staff can correct mistakes.
type TransitionService struct {
	store       transitionStore
	catalog     *catalog.Catalog
	invalidator *Invalidator
	notifier    statusNotifier
	metrics     *MetricsService
	placement   string
	logger      *zap.Logger
	now         func() time.Time
}

// NewTransitionService constructs the service.
func NewTransitionService(params TransitionServiceParams) *TransitionService {
	logger := params.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	cat := params.Catalog
	if cat == nil {
		cat = catalog.Default()
	}
	return &TransitionService{
		store:       params.Store,
		catalog:     cat,
		invalidator: params.Invalidator,
		notifier:    params.Notifier,
		metrics:     params.Metrics,
		placement:   params.ClausePlacement,
		logger:      logger,
		now:         time.Now,
	}
}

// EffectiveDescription resolves the description stored for a transition and
// the payment date to persist, if any.
func (s *TransitionService) EffectiveDescription(in TransitionInput) (string, *time.Time, error) {
	var paymentDate *time.Time
	if in.Status == s.catalog.PaymentScheduled() && in.PaymentDate != nil {
		date := *in.PaymentDate
		paymentDate = &date
	}

	description, err := s.catalog.Describe(in.Status, paymentDate)
	if err != nil {
		return "", nil, err
	}
	if in.DescriptionOverride != nil && strings.TrimSpace(*in.DescriptionOverride) != "" {
		description = s.catalog.DescribeAs(in.Status, strings.TrimSpace(*in.DescriptionOverride), paymentDate)
	}
	if in.Status == s.catalog.Approved() && s.placement == config.ClausePlacementPersisted {
		if clause := s.catalog.ApprovedClause(); clause != "" {
			description = description + " " + clause
		}
	}
	return description, paymentDate, nil
}

// ApplyTransition validates and commits a status change, then runs the best
// effort side effects. On failure the stored request is unchanged.
func (s *TransitionService) ApplyTransition(ctx context.Context, in TransitionInput) (*models.TaxRequest, error) {
	in.Status = strings.TrimSpace(in.Status)
	if strings.TrimSpace(in.RecordID) == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "request id is required")
	}
	if strings.TrimSpace(in.ActorID) == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "actor is required")
	}
	description, paymentDate, err := s.EffectiveDescription(in)
	if err != nil {
		return nil, err
	}

	entry := models.StatusHistoryEntry{
		Status:      in.Status,
		Description: description,
		Comment:     trimmedOrNil(in.Comment),
		Date:        s.now().UTC(),
		UpdatedBy:   in.ActorID,
	}

	start := time.Now()
	updated, err := s.store.ApplyTransition(ctx, repository.TransitionParams{
		ID:          in.RecordID,
		Status:      in.Status,
		Description: description,
		PaymentDate: paymentDate,
		Entry:       entry,
	})
	s.metrics.ObserveDBQuery("apply_transition", time.Since(start))
	if err != nil {
		if repository.IsNoRows(err) {
			return nil, appErrors.ErrNotFound
		}
		s.logger.Error("status transition failed", zap.String("request_id", in.RecordID), zap.Error(err))
		return nil, appErrors.Persistence(err, "failed to update request status")
	}

	s.invalidator.Invalidate(ctx, updated)
	if s.notifier != nil {
		s.notifier.StatusChanged(ctx, updated, entry)
	}
	s.metrics.RecordTransition(in.Status)
	s.logger.Info("request status updated",
		zap.String("request_id", updated.ID),
		zap.String("status", in.Status),
		zap.String("actor_id", in.ActorID),
	)
	return updated, nil
}

func trimmedOrNil(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
