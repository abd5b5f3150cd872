package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/noah-isme/taxfiling-tracker/internal/catalog"
	"github.com/noah-isme/taxfiling-tracker/internal/dto"
	"github.com/noah-isme/taxfiling-tracker/internal/models"
	"github.com/noah-isme/taxfiling-tracker/internal/repository"
	appErrors "github.com/noah-isme/taxfiling-tracker/pkg/errors"
	"github.com/noah-isme/taxfiling-tracker/pkg/storage"
)

const (
	maxConfirmationAttempts = 5
	maxDocumentKeyAttempts  = 10
)

type intakeStore interface {
	Create(ctx context.Context, req *models.TaxRequest) error
	GetActive(ctx context.Context, id string) (*models.TaxRequest, error)
	AppendDocument(ctx context.Context, id, location string, max int) (*models.TaxRequest, error)
}

type documentWriter interface {
	Save(key string, r io.Reader) (string, error)
	Delete(location string) error
}

type intakeNotifier interface {
	RequestReceived(ctx context.Context, req *models.TaxRequest)
}

type confirmationSource interface {
	Next() (string, error)
}

// Upload is a document submitted for a request.
type Upload struct {
	Filename string
	Size     int64
	Content  io.Reader
}

// IntakeServiceParams groups the collaborators of IntakeService.
type IntakeServiceParams struct {
	Store         intakeStore
	Documents     documentWriter
	Catalog       *catalog.Catalog
	Invalidator   *Invalidator
	Notifier      intakeNotifier
	Confirmations confirmationSource
	Validator     *validator.Validate
	MaxFileSize   int64
	Metrics       *MetricsService
	Logger        *zap.Logger
}

// IntakeService creates requests and attaches their supporting documents.
type IntakeService struct {
	store         intakeStore
	documents     documentWriter
	catalog       *catalog.Catalog
	invalidator   *Invalidator
	notifier      intakeNotifier
	confirmations confirmationSource
	validator     *validator.Validate
	maxFileSize   int64
	metrics       *MetricsService
	logger        *zap.Logger
	now           func() time.Time
}

// NewIntakeService constructs the service.
func NewIntakeService(params IntakeServiceParams) *IntakeService {
	s := &IntakeService{
		store:         params.Store,
		documents:     params.Documents,
		catalog:       params.Catalog,
		invalidator:   params.Invalidator,
		notifier:      params.Notifier,
		confirmations: params.Confirmations,
		validator:     params.Validator,
		maxFileSize:   params.MaxFileSize,
		metrics:       params.Metrics,
		logger:        params.Logger,
		now:           time.Now,
	}
	if s.catalog == nil {
		s.catalog = catalog.Default()
	}
	if s.confirmations == nil {
		s.confirmations = NewConfirmationGenerator(nil)
	}
	if s.validator == nil {
		s.validator = validator.New()
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	return s
}

// Create validates the payload and stores a new request owned by actorID in
// the catalog's initial status.
func (s *IntakeService) Create(ctx context.Context, payload dto.CreateTaxRequest, actorID string) (*models.TaxRequest, error) {
	if strings.TrimSpace(actorID) == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "actor is required")
	}
	if err := s.validator.Struct(payload); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid request payload")
	}
	if payload.ServiceLevel.Price() != payload.Price {
		return nil, appErrors.Clone(appErrors.ErrValidation,
			fmt.Sprintf("price %.0f does not match service level %s", payload.Price, payload.ServiceLevel))
	}
	birthDate, err := time.Parse("2006-01-02", payload.BirthDate)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid birth date")
	}

	status := s.catalog.Initial()
	description, err := s.catalog.Describe(status, nil)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	req := &models.TaxRequest{
		UserID:            actorID,
		SSN:               strings.TrimSpace(payload.SSN),
		BirthDate:         birthDate,
		FullName:          strings.TrimSpace(payload.FullName),
		Email:             strings.ToLower(strings.TrimSpace(payload.Email)),
		Phone:             strings.TrimSpace(payload.Phone),
		AccountNumber:     payload.AccountNumber,
		BankName:          strings.TrimSpace(payload.BankName),
		AccountType:       strings.TrimSpace(payload.AccountType),
		RoutingNumber:     payload.RoutingNumber,
		Address:           strings.TrimSpace(payload.Address),
		RequestType:       strings.TrimSpace(payload.RequestType),
		PaymentMethod:     strings.TrimSpace(payload.PaymentMethod),
		ServiceLevel:      payload.ServiceLevel,
		Price:             payload.Price,
		W2Files:           pq.StringArray{},
		Status:            status,
		StatusDescription: description,
		LastStatusUpdate:  now,
		StatusHistory: models.StatusHistory{{
			Status:      status,
			Description: description,
			Date:        now,
			UpdatedBy:   actorID,
		}},
		AdminNotes: models.AdminNotes{},
		CreatedAt:  now,
	}

	if err := s.insertWithConfirmation(ctx, req); err != nil {
		return nil, err
	}

	s.invalidator.InvalidateKeys(ctx, UserRecordsKey(actorID))
	if s.notifier != nil {
		s.notifier.RequestReceived(ctx, req)
	}
	s.logger.Info("request created",
		zap.String("request_id", req.ID),
		zap.String("confirmation_number", req.ConfirmationNumber),
		zap.String("actor_id", actorID),
	)
	masked := req.Masked()
	return &masked, nil
}

// insertWithConfirmation retries with a fresh confirmation number when the
// unique index rejects a collision.
func (s *IntakeService) insertWithConfirmation(ctx context.Context, req *models.TaxRequest) error {
	var lastErr error
	for attempt := 1; attempt <= maxConfirmationAttempts; attempt++ {
		code, err := s.confirmations.Next()
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to generate confirmation number")
		}
		req.ID = uuid.NewString()
		req.ConfirmationNumber = code

		start := time.Now()
		err = s.store.Create(ctx, req)
		s.metrics.ObserveDBQuery("create_request", time.Since(start))
		if err == nil {
			return nil
		}
		if !repository.IsUniqueViolation(err, repository.ConfirmationNumberConstraint) {
			s.logger.Error("create request failed", zap.Error(err))
			return appErrors.Persistence(err, "failed to create request")
		}
		s.logger.Warn("confirmation number collision", zap.Int("attempt", attempt))
		lastErr = err
	}
	return appErrors.Persistence(lastErr, "could not allocate a confirmation number")
}

// AttachDocument stores an upload and appends its locator. A request holds
// at most models.MaxDocuments files.
func (s *IntakeService) AttachDocument(ctx context.Context, recordID string, viewer Viewer, upload Upload) (*models.TaxRequest, error) {
	if s.documents == nil {
		return nil, appErrors.Clone(appErrors.ErrInternal, "document storage is not configured")
	}
	req, err := s.store.GetActive(ctx, recordID)
	if err != nil {
		if repository.IsNoRows(err) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Persistence(err, "failed to load request")
	}
	if !viewer.Admin && req.UserID != viewer.UserID {
		return nil, appErrors.ErrNotFound
	}
	if len(req.W2Files) >= models.MaxDocuments {
		return nil, documentLimitError()
	}
	if s.maxFileSize > 0 && upload.Size > s.maxFileSize {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("document exceeds %d bytes", s.maxFileSize))
	}
	filename := storage.CleanKey(upload.Filename)
	if filename == "" || upload.Content == nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "document file is required")
	}

	location, err := s.saveDocument(req.ConfirmationNumber, filename, upload.Content)
	if err != nil {
		if errors.Is(err, storage.ErrTooLarge) {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("document exceeds %d bytes", s.maxFileSize))
		}
		s.logger.Error("store document failed", zap.String("request_id", recordID), zap.Error(err))
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store document")
	}

	updated, err := s.store.AppendDocument(ctx, recordID, location, models.MaxDocuments)
	if err != nil {
		if rmErr := s.documents.Delete(location); rmErr != nil {
			s.logger.Warn("orphaned document cleanup failed", zap.String("location", location), zap.Error(rmErr))
		}
		if repository.IsNoRows(err) {
			return nil, documentLimitError()
		}
		return nil, appErrors.Persistence(err, "failed to attach document")
	}

	s.invalidator.Invalidate(ctx, updated)
	masked := updated.Masked()
	return &masked, nil
}

// saveDocument stores content under {confirmation}-{filename}, numbering the
// name when an earlier upload already holds it. The returned location always
// belongs to this call.
func (s *IntakeService) saveDocument(confirmation, filename string, content io.Reader) (string, error) {
	ext := path.Ext(filename)
	base := strings.TrimSuffix(filename, ext)
	key := confirmation + "-" + filename
	for n := 2; n <= maxDocumentKeyAttempts; n++ {
		location, err := s.documents.Save(key, content)
		if !errors.Is(err, storage.ErrExists) {
			return location, err
		}
		key = fmt.Sprintf("%s-%s-%d%s", confirmation, base, n, ext)
	}
	return s.documents.Save(key, content)
}

func documentLimitError() error {
	return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("a request can hold at most %d documents", models.MaxDocuments))
}
