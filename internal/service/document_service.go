package service

import (
	"context"
	"net/url"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/taxfiling-tracker/internal/models"
	"github.com/noah-isme/taxfiling-tracker/internal/repository"
	appErrors "github.com/noah-isme/taxfiling-tracker/pkg/errors"
	"github.com/noah-isme/taxfiling-tracker/pkg/storage"
)

type documentReader interface {
	Open(location string) (*os.File, error)
	KeyOf(location string) string
}

type documentLookup interface {
	GetActive(ctx context.Context, id string) (*models.TaxRequest, error)
}

// DocumentLink is a time limited download link.
type DocumentLink struct {
	URL       string
	ExpiresAt time.Time
}

// DocumentService issues signed links for attached documents and serves them.
type DocumentService struct {
	store        documentLookup
	documents    documentReader
	signer       *storage.SignedURLSigner
	downloadPath string
	logger       *zap.Logger
}

// NewDocumentService constructs the service. downloadPath is the public route
// that accepts the token query parameter.
func NewDocumentService(store documentLookup, documents documentReader, signer *storage.SignedURLSigner, downloadPath string, logger *zap.Logger) *DocumentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DocumentService{store: store, documents: documents, signer: signer, downloadPath: downloadPath, logger: logger}
}

// Link returns a signed link for the document at index on the request.
func (s *DocumentService) Link(ctx context.Context, recordID string, index int, viewer Viewer) (*DocumentLink, error) {
	req, err := s.load(ctx, recordID)
	if err != nil {
		return nil, err
	}
	if !viewer.Admin && req.UserID != viewer.UserID {
		return nil, appErrors.ErrNotFound
	}
	if index < 0 || index >= len(req.W2Files) {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "document not found")
	}
	token, expiresAt, err := s.signer.Generate(req.ID, req.W2Files[index])
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign document link")
	}
	return &DocumentLink{URL: s.downloadPath + "?token=" + url.QueryEscape(token), ExpiresAt: expiresAt}, nil
}

// Open validates a download token and opens the document it references. The
// document must still be attached to an active request.
func (s *DocumentService) Open(ctx context.Context, token string) (*os.File, string, error) {
	claims, err := s.signer.Parse(token)
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrForbidden.Code, appErrors.ErrForbidden.Status, "invalid or expired link")
	}
	req, err := s.load(ctx, claims.RecordID)
	if err != nil {
		return nil, "", err
	}
	attached := false
	for _, location := range req.W2Files {
		if location == claims.Location {
			attached = true
			break
		}
	}
	if !attached {
		return nil, "", appErrors.Clone(appErrors.ErrNotFound, "document not found")
	}
	file, err := s.documents.Open(claims.Location)
	if err != nil {
		s.logger.Warn("open document failed", zap.String("request_id", req.ID), zap.Error(err))
		return nil, "", appErrors.Clone(appErrors.ErrNotFound, "document not found")
	}
	return file, s.documents.KeyOf(claims.Location), nil
}

func (s *DocumentService) load(ctx context.Context, id string) (*models.TaxRequest, error) {
	req, err := s.store.GetActive(ctx, id)
	if err != nil {
		if repository.IsNoRows(err) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Persistence(err, "failed to load request")
	}
	return req, nil
}
