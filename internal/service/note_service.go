package service

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/taxfiling-tracker/internal/models"
	"github.com/noah-isme/taxfiling-tracker/internal/repository"
	appErrors "github.com/noah-isme/taxfiling-tracker/pkg/errors"
)

type noteStore interface {
	AppendNote(ctx context.Context, id string, note models.AdminNote) (*models.TaxRequest, error)
}

// NoteService appends staff notes to requests.
type NoteService struct {
	store       noteStore
	invalidator *Invalidator
	metrics     *MetricsService
	logger      *zap.Logger
	now         func() time.Time
}

// NewNoteService constructs the service.
func NewNoteService(store noteStore, invalidator *Invalidator, metrics *MetricsService, logger *zap.Logger) *NoteService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NoteService{store: store, invalidator: invalidator, metrics: metrics, logger: logger, now: time.Now}
}

// AddNote appends note to an active request and returns only the new entry.
func (s *NoteService) AddNote(ctx context.Context, recordID, note, actorID string) (*models.AdminNote, error) {
	note = strings.TrimSpace(note)
	if note == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "note is required")
	}
	if strings.TrimSpace(actorID) == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "actor is required")
	}
	entry := models.AdminNote{Note: note, Date: s.now().UTC(), CreatedBy: actorID}

	start := time.Now()
	updated, err := s.store.AppendNote(ctx, recordID, entry)
	s.metrics.ObserveDBQuery("append_note", time.Since(start))
	if err != nil {
		if repository.IsNoRows(err) {
			return nil, appErrors.ErrNotFound
		}
		s.logger.Error("append note failed", zap.String("request_id", recordID), zap.Error(err))
		return nil, appErrors.Persistence(err, "failed to add note")
	}

	s.invalidator.Invalidate(ctx, updated)
	return &entry, nil
}
