package service

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/lib/pq"

	"github.com/noah-isme/taxfiling-tracker/internal/models"
	"github.com/noah-isme/taxfiling-tracker/internal/repository"
)

// memoryStore mimics the single-statement semantics of RequestRepository.
type memoryStore struct {
	mu         sync.Mutex
	records    map[string]models.TaxRequest
	createErrs []error
	failWith   error
	calls      map[string]int
}

func newMemoryStore(records ...models.TaxRequest) *memoryStore {
	s := &memoryStore{records: map[string]models.TaxRequest{}, calls: map[string]int{}}
	for _, r := range records {
		s.records[r.ID] = cloneRequest(r)
	}
	return s
}

func cloneRequest(r models.TaxRequest) models.TaxRequest {
	r.W2Files = append(pq.StringArray{}, r.W2Files...)
	r.StatusHistory = append(models.StatusHistory{}, r.StatusHistory...)
	r.AdminNotes = append(models.AdminNotes{}, r.AdminNotes...)
	return r
}

func (s *memoryStore) get(id string) (models.TaxRequest, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[id]
	return cloneRequest(r), ok
}

func (s *memoryStore) count(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[name]
}

func (s *memoryStore) enter(name string) error {
	s.calls[name]++
	return s.failWith
}

func (s *memoryStore) Create(ctx context.Context, req *models.TaxRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("Create"); err != nil {
		return err
	}
	if len(s.createErrs) > 0 {
		err := s.createErrs[0]
		s.createErrs = s.createErrs[1:]
		if err != nil {
			return err
		}
	}
	for _, existing := range s.records {
		if existing.ConfirmationNumber == req.ConfirmationNumber {
			return &pq.Error{Code: "23505", Constraint: repository.ConfirmationNumberConstraint}
		}
	}
	req.UpdatedAt = req.CreatedAt
	s.records[req.ID] = cloneRequest(*req)
	return nil
}

func (s *memoryStore) GetByID(ctx context.Context, id string) (*models.TaxRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("GetByID"); err != nil {
		return nil, err
	}
	r, ok := s.records[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	out := cloneRequest(r)
	return &out, nil
}

func (s *memoryStore) GetActive(ctx context.Context, id string) (*models.TaxRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("GetActive"); err != nil {
		return nil, err
	}
	r, ok := s.records[id]
	if !ok || r.IsDeleted {
		return nil, sql.ErrNoRows
	}
	out := cloneRequest(r)
	return &out, nil
}

func (s *memoryStore) mutateActive(name, id string, fn func(r *models.TaxRequest) bool) (*models.TaxRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(name); err != nil {
		return nil, err
	}
	r, ok := s.records[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	r = cloneRequest(r)
	if !fn(&r) {
		return nil, sql.ErrNoRows
	}
	r.UpdatedAt = time.Now().UTC()
	s.records[id] = r
	out := cloneRequest(r)
	return &out, nil
}

func (s *memoryStore) ApplyTransition(ctx context.Context, params repository.TransitionParams) (*models.TaxRequest, error) {
	return s.mutateActive("ApplyTransition", params.ID, func(r *models.TaxRequest) bool {
		if r.IsDeleted {
			return false
		}
		r.Status = params.Status
		r.StatusDescription = params.Description
		r.LastStatusUpdate = params.Entry.Date
		if params.PaymentDate != nil {
			r.PaymentDate = params.PaymentDate
		}
		r.StatusHistory = append(r.StatusHistory, params.Entry)
		return true
	})
}

func (s *memoryStore) AppendNote(ctx context.Context, id string, note models.AdminNote) (*models.TaxRequest, error) {
	return s.mutateActive("AppendNote", id, func(r *models.TaxRequest) bool {
		if r.IsDeleted {
			return false
		}
		r.AdminNotes = append(r.AdminNotes, note)
		return true
	})
}

func (s *memoryStore) SetDeleted(ctx context.Context, id string) (*models.TaxRequest, error) {
	return s.mutateActive("SetDeleted", id, func(r *models.TaxRequest) bool {
		r.IsDeleted = true
		return true
	})
}

func (s *memoryStore) Restore(ctx context.Context, id string) (*models.TaxRequest, error) {
	return s.mutateActive("Restore", id, func(r *models.TaxRequest) bool {
		if !r.IsDeleted {
			return false
		}
		r.IsDeleted = false
		return true
	})
}

func (s *memoryStore) AppendDocument(ctx context.Context, id, location string, max int) (*models.TaxRequest, error) {
	return s.mutateActive("AppendDocument", id, func(r *models.TaxRequest) bool {
		if r.IsDeleted || len(r.W2Files) >= max {
			return false
		}
		r.W2Files = append(r.W2Files, location)
		return true
	})
}

func (s *memoryStore) active() []models.TaxRequest {
	items := make([]models.TaxRequest, 0, len(s.records))
	for _, r := range s.records {
		if !r.IsDeleted {
			items = append(items, cloneRequest(r))
		}
	}
	return items
}

func (s *memoryStore) List(ctx context.Context, criteria repository.ListCriteria) ([]models.TaxRequest, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("List"); err != nil {
		return nil, 0, err
	}
	search := strings.ToLower(criteria.Search)
	matched := make([]models.TaxRequest, 0)
	for _, r := range s.active() {
		if criteria.Status != "" && r.Status != criteria.Status {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(r.FullName+" "+r.Email+" "+r.ConfirmationNumber), search) {
			continue
		}
		matched = append(matched, r)
	}
	sort.Slice(matched, func(i, j int) bool {
		if criteria.SortDesc {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].CreatedAt.Before(matched[j].CreatedAt)
	})
	total := len(matched)
	if criteria.Offset >= total {
		return []models.TaxRequest{}, total, nil
	}
	end := criteria.Offset + criteria.Limit
	if end > total {
		end = total
	}
	return matched[criteria.Offset:end], total, nil
}

func (s *memoryStore) ListByUser(ctx context.Context, userID string) ([]models.TaxRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("ListByUser"); err != nil {
		return nil, err
	}
	items := make([]models.TaxRequest, 0)
	for _, r := range s.active() {
		if r.UserID == userID {
			items = append(items, r)
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].CreatedAt.After(items[j].CreatedAt) })
	return items, nil
}

func (s *memoryStore) CountByStatus(ctx context.Context) ([]models.StatusCount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("CountByStatus"); err != nil {
		return nil, err
	}
	counts := map[string]int{}
	for _, r := range s.active() {
		counts[r.Status]++
	}
	rows := make([]models.StatusCount, 0, len(counts))
	for status, n := range counts {
		rows = append(rows, models.StatusCount{Status: status, Count: n})
	}
	return rows, nil
}

func (s *memoryStore) SumRevenue(ctx context.Context, statuses []string) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("SumRevenue"); err != nil {
		return 0, err
	}
	wanted := map[string]bool{}
	for _, st := range statuses {
		wanted[st] = true
	}
	var total float64
	for _, r := range s.active() {
		if wanted[r.Status] {
			total += r.Price
		}
	}
	return total, nil
}

// recordingCache records invalidated keys.
type recordingCache struct {
	mu   sync.Mutex
	keys []string
	err  error
}

func (c *recordingCache) Invalidate(ctx context.Context, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.keys = append(c.keys, keys...)
	return c.err
}

func (c *recordingCache) invalidated() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.keys...)
}

// recordingNotifier captures notifier calls.
type recordingNotifier struct {
	mu       sync.Mutex
	received []string
	changed  []models.StatusHistoryEntry
}

func (n *recordingNotifier) RequestReceived(ctx context.Context, req *models.TaxRequest) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.received = append(n.received, req.ID)
}

func (n *recordingNotifier) StatusChanged(ctx context.Context, req *models.TaxRequest, entry models.StatusHistoryEntry) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.changed = append(n.changed, entry)
}

var errStoreDown = errors.New("connection reset by peer")

func sampleRequest(id, userID, status string, created time.Time) models.TaxRequest {
	return models.TaxRequest{
		ID:                 id,
		UserID:             userID,
		SSN:                "123456789",
		FullName:           "Ana Pérez " + id,
		Email:              id + "@example.com",
		AccountNumber:      "000123456789",
		RoutingNumber:      "021000021",
		ServiceLevel:       models.ServiceLevelStandard,
		Price:              60,
		W2Files:            pq.StringArray{},
		Status:             status,
		StatusDescription:  "desc",
		LastStatusUpdate:   created,
		StatusHistory:      models.StatusHistory{{Status: status, Description: "desc", Date: created, UpdatedBy: userID}},
		AdminNotes:         models.AdminNotes{},
		ConfirmationNumber: strings.ToUpper(id) + "CONF",
		CreatedAt:          created,
	}
}
