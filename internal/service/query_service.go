package service

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/taxfiling-tracker/internal/catalog"
	"github.com/noah-isme/taxfiling-tracker/internal/models"
	"github.com/noah-isme/taxfiling-tracker/internal/repository"
	appErrors "github.com/noah-isme/taxfiling-tracker/pkg/errors"
)

const (
	defaultPageSize = 10
	maxPageSize     = 100
)

type queryStore interface {
	GetActive(ctx context.Context, id string) (*models.TaxRequest, error)
	List(ctx context.Context, criteria repository.ListCriteria) ([]models.TaxRequest, int, error)
	ListByUser(ctx context.Context, userID string) ([]models.TaxRequest, error)
	CountByStatus(ctx context.Context) ([]models.StatusCount, error)
	SumRevenue(ctx context.Context, statuses []string) (float64, error)
}

// Viewer identifies who is reading a request.
type Viewer struct {
	UserID string
	Admin  bool
}

// QueryService serves listings, statistics and cached per-user reads.
type QueryService struct {
	store   queryStore
	catalog *catalog.Catalog
	cache   *CacheService
	ttl     time.Duration
	metrics *MetricsService
	logger  *zap.Logger
}

// QueryServiceParams groups the collaborators of QueryService.
type QueryServiceParams struct {
	Store    queryStore
	Catalog  *catalog.Catalog
	Cache    *CacheService
	CacheTTL time.Duration
	Metrics  *MetricsService
	Logger   *zap.Logger
}

// NewQueryService constructs the service.
func NewQueryService(params QueryServiceParams) *QueryService {
	logger := params.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	cat := params.Catalog
	if cat == nil {
		cat = catalog.Default()
	}
	return &QueryService{
		store:   params.Store,
		catalog: cat,
		cache:   params.Cache,
		ttl:     params.CacheTTL,
		metrics: params.Metrics,
		logger:  logger,
	}
}

// NormalizeFilter applies paging and sort defaults.
func NormalizeFilter(filter models.ListFilter) models.ListFilter {
	filter.Status = strings.TrimSpace(filter.Status)
	filter.Search = strings.TrimSpace(filter.Search)
	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 {
		filter.PageSize = defaultPageSize
	}
	if filter.PageSize > maxPageSize {
		filter.PageSize = maxPageSize
	}
	switch strings.ToLower(filter.SortDirection) {
	case models.SortAsc:
		filter.SortDirection = models.SortAsc
	default:
		filter.SortDirection = models.SortDesc
	}
	return filter
}

// ListRequests returns one page of active requests with per-status counts
// over all active requests.
func (s *QueryService) ListRequests(ctx context.Context, filter models.ListFilter) (*models.ListResult, error) {
	filter = NormalizeFilter(filter)
	if filter.Status != "" && !s.catalog.Contains(filter.Status) {
		return nil, catalog.InvalidStatus(filter.Status)
	}

	start := time.Now()
	items, total, err := s.store.List(ctx, repository.ListCriteria{
		Status:   filter.Status,
		Search:   filter.Search,
		Limit:    filter.PageSize,
		Offset:   (filter.Page - 1) * filter.PageSize,
		SortDesc: filter.SortDirection == models.SortDesc,
	})
	s.metrics.ObserveDBQuery("list_requests", time.Since(start))
	if err != nil {
		return nil, appErrors.Persistence(err, "failed to list requests")
	}

	counts, _, err := s.statusCounts(ctx)
	if err != nil {
		return nil, err
	}

	masked := make([]models.TaxRequest, len(items))
	for i := range items {
		masked[i] = items[i].Masked()
	}

	return &models.ListResult{
		Items:        masked,
		Total:        total,
		Page:         filter.Page,
		PageCount:    pageCount(total, filter.PageSize),
		StatusCounts: counts,
		Statuses:     s.catalog.Values(),
	}, nil
}

// GetStatistics aggregates active requests by catalog role.
func (s *QueryService) GetStatistics(ctx context.Context) (*models.Statistics, error) {
	counts, total, err := s.statusCounts(ctx)
	if err != nil {
		return nil, err
	}

	stats := &models.Statistics{
		TotalRequests:     total,
		StatusCounts:      counts,
		CancelledRequests: counts[s.catalog.Cancelled()],
		RejectedRequests:  counts[s.catalog.Rejected()],
	}
	for _, step := range s.catalog.Steps() {
		if s.catalog.IsCompleted(step.Value) {
			stats.CompletedRequests += counts[step.Value]
		}
		if step.CountsAsInProgress {
			stats.InProgressRequests += counts[step.Value]
		}
	}

	start := time.Now()
	revenue, err := s.store.SumRevenue(ctx, s.catalog.RevenueStatuses())
	s.metrics.ObserveDBQuery("sum_revenue", time.Since(start))
	if err != nil {
		return nil, appErrors.Persistence(err, "failed to compute revenue")
	}
	stats.TotalRevenue = revenue
	return stats, nil
}

// statusCounts returns counts for every catalog status plus the grand total.
func (s *QueryService) statusCounts(ctx context.Context) (map[string]int, int, error) {
	start := time.Now()
	rows, err := s.store.CountByStatus(ctx)
	s.metrics.ObserveDBQuery("count_by_status", time.Since(start))
	if err != nil {
		return nil, 0, appErrors.Persistence(err, "failed to count requests")
	}
	counts := make(map[string]int, len(rows))
	for _, value := range s.catalog.Values() {
		counts[value] = 0
	}
	total := 0
	for _, row := range rows {
		counts[row.Status] += row.Count
		total += row.Count
	}
	return counts, total, nil
}

// GetRequest returns an active request. Non-admin viewers only see their own
// requests; others get NotFound.
func (s *QueryService) GetRequest(ctx context.Context, id string, viewer Viewer) (*models.TaxRequest, error) {
	key := RecordKey(id)
	var req models.TaxRequest
	hit, _ := s.cache.Get(ctx, key, &req)
	if !hit {
		start := time.Now()
		found, err := s.store.GetActive(ctx, id)
		s.metrics.ObserveDBQuery("get_request", time.Since(start))
		if err != nil {
			if repository.IsNoRows(err) {
				return nil, appErrors.ErrNotFound
			}
			return nil, appErrors.Persistence(err, "failed to load request")
		}
		req = *found
		_ = s.cache.Set(ctx, key, req, s.ttl)
	}

	if !viewer.Admin && req.UserID != viewer.UserID {
		return nil, appErrors.ErrNotFound
	}
	masked := req.Masked()
	return &masked, nil
}

// ListByUser returns the active requests owned by userID, newest first.
func (s *QueryService) ListByUser(ctx context.Context, userID string) ([]models.TaxRequest, error) {
	key := UserRecordsKey(userID)
	var items []models.TaxRequest
	hit, _ := s.cache.Get(ctx, key, &items)
	if !hit {
		start := time.Now()
		found, err := s.store.ListByUser(ctx, userID)
		s.metrics.ObserveDBQuery("list_user_requests", time.Since(start))
		if err != nil {
			return nil, appErrors.Persistence(err, "failed to list requests")
		}
		items = found
		_ = s.cache.Set(ctx, key, items, s.ttl)
	}

	masked := make([]models.TaxRequest, len(items))
	for i := range items {
		masked[i] = items[i].Masked()
	}
	return masked, nil
}

func pageCount(total, pageSize int) int {
	if total <= 0 || pageSize <= 0 {
		return 0
	}
	return (total + pageSize - 1) / pageSize
}
