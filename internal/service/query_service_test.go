package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/taxfiling-tracker/internal/catalog"
	"github.com/noah-isme/taxfiling-tracker/internal/models"
	"github.com/noah-isme/taxfiling-tracker/internal/repository"
	appErrors "github.com/noah-isme/taxfiling-tracker/pkg/errors"
)

func newQueryService(store *memoryStore, cache *CacheService) *QueryService {
	return NewQueryService(QueryServiceParams{
		Store:    store,
		Catalog:  catalog.Default(),
		Cache:    cache,
		CacheTTL: time.Minute,
		Metrics:  NewMetricsService(),
	})
}

func seedStore(t *testing.T) *memoryStore {
	t.Helper()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	records := make([]models.TaxRequest, 0, 10)
	for i := 0; i < 3; i++ {
		records = append(records, sampleRequest(fmt.Sprintf("rej-%d", i), "user-1", catalog.StatusRejected, base.Add(time.Duration(i)*time.Hour)))
	}
	others := []string{
		catalog.StatusInReview, catalog.StatusInReview, catalog.StatusWithIRS, catalog.StatusApproved,
		catalog.StatusCompleted, catalog.StatusPaymentReceived, catalog.StatusPaymentScheduled,
	}
	for i, status := range others {
		records = append(records, sampleRequest(fmt.Sprintf("oth-%d", i), "user-2", status, base.Add(time.Duration(10+i)*time.Hour)))
	}
	deleted := sampleRequest("gone", "user-1", catalog.StatusRejected, base)
	deleted.IsDeleted = true
	records = append(records, deleted)
	return newMemoryStore(records...)
}

func TestListRequestsFiltersByStatusWithZeroFilledCounts(t *testing.T) {
	svc := newQueryService(seedStore(t), nil)

	result, err := svc.ListRequests(context.Background(), models.ListFilter{Status: catalog.StatusRejected})
	require.NoError(t, err)
	assert.Equal(t, 3, result.Total)
	assert.Len(t, result.Items, 3)
	assert.Equal(t, 1, result.PageCount)
	for _, item := range result.Items {
		assert.Equal(t, catalog.StatusRejected, item.Status)
		assert.Equal(t, "*****6789", item.SSN)
	}

	assert.Len(t, result.StatusCounts, len(catalog.Default().Values()))
	assert.Equal(t, 3, result.StatusCounts[catalog.StatusRejected])
	assert.Equal(t, 2, result.StatusCounts[catalog.StatusInReview])
	assert.Equal(t, 0, result.StatusCounts[catalog.StatusCancelled])
	assert.Equal(t, catalog.Default().Values(), result.Statuses)
}

func TestListRequestsPagingAndSort(t *testing.T) {
	svc := newQueryService(seedStore(t), nil)

	first, err := svc.ListRequests(context.Background(), models.ListFilter{Page: 1, PageSize: 4})
	require.NoError(t, err)
	assert.Equal(t, 10, first.Total)
	assert.Equal(t, 3, first.PageCount)
	require.Len(t, first.Items, 4)
	assert.Equal(t, "oth-6", first.Items[0].ID)

	last, err := svc.ListRequests(context.Background(), models.ListFilter{Page: 3, PageSize: 4, SortDirection: "ASC"})
	require.NoError(t, err)
	require.Len(t, last.Items, 2)
	assert.Equal(t, "oth-6", last.Items[1].ID)

	beyond, err := svc.ListRequests(context.Background(), models.ListFilter{Page: 9, PageSize: 4})
	require.NoError(t, err)
	assert.Empty(t, beyond.Items)
	assert.Equal(t, 10, beyond.Total)
}

func TestListRequestsSearch(t *testing.T) {
	svc := newQueryService(seedStore(t), nil)

	result, err := svc.ListRequests(context.Background(), models.ListFilter{Search: "oth-3@example"})
	require.NoError(t, err)
	require.Len(t, result.Items, 1)
	assert.Equal(t, "oth-3", result.Items[0].ID)
}

func TestListRequestsInvalidStatus(t *testing.T) {
	store := seedStore(t)
	svc := newQueryService(store, nil)

	_, err := svc.ListRequests(context.Background(), models.ListFilter{Status: "Archivada"})
	assert.ErrorIs(t, err, appErrors.ErrInvalidStatus)
	assert.Equal(t, 0, store.count("List"))
}

func TestNormalizeFilter(t *testing.T) {
	got := NormalizeFilter(models.ListFilter{Page: -1, PageSize: 1000, SortDirection: "sideways", Status: "  Aprobada "})
	assert.Equal(t, models.ListFilter{Page: 1, PageSize: 100, SortDirection: models.SortDesc, Status: "Aprobada"}, got)

	got = NormalizeFilter(models.ListFilter{})
	assert.Equal(t, 10, got.PageSize)
}

func TestGetStatistics(t *testing.T) {
	svc := newQueryService(seedStore(t), nil)

	stats, err := svc.GetStatistics(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 10, stats.TotalRequests)
	assert.Equal(t, 3, stats.RejectedRequests)
	assert.Equal(t, 0, stats.CancelledRequests)
	assert.Equal(t, 2, stats.CompletedRequests)
	// 2 in review, 1 with IRS, 1 approved, 1 payment scheduled
	assert.Equal(t, 5, stats.InProgressRequests)
	assert.Equal(t, float64(180), stats.TotalRevenue)
}

func TestGetRequestReadThroughCache(t *testing.T) {
	store := seedStore(t)
	memory := repository.NewMemoryCacheRepository(16, time.Minute)
	cache := NewCacheService(memory, nil, time.Minute, nil, true)
	svc := newQueryService(store, cache)

	first, err := svc.GetRequest(context.Background(), "rej-0", Viewer{UserID: "user-1"})
	require.NoError(t, err)
	assert.Equal(t, "*****6789", first.SSN)

	second, err := svc.GetRequest(context.Background(), "rej-0", Viewer{UserID: "user-1"})
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "*****6789", second.SSN)
	assert.Equal(t, 1, store.count("GetActive"))

	require.NoError(t, cache.Invalidate(context.Background(), RecordKey("rej-0")))
	_, err = svc.GetRequest(context.Background(), "rej-0", Viewer{UserID: "user-1"})
	require.NoError(t, err)
	assert.Equal(t, 2, store.count("GetActive"))
}

func TestGetRequestOwnership(t *testing.T) {
	svc := newQueryService(seedStore(t), nil)

	_, err := svc.GetRequest(context.Background(), "rej-0", Viewer{UserID: "user-2"})
	assert.ErrorIs(t, err, appErrors.ErrNotFound)

	req, err := svc.GetRequest(context.Background(), "rej-0", Viewer{UserID: "admin-1", Admin: true})
	require.NoError(t, err)
	assert.Equal(t, "rej-0", req.ID)

	_, err = svc.GetRequest(context.Background(), "gone", Viewer{UserID: "user-1"})
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
}

func TestListByUserCachedAndMasked(t *testing.T) {
	store := seedStore(t)
	cache := NewCacheService(repository.NewMemoryCacheRepository(16, time.Minute), nil, time.Minute, nil, true)
	svc := newQueryService(store, cache)

	items, err := svc.ListByUser(context.Background(), "user-1")
	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.Equal(t, "rej-2", items[0].ID)
	assert.Equal(t, "********6789", items[0].AccountNumber)

	_, err = svc.ListByUser(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, 1, store.count("ListByUser"))
}

func TestQueryServicePersistenceFailure(t *testing.T) {
	store := seedStore(t)
	store.failWith = errStoreDown
	svc := newQueryService(store, nil)

	_, err := svc.ListRequests(context.Background(), models.ListFilter{})
	assert.ErrorIs(t, err, appErrors.ErrPersistence)
	_, err = svc.GetStatistics(context.Background())
	assert.ErrorIs(t, err, appErrors.ErrPersistence)
}
