package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/taxdesk/taxdesk-api/internal/models"
	"github.com/taxdesk/taxdesk-api/internal/repository"
	appErrors "github.com/taxdesk/taxdesk-api/pkg/errors"
)

type mockCatalogStore struct {
	services  map[string]*models.Service
	packages  []*models.Package
	listCalls int
}

func (m *mockCatalogStore) ListServices(ctx context.Context, filter models.ServiceFilter) ([]models.Service, int, error) {
	m.listCalls++
	var list []models.Service
	for _, svc := range m.services {
		list = append(list, *svc)
	}
	return list, len(list), nil
}

func (m *mockCatalogStore) FindServiceByID(ctx context.Context, id string) (*models.Service, error) {
	if svc, ok := m.services[id]; ok {
		return svc, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockCatalogStore) CreateService(ctx context.Context, service *models.Service) error {
	if m.services == nil {
		m.services = map[string]*models.Service{}
	}
	m.services[service.ID] = service
	return nil
}

func (m *mockCatalogStore) UpdateService(ctx context.Context, service *models.Service) error {
	if _, ok := m.services[service.ID]; !ok {
		return sql.ErrNoRows
	}
	m.services[service.ID] = service
	return nil
}

func (m *mockCatalogStore) ListPackages(ctx context.Context, serviceID string) ([]models.Package, error) {
	var list []models.Package
	for _, pkg := range m.packages {
		if pkg.ServiceID == serviceID {
			list = append(list, *pkg)
		}
	}
	return list, nil
}

func (m *mockCatalogStore) FindPackage(ctx context.Context, serviceID, name string) (*models.Package, error) {
	for _, pkg := range m.packages {
		if pkg.ServiceID == serviceID && pkg.Name == name {
			return pkg, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *mockCatalogStore) CreatePackage(ctx context.Context, pkg *models.Package) error {
	m.packages = append(m.packages, pkg)
	return nil
}

func (m *mockCatalogStore) UpdatePackage(ctx context.Context, pkg *models.Package) error {
	return nil
}

type mockCatalogOrders struct {
	orders      map[string]*models.Order
	conflictIDs map[string]bool
}

func (m *mockCatalogOrders) ListOpenByPackage(ctx context.Context, serviceID, packageName string) ([]models.Order, error) {
	var list []models.Order
	for _, o := range m.orders {
		if o.ServiceID == serviceID && o.PackageName == packageName && !o.Status.Terminal() {
			list = append(list, *o)
		}
	}
	return list, nil
}

func (m *mockCatalogOrders) UpdateDueDate(ctx context.Context, orderID string, dueDate time.Time, expectedVersion int) error {
	if m.conflictIDs[orderID] {
		return repository.ErrVersionConflict
	}
	o, ok := m.orders[orderID]
	if !ok {
		return sql.ErrNoRows
	}
	o.DueDate = dueDate
	o.Version++
	return nil
}

func (m *mockCatalogOrders) RenamePackage(ctx context.Context, serviceID, oldName, newName string) error {
	for _, o := range m.orders {
		if o.ServiceID == serviceID && o.PackageName == oldName {
			o.PackageName = newName
		}
	}
	return nil
}

type mockCatalogCache struct {
	entries map[string][]byte
	sets    int
	deletes int
}

func (m *mockCatalogCache) Get(ctx context.Context, key string, dest interface{}) error {
	payload, ok := m.entries[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(payload, dest)
}

func (m *mockCatalogCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if m.entries == nil {
		m.entries = map[string][]byte{}
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.entries[key] = payload
	m.sets++
	return nil
}

func (m *mockCatalogCache) DeleteByPattern(ctx context.Context, pattern string) error {
	m.entries = map[string][]byte{}
	m.deletes++
	return nil
}

type mockCatalogIDs struct{ seq int }

func (m *mockCatalogIDs) NextServiceID(ctx context.Context) (string, error) {
	m.seq++
	return FormatID("SER", int64(m.seq)), nil
}

type catalogFixture struct {
	svc    *CatalogService
	store  *mockCatalogStore
	orders *mockCatalogOrders
	cache  *mockCatalogCache
}

func newCatalogFixture() *catalogFixture {
	f := &catalogFixture{
		store: &mockCatalogStore{
			services: map[string]*models.Service{
				"SER00001": {ID: "SER00001", Name: "GST Filing", GSTRate: 18, Active: true},
			},
		},
		orders: &mockCatalogOrders{orders: map[string]*models.Order{}, conflictIDs: map[string]bool{}},
		cache:  &mockCatalogCache{},
	}
	f.store.packages = append(f.store.packages, &models.Package{
		ID: "pkg-1", ServiceID: "SER00001", Name: "Basic", ActualPrice: 1500, DiscountedPrice: 999, ProcessingDays: 10,
	})
	f.svc = NewCatalogService(f.store, f.orders, f.cache, &mockCatalogIDs{}, time.Minute, zap.NewNop())
	return f
}

func (f *catalogFixture) seedOpenOrder(id string, purchasedAt time.Time, processingDays int) *models.Order {
	order := &models.Order{
		ID:          id,
		CustomerID:  "CUS00001",
		ServiceID:   "SER00001",
		PackageName: "Basic",
		Status:      models.OrderStatusInProcess,
		PurchasedAt: purchasedAt,
		DueDate:     ComputeDueDate(purchasedAt, processingDays),
		Version:     1,
	}
	f.orders.orders[id] = order
	return order
}

func TestSweepRecomputesOpenOrders(t *testing.T) {
	f := newCatalogFixture()
	base := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)
	f.seedOpenOrder("ORD00001", base, 10)
	f.seedOpenOrder("ORD00002", base.AddDate(0, 0, 3), 10)

	results := f.svc.SweepDueDates(context.Background(), "SER00001", "Basic", 15, 0)
	require.Len(t, results, 2)
	for _, result := range results {
		assert.Nil(t, result.Error)
		assert.False(t, result.Skipped)
	}
	assert.Equal(t, base.AddDate(0, 0, 15), f.orders.orders["ORD00001"].DueDate)
	assert.Equal(t, base.AddDate(0, 0, 18), f.orders.orders["ORD00002"].DueDate)
}

func TestSweepAppliesExtensionGrace(t *testing.T) {
	f := newCatalogFixture()
	base := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)
	f.seedOpenOrder("ORD00001", base, 10)

	results := f.svc.SweepDueDates(context.Background(), "SER00001", "Basic", 10, 5)
	require.Len(t, results, 1)
	assert.Nil(t, results[0].Error)
	assert.False(t, results[0].Skipped)
	assert.Equal(t, base.AddDate(0, 0, 15), f.orders.orders["ORD00001"].DueDate)
}

func TestSweepSkipsClosedOrders(t *testing.T) {
	f := newCatalogFixture()
	base := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)
	f.seedOpenOrder("ORD00001", base, 10)
	closed := f.seedOpenOrder("ORD00002", base, 10)
	closed.Status = models.OrderStatusCompleted
	closedDue := closed.DueDate

	results := f.svc.SweepDueDates(context.Background(), "SER00001", "Basic", 15, 0)
	require.Len(t, results, 1)
	assert.Equal(t, "ORD00001", results[0].OrderID)
	assert.Equal(t, closedDue, f.orders.orders["ORD00002"].DueDate)
}

func TestSweepSkipsUnchangedDueDates(t *testing.T) {
	f := newCatalogFixture()
	base := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)
	f.seedOpenOrder("ORD00001", base, 10)

	results := f.svc.SweepDueDates(context.Background(), "SER00001", "Basic", 10, 0)
	require.Len(t, results, 1)
	assert.True(t, results[0].Skipped)
	assert.Equal(t, 1, f.orders.orders["ORD00001"].Version)
}

func TestSweepReportsConflictAndContinues(t *testing.T) {
	f := newCatalogFixture()
	base := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)
	f.seedOpenOrder("ORD00001", base, 10)
	f.seedOpenOrder("ORD00002", base, 10)
	f.orders.conflictIDs["ORD00001"] = true

	results := f.svc.SweepDueDates(context.Background(), "SER00001", "Basic", 15, 0)
	require.Len(t, results, 2)

	byID := map[string]models.SweepResult{}
	for _, r := range results {
		byID[r.OrderID] = r
	}
	require.NotNil(t, byID["ORD00001"].Error)
	assert.Equal(t, "CONFLICT", byID["ORD00001"].Error.Code)
	assert.Nil(t, byID["ORD00002"].Error)
	assert.Equal(t, base.AddDate(0, 0, 15), f.orders.orders["ORD00002"].DueDate)
}

func TestUpdatePackageSweepsOnlyOnTurnaroundChange(t *testing.T) {
	f := newCatalogFixture()
	base := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)
	f.seedOpenOrder("ORD00001", base, 10)

	// Price-only change leaves due dates alone.
	_, sweep, err := f.svc.UpdatePackage(context.Background(), "SER00001", "Basic", PackageRequest{
		Name: "Basic", ActualPrice: 1500, DiscountedPrice: 899, ProcessingDays: 10,
	})
	require.NoError(t, err)
	assert.Empty(t, sweep)

	_, sweep, err = f.svc.UpdatePackage(context.Background(), "SER00001", "Basic", PackageRequest{
		Name: "Basic", ActualPrice: 1500, DiscountedPrice: 899, ProcessingDays: 20,
	})
	require.NoError(t, err)
	require.Len(t, sweep, 1)
	assert.Equal(t, base.AddDate(0, 0, 20), sweep[0].NewDueDate)
}

func TestUpdatePackageRenameStillSweepsOpenOrders(t *testing.T) {
	f := newCatalogFixture()
	base := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	f.seedOpenOrder("ORD00001", base, 10)

	_, sweep, err := f.svc.UpdatePackage(context.Background(), "SER00001", "Basic", PackageRequest{
		Name: "Basic Plus", ActualPrice: 1500, DiscountedPrice: 999, ProcessingDays: 15, ExtensionDays: 2,
	})
	require.NoError(t, err)
	require.Len(t, sweep, 1)
	assert.Nil(t, sweep[0].Error)
	assert.Equal(t, base.AddDate(0, 0, 17), sweep[0].NewDueDate)

	// The rename followed the order, so a later sweep still finds it.
	order := f.orders.orders["ORD00001"]
	assert.Equal(t, "Basic Plus", order.PackageName)
	assert.Equal(t, base.AddDate(0, 0, 17), order.DueDate)
}

func TestCreateServiceDefaultsGSTRate(t *testing.T) {
	f := newCatalogFixture()

	detail, err := f.svc.CreateService(context.Background(), CreateServiceRequest{
		Category: "Tax", Name: "ITR Filing",
	}, []PackageRequest{{Name: "Standard", ActualPrice: 2000, DiscountedPrice: 1500, ProcessingDays: 7}})
	require.NoError(t, err)
	assert.Equal(t, models.DefaultGSTRate, detail.GSTRate)
	assert.True(t, detail.Active)
	require.Len(t, detail.Packages, 1)
	assert.Equal(t, 1, f.cache.deletes)
}

func TestListServicesUsesCache(t *testing.T) {
	f := newCatalogFixture()
	filter := models.ServiceFilter{Page: 1, PageSize: 20}

	_, total, err := f.svc.ListServices(context.Background(), filter)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, 1, f.store.listCalls)

	_, _, err = f.svc.ListServices(context.Background(), filter)
	require.NoError(t, err)
	assert.Equal(t, 1, f.store.listCalls, "second listing should be served from cache")
	assert.Equal(t, 1, f.cache.sets)
}

func TestUpdatePackageUnknownPackage(t *testing.T) {
	f := newCatalogFixture()
	_, _, err := f.svc.UpdatePackage(context.Background(), "SER00001", "Platinum", PackageRequest{Name: "Platinum"})
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrNotFound))
}
