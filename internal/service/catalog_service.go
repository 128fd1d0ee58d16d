package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/taxdesk/taxdesk-api/internal/models"
	"github.com/taxdesk/taxdesk-api/internal/repository"
	appErrors "github.com/taxdesk/taxdesk-api/pkg/errors"
)

type catalogStore interface {
	ListServices(ctx context.Context, filter models.ServiceFilter) ([]models.Service, int, error)
	FindServiceByID(ctx context.Context, id string) (*models.Service, error)
	CreateService(ctx context.Context, service *models.Service) error
	UpdateService(ctx context.Context, service *models.Service) error
	ListPackages(ctx context.Context, serviceID string) ([]models.Package, error)
	FindPackage(ctx context.Context, serviceID, name string) (*models.Package, error)
	CreatePackage(ctx context.Context, pkg *models.Package) error
	UpdatePackage(ctx context.Context, pkg *models.Package) error
}

type catalogOrderStore interface {
	ListOpenByPackage(ctx context.Context, serviceID, packageName string) ([]models.Order, error)
	UpdateDueDate(ctx context.Context, orderID string, dueDate time.Time, expectedVersion int) error
	RenamePackage(ctx context.Context, serviceID, oldName, newName string) error
}

type catalogCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	DeleteByPattern(ctx context.Context, pattern string) error
}

type catalogIDMinter interface {
	NextServiceID(ctx context.Context) (string, error)
}

const catalogCachePrefix = "catalog:"

// CatalogService manages the service catalog. Changing a package's
// turnaround triggers a sweep that recomputes the due date of every open
// order bound to that package; closed orders keep their history.
type CatalogService struct {
	catalog  catalogStore
	orders   catalogOrderStore
	cache    catalogCache
	ids      catalogIDMinter
	cacheTTL time.Duration
	logger   *zap.Logger
}

// NewCatalogService constructs the service.
func NewCatalogService(catalog catalogStore, orders catalogOrderStore, cache catalogCache, ids catalogIDMinter, cacheTTL time.Duration, logger *zap.Logger) *CatalogService {
	if cacheTTL <= 0 {
		cacheTTL = 5 * time.Minute
	}
	return &CatalogService{catalog: catalog, orders: orders, cache: cache, ids: ids, cacheTTL: cacheTTL, logger: logger}
}

// CreateServiceRequest carries a new catalog entry.
type CreateServiceRequest struct {
	Category          string   `json:"category" validate:"required"`
	Name              string   `json:"name" validate:"required,min=2"`
	Description       string   `json:"description"`
	GSTRate           *float64 `json:"gst_rate" validate:"omitempty,gte=0,lte=100"`
	RequiredDocuments []string `json:"required_documents"`
}

// PackageRequest carries one package tier. ExtensionDays is a one-shot
// grace period applied on top of the recomputed due date during the sweep;
// it is not stored on the package.
type PackageRequest struct {
	Name            string  `json:"name" validate:"required"`
	ActualPrice     float64 `json:"actual_price" validate:"gte=0"`
	DiscountedPrice float64 `json:"discounted_price" validate:"gte=0"`
	ProcessingDays  int     `json:"processing_days" validate:"gte=0"`
	ExtensionDays   int     `json:"extension_days" validate:"gte=0"`
}

// ListServices returns catalog services, cached per filter.
func (s *CatalogService) ListServices(ctx context.Context, filter models.ServiceFilter) ([]models.Service, int, error) {
	type cached struct {
		Services []models.Service `json:"services"`
		Total    int              `json:"total"`
	}
	key := fmt.Sprintf("%slist:%s:%v:%s:%d:%d", catalogCachePrefix,
		filter.Category, filter.Active, filter.Search, filter.Page, filter.PageSize)

	var hit cached
	if err := s.cache.Get(ctx, key, &hit); err == nil {
		return hit.Services, hit.Total, nil
	}

	services, total, err := s.catalog.ListServices(ctx, filter)
	if err != nil {
		return nil, 0, appErrors.FromError(err)
	}
	if err := s.cache.Set(ctx, key, cached{Services: services, Total: total}, s.cacheTTL); err != nil {
		s.logger.Warn("cache catalog list", zap.Error(err))
	}
	return services, total, nil
}

// GetServiceDetail returns one service with its packages.
func (s *CatalogService) GetServiceDetail(ctx context.Context, id string) (*models.ServiceDetail, error) {
	service, err := s.catalog.FindServiceByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "service not found")
		}
		return nil, appErrors.FromError(err)
	}
	packages, err := s.catalog.ListPackages(ctx, id)
	if err != nil {
		return nil, appErrors.FromError(err)
	}
	return &models.ServiceDetail{Service: *service, Packages: packages}, nil
}

// CreateService adds a catalog entry with its packages. A missing GST rate
// falls back to the default.
func (s *CatalogService) CreateService(ctx context.Context, req CreateServiceRequest, packages []PackageRequest) (*models.ServiceDetail, error) {
	id, err := s.ids.NextServiceID(ctx)
	if err != nil {
		return nil, err
	}

	gstRate := models.DefaultGSTRate
	if req.GSTRate != nil {
		gstRate = *req.GSTRate
	}
	service := &models.Service{
		ID:                id,
		Category:          strings.TrimSpace(req.Category),
		Name:              strings.TrimSpace(req.Name),
		Description:       strings.TrimSpace(req.Description),
		GSTRate:           gstRate,
		Active:            true,
		RequiredDocuments: req.RequiredDocuments,
	}
	if err := s.catalog.CreateService(ctx, service); err != nil {
		return nil, appErrors.FromError(err)
	}

	created := make([]models.Package, 0, len(packages))
	for _, p := range packages {
		pkg := &models.Package{
			ID:              uuid.NewString(),
			ServiceID:       id,
			Name:            strings.TrimSpace(p.Name),
			ActualPrice:     p.ActualPrice,
			DiscountedPrice: p.DiscountedPrice,
			ProcessingDays:  p.ProcessingDays,
		}
		if err := s.catalog.CreatePackage(ctx, pkg); err != nil {
			return nil, appErrors.FromError(err)
		}
		created = append(created, *pkg)
	}

	s.invalidate(ctx)
	return &models.ServiceDetail{Service: *service, Packages: created}, nil
}

// UpdateService rewrites a catalog entry's descriptive fields.
func (s *CatalogService) UpdateService(ctx context.Context, id string, req CreateServiceRequest, active *bool) (*models.Service, error) {
	service, err := s.catalog.FindServiceByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "service not found")
		}
		return nil, appErrors.FromError(err)
	}

	service.Category = strings.TrimSpace(req.Category)
	service.Name = strings.TrimSpace(req.Name)
	service.Description = strings.TrimSpace(req.Description)
	if req.GSTRate != nil {
		service.GSTRate = *req.GSTRate
	}
	if req.RequiredDocuments != nil {
		service.RequiredDocuments = req.RequiredDocuments
	}
	if active != nil {
		service.Active = *active
	}
	if err := s.catalog.UpdateService(ctx, service); err != nil {
		return nil, appErrors.FromError(err)
	}

	s.invalidate(ctx)
	return service, nil
}

// UpdatePackage rewrites one package tier. When the turnaround changes, the
// due date of every open order bound to the package is recomputed from its
// original purchase time.
func (s *CatalogService) UpdatePackage(ctx context.Context, serviceID, packageName string, req PackageRequest) (*models.Package, []models.SweepResult, error) {
	pkg, err := s.catalog.FindPackage(ctx, serviceID, packageName)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, appErrors.Clone(appErrors.ErrNotFound, "package not found")
		}
		return nil, nil, appErrors.FromError(err)
	}

	turnaroundChanged := ResolveProcessingDays(req.ProcessingDays) != ResolveProcessingDays(pkg.ProcessingDays)

	oldName := pkg.Name
	pkg.Name = strings.TrimSpace(req.Name)
	pkg.ActualPrice = req.ActualPrice
	pkg.DiscountedPrice = req.DiscountedPrice
	pkg.ProcessingDays = req.ProcessingDays
	if err := s.catalog.UpdatePackage(ctx, pkg); err != nil {
		return nil, nil, appErrors.FromError(err)
	}
	// Orders reference packages by name, so a rename must follow the orders
	// or the sweep below (and every later one) would miss them.
	if pkg.Name != oldName {
		if err := s.orders.RenamePackage(ctx, serviceID, oldName, pkg.Name); err != nil {
			return nil, nil, appErrors.FromError(err)
		}
	}
	s.invalidate(ctx)

	var sweep []models.SweepResult
	if turnaroundChanged || req.ExtensionDays > 0 {
		sweep = s.SweepDueDates(ctx, serviceID, pkg.Name, req.ProcessingDays, req.ExtensionDays)
	}
	return pkg, sweep, nil
}

// SweepDueDates recomputes the due date of every open order bound to one
// package of a service, from each order's original purchase time plus the
// new turnaround plus an optional grace period. Each order is handled
// independently; closed orders are never touched and a per-order failure is
// reported, not fatal.
func (s *CatalogService) SweepDueDates(ctx context.Context, serviceID, packageName string, processingDays, extensionDays int) []models.SweepResult {
	orders, err := s.orders.ListOpenByPackage(ctx, serviceID, packageName)
	if err != nil {
		s.logger.Error("due-date sweep listing failed",
			zap.String("service_id", serviceID),
			zap.String("package_name", packageName),
			zap.Error(err))
		return []models.SweepResult{{Error: appErrors.FromError(err)}}
	}

	results := make([]models.SweepResult, 0, len(orders))
	for _, order := range orders {
		result := models.SweepResult{
			OrderID:    order.ID,
			CustomerID: order.CustomerID,
			OldDueDate: order.DueDate,
		}
		newDue := ComputeDueDate(order.PurchasedAt, processingDays).AddDate(0, 0, extensionDays)
		if newDue.Equal(order.DueDate) {
			result.Skipped = true
			results = append(results, result)
			continue
		}
		if err := s.orders.UpdateDueDate(ctx, order.ID, newDue, order.Version); err != nil {
			if errors.Is(err, repository.ErrVersionConflict) {
				result.Error = appErrors.Clone(appErrors.ErrConflict, "order was modified concurrently")
			} else {
				result.Error = appErrors.FromError(err)
			}
			results = append(results, result)
			continue
		}
		result.NewDueDate = newDue
		results = append(results, result)
	}

	s.logger.Info("due-date sweep finished",
		zap.String("service_id", serviceID),
		zap.String("package_name", packageName),
		zap.Int("orders", len(results)))
	return results
}

func (s *CatalogService) invalidate(ctx context.Context) {
	if err := s.cache.DeleteByPattern(ctx, catalogCachePrefix+"*"); err != nil {
		s.logger.Warn("invalidate catalog cache", zap.Error(err))
	}
}
