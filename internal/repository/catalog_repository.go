package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/taxdesk/taxdesk-api/internal/models"
)

const serviceColumns = `id, category, name, description, gst_rate, active, required_documents, created_at, updated_at`
const packageColumns = `id, service_id, name, actual_price, discounted_price, processing_days, created_at, updated_at`

// CatalogRepository handles the service catalog and its packages.
type CatalogRepository struct {
	db *sqlx.DB
}

// NewCatalogRepository constructs the repository.
func NewCatalogRepository(db *sqlx.DB) *CatalogRepository {
	return &CatalogRepository{db: db}
}

// ListServices returns catalog services matching the filter.
func (r *CatalogRepository) ListServices(ctx context.Context, filter models.ServiceFilter) ([]models.Service, int, error) {
	var conditions []string
	var args []interface{}

	if filter.Category != "" {
		conditions = append(conditions, fmt.Sprintf("category = $%d", len(args)+1))
		args = append(args, filter.Category)
	}
	if filter.Active != nil {
		conditions = append(conditions, fmt.Sprintf("active = $%d", len(args)+1))
		args = append(args, *filter.Active)
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(name ILIKE $%d OR description ILIKE $%d)", len(args)+1, len(args)+1))
		args = append(args, "%"+filter.Search+"%")
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf("SELECT %s FROM services%s ORDER BY name ASC LIMIT %d OFFSET %d",
		serviceColumns, clause, size, offset)

	var services []models.Service
	if err := r.db.SelectContext(ctx, &services, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list services: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM services"+clause, args...); err != nil {
		return nil, 0, fmt.Errorf("count services: %w", err)
	}
	return services, total, nil
}

// FindServiceByID returns one service.
func (r *CatalogRepository) FindServiceByID(ctx context.Context, id string) (*models.Service, error) {
	query := fmt.Sprintf("SELECT %s FROM services WHERE id = $1", serviceColumns)
	var service models.Service
	if err := r.db.GetContext(ctx, &service, query, id); err != nil {
		return nil, err
	}
	return &service, nil
}

// CreateService persists a new catalog service.
func (r *CatalogRepository) CreateService(ctx context.Context, service *models.Service) error {
	now := time.Now().UTC()
	service.CreatedAt = now
	service.UpdatedAt = now
	const query = `INSERT INTO services (id, category, name, description, gst_rate, active, required_documents, created_at, updated_at)
        VALUES (:id, :category, :name, :description, :gst_rate, :active, :required_documents, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, service); err != nil {
		return fmt.Errorf("create service: %w", err)
	}
	return nil
}

// UpdateService rewrites a catalog service.
func (r *CatalogRepository) UpdateService(ctx context.Context, service *models.Service) error {
	service.UpdatedAt = time.Now().UTC()
	const query = `UPDATE services SET category = :category, name = :name, description = :description,
        gst_rate = :gst_rate, active = :active, required_documents = :required_documents,
        updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, service); err != nil {
		return fmt.Errorf("update service: %w", err)
	}
	return nil
}

// ListPackages returns the packages of a service in name order.
func (r *CatalogRepository) ListPackages(ctx context.Context, serviceID string) ([]models.Package, error) {
	query := fmt.Sprintf("SELECT %s FROM service_packages WHERE service_id = $1 ORDER BY name ASC", packageColumns)
	var packages []models.Package
	if err := r.db.SelectContext(ctx, &packages, query, serviceID); err != nil {
		return nil, fmt.Errorf("list packages: %w", err)
	}
	return packages, nil
}

// FindPackage returns one package of a service by name.
func (r *CatalogRepository) FindPackage(ctx context.Context, serviceID, name string) (*models.Package, error) {
	query := fmt.Sprintf("SELECT %s FROM service_packages WHERE service_id = $1 AND name = $2 LIMIT 1", packageColumns)
	var pkg models.Package
	if err := r.db.GetContext(ctx, &pkg, query, serviceID, name); err != nil {
		return nil, err
	}
	return &pkg, nil
}

// FirstPackage returns the cheapest package of a service, used when a lead
// converts without an explicit package choice.
func (r *CatalogRepository) FirstPackage(ctx context.Context, serviceID string) (*models.Package, error) {
	query := fmt.Sprintf("SELECT %s FROM service_packages WHERE service_id = $1 ORDER BY discounted_price ASC, name ASC LIMIT 1", packageColumns)
	var pkg models.Package
	if err := r.db.GetContext(ctx, &pkg, query, serviceID); err != nil {
		return nil, err
	}
	return &pkg, nil
}

// CreatePackage persists a new package.
func (r *CatalogRepository) CreatePackage(ctx context.Context, pkg *models.Package) error {
	now := time.Now().UTC()
	pkg.CreatedAt = now
	pkg.UpdatedAt = now
	const query = `INSERT INTO service_packages (id, service_id, name, actual_price, discounted_price, processing_days, created_at, updated_at)
        VALUES (:id, :service_id, :name, :actual_price, :discounted_price, :processing_days, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, pkg); err != nil {
		return fmt.Errorf("create package: %w", err)
	}
	return nil
}

// UpdatePackage rewrites a package.
func (r *CatalogRepository) UpdatePackage(ctx context.Context, pkg *models.Package) error {
	pkg.UpdatedAt = time.Now().UTC()
	const query = `UPDATE service_packages SET name = :name, actual_price = :actual_price,
        discounted_price = :discounted_price, processing_days = :processing_days,
        updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, pkg); err != nil {
		return fmt.Errorf("update package: %w", err)
	}
	return nil
}

// CountServices returns the total service count, optionally active only.
func (r *CatalogRepository) CountServices(ctx context.Context, activeOnly bool) (int, error) {
	query := "SELECT COUNT(*) FROM services"
	if activeOnly {
		query += " WHERE active = TRUE"
	}
	var total int
	if err := r.db.GetContext(ctx, &total, query); err != nil {
		return 0, fmt.Errorf("count services: %w", err)
	}
	return total, nil
}
