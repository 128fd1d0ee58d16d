package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/taxdesk/taxdesk-api/internal/models"
)

const leadColumns = `id, full_name, email, phone, service_id, message, status, employee_id,
        assigned_at, accepted_at, declined_at, decline_reason, converted_at, converted_order_id,
        created_at, updated_at`

// LeadRepository handles persistence of pre-customer leads.
type LeadRepository struct {
	db *sqlx.DB
}

// NewLeadRepository constructs the repository.
func NewLeadRepository(db *sqlx.DB) *LeadRepository {
	return &LeadRepository{db: db}
}

// Create persists a new lead.
func (r *LeadRepository) Create(ctx context.Context, lead *models.Lead) error {
	now := time.Now().UTC()
	lead.CreatedAt = now
	lead.UpdatedAt = now
	const query = `INSERT INTO leads (id, full_name, email, phone, service_id, message, status, created_at, updated_at)
        VALUES (:id, :full_name, :email, :phone, :service_id, :message, :status, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, lead); err != nil {
		return fmt.Errorf("create lead: %w", err)
	}
	return nil
}

// FindByID returns one lead.
func (r *LeadRepository) FindByID(ctx context.Context, id string) (*models.Lead, error) {
	query := fmt.Sprintf("SELECT %s FROM leads WHERE id = $1", leadColumns)
	var lead models.Lead
	if err := r.db.GetContext(ctx, &lead, query, id); err != nil {
		return nil, err
	}
	return &lead, nil
}

// List returns leads matching the filter.
func (r *LeadRepository) List(ctx context.Context, filter models.LeadFilter) ([]models.Lead, int, error) {
	var conditions []string
	var args []interface{}

	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}
	if filter.EmployeeID != "" {
		conditions = append(conditions, fmt.Sprintf("employee_id = $%d", len(args)+1))
		args = append(args, filter.EmployeeID)
	}
	if filter.ServiceID != "" {
		conditions = append(conditions, fmt.Sprintf("service_id = $%d", len(args)+1))
		args = append(args, filter.ServiceID)
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

	query := fmt.Sprintf("SELECT %s FROM leads%s ORDER BY created_at DESC LIMIT %d OFFSET %d",
		leadColumns, clause, size, offset)

	var leads []models.Lead
	if err := r.db.SelectContext(ctx, &leads, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list leads: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM leads"+clause, args...); err != nil {
		return nil, 0, fmt.Errorf("count leads: %w", err)
	}
	return leads, total, nil
}

// Update rewrites the lifecycle fields of a lead.
func (r *LeadRepository) Update(ctx context.Context, lead *models.Lead) error {
	lead.UpdatedAt = time.Now().UTC()
	const query = `UPDATE leads SET status = :status, employee_id = :employee_id,
        assigned_at = :assigned_at, accepted_at = :accepted_at,
        declined_at = :declined_at, decline_reason = :decline_reason,
        converted_at = :converted_at, converted_order_id = :converted_order_id,
        updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, lead); err != nil {
		return fmt.Errorf("update lead: %w", err)
	}
	return nil
}

// CountByStatus returns the number of leads in one status.
func (r *LeadRepository) CountByStatus(ctx context.Context, status models.LeadStatus) (int, error) {
	const query = `SELECT COUNT(*) FROM leads WHERE status = $1`
	var total int
	if err := r.db.GetContext(ctx, &total, query, status); err != nil {
		return 0, fmt.Errorf("count leads by status: %w", err)
	}
	return total, nil
}

// CountOpen returns the number of leads still in a non-terminal state.
func (r *LeadRepository) CountOpen(ctx context.Context) (int, error) {
	const query = `SELECT COUNT(*) FROM leads WHERE status NOT IN ('declined', 'converted')`
	var total int
	if err := r.db.GetContext(ctx, &total, query); err != nil {
		return 0, fmt.Errorf("count open leads: %w", err)
	}
	return total, nil
}
