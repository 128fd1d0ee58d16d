package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/taxdesk/taxdesk-api/internal/models"
)

// MirrorRepository maintains the denormalized employee->customer mirror. The
// unique (employee_id, customer_id) key makes assignment idempotent: repeat
// upserts refresh the snapshot instead of duplicating the row.
type MirrorRepository struct {
	db *sqlx.DB
}

// NewMirrorRepository constructs the repository.
func NewMirrorRepository(db *sqlx.DB) *MirrorRepository {
	return &MirrorRepository{db: db}
}

// Upsert inserts or refreshes one mirror row.
func (r *MirrorRepository) Upsert(ctx context.Context, employeeID, customerID string, snapshot []byte) error {
	const query = `INSERT INTO employee_customers (employee_id, customer_id, snapshot, updated_at)
        VALUES ($1, $2, $3, $4)
        ON CONFLICT (employee_id, customer_id)
        DO UPDATE SET snapshot = EXCLUDED.snapshot, updated_at = EXCLUDED.updated_at`
	if _, err := r.db.ExecContext(ctx, query, employeeID, customerID, snapshot, time.Now().UTC()); err != nil {
		return fmt.Errorf("upsert mirror row: %w", err)
	}
	return nil
}

// ListByEmployee returns every mirror row of one employee.
func (r *MirrorRepository) ListByEmployee(ctx context.Context, employeeID string) ([]models.EmployeeCustomer, error) {
	const query = `SELECT employee_id, customer_id, snapshot, updated_at
        FROM employee_customers WHERE employee_id = $1 ORDER BY customer_id ASC`
	var rows []models.EmployeeCustomer
	if err := r.db.SelectContext(ctx, &rows, query, employeeID); err != nil {
		return nil, fmt.Errorf("list mirror rows: %w", err)
	}
	return rows, nil
}

// ListEmployeesForCustomer returns the employee IDs whose mirrors contain the
// customer. Used to refresh every copy after the customer's orders change.
func (r *MirrorRepository) ListEmployeesForCustomer(ctx context.Context, customerID string) ([]string, error) {
	const query = `SELECT employee_id FROM employee_customers WHERE customer_id = $1`
	var ids []string
	if err := r.db.SelectContext(ctx, &ids, query, customerID); err != nil {
		return nil, fmt.Errorf("list mirror employees: %w", err)
	}
	return ids, nil
}

// CountByEmployee returns the number of customers mirrored to an employee.
func (r *MirrorRepository) CountByEmployee(ctx context.Context, employeeID string) (int, error) {
	const query = `SELECT COUNT(*) FROM employee_customers WHERE employee_id = $1`
	var total int
	if err := r.db.GetContext(ctx, &total, query, employeeID); err != nil {
		return 0, fmt.Errorf("count mirror rows: %w", err)
	}
	return total, nil
}
