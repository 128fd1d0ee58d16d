package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/taxdesk/taxdesk-api/internal/models"
)

// ErrVersionConflict is returned when a guarded order update finds the row
// changed underneath it. Callers reload and retry or surface a conflict.
var ErrVersionConflict = errors.New("order version conflict")

const orderColumns = `id, customer_id, service_id, service_name, package_name, processing_days,
        employee_id, status, purchased_at, due_date, delay_reason, sent_for_review_at,
        revision_note, completed_at, amount, igst, cgst, sgst, version, created_at, updated_at`

// OrderRepository handles persistence of orders and their attached records.
type OrderRepository struct {
	db *sqlx.DB
}

// NewOrderRepository constructs the repository.
func NewOrderRepository(db *sqlx.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

// Create persists a new order.
func (r *OrderRepository) Create(ctx context.Context, order *models.Order) error {
	now := time.Now().UTC()
	order.CreatedAt = now
	order.UpdatedAt = now
	if order.Version == 0 {
		order.Version = 1
	}
	const query = `INSERT INTO orders (id, customer_id, service_id, service_name, package_name, processing_days,
        employee_id, status, purchased_at, due_date, amount, igst, cgst, sgst, version, created_at, updated_at)
        VALUES (:id, :customer_id, :service_id, :service_name, :package_name, :processing_days,
        :employee_id, :status, :purchased_at, :due_date, :amount, :igst, :cgst, :sgst, :version, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, order); err != nil {
		return fmt.Errorf("create order: %w", err)
	}
	return nil
}

// FindByID returns one order.
func (r *OrderRepository) FindByID(ctx context.Context, id string) (*models.Order, error) {
	query := fmt.Sprintf("SELECT %s FROM orders WHERE id = $1", orderColumns)
	var order models.Order
	if err := r.db.GetContext(ctx, &order, query, id); err != nil {
		return nil, err
	}
	return &order, nil
}

// FindFirstByCustomerAndService returns the customer's earliest-purchased
// order for a service. Ties on a customer with several orders for the same
// service always resolve to the oldest one.
func (r *OrderRepository) FindFirstByCustomerAndService(ctx context.Context, customerID, serviceID string) (*models.Order, error) {
	query := fmt.Sprintf(`SELECT %s FROM orders WHERE customer_id = $1 AND service_id = $2
        ORDER BY purchased_at ASC, id ASC LIMIT 1`, orderColumns)
	var order models.Order
	if err := r.db.GetContext(ctx, &order, query, customerID, serviceID); err != nil {
		return nil, err
	}
	return &order, nil
}

// List returns orders matching the filter.
func (r *OrderRepository) List(ctx context.Context, filter models.OrderFilter) ([]models.Order, int, error) {
	var conditions []string
	var args []interface{}

	if filter.CustomerID != "" {
		conditions = append(conditions, fmt.Sprintf("customer_id = $%d", len(args)+1))
		args = append(args, filter.CustomerID)
	}
	if filter.EmployeeID != "" {
		conditions = append(conditions, fmt.Sprintf("employee_id = $%d", len(args)+1))
		args = append(args, filter.EmployeeID)
	}
	if filter.ServiceID != "" {
		conditions = append(conditions, fmt.Sprintf("service_id = $%d", len(args)+1))
		args = append(args, filter.ServiceID)
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	allowedSorts := map[string]string{
		"purchased_at": "purchased_at",
		"due_date":     "due_date",
		"status":       "status",
	}
	orderBy := allowedSorts[filter.SortBy]
	if orderBy == "" {
		orderBy = "purchased_at"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "DESC"
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

	query := fmt.Sprintf("SELECT %s FROM orders%s ORDER BY %s %s LIMIT %d OFFSET %d",
		orderColumns, clause, orderBy, order, size, offset)

	var orders []models.Order
	if err := r.db.SelectContext(ctx, &orders, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list orders: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM orders"+clause, args...); err != nil {
		return nil, 0, fmt.Errorf("count orders: %w", err)
	}
	return orders, total, nil
}

// ListByCustomer returns every order of one customer, oldest first.
func (r *OrderRepository) ListByCustomer(ctx context.Context, customerID string) ([]models.Order, error) {
	query := fmt.Sprintf("SELECT %s FROM orders WHERE customer_id = $1 ORDER BY purchased_at ASC", orderColumns)
	var orders []models.Order
	if err := r.db.SelectContext(ctx, &orders, query, customerID); err != nil {
		return nil, fmt.Errorf("list customer orders: %w", err)
	}
	return orders, nil
}

// ListUnassignedCustomersByService returns the distinct customers holding an
// unassigned order for a service, for the backfill pass that runs after an
// employee's handled services change.
func (r *OrderRepository) ListUnassignedCustomersByService(ctx context.Context, serviceID string) ([]string, error) {
	const query = `SELECT DISTINCT customer_id FROM orders
        WHERE service_id = $1 AND employee_id IS NULL AND status NOT IN ('completed', 'cancelled')
        ORDER BY customer_id ASC`
	var ids []string
	if err := r.db.SelectContext(ctx, &ids, query, serviceID); err != nil {
		return nil, fmt.Errorf("list unassigned customers: %w", err)
	}
	return ids, nil
}

// ListOpenByPackage returns the non-terminal orders bound to one package of a
// service, for the due-date recalculation sweep.
func (r *OrderRepository) ListOpenByPackage(ctx context.Context, serviceID, packageName string) ([]models.Order, error) {
	query := fmt.Sprintf(`SELECT %s FROM orders
        WHERE service_id = $1 AND package_name = $2 AND status NOT IN ('completed', 'cancelled')
        ORDER BY purchased_at ASC`, orderColumns)
	var orders []models.Order
	if err := r.db.SelectContext(ctx, &orders, query, serviceID, packageName); err != nil {
		return nil, fmt.Errorf("list open orders by package: %w", err)
	}
	return orders, nil
}

// RenamePackage follows a catalog package rename across every order bound to
// it, so later lookups by (service, package) keep finding them.
func (r *OrderRepository) RenamePackage(ctx context.Context, serviceID, oldName, newName string) error {
	const query = `UPDATE orders SET package_name = $3, updated_at = $4
        WHERE service_id = $1 AND package_name = $2`
	if _, err := r.db.ExecContext(ctx, query, serviceID, oldName, newName, time.Now().UTC()); err != nil {
		return fmt.Errorf("rename order package: %w", err)
	}
	return nil
}

// SetEmployee binds an order to an employee. Guarded by version so two
// concurrent assignment passes cannot both claim the order.
func (r *OrderRepository) SetEmployee(ctx context.Context, orderID, employeeID string, expectedVersion int) error {
	const query = `UPDATE orders SET employee_id = $2, version = version + 1, updated_at = $3
        WHERE id = $1 AND version = $4`
	res, err := r.db.ExecContext(ctx, query, orderID, employeeID, time.Now().UTC(), expectedVersion)
	if err != nil {
		return fmt.Errorf("set order employee: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("set order employee: %w", err)
	}
	if affected == 0 {
		return ErrVersionConflict
	}
	return nil
}

// UpdateStatus writes the lifecycle fields of an order guarded by version.
// The caller validates the transition before writing.
func (r *OrderRepository) UpdateStatus(ctx context.Context, order *models.Order, expectedVersion int) error {
	order.UpdatedAt = time.Now().UTC()
	const query = `UPDATE orders SET status = $2, employee_id = $3, due_date = $4,
        delay_reason = $5, sent_for_review_at = $6, revision_note = $7, completed_at = $8,
        version = version + 1, updated_at = $9
        WHERE id = $1 AND version = $10`
	res, err := r.db.ExecContext(ctx, query, order.ID, order.Status, order.EmployeeID,
		order.DueDate, order.DelayReason, order.SentForReviewAt, order.RevisionNote,
		order.CompletedAt, order.UpdatedAt, expectedVersion)
	if err != nil {
		return fmt.Errorf("update order status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update order status: %w", err)
	}
	if affected == 0 {
		return ErrVersionConflict
	}
	order.Version = expectedVersion + 1
	return nil
}

// UpdateDueDate rewrites the due date only, used by the catalog sweep.
func (r *OrderRepository) UpdateDueDate(ctx context.Context, orderID string, dueDate time.Time, expectedVersion int) error {
	const query = `UPDATE orders SET due_date = $2, version = version + 1, updated_at = $3
        WHERE id = $1 AND version = $4`
	res, err := r.db.ExecContext(ctx, query, orderID, dueDate, time.Now().UTC(), expectedVersion)
	if err != nil {
		return fmt.Errorf("update order due date: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update order due date: %w", err)
	}
	if affected == 0 {
		return ErrVersionConflict
	}
	return nil
}

// AddDocument attaches a stored document record to an order.
func (r *OrderRepository) AddDocument(ctx context.Context, doc *models.OrderDocument) error {
	const query = `INSERT INTO order_documents (id, order_id, file_name, file_path, mime_type, size_bytes, uploaded_by, uploaded_at)
        VALUES (:id, :order_id, :file_name, :file_path, :mime_type, :size_bytes, :uploaded_by, :uploaded_at)`
	if _, err := r.db.NamedExecContext(ctx, query, doc); err != nil {
		return fmt.Errorf("add order document: %w", err)
	}
	return nil
}

// ListDocuments returns the documents of one order.
func (r *OrderRepository) ListDocuments(ctx context.Context, orderID string) ([]models.OrderDocument, error) {
	const query = `SELECT id, order_id, file_name, file_path, mime_type, size_bytes, uploaded_by, uploaded_at
        FROM order_documents WHERE order_id = $1 ORDER BY uploaded_at ASC`
	var docs []models.OrderDocument
	if err := r.db.SelectContext(ctx, &docs, query, orderID); err != nil {
		return nil, fmt.Errorf("list order documents: %w", err)
	}
	return docs, nil
}

// AddQuery opens a query thread on an order.
func (r *OrderRepository) AddQuery(ctx context.Context, q *models.OrderQuery) error {
	const query = `INSERT INTO order_queries (id, order_id, author_id, message, created_at)
        VALUES (:id, :order_id, :author_id, :message, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, q); err != nil {
		return fmt.Errorf("add order query: %w", err)
	}
	return nil
}

// AddQueryReply appends a reply to a query thread.
func (r *OrderRepository) AddQueryReply(ctx context.Context, reply *models.OrderQueryReply) error {
	const query = `INSERT INTO order_query_replies (id, query_id, author_id, message, created_at)
        VALUES (:id, :query_id, :author_id, :message, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, reply); err != nil {
		return fmt.Errorf("add query reply: %w", err)
	}
	return nil
}

// ListQueries returns an order's query threads with replies.
func (r *OrderRepository) ListQueries(ctx context.Context, orderID string) ([]models.OrderQuery, error) {
	const query = `SELECT id, order_id, author_id, message, created_at
        FROM order_queries WHERE order_id = $1 ORDER BY created_at ASC`
	var queries []models.OrderQuery
	if err := r.db.SelectContext(ctx, &queries, query, orderID); err != nil {
		return nil, fmt.Errorf("list order queries: %w", err)
	}
	for i := range queries {
		const replyQuery = `SELECT id, query_id, author_id, message, created_at
            FROM order_query_replies WHERE query_id = $1 ORDER BY created_at ASC`
		var replies []models.OrderQueryReply
		if err := r.db.SelectContext(ctx, &replies, replyQuery, queries[i].ID); err != nil {
			return nil, fmt.Errorf("list query replies: %w", err)
		}
		queries[i].Replies = replies
	}
	return queries, nil
}

// AddFeedback records customer feedback on an order.
func (r *OrderRepository) AddFeedback(ctx context.Context, fb *models.OrderFeedback) error {
	const query = `INSERT INTO order_feedback (id, order_id, rating, comment, created_at)
        VALUES (:id, :order_id, :rating, :comment, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, fb); err != nil {
		return fmt.Errorf("add order feedback: %w", err)
	}
	return nil
}

// ListFeedback returns the feedback entries of one order.
func (r *OrderRepository) ListFeedback(ctx context.Context, orderID string) ([]models.OrderFeedback, error) {
	const query = `SELECT id, order_id, rating, comment, created_at
        FROM order_feedback WHERE order_id = $1 ORDER BY created_at ASC`
	var feedback []models.OrderFeedback
	if err := r.db.SelectContext(ctx, &feedback, query, orderID); err != nil {
		return nil, fmt.Errorf("list order feedback: %w", err)
	}
	return feedback, nil
}

// CountByStatus returns the number of orders in one status.
func (r *OrderRepository) CountByStatus(ctx context.Context, status models.OrderStatus) (int, error) {
	const query = `SELECT COUNT(*) FROM orders WHERE status = $1`
	var total int
	if err := r.db.GetContext(ctx, &total, query, status); err != nil {
		return 0, fmt.Errorf("count orders by status: %w", err)
	}
	return total, nil
}

// CountOpen returns the number of non-terminal orders, optionally scoped to
// an employee.
func (r *OrderRepository) CountOpen(ctx context.Context, employeeID string) (int, error) {
	query := `SELECT COUNT(*) FROM orders WHERE status NOT IN ('completed', 'cancelled')`
	var args []interface{}
	if employeeID != "" {
		query += " AND employee_id = $1"
		args = append(args, employeeID)
	}
	var total int
	if err := r.db.GetContext(ctx, &total, query, args...); err != nil {
		return 0, fmt.Errorf("count open orders: %w", err)
	}
	return total, nil
}

// CountOverdue returns the number of open orders past their due date.
func (r *OrderRepository) CountOverdue(ctx context.Context, asOf time.Time) (int, error) {
	const query = `SELECT COUNT(*) FROM orders
        WHERE status NOT IN ('completed', 'cancelled') AND due_date < $1`
	var total int
	if err := r.db.GetContext(ctx, &total, query, asOf); err != nil {
		return 0, fmt.Errorf("count overdue orders: %w", err)
	}
	return total, nil
}
