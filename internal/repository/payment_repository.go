package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/taxdesk/taxdesk-api/internal/models"
)

// PaymentRepository handles gateway payment order records.
type PaymentRepository struct {
	db *sqlx.DB
}

// NewPaymentRepository constructs the repository.
func NewPaymentRepository(db *sqlx.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

const paymentColumns = `id, gateway_order_id, gateway_payment_id, customer_id, service_id,
        package_name, amount, tax_amount, total_amount, currency, status, failure_reason,
        order_id, created_at, paid_at`

// Create persists a new payment order in created state.
func (r *PaymentRepository) Create(ctx context.Context, payment *models.PaymentOrder) error {
	payment.CreatedAt = time.Now().UTC()
	const query = `INSERT INTO payment_orders (id, gateway_order_id, customer_id, service_id,
        package_name, amount, tax_amount, total_amount, currency, status, created_at)
        VALUES (:id, :gateway_order_id, :customer_id, :service_id,
        :package_name, :amount, :tax_amount, :total_amount, :currency, :status, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, payment); err != nil {
		return fmt.Errorf("create payment order: %w", err)
	}
	return nil
}

// FindByGatewayOrderID returns the payment record for a gateway order.
func (r *PaymentRepository) FindByGatewayOrderID(ctx context.Context, gatewayOrderID string) (*models.PaymentOrder, error) {
	query := fmt.Sprintf("SELECT %s FROM payment_orders WHERE gateway_order_id = $1 LIMIT 1", paymentColumns)
	var payment models.PaymentOrder
	if err := r.db.GetContext(ctx, &payment, query, gatewayOrderID); err != nil {
		return nil, err
	}
	return &payment, nil
}

// MarkPaid records gateway verification and links the created order.
func (r *PaymentRepository) MarkPaid(ctx context.Context, id, gatewayPaymentID, orderID string, paidAt time.Time) error {
	const query = `UPDATE payment_orders SET status = $2, gateway_payment_id = $3, order_id = $4, paid_at = $5
        WHERE id = $1 AND status = $6`
	if _, err := r.db.ExecContext(ctx, query, id, models.PaymentStatusPaid, gatewayPaymentID, orderID, paidAt, models.PaymentStatusCreated); err != nil {
		return fmt.Errorf("mark payment paid: %w", err)
	}
	return nil
}

// MarkFailed records a verification failure.
func (r *PaymentRepository) MarkFailed(ctx context.Context, id, reason string) error {
	const query = `UPDATE payment_orders SET status = $2, failure_reason = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, models.PaymentStatusFailed, reason); err != nil {
		return fmt.Errorf("mark payment failed: %w", err)
	}
	return nil
}

// ListByCustomer returns the payment history of one customer, newest first.
func (r *PaymentRepository) ListByCustomer(ctx context.Context, customerID string) ([]models.PaymentOrder, error) {
	query := fmt.Sprintf("SELECT %s FROM payment_orders WHERE customer_id = $1 ORDER BY created_at DESC", paymentColumns)
	var payments []models.PaymentOrder
	if err := r.db.SelectContext(ctx, &payments, query, customerID); err != nil {
		return nil, fmt.Errorf("list customer payments: %w", err)
	}
	return payments, nil
}
