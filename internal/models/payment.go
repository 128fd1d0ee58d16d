package models

import "time"

// PaymentStatus tracks a gateway payment order.
type PaymentStatus string

const (
	PaymentStatusCreated PaymentStatus = "created"
	PaymentStatusPaid    PaymentStatus = "paid"
	PaymentStatusFailed  PaymentStatus = "failed"
)

// PaymentOrder stores the gateway order reference and verification state for
// a customer's package purchase.
type PaymentOrder struct {
	ID               string        `db:"id" json:"id"`
	GatewayOrderID   string        `db:"gateway_order_id" json:"gateway_order_id"`
	GatewayPaymentID *string       `db:"gateway_payment_id" json:"gateway_payment_id,omitempty"`
	CustomerID       string        `db:"customer_id" json:"customer_id"`
	ServiceID        string        `db:"service_id" json:"service_id"`
	PackageName      string        `db:"package_name" json:"package_name"`
	Amount           float64       `db:"amount" json:"amount"`
	TaxAmount        float64       `db:"tax_amount" json:"tax_amount"`
	TotalAmount      float64       `db:"total_amount" json:"total_amount"`
	Currency         string        `db:"currency" json:"currency"`
	Status           PaymentStatus `db:"status" json:"status"`
	FailureReason    *string       `db:"failure_reason" json:"failure_reason,omitempty"`
	OrderID          *string       `db:"order_id" json:"order_id,omitempty"`
	CreatedAt        time.Time     `db:"created_at" json:"created_at"`
	PaidAt           *time.Time    `db:"paid_at" json:"paid_at,omitempty"`
}

// PaymentCheckout is returned to the frontend to open the gateway widget.
type PaymentCheckout struct {
	GatewayOrderID string  `json:"gateway_order_id"`
	AmountPaise    int     `json:"amount_paise"`
	Currency       string  `json:"currency"`
	KeyID          string  `json:"key_id"`
	Amount         float64 `json:"amount"`
	TaxAmount      float64 `json:"tax_amount"`
	TotalAmount    float64 `json:"total_amount"`
}
