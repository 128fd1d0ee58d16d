package models

import (
	"time"

	appErrors "github.com/taxdesk/taxdesk-api/pkg/errors"
)

// CustomerSnapshot is the denormalized customer record mirrored into an
// employee's assigned-customer list so an employee dashboard reads in a
// single lookup.
type CustomerSnapshot struct {
	ID            string         `json:"_id"`
	FullName      string         `json:"full_name"`
	Email         string         `json:"email"`
	Phone         string         `json:"phone"`
	ReferralCode  string         `json:"referral_code"`
	PAN           *string        `json:"pan"`
	GSTIN         *string        `json:"gstin"`
	Address       *string        `json:"address"`
	Orders        []OrderDetail  `json:"orders"`
	Payments      []PaymentOrder `json:"payments"`
	WalletBalance float64        `json:"wallet_balance"`
	SnapshotAt    time.Time      `json:"snapshot_at"`
}

// EmployeeCustomer is one mirror row: at most one per (employee, customer).
type EmployeeCustomer struct {
	EmployeeID string    `db:"employee_id" json:"employee_id"`
	CustomerID string    `db:"customer_id" json:"customer_id"`
	Snapshot   []byte    `db:"snapshot" json:"-"`
	UpdatedAt  time.Time `db:"updated_at" json:"updated_at"`
}

// AssignmentResult is the per-target outcome of an assignment operation.
// Batch operations report one result per customer and never abort on a
// single failure.
type AssignmentResult struct {
	CustomerID string           `json:"customer_id"`
	OrderID    string           `json:"order_id,omitempty"`
	EmployeeID string           `json:"employee_id,omitempty"`
	Error      *appErrors.Error `json:"error,omitempty"`
}

// SweepResult is the per-order outcome of a due-date recalculation sweep.
type SweepResult struct {
	OrderID    string           `json:"order_id"`
	CustomerID string           `json:"customer_id"`
	OldDueDate time.Time        `json:"old_due_date"`
	NewDueDate time.Time        `json:"new_due_date,omitempty"`
	Skipped    bool             `json:"skipped,omitempty"`
	Error      *appErrors.Error `json:"error,omitempty"`
}
