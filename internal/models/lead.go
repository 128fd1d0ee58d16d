package models

import "time"

// LeadStatus is the closed set of lead states. Declined and converted are
// terminal; leads are never deleted.
type LeadStatus string

const (
	LeadStatusNew       LeadStatus = "new"
	LeadStatusAssigned  LeadStatus = "assigned"
	LeadStatusAccepted  LeadStatus = "accepted"
	LeadStatusDeclined  LeadStatus = "declined"
	LeadStatusConverted LeadStatus = "converted"
)

var leadTransitions = map[LeadStatus][]LeadStatus{
	LeadStatusNew:      {LeadStatusAssigned},
	LeadStatusAssigned: {LeadStatusAccepted, LeadStatusDeclined},
	LeadStatusAccepted: {LeadStatusConverted},
}

// CanTransitionTo reports whether the target status is reachable from s.
func (s LeadStatus) CanTransitionTo(target LeadStatus) bool {
	for _, allowed := range leadTransitions[s] {
		if allowed == target {
			return true
		}
	}
	return false
}

// Terminal reports whether the lead has reached an end state.
func (s LeadStatus) Terminal() bool {
	return s == LeadStatusDeclined || s == LeadStatusConverted
}

// Lead is a pre-customer inquiry awaiting assignment and conversion.
type Lead struct {
	ID               string     `db:"id" json:"id"`
	FullName         string     `db:"full_name" json:"full_name"`
	Email            string     `db:"email" json:"email"`
	Phone            string     `db:"phone" json:"phone"`
	ServiceID        string     `db:"service_id" json:"service_id"`
	Message          string     `db:"message" json:"message"`
	Status           LeadStatus `db:"status" json:"status"`
	EmployeeID       *string    `db:"employee_id" json:"employee_id,omitempty"`
	AssignedAt       *time.Time `db:"assigned_at" json:"assigned_at,omitempty"`
	AcceptedAt       *time.Time `db:"accepted_at" json:"accepted_at,omitempty"`
	DeclinedAt       *time.Time `db:"declined_at" json:"declined_at,omitempty"`
	DeclineReason    *string    `db:"decline_reason" json:"decline_reason,omitempty"`
	ConvertedAt      *time.Time `db:"converted_at" json:"converted_at,omitempty"`
	ConvertedOrderID *string    `db:"converted_order_id" json:"converted_order_id,omitempty"`
	CreatedAt        time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time  `db:"updated_at" json:"updated_at"`
}

// LeadFilter captures lead listing criteria.
type LeadFilter struct {
	Status     string
	EmployeeID string
	ServiceID  string
	Page       int
	PageSize   int
	SortBy     string
	SortOrder  string
}

// ConversionResult reports the artifacts created when a lead converts.
type ConversionResult struct {
	Account *Account `json:"account"`
	OrderID string   `json:"order_id"`
}
