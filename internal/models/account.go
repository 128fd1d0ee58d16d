package models

import (
	"time"

	"github.com/lib/pq"
)

// Role represents the available account roles for the RBAC system.
type Role string

const (
	RoleAdmin    Role = "ADMIN"
	RoleManager  Role = "MANAGER"
	RoleEmployee Role = "EMPLOYEE"
	RoleCustomer Role = "CUSTOMER"
)

// Prefix returns the human-readable ID prefix allocated for the role.
func (r Role) Prefix() string {
	switch r {
	case RoleAdmin:
		return "ADM"
	case RoleManager:
		return "MGR"
	case RoleEmployee:
		return "EMP"
	case RoleCustomer:
		return "CUS"
	default:
		return ""
	}
}

// Account represents any portal account: admin, manager, employee or customer.
// The ID is the role-prefixed human-readable code (e.g. EMP007).
type Account struct {
	ID           string     `db:"id" json:"id"`
	Role         Role       `db:"role" json:"role"`
	Email        string     `db:"email" json:"email"`
	PasswordHash string     `db:"password_hash" json:"-"`
	FullName     string     `db:"full_name" json:"full_name"`
	Phone        string     `db:"phone" json:"phone"`
	Username     string     `db:"username" json:"username"`
	Active       bool       `db:"active" json:"active"`
	ActiveFrom   *time.Time `db:"active_from" json:"active_from,omitempty"`
	ActiveTill   *time.Time `db:"active_till" json:"active_till,omitempty"`
	ReferralCode string     `db:"referral_code" json:"referral_code"`
	ReferredBy   *string    `db:"referred_by" json:"referred_by,omitempty"`

	// Supervisor chain. Employees carry L1; managers additionally carry L2,
	// auto-set to the creating admin.
	L1EmpCode *string `db:"l1_emp_code" json:"l1_emp_code,omitempty"`
	L1Name    *string `db:"l1_name" json:"l1_name,omitempty"`
	L2EmpCode *string `db:"l2_emp_code" json:"l2_emp_code,omitempty"`
	L2Name    *string `db:"l2_name" json:"l2_name,omitempty"`

	// Services this employee handles, used by auto-assignment.
	HandledServices pq.StringArray `db:"handled_services" json:"handled_services,omitempty"`

	// Customer tax profile.
	PAN     *string `db:"pan" json:"pan,omitempty"`
	GSTIN   *string `db:"gstin" json:"gstin,omitempty"`
	Address *string `db:"address" json:"address,omitempty"`

	LastLogin *time.Time `db:"last_login" json:"last_login,omitempty"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt time.Time  `db:"updated_at" json:"updated_at"`
}

// AccountFilter captures filtering criteria for listing accounts.
type AccountFilter struct {
	Role      *Role
	Active    *bool
	Search    string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}
