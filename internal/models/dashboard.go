package models

import "time"

// EmployeeDashboard is served from the denormalized mirror in one lookup.
type EmployeeDashboard struct {
	EmployeeID    string             `json:"employee_id"`
	Customers     []CustomerSnapshot `json:"customers"`
	CustomerCount int                `json:"customer_count"`
	OpenOrders    int                `json:"open_orders"`
	PendingReview int                `json:"pending_review"`
	GeneratedAt   time.Time          `json:"generated_at"`
}

// AdminDashboard aggregates portal-wide counts.
type AdminDashboard struct {
	Customers       int       `json:"customers"`
	Employees       int       `json:"employees"`
	Services        int       `json:"services"`
	OpenLeads       int       `json:"open_leads"`
	ConvertedLeads  int       `json:"converted_leads"`
	OpenOrders      int       `json:"open_orders"`
	CompletedOrders int       `json:"completed_orders"`
	OverdueOrders   int       `json:"overdue_orders"`
	GeneratedAt     time.Time `json:"generated_at"`
}

// CustomerDashboard summarises a customer's own orders and wallet.
type CustomerDashboard struct {
	CustomerID    string        `json:"customer_id"`
	Orders        []OrderDetail `json:"orders"`
	WalletBalance float64       `json:"wallet_balance"`
	GeneratedAt   time.Time     `json:"generated_at"`
}

// SystemMetrics is a lightweight aggregate snapshot exposed to admins.
type SystemMetrics struct {
	CacheHitRatio            float64   `json:"cache_hit_ratio"`
	CacheHits                uint64    `json:"cache_hits"`
	CacheMisses              uint64    `json:"cache_misses"`
	RequestsTotal            uint64    `json:"requests_total"`
	AverageRequestDurationMs float64   `json:"average_request_duration_ms"`
	DBQueryCount             uint64    `json:"db_query_count"`
	AverageDBQueryDurationMs float64   `json:"average_db_query_duration_ms"`
	Goroutines               int       `json:"goroutines"`
	GeneratedAt              time.Time `json:"generated_at"`
}
