package models

import (
	"time"

	"github.com/lib/pq"
)

const (
	// DefaultGSTRate applies when a service is created without an explicit rate.
	DefaultGSTRate = 18.0
	// DefaultProcessingDays is the due-date fallback when a package does not
	// define a turnaround.
	DefaultProcessingDays = 7
)

// Service is a catalog entry purchasable through one of its packages.
type Service struct {
	ID                string         `db:"id" json:"id"`
	Category          string         `db:"category" json:"category"`
	Name              string         `db:"name" json:"name"`
	Description       string         `db:"description" json:"description"`
	GSTRate           float64        `db:"gst_rate" json:"gst_rate"`
	Active            bool           `db:"active" json:"active"`
	RequiredDocuments pq.StringArray `db:"required_documents" json:"required_documents"`
	CreatedAt         time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time      `db:"updated_at" json:"updated_at"`
}

// Package is one purchasable tier of a service.
type Package struct {
	ID              string    `db:"id" json:"id"`
	ServiceID       string    `db:"service_id" json:"service_id"`
	Name            string    `db:"name" json:"name"`
	ActualPrice     float64   `db:"actual_price" json:"actual_price"`
	DiscountedPrice float64   `db:"discounted_price" json:"discounted_price"`
	ProcessingDays  int       `db:"processing_days" json:"processing_days"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time `db:"updated_at" json:"updated_at"`
}

// ServiceDetail bundles a service with its packages.
type ServiceDetail struct {
	Service
	Packages []Package `json:"packages"`
}

// ServiceFilter captures catalog listing criteria.
type ServiceFilter struct {
	Category  string
	Active    *bool
	Search    string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
