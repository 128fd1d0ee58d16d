package service

import (
	"time"

	"github.com/taxdesk/taxdesk-api/internal/models"
)

// ResolveProcessingDays returns the effective turnaround of a package,
// falling back to the catalog default when the package does not define one.
func ResolveProcessingDays(processingDays int) int {
	if processingDays <= 0 {
		return models.DefaultProcessingDays
	}
	return processingDays
}

// ComputeDueDate derives an order's due date from its purchase time. The due
// date is always purchase time plus the effective turnaround, in whole days.
func ComputeDueDate(purchasedAt time.Time, processingDays int) time.Time {
	return purchasedAt.AddDate(0, 0, ResolveProcessingDays(processingDays))
}
