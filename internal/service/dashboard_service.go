package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/taxdesk/taxdesk-api/internal/models"
	appErrors "github.com/taxdesk/taxdesk-api/pkg/errors"
)

type dashboardAccountStore interface {
	CountByRole(ctx context.Context, role models.Role, activeOnly bool) (int, error)
}

type dashboardOrderStore interface {
	CountByStatus(ctx context.Context, status models.OrderStatus) (int, error)
	CountOpen(ctx context.Context, employeeID string) (int, error)
	CountOverdue(ctx context.Context, asOf time.Time) (int, error)
}

type dashboardLeadStore interface {
	CountByStatus(ctx context.Context, status models.LeadStatus) (int, error)
	CountOpen(ctx context.Context) (int, error)
}

type dashboardCatalogStore interface {
	CountServices(ctx context.Context, activeOnly bool) (int, error)
}

type dashboardMirror interface {
	CustomersOf(ctx context.Context, employeeID string) ([]models.CustomerSnapshot, error)
}

type dashboardOrderLister interface {
	ListDetailByCustomer(ctx context.Context, customerID string) ([]models.OrderDetail, error)
}

type dashboardWallet interface {
	EnsureWallet(ctx context.Context, accountID string) (*models.Wallet, error)
}

type dashboardCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

// DashboardService aggregates role-scoped home screens. The employee
// dashboard reads entirely from the assignment mirror, so it costs one
// lookup regardless of order volume.
type DashboardService struct {
	accounts     dashboardAccountStore
	orders       dashboardOrderStore
	orderDetails dashboardOrderLister
	leads        dashboardLeadStore
	catalog      dashboardCatalogStore
	mirror       dashboardMirror
	wallets      dashboardWallet
	cache        dashboardCache
	cacheTTL     time.Duration
	logger       *zap.Logger
}

// NewDashboardService constructs the service.
func NewDashboardService(accounts dashboardAccountStore, orders dashboardOrderStore, orderDetails dashboardOrderLister, leads dashboardLeadStore, catalog dashboardCatalogStore, mirror dashboardMirror, wallets dashboardWallet, cache dashboardCache, cacheTTL time.Duration, logger *zap.Logger) *DashboardService {
	if cacheTTL <= 0 {
		cacheTTL = 5 * time.Minute
	}
	return &DashboardService{
		accounts:     accounts,
		orders:       orders,
		orderDetails: orderDetails,
		leads:        leads,
		catalog:      catalog,
		mirror:       mirror,
		wallets:      wallets,
		cache:        cache,
		cacheTTL:     cacheTTL,
		logger:       logger,
	}
}

// Employee serves the employee home screen from the mirror.
func (s *DashboardService) Employee(ctx context.Context, employeeID string) (*models.EmployeeDashboard, error) {
	customers, err := s.mirror.CustomersOf(ctx, employeeID)
	if err != nil {
		return nil, err
	}

	openOrders := 0
	pendingReview := 0
	for _, customer := range customers {
		for _, order := range customer.Orders {
			if order.EmployeeID == nil || *order.EmployeeID != employeeID {
				continue
			}
			if !order.Status.Terminal() {
				openOrders++
			}
			if order.Status == models.OrderStatusPendingL1Review {
				pendingReview++
			}
		}
	}

	return &models.EmployeeDashboard{
		EmployeeID:    employeeID,
		Customers:     customers,
		CustomerCount: len(customers),
		OpenOrders:    openOrders,
		PendingReview: pendingReview,
		GeneratedAt:   time.Now().UTC(),
	}, nil
}

// Admin serves the portal-wide counters, cached briefly.
func (s *DashboardService) Admin(ctx context.Context) (*models.AdminDashboard, error) {
	const cacheKey = "dashboard:admin"
	var cached models.AdminDashboard
	if err := s.cache.Get(ctx, cacheKey, &cached); err == nil {
		return &cached, nil
	}

	dashboard := &models.AdminDashboard{GeneratedAt: time.Now().UTC()}
	var err error
	if dashboard.Customers, err = s.accounts.CountByRole(ctx, models.RoleCustomer, false); err != nil {
		return nil, appErrors.FromError(err)
	}
	if dashboard.Employees, err = s.accounts.CountByRole(ctx, models.RoleEmployee, true); err != nil {
		return nil, appErrors.FromError(err)
	}
	if dashboard.Services, err = s.catalog.CountServices(ctx, true); err != nil {
		return nil, appErrors.FromError(err)
	}
	if dashboard.OpenLeads, err = s.leads.CountOpen(ctx); err != nil {
		return nil, appErrors.FromError(err)
	}
	if dashboard.ConvertedLeads, err = s.leads.CountByStatus(ctx, models.LeadStatusConverted); err != nil {
		return nil, appErrors.FromError(err)
	}
	if dashboard.OpenOrders, err = s.orders.CountOpen(ctx, ""); err != nil {
		return nil, appErrors.FromError(err)
	}
	if dashboard.CompletedOrders, err = s.orders.CountByStatus(ctx, models.OrderStatusCompleted); err != nil {
		return nil, appErrors.FromError(err)
	}
	if dashboard.OverdueOrders, err = s.orders.CountOverdue(ctx, time.Now().UTC()); err != nil {
		return nil, appErrors.FromError(err)
	}

	if err := s.cache.Set(ctx, cacheKey, dashboard, s.cacheTTL); err != nil {
		s.logger.Warn("cache admin dashboard", zap.Error(err))
	}
	return dashboard, nil
}

// Customer serves a customer's own orders and wallet balance.
func (s *DashboardService) Customer(ctx context.Context, customerID string) (*models.CustomerDashboard, error) {
	details, err := s.orderDetails.ListDetailByCustomer(ctx, customerID)
	if err != nil {
		return nil, err
	}
	wallet, err := s.wallets.EnsureWallet(ctx, customerID)
	if err != nil {
		return nil, err
	}
	return &models.CustomerDashboard{
		CustomerID:    customerID,
		Orders:        details,
		WalletBalance: wallet.Balance,
		GeneratedAt:   time.Now().UTC(),
	}, nil
}
