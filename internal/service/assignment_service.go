package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/taxdesk/taxdesk-api/internal/models"
	"github.com/taxdesk/taxdesk-api/internal/repository"
	appErrors "github.com/taxdesk/taxdesk-api/pkg/errors"
)

type assignmentAccountStore interface {
	FindByID(ctx context.Context, id string) (*models.Account, error)
	FindFirstEmployeeForService(ctx context.Context, serviceID string) (*models.Account, error)
}

type assignmentOrderStore interface {
	FindByID(ctx context.Context, id string) (*models.Order, error)
	FindFirstByCustomerAndService(ctx context.Context, customerID, serviceID string) (*models.Order, error)
	ListByCustomer(ctx context.Context, customerID string) ([]models.Order, error)
	ListUnassignedCustomersByService(ctx context.Context, serviceID string) ([]string, error)
	ListDocuments(ctx context.Context, orderID string) ([]models.OrderDocument, error)
	ListQueries(ctx context.Context, orderID string) ([]models.OrderQuery, error)
	ListFeedback(ctx context.Context, orderID string) ([]models.OrderFeedback, error)
	SetEmployee(ctx context.Context, orderID, employeeID string, expectedVersion int) error
}

type mirrorStore interface {
	Upsert(ctx context.Context, employeeID, customerID string, snapshot []byte) error
	ListByEmployee(ctx context.Context, employeeID string) ([]models.EmployeeCustomer, error)
	ListEmployeesForCustomer(ctx context.Context, customerID string) ([]string, error)
}

type assignmentWalletStore interface {
	FindByAccount(ctx context.Context, accountID string) (*models.Wallet, error)
}

type assignmentPaymentStore interface {
	ListByCustomer(ctx context.Context, customerID string) ([]models.PaymentOrder, error)
}

type assignmentNotifier interface {
	OrderAssigned(order *models.Order, employee *models.Account)
}

// AssignmentService binds customers to employees. Every binding resolves to a
// concrete order: the target is (customer, service), and when the customer
// holds several orders for the service the earliest purchase wins. Each
// successful binding mirrors a denormalized customer snapshot into the
// employee's customer list; the mirror upsert is idempotent so reassigning
// the same pair refreshes rather than duplicates.
type AssignmentService struct {
	accounts assignmentAccountStore
	orders   assignmentOrderStore
	mirror   mirrorStore
	wallets  assignmentWalletStore
	payments assignmentPaymentStore
	notifier assignmentNotifier
	logger   *zap.Logger
}

// NewAssignmentService constructs the service.
func NewAssignmentService(accounts assignmentAccountStore, orders assignmentOrderStore, mirror mirrorStore, wallets assignmentWalletStore, payments assignmentPaymentStore, notifier assignmentNotifier, logger *zap.Logger) *AssignmentService {
	return &AssignmentService{accounts: accounts, orders: orders, mirror: mirror, wallets: wallets, payments: payments, notifier: notifier, logger: logger}
}

// Assign binds one customer's order for a service to an employee.
func (s *AssignmentService) Assign(ctx context.Context, customerID, serviceID, employeeID string) models.AssignmentResult {
	result := models.AssignmentResult{CustomerID: customerID}

	employee, err := s.accounts.FindByID(ctx, employeeID)
	if err != nil {
		result.Error = appErrors.Clone(appErrors.ErrNotFound, "employee not found")
		return result
	}
	if employee.Role != models.RoleEmployee || !employee.Active {
		result.Error = appErrors.Clone(appErrors.ErrValidation, "assignee must be an active employee")
		return result
	}

	order, err := s.orders.FindFirstByCustomerAndService(ctx, customerID, serviceID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			result.Error = appErrors.Clone(appErrors.ErrNotFound, "customer has no order for this service")
		} else {
			result.Error = appErrors.FromError(err)
		}
		return result
	}

	if err := s.orders.SetEmployee(ctx, order.ID, employeeID, order.Version); err != nil {
		if errors.Is(err, repository.ErrVersionConflict) {
			result.Error = appErrors.Clone(appErrors.ErrConflict, "order was modified concurrently")
		} else {
			result.Error = appErrors.FromError(err)
		}
		return result
	}

	if err := s.mirrorCustomer(ctx, employeeID, customerID); err != nil {
		// The order binding stands; the mirror refreshes on the next write.
		s.logger.Warn("mirror upsert failed after assignment",
			zap.String("employee_id", employeeID),
			zap.String("customer_id", customerID),
			zap.Error(err))
	}

	s.notifier.OrderAssigned(order, employee)

	result.OrderID = order.ID
	result.EmployeeID = employeeID
	return result
}

// AssignBatch binds several customers to one employee for a service. Each
// customer is processed independently; a failure never aborts the rest.
func (s *AssignmentService) AssignBatch(ctx context.Context, customerIDs []string, serviceID, employeeID string) []models.AssignmentResult {
	results := make([]models.AssignmentResult, 0, len(customerIDs))
	for _, customerID := range customerIDs {
		results = append(results, s.Assign(ctx, customerID, serviceID, employeeID))
	}
	return results
}

// AutoAssign picks the first active employee handling the order's service, in
// account ID order, and binds the order to them. When no employee handles the
// service the order stays unassigned and no error is returned; the backfill
// pass picks it up later.
func (s *AssignmentService) AutoAssign(ctx context.Context, order *models.Order) (*models.Account, error) {
	employee, err := s.accounts.FindFirstEmployeeForService(ctx, order.ServiceID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.logger.Info("no employee handles service, order left unassigned",
				zap.String("order_id", order.ID),
				zap.String("service_id", order.ServiceID))
			return nil, nil
		}
		return nil, appErrors.FromError(err)
	}

	if err := s.orders.SetEmployee(ctx, order.ID, employee.ID, order.Version); err != nil {
		return nil, appErrors.FromError(err)
	}
	order.EmployeeID = &employee.ID
	order.Version++

	if err := s.mirrorCustomer(ctx, employee.ID, order.CustomerID); err != nil {
		s.logger.Warn("mirror upsert failed after auto-assignment",
			zap.String("employee_id", employee.ID),
			zap.String("customer_id", order.CustomerID),
			zap.Error(err))
	}
	s.notifier.OrderAssigned(order, employee)
	return employee, nil
}

// BackfillUnassigned assigns every unassigned order in the employee's handled
// services to that employee. Runs after an employee's handled services
// change so older orphaned orders are not left behind.
func (s *AssignmentService) BackfillUnassigned(ctx context.Context, employeeID string) ([]models.AssignmentResult, error) {
	employee, err := s.accounts.FindByID(ctx, employeeID)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "employee not found")
	}

	var results []models.AssignmentResult
	for _, serviceID := range employee.HandledServices {
		customerIDs, err := s.orders.ListUnassignedCustomersByService(ctx, serviceID)
		if err != nil {
			s.logger.Error("list unassigned customers",
				zap.String("service_id", serviceID), zap.Error(err))
			continue
		}
		for _, customerID := range customerIDs {
			results = append(results, s.Assign(ctx, customerID, serviceID, employeeID))
		}
	}
	return results, nil
}

// RefreshCustomerMirrors rebuilds the customer snapshot in every employee
// mirror holding it. Called after the customer's orders or profile change.
func (s *AssignmentService) RefreshCustomerMirrors(ctx context.Context, customerID string) error {
	employeeIDs, err := s.mirror.ListEmployeesForCustomer(ctx, customerID)
	if err != nil {
		return appErrors.FromError(err)
	}
	for _, employeeID := range employeeIDs {
		if err := s.mirrorCustomer(ctx, employeeID, customerID); err != nil {
			s.logger.Warn("mirror refresh failed",
				zap.String("employee_id", employeeID),
				zap.String("customer_id", customerID),
				zap.Error(err))
		}
	}
	return nil
}

// CustomersOf returns the decoded snapshots mirrored to one employee.
func (s *AssignmentService) CustomersOf(ctx context.Context, employeeID string) ([]models.CustomerSnapshot, error) {
	rows, err := s.mirror.ListByEmployee(ctx, employeeID)
	if err != nil {
		return nil, appErrors.FromError(err)
	}
	snapshots := make([]models.CustomerSnapshot, 0, len(rows))
	for _, row := range rows {
		var snapshot models.CustomerSnapshot
		if err := json.Unmarshal(row.Snapshot, &snapshot); err != nil {
			s.logger.Warn("corrupt mirror snapshot",
				zap.String("employee_id", row.EmployeeID),
				zap.String("customer_id", row.CustomerID),
				zap.Error(err))
			continue
		}
		snapshots = append(snapshots, snapshot)
	}
	return snapshots, nil
}

func (s *AssignmentService) mirrorCustomer(ctx context.Context, employeeID, customerID string) error {
	snapshot, err := s.buildSnapshot(ctx, customerID)
	if err != nil {
		return err
	}
	return s.mirror.Upsert(ctx, employeeID, customerID, snapshot)
}

func (s *AssignmentService) buildSnapshot(ctx context.Context, customerID string) ([]byte, error) {
	customer, err := s.accounts.FindByID(ctx, customerID)
	if err != nil {
		return nil, err
	}

	orders, err := s.orders.ListByCustomer(ctx, customerID)
	if err != nil {
		return nil, err
	}
	details := make([]models.OrderDetail, 0, len(orders))
	for _, order := range orders {
		docs, err := s.orders.ListDocuments(ctx, order.ID)
		if err != nil {
			return nil, err
		}
		queries, err := s.orders.ListQueries(ctx, order.ID)
		if err != nil {
			return nil, err
		}
		feedback, err := s.orders.ListFeedback(ctx, order.ID)
		if err != nil {
			return nil, err
		}
		details = append(details, models.OrderDetail{
			Order:     order,
			Documents: docs,
			Queries:   queries,
			Feedback:  feedback,
		})
	}

	var balance float64
	if wallet, err := s.wallets.FindByAccount(ctx, customerID); err == nil {
		balance = wallet.Balance
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	payments, err := s.payments.ListByCustomer(ctx, customerID)
	if err != nil {
		return nil, err
	}

	snapshot := models.CustomerSnapshot{
		ID:            customer.ID,
		FullName:      customer.FullName,
		Email:         customer.Email,
		Phone:         customer.Phone,
		ReferralCode:  customer.ReferralCode,
		PAN:           customer.PAN,
		GSTIN:         customer.GSTIN,
		Address:       customer.Address,
		Orders:        details,
		Payments:      payments,
		WalletBalance: balance,
		SnapshotAt:    time.Now().UTC(),
	}
	return json.Marshal(snapshot)
}
