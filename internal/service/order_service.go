package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/taxdesk/taxdesk-api/internal/models"
	"github.com/taxdesk/taxdesk-api/internal/repository"
	appErrors "github.com/taxdesk/taxdesk-api/pkg/errors"
)

type orderStore interface {
	Create(ctx context.Context, order *models.Order) error
	FindByID(ctx context.Context, id string) (*models.Order, error)
	List(ctx context.Context, filter models.OrderFilter) ([]models.Order, int, error)
	ListByCustomer(ctx context.Context, customerID string) ([]models.Order, error)
	UpdateStatus(ctx context.Context, order *models.Order, expectedVersion int) error
	UpdateDueDate(ctx context.Context, orderID string, dueDate time.Time, expectedVersion int) error
	AddDocument(ctx context.Context, doc *models.OrderDocument) error
	ListDocuments(ctx context.Context, orderID string) ([]models.OrderDocument, error)
	AddQuery(ctx context.Context, q *models.OrderQuery) error
	AddQueryReply(ctx context.Context, reply *models.OrderQueryReply) error
	ListQueries(ctx context.Context, orderID string) ([]models.OrderQuery, error)
	AddFeedback(ctx context.Context, fb *models.OrderFeedback) error
	ListFeedback(ctx context.Context, orderID string) ([]models.OrderFeedback, error)
}

type orderCatalogStore interface {
	FindServiceByID(ctx context.Context, id string) (*models.Service, error)
	FindPackage(ctx context.Context, serviceID, name string) (*models.Package, error)
}

type orderAccountStore interface {
	FindByID(ctx context.Context, id string) (*models.Account, error)
}

type orderAssigner interface {
	AutoAssign(ctx context.Context, order *models.Order) (*models.Account, error)
	RefreshCustomerMirrors(ctx context.Context, customerID string) error
}

type orderIDMinter interface {
	NextOrderID(ctx context.Context) (string, error)
}

type documentStorage interface {
	SaveStream(filename string, r io.Reader) (string, int64, error)
}

type orderNotifier interface {
	OrderCreated(order *models.Order)
	OrderStatusChanged(order *models.Order)
	OrderSentForReview(order *models.Order, reviewer *models.Account)
	OrderReviewed(order *models.Order, employee *models.Account, approved bool)
}

// CreateOrderInput is the internal order creation payload, shared by direct
// purchases, verified payments and lead conversion.
type CreateOrderInput struct {
	CustomerID  string
	ServiceID   string
	PackageName string
	// EmployeeID pre-binds the order; nil triggers auto-assignment.
	EmployeeID  *string
	PurchasedAt time.Time
}

// OrderService drives the order lifecycle. Orders open in_process, pass
// through the two-tier review gate (pending_l1_review) and close in
// completed or cancelled. Every status write is validated against the
// transition table and guarded by the order version.
type OrderService struct {
	orders   orderStore
	catalog  orderCatalogStore
	accounts orderAccountStore
	assigner orderAssigner
	ids      orderIDMinter
	storage  documentStorage
	notifier orderNotifier
	logger   *zap.Logger
}

// NewOrderService constructs the service.
func NewOrderService(orders orderStore, catalog orderCatalogStore, accounts orderAccountStore, assigner orderAssigner, ids orderIDMinter, storage documentStorage, notifier orderNotifier, logger *zap.Logger) *OrderService {
	return &OrderService{
		orders:   orders,
		catalog:  catalog,
		accounts: accounts,
		assigner: assigner,
		ids:      ids,
		storage:  storage,
		notifier: notifier,
		logger:   logger,
	}
}

// Create opens a new order for a customer against a service package. The due
// date is purchase time plus the package turnaround; GST is derived from the
// service rate and split evenly between CGST and SGST.
func (s *OrderService) Create(ctx context.Context, input CreateOrderInput) (*models.Order, error) {
	service, err := s.catalog.FindServiceByID(ctx, input.ServiceID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "service not found")
		}
		return nil, appErrors.FromError(err)
	}
	pkg, err := s.catalog.FindPackage(ctx, input.ServiceID, input.PackageName)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "package not found")
		}
		return nil, appErrors.FromError(err)
	}

	id, err := s.ids.NextOrderID(ctx)
	if err != nil {
		return nil, err
	}

	purchasedAt := input.PurchasedAt
	if purchasedAt.IsZero() {
		purchasedAt = time.Now().UTC()
	}
	processingDays := ResolveProcessingDays(pkg.ProcessingDays)
	gst := pkg.DiscountedPrice * service.GSTRate / 100

	order := &models.Order{
		ID:             id,
		CustomerID:     input.CustomerID,
		ServiceID:      service.ID,
		ServiceName:    service.Name,
		PackageName:    pkg.Name,
		ProcessingDays: processingDays,
		EmployeeID:     input.EmployeeID,
		Status:         models.OrderStatusInProcess,
		PurchasedAt:    purchasedAt,
		DueDate:        ComputeDueDate(purchasedAt, processingDays),
		Amount:         pkg.DiscountedPrice,
		CGST:           gst / 2,
		SGST:           gst / 2,
		Version:        1,
	}
	if err := s.orders.Create(ctx, order); err != nil {
		return nil, appErrors.FromError(err)
	}

	if order.EmployeeID == nil {
		if _, err := s.assigner.AutoAssign(ctx, order); err != nil {
			s.logger.Warn("auto-assignment failed, order left unassigned",
				zap.String("order_id", order.ID), zap.Error(err))
		}
	}
	if err := s.assigner.RefreshCustomerMirrors(ctx, order.CustomerID); err != nil {
		s.logger.Warn("mirror refresh failed after order creation",
			zap.String("order_id", order.ID), zap.Error(err))
	}

	s.notifier.OrderCreated(order)
	s.logger.Info("order created",
		zap.String("order_id", order.ID),
		zap.String("customer_id", order.CustomerID),
		zap.String("service_id", order.ServiceID))
	return order, nil
}

// Get returns one order.
func (s *OrderService) Get(ctx context.Context, id string) (*models.Order, error) {
	order, err := s.orders.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "order not found")
		}
		return nil, appErrors.FromError(err)
	}
	return order, nil
}

// GetDetail returns an order with its documents, queries and feedback.
func (s *OrderService) GetDetail(ctx context.Context, id string) (*models.OrderDetail, error) {
	order, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	docs, err := s.orders.ListDocuments(ctx, id)
	if err != nil {
		return nil, appErrors.FromError(err)
	}
	queries, err := s.orders.ListQueries(ctx, id)
	if err != nil {
		return nil, appErrors.FromError(err)
	}
	feedback, err := s.orders.ListFeedback(ctx, id)
	if err != nil {
		return nil, appErrors.FromError(err)
	}
	return &models.OrderDetail{Order: *order, Documents: docs, Queries: queries, Feedback: feedback}, nil
}

// List returns orders matching the filter.
func (s *OrderService) List(ctx context.Context, filter models.OrderFilter) ([]models.Order, int, error) {
	return s.orders.List(ctx, filter)
}

// ListDetailByCustomer returns every order of one customer with attachments.
func (s *OrderService) ListDetailByCustomer(ctx context.Context, customerID string) ([]models.OrderDetail, error) {
	orders, err := s.orders.ListByCustomer(ctx, customerID)
	if err != nil {
		return nil, appErrors.FromError(err)
	}
	details := make([]models.OrderDetail, 0, len(orders))
	for _, order := range orders {
		docs, err := s.orders.ListDocuments(ctx, order.ID)
		if err != nil {
			return nil, appErrors.FromError(err)
		}
		details = append(details, models.OrderDetail{Order: order, Documents: docs})
	}
	return details, nil
}

// UploadDocument stores a document file and attaches it to an open order.
func (s *OrderService) UploadDocument(ctx context.Context, orderID, uploadedBy, fileName, mimeType string, r io.Reader) (*models.OrderDocument, error) {
	order, err := s.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.Status.Terminal() {
		return nil, appErrors.Clone(appErrors.ErrOrderClosed, "documents cannot be added to a closed order")
	}

	stored := filepath.Join(orderID, uuid.NewString()+filepath.Ext(fileName))
	path, size, err := s.storage.SaveStream(stored, r)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store document")
	}

	doc := &models.OrderDocument{
		ID:         uuid.NewString(),
		OrderID:    orderID,
		FileName:   fileName,
		FilePath:   path,
		MimeType:   mimeType,
		SizeBytes:  size,
		UploadedBy: uploadedBy,
		UploadedAt: time.Now().UTC(),
	}
	if err := s.orders.AddDocument(ctx, doc); err != nil {
		return nil, appErrors.FromError(err)
	}

	// The turnaround clock restarts on every upload: the customer handing
	// over papers is what starts the work.
	days := order.ProcessingDays
	if pkg, pkgErr := s.catalog.FindPackage(ctx, order.ServiceID, order.PackageName); pkgErr == nil {
		days = pkg.ProcessingDays
	}
	newDue := ComputeDueDate(doc.UploadedAt, days)
	if err := s.orders.UpdateDueDate(ctx, orderID, newDue, order.Version); err != nil {
		if errors.Is(err, repository.ErrVersionConflict) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "order was modified concurrently")
		}
		return nil, appErrors.FromError(err)
	}

	if err := s.assigner.RefreshCustomerMirrors(ctx, order.CustomerID); err != nil {
		s.logger.Warn("mirror refresh failed after document upload",
			zap.String("order_id", orderID), zap.Error(err))
	}
	return doc, nil
}

// SendForL1Review moves an order from in_process or revision to
// pending_l1_review. The order is re-attributed to the acting employee, who
// must have a configured supervisor.
func (s *OrderService) SendForL1Review(ctx context.Context, orderID, employeeID string) (*models.Order, error) {
	order, err := s.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if err := validateOrderTransition(order.Status, models.OrderStatusPendingL1Review); err != nil {
		return nil, err
	}

	employee, err := s.accounts.FindByID(ctx, employeeID)
	if err != nil {
		return nil, appErrors.FromError(err)
	}
	if employee.Role != models.RoleEmployee {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only employees submit orders for review")
	}
	if employee.L1EmpCode == nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "employee has no review supervisor")
	}
	reviewer, err := s.accounts.FindByID(ctx, *employee.L1EmpCode)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "review supervisor not found")
	}

	now := time.Now().UTC()
	expected := order.Version
	order.Status = models.OrderStatusPendingL1Review
	order.EmployeeID = &employeeID
	order.SentForReviewAt = &now
	if err := s.writeStatus(ctx, order, expected); err != nil {
		return nil, err
	}

	s.notifier.OrderSentForReview(order, reviewer)
	return order, nil
}

// CompleteL1Review resolves a pending review. Approval completes the order;
// rejection returns it to the employee as a revision with a note. The
// reviewer must be the assigned employee's L1 supervisor or an admin.
func (s *OrderService) CompleteL1Review(ctx context.Context, orderID, reviewerID string, approve bool, note string) (*models.Order, error) {
	order, err := s.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.Status != models.OrderStatusPendingL1Review {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "order is not pending review")
	}

	reviewer, err := s.accounts.FindByID(ctx, reviewerID)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "reviewer not found")
	}
	var employee *models.Account
	if order.EmployeeID != nil {
		employee, err = s.accounts.FindByID(ctx, *order.EmployeeID)
		if err != nil {
			return nil, appErrors.FromError(err)
		}
	}
	if reviewer.Role != models.RoleAdmin {
		if employee == nil {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "order has no assigned employee")
		}
		if employee.L1EmpCode == nil || *employee.L1EmpCode != reviewerID {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "reviewer is not the assigned employee's supervisor")
		}
	}

	now := time.Now().UTC()
	expected := order.Version
	if approve {
		order.Status = models.OrderStatusCompleted
		order.CompletedAt = &now
	} else {
		order.Status = models.OrderStatusRevision
		order.RevisionNote = &note
	}
	if err := s.writeStatus(ctx, order, expected); err != nil {
		return nil, err
	}

	if employee != nil {
		s.notifier.OrderReviewed(order, employee, approve)
	}
	return order, nil
}

// UpdateStatus applies a raw status change, accepting legacy spellings. The
// transition table rejects anything the lifecycle does not allow, including
// any move out of a terminal state.
func (s *OrderService) UpdateStatus(ctx context.Context, orderID, rawStatus string) (*models.Order, error) {
	target, ok := models.ParseOrderStatus(rawStatus)
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrInvalidStatus,
			fmt.Sprintf("unknown order status %q", rawStatus))
	}

	order, err := s.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if err := validateOrderTransition(order.Status, target); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	expected := order.Version
	order.Status = target
	switch target {
	case models.OrderStatusCompleted:
		order.CompletedAt = &now
	case models.OrderStatusPendingL1Review:
		order.SentForReviewAt = &now
	}
	if err := s.writeStatus(ctx, order, expected); err != nil {
		return nil, err
	}
	return order, nil
}

// Cancel closes an open order.
func (s *OrderService) Cancel(ctx context.Context, orderID, reason string) (*models.Order, error) {
	order, err := s.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if err := validateOrderTransition(order.Status, models.OrderStatusCancelled); err != nil {
		return nil, err
	}

	expected := order.Version
	order.Status = models.OrderStatusCancelled
	if reason != "" {
		order.DelayReason = &reason
	}
	if err := s.writeStatus(ctx, order, expected); err != nil {
		return nil, err
	}
	return order, nil
}

// ExtendDueDate pushes an open order's due date with a delay reason.
func (s *OrderService) ExtendDueDate(ctx context.Context, orderID string, newDueDate time.Time, reason string) (*models.Order, error) {
	order, err := s.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.Status.Terminal() {
		return nil, appErrors.Clone(appErrors.ErrOrderClosed, "closed orders cannot be rescheduled")
	}
	if !newDueDate.After(order.DueDate) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "new due date must be after the current one")
	}

	expected := order.Version
	order.DueDate = newDueDate
	order.DelayReason = &reason
	if err := s.writeStatus(ctx, order, expected); err != nil {
		return nil, err
	}
	return order, nil
}

// AddQuery opens a message thread on an order.
func (s *OrderService) AddQuery(ctx context.Context, orderID, authorID, message string) (*models.OrderQuery, error) {
	if _, err := s.Get(ctx, orderID); err != nil {
		return nil, err
	}
	q := &models.OrderQuery{
		ID:        uuid.NewString(),
		OrderID:   orderID,
		AuthorID:  authorID,
		Message:   strings.TrimSpace(message),
		CreatedAt: time.Now().UTC(),
	}
	if q.Message == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "message is required")
	}
	if err := s.orders.AddQuery(ctx, q); err != nil {
		return nil, appErrors.FromError(err)
	}
	return q, nil
}

// ReplyQuery appends a reply to a query thread.
func (s *OrderService) ReplyQuery(ctx context.Context, queryID, authorID, message string) (*models.OrderQueryReply, error) {
	reply := &models.OrderQueryReply{
		ID:        uuid.NewString(),
		QueryID:   queryID,
		AuthorID:  authorID,
		Message:   strings.TrimSpace(message),
		CreatedAt: time.Now().UTC(),
	}
	if reply.Message == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "message is required")
	}
	if err := s.orders.AddQueryReply(ctx, reply); err != nil {
		return nil, appErrors.FromError(err)
	}
	return reply, nil
}

// AddFeedback records a customer rating on a completed order.
func (s *OrderService) AddFeedback(ctx context.Context, orderID, customerID string, rating int, comment string) (*models.OrderFeedback, error) {
	order, err := s.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.CustomerID != customerID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "feedback is limited to the order's customer")
	}
	if order.Status != models.OrderStatusCompleted {
		return nil, appErrors.Clone(appErrors.ErrValidation, "feedback is only accepted on completed orders")
	}
	if rating < 1 || rating > 5 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "rating must be between 1 and 5")
	}

	fb := &models.OrderFeedback{
		ID:        uuid.NewString(),
		OrderID:   orderID,
		Rating:    rating,
		Comment:   strings.TrimSpace(comment),
		CreatedAt: time.Now().UTC(),
	}
	if err := s.orders.AddFeedback(ctx, fb); err != nil {
		return nil, appErrors.FromError(err)
	}
	return fb, nil
}

func (s *OrderService) writeStatus(ctx context.Context, order *models.Order, expectedVersion int) error {
	if err := s.orders.UpdateStatus(ctx, order, expectedVersion); err != nil {
		if errors.Is(err, repository.ErrVersionConflict) {
			return appErrors.Clone(appErrors.ErrConflict, "order was modified concurrently")
		}
		return appErrors.FromError(err)
	}
	if err := s.assigner.RefreshCustomerMirrors(ctx, order.CustomerID); err != nil {
		s.logger.Warn("mirror refresh failed after status change",
			zap.String("order_id", order.ID), zap.Error(err))
	}
	s.notifier.OrderStatusChanged(order)
	return nil
}

func validateOrderTransition(from, to models.OrderStatus) error {
	if from.Terminal() {
		return appErrors.Clone(appErrors.ErrOrderClosed,
			fmt.Sprintf("order is %s and cannot change", from))
	}
	if !from.CanTransitionTo(to) {
		return appErrors.Clone(appErrors.ErrInvalidTransition,
			fmt.Sprintf("order cannot move from %s to %s", from, to))
	}
	return nil
}
