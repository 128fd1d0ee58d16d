package service

import (
	"context"
	"database/sql"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/taxdesk/taxdesk-api/internal/models"
	"github.com/taxdesk/taxdesk-api/internal/repository"
	appErrors "github.com/taxdesk/taxdesk-api/pkg/errors"
)

type mockOrderStore struct {
	orders    map[string]*models.Order
	documents []models.OrderDocument
	queries   []models.OrderQuery
	replies   []models.OrderQueryReply
	feedback  []models.OrderFeedback
	updateErr error
}

func (m *mockOrderStore) Create(ctx context.Context, order *models.Order) error {
	if m.orders == nil {
		m.orders = map[string]*models.Order{}
	}
	copied := *order
	m.orders[order.ID] = &copied
	return nil
}

func (m *mockOrderStore) FindByID(ctx context.Context, id string) (*models.Order, error) {
	if o, ok := m.orders[id]; ok {
		copied := *o
		return &copied, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockOrderStore) List(ctx context.Context, filter models.OrderFilter) ([]models.Order, int, error) {
	var list []models.Order
	for _, o := range m.orders {
		list = append(list, *o)
	}
	return list, len(list), nil
}

func (m *mockOrderStore) ListByCustomer(ctx context.Context, customerID string) ([]models.Order, error) {
	var list []models.Order
	for _, o := range m.orders {
		if o.CustomerID == customerID {
			list = append(list, *o)
		}
	}
	return list, nil
}

func (m *mockOrderStore) UpdateStatus(ctx context.Context, order *models.Order, expectedVersion int) error {
	if m.updateErr != nil {
		return m.updateErr
	}
	stored, ok := m.orders[order.ID]
	if !ok {
		return sql.ErrNoRows
	}
	if stored.Version != expectedVersion {
		return repository.ErrVersionConflict
	}
	order.Version = expectedVersion + 1
	copied := *order
	m.orders[order.ID] = &copied
	return nil
}

func (m *mockOrderStore) UpdateDueDate(ctx context.Context, orderID string, dueDate time.Time, expectedVersion int) error {
	stored, ok := m.orders[orderID]
	if !ok {
		return sql.ErrNoRows
	}
	if stored.Version != expectedVersion {
		return repository.ErrVersionConflict
	}
	stored.DueDate = dueDate
	stored.Version++
	return nil
}

func (m *mockOrderStore) AddDocument(ctx context.Context, doc *models.OrderDocument) error {
	m.documents = append(m.documents, *doc)
	return nil
}

func (m *mockOrderStore) ListDocuments(ctx context.Context, orderID string) ([]models.OrderDocument, error) {
	var list []models.OrderDocument
	for _, doc := range m.documents {
		if doc.OrderID == orderID {
			list = append(list, doc)
		}
	}
	return list, nil
}

func (m *mockOrderStore) AddQuery(ctx context.Context, q *models.OrderQuery) error {
	m.queries = append(m.queries, *q)
	return nil
}

func (m *mockOrderStore) AddQueryReply(ctx context.Context, reply *models.OrderQueryReply) error {
	m.replies = append(m.replies, *reply)
	return nil
}

func (m *mockOrderStore) ListQueries(ctx context.Context, orderID string) ([]models.OrderQuery, error) {
	var list []models.OrderQuery
	for _, q := range m.queries {
		if q.OrderID == orderID {
			list = append(list, q)
		}
	}
	return list, nil
}

func (m *mockOrderStore) AddFeedback(ctx context.Context, fb *models.OrderFeedback) error {
	m.feedback = append(m.feedback, *fb)
	return nil
}

func (m *mockOrderStore) ListFeedback(ctx context.Context, orderID string) ([]models.OrderFeedback, error) {
	var list []models.OrderFeedback
	for _, fb := range m.feedback {
		if fb.OrderID == orderID {
			list = append(list, fb)
		}
	}
	return list, nil
}

type mockOrderCatalog struct {
	services map[string]*models.Service
	packages []models.Package
}

func (m *mockOrderCatalog) FindServiceByID(ctx context.Context, id string) (*models.Service, error) {
	if svc, ok := m.services[id]; ok {
		return svc, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockOrderCatalog) FindPackage(ctx context.Context, serviceID, name string) (*models.Package, error) {
	for i := range m.packages {
		if m.packages[i].ServiceID == serviceID && m.packages[i].Name == name {
			return &m.packages[i], nil
		}
	}
	return nil, sql.ErrNoRows
}

type mockOrderAccounts struct {
	accounts map[string]*models.Account
}

func (m *mockOrderAccounts) FindByID(ctx context.Context, id string) (*models.Account, error) {
	if a, ok := m.accounts[id]; ok {
		return a, nil
	}
	return nil, sql.ErrNoRows
}

type mockOrderAssigner struct {
	autoAssigned []string
	refreshed    []string
	employee     *models.Account
}

func (m *mockOrderAssigner) AutoAssign(ctx context.Context, order *models.Order) (*models.Account, error) {
	m.autoAssigned = append(m.autoAssigned, order.ID)
	if m.employee != nil {
		order.EmployeeID = &m.employee.ID
		order.Version++
	}
	return m.employee, nil
}

func (m *mockOrderAssigner) RefreshCustomerMirrors(ctx context.Context, customerID string) error {
	m.refreshed = append(m.refreshed, customerID)
	return nil
}

type mockOrderIDs struct{ seq int }

func (m *mockOrderIDs) NextOrderID(ctx context.Context) (string, error) {
	m.seq++
	return FormatID("ORD", int64(m.seq)), nil
}

type mockDocStorage struct{ saved []string }

func (m *mockDocStorage) SaveStream(filename string, r io.Reader) (string, int64, error) {
	m.saved = append(m.saved, filename)
	n, _ := io.Copy(io.Discard, r)
	return filename, n, nil
}

type mockOrderNotifier struct {
	created       int
	statusChanged int
	sentForReview int
	approved      int
	rejected      int
}

func (m *mockOrderNotifier) OrderCreated(order *models.Order)       { m.created++ }
func (m *mockOrderNotifier) OrderStatusChanged(order *models.Order) { m.statusChanged++ }
func (m *mockOrderNotifier) OrderSentForReview(order *models.Order, reviewer *models.Account) {
	m.sentForReview++
}
func (m *mockOrderNotifier) OrderReviewed(order *models.Order, employee *models.Account, approved bool) {
	if approved {
		m.approved++
	} else {
		m.rejected++
	}
}

type orderFixture struct {
	svc      *OrderService
	orders   *mockOrderStore
	accounts *mockOrderAccounts
	assigner *mockOrderAssigner
	storage  *mockDocStorage
	notifier *mockOrderNotifier
}

func newOrderFixture() *orderFixture {
	supervisor := "MGR00001"
	supervisorName := "Lead Reviewer"
	f := &orderFixture{
		orders: &mockOrderStore{orders: map[string]*models.Order{}},
		accounts: &mockOrderAccounts{accounts: map[string]*models.Account{
			"ADM00001": {ID: "ADM00001", Role: models.RoleAdmin, Active: true},
			"MGR00001": {ID: "MGR00001", Role: models.RoleManager, Active: true},
			"EMP00001": {ID: "EMP00001", Role: models.RoleEmployee, Active: true, L1EmpCode: &supervisor, L1Name: &supervisorName},
			"EMP00002": {ID: "EMP00002", Role: models.RoleEmployee, Active: true},
		}},
		assigner: &mockOrderAssigner{},
		storage:  &mockDocStorage{},
		notifier: &mockOrderNotifier{},
	}
	catalog := &mockOrderCatalog{
		services: map[string]*models.Service{
			"SER00001": {ID: "SER00001", Name: "GST Filing", GSTRate: 18},
		},
		packages: []models.Package{
			{ID: "pkg-1", ServiceID: "SER00001", Name: "Basic", DiscountedPrice: 1000, ProcessingDays: 10},
			{ID: "pkg-2", ServiceID: "SER00001", Name: "Instant", DiscountedPrice: 2000},
		},
	}
	f.svc = NewOrderService(f.orders, catalog, f.accounts, f.assigner, &mockOrderIDs{}, f.storage, f.notifier, zap.NewNop())
	return f
}

func (f *orderFixture) seedOrder(status models.OrderStatus, employeeID string) *models.Order {
	order := &models.Order{
		ID:          "ORD00001",
		CustomerID:  "CUS00001",
		ServiceID:   "SER00001",
		ServiceName: "GST Filing",
		PackageName: "Basic",
		Status:      status,
		PurchasedAt: time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC),
		DueDate:     time.Date(2026, 1, 20, 9, 0, 0, 0, time.UTC),
		Version:     1,
	}
	if employeeID != "" {
		order.EmployeeID = &employeeID
	}
	f.orders.orders[order.ID] = order
	return order
}

func TestOrderCreateComputesDueDateAndGST(t *testing.T) {
	f := newOrderFixture()
	purchased := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	order, err := f.svc.Create(context.Background(), CreateOrderInput{
		CustomerID:  "CUS00001",
		ServiceID:   "SER00001",
		PackageName: "Basic",
		PurchasedAt: purchased,
	})
	require.NoError(t, err)
	assert.Equal(t, "ORD00001", order.ID)
	assert.Equal(t, models.OrderStatusInProcess, order.Status)
	assert.Equal(t, purchased.AddDate(0, 0, 10), order.DueDate)
	assert.Equal(t, 1000.0, order.Amount)
	assert.InDelta(t, 90.0, order.CGST, 0.001)
	assert.InDelta(t, 90.0, order.SGST, 0.001)
	assert.Equal(t, 1, f.notifier.created)
	assert.Equal(t, []string{"ORD00001"}, f.assigner.autoAssigned)
	assert.Contains(t, f.assigner.refreshed, "CUS00001")
}

func TestOrderCreateDefaultsProcessingDays(t *testing.T) {
	f := newOrderFixture()
	purchased := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	order, err := f.svc.Create(context.Background(), CreateOrderInput{
		CustomerID:  "CUS00001",
		ServiceID:   "SER00001",
		PackageName: "Instant",
		PurchasedAt: purchased,
	})
	require.NoError(t, err)
	assert.Equal(t, models.DefaultProcessingDays, order.ProcessingDays)
	assert.Equal(t, purchased.AddDate(0, 0, models.DefaultProcessingDays), order.DueDate)
}

func TestOrderCreateSkipsAutoAssignWhenPreBound(t *testing.T) {
	f := newOrderFixture()
	employee := "EMP00001"

	order, err := f.svc.Create(context.Background(), CreateOrderInput{
		CustomerID:  "CUS00001",
		ServiceID:   "SER00001",
		PackageName: "Basic",
		EmployeeID:  &employee,
	})
	require.NoError(t, err)
	require.NotNil(t, order.EmployeeID)
	assert.Equal(t, "EMP00001", *order.EmployeeID)
	assert.Empty(t, f.assigner.autoAssigned)
}

func TestUpdateStatusAcceptsLegacySpellings(t *testing.T) {
	f := newOrderFixture()
	f.seedOrder(models.OrderStatusInProcess, "EMP00001")

	order, err := f.svc.UpdateStatus(context.Background(), "ORD00001", "pending-l1-review")
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusPendingL1Review, order.Status)
	assert.NotNil(t, order.SentForReviewAt)

	// "in-process" is the legacy spelling for a review rejection.
	order, err = f.svc.UpdateStatus(context.Background(), "ORD00001", "in-process")
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusRevision, order.Status)
}

func TestUpdateStatusRejectsUnknownValue(t *testing.T) {
	f := newOrderFixture()
	f.seedOrder(models.OrderStatusInProcess, "EMP00001")

	_, err := f.svc.UpdateStatus(context.Background(), "ORD00001", "archived")
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrInvalidStatus))
}

func TestUpdateStatusRejectsIllegalTransition(t *testing.T) {
	f := newOrderFixture()
	f.seedOrder(models.OrderStatusInProcess, "EMP00001")

	_, err := f.svc.UpdateStatus(context.Background(), "ORD00001", string(models.OrderStatusRevision))
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrInvalidTransition))
}

func TestTerminalOrderCannotChange(t *testing.T) {
	f := newOrderFixture()
	f.seedOrder(models.OrderStatusCompleted, "EMP00001")

	_, err := f.svc.UpdateStatus(context.Background(), "ORD00001", string(models.OrderStatusInProcess))
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrOrderClosed))

	_, err = f.svc.Cancel(context.Background(), "ORD00001", "too late")
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrOrderClosed))
}

func TestVersionConflictSurfacesAsConflict(t *testing.T) {
	f := newOrderFixture()
	f.seedOrder(models.OrderStatusInProcess, "EMP00001")
	f.orders.updateErr = repository.ErrVersionConflict

	_, err := f.svc.Cancel(context.Background(), "ORD00001", "duplicate purchase")
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrConflict))
}

func TestSendForL1ReviewReattributesToActingEmployee(t *testing.T) {
	f := newOrderFixture()
	supervisor := "MGR00001"
	name := "Lead Reviewer"
	f.accounts.accounts["EMP00003"] = &models.Account{
		ID: "EMP00003", Role: models.RoleEmployee, Active: true,
		L1EmpCode: &supervisor, L1Name: &name,
	}
	f.seedOrder(models.OrderStatusInProcess, "EMP00001")

	order, err := f.svc.SendForL1Review(context.Background(), "ORD00001", "EMP00003")
	require.NoError(t, err)
	require.NotNil(t, order.EmployeeID)
	assert.Equal(t, "EMP00003", *order.EmployeeID)
	assert.Equal(t, "EMP00003", *f.orders.orders["ORD00001"].EmployeeID)
}

func TestSendForL1ReviewRequiresSupervisor(t *testing.T) {
	f := newOrderFixture()
	f.seedOrder(models.OrderStatusInProcess, "EMP00002")

	_, err := f.svc.SendForL1Review(context.Background(), "ORD00001", "EMP00002")
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))
}

func TestSendForL1ReviewStampsAndNotifies(t *testing.T) {
	f := newOrderFixture()
	f.seedOrder(models.OrderStatusInProcess, "EMP00001")

	order, err := f.svc.SendForL1Review(context.Background(), "ORD00001", "EMP00001")
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusPendingL1Review, order.Status)
	assert.NotNil(t, order.SentForReviewAt)
	assert.Equal(t, 2, order.Version)
	assert.Equal(t, 1, f.notifier.sentForReview)
}

func TestCompleteL1ReviewForbiddenForNonSupervisor(t *testing.T) {
	f := newOrderFixture()
	f.seedOrder(models.OrderStatusPendingL1Review, "EMP00001")

	_, err := f.svc.CompleteL1Review(context.Background(), "ORD00001", "EMP00002", true, "")
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrForbidden))
}

func TestCompleteL1ReviewApproveCompletes(t *testing.T) {
	f := newOrderFixture()
	f.seedOrder(models.OrderStatusPendingL1Review, "EMP00001")

	order, err := f.svc.CompleteL1Review(context.Background(), "ORD00001", "MGR00001", true, "")
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusCompleted, order.Status)
	assert.NotNil(t, order.CompletedAt)
	assert.Equal(t, 1, f.notifier.approved)
}

func TestCompleteL1ReviewRejectReturnsRevision(t *testing.T) {
	f := newOrderFixture()
	f.seedOrder(models.OrderStatusPendingL1Review, "EMP00001")

	order, err := f.svc.CompleteL1Review(context.Background(), "ORD00001", "MGR00001", false, "missing form 16")
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusRevision, order.Status)
	require.NotNil(t, order.RevisionNote)
	assert.Equal(t, "missing form 16", *order.RevisionNote)
	assert.Equal(t, 1, f.notifier.rejected)
}

func TestCompleteL1ReviewAdminOverride(t *testing.T) {
	f := newOrderFixture()
	f.seedOrder(models.OrderStatusPendingL1Review, "EMP00001")

	order, err := f.svc.CompleteL1Review(context.Background(), "ORD00001", "ADM00001", true, "")
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusCompleted, order.Status)
}

func TestCompleteL1ReviewRequiresPendingState(t *testing.T) {
	f := newOrderFixture()
	f.seedOrder(models.OrderStatusInProcess, "EMP00001")

	_, err := f.svc.CompleteL1Review(context.Background(), "ORD00001", "MGR00001", true, "")
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrInvalidTransition))
}

func TestUploadDocumentRejectsClosedOrder(t *testing.T) {
	f := newOrderFixture()
	f.seedOrder(models.OrderStatusCancelled, "EMP00001")

	_, err := f.svc.UploadDocument(context.Background(), "ORD00001", "CUS00001", "pan.pdf", "application/pdf", strings.NewReader("data"))
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrOrderClosed))
}

func TestUploadDocumentStoresAndRefreshesMirror(t *testing.T) {
	f := newOrderFixture()
	f.seedOrder(models.OrderStatusInProcess, "EMP00001")

	doc, err := f.svc.UploadDocument(context.Background(), "ORD00001", "CUS00001", "pan.pdf", "application/pdf", strings.NewReader("data"))
	require.NoError(t, err)
	assert.Equal(t, "pan.pdf", doc.FileName)
	assert.Equal(t, int64(4), doc.SizeBytes)
	require.Len(t, f.orders.documents, 1)
	assert.Contains(t, f.assigner.refreshed, "CUS00001")
}

func TestUploadDocumentRestartsTurnaroundClock(t *testing.T) {
	f := newOrderFixture()
	f.seedOrder(models.OrderStatusInProcess, "EMP00001")

	doc, err := f.svc.UploadDocument(context.Background(), "ORD00001", "CUS00001", "pan.pdf", "application/pdf", strings.NewReader("data"))
	require.NoError(t, err)

	stored := f.orders.orders["ORD00001"]
	assert.WithinDuration(t, doc.UploadedAt.AddDate(0, 0, 10), stored.DueDate, time.Second)
	assert.Equal(t, 2, stored.Version)
}

func TestExtendDueDateMustMoveForward(t *testing.T) {
	f := newOrderFixture()
	order := f.seedOrder(models.OrderStatusInProcess, "EMP00001")

	_, err := f.svc.ExtendDueDate(context.Background(), "ORD00001", order.DueDate.AddDate(0, 0, -1), "client delay")
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))

	updated, err := f.svc.ExtendDueDate(context.Background(), "ORD00001", order.DueDate.AddDate(0, 0, 5), "client delay")
	require.NoError(t, err)
	assert.Equal(t, order.DueDate.AddDate(0, 0, 5), updated.DueDate)
	require.NotNil(t, updated.DelayReason)
}

func TestAddFeedbackOnlyOnCompletedOrders(t *testing.T) {
	f := newOrderFixture()
	f.seedOrder(models.OrderStatusInProcess, "EMP00001")

	_, err := f.svc.AddFeedback(context.Background(), "ORD00001", "CUS00001", 5, "great")
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))
}

func TestAddFeedbackForbiddenForOtherCustomer(t *testing.T) {
	f := newOrderFixture()
	f.seedOrder(models.OrderStatusCompleted, "EMP00001")

	_, err := f.svc.AddFeedback(context.Background(), "ORD00001", "CUS00099", 5, "great")
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrForbidden))
}

func TestAddFeedbackValidatesRating(t *testing.T) {
	f := newOrderFixture()
	f.seedOrder(models.OrderStatusCompleted, "EMP00001")

	_, err := f.svc.AddFeedback(context.Background(), "ORD00001", "CUS00001", 6, "great")
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))

	fb, err := f.svc.AddFeedback(context.Background(), "ORD00001", "CUS00001", 4, "good work")
	require.NoError(t, err)
	assert.Equal(t, 4, fb.Rating)
}
