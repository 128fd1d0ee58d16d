package service

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/taxdesk/taxdesk-api/internal/models"
	appErrors "github.com/taxdesk/taxdesk-api/pkg/errors"
)

type mockLeadStore struct {
	leads map[string]*models.Lead
}

func (m *mockLeadStore) Create(ctx context.Context, lead *models.Lead) error {
	if m.leads == nil {
		m.leads = map[string]*models.Lead{}
	}
	copied := *lead
	m.leads[lead.ID] = &copied
	return nil
}

func (m *mockLeadStore) FindByID(ctx context.Context, id string) (*models.Lead, error) {
	if lead, ok := m.leads[id]; ok {
		copied := *lead
		return &copied, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockLeadStore) List(ctx context.Context, filter models.LeadFilter) ([]models.Lead, int, error) {
	var list []models.Lead
	for _, lead := range m.leads {
		list = append(list, *lead)
	}
	return list, len(list), nil
}

func (m *mockLeadStore) Update(ctx context.Context, lead *models.Lead) error {
	if _, ok := m.leads[lead.ID]; !ok {
		return sql.ErrNoRows
	}
	copied := *lead
	m.leads[lead.ID] = &copied
	return nil
}

type mockLeadCatalog struct {
	services map[string]*models.Service
	packages []models.Package
}

func (m *mockLeadCatalog) FindServiceByID(ctx context.Context, id string) (*models.Service, error) {
	if svc, ok := m.services[id]; ok {
		return svc, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockLeadCatalog) FirstPackage(ctx context.Context, serviceID string) (*models.Package, error) {
	var cheapest *models.Package
	for i := range m.packages {
		pkg := &m.packages[i]
		if pkg.ServiceID != serviceID {
			continue
		}
		if cheapest == nil || pkg.DiscountedPrice < cheapest.DiscountedPrice {
			cheapest = pkg
		}
	}
	if cheapest == nil {
		return nil, sql.ErrNoRows
	}
	return cheapest, nil
}

func (m *mockLeadCatalog) FindPackage(ctx context.Context, serviceID, name string) (*models.Package, error) {
	for i := range m.packages {
		if m.packages[i].ServiceID == serviceID && m.packages[i].Name == name {
			return &m.packages[i], nil
		}
	}
	return nil, sql.ErrNoRows
}

type mockLeadAccounts struct {
	accounts map[string]*models.Account
	created  []*models.Account
}

func (m *mockLeadAccounts) FindByID(ctx context.Context, id string) (*models.Account, error) {
	if a, ok := m.accounts[id]; ok {
		return a, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockLeadAccounts) FindByEmail(ctx context.Context, email string) (*models.Account, error) {
	for _, a := range m.accounts {
		if a.Email == email {
			return a, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *mockLeadAccounts) Create(ctx context.Context, account *models.Account) error {
	if m.accounts == nil {
		m.accounts = map[string]*models.Account{}
	}
	m.accounts[account.ID] = account
	m.created = append(m.created, account)
	return nil
}

type mockLeadOrders struct {
	created []CreateOrderInput
	nextID  int
}

func (m *mockLeadOrders) Create(ctx context.Context, input CreateOrderInput) (*models.Order, error) {
	m.created = append(m.created, input)
	m.nextID++
	return &models.Order{
		ID:          fmt.Sprintf("ORD%05d", m.nextID),
		CustomerID:  input.CustomerID,
		ServiceID:   input.ServiceID,
		PackageName: input.PackageName,
		EmployeeID:  input.EmployeeID,
		Status:      models.OrderStatusInProcess,
		Version:     1,
	}, nil
}

type mockLeadWallets struct {
	ensured []string
}

func (m *mockLeadWallets) EnsureWallet(ctx context.Context, accountID string) (*models.Wallet, error) {
	m.ensured = append(m.ensured, accountID)
	return &models.Wallet{ID: "wallet-" + accountID, AccountID: accountID}, nil
}

type mockLeadIDs struct {
	leadSeq    int
	accountSeq int
}

func (m *mockLeadIDs) NextLeadID(ctx context.Context) (string, error) {
	m.leadSeq++
	return fmt.Sprintf("LEAD%05d", m.leadSeq), nil
}

func (m *mockLeadIDs) NextAccountID(ctx context.Context, role models.Role) (string, error) {
	m.accountSeq++
	return fmt.Sprintf("%s%05d", role.Prefix(), m.accountSeq), nil
}

type mockLeadNotifier struct {
	assigned     int
	tempPassword string
}

func (m *mockLeadNotifier) LeadAssigned(lead *models.Lead, employee *models.Account) { m.assigned++ }

func (m *mockLeadNotifier) AccountCreated(account *models.Account, tempPassword string) {
	m.tempPassword = tempPassword
}

type leadFixture struct {
	svc      *LeadService
	leads    *mockLeadStore
	accounts *mockLeadAccounts
	orders   *mockLeadOrders
	wallets  *mockLeadWallets
	notifier *mockLeadNotifier
}

func newLeadFixture() *leadFixture {
	f := &leadFixture{
		leads: &mockLeadStore{leads: map[string]*models.Lead{}},
		accounts: &mockLeadAccounts{accounts: map[string]*models.Account{
			"EMP00001": {ID: "EMP00001", Role: models.RoleEmployee, Active: true, Email: "emp1@taxdesk.in"},
		}},
		orders:   &mockLeadOrders{},
		wallets:  &mockLeadWallets{},
		notifier: &mockLeadNotifier{},
	}
	catalog := &mockLeadCatalog{
		services: map[string]*models.Service{
			"SER00001": {ID: "SER00001", Name: "GST Filing", GSTRate: 18},
		},
		packages: []models.Package{
			{ID: "pkg-1", ServiceID: "SER00001", Name: "Premium", DiscountedPrice: 4999, ProcessingDays: 10},
			{ID: "pkg-2", ServiceID: "SER00001", Name: "Basic", DiscountedPrice: 999, ProcessingDays: 5},
		},
	}
	f.svc = NewLeadService(f.leads, catalog, f.accounts, f.orders, f.wallets, &mockLeadIDs{}, f.notifier, zap.NewNop())
	return f
}

func (f *leadFixture) seedLead(status models.LeadStatus, employeeID string) *models.Lead {
	lead := &models.Lead{
		ID:        "LEAD00001",
		FullName:  "Asha Rao",
		Email:     "asha@example.com",
		Phone:     "9876543210",
		ServiceID: "SER00001",
		Status:    status,
	}
	if employeeID != "" {
		lead.EmployeeID = &employeeID
	}
	f.leads.leads[lead.ID] = lead
	return lead
}

func TestLeadCreateRejectsUnknownService(t *testing.T) {
	f := newLeadFixture()
	_, err := f.svc.Create(context.Background(), CreateLeadRequest{
		FullName:  "Asha Rao",
		Email:     "asha@example.com",
		Phone:     "9876543210",
		ServiceID: "SER99999",
	})
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrNotFound))
}

func TestLeadAssignMovesNewToAssigned(t *testing.T) {
	f := newLeadFixture()
	f.seedLead(models.LeadStatusNew, "")

	lead, err := f.svc.AssignToEmployee(context.Background(), "LEAD00001", "EMP00001")
	require.NoError(t, err)
	assert.Equal(t, models.LeadStatusAssigned, lead.Status)
	require.NotNil(t, lead.EmployeeID)
	assert.Equal(t, "EMP00001", *lead.EmployeeID)
	assert.NotNil(t, lead.AssignedAt)
	assert.Equal(t, 1, f.notifier.assigned)
}

func TestLeadAcceptForbiddenForOtherEmployee(t *testing.T) {
	f := newLeadFixture()
	f.seedLead(models.LeadStatusAssigned, "EMP00001")

	_, err := f.svc.Accept(context.Background(), "LEAD00001", "EMP00099")
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrForbidden))
}

func TestLeadDeclineIsTerminal(t *testing.T) {
	f := newLeadFixture()
	f.seedLead(models.LeadStatusAssigned, "EMP00001")

	lead, err := f.svc.Decline(context.Background(), "LEAD00001", "EMP00001", "out of scope")
	require.NoError(t, err)
	assert.Equal(t, models.LeadStatusDeclined, lead.Status)
	require.NotNil(t, lead.DeclineReason)
	assert.Equal(t, "out of scope", *lead.DeclineReason)

	_, err = f.svc.Accept(context.Background(), "LEAD00001", "EMP00001")
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrInvalidTransition))
}

func TestLeadDeclineDefaultsReason(t *testing.T) {
	f := newLeadFixture()
	f.seedLead(models.LeadStatusAssigned, "EMP00001")

	lead, err := f.svc.Decline(context.Background(), "LEAD00001", "EMP00001", "  ")
	require.NoError(t, err)
	require.NotNil(t, lead.DeclineReason)
	assert.Equal(t, "No reason provided", *lead.DeclineReason)
}

func TestLeadConvertCreatesAccountWalletAndOrder(t *testing.T) {
	f := newLeadFixture()
	f.seedLead(models.LeadStatusAccepted, "EMP00001")

	result, err := f.svc.Convert(context.Background(), "LEAD00001", "EMP00001", "Basic")
	require.NoError(t, err)
	require.NotNil(t, result.Account)
	assert.Equal(t, "CUS00001", result.Account.ID)
	assert.Equal(t, models.RoleCustomer, result.Account.Role)
	assert.NotEmpty(t, result.Account.ReferralCode)
	assert.True(t, strings.HasPrefix(result.Account.Username, "asha-"))
	assert.NotEmpty(t, f.notifier.tempPassword)

	assert.Equal(t, []string{"CUS00001"}, f.wallets.ensured)
	require.Len(t, f.orders.created, 1)
	created := f.orders.created[0]
	assert.Equal(t, "CUS00001", created.CustomerID)
	assert.Equal(t, "Basic", created.PackageName)
	require.NotNil(t, created.EmployeeID)
	assert.Equal(t, "EMP00001", *created.EmployeeID)

	stored := f.leads.leads["LEAD00001"]
	assert.Equal(t, models.LeadStatusConverted, stored.Status)
	require.NotNil(t, stored.ConvertedOrderID)
	assert.Equal(t, result.OrderID, *stored.ConvertedOrderID)
}

func TestLeadConvertDefaultsToCheapestPackage(t *testing.T) {
	f := newLeadFixture()
	f.seedLead(models.LeadStatusAccepted, "EMP00001")

	_, err := f.svc.Convert(context.Background(), "LEAD00001", "EMP00001", "")
	require.NoError(t, err)
	require.Len(t, f.orders.created, 1)
	assert.Equal(t, "Basic", f.orders.created[0].PackageName)
}

func TestLeadConvertReusesExistingCustomer(t *testing.T) {
	f := newLeadFixture()
	f.seedLead(models.LeadStatusAccepted, "EMP00001")
	f.accounts.accounts["CUS00077"] = &models.Account{
		ID:    "CUS00077",
		Role:  models.RoleCustomer,
		Email: "asha@example.com",
	}

	result, err := f.svc.Convert(context.Background(), "LEAD00001", "EMP00001", "Basic")
	require.NoError(t, err)
	assert.Equal(t, "CUS00077", result.Account.ID)
	assert.Empty(t, f.accounts.created)
	assert.Empty(t, f.notifier.tempPassword)
}

func TestLeadConvertRejectsStaffEmail(t *testing.T) {
	f := newLeadFixture()
	f.seedLead(models.LeadStatusAccepted, "EMP00001")
	f.accounts.accounts["EMP00002"] = &models.Account{
		ID:    "EMP00002",
		Role:  models.RoleEmployee,
		Email: "asha@example.com",
	}

	_, err := f.svc.Convert(context.Background(), "LEAD00001", "EMP00001", "Basic")
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrConflict))
}

func TestLeadConvertIsSingleUse(t *testing.T) {
	f := newLeadFixture()
	f.seedLead(models.LeadStatusAccepted, "EMP00001")

	_, err := f.svc.Convert(context.Background(), "LEAD00001", "EMP00001", "Basic")
	require.NoError(t, err)

	_, err = f.svc.Convert(context.Background(), "LEAD00001", "EMP00001", "Basic")
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrInvalidTransition))
	require.Len(t, f.orders.created, 1)
}

func TestLeadConvertRequiresAcceptedState(t *testing.T) {
	f := newLeadFixture()
	f.seedLead(models.LeadStatusAssigned, "EMP00001")

	_, err := f.svc.Convert(context.Background(), "LEAD00001", "EMP00001", "Basic")
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrInvalidTransition))
}
