package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/taxdesk/taxdesk-api/internal/models"
	appErrors "github.com/taxdesk/taxdesk-api/pkg/errors"
)

type leadStore interface {
	Create(ctx context.Context, lead *models.Lead) error
	FindByID(ctx context.Context, id string) (*models.Lead, error)
	List(ctx context.Context, filter models.LeadFilter) ([]models.Lead, int, error)
	Update(ctx context.Context, lead *models.Lead) error
}

type leadCatalogStore interface {
	FindServiceByID(ctx context.Context, id string) (*models.Service, error)
	FirstPackage(ctx context.Context, serviceID string) (*models.Package, error)
	FindPackage(ctx context.Context, serviceID, name string) (*models.Package, error)
}

type leadAccountStore interface {
	FindByID(ctx context.Context, id string) (*models.Account, error)
	FindByEmail(ctx context.Context, email string) (*models.Account, error)
	Create(ctx context.Context, account *models.Account) error
}

type leadOrderCreator interface {
	Create(ctx context.Context, input CreateOrderInput) (*models.Order, error)
}

type leadIDMinter interface {
	NextLeadID(ctx context.Context) (string, error)
	NextAccountID(ctx context.Context, role models.Role) (string, error)
}

type leadWalletCreator interface {
	EnsureWallet(ctx context.Context, accountID string) (*models.Wallet, error)
}

type leadNotifier interface {
	LeadAssigned(lead *models.Lead, employee *models.Account)
	AccountCreated(account *models.Account, tempPassword string)
}

// LeadService drives the lead state machine: new -> assigned -> accepted ->
// converted, with declined as the dead end after assignment. Conversion is
// single-use; a converted or declined lead never moves again.
type LeadService struct {
	leads    leadStore
	catalog  leadCatalogStore
	accounts leadAccountStore
	orders   leadOrderCreator
	wallets  leadWalletCreator
	ids      leadIDMinter
	notifier leadNotifier
	logger   *zap.Logger
}

// NewLeadService constructs the service.
func NewLeadService(leads leadStore, catalog leadCatalogStore, accounts leadAccountStore, orders leadOrderCreator, wallets leadWalletCreator, ids leadIDMinter, notifier leadNotifier, logger *zap.Logger) *LeadService {
	return &LeadService{
		leads:    leads,
		catalog:  catalog,
		accounts: accounts,
		orders:   orders,
		wallets:  wallets,
		ids:      ids,
		notifier: notifier,
		logger:   logger,
	}
}

// CreateLeadRequest is the public inquiry payload.
type CreateLeadRequest struct {
	FullName  string `json:"full_name" validate:"required,min=2"`
	Email     string `json:"email" validate:"required,email"`
	Phone     string `json:"phone" validate:"required,min=8"`
	ServiceID string `json:"service_id" validate:"required"`
	Message   string `json:"message"`
}

// Create records a new inquiry against an existing catalog service.
func (s *LeadService) Create(ctx context.Context, req CreateLeadRequest) (*models.Lead, error) {
	if _, err := s.catalog.FindServiceByID(ctx, req.ServiceID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "service not found")
		}
		return nil, appErrors.FromError(err)
	}

	id, err := s.ids.NextLeadID(ctx)
	if err != nil {
		return nil, err
	}
	lead := &models.Lead{
		ID:        id,
		FullName:  strings.TrimSpace(req.FullName),
		Email:     strings.ToLower(strings.TrimSpace(req.Email)),
		Phone:     strings.TrimSpace(req.Phone),
		ServiceID: req.ServiceID,
		Message:   strings.TrimSpace(req.Message),
		Status:    models.LeadStatusNew,
	}
	if err := s.leads.Create(ctx, lead); err != nil {
		return nil, appErrors.FromError(err)
	}
	s.logger.Info("lead created", zap.String("lead_id", lead.ID), zap.String("service_id", lead.ServiceID))
	return lead, nil
}

// Get returns one lead.
func (s *LeadService) Get(ctx context.Context, id string) (*models.Lead, error) {
	lead, err := s.leads.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "lead not found")
		}
		return nil, appErrors.FromError(err)
	}
	return lead, nil
}

// List returns leads matching the filter.
func (s *LeadService) List(ctx context.Context, filter models.LeadFilter) ([]models.Lead, int, error) {
	return s.leads.List(ctx, filter)
}

// AssignToEmployee moves a new lead to assigned.
func (s *LeadService) AssignToEmployee(ctx context.Context, leadID, employeeID string) (*models.Lead, error) {
	lead, err := s.Get(ctx, leadID)
	if err != nil {
		return nil, err
	}
	if err := s.transition(lead, models.LeadStatusAssigned); err != nil {
		return nil, err
	}

	employee, err := s.accounts.FindByID(ctx, employeeID)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "employee not found")
	}
	if employee.Role != models.RoleEmployee || !employee.Active {
		return nil, appErrors.Clone(appErrors.ErrValidation, "assignee must be an active employee")
	}

	now := time.Now().UTC()
	lead.Status = models.LeadStatusAssigned
	lead.EmployeeID = &employee.ID
	lead.AssignedAt = &now
	if err := s.leads.Update(ctx, lead); err != nil {
		return nil, appErrors.FromError(err)
	}
	s.notifier.LeadAssigned(lead, employee)
	return lead, nil
}

// Accept moves an assigned lead to accepted. Only the assigned employee may
// accept.
func (s *LeadService) Accept(ctx context.Context, leadID, employeeID string) (*models.Lead, error) {
	lead, err := s.Get(ctx, leadID)
	if err != nil {
		return nil, err
	}
	if lead.EmployeeID == nil || *lead.EmployeeID != employeeID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "lead is not assigned to this employee")
	}
	if err := s.transition(lead, models.LeadStatusAccepted); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	lead.Status = models.LeadStatusAccepted
	lead.AcceptedAt = &now
	if err := s.leads.Update(ctx, lead); err != nil {
		return nil, appErrors.FromError(err)
	}
	return lead, nil
}

// Decline moves an assigned lead to declined. Terminal. An omitted reason is
// recorded as a placeholder rather than rejected.
func (s *LeadService) Decline(ctx context.Context, leadID, employeeID, reason string) (*models.Lead, error) {
	lead, err := s.Get(ctx, leadID)
	if err != nil {
		return nil, err
	}
	if lead.EmployeeID == nil || *lead.EmployeeID != employeeID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "lead is not assigned to this employee")
	}
	if err := s.transition(lead, models.LeadStatusDeclined); err != nil {
		return nil, err
	}

	if strings.TrimSpace(reason) == "" {
		reason = "No reason provided"
	}
	now := time.Now().UTC()
	lead.Status = models.LeadStatusDeclined
	lead.DeclinedAt = &now
	lead.DeclineReason = &reason
	if err := s.leads.Update(ctx, lead); err != nil {
		return nil, appErrors.FromError(err)
	}
	return lead, nil
}

// Convert turns an accepted lead into a customer account plus an order for
// the lead's service. The packageName is optional; when empty the cheapest
// package of the service is used. An account already registered under the
// lead's email is reused instead of duplicated. The created order is bound
// to the employee who accepted the lead.
func (s *LeadService) Convert(ctx context.Context, leadID, employeeID, packageName string) (*models.ConversionResult, error) {
	lead, err := s.Get(ctx, leadID)
	if err != nil {
		return nil, err
	}
	if lead.EmployeeID == nil || *lead.EmployeeID != employeeID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "lead is not assigned to this employee")
	}
	if err := s.transition(lead, models.LeadStatusConverted); err != nil {
		return nil, err
	}

	var pkg *models.Package
	if packageName != "" {
		pkg, err = s.catalog.FindPackage(ctx, lead.ServiceID, packageName)
	} else {
		pkg, err = s.catalog.FirstPackage(ctx, lead.ServiceID)
	}
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "service has no matching package")
		}
		return nil, appErrors.FromError(err)
	}

	account, tempPassword, err := s.ensureCustomer(ctx, lead)
	if err != nil {
		return nil, err
	}
	if _, err := s.wallets.EnsureWallet(ctx, account.ID); err != nil {
		return nil, err
	}

	order, err := s.orders.Create(ctx, CreateOrderInput{
		CustomerID:  account.ID,
		ServiceID:   lead.ServiceID,
		PackageName: pkg.Name,
		EmployeeID:  &employeeID,
	})
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	lead.Status = models.LeadStatusConverted
	lead.ConvertedAt = &now
	lead.ConvertedOrderID = &order.ID
	if err := s.leads.Update(ctx, lead); err != nil {
		return nil, appErrors.FromError(err)
	}

	if tempPassword != "" {
		s.notifier.AccountCreated(account, tempPassword)
	}
	s.logger.Info("lead converted",
		zap.String("lead_id", lead.ID),
		zap.String("customer_id", account.ID),
		zap.String("order_id", order.ID))
	return &models.ConversionResult{Account: account, OrderID: order.ID}, nil
}

func (s *LeadService) transition(lead *models.Lead, target models.LeadStatus) error {
	if !lead.Status.CanTransitionTo(target) {
		return appErrors.Clone(appErrors.ErrInvalidTransition,
			fmt.Sprintf("lead cannot move from %s to %s", lead.Status, target))
	}
	return nil
}

func (s *LeadService) ensureCustomer(ctx context.Context, lead *models.Lead) (*models.Account, string, error) {
	existing, err := s.accounts.FindByEmail(ctx, lead.Email)
	if err == nil {
		if existing.Role != models.RoleCustomer {
			return nil, "", appErrors.Clone(appErrors.ErrConflict, "email belongs to a staff account")
		}
		return existing, "", nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, "", appErrors.FromError(err)
	}

	id, err := s.ids.NextAccountID(ctx, models.RoleCustomer)
	if err != nil {
		return nil, "", err
	}
	tempPassword := uuid.NewString()[:12]
	hash, err := bcrypt.GenerateFromPassword([]byte(tempPassword), bcrypt.DefaultCost)
	if err != nil {
		return nil, "", appErrors.FromError(err)
	}

	account := &models.Account{
		ID:           id,
		Role:         models.RoleCustomer,
		Email:        lead.Email,
		PasswordHash: string(hash),
		FullName:     lead.FullName,
		Phone:        lead.Phone,
		Username:     newUsername(lead.Email),
		Active:       true,
		ReferralCode: NewReferralCode(),
	}
	if err := s.accounts.Create(ctx, account); err != nil {
		return nil, "", appErrors.FromError(err)
	}
	return account, tempPassword, nil
}

// NewReferralCode mints a short shareable referral code.
func NewReferralCode() string {
	return strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
}

// newUsername derives a login name from the email local-part with a random
// suffix so two customers sharing a local-part never collide.
func newUsername(email string) string {
	local := email
	if at := strings.Index(email, "@"); at > 0 {
		local = email[:at]
	}
	suffix := strings.ToLower(strings.ReplaceAll(uuid.NewString(), "-", "")[:4])
	return strings.ToLower(local) + "-" + suffix
}
