package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/taxdesk/taxdesk-api/internal/models"
	appErrors "github.com/taxdesk/taxdesk-api/pkg/errors"
)

type accountStore interface {
	List(ctx context.Context, filter models.AccountFilter) ([]models.Account, int, error)
	FindByID(ctx context.Context, id string) (*models.Account, error)
	FindByEmail(ctx context.Context, email string) (*models.Account, error)
	FindByReferralCode(ctx context.Context, code string) (*models.Account, error)
	Create(ctx context.Context, account *models.Account) error
	Update(ctx context.Context, account *models.Account) error
	UpdatePassword(ctx context.Context, id, passwordHash string, updatedAt time.Time) error
}

type accountIDMinter interface {
	NextAccountID(ctx context.Context, role models.Role) (string, error)
}

type accountBackfiller interface {
	BackfillUnassigned(ctx context.Context, employeeID string) ([]models.AssignmentResult, error)
	RefreshCustomerMirrors(ctx context.Context, customerID string) error
}

type accountWalletCreator interface {
	EnsureWallet(ctx context.Context, accountID string) (*models.Wallet, error)
}

type accountNotifier interface {
	AccountCreated(account *models.Account, tempPassword string)
}

// AccountService manages portal accounts and the staff supervisor chain.
// Creating an employee stamps the creator as the L1 reviewer; creating a
// manager additionally stamps the creating admin as L2.
type AccountService struct {
	accounts accountStore
	ids      accountIDMinter
	assigner accountBackfiller
	wallets  accountWalletCreator
	notifier accountNotifier
	logger   *zap.Logger
}

// NewAccountService constructs the service.
func NewAccountService(accounts accountStore, ids accountIDMinter, assigner accountBackfiller, wallets accountWalletCreator, notifier accountNotifier, logger *zap.Logger) *AccountService {
	return &AccountService{accounts: accounts, ids: ids, assigner: assigner, wallets: wallets, notifier: notifier, logger: logger}
}

// CreateAccountRequest is the staff/customer creation payload.
type CreateAccountRequest struct {
	Role            models.Role `json:"role" validate:"required,oneof=ADMIN MANAGER EMPLOYEE CUSTOMER"`
	Email           string      `json:"email" validate:"required,email"`
	Password        string      `json:"password" validate:"omitempty,min=6"`
	FullName        string      `json:"full_name" validate:"required,min=2"`
	Phone           string      `json:"phone" validate:"required,min=8"`
	Username        string      `json:"username"`
	HandledServices []string    `json:"handled_services"`
	ReferralCode    string      `json:"referral_code"`
	PAN             *string     `json:"pan"`
	GSTIN           *string     `json:"gstin"`
	Address         *string     `json:"address"`
}

// UpdateAccountRequest carries mutable profile fields.
type UpdateAccountRequest struct {
	FullName        *string  `json:"full_name" validate:"omitempty,min=2"`
	Phone           *string  `json:"phone" validate:"omitempty,min=8"`
	HandledServices []string `json:"handled_services"`
	PAN             *string  `json:"pan"`
	GSTIN           *string  `json:"gstin"`
	Address         *string  `json:"address"`
}

// List returns accounts matching the filter.
func (s *AccountService) List(ctx context.Context, filter models.AccountFilter) ([]models.Account, int, error) {
	return s.accounts.List(ctx, filter)
}

// Get returns one account.
func (s *AccountService) Get(ctx context.Context, id string) (*models.Account, error) {
	account, err := s.accounts.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "account not found")
		}
		return nil, appErrors.FromError(err)
	}
	return account, nil
}

// Create registers an account. The creator sets the supervisor chain: an
// employee's L1 is the creating staff member, a manager's L2 is the creating
// admin. A missing password gets a generated one, sent over the notifier.
func (s *AccountService) Create(ctx context.Context, req CreateAccountRequest, creator *models.Account) (*models.Account, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if _, err := s.accounts.FindByEmail(ctx, email); err == nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, "email already registered")
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.FromError(err)
	}

	id, err := s.ids.NextAccountID(ctx, req.Role)
	if err != nil {
		return nil, err
	}

	password := req.Password
	generated := ""
	if password == "" {
		generated = NewReferralCode()
		password = generated
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, appErrors.FromError(err)
	}

	now := time.Now().UTC()
	account := &models.Account{
		ID:              id,
		Role:            req.Role,
		Email:           email,
		PasswordHash:    string(hash),
		FullName:        strings.TrimSpace(req.FullName),
		Phone:           strings.TrimSpace(req.Phone),
		Username:        strings.TrimSpace(req.Username),
		Active:          true,
		ActiveFrom:      &now,
		HandledServices: req.HandledServices,
		PAN:             req.PAN,
		GSTIN:           req.GSTIN,
		Address:         req.Address,
	}

	switch req.Role {
	case models.RoleCustomer:
		account.ReferralCode = NewReferralCode()
		if req.ReferralCode != "" {
			referrer, err := s.accounts.FindByReferralCode(ctx, req.ReferralCode)
			if err == nil && referrer.Role == models.RoleCustomer {
				account.ReferredBy = &referrer.ID
			}
		}
	case models.RoleEmployee:
		if creator != nil {
			account.L1EmpCode = &creator.ID
			account.L1Name = &creator.FullName
		}
	case models.RoleManager:
		if creator != nil && creator.Role == models.RoleAdmin {
			account.L2EmpCode = &creator.ID
			account.L2Name = &creator.FullName
		}
	}

	if err := s.accounts.Create(ctx, account); err != nil {
		return nil, appErrors.FromError(err)
	}
	if account.Role == models.RoleCustomer {
		if _, err := s.wallets.EnsureWallet(ctx, account.ID); err != nil {
			s.logger.Warn("wallet creation failed", zap.String("account_id", account.ID), zap.Error(err))
		}
	}
	if generated != "" {
		s.notifier.AccountCreated(account, generated)
	}

	// A new employee may cover services with orphaned orders.
	if account.Role == models.RoleEmployee && len(account.HandledServices) > 0 {
		if _, err := s.assigner.BackfillUnassigned(ctx, account.ID); err != nil {
			s.logger.Warn("backfill after employee creation failed",
				zap.String("employee_id", account.ID), zap.Error(err))
		}
	}

	s.logger.Info("account created", zap.String("account_id", account.ID), zap.String("role", string(account.Role)))
	return account, nil
}

// Update rewrites mutable profile fields. Widening an employee's handled
// services triggers a backfill pass over unassigned orders.
func (s *AccountService) Update(ctx context.Context, id string, req UpdateAccountRequest) (*models.Account, error) {
	account, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.FullName != nil {
		account.FullName = strings.TrimSpace(*req.FullName)
	}
	if req.Phone != nil {
		account.Phone = strings.TrimSpace(*req.Phone)
	}
	if req.PAN != nil {
		account.PAN = req.PAN
	}
	if req.GSTIN != nil {
		account.GSTIN = req.GSTIN
	}
	if req.Address != nil {
		account.Address = req.Address
	}

	servicesChanged := false
	if req.HandledServices != nil && account.Role == models.RoleEmployee {
		servicesChanged = !equalStringSets(account.HandledServices, req.HandledServices)
		account.HandledServices = req.HandledServices
	}

	if err := s.accounts.Update(ctx, account); err != nil {
		return nil, appErrors.FromError(err)
	}

	if servicesChanged && account.Active {
		if _, err := s.assigner.BackfillUnassigned(ctx, account.ID); err != nil {
			s.logger.Warn("backfill after handled-services change failed",
				zap.String("employee_id", account.ID), zap.Error(err))
		}
	}

	// A customer's profile is denormalized into employee mirrors; an edit
	// must re-sync every copy.
	if account.Role == models.RoleCustomer {
		if err := s.assigner.RefreshCustomerMirrors(ctx, account.ID); err != nil {
			s.logger.Warn("mirror refresh after profile edit failed",
				zap.String("customer_id", account.ID), zap.Error(err))
		}
	}
	return account, nil
}

// SetActive flips an account's active flag, stamping the activity window.
// Deactivation keeps existing order bindings; only future auto-assignment
// skips the account.
func (s *AccountService) SetActive(ctx context.Context, id string, active bool) (*models.Account, error) {
	account, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if account.Active == active {
		return account, nil
	}

	now := time.Now().UTC()
	account.Active = active
	if active {
		account.ActiveFrom = &now
		account.ActiveTill = nil
	} else {
		account.ActiveTill = &now
	}
	if err := s.accounts.Update(ctx, account); err != nil {
		return nil, appErrors.FromError(err)
	}

	if active && account.Role == models.RoleEmployee && len(account.HandledServices) > 0 {
		if _, err := s.assigner.BackfillUnassigned(ctx, account.ID); err != nil {
			s.logger.Warn("backfill after reactivation failed",
				zap.String("employee_id", account.ID), zap.Error(err))
		}
	}
	return account, nil
}

// ChangePassword verifies the old password and stores the new hash.
func (s *AccountService) ChangePassword(ctx context.Context, id string, req models.ChangePasswordRequest) error {
	account, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(req.OldPassword)); err != nil {
		return appErrors.Clone(appErrors.ErrInvalidCredentials, "current password is incorrect")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), bcrypt.DefaultCost)
	if err != nil {
		return appErrors.FromError(err)
	}
	if err := s.accounts.UpdatePassword(ctx, id, string(hash), time.Now().UTC()); err != nil {
		return appErrors.FromError(err)
	}
	return nil
}

func equalStringSets(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	seen := make(map[string]struct{}, len(a))
	for _, v := range a {
		seen[v] = struct{}{}
	}
	for _, v := range b {
		if _, ok := seen[v]; !ok {
			return false
		}
	}
	return true
}
