package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/taxdesk/taxdesk-api/internal/models"
)

const accountColumns = `id, role, email, password_hash, full_name, phone, username, active,
        active_from, active_till, referral_code, referred_by, l1_emp_code, l1_name,
        l2_emp_code, l2_name, handled_services, pan, gstin, address, last_login,
        created_at, updated_at`

// AccountRepository handles persistence of portal accounts across all roles.
type AccountRepository struct {
	db *sqlx.DB
}

// NewAccountRepository constructs the repository.
func NewAccountRepository(db *sqlx.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

// List returns accounts filtered by the provided criteria.
func (r *AccountRepository) List(ctx context.Context, filter models.AccountFilter) ([]models.Account, int, error) {
	var conditions []string
	var args []interface{}

	if filter.Role != nil {
		conditions = append(conditions, fmt.Sprintf("role = $%d", len(args)+1))
		args = append(args, *filter.Role)
	}
	if filter.Active != nil {
		conditions = append(conditions, fmt.Sprintf("active = $%d", len(args)+1))
		args = append(args, *filter.Active)
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(full_name ILIKE $%d OR email ILIKE $%d OR id ILIKE $%d)", len(args)+1, len(args)+1, len(args)+1))
		args = append(args, "%"+filter.Search+"%")
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	allowedSorts := map[string]string{
		"created_at": "created_at",
		"full_name":  "full_name",
		"email":      "email",
	}
	orderBy := allowedSorts[filter.SortBy]
	if orderBy == "" {
		orderBy = "created_at"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "DESC"
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf("SELECT %s FROM accounts%s ORDER BY %s %s LIMIT %d OFFSET %d",
		accountColumns, clause, orderBy, order, size, offset)

	var accounts []models.Account
	if err := r.db.SelectContext(ctx, &accounts, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list accounts: %w", err)
	}

	countQuery := "SELECT COUNT(*) FROM accounts" + clause
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count accounts: %w", err)
	}
	return accounts, total, nil
}

// FindByID returns an account by its prefixed ID.
func (r *AccountRepository) FindByID(ctx context.Context, id string) (*models.Account, error) {
	query := fmt.Sprintf("SELECT %s FROM accounts WHERE id = $1", accountColumns)
	var account models.Account
	if err := r.db.GetContext(ctx, &account, query, id); err != nil {
		return nil, err
	}
	return &account, nil
}

// FindByEmail returns an account by email. Emails are globally unique.
func (r *AccountRepository) FindByEmail(ctx context.Context, email string) (*models.Account, error) {
	query := fmt.Sprintf("SELECT %s FROM accounts WHERE email = $1 LIMIT 1", accountColumns)
	var account models.Account
	if err := r.db.GetContext(ctx, &account, query, strings.ToLower(email)); err != nil {
		return nil, err
	}
	return &account, nil
}

// FindByReferralCode resolves the owner of a referral code.
func (r *AccountRepository) FindByReferralCode(ctx context.Context, code string) (*models.Account, error) {
	query := fmt.Sprintf("SELECT %s FROM accounts WHERE referral_code = $1 LIMIT 1", accountColumns)
	var account models.Account
	if err := r.db.GetContext(ctx, &account, query, code); err != nil {
		return nil, err
	}
	return &account, nil
}

// FindFirstEmployeeForService returns the first active employee whose handled
// services include the given service, in ID order. No load balancing is
// applied.
func (r *AccountRepository) FindFirstEmployeeForService(ctx context.Context, serviceID string) (*models.Account, error) {
	query := fmt.Sprintf(`SELECT %s FROM accounts
        WHERE role = $1 AND active = TRUE AND $2 = ANY(handled_services)
        ORDER BY id ASC LIMIT 1`, accountColumns)
	var account models.Account
	if err := r.db.GetContext(ctx, &account, query, models.RoleEmployee, serviceID); err != nil {
		return nil, err
	}
	return &account, nil
}

// Create persists a new account record.
func (r *AccountRepository) Create(ctx context.Context, account *models.Account) error {
	now := time.Now().UTC()
	if account.CreatedAt.IsZero() {
		account.CreatedAt = now
	}
	account.UpdatedAt = now
	const query = `INSERT INTO accounts (id, role, email, password_hash, full_name, phone, username,
        active, active_from, active_till, referral_code, referred_by, l1_emp_code, l1_name,
        l2_emp_code, l2_name, handled_services, pan, gstin, address, created_at, updated_at)
        VALUES (:id, :role, :email, :password_hash, :full_name, :phone, :username,
        :active, :active_from, :active_till, :referral_code, :referred_by, :l1_emp_code, :l1_name,
        :l2_emp_code, :l2_name, :handled_services, :pan, :gstin, :address, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, account); err != nil {
		return fmt.Errorf("create account: %w", err)
	}
	return nil
}

// Update rewrites the mutable profile fields of an account.
func (r *AccountRepository) Update(ctx context.Context, account *models.Account) error {
	account.UpdatedAt = time.Now().UTC()
	const query = `UPDATE accounts SET full_name = :full_name, phone = :phone,
        active = :active, active_from = :active_from, active_till = :active_till,
        l1_emp_code = :l1_emp_code, l1_name = :l1_name, l2_emp_code = :l2_emp_code, l2_name = :l2_name,
        handled_services = :handled_services, pan = :pan, gstin = :gstin, address = :address,
        updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, account); err != nil {
		return fmt.Errorf("update account: %w", err)
	}
	return nil
}

// UpdateLastLogin stamps the last login timestamp.
func (r *AccountRepository) UpdateLastLogin(ctx context.Context, id string, ts time.Time) error {
	const query = `UPDATE accounts SET last_login = $2 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, ts); err != nil {
		return fmt.Errorf("update last login: %w", err)
	}
	return nil
}

// UpdatePassword replaces the password hash.
func (r *AccountRepository) UpdatePassword(ctx context.Context, id, passwordHash string, updatedAt time.Time) error {
	const query = `UPDATE accounts SET password_hash = $2, updated_at = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, passwordHash, updatedAt); err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	return nil
}

// CreateRefreshToken persists a refresh token.
func (r *AccountRepository) CreateRefreshToken(ctx context.Context, token *models.RefreshToken) error {
	const query = `INSERT INTO refresh_tokens (id, account_id, token, expires_at, created_at, revoked, ip_address, user_agent)
        VALUES (:id, :account_id, :token, :expires_at, :created_at, :revoked, :ip_address, :user_agent)`
	if _, err := r.db.NamedExecContext(ctx, query, token); err != nil {
		return fmt.Errorf("create refresh token: %w", err)
	}
	return nil
}

// FindRefreshToken loads a refresh token by value.
func (r *AccountRepository) FindRefreshToken(ctx context.Context, token string) (*models.RefreshToken, error) {
	const query = `SELECT id, account_id, token, expires_at, created_at, revoked, revoked_at, ip_address, user_agent
        FROM refresh_tokens WHERE token = $1 LIMIT 1`
	var stored models.RefreshToken
	if err := r.db.GetContext(ctx, &stored, query, token); err != nil {
		return nil, err
	}
	return &stored, nil
}

// RevokeRefreshToken marks a token revoked.
func (r *AccountRepository) RevokeRefreshToken(ctx context.Context, id string, revokedAt time.Time) error {
	const query = `UPDATE refresh_tokens SET revoked = TRUE, revoked_at = $2 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, revokedAt); err != nil {
		return fmt.Errorf("revoke refresh token: %w", err)
	}
	return nil
}

// RevokeAccountRefreshTokens revokes every live token of an account.
func (r *AccountRepository) RevokeAccountRefreshTokens(ctx context.Context, accountID string) error {
	const query = `UPDATE refresh_tokens SET revoked = TRUE, revoked_at = NOW() WHERE account_id = $1 AND revoked = FALSE`
	if _, err := r.db.ExecContext(ctx, query, accountID); err != nil {
		return fmt.Errorf("revoke account refresh tokens: %w", err)
	}
	return nil
}

// CountByRole returns the number of accounts per role, optionally active only.
func (r *AccountRepository) CountByRole(ctx context.Context, role models.Role, activeOnly bool) (int, error) {
	query := "SELECT COUNT(*) FROM accounts WHERE role = $1"
	if activeOnly {
		query += " AND active = TRUE"
	}
	var total int
	if err := r.db.GetContext(ctx, &total, query, role); err != nil {
		if err == sql.ErrNoRows {
			return 0, nil
		}
		return 0, fmt.Errorf("count accounts by role: %w", err)
	}
	return total, nil
}
