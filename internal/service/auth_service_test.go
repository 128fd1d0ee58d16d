package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/taxdesk/taxdesk-api/internal/models"
	appErrors "github.com/taxdesk/taxdesk-api/pkg/errors"
)

type mockAuthRepo struct {
	accounts  map[string]*models.Account
	tokens    map[string]*models.RefreshToken // keyed by token value
	lastLogin map[string]time.Time
}

func newMockAuthRepo() *mockAuthRepo {
	return &mockAuthRepo{
		accounts:  map[string]*models.Account{},
		tokens:    map[string]*models.RefreshToken{},
		lastLogin: map[string]time.Time{},
	}
}

func (m *mockAuthRepo) FindByEmail(ctx context.Context, email string) (*models.Account, error) {
	for _, a := range m.accounts {
		if a.Email == email {
			return a, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *mockAuthRepo) FindByID(ctx context.Context, id string) (*models.Account, error) {
	if a, ok := m.accounts[id]; ok {
		return a, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockAuthRepo) UpdateLastLogin(ctx context.Context, id string, ts time.Time) error {
	m.lastLogin[id] = ts
	return nil
}

func (m *mockAuthRepo) RevokeAccountRefreshTokens(ctx context.Context, accountID string) error {
	for _, token := range m.tokens {
		if token.AccountID == accountID {
			token.Revoked = true
		}
	}
	return nil
}

func (m *mockAuthRepo) CreateRefreshToken(ctx context.Context, token *models.RefreshToken) error {
	m.tokens[token.Token] = token
	return nil
}

func (m *mockAuthRepo) FindRefreshToken(ctx context.Context, token string) (*models.RefreshToken, error) {
	if t, ok := m.tokens[token]; ok {
		return t, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockAuthRepo) RevokeRefreshToken(ctx context.Context, id string, revokedAt time.Time) error {
	for _, t := range m.tokens {
		if t.ID == id {
			t.Revoked = true
			t.RevokedAt = &revokedAt
			return nil
		}
	}
	return sql.ErrNoRows
}

func newAuthFixture(t *testing.T, singleSession bool) (*AuthService, *mockAuthRepo) {
	t.Helper()
	repo := newMockAuthRepo()
	hash, err := bcrypt.GenerateFromPassword([]byte("secret123"), bcrypt.DefaultCost)
	require.NoError(t, err)
	repo.accounts["EMP00001"] = &models.Account{
		ID:           "EMP00001",
		Role:         models.RoleEmployee,
		Email:        "emp@taxdesk.in",
		PasswordHash: string(hash),
		FullName:     "Test Employee",
		Active:       true,
	}
	svc := NewAuthService(repo, nil, zap.NewNop(), AuthConfig{
		AccessTokenSecret:  "test-signing-secret",
		AccessTokenExpiry:  time.Hour,
		RefreshTokenExpiry: 24 * time.Hour,
		Issuer:             "taxdesk-api",
		SingleSession:      singleSession,
	})
	return svc, repo
}

func TestLoginIssuesTokenPair(t *testing.T) {
	svc, repo := newAuthFixture(t, false)

	resp, err := svc.Login(context.Background(), models.LoginRequest{
		Email: "emp@taxdesk.in", Password: "secret123",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.AccessToken)
	assert.NotEmpty(t, resp.RefreshToken)
	assert.Equal(t, "EMP00001", resp.Account.ID)
	assert.Equal(t, models.RoleEmployee, resp.Account.Role)
	assert.Contains(t, repo.lastLogin, "EMP00001")

	claims, err := svc.ValidateToken(resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "EMP00001", claims.AccountID)
	assert.Equal(t, models.RoleEmployee, claims.Role)
}

func TestLoginRejectsWrongPassword(t *testing.T) {
	svc, _ := newAuthFixture(t, false)

	_, err := svc.Login(context.Background(), models.LoginRequest{
		Email: "emp@taxdesk.in", Password: "wrong",
	})
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrInvalidCredentials))
}

func TestLoginRejectsInactiveAccount(t *testing.T) {
	svc, repo := newAuthFixture(t, false)
	repo.accounts["EMP00001"].Active = false

	_, err := svc.Login(context.Background(), models.LoginRequest{
		Email: "emp@taxdesk.in", Password: "secret123",
	})
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrInactiveAccount))
}

func TestLoginSingleSessionRevokesOldTokens(t *testing.T) {
	svc, repo := newAuthFixture(t, true)
	ctx := context.Background()

	first, err := svc.Login(ctx, models.LoginRequest{Email: "emp@taxdesk.in", Password: "secret123"})
	require.NoError(t, err)
	_, err = svc.Login(ctx, models.LoginRequest{Email: "emp@taxdesk.in", Password: "secret123"})
	require.NoError(t, err)

	assert.True(t, repo.tokens[first.RefreshToken].Revoked)
}

func TestRefreshTokenRotates(t *testing.T) {
	svc, repo := newAuthFixture(t, false)
	ctx := context.Background()

	login, err := svc.Login(ctx, models.LoginRequest{Email: "emp@taxdesk.in", Password: "secret123"})
	require.NoError(t, err)

	resp, err := svc.RefreshToken(ctx, models.RefreshTokenRequest{RefreshToken: login.RefreshToken})
	require.NoError(t, err)
	assert.NotEqual(t, login.RefreshToken, resp.RefreshToken)
	assert.True(t, repo.tokens[login.RefreshToken].Revoked, "used refresh token must be revoked")

	// The revoked token cannot be replayed.
	_, err = svc.RefreshToken(ctx, models.RefreshTokenRequest{RefreshToken: login.RefreshToken})
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrUnauthorized))
}

func TestRefreshTokenRejectsExpired(t *testing.T) {
	svc, repo := newAuthFixture(t, false)
	repo.tokens["stale"] = &models.RefreshToken{
		ID:        "tok-1",
		AccountID: "EMP00001",
		Token:     "stale",
		ExpiresAt: time.Now().UTC().Add(-time.Hour),
	}

	_, err := svc.RefreshToken(context.Background(), models.RefreshTokenRequest{RefreshToken: "stale"})
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrUnauthorized))
}

func TestLogoutChecksOwnership(t *testing.T) {
	svc, repo := newAuthFixture(t, false)
	ctx := context.Background()

	login, err := svc.Login(ctx, models.LoginRequest{Email: "emp@taxdesk.in", Password: "secret123"})
	require.NoError(t, err)

	err = svc.Logout(ctx, login.RefreshToken, "CUS00099")
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrForbidden))

	err = svc.Logout(ctx, login.RefreshToken, "EMP00001")
	require.NoError(t, err)
	assert.True(t, repo.tokens[login.RefreshToken].Revoked)
}

func TestValidateTokenRejectsForgedToken(t *testing.T) {
	svc, _ := newAuthFixture(t, false)
	other := NewAuthService(newMockAuthRepo(), nil, zap.NewNop(), AuthConfig{
		AccessTokenSecret: "different-secret",
		AccessTokenExpiry: time.Hour,
	})

	resp, err := other.Login(context.Background(), models.LoginRequest{Email: "emp@taxdesk.in", Password: "secret123"})
	require.Error(t, err)
	assert.Nil(t, resp)

	_, err = svc.ValidateToken("not-a-jwt")
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrUnauthorized))
}
