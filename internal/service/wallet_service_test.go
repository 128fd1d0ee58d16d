package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/taxdesk/taxdesk-api/internal/models"
	"github.com/taxdesk/taxdesk-api/internal/repository"
	appErrors "github.com/taxdesk/taxdesk-api/pkg/errors"
)

type mockWalletStore struct {
	wallets      map[string]*models.Wallet // keyed by account id
	transactions []models.WalletTransaction
}

func (m *mockWalletStore) Create(ctx context.Context, wallet *models.Wallet) error {
	if m.wallets == nil {
		m.wallets = map[string]*models.Wallet{}
	}
	m.wallets[wallet.AccountID] = wallet
	return nil
}

func (m *mockWalletStore) FindByAccount(ctx context.Context, accountID string) (*models.Wallet, error) {
	if w, ok := m.wallets[accountID]; ok {
		return w, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockWalletStore) Apply(ctx context.Context, walletID string, delta float64, tx *models.WalletTransaction) error {
	for _, w := range m.wallets {
		if w.ID != walletID {
			continue
		}
		if w.Balance+delta < 0 {
			return repository.ErrInsufficientBalance
		}
		w.Balance += delta
		m.transactions = append(m.transactions, *tx)
		return nil
	}
	return sql.ErrNoRows
}

func (m *mockWalletStore) ListTransactions(ctx context.Context, walletID string) ([]models.WalletTransaction, error) {
	var list []models.WalletTransaction
	for _, tx := range m.transactions {
		if tx.WalletID == walletID {
			list = append(list, tx)
		}
	}
	return list, nil
}

func TestEnsureWalletCreatesOnce(t *testing.T) {
	store := &mockWalletStore{}
	svc := NewWalletService(store, zap.NewNop())

	first, err := svc.EnsureWallet(context.Background(), "CUS00001")
	require.NoError(t, err)
	second, err := svc.EnsureWallet(context.Background(), "CUS00001")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Len(t, store.wallets, 1)
}

func TestWalletCreditAndDebit(t *testing.T) {
	store := &mockWalletStore{}
	svc := NewWalletService(store, zap.NewNop())
	ctx := context.Background()

	wallet, err := svc.Credit(ctx, "CUS00001", 250, "signup bonus")
	require.NoError(t, err)
	assert.Equal(t, 250.0, wallet.Balance)

	wallet, err = svc.Debit(ctx, "CUS00001", 100, "applied to order")
	require.NoError(t, err)
	assert.Equal(t, 150.0, wallet.Balance)

	_, txs, err := svc.Balance(ctx, "CUS00001")
	require.NoError(t, err)
	require.Len(t, txs, 2)
	assert.Equal(t, models.WalletCredit, txs[0].Kind)
	assert.Equal(t, models.WalletDebit, txs[1].Kind)
	assert.Equal(t, 100.0, txs[1].Amount)
}

func TestWalletDebitNeverOverdraws(t *testing.T) {
	store := &mockWalletStore{}
	svc := NewWalletService(store, zap.NewNop())
	ctx := context.Background()

	_, err := svc.Credit(ctx, "CUS00001", 50, "signup bonus")
	require.NoError(t, err)

	_, err = svc.Debit(ctx, "CUS00001", 80, "applied to order")
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))
	assert.Equal(t, 50.0, store.wallets["CUS00001"].Balance)
	assert.Len(t, store.transactions, 1)
}

func TestWalletRejectsZeroAmount(t *testing.T) {
	svc := NewWalletService(&mockWalletStore{}, zap.NewNop())
	_, err := svc.Credit(context.Background(), "CUS00001", 0, "noop")
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))
}

func TestRewardReferrerCreditsStandardAmount(t *testing.T) {
	store := &mockWalletStore{}
	svc := NewWalletService(store, zap.NewNop())

	err := svc.RewardReferrer(context.Background(), "CUS00001", "CUS00002")
	require.NoError(t, err)
	assert.Equal(t, DefaultReferralReward, store.wallets["CUS00001"].Balance)
	require.Len(t, store.transactions, 1)
	assert.Contains(t, store.transactions[0].Note, "CUS00002")
}
