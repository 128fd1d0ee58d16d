package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/taxdesk/taxdesk-api/internal/models"
	"github.com/taxdesk/taxdesk-api/internal/repository"
	appErrors "github.com/taxdesk/taxdesk-api/pkg/errors"
)

type walletStore interface {
	Create(ctx context.Context, wallet *models.Wallet) error
	FindByAccount(ctx context.Context, accountID string) (*models.Wallet, error)
	Apply(ctx context.Context, walletID string, delta float64, tx *models.WalletTransaction) error
	ListTransactions(ctx context.Context, walletID string) ([]models.WalletTransaction, error)
}

// DefaultReferralReward is credited to the referrer when a referred customer
// completes their first paid order.
const DefaultReferralReward = 100.0

// WalletService manages referral wallets. Every balance change is recorded
// as a transaction; debits never overdraw.
type WalletService struct {
	wallets walletStore
	logger  *zap.Logger
}

// NewWalletService constructs the service.
func NewWalletService(wallets walletStore, logger *zap.Logger) *WalletService {
	return &WalletService{wallets: wallets, logger: logger}
}

// EnsureWallet returns the account's wallet, creating an empty one if absent.
func (s *WalletService) EnsureWallet(ctx context.Context, accountID string) (*models.Wallet, error) {
	wallet, err := s.wallets.FindByAccount(ctx, accountID)
	if err == nil {
		return wallet, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.FromError(err)
	}

	wallet = &models.Wallet{
		ID:        uuid.NewString(),
		AccountID: accountID,
	}
	if err := s.wallets.Create(ctx, wallet); err != nil {
		return nil, appErrors.FromError(err)
	}
	return wallet, nil
}

// Balance returns the wallet with its transactions.
func (s *WalletService) Balance(ctx context.Context, accountID string) (*models.Wallet, []models.WalletTransaction, error) {
	wallet, err := s.EnsureWallet(ctx, accountID)
	if err != nil {
		return nil, nil, err
	}
	txs, err := s.wallets.ListTransactions(ctx, wallet.ID)
	if err != nil {
		return nil, nil, appErrors.FromError(err)
	}
	return wallet, txs, nil
}

// Credit adds funds with a note.
func (s *WalletService) Credit(ctx context.Context, accountID string, amount float64, note string) (*models.Wallet, error) {
	return s.apply(ctx, accountID, amount, models.WalletCredit, note)
}

// Debit removes funds with a note. Fails on insufficient balance.
func (s *WalletService) Debit(ctx context.Context, accountID string, amount float64, note string) (*models.Wallet, error) {
	return s.apply(ctx, accountID, -amount, models.WalletDebit, note)
}

// RewardReferrer credits the standard referral reward.
func (s *WalletService) RewardReferrer(ctx context.Context, referrerID, referredID string) error {
	_, err := s.Credit(ctx, referrerID, DefaultReferralReward, "referral reward for "+referredID)
	return err
}

func (s *WalletService) apply(ctx context.Context, accountID string, delta float64, kind models.WalletTransactionKind, note string) (*models.Wallet, error) {
	if delta == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "amount must be non-zero")
	}
	wallet, err := s.EnsureWallet(ctx, accountID)
	if err != nil {
		return nil, err
	}

	amount := delta
	if amount < 0 {
		amount = -amount
	}
	tx := &models.WalletTransaction{
		ID:        uuid.NewString(),
		WalletID:  wallet.ID,
		Kind:      kind,
		Amount:    amount,
		Note:      note,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.wallets.Apply(ctx, wallet.ID, delta, tx); err != nil {
		if errors.Is(err, repository.ErrInsufficientBalance) {
			return nil, appErrors.Clone(appErrors.ErrValidation, "insufficient wallet balance")
		}
		return nil, appErrors.FromError(err)
	}
	wallet.Balance += delta
	return wallet, nil
}
