package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/taxdesk/taxdesk-api/internal/models"
)

// ErrInsufficientBalance is returned when a debit would overdraw a wallet.
var ErrInsufficientBalance = errors.New("insufficient wallet balance")

// WalletRepository handles referral wallets and their transactions.
type WalletRepository struct {
	db *sqlx.DB
}

// NewWalletRepository constructs the repository.
func NewWalletRepository(db *sqlx.DB) *WalletRepository {
	return &WalletRepository{db: db}
}

// Create persists a zero-balance wallet for an account.
func (r *WalletRepository) Create(ctx context.Context, wallet *models.Wallet) error {
	now := time.Now().UTC()
	wallet.CreatedAt = now
	wallet.UpdatedAt = now
	const query = `INSERT INTO wallets (id, account_id, balance, created_at, updated_at)
        VALUES (:id, :account_id, :balance, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, wallet); err != nil {
		return fmt.Errorf("create wallet: %w", err)
	}
	return nil
}

// FindByAccount returns the wallet of one account.
func (r *WalletRepository) FindByAccount(ctx context.Context, accountID string) (*models.Wallet, error) {
	const query = `SELECT id, account_id, balance, created_at, updated_at
        FROM wallets WHERE account_id = $1 LIMIT 1`
	var wallet models.Wallet
	if err := r.db.GetContext(ctx, &wallet, query, accountID); err != nil {
		return nil, err
	}
	return &wallet, nil
}

// Apply adjusts the balance and records the transaction atomically. Debits
// pass a negative delta; the balance check rejects overdrafts.
func (r *WalletRepository) Apply(ctx context.Context, walletID string, delta float64, tx *models.WalletTransaction) error {
	dbTx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin wallet tx: %w", err)
	}
	defer dbTx.Rollback()

	const update = `UPDATE wallets SET balance = balance + $2, updated_at = $3
        WHERE id = $1 AND balance + $2 >= 0`
	res, err := dbTx.ExecContext(ctx, update, walletID, delta, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("apply wallet delta: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("apply wallet delta: %w", err)
	}
	if affected == 0 {
		return ErrInsufficientBalance
	}

	const insert = `INSERT INTO wallet_transactions (id, wallet_id, kind, amount, note, created_at)
        VALUES ($1, $2, $3, $4, $5, $6)`
	if _, err := dbTx.ExecContext(ctx, insert, tx.ID, tx.WalletID, tx.Kind, tx.Amount, tx.Note, tx.CreatedAt); err != nil {
		return fmt.Errorf("record wallet transaction: %w", err)
	}
	return dbTx.Commit()
}

// ListTransactions returns the bookkeeping entries of one wallet, newest
// first.
func (r *WalletRepository) ListTransactions(ctx context.Context, walletID string) ([]models.WalletTransaction, error) {
	const query = `SELECT id, wallet_id, kind, amount, note, created_at
        FROM wallet_transactions WHERE wallet_id = $1 ORDER BY created_at DESC`
	var txs []models.WalletTransaction
	if err := r.db.SelectContext(ctx, &txs, query, walletID); err != nil {
		return nil, fmt.Errorf("list wallet transactions: %w", err)
	}
	return txs, nil
}
