package models

import "time"

// WalletTransactionKind distinguishes credits from debits.
type WalletTransactionKind string

const (
	WalletCredit WalletTransactionKind = "credit"
	WalletDebit  WalletTransactionKind = "debit"
)

// Wallet is the referral wallet companion record of a customer account.
type Wallet struct {
	ID        string    `db:"id" json:"id"`
	AccountID string    `db:"account_id" json:"account_id"`
	Balance   float64   `db:"balance" json:"balance"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// WalletTransaction is a single wallet bookkeeping entry.
type WalletTransaction struct {
	ID        string                `db:"id" json:"id"`
	WalletID  string                `db:"wallet_id" json:"wallet_id"`
	Kind      WalletTransactionKind `db:"kind" json:"kind"`
	Amount    float64               `db:"amount" json:"amount"`
	Note      string                `db:"note" json:"note"`
	CreatedAt time.Time             `db:"created_at" json:"created_at"`
}
