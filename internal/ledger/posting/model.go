package posting

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/umoja-fin/ledger/internal/ledger/accounts"
)

// TransactionStatus enumerates transaction lifecycle values.
type TransactionStatus string

const (
	StatusPending  TransactionStatus = "pending"
	StatusPosted   TransactionStatus = "posted"
	StatusVoided   TransactionStatus = "voided"
	StatusReversed TransactionStatus = "reversed"
)

// Terminal reports whether the status permits no further transition.
func (s TransactionStatus) Terminal() bool {
	return s == StatusVoided || s == StatusReversed
}

// Transaction is an atomic, balanced set of entries. Once posted, only status
// and metadata may change; entries and amounts are frozen.
type Transaction struct {
	ID             int64
	IdempotencyKey string
	Description    string
	PostedAt       time.Time
	Status         TransactionStatus
	Metadata       map[string]any
	CreatedAt      time.Time
	UpdatedAt      time.Time
	Entries        []Entry
}

// Entry is a single debit or credit movement against one account.
// Exactly one of Debit/Credit is positive; the other is zero.
// Entries are immutable after creation.
type Entry struct {
	ID            int64
	TransactionID int64
	AccountID     int64
	Debit         decimal.Decimal
	Credit        decimal.Decimal
	Description   string
	CreatedAt     time.Time
}

// Amount returns the magnitude of the movement.
func (e Entry) Amount() decimal.Decimal {
	if e.Debit.IsPositive() {
		return e.Debit
	}
	return e.Credit
}

// Delta returns the signed balance impact for an account of the given type:
// debit-normal accounts move by debit−credit, credit-normal by credit−debit.
func (e Entry) Delta(t accounts.AccountType) decimal.Decimal {
	if t.DebitNormal() {
		return e.Debit.Sub(e.Credit)
	}
	return e.Credit.Sub(e.Debit)
}
