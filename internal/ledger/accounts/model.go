package accounts

import (
	"time"

	"github.com/shopspring/decimal"
)

// AccountType enumerates ledger account classifications.
type AccountType string

const (
	AccountTypeAsset     AccountType = "ASSET"
	AccountTypeLiability AccountType = "LIABILITY"
	AccountTypeEquity    AccountType = "EQUITY"
	AccountTypeIncome    AccountType = "INCOME"
	AccountTypeExpense   AccountType = "EXPENSE"
)

// Types lists every valid account type.
var Types = []AccountType{
	AccountTypeAsset,
	AccountTypeLiability,
	AccountTypeEquity,
	AccountTypeIncome,
	AccountTypeExpense,
}

// Valid reports whether t is a known account type.
func (t AccountType) Valid() bool {
	switch t {
	case AccountTypeAsset, AccountTypeLiability, AccountTypeEquity, AccountTypeIncome, AccountTypeExpense:
		return true
	}
	return false
}

// DebitNormal reports whether the balance increases on debit.
// ASSET and EXPENSE are debit-normal; LIABILITY, EQUITY and INCOME are credit-normal.
func (t AccountType) DebitNormal() bool {
	return t == AccountTypeAsset || t == AccountTypeExpense
}

// Account models a classified ledger node carrying a denormalized balance.
type Account struct {
	ID             int64
	Code           string
	Name           string
	Type           AccountType
	Currency       string
	ParentID       *int64
	CurrentBalance decimal.Decimal
	// VersionEpoch increases on every balance mutation and keys the balance cache.
	VersionEpoch int64
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
