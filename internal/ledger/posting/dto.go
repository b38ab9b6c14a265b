package posting

import (
	"fmt"
	"sort"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/umoja-fin/ledger/internal/ledger/shared"
)

// balanceTolerance is the maximum acceptable |debits − credits| for a posting,
// in currency units.
var balanceTolerance = decimal.New(1, -4)

var validate = validator.New()

// EntryInput describes one requested movement. Exactly one of Debit/Credit
// must be set, strictly positive.
type EntryInput struct {
	AccountID   int64 `validate:"required,gt=0"`
	Debit       decimal.Decimal
	Credit      decimal.Decimal
	Description string `validate:"max=10000"`
}

// CreateTransactionInput groups fields required to post a transaction.
type CreateTransactionInput struct {
	IdempotencyKey string `validate:"required,max=255"`
	Description    string `validate:"max=10000"`
	Entries        []EntryInput
	// PostedAt defaults to the posting time when nil.
	PostedAt *time.Time
	Metadata map[string]any
}

// Validate checks the request shape once at the boundary: structural rules via
// tags, then the debit-xor-credit rule per entry and the balance identity.
func (in CreateTransactionInput) Validate() error {
	if len(in.Entries) < 2 {
		return shared.ErrTooFewEntries
	}
	if err := validate.Struct(in); err != nil {
		if fieldErrs, ok := err.(validator.ValidationErrors); ok && len(fieldErrs) > 0 {
			return fmt.Errorf("%w: %s", shared.ErrValidation, fieldErrs[0].Error())
		}
		return fmt.Errorf("%w: %v", shared.ErrValidation, err)
	}
	for idx, entry := range in.Entries {
		if err := validate.Struct(entry); err != nil {
			return fmt.Errorf("%w: entry %d: %v", shared.ErrValidation, idx, err)
		}
		if entry.Debit.IsNegative() || entry.Credit.IsNegative() {
			return fmt.Errorf("%w: entry %d: amounts must be positive", shared.ErrValidation, idx)
		}
		hasDebit := entry.Debit.IsPositive()
		hasCredit := entry.Credit.IsPositive()
		if hasDebit && hasCredit {
			return fmt.Errorf("%w: entry %d: cannot have both debit and credit", shared.ErrValidation, idx)
		}
		if !hasDebit && !hasCredit {
			return fmt.Errorf("%w: entry %d: must have either debit or credit", shared.ErrValidation, idx)
		}
	}
	debits, credits := in.totals()
	if debits.Sub(credits).Abs().GreaterThan(balanceTolerance) {
		return fmt.Errorf("%w: debits %s, credits %s", shared.ErrUnbalanced, debits, credits)
	}
	return nil
}

func (in CreateTransactionInput) totals() (debits, credits decimal.Decimal) {
	for _, entry := range in.Entries {
		debits = debits.Add(entry.Debit)
		credits = credits.Add(entry.Credit)
	}
	return debits, credits
}

// AccountIDs returns the distinct referenced account ids in ascending order,
// which is the global lock-acquisition order.
func (in CreateTransactionInput) AccountIDs() []int64 {
	seen := make(map[int64]struct{}, len(in.Entries))
	ids := make([]int64, 0, len(in.Entries))
	for _, entry := range in.Entries {
		if _, ok := seen[entry.AccountID]; ok {
			continue
		}
		seen[entry.AccountID] = struct{}{}
		ids = append(ids, entry.AccountID)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
