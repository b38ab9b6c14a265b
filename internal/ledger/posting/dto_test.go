package posting

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/umoja-fin/ledger/internal/ledger/shared"
	_ "github.com/umoja-fin/ledger/testing"
)

func debitEntry(accountID int64, amount string) EntryInput {
	return EntryInput{AccountID: accountID, Debit: decimal.RequireFromString(amount)}
}

func creditEntry(accountID int64, amount string) EntryInput {
	return EntryInput{AccountID: accountID, Credit: decimal.RequireFromString(amount)}
}

func TestCreateTransactionInputValidate(t *testing.T) {
	base := func() CreateTransactionInput {
		return CreateTransactionInput{
			IdempotencyKey: "loan-1",
			Description:    "Loan disbursement",
			Entries: []EntryInput{
				debitEntry(1, "10000"),
				creditEntry(2, "10000"),
			},
		}
	}

	t.Run("valid", func(t *testing.T) {
		require.NoError(t, base().Validate())
	})

	t.Run("missing idempotency key", func(t *testing.T) {
		in := base()
		in.IdempotencyKey = ""
		require.ErrorIs(t, in.Validate(), shared.ErrValidation)
	})

	t.Run("single entry", func(t *testing.T) {
		in := base()
		in.Entries = in.Entries[:1]
		err := in.Validate()
		require.ErrorIs(t, err, shared.ErrTooFewEntries)
		require.ErrorIs(t, err, shared.ErrValidation)
	})

	t.Run("no entries", func(t *testing.T) {
		in := base()
		in.Entries = nil
		err := in.Validate()
		require.ErrorIs(t, err, shared.ErrTooFewEntries)
		require.ErrorIs(t, err, shared.ErrValidation)
	})

	t.Run("missing account id", func(t *testing.T) {
		in := base()
		in.Entries[0].AccountID = 0
		require.ErrorIs(t, in.Validate(), shared.ErrValidation)
	})

	t.Run("negative amount", func(t *testing.T) {
		in := base()
		in.Entries[0].Debit = decimal.RequireFromString("-5")
		require.ErrorIs(t, in.Validate(), shared.ErrValidation)
	})

	t.Run("both debit and credit", func(t *testing.T) {
		in := base()
		in.Entries[0].Credit = decimal.RequireFromString("1")
		require.ErrorIs(t, in.Validate(), shared.ErrValidation)
	})

	t.Run("neither debit nor credit", func(t *testing.T) {
		in := base()
		in.Entries[0].Debit = decimal.Zero
		require.ErrorIs(t, in.Validate(), shared.ErrValidation)
	})

	t.Run("unbalanced", func(t *testing.T) {
		in := base()
		in.Entries[1].Credit = decimal.RequireFromString("9999")
		require.ErrorIs(t, in.Validate(), shared.ErrUnbalanced)
	})

	t.Run("difference inside tolerance", func(t *testing.T) {
		in := base()
		in.Entries[1].Credit = decimal.RequireFromString("10000.0001")
		require.NoError(t, in.Validate())
	})

	t.Run("difference just outside tolerance", func(t *testing.T) {
		in := base()
		in.Entries[1].Credit = decimal.RequireFromString("10000.00011")
		require.ErrorIs(t, in.Validate(), shared.ErrUnbalanced)
	})
}

func TestAccountIDsDistinctAscending(t *testing.T) {
	in := CreateTransactionInput{
		Entries: []EntryInput{
			debitEntry(42, "10"),
			creditEntry(7, "10"),
			debitEntry(42, "5"),
			creditEntry(3, "5"),
		},
	}
	require.Equal(t, []int64{3, 7, 42}, in.AccountIDs())
}
