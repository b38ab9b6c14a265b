package integrity

import (
	"context"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/umoja-fin/ledger/internal/ledger/accounts"
	"github.com/umoja-fin/ledger/internal/ledger/shared"
	_ "github.com/umoja-fin/ledger/testing"
)

type fakeIntegrityRepo struct {
	balances []AccountBalance
	calls    int
}

func (r *fakeIntegrityRepo) ListActiveBalances(ctx context.Context) ([]AccountBalance, error) {
	r.calls++
	return r.balances, nil
}

func balancedBook() []AccountBalance {
	return []AccountBalance{
		{AccountID: 1, Code: "1000", Name: "Cash", Type: accounts.AccountTypeAsset, Balance: decimal.RequireFromString("800")},
		{AccountID: 2, Code: "1100", Name: "Loans Receivable", Type: accounts.AccountTypeAsset, Balance: decimal.RequireFromString("400")},
		{AccountID: 3, Code: "2000", Name: "Member Deposits", Type: accounts.AccountTypeLiability, Balance: decimal.RequireFromString("700")},
		{AccountID: 4, Code: "3000", Name: "Share Capital", Type: accounts.AccountTypeEquity, Balance: decimal.RequireFromString("300")},
		{AccountID: 5, Code: "4000", Name: "Interest Income", Type: accounts.AccountTypeIncome, Balance: decimal.RequireFromString("250")},
		{AccountID: 6, Code: "5000", Name: "Operating Expense", Type: accounts.AccountTypeExpense, Balance: decimal.RequireFromString("50")},
	}
}

func TestRunBalancedLedger(t *testing.T) {
	repo := &fakeIntegrityRepo{balances: balancedBook()}
	checker := NewChecker(repo, nil, nil)

	report, err := checker.Run(context.Background())
	require.NoError(t, err)
	require.True(t, report.Balanced)
	require.Len(t, report.Rows, 6)
	require.True(t, report.TotalDebit.Equal(report.TotalCredit))
	require.True(t, report.TotalDebit.Equal(decimal.RequireFromString("1250")))
	require.True(t, report.Assets.Equal(decimal.RequireFromString("1200")))
	require.True(t, report.NetIncome.Equal(decimal.RequireFromString("200")))
}

func TestRunDetectsCorruption(t *testing.T) {
	book := balancedBook()
	book[0].Balance = book[0].Balance.Add(decimal.RequireFromString("0.02"))
	repo := &fakeIntegrityRepo{balances: book}
	checker := NewChecker(repo, nil, nil)

	report, err := checker.Run(context.Background())
	require.ErrorIs(t, err, shared.ErrLedgerImbalance)
	require.False(t, report.Balanced)
}

func TestRunToleratesSubCentNoise(t *testing.T) {
	book := balancedBook()
	book[0].Balance = book[0].Balance.Add(decimal.RequireFromString("0.009"))
	repo := &fakeIntegrityRepo{balances: book}
	checker := NewChecker(repo, nil, nil)

	_, err := checker.Run(context.Background())
	require.NoError(t, err)
}

func TestRunSplitsNegativeBalanceIntoOppositeColumn(t *testing.T) {
	repo := &fakeIntegrityRepo{balances: []AccountBalance{
		{AccountID: 1, Code: "1000", Type: accounts.AccountTypeAsset, Balance: decimal.RequireFromString("-100")},
		{AccountID: 2, Code: "2000", Type: accounts.AccountTypeLiability, Balance: decimal.RequireFromString("-100")},
	}}
	checker := NewChecker(repo, nil, nil)

	report, err := checker.Run(context.Background())
	require.NoError(t, err)
	require.True(t, report.Rows[0].Credit.Equal(decimal.RequireFromString("100")))
	require.True(t, report.Rows[0].Debit.IsZero())
	require.True(t, report.Rows[1].Debit.Equal(decimal.RequireFromString("100")))
	require.True(t, report.Rows[1].Credit.IsZero())
}

func TestLatestReportServesCachedCopy(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	repo := &fakeIntegrityRepo{balances: balancedBook()}
	checker := NewChecker(repo, client, nil)

	_, err := checker.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, repo.calls)

	report, err := checker.LatestReport(context.Background())
	require.NoError(t, err)
	require.True(t, report.Balanced)
	require.Equal(t, 1, repo.calls)

	// Run always recomputes, even with a warm cache.
	_, err = checker.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, repo.calls)
}

func TestViolatingReportIsNeverCached(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	book := balancedBook()
	book[0].Balance = book[0].Balance.Add(decimal.RequireFromString("5"))
	repo := &fakeIntegrityRepo{balances: book}
	checker := NewChecker(repo, client, nil)

	_, err := checker.Run(context.Background())
	require.ErrorIs(t, err, shared.ErrLedgerImbalance)

	_, err = checker.LatestReport(context.Background())
	require.ErrorIs(t, err, shared.ErrLedgerImbalance)
	require.Equal(t, 2, repo.calls)
}
