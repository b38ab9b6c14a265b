package balances

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/umoja-fin/ledger/internal/ledger/accounts"
	"github.com/umoja-fin/ledger/internal/ledger/shared"
	"github.com/umoja-fin/ledger/internal/ledger/snapshots"
	_ "github.com/umoja-fin/ledger/testing"
)

type fakeEntry struct {
	accountID int64
	debit     decimal.Decimal
	credit    decimal.Decimal
	createdAt time.Time
}

type fakeBalanceRepo struct {
	accounts  map[int64]accounts.Account
	snapshots []snapshots.Snapshot
	entries   []fakeEntry
}

func (r *fakeBalanceRepo) GetAccount(ctx context.Context, id int64) (accounts.Account, error) {
	acct, ok := r.accounts[id]
	if !ok {
		return accounts.Account{}, shared.ErrAccountNotFound
	}
	return acct, nil
}

func (r *fakeBalanceRepo) GetAccounts(ctx context.Context, ids []int64) ([]accounts.Account, error) {
	var out []accounts.Account
	for _, id := range ids {
		if acct, ok := r.accounts[id]; ok {
			out = append(out, acct)
		}
	}
	return out, nil
}

func (r *fakeBalanceRepo) LatestSnapshotOnOrBefore(ctx context.Context, accountID int64, date time.Time) (snapshots.Snapshot, error) {
	var best *snapshots.Snapshot
	for i := range r.snapshots {
		s := r.snapshots[i]
		if s.AccountID != accountID || s.SnapshotDate.After(date) {
			continue
		}
		if best == nil || s.SnapshotDate.After(best.SnapshotDate) {
			best = &r.snapshots[i]
		}
	}
	if best == nil {
		return snapshots.Snapshot{}, shared.ErrSnapshotNotFound
	}
	return *best, nil
}

func (r *fakeBalanceRepo) EntryTotals(ctx context.Context, accountID int64, after *time.Time, until time.Time) (EntryTotals, error) {
	var totals EntryTotals
	for _, e := range r.entries {
		if e.accountID != accountID || e.createdAt.After(until) {
			continue
		}
		if after != nil && !e.createdAt.After(*after) {
			continue
		}
		totals.Debit = totals.Debit.Add(e.debit)
		totals.Credit = totals.Credit.Add(e.credit)
		totals.Count++
	}
	return totals, nil
}

func (r *fakeBalanceRepo) RewriteBalance(ctx context.Context, accountID int64, balance decimal.Decimal) (int64, error) {
	acct, ok := r.accounts[accountID]
	if !ok {
		return 0, shared.ErrAccountNotFound
	}
	acct.CurrentBalance = balance
	acct.VersionEpoch++
	r.accounts[accountID] = acct
	return acct.VersionEpoch, nil
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestGetCurrentBalanceCachesOnMiss(t *testing.T) {
	cache, _ := newTestCache(t)
	repo := &fakeBalanceRepo{accounts: map[int64]accounts.Account{
		1: {ID: 1, Type: accounts.AccountTypeAsset, CurrentBalance: decimal.RequireFromString("750"), VersionEpoch: 2},
	}}
	svc := NewService(repo, cache, nil)
	ctx := context.Background()

	got, err := svc.GetCurrentBalance(ctx, 1)
	require.NoError(t, err)
	require.True(t, got.Equal(decimal.RequireFromString("750")))

	cached, ok, err := cache.Get(ctx, 1, 2)
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, cached.Equal(got))
}

func TestGetCurrentBalanceIgnoresStaleEpoch(t *testing.T) {
	cache, _ := newTestCache(t)
	repo := &fakeBalanceRepo{accounts: map[int64]accounts.Account{
		1: {ID: 1, Type: accounts.AccountTypeAsset, CurrentBalance: decimal.RequireFromString("100"), VersionEpoch: 1},
	}}
	svc := NewService(repo, cache, nil)
	ctx := context.Background()

	// Warm the cache at epoch 1, then mutate the account under a new epoch.
	_, err := svc.GetCurrentBalance(ctx, 1)
	require.NoError(t, err)
	acct := repo.accounts[1]
	acct.CurrentBalance = decimal.RequireFromString("160")
	acct.VersionEpoch = 2
	repo.accounts[1] = acct

	got, err := svc.GetCurrentBalance(ctx, 1)
	require.NoError(t, err)
	require.True(t, got.Equal(decimal.RequireFromString("160")))
}

func TestGetCurrentBalanceUnknownAccount(t *testing.T) {
	svc := NewService(&fakeBalanceRepo{accounts: map[int64]accounts.Account{}}, nil, nil)
	_, err := svc.GetCurrentBalance(context.Background(), 404)
	require.ErrorIs(t, err, shared.ErrAccountNotFound)
}

func TestGetHistoricalBalanceSnapshotPlusDelta(t *testing.T) {
	now := day(2026, 3, 20)
	repo := &fakeBalanceRepo{
		accounts: map[int64]accounts.Account{
			1: {ID: 1, Type: accounts.AccountTypeAsset, CurrentBalance: decimal.RequireFromString("1500"), VersionEpoch: 9},
		},
		snapshots: []snapshots.Snapshot{
			{AccountID: 1, SnapshotDate: day(2026, 3, 1), Balance: decimal.RequireFromString("1000")},
			{AccountID: 1, SnapshotDate: day(2026, 3, 10), Balance: decimal.RequireFromString("1200")},
		},
		entries: []fakeEntry{
			// Inside the snapshot, must not be double counted.
			{accountID: 1, debit: decimal.RequireFromString("1200"), createdAt: day(2026, 3, 10).Add(10 * time.Hour)},
			// After the snapshot day, before asOf.
			{accountID: 1, debit: decimal.RequireFromString("300"), createdAt: day(2026, 3, 12)},
			{accountID: 1, credit: decimal.RequireFromString("100"), createdAt: day(2026, 3, 13)},
			// After asOf, must be excluded.
			{accountID: 1, debit: decimal.RequireFromString("100"), createdAt: day(2026, 3, 16)},
		},
	}
	svc := NewService(repo, nil, nil)
	svc.WithNow(func() time.Time { return now })

	got, err := svc.GetHistoricalBalance(context.Background(), 1, day(2026, 3, 15))
	require.NoError(t, err)
	require.True(t, got.Equal(decimal.RequireFromString("1400")), "got %s", got)
}

func TestGetHistoricalBalanceCreditNormalSign(t *testing.T) {
	now := day(2026, 3, 20)
	repo := &fakeBalanceRepo{
		accounts: map[int64]accounts.Account{
			2: {ID: 2, Type: accounts.AccountTypeIncome, CurrentBalance: decimal.RequireFromString("250")},
		},
		entries: []fakeEntry{
			{accountID: 2, credit: decimal.RequireFromString("300"), createdAt: day(2026, 3, 2)},
			{accountID: 2, debit: decimal.RequireFromString("50"), createdAt: day(2026, 3, 3)},
		},
	}
	svc := NewService(repo, nil, nil)
	svc.WithNow(func() time.Time { return now })

	// No snapshot exists; the full signed sum must respect the credit-normal rule.
	got, err := svc.GetHistoricalBalance(context.Background(), 2, day(2026, 3, 5))
	require.NoError(t, err)
	require.True(t, got.Equal(decimal.RequireFromString("250")))
}

func TestGetHistoricalBalanceNowEqualsCurrent(t *testing.T) {
	now := day(2026, 3, 20)
	repo := &fakeBalanceRepo{
		accounts: map[int64]accounts.Account{
			1: {ID: 1, Type: accounts.AccountTypeAsset, CurrentBalance: decimal.RequireFromString("777"), VersionEpoch: 4},
		},
	}
	svc := NewService(repo, nil, nil)
	svc.WithNow(func() time.Time { return now })

	current, err := svc.GetCurrentBalance(context.Background(), 1)
	require.NoError(t, err)
	historical, err := svc.GetHistoricalBalance(context.Background(), 1, now)
	require.NoError(t, err)
	require.True(t, historical.Equal(current))
}

func TestGetCurrentBalancesBulk(t *testing.T) {
	cache, _ := newTestCache(t)
	repo := &fakeBalanceRepo{accounts: map[int64]accounts.Account{
		1: {ID: 1, Type: accounts.AccountTypeAsset, CurrentBalance: decimal.RequireFromString("10"), VersionEpoch: 1},
		2: {ID: 2, Type: accounts.AccountTypeLiability, CurrentBalance: decimal.RequireFromString("20"), VersionEpoch: 1},
		3: {ID: 3, Type: accounts.AccountTypeIncome, CurrentBalance: decimal.RequireFromString("30"), VersionEpoch: 1},
	}}
	svc := NewService(repo, cache, nil)
	ctx := context.Background()

	// Pre-warm one account so the read mixes hits and misses.
	require.NoError(t, cache.Set(ctx, 2, 1, decimal.RequireFromString("20")))

	got, err := svc.GetCurrentBalances(ctx, []int64{1, 2, 3})
	require.NoError(t, err)
	require.Len(t, got, 3)
	require.True(t, got[1].Equal(decimal.RequireFromString("10")))
	require.True(t, got[2].Equal(decimal.RequireFromString("20")))
	require.True(t, got[3].Equal(decimal.RequireFromString("30")))

	// Misses were repopulated.
	cached, ok, err := cache.Get(ctx, 3, 1)
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, cached.Equal(decimal.RequireFromString("30")))
}

func TestGetCurrentBalancesMissingAccount(t *testing.T) {
	repo := &fakeBalanceRepo{accounts: map[int64]accounts.Account{
		1: {ID: 1, Type: accounts.AccountTypeAsset},
	}}
	svc := NewService(repo, nil, nil)
	_, err := svc.GetCurrentBalances(context.Background(), []int64{1, 42})
	require.ErrorIs(t, err, shared.ErrAccountNotFound)
}

func TestRecalculateRebuildsFromSnapshotAndBumpsEpoch(t *testing.T) {
	cache, _ := newTestCache(t)
	now := day(2026, 3, 20).Add(15 * time.Hour)
	repo := &fakeBalanceRepo{
		accounts: map[int64]accounts.Account{
			// Live column deliberately wrong, as after an entry deletion.
			1: {ID: 1, Type: accounts.AccountTypeAsset, CurrentBalance: decimal.RequireFromString("9999"), VersionEpoch: 3},
		},
		snapshots: []snapshots.Snapshot{
			{AccountID: 1, SnapshotDate: day(2026, 3, 15), Balance: decimal.RequireFromString("500")},
		},
		entries: []fakeEntry{
			{accountID: 1, debit: decimal.RequireFromString("120"), createdAt: day(2026, 3, 18)},
		},
	}
	svc := NewService(repo, cache, nil)
	svc.WithNow(func() time.Time { return now })

	got, err := svc.Recalculate(context.Background(), 1)
	require.NoError(t, err)
	require.True(t, got.Equal(decimal.RequireFromString("620")))
	require.Equal(t, int64(4), repo.accounts[1].VersionEpoch)
	require.True(t, repo.accounts[1].CurrentBalance.Equal(got))

	cached, ok, err := cache.Get(context.Background(), 1, 4)
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, cached.Equal(got))
}

func TestRecalculateWithoutSnapshot(t *testing.T) {
	now := day(2026, 3, 20)
	repo := &fakeBalanceRepo{
		accounts: map[int64]accounts.Account{
			2: {ID: 2, Type: accounts.AccountTypeLiability, CurrentBalance: decimal.Zero},
		},
		entries: []fakeEntry{
			{accountID: 2, credit: decimal.RequireFromString("400"), createdAt: day(2026, 3, 1)},
			{accountID: 2, debit: decimal.RequireFromString("150"), createdAt: day(2026, 3, 2)},
		},
	}
	svc := NewService(repo, nil, nil)
	svc.WithNow(func() time.Time { return now })

	got, err := svc.Recalculate(context.Background(), 2)
	require.NoError(t, err)
	require.True(t, got.Equal(decimal.RequireFromString("250")))
}
