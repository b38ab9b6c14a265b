package snapshots

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/umoja-fin/ledger/internal/ledger/accounts"
	"github.com/umoja-fin/ledger/internal/ledger/shared"
	_ "github.com/umoja-fin/ledger/testing"
)

type totalsKey struct {
	accountID int64
}

type fakeSnapshotRepo struct {
	mu       sync.Mutex
	active   []accounts.Account
	totals   map[totalsKey]EntryTotalsResult
	inserted map[string]Snapshot
	nextID   int64

	failTotalsFor map[int64]bool
	duplicateFor  map[int64]bool
}

type EntryTotalsResult struct {
	Debit  decimal.Decimal
	Credit decimal.Decimal
	Count  int64
}

func newFakeSnapshotRepo() *fakeSnapshotRepo {
	return &fakeSnapshotRepo{
		totals:        make(map[totalsKey]EntryTotalsResult),
		inserted:      make(map[string]Snapshot),
		failTotalsFor: make(map[int64]bool),
		duplicateFor:  make(map[int64]bool),
	}
}

func snapKey(accountID int64, date time.Time) string {
	return date.Format("2006-01-02") + "#" + strconv.FormatInt(accountID, 10)
}

func (r *fakeSnapshotRepo) Exists(ctx context.Context, accountID int64, date time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.inserted[snapKey(accountID, StartOfDay(date))]
	return ok, nil
}

func (r *fakeSnapshotRepo) Insert(ctx context.Context, snapshot Snapshot) (Snapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.duplicateFor[snapshot.AccountID] {
		return Snapshot{}, shared.ErrDuplicateKey
	}
	key := snapKey(snapshot.AccountID, snapshot.SnapshotDate)
	if _, ok := r.inserted[key]; ok {
		return Snapshot{}, shared.ErrDuplicateKey
	}
	r.nextID++
	snapshot.ID = r.nextID
	snapshot.CreatedAt = time.Now()
	r.inserted[key] = snapshot
	return snapshot, nil
}

func (r *fakeSnapshotRepo) EntryTotalsThrough(ctx context.Context, accountID int64, until time.Time) (decimal.Decimal, decimal.Decimal, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failTotalsFor[accountID] {
		return decimal.Zero, decimal.Zero, 0, errors.New("entries query failed")
	}
	res := r.totals[totalsKey{accountID: accountID}]
	return res.Debit, res.Credit, res.Count, nil
}

func (r *fakeSnapshotRepo) ListActiveAccounts(ctx context.Context) ([]accounts.Account, error) {
	return r.active, nil
}

func TestCreateForAccountComputesSignedBalance(t *testing.T) {
	repo := newFakeSnapshotRepo()
	repo.totals[totalsKey{accountID: 1}] = EntryTotalsResult{
		Debit:  decimal.RequireFromString("900"),
		Credit: decimal.RequireFromString("200"),
		Count:  7,
	}
	repo.totals[totalsKey{accountID: 2}] = EntryTotalsResult{
		Debit:  decimal.RequireFromString("200"),
		Credit: decimal.RequireFromString("900"),
		Count:  7,
	}
	svc := NewService(repo, nil, 1)
	date := time.Date(2026, 3, 15, 13, 45, 0, 0, time.UTC)

	asset := accounts.Account{ID: 1, Type: accounts.AccountTypeAsset}
	snap, created, err := svc.CreateForAccount(context.Background(), asset, date)
	require.NoError(t, err)
	require.True(t, created)
	require.True(t, snap.Balance.Equal(decimal.RequireFromString("700")))
	require.Equal(t, int64(7), snap.EntriesCount)
	require.Equal(t, StartOfDay(date), snap.SnapshotDate)

	liability := accounts.Account{ID: 2, Type: accounts.AccountTypeLiability}
	snap, created, err = svc.CreateForAccount(context.Background(), liability, date)
	require.NoError(t, err)
	require.True(t, created)
	require.True(t, snap.Balance.Equal(decimal.RequireFromString("700")))
}

func TestCreateForAccountSkipsExisting(t *testing.T) {
	repo := newFakeSnapshotRepo()
	svc := NewService(repo, nil, 1)
	date := time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)
	acct := accounts.Account{ID: 1, Type: accounts.AccountTypeAsset}

	_, created, err := svc.CreateForAccount(context.Background(), acct, date)
	require.NoError(t, err)
	require.True(t, created)

	_, created, err = svc.CreateForAccount(context.Background(), acct, date)
	require.NoError(t, err)
	require.False(t, created)
	require.Len(t, repo.inserted, 1)
}

func TestCreateForAccountConcurrentInsertIsNoop(t *testing.T) {
	repo := newFakeSnapshotRepo()
	repo.duplicateFor[1] = true
	svc := NewService(repo, nil, 1)

	_, created, err := svc.CreateForAccount(context.Background(),
		accounts.Account{ID: 1, Type: accounts.AccountTypeAsset},
		time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.False(t, created)
}

func TestCreateDailySnapshotsSweep(t *testing.T) {
	repo := newFakeSnapshotRepo()
	repo.active = []accounts.Account{
		{ID: 1, Type: accounts.AccountTypeAsset},
		{ID: 2, Type: accounts.AccountTypeLiability},
		{ID: 3, Type: accounts.AccountTypeIncome},
	}
	repo.failTotalsFor[3] = true
	date := time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)

	// Account 2 already swept earlier today.
	_, err := repo.Insert(context.Background(), Snapshot{AccountID: 2, SnapshotDate: date})
	require.NoError(t, err)

	svc := NewService(repo, nil, 4)
	result, err := svc.CreateDailySnapshots(context.Background(), date)
	require.NoError(t, err)
	require.Equal(t, int64(1), result.Created)
	require.Equal(t, int64(1), result.Skipped)
	require.Equal(t, int64(1), result.Failed)
	require.Equal(t, date, result.Date)
}

func TestEndOfDayBoundary(t *testing.T) {
	d := time.Date(2026, 3, 15, 9, 30, 0, 0, time.UTC)
	end := EndOfDay(d)
	require.True(t, end.After(time.Date(2026, 3, 15, 23, 59, 59, 0, time.UTC)))
	require.True(t, end.Before(time.Date(2026, 3, 16, 0, 0, 0, 0, time.UTC)))
	require.Equal(t, StartOfDay(d), time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC))
}
