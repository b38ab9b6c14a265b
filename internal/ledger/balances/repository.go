package balances

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/umoja-fin/ledger/internal/ledger/accounts"
	"github.com/umoja-fin/ledger/internal/ledger/shared"
	"github.com/umoja-fin/ledger/internal/ledger/snapshots"
)

// EntryTotals aggregates the raw debit/credit sums of a slice of an
// account's entry log.
type EntryTotals struct {
	Debit  decimal.Decimal
	Credit decimal.Decimal
	Count  int64
}

// Signed applies the normal-balance rule to the totals.
func (t EntryTotals) Signed(accountType accounts.AccountType) decimal.Decimal {
	if accountType.DebitNormal() {
		return t.Debit.Sub(t.Credit)
	}
	return t.Credit.Sub(t.Debit)
}

// Repository provides the read (and recalculation) surface for the
// balance materializer.
type Repository interface {
	GetAccount(ctx context.Context, id int64) (accounts.Account, error)
	GetAccounts(ctx context.Context, ids []int64) ([]accounts.Account, error)
	LatestSnapshotOnOrBefore(ctx context.Context, accountID int64, date time.Time) (snapshots.Snapshot, error)
	// EntryTotals sums entries with created_at in (after, until]. A nil after
	// starts from the beginning of the log.
	EntryTotals(ctx context.Context, accountID int64, after *time.Time, until time.Time) (EntryTotals, error)
	// RewriteBalance overwrites the live column from a recomputation and bumps
	// the version epoch, returning the new epoch.
	RewriteBalance(ctx context.Context, accountID int64, balance decimal.Decimal) (int64, error)
}

type repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

func (r *repository) GetAccount(ctx context.Context, id int64) (accounts.Account, error) {
	var a accounts.Account
	err := r.db.QueryRow(ctx, `SELECT id, code, name, account_type, currency, parent_account_id, current_balance, version_epoch, active, created_at, updated_at
FROM accounts WHERE id=$1`, id).
		Scan(&a.ID, &a.Code, &a.Name, &a.Type, &a.Currency, &a.ParentID, &a.CurrentBalance, &a.VersionEpoch, &a.IsActive, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return accounts.Account{}, shared.ErrAccountNotFound
		}
		return accounts.Account{}, err
	}
	return a, nil
}

func (r *repository) GetAccounts(ctx context.Context, ids []int64) ([]accounts.Account, error) {
	rows, err := r.db.Query(ctx, `SELECT id, code, name, account_type, currency, parent_account_id, current_balance, version_epoch, active, created_at, updated_at
FROM accounts WHERE id = ANY($1) ORDER BY id`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []accounts.Account
	for rows.Next() {
		var a accounts.Account
		if err := rows.Scan(&a.ID, &a.Code, &a.Name, &a.Type, &a.Currency, &a.ParentID, &a.CurrentBalance, &a.VersionEpoch, &a.IsActive, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *repository) LatestSnapshotOnOrBefore(ctx context.Context, accountID int64, date time.Time) (snapshots.Snapshot, error) {
	var s snapshots.Snapshot
	err := r.db.QueryRow(ctx, `SELECT id, account_id, snapshot_date, balance, entries_count, created_at
FROM account_balance_snapshots WHERE account_id=$1 AND snapshot_date <= $2
ORDER BY snapshot_date DESC LIMIT 1`, accountID, date).
		Scan(&s.ID, &s.AccountID, &s.SnapshotDate, &s.Balance, &s.EntriesCount, &s.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return snapshots.Snapshot{}, shared.ErrSnapshotNotFound
		}
		return snapshots.Snapshot{}, err
	}
	return s, nil
}

func (r *repository) EntryTotals(ctx context.Context, accountID int64, after *time.Time, until time.Time) (EntryTotals, error) {
	var totals EntryTotals
	var err error
	if after != nil {
		err = r.db.QueryRow(ctx, `SELECT COALESCE(SUM(debit),0), COALESCE(SUM(credit),0), COUNT(*)
FROM entries WHERE account_id=$1 AND created_at > $2 AND created_at <= $3`, accountID, *after, until).
			Scan(&totals.Debit, &totals.Credit, &totals.Count)
	} else {
		err = r.db.QueryRow(ctx, `SELECT COALESCE(SUM(debit),0), COALESCE(SUM(credit),0), COUNT(*)
FROM entries WHERE account_id=$1 AND created_at <= $2`, accountID, until).
			Scan(&totals.Debit, &totals.Credit, &totals.Count)
	}
	if err != nil {
		return EntryTotals{}, err
	}
	return totals, nil
}

func (r *repository) RewriteBalance(ctx context.Context, accountID int64, balance decimal.Decimal) (int64, error) {
	var epoch int64
	err := r.db.QueryRow(ctx, `UPDATE accounts
SET current_balance=$2, version_epoch=version_epoch+1, updated_at=NOW()
WHERE id=$1 RETURNING version_epoch`, accountID, balance).Scan(&epoch)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, shared.ErrAccountNotFound
		}
		return 0, err
	}
	return epoch, nil
}
