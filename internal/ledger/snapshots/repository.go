package snapshots

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/umoja-fin/ledger/internal/ledger/accounts"
	"github.com/umoja-fin/ledger/internal/ledger/shared"
)

// Repository encapsulates DB operations for snapshots and the rollup inputs.
type Repository interface {
	Exists(ctx context.Context, accountID int64, date time.Time) (bool, error)
	Insert(ctx context.Context, snapshot Snapshot) (Snapshot, error)
	// EntryTotalsThrough sums the account's entries with created_at <= until.
	EntryTotalsThrough(ctx context.Context, accountID int64, until time.Time) (debit, credit decimal.Decimal, count int64, err error)
	ListActiveAccounts(ctx context.Context) ([]accounts.Account, error)
}

type repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

func (r *repository) Exists(ctx context.Context, accountID int64, date time.Time) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM account_balance_snapshots WHERE account_id=$1 AND snapshot_date=$2)`,
		accountID, StartOfDay(date)).Scan(&exists)
	if err != nil {
		return false, err
	}
	return exists, nil
}

func (r *repository) Insert(ctx context.Context, snapshot Snapshot) (Snapshot, error) {
	row := r.db.QueryRow(ctx, `INSERT INTO account_balance_snapshots (account_id, snapshot_date, balance, entries_count)
VALUES ($1,$2,$3,$4) RETURNING id, created_at`,
		snapshot.AccountID, snapshot.SnapshotDate, snapshot.Balance, snapshot.EntriesCount)
	if err := row.Scan(&snapshot.ID, &snapshot.CreatedAt); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Snapshot{}, shared.ErrDuplicateKey
		}
		return Snapshot{}, err
	}
	return snapshot, nil
}

func (r *repository) EntryTotalsThrough(ctx context.Context, accountID int64, until time.Time) (decimal.Decimal, decimal.Decimal, int64, error) {
	var debit, credit decimal.Decimal
	var count int64
	err := r.db.QueryRow(ctx, `SELECT COALESCE(SUM(debit),0), COALESCE(SUM(credit),0), COUNT(*)
FROM entries WHERE account_id=$1 AND created_at <= $2`, accountID, until).
		Scan(&debit, &credit, &count)
	if err != nil {
		return decimal.Zero, decimal.Zero, 0, err
	}
	return debit, credit, count, nil
}

func (r *repository) ListActiveAccounts(ctx context.Context) ([]accounts.Account, error) {
	rows, err := r.db.Query(ctx, `SELECT id, code, name, account_type, currency, parent_account_id, current_balance, version_epoch, active, created_at, updated_at
FROM accounts WHERE active=true ORDER BY id`)
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
