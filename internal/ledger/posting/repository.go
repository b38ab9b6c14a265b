package posting

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/umoja-fin/ledger/internal/ledger/accounts"
	"github.com/umoja-fin/ledger/internal/ledger/shared"
	"github.com/umoja-fin/ledger/internal/platform/db"
)

// Repository encapsulates DB operations for transactions and entries.
type Repository interface {
	GetWithEntries(ctx context.Context, id int64) (Transaction, error)
	GetByIdempotencyKey(ctx context.Context, key string) (Transaction, error)
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	// DeleteEntry removes one entry row and reports the account it touched.
	// Administrative escape hatch; the caller must recalculate that account's
	// balance afterwards.
	DeleteEntry(ctx context.Context, id int64) (int64, error)
}

// BalanceUpdate reports the committed state of one account after a mutation.
type BalanceUpdate struct {
	AccountID    int64
	Balance      decimal.Decimal
	VersionEpoch int64
}

// TxRepository exposes operations available inside one atomic unit of work.
type TxRepository interface {
	// LockAccounts acquires exclusive row locks on the given accounts in
	// ascending id order and returns them. Missing ids are simply absent
	// from the result.
	LockAccounts(ctx context.Context, ids []int64) ([]accounts.Account, error)
	InsertTransaction(ctx context.Context, txn Transaction) (Transaction, error)
	InsertEntries(ctx context.Context, transactionID int64, entries []Entry) ([]Entry, error)
	// ApplyBalanceDelta adds delta to the account balance and bumps the
	// version epoch, returning the committed values.
	ApplyBalanceDelta(ctx context.Context, accountID int64, delta decimal.Decimal) (BalanceUpdate, error)
	GetWithEntriesForUpdate(ctx context.Context, id int64) (Transaction, error)
	UpdateStatus(ctx context.Context, id int64, status TransactionStatus, metadata map[string]any) error
}

type repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

const transactionColumns = `id, idempotency_key, description, posted_at, status, metadata, created_at, updated_at`

func (r *repository) GetWithEntries(ctx context.Context, id int64) (Transaction, error) {
	return getWithEntries(ctx, r.db, id, false)
}

func (r *repository) GetByIdempotencyKey(ctx context.Context, key string) (Transaction, error) {
	var txn Transaction
	err := scanTransaction(r.db.QueryRow(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE idempotency_key=$1`, key), &txn)
	if err != nil {
		return Transaction{}, err
	}
	entries, err := loadEntries(ctx, r.db, txn.ID)
	if err != nil {
		return Transaction{}, err
	}
	txn.Entries = entries
	return txn, nil
}

func (r *repository) DeleteEntry(ctx context.Context, id int64) (int64, error) {
	var accountID int64
	err := r.db.QueryRow(ctx, `DELETE FROM entries WHERE id=$1 RETURNING account_id`, id).Scan(&accountID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, shared.ErrEntryNotFound
		}
		return 0, translateErr(err)
	}
	return accountID, nil
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	err := db.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
	return translateErr(err)
}

type txRepository struct {
	tx pgx.Tx
}

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func (r *txRepository) LockAccounts(ctx context.Context, ids []int64) ([]accounts.Account, error) {
	rows, err := r.tx.Query(ctx, `SELECT id, code, name, account_type, currency, parent_account_id, current_balance, version_epoch, active, created_at, updated_at
FROM accounts WHERE id = ANY($1) ORDER BY id FOR UPDATE`, ids)
	if err != nil {
		return nil, translateErr(err)
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
	if err := rows.Err(); err != nil {
		return nil, translateErr(err)
	}
	return out, nil
}

func (r *txRepository) InsertTransaction(ctx context.Context, txn Transaction) (Transaction, error) {
	row := r.tx.QueryRow(ctx, `INSERT INTO transactions (idempotency_key, description, posted_at, status, metadata)
VALUES ($1,$2,$3,$4,$5) RETURNING id, created_at, updated_at`,
		txn.IdempotencyKey, txn.Description, txn.PostedAt, txn.Status, txn.Metadata)
	if err := row.Scan(&txn.ID, &txn.CreatedAt, &txn.UpdatedAt); err != nil {
		return Transaction{}, translateErr(err)
	}
	return txn, nil
}

func (r *txRepository) InsertEntries(ctx context.Context, transactionID int64, entries []Entry) ([]Entry, error) {
	out := make([]Entry, 0, len(entries))
	for _, entry := range entries {
		entry.TransactionID = transactionID
		row := r.tx.QueryRow(ctx, `INSERT INTO entries (transaction_id, account_id, debit, credit, description)
VALUES ($1,$2,$3,$4,$5) RETURNING id, created_at`,
			transactionID, entry.AccountID, nullAmount(entry.Debit), nullAmount(entry.Credit), entry.Description)
		if err := row.Scan(&entry.ID, &entry.CreatedAt); err != nil {
			return nil, translateErr(err)
		}
		out = append(out, entry)
	}
	return out, nil
}

func (r *txRepository) ApplyBalanceDelta(ctx context.Context, accountID int64, delta decimal.Decimal) (BalanceUpdate, error) {
	update := BalanceUpdate{AccountID: accountID}
	err := r.tx.QueryRow(ctx, `UPDATE accounts
SET current_balance = current_balance + $2, version_epoch = version_epoch + 1, updated_at = NOW()
WHERE id=$1 RETURNING current_balance, version_epoch`, accountID, delta).
		Scan(&update.Balance, &update.VersionEpoch)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return BalanceUpdate{}, shared.ErrAccountNotFound
		}
		return BalanceUpdate{}, translateErr(err)
	}
	return update, nil
}

func (r *txRepository) GetWithEntriesForUpdate(ctx context.Context, id int64) (Transaction, error) {
	return getWithEntries(ctx, r.tx, id, true)
}

func (r *txRepository) UpdateStatus(ctx context.Context, id int64, status TransactionStatus, metadata map[string]any) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE transactions SET status=$2, metadata=$3, updated_at=NOW() WHERE id=$1`, id, status, metadata)
	if err != nil {
		return translateErr(err)
	}
	if cmd.RowsAffected() == 0 {
		return shared.ErrTransactionNotFound
	}
	return nil
}

func getWithEntries(ctx context.Context, q querier, id int64, forUpdate bool) (Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE id=$1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	var txn Transaction
	if err := scanTransaction(q.QueryRow(ctx, query, id), &txn); err != nil {
		return Transaction{}, err
	}
	entries, err := loadEntries(ctx, q, txn.ID)
	if err != nil {
		return Transaction{}, err
	}
	txn.Entries = entries
	return txn, nil
}

func scanTransaction(row pgx.Row, txn *Transaction) error {
	err := row.Scan(&txn.ID, &txn.IdempotencyKey, &txn.Description, &txn.PostedAt, &txn.Status, &txn.Metadata, &txn.CreatedAt, &txn.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return shared.ErrTransactionNotFound
		}
		return translateErr(err)
	}
	return nil
}

func loadEntries(ctx context.Context, q querier, transactionID int64) ([]Entry, error) {
	rows, err := q.Query(ctx, `SELECT id, transaction_id, account_id, debit, credit, description, created_at
FROM entries WHERE transaction_id=$1 ORDER BY id ASC`, transactionID)
	if err != nil {
		return nil, translateErr(err)
	}
	defer rows.Close()
	var entries []Entry
	for rows.Next() {
		var entry Entry
		var debit, credit decimal.NullDecimal
		var desc *string
		if err := rows.Scan(&entry.ID, &entry.TransactionID, &entry.AccountID, &debit, &credit, &desc, &entry.CreatedAt); err != nil {
			return nil, err
		}
		entry.Debit = debit.Decimal
		entry.Credit = credit.Decimal
		if desc != nil {
			entry.Description = *desc
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// nullAmount stores absent sides as NULL so the debit-xor-credit shape is
// visible in the schema.
func nullAmount(d decimal.Decimal) any {
	if d.IsZero() {
		return nil
	}
	return d
}

// translateErr maps storage failures onto the ledger error taxonomy:
// unique violations become ErrDuplicateKey for the engine to resolve, and
// lock/serialization failures become the retryable ErrConcurrencyConflict.
func translateErr(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return shared.ErrDuplicateKey
		case "40001", "40P01", "55P03":
			return shared.ErrConcurrencyConflict
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return shared.ErrConcurrencyConflict
	}
	return err
}
