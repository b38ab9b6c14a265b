package posting

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/umoja-fin/ledger/internal/ledger/accounts"
	"github.com/umoja-fin/ledger/internal/ledger/shared"
)

// BalanceCacheWriter refreshes cached balances after a commit. Implementations
// must never fail the posting; errors are logged and swallowed.
type BalanceCacheWriter interface {
	Set(ctx context.Context, accountID, versionEpoch int64, balance decimal.Decimal) error
}

// Service is the posting engine: the only writer of account balances.
type Service struct {
	repo         Repository
	idem         *IdempotencyCache
	balanceCache BalanceCacheWriter
	logger       *slog.Logger
	now          func() time.Time
}

// NewService constructs the engine. idem and balanceCache may be nil; the
// engine then runs without the read accelerators.
func NewService(repo Repository, idem *IdempotencyCache, balanceCache BalanceCacheWriter, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, idem: idem, balanceCache: balanceCache, logger: logger, now: time.Now}
}

func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Get loads a transaction with its entries.
func (s *Service) Get(ctx context.Context, id int64) (Transaction, error) {
	return s.repo.GetWithEntries(ctx, id)
}

// CreateTransaction posts a balanced transaction atomically: it locks the
// referenced accounts in ascending id order, persists the transaction and its
// entries, and mutates every touched balance inside one unit of work. Repeat
// calls with the same idempotency key return the already-posted transaction.
// The key lookup runs before validation, so a retry whose body arrives
// mangled still resolves to the winner instead of failing.
func (s *Service) CreateTransaction(ctx context.Context, in CreateTransactionInput) (Transaction, error) {
	existing, found, err := s.lookupExisting(ctx, in.IdempotencyKey)
	if err != nil {
		return Transaction{}, err
	}
	if found {
		return existing, nil
	}
	if err := in.Validate(); err != nil {
		return Transaction{}, err
	}

	var txn Transaction
	var updates []BalanceUpdate
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		txn, updates, err = s.postLocked(ctx, tx, in)
		return err
	})
	if errors.Is(err, shared.ErrDuplicateKey) {
		// A concurrent call with the same key won the insert. The unique
		// constraint is the authority; fetch and return the winner.
		winner, werr := s.repo.GetByIdempotencyKey(ctx, in.IdempotencyKey)
		if werr != nil {
			return Transaction{}, fmt.Errorf("resolve idempotency conflict for %q: %w", in.IdempotencyKey, werr)
		}
		return winner, nil
	}
	if err != nil {
		return Transaction{}, err
	}

	s.writeThrough(ctx, txn, updates)
	return txn, nil
}

// DeleteEntry removes a single entry outside the normal lifecycle. It breaks
// the owning transaction's balance on purpose, so the affected account must be
// recalculated immediately after; the returned account id is that target.
func (s *Service) DeleteEntry(ctx context.Context, entryID int64) (int64, error) {
	accountID, err := s.repo.DeleteEntry(ctx, entryID)
	if err != nil {
		return 0, err
	}
	s.logger.Warn("entry deleted outside posting lifecycle",
		slog.Int64("entry_id", entryID),
		slog.Int64("account_id", accountID))
	return accountID, nil
}

// Void posts a counter-transaction that exactly offsets the target and marks
// it voided, both in one unit of work. The target must be posted.
func (s *Service) Void(ctx context.Context, transactionID int64) (Transaction, error) {
	return s.counter(ctx, transactionID, StatusVoided)
}

// Reverse is mechanically identical to Void under a different label.
func (s *Service) Reverse(ctx context.Context, transactionID int64) (Transaction, error) {
	return s.counter(ctx, transactionID, StatusReversed)
}

func (s *Service) counter(ctx context.Context, transactionID int64, terminal TransactionStatus) (Transaction, error) {
	var counterTxn Transaction
	var updates []BalanceUpdate
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		original, err := tx.GetWithEntriesForUpdate(ctx, transactionID)
		if err != nil {
			return err
		}
		if original.Status != StatusPosted {
			return fmt.Errorf("%w: transaction %d is %s", shared.ErrInvalidStatus, transactionID, original.Status)
		}
		now := s.now()
		in := counterInput(original, terminal, now)
		if err := in.Validate(); err != nil {
			return err
		}
		counterTxn, updates, err = s.postLocked(ctx, tx, in)
		if err != nil {
			return err
		}
		meta := cloneMetadata(original.Metadata)
		switch terminal {
		case StatusVoided:
			meta["voided_at"] = now.Format(time.RFC3339)
			meta["voided_by_transaction_id"] = counterTxn.ID
		case StatusReversed:
			meta["reversed_at"] = now.Format(time.RFC3339)
			meta["reversed_by_transaction_id"] = counterTxn.ID
		}
		return tx.UpdateStatus(ctx, original.ID, terminal, meta)
	})
	if errors.Is(err, shared.ErrDuplicateKey) {
		// The derived key already exists: a concurrent call completed the
		// transition first, so the original is terminal by now.
		return Transaction{}, fmt.Errorf("%w: counter transaction already posted for %d", shared.ErrInvalidStatus, transactionID)
	}
	if err != nil {
		return Transaction{}, err
	}
	s.writeThrough(ctx, counterTxn, updates)
	return counterTxn, nil
}

// postLocked runs the posting mechanics inside an already-open unit of work:
// ordered locks, existence validation, persistence, balance mutation.
func (s *Service) postLocked(ctx context.Context, tx TxRepository, in CreateTransactionInput) (Transaction, []BalanceUpdate, error) {
	ids := in.AccountIDs()
	locked, err := tx.LockAccounts(ctx, ids)
	if err != nil {
		return Transaction{}, nil, err
	}
	byID := make(map[int64]accounts.Account, len(locked))
	for _, acct := range locked {
		byID[acct.ID] = acct
	}
	if len(byID) != len(ids) {
		var missing []string
		for _, id := range ids {
			if _, ok := byID[id]; !ok {
				missing = append(missing, strconv.FormatInt(id, 10))
			}
		}
		return Transaction{}, nil, fmt.Errorf("%w: %s", shared.ErrAccountNotFound, strings.Join(missing, ", "))
	}

	postedAt := s.now()
	if in.PostedAt != nil {
		postedAt = *in.PostedAt
	}
	txn, err := tx.InsertTransaction(ctx, Transaction{
		IdempotencyKey: in.IdempotencyKey,
		Description:    in.Description,
		PostedAt:       postedAt,
		Status:         StatusPosted,
		Metadata:       in.Metadata,
	})
	if err != nil {
		return Transaction{}, nil, err
	}

	entries := make([]Entry, len(in.Entries))
	for i, entry := range in.Entries {
		entries[i] = Entry{
			AccountID:   entry.AccountID,
			Debit:       entry.Debit,
			Credit:      entry.Credit,
			Description: entry.Description,
		}
	}
	entries, err = tx.InsertEntries(ctx, txn.ID, entries)
	if err != nil {
		return Transaction{}, nil, err
	}
	txn.Entries = entries

	deltas := make(map[int64]decimal.Decimal, len(ids))
	for _, entry := range entries {
		acct := byID[entry.AccountID]
		deltas[entry.AccountID] = deltas[entry.AccountID].Add(entry.Delta(acct.Type))
	}
	updates := make([]BalanceUpdate, 0, len(ids))
	for _, id := range ids {
		update, err := tx.ApplyBalanceDelta(ctx, id, deltas[id])
		if err != nil {
			return Transaction{}, nil, err
		}
		updates = append(updates, update)
	}
	return txn, updates, nil
}

// lookupExisting resolves the idempotency key against the cache fast path and
// then the store. Cache failures degrade to a store lookup.
func (s *Service) lookupExisting(ctx context.Context, key string) (Transaction, bool, error) {
	if id, ok, err := s.idem.Lookup(ctx, key); err != nil {
		s.logger.Warn("idempotency cache lookup", slog.String("key", key), slog.Any("error", err))
	} else if ok {
		if txn, err := s.repo.GetWithEntries(ctx, id); err == nil {
			return txn, true, nil
		}
	}
	txn, err := s.repo.GetByIdempotencyKey(ctx, key)
	if err == nil {
		return txn, true, nil
	}
	if errors.Is(err, shared.ErrTransactionNotFound) {
		return Transaction{}, false, nil
	}
	return Transaction{}, false, err
}

// writeThrough refreshes the idempotency mapping and the touched balances
// after commit. Best effort: failures never fail the posting.
func (s *Service) writeThrough(ctx context.Context, txn Transaction, updates []BalanceUpdate) {
	if err := s.idem.Remember(ctx, txn.IdempotencyKey, txn.ID); err != nil {
		s.logger.Warn("idempotency write-through", slog.String("key", txn.IdempotencyKey), slog.Any("error", err))
	}
	if s.balanceCache == nil {
		return
	}
	for _, update := range updates {
		if err := s.balanceCache.Set(ctx, update.AccountID, update.VersionEpoch, update.Balance); err != nil {
			s.logger.Warn("balance cache refresh", slog.Int64("account_id", update.AccountID), slog.Any("error", err))
			return
		}
	}
}

func counterInput(original Transaction, terminal TransactionStatus, now time.Time) CreateTransactionInput {
	label, prefix, refKey, reasonKey := "void", "VOID: ", "voided_transaction_id", "void_reason"
	if terminal == StatusReversed {
		label, prefix, refKey, reasonKey = "reverse", "REVERSAL: ", "reversed_transaction_id", "reversal_reason"
	}
	entries := make([]EntryInput, len(original.Entries))
	for i, entry := range original.Entries {
		entries[i] = EntryInput{
			AccountID:   entry.AccountID,
			Debit:       entry.Credit,
			Credit:      entry.Debit,
			Description: fmt.Sprintf("Reversal of entry #%d", entry.ID),
		}
	}
	meta := cloneMetadata(original.Metadata)
	meta[refKey] = original.ID
	meta[reasonKey] = "Manual " + label
	return CreateTransactionInput{
		IdempotencyKey: original.IdempotencyKey + "-" + label,
		Description:    prefix + original.Description,
		Entries:        entries,
		PostedAt:       &now,
		Metadata:       meta,
	}
}

func cloneMetadata(meta map[string]any) map[string]any {
	out := make(map[string]any, len(meta)+2)
	for k, v := range meta {
		out[k] = v
	}
	return out
}
