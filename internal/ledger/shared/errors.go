package shared

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation indicates a malformed posting request.
	ErrValidation = errors.New("ledger: invalid request")
	// ErrUnbalanced indicates debit and credit totals differ beyond tolerance.
	ErrUnbalanced = errors.New("ledger: entries must balance")
	// ErrTooFewEntries indicates fewer than two entries. Matches ErrValidation
	// so callers can treat the whole malformed-request family uniformly.
	ErrTooFewEntries = fmt.Errorf("%w: transaction requires at least two entries", ErrValidation)
	// ErrAccountNotFound indicates a referenced account does not exist.
	ErrAccountNotFound = errors.New("ledger: account not found")
	// ErrTransactionNotFound indicates a missing transaction.
	ErrTransactionNotFound = errors.New("ledger: transaction not found")
	// ErrEntryNotFound indicates a missing entry.
	ErrEntryNotFound = errors.New("ledger: entry not found")
	// ErrSnapshotNotFound indicates no snapshot covers the requested date.
	ErrSnapshotNotFound = errors.New("ledger: snapshot not found")
	// ErrInvalidStatus indicates a void/reverse on a non-posted transaction.
	ErrInvalidStatus = errors.New("ledger: invalid status transition")
	// ErrDuplicateKey indicates an idempotency-key unique violation. The engine
	// resolves it internally; callers should never observe it.
	ErrDuplicateKey = errors.New("ledger: idempotency key already used")
	// ErrConcurrencyConflict indicates a lock timeout or serialization failure.
	// Retryable with the same idempotency key.
	ErrConcurrencyConflict = errors.New("ledger: concurrency conflict, retry")
	// ErrAccountHasEntries indicates a delete attempt on a referenced account.
	ErrAccountHasEntries = errors.New("ledger: account has transaction history")
	// ErrCircularHierarchy indicates an account parent chain cycle.
	ErrCircularHierarchy = errors.New("ledger: circular account hierarchy")
	// ErrLedgerImbalance indicates a violated global accounting identity.
	// Fatal; requires operator intervention and is never auto-corrected.
	ErrLedgerImbalance = errors.New("ledger: global balance invariant violated")
)
