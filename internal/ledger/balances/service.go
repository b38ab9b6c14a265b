package balances

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/umoja-fin/ledger/internal/ledger/shared"
	"github.com/umoja-fin/ledger/internal/ledger/snapshots"
)

// Service is the balance materializer: the three-tier read path over the
// cache, the live column, and snapshot+delta reconstruction. It never takes
// writer locks.
type Service struct {
	repo   Repository
	cache  *Cache
	logger *slog.Logger
	now    func() time.Time
}

// NewService constructs the materializer. cache may be nil.
func NewService(repo Repository, cache *Cache, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, cache: cache, logger: logger, now: time.Now}
}

func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// GetCurrentBalance reads the authoritative "now" balance: cache tier first
// (a hit is always correct because the key carries the version epoch), then
// the live column, repopulating the cache on a miss.
func (s *Service) GetCurrentBalance(ctx context.Context, accountID int64) (decimal.Decimal, error) {
	acct, err := s.repo.GetAccount(ctx, accountID)
	if err != nil {
		return decimal.Zero, err
	}
	if cached, ok, err := s.cache.Get(ctx, acct.ID, acct.VersionEpoch); err != nil {
		s.logger.Warn("balance cache get", slog.Int64("account_id", accountID), slog.Any("error", err))
	} else if ok {
		return cached, nil
	}
	if err := s.cache.Set(ctx, acct.ID, acct.VersionEpoch, acct.CurrentBalance); err != nil {
		s.logger.Warn("balance cache set", slog.Int64("account_id", accountID), slog.Any("error", err))
	}
	return acct.CurrentBalance, nil
}

// GetHistoricalBalance reconstructs the balance as of asOf. Dates now or in
// the future route to the current read path; past dates use the latest
// snapshot on or before asOf plus the signed deltas of entries created after
// the snapshot's end of day, or the full entry log when no snapshot exists.
func (s *Service) GetHistoricalBalance(ctx context.Context, accountID int64, asOf time.Time) (decimal.Decimal, error) {
	if asOf.IsZero() || !asOf.Before(s.now()) {
		return s.GetCurrentBalance(ctx, accountID)
	}
	acct, err := s.repo.GetAccount(ctx, accountID)
	if err != nil {
		return decimal.Zero, err
	}
	snap, err := s.repo.LatestSnapshotOnOrBefore(ctx, accountID, snapshots.StartOfDay(asOf))
	if errors.Is(err, shared.ErrSnapshotNotFound) {
		// Young account with a short history; sum everything.
		s.logger.Warn("historical read without snapshot", slog.Int64("account_id", accountID), slog.Time("as_of", asOf))
		totals, err := s.repo.EntryTotals(ctx, accountID, nil, asOf)
		if err != nil {
			return decimal.Zero, err
		}
		return totals.Signed(acct.Type), nil
	}
	if err != nil {
		return decimal.Zero, err
	}
	boundary := snapshots.EndOfDay(snap.SnapshotDate)
	totals, err := s.repo.EntryTotals(ctx, accountID, &boundary, asOf)
	if err != nil {
		return decimal.Zero, err
	}
	return snap.Balance.Add(totals.Signed(acct.Type)), nil
}

// GetCurrentBalances reads many accounts at once: one pipelined cache round
// trip, per-account fallback to the live column, and opportunistic
// repopulation of the misses.
func (s *Service) GetCurrentBalances(ctx context.Context, accountIDs []int64) (map[int64]decimal.Decimal, error) {
	accts, err := s.repo.GetAccounts(ctx, accountIDs)
	if err != nil {
		return nil, err
	}
	byID := make(map[int64]struct{}, len(accts))
	for _, acct := range accts {
		byID[acct.ID] = struct{}{}
	}
	var missing []string
	for _, id := range accountIDs {
		if _, ok := byID[id]; !ok {
			missing = append(missing, strconv.FormatInt(id, 10))
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", shared.ErrAccountNotFound, strings.Join(missing, ", "))
	}

	refs := make([]AccountRef, 0, len(accts))
	for _, acct := range accts {
		refs = append(refs, AccountRef{AccountID: acct.ID, VersionEpoch: acct.VersionEpoch})
	}
	hits, err := s.cache.BulkGet(ctx, refs)
	if err != nil {
		s.logger.Warn("balance cache bulk get", slog.Any("error", err))
	}

	result := make(map[int64]decimal.Decimal, len(accts))
	var repopulate []CachedBalance
	for _, acct := range accts {
		if cached, ok := hits[acct.ID]; ok {
			result[acct.ID] = cached
			continue
		}
		result[acct.ID] = acct.CurrentBalance
		repopulate = append(repopulate, CachedBalance{
			AccountRef: AccountRef{AccountID: acct.ID, VersionEpoch: acct.VersionEpoch},
			Balance:    acct.CurrentBalance,
		})
	}
	if err := s.cache.BulkSet(ctx, repopulate); err != nil {
		s.logger.Warn("balance cache bulk set", slog.Any("error", err))
	}
	return result, nil
}

// Recalculate rebuilds the live column from the latest full-day snapshot plus
// recent entries (or the whole log) and bumps the version epoch. This is the
// administrative repair path after an exceptional entry deletion.
func (s *Service) Recalculate(ctx context.Context, accountID int64) (decimal.Decimal, error) {
	acct, err := s.repo.GetAccount(ctx, accountID)
	if err != nil {
		return decimal.Zero, err
	}
	now := s.now()
	yesterday := snapshots.StartOfDay(now).AddDate(0, 0, -1)

	var balance decimal.Decimal
	snap, err := s.repo.LatestSnapshotOnOrBefore(ctx, accountID, yesterday)
	switch {
	case err == nil:
		boundary := snapshots.EndOfDay(snap.SnapshotDate)
		totals, err := s.repo.EntryTotals(ctx, accountID, &boundary, now)
		if err != nil {
			return decimal.Zero, err
		}
		balance = snap.Balance.Add(totals.Signed(acct.Type))
	case errors.Is(err, shared.ErrSnapshotNotFound):
		totals, err := s.repo.EntryTotals(ctx, accountID, nil, now)
		if err != nil {
			return decimal.Zero, err
		}
		balance = totals.Signed(acct.Type)
	default:
		return decimal.Zero, err
	}

	epoch, err := s.repo.RewriteBalance(ctx, accountID, balance)
	if err != nil {
		return decimal.Zero, err
	}
	if err := s.cache.Set(ctx, accountID, epoch, balance); err != nil {
		s.logger.Warn("balance cache set", slog.Int64("account_id", accountID), slog.Any("error", err))
	}
	return balance, nil
}
