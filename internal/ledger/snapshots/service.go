package snapshots

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/umoja-fin/ledger/internal/ledger/accounts"
	"github.com/umoja-fin/ledger/internal/ledger/shared"
)

// SweepResult summarizes one daily rollup run.
type SweepResult struct {
	Date    time.Time
	Created int64
	Skipped int64
	Failed  int64
}

// Service creates per-account balance rollups. It reads only committed data
// and takes no locks that contend with posting.
type Service struct {
	repo    Repository
	logger  *slog.Logger
	workers int
}

// NewService constructs the snapshot service. workers caps sweep parallelism.
func NewService(repo Repository, logger *slog.Logger, workers int) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if workers < 1 {
		workers = 1
	}
	return &Service{repo: repo, logger: logger, workers: workers}
}

// CreateForAccount rolls up one account's balance and entry count through the
// end of date and persists it exactly once. Re-running for an already
// snapshotted date is a no-op; the returned bool reports whether a snapshot
// was created.
func (s *Service) CreateForAccount(ctx context.Context, account accounts.Account, date time.Time) (Snapshot, bool, error) {
	date = StartOfDay(date)
	exists, err := s.repo.Exists(ctx, account.ID, date)
	if err != nil {
		return Snapshot{}, false, err
	}
	if exists {
		return Snapshot{}, false, nil
	}

	debit, credit, count, err := s.repo.EntryTotalsThrough(ctx, account.ID, EndOfDay(date))
	if err != nil {
		return Snapshot{}, false, err
	}
	balance := credit.Sub(debit)
	if account.Type.DebitNormal() {
		balance = debit.Sub(credit)
	}

	created, err := s.repo.Insert(ctx, Snapshot{
		AccountID:    account.ID,
		SnapshotDate: date,
		Balance:      balance,
		EntriesCount: count,
	})
	if errors.Is(err, shared.ErrDuplicateKey) {
		// A concurrent sweep won the insert; nothing to do.
		return Snapshot{}, false, nil
	}
	if err != nil {
		return Snapshot{}, false, err
	}
	return created, true, nil
}

// CreateDailySnapshots rolls up every active account for the given date.
// Per-account failures are logged and counted; they do not abort the sweep.
func (s *Service) CreateDailySnapshots(ctx context.Context, date time.Time) (SweepResult, error) {
	date = StartOfDay(date)
	active, err := s.repo.ListActiveAccounts(ctx)
	if err != nil {
		return SweepResult{}, err
	}

	var created, skipped, failed atomic.Int64
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for _, account := range active {
		account := account
		g.Go(func() error {
			_, ok, err := s.CreateForAccount(ctx, account, date)
			switch {
			case err != nil:
				failed.Add(1)
				s.logger.Error("snapshot rollup failed",
					slog.Int64("account_id", account.ID),
					slog.Time("date", date),
					slog.Any("error", err))
			case ok:
				created.Add(1)
			default:
				skipped.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()

	return SweepResult{
		Date:    date,
		Created: created.Load(),
		Skipped: skipped.Load(),
		Failed:  failed.Load(),
	}, nil
}
