// Package ledger assembles the double-entry ledger services for embedding
// into upstream binaries and workflow services.
package ledger

import (
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/umoja-fin/ledger/internal/app"
	"github.com/umoja-fin/ledger/internal/ledger/accounts"
	"github.com/umoja-fin/ledger/internal/ledger/balances"
	"github.com/umoja-fin/ledger/internal/ledger/integrity"
	"github.com/umoja-fin/ledger/internal/ledger/posting"
	"github.com/umoja-fin/ledger/internal/ledger/snapshots"
)

// Services is the assembled ledger core. Posting is the only balance writer;
// Balances is the read path; Snapshots and Integrity run out-of-band.
type Services struct {
	Accounts  *accounts.Service
	Posting   *posting.Service
	Balances  *balances.Service
	Snapshots *snapshots.Service
	Integrity *integrity.Checker
}

// NewServices builds the service graph from configuration and the shared
// infrastructure handles. The posting engine and the balance read path share
// one versioned balance cache, sized by cfg.BalanceCacheTTL; the idempotency
// write-through uses cfg.IdempotencyTTL. redisClient may be nil, in which
// case every cache degrades to a miss.
func NewServices(cfg *app.Config, pool *pgxpool.Pool, redisClient *redis.Client, logger *slog.Logger) *Services {
	balanceCache := balances.NewCache(redisClient, cfg.BalanceCacheTTL)
	idem := posting.NewIdempotencyCache(redisClient, cfg.IdempotencyTTL)
	return &Services{
		Accounts:  accounts.NewService(accounts.NewRepository(pool)),
		Posting:   posting.NewService(posting.NewRepository(pool), idem, balanceCache, logger),
		Balances:  balances.NewService(balances.NewRepository(pool), balanceCache, logger),
		Snapshots: snapshots.NewService(snapshots.NewRepository(pool), logger, cfg.SnapshotWorkers),
		Integrity: integrity.NewChecker(integrity.NewRepository(pool), redisClient, logger),
	}
}
