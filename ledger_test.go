package ledger

import (
	"log/slog"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/umoja-fin/ledger/internal/app"
	_ "github.com/umoja-fin/ledger/testing"
)

func TestNewServicesWiresGraph(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	cfg := &app.Config{
		BalanceCacheTTL: time.Hour,
		IdempotencyTTL:  24 * time.Hour,
		SnapshotWorkers: 4,
	}
	services := NewServices(cfg, nil, client, slog.Default())
	require.NotNil(t, services.Accounts)
	require.NotNil(t, services.Posting)
	require.NotNil(t, services.Balances)
	require.NotNil(t, services.Snapshots)
	require.NotNil(t, services.Integrity)
}

func TestNewServicesWithoutRedis(t *testing.T) {
	cfg := &app.Config{
		BalanceCacheTTL: time.Hour,
		IdempotencyTTL:  24 * time.Hour,
		SnapshotWorkers: 1,
	}
	services := NewServices(cfg, nil, nil, slog.Default())
	require.NotNil(t, services.Posting)
	require.NotNil(t, services.Balances)
}
