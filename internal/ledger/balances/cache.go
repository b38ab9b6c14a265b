package balances

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

// Cache stores account balances under keys versioned by epoch. A balance
// mutation bumps the account's epoch, so stale values become unaddressable
// instead of needing active invalidation. A nil Cache or an unavailable Redis
// degrades every operation to a miss or a no-op.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCache instantiates the cache helper.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

// AccountRef addresses one versioned balance.
type AccountRef struct {
	AccountID    int64
	VersionEpoch int64
}

// CachedBalance pairs a versioned key with its balance for bulk writes.
type CachedBalance struct {
	AccountRef
	Balance decimal.Decimal
}

type cachePayload struct {
	Balance      decimal.Decimal `json:"balance"`
	CachedAt     int64           `json:"cached_at"`
	AccountID    int64           `json:"account_id"`
	VersionEpoch int64           `json:"version_epoch"`
}

func cacheKey(accountID, versionEpoch int64) string {
	return fmt.Sprintf("account:%d:balance:v%d", accountID, versionEpoch)
}

// Get returns the cached balance for (account, epoch). The bool reports a hit;
// a non-nil error signals cache infrastructure failure, which callers treat as
// a miss.
func (c *Cache) Get(ctx context.Context, accountID, versionEpoch int64) (decimal.Decimal, bool, error) {
	if c == nil || c.client == nil {
		return decimal.Zero, false, nil
	}
	raw, err := c.client.Get(ctx, cacheKey(accountID, versionEpoch)).Bytes()
	if errors.Is(err, redis.Nil) {
		return decimal.Zero, false, nil
	}
	if err != nil {
		return decimal.Zero, false, err
	}
	var payload cachePayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return decimal.Zero, false, nil
	}
	return payload.Balance, true, nil
}

// Set stores the balance under the versioned key with the configured TTL.
func (c *Cache) Set(ctx context.Context, accountID, versionEpoch int64, balance decimal.Decimal) error {
	if c == nil || c.client == nil {
		return nil
	}
	raw, err := json.Marshal(cachePayload{
		Balance:      balance,
		CachedAt:     time.Now().Unix(),
		AccountID:    accountID,
		VersionEpoch: versionEpoch,
	})
	if err != nil {
		return err
	}
	return c.client.Set(ctx, cacheKey(accountID, versionEpoch), raw, c.ttl).Err()
}

// BulkGet fetches many versioned balances in one pipelined round trip.
// Only hits appear in the result.
func (c *Cache) BulkGet(ctx context.Context, refs []AccountRef) (map[int64]decimal.Decimal, error) {
	out := make(map[int64]decimal.Decimal, len(refs))
	if c == nil || c.client == nil || len(refs) == 0 {
		return out, nil
	}
	cmds := make(map[int64]*redis.StringCmd, len(refs))
	pipe := c.client.Pipeline()
	for _, ref := range refs {
		cmds[ref.AccountID] = pipe.Get(ctx, cacheKey(ref.AccountID, ref.VersionEpoch))
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return out, err
	}
	for accountID, cmd := range cmds {
		raw, err := cmd.Bytes()
		if err != nil {
			continue
		}
		var payload cachePayload
		if err := json.Unmarshal(raw, &payload); err != nil {
			continue
		}
		out[accountID] = payload.Balance
	}
	return out, nil
}

// BulkSet stores many versioned balances in one pipelined round trip.
func (c *Cache) BulkSet(ctx context.Context, values []CachedBalance) error {
	if c == nil || c.client == nil || len(values) == 0 {
		return nil
	}
	now := time.Now().Unix()
	pipe := c.client.Pipeline()
	for _, value := range values {
		raw, err := json.Marshal(cachePayload{
			Balance:      value.Balance,
			CachedAt:     now,
			AccountID:    value.AccountID,
			VersionEpoch: value.VersionEpoch,
		})
		if err != nil {
			return err
		}
		pipe.Set(ctx, cacheKey(value.AccountID, value.VersionEpoch), raw, c.ttl)
	}
	_, err := pipe.Exec(ctx)
	return err
}
