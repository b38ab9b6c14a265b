package posting

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// IdempotencyCache is a best-effort Redis mapping from idempotency key to
// transaction id. The transactions table's unique constraint is the
// authority; this only short-circuits repeat lookups. A nil cache or an
// unavailable Redis degrades to a miss.
type IdempotencyCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewIdempotencyCache constructs the cache helper.
func NewIdempotencyCache(client *redis.Client, ttl time.Duration) *IdempotencyCache {
	return &IdempotencyCache{client: client, ttl: ttl}
}

func idempotencyKey(key string) string {
	return fmt.Sprintf("txn:idem:%s", key)
}

// Lookup returns the cached transaction id for the key, if present.
func (c *IdempotencyCache) Lookup(ctx context.Context, key string) (int64, bool, error) {
	if c == nil || c.client == nil {
		return 0, false, nil
	}
	raw, err := c.client.Get(ctx, idempotencyKey(key)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, false, nil
	}
	return id, true, nil
}

// Remember stores the key → transaction id mapping with a bounded expiry.
func (c *IdempotencyCache) Remember(ctx context.Context, key string, transactionID int64) error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Set(ctx, idempotencyKey(key), strconv.FormatInt(transactionID, 10), c.ttl).Err()
}
