package store

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/serroba/guardflux/internal/ratelimit"
)

// incrementScript increments a counter and arms its expiry on the first hit
// of a period, as one atomic step.
//
// KEYS[1] = counter key
// ARGV[1] = ttl in milliseconds
var incrementScript = redis.NewScript(`
local count = redis.call("INCR", KEYS[1])
if count == 1 then
    redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return count
`)

// RedisCounterStore is a Redis implementation of ratelimit.CounterStore.
type RedisCounterStore struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisCounterStore creates a Redis-backed counter store. Keys are
// namespaced as "<prefix>:<identity>:<route>".
func NewRedisCounterStore(client redis.UniversalClient, prefix string) *RedisCounterStore {
	return &RedisCounterStore{
		client: client,
		prefix: prefix,
	}
}

func (r *RedisCounterStore) Increment(ctx context.Context, key ratelimit.Key, ttl time.Duration) (int64, error) {
	count, err := incrementScript.Run(ctx, r.client, []string{CounterKey(r.prefix, key)}, ttl.Milliseconds()).Int64()
	if err != nil {
		return 0, fmt.Errorf("redis increment: %w", err)
	}

	return count, nil
}

// CounterKey builds the namespaced counter key for a rate limit key,
// "<prefix>:" followed by the record id.
func CounterKey(prefix string, key ratelimit.Key) string {
	return prefix + ":" + key.String()
}

// Compile-time check.
var _ ratelimit.CounterStore = (*RedisCounterStore)(nil)
