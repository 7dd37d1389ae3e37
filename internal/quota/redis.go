package quota

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// RedisLedger keeps one integer key per identity per day.
type RedisLedger struct {
	client    goredis.Cmdable
	keyPrefix string
	ttl       time.Duration
	now       Clock
}

var _ Ledger = (*RedisLedger)(nil)

// RedisOption configures RedisLedger.
type RedisOption func(*RedisLedger)

// WithKeyPrefix sets the key prefix (default "kalori:quota:").
func WithKeyPrefix(prefix string) RedisOption {
	return func(r *RedisLedger) { r.keyPrefix = prefix }
}

// WithClock overrides time.Now.
func WithClock(now Clock) RedisOption {
	return func(r *RedisLedger) { r.now = now }
}

func NewRedisLedger(client goredis.Cmdable, opts ...RedisOption) *RedisLedger {
	r := &RedisLedger{
		client:    client,
		keyPrefix: "kalori:quota:",
		ttl:       48 * time.Hour,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *RedisLedger) dayKey(key string) string {
	return r.keyPrefix + key + ":" + DayString(r.now())
}

// consumeScript increments KEYS[1] when it is below the limit.
// ARGV[1] = limit (negative for unbounded)
// ARGV[2] = ttl seconds
//
// Returns the new count, or -1 when the limit is reached.
var consumeScript = goredis.NewScript(`
local limit = tonumber(ARGV[1])
local used = tonumber(redis.call("GET", KEYS[1]) or "0")
if limit >= 0 and used >= limit then
    return -1
end
used = redis.call("INCR", KEYS[1])
if used == 1 then
    redis.call("EXPIRE", KEYS[1], tonumber(ARGV[2]))
end
return used
`)

// releaseScript decrements KEYS[1] if it is positive.
var releaseScript = goredis.NewScript(`
local used = tonumber(redis.call("GET", KEYS[1]) or "0")
if used > 0 then
    return redis.call("DECR", KEYS[1])
end
return 0
`)

func (r *RedisLedger) Consume(ctx context.Context, key string, limit int) (Decision, error) {
	if key == "" {
		return Decision{}, ErrEmptyIdentity
	}
	if limit == 0 {
		return denied(limit), nil
	}
	used, err := consumeScript.Run(ctx, r.client,
		[]string{r.dayKey(key)},
		limit, int64(r.ttl/time.Second),
	).Int()
	if err != nil {
		return Decision{}, fmt.Errorf("quota/redis: consume: %w", err)
	}
	if used < 0 {
		return NewDecision(false, limit, limit), nil
	}
	return NewDecision(true, used, limit), nil
}

func (r *RedisLedger) Release(ctx context.Context, key string) error {
	if key == "" {
		return ErrEmptyIdentity
	}
	if _, err := releaseScript.Run(ctx, r.client, []string{r.dayKey(key)}).Result(); err != nil {
		return fmt.Errorf("quota/redis: release: %w", err)
	}
	return nil
}

func (r *RedisLedger) Used(ctx context.Context, key string) (int, error) {
	if key == "" {
		return 0, ErrEmptyIdentity
	}
	used, err := r.client.Get(ctx, r.dayKey(key)).Int()
	if errors.Is(err, goredis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("quota/redis: used: %w", err)
	}
	return used, nil
}
