package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"mnemolite/internal/circuitbreaker"
	"mnemolite/internal/logging"
)

// l2Cache wraps a Redis client behind a circuit breaker, the same shape the
// teacher's internal/ratelimit.RedisLimiter uses for its own Redis-backed
// limiter: a pooled client built once, every call protected so a flaky
// Redis degrades the cascade to L1-only instead of stalling every request.
type l2Cache struct {
	client  *redis.Client
	breaker *circuitbreaker.CircuitBreaker
	ttl     time.Duration
}

func newL2Cache(redisURL string, ttl time.Duration, breakerCfg *circuitbreaker.Config) (*l2Cache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	opts.MaxRetries = 3
	opts.MinRetryBackoff = 50 * time.Millisecond
	opts.MaxRetryBackoff = 1 * time.Second
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 2 * time.Second
	opts.WriteTimeout = 2 * time.Second
	opts.PoolSize = 10
	opts.MinIdleConns = 2

	client := redis.NewClient(opts)

	cfg := breakerCfg
	if cfg == nil {
		cfg = circuitbreaker.DefaultConfig()
	}
	cfg.OnStateChange = func(from, to circuitbreaker.State) {
		logging.CacheLogger.Warn("l2 circuit breaker state change", "from", from.String(), "to", to.String())
	}

	return &l2Cache{client: client, breaker: circuitbreaker.New(cfg), ttl: ttl}, nil
}

func (l *l2Cache) ping(ctx context.Context) error {
	return l.client.Ping(ctx).Err()
}

func (l *l2Cache) get(ctx context.Context, key string) ([]byte, bool, error) {
	var value []byte
	var found bool

	err := l.breaker.Execute(ctx, func(ctx context.Context) error {
		v, err := l.client.Get(ctx, key).Bytes()
		if err == redis.Nil {
			found = false
			return nil
		}
		if err != nil {
			return err
		}
		value, found = v, true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return value, found, nil
}

func (l *l2Cache) set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = l.ttl
	}
	return l.breaker.Execute(ctx, func(ctx context.Context) error {
		return l.client.Set(ctx, key, value, ttl).Err()
	})
}

func (l *l2Cache) delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return l.breaker.Execute(ctx, func(ctx context.Context) error {
		return l.client.Del(ctx, keys...).Err()
	})
}

// deletePattern scans for keys matching a glob pattern and removes them,
// used for repository/file-scoped invalidation where the exact key set
// isn't known to the caller.
func (l *l2Cache) deletePattern(ctx context.Context, pattern string) error {
	return l.breaker.Execute(ctx, func(ctx context.Context) error {
		var cursor uint64
		for {
			keys, next, err := l.client.Scan(ctx, cursor, pattern, 100).Result()
			if err != nil {
				return err
			}
			if len(keys) > 0 {
				if err := l.client.Del(ctx, keys...).Err(); err != nil {
					return err
				}
			}
			cursor = next
			if cursor == 0 {
				break
			}
		}
		return nil
	})
}

func (l *l2Cache) close() error {
	return l.client.Close()
}
