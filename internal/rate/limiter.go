package rate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Config holds the fixed-window budget.
type Config struct {
	Prefix      string
	MaxAttempts int
	Window      time.Duration
}

// Limiter counts failed attempts per key in Redis. Windows are fixed: the
// TTL is set on the first failure and the counter resets when it expires.
type Limiter struct {
	redis  redis.UniversalClient
	config Config
}

// New creates a [Limiter] backed by the given Redis client.
func New(redisClient redis.UniversalClient, cfg Config) (*Limiter, error) {
	if cfg.MaxAttempts <= 0 {
		return nil, errors.New("rate: MaxAttempts must be > 0")
	}
	if cfg.Window <= 0 {
		return nil, errors.New("rate: Window must be > 0")
	}
	if cfg.Prefix == "" {
		cfg.Prefix = "rl"
	}
	return &Limiter{redis: redisClient, config: cfg}, nil
}

func (l *Limiter) key(id string) string {
	return l.config.Prefix + ":" + strings.ToLower(strings.TrimSpace(id))
}

// Check returns ErrRateLimited once id has used its budget.
func (l *Limiter) Check(ctx context.Context, id string) error {
	count, err := l.redis.Get(ctx, l.key(id)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if count >= int64(l.config.MaxAttempts) {
		return ErrRateLimited
	}
	return nil
}

// Fail records a failed attempt and returns the attempts left in the window.
func (l *Limiter) Fail(ctx context.Context, id string) (int, error) {
	key := l.key(id)
	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if count == 1 {
		if err := l.redis.Expire(ctx, key, l.config.Window).Err(); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}
	left := int64(l.config.MaxAttempts) - count
	if left < 0 {
		left = 0
	}
	return int(left), nil
}

// Reset clears the counter for id, typically after a successful attempt.
func (l *Limiter) Reset(ctx context.Context, id string) error {
	if err := l.redis.Del(ctx, l.key(id)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}
