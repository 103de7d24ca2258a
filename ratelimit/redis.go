package ratelimit

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Redis is a fixed-window limiter whose counters live in Redis, so every
// instance behind a load balancer draws from the same budget.
type Redis struct {
	client redis.UniversalClient
	prefix string
	cfg    Config
}

// NewRedis builds a limiter storing counters under prefix + key.
func NewRedis(client redis.UniversalClient, prefix string, cfg Config) (*Redis, error) {
	if client == nil {
		return nil, fmt.Errorf("%w: nil redis client", ErrInvalidConfig)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if prefix == "" {
		prefix = "rl:"
	}
	return &Redis{client: client, prefix: prefix, cfg: cfg}, nil
}

// Allow implements Limiter.
func (r *Redis) Allow(ctx context.Context, key string) (Decision, error) {
	k := r.prefix + key

	count, err := r.client.Incr(ctx, k).Result()
	if err != nil {
		return Decision{}, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	// The window starts with the first hit; only that hit sets the TTL.
	if count == 1 {
		if err := r.client.PExpire(ctx, k, r.cfg.Window).Err(); err != nil {
			return Decision{}, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
		}
		return Decision{Allowed: true, Remaining: r.cfg.Limit - 1}, nil
	}

	if count <= int64(r.cfg.Limit) {
		return Decision{Allowed: true, Remaining: r.cfg.Limit - int(count)}, nil
	}

	// Over budget. Undo this hit so denied calls stay free, then report the
	// remaining TTL as the retry hint.
	pipe := r.client.TxPipeline()
	pipe.Decr(ctx, k)
	ttlCmd := pipe.PTTL(ctx, k)
	if _, err := pipe.Exec(ctx); err != nil {
		return Decision{}, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	ttl := ttlCmd.Val()
	if ttl < 0 {
		// A key without expiry would block forever; repair it.
		if err := r.client.PExpire(ctx, k, r.cfg.Window).Err(); err != nil {
			return Decision{}, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
		}
		ttl = r.cfg.Window
	}
	return Decision{RetryAfter: ttl}, nil
}

// Reset forgets the counter for key.
func (r *Redis) Reset(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, r.prefix+key).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	return nil
}

var _ Limiter = (*Redis)(nil)
var _ Limiter = (*Memory)(nil)
