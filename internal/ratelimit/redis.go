package ratelimit

import (
	"context"
	"fmt"
	"time"
)

type fixedWindowCounter interface {
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, time.Duration, error)
}

// Redis is a fixed window limiter shared by every instance pointing at the same Redis.
type Redis struct {
	store fixedWindowCounter
}

func NewRedis(store fixedWindowCounter) (*Redis, error) {
	if store == nil {
		return nil, fmt.Errorf("redis store required")
	}
	return &Redis{store: store}, nil
}

func (r *Redis) Allow(ctx context.Context, key string, limit int, window time.Duration) (Decision, error) {
	if disabled(limit, window) {
		return Decision{Allowed: true}, nil
	}
	allowed, _, resetIn, err := r.store.FixedWindowAllow(ctx, key, int64(limit), window)
	if err != nil {
		return Decision{}, fmt.Errorf("rate limit %s: %w", key, err)
	}
	if allowed {
		return Decision{Allowed: true}, nil
	}
	return Decision{RetryAfter: resetIn}, nil
}
