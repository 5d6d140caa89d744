package main

import (
	"github.com/ovenly/backend/internal/ratelimit"
	"github.com/ovenly/backend/pkg/config"
	"github.com/ovenly/backend/pkg/redis"
)

// newLimiter shares counters through Redis when several api instances run.
func newLimiter(cfg *config.Config, redisClient *redis.Client) (ratelimit.Limiter, error) {
	if !cfg.Orders.UseRedisRateLimits() {
		return ratelimit.NewMemory(), nil
	}
	limiter, err := ratelimit.NewRedis(redisClient)
	if err != nil {
		return nil, err
	}
	return limiter, nil
}
