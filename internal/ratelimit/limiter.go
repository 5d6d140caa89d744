// Package ratelimit answers "may this key act again within the window" for
// order submission, webhook floods and balance pushes.
package ratelimit

import (
	"context"
	"time"
)

// Decision is the verdict for a single call.
type Decision struct {
	Allowed    bool
	RetryAfter time.Duration
}

// RetryAfterMs is RetryAfter in whole milliseconds, rounded up.
func (d Decision) RetryAfterMs() int64 {
	if d.RetryAfter <= 0 {
		return 0
	}
	return int64((d.RetryAfter + time.Millisecond - 1) / time.Millisecond)
}

// Limiter counts one hit against key and reports whether it fits the limit.
// A non-positive limit or window disables limiting.
type Limiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (Decision, error)
}

func disabled(limit int, window time.Duration) bool {
	return limit <= 0 || window <= 0
}
