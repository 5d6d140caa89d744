package ratelimit

import (
	"context"
	"sync"
	"time"
)

const sweepEvery = 1024

type window struct {
	span time.Duration
	hits []time.Time
}

// Memory is a process-local sliding window limiter.
type Memory struct {
	mu    sync.Mutex
	keys  map[string]*window
	calls int
	now   func() time.Time
}

func NewMemory() *Memory {
	return &Memory{keys: make(map[string]*window), now: time.Now}
}

func (m *Memory) Allow(_ context.Context, key string, limit int, span time.Duration) (Decision, error) {
	if disabled(limit, span) {
		return Decision{Allowed: true}, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	m.calls++
	if m.calls%sweepEvery == 0 {
		m.sweep(now)
	}

	w, ok := m.keys[key]
	if !ok {
		w = &window{}
		m.keys[key] = w
	}
	w.span = span
	w.prune(now)

	if len(w.hits) >= limit {
		return Decision{RetryAfter: w.hits[0].Add(span).Sub(now)}, nil
	}
	w.hits = append(w.hits, now)
	return Decision{Allowed: true}, nil
}

func (w *window) prune(now time.Time) {
	cutoff := now.Add(-w.span)
	i := 0
	for i < len(w.hits) && !w.hits[i].After(cutoff) {
		i++
	}
	if i > 0 {
		w.hits = append(w.hits[:0], w.hits[i:]...)
	}
}

func (m *Memory) sweep(now time.Time) {
	for key, w := range m.keys {
		w.prune(now)
		if len(w.hits) == 0 {
			delete(m.keys, key)
		}
	}
}
