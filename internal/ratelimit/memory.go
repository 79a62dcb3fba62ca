package ratelimit

import (
	"context"
	"sync"
	"time"
)

// MemoryLimiter is the single-process degradation path. Unlike the durable
// backend it keeps a sliding window of recent call timestamps per key; the
// divergence from the fixed-window primary is deliberate and preserved.
type MemoryLimiter struct {
	mu     sync.Mutex
	events map[string][]time.Time
	now    func() time.Time
}

func NewMemoryLimiter() *MemoryLimiter {
	return &MemoryLimiter{
		events: make(map[string][]time.Time),
		now:    time.Now,
	}
}

func (l *MemoryLimiter) Allow(_ context.Context, key string, limit int, window time.Duration) (Decision, error) {
	now := l.now()
	cutoff := now.Add(-window)

	l.mu.Lock()
	defer l.mu.Unlock()

	kept := l.events[key][:0]
	for _, ts := range l.events[key] {
		if !ts.Before(cutoff) {
			kept = append(kept, ts)
		}
	}

	if len(kept) >= limit {
		l.events[key] = kept
		oldest := kept[0]
		retryAfter := oldest.Add(window).Sub(now)
		if retryAfter < time.Second {
			retryAfter = time.Second
		}
		return Decision{Allowed: false, RetryAfter: retryAfter}, nil
	}

	l.events[key] = append(kept, now)
	return Decision{Allowed: true}, nil
}
