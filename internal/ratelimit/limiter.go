package ratelimit

import (
	"context"
	"log/slog"
	"time"
)

// Decision is the outcome of one admission check. RetryAfter is only
// meaningful when Allowed is false and is always at least one second, so
// clients get a usable Retry-After header.
type Decision struct {
	Allowed    bool
	RetryAfter time.Duration
}

// Limiter admits or denies one call under (limit, window) for a key.
// Distinct purposes must use disjoint key namespaces, e.g. "upload:<uid>"
// vs "audio_import:<uid>", so they never cross-limit each other.
type Limiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (Decision, error)
}

// Service is the limiter the handlers use: a durable Redis fixed-window
// check first, degrading silently to the in-process sliding window when the
// backend is missing or failing. Denying all traffic on an ambiguous backend
// failure is not acceptable, so failure always falls toward the weaker path.
type Service struct {
	durable  Limiter
	fallback Limiter
}

// NewService builds the fallback chain. durable may be nil, in which case
// every check goes straight to the in-memory limiter.
func NewService(durable Limiter) *Service {
	return &Service{
		durable:  durable,
		fallback: NewMemoryLimiter(),
	}
}

func (s *Service) Allow(ctx context.Context, key string, limit int, window time.Duration) Decision {
	if s.durable != nil {
		d, err := s.durable.Allow(ctx, key, limit, window)
		if err == nil {
			return d
		}
		slog.Warn("durable rate limit check failed, falling back to in-memory", "key", key, "err", err)
	}
	d, err := s.fallback.Allow(ctx, key, limit, window)
	if err != nil {
		// The memory limiter cannot actually fail; admit rather than
		// wedge the request path.
		slog.Error("in-memory rate limit check failed", "key", key, "err", err)
		return Decision{Allowed: true}
	}
	return d
}
