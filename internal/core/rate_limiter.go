package core

import (
	"sync"
	"time"
)

// RateLimiter decides whether a user's request may proceed, recording it if
// so. It is an abuse guard, not a correctness mechanism; implementations
// need not be linearizable across service instances.
type RateLimiter interface {
	Allow(userID string) bool
}

// FixedWindowLimiter admits up to limit requests per user within a sliding
// fixed window, tracked in memory. Suitable for single-instance deployments;
// swap in an externally backed RateLimiter for multi-instance ones.
type FixedWindowLimiter struct {
	mu       sync.Mutex
	limit    int
	window   time.Duration
	requests map[string][]time.Time
	now      func() time.Time
}

func NewFixedWindowLimiter(limit int, window time.Duration) *FixedWindowLimiter {
	return &FixedWindowLimiter{
		limit:    limit,
		window:   window,
		requests: make(map[string][]time.Time),
		now:      time.Now,
	}
}

func (l *FixedWindowLimiter) Allow(userID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	windowStart := now.Add(-l.window)

	kept := l.requests[userID][:0]
	for _, t := range l.requests[userID] {
		if t.After(windowStart) {
			kept = append(kept, t)
		}
	}

	if len(kept) >= l.limit {
		l.requests[userID] = kept
		return false
	}

	l.requests[userID] = append(kept, now)
	return true
}
