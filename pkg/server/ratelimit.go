package server

import (
	"sync"
	"time"
)

// RateLimiter is a sliding-window request counter. Each key keeps the
// timestamps of its requests inside the window; a request is allowed while
// the pruned window holds fewer than rate entries.
type RateLimiter struct {
	rate   int
	period time.Duration

	mu       sync.Mutex
	requests map[string][]time.Time
	now      func() time.Time
}

// NewRateLimiter allows rate requests per period per key. A non-positive
// rate disables limiting.
func NewRateLimiter(rate int, period time.Duration) *RateLimiter {
	return &RateLimiter{
		rate:     rate,
		period:   period,
		requests: make(map[string][]time.Time),
		now:      time.Now,
	}
}

// Allow records a request against key and reports whether it fits the
// window.
func (l *RateLimiter) Allow(key string) bool {
	if l.rate <= 0 {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	windowStart := now.Add(-l.period)

	kept := l.requests[key][:0]
	for _, ts := range l.requests[key] {
		if ts.After(windowStart) {
			kept = append(kept, ts)
		}
	}

	if len(kept) >= l.rate {
		l.requests[key] = kept
		return false
	}
	l.requests[key] = append(kept, now)
	return true
}
