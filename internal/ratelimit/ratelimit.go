// Package ratelimit implements a per-key token bucket with a secondary
// hourly cap, ported from the gateway's original two-tier rate limiting
// design. golang.org/x/time/rate's Limiter models only a single refill
// rate with no hourly ceiling, so this is hand-rolled — see DESIGN.md.
package ratelimit

import (
	"sync"
	"time"

	"go.uber.org/atomic"
)

// bucket is one key's rate-limit state. tokens is a float so partial
// refills (e.g. 0.3 tokens after 300ms at 60rpm) accumulate correctly
// instead of rounding to zero.
type bucket struct {
	mu          sync.Mutex
	tokens      float64
	lastRefill  time.Time
	hourlyCount atomic.Int64
	hourlyReset time.Time
}

// Limiter enforces requestsPerMinute (token bucket, refilled continuously)
// and requestsPerHour (hard cap, reset on the hour boundary since the
// bucket's creation) per key.
type Limiter struct {
	mu                sync.Mutex
	buckets           map[string]*bucket
	requestsPerMinute float64
	requestsPerHour   int64
}

// New builds a Limiter. requestsPerMinute and requestsPerHour are both
// inclusive ceilings — the (requestsPerMinute+1)th request within a minute
// is rejected.
func New(requestsPerMinute, requestsPerHour int) *Limiter {
	return &Limiter{
		buckets:           make(map[string]*bucket),
		requestsPerMinute: float64(requestsPerMinute),
		requestsPerHour:   int64(requestsPerHour),
	}
}

func (l *Limiter) bucketFor(key string) *bucket {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[key]
	if !ok {
		now := time.Now()
		b = &bucket{
			tokens:      l.requestsPerMinute,
			lastRefill:  now,
			hourlyReset: now.Add(time.Hour),
		}
		l.buckets[key] = b
	}
	return b
}

// Allow reports whether a request for key may proceed, consuming one token
// and incrementing the hourly count if so. The check order matches the
// original implementation: reset the hourly window if due, reject on the
// hourly cap, refill the per-minute bucket by elapsed time, then reject or
// consume a token.
func (l *Limiter) Allow(key string) bool {
	b := l.bucketFor(key)

	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()

	if now.After(b.hourlyReset) {
		b.hourlyCount.Store(0)
		b.hourlyReset = now.Add(time.Hour)
	}

	if b.hourlyCount.Load() >= l.requestsPerHour {
		return false
	}

	elapsed := now.Sub(b.lastRefill).Seconds()
	refillRate := l.requestsPerMinute / 60.0 // tokens per second
	b.tokens += elapsed * refillRate
	if b.tokens > l.requestsPerMinute {
		b.tokens = l.requestsPerMinute
	}
	b.lastRefill = now

	if b.tokens < 1.0 {
		return false
	}

	b.tokens -= 1.0
	b.hourlyCount.Inc()
	return true
}
