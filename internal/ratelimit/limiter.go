// Package ratelimit provides an in-memory, per-key token-bucket limiter
// built on golang.org/x/time/rate.
//
// It backs both the per-user conversion limit of the bot and the per-IP limit
// of the ops HTTP server. Buckets are created on demand and idle buckets are
// evicted opportunistically after a TTL, so memory stays bounded by the number
// of recently active keys.
//
// The limiter is process-local.
package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	defaultTTL   = 10 * time.Minute
	cleanupEvery = 5000
)

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Limiter implements a per-key token bucket. A Limiter with a refill rate of
// zero is disabled and allows everything.
//
// This type is safe for concurrent use.
type Limiter struct {
	rps      rate.Limit
	burst    int
	mu       sync.Mutex
	visitors map[string]*visitor

	ttl      time.Duration
	cleanupN uint64
	now      func() time.Time
}

// New constructs a Limiter replenishing rps tokens per second up to burst.
// burst <= 0 is coerced to 1; rps <= 0 disables limiting.
func New(rps float64, burst int) *Limiter {
	if burst <= 0 {
		burst = 1
	}
	return &Limiter{
		rps:      rate.Limit(rps),
		burst:    burst,
		visitors: make(map[string]*visitor),
		ttl:      defaultTTL,
		now:      time.Now,
	}
}

// Enabled reports whether the limiter enforces anything.
func (l *Limiter) Enabled() bool { return l != nil && l.rps > 0 }

// Allow consumes one token from key's bucket and reports whether it was
// available.
func (l *Limiter) Allow(key string) bool {
	if !l.Enabled() {
		return true
	}
	return l.get(key).AllowN(l.now(), 1)
}

// Reserve reports how long key must wait before its next token, without
// consuming one. Zero means a call to Allow would succeed now.
func (l *Limiter) Reserve(key string) time.Duration {
	if !l.Enabled() {
		return 0
	}
	now := l.now()
	r := l.get(key).ReserveN(now, 1)
	d := r.DelayFrom(now)
	r.CancelAt(now)
	return d
}

// Len returns the number of tracked buckets.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.visitors)
}

// get returns (and touches) the bucket for key, creating it if absent.
// Eviction of idle buckets runs before the lookup so a stale entry for key
// is dropped rather than refreshed.
func (l *Limiter) get(key string) *rate.Limiter {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	l.cleanupN++
	if l.cleanupN >= cleanupEvery {
		l.evictLocked(now)
		l.cleanupN = 0
	}

	if v, ok := l.visitors[key]; ok {
		v.lastSeen = now
		return v.limiter
	}
	lim := rate.NewLimiter(l.rps, l.burst)
	l.visitors[key] = &visitor{limiter: lim, lastSeen: now}
	return lim
}

func (l *Limiter) evictLocked(now time.Time) {
	for k, v := range l.visitors {
		if now.Sub(v.lastSeen) >= l.ttl {
			delete(l.visitors, k)
		}
	}
}
