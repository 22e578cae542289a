// Package ratelimit bounds per-identity request rates on the gateway
// and the channel layer.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter enforces a sends-per-minute budget per identity. A budget of
// zero or less disables enforcement entirely.
type Limiter struct {
	perMinute int

	mu      sync.Mutex
	buckets map[string]*bucket
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func NewLimiter(perMinute int) *Limiter {
	return &Limiter{
		perMinute: perMinute,
		buckets:   make(map[string]*bucket),
	}
}

// Allow reports whether the identity may send now, consuming one token
// if so.
func (l *Limiter) Allow(identity string) bool {
	if l.perMinute <= 0 {
		return true
	}
	return l.bucketFor(identity).limiter.Allow()
}

// RunCleanup drops idle buckets every interval until ctx is done.
func (l *Limiter) RunCleanup(ctx context.Context, interval, maxAge time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			l.Cleanup(maxAge)
		case <-ctx.Done():
			return
		}
	}
}

func (l *Limiter) bucketFor(identity string) *bucket {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[identity]
	if !ok {
		b = &bucket{
			limiter: rate.NewLimiter(rate.Limit(l.perMinute)/60, l.perMinute),
		}
		l.buckets[identity] = b
	}
	b.lastSeen = time.Now()
	return b
}

// Cleanup drops buckets idle longer than maxAge so one-off identities
// do not accumulate forever.
func (l *Limiter) Cleanup(maxAge time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := time.Now().Add(-maxAge)
	for identity, b := range l.buckets {
		if b.lastSeen.Before(cutoff) {
			delete(l.buckets, identity)
		}
	}
}

// Size reports the number of tracked identities.
func (l *Limiter) Size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}
