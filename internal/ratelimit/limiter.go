// Package ratelimit keeps one token bucket per client.
package ratelimit

import (
	"net"
	"sync"
	"time"
)

type Limiter struct {
	mu      sync.Mutex
	rps     float64
	burst   float64
	buckets map[string]*bucket
}

type bucket struct {
	tokens float64
	last   time.Time
}

// NewLimiter returns a limiter refilling rps tokens per second up to burst.
// A limiter with a non-positive rate or burst allows everything.
func NewLimiter(rps float64, burst int) *Limiter {
	return &Limiter{
		rps:     rps,
		burst:   float64(burst),
		buckets: make(map[string]*bucket),
	}
}

// Allow reports whether key may make a request at now, taking a token if so.
func (l *Limiter) Allow(key string, now time.Time) bool {
	if l == nil || key == "" || l.rps <= 0 || l.burst <= 0 {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{tokens: l.burst, last: now}
		l.buckets[key] = b
	}

	elapsed := now.Sub(b.last).Seconds()
	if elapsed < 0 {
		elapsed = 0
	}
	b.tokens = min(b.tokens+elapsed*l.rps, l.burst)
	b.last = now

	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}

// Prune drops buckets idle long enough to have refilled completely and
// returns how many were removed.
func (l *Limiter) Prune(now time.Time) int {
	if l == nil || l.rps <= 0 {
		return 0
	}
	full := time.Duration(l.burst / l.rps * float64(time.Second))

	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for key, b := range l.buckets {
		if now.Sub(b.last) >= full {
			delete(l.buckets, key)
			removed++
		}
	}
	return removed
}

func (l *Limiter) Len() int {
	if l == nil {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

// ClientKey returns the host part of a request's remote address.
func ClientKey(remoteAddr string) string {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return remoteAddr
	}
	return host
}
