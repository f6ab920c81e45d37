// Package ratelimit provides a small in-memory token bucket limiter for
// basic abuse protection on mutating routes. It is intended for
// single-instance deployments.
package ratelimit

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// defaultMaxKeys bounds the bucket table. Evicting a cold bucket just
// resets that client to a full burst, which is acceptable.
const defaultMaxKeys = 8192

// Limiter refills rate tokens/second per key up to a burst capacity.
type Limiter struct {
	mu      sync.Mutex
	buckets *lru.Cache[string, *bucket]

	rate  float64
	burst float64

	now func() time.Time
}

type bucket struct {
	tokens float64
	last   time.Time
}

// New returns a limiter that refills at rate tokens/second up to burst
// capacity, tracking at most maxKeys clients (0 = default).
func New(rate float64, burst, maxKeys int) *Limiter {
	if maxKeys <= 0 {
		maxKeys = defaultMaxKeys
	}
	cache, err := lru.New[string, *bucket](maxKeys)
	if err != nil {
		// lru.New only fails on a non-positive size.
		panic(err)
	}
	return &Limiter{
		buckets: cache,
		rate:    rate,
		burst:   float64(burst),
		now:     time.Now,
	}
}

// Allow reports whether a request for key should be allowed right now.
func (l *Limiter) Allow(key string) bool {
	if key == "" {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets.Get(key)
	if !ok {
		b = &bucket{tokens: l.burst, last: l.now()}
		l.buckets.Add(key, b)
	}

	now := l.now()
	elapsed := now.Sub(b.last).Seconds()
	if elapsed > 0 {
		b.tokens += elapsed * l.rate
		if b.tokens > l.burst {
			b.tokens = l.burst
		}
		b.last = now
	}

	if b.tokens < 1 {
		return false
	}
	b.tokens -= 1
	return true
}
