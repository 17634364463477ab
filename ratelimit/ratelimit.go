// Package ratelimit implements per-destination token bucket rate limiting
// for outbound webhook calls.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Limiter tracks one token bucket per destination.
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
}

type bucket struct {
	tokens   float64
	lastFill time.Time
	rate     float64 // tokens per second
}

// New creates a rate limiter.
func New() *Limiter {
	return &Limiter{
		buckets: make(map[string]*bucket),
	}
}

// Allow checks whether a call to the destination may proceed.
// A rate of 0 means unlimited (always returns true).
func (l *Limiter) Allow(destination string, rate int) bool {
	if rate <= 0 {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	b := l.bucketFor(destination, float64(rate))
	b.refill()

	if b.tokens >= 1 {
		b.tokens--
		return true
	}
	return false
}

// Wait blocks until the rate limit allows the call or the context is
// cancelled. A rate of 0 means unlimited (returns immediately).
func (l *Limiter) Wait(ctx context.Context, destination string, rate int) error {
	if rate <= 0 {
		return nil
	}

	for {
		if l.Allow(destination, rate) {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(float64(time.Second) / float64(rate))):
			// Try again after estimated token interval.
		}
	}
}

// Reset clears the rate limit state for a destination.
func (l *Limiter) Reset(destination string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.buckets, destination)
}

func (l *Limiter) bucketFor(destination string, rate float64) *bucket {
	b, ok := l.buckets[destination]
	if !ok {
		b = &bucket{
			tokens:   rate, // start full
			lastFill: time.Now(),
			rate:     rate,
		}
		l.buckets[destination] = b
	}
	return b
}

func (b *bucket) refill() {
	now := time.Now()
	elapsed := now.Sub(b.lastFill).Seconds()
	b.tokens += elapsed * b.rate
	if b.tokens > b.rate {
		b.tokens = b.rate // cap at burst size = rate
	}
	b.lastFill = now
}
