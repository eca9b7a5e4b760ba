// Package ratelimit throttles deliveries per endpoint.
package ratelimit

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// Limiter keeps one token bucket per endpoint. The bucket refills at the
// endpoint's rate and holds at most one second's worth of tokens.
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*rate.Limiter
}

// New creates a new rate limiter.
func New() *Limiter {
	return &Limiter{
		buckets: make(map[string]*rate.Limiter),
	}
}

// Allow reports whether the endpoint may send now, consuming a token if so.
// A perSecond of 0 means unlimited.
func (l *Limiter) Allow(endpointID string, perSecond int) bool {
	if perSecond <= 0 {
		return true
	}
	return l.bucket(endpointID, perSecond).Allow()
}

// Wait blocks until the endpoint may send or ctx is done.
// A perSecond of 0 means unlimited.
func (l *Limiter) Wait(ctx context.Context, endpointID string, perSecond int) error {
	if perSecond <= 0 {
		return nil
	}
	return l.bucket(endpointID, perSecond).Wait(ctx)
}

// bucket returns the endpoint's limiter, adjusting it when the configured
// rate changed since it was created.
func (l *Limiter) bucket(endpointID string, perSecond int) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[endpointID]
	if !ok {
		b = rate.NewLimiter(rate.Limit(perSecond), perSecond)
		l.buckets[endpointID] = b
		return b
	}
	if b.Burst() != perSecond {
		b.SetLimit(rate.Limit(perSecond))
		b.SetBurst(perSecond)
	}
	return b
}
