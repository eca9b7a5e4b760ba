// Package backoff computes retry delays for failed webhook deliveries.
//
// The default schedule doubles from one second up to five minutes and adds
// up to one second of uniform jitter so that endpoints recovering from an
// outage are not hit by every queued retry at once.
package backoff

import (
	"math"
	"math/rand/v2"
	"time"
)

// Default schedule parameters.
const (
	DefaultBase   = 1000 * time.Millisecond
	DefaultMax    = 300000 * time.Millisecond
	DefaultJitter = 1000 * time.Millisecond
)

// Calculator returns the delay to wait before the attempt that follows
// attempt number n.
type Calculator interface {
	Delay(attempt int) time.Duration
}

// Exponential implements min(Base*2^(attempt-1), Max) + rand[0, Jitter).
type Exponential struct {
	Base   time.Duration
	Max    time.Duration
	Jitter time.Duration

	// Rand returns a value in [0, n). Nil uses math/rand/v2.
	Rand func(n int64) int64
}

// Default returns the standard delivery schedule.
func Default() *Exponential {
	return &Exponential{
		Base:   DefaultBase,
		Max:    DefaultMax,
		Jitter: DefaultJitter,
	}
}

// Delay returns the backoff for the given attempt. Attempts below 1 are
// treated as 1.
func (e *Exponential) Delay(attempt int) time.Duration {
	return e.Exponent(attempt) + e.jitter()
}

// Exponent returns the capped exponential component without jitter.
// A non-positive Max disables the cap; doubling still stops before overflow.
func (e *Exponential) Exponent(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if e.Base <= 0 {
		return 0
	}

	limit := e.Max
	if limit <= 0 {
		limit = math.MaxInt64
	}

	d := e.Base
	for i := 1; i < attempt; i++ {
		if d > limit/2 {
			return limit
		}
		d *= 2
	}
	if d > limit {
		return limit
	}
	return d
}

func (e *Exponential) jitter() time.Duration {
	if e.Jitter <= 0 {
		return 0
	}
	rnd := e.Rand
	if rnd == nil {
		rnd = rand.Int64N
	}
	return time.Duration(rnd(int64(e.Jitter)))
}

// Fixed always returns the same delay. Useful in tests.
type Fixed time.Duration

// Delay implements Calculator.
func (f Fixed) Delay(int) time.Duration { return time.Duration(f) }
