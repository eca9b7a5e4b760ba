package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/xraph/herald/id"
)

// drain takes tokens until the bucket refuses and returns how many it gave.
func drain(l *Limiter, endpointID string, perSecond int) int {
	n := 0
	for l.Allow(endpointID, perSecond) {
		n++
		if n > 10*perSecond+10 {
			break
		}
	}
	return n
}

func TestBurstEqualsRateLimit(t *testing.T) {
	tests := []struct {
		name      string
		perSecond int
	}{
		{"one per second", 1},
		{"three per second", 3},
		{"ten per second", 10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := New()
			got := drain(l, id.NewWebhookID().String(), tt.perSecond)
			// A token may refill while draining at the faster rates.
			if got < tt.perSecond || got > tt.perSecond+1 {
				t.Fatalf("burst = %d, want %d", got, tt.perSecond)
			}
		})
	}
}

func TestZeroRateLimitIsUnlimited(t *testing.T) {
	l := New()
	wh := id.NewWebhookID().String()
	for range 1000 {
		if !l.Allow(wh, 0) {
			t.Fatal("rate_limit 0 must never throttle")
		}
	}
	if err := l.Wait(context.Background(), wh, 0); err != nil {
		t.Fatalf("Wait with rate_limit 0: %v", err)
	}
	if len(l.buckets) != 0 {
		t.Fatal("unlimited endpoints should not allocate a bucket")
	}
}

func TestEndpointsHaveSeparateBuckets(t *testing.T) {
	l := New()
	busy, quiet := id.NewWebhookID().String(), id.NewWebhookID().String()

	drain(l, busy, 2)
	if l.Allow(busy, 2) {
		t.Fatal("drained endpoint should be throttled")
	}
	if !l.Allow(quiet, 2) {
		t.Fatal("another endpoint must not share the drained bucket")
	}
}

func TestLoweringRateLimitShrinksBurst(t *testing.T) {
	l := New()
	wh := id.NewWebhookID().String()

	if !l.Allow(wh, 50) {
		t.Fatal("first call should pass")
	}
	// The endpoint was updated to rate_limit 2: the bucket holds at most 2.
	if got := drain(l, wh, 2); got > 3 {
		t.Fatalf("burst after lowering the limit = %d, want at most 2", got)
	}
	if l.buckets[wh].Burst() != 2 {
		t.Fatalf("bucket burst = %d, want 2", l.buckets[wh].Burst())
	}
}

func TestWaitPacesAtTheEndpointRate(t *testing.T) {
	l := New()
	wh := id.NewWebhookID().String()
	drain(l, wh, 20) // one token every 50ms afterwards

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	start := time.Now()
	if err := l.Wait(ctx, wh, 20); err != nil {
		t.Fatal(err)
	}
	if elapsed := time.Since(start); elapsed < 20*time.Millisecond {
		t.Fatalf("Wait returned after %v, expected it to wait for a refill", elapsed)
	}
}

func TestWaitGivesUpAtDeadline(t *testing.T) {
	l := New()
	wh := id.NewWebhookID().String()
	l.Allow(wh, 1)

	// A 1/s bucket cannot refill within the delivery's remaining time.
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := l.Wait(ctx, wh, 1); err == nil {
		t.Fatal("expected Wait to fail when the deadline is closer than the next token")
	}
}
