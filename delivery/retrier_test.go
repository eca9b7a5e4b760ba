package delivery_test

import (
	"errors"
	"testing"
	"time"

	"github.com/xraph/herald/backoff"
	"github.com/xraph/herald/delivery"
)

func TestRetrierDecide(t *testing.T) {
	transport := errors.New("connection refused")

	tests := []struct {
		name    string
		policy  delivery.RetryPolicy
		err     error
		attempt int
		max     int
		want    delivery.Decision
	}{
		{"success → Delivered", delivery.RetryAll, nil, 1, 3, delivery.Delivered},
		{"success on last attempt → Delivered", delivery.RetryAll, nil, 3, 3, delivery.Delivered},
		{"500 with budget → Retry", delivery.RetryAll, &delivery.StatusError{StatusCode: 500}, 1, 3, delivery.Retry},
		{"transport error with budget → Retry", delivery.RetryAll, transport, 2, 3, delivery.Retry},
		{"budget spent → DeadLetter", delivery.RetryAll, transport, 3, 3, delivery.DeadLetter},
		{"attempt past budget → DeadLetter", delivery.RetryAll, transport, 4, 3, delivery.DeadLetter},
		{"single attempt budget → DeadLetter", delivery.RetryAll, transport, 1, 1, delivery.DeadLetter},
		{"404 under all → Retry", delivery.RetryAll, &delivery.StatusError{StatusCode: 404}, 1, 3, delivery.Retry},
		{"404 under transient → DeadLetter", delivery.RetryTransient, &delivery.StatusError{StatusCode: 404}, 1, 3, delivery.DeadLetter},
		{"410 under transient → DeadLetter", delivery.RetryTransient, &delivery.StatusError{StatusCode: 410}, 1, 3, delivery.DeadLetter},
		{"408 under transient → Retry", delivery.RetryTransient, &delivery.StatusError{StatusCode: 408}, 1, 3, delivery.Retry},
		{"425 under transient → Retry", delivery.RetryTransient, &delivery.StatusError{StatusCode: 425}, 1, 3, delivery.Retry},
		{"429 under transient → Retry", delivery.RetryTransient, &delivery.StatusError{StatusCode: 429}, 1, 3, delivery.Retry},
		{"502 under transient → Retry", delivery.RetryTransient, &delivery.StatusError{StatusCode: 502}, 1, 3, delivery.Retry},
		{"transport under transient → Retry", delivery.RetryTransient, transport, 1, 3, delivery.Retry},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := delivery.NewRetrier(tt.policy, nil)
			if got := r.Decide(tt.err, tt.attempt, tt.max); got != tt.want {
				t.Fatalf("Decide = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestRetrierDelay(t *testing.T) {
	r := delivery.NewRetrier(delivery.RetryAll, backoff.Fixed(7*time.Second))
	if d := r.Delay(4); d != 7*time.Second {
		t.Fatalf("Delay = %v, want 7s", d)
	}
}

func TestRetrierDefaultBackoff(t *testing.T) {
	r := delivery.NewRetrier(delivery.RetryAll, nil)
	for attempt, base := range map[int]time.Duration{1: time.Second, 2: 2 * time.Second, 3: 4 * time.Second} {
		d := r.Delay(attempt)
		if d < base || d >= base+time.Second {
			t.Fatalf("attempt %d: delay %v outside [%v, %v)", attempt, d, base, base+time.Second)
		}
	}
}

func TestParseRetryPolicy(t *testing.T) {
	for in, want := range map[string]delivery.RetryPolicy{
		"":          delivery.RetryAll,
		"all":       delivery.RetryAll,
		"transient": delivery.RetryTransient,
	} {
		got, err := delivery.ParseRetryPolicy(in)
		if err != nil {
			t.Fatalf("%q: %v", in, err)
		}
		if got != want {
			t.Fatalf("%q: got %v, want %v", in, got, want)
		}
		if in != "" && got.String() != in {
			t.Fatalf("String() = %q, want %q", got.String(), in)
		}
	}

	if _, err := delivery.ParseRetryPolicy("sometimes"); err == nil {
		t.Fatal("expected error for unknown policy")
	}
}
