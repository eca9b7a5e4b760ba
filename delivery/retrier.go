package delivery

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/xraph/herald/backoff"
)

// RetryPolicy decides which failures consume another attempt.
type RetryPolicy int

const (
	// RetryAll retries every failure until the attempt budget is spent.
	RetryAll RetryPolicy = iota

	// RetryTransient dead-letters 4xx responses immediately, except 408,
	// 425 and 429 which are retried like 5xx and transport errors.
	RetryTransient
)

// String returns the config name of the policy.
func (p RetryPolicy) String() string {
	switch p {
	case RetryTransient:
		return "transient"
	default:
		return "all"
	}
}

// ParseRetryPolicy maps "all" or "transient" to a policy. Empty means all.
func ParseRetryPolicy(s string) (RetryPolicy, error) {
	switch s {
	case "", "all":
		return RetryAll, nil
	case "transient":
		return RetryTransient, nil
	}
	return RetryAll, fmt.Errorf("delivery: unknown retry policy %q", s)
}

// Retryable reports whether a failed attempt may be retried under p.
func (p RetryPolicy) Retryable(err error) bool {
	if p == RetryAll {
		return true
	}
	var se *StatusError
	if !errors.As(err, &se) {
		return true
	}
	switch se.StatusCode {
	case http.StatusRequestTimeout, http.StatusTooEarly, http.StatusTooManyRequests:
		return true
	}
	return se.StatusCode < 400 || se.StatusCode > 499
}

// Decision is the outcome of evaluating a delivery attempt.
type Decision int

const (
	// Delivered means the endpoint answered 2xx.
	Delivered Decision = iota

	// Retry means another attempt should be scheduled.
	Retry

	// DeadLetter means the chain ends here.
	DeadLetter
)

// Retrier decides what happens after an attempt and when the next one is
// due.
type Retrier struct {
	policy  RetryPolicy
	backoff backoff.Calculator
}

// NewRetrier creates a retrier. A nil calculator uses backoff.Default().
func NewRetrier(policy RetryPolicy, calc backoff.Calculator) *Retrier {
	if calc == nil {
		calc = backoff.Default()
	}
	return &Retrier{policy: policy, backoff: calc}
}

// Decide evaluates the error returned by the executor for attempt out of
// maxAttempts.
//
//   - nil error → Delivered
//   - attempt >= maxAttempts → DeadLetter
//   - policy rejects the failure → DeadLetter
//   - otherwise → Retry
func (r *Retrier) Decide(err error, attempt, maxAttempts int) Decision {
	if err == nil {
		return Delivered
	}
	if attempt >= maxAttempts {
		return DeadLetter
	}
	if !r.policy.Retryable(err) {
		return DeadLetter
	}
	return Retry
}

// Delay returns the backoff after the given failed attempt.
func (r *Retrier) Delay(attempt int) time.Duration {
	return r.backoff.Delay(attempt)
}
