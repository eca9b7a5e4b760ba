// Package endpoint manages the webhook endpoints organizations register to
// receive events.
package endpoint

import (
	"slices"
	"time"

	"github.com/xraph/herald/event"
	"github.com/xraph/herald/id"
	"github.com/xraph/herald/internal/entity"
)

// Defaults applied when an endpoint is created without explicit values.
const (
	DefaultRetryCount     = 3
	DefaultTimeoutSeconds = 30
)

// Endpoint is a receiver URL registered by an organization together with
// its subscriptions and delivery policy.
type Endpoint struct {
	entity.Entity

	// ID is the unique TypeID for this endpoint.
	ID id.ID `json:"id"`

	// OrganizationID scopes every read and write.
	OrganizationID string `json:"organization_id"`

	// URL is the absolute http(s) delivery URL.
	URL string `json:"url"`

	// Description is a human-readable label.
	Description string `json:"description,omitempty"`

	// Secret is the HMAC signing secret. Never serialized.
	Secret string `json:"-"`

	// Events lists subscribed event types; "*" subscribes to all of them.
	Events []string `json:"events"`

	// Enabled endpoints receive broadcasts and direct dispatches.
	Enabled bool `json:"enabled"`

	// RetryCount is the maximum number of delivery attempts per event.
	RetryCount int `json:"retry_count"`

	// TimeoutSeconds bounds each HTTP attempt.
	TimeoutSeconds int `json:"timeout_seconds"`

	// RateLimit caps deliveries per second. 0 means unlimited.
	RateLimit int `json:"rate_limit"`

	// Headers are extra HTTP headers sent with each delivery.
	Headers map[string]string `json:"headers,omitempty"`
}

// Subscribes reports whether the endpoint wants events of the given type.
// Every endpoint accepts webhook.test so an operator can check it whatever
// its subscriptions.
func (ep *Endpoint) Subscribes(eventType string) bool {
	if eventType == event.WebhookTest {
		return true
	}
	return slices.Contains(ep.Events, eventType) || slices.Contains(ep.Events, event.Wildcard)
}

// Timeout returns the per-attempt HTTP timeout.
func (ep *Endpoint) Timeout() time.Duration {
	if ep.TimeoutSeconds <= 0 {
		return DefaultTimeoutSeconds * time.Second
	}
	return time.Duration(ep.TimeoutSeconds) * time.Second
}

// MaxAttempts returns RetryCount, falling back to the default.
func (ep *Endpoint) MaxAttempts() int {
	if ep.RetryCount <= 0 {
		return DefaultRetryCount
	}
	return ep.RetryCount
}
