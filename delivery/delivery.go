// Package delivery moves events to webhook endpoints: it executes signed
// HTTP attempts, records each attempt in an append-only ledger, schedules
// durable retries with backoff and fans events out to every subscribed
// endpoint of an organization.
package delivery

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/xraph/herald/id"
	"github.com/xraph/herald/internal/entity"
)

// Status is the state of one delivery attempt.
type Status string

const (
	// StatusPending is set when the row is written, just before the HTTP call.
	StatusPending Status = "pending"

	// StatusDelivered means the endpoint answered 2xx.
	StatusDelivered Status = "delivered"

	// StatusFailed means the attempt failed; a later attempt may follow.
	StatusFailed Status = "failed"

	// StatusDeadLetter marks the final failed attempt of a chain.
	StatusDeadLetter Status = "dead_letter"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusDelivered, StatusFailed, StatusDeadLetter:
		return true
	}
	return false
}

// Sentinel errors. The root package re-exports them.
var (
	// ErrNotFound is returned for unknown delivery ids.
	ErrNotFound = errors.New("herald: delivery not found")

	// ErrNotSubscribed is returned when an endpoint does not subscribe to
	// the event's type.
	ErrNotSubscribed = errors.New("herald: webhook not subscribed to event type")

	// ErrLedgerWrite wraps persistence failures of the ledger. The attempt
	// is abandoned when it occurs.
	ErrLedgerWrite = errors.New("herald: delivery ledger write failed")
)

// Delivery is one row of the ledger: a single attempt to deliver one event
// to one endpoint. Retries create new rows.
type Delivery struct {
	entity.Entity

	ID             id.ID           `json:"id"`
	WebhookID      id.ID           `json:"webhook_id"`
	OrganizationID string          `json:"organization_id"`
	EventID        string          `json:"event_id"`
	EventType      string          `json:"event_type"`
	Payload        json.RawMessage `json:"payload"`

	// Attempt is 1-based; MaxAttempts is the chain's budget.
	Attempt     int `json:"attempt"`
	MaxAttempts int `json:"max_attempts"`

	Status         Status     `json:"status"`
	StatusCode     int        `json:"status_code,omitempty"`
	ResponseTimeMs int64      `json:"response_time_ms"`
	ErrorMessage   string     `json:"error_message,omitempty"`
	DeliveredAt    *time.Time `json:"delivered_at,omitempty"`
	FailedAt       *time.Time `json:"failed_at,omitempty"`

	// NextAttemptAt is set on failed rows that still owe a retry. The
	// scheduler clears it once the follow-up attempt has run.
	NextAttemptAt *time.Time `json:"next_attempt_at,omitempty"`
}

// ListOpts configures filtering and pagination for ledger listing.
// Results are newest first.
type ListOpts struct {
	OrganizationID string
	WebhookID      id.ID
	Status         Status
	Offset         int
	Limit          int
}
