// Package event defines the domain events Herald delivers to webhook
// endpoints and the typed payloads they carry.
//
// The JSON encoding of Event is the exact request body a receiver gets.
package event

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/xraph/herald/id"
)

// Type is a dot-namespaced event type name such as "alarm.created".
type Type = string

// Event types emitted by the device platform.
const (
	AlarmCreated        Type = "alarm.created"
	AlarmTriggered      Type = "alarm.triggered"
	AlarmResolved       Type = "alarm.resolved"
	DeviceCreated       Type = "device.created"
	DeviceUpdated       Type = "device.updated"
	DeviceDeleted       Type = "device.deleted"
	DeviceStatusChanged Type = "device.status_changed"
	SubscriptionChanged Type = "subscription.changed"
	WebhookTest         Type = "webhook.test"

	// Wildcard subscribes an endpoint to every event type.
	Wildcard = "*"
)

// TestMessage is the fixed message carried by webhook.test events.
const TestMessage = "This is a test webhook event from Herald"

// ErrInvalid is returned by Validate. The root package maps it onto
// herald.ErrInvalidEvent.
var ErrInvalid = errors.New("invalid event")

// Event is one logical occurrence. The same ID is sent on every delivery
// attempt so receivers can deduplicate.
type Event struct {
	ID      string          `json:"id"`
	Type    Type            `json:"type"`
	Created time.Time       `json:"created"`
	Data    json.RawMessage `json:"data,omitempty"`

	// Optional enrichment set by the caller before dispatch.
	Timestamp    *time.Time `json:"timestamp,omitempty"`
	EndpointID   string     `json:"endpoint_id,omitempty"`
	EndpointName string     `json:"endpoint_name,omitempty"`
}

// Payload is implemented by every typed event body.
type Payload interface {
	EventType() Type
}

// New builds an event of p's type with the given id. An empty id gets a
// generated "evt_" TypeID.
func New(eventID string, p Payload) (*Event, error) {
	if p == nil {
		return nil, fmt.Errorf("%w: nil payload", ErrInvalid)
	}
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("event: marshal %s payload: %w", p.EventType(), err)
	}
	if eventID == "" {
		eventID = id.NewEventID()
	}
	return &Event{
		ID:      eventID,
		Type:    p.EventType(),
		Created: time.Now().UTC(),
		Data:    data,
	}, nil
}

// NewTest returns a synthetic webhook.test event with a fresh id.
func NewTest() *Event {
	now := time.Now().UTC()
	evt, err := New("", TestData{Message: TestMessage, SentAt: now})
	if err != nil {
		// TestData always marshals.
		panic(err)
	}
	evt.Created = now
	return evt
}

// Validate checks the fields every event needs before it can be dispatched.
func (e *Event) Validate() error {
	switch {
	case e == nil:
		return fmt.Errorf("%w: missing event", ErrInvalid)
	case e.ID == "":
		return fmt.Errorf("%w: id is required", ErrInvalid)
	case e.Type == "":
		return fmt.Errorf("%w: type is required", ErrInvalid)
	case e.Type == Wildcard:
		return fmt.Errorf("%w: %q is a subscription token, not an event type", ErrInvalid, Wildcard)
	case len(e.Data) > 0 && !json.Valid(e.Data):
		return fmt.Errorf("%w: data is not valid JSON", ErrInvalid)
	}
	return nil
}

// Normalize fills in Created when the caller left it zero.
func (e *Event) Normalize() {
	if e.Created.IsZero() {
		e.Created = time.Now().UTC()
	}
}

// Decode unmarshals the event data into the typed payload T and checks
// that T matches the event type.
func Decode[T Payload](e *Event) (T, error) {
	var out T
	if e == nil {
		return out, fmt.Errorf("%w: missing event", ErrInvalid)
	}
	if !accepts(out, e.Type) {
		return out, fmt.Errorf("%w: %T cannot decode %q", ErrInvalid, out, e.Type)
	}
	if len(e.Data) > 0 {
		if err := json.Unmarshal(e.Data, &out); err != nil {
			return out, fmt.Errorf("%w: decode %s: %w", ErrInvalid, e.Type, err)
		}
	}
	if k, ok := any(&out).(kinded); ok {
		k.setKind(e.Type)
	}
	return out, nil
}
