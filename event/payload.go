package event

import (
	"slices"
	"time"
)

// kinded payloads cover a family of event types and remember which one
// they were built for.
type kinded interface {
	setKind(Type)
}

func accepts(p Payload, t Type) bool {
	if f, ok := p.(interface{ types() []Type }); ok {
		return slices.Contains(f.types(), t)
	}
	return p.EventType() == t
}

// AlarmData is the body of alarm.created, alarm.triggered and
// alarm.resolved events.
type AlarmData struct {
	Kind Type `json:"-"`

	AlarmID    string    `json:"alarm_id"`
	DeviceID   string    `json:"device_id"`
	Name       string    `json:"name"`
	Severity   string    `json:"severity"`
	Condition  string    `json:"condition,omitempty"`
	Value      *float64  `json:"value,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// EventType returns Kind, or alarm.created when unset.
func (a AlarmData) EventType() Type {
	if a.Kind == "" {
		return AlarmCreated
	}
	return a.Kind
}

func (AlarmData) types() []Type {
	return []Type{AlarmCreated, AlarmTriggered, AlarmResolved}
}

func (a *AlarmData) setKind(t Type) { a.Kind = t }

// DeviceData is the body of device.created, device.updated and
// device.deleted events.
type DeviceData struct {
	Kind Type `json:"-"`

	DeviceID   string            `json:"device_id"`
	Name       string            `json:"name"`
	ProductID  string            `json:"product_id,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// EventType returns Kind, or device.created when unset.
func (d DeviceData) EventType() Type {
	if d.Kind == "" {
		return DeviceCreated
	}
	return d.Kind
}

func (DeviceData) types() []Type {
	return []Type{DeviceCreated, DeviceUpdated, DeviceDeleted}
}

func (d *DeviceData) setKind(t Type) { d.Kind = t }

// DeviceStatusData is the body of device.status_changed.
type DeviceStatusData struct {
	DeviceID  string    `json:"device_id"`
	Previous  string    `json:"previous"`
	Current   string    `json:"current"`
	ChangedAt time.Time `json:"changed_at"`
}

// EventType implements Payload.
func (DeviceStatusData) EventType() Type { return DeviceStatusChanged }

// SubscriptionData is the body of subscription.changed.
type SubscriptionData struct {
	SubscriptionID string `json:"subscription_id"`
	Plan           string `json:"plan"`
	PreviousPlan   string `json:"previous_plan,omitempty"`
	Status         string `json:"status"`
}

// EventType implements Payload.
func (SubscriptionData) EventType() Type { return SubscriptionChanged }

// TestData is the body of webhook.test.
type TestData struct {
	Message string    `json:"message"`
	SentAt  time.Time `json:"sent_at"`
}

// EventType implements Payload.
func (TestData) EventType() Type { return WebhookTest }
