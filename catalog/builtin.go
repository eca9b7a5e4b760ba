package catalog

import (
	"encoding/json"

	"github.com/xraph/herald/event"
)

const alarmSchema = `{
  "type": "object",
  "required": ["alarm_id", "device_id"],
  "properties": {
    "alarm_id": {"type": "string", "minLength": 1},
    "device_id": {"type": "string", "minLength": 1},
    "name": {"type": "string"},
    "severity": {"enum": ["", "info", "low", "medium", "high", "critical"]},
    "condition": {"type": "string"},
    "value": {"type": "number"},
    "occurred_at": {"type": "string"}
  }
}`

const deviceSchema = `{
  "type": "object",
  "required": ["device_id"],
  "properties": {
    "device_id": {"type": "string", "minLength": 1},
    "name": {"type": "string"},
    "product_id": {"type": "string"},
    "attributes": {"type": "object", "additionalProperties": {"type": "string"}}
  }
}`

const deviceStatusSchema = `{
  "type": "object",
  "required": ["device_id", "current"],
  "properties": {
    "device_id": {"type": "string", "minLength": 1},
    "previous": {"type": "string"},
    "current": {"type": "string", "minLength": 1},
    "changed_at": {"type": "string"}
  }
}`

const subscriptionSchema = `{
  "type": "object",
  "required": ["subscription_id", "plan", "status"],
  "properties": {
    "subscription_id": {"type": "string", "minLength": 1},
    "plan": {"type": "string"},
    "previous_plan": {"type": "string"},
    "status": {"type": "string"}
  }
}`

const testSchema = `{
  "type": "object",
  "required": ["message"],
  "properties": {
    "message": {"type": "string"},
    "sent_at": {"type": "string"}
  }
}`

// Builtin returns the definitions for every event type the platform emits.
func Builtin() []Definition {
	return []Definition{
		{Name: event.AlarmCreated, Group: "alarm", Description: "An alarm rule was created for a device.", Schema: json.RawMessage(alarmSchema)},
		{Name: event.AlarmTriggered, Group: "alarm", Description: "An alarm condition was met.", Schema: json.RawMessage(alarmSchema)},
		{Name: event.AlarmResolved, Group: "alarm", Description: "A triggered alarm returned to normal.", Schema: json.RawMessage(alarmSchema)},
		{Name: event.DeviceCreated, Group: "device", Description: "A device was registered.", Schema: json.RawMessage(deviceSchema)},
		{Name: event.DeviceUpdated, Group: "device", Description: "A device's properties changed.", Schema: json.RawMessage(deviceSchema)},
		{Name: event.DeviceDeleted, Group: "device", Description: "A device was removed.", Schema: json.RawMessage(deviceSchema)},
		{Name: event.DeviceStatusChanged, Group: "device", Description: "A device went online or offline.", Schema: json.RawMessage(deviceStatusSchema)},
		{Name: event.SubscriptionChanged, Group: "billing", Description: "The organization's plan or billing status changed.", Schema: json.RawMessage(subscriptionSchema)},
		{Name: event.WebhookTest, Group: "webhook", Description: "Synthetic event sent by the endpoint test action.", Schema: json.RawMessage(testSchema)},
	}
}
