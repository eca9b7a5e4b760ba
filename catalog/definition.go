package catalog

import "encoding/json"

// Definition describes one event type the platform emits.
type Definition struct {
	// Name is the dot-separated event type, e.g. "alarm.triggered".
	Name string `json:"name"`

	// Description explains when the event fires.
	Description string `json:"description"`

	// Group is the resource the event belongs to ("alarm", "device", ...).
	Group string `json:"group,omitempty"`

	// Schema is an optional JSON Schema for the event's data. Events whose
	// data does not conform are rejected before dispatch.
	Schema json.RawMessage `json:"schema,omitempty"`

	// Example is a sample data document for documentation.
	Example json.RawMessage `json:"example,omitempty"`
}
