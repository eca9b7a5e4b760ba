package event_test

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/xraph/herald/event"
)

func TestNewStampsTypeAndID(t *testing.T) {
	evt, err := event.New("", event.DeviceStatusData{DeviceID: "dev_1", Previous: "online", Current: "offline"})
	if err != nil {
		t.Fatal(err)
	}
	if evt.Type != event.DeviceStatusChanged {
		t.Errorf("Type = %q", evt.Type)
	}
	if !strings.HasPrefix(evt.ID, "evt_") {
		t.Errorf("expected generated evt_ id, got %q", evt.ID)
	}
	if evt.Created.IsZero() {
		t.Error("Created not set")
	}
	if err := evt.Validate(); err != nil {
		t.Errorf("Validate() = %v", err)
	}
}

func TestNewKeepsCallerID(t *testing.T) {
	evt, err := event.New("alarm-42-created", event.AlarmData{AlarmID: "42", Severity: "high"})
	if err != nil {
		t.Fatal(err)
	}
	if evt.ID != "alarm-42-created" || evt.Type != event.AlarmCreated {
		t.Fatalf("got id=%q type=%q", evt.ID, evt.Type)
	}
}

func TestWireFormat(t *testing.T) {
	evt, err := event.New("evt_x", event.AlarmData{Kind: event.AlarmTriggered, AlarmID: "a1", Name: "Overheat"})
	if err != nil {
		t.Fatal(err)
	}

	raw, err := json.Marshal(evt)
	if err != nil {
		t.Fatal(err)
	}

	var m map[string]json.RawMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		t.Fatal(err)
	}
	for _, k := range []string{"id", "type", "created", "data"} {
		if _, ok := m[k]; !ok {
			t.Errorf("missing %q in %s", k, raw)
		}
	}
	for _, k := range []string{"timestamp", "endpoint_id", "endpoint_name"} {
		if _, ok := m[k]; ok {
			t.Errorf("unexpected %q in %s", k, raw)
		}
	}
	if strings.Contains(string(m["data"]), "Kind") {
		t.Errorf("Kind leaked into data: %s", m["data"])
	}
}

func TestNewTest(t *testing.T) {
	a, b := event.NewTest(), event.NewTest()
	if a.Type != event.WebhookTest {
		t.Fatalf("Type = %q", a.Type)
	}
	if a.ID == b.ID {
		t.Fatal("test events should get fresh ids")
	}

	data, err := event.Decode[event.TestData](a)
	if err != nil {
		t.Fatal(err)
	}
	if data.Message != event.TestMessage {
		t.Errorf("Message = %q", data.Message)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		evt  *event.Event
		ok   bool
	}{
		{"nil", nil, false},
		{"no id", &event.Event{Type: "alarm.created"}, false},
		{"no type", &event.Event{ID: "e1"}, false},
		{"wildcard", &event.Event{ID: "e1", Type: "*"}, false},
		{"bad data", &event.Event{ID: "e1", Type: "x.y", Data: json.RawMessage(`{nope`)}, false},
		{"no data", &event.Event{ID: "e1", Type: "x.y"}, true},
		{"valid", &event.Event{ID: "e1", Type: "x.y", Data: json.RawMessage(`{"a":1}`)}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.evt.Validate()
			if tt.ok && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !tt.ok && !errors.Is(err, event.ErrInvalid) {
				t.Fatalf("expected ErrInvalid, got %v", err)
			}
		})
	}
}

func TestDecodeFamilies(t *testing.T) {
	evt := &event.Event{ID: "e1", Type: event.AlarmResolved, Data: json.RawMessage(`{"alarm_id":"a9"}`)}

	alarm, err := event.Decode[event.AlarmData](evt)
	if err != nil {
		t.Fatal(err)
	}
	if alarm.AlarmID != "a9" || alarm.EventType() != event.AlarmResolved {
		t.Fatalf("decoded %+v", alarm)
	}

	if _, err := event.Decode[event.DeviceData](evt); !errors.Is(err, event.ErrInvalid) {
		t.Fatalf("expected type mismatch, got %v", err)
	}

	status := &event.Event{ID: "e2", Type: event.DeviceStatusChanged}
	if _, err := event.Decode[event.DeviceData](status); err == nil {
		t.Fatal("DeviceData should not decode device.status_changed")
	}
	if _, err := event.Decode[event.DeviceStatusData](status); err != nil {
		t.Fatal(err)
	}
}
