package mqtt

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func TestFormatPayloadExactJSON(t *testing.T) {
	event := PumpEvent{
		ID:        "7f1c2a4e-0000-4000-8000-000000000001",
		Timestamp: time.Date(2026, 5, 14, 7, 30, 2, 0, time.FixedZone("BST", 3600)),
		PumpID:    "pump1",
		Count:     12,
		Total:     340,
	}

	payload, err := FormatPayload(event)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expected := `{"pump":{"id":"7f1c2a4e-0000-4000-8000-000000000001","timestamp":"2026-05-14T06:30:02Z","pump_id":"pump1","count":12,"total":340}}`
	if string(payload) != expected {
		t.Errorf("unexpected payload:\ngot:  %s\nwant: %s", payload, expected)
	}
}

func TestFormatSystemPayloadShutdown(t *testing.T) {
	event := SystemEvent{
		Timestamp: time.Date(2026, 5, 14, 10, 30, 45, 0, time.UTC),
		Event:     EventShutdown,
		Reason:    "SIGTERM",
	}

	payload, err := FormatSystemPayload(event)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expected := `{"system":{"timestamp":"2026-05-14T10:30:45Z","event":"SHUTDOWN","reason":"SIGTERM"}}`
	if string(payload) != expected {
		t.Errorf("unexpected payload:\ngot:  %s\nwant: %s", payload, expected)
	}
}

func TestFormatSystemPayloadHeartbeatCarriesTotals(t *testing.T) {
	event := SystemEvent{
		Timestamp: time.Date(2026, 5, 15, 0, 0, 0, 0, time.UTC),
		Event:     EventHeartbeat,
		Pumps:     0,
		VolumeML:  0,
	}

	payload, err := FormatSystemPayload(event)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var parsed map[string]map[string]interface{}
	if err := json.Unmarshal(payload, &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	sys := parsed["system"]
	if _, ok := sys["pumps"]; !ok {
		t.Error("heartbeat must include pumps even when zero")
	}
	if _, ok := sys["volume_ml"]; !ok {
		t.Error("heartbeat must include volume_ml even when zero")
	}
	if _, ok := sys["reason"]; ok {
		t.Error("empty reason should be omitted")
	}
}

func TestFormatSystemPayloadStartupOmitsTotals(t *testing.T) {
	payload, err := FormatSystemPayload(SystemEvent{Timestamp: time.Now(), Event: EventStartup, Pumps: 5})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var parsed SystemPayload
	if err := json.Unmarshal(payload, &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if parsed.System.Pumps != nil {
		t.Error("pumps should only be sent with heartbeats")
	}
}

func TestFormatSystemPayloadRaw(t *testing.T) {
	raw := []byte(`{"custom":true}`)
	payload, err := FormatSystemPayload(SystemEvent{Event: EventStartup, RawPayload: raw})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(payload) != string(raw) {
		t.Errorf("expected raw payload, got %s", payload)
	}
}

func TestFakePublisher(t *testing.T) {
	f := NewFakePublisher()

	if err := f.Publish(PumpEvent{ID: "a", Timestamp: time.Now(), PumpID: "pump1", Count: 1}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := f.PublishSystem(SystemEvent{Timestamp: time.Now(), Event: EventStartup}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(f.Events) != 1 || len(f.Payloads) != 1 {
		t.Fatalf("expected 1 event and payload, got %d/%d", len(f.Events), len(f.Payloads))
	}
	if names := f.SystemEventNames(); len(names) != 1 || names[0] != EventStartup {
		t.Errorf("unexpected system events: %v", names)
	}
}

func TestFakePublisherError(t *testing.T) {
	f := NewFakePublisher()
	f.PublishError = errors.New("simulated error")

	if err := f.Publish(PumpEvent{Timestamp: time.Now()}); err == nil {
		t.Error("expected error")
	}
	if len(f.Events) != 0 {
		t.Errorf("expected no events recorded on error, got %d", len(f.Events))
	}
}

func TestFakePublisherClose(t *testing.T) {
	f := NewFakePublisher()
	if err := f.Close(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if !f.Closed {
		t.Error("should be closed after Close()")
	}
}

func TestTopics(t *testing.T) {
	if TopicPumps != "garden/irrigator/pumps" {
		t.Errorf("unexpected topic: %s", TopicPumps)
	}
	if TopicSystem != "garden/irrigator/system" {
		t.Errorf("unexpected system topic: %s", TopicSystem)
	}
}
