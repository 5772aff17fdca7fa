// Package mqtt publishes pump activations and monitor lifecycle events.
package mqtt

import (
	"encoding/json"
	"time"
)

// TopicPumps is the MQTT topic for pump activations.
const TopicPumps = "garden/irrigator/pumps"

// TopicSystem is the MQTT topic for monitor lifecycle events.
const TopicSystem = "garden/irrigator/system"

// System event names.
const (
	EventStartup   = "STARTUP"
	EventShutdown  = "SHUTDOWN"
	EventHeartbeat = "HEARTBEAT"
	EventReset     = "RESET"
	EventOffline   = "OFFLINE"
)

// Publisher publishes events to MQTT.
type Publisher interface {
	// Publish sends a pump activation. Errors are reported, never fatal.
	Publish(event PumpEvent) error

	// PublishSystem sends a lifecycle event.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// PumpEvent is one recorded pump activation.
type PumpEvent struct {
	ID        string // unique per activation
	Timestamp time.Time
	PumpID    string
	Count     uint32 // controller's pumps-since-power-up at the time
	Total     int64  // all activations recorded by the monitor
}

// SystemEvent is a lifecycle event (startup, shutdown, heartbeat, reset).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string
	Reason     string  // shutdown signal or reset detail
	Pumps      int64   // daily heartbeat: activations on the reported day
	VolumeML   float64 // daily heartbeat: water delivered on the reported day
	RawPayload []byte  // pre-formatted JSON; if set, FormatSystemPayload returns it directly
	Retained   bool
}

// Payload is the pump message body.
type Payload struct {
	Pump PumpPayload `json:"pump"`
}

// PumpPayload contains the activation details.
type PumpPayload struct {
	ID        string `json:"id"`
	Timestamp string `json:"timestamp"`
	PumpID    string `json:"pump_id"`
	Count     uint32 `json:"count"`
	Total     int64  `json:"total"`
}

// FormatPayload creates the JSON payload for a pump activation.
func FormatPayload(event PumpEvent) ([]byte, error) {
	payload := Payload{
		Pump: PumpPayload{
			ID:        event.ID,
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			PumpID:    event.PumpID,
			Count:     event.Count,
			Total:     event.Total,
		},
	}
	return json.Marshal(payload)
}

// SystemPayload is the lifecycle message body.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string   `json:"timestamp"`
	Event     string   `json:"event"`
	Reason    string   `json:"reason,omitempty"`
	Pumps     *int64   `json:"pumps,omitempty"`
	VolumeML  *float64 `json:"volume_ml,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
// Pump totals are only included in heartbeats.
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}
	inner := SystemPayloadInner{
		Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
		Event:     event.Event,
		Reason:    event.Reason,
	}
	if event.Event == EventHeartbeat {
		inner.Pumps = &event.Pumps
		inner.VolumeML = &event.VolumeML
	}
	return json.Marshal(SystemPayload{System: inner})
}
