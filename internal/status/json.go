package status

import (
	"encoding/json"
	"time"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string      `json:"event,omitempty"`
	Reason        string      `json:"reason,omitempty"`
	UptimeSeconds int64       `json:"uptime_seconds"`
	StartTime     string      `json:"start_time"`
	Timestamp     string      `json:"timestamp"`
	Serial        SerialJSON  `json:"serial"`
	MQTT          MQTTStatus  `json:"mqtt"`
	Pumps         PumpsJSON   `json:"pumps"`
	Monitor       MonitorJSON `json:"monitor"`
	Config        ConfigJSON  `json:"config"`
}

// SerialJSON reports the serial link.
type SerialJSON struct {
	Port       string `json:"port"`
	Connected  bool   `json:"connected"`
	LastLineAt string `json:"last_line_at,omitempty"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// PumpsJSON summarises the pump log.
type PumpsJSON struct {
	Total         int64   `json:"total"`
	Today         int64   `json:"today"`
	TotalVolumeML float64 `json:"total_volume_ml"`
	TodayVolumeML float64 `json:"today_volume_ml"`
	LastPumpAt    string  `json:"last_pump_at,omitempty"`
}

// MonitorJSON is the line tracker's running totals.
type MonitorJSON struct {
	Lines     int64  `json:"lines"`
	Matches   int64  `json:"matches"`
	Recorded  int64  `json:"recorded"`
	Skipped   int64  `json:"skipped"`
	Resets    int64  `json:"resets"`
	LastCount uint32 `json:"last_count"`
	Highest   uint32 `json:"highest_count"`
}

// ConfigJSON is the JSON representation of monitor config.
type ConfigJSON struct {
	BaudRate  int     `json:"baud_rate"`
	DBPath    string  `json:"db_path"`
	HTTPAddr  string  `json:"http_addr"`
	PumpID    string  `json:"pump_id"`
	MLPerPump float64 `json:"ml_per_pump"`
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func buildInner(snap Snapshot) StatusInner {
	m := snap.Monitor
	return StatusInner{
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		Serial: SerialJSON{
			Port:       snap.Config.SerialPort,
			Connected:  snap.SerialConnected,
			LastLineAt: formatTime(snap.LastLineAt),
		},
		MQTT: MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Pumps: PumpsJSON{
			Total:         snap.TotalPumps,
			Today:         snap.TodayPumps,
			TotalVolumeML: snap.TotalVolumeML(),
			TodayVolumeML: snap.TodayVolumeML(),
			LastPumpAt:    formatTime(snap.LastPumpAt),
		},
		Monitor: MonitorJSON{
			Lines:     m.Lines,
			Matches:   m.Matches,
			Recorded:  m.Recorded,
			Skipped:   m.Skipped,
			Resets:    m.Resets,
			LastCount: m.Last,
			Highest:   m.Highest,
		},
		Config: ConfigJSON{
			BaudRate:  snap.Config.BaudRate,
			DBPath:    snap.Config.DBPath,
			HTTPAddr:  snap.Config.HTTPAddr,
			PumpID:    snap.Config.PumpID,
			MLPerPump: snap.Config.MLPerPump,
		},
	}
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	data, _ := json.MarshalIndent(StatusJSON{Status: buildInner(snap)}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason
	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
