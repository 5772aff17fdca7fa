// Package status provides a thread-safe status tracker for the pump monitor.
// It is read by the HTTP handlers and by the lifecycle events sent to MQTT.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/soil-irrigator/internal/monitor"
)

// Config contains monitor configuration for display.
type Config struct {
	SerialPort string
	BaudRate   int
	DBPath     string
	Broker     string
	HTTPAddr   string
	PumpID     string
	MLPerPump  float64
}

// Snapshot is a point-in-time view of monitor state.
// It is a value type, safe to use after the lock is released.
type Snapshot struct {
	StartTime       time.Time
	Now             time.Time
	SerialConnected bool
	LastLineAt      time.Time // zero until the first line
	LastPumpAt      time.Time // zero until the first recorded activation
	Monitor         monitor.Stats
	TotalPumps      int64 // all activations in the pump log
	TodayPumps      int64
	MQTTConnected   bool
	Config          Config
}

// Uptime returns the duration since the monitor started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// TotalVolumeML returns the water delivered by all recorded activations.
func (s Snapshot) TotalVolumeML() float64 {
	return float64(s.TotalPumps) * s.Config.MLPerPump
}

// TodayVolumeML returns the water delivered today.
func (s Snapshot) TodayVolumeML() float64 {
	return float64(s.TodayPumps) * s.Config.MLPerPump
}

// Tracker holds mutable monitor state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
	now  func() time.Time
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			StartTime: startTime,
			Config:    cfg,
		},
		now: time.Now,
	}
}

// ObserveLine records the tracker totals after a line arrived at at.
func (t *Tracker) ObserveLine(stats monitor.Stats, at time.Time) {
	t.mu.Lock()
	t.snap.Monitor = stats
	t.snap.LastLineAt = at
	t.mu.Unlock()
}

// RecordPumps notes activations stored at at and bumps the totals.
func (t *Tracker) RecordPumps(n int64, at time.Time) {
	t.mu.Lock()
	t.snap.TotalPumps += n
	t.snap.TodayPumps += n
	t.snap.LastPumpAt = at
	t.mu.Unlock()
}

// SetTotals replaces the pump log totals (at startup and at day rollover).
func (t *Tracker) SetTotals(total, today int64) {
	t.mu.Lock()
	t.snap.TotalPumps = total
	t.snap.TodayPumps = today
	t.mu.Unlock()
}

// SetSerialConnected sets the serial link state.
func (t *Tracker) SetSerialConnected(connected bool) {
	t.mu.Lock()
	t.snap.SerialConnected = connected
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the monitor state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	t.mu.RUnlock()
	s.Now = t.now()
	return s
}
