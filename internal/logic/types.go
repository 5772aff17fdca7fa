// Package logic contains pure business logic for the irrigation controller.
// This package has NO external dependencies (no GPIO, storage, OS, or time.Sleep).
package logic

import (
	"math"
	"strconv"
)

// Action is the outcome of one decision loop iteration.
type Action string

const (
	// ActionIdle means the soil is wet enough; nothing is actuated.
	ActionIdle Action = "IDLE"
	// ActionIrrigate means the reading exceeded the threshold and the pump runs once.
	ActionIrrigate Action = "IRRIGATE"
	// ActionCooldown means the overflow limit was reached; the loop pauses instead of pumping.
	ActionCooldown Action = "COOLDOWN"
)

// Threshold is the dryness boundary above which irrigation triggers.
// The zero value is "not configured".
type Threshold struct {
	Value uint16
	Set   bool
}

// NewThreshold returns a set threshold. Zero is never a usable threshold,
// so NewThreshold(0) returns an unset value.
func NewThreshold(v uint16) Threshold {
	if v == 0 {
		return Threshold{}
	}
	return Threshold{Value: v, Set: true}
}

// ThresholdFromStored converts the persisted signed value into a Threshold.
// Zero (the storage sentinel) and values outside the uint16 range are unset.
func ThresholdFromStored(v int32) Threshold {
	if v <= 0 || v > math.MaxUint16 {
		return Threshold{}
	}
	return NewThreshold(uint16(v))
}

// Stored returns the persisted representation (0 when unset).
func (t Threshold) Stored() int32 {
	if !t.Set {
		return 0
	}
	return int32(t.Value)
}

// Or returns t if set, otherwise the given default.
func (t Threshold) Or(def uint16) Threshold {
	if t.Set {
		return t
	}
	return NewThreshold(def)
}

func (t Threshold) String() string {
	if !t.Set {
		return "unset"
	}
	return strconv.Itoa(int(t.Value))
}

// Exceeded reports whether a reading is above the threshold.
// An unset threshold is never exceeded.
func (t Threshold) Exceeded(reading int) bool {
	return t.Set && reading > int(t.Value)
}

// CalibratedThreshold derives a new threshold from the final calibration reading.
// The result is clamped to [1, 65535].
func CalibratedThreshold(final, margin int) Threshold {
	v := final + margin
	if v < 1 {
		v = 1
	}
	if v > math.MaxUint16 {
		v = math.MaxUint16
	}
	return NewThreshold(uint16(v))
}

// Counters tracks pump actuations.
type Counters struct {
	// SincePowerUp is volatile and starts at 0 on every boot.
	SincePowerUp uint32
	// SinceCalibration is persisted and reset only by a completed calibration.
	SinceCalibration uint32
}

// RecordPump counts one actuation on both counters.
func (c *Counters) RecordPump() {
	c.SincePowerUp++
	c.SinceCalibration++
}

// ResetCalibration starts a new calibration epoch.
func (c *Counters) ResetCalibration() {
	c.SinceCalibration = 0
}
