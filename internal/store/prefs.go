package store

import (
	"fmt"
	"log"

	"github.com/sweeney/soil-irrigator/internal/logic"
)

// State is the persisted controller state as loaded at boot.
type State struct {
	Threshold        logic.Threshold
	SinceCalibration uint32
	// Defaulted is true when the stored threshold was absent or 0 and the
	// default was adopted (and written back).
	Defaulted bool
}

// Prefs is the sole writer of the controller's durable values.
type Prefs struct {
	ns Namespace
}

// NewPrefs wraps a namespace.
func NewPrefs(ns Namespace) *Prefs {
	return &Prefs{ns: ns}
}

// Durable reports whether writes through p survive a restart.
func (p *Prefs) Durable() bool {
	return p.ns.Durable()
}

// Load reads the threshold and calibration-epoch counter. An absent or zero
// threshold is replaced by def and persisted; an absent counter is persisted
// as 0. A stored non-zero threshold is never rewritten here: one outside the
// sensor range is left in place and def is used in memory only.
//
// On error the returned State still carries usable in-memory defaults.
func (p *Prefs) Load(def uint16) (State, error) {
	st := State{Threshold: logic.NewThreshold(def), Defaulted: true}

	sc, err := p.ns.Open()
	if err != nil {
		return st, fmt.Errorf("open prefs: %w", err)
	}

	raw := sc.GetInt(KeyThreshold, 0)
	stored := logic.ThresholdFromStored(raw)
	switch {
	case stored.Set:
		st.Threshold = stored
		st.Defaulted = false
	case raw != 0:
		log.Printf("prefs: stored threshold %d out of range, using default %d", raw, def)
	default:
		sc.PutInt(KeyThreshold, st.Threshold.Stored())
	}

	if sc.Has(KeyPumpCount) {
		st.SinceCalibration = sc.GetUint(KeyPumpCount, 0)
	} else {
		sc.PutUint(KeyPumpCount, 0)
	}

	if err := sc.Close(); err != nil {
		return st, fmt.Errorf("commit prefs: %w", err)
	}
	return st, nil
}

// CommitCalibration stores a new threshold and resets the calibration-epoch
// counter in a single scope.
func (p *Prefs) CommitCalibration(t logic.Threshold) error {
	if !t.Set {
		return fmt.Errorf("commit calibration: threshold unset")
	}
	sc, err := p.ns.Open()
	if err != nil {
		return fmt.Errorf("open prefs: %w", err)
	}
	sc.PutInt(KeyThreshold, t.Stored())
	sc.PutUint(KeyPumpCount, 0)
	if err := sc.Close(); err != nil {
		return fmt.Errorf("commit calibration: %w", err)
	}
	return nil
}

// RecordPump persists the calibration-epoch counter after an actuation.
func (p *Prefs) RecordPump(sinceCalibration uint32) error {
	sc, err := p.ns.Open()
	if err != nil {
		return fmt.Errorf("open prefs: %w", err)
	}
	sc.PutUint(KeyPumpCount, sinceCalibration)
	if err := sc.Close(); err != nil {
		return fmt.Errorf("record pump: %w", err)
	}
	return nil
}

// Peek reads the stored values without writing defaults back. Threshold is
// unset when nothing valid is stored.
func (p *Prefs) Peek() (State, error) {
	sc, err := p.ns.Open()
	if err != nil {
		return State{}, fmt.Errorf("open prefs: %w", err)
	}
	st := State{
		Threshold:        logic.ThresholdFromStored(sc.GetInt(KeyThreshold, 0)),
		SinceCalibration: sc.GetUint(KeyPumpCount, 0),
	}
	st.Defaulted = !st.Threshold.Set
	if err := sc.Close(); err != nil {
		return st, fmt.Errorf("close prefs: %w", err)
	}
	return st, nil
}
