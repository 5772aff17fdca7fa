package controller

import (
	"bytes"
	"context"
	"errors"
	"log"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sweeney/soil-irrigator/internal/board"
	"github.com/sweeney/soil-irrigator/internal/config"
	"github.com/sweeney/soil-irrigator/internal/logic"
	"github.com/sweeney/soil-irrigator/internal/store"
)

// fakeClock advances virtual time on every Sleep.
type fakeClock struct {
	elapsed time.Duration
	long    []time.Duration // sleeps of 1ms or more
	onSleep func(d time.Duration)
}

func (c *fakeClock) Sleep(d time.Duration) {
	if c.onSleep != nil {
		c.onSleep(d)
	}
	c.elapsed += d
	if d >= time.Millisecond {
		c.long = append(c.long, d)
	}
}

// readingScript yields one scripted value per filtered reading of n samples.
type readingScript struct {
	values  []int
	samples int
	n       int
}

func (s *readingScript) Raw() int {
	i := s.n / s.samples
	s.n++
	if i >= len(s.values) {
		i = len(s.values) - 1
	}
	return s.values[i]
}

type rig struct {
	cfg     *config.Config
	clock   *fakeClock
	trigger *board.FakeInput
	led     *board.FakeOutput
	pump    *board.FakePWM
	prefs   *store.Prefs
	logBuf  *bytes.Buffer
	ctrl    *Controller
}

func newRig(t *testing.T, ns store.Namespace, readings ...int) *rig {
	t.Helper()
	if ns == nil {
		b, err := store.OpenBolt(filepath.Join(t.TempDir(), "prefs.db"), store.DefaultNamespace)
		if err != nil {
			t.Fatalf("open store: %v", err)
		}
		t.Cleanup(func() { b.Close() })
		ns = b
	}
	cfg := config.Default()
	r := &rig{
		cfg:     cfg,
		clock:   &fakeClock{},
		trigger: board.NewFakeInput(false),
		led:     &board.FakeOutput{},
		pump:    &board.FakePWM{},
		prefs:   store.NewPrefs(ns),
		logBuf:  &bytes.Buffer{},
	}
	hw := Hardware{
		Trigger:  r.trigger,
		LED:      r.led,
		Pump:     r.pump,
		Moisture: &readingScript{values: readings, samples: cfg.Sensor.Samples},
	}
	r.ctrl = New(cfg, hw, r.prefs, r.clock, log.New(r.logBuf, "", 0))
	return r
}

func (r *rig) stored(t *testing.T) store.State {
	t.Helper()
	st, err := r.prefs.Load(r.cfg.Loop.DefaultThreshold)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	return st
}

func TestBootDefaultsThreshold(t *testing.T) {
	r := newRig(t, nil, 10)
	r.ctrl.Boot()

	if got := r.ctrl.Threshold(); got != logic.NewThreshold(45) {
		t.Errorf("expected default threshold 45, got %s", got)
	}
	if st := r.stored(t); st.Defaulted || st.Threshold.Value != 45 {
		t.Errorf("expected 45 persisted, got %+v", st)
	}
	if !strings.Contains(r.logBuf.String(), "using default 45") {
		t.Errorf("expected default log line, got:\n%s", r.logBuf.String())
	}
}

func TestBootKeepsStoredThreshold(t *testing.T) {
	r := newRig(t, nil, 10)
	if err := r.prefs.CommitCalibration(logic.NewThreshold(70)); err != nil {
		t.Fatal(err)
	}
	if err := r.prefs.RecordPump(9); err != nil {
		t.Fatal(err)
	}

	r.ctrl.Boot()
	if r.ctrl.Threshold().Value != 70 {
		t.Errorf("expected stored threshold 70, got %s", r.ctrl.Threshold())
	}
	c := r.ctrl.Counters()
	if c.SinceCalibration != 9 || c.SincePowerUp != 0 {
		t.Errorf("expected counters {0 9}, got %+v", c)
	}
	if r.stored(t).Threshold.Value != 70 {
		t.Error("stored threshold must not be overwritten")
	}
}

func TestBootWithoutStore(t *testing.T) {
	r := newRig(t, store.Discard{}, 10)
	r.ctrl.Boot()
	if r.ctrl.Threshold().Value != 45 {
		t.Errorf("expected in-memory default 45, got %s", r.ctrl.Threshold())
	}
}

func TestStepScenario(t *testing.T) {
	r := newRig(t, nil, 10, 50, 50, 50, 50, 50, 50, 50)
	if err := r.ctrl.AttachPump(); err != nil {
		t.Fatal(err)
	}
	r.ctrl.Boot()

	want := []logic.Action{
		logic.ActionIdle,
		logic.ActionIrrigate, logic.ActionIrrigate, logic.ActionIrrigate,
		logic.ActionIrrigate, logic.ActionIrrigate, logic.ActionIrrigate,
		logic.ActionCooldown,
	}
	wantOverflow := []int{0, 1, 2, 3, 4, 5, 6, 0}

	for i := range want {
		got := r.ctrl.Step()
		if got != want[i] {
			t.Errorf("iteration %d: expected %s, got %s", i+1, want[i], got)
		}
		if r.ctrl.Overflow() != wantOverflow[i] {
			t.Errorf("iteration %d: expected overflow %d, got %d", i+1, wantOverflow[i], r.ctrl.Overflow())
		}
		c := r.ctrl.Counters()
		if st := r.stored(t); st.SinceCalibration != c.SinceCalibration {
			t.Errorf("iteration %d: persisted counter %d != memory %d", i+1, st.SinceCalibration, c.SinceCalibration)
		}
	}

	c := r.ctrl.Counters()
	if c.SincePowerUp != 6 || c.SinceCalibration != 6 {
		t.Errorf("expected 6 pumps on both counters, got %+v", c)
	}
	if r.pump.Pulses() != 6 {
		t.Errorf("expected 6 pump pulses, got %d", r.pump.Pulses())
	}
	if r.pump.Current() != 0 {
		t.Errorf("pump left at duty %d", r.pump.Current())
	}

	// idle: interval; irrigate: run + interval; cooldown: cooldown + interval
	s := time.Second
	wantSleeps := []time.Duration{2 * s}
	for i := 0; i < 6; i++ {
		wantSleeps = append(wantSleeps, s, 2*s)
	}
	wantSleeps = append(wantSleeps, 30*s, 2*s)
	if len(r.clock.long) != len(wantSleeps) {
		t.Fatalf("expected sleeps %v, got %v", wantSleeps, r.clock.long)
	}
	for i := range wantSleeps {
		if r.clock.long[i] != wantSleeps[i] {
			t.Errorf("sleep %d: expected %v, got %v", i, wantSleeps[i], r.clock.long[i])
		}
	}
}

func TestStepIrrigatesAgainAfterCooldown(t *testing.T) {
	r := newRig(t, nil, 99)
	r.ctrl.AttachPump()
	r.ctrl.Boot()

	for i := 0; i < 6; i++ {
		r.ctrl.Step()
	}
	if got := r.ctrl.Step(); got != logic.ActionCooldown {
		t.Fatalf("cycle 7: expected COOLDOWN, got %s", got)
	}
	if got := r.ctrl.Step(); got != logic.ActionIrrigate {
		t.Errorf("cycle 8: expected IRRIGATE, got %s", got)
	}
	if r.ctrl.Counters().SincePowerUp != 7 {
		t.Errorf("expected 7 pumps, got %d", r.ctrl.Counters().SincePowerUp)
	}
}

func TestPumpHoldsDutyForRunDuration(t *testing.T) {
	r := newRig(t, nil, 10)
	r.ctrl.AttachPump()

	var dutyDuringHold uint32
	r.clock.onSleep = func(d time.Duration) {
		if d == r.cfg.Pump.RunDuration {
			dutyDuringHold = r.pump.Current()
		}
	}
	r.ctrl.Pump()

	if dutyDuringHold != r.cfg.Pump.Duty {
		t.Errorf("expected duty %d during hold, got %d", r.cfg.Pump.Duty, dutyDuringHold)
	}
	if r.pump.Current() != 0 {
		t.Errorf("expected duty 0 after pump, got %d", r.pump.Current())
	}
	if !strings.Contains(r.logBuf.String(), "Pumps since power up: 1\n") {
		t.Errorf("expected pump count line, got:\n%s", r.logBuf.String())
	}
}

// scopeSpy records the pump output each time a store scope is opened.
type scopeSpy struct {
	store.Namespace
	pump  *board.FakePWM
	duty  []uint32
	opens int
}

func (p *scopeSpy) Open() (store.Scope, error) {
	p.opens++
	p.duty = append(p.duty, p.pump.Current())
	return p.Namespace.Open()
}

func TestPumpOpensStoreAfterOutputDropped(t *testing.T) {
	spy := &scopeSpy{Namespace: store.Discard{}}
	r := newRig(t, spy, 10)
	spy.pump = r.pump
	r.ctrl.AttachPump()

	r.ctrl.Pump()
	r.ctrl.Pump()

	if spy.opens != 2 {
		t.Fatalf("expected 2 store scopes, got %d", spy.opens)
	}
	for i, d := range spy.duty {
		if d != 0 {
			t.Errorf("scope %d opened with pump at duty %d", i, d)
		}
	}
}

// failingNamespace fails every Open.
type failingNamespace struct{ store.Discard }

func (failingNamespace) Open() (store.Scope, error) { return nil, errors.New("flash worn out") }

func TestStoreFailureKeepsMemoryState(t *testing.T) {
	r := newRig(t, failingNamespace{}, 99)
	r.ctrl.AttachPump()
	r.ctrl.Boot()

	if got := r.ctrl.Step(); got != logic.ActionIrrigate {
		t.Fatalf("expected IRRIGATE, got %s", got)
	}
	if c := r.ctrl.Counters(); c.SincePowerUp != 1 || c.SinceCalibration != 1 {
		t.Errorf("expected counters {1 1}, got %+v", c)
	}
	if !strings.Contains(r.logBuf.String(), "store: record pump failed") {
		t.Errorf("expected store failure to be logged, got:\n%s", r.logBuf.String())
	}
}

func TestAttachPumpFailure(t *testing.T) {
	r := newRig(t, nil, 99)
	r.pump.AttachError = errors.New("no pwm channel")

	if err := r.ctrl.AttachPump(); err == nil {
		t.Fatal("expected attach error")
	}
	if r.ctrl.PumpReady() {
		t.Error("pump should not be ready")
	}

	r.ctrl.Boot()
	r.ctrl.Step()
	if len(r.pump.Duties) != 0 {
		t.Errorf("expected no duty writes, got %v", r.pump.Duties)
	}
	if r.ctrl.Counters().SincePowerUp != 1 {
		t.Errorf("actuation should still be counted, got %+v", r.ctrl.Counters())
	}
}

func TestCalibrationRequested(t *testing.T) {
	r := newRig(t, nil, 10)
	r.trigger.LevelFunc = func() bool { return r.clock.elapsed >= 2*time.Second }

	if !r.ctrl.CalibrationRequested() {
		t.Fatal("expected calibration request")
	}
	if r.clock.elapsed != 2*time.Second {
		t.Errorf("expected request seen at 2s, got %v", r.clock.elapsed)
	}
}

func TestCalibrationNotRequested(t *testing.T) {
	r := newRig(t, nil, 10)

	if r.ctrl.CalibrationRequested() {
		t.Fatal("unexpected calibration request")
	}
	if r.clock.elapsed != r.cfg.Calibration.Window {
		t.Errorf("expected to wait %v, got %v", r.cfg.Calibration.Window, r.clock.elapsed)
	}
}

func TestCalibrate(t *testing.T) {
	// empty reference, two pump cycles, final reading
	r := newRig(t, nil, 20, 25, 30, 33)
	if err := r.prefs.RecordPump(17); err != nil {
		t.Fatal(err)
	}
	r.ctrl.AttachPump()
	r.ctrl.Boot()

	// Held at boot, released at 1.5s, pressed again at 6s.
	r.trigger.LevelFunc = func() bool {
		e := r.clock.elapsed
		return e < 1500*time.Millisecond || e >= 6*time.Second
	}

	if !r.ctrl.CalibrationRequested() {
		t.Fatal("expected calibration request")
	}
	got := r.ctrl.Calibrate()

	if got != logic.NewThreshold(34) {
		t.Errorf("expected threshold 34, got %s", got)
	}
	if r.ctrl.Threshold() != got {
		t.Errorf("active threshold %s != calibrated %s", r.ctrl.Threshold(), got)
	}
	c := r.ctrl.Counters()
	if c.SincePowerUp != 2 || c.SinceCalibration != 0 {
		t.Errorf("expected counters {2 0}, got %+v", c)
	}
	st := r.stored(t)
	if st.Threshold.Value != 34 || st.SinceCalibration != 0 {
		t.Errorf("expected persisted {34, 0}, got %+v", st)
	}
	if r.led.Pulses() != 3 {
		t.Errorf("expected 3 confirmation blinks, got %d", r.led.Pulses())
	}
	if r.pump.Pulses() != 2 {
		t.Errorf("expected 2 pump cycles, got %d", r.pump.Pulses())
	}

	logs := r.logBuf.String()
	for _, want := range []string{
		"calibration: empty reference 20",
		"calibration: cycle 1 reading 25",
		"calibration: cycle 2 reading 30",
		"threshold 34",
	} {
		if !strings.Contains(logs, want) {
			t.Errorf("missing log %q in:\n%s", want, logs)
		}
	}
}

func TestCalibrateStopsAtMaxCycles(t *testing.T) {
	r := newRig(t, nil, 20, 40)
	r.cfg.Calibration.MaxCycles = 3
	r.ctrl.AttachPump()
	r.ctrl.Boot()
	r.trigger.LevelFunc = func() bool { return r.clock.elapsed < 500*time.Millisecond }

	got := r.ctrl.Calibrate()

	if r.pump.Pulses() != 3 {
		t.Errorf("expected 3 pump cycles, got %d", r.pump.Pulses())
	}
	if got.Value != 41 {
		t.Errorf("expected threshold 41, got %s", got)
	}
	if !strings.Contains(r.logBuf.String(), "reached 3 cycles") {
		t.Errorf("expected cap warning, got:\n%s", r.logBuf.String())
	}
}

func TestCalibrateResetsOverflow(t *testing.T) {
	r := newRig(t, nil, 99)
	r.cfg.Calibration.MaxCycles = 1
	r.ctrl.AttachPump()
	r.ctrl.Boot()

	r.ctrl.Step()
	r.ctrl.Step()
	if r.ctrl.Overflow() != 2 {
		t.Fatalf("expected overflow 2, got %d", r.ctrl.Overflow())
	}
	r.ctrl.Calibrate()
	if r.ctrl.Overflow() != 0 {
		t.Errorf("expected overflow 0 after calibration, got %d", r.ctrl.Overflow())
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	r := newRig(t, nil, 10)
	r.ctrl.AttachPump()
	r.ctrl.Boot()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r.clock.onSleep = func(d time.Duration) {
		if r.clock.elapsed >= 10*time.Second {
			cancel()
		}
	}

	if err := r.ctrl.Run(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.ctrl.LastAction() != logic.ActionIdle {
		t.Errorf("expected last action IDLE, got %s", r.ctrl.LastAction())
	}
	if r.pump.Current() != 0 {
		t.Errorf("pump left at duty %d", r.pump.Current())
	}
	if !strings.Contains(r.logBuf.String(), "loop: stopped") {
		t.Errorf("expected stop log, got:\n%s", r.logBuf.String())
	}
}
