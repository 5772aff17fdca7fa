// Package controller runs the irrigation controller: boot-time state load,
// the optional interactive calibration and the decision and safety loop.
//
// Everything runs on the caller's goroutine. All waits go through a Clock so
// tests can drive the controller without real time passing.
package controller

import (
	"context"
	"log"
	"time"

	"github.com/sweeney/soil-irrigator/internal/board"
	"github.com/sweeney/soil-irrigator/internal/config"
	"github.com/sweeney/soil-irrigator/internal/logic"
	"github.com/sweeney/soil-irrigator/internal/sensor"
	"github.com/sweeney/soil-irrigator/internal/store"
)

// Clock provides blocking sleeps.
type Clock interface {
	Sleep(d time.Duration)
}

// SleepClock is the real clock.
type SleepClock struct{}

// Sleep calls time.Sleep.
func (SleepClock) Sleep(d time.Duration) { time.Sleep(d) }

// Hardware bundles the peripherals the controller drives.
type Hardware struct {
	Trigger  board.Input
	LED      board.Output // optional
	Pump     board.PWM
	Moisture sensor.Source
}

// Controller owns the in-memory threshold, the pump counters and the
// overflow guard. Durable values are written only through store.Prefs.
type Controller struct {
	cfg    *config.Config
	hw     Hardware
	prefs  *store.Prefs
	clock  Clock
	log    *log.Logger
	filter *sensor.Filter
	guard  *logic.Guard

	threshold   logic.Threshold
	counters    logic.Counters
	pumpReady   bool
	lastReading sensor.Reading
	lastAction  logic.Action
}

// New creates a Controller. A nil clock means SleepClock, a nil logger means
// the standard logger.
func New(cfg *config.Config, hw Hardware, prefs *store.Prefs, clock Clock, logger *log.Logger) *Controller {
	if clock == nil {
		clock = SleepClock{}
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Controller{
		cfg:       cfg,
		hw:        hw,
		prefs:     prefs,
		clock:     clock,
		log:       logger,
		filter:    sensor.NewFilter(hw.Moisture, cfg.Sensor.Samples, cfg.Sensor.SampleDelay, clock.Sleep),
		guard:     logic.NewGuard(cfg.Loop.OverflowLimit),
		threshold: logic.NewThreshold(cfg.Loop.DefaultThreshold),
	}
}

// AttachPump configures the PWM channel. The caller decides whether a
// failure is fatal; if it continues, actuations are counted and logged but
// drive nothing.
func (c *Controller) AttachPump() error {
	if err := c.hw.Pump.Attach(c.cfg.Pump.FrequencyHz, c.cfg.Pump.ResolutionBits); err != nil {
		c.pumpReady = false
		return err
	}
	c.pumpReady = true
	return c.hw.Pump.Write(0)
}

// Boot loads the threshold and the calibration-epoch counter. Store errors
// are logged and the in-memory defaults are used.
func (c *Controller) Boot() {
	st, err := c.prefs.Load(c.cfg.Loop.DefaultThreshold)
	if err != nil {
		c.log.Printf("store: load failed, using defaults: %v", err)
	}
	c.threshold = st.Threshold
	c.counters = logic.Counters{SinceCalibration: st.SinceCalibration}

	if st.Defaulted {
		c.log.Printf("boot: threshold unset, using default %s", c.threshold)
	} else {
		c.log.Printf("boot: threshold %s", c.threshold)
	}
	c.log.Printf("boot: pumps since calibration %d", c.counters.SinceCalibration)
}

// CalibrationRequested polls the trigger for the post-boot window and
// reports whether it was seen HIGH.
func (c *Controller) CalibrationRequested() bool {
	window := c.cfg.Calibration.Window
	poll := c.cfg.Calibration.PollInterval
	c.log.Printf("boot: waiting %s for calibration trigger", window)

	for waited := time.Duration(0); waited < window; waited += poll {
		if c.triggered() {
			c.log.Printf("boot: calibration requested")
			return true
		}
		c.clock.Sleep(poll)
	}
	return c.triggered()
}

// Calibrate runs the interactive calibration and commits the new threshold.
//
// The operator releases the trigger to start pumping and presses it again
// once the soil is saturated. Each cycle pumps once, logs a reading and
// pauses. The final reading after settling, plus the margin, becomes the
// threshold.
func (c *Controller) Calibrate() logic.Threshold {
	cal := c.cfg.Calibration

	c.Blink(cal.BlinkCount, cal.BlinkPeriod)

	empty := c.read()
	c.log.Printf("calibration: empty reference %d", empty)

	// Blocks for as long as the trigger is held.
	for c.triggered() {
		c.clock.Sleep(cal.PollInterval)
	}
	c.log.Printf("calibration: started, press trigger when soil is saturated")

	cycles := 0
	for !c.triggered() {
		if cal.MaxCycles > 0 && cycles >= cal.MaxCycles {
			c.log.Printf("calibration: reached %d cycles without trigger, finishing", cycles)
			break
		}
		c.Pump()
		cycles++
		r := c.read()
		c.log.Printf("calibration: cycle %d reading %d", cycles, r)
		if c.pauseUntilTriggered(cal.Pause) {
			break
		}
	}

	c.clock.Sleep(cal.Settle)
	final := c.read()
	t := logic.CalibratedThreshold(int(final), cal.Margin)

	c.threshold = t
	c.counters.ResetCalibration()
	c.guard = logic.NewGuard(c.cfg.Loop.OverflowLimit)
	if err := c.prefs.CommitCalibration(t); err != nil {
		c.log.Printf("store: commit calibration failed: %v", err)
	}
	c.log.Printf("calibration: done after %d cycles, final %d, threshold %s", cycles, final, t)
	return t
}

// pauseUntilTriggered sleeps for d in poll steps and returns early with true
// if the trigger goes HIGH.
func (c *Controller) pauseUntilTriggered(d time.Duration) bool {
	poll := c.cfg.Calibration.PollInterval
	for waited := time.Duration(0); waited < d; waited += poll {
		if c.triggered() {
			return true
		}
		step := poll
		if rem := d - waited; rem < step {
			step = rem
		}
		c.clock.Sleep(step)
	}
	return false
}

// Pump runs one actuation: duty on, hold, duty off, count, persist. The
// store is touched only after the output has been dropped.
func (c *Controller) Pump() {
	p := c.cfg.Pump
	c.writePump(p.Duty)
	c.clock.Sleep(p.RunDuration)
	c.writePump(0)

	c.counters.RecordPump()
	c.log.Printf("Pumps since power up: %d", c.counters.SincePowerUp)

	if err := c.prefs.RecordPump(c.counters.SinceCalibration); err != nil {
		c.log.Printf("store: record pump failed: %v", err)
	}
}

func (c *Controller) writePump(duty uint32) {
	if !c.pumpReady {
		return
	}
	if err := c.hw.Pump.Write(duty); err != nil {
		c.log.Printf("pump: write %d failed: %v", duty, err)
	}
}

// Step runs one iteration of the decision loop, including its trailing
// interval sleep, and returns the action taken.
func (c *Controller) Step() logic.Action {
	r := c.read()
	action := c.guard.Evaluate(int(r), c.threshold)
	c.lastAction = action

	switch action {
	case logic.ActionIrrigate:
		c.log.Printf("loop: reading %d > threshold %s, irrigating (%d/%d)", r, c.threshold, c.guard.Overflow(), c.guard.Limit())
		c.Pump()
	case logic.ActionCooldown:
		c.log.Printf("loop: overflow protection after %d consecutive pumps, cooling down %s", c.guard.Limit(), c.cfg.Loop.Cooldown)
		c.clock.Sleep(c.cfg.Loop.Cooldown)
	default:
		c.log.Printf("loop: reading %d <= threshold %s", r, c.threshold)
	}

	c.clock.Sleep(c.cfg.Loop.Interval)
	return action
}

// Run repeats Step until ctx is cancelled. Cancellation is only observed
// between iterations. The pump output is forced to 0 on return.
func (c *Controller) Run(ctx context.Context) error {
	defer c.writePump(0)
	c.log.Printf("loop: started, threshold %s", c.threshold)
	for {
		select {
		case <-ctx.Done():
			c.log.Printf("loop: stopped after %d pumps", c.counters.SincePowerUp)
			return nil
		default:
		}
		c.Step()
	}
}

// Blink flashes the LED n times, period on and period off.
func (c *Controller) Blink(n int, period time.Duration) {
	if c.hw.LED == nil {
		return
	}
	for i := 0; i < n; i++ {
		c.setLED(true)
		c.clock.Sleep(period)
		c.setLED(false)
		c.clock.Sleep(period)
	}
}

func (c *Controller) setLED(on bool) {
	if err := c.hw.LED.Write(on); err != nil {
		c.log.Printf("led: %v", err)
	}
}

func (c *Controller) triggered() bool {
	v, err := c.hw.Trigger.Read()
	if err != nil {
		c.log.Printf("trigger: %v", err)
		return false
	}
	return v
}

func (c *Controller) read() sensor.Reading {
	r := c.filter.Read()
	c.lastReading = r
	return r
}

// Threshold returns the active threshold.
func (c *Controller) Threshold() logic.Threshold { return c.threshold }

// Counters returns the pump counters.
func (c *Controller) Counters() logic.Counters { return c.counters }

// Overflow returns the consecutive-actuation count.
func (c *Controller) Overflow() int { return c.guard.Overflow() }

// LastReading returns the most recent filtered reading.
func (c *Controller) LastReading() sensor.Reading { return c.lastReading }

// LastAction returns the action of the most recent Step.
func (c *Controller) LastAction() logic.Action { return c.lastAction }

// PumpReady reports whether the PWM channel attached.
func (c *Controller) PumpReady() bool { return c.pumpReady }
