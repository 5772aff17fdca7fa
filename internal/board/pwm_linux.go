//go:build linux

package board

import (
	"errors"
	"fmt"

	"github.com/reef-pi/rpi/pwm"
)

// SysfsPWM drives one hardware PWM channel through /sys/class/pwm.
type SysfsPWM struct {
	driver   pwm.Driver
	channel  int
	maxDuty  uint32
	attached bool
}

// NewSysfsPWM returns an unattached PWM channel.
func NewSysfsPWM(channel int) *SysfsPWM {
	return newSysfsPWM(pwm.New(), channel)
}

func newSysfsPWM(driver pwm.Driver, channel int) *SysfsPWM {
	return &SysfsPWM{driver: driver, channel: channel}
}

// Attach exports the channel, sets its period from freqHz and enables it
// with a zero duty cycle.
func (p *SysfsPWM) Attach(freqHz, resolutionBits int) error {
	if freqHz <= 0 {
		return fmt.Errorf("pwm attach: invalid frequency %d", freqHz)
	}
	if resolutionBits < 1 || resolutionBits > 16 {
		return fmt.Errorf("pwm attach: invalid resolution %d", resolutionBits)
	}

	exported, err := p.driver.IsExported(p.channel)
	if err != nil {
		return fmt.Errorf("pwm attach: %w", err)
	}
	if !exported {
		if err := p.driver.Export(p.channel); err != nil {
			return fmt.Errorf("pwm export channel %d: %w", p.channel, err)
		}
	}
	if err := p.driver.Frequency(p.channel, freqHz); err != nil {
		return fmt.Errorf("pwm frequency: %w", err)
	}
	if err := p.driver.DutyCycle(p.channel, 0); err != nil {
		return fmt.Errorf("pwm duty: %w", err)
	}
	if err := p.driver.Enable(p.channel); err != nil {
		return fmt.Errorf("pwm enable: %w", err)
	}

	p.maxDuty = MaxDuty(resolutionBits)
	p.attached = true
	return nil
}

// Write converts duty (0..maxDuty) to the driver's percentage of the period.
func (p *SysfsPWM) Write(duty uint32) error {
	if !p.attached {
		return errors.New("pwm: not attached")
	}
	if duty > p.maxDuty {
		return fmt.Errorf("pwm: duty %d exceeds %d", duty, p.maxDuty)
	}
	pct := 100 * float64(duty) / float64(p.maxDuty)
	if err := p.driver.DutyCycle(p.channel, pct); err != nil {
		return fmt.Errorf("pwm duty: %w", err)
	}
	return nil
}

// Close forces the output to zero, disables and unexports the channel.
func (p *SysfsPWM) Close() error {
	if !p.attached {
		return nil
	}
	var errs []error
	if err := p.driver.DutyCycle(p.channel, 0); err != nil {
		errs = append(errs, err)
	}
	if err := p.driver.Disable(p.channel); err != nil {
		errs = append(errs, err)
	}
	if err := p.driver.Unexport(p.channel); err != nil {
		errs = append(errs, err)
	}
	p.attached = false
	return errors.Join(errs...)
}
