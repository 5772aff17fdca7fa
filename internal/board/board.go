// Package board abstracts the controller's peripherals: the trigger input,
// the status LED, the PWM pump output and the capacitive moisture probe.
// The real implementations use the Linux GPIO character device, sysfs PWM
// and the I2C bus. The fakes allow testing without hardware.
package board

import (
	"github.com/reef-pi/hal"
)

// Input is a digital input line (the calibration trigger).
type Input = hal.DigitalInputPin

// Output is a digital output line (the status LED).
type Output = hal.DigitalOutputPin

// PWM drives the pump through a single PWM channel.
type PWM interface {
	// Attach configures the channel frequency and duty resolution.
	Attach(freqHz, resolutionBits int) error
	// Write sets the duty value, 0 .. MaxDuty(resolutionBits).
	Write(duty uint32) error
	// Close stops the output and releases the channel.
	Close() error
}

// MaxDuty returns the full-scale duty value for a resolution.
func MaxDuty(resolutionBits int) uint32 {
	if resolutionBits <= 0 {
		return 0
	}
	return 1<<uint(resolutionBits) - 1
}

// Default wiring (BCM numbering).
const (
	PinTrigger = 17
	PinLED     = 27
)
