// Package sensor turns noisy raw capacitance samples into stable moisture readings.
package sensor

import "time"

const (
	// DefaultSamples is the number of raw samples averaged per reading.
	DefaultSamples = 64
	// DefaultSampleDelay separates consecutive raw samples.
	DefaultSampleDelay = 50 * time.Microsecond
)

// Reading is one filtered moisture sample. Larger values mean drier soil.
type Reading int

// Source produces single glitch-free raw samples.
type Source interface {
	Raw() int
}

// SourceFunc adapts a function to the Source interface.
type SourceFunc func() int

// Raw calls f.
func (f SourceFunc) Raw() int {
	return f()
}

// Filter averages a fixed number of raw samples into one Reading.
type Filter struct {
	src     Source
	samples int
	delay   time.Duration
	sleep   func(time.Duration)
}

// NewFilter creates a Filter. samples below 1 are treated as 1. The delay is
// kept at full time.Duration precision; sleep is called with it after every
// raw sample (nil means time.Sleep).
func NewFilter(src Source, samples int, delay time.Duration, sleep func(time.Duration)) *Filter {
	if samples < 1 {
		samples = 1
	}
	if sleep == nil {
		sleep = time.Sleep
	}
	return &Filter{
		src:     src,
		samples: samples,
		delay:   delay,
		sleep:   sleep,
	}
}

// Read returns the integer-truncated mean of Samples raw samples.
// It blocks for roughly Samples × SampleDelay.
func (f *Filter) Read() Reading {
	var sum int64
	for i := 0; i < f.samples; i++ {
		sum += int64(f.src.Raw())
		if f.delay > 0 {
			f.sleep(f.delay)
		}
	}
	return Reading(sum / int64(f.samples))
}

// Window returns the time one Read spends sleeping between samples.
func (f *Filter) Window() time.Duration {
	return time.Duration(f.samples) * f.delay
}
