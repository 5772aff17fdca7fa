package board

import (
	"errors"
	"fmt"
	"sync"

	"github.com/reef-pi/hal"
)

// FakeInput is a test double that returns scripted levels.
type FakeInput struct {
	// Levels contains scripted values to return. Each call to Read consumes
	// the next one; once exhausted the last level repeats.
	Levels []bool

	// LevelFunc, if set, takes precedence over Levels.
	LevelFunc func() bool

	// ReadError, if set, will be returned by Read.
	ReadError error

	Closed bool

	index int
	reads int
}

// NewFakeInput creates a FakeInput with the given levels.
func NewFakeInput(levels ...bool) *FakeInput {
	return &FakeInput{Levels: levels}
}

func (f *FakeInput) Name() string          { return "fake-input" }
func (f *FakeInput) Number() int           { return 0 }
func (f *FakeInput) Metadata() hal.Metadata { return hal.Metadata{Name: f.Name()} }

// Read returns the next scripted level.
func (f *FakeInput) Read() (bool, error) {
	f.reads++
	if f.ReadError != nil {
		return false, f.ReadError
	}
	if f.LevelFunc != nil {
		return f.LevelFunc(), nil
	}
	if len(f.Levels) == 0 {
		return false, errors.New("no levels configured")
	}
	v := f.Levels[f.index]
	if f.index < len(f.Levels)-1 {
		f.index++
	}
	return v, nil
}

// Reads returns how many times Read was called.
func (f *FakeInput) Reads() int { return f.reads }

// Close marks the input as closed.
func (f *FakeInput) Close() error {
	f.Closed = true
	return nil
}

// FakeOutput records every level written to it.
type FakeOutput struct {
	Writes []bool
	Closed bool
}

func (f *FakeOutput) Name() string           { return "fake-output" }
func (f *FakeOutput) Number() int            { return 0 }
func (f *FakeOutput) Metadata() hal.Metadata { return hal.Metadata{Name: f.Name()} }

// Write records the level.
func (f *FakeOutput) Write(state bool) error {
	f.Writes = append(f.Writes, state)
	return nil
}

// LastState returns the last written level, false if none.
func (f *FakeOutput) LastState() bool {
	if len(f.Writes) == 0 {
		return false
	}
	return f.Writes[len(f.Writes)-1]
}

// Pulses counts rising edges written so far.
func (f *FakeOutput) Pulses() int {
	n := 0
	prev := false
	for _, w := range f.Writes {
		if w && !prev {
			n++
		}
		prev = w
	}
	return n
}

// Close marks the output as closed.
func (f *FakeOutput) Close() error {
	f.Closed = true
	return nil
}

// FakePWM records attach parameters and duty writes.
type FakePWM struct {
	mu sync.Mutex

	AttachError error
	WriteError  error

	Attached       bool
	FrequencyHz    int
	ResolutionBits int
	Duties         []uint32
	Closed         bool
}

// Attach records the configuration or returns AttachError.
func (f *FakePWM) Attach(freqHz, resolutionBits int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.AttachError != nil {
		return f.AttachError
	}
	f.Attached = true
	f.FrequencyHz = freqHz
	f.ResolutionBits = resolutionBits
	return nil
}

// Write records the duty value.
func (f *FakePWM) Write(duty uint32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.WriteError != nil {
		return f.WriteError
	}
	if !f.Attached {
		return errors.New("pwm: not attached")
	}
	if max := MaxDuty(f.ResolutionBits); duty > max {
		return fmt.Errorf("pwm: duty %d exceeds %d", duty, max)
	}
	f.Duties = append(f.Duties, duty)
	return nil
}

// Current returns the last written duty value.
func (f *FakePWM) Current() uint32 {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.Duties) == 0 {
		return 0
	}
	return f.Duties[len(f.Duties)-1]
}

// Pulses counts transitions from 0 to a non-zero duty.
func (f *FakePWM) Pulses() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	var prev uint32
	for _, d := range f.Duties {
		if d != 0 && prev == 0 {
			n++
		}
		prev = d
	}
	return n
}

// Close marks the channel closed.
func (f *FakePWM) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Closed = true
	return nil
}

// FakeAnalog returns scripted raw samples.
// Once exhausted the last value repeats.
type FakeAnalog struct {
	Values []int
	index  int
	calls  int
}

// Raw returns the next scripted value.
func (f *FakeAnalog) Raw() int {
	f.calls++
	if len(f.Values) == 0 {
		return 0
	}
	v := f.Values[f.index]
	if f.index < len(f.Values)-1 {
		f.index++
	}
	return v
}

// Calls returns how many samples were taken.
func (f *FakeAnalog) Calls() int { return f.calls }
