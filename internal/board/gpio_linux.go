//go:build linux

package board

import (
	"errors"
	"fmt"

	"github.com/reef-pi/hal"
	"github.com/warthog618/go-gpiocdev"
)

// Chip owns the GPIO character device and the lines requested from it.
type Chip struct {
	chip  *gpiocdev.Chip
	lines []*Line
}

// OpenChip opens the named GPIO chip (e.g. "gpiochip0").
func OpenChip(name string) (*Chip, error) {
	chip, err := gpiocdev.NewChip(name)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}
	return &Chip{chip: chip}, nil
}

// Line is a single requested GPIO line. It satisfies both Input and Output.
type Line struct {
	name   string
	offset int
	line   *gpiocdev.Line
	last   bool
}

// Input requests offset as an input with pull-down, matching the Pi boot
// default, so an unconnected trigger reads LOW.
func (c *Chip) Input(name string, offset int) (*Line, error) {
	l, err := c.chip.RequestLine(offset, gpiocdev.AsInput, gpiocdev.WithPullDown)
	if err != nil {
		return nil, fmt.Errorf("request %s pin %d: %w", name, offset, err)
	}
	line := &Line{name: name, offset: offset, line: l}
	c.lines = append(c.lines, line)
	return line, nil
}

// Output requests offset as an output driven LOW.
func (c *Chip) Output(name string, offset int) (*Line, error) {
	l, err := c.chip.RequestLine(offset, gpiocdev.AsOutput(0))
	if err != nil {
		return nil, fmt.Errorf("request %s pin %d: %w", name, offset, err)
	}
	line := &Line{name: name, offset: offset, line: l}
	c.lines = append(c.lines, line)
	return line, nil
}

func (l *Line) Name() string           { return l.name }
func (l *Line) Number() int            { return l.offset }
func (l *Line) Metadata() hal.Metadata { return hal.Metadata{Name: l.name} }

// Read returns true when the line is HIGH.
func (l *Line) Read() (bool, error) {
	v, err := l.line.Value()
	if err != nil {
		return false, fmt.Errorf("read %s pin: %w", l.name, err)
	}
	return v == 1, nil
}

// Write drives the line HIGH (true) or LOW (false).
func (l *Line) Write(state bool) error {
	v := 0
	if state {
		v = 1
	}
	if err := l.line.SetValue(v); err != nil {
		return fmt.Errorf("write %s pin: %w", l.name, err)
	}
	l.last = state
	return nil
}

// LastState returns the last level written.
func (l *Line) LastState() bool { return l.last }

// Close reconfigures the line to input with pull-down (the Pi boot default)
// before releasing it, so nothing is left driven after exit.
func (l *Line) Close() error {
	if l.line == nil {
		return nil
	}
	var errs []error
	if err := l.line.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullDown); err != nil {
		errs = append(errs, fmt.Errorf("reconfigure %s pin: %w", l.name, err))
	}
	if err := l.line.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close %s pin: %w", l.name, err))
	}
	l.line = nil
	return errors.Join(errs...)
}

// Close releases every requested line and then the chip.
func (c *Chip) Close() error {
	var errs []error
	for _, l := range c.lines {
		if err := l.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if c.chip != nil {
		if err := c.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
		c.chip = nil
	}
	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}
