//go:build !linux

package board

import (
	"errors"
	"io"
	"time"
)

var errUnsupported = errors.New("board: not supported on this platform (requires Linux)")

// Chip is not available on non-Linux platforms.
type Chip struct{}

// OpenChip returns an error on non-Linux platforms.
func OpenChip(string) (*Chip, error) { return nil, errUnsupported }

// Input is not implemented on non-Linux platforms.
func (c *Chip) Input(string, int) (*FakeInput, error) { return nil, errUnsupported }

// Output is not implemented on non-Linux platforms.
func (c *Chip) Output(string, int) (*FakeOutput, error) { return nil, errUnsupported }

// Close is a no-op on non-Linux platforms.
func (c *Chip) Close() error { return nil }

// NewSysfsPWM returns a PWM whose Attach always fails on non-Linux platforms.
func NewSysfsPWM(int) *FakePWM { return &FakePWM{AttachError: errUnsupported} }

// OpenMoisture returns an error on non-Linux platforms.
func OpenMoisture(int, time.Duration) (*Moisture, io.Closer, error) {
	return nil, nil, errUnsupported
}
