//go:build linux

package board

import (
	"fmt"
	"io"
	"time"

	"github.com/reef-pi/rpi/i2c"
)

// OpenMoisture opens the default I2C bus and returns a probe reader plus the
// bus to close on shutdown.
func OpenMoisture(addr int, delay time.Duration) (*Moisture, io.Closer, error) {
	bus, err := i2c.New()
	if err != nil {
		return nil, nil, fmt.Errorf("open i2c bus: %w", err)
	}
	return NewMoisture(bus, byte(addr), delay), bus, nil
}
