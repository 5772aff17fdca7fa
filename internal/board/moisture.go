package board

import (
	"encoding/binary"
	"log"
	"time"
)

// Seesaw touch register used by the capacitive soil probe.
const (
	seesawTouchBase    = 0x0F
	seesawTouchChannel = 0x10

	// DefaultMoistureAddr is the probe's factory I2C address.
	DefaultMoistureAddr = 0x36

	// TouchFullScale bounds the probe's capacitance count. The stock probe
	// reads roughly 300 in dry air and under 2000 submerged.
	TouchFullScale = 2047
)

// I2C is the subset of an I2C bus the probe needs.
type I2C interface {
	ReadBytes(addr byte, num int) ([]byte, error)
	WriteBytes(addr byte, value []byte) error
}

// Moisture reads a seesaw soil probe and reports dryness: TouchFullScale
// minus the capacitance count, so larger values mean drier soil.
type Moisture struct {
	bus   I2C
	addr  byte
	delay time.Duration
	sleep func(time.Duration)
	last  int
	fails int
}

// NewMoisture creates a probe reader. delay is the conversion time between
// the touch request and the read.
func NewMoisture(bus I2C, addr byte, delay time.Duration) *Moisture {
	return &Moisture{bus: bus, addr: addr, delay: delay, sleep: time.Sleep}
}

// Raw performs one touch conversion. On a bus error or an invalid reading it
// returns the previous value so a single glitch cannot skew the average.
func (m *Moisture) Raw() int {
	if err := m.bus.WriteBytes(m.addr, []byte{seesawTouchBase, seesawTouchChannel}); err != nil {
		m.fail(err)
		return m.last
	}
	if m.delay > 0 {
		m.sleep(m.delay)
	}
	buf, err := m.bus.ReadBytes(m.addr, 2)
	if err != nil {
		m.fail(err)
		return m.last
	}
	if len(buf) < 2 {
		m.fails++
		return m.last
	}
	v := binary.BigEndian.Uint16(buf)
	if v == 0xFFFF {
		m.fails++
		return m.last
	}
	m.last = dryness(v)
	return m.last
}

func dryness(count uint16) int {
	if int(count) >= TouchFullScale {
		return 0
	}
	return TouchFullScale - int(count)
}

// Failures returns how many conversions fell back to the previous value.
func (m *Moisture) Failures() int { return m.fails }

func (m *Moisture) fail(err error) {
	m.fails++
	// Log the first failure of a run only; Raw is called tens of times per read.
	if m.fails == 1 {
		log.Printf("moisture: read failed at 0x%02X: %v", m.addr, err)
	}
}
