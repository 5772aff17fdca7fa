// Package seriallog carries the controller's text log over a UART: the
// controller tees its log into a Writer, the host-side monitor reads it back
// line by line.
package seriallog

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"go.bug.st/serial"
)

// DefaultBaudRate matches the controller's UART setting.
const DefaultBaudRate = 115200

// Open opens a serial port in 8N1 mode.
func Open(port string, baud int) (serial.Port, error) {
	if baud <= 0 {
		baud = DefaultBaudRate
	}
	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	p, err := serial.Open(port, mode)
	if err != nil {
		return nil, fmt.Errorf("open serial port %s: %w", port, err)
	}
	return p, nil
}

// Ports lists the serial ports present on the host.
func Ports() ([]string, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("list serial ports: %w", err)
	}
	return ports, nil
}

// Lines scans newline-terminated lines from r until EOF, a read error or ctx
// cancellation. Carriage returns and surrounding space are trimmed and blank
// lines skipped. The lines channel is closed when scanning stops; the error
// channel then yields the read error, or nil on EOF or cancellation.
//
// A blocked Read is only interrupted by closing r, so callers cancel ctx and
// then close the port.
func Lines(ctx context.Context, r io.Reader) (<-chan string, <-chan error) {
	lines := make(chan string, 64)
	errc := make(chan error, 1)

	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}
			select {
			case lines <- line:
			case <-ctx.Done():
				errc <- nil
				return
			}
		}
		if ctx.Err() != nil {
			errc <- nil
			return
		}
		errc <- scanner.Err()
	}()

	return lines, errc
}

// Writer forwards log output to a serial port. Write never fails: a missing
// or unplugged UART must not stop the controller from logging elsewhere.
type Writer struct {
	mu     sync.Mutex
	w      io.Writer
	failed int
}

// NewWriter wraps w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// Write copies p to the port, counting but swallowing errors.
func (s *Writer) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.w.Write(p); err != nil {
		s.failed++
	}
	return len(p), nil
}

// Failures returns how many writes failed.
func (s *Writer) Failures() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failed
}
