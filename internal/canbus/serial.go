package canbus

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"go.bug.st/serial"
)

// serialReadTimeout bounds each Read so cancellation is noticed promptly.
const serialReadTimeout = 500 * time.Millisecond

// DefaultBaudRate suits most USB text-mode CAN adapters.
const DefaultBaudRate = 115200

// SerialConfig configures a serial CAN adapter.
type SerialConfig struct {
	// Port is the device path, e.g. "/dev/ttyUSB0".
	Port string

	// BaudRate defaults to DefaultBaudRate.
	BaudRate int
}

// SerialSource reads capture lines from a serial CAN adapter that prints one
// frame per line, either candump style or "id#payload".
type SerialSource struct {
	cfg    SerialConfig
	open   func(path string, mode *serial.Mode) (serial.Port, error)
	logger Logger
}

// NewSerialSource creates a serial source.
func NewSerialSource(cfg SerialConfig) *SerialSource {
	if cfg.BaudRate == 0 {
		cfg.BaudRate = DefaultBaudRate
	}
	return &SerialSource{cfg: cfg, open: serial.Open, logger: noopLogger{}}
}

// SetLogger sets the logger for the source.
func (s *SerialSource) SetLogger(logger Logger) {
	s.logger = logger
}

// Run opens the port, 8N1, and delivers lines until ctx is cancelled.
func (s *SerialSource) Run(ctx context.Context, handle LineHandler) error {
	mode := &serial.Mode{
		BaudRate: s.cfg.BaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := s.open(s.cfg.Port, mode)
	if err != nil {
		return fmt.Errorf("open serial port %s: %w", s.cfg.Port, err)
	}
	defer port.Close()

	if err := port.SetReadTimeout(serialReadTimeout); err != nil {
		return fmt.Errorf("set read timeout: %w", err)
	}

	s.logger.Info("serial port opened", "port", s.cfg.Port, "baud", s.cfg.BaudRate)

	var (
		buf     = make([]byte, 1024)
		pending []byte
	)
	for {
		if ctx.Err() != nil {
			return nil
		}

		n, err := port.Read(buf)
		if err != nil {
			var portErr *serial.PortError
			if errors.As(err, &portErr) && portErr.Code() == serial.PortClosed {
				return fmt.Errorf("%w: %s", ErrSourceClosed, s.cfg.Port)
			}
			return fmt.Errorf("reading %s: %w", s.cfg.Port, err)
		}
		if n == 0 {
			// Read timeout.
			continue
		}

		pending = append(pending, buf[:n]...)
		for {
			i := bytes.IndexByte(pending, '\n')
			if i < 0 {
				break
			}
			line := bytes.TrimRight(pending[:i], "\r")
			if len(line) > 0 {
				handle(string(line))
			}
			pending = pending[i+1:]
		}
		if len(pending) > maxLineSize {
			s.logger.Warn("discarding oversized serial line", "port", s.cfg.Port, "bytes", len(pending))
			pending = pending[:0]
		}
	}
}
