package transport

import (
	"context"
	"fmt"
	"os"
	"time"

	"go.bug.st/serial"
)

// Serial drives a KISS TNC over a local tty at a configured baud rate,
// 8 data bits, no parity, one stop bit (8N1), per §4.2.
type Serial struct {
	base
	Port string
	Baud int

	port serial.Port
}

// NewSerial constructs a Serial transport for the given device path and
// baud rate (1200..115200 per §4.2).
func NewSerial(port string, baud int) *Serial {
	return &Serial{Port: port, Baud: baud}
}

func (s *Serial) Open(ctx context.Context) error {
	return s.runWithReconnect(ctx, s.dial)
}

func (s *Serial) dial(ctx context.Context) (pump func(context.Context) error, closeFn func() error, err error) {
	mode := &serial.Mode{
		BaudRate: s.Baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	p, err := serial.Open(s.Port, mode)
	if err != nil {
		if isPermissionError(err) {
			return nil, nil, &ErrFatal{Err: err}
		}
		return nil, nil, fmt.Errorf("transport: open serial %s: %w", s.Port, err)
	}
	s.port = p

	pump = func(ctx context.Context) error {
		buf := make([]byte, 4096)
		_ = p.SetReadTimeout(500 * time.Millisecond)
		for {
			if ctx.Err() != nil {
				return nil
			}
			n, err := p.Read(buf)
			if err != nil {
				return fmt.Errorf("transport: serial read: %w", err)
			}
			if n == 0 {
				continue // read timeout, no data yet
			}
			s.deliverBytes(append([]byte(nil), buf[:n]...))
		}
	}
	closeFn = p.Close
	return pump, closeFn, nil
}

func (s *Serial) Send(frame []byte) error {
	if s.port == nil {
		return fmt.Errorf("transport: serial not open")
	}
	_, err := s.port.Write(frame)
	return err
}

func (s *Serial) Close() error {
	s.closed.Store(true)
	if s.port != nil {
		return s.port.Close()
	}
	return nil
}

// isPermissionError reports whether opening the port failed because of an
// OS-level permission problem (e.g. the user isn't in the dialout group).
// Per §4.2, permission errors are fatal to the transport rather than
// retried; everything else is treated as transient.
func isPermissionError(err error) bool {
	return os.IsPermission(err)
}
