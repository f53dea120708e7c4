//go:build linux

// Package serial implements transport.Stream over a local serial device,
// wiring github.com/daedaluz/goserial's raw termios port into the
// gateway's framed-line layer.
package serial

import (
	"time"

	goserial "github.com/daedaluz/goserial"
	"github.com/opencontrols/psgateway/transport"
)

// Config mirrors the handful of serial parameters the bus protocol cares
// about; parity and stop bits are fixed by the device family (8N1) so only
// baud, device path and the per-read timeout (ReadTOs, 50ms when unset)
// are exposed.
type Config struct {
	Device  string
	Baud    int
	ReadTOs time.Duration
}

type port struct {
	p        *goserial.Port
	baseTO   time.Duration
	deadline time.Time
}

// Open opens and configures the serial device for 8N1 raw operation at the
// configured baud rate.
func Open(cfg Config) (transport.Stream, error) {
	readTO := cfg.ReadTOs
	if readTO <= 0 {
		readTO = 50 * time.Millisecond
	}
	opts := goserial.NewOptions().SetReadTimeout(readTO)
	p, err := goserial.Open(cfg.Device, opts)
	if err != nil {
		return nil, err
	}
	attrs, err := p.GetAttr()
	if err != nil {
		p.Close()
		return nil, err
	}
	attrs.MakeRaw()
	attrs.SetSpeed(baudFlag(cfg.Baud))
	if err := p.SetAttr(goserial.TCSANOW, attrs); err != nil {
		p.Close()
		return nil, err
	}
	return &port{p: p, baseTO: readTO}, nil
}

// Read honours the most recent SetReadDeadline by shrinking the port's
// per-call read timeout to whatever time remains, so a caller looping
// Read until a deadline gets bounded total wall time even though the
// underlying termios timeout is per-call, not absolute.
func (s *port) Read(b []byte) (int, error) {
	if !s.deadline.IsZero() {
		remaining := time.Until(s.deadline)
		if remaining <= 0 {
			return 0, nil
		}
		if remaining < s.baseTO {
			s.p.SetReadTimeout(remaining)
			defer s.p.SetReadTimeout(s.baseTO)
		}
	}
	return s.p.Read(b)
}

func (s *port) Write(b []byte) (int, error) { return s.p.Write(b) }
func (s *port) Close() error                { return s.p.Close() }
func (s *port) Flush() error                { return s.p.Flush(goserial.TCIFLUSH) }

func (s *port) SetReadDeadline(t time.Time) error {
	s.deadline = t
	return nil
}

func baudFlag(baud int) goserial.CFlag {
	switch baud {
	case 1200:
		return goserial.B1200
	case 2400:
		return goserial.B2400
	case 4800:
		return goserial.B4800
	case 19200:
		return goserial.B19200
	case 38400:
		return goserial.B38400
	case 57600:
		return goserial.B57600
	case 115200:
		return goserial.B115200
	default:
		return goserial.B9600
	}
}
