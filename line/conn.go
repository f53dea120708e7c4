// Package line implements the framed line connection (component A): it
// turns a raw transport.Stream into request/response ASCII-line
// transactions, with SRQ byte-pair extraction, inter-command pacing, and
// timeout/retry.
package line

import (
	"bytes"
	"errors"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/opencontrols/psgateway/errs"
	"github.com/opencontrols/psgateway/transport"
)

// Timing holds the policy constants from spec.md §6.
type Timing struct {
	InterCommandDelay time.Duration
	Timeout           time.Duration
	Retries           int
}

// DefaultTiming matches the spec's defaults: 10ms pacing, 200ms timeout,
// 2 retries.
var DefaultTiming = Timing{
	InterCommandDelay: 10 * time.Millisecond,
	Timeout:           200 * time.Millisecond,
	Retries:           2,
}

// Conn is the framed line connection. It owns the transport exclusively;
// nothing else may call Read/Write on the same stream while a Conn wraps
// it.
type Conn struct {
	stream transport.Stream
	timing Timing
	log    *slog.Logger
	srq    chan byte

	buf     []byte
	readPos int
}

// New wraps stream in a framed line connection. srqBuf sizes the buffered
// channel of decoded SRQ addresses.
func New(stream transport.Stream, timing Timing, log *slog.Logger, srqBuf int) *Conn {
	if log == nil {
		log = slog.Default()
	}
	return &Conn{
		stream: stream,
		timing: timing,
		log:    log,
		srq:    make(chan byte, srqBuf),
		buf:    make([]byte, 0, 256),
	}
}

// SRQ returns the channel on which decoded out-of-band attention bytes
// (0x80|addr, reduced to addr) are delivered.
func (c *Conn) SRQ() <-chan byte { return c.srq }

// Request performs one command/response transaction, with retry/timeout
// per spec.md §4.A. Empty commands and empty responses are rejected.
func (c *Conn) Request(cmd string) (string, error) {
	if cmd == "" {
		return "", errors.New("line: empty command")
	}
	for attempt := 0; attempt <= c.timing.Retries; attempt++ {
		resp, err := c.attempt(cmd)
		if err == nil {
			return resp, nil
		}
		var to *errs.Timeout
		if !errors.As(err, &to) {
			return "", err
		}
		c.log.Warn("line request timed out, retrying", "cmd", cmd, "attempt", attempt+1)
	}
	return "", &errs.Timeout{Attempts: c.timing.Retries + 1}
}

func (c *Conn) attempt(cmd string) (string, error) {
	time.Sleep(c.timing.InterCommandDelay)

	if err := c.stream.Flush(); err != nil {
		c.log.Debug("flushed stale input before request", "cmd", cmd, "err", err)
	}

	if _, err := c.stream.Write([]byte(cmd + "\r")); err != nil {
		return "", &errs.Io{Cause: err}
	}

	deadline := time.Now().Add(c.timing.Timeout)
	if err := c.stream.SetReadDeadline(deadline); err != nil {
		c.log.Debug("backend does not support read deadlines", "err", err)
	}

	c.readPos = 0
	c.buf = c.buf[:0]
	filter := newSRQFilter(c.srq, func(b byte) {
		c.log.Error("unpaired SRQ byte dropped", "byte", b)
	})

	raw := make([]byte, 64)
	for {
		if line, ok := c.extractLine(); ok {
			s, err := decodeLine(line)
			if err != nil {
				return "", err
			}
			return s, nil
		}
		if time.Now().After(deadline) {
			return "", &errs.Timeout{}
		}
		n, err := c.stream.Read(raw)
		if n > 0 {
			c.buf = append(c.buf, filter.filter(raw[:n])...)
		}
		if err != nil {
			return "", &errs.Io{Cause: err}
		}
		if n == 0 {
			// Read timed out at the backend's own granularity; loop and
			// re-check our deadline.
			continue
		}
	}
}

// extractLine pulls one \r-terminated line out of the accumulated buffer,
// if one is available, discarding empty lines per spec.md §6.
func (c *Conn) extractLine() ([]byte, bool) {
	for {
		idx := bytes.IndexByte(c.buf[c.readPos:], '\r')
		if idx < 0 {
			return nil, false
		}
		line := c.buf[c.readPos : c.readPos+idx]
		c.readPos += idx + 1
		if len(line) == 0 {
			continue
		}
		return line, true
	}
}

func decodeLine(b []byte) (string, error) {
	if !utf8.Valid(b) {
		return "", &errs.Decode{Cause: errors.New("invalid utf-8")}
	}
	return string(b), nil
}
