// Package transport defines the byte-stream boundary the bus multiplexer
// consumes. The multiplexer never knows whether it is talking to a real
// serial port, a TCP socket, or the in-process device emulator.
package transport

import (
	"io"
	"time"
)

// Stream is the async byte stream the framed line connection reads and
// writes. Flush discards any bytes currently buffered for read without
// blocking for more to arrive; it is used to clear stale bytes left over
// from a previous, abandoned transaction before a new request is sent.
// SetReadDeadline bounds the next Read call(s), the same way net.Conn does,
// so the framed line connection can enforce its per-attempt timeout
// regardless of backend.
type Stream interface {
	io.Reader
	io.Writer
	Flush() error
	Close() error
	SetReadDeadline(t time.Time) error
}
