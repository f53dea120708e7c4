// Package tcpline implements transport.Stream over a TCP socket, for
// deployments where the bus runs over a serial-to-Ethernet bridge instead
// of a local serial port.
package tcpline

import (
	"net"
	"time"

	"github.com/opencontrols/psgateway/transport"
)

type conn struct {
	c *net.TCPConn
}

// Dial connects to a TCP serial bridge at addr ("host:port").
func Dial(addr string) (transport.Stream, error) {
	raddr, err := net.ResolveTCPAddr("tcp", addr)
	if err != nil {
		return nil, err
	}
	c, err := net.DialTCP("tcp", nil, raddr)
	if err != nil {
		return nil, err
	}
	if err := c.SetKeepAlive(true); err != nil {
		c.Close()
		return nil, err
	}
	if err := c.SetKeepAlivePeriod(30 * time.Second); err != nil {
		c.Close()
		return nil, err
	}
	if err := c.SetNoDelay(true); err != nil {
		c.Close()
		return nil, err
	}
	return &conn{c: c}, nil
}

func (c *conn) Read(p []byte) (int, error)             { return c.c.Read(p) }
func (c *conn) Write(p []byte) (int, error)            { return c.c.Write(p) }
func (c *conn) Close() error                           { return c.c.Close() }
func (c *conn) SetReadDeadline(t time.Time) error      { return c.c.SetReadDeadline(t) }

// Flush drains whatever is already sitting in the socket's receive buffer
// without blocking for more.
func (c *conn) Flush() error {
	if err := c.c.SetReadDeadline(time.Now()); err != nil {
		return err
	}
	defer c.c.SetReadDeadline(time.Time{})
	buf := make([]byte, 256)
	for {
		n, err := c.c.Read(buf)
		if n == 0 || err != nil {
			return nil
		}
	}
}
