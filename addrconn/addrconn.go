// Package addrconn implements the addressed connection (component B): it
// wraps a framed line connection with a cached "currently addressed
// device" so that ADR is only issued on change, and it exposes a liveness
// probe used by the scheduler to re-admit offline devices.
package addrconn

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/opencontrols/psgateway/errs"
)

// Address identifies one device on the bus.
type Address uint8

// Requester is the subset of *line.Conn the addressed connection needs;
// modeled as an interface so tests can substitute a fake line connection.
type Requester interface {
	Request(cmd string) (string, error)
}

// Conn caches the last successfully addressed device and issues ADR only
// when the target changes.
type Conn struct {
	line   Requester
	log    *slog.Logger
	active *Address
}

// New wraps a line connection.
func New(line Requester, log *slog.Logger) *Conn {
	if log == nil {
		log = slog.Default()
	}
	return &Conn{line: line, log: log}
}

// Request ensures addr is addressed, then issues cmd against it.
func (c *Conn) Request(addr Address, cmd string) (string, error) {
	if c.active == nil || *c.active != addr {
		if err := c.address(addr); err != nil {
			return "", err
		}
	}
	resp, err := c.line.Request(cmd)
	if err != nil {
		c.active = nil
		return "", err
	}
	return resp, nil
}

func (c *Conn) address(addr Address) error {
	resp, err := c.line.Request(fmt.Sprintf("ADR %d", addr))
	if err != nil {
		c.active = nil
		return err
	}
	if resp != "OK" {
		c.active = nil
		return &errs.Device{Response: resp}
	}
	a := addr
	c.active = &a
	return nil
}

// IsOnline probes addr with a fresh ADR, clearing the active cache first.
// A timeout means the device is offline (false, nil error); any other
// non-OK response is a Device error; transport errors propagate.
func (c *Conn) IsOnline(addr Address) (bool, error) {
	c.active = nil
	resp, err := c.line.Request(fmt.Sprintf("ADR %d", addr))
	if err != nil {
		var to *errs.Timeout
		if errors.As(err, &to) {
			return false, nil
		}
		return false, err
	}
	if resp != "OK" {
		return false, &errs.Device{Response: resp}
	}
	a := addr
	c.active = &a
	return true, nil
}
