package bus

import (
	"github.com/opencontrols/psgateway/errs"
)

// Commander is what device-side variables (component G) and binding tasks
// (component I) use to talk to the multiplexer: issue a request at a given
// priority, or voluntarily yield the bus turn.
type Commander interface {
	Address() uint8
	Request(priority Priority, cmd string) (string, error)
	Yield()
}

type commander struct {
	h *Handle
}

// NewCommander adapts a Handle into a Commander.
func NewCommander(h *Handle) Commander {
	return &commander{h: h}
}

func (c *commander) Address() uint8 { return uint8(c.h.Addr) }

// Request sends cmd at the given priority and waits for the multiplexer's
// reply. A dropped request (device offline, or the multiplexer otherwise
// gave up) surfaces as errs.NoResponse, per spec.md §4.G/§7.
func (c *commander) Request(priority Priority, cmd string) (string, error) {
	req := newCmdRequest(uint8(c.h.Addr), cmd)
	switch priority {
	case Immediate:
		// Wake the scheduler out of any offline backoff sleep before
		// handing it the actual request; the wake-up channel carries no
		// payload, so it never consumes the *cmdRequest itself.
		select {
		case c.h.immediatePending <- struct{}{}:
		default:
		}
		c.h.immediate <- req
	default:
		c.h.queued <- req
	}
	res, ok := req.await()
	if !ok {
		return "", &errs.NoResponse{}
	}
	return res.Resp, res.Err
}

// Yield voluntarily relinquishes the caller's current bus turn, used by
// input bindings between polls so a fast poller does not monopolize the
// bus (spec.md §4.I).
func (c *commander) Yield() {
	c.h.queued <- newYieldMarker()
}
