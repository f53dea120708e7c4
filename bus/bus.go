// Package bus implements the multiplexer (component D) and the
// request-response channels it shares with its clients (component E): the
// cooperative scheduler owning the serial port, arbitrating immediate and
// queued traffic, addressing devices, and demultiplexing in-band SRQ bytes
// into per-client lifecycle signals.
package bus

import (
	"log/slog"
	"time"

	"github.com/opencontrols/psgateway/addrconn"
	"github.com/opencontrols/psgateway/sched"
)

// Priority distinguishes latency-sensitive set-point writes (Immediate)
// from background polling traffic (Queued).
type Priority int

const (
	Queued Priority = iota
	Immediate
)

// Signal is the three-valued per-device lifecycle event the multiplexer
// pushes to a device's supervisor.
type Signal int

const (
	SigOn Signal = iota
	SigOff
	SigIntr
)

func (s Signal) String() string {
	switch s {
	case SigOn:
		return "on"
	case SigOff:
		return "off"
	case SigIntr:
		return "intr"
	default:
		return "unknown"
	}
}

// YieldTimeout bounds a single client's residency on the bus per turn.
var YieldTimeout = time.Second

// clientRecord is the multiplexer's private bookkeeping for one
// registered address: the responder side of the client's queued-request
// channel, and the sender side of its signal channel. The multiplexer is
// the sole owner of both.
type clientRecord struct {
	addr   addrconn.Address
	queued chan *cmdRequest
	signal chan Signal
}

// addresser is the subset of addrconn.Conn the multiplexer drives.
type addresser interface {
	Request(addr addrconn.Address, cmd string) (string, error)
	IsOnline(addr addrconn.Address) (bool, error)
}

// Mux is the bus multiplexer. Construct with New, register clients with
// AddClient, then run it on its own goroutine with Run.
type Mux struct {
	addrConn  addresser
	scheduler scheduler
	clients   map[addrconn.Address]*clientRecord
	immediate chan *cmdRequest

	// immediatePending wakes the scheduler out of an offline backoff sleep
	// when an immediate request arrives; it carries no payload of its own
	// so waking it never consumes the *cmdRequest itself, which is only
	// ever read off immediate.
	immediatePending chan struct{}

	srq <-chan byte
	log *slog.Logger
}

// scheduler is the subset of *sched.Scheduler the multiplexer drives,
// named locally so tests can substitute a fake.
type scheduler interface {
	Current(interrupt <-chan struct{}) (*sched.Guard, bool)
}

// New builds a multiplexer over addrConn (component B) and a scheduler
// seeded with the addresses that will be registered. srq is the decoded
// SRQ byte channel from the framed line connection (component A).
func New(addrConn addresser, s *sched.Scheduler, srq <-chan byte, log *slog.Logger) *Mux {
	if log == nil {
		log = slog.Default()
	}
	return &Mux{
		addrConn:         addrConn,
		scheduler:        schedAdapter{s},
		clients:          make(map[addrconn.Address]*clientRecord),
		immediate:        make(chan *cmdRequest),
		immediatePending: make(chan struct{}, 1),
		srq:              srq,
		log:              log,
	}
}

type schedAdapter struct{ s *sched.Scheduler }

func (a schedAdapter) Current(interrupt <-chan struct{}) (*sched.Guard, bool) {
	return a.s.Current(interrupt)
}

// Handle is what a device's commander is built from: the requester side
// of its queued channel, shared references to the global immediate
// channel and its wake-up signal, and the receiver side of its signal
// channel.
type Handle struct {
	Addr             addrconn.Address
	queued           chan<- *cmdRequest
	immediate        chan<- *cmdRequest
	immediatePending chan<- struct{}
	Signals          <-chan Signal
}

// AddClient registers addr with the multiplexer, returning a Handle, or
// (nil, false) if addr is already registered — address uniqueness is
// enforced at registration time.
func (m *Mux) AddClient(addr addrconn.Address) (*Handle, bool) {
	if _, exists := m.clients[addr]; exists {
		return nil, false
	}
	rec := &clientRecord{
		addr:   addr,
		queued: make(chan *cmdRequest),
		signal: make(chan Signal, 4),
	}
	m.clients[addr] = rec
	return &Handle{
		Addr:             addr,
		queued:           rec.queued,
		immediate:        m.immediate,
		immediatePending: m.immediatePending,
		Signals:          rec.signal,
	}, true
}

// Run services clients until stop is closed. It is meant to run on its
// own goroutine for the lifetime of the process.
func (m *Mux) Run(stop <-chan struct{}) {
	go m.drainSRQ(stop)

	for {
		select {
		case <-stop:
			return
		default:
		}

		select {
		case req := <-m.immediate:
			m.handleImmediate(req)
			continue
		default:
		}

		guard, ok := m.scheduler.Current(m.immediatePending)
		if !ok {
			// Interrupted by a pending immediate request; service it and
			// re-derive a guard next iteration.
			continue
		}

		rec, known := m.clients[guard.Address()]
		if !known {
			// Address was selected by the scheduler but never registered
			// as a client; nothing to do but put it back offline.
			guard.YieldOffline()
			continue
		}

		if guard.WasOnline() {
			m.serviceOnline(guard, rec)
		} else {
			m.serviceOffline(guard, rec)
		}
	}
}

func (m *Mux) handleImmediate(req *cmdRequest) {
	// The address an immediate request targets travels with the request
	// via the client that enqueued it; see commander.Request in commander.go, which
	// stashes it on the request before sending.
	resp, err := m.addrConn.Request(addrconn.Address(req.addr()), req.cmd)
	if err != nil {
		m.log.Warn("immediate request failed", "addr", req.addr(), "cmd", req.cmd, "err", err)
		req.drop()
		return
	}
	req.respond(CmdResult{Resp: resp})
}

func (m *Mux) serviceOnline(guard *sched.Guard, rec *clientRecord) {
	timer := time.NewTimer(YieldTimeout)
	defer timer.Stop()

	select {
	case req := <-m.immediate:
		m.handleImmediate(req)
		guard.YieldOnline()
	case req := <-rec.queued:
		if req.yield {
			guard.YieldOnline()
			return
		}
		resp, err := m.addrConn.Request(guard.Address(), req.cmd)
		if err != nil {
			m.log.Warn("queued request failed, marking offline", "addr", guard.Address(), "err", err)
			req.drop()
			m.sendSignal(rec, SigOff)
			guard.YieldOffline()
			return
		}
		req.respond(CmdResult{Resp: resp})
		guard.YieldOnline()
	case <-timer.C:
		guard.YieldOnline()
	}
}

func (m *Mux) serviceOffline(guard *sched.Guard, rec *clientRecord) {
	m.drainPending(rec)

	online, err := m.addrConn.IsOnline(guard.Address())
	if err != nil {
		m.log.Debug("liveness probe failed", "addr", guard.Address(), "err", err)
		guard.YieldOffline()
		return
	}
	if online {
		m.sendSignal(rec, SigOn)
		guard.YieldOnline()
		return
	}
	guard.YieldOffline()
}

// drainPending drops any queued requests already waiting for an offline
// client without replying; callers observe "no response" per spec.md
// §4.D's offline-queued policy.
func (m *Mux) drainPending(rec *clientRecord) {
	for {
		select {
		case req := <-rec.queued:
			if !req.yield {
				req.drop()
			}
		default:
			return
		}
	}
}

func (m *Mux) sendSignal(rec *clientRecord, sig Signal) {
	select {
	case rec.signal <- sig:
	default:
		m.log.Warn("signal channel full, dropping", "addr", rec.addr, "signal", sig)
	}
}

func (m *Mux) drainSRQ(stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		case b, ok := <-m.srq:
			if !ok {
				return
			}
			addr := addrconn.Address(b)
			rec, known := m.clients[addr]
			if !known {
				m.log.Warn("SRQ for unregistered address dropped", "addr", addr)
				continue
			}
			m.sendSignal(rec, SigIntr)
		}
	}
}
