package supervisor

import (
	"log/slog"

	"github.com/opencontrols/psgateway/bus"
)

// Supervisor is the per-device consumer of a bus.Signal stream (component
// J). It owns the device's Gate and is the only writer to it.
type Supervisor struct {
	addr   uint8
	gate   *Gate
	signal <-chan bus.Signal
	log    *slog.Logger
}

// New builds a supervisor for handle, which must come from bus.Mux.AddClient.
func New(handle *bus.Handle, log *slog.Logger) *Supervisor {
	return NewFromSignal(uint8(handle.Addr), handle.Signals, log)
}

// NewFromSignal builds a supervisor directly over a signal channel,
// independent of bus.Handle, for use by tests and by callers with their
// own client bookkeeping.
func NewFromSignal(addr uint8, signal <-chan bus.Signal, log *slog.Logger) *Supervisor {
	if log == nil {
		log = slog.Default()
	}
	return &Supervisor{
		addr:   addr,
		gate:   NewGate(),
		signal: signal,
		log:    log,
	}
}

// Gate returns the boolean gate binding tasks should observe.
func (s *Supervisor) Gate() *Gate { return s.gate }

// Run consumes signals until stop is closed or the signal channel closes.
// Meant to run on its own goroutine, one per device, for the life of the
// process.
func (s *Supervisor) Run(stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		case sig, ok := <-s.signal:
			if !ok {
				return
			}
			s.handle(sig)
		}
	}
}

func (s *Supervisor) handle(sig bus.Signal) {
	switch sig {
	case bus.SigOn:
		if !s.gate.Set(true) {
			s.log.Warn("device signaled on while already online", "addr", s.addr)
		}
	case bus.SigOff:
		if !s.gate.Set(false) {
			s.log.Warn("device signaled off while already offline", "addr", s.addr)
		}
	case bus.SigIntr:
		s.log.Info("SRQ from device", "addr", s.addr)
	}
}
