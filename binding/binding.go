// Package binding implements the three parameter-binding task shapes
// (component I): init-only, input, and output. Each is a small state
// machine gated on a supervisor.Gate, moving values between a device-side
// devvar.Var and an interface-side ifacevar.Var.
package binding

import (
	"context"
	"log/slog"

	"github.com/opencontrols/psgateway/bus"
	"github.com/opencontrols/psgateway/devvar"
	"github.com/opencontrols/psgateway/errs"
	"github.com/opencontrols/psgateway/ifacevar"
	"github.com/opencontrols/psgateway/supervisor"
)

// InitOnly reads the device once per gate-rising edge (e.g. the serial
// number, which does not change while the device is online) and
// republishes it to the interface.
type InitOnly[T any] struct {
	Name   string
	Device *devvar.Var[T]
	Iface  *ifacevar.Var[T]
	Gate   *supervisor.Gate
	Log    *slog.Logger
}

// Run blocks until ctx is done, alternating between waiting for the gate
// to rise and performing the single read-then-publish.
func (b *InitOnly[T]) Run(ctx context.Context) {
	log := logOrDefault(b.Log)
	state := false
	for {
		if !waitFor(ctx, b.Gate, state, true) {
			return
		}
		state = true
		value, err := b.Device.Read(bus.Queued)
		if err != nil {
			log.Warn("init-only read failed", "name", b.Name, "err", err)
		}
		if werr := b.Iface.Write(ctx, value, err); werr != nil {
			log.Warn("init-only publish failed", "name", b.Name, "err", werr)
		}
		if !waitFor(ctx, b.Gate, state, false) {
			return
		}
		state = false
	}
}

// Input polls the device while the gate is up, yielding between polls,
// and publishes errs.NoResponse when the gate drops.
type Input[T any] struct {
	Name   string
	Device *devvar.Var[T]
	Iface  *ifacevar.Var[T]
	Gate   *supervisor.Gate
	Cmdr   bus.Commander
	Log    *slog.Logger
}

func (b *Input[T]) Run(ctx context.Context) {
	log := logOrDefault(b.Log)
	state := false
	for {
		if !waitFor(ctx, b.Gate, state, true) {
			return
		}
		state = true
		for b.Gate.Value() {
			if ctx.Err() != nil {
				return
			}
			value, err := b.Device.Read(bus.Queued)
			if err != nil {
				log.Debug("input read failed", "name", b.Name, "err", err)
			}
			if werr := b.Iface.Write(ctx, value, err); werr != nil {
				log.Warn("input publish failed", "name", b.Name, "err", werr)
			}
			b.Cmdr.Yield()
		}
		state = false
		var zero T
		if werr := b.Iface.Write(ctx, zero, &errs.NoResponse{}); werr != nil {
			log.Warn("input stop publish failed", "name", b.Name, "err", werr)
		}
		if !waitFor(ctx, b.Gate, state, false) {
			return
		}
	}
}

// Output initializes from the device on gate-rising, then shuttles
// interface-originated set-point writes to the device at Immediate
// priority until the gate drops.
type Output[T any] struct {
	Name   string
	Device *devvar.Var[T]
	Iface  *ifacevar.Var[T]
	Gate   *supervisor.Gate
	Log    *slog.Logger
}

func (b *Output[T]) Run(ctx context.Context) {
	log := logOrDefault(b.Log)
	state := false
	for {
		if !waitFor(ctx, b.Gate, state, true) {
			return
		}
		state = true

		value, err := b.Device.Read(bus.Queued)
		if err != nil {
			log.Warn("output init read failed", "name", b.Name, "err", err)
		}
		if werr := b.Iface.Write(ctx, value, err); werr != nil {
			log.Warn("output init publish failed", "name", b.Name, "err", werr)
		}

		if !b.serviceWrites(ctx) {
			return
		}
		state = false
		var zero T
		if werr := b.Iface.Write(ctx, zero, &errs.NoResponse{}); werr != nil {
			log.Warn("output stop publish failed", "name", b.Name, "err", werr)
		}
		if !waitFor(ctx, b.Gate, state, false) {
			return
		}
	}
}

// serviceWrites races an interface read-guard against the gate dropping.
// It returns false if ctx was canceled (caller should stop entirely), or
// true after the gate dropped (caller resumes the outer Stopped wait).
func (b *Output[T]) serviceWrites(ctx context.Context) bool {
	log := logOrDefault(b.Log)
	for {
		guardCtx, cancel := context.WithCancel(ctx)
		dropped := make(chan struct{})
		go func() {
			// Watch guardCtx, not ctx: once Iface.Read below returns (guard
			// acquired) the caller cancels guardCtx to release this watcher,
			// which would never happen if it were blocked on the outer ctx.
			b.Gate.NextCtx(guardCtx, true)
			cancel()
			close(dropped)
		}()

		guard, err := b.Iface.Read(guardCtx)
		cancel()
		<-dropped

		if ctx.Err() != nil {
			return false
		}
		if err != nil {
			// guardCtx was canceled because the gate dropped, not because the
			// outer context died.
			return true
		}

		if werr := b.Device.Write(guard.Value(), bus.Immediate); werr != nil {
			guard.Reject(werr.Error())
			log.Debug("output write rejected", "name", b.Name, "err", werr)
			continue
		}
		guard.Accept()
	}
}

func logOrDefault(log *slog.Logger) *slog.Logger {
	if log == nil {
		return slog.Default()
	}
	return log
}

// waitFor blocks until the gate's value equals want (returning at once if
// it already does), or ctx is done (returns false). current is the value
// the caller last observed, used as the starting point for Gate.NextCtx.
func waitFor(ctx context.Context, gate *supervisor.Gate, current, want bool) bool {
	for gate.Value() != want {
		v, ok := gate.NextCtx(ctx, current)
		if !ok {
			return false
		}
		current = v
	}
	return true
}
