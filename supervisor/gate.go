// Package supervisor implements the per-device supervisor (component J):
// it consumes a device's bus.Signal stream and drives a boolean gate that
// binding tasks observe (component I). Modeled on the subscribe/notify
// shape of jangala-dev-devicecode-go's bus.Subscription, narrowed to a
// single retained boolean instead of a general pub/sub topic tree.
package supervisor

import (
	"context"
	"sync"
)

// Gate is a watched boolean: readers either sample the current value or
// block until the next transition. There is no queue of historical
// values, only the latest one, matching spec.md's `watch<bool>`.
type Gate struct {
	mu      sync.Mutex
	value   bool
	waiters chan struct{}
}

// NewGate creates a gate in the closed (false) state.
func NewGate() *Gate {
	return &Gate{waiters: make(chan struct{})}
}

// Value reports the current gate state.
func (g *Gate) Value() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.value
}

// Set updates the gate state, waking every task blocked in Next. Returns
// true if this changed the value (the caller logs a warning when it
// didn't, per spec.md's "already true/false" cases).
func (g *Gate) Set(v bool) bool {
	g.mu.Lock()
	changed := g.value != v
	g.value = v
	waiters := g.waiters
	g.waiters = make(chan struct{})
	g.mu.Unlock()
	close(waiters)
	return changed
}

// Next blocks until the gate transitions away from from, returning the
// new value. A binding task calls this with the value it last observed.
func (g *Gate) Next(from bool) bool {
	v, _ := g.NextCtx(context.Background(), from)
	return v
}

// NextCtx is Next, abortable via ctx; it returns (value, false) if ctx is
// done before a transition away from from is observed.
func (g *Gate) NextCtx(ctx context.Context, from bool) (bool, bool) {
	for {
		g.mu.Lock()
		v := g.value
		waiters := g.waiters
		g.mu.Unlock()
		if v != from {
			return v, true
		}
		select {
		case <-waiters:
		case <-ctx.Done():
			return from, false
		}
	}
}
