package ifacevar

import (
	"context"
	"sync"
)

// StaticRegistry is a minimal, in-process Registry: enough to run the
// gateway standalone, or to drive it in tests, without a real external
// interface-variable system attached. Each variable is a single mailbox
// slot guarded by a mutex; Acquire blocks until Poke (the "peer writes a
// new value" side, exercised by test code or an external bridge) fills
// it, and Request grants permission to publish immediately since nothing
// in this minimal registry ever contends for it.
type StaticRegistry struct {
	mu    sync.Mutex
	vars  map[string]*staticVar
	all   map[string]*staticVar
}

// NewStaticRegistry builds a registry with one output-direction variable
// per name in outputs and one input-direction variable per name in
// inputs.
func NewStaticRegistry(outputs, inputs []string) *StaticRegistry {
	r := &StaticRegistry{vars: make(map[string]*staticVar)}
	for _, n := range outputs {
		r.vars[n] = newStaticVar(true)
	}
	for _, n := range inputs {
		r.vars[n] = newStaticVar(false)
	}
	r.all = make(map[string]*staticVar, len(r.vars))
	for n, v := range r.vars {
		r.all[n] = v
	}
	return r
}

func (r *StaticRegistry) Take(name string) (Variable, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.vars[name]
	if !ok {
		return nil, false
	}
	delete(r.vars, name)
	return v, true
}

func (r *StaticRegistry) Residual() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.vars))
	for n := range r.vars {
		names = append(names, n)
	}
	return names
}

// Poke looks the named variable up directly (bypassing Take) for use by
// test code and any bridge process driving the standalone registry,
// simulating the external peer writing a new set-point.
func (r *StaticRegistry) Poke(name string, v Raw) bool {
	r.mu.Lock()
	sv, ok := r.all[name]
	r.mu.Unlock()
	if !ok {
		return false
	}
	sv.poke(v)
	return true
}

type staticVar struct {
	isOutput bool
	mu       sync.Mutex
	value    Raw
	waiters  chan struct{}
}

func newStaticVar(isOutput bool) *staticVar {
	return &staticVar{isOutput: isOutput, waiters: make(chan struct{}, 1)}
}

func (v *staticVar) IsOutput() bool { return v.isOutput }

func (v *staticVar) poke(r Raw) {
	v.mu.Lock()
	v.value = r
	v.mu.Unlock()
	select {
	case v.waiters <- struct{}{}:
	default:
	}
}

func (v *staticVar) Acquire(ctx context.Context) (RawReadGuard, error) {
	select {
	case <-v.waiters:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	return &staticReadGuard{v: v, snapshot: v.value}, nil
}

func (v *staticVar) Request(ctx context.Context) (RawWriteGuard, error) {
	return &staticWriteGuard{v: v}, nil
}

type staticReadGuard struct {
	v        *staticVar
	snapshot Raw
}

func (g *staticReadGuard) Value() Raw      { return g.snapshot }
func (g *staticReadGuard) SetValue(r Raw)  { g.snapshot = r }
func (g *staticReadGuard) Accept() {
	g.v.mu.Lock()
	g.v.value = g.snapshot
	g.v.mu.Unlock()
}
func (g *staticReadGuard) Reject(reason string) {}

type staticWriteGuard struct {
	v     *staticVar
	value Raw
}

func (g *staticWriteGuard) SetValue(r Raw) { g.value = r }
func (g *staticWriteGuard) Accept() {
	g.v.mu.Lock()
	g.v.value = g.value
	g.v.mu.Unlock()
}
func (g *staticWriteGuard) Reject(reason string) {}
