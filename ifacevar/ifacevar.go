package ifacevar

import "context"

// Var is the interface-side variable (component H): a typed variable, an
// adapter, and last_value retention so a rejected write rolls back
// visibly (spec.md §3's invariant: last_value is Some(v) iff some write
// has been accepted on either side and reflects the most recent
// authoritative value).
type Var[T any] struct {
	variable  Variable
	adapter   ValueAdapter[T]
	lastValue *T
}

// New binds variable (taken from a Registry) to adapter.
func New[T any](variable Variable, adapter ValueAdapter[T]) *Var[T] {
	return &Var[T]{variable: variable, adapter: adapter}
}

// Write publishes a read result (or failure) from the device side to the
// interface side: input and init-only bindings call this.
func (v *Var[T]) Write(ctx context.Context, value T, readErr error) error {
	wg, err := v.variable.Request(ctx)
	if err != nil {
		return err
	}
	if readErr != nil {
		wg.Reject(readErr.Error())
		return nil
	}
	wg.SetValue(v.adapter.ToRaw(value))
	wg.Accept()
	v.lastValue = &value
	return nil
}

// ReadGuard wraps the library's ReadGuard with the typed snapshot and
// last_value bookkeeping an output binding needs.
type ReadGuard[T any] struct {
	v        *Var[T]
	guard    RawReadGuard
	snapshot T
}

// Value is the snapshotted set-point the output binding should write to
// the device.
func (g *ReadGuard[T]) Value() T { return g.snapshot }

// Accept commits the snapshotted value back to the interface variable and
// records it as last_value.
func (g *ReadGuard[T]) Accept() {
	snap := g.snapshot
	g.v.lastValue = &snap
	g.guard.SetValue(g.v.adapter.ToRaw(snap))
	g.guard.Accept()
}

// Reject rejects the pending write with reason.
func (g *ReadGuard[T]) Reject(reason string) {
	g.guard.Reject(reason)
}

// LastValue returns the most recently published or accepted value, if
// any. Bindings use this only indirectly (via Read's rollback); callers
// outside the package use it for status reporting.
func (v *Var[T]) LastValue() (T, bool) {
	if v.lastValue == nil {
		var zero T
		return zero, false
	}
	return *v.lastValue, true
}

// Read acquires a read-guard over the current interface value: the
// peer's newly written set-point, which the output binding should push to
// the device. If last_value is present, the guard's *display* is
// overwritten with it so a previously rejected write remains visibly
// rolled back, but the returned snapshot is still the value just
// acquired, not last_value.
func (v *Var[T]) Read(ctx context.Context) (*ReadGuard[T], error) {
	rg, err := v.variable.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	snapshot := v.adapter.FromRaw(rg.Value())
	if v.lastValue != nil {
		rg.SetValue(v.adapter.ToRaw(*v.lastValue))
	}
	return &ReadGuard[T]{v: v, guard: rg, snapshot: snapshot}, nil
}
