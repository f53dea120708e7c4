// Package ifacevar implements the interface-side variable (component H)
// and the boundary types through which it talks to the external
// interface-variable library: Registry, Variable, RawReadGuard and
// RawWriteGuard. Per spec.md §1, the real library is a collaborator whose
// only obligation is this interface; this package also ships a minimal
// in-process Registry (StaticRegistry) so the gateway is runnable without
// one attached.
package ifacevar

import "context"

// RawKind distinguishes the two payload shapes an interface variable can
// carry: a scalar number, or an opaque byte array presented as a string
// (spec.md §4.F/§4.H: "scalar or byte-array-as-string").
type RawKind int

const (
	RawScalar RawKind = iota
	RawBytes
)

// Raw is the untyped payload crossing the Registry boundary; exactly one
// of Scalar/Bytes is meaningful, selected by Kind.
type Raw struct {
	Kind   RawKind
	Scalar float64
	Bytes  []byte
}

// RawReadGuard is returned by Variable.Acquire: it has snapshotted whatever
// the interface peer most recently wrote, and lets the gateway overwrite
// that snapshot (to publish a rollback value) before committing or
// rejecting.
type RawReadGuard interface {
	Value() Raw
	SetValue(Raw)
	Accept()
	Reject(reason string)
}

// RawWriteGuard is returned by Variable.Request: the gateway sets the value
// it wants to publish, then commits or abandons it.
type RawWriteGuard interface {
	SetValue(Raw)
	Accept()
	Reject(reason string)
}

// Variable is one named interface variable as seen through the library
// boundary.
type Variable interface {
	// Acquire awaits the interface peer writing a new value (output
	// direction: the gateway is about to push that value to the device).
	Acquire(ctx context.Context) (RawReadGuard, error)
	// Request awaits permission to publish a new value (input direction:
	// the gateway has read something off the device and wants to publish
	// it to the interface peer).
	Request(ctx context.Context) (RawWriteGuard, error)
	// IsOutput reports the direction a binding's type must match.
	IsOutput() bool
}

// Registry is the external interface-variable library's lookup surface.
// Take removes and returns the named variable; a second Take of the same
// name returns (nil, false). Startup must Take every expected name; any
// name left in the registry afterward is a configuration error.
type Registry interface {
	Take(name string) (Variable, bool)
	// Residual lists whatever names remain untaken, for the startup
	// configuration check.
	Residual() []string
}
