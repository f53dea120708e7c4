// Package devvar implements the device-side variable (component G): a
// typed read/write over a bus.Commander, translating through a
// parser.Adapter.
package devvar

import (
	"fmt"

	"github.com/opencontrols/psgateway/bus"
	"github.com/opencontrols/psgateway/errs"
	"github.com/opencontrols/psgateway/parser"
)

// Var is a single device-side command, e.g. "PV" bound to a float64
// set-voltage parser.
type Var[T any] struct {
	commander bus.Commander
	name      string
	adapter   parser.Adapter[T]
}

// New binds name (e.g. "PV", "OUT") to commander using adapter.
func New[T any](commander bus.Commander, name string, adapter parser.Adapter[T]) *Var[T] {
	return &Var[T]{commander: commander, name: name, adapter: adapter}
}

// Read queries "<name>?" at the given priority and parses the reply.
func (v *Var[T]) Read(priority bus.Priority) (T, error) {
	var zero T
	resp, err := v.commander.Request(priority, v.name+"?")
	if err != nil {
		return zero, err
	}
	parsed, err := v.adapter.Load(resp)
	if err != nil {
		return zero, &errs.Parse{Response: resp}
	}
	return parsed, nil
}

// Write sends "<name> <value>" at the given priority, requiring an exact
// "OK" reply.
func (v *Var[T]) Write(value T, priority bus.Priority) error {
	resp, err := v.commander.Request(priority, fmt.Sprintf("%s %s", v.name, v.adapter.Store(value)))
	if err != nil {
		return err
	}
	if resp != "OK" {
		return &errs.Parse{Response: resp}
	}
	return nil
}
