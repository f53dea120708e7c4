// Package parser implements the device-side ASCII<->typed value adapters
// (component F): numeric, two-spelling boolean, and pass-through string.
package parser

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/opencontrols/psgateway/addrconn"
)

// Adapter converts between a device's textual wire representation and a
// typed Go value. Every implementation must round-trip: Load(Store(v))
// == v for every v in its domain.
type Adapter[T any] interface {
	Load(s string) (T, error)
	Store(v T) string
}

// Numeric parses/formats float64 values using Go's canonical textual
// form. Devices that only ever send integers (e.g. a boolean-like 0/1)
// still parse cleanly as float64.
type Numeric struct{}

func (Numeric) Load(s string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, fmt.Errorf("numeric parse %q: %w", s, err)
	}
	return v, nil
}

func (Numeric) Store(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// Bool adapts the output-enable field's two device-family spellings (e.g.
// OFF/ON for address 0, 0/1 for addresses >= 1) onto 0/1 ints.
type Bool struct {
	False string
	True  string
}

// BoolSpellingFor selects the boolean spelling for addr, per spec.md §6:
// address 0 uses OFF/ON, every other address uses 0/1.
func BoolSpellingFor(addr addrconn.Address) Bool {
	if addr == 0 {
		return Bool{False: "OFF", True: "ON"}
	}
	return Bool{False: "0", True: "1"}
}

func (b Bool) Load(s string) (int, error) {
	switch s {
	case b.False:
		return 0, nil
	case b.True:
		return 1, nil
	default:
		return 0, fmt.Errorf("unrecognized boolean spelling %q (want %q/%q)", s, b.False, b.True)
	}
}

func (b Bool) Store(v int) string {
	if v == 0 {
		return b.False
	}
	return b.True
}

// Identity passes bytes through unchanged; used for the serial number.
type Identity struct{}

func (Identity) Load(s string) (string, error) { return s, nil }
func (Identity) Store(v string) string         { return v }
