package binding

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/opencontrols/psgateway/bus"
	"github.com/opencontrols/psgateway/devvar"
	"github.com/opencontrols/psgateway/errs"
	"github.com/opencontrols/psgateway/ifacevar"
	"github.com/opencontrols/psgateway/parser"
	"github.com/opencontrols/psgateway/supervisor"
)

type fakeCommander struct {
	mu      sync.Mutex
	resp    string
	err     error
	lastCmd string
}

func (c *fakeCommander) Address() uint8 { return 1 }
func (c *fakeCommander) Request(priority bus.Priority, cmd string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastCmd = cmd
	return c.resp, c.err
}
func (c *fakeCommander) Yield() {}

func (c *fakeCommander) lastCommand() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastCmd
}

func (c *fakeCommander) setResponse(resp string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resp = resp
}

func TestInitOnlyReadsOncePerGateRise(t *testing.T) {
	cmdr := &fakeCommander{resp: "Emu-3"}
	reg := ifacevar.NewStaticRegistry(nil, []string{"sn"})
	raw, _ := reg.Take("sn")
	iface := ifacevar.New[string](raw, ifacevar.BytesAdapter{})

	gate := supervisor.NewGate()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	b := &InitOnly[string]{
		Name:   "sn",
		Device: devvar.New(cmdr, "SN", parser.Identity{}),
		Iface:  iface,
		Gate:   gate,
	}
	go b.Run(ctx)

	gate.Set(true)
	time.Sleep(20 * time.Millisecond)
	if got, ok := iface.LastValue(); !ok || got != "Emu-3" {
		t.Fatalf("LastValue() = %v, %v, want Emu-3, true", got, ok)
	}
}

func TestInputPublishesNoResponseWhenGateDrops(t *testing.T) {
	cmdr := &fakeCommander{resp: "3.3"}
	reg := ifacevar.NewStaticRegistry(nil, []string{"volt_real"})
	raw, _ := reg.Take("volt_real")
	iface := ifacevar.New[float64](raw, ifacevar.ScalarAdapter{})

	gate := supervisor.NewGate()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	b := &Input[float64]{
		Name:   "volt_real",
		Device: devvar.New(cmdr, "MV", parser.Numeric{}),
		Iface:  iface,
		Gate:   gate,
		Cmdr:   cmdr,
	}
	go b.Run(ctx)

	gate.Set(true)
	time.Sleep(20 * time.Millisecond)
	if got, ok := iface.LastValue(); !ok || got != 3.3 {
		t.Fatalf("LastValue() while online = %v, %v, want 3.3, true", got, ok)
	}

	gate.Set(false)
	time.Sleep(20 * time.Millisecond)
	// A rejected publish (errs.NoResponse) does not move last_value: it
	// stays at the last accepted reading rather than resetting to zero.
	if got, ok := iface.LastValue(); !ok || got != 3.3 {
		t.Fatalf("LastValue() after gate drop = %v, %v, want 3.3, true (unchanged)", got, ok)
	}
}

func TestOutputAppliesInterfaceWritesToDevice(t *testing.T) {
	cmdr := &fakeCommander{resp: "0"}
	reg := ifacevar.NewStaticRegistry([]string{"out_ena"}, nil)
	raw, _ := reg.Take("out_ena")
	iface := ifacevar.New[int](raw, ifacevar.IntScalarAdapter{})

	gate := supervisor.NewGate()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	b := &Output[int]{
		Name:   "out_ena",
		Device: devvar.New(cmdr, "OUT", parser.Bool{False: "0", True: "1"}),
		Iface:  iface,
		Gate:   gate,
	}
	go b.Run(ctx)

	gate.Set(true)
	time.Sleep(20 * time.Millisecond)
	if got, ok := iface.LastValue(); !ok || got != 0 {
		t.Fatalf("LastValue() after init read = %v, %v, want 0, true", got, ok)
	}

	cmdr.setResponse("OK")
	reg.Poke("out_ena", ifacevar.Raw{Kind: ifacevar.RawScalar, Scalar: 1})
	time.Sleep(20 * time.Millisecond)
	if got := cmdr.lastCommand(); got != "OUT 1" {
		t.Fatalf("device command = %q, want %q", got, "OUT 1")
	}
}

func TestFakeCommanderPropagatesError(t *testing.T) {
	cmdr := &fakeCommander{err: &errs.NoResponse{}}
	v := devvar.New[float64](cmdr, "PV", parser.Numeric{})
	_, err := v.Read(bus.Queued)
	if !errors.As(err, new(*errs.NoResponse)) {
		t.Fatalf("expected *errs.NoResponse, got %v", err)
	}
}
