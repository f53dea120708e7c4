package bus

import (
	"errors"
	"testing"

	"github.com/opencontrols/psgateway/addrconn"
	"github.com/opencontrols/psgateway/errs"
	"github.com/opencontrols/psgateway/sched"
)

func TestCommanderRequestRoundTrip(t *testing.T) {
	queued := make(chan *cmdRequest)
	h := &Handle{Addr: 1, queued: queued, immediate: make(chan *cmdRequest)}
	cmdr := NewCommander(h)

	go func() {
		req := <-queued
		if req.cmd != "PV?" {
			t.Errorf("cmd = %q, want PV?", req.cmd)
		}
		req.respond(CmdResult{Resp: "3.3"})
	}()

	resp, err := cmdr.Request(Queued, "PV?")
	if err != nil {
		t.Fatalf("Request error: %v", err)
	}
	if resp != "3.3" {
		t.Errorf("resp = %q, want 3.3", resp)
	}
}

func TestCommanderRequestDroppedSurfacesAsNoResponse(t *testing.T) {
	queued := make(chan *cmdRequest)
	h := &Handle{Addr: 1, queued: queued, immediate: make(chan *cmdRequest)}
	cmdr := NewCommander(h)

	go func() {
		req := <-queued
		req.drop()
	}()

	_, err := cmdr.Request(Queued, "PV?")
	var nr *errs.NoResponse
	if !errors.As(err, &nr) {
		t.Fatalf("expected *errs.NoResponse, got %v (%T)", err, err)
	}
}

func TestCommanderRequestUsesImmediateChannel(t *testing.T) {
	immediate := make(chan *cmdRequest)
	h := &Handle{Addr: 2, queued: make(chan *cmdRequest), immediate: immediate}
	cmdr := NewCommander(h)

	go func() {
		req := <-immediate
		req.respond(CmdResult{Resp: "OK"})
	}()

	resp, err := cmdr.Request(Immediate, "OUT 1")
	if err != nil {
		t.Fatalf("Request error: %v", err)
	}
	if resp != "OK" {
		t.Errorf("resp = %q, want OK", resp)
	}
}

func TestCommanderYieldSendsMarker(t *testing.T) {
	queued := make(chan *cmdRequest)
	h := &Handle{Addr: 1, queued: queued, immediate: make(chan *cmdRequest)}
	cmdr := NewCommander(h)

	done := make(chan struct{})
	go func() {
		req := <-queued
		if !req.yield {
			t.Error("expected a yield marker")
		}
		close(done)
	}()
	cmdr.Yield()
	<-done
}

func TestMuxAddClientRejectsDuplicateAddress(t *testing.T) {
	m := New(&fakeAddresser{}, sched.New(nil), nil, nil)
	if _, ok := m.AddClient(1); !ok {
		t.Fatal("first AddClient(1) should succeed")
	}
	if _, ok := m.AddClient(1); ok {
		t.Fatal("second AddClient(1) should fail")
	}
}

type fakeAddresser struct {
	online bool
	resp   string
	err    error
}

func (f *fakeAddresser) Request(addr addrconn.Address, cmd string) (string, error) {
	return f.resp, f.err
}

func (f *fakeAddresser) IsOnline(addr addrconn.Address) (bool, error) {
	return f.online, nil
}

func TestMuxServicesQueuedRequestOnceOnline(t *testing.T) {
	fa := &fakeAddresser{online: true, resp: "3.3"}
	s := sched.New([]addrconn.Address{1})
	m := New(fa, s, nil, nil)
	h, ok := m.AddClient(1)
	if !ok {
		t.Fatal("AddClient(1) failed")
	}
	cmdr := NewCommander(h)

	stop := make(chan struct{})
	defer close(stop)
	go m.Run(stop)

	// Requests queued while the device is still offline are drained
	// without a reply, so wait for the liveness probe to bring it online.
	if sig := <-h.Signals; sig != SigOn {
		t.Fatalf("first signal = %v, want on", sig)
	}

	resp, err := cmdr.Request(Queued, "PV?")
	if err != nil {
		t.Fatalf("Request error: %v", err)
	}
	if resp != "3.3" {
		t.Errorf("resp = %q, want 3.3", resp)
	}
}

func TestMuxImmediateRequestBypassesScheduler(t *testing.T) {
	fa := &fakeAddresser{online: true, resp: "OK"}
	s := sched.New([]addrconn.Address{1})
	m := New(fa, s, nil, nil)
	h, _ := m.AddClient(1)
	cmdr := NewCommander(h)

	stop := make(chan struct{})
	defer close(stop)
	go m.Run(stop)

	resp, err := cmdr.Request(Immediate, "OUT 1")
	if err != nil {
		t.Fatalf("Request error: %v", err)
	}
	if resp != "OK" {
		t.Errorf("resp = %q, want OK", resp)
	}
}
