package supervisor

import (
	"testing"
	"time"

	"github.com/opencontrols/psgateway/bus"
)

func TestSupervisorDrivesGate(t *testing.T) {
	signals := make(chan bus.Signal, 4)
	stop := make(chan struct{})
	sup := NewFromSignal(3, signals, nil)
	go sup.Run(stop)
	defer close(stop)

	signals <- bus.SigOn
	waitForGate(t, sup.Gate(), true)

	signals <- bus.SigOff
	waitForGate(t, sup.Gate(), false)
}

func TestSupervisorLogsIntrWithoutChangingGate(t *testing.T) {
	signals := make(chan bus.Signal, 4)
	stop := make(chan struct{})
	sup := NewFromSignal(5, signals, nil)
	go sup.Run(stop)
	defer close(stop)

	signals <- bus.SigIntr
	time.Sleep(20 * time.Millisecond)
	if sup.Gate().Value() {
		t.Error("SigIntr should not change the gate")
	}
}

func waitForGate(t *testing.T, g *Gate, want bool) {
	t.Helper()
	if g.Value() == want {
		return
	}
	done := make(chan bool, 1)
	go func() { done <- g.Next(!want) }()
	select {
	case v := <-done:
		if v != want {
			t.Fatalf("gate transitioned to %v, want %v", v, want)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for gate transition")
	}
}
