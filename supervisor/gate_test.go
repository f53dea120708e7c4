package supervisor

import (
	"context"
	"testing"
	"time"
)

func TestGateSetReportsChange(t *testing.T) {
	g := NewGate()
	if g.Value() {
		t.Fatal("new gate should start false")
	}
	if !g.Set(true) {
		t.Error("Set(true) on a false gate should report a change")
	}
	if g.Set(true) {
		t.Error("Set(true) on an already-true gate should report no change")
	}
}

func TestGateNextUnblocksOnTransition(t *testing.T) {
	g := NewGate()
	done := make(chan bool, 1)
	go func() { done <- g.Next(false) }()

	select {
	case <-done:
		t.Fatal("Next should block until the gate actually transitions")
	case <-time.After(20 * time.Millisecond):
	}

	g.Set(true)
	select {
	case v := <-done:
		if !v {
			t.Errorf("Next returned %v, want true", v)
		}
	case <-time.After(time.Second):
		t.Fatal("Next did not unblock after Set(true)")
	}
}

func TestGateNextCtxCancellation(t *testing.T) {
	g := NewGate()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan bool, 1)
	go func() {
		_, ok := g.NextCtx(ctx, false)
		done <- ok
	}()

	cancel()
	select {
	case ok := <-done:
		if ok {
			t.Error("NextCtx should report ok=false when ctx is canceled first")
		}
	case <-time.After(time.Second):
		t.Fatal("NextCtx did not return after ctx cancellation")
	}
}
