package sched

import (
	"testing"
	"time"

	"github.com/opencontrols/psgateway/addrconn"
)

func TestNewSeedsAllAddressesOffline(t *testing.T) {
	s := New([]addrconn.Address{1, 2, 3})
	if len(s.offline) != 3 {
		t.Fatalf("expected 3 offline entries, got %d", len(s.offline))
	}
	if len(s.online) != 0 {
		t.Fatalf("expected 0 online entries, got %d", len(s.online))
	}
}

func TestCurrentTakesDueOfflineFirst(t *testing.T) {
	s := New([]addrconn.Address{1})
	guard, ok := s.Current(nil)
	if !ok {
		t.Fatal("Current should succeed immediately for a freshly seeded address")
	}
	if guard.WasOnline() {
		t.Error("a freshly seeded address should come from the offline queue")
	}
	if guard.Address() != 1 {
		t.Errorf("Address() = %d, want 1", guard.Address())
	}
}

func TestYieldTwiceOnSameGuardPanics(t *testing.T) {
	s := New([]addrconn.Address{1})
	guard, _ := s.Current(nil)
	guard.YieldOnline()
	defer func() {
		if recover() == nil {
			t.Error("expected a panic on double-yield")
		}
	}()
	guard.YieldOnline()
}

func TestCurrentWaitsForOfflineBackoff(t *testing.T) {
	s := New(nil)
	now := time.Now()
	s.nowFn = func() time.Time { return now }
	s.offline = []offlineEntry{{addr: 4, retryAt: now.Add(50 * time.Millisecond)}}

	var slept time.Duration
	s.sleepFn = func(d time.Duration) {
		slept = d
		now = now.Add(d)
	}

	guard, ok := s.Current(nil)
	if !ok {
		t.Fatal("Current should eventually succeed")
	}
	if guard.Address() != 4 {
		t.Errorf("Address() = %d, want 4", guard.Address())
	}
	if slept <= 0 {
		t.Error("expected Current to sleep before the backoff deadline")
	}
}

func TestCurrentInterruptible(t *testing.T) {
	s := New(nil)
	now := time.Now()
	s.nowFn = func() time.Time { return now }
	s.offline = []offlineEntry{{addr: 4, retryAt: now.Add(time.Hour)}}

	interrupt := make(chan struct{})
	close(interrupt)

	guard, ok := s.Current(interrupt)
	if ok || guard != nil {
		t.Error("a ready interrupt should abort Current before it sleeps out the backoff")
	}
}

func TestFairnessAlternatesOnlineAndOffline(t *testing.T) {
	s := New(nil)
	now := time.Now()
	s.nowFn = func() time.Time { return now }
	s.online = []addrconn.Address{10}
	s.offline = []offlineEntry{{addr: 20, retryAt: now}, {addr: 30, retryAt: now}}

	g1, _ := s.Current(nil)
	if g1.WasOnline() {
		t.Fatal("first selection with an even fairness counter should prefer the due offline head")
	}
	g2, _ := s.Current(nil)
	if !g2.WasOnline() || g2.Address() != 10 {
		t.Fatalf("second selection with an odd fairness counter should take the online head 10, got %d (online=%v)", g2.Address(), g2.WasOnline())
	}
}
