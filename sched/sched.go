// Package sched implements the scheduler (component C): online/offline
// address queues, the fairness counter that interleaves servicing the
// online set with re-probing the offline set, and the offline backoff.
package sched

import (
	"time"

	"github.com/opencontrols/psgateway/addrconn"
)

// Backoff is the fixed retry delay applied to an address yielded offline.
var Backoff = time.Second

type offlineEntry struct {
	addr    addrconn.Address
	retryAt time.Time
}

// Scheduler owns the online and offline queues plus the "currently being
// served" slot. It is not safe for concurrent use: exactly one goroutine
// (the multiplexer's run loop) may hold a Guard at a time, per spec.md's
// "at most one scheduler guard exists at a time" invariant.
type Scheduler struct {
	online  []addrconn.Address
	offline []offlineEntry
	fair    int

	// sleepFn abstracts time.Sleep for test determinism.
	sleepFn func(time.Duration)
	nowFn   func() time.Time
}

// New creates a scheduler seeded with addrs, all starting offline with an
// immediate retry so every device gets probed once at startup.
func New(addrs []addrconn.Address) *Scheduler {
	s := &Scheduler{
		sleepFn: time.Sleep,
		nowFn:   time.Now,
	}
	now := s.nowFn()
	for _, a := range addrs {
		s.offline = append(s.offline, offlineEntry{addr: a, retryAt: now})
	}
	return s
}

// Guard represents the scheduler's current selection: an address plus
// whether it came from the online or the offline queue. Yield must be
// called exactly once to return the address to a queue.
type Guard struct {
	s        *Scheduler
	addr     addrconn.Address
	fromOnln bool
	done     bool
}

// Address is the address currently held by this guard.
func (g *Guard) Address() addrconn.Address { return g.addr }

// WasOnline reports whether the address was taken from the online queue
// (true) or the offline queue (false) — "the guard says the device is
// online" in spec.md §4.D.
func (g *Guard) WasOnline() bool { return g.fromOnln }

// YieldOnline returns the address to the tail of the online queue.
func (g *Guard) YieldOnline() {
	g.mustNotDone()
	g.s.online = append(g.s.online, g.addr)
	g.done = true
}

// YieldOffline returns the address to the offline queue with a fresh
// backoff deadline.
func (g *Guard) YieldOffline() {
	g.mustNotDone()
	g.s.offline = append(g.s.offline, offlineEntry{addr: g.addr, retryAt: g.s.nowFn().Add(Backoff)})
	g.done = true
}

func (g *Guard) mustNotDone() {
	if g.done {
		panic("sched: guard yielded twice")
	}
}

// Current selects the next address to serve, blocking (sleeping) if
// necessary until the earliest offline retry is due. The selection policy
// is spec.md §4.C's fairness rule: take the offline head if it is due and
// (the fairness counter is even OR online is empty); otherwise take the
// online head if non-empty; otherwise sleep until the offline head is due.
//
// interrupt, if non-nil, is checked before any sleep; a ready interrupt
// aborts the wait and returns (nil, false) so a caller can service
// higher-priority work (immediate requests) before asking again. This is
// what keeps an immediate request from being starved when the bus would
// otherwise be idle waiting on an offline backoff.
func (s *Scheduler) Current(interrupt <-chan struct{}) (*Guard, bool) {
	for {
		now := s.nowFn()
		offlineDue := len(s.offline) > 0 && !s.offline[0].retryAt.After(now)
		if offlineDue && (s.fair%2 == 0 || len(s.online) == 0) {
			e := s.offline[0]
			s.offline = s.offline[1:]
			s.fair++
			return &Guard{s: s, addr: e.addr, fromOnln: false}, true
		}
		if len(s.online) > 0 {
			a := s.online[0]
			s.online = s.online[1:]
			s.fair++
			return &Guard{s: s, addr: a, fromOnln: true}, true
		}

		var wait time.Duration
		if len(s.offline) == 0 {
			wait = Backoff
		} else {
			wait = s.offline[0].retryAt.Sub(now)
		}
		if wait <= 0 {
			continue
		}
		if !s.wait(wait, interrupt) {
			return nil, false
		}
	}
}

// wait sleeps up to d, returning false early if interrupt becomes ready.
func (s *Scheduler) wait(d time.Duration, interrupt <-chan struct{}) bool {
	if interrupt == nil {
		s.sleepFn(d)
		return true
	}
	select {
	case <-interrupt:
		return false
	case <-time.After(d):
		return true
	}
}
