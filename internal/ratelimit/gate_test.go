package ratelimit

import (
	"sync"
	"testing"
	"time"
)

// fakeClock provides a controllable time source for the gate.
type fakeClock struct {
	mu  sync.Mutex
	cur time.Time
}

func (c *fakeClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cur
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cur = c.cur.Add(d)
}

func newTestGate(maxCalls int, period time.Duration) (*Gate, *fakeClock) {
	clock := &fakeClock{cur: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	g := New(maxCalls, period)
	g.now = clock.now
	return g, clock
}

func TestGateAdmitsUpToLimit(t *testing.T) {
	g, _ := newTestGate(2, 60*time.Second)

	if !g.CanAdmit() {
		t.Fatal("fresh gate should admit")
	}
	g.Admit()
	if !g.CanAdmit() {
		t.Fatal("gate should admit second call")
	}
	g.Admit()

	if g.CanAdmit() {
		t.Error("gate should be closed after maxCalls admissions")
	}
	if wait := g.TimeUntilAvailable(); wait <= 0 {
		t.Errorf("TimeUntilAvailable = %v, want > 0", wait)
	}
}

func TestGateReopensAfterWindow(t *testing.T) {
	g, clock := newTestGate(2, 60*time.Second)

	g.Admit()
	g.Admit()
	if g.CanAdmit() {
		t.Fatal("gate should be closed")
	}

	clock.advance(61 * time.Second)

	if !g.CanAdmit() {
		t.Error("gate should reopen after the window elapses")
	}
	if wait := g.TimeUntilAvailable(); wait != 0 {
		t.Errorf("TimeUntilAvailable = %v, want 0", wait)
	}
}

func TestGateTimeUntilAvailableTracksOldestCall(t *testing.T) {
	g, clock := newTestGate(1, 60*time.Second)

	g.Admit()
	clock.advance(20 * time.Second)

	want := 40 * time.Second
	if got := g.TimeUntilAvailable(); got != want {
		t.Errorf("TimeUntilAvailable = %v, want %v", got, want)
	}
}

func TestGatePrunesLazily(t *testing.T) {
	g, clock := newTestGate(3, 60*time.Second)

	g.Admit()
	clock.advance(30 * time.Second)
	g.Admit()
	clock.advance(31 * time.Second) // first call now expired

	// Only one call remains in the window, so two more fit.
	if !g.CanAdmit() {
		t.Fatal("gate should admit after oldest call expired")
	}
	g.Admit()
	g.Admit()
	if g.CanAdmit() {
		t.Error("gate should be closed again at capacity")
	}
}

func TestGateConcurrentAdmit(t *testing.T) {
	g := New(1000, time.Minute)

	var wg sync.WaitGroup
	for range 100 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 10 {
				g.Admit()
				g.CanAdmit()
				g.TimeUntilAvailable()
			}
		}()
	}
	wg.Wait()

	if g.CanAdmit() {
		t.Error("gate should be exactly at capacity after 1000 admissions")
	}
}
