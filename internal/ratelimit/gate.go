// Package ratelimit implements sliding-window call admission control for
// outbound LLM provider calls.
//
// The free tiers of the hosted providers enforce a calls-per-minute quota.
// Gate tracks the timestamps of recent calls and reports whether another
// call fits in the trailing window, and if not, how long until one does.
// The gate never blocks by itself: waiting is the caller's policy.
package ratelimit

import (
	"sync"
	"time"
)

// Gate is a sliding-window admission controller. It is safe for concurrent
// use; the window is shared by all requests targeting the same provider
// quota within this process.
type Gate struct {
	mu       sync.Mutex
	calls    []time.Time
	maxCalls int
	period   time.Duration

	// now is overridable for deterministic tests.
	now func() time.Time
}

// New creates a Gate allowing at most maxCalls within the trailing period.
func New(maxCalls int, period time.Duration) *Gate {
	return &Gate{
		calls:    make([]time.Time, 0, maxCalls),
		maxCalls: maxCalls,
		period:   period,
		now:      time.Now,
	}
}

// CanAdmit reports whether another call fits in the window right now.
// Expired entries are pruned as a side effect.
func (g *Gate) CanAdmit() bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.prune(g.now())
	return len(g.calls) < g.maxCalls
}

// Admit records a call at the current time. Callers must invoke Admit once
// per actually-issued provider call, immediately before issuing it.
func (g *Gate) Admit() {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	g.prune(now)
	g.calls = append(g.calls, now)
}

// TimeUntilAvailable returns how long until a call slot opens: zero when a
// call is admittable now, otherwise the time until the oldest in-window
// call expires.
func (g *Gate) TimeUntilAvailable() time.Duration {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	g.prune(now)
	if len(g.calls) < g.maxCalls {
		return 0
	}

	oldest := g.calls[0]
	return oldest.Add(g.period).Sub(now)
}

// prune drops entries older than the window. Caller holds g.mu.
// calls stays ordered oldest-first, so we only need to find the cut point.
func (g *Gate) prune(now time.Time) {
	cutoff := now.Add(-g.period)
	i := 0
	for i < len(g.calls) && !g.calls[i].After(cutoff) {
		i++
	}
	if i > 0 {
		g.calls = append(g.calls[:0], g.calls[i:]...)
	}
}
