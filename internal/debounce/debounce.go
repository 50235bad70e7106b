// Package debounce converts a noisy boolean condition into a stable flag.
package debounce

import (
	"sync"
	"time"
)

// A Gate only changes its stable value once a different condition has been reported continuously for at least Window.
// A candidate value that reverts before Window has elapsed is discarded.
type Gate struct {
	window       time.Duration
	stable       bool
	hasCandidate bool
	candidate    bool
	since        time.Time
	lock         sync.Mutex
}

func New(window time.Duration, initial bool) *Gate {
	return &Gate{window: window, stable: initial}
}

// Update records the current condition at time now and returns the stable value.
func (g *Gate) Update(now time.Time, condition bool) bool {
	g.lock.Lock()
	defer g.lock.Unlock()

	switch {
	case condition == g.stable:
		g.hasCandidate = false
	case !g.hasCandidate || g.candidate != condition:
		g.hasCandidate = true
		g.candidate = condition
		g.since = now
	case now.Sub(g.since) >= g.window:
		g.stable = condition
		g.hasCandidate = false
	}
	return g.stable
}

// Stable returns the current stable value.
func (g *Gate) Stable() bool {
	g.lock.Lock()
	defer g.lock.Unlock()
	return g.stable
}

// Remaining returns how long the pending candidate must still hold before it is committed. ok is false if there is no
// pending candidate.
func (g *Gate) Remaining(now time.Time) (remaining time.Duration, ok bool) {
	g.lock.Lock()
	defer g.lock.Unlock()
	if !g.hasCandidate {
		return 0, false
	}
	return max(0, g.window-now.Sub(g.since)), true
}

// Reset sets the stable value and discards any pending candidate.
func (g *Gate) Reset(value bool) {
	g.lock.Lock()
	defer g.lock.Unlock()
	g.stable = value
	g.hasCandidate = false
}
