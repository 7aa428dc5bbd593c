// Package navigation coordinates a live trip session: it owns the current
// route, keeps the ETA fresh, filters incoming position fixes, and decides
// when a drifting position warrants a new route.
package navigation

import (
	"sync"
	"time"

	"github.com/sparkpark/navigator/internal/lib/geo"
)

// Fix is one accepted position sample.
type Fix struct {
	Point geo.Point
	At    time.Time
}

// Tracker filters a raw position stream down to meaningful movement. A fix is
// accepted when it is the first one, or when enough time has passed or enough
// distance has been covered since the last accepted fix. Only one watch is
// active at a time; installing a new one replaces the previous.
type Tracker struct {
	geo         geo.Utils
	minInterval time.Duration
	minDistance float64

	mu       sync.Mutex
	last     *Fix
	handler  func(Fix)
	watchGen uint64
}

// NewTracker creates a Tracker accepting fixes at least minInterval apart or
// at least minDistance meters apart.
func NewTracker(utils geo.Utils, minInterval time.Duration, minDistance float64) *Tracker {
	return &Tracker{
		geo:         utils,
		minInterval: minInterval,
		minDistance: minDistance,
	}
}

// Watch installs the handler for accepted fixes, replacing any previous
// handler and resetting the filter state. The returned stop function tears
// the watch down; stopping a watch that has already been replaced is a no-op.
func (t *Tracker) Watch(handler func(Fix)) (stop func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.watchGen++
	gen := t.watchGen
	t.last = nil
	t.handler = handler

	return func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		// A replaced watch must not tear down its successor.
		if gen == t.watchGen {
			t.handler = nil
			t.last = nil
		}
	}
}

// Offer submits a raw fix. It returns true when the fix passed filtering and
// was forwarded to the active watch; false when it was dropped or no watch is
// active.
func (t *Tracker) Offer(fix Fix) bool {
	t.mu.Lock()
	if t.handler == nil {
		t.mu.Unlock()
		return false
	}
	if !t.accepts(fix) {
		t.mu.Unlock()
		return false
	}
	t.last = &fix
	handler := t.handler
	t.mu.Unlock()

	handler(fix)
	return true
}

// Last returns the most recently accepted fix, or nil.
func (t *Tracker) Last() *Fix {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.last
}

// Active reports whether a watch is installed.
func (t *Tracker) Active() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.handler != nil
}

func (t *Tracker) accepts(fix Fix) bool {
	if t.last == nil {
		return true
	}
	if fix.At.Sub(t.last.At) >= t.minInterval {
		return true
	}
	meters, err := t.geo.PointToPoint(t.last.Point, fix.Point)
	if err != nil {
		return false
	}
	return meters >= t.minDistance
}
