package navigation

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sparkpark/navigator/internal/lib/geo"
	"github.com/sparkpark/navigator/internal/routing"
)

// Thresholds are the empirical constants driving re-route decisions. They are
// configuration, not code: tune them per deployment.
type Thresholds struct {
	OffRouteMeters     float64       // drift from the polyline before re-routing
	RerouteMinInterval time.Duration // quiet period between drift-triggered re-routes
	JumpMeters         float64       // direct-distance jump treated as a teleport
	EtaRefreshInterval time.Duration // periodic ETA-only recompute
}

// DefaultThresholds returns the tuning the app shipped with.
func DefaultThresholds() Thresholds {
	return Thresholds{
		OffRouteMeters:     80,
		RerouteMinInterval: 20 * time.Second,
		JumpMeters:         100,
		EtaRefreshInterval: 60 * time.Second,
	}
}

// EventType tags a session event.
type EventType string

const (
	EventRoute EventType = "route"
	EventEta   EventType = "eta"
)

// Event is a state change pushed to the session's consumer.
type Event struct {
	Type  EventType            `json:"type"`
	Route *routing.RouteResult `json:"route,omitempty"`
	Eta   *routing.Eta         `json:"eta,omitempty"`
}

// driftState tracks what the last position sample looked like relative to the
// destination. It exists only while tracking is active.
type driftState struct {
	lastDirectMeters *float64
	lastReroute      time.Time
}

// Session owns one trip: the chosen endpoints and mode, the current route and
// ETA, and the live-position bookkeeping that decides between re-routing and
// a cheap ETA refresh. All mutating calls are safe for concurrent use.
type Session struct {
	id         string
	log        *zap.SugaredLogger
	fetcher    *routing.Fetcher
	estimator  *routing.Estimator
	geo        geo.Utils
	thresholds Thresholds
	emit       func(Event)
	now        func() time.Time

	mu          sync.Mutex
	origin      *geo.Point
	originLive  bool // origin follows the live position
	destination *geo.Point
	mode        routing.TravelMode
	route       routing.RouteResult
	eta         routing.Eta
	drift       driftState
	tracker     *Tracker
	stopWatch   func()

	etaStop chan struct{}
}

// NewSession creates a Session. emit receives every route and ETA change; it
// is called without the session lock held and may be nil.
func NewSession(id string, log *zap.SugaredLogger, fetcher *routing.Fetcher, estimator *routing.Estimator, utils geo.Utils, tracker *Tracker, thresholds Thresholds, emit func(Event)) *Session {
	if emit == nil {
		emit = func(Event) {}
	}
	return &Session{
		id:         id,
		log:        log,
		fetcher:    fetcher,
		estimator:  estimator,
		geo:        utils,
		thresholds: thresholds,
		emit:       emit,
		now:        time.Now,
		mode:       routing.ModeCar,
		route:      routing.EmptyRoute(),
		eta:        routing.Eta{Provider: routing.ProviderNone},
		tracker:    tracker,
		originLive: true,
	}
}

// SetOrigin pins a fixed origin. Passing nil reverts to a live origin that
// follows the position stream.
func (s *Session) SetOrigin(ctx context.Context, p *geo.Point) {
	s.mu.Lock()
	s.origin = p
	s.originLive = p == nil
	s.mu.Unlock()

	s.refresh(ctx)
}

// SetDestination sets or clears the destination. Clearing it ends navigation
// and resets the drift state.
func (s *Session) SetDestination(ctx context.Context, p *geo.Point) {
	s.mu.Lock()
	s.destination = p
	if p == nil {
		s.drift = driftState{}
	}
	s.mu.Unlock()

	s.refresh(ctx)
}

// SetMode changes the travel mode and re-fetches.
func (s *Session) SetMode(ctx context.Context, mode routing.TravelMode) {
	s.mu.Lock()
	s.mode = mode
	s.mu.Unlock()

	s.refresh(ctx)
}

// Swap exchanges origin and destination. A live origin becomes a fixed one
// at the last known position, when there is one.
func (s *Session) Swap(ctx context.Context) {
	s.mu.Lock()
	origin := s.origin
	if origin == nil {
		if last := s.tracker.Last(); last != nil {
			p := last.Point
			origin = &p
		}
	}
	s.origin, s.destination = s.destination, origin
	s.originLive = s.origin == nil
	s.drift = driftState{}
	s.mu.Unlock()

	s.refresh(ctx)
}

// Clear drops both endpoints, the route, and all live state.
func (s *Session) Clear() {
	s.mu.Lock()
	s.origin = nil
	s.originLive = true
	s.destination = nil
	s.route = routing.EmptyRoute()
	s.eta = routing.Eta{Provider: routing.ProviderNone}
	s.drift = driftState{}
	stop := s.stopWatch
	s.stopWatch = nil
	s.mu.Unlock()

	if stop != nil {
		stop()
	}
	s.stopEtaLoop()
}

// Route returns the current route.
func (s *Session) Route() routing.RouteResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.route
}

// Eta returns the current estimate.
func (s *Session) Eta() routing.Eta {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.eta
}

// Ingest feeds one raw position sample into the session. Samples are
// filtered by the tracker; accepted ones run the re-route decision.
func (s *Session) Ingest(point geo.Point, at time.Time) {
	s.mu.Lock()
	active := s.stopWatch != nil
	s.mu.Unlock()
	if !active {
		return
	}
	s.tracker.Offer(Fix{Point: point, At: at})
}

// refresh re-evaluates tracking, re-fetches the route and ETA, and restarts
// the periodic ETA loop. Called after any endpoint or mode change.
func (s *Session) refresh(ctx context.Context) {
	s.syncTracking()
	s.fetchRoute(ctx, nil)
	s.refreshEta(ctx)
	s.restartEtaLoop()
}

// syncTracking starts position tracking when a destination is set and the
// origin is live, and tears it down otherwise. Re-subscribing replaces the
// previous watch.
func (s *Session) syncTracking() {
	s.mu.Lock()
	want := s.destination != nil && s.originLive
	have := s.stopWatch != nil
	var prev func()
	if want {
		prev = s.stopWatch
		s.stopWatch = s.tracker.Watch(func(fix Fix) {
			s.evaluate(context.Background(), fix)
		})
	} else if have {
		prev = s.stopWatch
		s.stopWatch = nil
		s.drift = driftState{}
	}
	s.mu.Unlock()

	if prev != nil {
		prev()
	}
}

// evaluate is the per-fix decision: re-route, refresh the ETA, or do nothing.
func (s *Session) evaluate(ctx context.Context, fix Fix) {
	s.mu.Lock()
	dest := s.destination
	if dest == nil {
		s.mu.Unlock()
		return
	}
	route := s.route
	originLive := s.originLive
	lastDirect := s.drift.lastDirectMeters
	lastReroute := s.drift.lastReroute
	th := s.thresholds
	s.mu.Unlock()

	direct, err := s.geo.PointToPoint(fix.Point, *dest)
	if err != nil {
		return
	}
	defer func() {
		s.mu.Lock()
		s.drift.lastDirectMeters = &direct
		s.mu.Unlock()
	}()

	switch {
	case !route.Usable():
		// No route to compare against yet.
		s.reroute(ctx, fix.Point)

	case lastDirect != nil && direct-*lastDirect > th.JumpMeters:
		// Jump away from the destination: GPS reacquisition or a manual
		// origin change. Shrinking distance is normal progress and must
		// never trigger here, however fast the vehicle closes in.
		s.reroute(ctx, fix.Point)

	case !originLive:
		// Pinned origin: position updates never re-route, only refresh.
		s.refreshEta(ctx)

	default:
		drift, err := s.geo.PointToPolyline(fix.Point, geo.Polyline{Points: route.Geometry})
		if err != nil {
			return
		}
		since := s.now().Sub(lastReroute)
		if drift > th.OffRouteMeters && since >= th.RerouteMinInterval {
			s.reroute(ctx, fix.Point)
		}
	}
}

// reroute fetches a fresh route from the given position and records the
// attempt time so drift noise cannot trigger a storm.
func (s *Session) reroute(ctx context.Context, from geo.Point) {
	s.mu.Lock()
	dest := s.destination
	mode := s.mode
	s.drift.lastReroute = s.now()
	s.mu.Unlock()

	result, current := s.fetcher.Fetch(ctx, &from, dest, mode)
	if !current {
		return
	}
	s.commitRoute(result)
	s.refreshEta(ctx)
}

// fetchRoute fetches the route for the configured endpoints. When from is
// non-nil it overrides the origin (used by re-routes).
func (s *Session) fetchRoute(ctx context.Context, from *geo.Point) {
	s.mu.Lock()
	origin := s.origin
	if from != nil {
		origin = from
	}
	if origin == nil && s.originLive {
		if last := s.tracker.Last(); last != nil {
			p := last.Point
			origin = &p
		}
	}
	dest := s.destination
	mode := s.mode
	s.mu.Unlock()

	result, current := s.fetcher.Fetch(ctx, origin, dest, mode)
	if !current {
		return
	}
	s.commitRoute(result)
}

func (s *Session) commitRoute(result routing.RouteResult) {
	s.mu.Lock()
	s.route = result
	s.mu.Unlock()
	s.emit(Event{Type: EventRoute, Route: &result})
}

// refreshEta recomputes the estimate without touching geometry.
func (s *Session) refreshEta(ctx context.Context) {
	s.mu.Lock()
	origin := s.origin
	if origin == nil && s.originLive {
		if last := s.tracker.Last(); last != nil {
			p := last.Point
			origin = &p
		}
	}
	dest := s.destination
	mode := s.mode
	s.mu.Unlock()

	eta := s.estimator.Estimate(ctx, origin, dest, mode)

	s.mu.Lock()
	s.eta = eta
	s.mu.Unlock()
	s.emit(Event{Type: EventEta, Eta: &eta})
}

// restartEtaLoop tears down any running periodic refresh and starts a new one
// when both endpoints can be resolved.
func (s *Session) restartEtaLoop() {
	s.stopEtaLoop()

	s.mu.Lock()
	want := s.destination != nil && (s.origin != nil || s.tracker.Last() != nil)
	interval := s.thresholds.EtaRefreshInterval
	if want {
		s.etaStop = make(chan struct{})
	}
	stop := s.etaStop
	s.mu.Unlock()

	if !want || interval <= 0 {
		return
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.refreshEta(context.Background())
			case <-stop:
				return
			}
		}
	}()
}

func (s *Session) stopEtaLoop() {
	s.mu.Lock()
	stop := s.etaStop
	s.etaStop = nil
	s.mu.Unlock()
	if stop != nil {
		close(stop)
	}
}
