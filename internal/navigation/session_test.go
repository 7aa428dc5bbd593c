package navigation

import (
	"context"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sparkpark/navigator/internal/lib/geo"
	"github.com/sparkpark/navigator/internal/routing"
)

var (
	routeStart = geo.Point{Latitude: 14.5900, Longitude: 120.9842}
	routeMid   = geo.Point{Latitude: 14.6000, Longitude: 120.9842}
	routeEnd   = geo.Point{Latitude: 14.6100, Longitude: 120.9842}
)

type stubRouteProvider struct {
	mu     sync.Mutex
	calls  int
	result routing.RouteResult
}

func (s *stubRouteProvider) Name() routing.Provider { return routing.ProviderGoogle }

func (s *stubRouteProvider) FetchRoute(ctx context.Context, origin, destination geo.Point, stops []geo.Point, mode routing.TravelMode) (routing.RouteResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return s.result, nil
}

func (s *stubRouteProvider) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type stubEtaProvider struct {
	mu      sync.Mutex
	calls   int
	seconds float64
}

func (s *stubEtaProvider) Name() routing.Provider { return routing.ProviderGoogle }

func (s *stubEtaProvider) FetchEta(ctx context.Context, origin, destination geo.Point, mode routing.TravelMode) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return s.seconds, nil
}

func (s *stubEtaProvider) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type harness struct {
	session *Session
	routes  *stubRouteProvider
	etas    *stubEtaProvider
	clock   *fakeClock
	events  []Event
	eventMu sync.Mutex
}

func newHarness(t *testing.T, thresholds Thresholds) *harness {
	t.Helper()
	h := &harness{
		routes: &stubRouteProvider{result: routing.RouteResult{
			Geometry: []geo.Point{routeStart, routeMid, routeEnd},
			Provider: routing.ProviderGoogle,
		}},
		etas:  &stubEtaProvider{seconds: 600},
		clock: &fakeClock{t: time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)},
	}
	log := zap.NewNop().Sugar()
	fetcher := routing.NewFetcher(log, h.routes)
	estimator := routing.NewEstimator(log, h.etas)
	utils := geo.NewUtils()
	tracker := NewTracker(utils, 10*time.Second, 25)
	h.session = NewSession("s1", log, fetcher, estimator, utils, tracker, thresholds, func(e Event) {
		h.eventMu.Lock()
		h.events = append(h.events, e)
		h.eventMu.Unlock()
	})
	h.session.now = h.clock.now
	t.Cleanup(h.session.Clear)
	return h
}

// offsetEast returns p displaced east by the given meters.
func offsetEast(p geo.Point, meters float64) geo.Point {
	metersPerDeg := 6371000 * math.Pi / 180 * math.Cos(p.Latitude*math.Pi/180)
	return geo.Point{Latitude: p.Latitude, Longitude: p.Longitude + meters/metersPerDeg}
}

func TestSession_NoDestinationNoFetch(t *testing.T) {
	h := newHarness(t, DefaultThresholds())
	h.session.SetMode(context.Background(), routing.ModeWalk)
	assert.Equal(t, 0, h.routes.callCount())
	assert.False(t, h.session.Route().Usable())
}

func TestSession_FixedEndpointsFetchRouteAndEta(t *testing.T) {
	h := newHarness(t, DefaultThresholds())
	ctx := context.Background()
	h.session.SetOrigin(ctx, &routeStart)
	h.session.SetDestination(ctx, &routeEnd)

	assert.True(t, h.session.Route().Usable())
	require.NotNil(t, h.session.Eta().Seconds)
	assert.Equal(t, 600.0, *h.session.Eta().Seconds)
	assert.GreaterOrEqual(t, h.routes.callCount(), 1)
}

func TestSession_FirstFixWithoutRouteTriggersFetch(t *testing.T) {
	h := newHarness(t, DefaultThresholds())
	ctx := context.Background()
	h.session.SetDestination(ctx, &routeEnd)

	// Live origin with no fix yet: nothing to route from.
	assert.False(t, h.session.Route().Usable())
	assert.Equal(t, 0, h.routes.callCount())

	h.session.Ingest(routeMid, h.clock.now())
	assert.True(t, h.session.Route().Usable())
	assert.Equal(t, 1, h.routes.callCount())
}

func TestSession_OffRouteThresholds(t *testing.T) {
	tests := []struct {
		name        string
		driftMeters float64
		elapsed     time.Duration
		wantReroute bool
	}{
		{"81m after 20s reroutes", 81, 20 * time.Second, true},
		{"79m after 20s does not", 79, 20 * time.Second, false},
		{"81m after only 19s does not", 81, 19 * time.Second, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t, DefaultThresholds())
			ctx := context.Background()
			h.session.SetDestination(ctx, &routeEnd)

			// First fix installs the route and records a re-route time.
			h.session.Ingest(routeMid, h.clock.now())
			require.Equal(t, 1, h.routes.callCount())

			h.clock.advance(tc.elapsed)
			h.session.Ingest(offsetEast(routeMid, tc.driftMeters), h.clock.now())

			want := 1
			if tc.wantReroute {
				want = 2
			}
			assert.Equal(t, want, h.routes.callCount())
		})
	}
}

func TestSession_DirectDistanceJumpReroutes(t *testing.T) {
	h := newHarness(t, DefaultThresholds())
	ctx := context.Background()
	h.session.SetDestination(ctx, &routeEnd)

	h.session.Ingest(routeMid, h.clock.now())
	require.Equal(t, 1, h.routes.callCount())

	// Well under 20s, but the direct distance to the destination grows by
	// ~200m: treated as a teleport, re-routed immediately.
	h.clock.advance(10 * time.Second)
	h.session.Ingest(geo.Point{Latitude: 14.5982, Longitude: 120.9842}, h.clock.now())
	assert.Equal(t, 2, h.routes.callCount())
}

func TestSession_FastApproachDoesNotReroute(t *testing.T) {
	h := newHarness(t, DefaultThresholds())
	ctx := context.Background()
	h.session.SetDestination(ctx, &routeEnd)

	h.session.Ingest(routeMid, h.clock.now())
	require.Equal(t, 1, h.routes.callCount())

	// 155m of progress along the route in 10s (~56 km/h). The direct
	// distance to the destination shrinks by more than the jump threshold,
	// which is normal driving, not a teleport.
	h.clock.advance(10 * time.Second)
	h.session.Ingest(geo.Point{Latitude: 14.60139, Longitude: 120.9842}, h.clock.now())
	assert.Equal(t, 1, h.routes.callCount())

	// And it keeps not re-routing as the approach continues.
	h.clock.advance(10 * time.Second)
	h.session.Ingest(geo.Point{Latitude: 14.60278, Longitude: 120.9842}, h.clock.now())
	assert.Equal(t, 1, h.routes.callCount())
}

func TestSession_FixedOriginIgnoresPositionStream(t *testing.T) {
	h := newHarness(t, DefaultThresholds())
	ctx := context.Background()
	h.session.SetOrigin(ctx, &routeStart)
	h.session.SetDestination(ctx, &routeEnd)
	before := h.routes.callCount()

	h.session.Ingest(offsetEast(routeMid, 500), h.clock.now())
	h.clock.advance(time.Minute)
	h.session.Ingest(offsetEast(routeMid, 1000), h.clock.now())

	assert.Equal(t, before, h.routes.callCount(), "pinned origin never re-routes from fixes")
}

func TestSession_ClearResetsState(t *testing.T) {
	h := newHarness(t, DefaultThresholds())
	ctx := context.Background()
	h.session.SetOrigin(ctx, &routeStart)
	h.session.SetDestination(ctx, &routeEnd)
	require.True(t, h.session.Route().Usable())

	h.session.Clear()
	assert.False(t, h.session.Route().Usable())
	assert.Equal(t, routing.ProviderNone, h.session.Route().Provider)
	assert.Nil(t, h.session.Eta().Seconds)
}

func TestSession_SwapExchangesEndpoints(t *testing.T) {
	h := newHarness(t, DefaultThresholds())
	ctx := context.Background()
	h.session.SetOrigin(ctx, &routeStart)
	h.session.SetDestination(ctx, &routeEnd)
	before := h.routes.callCount()

	h.session.Swap(ctx)
	assert.Greater(t, h.routes.callCount(), before, "swap re-fetches")
	assert.True(t, h.session.Route().Usable())
}

func TestSession_PeriodicEtaRefresh(t *testing.T) {
	th := DefaultThresholds()
	th.EtaRefreshInterval = 20 * time.Millisecond
	h := newHarness(t, th)
	ctx := context.Background()
	h.session.SetOrigin(ctx, &routeStart)
	h.session.SetDestination(ctx, &routeEnd)
	initial := h.etas.callCount()

	deadline := time.After(2 * time.Second)
	for h.etas.callCount() < initial+2 {
		select {
		case <-deadline:
			t.Fatal("periodic ETA refresh never fired")
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestSession_EmitsRouteAndEtaEvents(t *testing.T) {
	h := newHarness(t, DefaultThresholds())
	ctx := context.Background()
	h.session.SetOrigin(ctx, &routeStart)
	h.session.SetDestination(ctx, &routeEnd)

	h.eventMu.Lock()
	defer h.eventMu.Unlock()
	var sawRoute, sawEta bool
	for _, e := range h.events {
		switch e.Type {
		case EventRoute:
			sawRoute = true
		case EventEta:
			sawEta = true
		}
	}
	assert.True(t, sawRoute)
	assert.True(t, sawEta)
}
