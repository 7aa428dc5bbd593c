package routing

import (
	"context"
	"errors"
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sparkpark/navigator/internal/lib/geo"
)

type fakeMatrixProvider struct {
	name   Provider
	matrix [][]float64
	err    error
	hold   chan struct{} // when set, TravelTimeMatrix waits for it
	calls  atomic.Int64
}

func (f *fakeMatrixProvider) Name() Provider { return f.name }

func (f *fakeMatrixProvider) TravelTimeMatrix(ctx context.Context, points []geo.Point, mode TravelMode) ([][]float64, error) {
	f.calls.Add(1)
	if f.hold != nil {
		<-f.hold
	}
	return f.matrix, f.err
}

func TestNearestNeighborOrder(t *testing.T) {
	// 0 = origin, 4 = destination, 1..3 stops. Cheapest walk from 0 is
	// 0 -> 2 -> 1 -> 3 -> 4.
	matrix := [][]float64{
		{0, 30, 10, 40, 99},
		{30, 0, 12, 8, 99},
		{10, 12, 0, 25, 99},
		{40, 8, 25, 0, 99},
		{99, 99, 99, 99, 0},
	}
	assert.Equal(t, []int{0, 2, 1, 3, 4}, nearestNeighborOrder(matrix, 5))
}

func TestNearestNeighborOrder_TieBreaksToLowestIndex(t *testing.T) {
	matrix := [][]float64{
		{0, 10, 10, 0},
		{10, 0, 10, 0},
		{10, 10, 0, 0},
		{0, 0, 0, 0},
	}
	assert.Equal(t, []int{0, 1, 2, 3}, nearestNeighborOrder(matrix, 4))
}

func TestNearestNeighborOrder_UnreachableKeepsInputOrder(t *testing.T) {
	inf := math.Inf(1)
	matrix := [][]float64{
		{0, 5, inf, inf, 0},
		{5, 0, inf, inf, 0},
		{0, 0, 0, 0, 0},
		{0, 0, 0, 0, 0},
		{0, 0, 0, 0, 0},
	}
	assert.Equal(t, []int{0, 1, 2, 3, 4}, nearestNeighborOrder(matrix, 5))
}

func TestOptimize_OrdersStopsAndFetchesGeometry(t *testing.T) {
	stops := []geo.Point{
		{Latitude: 14.60, Longitude: 120.98},
		{Latitude: 14.61, Longitude: 120.99},
	}
	matrix := &fakeMatrixProvider{
		name: ProviderGoogle,
		// Visiting stop 2 (index 2) before stop 1 is cheaper.
		matrix: [][]float64{
			{0, 50, 10, 99},
			{50, 0, 10, 99},
			{10, 10, 0, 99},
			{99, 99, 99, 0},
		},
	}
	seconds := 480.0
	routes := &fakeRouteProvider{
		name: ProviderGoogle,
		result: RouteResult{
			Geometry:        []geo.Point{manilaCityHall, stops[1], stops[0], binondo},
			DurationSeconds: &seconds,
			Provider:        ProviderGoogle,
		},
	}
	fetcher := NewFetcher(testLogger(), routes)
	o := NewOptimizer(testLogger(), nil, matrix, routes, fetcher)

	plan, ok := o.Optimize(context.Background(), manilaCityHall, stops, binondo, ModeCar)
	require.True(t, ok)
	require.Len(t, plan.OrderedStops, 4)
	assert.Equal(t, stops[1], plan.OrderedStops[1], "cheaper stop visited first")
	assert.Equal(t, stops[0], plan.OrderedStops[2])
	assert.Equal(t, ProviderGoogle, plan.Provider)
	require.NotNil(t, plan.DurationSeconds)
	assert.Equal(t, 480.0, *plan.DurationSeconds)
}

func TestOptimize_MatrixFailureFallsBack(t *testing.T) {
	matrix := &fakeMatrixProvider{name: ProviderGoogle, err: errors.New("quota")}
	routes := &fakeRouteProvider{
		name: ProviderGoogle,
		result: RouteResult{
			Geometry: []geo.Point{manilaCityHall, binondo},
			Provider: ProviderGoogle,
		},
	}
	fetcher := NewFetcher(testLogger(), routes)
	o := NewOptimizer(testLogger(), nil, matrix, routes, fetcher)

	stops := []geo.Point{{Latitude: 14.60, Longitude: 120.98}}
	plan, ok := o.Optimize(context.Background(), manilaCityHall, stops, binondo, ModeCar)
	require.True(t, ok)
	assert.Equal(t, ProviderNone, plan.Provider, "ordering step did not run")
	assert.Equal(t, []geo.Point{manilaCityHall, stops[0], binondo}, plan.OrderedStops)
	assert.Len(t, plan.Geometry, 2, "direct geometry still fetched")
}

func TestOptimize_NoMatrixProviderDegrades(t *testing.T) {
	routes := &fakeRouteProvider{
		name: ProviderGoogle,
		result: RouteResult{
			Geometry: []geo.Point{manilaCityHall, binondo},
			Provider: ProviderGoogle,
		},
	}
	fetcher := NewFetcher(testLogger(), routes)
	o := NewOptimizer(testLogger(), nil, nil, routes, fetcher)

	plan, ok := o.Optimize(context.Background(), manilaCityHall, nil, binondo, ModeCar)
	require.True(t, ok)
	assert.Equal(t, ProviderNone, plan.Provider)
	assert.Equal(t, []geo.Point{manilaCityHall, binondo}, plan.OrderedStops)
}

func TestOptimize_ConcurrentCallDropped(t *testing.T) {
	hold := make(chan struct{})
	matrix := &fakeMatrixProvider{name: ProviderGoogle, hold: hold, err: errors.New("late")}
	routes := &fakeRouteProvider{
		name:   ProviderGoogle,
		result: RouteResult{Geometry: []geo.Point{manilaCityHall, binondo}, Provider: ProviderGoogle},
	}
	fetcher := NewFetcher(testLogger(), routes)
	o := NewOptimizer(testLogger(), nil, matrix, routes, fetcher)

	stops := []geo.Point{{Latitude: 14.60, Longitude: 120.98}}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		o.Optimize(context.Background(), manilaCityHall, stops, binondo, ModeCar)
	}()

	// Wait until the first call is inside the matrix fetch.
	for matrix.calls.Load() == 0 {
		time.Sleep(time.Millisecond)
	}

	_, ok := o.Optimize(context.Background(), manilaCityHall, stops, binondo, ModeCar)
	assert.False(t, ok, "second call while busy is dropped")

	close(hold)
	wg.Wait()
}

type fakePlanProvider struct {
	plan  OptimizationPlan
	err   error
	calls atomic.Int64
}

func (f *fakePlanProvider) Name() Provider { return ProviderCustom }

func (f *fakePlanProvider) FetchPlan(ctx context.Context, origin geo.Point, stops []geo.Point, destination geo.Point, mode TravelMode) (OptimizationPlan, error) {
	f.calls.Add(1)
	return f.plan, f.err
}

func TestOptimize_PlanProviderWins(t *testing.T) {
	stops := []geo.Point{{Latitude: 14.60, Longitude: 120.98}}
	seconds := 720.0
	planner := &fakePlanProvider{plan: OptimizationPlan{
		OrderedStops:    []geo.Point{manilaCityHall, stops[0], binondo},
		Geometry:        []geo.Point{manilaCityHall, stops[0], binondo},
		DurationSeconds: &seconds,
		Provider:        ProviderCustom,
	}}
	matrix := &fakeMatrixProvider{name: ProviderGoogle}
	routes := &fakeRouteProvider{name: ProviderGoogle}
	fetcher := NewFetcher(testLogger(), routes)
	o := NewOptimizer(testLogger(), planner, matrix, routes, fetcher)

	plan, ok := o.Optimize(context.Background(), manilaCityHall, stops, binondo, ModeCar)
	require.True(t, ok)
	assert.Equal(t, ProviderCustom, plan.Provider)
	assert.Equal(t, int64(1), planner.calls.Load())
	assert.Equal(t, int64(0), matrix.calls.Load(), "matrix pass skipped when the planner answers")
}

func TestOptimize_PlanProviderFailureFallsThrough(t *testing.T) {
	stops := []geo.Point{{Latitude: 14.60, Longitude: 120.98}}
	planner := &fakePlanProvider{err: errors.New("optimize unavailable")}
	matrix := &fakeMatrixProvider{
		name: ProviderGoogle,
		matrix: [][]float64{
			{0, 10, 99},
			{10, 0, 99},
			{99, 99, 0},
		},
	}
	routes := &fakeRouteProvider{
		name: ProviderGoogle,
		result: RouteResult{
			Geometry: []geo.Point{manilaCityHall, stops[0], binondo},
			Provider: ProviderGoogle,
		},
	}
	fetcher := NewFetcher(testLogger(), routes)
	o := NewOptimizer(testLogger(), planner, matrix, routes, fetcher)

	plan, ok := o.Optimize(context.Background(), manilaCityHall, stops, binondo, ModeCar)
	require.True(t, ok)
	assert.Equal(t, int64(1), planner.calls.Load())
	assert.Equal(t, int64(1), matrix.calls.Load(), "matrix pass runs after planner failure")
	assert.Equal(t, ProviderGoogle, plan.Provider)
}
