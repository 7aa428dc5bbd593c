package routing

import (
	"context"
	"math"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/sparkpark/navigator/internal/lib/geo"
)

// Optimizer orders multi-stop trips. A configured PlanProvider is asked for
// the whole plan first; otherwise a nearest-neighbor pass over a pairwise
// travel-time matrix orders the stops and one geometry call covers the
// ordered sequence. The ordering is a greedy heuristic, not an optimal TSP
// solve; the approximation is accepted for interactive use.
type Optimizer struct {
	planner PlanProvider
	matrix  MatrixProvider
	routes  RouteProvider
	fetcher *Fetcher
	log     *zap.SugaredLogger

	busy atomic.Bool
}

// NewOptimizer creates an Optimizer. planner and matrix may each be nil;
// with neither, every call degrades to a plain origin/destination fetch.
func NewOptimizer(log *zap.SugaredLogger, planner PlanProvider, matrix MatrixProvider, routes RouteProvider, fetcher *Fetcher) *Optimizer {
	return &Optimizer{
		planner: planner,
		matrix:  matrix,
		routes:  routes,
		fetcher: fetcher,
		log:     log,
	}
}

// Optimize plans a trip through the given stops. ok is false when another
// optimization is already running; the concurrent call is dropped, not
// queued.
func (o *Optimizer) Optimize(ctx context.Context, origin geo.Point, stops []geo.Point, destination geo.Point, mode TravelMode) (plan OptimizationPlan, ok bool) {
	if !o.busy.CompareAndSwap(false, true) {
		return OptimizationPlan{}, false
	}
	defer o.busy.Store(false)

	if o.planner != nil && len(stops) > 0 {
		plan, err := o.planner.FetchPlan(ctx, origin, stops, destination, mode)
		if err == nil && len(plan.Geometry) >= 2 {
			return plan, true
		}
		if err != nil {
			o.log.Debugw("plan provider failed", "provider", o.planner.Name(), "error", err)
		}
	}

	if o.matrix == nil || len(stops) == 0 {
		return o.fallbackPlan(ctx, origin, stops, destination, mode), true
	}

	points := make([]geo.Point, 0, len(stops)+2)
	points = append(points, origin)
	points = append(points, stops...)
	points = append(points, destination)

	matrix, err := o.matrix.TravelTimeMatrix(ctx, points, mode)
	if err != nil || len(matrix) != len(points) {
		o.log.Debugw("travel-time matrix unavailable", "error", err)
		return o.fallbackPlan(ctx, origin, stops, destination, mode), true
	}

	order := nearestNeighborOrder(matrix, len(points))
	ordered := make([]geo.Point, len(order))
	for i, idx := range order {
		ordered[i] = points[idx]
	}

	result, err := o.routes.FetchRoute(ctx, ordered[0], ordered[len(ordered)-1], ordered[1:len(ordered)-1], mode)
	if err != nil || !result.Usable() {
		o.log.Debugw("ordered geometry fetch failed", "error", err)
		return o.fallbackPlan(ctx, origin, stops, destination, mode), true
	}

	return OptimizationPlan{
		OrderedStops:    ordered,
		Geometry:        result.Geometry,
		DurationSeconds: result.DurationSeconds,
		Provider:        result.Provider,
	}, true
}

// fallbackPlan fetches origin/destination directly, ignoring intermediates.
// The ordering step did not run, so the plan carries ProviderNone ordering
// with the trivial input order.
func (o *Optimizer) fallbackPlan(ctx context.Context, origin geo.Point, stops []geo.Point, destination geo.Point, mode TravelMode) OptimizationPlan {
	ordered := make([]geo.Point, 0, len(stops)+2)
	ordered = append(ordered, origin)
	ordered = append(ordered, stops...)
	ordered = append(ordered, destination)

	result, current := o.fetcher.Fetch(ctx, &origin, &destination, mode)
	if !current {
		result = EmptyRoute()
	}

	return OptimizationPlan{
		OrderedStops:    ordered,
		Geometry:        result.Geometry,
		DurationSeconds: result.DurationSeconds,
		Provider:        ProviderNone,
	}
}

// nearestNeighborOrder greedily walks the matrix: start at node 0, repeatedly
// take the cheapest unvisited intermediate (lowest index wins ties), and
// finish at node n-1. The destination is never a candidate mid-tour.
func nearestNeighborOrder(matrix [][]float64, n int) []int {
	order := make([]int, 0, n)
	order = append(order, 0)

	unvisited := make(map[int]bool, n-2)
	for i := 1; i < n-1; i++ {
		unvisited[i] = true
	}

	current := 0
	for len(unvisited) > 0 {
		best := -1
		bestCost := math.Inf(1)
		for j := 1; j < n-1; j++ {
			if !unvisited[j] {
				continue
			}
			cost := matrix[current][j]
			if cost < bestCost {
				bestCost = cost
				best = j
			}
		}
		if best == -1 {
			// Every remaining stop is unreachable; keep input order.
			for j := 1; j < n-1; j++ {
				if unvisited[j] {
					order = append(order, j)
				}
			}
			break
		}
		order = append(order, best)
		delete(unvisited, best)
		current = best
	}

	return append(order, n-1)
}
