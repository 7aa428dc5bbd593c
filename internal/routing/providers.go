package routing

import (
	"context"

	"github.com/sparkpark/navigator/internal/clients/custom"
	"github.com/sparkpark/navigator/internal/clients/google"
	"github.com/sparkpark/navigator/internal/lib/geo"
	"github.com/sparkpark/navigator/internal/lib/polyline"
)

// RouteProvider is one strategy in the route fallback chain. Implementations
// return an error or an unusable result to pass control to the next strategy.
type RouteProvider interface {
	Name() Provider
	FetchRoute(ctx context.Context, origin, destination geo.Point, stops []geo.Point, mode TravelMode) (RouteResult, error)
}

// EtaProvider is one strategy in the duration fallback chain.
type EtaProvider interface {
	Name() Provider
	FetchEta(ctx context.Context, origin, destination geo.Point, mode TravelMode) (float64, error)
}

// MatrixProvider computes pairwise travel times for multi-stop ordering.
type MatrixProvider interface {
	TravelTimeMatrix(ctx context.Context, points []geo.Point, mode TravelMode) ([][]float64, error)
}

// PlanProvider computes a complete multi-stop plan in one call, ordering
// included. It is tried ahead of the matrix + nearest-neighbor pass.
type PlanProvider interface {
	Name() Provider
	FetchPlan(ctx context.Context, origin geo.Point, stops []geo.Point, destination geo.Point, mode TravelMode) (OptimizationPlan, error)
}

// GoogleProvider adapts the Routes API client to the strategy interfaces.
// The two-wheeler mode is not universally supported, so an empty result for
// TWO_WHEELER is retried exactly once as DRIVE before giving up.
type GoogleProvider struct {
	client *google.Client
}

// NewGoogleProvider wraps a Routes API client.
func NewGoogleProvider(client *google.Client) *GoogleProvider {
	return &GoogleProvider{client: client}
}

// Name implements RouteProvider.
func (g *GoogleProvider) Name() Provider { return ProviderGoogle }

// FetchRoute implements RouteProvider.
func (g *GoogleProvider) FetchRoute(ctx context.Context, origin, destination geo.Point, stops []geo.Point, mode TravelMode) (RouteResult, error) {
	googleMode := mode.GoogleMode()

	result, err := g.fetchOnce(ctx, origin, destination, stops, googleMode)
	if err == nil && result.Usable() {
		return result, nil
	}

	if googleMode == google.ModeTwoWheeler {
		fallback, fallbackErr := g.fetchOnce(ctx, origin, destination, stops, google.ModeDrive)
		if fallbackErr == nil && fallback.Usable() {
			return fallback, nil
		}
	}

	if err != nil {
		return RouteResult{}, err
	}
	return result, nil
}

func (g *GoogleProvider) fetchOnce(ctx context.Context, origin, destination geo.Point, stops []geo.Point, mode google.Mode) (RouteResult, error) {
	encoded, err := g.client.ComputeRoute(ctx, origin, destination, stops, mode)
	if err != nil {
		return RouteResult{}, err
	}
	return RouteResult{
		Geometry: polyline.Decode(encoded),
		Provider: ProviderGoogle,
	}, nil
}

// FetchEta implements EtaProvider with the same two-wheeler fallback.
func (g *GoogleProvider) FetchEta(ctx context.Context, origin, destination geo.Point, mode TravelMode) (float64, error) {
	googleMode := mode.GoogleMode()

	seconds, err := g.client.ComputeDuration(ctx, origin, destination, googleMode)
	if err == nil {
		return seconds, nil
	}

	if googleMode == google.ModeTwoWheeler {
		return g.client.ComputeDuration(ctx, origin, destination, google.ModeDrive)
	}

	return 0, err
}

// TravelTimeMatrix implements MatrixProvider.
func (g *GoogleProvider) TravelTimeMatrix(ctx context.Context, points []geo.Point, mode TravelMode) ([][]float64, error) {
	return g.client.ComputeRouteMatrix(ctx, points, mode.GoogleMode())
}

// CustomProvider adapts the self-hosted routing service to the strategy
// interfaces. It sits ahead of Google in the chain when configured.
type CustomProvider struct {
	client *custom.Client
}

// NewCustomProvider wraps a custom routing client.
func NewCustomProvider(client *custom.Client) *CustomProvider {
	return &CustomProvider{client: client}
}

// Name implements RouteProvider.
func (c *CustomProvider) Name() Provider { return ProviderCustom }

// FetchRoute implements RouteProvider.
func (c *CustomProvider) FetchRoute(ctx context.Context, origin, destination geo.Point, stops []geo.Point, mode TravelMode) (RouteResult, error) {
	resp, err := c.client.FetchRoute(ctx, origin, destination, stops, string(mode))
	if err != nil {
		return RouteResult{}, err
	}
	return RouteResult{
		Geometry:        resp.Geometry,
		DurationSeconds: resp.DurationSeconds,
		Provider:        ProviderCustom,
	}, nil
}

// FetchEta implements EtaProvider.
func (c *CustomProvider) FetchEta(ctx context.Context, origin, destination geo.Point, mode TravelMode) (float64, error) {
	return c.client.FetchEta(ctx, origin, destination, string(mode))
}

// FetchPlan implements PlanProvider via the service's /optimize endpoint.
func (c *CustomProvider) FetchPlan(ctx context.Context, origin geo.Point, stops []geo.Point, destination geo.Point, mode TravelMode) (OptimizationPlan, error) {
	resp, err := c.client.Optimize(ctx, origin, stops, destination, string(mode))
	if err != nil {
		return OptimizationPlan{}, err
	}
	return OptimizationPlan{
		OrderedStops:    resp.Ordered,
		Geometry:        resp.Geometry,
		DurationSeconds: resp.DurationSeconds,
		Provider:        ProviderCustom,
	}, nil
}
