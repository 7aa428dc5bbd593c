// Package search resolves free-text queries to map places through a
// geocoding backend, with debouncing and cancellation suited to
// keystroke-driven input.
package search

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sparkpark/navigator/internal/clients/nominatim"
	"github.com/sparkpark/navigator/internal/lib/geo"
)

// Queries shorter than this never reach the geocoder.
const minQueryLen = 2

// Geocoder is the backend the gateway resolves against.
type Geocoder interface {
	Search(ctx context.Context, query string, limit int) ([]nominatim.Result, error)
	Reverse(ctx context.Context, point geo.Point) (string, error)
}

// Place is a resolved search candidate. DistanceKm is set when the caller
// supplied a reference point.
type Place struct {
	Name       string    `json:"name"`
	Address    string    `json:"address"`
	Point      geo.Point `json:"point"`
	DistanceKm *float64  `json:"distanceKm,omitempty"`
}

// Gateway debounces and serializes geocoding lookups. Rapid successive
// queries collapse into one request, and a query issued while an earlier one
// is still in flight cancels it. Results for a superseded query are never
// delivered.
type Gateway struct {
	geocoder Geocoder
	geo      geo.Utils
	log      *zap.SugaredLogger
	debounce time.Duration
	limit    int

	mu     sync.Mutex
	timer  *time.Timer
	gen    uint64
	cancel context.CancelFunc
}

// NewGateway creates a Gateway. debounce is the quiet period before a query
// is dispatched; limit caps the candidate count per query.
func NewGateway(log *zap.SugaredLogger, geocoder Geocoder, utils geo.Utils, debounce time.Duration, limit int) *Gateway {
	if limit <= 0 {
		limit = 8
	}
	return &Gateway{
		geocoder: geocoder,
		geo:      utils,
		log:      log,
		debounce: debounce,
		limit:    limit,
	}
}

// Search schedules a debounced lookup. deliver runs on a background goroutine
// once the quiet period elapses and the geocoder responds; it is skipped
// entirely when a newer Search supersedes this one. A query below the minimum
// length delivers an empty result immediately and cancels any pending lookup.
func (g *Gateway) Search(query string, ref *geo.Point, deliver func(places []Place)) {
	g.mu.Lock()
	g.gen++
	gen := g.gen
	if g.timer != nil {
		g.timer.Stop()
	}
	if g.cancel != nil {
		g.cancel()
		g.cancel = nil
	}

	if len(strings.TrimSpace(query)) < minQueryLen {
		g.mu.Unlock()
		deliver(nil)
		return
	}

	g.timer = time.AfterFunc(g.debounce, func() {
		g.run(gen, query, ref, deliver)
	})
	g.mu.Unlock()
}

func (g *Gateway) run(gen uint64, query string, ref *geo.Point, deliver func(places []Place)) {
	g.mu.Lock()
	if gen != g.gen {
		g.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	g.cancel = cancel
	g.mu.Unlock()

	results, err := g.geocoder.Search(ctx, query, g.limit)
	if err != nil {
		g.log.Debugw("geocoder search failed", "query", query, "error", err)
	}

	g.mu.Lock()
	stale := gen != g.gen
	g.mu.Unlock()
	if stale {
		return
	}
	if err != nil {
		deliver(nil)
		return
	}
	deliver(g.places(results, ref))
}

// SearchNow performs an immediate, non-debounced lookup. It bypasses the
// gateway's in-flight tracking, so it is safe to call from request handlers
// without disturbing a live typing session.
func (g *Gateway) SearchNow(ctx context.Context, query string, ref *geo.Point) ([]Place, error) {
	if len(strings.TrimSpace(query)) < minQueryLen {
		return nil, nil
	}
	results, err := g.geocoder.Search(ctx, query, g.limit)
	if err != nil {
		return nil, err
	}
	return g.places(results, ref), nil
}

// ResolveFirst resolves a query to its single best candidate, or nil when
// nothing matches.
func (g *Gateway) ResolveFirst(ctx context.Context, query string) (*Place, error) {
	if len(strings.TrimSpace(query)) < minQueryLen {
		return nil, nil
	}
	results, err := g.geocoder.Search(ctx, query, 1)
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, nil
	}
	places := g.places(results[:1], nil)
	return &places[0], nil
}

// ReverseAddress resolves a coordinate to a display address.
func (g *Gateway) ReverseAddress(ctx context.Context, point geo.Point) (string, error) {
	return g.geocoder.Reverse(ctx, point)
}

// Close cancels any pending or in-flight lookup.
func (g *Gateway) Close() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.gen++
	if g.timer != nil {
		g.timer.Stop()
		g.timer = nil
	}
	if g.cancel != nil {
		g.cancel()
		g.cancel = nil
	}
}

func (g *Gateway) places(results []nominatim.Result, ref *geo.Point) []Place {
	places := make([]Place, 0, len(results))
	for _, r := range results {
		place := Place{
			Name:    ShortAddress(r.DisplayName),
			Address: r.DisplayName,
			Point:   r.Point,
		}
		if ref != nil {
			if meters, err := g.geo.PointToPoint(*ref, r.Point); err == nil {
				km := meters / 1000
				place.DistanceKm = &km
			}
		}
		places = append(places, place)
	}
	return places
}

// ShortAddress trims a full display address down to its two leading
// components, which is what fits on a result row.
func ShortAddress(displayName string) string {
	parts := strings.Split(displayName, ",")
	if len(parts) <= 2 {
		return strings.TrimSpace(displayName)
	}
	return strings.TrimSpace(parts[0]) + ", " + strings.TrimSpace(parts[1])
}
