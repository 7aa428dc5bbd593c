// Package placeindex maintains an R-tree over saved parking spots so nearby
// lookups stay cheap as the saved set grows. The index rebuilds itself from
// the store on every mutation via the store's subscription hook.
package placeindex

import (
	"context"
	"sort"
	"sync"

	"github.com/dhconnelly/rtreego"
	"go.uber.org/zap"

	"github.com/sparkpark/navigator/internal/lib/geo"
	"github.com/sparkpark/navigator/internal/store"
)

const (
	dimensions  = 2
	minChildren = 2
	maxChildren = 8

	// Rough meters per degree of latitude; good enough for bounding-box
	// pre-filtering, exact distances are computed afterwards.
	metersPerDegree = 111195
)

// pointTolerance is the degenerate-rect size for indexed points.
const pointTolerance = 0.00001

// spatialParking adapts a saved parking to the rtreego.Spatial interface.
type spatialParking struct {
	parking store.SavedParking
	rect    *rtreego.Rect
}

func (s *spatialParking) Bounds() *rtreego.Rect {
	return s.rect
}

// Index is a thread-safe spatial index over saved parkings.
type Index struct {
	source store.SavedParkingStore
	geo    geo.Utils
	log    *zap.SugaredLogger

	mu    sync.RWMutex
	tree  *rtreego.Rtree
	unsub func()
}

// New builds the index from the store's current contents and subscribes to
// its mutations.
func New(log *zap.SugaredLogger, source store.SavedParkingStore, utils geo.Utils) *Index {
	idx := &Index{
		source: source,
		geo:    utils,
		log:    log,
		tree:   rtreego.NewTree(dimensions, minChildren, maxChildren),
	}
	idx.Rebuild(context.Background())
	idx.unsub = source.Subscribe(func() {
		idx.Rebuild(context.Background())
	})
	return idx
}

// Close detaches the index from the store.
func (i *Index) Close() {
	if i.unsub != nil {
		i.unsub()
	}
}

// Rebuild reloads the tree from the store. A store failure keeps the
// previous tree.
func (i *Index) Rebuild(ctx context.Context) {
	parkings, err := i.source.List(ctx)
	if err != nil {
		i.log.Warnw("place index rebuild failed", "error", err)
		return
	}

	tree := rtreego.NewTree(dimensions, minChildren, maxChildren)
	for _, p := range parkings {
		tree.Insert(newSpatialParking(p))
	}

	i.mu.Lock()
	i.tree = tree
	i.mu.Unlock()
}

// Nearby returns saved parkings within radiusMeters of center, closest
// first.
func (i *Index) Nearby(center geo.Point, radiusMeters float64) []store.SavedParking {
	deg := radiusMeters / metersPerDegree
	rect, err := rtreego.NewRect(
		rtreego.Point{center.Latitude - deg, center.Longitude - deg},
		[]float64{2 * deg, 2 * deg},
	)
	if err != nil {
		return nil
	}

	i.mu.RLock()
	candidates := i.tree.SearchIntersect(rect)
	i.mu.RUnlock()

	type scored struct {
		parking store.SavedParking
		meters  float64
	}
	matches := make([]scored, 0, len(candidates))
	for _, c := range candidates {
		sp := c.(*spatialParking)
		meters, err := i.geo.PointToPoint(center, sp.parking.Point)
		if err != nil || meters > radiusMeters {
			continue
		}
		matches = append(matches, scored{parking: sp.parking, meters: meters})
	}
	sort.Slice(matches, func(a, b int) bool {
		return matches[a].meters < matches[b].meters
	})

	out := make([]store.SavedParking, len(matches))
	for n, m := range matches {
		out[n] = m.parking
	}
	return out
}

// Nearest returns the n saved parkings closest to center.
func (i *Index) Nearest(center geo.Point, n int) []store.SavedParking {
	if n <= 0 {
		return nil
	}

	i.mu.RLock()
	results := i.tree.NearestNeighbors(n, rtreego.Point{center.Latitude, center.Longitude})
	i.mu.RUnlock()

	out := make([]store.SavedParking, 0, len(results))
	for _, r := range results {
		if r == nil {
			continue
		}
		out = append(out, r.(*spatialParking).parking)
	}
	return out
}

func newSpatialParking(p store.SavedParking) *spatialParking {
	point := rtreego.Point{p.Point.Latitude, p.Point.Longitude}
	return &spatialParking{parking: p, rect: point.ToRect(pointTolerance)}
}
