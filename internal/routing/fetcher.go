package routing

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/sparkpark/navigator/internal/lib/geo"
)

// Fetcher requests route geometry through an ordered provider chain. It
// enforces the at-most-one-in-flight invariant: each call cancels the
// previous in-flight fetch, and a superseded call reports itself stale so
// its result is never committed over newer state.
type Fetcher struct {
	providers []RouteProvider
	log       *zap.SugaredLogger

	mu     sync.Mutex
	gen    uint64
	cancel context.CancelFunc
}

// NewFetcher creates a Fetcher trying providers in order.
func NewFetcher(log *zap.SugaredLogger, providers ...RouteProvider) *Fetcher {
	return &Fetcher{
		providers: providers,
		log:       log,
	}
}

// Fetch computes a route. A nil endpoint yields an empty result immediately
// with no provider call; this is the valid "nothing to compute" state.
//
// current is false when a newer Fetch started while this one was running;
// the caller must then discard the result.
func (f *Fetcher) Fetch(ctx context.Context, origin, destination *geo.Point, mode TravelMode) (result RouteResult, current bool) {
	if origin == nil || destination == nil {
		return EmptyRoute(), true
	}

	f.mu.Lock()
	f.gen++
	myGen := f.gen
	if f.cancel != nil {
		f.cancel()
	}
	fetchCtx, cancel := context.WithCancel(ctx)
	f.cancel = cancel
	f.mu.Unlock()

	defer cancel()

	result = f.fetchChain(fetchCtx, *origin, *destination, mode)

	f.mu.Lock()
	current = f.gen == myGen
	if current {
		f.cancel = nil
	}
	f.mu.Unlock()

	return result, current
}

// fetchChain tries each provider in order and returns the first usable
// route. All failures degrade to the empty route.
func (f *Fetcher) fetchChain(ctx context.Context, origin, destination geo.Point, mode TravelMode) RouteResult {
	for _, provider := range f.providers {
		result, err := provider.FetchRoute(ctx, origin, destination, nil, mode)
		if err != nil {
			if ctx.Err() != nil {
				// Cancellation is not an error; the caller's staleness
				// check discards the result.
				return EmptyRoute()
			}
			f.log.Debugw("route provider failed", "provider", provider.Name(), "error", err)
			continue
		}
		if !result.Usable() {
			f.log.Debugw("route provider returned no usable geometry", "provider", provider.Name())
			continue
		}
		return result
	}

	return EmptyRoute()
}
