package routing

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/sparkpark/navigator/internal/lib/geo"
)

// Estimator requests travel duration independently of route geometry so an
// ETA refresh never re-fetches a polyline.
type Estimator struct {
	providers []EtaProvider
	log       *zap.SugaredLogger
}

// NewEstimator creates an Estimator trying providers in order.
func NewEstimator(log *zap.SugaredLogger, providers ...EtaProvider) *Estimator {
	return &Estimator{
		providers: providers,
		log:       log,
	}
}

// Estimate returns the travel duration for the pair. A missing endpoint or a
// failure of every provider yields {nil, none}; Estimate never errors.
func (e *Estimator) Estimate(ctx context.Context, origin, destination *geo.Point, mode TravelMode) Eta {
	if origin == nil || destination == nil {
		return Eta{Provider: ProviderNone}
	}

	for _, provider := range e.providers {
		seconds, err := provider.FetchEta(ctx, *origin, *destination, mode)
		if err != nil {
			e.log.Debugw("eta provider failed", "provider", provider.Name(), "error", err)
			continue
		}
		if math.IsNaN(seconds) || math.IsInf(seconds, 0) || seconds < 0 {
			continue
		}
		return Eta{Seconds: &seconds, Provider: provider.Name()}
	}

	return Eta{Provider: ProviderNone}
}

// FormatDuration renders seconds for display: minutes below an hour, then
// "H hr M min" with the minutes omitted when zero.
func FormatDuration(seconds float64) string {
	mins := int(math.Round(seconds / 60))
	if mins < 60 {
		return fmt.Sprintf("%d min", mins)
	}
	h := mins / 60
	m := mins % 60
	if m == 0 {
		return fmt.Sprintf("%d hr", h)
	}
	return fmt.Sprintf("%d hr %d min", h, m)
}

// ArrivalClockTime renders now plus the given duration as 24-hour "H:MM";
// only the minutes are zero-padded.
func ArrivalClockTime(seconds float64, now time.Time) string {
	arrive := now.Add(time.Duration(math.Max(0, seconds)) * time.Second)
	return fmt.Sprintf("%d:%02d", arrive.Hour(), arrive.Minute())
}
