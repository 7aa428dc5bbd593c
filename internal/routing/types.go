// Package routing turns origin/destination pairs into displayable routes:
// provider fallback chains, single-flight fetches, duration estimates and
// multi-stop ordering.
package routing

import (
	"fmt"

	"github.com/sparkpark/navigator/internal/clients/google"
	"github.com/sparkpark/navigator/internal/lib/geo"
)

// TravelMode is the abstract transportation category used throughout the app.
type TravelMode string

const (
	ModeCar     TravelMode = "car"
	ModeWalk    TravelMode = "walk"
	ModeMotor   TravelMode = "motor"
	ModeCommute TravelMode = "commute"
)

// ParseTravelMode validates a wire-format mode string.
func ParseTravelMode(s string) (TravelMode, error) {
	switch TravelMode(s) {
	case ModeCar, ModeWalk, ModeMotor, ModeCommute:
		return TravelMode(s), nil
	}
	return "", fmt.Errorf("unknown travel mode %q", s)
}

// GoogleMode maps the abstract mode to the Routes API vocabulary.
func (m TravelMode) GoogleMode() google.Mode {
	switch m {
	case ModeWalk:
		return google.ModeWalk
	case ModeMotor:
		return google.ModeTwoWheeler
	case ModeCommute:
		return google.ModeTransit
	default:
		return google.ModeDrive
	}
}

// Provider identifies which backend produced a result.
type Provider string

const (
	ProviderGoogle Provider = "google"
	ProviderCustom Provider = "custom"
	ProviderNone   Provider = "none"
)

// RouteResult is a computed route. A failed or absent computation is the
// empty geometry with ProviderNone, never an error: the caller treats it as
// "no route to display".
type RouteResult struct {
	Geometry        []geo.Point `json:"geometry"`
	DurationSeconds *float64    `json:"durationSeconds"`
	Provider        Provider    `json:"provider"`
}

// Usable reports whether the geometry can be displayed. A single-point route
// is a provider artifact and counts as unusable.
func (r RouteResult) Usable() bool {
	return len(r.Geometry) >= 2
}

// EmptyRoute is the "nothing to compute" result.
func EmptyRoute() RouteResult {
	return RouteResult{Provider: ProviderNone}
}

// Eta is a duration estimate. Seconds is nil when no provider could answer.
type Eta struct {
	Seconds  *float64 `json:"seconds"`
	Provider Provider `json:"provider"`
}

// OptimizationPlan is the outcome of a multi-stop ordering pass. Provider
// reflects the ordering step: ProviderNone means the stop order is the
// trivial input order.
type OptimizationPlan struct {
	OrderedStops    []geo.Point `json:"orderedStops"`
	Geometry        []geo.Point `json:"geometry"`
	DurationSeconds *float64    `json:"durationSeconds"`
	Provider        Provider    `json:"provider"`
}

// Route converts the plan into the RouteResult consumed by the map session.
func (p OptimizationPlan) Route() RouteResult {
	return RouteResult{
		Geometry:        p.Geometry,
		DurationSeconds: p.DurationSeconds,
		Provider:        p.Provider,
	}
}
