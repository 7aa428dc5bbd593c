// Package google provides access to the Google Routes API v2: route
// geometry, duration-only estimates, and pairwise travel-time matrices.
package google

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/sparkpark/navigator/internal/lib/geo"
)

// Mode is the Routes API travel mode vocabulary.
type Mode string

const (
	ModeDrive      Mode = "DRIVE"
	ModeWalk       Mode = "WALK"
	ModeBicycle    Mode = "BICYCLE"
	ModeTwoWheeler Mode = "TWO_WHEELER"
	ModeTransit    Mode = "TRANSIT"
)

// The API rejects departure times at or behind server time, so requests are
// stamped a few minutes into the future.
const departureLead = 10 * time.Minute

// HTTPDoer abstracts the HTTP client for testing.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client is a Google Routes API v2 client.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient HTTPDoer
}

// NewClient creates a client with a bounded-timeout HTTP client.
func NewClient(apiKey string) *Client {
	return NewClientWithHTTPDoer(apiKey, "https://routes.googleapis.com", &http.Client{
		Timeout: 15 * time.Second,
	})
}

// NewClientWithHTTPDoer creates a client with an injected HTTP implementation.
func NewClientWithHTTPDoer(apiKey, baseURL string, httpClient HTTPDoer) *Client {
	return &Client{
		apiKey:     apiKey,
		baseURL:    baseURL,
		httpClient: httpClient,
	}
}

// ComputeRoute requests route geometry between two points, optionally through
// ordered intermediate stops. Only the polyline field is requested; duration
// comes from ComputeDuration so an ETA refresh never re-fetches geometry.
func (c *Client) ComputeRoute(ctx context.Context, origin, destination geo.Point, intermediates []geo.Point, mode Mode) (string, error) {
	body := c.routeRequestBody(origin, destination, intermediates, mode)

	var response routesResponse
	if err := c.post(ctx, "/directions/v2:computeRoutes", "routes.polyline.encodedPolyline", body, &response); err != nil {
		return "", err
	}

	if len(response.Routes) == 0 {
		return "", fmt.Errorf("no routes found in response")
	}

	return response.Routes[0].Polyline.EncodedPolyline, nil
}

// ComputeDuration requests travel duration between two points. Only the
// duration field is requested.
func (c *Client) ComputeDuration(ctx context.Context, origin, destination geo.Point, mode Mode) (float64, error) {
	body := c.routeRequestBody(origin, destination, nil, mode)

	var response routesResponse
	if err := c.post(ctx, "/directions/v2:computeRoutes", "routes.duration", body, &response); err != nil {
		return 0, err
	}

	if len(response.Routes) == 0 {
		return 0, fmt.Errorf("no routes found in response")
	}

	seconds, err := parseDurationString(response.Routes[0].Duration)
	if err != nil {
		return 0, fmt.Errorf("failed to parse duration: %w", err)
	}

	return seconds, nil
}

// ComputeRouteMatrix requests pairwise travel times between every pair of the
// given points. The result is an NxN matrix of seconds; missing elements are
// +Inf.
func (c *Client) ComputeRouteMatrix(ctx context.Context, points []geo.Point, mode Mode) ([][]float64, error) {
	waypoints := make([]locationWrapper, len(points))
	for i, p := range points {
		waypoints[i] = wrapLocation(p)
	}

	body := map[string]interface{}{
		"origins":       waypoints,
		"destinations":  waypoints,
		"travelMode":    string(mode),
		"departureTime": departureTime(),
	}

	jsonBody, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/distanceMatrix/v2:computeRouteMatrix", bytes.NewBuffer(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("X-Goog-Api-Key", c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("API error %d: %s", resp.StatusCode, string(respBody))
	}

	// The matrix endpoint returns a flat list of elements.
	var elements []matrixElement
	if err := json.NewDecoder(resp.Body).Decode(&elements); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	n := len(points)
	matrix := make([][]float64, n)
	for i := range matrix {
		matrix[i] = make([]float64, n)
		for j := range matrix[i] {
			matrix[i][j] = math.Inf(1)
		}
	}

	for _, el := range elements {
		if el.OriginIndex < 0 || el.OriginIndex >= n || el.DestinationIndex < 0 || el.DestinationIndex >= n {
			continue
		}
		seconds, ok := el.Duration.Seconds()
		if ok {
			matrix[el.OriginIndex][el.DestinationIndex] = seconds
		}
	}

	return matrix, nil
}

// post issues a computeRoutes-style request with the given field mask.
func (c *Client) post(ctx context.Context, path, fieldMask string, body map[string]interface{}, out interface{}) error {
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+path, bytes.NewBuffer(jsonBody))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	// The field mask is mandatory; the API errors without one. Geometry and
	// duration calls mask to exactly one field for cost and latency parity.
	req.Header.Set("X-Goog-Api-Key", c.apiKey)
	req.Header.Set("X-Goog-FieldMask", fieldMask)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == 429 {
		return fmt.Errorf("rate limit exceeded")
	}
	if resp.StatusCode >= 400 {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("API error %d: %s", resp.StatusCode, string(respBody))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return nil
}

func (c *Client) routeRequestBody(origin, destination geo.Point, intermediates []geo.Point, mode Mode) map[string]interface{} {
	body := map[string]interface{}{
		"origin":                  wrapLocation(origin),
		"destination":             wrapLocation(destination),
		"travelMode":              string(mode),
		"routingPreference":       routingPreference(mode),
		"computeAlternativeRoutes": false,
	}

	if len(intermediates) > 0 {
		wrapped := make([]locationWrapper, len(intermediates))
		for i, p := range intermediates {
			wrapped[i] = wrapLocation(p)
		}
		body["intermediates"] = wrapped
	}

	// Transit and traffic-aware modes take a departure time.
	if mode == ModeDrive || mode == ModeTwoWheeler || mode == ModeTransit {
		body["departureTime"] = departureTime()
	}

	return body
}

func routingPreference(mode Mode) string {
	if mode == ModeDrive || mode == ModeTwoWheeler {
		return "TRAFFIC_AWARE"
	}
	return "ROUTING_PREFERENCE_UNSPECIFIED"
}

func departureTime() map[string]int64 {
	return map[string]int64{"seconds": time.Now().Add(departureLead).Unix()}
}

// parseDurationString parses the API's "450s" duration format to seconds.
func parseDurationString(durationStr string) (float64, error) {
	if durationStr == "" {
		return 0, fmt.Errorf("empty duration string")
	}
	trimmed := strings.TrimSuffix(durationStr, "s")
	if trimmed == durationStr {
		return 0, fmt.Errorf("duration %q missing seconds suffix", durationStr)
	}
	seconds, err := strconv.ParseFloat(trimmed, 64)
	if err != nil {
		return 0, err
	}
	return seconds, nil
}

// locationWrapper is the API's nested location shape.
type locationWrapper struct {
	Location latLngWrapper `json:"location"`
}

type latLngWrapper struct {
	LatLng latLng `json:"latLng"`
}

type latLng struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

func wrapLocation(p geo.Point) locationWrapper {
	return locationWrapper{Location: latLngWrapper{LatLng: latLng{
		Latitude:  p.Latitude,
		Longitude: p.Longitude,
	}}}
}

// routesResponse is the computeRoutes response structure.
type routesResponse struct {
	Routes []routeEntry `json:"routes"`
}

type routeEntry struct {
	Duration string        `json:"duration"`
	Polyline routePolyline `json:"polyline"`
}

type routePolyline struct {
	EncodedPolyline string `json:"encodedPolyline"`
}

// matrixElement is one entry of the computeRouteMatrix flat response list.
type matrixElement struct {
	OriginIndex      int              `json:"originIndex"`
	DestinationIndex int              `json:"destinationIndex"`
	Duration         flexibleDuration `json:"duration"`
}

// flexibleDuration accepts the three duration shapes the matrix endpoint has
// been observed to return: "123s", a bare number, or {"seconds": 123}.
type flexibleDuration struct {
	raw json.RawMessage
}

func (d *flexibleDuration) UnmarshalJSON(data []byte) error {
	d.raw = append(d.raw[:0], data...)
	return nil
}

// Seconds returns the duration in seconds; ok is false when the value is
// absent or unrecognized.
func (d flexibleDuration) Seconds() (float64, bool) {
	if len(d.raw) == 0 || string(d.raw) == "null" {
		return 0, false
	}

	var asString string
	if err := json.Unmarshal(d.raw, &asString); err == nil {
		seconds, err := parseDurationString(asString)
		if err != nil {
			return 0, false
		}
		return seconds, true
	}

	var asNumber float64
	if err := json.Unmarshal(d.raw, &asNumber); err == nil {
		return asNumber, true
	}

	var asObject struct {
		Seconds float64 `json:"seconds"`
	}
	if err := json.Unmarshal(d.raw, &asObject); err == nil {
		return asObject.Seconds, true
	}

	return 0, false
}
