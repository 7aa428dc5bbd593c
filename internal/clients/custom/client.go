// Package custom talks to a self-hosted routing service exposing /route,
// /eta and /optimize endpoints. When configured it is preferred over the
// public directions provider.
package custom

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/sparkpark/navigator/internal/lib/geo"
)

// HTTPDoer abstracts the HTTP client for testing.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// RouteResponse is a decoded /route result.
type RouteResponse struct {
	Geometry        []geo.Point
	DurationSeconds *float64
}

// OptimizeResponse is a decoded /optimize result.
type OptimizeResponse struct {
	Ordered         []geo.Point
	Geometry        []geo.Point
	DurationSeconds *float64
}

// Client is a custom routing service client.
type Client struct {
	baseURL    string
	token      string
	httpClient HTTPDoer
}

// NewClient creates a client for the given base URL. token may be empty.
func NewClient(baseURL, token string) *Client {
	return NewClientWithHTTPDoer(baseURL, token, &http.Client{
		Timeout: 15 * time.Second,
	})
}

// NewClientWithHTTPDoer creates a client with an injected HTTP implementation.
func NewClientWithHTTPDoer(baseURL, token string, httpClient HTTPDoer) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: httpClient,
	}
}

// FetchRoute requests route geometry, optionally through stops.
func (c *Client) FetchRoute(ctx context.Context, origin, destination geo.Point, stops []geo.Point, mode string) (*RouteResponse, error) {
	body := map[string]interface{}{
		"origin":      wirePoint(origin),
		"destination": wirePoint(destination),
		"mode":        mode,
	}
	if len(stops) > 0 {
		wired := make([]map[string]float64, len(stops))
		for i, s := range stops {
			wired[i] = wirePoint(s)
		}
		body["stops"] = wired
	}

	var raw map[string]json.RawMessage
	if err := c.post(ctx, "/route", body, &raw); err != nil {
		return nil, err
	}

	geometry, err := extractGeometry(raw)
	if err != nil {
		return nil, err
	}

	return &RouteResponse{
		Geometry:        geometry,
		DurationSeconds: extractSeconds(raw),
	}, nil
}

// FetchEta requests travel duration in seconds.
func (c *Client) FetchEta(ctx context.Context, origin, destination geo.Point, mode string) (float64, error) {
	body := map[string]interface{}{
		"origin":      wirePoint(origin),
		"destination": wirePoint(destination),
		"mode":        mode,
		"departAt":    time.Now().UTC().Format(time.RFC3339),
	}

	var raw map[string]json.RawMessage
	if err := c.post(ctx, "/eta", body, &raw); err != nil {
		return 0, err
	}

	if seconds := extractSeconds(raw); seconds != nil {
		return *seconds, nil
	}
	return 0, fmt.Errorf("no recognizable duration in eta response")
}

// Optimize requests an ordered multi-stop plan.
func (c *Client) Optimize(ctx context.Context, origin geo.Point, stops []geo.Point, destination geo.Point, mode string) (*OptimizeResponse, error) {
	wired := make([]map[string]float64, len(stops))
	for i, s := range stops {
		wired[i] = wirePoint(s)
	}
	body := map[string]interface{}{
		"origin":      wirePoint(origin),
		"destination": wirePoint(destination),
		"stops":       wired,
		"mode":        mode,
	}

	var raw map[string]json.RawMessage
	if err := c.post(ctx, "/optimize", body, &raw); err != nil {
		return nil, err
	}

	orderedRaw, ok := raw["ordered"]
	if !ok {
		return nil, fmt.Errorf("no ordered stops in optimize response")
	}
	ordered, err := decodeCoordinateList(orderedRaw)
	if err != nil {
		return nil, fmt.Errorf("bad ordered stops: %w", err)
	}

	out := &OptimizeResponse{
		Ordered:         ordered,
		DurationSeconds: extractSeconds(raw),
	}
	if geometryRaw, ok := raw["geometry"]; ok {
		geometry, err := decodeCoordinateList(geometryRaw)
		if err != nil {
			return nil, fmt.Errorf("bad geometry: %w", err)
		}
		out.Geometry = geometry
	}

	return out, nil
}

func (c *Client) post(ctx context.Context, path string, body interface{}, out interface{}) error {
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+path, bytes.NewBuffer(jsonBody))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("API error %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return nil
}

func wirePoint(p geo.Point) map[string]float64 {
	return map[string]float64{"lat": p.Latitude, "lon": p.Longitude}
}

// extractGeometry pulls geometry out of a /route response, accepting the
// top-level "geometry" key or a nested "route.geometry".
func extractGeometry(raw map[string]json.RawMessage) ([]geo.Point, error) {
	if geometryRaw, ok := raw["geometry"]; ok {
		return decodeCoordinateList(geometryRaw)
	}
	if routeRaw, ok := raw["route"]; ok {
		var nested map[string]json.RawMessage
		if err := json.Unmarshal(routeRaw, &nested); err == nil {
			if geometryRaw, ok := nested["geometry"]; ok {
				return decodeCoordinateList(geometryRaw)
			}
		}
	}
	return nil, fmt.Errorf("no geometry in route response")
}

// decodeCoordinateList accepts the three coordinate shapes custom servers
// return: [lon,lat] pairs, {lat,lon} objects, or {latitude,longitude}
// objects.
func decodeCoordinateList(raw json.RawMessage) ([]geo.Point, error) {
	var elements []json.RawMessage
	if err := json.Unmarshal(raw, &elements); err != nil {
		return nil, fmt.Errorf("geometry is not a list: %w", err)
	}

	points := make([]geo.Point, 0, len(elements))
	for _, el := range elements {
		var pair []float64
		if err := json.Unmarshal(el, &pair); err == nil {
			if len(pair) < 2 {
				return nil, fmt.Errorf("coordinate pair has %d elements", len(pair))
			}
			// Pairs are GeoJSON-ordered: [lon, lat].
			points = append(points, geo.Point{Latitude: pair[1], Longitude: pair[0]})
			continue
		}

		var obj struct {
			Lat       *float64 `json:"lat"`
			Lon       *float64 `json:"lon"`
			Latitude  *float64 `json:"latitude"`
			Longitude *float64 `json:"longitude"`
		}
		if err := json.Unmarshal(el, &obj); err != nil {
			return nil, fmt.Errorf("unrecognized coordinate element: %w", err)
		}
		switch {
		case obj.Lat != nil && obj.Lon != nil:
			points = append(points, geo.Point{Latitude: *obj.Lat, Longitude: *obj.Lon})
		case obj.Latitude != nil && obj.Longitude != nil:
			points = append(points, geo.Point{Latitude: *obj.Latitude, Longitude: *obj.Longitude})
		default:
			return nil, fmt.Errorf("coordinate element missing lat/lon fields")
		}
	}

	return points, nil
}

// extractSeconds accepts the duration keys custom servers use: seconds,
// etaSeconds, durationSeconds, duration (number), a nested route.duration,
// or an "eta" string like "123s".
func extractSeconds(raw map[string]json.RawMessage) *float64 {
	for _, key := range []string{"seconds", "etaSeconds", "durationSeconds", "duration"} {
		if v, ok := raw[key]; ok {
			var n float64
			if err := json.Unmarshal(v, &n); err == nil {
				return &n
			}
		}
	}

	if routeRaw, ok := raw["route"]; ok {
		var nested struct {
			Duration *float64 `json:"duration"`
		}
		if err := json.Unmarshal(routeRaw, &nested); err == nil && nested.Duration != nil {
			return nested.Duration
		}
	}

	if v, ok := raw["eta"]; ok {
		var s string
		if err := json.Unmarshal(v, &s); err == nil && strings.HasSuffix(s, "s") {
			if n, err := strconv.ParseFloat(strings.TrimSuffix(s, "s"), 64); err == nil {
				return &n
			}
		}
	}

	return nil
}
