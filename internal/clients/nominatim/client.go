// Package nominatim provides free-text and reverse geocoding against the
// OpenStreetMap Nominatim API.
package nominatim

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/sparkpark/navigator/internal/lib/geo"
)

// HTTPDoer abstracts the HTTP client for testing.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Result is one geocoding candidate. Lat/lon arrive as strings on the wire
// and are parsed into the Point.
type Result struct {
	DisplayName string
	Point       geo.Point
}

// Client is a Nominatim API client.
type Client struct {
	baseURL    string
	userAgent  string
	httpClient HTTPDoer
}

// NewClient creates a client for the given Nominatim endpoint. Nominatim's
// usage policy requires an identifying User-Agent.
func NewClient(baseURL, userAgent string) *Client {
	return NewClientWithHTTPDoer(baseURL, userAgent, &http.Client{
		Timeout: 15 * time.Second,
	})
}

// NewClientWithHTTPDoer creates a client with an injected HTTP implementation.
func NewClientWithHTTPDoer(baseURL, userAgent string, httpClient HTTPDoer) *Client {
	return &Client{
		baseURL:    baseURL,
		userAgent:  userAgent,
		httpClient: httpClient,
	}
}

// Search resolves a free-text query to up to limit candidates.
func (c *Client) Search(ctx context.Context, query string, limit int) ([]Result, error) {
	params := url.Values{}
	params.Set("format", "json")
	params.Set("limit", strconv.Itoa(limit))
	params.Set("addressdetails", "1")
	params.Set("q", query)

	var rows []searchRow
	if err := c.get(ctx, "/search", params, &rows); err != nil {
		return nil, err
	}

	results := make([]Result, 0, len(rows))
	for _, row := range rows {
		lat, latErr := strconv.ParseFloat(row.Lat, 64)
		lon, lonErr := strconv.ParseFloat(row.Lon, 64)
		if latErr != nil || lonErr != nil {
			continue
		}
		results = append(results, Result{
			DisplayName: row.DisplayName,
			Point:       geo.Point{Latitude: lat, Longitude: lon},
		})
	}

	return results, nil
}

// Reverse resolves a coordinate to a display name.
func (c *Client) Reverse(ctx context.Context, point geo.Point) (string, error) {
	params := url.Values{}
	params.Set("format", "json")
	params.Set("addressdetails", "1")
	params.Set("lat", strconv.FormatFloat(point.Latitude, 'f', -1, 64))
	params.Set("lon", strconv.FormatFloat(point.Longitude, 'f', -1, 64))

	var row searchRow
	if err := c.get(ctx, "/reverse", params, &row); err != nil {
		return "", err
	}

	if row.DisplayName == "" {
		return "", fmt.Errorf("no display name in reverse geocode response")
	}

	return row.DisplayName, nil
}

func (c *Client) get(ctx context.Context, path string, params url.Values, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+path+"?"+params.Encode(), nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept-Language", "en")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("API error %d: %s", resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return nil
}

// searchRow is the wire shape shared by /search elements and /reverse.
type searchRow struct {
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
	DisplayName string `json:"display_name"`
}
