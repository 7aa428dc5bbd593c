// Package parking consumes the parking recommendation service. The service
// ranks candidate parkings for a user location and hour of day; the ranking
// model is opaque to this client.
package parking

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// HTTPDoer abstracts the HTTP client for testing.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Recommendation is one ranked parking candidate.
type Recommendation struct {
	Index         int      `json:"index"`
	Name          *string  `json:"name"`
	Address       *string  `json:"address"`
	City          *string  `json:"city"`
	Lat           float64  `json:"lat"`
	Lng           float64  `json:"lng"`
	DistanceKm    float64  `json:"distance_km"`
	OpenNow       bool     `json:"open_now"`
	Opening       *string  `json:"opening"`
	Closing       *string  `json:"closing"`
	Guards        int      `json:"guards"`
	CCTVs         int      `json:"cctvs"`
	InitialRate   float64  `json:"initial_rate"`
	PWDDiscount   float64  `json:"pwd_discount"`
	StreetParking int      `json:"street_parking"`
	Score         float64  `json:"score"`
}

// Client is a recommendation service client.
type Client struct {
	baseURL    string
	httpClient HTTPDoer
}

// NewClient creates a client for the given service base URL.
func NewClient(baseURL string) *Client {
	return NewClientWithHTTPDoer(baseURL, &http.Client{Timeout: 15 * time.Second})
}

// NewClientWithHTTPDoer creates a client with an injected HTTP implementation.
func NewClientWithHTTPDoer(baseURL string, httpClient HTTPDoer) *Client {
	return &Client{baseURL: baseURL, httpClient: httpClient}
}

// Recommend returns the ranked parking list for a user position. timeOfDay is
// the local hour 0-23.
func (c *Client) Recommend(ctx context.Context, userLat, userLng float64, timeOfDay int) ([]Recommendation, error) {
	body := map[string]interface{}{
		"user_lat":    userLat,
		"user_lng":    userLng,
		"time_of_day": timeOfDay,
	}

	jsonBody, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/recommend", bytes.NewBuffer(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
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

	var response struct {
		Recommendations []Recommendation `json:"recommendations"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	return response.Recommendations, nil
}
