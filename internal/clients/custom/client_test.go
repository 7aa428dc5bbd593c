package custom

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sparkpark/navigator/internal/lib/geo"
)

var (
	origin      = geo.Point{Latitude: 14.5995, Longitude: 120.9842}
	destination = geo.Point{Latitude: 14.6091, Longitude: 120.9823}
)

func TestFetchRoute_GeometryShapes(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"lon-lat pairs", `{"geometry":[[120.9842,14.5995],[120.9823,14.6091]],"durationSeconds":300}`},
		{"lat-lon objects", `{"geometry":[{"lat":14.5995,"lon":120.9842},{"lat":14.6091,"lon":120.9823}],"duration":300}`},
		{"full-name objects", `{"route":{"geometry":[{"latitude":14.5995,"longitude":120.9842},{"latitude":14.6091,"longitude":120.9823}],"duration":300}}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/route", r.URL.Path)
				assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))

				var req map[string]interface{}
				require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
				assert.Equal(t, "car", req["mode"])

				w.Write([]byte(tc.body))
			}))
			defer server.Close()

			client := NewClient(server.URL, "secret")

			resp, err := client.FetchRoute(context.Background(), origin, destination, nil, "car")
			require.NoError(t, err)
			require.Len(t, resp.Geometry, 2)
			assert.InDelta(t, 14.5995, resp.Geometry[0].Latitude, 1e-9)
			assert.InDelta(t, 120.9842, resp.Geometry[0].Longitude, 1e-9)
			require.NotNil(t, resp.DurationSeconds)
			assert.Equal(t, 300.0, *resp.DurationSeconds)
		})
	}
}

func TestFetchRoute_NoGeometry(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"ok"}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "")

	_, err := client.FetchRoute(context.Background(), origin, destination, nil, "car")
	assert.Error(t, err)
}

func TestFetchEta_DurationKeys(t *testing.T) {
	bodies := []string{
		`{"seconds":420}`,
		`{"etaSeconds":420}`,
		`{"duration":420}`,
		`{"durationSeconds":420}`,
		`{"eta":"420s"}`,
	}

	for _, body := range bodies {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/eta", r.URL.Path)
			w.Write([]byte(body))
		}))

		client := NewClient(server.URL, "")
		seconds, err := client.FetchEta(context.Background(), origin, destination, "car")
		server.Close()

		require.NoError(t, err, "body %s", body)
		assert.Equal(t, 420.0, seconds, "body %s", body)
	}
}

func TestFetchEta_Unrecognized(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"eta":"soon"}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "")

	_, err := client.FetchEta(context.Background(), origin, destination, "car")
	assert.Error(t, err)
}

func TestOptimize(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/optimize", r.URL.Path)

		var req struct {
			Stops []map[string]float64 `json:"stops"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Len(t, req.Stops, 1)

		w.Write([]byte(`{
			"ordered":[{"lat":14.5995,"lon":120.9842},{"lat":14.605,"lon":120.98},{"lat":14.6091,"lon":120.9823}],
			"geometry":[[120.9842,14.5995],[120.9823,14.6091]],
			"durationSeconds":540
		}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "")

	resp, err := client.Optimize(context.Background(), origin, []geo.Point{{Latitude: 14.605, Longitude: 120.98}}, destination, "car")
	require.NoError(t, err)
	require.Len(t, resp.Ordered, 3)
	assert.InDelta(t, 14.605, resp.Ordered[1].Latitude, 1e-9)
	require.Len(t, resp.Geometry, 2)
	require.NotNil(t, resp.DurationSeconds)
	assert.Equal(t, 540.0, *resp.DurationSeconds)
}

func TestOptimize_MissingOrdered(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"geometry":[]}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "")

	_, err := client.Optimize(context.Background(), origin, nil, destination, "car")
	assert.Error(t, err)
}

func TestServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer server.Close()

	client := NewClient(server.URL, "")

	_, err := client.FetchRoute(context.Background(), origin, destination, nil, "car")
	assert.Error(t, err)
	_, err = client.FetchEta(context.Background(), origin, destination, "car")
	assert.Error(t, err)
}
