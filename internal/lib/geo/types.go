package geo

// Point represents a geographic coordinate.
type Point struct {
	Latitude  float64 `json:"lat"`
	Longitude float64 `json:"lon"`
}

// Polyline is a decoded route geometry.
type Polyline struct {
	Points []Point `json:"points"`
}

// Utils defines the geographic calculations used by routing and navigation.
type Utils interface {
	// Great-circle distance between two points in meters.
	PointToPoint(p1, p2 Point) (float64, error)

	// Minimum distance from point to polyline in meters.
	PointToPolyline(point Point, polyline Polyline) (float64, error)

	// Distance between raw coordinate pairs (convenience).
	DistanceFromCoords(lat1, lon1, lat2, lon2 float64) (float64, error)

	// Points within maxDistanceMeters of center.
	FilterPointsByDistance(points []Point, center Point, maxDistanceMeters float64) ([]Point, error)
}
