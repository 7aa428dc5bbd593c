package geo

import (
	"errors"
	"math"
)

// Earth's radius in meters.
const earthRadius = 6371000

// utils implements the Utils interface.
type utils struct{}

// NewUtils creates a new Utils implementation.
func NewUtils() Utils {
	return &utils{}
}

// PointToPoint calculates great-circle distance between two points using the
// Haversine formula.
func (g *utils) PointToPoint(p1, p2 Point) (float64, error) {
	if !isValidCoordinate(p1) || !isValidCoordinate(p2) {
		return 0, errors.New("invalid coordinates: latitude must be [-90, 90], longitude must be [-180, 180]")
	}

	if p1.Latitude == p2.Latitude && p1.Longitude == p2.Longitude {
		return 0, nil
	}

	lat1 := p1.Latitude * math.Pi / 180
	lon1 := p1.Longitude * math.Pi / 180
	lat2 := p2.Latitude * math.Pi / 180
	lon2 := p2.Longitude * math.Pi / 180

	dlat := lat2 - lat1
	dlon := lon2 - lon1

	a := math.Sin(dlat/2)*math.Sin(dlat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dlon/2)*math.Sin(dlon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadius * c, nil
}

// PointToPolyline calculates the minimum distance from a point to a polyline.
// Used by off-route detection: a live position more than the configured
// threshold away from every route segment is considered off the route.
func (g *utils) PointToPolyline(point Point, polyline Polyline) (float64, error) {
	if !isValidCoordinate(point) {
		return 0, errors.New("invalid point coordinates")
	}

	if len(polyline.Points) == 0 {
		return 0, errors.New("polyline has no points")
	}

	if len(polyline.Points) == 1 {
		return g.PointToPoint(point, polyline.Points[0])
	}

	minDistance := math.Inf(1)
	for i := 0; i < len(polyline.Points)-1; i++ {
		distance := g.pointToSegmentDistance(point, polyline.Points[i], polyline.Points[i+1])
		if distance < minDistance {
			minDistance = distance
		}
	}

	return minDistance, nil
}

// pointToSegmentDistance calculates perpendicular distance from a point to a
// great-circle segment using the cross-track approximation. Accurate enough
// for route segments, which are short.
func (g *utils) pointToSegmentDistance(point, segmentStart, segmentEnd Point) float64 {
	if segmentStart.Latitude == segmentEnd.Latitude && segmentStart.Longitude == segmentEnd.Longitude {
		distance, _ := g.PointToPoint(point, segmentStart)
		return distance
	}

	distanceToStart, _ := g.PointToPoint(point, segmentStart)
	distanceToEnd, _ := g.PointToPoint(point, segmentEnd)
	segmentLength, _ := g.PointToPoint(segmentStart, segmentEnd)

	if segmentLength < 1 {
		return math.Min(distanceToStart, distanceToEnd)
	}

	lat1 := segmentStart.Latitude * math.Pi / 180
	lon1 := segmentStart.Longitude * math.Pi / 180
	lat2 := segmentEnd.Latitude * math.Pi / 180
	lon2 := segmentEnd.Longitude * math.Pi / 180
	lat3 := point.Latitude * math.Pi / 180
	lon3 := point.Longitude * math.Pi / 180

	// Angular distance from segment start to the point.
	d13 := distanceToStart / earthRadius

	// Bearing from start to end.
	y := math.Sin(lon2-lon1) * math.Cos(lat2)
	x := math.Cos(lat1)*math.Sin(lat2) - math.Sin(lat1)*math.Cos(lat2)*math.Cos(lon2-lon1)
	bearingToEnd := math.Atan2(y, x)

	// Bearing from start to the point.
	y = math.Sin(lon3-lon1) * math.Cos(lat3)
	x = math.Cos(lat1)*math.Sin(lat3) - math.Sin(lat1)*math.Cos(lat3)*math.Cos(lon3-lon1)
	bearingToPoint := math.Atan2(y, x)

	dxt := math.Asin(math.Sin(d13) * math.Sin(bearingToPoint-bearingToEnd))
	crossTrackDistance := math.Abs(dxt) * earthRadius

	// If the projection falls beyond the far endpoint, the nearest point on
	// the segment is that endpoint.
	dat := math.Acos(math.Cos(d13) / math.Cos(dxt))
	if dat*earthRadius > segmentLength {
		return distanceToEnd
	}

	return crossTrackDistance
}

// DistanceFromCoords calculates distance between two raw coordinate pairs.
func (g *utils) DistanceFromCoords(lat1, lon1, lat2, lon2 float64) (float64, error) {
	return g.PointToPoint(Point{Latitude: lat1, Longitude: lon1}, Point{Latitude: lat2, Longitude: lon2})
}

// FilterPointsByDistance filters points to those within the given distance of
// a center point. Invalid points are skipped rather than failing the batch.
func (g *utils) FilterPointsByDistance(points []Point, center Point, maxDistanceMeters float64) ([]Point, error) {
	if !isValidCoordinate(center) {
		return nil, errors.New("invalid center point coordinates")
	}

	var filtered []Point
	for _, point := range points {
		if !isValidCoordinate(point) {
			continue
		}
		distance, err := g.PointToPoint(center, point)
		if err != nil {
			continue
		}
		if distance <= maxDistanceMeters {
			filtered = append(filtered, point)
		}
	}

	return filtered, nil
}

// NewPoint creates a Point from latitude and longitude values with validation.
func NewPoint(latitude, longitude float64) (Point, error) {
	point := Point{Latitude: latitude, Longitude: longitude}
	if !isValidCoordinate(point) {
		return Point{}, errors.New("invalid coordinates: latitude must be [-90, 90], longitude must be [-180, 180]")
	}
	return point, nil
}

// isValidCoordinate validates latitude and longitude ranges.
func isValidCoordinate(point Point) bool {
	return point.Latitude >= -90 && point.Latitude <= 90 &&
		point.Longitude >= -180 && point.Longitude <= 180
}
