// Package export renders routes into interchange formats.
package export

import (
	"fmt"
	"io"

	"github.com/twpayne/go-kml/v2"

	"github.com/sparkpark/navigator/internal/lib/geo"
	"github.com/sparkpark/navigator/internal/routing"
)

// WriteRouteKML writes the route as a KML document: one line string for the
// geometry plus start and end placemarks. The route must be usable.
func WriteRouteKML(w io.Writer, name string, route routing.RouteResult) error {
	if !route.Usable() {
		return fmt.Errorf("route has no drawable geometry")
	}

	coords := make([]kml.Coordinate, len(route.Geometry))
	for i, p := range route.Geometry {
		coords[i] = kml.Coordinate{Lon: p.Longitude, Lat: p.Latitude}
	}

	start := route.Geometry[0]
	end := route.Geometry[len(route.Geometry)-1]

	doc := kml.KML(
		kml.Document(
			kml.Name(name),
			kml.Placemark(
				kml.Name("Route"),
				kml.Description(routeDescription(route)),
				kml.LineString(
					kml.Tessellate(true),
					kml.Coordinates(coords...),
				),
			),
			pointPlacemark("Start", start),
			pointPlacemark("Destination", end),
		),
	)

	return doc.WriteIndent(w, "", "  ")
}

func pointPlacemark(name string, p geo.Point) kml.Element {
	return kml.Placemark(
		kml.Name(name),
		kml.Point(
			kml.Coordinates(kml.Coordinate{Lon: p.Longitude, Lat: p.Latitude}),
		),
	)
}

func routeDescription(route routing.RouteResult) string {
	if route.DurationSeconds == nil {
		return fmt.Sprintf("Provider: %s", route.Provider)
	}
	return fmt.Sprintf("Provider: %s, estimated %s", route.Provider, routing.FormatDuration(*route.DurationSeconds))
}
