package geofence

import (
	"fmt"

	"github.com/twpayne/go-kml/v2"
)

// ZonesKML renders the registry's zones as a KML document for inspection in
// Google Earth or a map overlay. Zone polygons keep their declaration order.
func ZonesKML(r *Registry) *kml.CompoundElement {
	elements := []kml.Element{kml.Name("fleetkm zones")}
	for _, zone := range r.Zones() {
		elements = append(elements, zonePlacemark(zone))
	}
	return kml.KML(kml.Document(elements...))
}

// TraceKML renders the zones plus one vehicle's trace as a line, which makes
// disputed cycle counts easy to eyeball against the polygons.
func TraceKML(r *Registry, vehicleKey string, points []Coordinate) *kml.CompoundElement {
	elements := []kml.Element{kml.Name("fleetkm trace: " + vehicleKey)}
	for _, zone := range r.Zones() {
		elements = append(elements, zonePlacemark(zone))
	}

	coords := make([]kml.Coordinate, len(points))
	for i, p := range points {
		coords[i] = kml.Coordinate{Lon: p.Longitude, Lat: p.Latitude}
	}
	elements = append(elements, kml.Placemark(
		kml.Name(vehicleKey),
		kml.LineString(
			kml.Tessellate(true),
			kml.Coordinates(coords...),
		),
	))

	return kml.KML(kml.Document(elements...))
}

func zonePlacemark(zone Zone) kml.Element {
	ring := zone.Ring
	coords := make([]kml.Coordinate, 0, len(ring)+1)
	for _, p := range ring {
		coords = append(coords, kml.Coordinate{Lon: p.Longitude, Lat: p.Latitude})
	}
	// LinearRing requires an explicitly closed ring
	if len(ring) > 0 && ring[0] != ring[len(ring)-1] {
		coords = append(coords, kml.Coordinate{Lon: ring[0].Longitude, Lat: ring[0].Latitude})
	}

	description := ""
	switch zone.Billing.Mode {
	case BillingFixedPerCycle:
		description = fmt.Sprintf("%.0f km per entry/exit cycle", zone.Billing.KmPerCycle)
	case BillingRealDistance:
		description = "billed by measured distance inside the zone"
	}

	return kml.Placemark(
		kml.Name(zone.Name),
		kml.Description(description),
		kml.Polygon(
			kml.Tessellate(true),
			kml.OuterBoundaryIs(
				kml.LinearRing(
					kml.Coordinates(coords...),
				),
			),
		),
	)
}
