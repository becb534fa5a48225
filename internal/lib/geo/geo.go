package geo

import (
	"errors"
	"math"

	"github.com/twpayne/go-polyline"
)

// EarthRadiusKm is the mean Earth radius used for great-circle math
const EarthRadiusKm = 6371.0

// DistanceKm calculates the great-circle distance between two points in
// kilometers using the Haversine formula. It is symmetric and returns 0 for
// identical points. Coordinates are assumed valid; use NewPoint to validate
// untrusted input before calling.
func DistanceKm(p1, p2 Point) float64 {
	if p1.Latitude == p2.Latitude && p1.Longitude == p2.Longitude {
		return 0
	}

	// Convert degrees to radians
	lat1 := p1.Latitude * math.Pi / 180
	lon1 := p1.Longitude * math.Pi / 180
	lat2 := p2.Latitude * math.Pi / 180
	lon2 := p2.Longitude * math.Pi / 180

	// Haversine formula
	dlat := lat2 - lat1
	dlon := lon2 - lon1

	a := math.Sin(dlat/2)*math.Sin(dlat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dlon/2)*math.Sin(dlon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return EarthRadiusKm * c
}

// PathLengthKm sums the great-circle lengths of the segments between
// consecutive points. Fewer than two points yields 0.
func PathLengthKm(points []Point) float64 {
	total := 0.0
	for i := 0; i < len(points)-1; i++ {
		total += DistanceKm(points[i], points[i+1])
	}
	return total
}

// NewPoint creates a Point from latitude and longitude values with validation
func NewPoint(latitude, longitude float64) (Point, error) {
	point := Point{Latitude: latitude, Longitude: longitude}
	if !IsValidCoordinate(point) {
		return Point{}, errors.New("invalid coordinates: latitude must be [-90, 90], longitude must be [-180, 180]")
	}
	return point, nil
}

// IsValidCoordinate validates latitude and longitude values
func IsValidCoordinate(point Point) bool {
	return point.Latitude >= -90 && point.Latitude <= 90 &&
		point.Longitude >= -180 && point.Longitude <= 180
}

// DecodePolyline decodes a Google encoded polyline string to a point sequence
func DecodePolyline(encoded string) ([]Point, error) {
	if encoded == "" {
		return nil, errors.New("encoded polyline string is empty")
	}

	coords, _, err := polyline.DecodeCoords([]byte(encoded))
	if err != nil {
		return nil, errors.New("failed to decode polyline: " + err.Error())
	}

	points := make([]Point, len(coords))
	for i, coord := range coords {
		points[i] = Point{
			Latitude:  coord[0],
			Longitude: coord[1],
		}

		if !IsValidCoordinate(points[i]) {
			return nil, errors.New("decoded polyline contains invalid coordinates")
		}
	}

	return points, nil
}

// onSegmentEpsilon bounds the cross-product test that decides whether a
// point lies exactly on a ring edge. Degrees, so this is a few centimeters.
const onSegmentEpsilon = 1e-9

// Contains reports whether the point lies inside the ring using a
// crossing-number test over the lon/lat plane. A point exactly on an edge or
// vertex is treated as inside, so the boundary convention is deterministic
// rather than dependent on floating-point luck. Rings with fewer than 3
// vertices contain nothing.
func (r Ring) Contains(p Point) bool {
	n := len(r)
	// Drop an explicit closing vertex so the wrap-around edge isn't doubled
	if n > 1 && r[0] == r[n-1] {
		n--
	}
	if n < 3 {
		return false
	}

	inside := false
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		a, b := r[j], r[i]

		if pointOnSegment(p, a, b) {
			return true
		}

		// Edge crosses the horizontal ray through p
		if (a.Latitude > p.Latitude) != (b.Latitude > p.Latitude) {
			crossLon := a.Longitude + (p.Latitude-a.Latitude)/(b.Latitude-a.Latitude)*(b.Longitude-a.Longitude)
			if p.Longitude < crossLon {
				inside = !inside
			}
		}
	}
	return inside
}

// BoundingBox returns the axis-aligned extent of the ring
func (r Ring) BoundingBox() BoundingBox {
	if len(r) == 0 {
		return BoundingBox{}
	}
	box := BoundingBox{
		MinLat: r[0].Latitude, MaxLat: r[0].Latitude,
		MinLon: r[0].Longitude, MaxLon: r[0].Longitude,
	}
	for _, p := range r[1:] {
		box.MinLat = math.Min(box.MinLat, p.Latitude)
		box.MaxLat = math.Max(box.MaxLat, p.Latitude)
		box.MinLon = math.Min(box.MinLon, p.Longitude)
		box.MaxLon = math.Max(box.MaxLon, p.Longitude)
	}
	return box
}

// pointOnSegment reports whether p lies on the segment a-b, within epsilon
func pointOnSegment(p, a, b Point) bool {
	cross := (b.Longitude-a.Longitude)*(p.Latitude-a.Latitude) -
		(b.Latitude-a.Latitude)*(p.Longitude-a.Longitude)
	if math.Abs(cross) > onSegmentEpsilon {
		return false
	}

	return p.Latitude >= math.Min(a.Latitude, b.Latitude)-onSegmentEpsilon &&
		p.Latitude <= math.Max(a.Latitude, b.Latitude)+onSegmentEpsilon &&
		p.Longitude >= math.Min(a.Longitude, b.Longitude)-onSegmentEpsilon &&
		p.Longitude <= math.Max(a.Longitude, b.Longitude)+onSegmentEpsilon
}
