package geo

// Point represents a geographic coordinate
type Point struct {
	Latitude  float64 `json:"lat"`
	Longitude float64 `json:"lon"`
}

// Ring is a simple closed polygon described by its vertices in order.
// The closing edge from the last vertex back to the first is implicit;
// rings that repeat the first vertex at the end are also accepted.
type Ring []Point

// BoundingBox is the axis-aligned extent of a set of points
type BoundingBox struct {
	MinLat float64
	MinLon float64
	MaxLat float64
	MaxLon float64
}

// Intersects reports whether two bounding boxes share any area
func (b BoundingBox) Intersects(o BoundingBox) bool {
	return b.MinLat <= o.MaxLat && o.MinLat <= b.MaxLat &&
		b.MinLon <= o.MaxLon && o.MinLon <= b.MaxLon
}
