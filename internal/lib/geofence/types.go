package geofence

import (
	"github.com/osoriofleet/fleetkm/server/internal/lib/geo"
)

// Coordinate is a single GPS sample from the telemetry provider. Sequences
// are expected in chronological order; the analyzer does not re-sort.
type Coordinate struct {
	Latitude  float64 `json:"lat"`
	Longitude float64 `json:"lon"`
	Timestamp string  `json:"timestamp"`
}

// Point converts the sample to a geometry point
func (c Coordinate) Point() geo.Point {
	return geo.Point{Latitude: c.Latitude, Longitude: c.Longitude}
}

// BillingMode determines how kilometers are credited for a zone
type BillingMode int

const (
	// BillingFixedPerCycle credits a fixed number of kilometers for each
	// completed entry/exit cycle, regardless of the path driven inside.
	BillingFixedPerCycle BillingMode = iota
	// BillingRealDistance credits the measured great-circle distance driven
	// while continuously inside the zone.
	BillingRealDistance
)

// String returns the warehouse representation of the billing mode
func (m BillingMode) String() string {
	switch m {
	case BillingFixedPerCycle:
		return "fixed_km"
	case BillingRealDistance:
		return "real_km"
	default:
		return "unknown"
	}
}

// BillingPolicy is the per-zone billing configuration. It is constructed once
// at startup from the service configuration and passed explicitly to the
// registry, never read from process-wide state.
type BillingPolicy struct {
	Mode       BillingMode
	KmPerCycle float64 // only meaningful when Mode is BillingFixedPerCycle
}

// Zone is a named polygonal region with an associated billing policy.
// Immutable after registry construction.
type Zone struct {
	ID      string
	Name    string
	Ring    geo.Ring
	Billing BillingPolicy

	// cached extent for the cheap pre-check in FindZone
	box geo.BoundingBox
}

// ZoneMetric is the per-zone output of one analysis call. KmPerCycle is set
// only for fixed-per-cycle zones, RealDistanceKm only for real-distance
// zones; the warehouse stores the absent one as NULL.
type ZoneMetric struct {
	ZoneID         string      `json:"zone_id"`
	ZoneName       string      `json:"zone_name"`
	Cycles         int         `json:"cycles"`
	TotalKm        float64     `json:"total_km"`
	BillingMode    BillingMode `json:"-"`
	BillingModeStr string      `json:"billing_mode"`
	KmPerCycle     *float64    `json:"km_per_cycle,omitempty"`
	RealDistanceKm *float64    `json:"real_distance_km,omitempty"`
}

// TotalKm sums total_km across all zones of one analysis result. Because a
// point belongs to at most one zone, this is the vehicle's billable total
// with no double counting.
func TotalKm(metrics map[string]ZoneMetric) float64 {
	total := 0.0
	for _, m := range metrics {
		total += m.TotalKm
	}
	return total
}
