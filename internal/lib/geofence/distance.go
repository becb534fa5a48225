package geofence

import (
	"github.com/osoriofleet/fleetkm/server/internal/lib/geo"
)

// RealDistanceAccumulator sums the great-circle length of trace segments
// driven while continuously inside a real-distance zone. A segment counts
// only when both endpoints sit inside the same zone, so a boundary crossing
// within one sample interval contributes nothing; with coarse GPS sampling
// this systematically undercounts, which is the accepted trade-off.
type RealDistanceAccumulator struct {
	registry *Registry
}

// NewRealDistanceAccumulator creates an accumulator over the given registry
func NewRealDistanceAccumulator(registry *Registry) *RealDistanceAccumulator {
	return &RealDistanceAccumulator{registry: registry}
}

// Accumulate returns kilometers driven inside each real-distance zone,
// zero-filled for real-distance zones the trace never visits. Zones billed
// per cycle do not appear in the result.
func (a *RealDistanceAccumulator) Accumulate(points []Coordinate) map[string]float64 {
	distances := make(map[string]float64)
	for _, z := range a.registry.Zones() {
		if z.Billing.Mode == BillingRealDistance {
			distances[z.ID] = 0
		}
	}

	prevZone := ""
	var prevPoint geo.Point
	for i, p := range points {
		zoneID := ""
		var zone Zone
		if z, inside := a.registry.FindZone(p.Latitude, p.Longitude); inside {
			zone = z
			zoneID = z.ID
		}

		if i > 0 && zoneID != "" && zoneID == prevZone && zone.Billing.Mode == BillingRealDistance {
			distances[zoneID] += geo.DistanceKm(prevPoint, p.Point())
		}

		prevZone = zoneID
		prevPoint = p.Point()
	}

	return distances
}
