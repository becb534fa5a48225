package geofence

// ComposeMetrics folds cycle counts and accumulated real distances into one
// metric per registered zone, applying each zone's billing policy:
//
//   - fixed-per-cycle: total_km = cycles * km_per_cycle
//   - real-distance:   total_km = measured kilometers; cycles are still
//     reported for reference but do not contribute to the total
//
// Zones missing from either input default to zero.
func ComposeMetrics(cycles map[string]int, realDistances map[string]float64, registry *Registry) map[string]ZoneMetric {
	results := make(map[string]ZoneMetric, registry.Len())

	for _, zone := range registry.Zones() {
		metric := ZoneMetric{
			ZoneID:         zone.ID,
			ZoneName:       zone.Name,
			Cycles:         cycles[zone.ID],
			BillingMode:    zone.Billing.Mode,
			BillingModeStr: zone.Billing.Mode.String(),
		}

		switch zone.Billing.Mode {
		case BillingFixedPerCycle:
			rate := zone.Billing.KmPerCycle
			metric.TotalKm = float64(metric.Cycles) * rate
			metric.KmPerCycle = &rate
		case BillingRealDistance:
			km := realDistances[zone.ID]
			metric.TotalKm = km
			metric.RealDistanceKm = &km
		}

		results[zone.ID] = metric
	}

	return results
}
