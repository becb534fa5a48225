package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/osoriofleet/fleetkm/server/internal/lib/geofence"
)

var (
	VehiclesAnalyzedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "fleetkm_vehicles_analyzed_total",
		Help: "Total number of vehicle analyses completed",
	})
	AnalysisFailuresTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "fleetkm_analysis_failures_total",
		Help: "Total number of vehicle analyses that failed and were skipped",
	})
	TraceFetchFailuresTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "fleetkm_trace_fetch_failures_total",
		Help: "Total number of telemetry trace fetches that failed",
	})
	PointsProcessedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "fleetkm_points_processed_total",
		Help: "Total GPS points run through the analyzer",
	})
	CyclesDetectedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fleetkm_cycles_detected_total",
		Help: "Completed entry/exit cycles by zone",
	}, []string{"zone"})
	KmComputedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fleetkm_km_computed_total",
		Help: "Billable kilometers computed by zone",
	}, []string{"zone"})
	WarehouseInsertFailuresTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "fleetkm_warehouse_insert_failures_total",
		Help: "Total number of failed warehouse inserts",
	})
	BatchDurationMs = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "fleetkm_batch_duration_ms",
		Help:    "Daily batch run duration in milliseconds",
		Buckets: []float64{100, 500, 1000, 5000, 10000, 30000, 60000, 300000},
	})
)

func init() {
	prometheus.MustRegister(VehiclesAnalyzedTotal)
	prometheus.MustRegister(AnalysisFailuresTotal)
	prometheus.MustRegister(TraceFetchFailuresTotal)
	prometheus.MustRegister(PointsProcessedTotal)
	prometheus.MustRegister(CyclesDetectedTotal)
	prometheus.MustRegister(KmComputedTotal)
	prometheus.MustRegister(WarehouseInsertFailuresTotal)
	prometheus.MustRegister(BatchDurationMs)
}

// Handler exposes the Prometheus scrape endpoint
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordResult updates the per-zone counters for one analysis result
func RecordResult(result map[string]geofence.ZoneMetric) {
	for zoneID, m := range result {
		if m.Cycles > 0 {
			CyclesDetectedTotal.WithLabelValues(zoneID).Add(float64(m.Cycles))
		}
		if m.TotalKm > 0 {
			KmComputedTotal.WithLabelValues(zoneID).Add(m.TotalKm)
		}
	}
}
