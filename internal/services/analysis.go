package services

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/osoriofleet/fleetkm/server/internal/cache"
	"github.com/osoriofleet/fleetkm/server/internal/clients/geotab"
	"github.com/osoriofleet/fleetkm/server/internal/config"
	"github.com/osoriofleet/fleetkm/server/internal/lib/geofence"
	"github.com/osoriofleet/fleetkm/server/internal/metrics"
)

// TraceProvider is the telemetry surface the batch needs: the vehicle roster
// and one trace per vehicle per window.
type TraceProvider interface {
	ListVehicles(ctx context.Context) ([]geotab.Device, error)
	FetchTrace(ctx context.Context, deviceID string, from, to time.Time) ([]geofence.Coordinate, error)
}

// MetricSink receives one vehicle's composed result for persistence
type MetricSink interface {
	InsertMetrics(ctx context.Context, date time.Time, vehicle string, result map[string]geofence.ZoneMetric) error
}

// VehicleResult is one vehicle's contribution to a day
type VehicleResult struct {
	Vehicle string                         `json:"vehicle"`
	Points  int                            `json:"points"`
	Zones   map[string]geofence.ZoneMetric `json:"zones"`
	TotalKm float64                        `json:"total_km"`
}

// DayResult is the composed output of one batch run
type DayResult struct {
	Date       string                   `json:"date"`
	Vehicles   map[string]VehicleResult `json:"vehicles"`
	TotalKm    float64                  `json:"total_km"`
	Failures   int                      `json:"failures"`
	ComputedAt time.Time                `json:"computed_at"`
}

// AnalysisService runs the per-vehicle geofence analysis across the fleet
// and hands results to the warehouse. Failures are isolated per vehicle: a
// bad trace or a failed insert skips that vehicle and the run continues.
type AnalysisService struct {
	telemetry TraceProvider
	analyzer  *geofence.Analyzer
	sink      MetricSink // nil disables warehouse persistence
	cache     *cache.Cache
	config    *config.BatchConfig
}

// NewAnalysisService creates the batch orchestrator
func NewAnalysisService(telemetry TraceProvider, analyzer *geofence.Analyzer, sink MetricSink, cacheInstance *cache.Cache, cfg *config.BatchConfig) *AnalysisService {
	return &AnalysisService{
		telemetry: telemetry,
		analyzer:  analyzer,
		sink:      sink,
		cache:     cacheInstance,
		config:    cfg,
	}
}

// RunDay analyzes every vehicle's trace for the UTC day containing the given
// time. Vehicles are processed concurrently up to the configured limit; each
// vehicle's cycle state is touched by exactly one worker because the
// analyzer serializes per vehicle key. The composed result is cached so the
// results endpoint can serve it without recomputation.
func (s *AnalysisService) RunDay(ctx context.Context, day time.Time) (*DayResult, error) {
	started := time.Now()
	from := day.UTC().Truncate(24 * time.Hour)
	to := from.Add(24 * time.Hour)
	date := from.Format("2006-01-02")

	vehicles, err := s.telemetry.ListVehicles(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list vehicles: %w", err)
	}
	log.Printf("Batch %s: analyzing %d vehicles", date, len(vehicles))

	result := &DayResult{
		Date:     date,
		Vehicles: make(map[string]VehicleResult, len(vehicles)),
	}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	limit := s.config.MaxConcurrency
	if limit <= 0 {
		limit = 4
	}
	g.SetLimit(limit)

	for _, vehicle := range vehicles {
		g.Go(func() error {
			vr, ok := s.processVehicle(gctx, vehicle, from, to)
			mu.Lock()
			defer mu.Unlock()
			if !ok {
				result.Failures++
				return nil
			}
			result.Vehicles[vr.Vehicle] = vr
			result.TotalKm += vr.TotalKm
			return nil
		})
	}

	// Workers isolate their own failures, so Wait only reflects ctx cancellation
	if err := g.Wait(); err != nil {
		return nil, err
	}

	result.ComputedAt = time.Now().UTC()
	metrics.BatchDurationMs.Observe(float64(time.Since(started).Milliseconds()))
	log.Printf("Batch %s complete: %.2f km across %d vehicles, %d failures",
		date, result.TotalKm, len(result.Vehicles), result.Failures)

	if err := s.cache.Set(resultKey(date), result, s.config.ResultTTL, "batch"); err != nil {
		log.Printf("Failed to cache batch result for %s: %v", date, err)
	}

	return result, nil
}

// processVehicle runs fetch → analyze → persist for one vehicle. Returns
// ok=false when the vehicle must be counted as a failure.
func (s *AnalysisService) processVehicle(ctx context.Context, vehicle geotab.Device, from, to time.Time) (VehicleResult, bool) {
	vehicleKey := vehicle.Name
	if vehicleKey == "" {
		vehicleKey = vehicle.ID
	}

	points, err := s.telemetry.FetchTrace(ctx, vehicle.ID, from, to)
	if err != nil {
		// A failed fetch degrades to an empty trace: no activity recorded,
		// but the vehicle does not abort the batch.
		log.Printf("Trace fetch failed for %s: %v", vehicleKey, err)
		metrics.TraceFetchFailuresTotal.Inc()
		points = nil
	}

	zones, err := s.analyzer.AnalyzeVehicle(ctx, vehicleKey, points)
	if err != nil {
		metrics.AnalysisFailuresTotal.Inc()
		return VehicleResult{}, false
	}

	metrics.VehiclesAnalyzedTotal.Inc()
	metrics.PointsProcessedTotal.Add(float64(len(points)))
	metrics.RecordResult(zones)

	if s.sink != nil && len(zones) > 0 {
		if err := s.sink.InsertMetrics(ctx, from, vehicleKey, zones); err != nil {
			log.Printf("Warehouse insert failed for %s: %v", vehicleKey, err)
			metrics.WarehouseInsertFailuresTotal.Inc()
		}
	}

	return VehicleResult{
		Vehicle: vehicleKey,
		Points:  len(points),
		Zones:   zones,
		TotalKm: geofence.TotalKm(zones),
	}, true
}

// AnalyzeAdhoc runs the analyzer over a caller-supplied trace, outside the
// batch flow. Used by the analyze endpoint and the debug binaries. Results
// are not persisted to the warehouse.
func (s *AnalysisService) AnalyzeAdhoc(ctx context.Context, vehicleKey string, points []geofence.Coordinate) (map[string]geofence.ZoneMetric, error) {
	zones, err := s.analyzer.AnalyzeVehicle(ctx, vehicleKey, points)
	if err != nil {
		metrics.AnalysisFailuresTotal.Inc()
		return nil, err
	}
	metrics.VehiclesAnalyzedTotal.Inc()
	metrics.PointsProcessedTotal.Add(float64(len(points)))
	metrics.RecordResult(zones)
	return zones, nil
}

// CachedDay returns a previously computed batch result for a date
func (s *AnalysisService) CachedDay(date string) (*DayResult, bool) {
	var result DayResult
	found, err := s.cache.Get(resultKey(date), &result)
	if err != nil {
		log.Printf("Cache error reading batch result for %s: %v", date, err)
		return nil, false
	}
	if !found {
		return nil, false
	}
	return &result, true
}

// Registry exposes the zone set for the HTTP layer
func (s *AnalysisService) Registry() *geofence.Registry {
	return s.analyzer.Registry()
}

func resultKey(date string) string {
	return "results:" + date
}
