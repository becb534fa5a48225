package geofence

import (
	"context"
	"fmt"
	"log"
	"sync"
)

// Analyzer is the per-vehicle analysis facade. It runs the cycle tracker and
// the real-distance accumulator over one trace and composes the per-zone
// metrics. It is the error isolation boundary: a failure analyzing one
// vehicle is logged and reported alongside an empty result, so one bad trace
// never aborts a batch run.
//
// Calls for different vehicles may run concurrently; calls for the same
// vehicle key are serialized internally because cycle detection is stateful
// and order-dependent.
type Analyzer struct {
	registry    *Registry
	tracker     *CycleTracker
	accumulator *RealDistanceAccumulator

	mu           sync.Mutex
	vehicleLocks map[string]*sync.Mutex
}

// NewAnalyzer wires the facade over a registry and a cycle state store
func NewAnalyzer(registry *Registry, states StateStore) *Analyzer {
	return &Analyzer{
		registry:     registry,
		tracker:      NewCycleTracker(registry, states),
		accumulator:  NewRealDistanceAccumulator(registry),
		vehicleLocks: make(map[string]*sync.Mutex),
	}
}

// Registry exposes the zone set the analyzer was built with
func (a *Analyzer) Registry() *Registry {
	return a.registry
}

// AnalyzeVehicle computes per-zone metrics for one vehicle's trace. An empty
// trace is valid "no activity" input and returns an empty map with no error.
// The returned map is always non-nil; when err is non-nil the map is empty
// and the vehicle's contribution to the batch is simply zero.
func (a *Analyzer) AnalyzeVehicle(ctx context.Context, vehicleKey string, points []Coordinate) (result map[string]ZoneMetric, err error) {
	result = map[string]ZoneMetric{}
	if len(points) == 0 {
		log.Printf("No GPS points for %s", vehicleKey)
		return result, nil
	}

	lock := a.vehicleLock(vehicleKey)
	lock.Lock()
	defer lock.Unlock()

	// Isolate collaborator panics per vehicle so the batch keeps going
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Analysis panic for %s: %v", vehicleKey, r)
			result = map[string]ZoneMetric{}
			err = fmt.Errorf("analysis panic for %s: %v", vehicleKey, r)
		}
	}()

	log.Printf("Analyzing %d GPS points for %s", len(points), vehicleKey)

	cycles, err := a.tracker.CountCycles(ctx, vehicleKey, points)
	if err != nil {
		log.Printf("Analysis failed for %s: %v", vehicleKey, err)
		return map[string]ZoneMetric{}, fmt.Errorf("analysis failed for %s: %w", vehicleKey, err)
	}

	realDistances := a.accumulator.Accumulate(points)
	result = ComposeMetrics(cycles, realDistances, a.registry)

	log.Printf("Analysis complete for %s: %.2f km total", vehicleKey, TotalKm(result))
	return result, nil
}

// vehicleLock returns the mutex serializing analysis for one vehicle key
func (a *Analyzer) vehicleLock(vehicleKey string) *sync.Mutex {
	a.mu.Lock()
	defer a.mu.Unlock()
	lock, ok := a.vehicleLocks[vehicleKey]
	if !ok {
		lock = &sync.Mutex{}
		a.vehicleLocks[vehicleKey] = lock
	}
	return lock
}
