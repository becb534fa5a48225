package geofence

import (
	"context"
	"fmt"
	"log"
	"sync"
)

// StateStore persists each vehicle's last-known zone between analysis calls,
// so a trace split across calls (for example at a day boundary) keeps its
// entry/exit accounting. The in-memory implementation covers a single
// process; the Redis-backed store in internal/statestore covers restarts.
//
// An empty zone id means the vehicle is not in any zone.
type StateStore interface {
	LastZone(ctx context.Context, vehicleKey string) (string, error)
	SetLastZone(ctx context.Context, vehicleKey string, zoneID string) error
}

// MemoryStateStore is the default in-process StateStore
type MemoryStateStore struct {
	mu       sync.Mutex
	lastZone map[string]string
}

// NewMemoryStateStore creates an empty in-memory state store
func NewMemoryStateStore() *MemoryStateStore {
	return &MemoryStateStore{lastZone: make(map[string]string)}
}

// LastZone implements StateStore
func (s *MemoryStateStore) LastZone(ctx context.Context, vehicleKey string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastZone[vehicleKey], nil
}

// SetLastZone implements StateStore
func (s *MemoryStateStore) SetLastZone(ctx context.Context, vehicleKey string, zoneID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if zoneID == "" {
		delete(s.lastZone, vehicleKey)
		return nil
	}
	s.lastZone[vehicleKey] = zoneID
	return nil
}

// CycleTracker counts completed entry/exit cycles per zone from an ordered
// GPS trace. A cycle completes the moment a vehicle that was inside a zone
// is next observed anywhere else: outside every zone, or directly inside a
// different zone. The direct zone-to-zone transition counts as an exit from
// the first zone even with no outside sample in between.
type CycleTracker struct {
	registry *Registry
	states   StateStore
}

// NewCycleTracker creates a tracker backed by the given state store
func NewCycleTracker(registry *Registry, states StateStore) *CycleTracker {
	return &CycleTracker{registry: registry, states: states}
}

// CountCycles processes the trace in order and returns a cycle count for
// every registered zone, zero-filled for zones with no activity. The
// vehicle's final zone is persisted so the next call for the same key
// continues where this one left off. Calls for the same vehicle must not
// run concurrently; the analyzer serializes them.
func (t *CycleTracker) CountCycles(ctx context.Context, vehicleKey string, points []Coordinate) (map[string]int, error) {
	cycles := make(map[string]int, t.registry.Len())
	for _, z := range t.registry.Zones() {
		cycles[z.ID] = 0
	}

	current, err := t.states.LastZone(ctx, vehicleKey)
	if err != nil {
		return nil, fmt.Errorf("failed to load cycle state for %s: %w", vehicleKey, err)
	}

	for _, p := range points {
		zoneID := ""
		if zone, inside := t.registry.FindZone(p.Latitude, p.Longitude); inside {
			zoneID = zone.ID
		}

		// Leaving the tracked zone, for anywhere else, completes one cycle
		if current != "" && current != zoneID {
			cycles[current]++
			log.Printf("Cycle completed for %s: exited %s", vehicleKey, current)
		}

		current = zoneID
	}

	if err := t.states.SetLastZone(ctx, vehicleKey, current); err != nil {
		return nil, fmt.Errorf("failed to persist cycle state for %s: %w", vehicleKey, err)
	}

	return cycles, nil
}
