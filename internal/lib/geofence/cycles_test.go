package geofence

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Trace fragments reused across tests. Coordinates sit well inside the
// fixture squares in testdata/geofences.json.
var (
	outsideAll   = Coordinate{Latitude: 27.55, Longitude: -99.76}
	insideAduana = Coordinate{Latitude: 27.46, Longitude: -99.76}
	insideCity   = Coordinate{Latitude: 27.49, Longitude: -99.51}
)

type failingStateStore struct{}

func (failingStateStore) LastZone(ctx context.Context, vehicleKey string) (string, error) {
	return "", errors.New("state backend unavailable")
}

func (failingStateStore) SetLastZone(ctx context.Context, vehicleKey string, zoneID string) error {
	return errors.New("state backend unavailable")
}

func TestCountCycles_SingleEntryExit(t *testing.T) {
	registry := testRegistry(t)
	tracker := NewCycleTracker(registry, NewMemoryStateStore())

	trace := []Coordinate{
		outsideAll,
		insideAduana,
		{Latitude: 27.461, Longitude: -99.759},
		{Latitude: 27.462, Longitude: -99.758},
		outsideAll,
	}

	cycles, err := tracker.CountCycles(context.Background(), "T-101", trace)
	require.NoError(t, err)

	assert.Equal(t, 1, cycles["aduana_420"], "One entry/exit should count one cycle")
	assert.Equal(t, 0, cycles["colombia"])
	assert.Equal(t, 0, cycles["nuevo_laredo"])
}

func TestCountCycles_IntermediateSamplesDontInflate(t *testing.T) {
	registry := testRegistry(t)
	tracker := NewCycleTracker(registry, NewMemoryStateStore())

	// 20 samples idling inside the zone before leaving
	trace := []Coordinate{outsideAll}
	for i := 0; i < 20; i++ {
		trace = append(trace, insideAduana)
	}
	trace = append(trace, outsideAll)

	cycles, err := tracker.CountCycles(context.Background(), "T-101", trace)
	require.NoError(t, err)
	assert.Equal(t, 1, cycles["aduana_420"], "Dwell time inside must not add cycles")
}

func TestCountCycles_DirectZoneToZoneCountsExit(t *testing.T) {
	registry := testRegistry(t)
	tracker := NewCycleTracker(registry, NewMemoryStateStore())

	// Jump from the aduana straight into the city with no outside sample
	trace := []Coordinate{
		outsideAll,
		insideAduana,
		insideCity,
		outsideAll,
	}

	cycles, err := tracker.CountCycles(context.Background(), "T-101", trace)
	require.NoError(t, err)

	assert.Equal(t, 1, cycles["aduana_420"], "Zone change counts as exit from the first zone")
	assert.Equal(t, 1, cycles["nuevo_laredo"], "Leaving the second zone completes its cycle too")
}

func TestCountCycles_AllOutside(t *testing.T) {
	registry := testRegistry(t)
	tracker := NewCycleTracker(registry, NewMemoryStateStore())

	trace := []Coordinate{outsideAll, outsideAll, outsideAll}

	cycles, err := tracker.CountCycles(context.Background(), "T-101", trace)
	require.NoError(t, err)

	require.Len(t, cycles, 3, "Every registered zone appears zero-filled")
	for zoneID, count := range cycles {
		assert.Equal(t, 0, count, "Zone %s should have no cycles", zoneID)
	}
}

func TestCountCycles_StateCarriesAcrossCalls(t *testing.T) {
	registry := testRegistry(t)
	tracker := NewCycleTracker(registry, NewMemoryStateStore())
	ctx := context.Background()

	// Day one ends with the vehicle still inside the aduana
	day1 := []Coordinate{outsideAll, insideAduana}
	cycles1, err := tracker.CountCycles(ctx, "T-202", day1)
	require.NoError(t, err)
	assert.Equal(t, 0, cycles1["aduana_420"], "Mid-zone at end of call: no cycle yet")

	// Day two starts inside and then leaves
	day2 := []Coordinate{insideAduana, outsideAll}
	cycles2, err := tracker.CountCycles(ctx, "T-202", day2)
	require.NoError(t, err)
	assert.Equal(t, 1, cycles2["aduana_420"], "Exit on the next call completes the carried cycle")
}

func TestCountCycles_VehiclesAreIndependent(t *testing.T) {
	registry := testRegistry(t)
	tracker := NewCycleTracker(registry, NewMemoryStateStore())
	ctx := context.Background()

	_, err := tracker.CountCycles(ctx, "T-301", []Coordinate{outsideAll, insideAduana})
	require.NoError(t, err)

	// A different vehicle exiting has no carried state from T-301
	cycles, err := tracker.CountCycles(ctx, "T-302", []Coordinate{outsideAll})
	require.NoError(t, err)
	assert.Equal(t, 0, cycles["aduana_420"])
}

func TestCountCycles_StateStoreFailure(t *testing.T) {
	registry := testRegistry(t)
	tracker := NewCycleTracker(registry, failingStateStore{})

	_, err := tracker.CountCycles(context.Background(), "T-101", []Coordinate{insideAduana})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cycle state")
}

func TestMemoryStateStore(t *testing.T) {
	store := NewMemoryStateStore()
	ctx := context.Background()

	zone, err := store.LastZone(ctx, "T-101")
	require.NoError(t, err)
	assert.Empty(t, zone, "Unknown vehicle starts with no zone")

	require.NoError(t, store.SetLastZone(ctx, "T-101", "aduana_420"))
	zone, err = store.LastZone(ctx, "T-101")
	require.NoError(t, err)
	assert.Equal(t, "aduana_420", zone)

	require.NoError(t, store.SetLastZone(ctx, "T-101", ""))
	zone, err = store.LastZone(ctx, "T-101")
	require.NoError(t, err)
	assert.Empty(t, zone, "Empty zone id clears the state")
}
