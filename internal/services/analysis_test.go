package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osoriofleet/fleetkm/server/internal/cache"
	"github.com/osoriofleet/fleetkm/server/internal/clients/geotab"
	"github.com/osoriofleet/fleetkm/server/internal/config"
	"github.com/osoriofleet/fleetkm/server/internal/lib/geo"
	"github.com/osoriofleet/fleetkm/server/internal/lib/geofence"
)

// fakeTelemetry serves a canned roster and per-device traces
type fakeTelemetry struct {
	devices  []geotab.Device
	traces   map[string][]geofence.Coordinate
	listErr  error
	fetchErr map[string]error
}

func (f *fakeTelemetry) ListVehicles(ctx context.Context) ([]geotab.Device, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.devices, nil
}

func (f *fakeTelemetry) FetchTrace(ctx context.Context, deviceID string, from, to time.Time) ([]geofence.Coordinate, error) {
	if err := f.fetchErr[deviceID]; err != nil {
		return nil, err
	}
	return f.traces[deviceID], nil
}

// recordingSink captures warehouse writes; failErr makes every insert fail
type recordingSink struct {
	mu      sync.Mutex
	inserts map[string]map[string]geofence.ZoneMetric
	failErr error
}

func (s *recordingSink) InsertMetrics(ctx context.Context, date time.Time, vehicle string, result map[string]geofence.ZoneMetric) error {
	if s.failErr != nil {
		return s.failErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inserts == nil {
		s.inserts = make(map[string]map[string]geofence.ZoneMetric)
	}
	s.inserts[vehicle] = result
	return nil
}

func squareRing(minLat, maxLat, minLon, maxLon float64) geo.Ring {
	return geo.Ring{
		{Latitude: minLat, Longitude: minLon},
		{Latitude: minLat, Longitude: maxLon},
		{Latitude: maxLat, Longitude: maxLon},
		{Latitude: maxLat, Longitude: minLon},
	}
}

func serviceRegistry() *geofence.Registry {
	return geofence.NewRegistry([]geofence.Zone{
		{
			ID:      "aduana_420",
			Name:    "Aduana KM 420",
			Ring:    squareRing(27.44, 27.48, -99.78, -99.74),
			Billing: geofence.BillingPolicy{Mode: geofence.BillingFixedPerCycle, KmPerCycle: 37},
		},
		{
			ID:      "nuevo_laredo",
			Name:    "Nuevo Laredo",
			Ring:    squareRing(27.44, 27.54, -99.56, -99.46),
			Billing: geofence.BillingPolicy{Mode: geofence.BillingRealDistance},
		},
	})
}

// aduanaRoundTrip enters the customs yard and leaves, completing one cycle
func aduanaRoundTrip() []geofence.Coordinate {
	return []geofence.Coordinate{
		{Latitude: 27.55, Longitude: -99.76},
		{Latitude: 27.46, Longitude: -99.76},
		{Latitude: 27.55, Longitude: -99.76},
	}
}

func newTestService(telemetry TraceProvider, sink MetricSink) *AnalysisService {
	analyzer := geofence.NewAnalyzer(serviceRegistry(), geofence.NewMemoryStateStore())
	cfg := &config.BatchConfig{MaxConcurrency: 2, ResultTTL: time.Hour}
	return NewAnalysisService(telemetry, analyzer, sink, cache.New(), cfg)
}

func TestRunDay_ComposesFleetResult(t *testing.T) {
	telemetry := &fakeTelemetry{
		devices: []geotab.Device{
			{ID: "b1", Name: "T-420"},
			{ID: "b2", Name: "T-101"},
		},
		traces: map[string][]geofence.Coordinate{
			"b1": aduanaRoundTrip(),
			"b2": nil,
		},
	}
	sink := &recordingSink{}
	svc := newTestService(telemetry, sink)

	day := time.Date(2025, 11, 3, 15, 30, 0, 0, time.UTC)
	result, err := svc.RunDay(context.Background(), day)
	require.NoError(t, err)

	assert.Equal(t, "2025-11-03", result.Date, "Date reflects the UTC day of the run")
	assert.Equal(t, 0, result.Failures)
	require.Len(t, result.Vehicles, 2)

	truck := result.Vehicles["T-420"]
	assert.Equal(t, 3, truck.Points)
	assert.Equal(t, 1, truck.Zones["aduana_420"].Cycles)
	assert.Equal(t, 37.0, truck.TotalKm, "One customs cycle at the fixed rate")

	idle := result.Vehicles["T-101"]
	assert.Equal(t, 0, idle.Points)
	assert.Equal(t, 0.0, idle.TotalKm)

	assert.Equal(t, 37.0, result.TotalKm)
	require.Contains(t, sink.inserts, "T-420", "Results reach the warehouse sink")
}

func TestRunDay_CachesResultForDate(t *testing.T) {
	telemetry := &fakeTelemetry{
		devices: []geotab.Device{{ID: "b1", Name: "T-420"}},
		traces:  map[string][]geofence.Coordinate{"b1": aduanaRoundTrip()},
	}
	svc := newTestService(telemetry, nil)

	_, err := svc.RunDay(context.Background(), time.Date(2025, 11, 3, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	cached, found := svc.CachedDay("2025-11-03")
	require.True(t, found)
	assert.Equal(t, 37.0, cached.TotalKm)

	_, found = svc.CachedDay("2025-11-04")
	assert.False(t, found, "Dates without a completed run are absent")
}

func TestRunDay_ListVehiclesFailureAborts(t *testing.T) {
	telemetry := &fakeTelemetry{listErr: errors.New("session expired")}
	svc := newTestService(telemetry, nil)

	_, err := svc.RunDay(context.Background(), time.Now())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to list vehicles")
}

func TestRunDay_TraceFetchFailureDegradesToEmpty(t *testing.T) {
	telemetry := &fakeTelemetry{
		devices: []geotab.Device{
			{ID: "b1", Name: "T-420"},
			{ID: "b2", Name: "T-101"},
		},
		traces:   map[string][]geofence.Coordinate{"b1": aduanaRoundTrip()},
		fetchErr: map[string]error{"b2": errors.New("upstream timeout")},
	}
	svc := newTestService(telemetry, nil)

	result, err := svc.RunDay(context.Background(), time.Now())
	require.NoError(t, err)

	require.Len(t, result.Vehicles, 2, "A failed fetch keeps the vehicle with an empty trace")
	assert.Equal(t, 0, result.Vehicles["T-101"].Points)
	assert.Equal(t, 37.0, result.TotalKm, "Healthy vehicles are unaffected")
}

func TestRunDay_SinkFailureDoesNotAbortBatch(t *testing.T) {
	telemetry := &fakeTelemetry{
		devices: []geotab.Device{{ID: "b1", Name: "T-420"}},
		traces:  map[string][]geofence.Coordinate{"b1": aduanaRoundTrip()},
	}
	sink := &recordingSink{failErr: errors.New("connection refused")}
	svc := newTestService(telemetry, sink)

	result, err := svc.RunDay(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Equal(t, 0, result.Failures, "Warehouse failures are logged, not fatal")
	assert.Equal(t, 37.0, result.TotalKm)
}

func TestRunDay_DeviceWithoutNameUsesID(t *testing.T) {
	telemetry := &fakeTelemetry{
		devices: []geotab.Device{{ID: "b9"}},
		traces:  map[string][]geofence.Coordinate{"b9": aduanaRoundTrip()},
	}
	svc := newTestService(telemetry, nil)

	result, err := svc.RunDay(context.Background(), time.Now())
	require.NoError(t, err)
	require.Contains(t, result.Vehicles, "b9")
}

func TestAnalyzeAdhoc(t *testing.T) {
	svc := newTestService(&fakeTelemetry{}, nil)

	zones, err := svc.AnalyzeAdhoc(context.Background(), "adhoc-1", aduanaRoundTrip())
	require.NoError(t, err)
	assert.Equal(t, 1, zones["aduana_420"].Cycles)
	assert.Equal(t, 37.0, geofence.TotalKm(zones))
}
