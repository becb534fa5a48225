package config

import (
	"time"

	"github.com/osoriofleet/fleetkm/server/internal/lib/geofence"
)

// Config is the complete server configuration, loaded from prefab.yaml and
// PF__ environment variables via Prefab's config system.
type Config struct {
	Geofence  GeofenceConfig  `yaml:"geofence"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Warehouse WarehouseConfig `yaml:"warehouse"`
	Batch     BatchConfig     `yaml:"batch"`
	State     StateConfig     `yaml:"state"`
}

// GeofenceConfig names the zone definition file and the billing policy per
// zone id. The billing table is the single source of per-cycle rates; it is
// converted once at startup and handed to the registry, never re-read.
type GeofenceConfig struct {
	ZoneFile string                 `yaml:"zone_file"`
	Billing  map[string]ZoneBilling `yaml:"billing"`
}

// ZoneBilling is one zone's billing entry. Mode is "fixed" or "real";
// km_per_cycle applies only to fixed mode.
type ZoneBilling struct {
	Mode       string  `yaml:"mode"`
	KmPerCycle float64 `yaml:"km_per_cycle"`
}

// TelemetryConfig holds the fleet telemetry provider's credentials and the
// device group whose vehicles are analyzed.
type TelemetryConfig struct {
	Server       string        `yaml:"server"`
	Username     string        `yaml:"username"`
	Password     string        `yaml:"password"`
	Database     string        `yaml:"database"`
	DeviceGroup  string        `yaml:"device_group"`
	FetchTimeout time.Duration `yaml:"fetch_timeout"`
}

// WarehouseConfig holds the metrics warehouse connection. An empty DSN
// disables persistence; analysis results are then only cached in memory.
type WarehouseConfig struct {
	DSN   string `yaml:"dsn"`
	Table string `yaml:"table"`
}

// BatchConfig controls the daily batch run
type BatchConfig struct {
	RunInterval    time.Duration `yaml:"run_interval"`
	MaxConcurrency int           `yaml:"max_concurrency"`
	ResultTTL      time.Duration `yaml:"result_ttl"`
}

// StateConfig selects the cycle state backend. With an empty Redis address
// the tracker state lives in process memory and is lost on restart.
type StateConfig struct {
	RedisAddr     string        `yaml:"redis_addr"`
	RedisPassword string        `yaml:"redis_password"`
	RedisDB       int           `yaml:"redis_db"`
	TTL           time.Duration `yaml:"ttl"`
}

// BillingPolicies converts the yaml billing table into the registry's typed
// form. Unrecognized modes fall back to real-distance billing, matching the
// loader's default for zones with no entry at all.
func (g GeofenceConfig) BillingPolicies() map[string]geofence.BillingPolicy {
	policies := make(map[string]geofence.BillingPolicy, len(g.Billing))
	for zoneID, billing := range g.Billing {
		switch billing.Mode {
		case "fixed":
			policies[zoneID] = geofence.BillingPolicy{
				Mode:       geofence.BillingFixedPerCycle,
				KmPerCycle: billing.KmPerCycle,
			}
		default:
			policies[zoneID] = geofence.BillingPolicy{Mode: geofence.BillingRealDistance}
		}
	}
	return policies
}

// DefaultConfig returns a default configuration
func DefaultConfig() *Config {
	return &Config{
		Geofence: GeofenceConfig{
			ZoneFile: "geofences.json",
			Billing: map[string]ZoneBilling{
				"aduana_420":   {Mode: "fixed", KmPerCycle: 37},
				"colombia":     {Mode: "fixed", KmPerCycle: 60},
				"nuevo_laredo": {Mode: "real"},
			},
		},
		Telemetry: TelemetryConfig{
			Server:       "my.geotab.com",
			FetchTimeout: 60 * time.Second,
		},
		Warehouse: WarehouseConfig{
			Table: "geofence_metrics",
		},
		Batch: BatchConfig{
			RunInterval:    24 * time.Hour,
			MaxConcurrency: 4,
			ResultTTL:      48 * time.Hour,
		},
		State: StateConfig{
			TTL: 7 * 24 * time.Hour,
		},
	}
}
