package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"time"

	"github.com/dpup/prefab"
	"github.com/joho/godotenv"

	"github.com/osoriofleet/fleetkm/server/internal/cache"
	"github.com/osoriofleet/fleetkm/server/internal/clients/geotab"
	"github.com/osoriofleet/fleetkm/server/internal/config"
	"github.com/osoriofleet/fleetkm/server/internal/lib/geofence"
	"github.com/osoriofleet/fleetkm/server/internal/metrics"
	"github.com/osoriofleet/fleetkm/server/internal/services"
	"github.com/osoriofleet/fleetkm/server/internal/statestore"
	"github.com/osoriofleet/fleetkm/server/internal/warehouse"
)

func main() {
	// Local development credentials live in .env; absence is fine in prod
	_ = godotenv.Load()

	// Load configuration using Prefab's config system
	appConfig := loadConfig()

	ctx := context.Background()

	// Load the zone registry. Bad zone configuration degrades the server to
	// an empty registry instead of refusing to start, so the zone list and
	// health endpoints stay reachable while the config is fixed.
	registry, err := geofence.LoadRegistry(appConfig.Geofence.ZoneFile, appConfig.Geofence.BillingPolicies())
	if err != nil {
		if !errors.Is(err, geofence.ErrConfiguration) {
			log.Fatalf("Failed to load zone file %s: %v", appConfig.Geofence.ZoneFile, err)
		}
		log.Printf("Invalid zone configuration, starting with no zones: %v", err)
		registry = geofence.NewRegistry(nil)
	}
	log.Printf("Loaded %d geofence zones from %s", registry.Len(), appConfig.Geofence.ZoneFile)

	// Cycle state: Redis when configured, otherwise process memory
	var states geofence.StateStore
	if appConfig.State.RedisAddr != "" {
		redisStore, err := statestore.NewRedisStore(ctx, appConfig.State)
		if err != nil {
			log.Fatalf("Failed to connect cycle state store: %v", err)
		}
		defer redisStore.Close()
		states = redisStore
		log.Printf("Cycle state persisted to redis at %s", appConfig.State.RedisAddr)
	} else {
		states = geofence.NewMemoryStateStore()
		log.Printf("Cycle state held in memory; entry/exit accounting resets on restart")
	}

	// Warehouse persistence is optional; an empty DSN disables it
	var sink services.MetricSink
	if appConfig.Warehouse.DSN != "" {
		store, err := warehouse.Open(appConfig.Warehouse.DSN, appConfig.Warehouse.Table)
		if err != nil {
			log.Fatalf("Failed to connect metrics warehouse: %v", err)
		}
		defer store.Close()
		if err := store.EnsureSchema(ctx); err != nil {
			log.Fatalf("Failed to prepare warehouse schema: %v", err)
		}
		sink = store
		log.Printf("Warehouse persistence enabled (table %s)", appConfig.Warehouse.Table)
	} else {
		log.Printf("Warehouse persistence disabled; results are cache-only")
	}

	// Initialize cache and telemetry client
	cacheInstance := cache.New()
	cacheInstance.StartPeriodicCleanup(ctx, time.Hour)
	telemetryClient := geotab.NewClient(appConfig.Telemetry)

	analyzer := geofence.NewAnalyzer(registry, states)
	analysisService := services.NewAnalysisService(telemetryClient, analyzer, sink, cacheInstance, &appConfig.Batch)
	handlers := services.NewHTTPHandlers(analysisService)

	log.Printf("Fleet Kilometers API Server starting")
	log.Printf("Telemetry server: %s (group %q)", appConfig.Telemetry.Server, appConfig.Telemetry.DeviceGroup)

	// Start scheduled daily batch runs
	periodicRuns := services.NewPeriodicRunService(analysisService, &appConfig.Batch)
	if err := periodicRuns.StartPeriodicRuns(ctx); err != nil {
		log.Printf("Failed to start periodic batch runs: %v", err)
	}

	// Server configuration (port, etc.) is loaded from prefab.yaml/env vars
	server := prefab.New(
		prefab.WithHTTPHandlerFunc("/", homepageHandler),
		prefab.WithHTTPHandlerFunc("/healthz", handlers.HandleHealth),
		prefab.WithHTTPHandlerFunc("/metrics", metrics.Handler().ServeHTTP),
		prefab.WithHTTPHandlerFunc("/api/v1/zones", handlers.HandleZones),
		prefab.WithHTTPHandlerFunc("/api/v1/zones.kml", handlers.HandleZonesKML),
		prefab.WithHTTPHandlerFunc("/api/v1/analyze", handlers.HandleAnalyze),
		prefab.WithHTTPHandlerFunc("/api/v1/results", handlers.HandleResults),
		prefab.WithHTTPHandlerFunc("/api/v1/results/", handlers.HandleResults),
	)

	// Start the server (blocks until shutdown)
	if err := server.Start(); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}

// loadConfig loads configuration using Prefab's config system
// Configuration is loaded from prefab.yaml and environment variables with PF__ prefix
func loadConfig() *config.Config {
	appConfig := config.DefaultConfig()

	// Unmarshal specific sections from Prefab's config using exact key paths
	if err := prefab.Config.Unmarshal("geofence", &appConfig.Geofence); err != nil {
		log.Fatalf("Failed to unmarshal geofence section: %v", err)
	}

	if err := prefab.Config.Unmarshal("telemetry", &appConfig.Telemetry); err != nil {
		log.Fatalf("Failed to unmarshal telemetry section: %v", err)
	}

	if err := prefab.Config.Unmarshal("warehouse", &appConfig.Warehouse); err != nil {
		log.Fatalf("Failed to unmarshal warehouse section: %v", err)
	}

	if err := prefab.Config.Unmarshal("batch", &appConfig.Batch); err != nil {
		log.Fatalf("Failed to unmarshal batch section: %v", err)
	}

	if err := prefab.Config.Unmarshal("state", &appConfig.State); err != nil {
		log.Fatalf("Failed to unmarshal state section: %v", err)
	}

	return appConfig
}

// homepageHandler serves a simple HTML homepage at the server root
func homepageHandler(w http.ResponseWriter, r *http.Request) {
	// Only handle the root path
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")

	html := `<!DOCTYPE html>
<html>
<head>
    <meta charset="utf-8">
    <title>fleetkm</title>
    <style>
        body {
            font-family: 'Courier New', Consolas, monospace;
            background: #000;
            color: #0f0;
            padding: 20px;
            line-height: 1.4;
        }
        a { color: #0ff; text-decoration: none; }
        a:hover { text-decoration: underline; }
        pre { margin: 0; }
        .header { color: #ff0; }
    </style>
</head>
<body>
<pre>
<span class="header">fleetkm</span>

Geofence analysis server for fleet billing: entry/exit cycles and
billable kilometers per customs zone.

<span class="header">API Endpoints:</span>

  <a href="/api/v1/zones">GET /api/v1/zones</a>          - Configured zones and billing modes
  <a href="/api/v1/zones.kml">GET /api/v1/zones.kml</a>      - Zone polygons for Google Earth
  POST /api/v1/analyze       - Ad-hoc analysis of a GPS trace
  <a href="/api/v1/results?date=2025-11-03">GET /api/v1/results</a>        - Computed daily results (?date=YYYY-MM-DD)
  <a href="/metrics">GET /metrics</a>               - Prometheus metrics

<span class="header">Example Usage:</span>
  curl /api/v1/zones
  curl -X POST /api/v1/analyze -d '{"vehicle":"T-420","points":[...]}'
</pre>
</body>
</html>`

	if _, err := fmt.Fprint(w, html); err != nil {
		slog.Error("Failed to write homepage HTML", "error", err)
	}
}
