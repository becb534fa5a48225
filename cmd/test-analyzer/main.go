package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"sort"
	"time"

	"github.com/joho/godotenv"

	"github.com/osoriofleet/fleetkm/server/internal/clients/geotab"
	"github.com/osoriofleet/fleetkm/server/internal/config"
	"github.com/osoriofleet/fleetkm/server/internal/lib/geo"
	"github.com/osoriofleet/fleetkm/server/internal/lib/geofence"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]

	switch command {
	case "analyze":
		handleAnalyze()
	case "trace-kml":
		handleTraceKML()
	case "fetch":
		handleFetch()
	case "help":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n\n", command)
		printUsage()
		os.Exit(1)
	}
}

func newAnalyzer(zoneFile string) *geofence.Analyzer {
	cfg := config.DefaultConfig()
	registry, err := geofence.LoadRegistry(zoneFile, cfg.Geofence.BillingPolicies())
	if err != nil {
		log.Fatalf("Error loading zones from %s: %v", zoneFile, err)
	}
	return geofence.NewAnalyzer(registry, geofence.NewMemoryStateStore())
}

// loadTrace reads points from a JSON file, or decodes an encoded polyline
func loadTrace(traceFile, encoded string) []geofence.Coordinate {
	if traceFile != "" {
		data, err := os.ReadFile(traceFile)
		if err != nil {
			log.Fatalf("Error reading trace file: %v", err)
		}
		var points []geofence.Coordinate
		if err := json.Unmarshal(data, &points); err != nil {
			log.Fatalf("Error parsing trace file: %v", err)
		}
		return points
	}

	if encoded != "" {
		decoded, err := geo.DecodePolyline(encoded)
		if err != nil {
			log.Fatalf("Error decoding polyline: %v", err)
		}
		points := make([]geofence.Coordinate, len(decoded))
		for i, p := range decoded {
			points[i] = geofence.Coordinate{Latitude: p.Latitude, Longitude: p.Longitude}
		}
		return points
	}

	return nil
}

func handleAnalyze() {
	fs := flag.NewFlagSet("analyze", flag.ExitOnError)
	zoneFile := fs.String("zones", "geofences.json", "Zone definition file")
	traceFile := fs.String("trace", "", "JSON file with [{\"lat\":..,\"lon\":..},...]")
	encoded := fs.String("polyline", "", "Encoded polyline instead of a trace file")
	vehicle := fs.String("vehicle", "test-vehicle", "Vehicle key for cycle state")

	fs.Parse(os.Args[2:])

	points := loadTrace(*traceFile, *encoded)
	if len(points) == 0 {
		fmt.Println("Example usage:")
		fmt.Println("  test-analyzer analyze --trace day.json --vehicle T-420")
		fmt.Println("  test-analyzer analyze --polyline \"encoded_string\"")
		os.Exit(1)
	}

	analyzer := newAnalyzer(*zoneFile)

	result, err := analyzer.AnalyzeVehicle(context.Background(), *vehicle, points)
	if err != nil {
		log.Fatalf("Error analyzing trace: %v", err)
	}

	fmt.Printf("Analysis of %d points for %s:\n", len(points), *vehicle)

	zoneIDs := make([]string, 0, len(result))
	for zoneID := range result {
		zoneIDs = append(zoneIDs, zoneID)
	}
	sort.Strings(zoneIDs)

	for _, zoneID := range zoneIDs {
		m := result[zoneID]
		fmt.Printf("  %s (%s):\n", m.ZoneID, m.ZoneName)
		fmt.Printf("    Cycles: %d\n", m.Cycles)
		if m.KmPerCycle != nil {
			fmt.Printf("    Rate: %.1f km/cycle\n", *m.KmPerCycle)
		}
		if m.RealDistanceKm != nil {
			fmt.Printf("    Measured: %.3f km\n", *m.RealDistanceKm)
		}
		fmt.Printf("    Billable: %.3f km (%s)\n", m.TotalKm, m.BillingModeStr)
	}

	fmt.Printf("  Total: %.3f km\n", geofence.TotalKm(result))
}

func handleTraceKML() {
	fs := flag.NewFlagSet("trace-kml", flag.ExitOnError)
	zoneFile := fs.String("zones", "geofences.json", "Zone definition file")
	traceFile := fs.String("trace", "", "JSON file with trace points")
	encoded := fs.String("polyline", "", "Encoded polyline instead of a trace file")
	vehicle := fs.String("vehicle", "test-vehicle", "Vehicle name for the KML placemark")
	output := fs.String("output", "", "Output file (default stdout)")

	fs.Parse(os.Args[2:])

	points := loadTrace(*traceFile, *encoded)
	if len(points) == 0 {
		fmt.Println("Example usage:")
		fmt.Println("  test-analyzer trace-kml --trace day.json --vehicle T-420 --output trace.kml")
		os.Exit(1)
	}

	analyzer := newAnalyzer(*zoneFile)

	out := os.Stdout
	if *output != "" {
		f, err := os.Create(*output)
		if err != nil {
			log.Fatalf("Error creating output file: %v", err)
		}
		defer f.Close()
		out = f
	}

	if err := geofence.TraceKML(analyzer.Registry(), *vehicle, points).WriteIndent(out, "", "  "); err != nil {
		log.Fatalf("Error writing KML: %v", err)
	}

	if *output != "" {
		fmt.Printf("Wrote trace of %d points to %s\n", len(points), *output)
	}
}

func handleFetch() {
	fs := flag.NewFlagSet("fetch", flag.ExitOnError)
	server := fs.String("server", "", "Telemetry server (default from PF__TELEMETRY__SERVER)")
	username := fs.String("username", "", "Telemetry username")
	password := fs.String("password", "", "Telemetry password")
	database := fs.String("database", "", "Telemetry database")
	device := fs.String("device", "", "Device id to fetch")
	date := fs.String("date", "", "UTC day to fetch (YYYY-MM-DD, default yesterday)")

	fs.Parse(os.Args[2:])

	_ = godotenv.Load()

	cfg := config.DefaultConfig().Telemetry
	if *server != "" {
		cfg.Server = *server
	}
	if *username != "" {
		cfg.Username = *username
	}
	if *password != "" {
		cfg.Password = *password
	}
	if *database != "" {
		cfg.Database = *database
	}

	if cfg.Username == "" || cfg.Password == "" {
		fmt.Println("Example usage:")
		fmt.Println("  test-analyzer fetch --username user@example.com --password secret --database fleet --device b42")
		os.Exit(1)
	}

	ctx := context.Background()
	client := geotab.NewClient(cfg)

	if *device == "" {
		devices, err := client.ListVehicles(ctx)
		if err != nil {
			log.Fatalf("Error listing vehicles: %v", err)
		}
		fmt.Printf("Fleet has %d devices:\n", len(devices))
		for _, d := range devices {
			fmt.Printf("  %s: %s (%s)\n", d.ID, d.Name, d.LicensePlate)
		}
		return
	}

	from := time.Now().UTC().AddDate(0, 0, -1).Truncate(24 * time.Hour)
	if *date != "" {
		parsed, err := time.Parse("2006-01-02", *date)
		if err != nil {
			log.Fatalf("Error parsing date: %v", err)
		}
		from = parsed
	}
	to := from.Add(24 * time.Hour)

	points, err := client.FetchTrace(ctx, *device, from, to)
	if err != nil {
		log.Fatalf("Error fetching trace: %v", err)
	}

	fmt.Printf("Fetched %d points for device %s on %s\n", len(points), *device, from.Format("2006-01-02"))
	if len(points) > 0 {
		fmt.Printf("  First: (%.6f, %.6f) at %s\n", points[0].Latitude, points[0].Longitude, points[0].Timestamp)
		last := points[len(points)-1]
		fmt.Printf("  Last:  (%.6f, %.6f) at %s\n", last.Latitude, last.Longitude, last.Timestamp)
	}
}

func printUsage() {
	fmt.Printf(`test-analyzer - Geofence analysis testing tool

USAGE:
    test-analyzer <command> [options]

COMMANDS:
    analyze      Run the full analysis over a local trace
    trace-kml    Render a trace and the zones as KML for Google Earth
    fetch        Pull a device trace from the telemetry provider
    help         Show this help message

EXAMPLES:
    # Analyze a saved trace against the production zones
    test-analyzer analyze --trace day.json --vehicle T-420

    # Visualize a trace next to the zone polygons
    test-analyzer trace-kml --trace day.json --output trace.kml

    # List devices, then fetch one day of GPS fixes
    test-analyzer fetch --username user@example.com --password secret --database fleet
    test-analyzer fetch --username user@example.com --password secret --database fleet --device b42 --date 2025-11-03
`)
}
