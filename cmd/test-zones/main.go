package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/osoriofleet/fleetkm/server/internal/config"
	"github.com/osoriofleet/fleetkm/server/internal/lib/geofence"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]

	switch command {
	case "list":
		handleList()
	case "lookup":
		handleLookup()
	case "kml":
		handleKML()
	case "help":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n\n", command)
		printUsage()
		os.Exit(1)
	}
}

// loadRegistry loads the zone file with the default billing table
func loadRegistry(zoneFile string) *geofence.Registry {
	cfg := config.DefaultConfig()
	registry, err := geofence.LoadRegistry(zoneFile, cfg.Geofence.BillingPolicies())
	if err != nil {
		log.Fatalf("Error loading zones from %s: %v", zoneFile, err)
	}
	return registry
}

func handleList() {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	zoneFile := fs.String("zones", "geofences.json", "Zone definition file")

	fs.Parse(os.Args[2:])

	registry := loadRegistry(*zoneFile)

	fmt.Printf("Loaded %d zones from %s:\n", registry.Len(), *zoneFile)
	for _, zone := range registry.Zones() {
		box := zone.Ring.BoundingBox()
		fmt.Printf("  %s (%s)\n", zone.ID, zone.Name)
		fmt.Printf("    Billing: %s", zone.Billing.Mode)
		if zone.Billing.Mode == geofence.BillingFixedPerCycle {
			fmt.Printf(" at %.1f km/cycle", zone.Billing.KmPerCycle)
		}
		fmt.Printf("\n")
		fmt.Printf("    Vertices: %d\n", len(zone.Ring))
		fmt.Printf("    Extent: (%.4f, %.4f) to (%.4f, %.4f)\n",
			box.MinLat, box.MinLon, box.MaxLat, box.MaxLon)
	}
}

func handleLookup() {
	fs := flag.NewFlagSet("lookup", flag.ExitOnError)
	zoneFile := fs.String("zones", "geofences.json", "Zone definition file")
	lat := fs.Float64("lat", 0, "Latitude of point")
	lon := fs.Float64("lon", 0, "Longitude of point")

	fs.Parse(os.Args[2:])

	if *lat == 0 && *lon == 0 {
		fmt.Println("Example usage:")
		fmt.Println("  test-zones lookup --lat 27.4620 --lon -99.7610")
		fmt.Println("  (Point inside the Aduana KM 420 customs yard)")
		os.Exit(1)
	}

	registry := loadRegistry(*zoneFile)

	zone, found := registry.FindZone(*lat, *lon)
	fmt.Printf("Zone lookup:\n")
	fmt.Printf("  Point: (%.6f, %.6f)\n", *lat, *lon)
	if found {
		fmt.Printf("  Zone: %s (%s)\n", zone.ID, zone.Name)
		fmt.Printf("  Billing: %s\n", zone.Billing.Mode)
	} else {
		fmt.Printf("  Zone: outside all configured zones\n")
	}
}

func handleKML() {
	fs := flag.NewFlagSet("kml", flag.ExitOnError)
	zoneFile := fs.String("zones", "geofences.json", "Zone definition file")
	output := fs.String("output", "", "Output file (default stdout)")

	fs.Parse(os.Args[2:])

	registry := loadRegistry(*zoneFile)

	out := os.Stdout
	if *output != "" {
		f, err := os.Create(*output)
		if err != nil {
			log.Fatalf("Error creating output file: %v", err)
		}
		defer f.Close()
		out = f
	}

	if err := geofence.ZonesKML(registry).WriteIndent(out, "", "  "); err != nil {
		log.Fatalf("Error writing KML: %v", err)
	}

	if *output != "" {
		fmt.Printf("Wrote %d zones to %s\n", registry.Len(), *output)
	}
}

func printUsage() {
	fmt.Printf(`test-zones - Geofence zone inspection tool

USAGE:
    test-zones <command> [options]

COMMANDS:
    list       Print all configured zones with billing modes and extents
    lookup     Resolve a point to its containing zone
    kml        Export zone polygons as KML for Google Earth
    help       Show this help message

EXAMPLES:
    # Show the configured zone set
    test-zones list --zones geofences.json

    # Which zone is a GPS fix in?
    test-zones lookup --lat 27.4620 --lon -99.7610

    # Inspect zone shapes in Google Earth
    test-zones kml --output zones.kml
`)
}
