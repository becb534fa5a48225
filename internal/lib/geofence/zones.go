package geofence

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/osoriofleet/fleetkm/server/internal/lib/geo"
)

// ErrConfiguration indicates the zone definition source was missing or
// malformed. Registry construction fails with it; callers that choose to
// continue should do so with an explicit empty registry so that the
// degradation to zero metrics is loud in the logs, not silent.
var ErrConfiguration = errors.New("geofence configuration error")

// Registry holds the immutable set of zones for an analysis session.
// Lookup iterates zones in the order they appear in the definition file, so
// on overlap the first declared zone wins. Safe for concurrent readers.
type Registry struct {
	zones []Zone
	byID  map[string]int
}

// geojsonFile is the subset of a GeoJSON FeatureCollection the zone loader
// consumes. Zone polygons use the first (outer) ring; holes are not
// supported.
type geojsonFile struct {
	Type     string           `json:"type"`
	Features []geojsonFeature `json:"features"`
}

type geojsonFeature struct {
	Properties struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"properties"`
	Geometry struct {
		Type        string        `json:"type"`
		Coordinates [][][]float64 `json:"coordinates"`
	} `json:"geometry"`
}

// NewRegistry builds a registry from already-parsed zones, preserving order
func NewRegistry(zones []Zone) *Registry {
	r := &Registry{
		zones: make([]Zone, len(zones)),
		byID:  make(map[string]int, len(zones)),
	}
	for i, z := range zones {
		z.box = z.Ring.BoundingBox()
		r.zones[i] = z
		r.byID[z.ID] = i
	}
	r.warnOverlaps()
	return r
}

// LoadRegistry reads a GeoJSON FeatureCollection of zone polygons and pairs
// each zone with its billing policy. Zones absent from the billing map
// default to real-distance billing, matching the historical behavior of the
// rate table, and are logged so the omission is visible.
func LoadRegistry(path string, billing map[string]BillingPolicy) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %v", ErrConfiguration, path, err)
	}
	return ParseZones(data, billing)
}

// ParseZones builds a registry from raw GeoJSON bytes. See LoadRegistry.
func ParseZones(data []byte, billing map[string]BillingPolicy) (*Registry, error) {
	var file geojsonFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("%w: invalid GeoJSON: %v", ErrConfiguration, err)
	}

	if len(file.Features) == 0 {
		return nil, fmt.Errorf("%w: feature collection has no zones", ErrConfiguration)
	}

	zones := make([]Zone, 0, len(file.Features))
	for i, feature := range file.Features {
		if feature.Properties.ID == "" {
			return nil, fmt.Errorf("%w: feature %d has no id property", ErrConfiguration, i)
		}
		if feature.Geometry.Type != "Polygon" || len(feature.Geometry.Coordinates) == 0 {
			return nil, fmt.Errorf("%w: zone %s: geometry must be a Polygon", ErrConfiguration, feature.Properties.ID)
		}

		// GeoJSON positions are [longitude, latitude]
		outer := feature.Geometry.Coordinates[0]
		if len(outer) < 3 {
			return nil, fmt.Errorf("%w: zone %s: polygon ring needs at least 3 vertices", ErrConfiguration, feature.Properties.ID)
		}
		ring := make(geo.Ring, len(outer))
		for j, pos := range outer {
			if len(pos) < 2 {
				return nil, fmt.Errorf("%w: zone %s: malformed position at index %d", ErrConfiguration, feature.Properties.ID, j)
			}
			ring[j] = geo.Point{Latitude: pos[1], Longitude: pos[0]}
		}

		policy, ok := billing[feature.Properties.ID]
		if !ok {
			log.Printf("Zone %s has no billing entry, defaulting to real-distance", feature.Properties.ID)
			policy = BillingPolicy{Mode: BillingRealDistance}
		}

		zones = append(zones, Zone{
			ID:      feature.Properties.ID,
			Name:    feature.Properties.Name,
			Ring:    ring,
			Billing: policy,
		})
		log.Printf("Zone loaded: %s (id: %s, billing: %s)", feature.Properties.Name, feature.Properties.ID, policy.Mode)
	}

	return NewRegistry(zones), nil
}

// FindZone returns the first zone whose polygon contains the point, in
// declaration order. Points exactly on a zone edge count as inside (the
// ring containment convention). The boolean is false when no zone contains
// the point.
func (r *Registry) FindZone(lat, lon float64) (Zone, bool) {
	p := geo.Point{Latitude: lat, Longitude: lon}
	for _, z := range r.zones {
		if p.Latitude < z.box.MinLat || p.Latitude > z.box.MaxLat ||
			p.Longitude < z.box.MinLon || p.Longitude > z.box.MaxLon {
			continue
		}
		if z.Ring.Contains(p) {
			return z, true
		}
	}
	return Zone{}, false
}

// Zone looks up a zone by id
func (r *Registry) Zone(id string) (Zone, bool) {
	i, ok := r.byID[id]
	if !ok {
		return Zone{}, false
	}
	return r.zones[i], true
}

// Zones returns the zones in declaration order. The slice is shared; callers
// must not mutate it.
func (r *Registry) Zones() []Zone {
	return r.zones
}

// Len returns the number of registered zones
func (r *Registry) Len() int {
	return len(r.zones)
}

// warnOverlaps logs a warning for each pair of zones whose extents overlap.
// Overlap is legal (first declared wins) but should be a deliberate choice.
func (r *Registry) warnOverlaps() {
	for i := 0; i < len(r.zones); i++ {
		for j := i + 1; j < len(r.zones); j++ {
			if r.zones[i].box.Intersects(r.zones[j].box) {
				log.Printf("Zones %s and %s overlap; points in both bill to %s (declared first)",
					r.zones[i].ID, r.zones[j].ID, r.zones[i].ID)
			}
		}
	}
}
