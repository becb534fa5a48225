package services

import (
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/osoriofleet/fleetkm/server/internal/lib/geo"
	"github.com/osoriofleet/fleetkm/server/internal/lib/geofence"
)

// HTTPHandlers exposes the analysis service over plain HTTP JSON. Handlers
// are registered on the prefab server from cmd/server.
type HTTPHandlers struct {
	analysis *AnalysisService
}

// NewHTTPHandlers creates the handler set
func NewHTTPHandlers(analysis *AnalysisService) *HTTPHandlers {
	return &HTTPHandlers{analysis: analysis}
}

// zoneSummary is the zone list representation for the zones endpoint
type zoneSummary struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	BillingMode string   `json:"billing_mode"`
	KmPerCycle  *float64 `json:"km_per_cycle,omitempty"`
	Vertices    int      `json:"vertices"`
}

// analyzeRequest is the body of POST /api/v1/analyze. Either a raw point
// list or an encoded polyline must be supplied; points win when both are.
type analyzeRequest struct {
	Vehicle         string                `json:"vehicle"`
	Points          []geofence.Coordinate `json:"points"`
	EncodedPolyline string                `json:"encoded_polyline"`
}

type analyzeResponse struct {
	Vehicle string                         `json:"vehicle"`
	Points  int                            `json:"points"`
	Zones   map[string]geofence.ZoneMetric `json:"zones"`
	TotalKm float64                        `json:"total_km"`
}

// HandleZones serves the configured zone set
func (h *HTTPHandlers) HandleZones(w http.ResponseWriter, r *http.Request) {
	zones := h.analysis.Registry().Zones()
	summaries := make([]zoneSummary, len(zones))
	for i, zone := range zones {
		summary := zoneSummary{
			ID:          zone.ID,
			Name:        zone.Name,
			BillingMode: zone.Billing.Mode.String(),
			Vertices:    len(zone.Ring),
		}
		if zone.Billing.Mode == geofence.BillingFixedPerCycle {
			rate := zone.Billing.KmPerCycle
			summary.KmPerCycle = &rate
		}
		summaries[i] = summary
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"zones": summaries})
}

// HandleZonesKML serves the zone polygons as a KML document
func (h *HTTPHandlers) HandleZonesKML(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/vnd.google-earth.kml+xml")
	if err := geofence.ZonesKML(h.analysis.Registry()).WriteIndent(w, "", "  "); err != nil {
		log.Printf("Failed to write zones KML: %v", err)
	}
}

// HandleAnalyze runs an ad-hoc analysis over a posted trace
func (h *HTTPHandlers) HandleAnalyze(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST required")
		return
	}

	var req analyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}
	if req.Vehicle == "" {
		writeError(w, http.StatusBadRequest, "vehicle is required")
		return
	}

	points := req.Points
	if len(points) == 0 && req.EncodedPolyline != "" {
		decoded, err := geo.DecodePolyline(req.EncodedPolyline)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid encoded_polyline: "+err.Error())
			return
		}
		points = make([]geofence.Coordinate, len(decoded))
		for i, p := range decoded {
			points[i] = geofence.Coordinate{Latitude: p.Latitude, Longitude: p.Longitude}
		}
	}

	zones, err := h.analysis.AnalyzeAdhoc(r.Context(), req.Vehicle, points)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "analysis failed: "+err.Error())
		return
	}

	writeJSON(w, http.StatusOK, analyzeResponse{
		Vehicle: req.Vehicle,
		Points:  len(points),
		Zones:   zones,
		TotalKm: geofence.TotalKm(zones),
	})
}

// HandleResults serves a cached batch result. The date comes from the path,
// GET /api/v1/results/{date}, or from a date query parameter.
func (h *HTTPHandlers) HandleResults(w http.ResponseWriter, r *http.Request) {
	date := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/v1/results"), "/")
	if date == "" {
		date = r.URL.Query().Get("date")
	}
	if date == "" {
		writeError(w, http.StatusBadRequest, "date query parameter is required")
		return
	}
	if _, err := time.Parse("2006-01-02", date); err != nil {
		writeError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
		return
	}

	result, found := h.analysis.CachedDay(date)
	if !found {
		writeError(w, http.StatusNotFound, "no computed results for "+date)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// HandleHealth is a liveness probe
func (h *HTTPHandlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("Failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
