// Package geofence implements the spatial cost model: no-fly zones,
// sensitive areas, the operational boundary, and altitude stratification
// by heading. All polygon tests are 2D; zones extend vertically without
// limit.
package geofence

import (
	"fmt"
	"math"

	"github.com/skyward/utm/internal/config"
	"github.com/skyward/utm/internal/uas"
)

// Engine answers geofence queries against an immutable zone set.
type Engine struct {
	area           config.Bounds
	noFlyZones     []uas.GeofenceZone
	sensitiveAreas []uas.GeofenceZone
	layers         []float64
	directionMap   map[string][]float64
}

// NewEngine builds an engine from the loaded configuration.
func NewEngine(cfg *config.Config) *Engine {
	return &Engine{
		area:           cfg.OperationalArea,
		noFlyZones:     cfg.NoFlyZones,
		sensitiveAreas: cfg.SensitiveAreas,
		layers:         cfg.AltitudeLayers,
		directionMap:   cfg.DirectionAltitudeMap,
	}
}

// InNoFlyZone reports whether the position lies inside any prohibited
// polygon. Altitude is ignored.
func (e *Engine) InNoFlyZone(pos uas.Position) bool {
	for _, zone := range e.noFlyZones {
		if PointInPolygon(pos.Latitude, pos.Longitude, zone.Polygon) {
			return true
		}
	}
	return false
}

// CostMultiplier returns the geofence weight for a position: +Inf inside a
// no-fly zone, otherwise the maximum multiplier of any containing sensitive
// area, otherwise 1.
func (e *Engine) CostMultiplier(pos uas.Position) float64 {
	if e.InNoFlyZone(pos) {
		return math.Inf(1)
	}

	multiplier := 1.0
	for _, area := range e.sensitiveAreas {
		if PointInPolygon(pos.Latitude, pos.Longitude, area.Polygon) {
			multiplier = math.Max(multiplier, area.CostMultiplier)
		}
	}
	return multiplier
}

// WithinOperationalArea is a closed-box test against the operational bounds.
func (e *Engine) WithinOperationalArea(pos uas.Position) bool {
	if pos.Latitude < e.area.MinLat || pos.Latitude > e.area.MaxLat {
		return false
	}
	if pos.Longitude < e.area.MinLon || pos.Longitude > e.area.MaxLon {
		return false
	}
	return true
}

// AltitudeLane returns the altitude an aircraft on the given heading should
// cruise at: the member of the heading's layer subset nearest the current
// altitude. Headings quantise to N [315,45), E [45,135), S [135,225),
// W [225,315).
func (e *Engine) AltitudeLane(heading, currentAlt float64) float64 {
	heading = math.Mod(heading, 360)
	if heading < 0 {
		heading += 360
	}

	var direction string
	switch {
	case heading >= 315 || heading < 45:
		direction = "NORTH"
	case heading < 135:
		direction = "EAST"
	case heading < 225:
		direction = "SOUTH"
	default:
		direction = "WEST"
	}

	available, ok := e.directionMap[direction]
	if !ok || len(available) == 0 {
		available = e.layers
	}

	closest := available[0]
	for _, alt := range available[1:] {
		if math.Abs(alt-currentAlt) < math.Abs(closest-currentAlt) {
			closest = alt
		}
	}
	return closest
}

// ValidateWaypoints checks every position against the no-fly set and names
// the first violation.
func (e *Engine) ValidateWaypoints(waypoints []uas.Position) (bool, string) {
	for i, wp := range waypoints {
		if e.InNoFlyZone(wp) {
			return false, fmt.Sprintf("waypoint %d violates no-fly zone at (%.4f, %.4f)", i, wp.Latitude, wp.Longitude)
		}
	}
	return true, ""
}

// Snapshot returns the zone set for external visualisation.
func (e *Engine) Snapshot() Snapshot {
	return Snapshot{
		NoFlyZones:      e.noFlyZones,
		SensitiveAreas:  e.sensitiveAreas,
		OperationalArea: e.area,
	}
}

// Snapshot is the externally visible geofence state.
type Snapshot struct {
	NoFlyZones      []uas.GeofenceZone `json:"no_fly_zones"`
	SensitiveAreas  []uas.GeofenceZone `json:"sensitive_areas"`
	OperationalArea config.Bounds      `json:"operational_area"`
}
