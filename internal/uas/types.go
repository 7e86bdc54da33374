// Package uas defines the data model shared across the UTM core:
// positions, trajectories, missions, telemetry, and conflicts.
package uas

import (
	"encoding/json"
	"fmt"
	"math"
)

// Status enumerates the operational states shared by aircraft and missions.
type Status string

const (
	StatusIdle            Status = "idle"
	StatusAssigned        Status = "assigned"
	StatusEnRoutePickup   Status = "en_route_pickup"
	StatusAtPickup        Status = "at_pickup"
	StatusEnRouteDelivery Status = "en_route_delivery"
	StatusAtDelivery      Status = "at_delivery"
	StatusReturning       Status = "returning"
	StatusEmergency       Status = "emergency"
	StatusMaintenance     Status = "maintenance"
)

// Terminal reports whether the orchestrator will not transition the status
// further on its own.
func (s Status) Terminal() bool {
	return s == StatusEmergency || s == StatusMaintenance
}

// Position is a 3D position: latitude/longitude in degrees, altitude in
// metres above ground.
type Position struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Altitude  float64 `json:"altitude"`
}

// Position4D is a Position with an absolute timestamp (seconds since epoch).
type Position4D struct {
	Position
	Timestamp float64 `json:"timestamp"`
}

// Waypoint is a single point of a trajectory: position, arrival time,
// target ground speed, and heading (degrees, 0 = North, clockwise).
type Waypoint struct {
	Position Position `json:"position"`
	ETA      float64  `json:"eta"`
	Speed    float64  `json:"speed"`
	Heading  float64  `json:"heading"`
}

// Trajectory is a complete flight path with derived totals.
type Trajectory struct {
	Waypoints             []Waypoint `json:"waypoints"`
	TotalDistance         float64    `json:"total_distance"`
	TotalTime             float64    `json:"total_time"`
	EstimatedBatteryUsage float64    `json:"estimated_battery_usage"`
}

// StartTime returns the ETA of the first waypoint.
func (t *Trajectory) StartTime() float64 { return t.Waypoints[0].ETA }

// EndTime returns the ETA of the last waypoint.
func (t *Trajectory) EndTime() float64 { return t.Waypoints[len(t.Waypoints)-1].ETA }

// Clone returns a deep copy. Waypoints are values, so copying the slice is
// enough.
func (t *Trajectory) Clone() *Trajectory {
	out := *t
	out.Waypoints = make([]Waypoint, len(t.Waypoints))
	copy(out.Waypoints, t.Waypoints)
	return &out
}

// Validate checks the invariants every committed trajectory must hold.
// A violation indicates internal inconsistency, not bad input; callers
// treat a non-nil error as fatal.
func (t *Trajectory) Validate() error {
	if len(t.Waypoints) < 2 {
		return fmt.Errorf("trajectory has %d waypoints, need at least 2", len(t.Waypoints))
	}
	prev := math.Inf(-1)
	for i, wp := range t.Waypoints {
		if wp.ETA < prev {
			return fmt.Errorf("waypoint %d ETA %f precedes previous %f", i, wp.ETA, prev)
		}
		prev = wp.ETA
		for _, v := range []float64{wp.Position.Latitude, wp.Position.Longitude, wp.Position.Altitude, wp.ETA, wp.Speed, wp.Heading} {
			if math.IsNaN(v) {
				return fmt.Errorf("waypoint %d contains NaN", i)
			}
		}
	}
	return nil
}

// Telemetry is the last-known state reported by an aircraft.
type Telemetry struct {
	DroneID      string     `json:"drone_id"`
	Position     Position   `json:"position"`
	Velocity     [3]float64 `json:"velocity"`
	BatteryLevel float64    `json:"battery_level"`
	Status       Status     `json:"status"`
	Timestamp    float64    `json:"timestamp"`
}

// Mission is a pickup/delivery request with its lifecycle metadata. The
// committed trajectory covers both legs; PickupWaypointIndex marks where
// the delivery leg begins so followers can transition through at_pickup.
type Mission struct {
	MissionID           string      `json:"mission_id"`
	DroneID             string      `json:"drone_id,omitempty"`
	PickupLocation      Position    `json:"pickup_location"`
	DeliveryLocation    Position    `json:"delivery_location"`
	CreatedAt           float64     `json:"created_at"`
	AssignedAt          *float64    `json:"assigned_at,omitempty"`
	CompletedAt         *float64    `json:"completed_at,omitempty"`
	Status              Status      `json:"status"`
	Trajectory          *Trajectory `json:"trajectory,omitempty"`
	PickupWaypointIndex int         `json:"pickup_waypoint_index,omitempty"`
	PickupETA           float64     `json:"pickup_eta,omitempty"`
}

// DeliveryRequest is a user request to create a delivery.
type DeliveryRequest struct {
	Pickup   Position `json:"pickup"`
	Delivery Position `json:"delivery"`
}

// Conflict severity levels.
const (
	SeverityCritical = "critical"
	SeverityWarning  = "warning"
	SeverityMinor    = "minor"
)

// Conflict records the earliest separation violation between two
// trajectories.
type Conflict struct {
	ConflictID       string   `json:"conflict_id"`
	Drone1ID         string   `json:"drone_1_id"`
	Drone2ID         string   `json:"drone_2_id"`
	ConflictPosition Position `json:"conflict_position"`
	ConflictTime     float64  `json:"conflict_time"`
	Severity         string   `json:"severity"`
	ResolutionAction string   `json:"resolution_action,omitempty"`
}

// GeofenceZone is a named polygon with a cost multiplier. Polygons are 2D
// with infinite vertical extent; +Inf means prohibited.
type GeofenceZone struct {
	Name           string       `json:"name"`
	Polygon        [][2]float64 `json:"polygon"`
	CostMultiplier float64      `json:"cost_multiplier"`
}

// geofenceZoneJSON carries the multiplier as a tolerant field: +Inf is not
// representable in JSON, so prohibited zones serialise it as "inf".
type geofenceZoneJSON struct {
	Name           string       `json:"name"`
	Polygon        [][2]float64 `json:"polygon"`
	CostMultiplier any          `json:"cost_multiplier"`
}

func (z GeofenceZone) MarshalJSON() ([]byte, error) {
	out := geofenceZoneJSON{Name: z.Name, Polygon: z.Polygon}
	if math.IsInf(z.CostMultiplier, 1) {
		out.CostMultiplier = "inf"
	} else {
		out.CostMultiplier = z.CostMultiplier
	}
	return json.Marshal(out)
}

func (z *GeofenceZone) UnmarshalJSON(data []byte) error {
	var in geofenceZoneJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	z.Name = in.Name
	z.Polygon = in.Polygon
	switch v := in.CostMultiplier.(type) {
	case float64:
		z.CostMultiplier = v
	case string:
		if v != "inf" {
			return fmt.Errorf("invalid cost multiplier %q", v)
		}
		z.CostMultiplier = math.Inf(1)
	case nil:
		z.CostMultiplier = 1
	default:
		return fmt.Errorf("invalid cost multiplier %v", v)
	}
	return nil
}

// Registration is the static description an operator provides for an
// aircraft when it joins the fleet.
type Registration struct {
	DroneID     string  `json:"drone_id"`
	Model       string  `json:"model"`
	MaxPayload  float64 `json:"max_payload"`
	MaxRange    float64 `json:"max_range"`
	CruiseSpeed float64 `json:"cruise_speed"`
}

// FlightPlan pairs an aircraft with its approved trajectory.
type FlightPlan struct {
	PlanID            string      `json:"plan_id"`
	DroneID           string      `json:"drone_id"`
	Trajectory        *Trajectory `json:"trajectory"`
	Approved          bool        `json:"approved"`
	ApprovalTime      *float64    `json:"approval_time,omitempty"`
	ConflictsDetected []*Conflict `json:"conflicts_detected"`
}

// SystemStatus is a point-in-time summary of the whole system.
type SystemStatus struct {
	ActiveDrones      int     `json:"active_drones"`
	ActiveMissions    int     `json:"active_missions"`
	TotalFlightsToday int     `json:"total_flights_today"`
	ConflictsDetected int     `json:"conflicts_detected"`
	ConflictsResolved int     `json:"conflicts_resolved"`
	SystemHealth      string  `json:"system_health"`
	Timestamp         float64 `json:"timestamp"`
}
