// Package sim implements the virtual drone fleet: simple point-mass physics
// along assigned trajectories, battery drain, and telemetry reporting.
package sim

import (
	"math"

	"github.com/skyward/utm/internal/config"
	"github.com/skyward/utm/internal/geo"
	"github.com/skyward/utm/internal/uas"
)

// arrivalRadius is how close, in metres, a drone must get to a waypoint to
// consider it reached.
const arrivalRadius = 5.0

// VirtualDrone simulates a single drone.
type VirtualDrone struct {
	ID            string
	Position      uas.Position
	Velocity      [3]float64
	BatteryLevel  float64
	Status        uas.Status
	Trajectory    *uas.Trajectory
	waypointIndex int
	pickupIndex   int // first waypoint of the delivery leg, 0 when unknown

	cfg *config.Config
	now func() float64
}

// NewVirtualDrone creates an idle drone at the given position with a full
// battery.
func NewVirtualDrone(id string, pos uas.Position, cfg *config.Config, now func() float64) *VirtualDrone {
	return &VirtualDrone{
		ID:           id,
		Position:     pos,
		BatteryLevel: 100,
		Status:       uas.StatusIdle,
		cfg:          cfg,
		now:          now,
	}
}

// AssignTrajectory starts the drone on a new flight path. pickupIndex is
// the first waypoint of the delivery leg; pass 0 for a single-leg flight.
func (d *VirtualDrone) AssignTrajectory(traj *uas.Trajectory, pickupIndex int) {
	d.Trajectory = traj
	d.waypointIndex = 0
	d.pickupIndex = pickupIndex
	d.Status = uas.StatusEnRoutePickup
}

// UpdatePhysics advances the drone by dt seconds along its trajectory.
func (d *VirtualDrone) UpdatePhysics(dt float64) {
	switch d.Status {
	case uas.StatusAtDelivery:
		// Delivered on a previous tick; hand the airframe back to the pool.
		d.Status = uas.StatusIdle
		d.Trajectory = nil
		d.pickupIndex = 0
		return
	case uas.StatusAtPickup:
		// Loaded on a previous tick; depart on the delivery leg.
		d.Status = uas.StatusEnRouteDelivery
	case uas.StatusIdle:
		return
	}
	if d.Trajectory == nil {
		return
	}

	if d.waypointIndex >= len(d.Trajectory.Waypoints) {
		d.arrive()
		return
	}

	target := d.Trajectory.Waypoints[d.waypointIndex]
	targetPos := target.Position
	targetSpeed := target.Speed
	if targetSpeed <= 0 {
		targetSpeed = d.cfg.CruiseSpeed
	}

	distance := geo.Distance3D(
		d.Position.Latitude, d.Position.Longitude, d.Position.Altitude,
		targetPos.Latitude, targetPos.Longitude, targetPos.Altitude,
	)
	if distance < arrivalRadius {
		d.waypointIndex++
		if d.waypointIndex >= len(d.Trajectory.Waypoints) {
			d.arrive()
			return
		}
		if d.pickupIndex > 0 && d.waypointIndex == d.pickupIndex && d.Status == uas.StatusEnRoutePickup {
			d.Status = uas.StatusAtPickup
			d.Velocity = [3]float64{}
		}
		return
	}

	latDiff := targetPos.Latitude - d.Position.Latitude
	lonDiff := targetPos.Longitude - d.Position.Longitude
	altDiff := targetPos.Altitude - d.Position.Altitude

	totalDiff := math.Sqrt(latDiff*latDiff + lonDiff*lonDiff + altDiff*altDiff)
	var latDir, lonDir, altDir float64
	if totalDiff > 0 {
		latDir = latDiff / totalDiff
		lonDir = lonDiff / totalDiff
		altDir = altDiff / totalDiff
	}

	metersPerDegLat := geo.MetersPerDegreeLat
	metersPerDegLon := geo.MetersPerDegreeLat * math.Cos(d.Position.Latitude*math.Pi/180)

	d.Position.Latitude += (targetSpeed * latDir * dt) / metersPerDegLat
	d.Position.Longitude += (targetSpeed * lonDir * dt) / metersPerDegLon
	d.Position.Altitude += targetSpeed * altDir * dt

	d.Velocity = [3]float64{
		targetSpeed * latDir,
		targetSpeed * lonDir,
		targetSpeed * altDir,
	}

	// Battery drain, heavier while climbing.
	power := d.cfg.PowerConsumption
	if altDiff > 0 {
		power *= 1.5
	}
	consumed := (power * dt) / (d.cfg.BatteryCapacity * 36)
	d.BatteryLevel = math.Max(0, d.BatteryLevel-consumed)

	switch {
	case d.BatteryLevel < 10:
		d.Status = uas.StatusEmergency
	case d.Status == uas.StatusAssigned:
		d.Status = uas.StatusEnRoutePickup
	}
}

func (d *VirtualDrone) arrive() {
	d.Status = uas.StatusAtDelivery
	d.Velocity = [3]float64{}
}

// Telemetry returns the drone's current telemetry report.
func (d *VirtualDrone) Telemetry() uas.Telemetry {
	return uas.Telemetry{
		DroneID:      d.ID,
		Position:     d.Position,
		Velocity:     d.Velocity,
		BatteryLevel: d.BatteryLevel,
		Status:       d.Status,
		Timestamp:    d.now(),
	}
}
