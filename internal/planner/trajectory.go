package planner

import (
	"math"

	"github.com/skyward/utm/internal/geo"
	"github.com/skyward/utm/internal/uas"
)

// nodesToTrajectory converts a reconstructed node path into a trajectory.
// Each waypoint takes its ETA from the node time; speed is distance over
// time to the next node, clipped to the maximum; the final waypoint has
// speed and heading zero.
func (p *Planner) nodesToTrajectory(nodes []node) *uas.Trajectory {
	waypoints := make([]uas.Waypoint, 0, len(nodes))
	totalDistance := 0.0

	for i, n := range nodes {
		speed := 0.0
		heading := 0.0
		if i < len(nodes)-1 {
			next := nodes[i+1]
			dist := geo.Distance3D(n.lat, n.lon, n.alt, next.lat, next.lon, next.alt)
			if dt := next.time - n.time; dt > 0 {
				speed = dist / dt
			} else {
				speed = p.cfg.CruiseSpeed
			}
			heading = geo.Bearing(n.lat, n.lon, next.lat, next.lon)
			totalDistance += dist
		}

		waypoints = append(waypoints, uas.Waypoint{
			Position: uas.Position{Latitude: n.lat, Longitude: n.lon, Altitude: n.alt},
			ETA:      n.time,
			Speed:    math.Min(speed, p.cfg.MaxSpeed),
			Heading:  heading,
		})
	}

	totalTime := nodes[len(nodes)-1].time - nodes[0].time

	return &uas.Trajectory{
		Waypoints:             waypoints,
		TotalDistance:         totalDistance,
		TotalTime:             totalTime,
		EstimatedBatteryUsage: batteryUsage(totalTime, p.cfg.PowerConsumption, p.cfg.BatteryCapacity),
	}
}

// batteryUsage estimates the battery percentage a flight of the given
// duration consumes: seconds of draw converted to watt-hours against the
// pack capacity.
func batteryUsage(totalTime, powerW, capacityWh float64) float64 {
	return totalTime * powerW / capacityWh * 100 / 3600
}
