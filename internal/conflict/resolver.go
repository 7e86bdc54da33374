package conflict

import (
	"math"

	"github.com/skyward/utm/internal/config"
	"github.com/skyward/utm/internal/geo"
	"github.com/skyward/utm/internal/uas"
)

// Resolution methods, in escalation order. Speed adjustment keeps the path
// and costs the least energy; an altitude shift decouples vertically;
// replanning is left to the caller.
const (
	MethodSpeedAdjustment = "speed_adjustment"
	MethodAltitudeChange  = "altitude_change"
	MethodReplanRequired  = "replan_required"
)

// Resolver modifies one trajectory of a conflicting pair until the pair is
// clean, escalating speed adjustment -> altitude shift -> replan.
type Resolver struct {
	cfg      *config.Config
	detector *Detector
}

// NewResolver creates a resolver sharing the given detector.
func NewResolver(cfg *config.Config, detector *Detector) *Resolver {
	return &Resolver{cfg: cfg, detector: detector}
}

// Resolve returns a replacement for modify that no longer conflicts with
// reference, together with the method that achieved it. Only a copy of
// modify is ever mutated; reference is read-only. A MethodReplanRequired
// result returns modify unchanged and leaves replanning to the caller.
func (r *Resolver) Resolve(conflict *uas.Conflict, modify, reference *uas.Trajectory) (*uas.Trajectory, string) {
	adjusted := r.adjustSpeed(modify, conflict)
	if r.detector.CheckPair(conflict.Drone1ID, adjusted, conflict.Drone2ID, reference) == nil {
		return adjusted, MethodSpeedAdjustment
	}

	shifted := r.adjustAltitude(modify)
	if r.detector.CheckPair(conflict.Drone1ID, shifted, conflict.Drone2ID, reference) == nil {
		return shifted, MethodAltitudeChange
	}

	return modify, MethodReplanRequired
}

// adjustSpeed slows every waypoint ahead of the conflict by 30% (clamped to
// the minimum speed) and recomputes ETAs forward; waypoints past the
// conflict resume cruise speed. The first ETA is preserved so departure does
// not move.
func (r *Resolver) adjustSpeed(traj *uas.Trajectory, conflict *uas.Conflict) *uas.Trajectory {
	out := traj.Clone()

	for i := range out.Waypoints {
		wp := &out.Waypoints[i]

		var speed float64
		if traj.Waypoints[i].ETA < conflict.ConflictTime {
			speed = math.Max(wp.Speed*0.7, r.cfg.MinSpeed)
		} else {
			speed = r.cfg.CruiseSpeed
		}
		wp.Speed = speed

		if i > 0 {
			prev := out.Waypoints[i-1]
			dist := geo.Distance3D(
				prev.Position.Latitude, prev.Position.Longitude, prev.Position.Altitude,
				wp.Position.Latitude, wp.Position.Longitude, wp.Position.Altitude,
			)
			wp.ETA = prev.ETA + dist/speed
		}
	}

	out.TotalTime = out.EndTime() - out.StartTime()
	out.EstimatedBatteryUsage = out.TotalTime * r.cfg.PowerConsumption / r.cfg.BatteryCapacity * 100 / 3600
	return out
}

// adjustAltitude raises the whole trajectory by the vertical separation plus
// a 5 m buffer, clamped to the ceiling. Horizontal positions and ETAs are
// untouched.
func (r *Resolver) adjustAltitude(traj *uas.Trajectory) *uas.Trajectory {
	out := traj.Clone()
	shift := r.cfg.VerticalSeparation + 5

	for i := range out.Waypoints {
		wp := &out.Waypoints[i]
		wp.Position.Altitude = math.Min(wp.Position.Altitude+shift, r.cfg.MaxAltitude)
	}
	return out
}
