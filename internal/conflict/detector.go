// Package conflict implements space-time conflict detection between
// trajectory pairs and the escalation ladder that resolves them.
package conflict

import (
	"math"
	"sort"

	"github.com/google/uuid"

	"github.com/skyward/utm/internal/config"
	"github.com/skyward/utm/internal/geo"
	"github.com/skyward/utm/internal/uas"
)

// Detector finds separation violations by sampling trajectory pairs over
// their shared time window.
type Detector struct {
	cfg *config.Config
}

// NewDetector creates a detector.
func NewDetector(cfg *config.Config) *Detector {
	return &Detector{cfg: cfg}
}

// CheckPair samples both trajectories at TIME_RESOLUTION ticks across their
// overlapping window and returns the earliest violation of the separation
// minima, or nil. The conflict position is the first drone's sample.
func (d *Detector) CheckPair(drone1ID string, traj1 *uas.Trajectory, drone2ID string, traj2 *uas.Trajectory) *uas.Conflict {
	tStart := math.Max(traj1.StartTime(), traj2.StartTime())
	tEnd := math.Min(traj1.EndTime(), traj2.EndTime())

	if tStart >= tEnd {
		return nil // no temporal overlap
	}
	if d.cfg.LookaheadTime > 0 && tEnd > tStart+d.cfg.LookaheadTime {
		tEnd = tStart + d.cfg.LookaheadTime
	}

	for t := tStart; t <= tEnd; t += d.cfg.TimeResolution {
		pos1 := Interpolate(traj1, t)
		pos2 := Interpolate(traj2, t)
		if pos1 == nil || pos2 == nil {
			continue
		}

		horizontal := geo.HorizontalDistance(pos1.Latitude, pos1.Longitude, pos2.Latitude, pos2.Longitude)
		vertical := math.Abs(pos1.Altitude - pos2.Altitude)

		if horizontal < d.cfg.HorizontalSeparation && vertical < d.cfg.VerticalSeparation {
			return &uas.Conflict{
				ConflictID:       uuid.NewString(),
				Drone1ID:         drone1ID,
				Drone2ID:         drone2ID,
				ConflictPosition: pos1.Position,
				ConflictTime:     t,
				Severity:         d.assessSeverity(horizontal),
			}
		}
	}

	return nil
}

// ScanAll checks every unordered pair of committed trajectories and returns
// the earliest violation per pair.
func (d *Detector) ScanAll(trajectories map[string]*uas.Trajectory) []*uas.Conflict {
	ids := make([]string, 0, len(trajectories))
	for id := range trajectories {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var conflicts []*uas.Conflict
	for i := 0; i < len(ids); i++ {
		for j := i + 1; j < len(ids); j++ {
			if c := d.CheckPair(ids[i], trajectories[ids[i]], ids[j], trajectories[ids[j]]); c != nil {
				conflicts = append(conflicts, c)
			}
		}
	}
	return conflicts
}

// Interpolate returns the position along a trajectory at the given time, or
// nil when the time falls outside it. Positions blend linearly between the
// bracketing waypoints.
func Interpolate(traj *uas.Trajectory, at float64) *uas.Position4D {
	waypoints := traj.Waypoints

	for i := 0; i < len(waypoints)-1; i++ {
		w1, w2 := waypoints[i], waypoints[i+1]
		if w1.ETA <= at && at <= w2.ETA {
			ratio := 0.0
			if w2.ETA != w1.ETA {
				ratio = (at - w1.ETA) / (w2.ETA - w1.ETA)
			}

			return &uas.Position4D{
				Position: uas.Position{
					Latitude:  w1.Position.Latitude + ratio*(w2.Position.Latitude-w1.Position.Latitude),
					Longitude: w1.Position.Longitude + ratio*(w2.Position.Longitude-w1.Position.Longitude),
					Altitude:  w1.Position.Altitude + ratio*(w2.Position.Altitude-w1.Position.Altitude),
				},
				Timestamp: at,
			}
		}
	}

	return nil
}

func (d *Detector) assessSeverity(horizontal float64) string {
	switch {
	case horizontal < d.cfg.HorizontalSeparation/2:
		return uas.SeverityCritical
	case horizontal < d.cfg.HorizontalSeparation*0.75:
		return uas.SeverityWarning
	default:
		return uas.SeverityMinor
	}
}
