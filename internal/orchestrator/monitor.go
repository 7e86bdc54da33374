package orchestrator

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/skyward/utm/internal/conflict"
	"github.com/skyward/utm/internal/events"
	"github.com/skyward/utm/internal/observability"
	"github.com/skyward/utm/internal/uas"
)

// StartMonitor launches the periodic airspace monitor: every tick it
// re-scans all committed trajectories for conflicts, resolves them per
// pair, and drains the queued-mission list. Returns when ctx is cancelled.
func (o *Orchestrator) StartMonitor(ctx context.Context) {
	interval := time.Duration(o.cfg.TimeResolution * float64(time.Second))
	ticker := time.NewTicker(interval)

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				o.Tick()
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Tick runs one monitor pass. Exposed so tests and the simulator can drive
// the monitor without real time.
func (o *Orchestrator) Tick() {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.scanCommittedLocked()
	o.drainQueueLocked()
}

// scanCommittedLocked re-checks every committed pair and applies per-pair
// resolution. Resolution modifies the first drone's trajectory; an
// escalation to replan_required is only logged, the pair stays as is until
// one of the flights completes or is resubmitted.
func (o *Orchestrator) scanCommittedLocked() {
	for _, c := range o.detector.ScanAll(o.committed) {
		o.conflictsDetected++
		observability.Get().ConflictsDetected.Inc()
		o.publish(events.EventTypeConflictDetected, c)

		modify := o.committed[c.Drone1ID]
		reference := o.committed[c.Drone2ID]

		resolved, method := o.resolver.Resolve(c, modify, reference)
		if method == conflict.MethodReplanRequired {
			o.log.WithFields(logrus.Fields{
				"drone_1": c.Drone1ID,
				"drone_2": c.Drone2ID,
			}).Warn("conflict requires replan")
			continue
		}

		c.ResolutionAction = method
		o.committed[c.Drone1ID] = resolved
		o.retargetMissionLocked(c.Drone1ID, resolved)

		o.conflictsResolved++
		observability.Get().ConflictsResolved.WithLabelValues(method).Inc()
		o.publish(events.EventTypeConflictResolved, c)
	}
}

// retargetMissionLocked points the active mission of an aircraft at its
// replacement trajectory.
func (o *Orchestrator) retargetMissionLocked(droneID string, traj *uas.Trajectory) {
	for _, id := range o.missionOrder {
		m := o.missions[id]
		if m.DroneID == droneID && m.CompletedAt == nil {
			m.Trajectory = traj
			return
		}
	}
}
