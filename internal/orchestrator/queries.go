package orchestrator

import (
	"fmt"

	"github.com/skyward/utm/internal/uas"
)

// ListMissions returns all missions in submission order.
func (o *Orchestrator) ListMissions() []*uas.Mission {
	o.mu.Lock()
	defer o.mu.Unlock()

	out := make([]*uas.Mission, 0, len(o.missionOrder))
	for _, id := range o.missionOrder {
		m := *o.missions[id]
		out = append(out, &m)
	}
	return out
}

// GetMission returns a mission by ID.
func (o *Orchestrator) GetMission(missionID string) (*uas.Mission, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	mission, ok := o.missions[missionID]
	if !ok {
		return nil, fmt.Errorf("%s: %w", missionID, ErrUnknownMission)
	}
	m := *mission
	return &m, nil
}

// ListAircraft returns the last-known state of every aircraft in
// registration order.
func (o *Orchestrator) ListAircraft() []*uas.Telemetry {
	o.mu.Lock()
	defer o.mu.Unlock()

	out := make([]*uas.Telemetry, 0, len(o.regOrder))
	for _, id := range o.regOrder {
		tel := *o.aircraft[id]
		out = append(out, &tel)
	}
	return out
}

// GetAircraft returns the last-known state of one aircraft.
func (o *Orchestrator) GetAircraft(droneID string) (*uas.Telemetry, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	tel, ok := o.aircraft[droneID]
	if !ok {
		return nil, fmt.Errorf("%s: %w", droneID, ErrUnknownAircraft)
	}
	t := *tel
	return &t, nil
}

// CommittedPlans returns a snapshot of the committed-plans table.
func (o *Orchestrator) CommittedPlans() map[string]*uas.Trajectory {
	o.mu.Lock()
	defer o.mu.Unlock()

	out := make(map[string]*uas.Trajectory, len(o.committed))
	for id, traj := range o.committed {
		out[id] = traj.Clone()
	}
	return out
}

// Status summarises the system state.
func (o *Orchestrator) Status() uas.SystemStatus {
	o.mu.Lock()
	defer o.mu.Unlock()

	active := 0
	for _, m := range o.missions {
		if m.CompletedAt == nil && m.DroneID != "" {
			active++
		}
	}

	return uas.SystemStatus{
		ActiveDrones:      len(o.aircraft),
		ActiveMissions:    active,
		TotalFlightsToday: o.flightsToday,
		ConflictsDetected: o.conflictsDetected,
		ConflictsResolved: o.conflictsResolved,
		SystemHealth:      "operational",
		Timestamp:         o.now(),
	}
}

// QueuedMissionIDs returns the IDs of missions waiting for an aircraft.
func (o *Orchestrator) QueuedMissionIDs() []string {
	o.mu.Lock()
	defer o.mu.Unlock()

	out := make([]string, len(o.queue))
	copy(out, o.queue)
	return out
}
