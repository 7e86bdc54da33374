// Package orchestrator sequences mission planning, deconfliction, and
// commitment. It exclusively owns the committed-plans table, the aircraft
// table, and the conflict counters; every mutation runs under a single
// mutex so admissions are totally ordered.
package orchestrator

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/skyward/utm/internal/config"
	"github.com/skyward/utm/internal/conflict"
	"github.com/skyward/utm/internal/events"
	"github.com/skyward/utm/internal/geofence"
	"github.com/skyward/utm/internal/observability"
	"github.com/skyward/utm/internal/planner"
	"github.com/skyward/utm/internal/uas"
)

// Validation and planning errors surfaced to callers.
var (
	ErrOutsideArea       = errors.New("position outside operational area")
	ErrInNoFly           = errors.New("position inside no-fly zone")
	ErrPlanFailed        = errors.New("trajectory planning failed")
	ErrDuplicateAircraft = errors.New("aircraft already registered")
	ErrUnknownAircraft   = errors.New("unknown aircraft")
	ErrUnknownMission    = errors.New("unknown mission")
)

// pickupDwell is the time spent on the ground at the pickup point before the
// delivery leg departs.
const pickupDwell = 30.0

// Battery thresholds, percent.
const (
	batteryWarnLevel      = 20.0
	batteryEmergencyLevel = 10.0
)

// Orchestrator is the mission orchestrator.
type Orchestrator struct {
	mu       sync.Mutex
	cfg      *config.Config
	fence    *geofence.Engine
	planner  *planner.Planner
	detector *conflict.Detector
	resolver *conflict.Resolver
	bus      *events.Bus
	log      *logrus.Entry

	aircraft      map[string]*uas.Telemetry
	registrations map[string]uas.Registration
	regOrder      []string

	missions     map[string]*uas.Mission
	missionOrder []string
	queue        []string // mission IDs waiting for an idle aircraft, FIFO

	committed map[string]*uas.Trajectory // aircraft ID -> active trajectory

	conflictsDetected int
	conflictsResolved int
	flightsToday      int

	now func() float64
}

// New creates an orchestrator.
func New(cfg *config.Config, fence *geofence.Engine, pl *planner.Planner,
	det *conflict.Detector, res *conflict.Resolver, bus *events.Bus, log *logrus.Entry) *Orchestrator {
	return &Orchestrator{
		cfg:           cfg,
		fence:         fence,
		planner:       pl,
		detector:      det,
		resolver:      res,
		bus:           bus,
		log:           log,
		aircraft:      make(map[string]*uas.Telemetry),
		registrations: make(map[string]uas.Registration),
		missions:      make(map[string]*uas.Mission),
		committed:     make(map[string]*uas.Trajectory),
		now:           func() float64 { return float64(time.Now().UnixNano()) / 1e9 },
	}
}

// SubmitResult reports the outcome of a delivery request.
type SubmitResult struct {
	Mission           *uas.Mission `json:"mission"`
	Status            string       `json:"status"` // "assigned" or "queued"
	ConflictsDetected int          `json:"conflicts_detected"`
}

// RegisterAircraft adds an aircraft to the fleet at the given position.
func (o *Orchestrator) RegisterAircraft(reg uas.Registration, pos uas.Position) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if _, exists := o.aircraft[reg.DroneID]; exists {
		return fmt.Errorf("%s: %w", reg.DroneID, ErrDuplicateAircraft)
	}

	o.aircraft[reg.DroneID] = &uas.Telemetry{
		DroneID:      reg.DroneID,
		Position:     pos,
		BatteryLevel: 100,
		Status:       uas.StatusIdle,
		Timestamp:    o.now(),
	}
	o.registrations[reg.DroneID] = reg
	o.regOrder = append(o.regOrder, reg.DroneID)

	observability.Get().RegisteredDrones.Inc()
	o.publish(events.EventTypeDroneRegistered, reg)
	o.log.WithField("drone_id", reg.DroneID).Info("aircraft registered")

	o.drainQueueLocked()
	return nil
}

// UpdateTelemetry overwrites the aircraft's last-known state. The operation
// is idempotent; retries are safe.
func (o *Orchestrator) UpdateTelemetry(tel uas.Telemetry) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	prev, exists := o.aircraft[tel.DroneID]
	if !exists {
		return fmt.Errorf("%s: %w", tel.DroneID, ErrUnknownAircraft)
	}
	prevStatus := prev.Status

	stored := tel
	if tel.BatteryLevel < batteryEmergencyLevel {
		stored.Status = uas.StatusEmergency
	}
	o.aircraft[tel.DroneID] = &stored

	observability.Get().TelemetryUpdates.Inc()
	o.publish(events.EventTypeTelemetry, stored)

	switch {
	case stored.BatteryLevel < batteryEmergencyLevel:
		if prevStatus != uas.StatusEmergency {
			o.publish(events.EventTypeBatteryEmergency, stored)
			o.log.WithFields(logrus.Fields{
				"drone_id": tel.DroneID,
				"battery":  stored.BatteryLevel,
			}).Error("battery emergency")
		}
	case stored.BatteryLevel < batteryWarnLevel:
		o.publish(events.EventTypeBatteryWarning, stored)
	}

	switch stored.Status {
	case uas.StatusEnRoutePickup, uas.StatusAtPickup, uas.StatusEnRouteDelivery:
		o.progressMissionLocked(tel.DroneID, stored.Status)
	case uas.StatusAtDelivery:
		o.completeMissionLocked(tel.DroneID)
	case uas.StatusIdle:
		if prevStatus != uas.StatusIdle {
			delete(o.committed, tel.DroneID)
			o.drainQueueLocked()
		}
	}
	return nil
}

// progressMissionLocked mirrors an aircraft's reported flight phase onto its
// active mission.
func (o *Orchestrator) progressMissionLocked(droneID string, status uas.Status) {
	for _, id := range o.missionOrder {
		m := o.missions[id]
		if m.DroneID == droneID && m.CompletedAt == nil {
			m.Status = status
			return
		}
	}
}

// Submit validates a delivery request, assigns the first idle aircraft,
// plans both legs, deconflicts against every committed trajectory, and
// commits the result. When no aircraft is idle the mission is queued.
func (o *Orchestrator) Submit(req uas.DeliveryRequest) (*SubmitResult, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if err := o.validatePosition("pickup", req.Pickup); err != nil {
		observability.Get().MissionsSubmitted.WithLabelValues("rejected").Inc()
		return nil, err
	}
	if err := o.validatePosition("delivery", req.Delivery); err != nil {
		observability.Get().MissionsSubmitted.WithLabelValues("rejected").Inc()
		return nil, err
	}

	mission := &uas.Mission{
		MissionID:        uuid.NewString(),
		PickupLocation:   req.Pickup,
		DeliveryLocation: req.Delivery,
		CreatedAt:        o.now(),
		Status:           uas.StatusIdle,
	}
	o.missions[mission.MissionID] = mission
	o.missionOrder = append(o.missionOrder, mission.MissionID)
	o.publish(events.EventTypeMissionCreated, mission)

	droneID := o.firstIdleLocked()
	if droneID == "" {
		o.queue = append(o.queue, mission.MissionID)
		observability.Get().QueuedMissions.Set(float64(len(o.queue)))
		observability.Get().MissionsSubmitted.WithLabelValues("queued").Inc()
		o.log.WithField("mission_id", mission.MissionID).Info("no idle aircraft, mission queued")
		return &SubmitResult{Mission: mission, Status: "queued"}, nil
	}

	detected, err := o.planAndCommitLocked(mission, droneID)
	if err != nil {
		o.abortLocked(mission, err.Error())
		observability.Get().MissionsSubmitted.WithLabelValues("plan_failed").Inc()
		return nil, err
	}

	observability.Get().MissionsSubmitted.WithLabelValues("assigned").Inc()
	return &SubmitResult{Mission: mission, Status: "assigned", ConflictsDetected: detected}, nil
}

// Abort cancels a mission and releases its aircraft and committed plan.
func (o *Orchestrator) Abort(missionID, reason string) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	mission, ok := o.missions[missionID]
	if !ok {
		return fmt.Errorf("%s: %w", missionID, ErrUnknownMission)
	}
	o.abortLocked(mission, reason)
	return nil
}

func (o *Orchestrator) validatePosition(label string, pos uas.Position) error {
	if !o.fence.WithinOperationalArea(pos) {
		return fmt.Errorf("%s: %w", label, ErrOutsideArea)
	}
	if o.fence.InNoFlyZone(pos) {
		return fmt.Errorf("%s: %w", label, ErrInNoFly)
	}
	return nil
}

// firstIdleLocked picks the first idle aircraft in registration order.
func (o *Orchestrator) firstIdleLocked() string {
	for _, id := range o.regOrder {
		if tel := o.aircraft[id]; tel.Status == uas.StatusIdle {
			return id
		}
	}
	return ""
}

// planAndCommitLocked plans both mission legs, runs deconfliction against
// every committed trajectory, and commits the clean result. Returns the
// number of conflicts detected for this mission. On a replan_required
// escalation both legs are planned once more, with the aircraft's start
// altitude raised by the vertical separation plus 5 m, before the mission is
// rejected. The planner snaps that start onto the nearest lane for its
// heading and the delivery leg still departs from the pickup altitude, so
// the second attempt does not necessarily fly a higher lane.
func (o *Orchestrator) planAndCommitLocked(mission *uas.Mission, droneID string) (int, error) {
	aircraft := o.aircraft[droneID]
	detected := 0

	for attempt := 0; attempt < 2; attempt++ {
		start := aircraft.Position
		if attempt > 0 {
			// Raise the start altitude for the retry, clamped to the ceiling.
			start.Altitude = minFloat(start.Altitude+o.cfg.VerticalSeparation+5, o.cfg.MaxAltitude)
		}

		traj, pickupIndex, err := o.planRouteLocked(start, mission)
		if err != nil {
			return detected, err
		}

		clean := true
		for _, otherID := range o.committedIDsLocked() {
			if otherID == droneID {
				continue
			}
			reference := o.committed[otherID]

			c := o.detector.CheckPair(droneID, traj, otherID, reference)
			if c == nil {
				continue
			}
			detected++
			o.conflictsDetected++
			observability.Get().ConflictsDetected.Inc()
			o.publish(events.EventTypeConflictDetected, c)

			resolved, method := o.resolver.Resolve(c, traj, reference)
			if method == conflict.MethodReplanRequired {
				clean = false
				break
			}
			c.ResolutionAction = method
			traj = resolved
			o.conflictsResolved++
			observability.Get().ConflictsResolved.WithLabelValues(method).Inc()
			o.publish(events.EventTypeConflictResolved, c)
		}
		if !clean {
			continue
		}

		if err := traj.Validate(); err != nil {
			// Internal inconsistency, not bad input.
			panic(fmt.Sprintf("planned trajectory invalid: %v", err))
		}
		positions := make([]uas.Position, len(traj.Waypoints))
		for i, wp := range traj.Waypoints {
			positions[i] = wp.Position
		}
		if ok, reason := o.fence.ValidateWaypoints(positions); !ok {
			panic(fmt.Sprintf("planned trajectory violates geofence: %s", reason))
		}

		o.commitLocked(mission, droneID, traj, pickupIndex)
		return detected, nil
	}

	return detected, fmt.Errorf("resolution exhausted for mission %s: %w", mission.MissionID, ErrPlanFailed)
}

// planRouteLocked plans current->pickup and pickup->delivery with the
// pickup dwell between the legs, and concatenates them. The returned index
// is the first waypoint of the delivery leg, recorded on the mission so the
// aircraft can transition through at_pickup.
func (o *Orchestrator) planRouteLocked(start uas.Position, mission *uas.Mission) (*uas.Trajectory, int, error) {
	departAt := o.now()

	toPickup, err := o.planLeg(start, mission.PickupLocation, departAt)
	if err != nil {
		return nil, 0, fmt.Errorf("pickup leg: %w", err)
	}

	pickupETA := toPickup.EndTime()
	toDelivery, err := o.planLeg(mission.PickupLocation, mission.DeliveryLocation, pickupETA+pickupDwell)
	if err != nil {
		return nil, 0, fmt.Errorf("delivery leg: %w", err)
	}

	combined := &uas.Trajectory{
		Waypoints:             append(append([]uas.Waypoint{}, toPickup.Waypoints...), toDelivery.Waypoints...),
		TotalDistance:         toPickup.TotalDistance + toDelivery.TotalDistance,
		TotalTime:             toPickup.TotalTime + pickupDwell + toDelivery.TotalTime,
		EstimatedBatteryUsage: toPickup.EstimatedBatteryUsage + toDelivery.EstimatedBatteryUsage,
	}
	return combined, len(toPickup.Waypoints), nil
}

func (o *Orchestrator) planLeg(from, to uas.Position, departAt float64) (*uas.Trajectory, error) {
	started := time.Now()
	traj, err := o.planner.Plan(from, to, departAt)
	observability.Get().PlannerDuration.Observe(time.Since(started).Seconds())
	if err != nil {
		return nil, fmt.Errorf("%v: %w", err, ErrPlanFailed)
	}
	return traj, nil
}

func (o *Orchestrator) commitLocked(mission *uas.Mission, droneID string, traj *uas.Trajectory, pickupIndex int) {
	assignedAt := o.now()
	mission.DroneID = droneID
	mission.AssignedAt = &assignedAt
	mission.Status = uas.StatusAssigned
	mission.Trajectory = traj
	mission.PickupWaypointIndex = pickupIndex
	mission.PickupETA = traj.Waypoints[pickupIndex-1].ETA

	o.committed[droneID] = traj
	o.aircraft[droneID].Status = uas.StatusAssigned
	o.flightsToday++

	o.publish(events.EventTypeMissionAssigned, mission)
	o.log.WithFields(logrus.Fields{
		"mission_id": mission.MissionID,
		"drone_id":   droneID,
		"waypoints":  len(traj.Waypoints),
		"distance_m": traj.TotalDistance,
	}).Info("mission committed")
}

func (o *Orchestrator) abortLocked(mission *uas.Mission, reason string) {
	completedAt := o.now()
	mission.CompletedAt = &completedAt
	if mission.DroneID != "" {
		delete(o.committed, mission.DroneID)
		if tel, ok := o.aircraft[mission.DroneID]; ok && !tel.Status.Terminal() {
			tel.Status = uas.StatusIdle
		}
	}
	o.publish(events.EventTypeMissionAborted, map[string]any{
		"mission_id": mission.MissionID,
		"reason":     reason,
	})
	o.log.WithFields(logrus.Fields{
		"mission_id": mission.MissionID,
		"reason":     reason,
	}).Warn("mission aborted")
}

// completeMissionLocked finishes the active mission of an aircraft that
// reported arrival at its delivery point.
func (o *Orchestrator) completeMissionLocked(droneID string) {
	for _, id := range o.missionOrder {
		m := o.missions[id]
		if m.DroneID != droneID || m.CompletedAt != nil {
			continue
		}
		completedAt := o.now()
		m.CompletedAt = &completedAt
		m.Status = uas.StatusAtDelivery
		delete(o.committed, droneID)
		return
	}
}

// drainQueueLocked re-attempts queued missions while idle aircraft remain.
func (o *Orchestrator) drainQueueLocked() {
	for len(o.queue) > 0 {
		droneID := o.firstIdleLocked()
		if droneID == "" {
			break
		}

		missionID := o.queue[0]
		o.queue = o.queue[1:]

		mission, ok := o.missions[missionID]
		if !ok || mission.CompletedAt != nil || mission.DroneID != "" {
			continue
		}
		if _, err := o.planAndCommitLocked(mission, droneID); err != nil {
			o.abortLocked(mission, err.Error())
		}
	}
	observability.Get().QueuedMissions.Set(float64(len(o.queue)))
}

func (o *Orchestrator) committedIDsLocked() []string {
	ids := make([]string, 0, len(o.committed))
	for id := range o.committed {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (o *Orchestrator) publish(eventType events.EventType, payload any) {
	if o.bus == nil {
		return
	}
	if err := o.bus.Publish(events.New(eventType, "orchestrator", payload)); err != nil {
		o.log.WithError(err).Debug("event publish failed")
	}
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
