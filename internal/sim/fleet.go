package sim

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/skyward/utm/internal/config"
	"github.com/skyward/utm/internal/events"
	"github.com/skyward/utm/internal/uas"
)

// UTM is the surface of the orchestrator the fleet talks to.
type UTM interface {
	RegisterAircraft(reg uas.Registration, pos uas.Position) error
	UpdateTelemetry(tel uas.Telemetry) error
}

// Fleet manages a set of virtual drones reporting into the UTM core.
// Assignments arrive from the event bus while the run loop steps physics,
// so all drone access goes through the fleet mutex.
type Fleet struct {
	mu         sync.Mutex
	cfg        *config.Config
	utm        UTM
	log        *logrus.Entry
	drones     []*VirtualDrone
	byID       map[string]*VirtualDrone
	updateRate float64 // Hz
	rng        *rand.Rand
	now        func() float64
}

// NewFleet creates size virtual drones scattered across the operational
// area at random altitude layers. Deterministic for a fixed seed.
func NewFleet(size int, cfg *config.Config, utm UTM, log *logrus.Entry, seed int64) *Fleet {
	f := &Fleet{
		cfg:        cfg,
		utm:        utm,
		log:        log,
		byID:       make(map[string]*VirtualDrone),
		updateRate: 1.0,
		rng:        rand.New(rand.NewSource(seed)),
		now:        func() float64 { return float64(time.Now().UnixNano()) / 1e9 },
	}

	bounds := cfg.OperationalArea
	for i := 0; i < size; i++ {
		id := fmt.Sprintf("drone_%03d", i+1)
		pos := uas.Position{
			Latitude:  bounds.MinLat + f.rng.Float64()*(bounds.MaxLat-bounds.MinLat),
			Longitude: bounds.MinLon + f.rng.Float64()*(bounds.MaxLon-bounds.MinLon),
			Altitude:  cfg.AltitudeLayers[f.rng.Intn(len(cfg.AltitudeLayers))],
		}
		d := NewVirtualDrone(id, pos, cfg, f.now)
		f.drones = append(f.drones, d)
		f.byID[id] = d
	}
	return f
}

// Register enrols every drone with the UTM core.
func (f *Fleet) Register() error {
	for _, d := range f.drones {
		reg := uas.Registration{
			DroneID:     d.ID,
			Model:       "SKYWARD_DX1",
			MaxPayload:  5.0,
			MaxRange:    15000.0,
			CruiseSpeed: f.cfg.CruiseSpeed,
		}
		if err := f.utm.RegisterAircraft(reg, d.Position); err != nil {
			return fmt.Errorf("register %s: %w", d.ID, err)
		}
		f.log.WithField("drone_id", d.ID).Info("virtual drone registered")
	}
	return nil
}

// WatchAssignments subscribes the fleet to mission assignments so drones
// start flying their committed trajectories.
func (f *Fleet) WatchAssignments(bus *events.Bus) {
	bus.Subscribe(events.EventTypeMissionAssigned, func(event events.Event) error {
		mission, ok := event.Payload.(*uas.Mission)
		if !ok || mission.Trajectory == nil {
			return nil
		}
		f.Assign(mission.DroneID, mission.Trajectory, mission.PickupWaypointIndex)
		return nil
	})
}

// Assign hands a trajectory to one drone. pickupIndex marks the first
// waypoint of the delivery leg.
func (f *Fleet) Assign(droneID string, traj *uas.Trajectory, pickupIndex int) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if d, ok := f.byID[droneID]; ok {
		d.AssignTrajectory(traj.Clone(), pickupIndex)
		f.log.WithFields(logrus.Fields{
			"drone_id":  droneID,
			"waypoints": len(traj.Waypoints),
		}).Info("trajectory assigned")
	}
}

// Step advances every drone by dt seconds and reports telemetry.
func (f *Fleet) Step(dt float64) {
	f.mu.Lock()
	reports := make([]uas.Telemetry, 0, len(f.drones))
	for _, d := range f.drones {
		d.UpdatePhysics(dt)
		reports = append(reports, d.Telemetry())
	}
	f.mu.Unlock()

	for _, tel := range reports {
		if err := f.utm.UpdateTelemetry(tel); err != nil {
			f.log.WithError(err).WithField("drone_id", tel.DroneID).Warn("telemetry rejected")
		}
	}
}

// Run steps the fleet at the configured update rate until ctx is cancelled.
func (f *Fleet) Run(ctx context.Context) {
	dt := 1.0 / f.updateRate
	ticker := time.NewTicker(time.Duration(dt * float64(time.Second)))
	defer ticker.Stop()

	f.log.WithField("drones", len(f.drones)).Info("fleet simulation started")
	for {
		select {
		case <-ticker.C:
			f.Step(dt)
		case <-ctx.Done():
			return
		}
	}
}
