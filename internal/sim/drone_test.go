package sim

import (
	"io"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/skyward/utm/internal/config"
	"github.com/skyward/utm/internal/geo"
	"github.com/skyward/utm/internal/uas"
)

func testLogger() *logrus.Entry {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logrus.NewEntry(logger)
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		GridResolution:       100,
		AltitudeLayers:       []float64{30, 50, 70, 90, 110},
		MaxIterations:        200000,
		HorizontalSeparation: 50,
		VerticalSeparation:   10,
		TimeResolution:       5,
		MinSpeed:             5,
		CruiseSpeed:          10,
		MaxSpeed:             20,
		MinAltitude:          30,
		MaxAltitude:          140,
		BatteryCapacity:      100,
		PowerConsumption:     150,
		OperationalArea:      config.Bounds{MinLat: 37.60, MaxLat: 37.80, MinLon: -122.45, MaxLon: -122.35},
	}
}

func shortHop(t *testing.T) *uas.Trajectory {
	t.Helper()
	return &uas.Trajectory{
		Waypoints: []uas.Waypoint{
			{Position: uas.Position{Latitude: 37.7000, Longitude: -122.40, Altitude: 50}, ETA: 0, Speed: 10},
			{Position: uas.Position{Latitude: 37.7002, Longitude: -122.40, Altitude: 50}, ETA: 2.2, Speed: 10},
			{Position: uas.Position{Latitude: 37.7004, Longitude: -122.40, Altitude: 50}, ETA: 4.4, Speed: 0},
		},
		TotalDistance: 44.5,
		TotalTime:     4.4,
	}
}

func TestDroneIdleWithoutTrajectory(t *testing.T) {
	d := NewVirtualDrone("drone_001", uas.Position{Latitude: 37.70, Longitude: -122.40, Altitude: 50},
		testConfig(t), func() float64 { return 0 })

	before := d.Position
	d.UpdatePhysics(1.0)
	if d.Position != before {
		t.Error("idle drone moved")
	}
	if d.BatteryLevel != 100 {
		t.Error("idle drone consumed battery")
	}
}

func TestDroneFliesTowardWaypoint(t *testing.T) {
	cfg := testConfig(t)
	start := uas.Position{Latitude: 37.7000, Longitude: -122.40, Altitude: 50}
	d := NewVirtualDrone("drone_001", start, cfg, func() float64 { return 0 })

	d.AssignTrajectory(shortHop(t), 0)
	if d.Status != uas.StatusEnRoutePickup {
		t.Fatalf("status after assignment = %s", d.Status)
	}

	// First tick consumes the co-located start waypoint, second one moves.
	d.UpdatePhysics(1.0)
	d.UpdatePhysics(1.0)

	moved := geo.HorizontalDistance(start.Latitude, start.Longitude, d.Position.Latitude, d.Position.Longitude)
	if moved < 5 || moved > 15 {
		t.Errorf("drone moved %f m in 1 s at 10 m/s", moved)
	}
	if d.BatteryLevel >= 100 {
		t.Error("flight consumed no battery")
	}
	if d.Velocity == [3]float64{} {
		t.Error("velocity not set while flying")
	}
}

func TestDroneCompletesTrajectory(t *testing.T) {
	cfg := testConfig(t)
	d := NewVirtualDrone("drone_001", uas.Position{Latitude: 37.7000, Longitude: -122.40, Altitude: 50},
		cfg, func() float64 { return 0 })
	d.AssignTrajectory(shortHop(t), 0)

	for i := 0; i < 60 && d.Status != uas.StatusAtDelivery; i++ {
		d.UpdatePhysics(1.0)
	}
	if d.Status != uas.StatusAtDelivery {
		t.Fatalf("drone never arrived, status = %s", d.Status)
	}
	if d.Velocity != [3]float64{} {
		t.Error("arrived drone still has velocity")
	}

	// The tick after arrival hands the airframe back to the pool.
	d.UpdatePhysics(1.0)
	if d.Status != uas.StatusIdle {
		t.Errorf("status after delivery tick = %s, want idle", d.Status)
	}
	if d.Trajectory != nil {
		t.Error("trajectory not cleared after delivery")
	}
}

func TestDroneTransitionsThroughPickup(t *testing.T) {
	cfg := testConfig(t)
	d := NewVirtualDrone("drone_001", uas.Position{Latitude: 37.7000, Longitude: -122.40, Altitude: 50},
		cfg, func() float64 { return 0 })

	// Waypoints 0-2 are the pickup leg, 3-4 the delivery leg.
	traj := &uas.Trajectory{
		Waypoints: []uas.Waypoint{
			{Position: uas.Position{Latitude: 37.7000, Longitude: -122.40, Altitude: 50}, ETA: 0, Speed: 10},
			{Position: uas.Position{Latitude: 37.7002, Longitude: -122.40, Altitude: 50}, ETA: 2.2, Speed: 10},
			{Position: uas.Position{Latitude: 37.7004, Longitude: -122.40, Altitude: 50}, ETA: 4.4, Speed: 0},
			{Position: uas.Position{Latitude: 37.7006, Longitude: -122.40, Altitude: 50}, ETA: 36.6, Speed: 10},
			{Position: uas.Position{Latitude: 37.7008, Longitude: -122.40, Altitude: 50}, ETA: 38.8, Speed: 0},
		},
		TotalDistance: 89,
		TotalTime:     38.8,
	}
	d.AssignTrajectory(traj, 3)

	var seen []uas.Status
	last := d.Status
	seen = append(seen, last)
	for i := 0; i < 120 && d.Status != uas.StatusIdle; i++ {
		d.UpdatePhysics(1.0)
		if d.Status != last {
			last = d.Status
			seen = append(seen, last)
		}
	}

	want := []uas.Status{
		uas.StatusEnRoutePickup,
		uas.StatusAtPickup,
		uas.StatusEnRouteDelivery,
		uas.StatusAtDelivery,
		uas.StatusIdle,
	}
	if len(seen) != len(want) {
		t.Fatalf("status chain = %v, want %v", seen, want)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Fatalf("status chain = %v, want %v", seen, want)
		}
	}
}

func TestDroneBatteryEmergency(t *testing.T) {
	cfg := testConfig(t)
	d := NewVirtualDrone("drone_001", uas.Position{Latitude: 37.7000, Longitude: -122.40, Altitude: 50},
		cfg, func() float64 { return 0 })
	d.BatteryLevel = 10.01
	d.AssignTrajectory(shortHop(t), 0)

	d.UpdatePhysics(1.0)
	d.UpdatePhysics(1.0)
	if d.Status != uas.StatusEmergency {
		t.Errorf("status = %s, want emergency below 10%%", d.Status)
	}
}

func TestTelemetryReflectsState(t *testing.T) {
	cfg := testConfig(t)
	d := NewVirtualDrone("drone_001", uas.Position{Latitude: 37.7000, Longitude: -122.40, Altitude: 50},
		cfg, func() float64 { return 1234 })

	tel := d.Telemetry()
	if tel.DroneID != "drone_001" || tel.Status != uas.StatusIdle || tel.Timestamp != 1234 {
		t.Errorf("telemetry = %+v", tel)
	}
	if tel.BatteryLevel != 100 {
		t.Errorf("battery = %f", tel.BatteryLevel)
	}
}

func TestFleetRegistersAndSteps(t *testing.T) {
	cfg := testConfig(t)

	recorder := &recordingUTM{}
	logger := testLogger()
	fleet := NewFleet(3, cfg, recorder, logger, 7)

	if err := fleet.Register(); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if len(recorder.registered) != 3 {
		t.Fatalf("registered %d drones, want 3", len(recorder.registered))
	}

	// All spawn positions are inside the operational area.
	for _, pos := range recorder.registered {
		if pos.Latitude < cfg.OperationalArea.MinLat || pos.Latitude > cfg.OperationalArea.MaxLat ||
			pos.Longitude < cfg.OperationalArea.MinLon || pos.Longitude > cfg.OperationalArea.MaxLon {
			t.Errorf("spawn outside operational area: %+v", pos)
		}
	}

	fleet.Step(1.0)
	if len(recorder.telemetry) != 3 {
		t.Errorf("step reported %d telemetry updates, want 3", len(recorder.telemetry))
	}
}

func TestFleetDeterministicForSeed(t *testing.T) {
	cfg := testConfig(t)

	a := &recordingUTM{}
	b := &recordingUTM{}
	NewFleet(2, cfg, a, testLogger(), 99).Register()
	NewFleet(2, cfg, b, testLogger(), 99).Register()

	for i := range a.registered {
		if a.registered[i] != b.registered[i] {
			t.Errorf("seeded fleets differ at drone %d: %+v vs %+v", i, a.registered[i], b.registered[i])
		}
	}
}

type recordingUTM struct {
	registered []uas.Position
	telemetry  []uas.Telemetry
}

func (r *recordingUTM) RegisterAircraft(reg uas.Registration, pos uas.Position) error {
	r.registered = append(r.registered, pos)
	return nil
}

func (r *recordingUTM) UpdateTelemetry(tel uas.Telemetry) error {
	r.telemetry = append(r.telemetry, tel)
	return nil
}
