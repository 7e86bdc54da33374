package planner

import (
	"io"
	"math"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/skyward/utm/internal/config"
	"github.com/skyward/utm/internal/geo"
	"github.com/skyward/utm/internal/geofence"
	"github.com/skyward/utm/internal/uas"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		GridResolution: 100,
		AltitudeLayers: []float64{30, 50, 70, 90, 110},
		DirectionAltitudeMap: map[string][]float64{
			"NORTH": {50, 90},
			"EAST":  {30, 70, 110},
			"SOUTH": {30, 70, 110},
			"WEST":  {50, 90},
		},
		MaxIterations:        200000,
		HorizontalSeparation: 50,
		VerticalSeparation:   10,
		TimeResolution:       5,
		LookaheadTime:        300,
		MinSpeed:             5,
		CruiseSpeed:          10,
		MaxSpeed:             20,
		MinAltitude:          30,
		MaxAltitude:          140,
		BatteryCapacity:      100,
		PowerConsumption:     150,
		OperationalArea:      config.Bounds{MinLat: 37.60, MaxLat: 37.80, MinLon: -122.45, MaxLon: -122.35},
		NoFlyZones:           config.DefaultNoFlyZones(),
		SensitiveAreas:       config.DefaultSensitiveAreas(),
	}
}

func testPlanner(t *testing.T, cfg *config.Config) (*Planner, *geofence.Engine) {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	fence := geofence.NewEngine(cfg)
	return New(cfg, fence, logrus.NewEntry(logger)), fence
}

func TestPlanEmptyAirspace(t *testing.T) {
	cfg := testConfig(t)
	p, fence := testPlanner(t, cfg)

	start := uas.Position{Latitude: 37.70, Longitude: -122.40, Altitude: 30}
	goal := uas.Position{Latitude: 37.75, Longitude: -122.40, Altitude: 30}

	traj, err := p.Plan(start, goal, 0)
	if err != nil {
		t.Fatalf("Plan() error: %v", err)
	}
	if len(traj.Waypoints) < 2 {
		t.Fatalf("trajectory has %d waypoints", len(traj.Waypoints))
	}

	if got := traj.Waypoints[0].ETA; got != 0 {
		t.Errorf("first ETA = %f, want 0", got)
	}

	last := traj.Waypoints[len(traj.Waypoints)-1]
	goalDist := geo.HorizontalDistance(last.Position.Latitude, last.Position.Longitude, goal.Latitude, goal.Longitude)
	if goalDist > 1.5*cfg.GridResolution {
		t.Errorf("final waypoint %f m from goal, want within %f", goalDist, 1.5*cfg.GridResolution)
	}

	straight := geo.HorizontalDistance(start.Latitude, start.Longitude, goal.Latitude, goal.Longitude)
	if traj.TotalTime < straight/cfg.MaxSpeed {
		t.Errorf("total time %f below physical floor %f", traj.TotalTime, straight/cfg.MaxSpeed)
	}

	assertTrajectoryInvariants(t, cfg, fence, traj)
}

func TestPlanAvoidsNoFlyZone(t *testing.T) {
	cfg := testConfig(t)
	p, fence := testPlanner(t, cfg)

	// Straight line crosses the airport corridor polygon.
	start := uas.Position{Latitude: 37.6300, Longitude: -122.3800, Altitude: 50}
	goal := uas.Position{Latitude: 37.6100, Longitude: -122.3600, Altitude: 50}

	traj, err := p.Plan(start, goal, 0)
	if err != nil {
		t.Fatalf("Plan() error: %v", err)
	}

	for i, wp := range traj.Waypoints {
		if fence.InNoFlyZone(wp.Position) {
			t.Errorf("waypoint %d inside no-fly zone at (%f, %f)", i, wp.Position.Latitude, wp.Position.Longitude)
		}
	}

	straight := geo.HorizontalDistance(start.Latitude, start.Longitude, goal.Latitude, goal.Longitude)
	if traj.TotalDistance < straight {
		t.Errorf("total distance %f below straight-line %f", traj.TotalDistance, straight)
	}

	assertTrajectoryInvariants(t, cfg, fence, traj)
}

func TestPlanDetoursAroundSensitiveArea(t *testing.T) {
	cfg := testConfig(t)
	p, fence := testPlanner(t, cfg)

	// Straight line crosses the school zone (multiplier 3.0).
	start := uas.Position{Latitude: 37.6950, Longitude: -122.4150, Altitude: 50}
	goal := uas.Position{Latitude: 37.7150, Longitude: -122.3950, Altitude: 50}

	traj, err := p.Plan(start, goal, 0)
	if err != nil {
		t.Fatalf("Plan() error: %v", err)
	}

	planned := weightedCost(fence, traj)
	baseline := straightWeightedCost(fence, start, goal, cfg.GridResolution)
	if planned >= baseline {
		t.Errorf("planned weighted cost %f not below straight-through %f", planned, baseline)
	}

	assertTrajectoryInvariants(t, cfg, fence, traj)
}

func TestPlanUnreachableGoal(t *testing.T) {
	cfg := testConfig(t)
	// Shrink the budget so the failure path is fast.
	cfg.MaxIterations = 2000
	p, _ := testPlanner(t, cfg)

	start := uas.Position{Latitude: 37.70, Longitude: -122.40, Altitude: 50}
	goal := uas.Position{Latitude: 37.62, Longitude: -122.37, Altitude: 50} // inside airport corridor

	if _, err := p.Plan(start, goal, 0); err == nil {
		t.Fatal("Plan() into a prohibited goal should fail")
	}
}

func TestPlanPreseedsAltitudeLane(t *testing.T) {
	cfg := testConfig(t)
	p, _ := testPlanner(t, cfg)

	// Heading north from 30 m: the north lane nearest 30 is 50.
	start := uas.Position{Latitude: 37.70, Longitude: -122.40, Altitude: 30}
	goal := uas.Position{Latitude: 37.75, Longitude: -122.40, Altitude: 30}

	traj, err := p.Plan(start, goal, 0)
	if err != nil {
		t.Fatalf("Plan() error: %v", err)
	}
	if got := traj.Waypoints[0].Position.Altitude; got != 50 {
		t.Errorf("start altitude = %f, want lane altitude 50", got)
	}
}

func TestPlanStartOnGoal(t *testing.T) {
	cfg := testConfig(t)
	p, _ := testPlanner(t, cfg)

	pos := uas.Position{Latitude: 37.70, Longitude: -122.42, Altitude: 50}

	traj, err := p.Plan(pos, pos, 100)
	if err != nil {
		t.Fatalf("Plan() error: %v", err)
	}
	if len(traj.Waypoints) < 2 {
		t.Fatalf("degenerate plan has %d waypoints", len(traj.Waypoints))
	}
	if err := traj.Validate(); err != nil {
		t.Errorf("degenerate plan invalid: %v", err)
	}
	if traj.Waypoints[0].ETA != 100 {
		t.Errorf("first ETA = %f, want 100", traj.Waypoints[0].ETA)
	}
}

func TestBatteryEstimate(t *testing.T) {
	// 600 s at 150 W against a 100 Wh pack is 25% of capacity.
	got := batteryUsage(600, 150, 100)
	if math.Abs(got-25) > 0.001 {
		t.Errorf("batteryUsage(600,150,100) = %f, want 25", got)
	}
}

// assertTrajectoryInvariants checks the waypoint invariants every planned
// trajectory must hold.
func assertTrajectoryInvariants(t *testing.T, cfg *config.Config, fence *geofence.Engine, traj *uas.Trajectory) {
	t.Helper()

	if err := traj.Validate(); err != nil {
		t.Fatalf("trajectory invalid: %v", err)
	}

	for i, wp := range traj.Waypoints {
		if !fence.WithinOperationalArea(wp.Position) {
			t.Errorf("waypoint %d outside operational area", i)
		}
		if fence.InNoFlyZone(wp.Position) {
			t.Errorf("waypoint %d in no-fly zone", i)
		}
		if wp.Speed < 0 || wp.Speed > cfg.MaxSpeed {
			t.Errorf("waypoint %d speed %f outside [0, %f]", i, wp.Speed, cfg.MaxSpeed)
		}
		if wp.Position.Altitude < 0 || wp.Position.Altitude > cfg.MaxAltitude {
			t.Errorf("waypoint %d altitude %f outside [0, %f]", i, wp.Position.Altitude, cfg.MaxAltitude)
		}
		if wp.Heading < 0 || wp.Heading >= 360 {
			t.Errorf("waypoint %d heading %f outside [0, 360)", i, wp.Heading)
		}
	}
}

// weightedCost sums segment distance times the geofence multiplier at each
// segment end, mirroring the planner's edge cost.
func weightedCost(fence *geofence.Engine, traj *uas.Trajectory) float64 {
	total := 0.0
	for i := 0; i < len(traj.Waypoints)-1; i++ {
		a, b := traj.Waypoints[i].Position, traj.Waypoints[i+1].Position
		dist := geo.Distance3D(a.Latitude, a.Longitude, a.Altitude, b.Latitude, b.Longitude, b.Altitude)
		total += dist * fence.CostMultiplier(b)
	}
	return total
}

// straightWeightedCost samples the straight line at grid-sized steps and
// accumulates the same weighted cost.
func straightWeightedCost(fence *geofence.Engine, start, goal uas.Position, step float64) float64 {
	dist := geo.Distance3D(start.Latitude, start.Longitude, start.Altitude,
		goal.Latitude, goal.Longitude, goal.Altitude)
	n := int(math.Ceil(dist / step))

	total := 0.0
	prev := start
	for i := 1; i <= n; i++ {
		f := float64(i) / float64(n)
		cur := uas.Position{
			Latitude:  start.Latitude + f*(goal.Latitude-start.Latitude),
			Longitude: start.Longitude + f*(goal.Longitude-start.Longitude),
			Altitude:  start.Altitude + f*(goal.Altitude-start.Altitude),
		}
		segment := geo.Distance3D(prev.Latitude, prev.Longitude, prev.Altitude,
			cur.Latitude, cur.Longitude, cur.Altitude)
		total += segment * fence.CostMultiplier(cur)
		prev = cur
	}
	return total
}
