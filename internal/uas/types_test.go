package uas

import (
	"encoding/json"
	"math"
	"testing"
)

func validTrajectory() *Trajectory {
	return &Trajectory{
		Waypoints: []Waypoint{
			{Position: Position{Latitude: 37.70, Longitude: -122.40, Altitude: 50}, ETA: 0, Speed: 10, Heading: 0},
			{Position: Position{Latitude: 37.71, Longitude: -122.40, Altitude: 50}, ETA: 100, Speed: 0, Heading: 0},
		},
		TotalDistance: 1112,
		TotalTime:     100,
	}
}

func TestTrajectoryValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Trajectory)
		wantErr bool
	}{
		{"valid", func(tr *Trajectory) {}, false},
		{"single waypoint", func(tr *Trajectory) { tr.Waypoints = tr.Waypoints[:1] }, true},
		{"empty", func(tr *Trajectory) { tr.Waypoints = nil }, true},
		{"non-monotonic ETA", func(tr *Trajectory) { tr.Waypoints[1].ETA = -1 }, true},
		{"NaN latitude", func(tr *Trajectory) { tr.Waypoints[0].Position.Latitude = math.NaN() }, true},
		{"NaN speed", func(tr *Trajectory) { tr.Waypoints[1].Speed = math.NaN() }, true},
		{"equal ETAs allowed", func(tr *Trajectory) { tr.Waypoints[1].ETA = 0 }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := validTrajectory()
			tt.mutate(tr)
			err := tr.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestTrajectoryClone(t *testing.T) {
	tr := validTrajectory()
	cp := tr.Clone()

	cp.Waypoints[0].Position.Altitude = 999
	if tr.Waypoints[0].Position.Altitude == 999 {
		t.Error("Clone shares waypoint storage with the original")
	}
}

func TestStatusTerminal(t *testing.T) {
	terminal := []Status{StatusEmergency, StatusMaintenance}
	for _, s := range terminal {
		if !s.Terminal() {
			t.Errorf("%s should be terminal", s)
		}
	}
	live := []Status{StatusIdle, StatusAssigned, StatusEnRoutePickup, StatusAtDelivery, StatusReturning}
	for _, s := range live {
		if s.Terminal() {
			t.Errorf("%s should not be terminal", s)
		}
	}
}

func TestGeofenceZoneJSONRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		zone GeofenceZone
	}{
		{
			"prohibited",
			GeofenceZone{Name: "airport", Polygon: [][2]float64{{37.61, -122.38}, {37.62, -122.38}, {37.62, -122.37}}, CostMultiplier: math.Inf(1)},
		},
		{
			"weighted",
			GeofenceZone{Name: "school", Polygon: [][2]float64{{37.70, -122.41}, {37.71, -122.41}, {37.71, -122.40}}, CostMultiplier: 3.0},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := json.Marshal(tt.zone)
			if err != nil {
				t.Fatalf("marshal: %v", err)
			}

			var got GeofenceZone
			if err := json.Unmarshal(data, &got); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if got.Name != tt.zone.Name || len(got.Polygon) != len(tt.zone.Polygon) {
				t.Errorf("round trip lost fields: %+v", got)
			}
			if got.CostMultiplier != tt.zone.CostMultiplier && !(math.IsInf(got.CostMultiplier, 1) && math.IsInf(tt.zone.CostMultiplier, 1)) {
				t.Errorf("multiplier = %f, want %f", got.CostMultiplier, tt.zone.CostMultiplier)
			}
		})
	}
}

func TestGeofenceZoneJSONDefaultsMultiplier(t *testing.T) {
	var zone GeofenceZone
	if err := json.Unmarshal([]byte(`{"name":"park","polygon":[[37.74,-122.44],[37.75,-122.44],[37.75,-122.43]]}`), &zone); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if zone.CostMultiplier != 1 {
		t.Errorf("missing multiplier defaults to %f, want 1", zone.CostMultiplier)
	}
}
