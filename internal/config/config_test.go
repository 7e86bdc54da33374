package config

import (
	"math"
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.GridResolution != 100 {
		t.Errorf("GridResolution = %f, want 100", cfg.GridResolution)
	}
	if len(cfg.AltitudeLayers) != 5 {
		t.Errorf("AltitudeLayers = %v", cfg.AltitudeLayers)
	}
	if cfg.MaxIterations != 200000 {
		t.Errorf("MaxIterations = %d", cfg.MaxIterations)
	}
	if cfg.OperationalArea.MinLat != 37.60 || cfg.OperationalArea.MaxLon != -122.35 {
		t.Errorf("OperationalArea = %+v", cfg.OperationalArea)
	}
	if len(cfg.NoFlyZones) != 2 || len(cfg.SensitiveAreas) != 2 {
		t.Errorf("zones = %d/%d, want 2/2", len(cfg.NoFlyZones), len(cfg.SensitiveAreas))
	}
	for _, zone := range cfg.NoFlyZones {
		if !math.IsInf(zone.CostMultiplier, 1) {
			t.Errorf("no-fly zone %q multiplier = %f, want +Inf", zone.Name, zone.CostMultiplier)
		}
	}
	for _, dir := range []string{"NORTH", "EAST", "SOUTH", "WEST"} {
		if len(cfg.DirectionAltitudeMap[dir]) == 0 {
			t.Errorf("direction %s has no altitude layers", dir)
		}
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("UTM_GRID_RESOLUTION", "50")
	t.Setenv("UTM_HORIZONTAL_SEPARATION", "100")
	t.Setenv("UTM_DRONE_CRUISE_SPEED", "12")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.GridResolution != 50 {
		t.Errorf("GridResolution = %f, want 50", cfg.GridResolution)
	}
	if cfg.HorizontalSeparation != 100 {
		t.Errorf("HorizontalSeparation = %f, want 100", cfg.HorizontalSeparation)
	}
	if cfg.CruiseSpeed != 12 {
		t.Errorf("CruiseSpeed = %f, want 12", cfg.CruiseSpeed)
	}
}

func TestLoadRejectsInvalidEnvelope(t *testing.T) {
	t.Setenv("UTM_DRONE_MAX_SPEED", "1") // below cruise

	if _, err := Load(); err == nil {
		t.Fatal("Load() accepted max speed below cruise speed")
	}
}

func TestLoadZonesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "zones.json")
	payload := `{
		"no_fly_zones": [
			{"name": "stadium", "polygon": [[37.70, -122.39], [37.705, -122.39], [37.705, -122.385], [37.70, -122.385]]}
		],
		"sensitive_areas": [
			{"name": "plaza", "polygon": [[37.72, -122.42], [37.73, -122.42], [37.73, -122.41]], "cost_multiplier": 2.5}
		],
		"operational_area": {"min_lat": 37.0, "max_lat": 38.0, "min_lon": -123.0, "max_lon": -122.0}
	}`
	if err := os.WriteFile(path, []byte(payload), 0644); err != nil {
		t.Fatalf("write zones file: %v", err)
	}
	t.Setenv("UTM_ZONES_FILE", path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if len(cfg.NoFlyZones) != 1 || cfg.NoFlyZones[0].Name != "stadium" {
		t.Errorf("NoFlyZones = %+v", cfg.NoFlyZones)
	}
	if !math.IsInf(cfg.NoFlyZones[0].CostMultiplier, 1) {
		t.Error("loaded no-fly zone multiplier not forced to +Inf")
	}
	if len(cfg.SensitiveAreas) != 1 || cfg.SensitiveAreas[0].CostMultiplier != 2.5 {
		t.Errorf("SensitiveAreas = %+v", cfg.SensitiveAreas)
	}
	if cfg.OperationalArea.MinLat != 37.0 {
		t.Errorf("OperationalArea = %+v", cfg.OperationalArea)
	}
}

func TestLoadZonesFileMissing(t *testing.T) {
	t.Setenv("UTM_ZONES_FILE", filepath.Join(t.TempDir(), "absent.json"))

	if _, err := Load(); err == nil {
		t.Fatal("Load() ignored a missing zones file")
	}
}
