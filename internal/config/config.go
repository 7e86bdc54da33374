// Package config loads the process-wide UTM configuration. The configuration
// is read once at startup and treated as immutable afterwards; the core does
// not support live reconfiguration.
package config

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"strings"

	"github.com/spf13/viper"

	"github.com/skyward/utm/internal/uas"
)

// Bounds is the rectangular operational area.
type Bounds struct {
	MinLat float64 `json:"min_lat"`
	MaxLat float64 `json:"max_lat"`
	MinLon float64 `json:"min_lon"`
	MaxLon float64 `json:"max_lon"`
}

// Config holds every recognised option. Immutable after Load.
type Config struct {
	// Planner lattice.
	GridResolution       float64              // horizontal cell size, metres
	AltitudeLayers       []float64            // discrete cruise altitudes
	DirectionAltitudeMap map[string][]float64 // cardinal direction -> layer subset
	MaxIterations        int                  // A* pop bound

	// Separation minima and sampling.
	HorizontalSeparation float64 // metres
	VerticalSeparation   float64 // metres
	TimeResolution       float64 // seconds
	LookaheadTime        float64 // seconds, bounds the sampling window

	// Aircraft performance envelope.
	MinSpeed         float64 // m/s
	CruiseSpeed      float64 // m/s
	MaxSpeed         float64 // m/s
	MinAltitude      float64 // metres
	MaxAltitude      float64 // metres
	BatteryCapacity  float64 // Wh
	PowerConsumption float64 // W

	OperationalArea Bounds
	NoFlyZones      []uas.GeofenceZone
	SensitiveAreas  []uas.GeofenceZone
}

// zonesFile is the on-disk layout accepted via UTM_ZONES_FILE.
type zonesFile struct {
	NoFlyZones     []uas.GeofenceZone `json:"no_fly_zones"`
	SensitiveAreas []uas.GeofenceZone `json:"sensitive_areas"`
	Operational    *Bounds            `json:"operational_area"`
}

// Load reads configuration from the environment (UTM_ prefix) with built-in
// defaults for everything.
func Load() (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("utm")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("grid_resolution", 100.0)
	v.SetDefault("max_iterations", 200000)
	v.SetDefault("horizontal_separation", 50.0)
	v.SetDefault("vertical_separation", 10.0)
	v.SetDefault("time_resolution", 5.0)
	v.SetDefault("lookahead_time", 300.0)
	v.SetDefault("drone_min_speed", 5.0)
	v.SetDefault("drone_cruise_speed", 10.0)
	v.SetDefault("drone_max_speed", 20.0)
	v.SetDefault("drone_min_altitude", 30.0)
	v.SetDefault("drone_max_altitude", 140.0)
	v.SetDefault("drone_battery_capacity", 100.0)
	v.SetDefault("drone_power_consumption", 150.0)
	v.SetDefault("area_min_lat", 37.60)
	v.SetDefault("area_max_lat", 37.80)
	v.SetDefault("area_min_lon", -122.45)
	v.SetDefault("area_max_lon", -122.35)

	cfg := &Config{
		GridResolution:       v.GetFloat64("grid_resolution"),
		AltitudeLayers:       []float64{30, 50, 70, 90, 110},
		DirectionAltitudeMap: defaultDirectionMap(),
		MaxIterations:        v.GetInt("max_iterations"),
		HorizontalSeparation: v.GetFloat64("horizontal_separation"),
		VerticalSeparation:   v.GetFloat64("vertical_separation"),
		TimeResolution:       v.GetFloat64("time_resolution"),
		LookaheadTime:        v.GetFloat64("lookahead_time"),
		MinSpeed:             v.GetFloat64("drone_min_speed"),
		CruiseSpeed:          v.GetFloat64("drone_cruise_speed"),
		MaxSpeed:             v.GetFloat64("drone_max_speed"),
		MinAltitude:          v.GetFloat64("drone_min_altitude"),
		MaxAltitude:          v.GetFloat64("drone_max_altitude"),
		BatteryCapacity:      v.GetFloat64("drone_battery_capacity"),
		PowerConsumption:     v.GetFloat64("drone_power_consumption"),
		OperationalArea: Bounds{
			MinLat: v.GetFloat64("area_min_lat"),
			MaxLat: v.GetFloat64("area_max_lat"),
			MinLon: v.GetFloat64("area_min_lon"),
			MaxLon: v.GetFloat64("area_max_lon"),
		},
		NoFlyZones:     DefaultNoFlyZones(),
		SensitiveAreas: DefaultSensitiveAreas(),
	}

	if path := v.GetString("zones_file"); path != "" {
		if err := cfg.loadZones(path); err != nil {
			return nil, fmt.Errorf("load zones file %s: %w", path, err)
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadZones(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var zf zonesFile
	if err := json.Unmarshal(data, &zf); err != nil {
		return err
	}
	if zf.NoFlyZones != nil {
		for i := range zf.NoFlyZones {
			zf.NoFlyZones[i].CostMultiplier = math.Inf(1)
		}
		c.NoFlyZones = zf.NoFlyZones
	}
	if zf.SensitiveAreas != nil {
		c.SensitiveAreas = zf.SensitiveAreas
	}
	if zf.Operational != nil {
		c.OperationalArea = *zf.Operational
	}
	return nil
}

func (c *Config) validate() error {
	if c.GridResolution <= 0 {
		return fmt.Errorf("grid resolution must be positive, got %f", c.GridResolution)
	}
	if c.TimeResolution <= 0 {
		return fmt.Errorf("time resolution must be positive, got %f", c.TimeResolution)
	}
	if c.MinSpeed <= 0 || c.CruiseSpeed < c.MinSpeed || c.MaxSpeed < c.CruiseSpeed {
		return fmt.Errorf("speed envelope invalid: min=%f cruise=%f max=%f", c.MinSpeed, c.CruiseSpeed, c.MaxSpeed)
	}
	if c.OperationalArea.MinLat >= c.OperationalArea.MaxLat || c.OperationalArea.MinLon >= c.OperationalArea.MaxLon {
		return fmt.Errorf("operational area is empty")
	}
	if len(c.AltitudeLayers) == 0 {
		return fmt.Errorf("at least one altitude layer required")
	}
	for _, zone := range c.SensitiveAreas {
		if zone.CostMultiplier < 1 {
			return fmt.Errorf("sensitive area %q multiplier %f below 1", zone.Name, zone.CostMultiplier)
		}
	}
	return nil
}

// defaultDirectionMap binds opposite headings to disjoint altitude strata so
// head-on traffic separates vertically by convention.
func defaultDirectionMap() map[string][]float64 {
	return map[string][]float64{
		"NORTH": {50, 90},
		"EAST":  {30, 70, 110},
		"SOUTH": {30, 70, 110},
		"WEST":  {50, 90},
	}
}

// DefaultNoFlyZones returns the built-in prohibited polygons for the default
// San Francisco operational area.
func DefaultNoFlyZones() []uas.GeofenceZone {
	inf := math.Inf(1)
	return []uas.GeofenceZone{
		{
			Name: "SFO Approach Corridor",
			Polygon: [][2]float64{
				{37.6150, -122.3780},
				{37.6250, -122.3780},
				{37.6250, -122.3650},
				{37.6150, -122.3650},
			},
			CostMultiplier: inf,
		},
		{
			Name: "General Hospital Helipad",
			Polygon: [][2]float64{
				{37.7600, -122.3900},
				{37.7670, -122.3900},
				{37.7670, -122.3820},
				{37.7600, -122.3820},
			},
			CostMultiplier: inf,
		},
	}
}

// DefaultSensitiveAreas returns the built-in elevated-cost polygons.
func DefaultSensitiveAreas() []uas.GeofenceZone {
	return []uas.GeofenceZone{
		{
			Name: "Mission District School",
			Polygon: [][2]float64{
				{37.7000, -122.4100},
				{37.7100, -122.4100},
				{37.7100, -122.4000},
				{37.7000, -122.4000},
			},
			CostMultiplier: 3.0,
		},
		{
			Name: "McLaren Park",
			Polygon: [][2]float64{
				{37.7400, -122.4400},
				{37.7500, -122.4400},
				{37.7500, -122.4300},
				{37.7400, -122.4300},
			},
			CostMultiplier: 1.5,
		},
	}
}
