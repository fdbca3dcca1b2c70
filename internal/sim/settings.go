package sim

import (
	"fmt"
	"math"
	"time"

	"counterdrone-sim/internal/geo"
)

// BoundaryPolicy decides what happens to a drone that drifts beyond the region margin.
type BoundaryPolicy string

const (
	// BoundaryReturn turns the drone back toward the region center.
	BoundaryReturn BoundaryPolicy = "return"
	// BoundaryRemove drops the drone from the simulation.
	BoundaryRemove BoundaryPolicy = "remove"
)

// Settings configure one engine instance.
type Settings struct {
	Region             geo.Region
	RestrictedFraction float64
	DroneCount         int
	MaxDrones          int
	TickInterval       time.Duration
	// SpawnProbability is the chance per tick of a random detection or signal loss.
	SpawnProbability  float64
	JitterProbability float64
	EdgeBias          float64
	Boundary          BoundaryPolicy
	// BoundaryMargin is how far outside the region, as a fraction of the
	// larger half extent, a drone may drift before Boundary applies.
	BoundaryMargin float64
	MaxAlerts      int
	// JamDecay is the extra signal loss per tick while a drone is jammed.
	JamDecay float64
}

// DefaultSettings mirrors the stock demonstrator: five drones around Mae Sot
// updated once per second.
func DefaultSettings() Settings {
	return Settings{
		Region: geo.Region{
			Center: geo.Point{Latitude: 16.7769, Longitude: 98.9761},
			Width:  0.1,
			Height: 0.1,
		},
		RestrictedFraction: geo.DefaultRestrictedFraction,
		DroneCount:         5,
		MaxDrones:          100,
		TickInterval:       time.Second,
		SpawnProbability:   0.05,
		JitterProbability:  0.02,
		EdgeBias:           0.3,
		Boundary:           BoundaryReturn,
		BoundaryMargin:     0.2,
		MaxAlerts:          1000,
		JamDecay:           2,
	}
}

// Validate returns a *ConfigError describing the first invalid field.
func (s Settings) Validate() error {
	if err := s.Region.Validate(); err != nil {
		return &ConfigError{Field: "region", Reason: err.Error()}
	}
	if s.RestrictedFraction <= 0 || s.RestrictedFraction >= 1 {
		return &ConfigError{Field: "restricted_fraction", Reason: fmt.Sprintf("must be in (0,1), got %v", s.RestrictedFraction)}
	}
	if s.DroneCount < 0 {
		return &ConfigError{Field: "drone_count", Reason: fmt.Sprintf("must not be negative, got %d", s.DroneCount)}
	}
	if s.MaxDrones < 0 {
		return &ConfigError{Field: "max_drones", Reason: fmt.Sprintf("must not be negative, got %d", s.MaxDrones)}
	}
	if s.MaxDrones > 0 && s.DroneCount > s.MaxDrones {
		return &ConfigError{Field: "drone_count", Reason: fmt.Sprintf("%d exceeds max_drones %d", s.DroneCount, s.MaxDrones)}
	}
	if s.TickInterval <= 0 {
		return &ConfigError{Field: "tick_interval", Reason: fmt.Sprintf("must be positive, got %s", s.TickInterval)}
	}
	for name, p := range map[string]float64{
		"spawn_probability":  s.SpawnProbability,
		"jitter_probability": s.JitterProbability,
	} {
		if math.IsNaN(p) || p < 0 || p > 1 {
			return &ConfigError{Field: name, Reason: fmt.Sprintf("must be in [0,1], got %v", p)}
		}
	}
	if math.IsNaN(s.EdgeBias) || s.EdgeBias < 0 || s.EdgeBias >= 1 {
		return &ConfigError{Field: "edge_bias", Reason: fmt.Sprintf("must be in [0,1), got %v", s.EdgeBias)}
	}
	switch s.Boundary {
	case BoundaryReturn, BoundaryRemove:
	default:
		return &ConfigError{Field: "boundary_policy", Reason: fmt.Sprintf("unknown policy %q", s.Boundary)}
	}
	if math.IsNaN(s.BoundaryMargin) || s.BoundaryMargin < 0 {
		return &ConfigError{Field: "boundary_margin", Reason: fmt.Sprintf("must not be negative, got %v", s.BoundaryMargin)}
	}
	if s.MaxAlerts <= 0 {
		return &ConfigError{Field: "max_alerts", Reason: fmt.Sprintf("must be positive, got %d", s.MaxAlerts)}
	}
	if math.IsNaN(s.JamDecay) || s.JamDecay < 0 {
		return &ConfigError{Field: "jam_decay", Reason: fmt.Sprintf("must not be negative, got %v", s.JamDecay)}
	}
	return nil
}

// Reconfig lists the settings a running engine accepts. Nil fields are kept.
type Reconfig struct {
	Region           *geo.Region    `json:"region,omitempty"`
	DroneCount       *int           `json:"drone_count,omitempty"`
	TickInterval     *time.Duration `json:"-"`
	SpawnProbability *float64       `json:"spawn_probability,omitempty"`
}

func (r Reconfig) apply(s Settings) Settings {
	if r.Region != nil {
		s.Region = *r.Region
	}
	if r.DroneCount != nil {
		s.DroneCount = *r.DroneCount
	}
	if r.TickInterval != nil {
		s.TickInterval = *r.TickInterval
	}
	if r.SpawnProbability != nil {
		s.SpawnProbability = *r.SpawnProbability
	}
	return s
}
