// Shared data model for simulated drone tracks and alerts
package telemetry

import (
	"time"

	"counterdrone-sim/internal/geo"
	"counterdrone-sim/internal/threat"
)

// DroneType is the classification assigned to a drone when it is first detected.
type DroneType string

const (
	TypeCommercial DroneType = "commercial"
	TypeMilitary   DroneType = "military"
	TypeDIY        DroneType = "diy"
	TypeUnknown    DroneType = "unknown"
)

// DroneTypes lists every known drone type.
var DroneTypes = []DroneType{TypeCommercial, TypeMilitary, TypeDIY, TypeUnknown}

// Valid reports whether t is a known drone type.
func (t DroneType) Valid() bool {
	for _, v := range DroneTypes {
		if v == t {
			return true
		}
	}
	return false
}

// AlertType identifies the event that produced an alert.
type AlertType string

const (
	AlertBorderViolation    AlertType = "border_violation"
	AlertRestrictedZone     AlertType = "restricted_zone"
	AlertUnauthorizedFlight AlertType = "unauthorized_flight"
	AlertNewDetection       AlertType = "new_detection"
	AlertSignalInterference AlertType = "signal_interference"
)

// Metadata holds descriptive attributes that do not affect the simulation.
type Metadata struct {
	Battery   float64 `json:"battery"`
	Model     string  `json:"model"`
	Frequency string  `json:"frequency"`
}

// Status carries temporary effects applied by mock countermeasures.
type Status struct {
	Jammed             bool                 `json:"jammed"`
	JammedUntil        time.Time            `json:"jammed_until,omitzero"`
	JammingLevel       float64              `json:"jamming_level,omitempty"`
	ControlCompromised bool                 `json:"control_compromised"`
	Flags              map[string]time.Time `json:"flags,omitempty"`
}

// Drone is one simulated track.
type Drone struct {
	ID             string       `json:"id"`
	Type           DroneType    `json:"type"`
	Location       geo.Point    `json:"location"`
	Speed          float64      `json:"speed"`
	Heading        float64      `json:"heading"`
	SignalStrength float64      `json:"signal_strength"`
	ThreatLevel    threat.Level `json:"threat_level"`
	BaselineThreat threat.Level `json:"baseline_threat"`
	Confidence     float64      `json:"confidence"`
	EstimatedSize  float64      `json:"estimated_size"`
	Metadata       Metadata     `json:"metadata"`
	Status         Status       `json:"status"`
	DetectedAt     time.Time    `json:"detected_at"`
	LastUpdated    time.Time    `json:"last_updated"`
}

// Clone returns a deep copy of d.
func (d Drone) Clone() Drone {
	if d.Status.Flags != nil {
		flags := make(map[string]time.Time, len(d.Status.Flags))
		for k, v := range d.Status.Flags {
			flags[k] = v
		}
		d.Status.Flags = flags
	}
	return d
}

// Alert is an event record produced by the simulation. Only IsAcknowledged
// changes after creation.
type Alert struct {
	ID             string       `json:"id"`
	DroneID        string       `json:"drone_id"`
	AlertType      AlertType    `json:"alert_type"`
	Location       geo.Point    `json:"location"`
	ThreatLevel    threat.Level `json:"threat_level"`
	Description    string       `json:"description"`
	Timestamp      time.Time    `json:"timestamp"`
	IsAcknowledged bool         `json:"is_acknowledged"`
}

// Snapshot is the full drone set after one tick.
type Snapshot struct {
	Tick      uint64     `json:"tick"`
	Timestamp time.Time  `json:"timestamp"`
	Region    geo.Region `json:"region"`
	Drones    []Drone    `json:"drones"`
}
