package telemetry

import (
	"time"

	"counterdrone-sim/internal/threat"
)

// Stats summarizes the simulation state at one point in time.
type Stats struct {
	Tick                 uint64               `json:"tick"`
	TotalDrones          int                  `json:"total_drones"`
	ByType               map[DroneType]int    `json:"by_type"`
	ByThreat             map[threat.Level]int `json:"by_threat"`
	AverageSignal        float64              `json:"average_signal"`
	JammedDrones         int                  `json:"jammed_drones"`
	TotalAlerts          int                  `json:"total_alerts"`
	UnacknowledgedAlerts int                  `json:"unacknowledged_alerts"`
	HighestThreat        threat.Level         `json:"highest_threat"`
	Timestamp            time.Time            `json:"ts"`
}
