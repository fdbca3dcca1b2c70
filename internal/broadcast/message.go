package broadcast

import (
	"encoding/json"
	"fmt"
	"time"

	"counterdrone-sim/internal/geo"
	"counterdrone-sim/internal/telemetry"
)

// MessageType tags what a Message carries.
type MessageType string

const (
	TypeDrones MessageType = "drones"
	TypeAlert  MessageType = "alert"
)

// Message is one unit delivered to observers: either a full drone snapshot
// or a single alert.
type Message struct {
	Type      MessageType
	Tick      uint64
	Timestamp time.Time
	Region    geo.Region
	Drones    []telemetry.Drone
	Alert     *telemetry.Alert
}

// SnapshotMessage wraps a snapshot.
func SnapshotMessage(s telemetry.Snapshot) Message {
	drones := s.Drones
	if drones == nil {
		drones = []telemetry.Drone{}
	}
	return Message{Type: TypeDrones, Tick: s.Tick, Timestamp: s.Timestamp, Region: s.Region, Drones: drones}
}

// AlertMessage wraps one alert.
func AlertMessage(a telemetry.Alert) Message {
	return Message{Type: TypeAlert, Timestamp: a.Timestamp, Alert: &a}
}

type dronesWire struct {
	Type      MessageType       `json:"type"`
	Tick      uint64            `json:"tick"`
	Timestamp time.Time         `json:"timestamp"`
	Region    geo.Region        `json:"region"`
	Drones    []telemetry.Drone `json:"drones"`
}

type alertWire struct {
	Type  MessageType      `json:"type"`
	Alert *telemetry.Alert `json:"alert"`
}

// MarshalJSON renders the wire shape for the message type.
func (m Message) MarshalJSON() ([]byte, error) {
	switch m.Type {
	case TypeDrones:
		drones := m.Drones
		if drones == nil {
			drones = []telemetry.Drone{}
		}
		return json.Marshal(dronesWire{Type: m.Type, Tick: m.Tick, Timestamp: m.Timestamp, Region: m.Region, Drones: drones})
	case TypeAlert:
		if m.Alert == nil {
			return nil, fmt.Errorf("alert message without alert")
		}
		return json.Marshal(alertWire{Type: m.Type, Alert: m.Alert})
	default:
		return nil, fmt.Errorf("unknown message type %q", m.Type)
	}
}

// UnmarshalJSON parses either wire shape.
func (m *Message) UnmarshalJSON(data []byte) error {
	var head struct {
		Type MessageType `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return err
	}
	switch head.Type {
	case TypeDrones:
		var w dronesWire
		if err := json.Unmarshal(data, &w); err != nil {
			return err
		}
		*m = Message{Type: w.Type, Tick: w.Tick, Timestamp: w.Timestamp, Region: w.Region, Drones: w.Drones}
	case TypeAlert:
		var w alertWire
		if err := json.Unmarshal(data, &w); err != nil {
			return err
		}
		if w.Alert == nil {
			return fmt.Errorf("alert message without alert")
		}
		*m = Message{Type: w.Type, Timestamp: w.Alert.Timestamp, Alert: w.Alert}
	default:
		return fmt.Errorf("unknown message type %q", head.Type)
	}
	return nil
}
