package sink

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"counterdrone-sim/internal/broadcast"
	"counterdrone-sim/internal/geo"
	"counterdrone-sim/internal/sim"
	"counterdrone-sim/internal/telemetry"
	"counterdrone-sim/internal/threat"
)

func testSnapshot() broadcast.Message {
	ts := time.Unix(0, 0).UTC()
	return broadcast.SnapshotMessage(telemetry.Snapshot{
		Tick:      4,
		Timestamp: ts,
		Drones: []telemetry.Drone{{
			ID:             "drone-1-abc",
			Type:           telemetry.TypeMilitary,
			Location:       geo.Point{Latitude: 16.77, Longitude: 98.97, Altitude: 120},
			SignalStrength: 55,
			ThreatLevel:    threat.High,
			LastUpdated:    ts,
		}},
	})
}

func testAlert() broadcast.Message {
	return broadcast.AlertMessage(telemetry.Alert{
		ID:          "a1",
		DroneID:     "drone-1-abc",
		AlertType:   telemetry.AlertBorderViolation,
		ThreatLevel: threat.High,
		Description: "Border crossing by military drone",
		Timestamp:   time.Unix(1, 0).UTC(),
	})
}

func TestStdoutObserverJSONFallback(t *testing.T) {
	buf := &bytes.Buffer{}
	w := &StdoutObserver{out: buf}
	if err := w.Send(context.Background(), testSnapshot()); err != nil {
		t.Fatalf("send failed: %v", err)
	}
	out := strings.TrimSpace(buf.String())
	if !strings.HasPrefix(out, `{"type":"drones"`) {
		t.Fatalf("expected JSON output, got %q", out)
	}
}

func TestStdoutObserverColorized(t *testing.T) {
	s := sim.DefaultSettings()
	buf := &bytes.Buffer{}
	w := &StdoutObserver{settings: &s, colorize: true, out: buf}
	if err := w.Send(context.Background(), testSnapshot()); err != nil {
		t.Fatalf("send failed: %v", err)
	}
	output := buf.String()
	if !strings.Contains(output, "Simulation Configuration:") || !strings.Contains(output, "drone=drone-1-abc") {
		t.Fatalf("overview or drone line missing: %q", output)
	}
	if !strings.Contains(output, "\x1b[") {
		t.Fatalf("expected color codes in output: %q", output)
	}

	buf.Reset()
	if err := w.Send(context.Background(), testAlert()); err != nil {
		t.Fatalf("second send failed: %v", err)
	}
	if strings.Contains(buf.String(), "Simulation Configuration:") {
		t.Fatalf("overview printed more than once")
	}
	if !strings.Contains(buf.String(), "ALERT") {
		t.Fatalf("alert line missing: %q", buf.String())
	}
}
