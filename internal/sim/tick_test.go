package sim

import (
	"math"
	"math/rand"
	"testing"
	"time"

	"counterdrone-sim/internal/geo"
	"counterdrone-sim/internal/telemetry"
	"counterdrone-sim/internal/threat"
)

// place moves the first drone to p and pretends the previous tick saw it at
// the given zone membership.
func place(e *Engine, p geo.Point, inRegion, inRestricted bool) string {
	e.mu.Lock()
	defer e.mu.Unlock()
	t := e.drones[e.order[0]]
	t.drone.Location = p
	t.drone.BaselineThreat = threat.None
	t.drone.ThreatLevel = threat.None
	t.drone.SignalStrength = 50
	t.drone.Status = telemetry.Status{}
	t.inRegion = inRegion
	t.inRestricted = inRestricted
	return t.drone.ID
}

func alertsOfType(alerts []telemetry.Alert, kind telemetry.AlertType, droneID string) []telemetry.Alert {
	var out []telemetry.Alert
	for _, a := range alerts {
		if a.AlertType == kind && a.DroneID == droneID {
			out = append(out, a)
		}
	}
	return out
}

func TestTickInvariants(t *testing.T) {
	clock := &fakeClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	e := New(WithRand(rand.New(rand.NewSource(3))), WithClock(clock.now))
	s := DefaultSettings()
	s.SpawnProbability = 0.5
	s.JitterProbability = 0.2
	if err := e.Initialize(s); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	var last uint64
	for i := 0; i < 300; i++ {
		clock.advance(time.Second)
		snap, err := e.Tick()
		if err != nil {
			t.Fatalf("Tick: %v", err)
		}
		if snap.Tick <= last {
			t.Fatalf("tick not monotonic: %d after %d", snap.Tick, last)
		}
		last = snap.Tick
		if len(snap.Drones) > s.MaxDrones {
			t.Fatalf("population %d exceeds max", len(snap.Drones))
		}
		for _, d := range snap.Drones {
			if d.SignalStrength < 0 || d.SignalStrength > 100 || math.IsNaN(d.SignalStrength) {
				t.Fatalf("signal out of range: %v", d.SignalStrength)
			}
			if d.Confidence < 0 || d.Confidence > 1 {
				t.Fatalf("confidence out of range: %v", d.Confidence)
			}
			if !d.ThreatLevel.Valid() {
				t.Fatalf("invalid threat level %q", d.ThreatLevel)
			}
			if !d.ThreatLevel.AtLeast(d.BaselineThreat) {
				t.Fatalf("threat %s below baseline %s", d.ThreatLevel, d.BaselineThreat)
			}
			if !d.LastUpdated.Equal(clock.now()) {
				t.Fatalf("last_updated not refreshed")
			}
		}
	}
}

func TestTickWithoutSpawnKeepsPopulation(t *testing.T) {
	e, clock := newTestEngine(t, nil)
	ids := make(map[string]bool)
	for _, d := range e.Drones(DroneFilter{}) {
		ids[d.ID] = true
	}
	for i := 0; i < 50; i++ {
		clock.advance(time.Second)
		snap, err := e.Tick()
		if err != nil {
			t.Fatalf("Tick: %v", err)
		}
		if len(snap.Drones) != 5 {
			t.Fatalf("population changed to %d", len(snap.Drones))
		}
		for _, d := range snap.Drones {
			if !ids[d.ID] {
				t.Fatalf("unexpected drone %s", d.ID)
			}
		}
	}
}

func TestRestrictedZoneEntryAlertsOnce(t *testing.T) {
	e, clock := newTestEngine(t, func(s *Settings) { s.DroneCount = 1 })
	center := e.Settings().Region.Center
	center.Altitude = 100
	id := place(e, center, true, false)

	clock.advance(time.Second)
	snap, err := e.Tick()
	if err != nil {
		t.Fatalf("Tick: %v", err)
	}
	got := alertsOfType(e.Alerts(AlertFilter{}), telemetry.AlertRestrictedZone, id)
	if len(got) != 1 {
		t.Fatalf("expected one restricted_zone alert, got %d", len(got))
	}
	if !got[0].ThreatLevel.AtLeast(threat.Medium) {
		t.Fatalf("alert threat %s below medium", got[0].ThreatLevel)
	}
	if !snap.Drones[0].ThreatLevel.AtLeast(threat.Medium) {
		t.Fatalf("drone threat %s below medium", snap.Drones[0].ThreatLevel)
	}
	if got[0].Description != "Commercial drone detected in restricted zone" &&
		got[0].Description != "Diy drone detected in restricted zone" &&
		got[0].Description != "Military drone detected in restricted zone" &&
		got[0].Description != "Unknown drone detected in restricted zone" {
		t.Fatalf("unexpected description %q", got[0].Description)
	}

	clock.advance(time.Second)
	if _, err := e.Tick(); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if got := alertsOfType(e.Alerts(AlertFilter{}), telemetry.AlertRestrictedZone, id); len(got) != 1 {
		t.Fatalf("staying inside must not re-alert, got %d alerts", len(got))
	}
}

func TestBorderCrossingRaisesThreat(t *testing.T) {
	e, clock := newTestEngine(t, func(s *Settings) { s.DroneCount = 1 })
	r := e.Settings().Region
	p := r.Center
	p.Latitude += r.Height/2 + 0.001
	id := place(e, p, true, false)

	clock.advance(time.Second)
	snap, err := e.Tick()
	if err != nil {
		t.Fatalf("Tick: %v", err)
	}
	alerts := e.Alerts(AlertFilter{})
	if got := alertsOfType(alerts, telemetry.AlertBorderViolation, id); len(got) != 1 {
		t.Fatalf("expected one border_violation alert, got %d", len(got))
	}
	if got := alertsOfType(alerts, telemetry.AlertUnauthorizedFlight, id); len(got) != 1 {
		t.Fatalf("expected one unauthorized_flight alert, got %d", len(got))
	}
	if snap.Drones[0].ThreatLevel != threat.High {
		t.Fatalf("expected high threat outside region, got %s", snap.Drones[0].ThreatLevel)
	}
}

func TestBoundaryReturnTurnsTowardCenter(t *testing.T) {
	e, clock := newTestEngine(t, func(s *Settings) { s.DroneCount = 1 })
	r := e.Settings().Region
	p := r.Center
	p.Longitude += r.Width
	place(e, p, false, false)

	clock.advance(time.Second)
	snap, err := e.Tick()
	if err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if len(snap.Drones) != 1 {
		t.Fatalf("return policy must keep the drone")
	}
	d := snap.Drones[0]
	want := geo.Bearing(d.Location, r.Center)
	if math.Abs(d.Heading-want) > 1e-9 {
		t.Fatalf("heading %v, want %v", d.Heading, want)
	}
}

func TestBoundaryRemoveDropsDrone(t *testing.T) {
	e, clock := newTestEngine(t, func(s *Settings) {
		s.DroneCount = 2
		s.Boundary = BoundaryRemove
	})
	r := e.Settings().Region
	p := r.Center
	p.Latitude -= r.Height
	id := place(e, p, false, false)

	clock.advance(time.Second)
	snap, err := e.Tick()
	if err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if len(snap.Drones) != 1 {
		t.Fatalf("expected 1 drone left, got %d", len(snap.Drones))
	}
	if snap.Drones[0].ID == id {
		t.Fatalf("escaped drone was not removed")
	}
}

func TestTickCounterSurvivesReset(t *testing.T) {
	e, _ := newTestEngine(t, nil)
	e.Tick()
	e.Tick()
	if err := e.Reset(); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	snap, _ := e.Tick()
	if snap.Tick != 3 {
		t.Fatalf("expected tick 3, got %d", snap.Tick)
	}
}

func TestExpireEffects(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	d := telemetry.Drone{Status: telemetry.Status{
		Jammed:             true,
		JammedUntil:        now,
		JammingLevel:       90,
		ControlCompromised: true,
		Flags: map[string]time.Time{
			"takeover": now.Add(-time.Second),
			"capture":  now.Add(time.Minute),
		},
	}}
	expireEffects(&d, now)
	if d.Status.Jammed || d.Status.ControlCompromised || d.Status.JammingLevel != 0 {
		t.Fatalf("jamming not cleared: %+v", d.Status)
	}
	if _, ok := d.Status.Flags["takeover"]; ok {
		t.Fatalf("expired flag kept")
	}
	if _, ok := d.Status.Flags["capture"]; !ok {
		t.Fatalf("active flag dropped")
	}
}

func TestTitleCase(t *testing.T) {
	cases := map[string]string{"": "", "diy": "Diy", "military": "Military"}
	for in, want := range cases {
		if got := titleCase(in); got != want {
			t.Errorf("titleCase(%q) = %q, want %q", in, got, want)
		}
	}
}
