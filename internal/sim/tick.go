package sim

import (
	"fmt"
	"strings"
	"time"

	"counterdrone-sim/internal/geo"
	"counterdrone-sim/internal/telemetry"
	"counterdrone-sim/internal/threat"
)

// Tick advances every drone by one interval and returns the resulting snapshot.
// The new state is built on copies and committed at the end, so a failed
// tick leaves the previous state intact.
func (e *Engine) Tick() (telemetry.Snapshot, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.initialized {
		return telemetry.Snapshot{}, ErrNotInitialized
	}

	now := e.now()
	dt := e.settings.TickInterval.Seconds()
	region, zone := e.zonesLocked()

	next := make(map[string]*tracked, len(e.drones))
	order := make([]string, 0, len(e.order))
	var alerts []telemetry.Alert

	for _, id := range e.order {
		t := e.drones[id].clone()
		d := &t.drone

		expireEffects(d, now)
		e.gen.Move(d, dt)

		if region.Overshoot(d.Location) > e.settings.BoundaryMargin {
			if e.settings.Boundary == BoundaryRemove {
				continue
			}
			d.Heading = geo.Bearing(d.Location, region.Center)
		}

		inRegion := region.Contains(d.Location)
		inZone := zone.Contains(d.Location)
		prev := d.ThreatLevel
		d.ThreatLevel = e.classifier.Classify(threat.Factors{
			Baseline:           d.BaselineThreat,
			InRestricted:       inZone,
			OutsideRegion:      !inRegion,
			SignalStrength:     d.SignalStrength,
			ControlCompromised: d.Status.ControlCompromised,
		})

		if inZone && !t.inRestricted {
			alerts = append(alerts, e.newAlertLocked(d, telemetry.AlertRestrictedZone,
				fmt.Sprintf("%s drone detected in restricted zone", titleCase(string(d.Type))), d.ThreatLevel, now))
		}
		if !inRegion && t.inRegion {
			alerts = append(alerts, e.newAlertLocked(d, telemetry.AlertBorderViolation,
				fmt.Sprintf("Border crossing by %s drone", d.Type), d.ThreatLevel, now))
		}
		if d.ThreatLevel.AtLeast(threat.High) && !prev.AtLeast(threat.High) {
			alerts = append(alerts, e.newAlertLocked(d, telemetry.AlertUnauthorizedFlight,
				fmt.Sprintf("High-threat %s drone detected", d.Type), d.ThreatLevel, now))
		}

		decay := 0.0
		if d.Status.Jammed {
			decay = e.settings.JamDecay
		}
		e.gen.Fluctuate(d, decay)
		d.LastUpdated = now

		t.inRegion, t.inRestricted = inRegion, inZone
		next[id] = t
		order = append(order, id)
	}

	order, alerts = e.spawnLocked(next, order, alerts, now)

	e.drones = next
	e.order = order
	e.tick++
	e.queueAlertsLocked(alerts...)
	return e.snapshotLocked(now), nil
}

// spawnLocked simulates new detections and lost signals. The population
// drifts within a small band around the configured drone count.
func (e *Engine) spawnLocked(next map[string]*tracked, order []string, alerts []telemetry.Alert, now time.Time) ([]string, []telemetry.Alert) {
	p := e.settings.SpawnProbability
	if p <= 0 || e.rand.Float64() >= p {
		return order, alerts
	}
	target := e.settings.DroneCount
	if e.rand.Float64() < 0.7 {
		if len(order) >= target+3 || (e.settings.MaxDrones > 0 && len(order) >= e.settings.MaxDrones) {
			return order, alerts
		}
		t := e.newTrackedLocked(now)
		next[t.drone.ID] = t
		order = append(order, t.drone.ID)
		alerts = append(alerts, e.detectionAlertLocked(t, now))
		return order, alerts
	}
	if len(order) == 0 || len(order) <= target-2 {
		return order, alerts
	}
	i := e.rand.Intn(len(order))
	delete(next, order[i])
	return append(order[:i:i], order[i+1:]...), alerts
}

// expireEffects clears jamming and flags whose time has passed.
func expireEffects(d *telemetry.Drone, now time.Time) {
	if d.Status.Jammed && !d.Status.JammedUntil.IsZero() && !now.Before(d.Status.JammedUntil) {
		stopJamming(d)
	}
	for k, until := range d.Status.Flags {
		if !until.IsZero() && !now.Before(until) {
			delete(d.Status.Flags, k)
		}
	}
	if len(d.Status.Flags) == 0 {
		d.Status.Flags = nil
	}
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
