package sim

import (
	"fmt"
	"math"
	"strings"
	"time"

	"counterdrone-sim/internal/telemetry"
	"counterdrone-sim/internal/threat"
)

const (
	jammedThreshold     = 30.0
	compromiseThreshold = 80.0
	jamSignalFactor     = 0.5
	defaultJamDuration  = 30 * time.Second
	defaultFlagDuration = time.Minute
)

// Effect is a mock countermeasure. The set of variants is closed: JamSignal,
// ForceLand, MarkFlag and ClearEffect.
type Effect interface {
	effect()
}

// JamSignal depresses a drone's signal by half the magnitude (0-100). Above
// 30 the drone is marked jammed for Duration; above 80 its control link is
// compromised as well.
type JamSignal struct {
	Magnitude float64
	Duration  time.Duration
}

// ForceLand removes the drone, simulating a forced landing.
type ForceLand struct{}

// MarkFlag attaches a temporary status flag such as "takeover" or "capture".
type MarkFlag struct {
	Kind     string
	Duration time.Duration
}

// ClearEffect ends effects early. Kind "jam" stops jamming, any other
// non-empty Kind removes that flag, and an empty Kind clears everything.
type ClearEffect struct {
	Kind string
}

// EffectJam is the ClearEffect kind that stops jamming.
const EffectJam = "jam"

func (JamSignal) effect() {}
func (ClearEffect) effect() {}
func (ForceLand) effect() {}
func (MarkFlag) effect() {}

// EffectResult describes the drone after an effect was applied.
type EffectResult struct {
	Drone   telemetry.Drone  `json:"drone"`
	Removed bool             `json:"removed"`
	Alert   *telemetry.Alert `json:"alert,omitempty"`
}

// ApplyEffect applies eff to one drone.
func (e *Engine) ApplyEffect(droneID string, eff Effect) (EffectResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	t, ok := e.drones[droneID]
	if !ok {
		return EffectResult{}, &NotFoundError{Kind: "drone", ID: droneID}
	}
	now := e.now()

	switch v := eff.(type) {
	case JamSignal:
		if math.IsNaN(v.Magnitude) {
			return EffectResult{}, &ConfigError{Field: "magnitude", Reason: "must be a number"}
		}
		if v.Duration < 0 {
			return EffectResult{}, &ConfigError{Field: "duration", Reason: "must not be negative"}
		}
		return e.jamLocked(t, v, now), nil
	case ForceLand:
		d := t.drone.Clone()
		d.LastUpdated = now
		e.deleteLocked(droneID)
		return EffectResult{Drone: d, Removed: true}, nil
	case MarkFlag:
		kind := strings.TrimSpace(v.Kind)
		if kind == "" {
			return EffectResult{}, &ConfigError{Field: "kind", Reason: "must not be empty"}
		}
		if v.Duration < 0 {
			return EffectResult{}, &ConfigError{Field: "duration", Reason: "must not be negative"}
		}
		dur := v.Duration
		if dur == 0 {
			dur = defaultFlagDuration
		}
		if t.drone.Status.Flags == nil {
			t.drone.Status.Flags = make(map[string]time.Time)
		}
		t.drone.Status.Flags[kind] = now.Add(dur)
		t.drone.LastUpdated = now
		return EffectResult{Drone: t.drone.Clone()}, nil
	case ClearEffect:
		if err := clearEffect(&t.drone, strings.TrimSpace(v.Kind)); err != nil {
			return EffectResult{}, err
		}
		t.drone.LastUpdated = now
		return EffectResult{Drone: t.drone.Clone()}, nil
	default:
		return EffectResult{}, fmt.Errorf("%w: %T", ErrUnknownEffect, eff)
	}
}

func (e *Engine) jamLocked(t *tracked, v JamSignal, now time.Time) EffectResult {
	d := &t.drone
	mag := math.Max(0, math.Min(100, v.Magnitude))
	d.SignalStrength = math.Max(0, d.SignalStrength-mag*jamSignalFactor)
	if mag > jammedThreshold {
		dur := v.Duration
		if dur == 0 {
			dur = defaultJamDuration
		}
		d.Status.Jammed = true
		d.Status.JammedUntil = now.Add(dur)
		d.Status.JammingLevel = mag
		if mag > compromiseThreshold {
			d.Status.ControlCompromised = true
			d.ThreatLevel = threat.Max(d.ThreatLevel, threat.High)
		}
	}
	d.LastUpdated = now

	a := e.newAlertLocked(d, telemetry.AlertSignalInterference,
		fmt.Sprintf("Signal interference applied to %s drone at %.0f%% power", d.Type, mag), d.ThreatLevel, now)
	e.queueAlertsLocked(a)
	return EffectResult{Drone: d.Clone(), Alert: &a}
}

// clearEffect removes one effect, or all of them when kind is empty. Naming
// an effect the drone does not carry is a *NotFoundError.
func clearEffect(d *telemetry.Drone, kind string) error {
	switch kind {
	case "":
		stopJamming(d)
		d.Status.Flags = nil
		return nil
	case EffectJam:
		if !d.Status.Jammed {
			return &NotFoundError{Kind: "jamming on drone", ID: d.ID}
		}
		stopJamming(d)
		return nil
	}
	if _, ok := d.Status.Flags[kind]; !ok {
		return &NotFoundError{Kind: "flag", ID: kind}
	}
	delete(d.Status.Flags, kind)
	if len(d.Status.Flags) == 0 {
		d.Status.Flags = nil
	}
	return nil
}

func stopJamming(d *telemetry.Drone) {
	d.Status.Jammed = false
	d.Status.JammedUntil = time.Time{}
	d.Status.JammingLevel = 0
	d.Status.ControlCompromised = false
}
