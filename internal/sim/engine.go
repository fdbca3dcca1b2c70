// Engine owning the simulated drone set, geofence geometry and alert list
package sim

import (
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"counterdrone-sim/internal/geo"
	"counterdrone-sim/internal/telemetry"
	"counterdrone-sim/internal/threat"
)

// tracked is a live drone plus the zone membership observed on the last tick.
type tracked struct {
	drone        telemetry.Drone
	inRegion     bool
	inRestricted bool
}

func (t *tracked) clone() *tracked {
	c := *t
	c.drone = t.drone.Clone()
	return &c
}

// Engine is the authoritative simulation state. All methods are safe for
// concurrent use; ticks and mutations are serialized by one mutex.
type Engine struct {
	mu          sync.Mutex
	settings    Settings
	initialized bool
	drones      map[string]*tracked
	order       []string
	alerts      []telemetry.Alert
	pending     []telemetry.Alert
	tick        uint64
	gen         *telemetry.Generator
	classifier  *threat.Classifier
	rand        *rand.Rand
	now         func() time.Time
	notify      func()
}

// Option customizes an Engine.
type Option func(*Engine)

// WithRand injects the random source used for every draw.
func WithRand(r *rand.Rand) Option {
	return func(e *Engine) { e.rand = r }
}

// WithClock injects the time source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// New creates an engine. Call Initialize before ticking.
func New(opts ...Option) *Engine {
	e := &Engine{
		drones: make(map[string]*tracked),
		rand:   rand.New(rand.NewSource(time.Now().UnixNano())),
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, o := range opts {
		o(e)
	}
	e.gen = telemetry.NewGenerator(e.rand)
	e.classifier = threat.NewClassifier(e.rand, 0)
	return e
}

// SetAlertNotifier registers fn to be called whenever new alerts are queued.
// fn runs with the engine lock held and must not block or call back into the engine.
func (e *Engine) SetAlertNotifier(fn func()) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.notify = fn
}

// Initialize validates s and replaces the whole state with s.DroneCount new
// drones and an empty alert list. On error nothing changes.
func (e *Engine) Initialize(s Settings) error {
	if err := s.Validate(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.populateLocked(s)
	e.alerts = nil
	e.pending = nil
	return nil
}

// Reset clears drones and alerts and reinitializes from the current settings.
func (e *Engine) Reset() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.initialized {
		return ErrNotInitialized
	}
	e.populateLocked(e.settings)
	e.alerts = nil
	e.pending = nil
	return nil
}

func (e *Engine) populateLocked(s Settings) {
	e.settings = s
	e.classifier.JitterProbability = s.JitterProbability
	e.drones = make(map[string]*tracked, s.DroneCount)
	e.order = make([]string, 0, s.DroneCount)
	now := e.now()
	for i := 0; i < s.DroneCount; i++ {
		e.insertLocked(e.newTrackedLocked(now))
	}
	e.initialized = true
}

// newTrackedLocked creates a drone already classified for where it appears.
// A drone that appears inside the restricted zone counts as inside from the
// start; its detection alert names the zone instead of a separate
// restricted_zone alert.
func (e *Engine) newTrackedLocked(now time.Time) *tracked {
	region, zone := e.zonesLocked()
	d := e.gen.NewDrone(region, e.settings.EdgeBias, now)
	t := &tracked{
		drone:        d,
		inRegion:     region.Contains(d.Location),
		inRestricted: zone.Contains(d.Location),
	}
	t.drone.ThreatLevel = threat.Assess(threat.Factors{
		Baseline:           d.BaselineThreat,
		InRestricted:       t.inRestricted,
		OutsideRegion:      !t.inRegion,
		SignalStrength:     d.SignalStrength,
		ControlCompromised: d.Status.ControlCompromised,
	})
	return t
}

func (e *Engine) detectionAlertLocked(t *tracked, now time.Time) telemetry.Alert {
	desc := fmt.Sprintf("New %s drone detected", t.drone.Type)
	if t.inRestricted {
		desc += " in restricted zone"
	}
	return e.newAlertLocked(&t.drone, telemetry.AlertNewDetection, desc, t.drone.ThreatLevel, now)
}

func (e *Engine) insertLocked(t *tracked) {
	e.drones[t.drone.ID] = t
	e.order = append(e.order, t.drone.ID)
}

func (e *Engine) deleteLocked(id string) {
	delete(e.drones, id)
	for i, v := range e.order {
		if v == id {
			e.order = append(e.order[:i:i], e.order[i+1:]...)
			return
		}
	}
}

// AddDrone creates one randomized drone and emits a new_detection alert.
func (e *Engine) AddDrone() (telemetry.Drone, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.initialized {
		return telemetry.Drone{}, ErrNotInitialized
	}
	if e.settings.MaxDrones > 0 && len(e.drones) >= e.settings.MaxDrones {
		return telemetry.Drone{}, ErrCapacity
	}
	now := e.now()
	t := e.newTrackedLocked(now)
	e.insertLocked(t)
	e.queueAlertsLocked(e.detectionAlertLocked(t, now))
	return t.drone.Clone(), nil
}

// RemoveDrone deletes a drone. Unknown ids return a *NotFoundError and leave state untouched.
func (e *Engine) RemoveDrone(id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.drones[id]; !ok {
		return &NotFoundError{Kind: "drone", ID: id}
	}
	e.deleteLocked(id)
	return nil
}

// Reconfigure validates the merged settings before touching state. A region
// change discards the population and regenerates it inside the new bounds; a
// count change alone grows with new drones or drops the newest ones.
func (e *Engine) Reconfigure(rc Reconfig) (Settings, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.initialized {
		return Settings{}, ErrNotInitialized
	}
	next := rc.apply(e.settings)
	if err := next.Validate(); err != nil {
		return e.settings, err
	}
	if rc.Region != nil && *rc.Region != e.settings.Region {
		e.populateLocked(next)
		return next, nil
	}
	e.settings = next
	now := e.now()
	for len(e.order) < next.DroneCount {
		e.insertLocked(e.newTrackedLocked(now))
	}
	for len(e.order) > next.DroneCount {
		e.deleteLocked(e.order[len(e.order)-1])
	}
	return next, nil
}

// AcknowledgeAlert marks an alert as seen. Acknowledging twice is a no-op.
func (e *Engine) AcknowledgeAlert(id string) (telemetry.Alert, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i := range e.alerts {
		if e.alerts[i].ID == id {
			e.alerts[i].IsAcknowledged = true
			return e.alerts[i], nil
		}
	}
	return telemetry.Alert{}, &NotFoundError{Kind: "alert", ID: id}
}

func (e *Engine) newAlertLocked(d *telemetry.Drone, kind telemetry.AlertType, desc string, level threat.Level, now time.Time) telemetry.Alert {
	return telemetry.Alert{
		ID:          uuid.New().String(),
		DroneID:     d.ID,
		AlertType:   kind,
		Location:    d.Location,
		ThreatLevel: level,
		Description: desc,
		Timestamp:   now,
	}
}

// queueAlertsLocked records alerts in the history and the delivery queue.
// Both are bounded by MaxAlerts. The history evicts acknowledged alerts
// before unacknowledged ones, oldest first; the queue evicts oldest first.
func (e *Engine) queueAlertsLocked(alerts ...telemetry.Alert) {
	if len(alerts) == 0 {
		return
	}
	limit := e.settings.MaxAlerts
	e.alerts = evictAlerts(append(e.alerts, alerts...), limit)
	e.pending = append(e.pending, alerts...)
	if over := len(e.pending) - limit; over > 0 {
		e.pending = append([]telemetry.Alert(nil), e.pending[over:]...)
	}
	if e.notify != nil {
		e.notify()
	}
}

func evictAlerts(alerts []telemetry.Alert, limit int) []telemetry.Alert {
	over := len(alerts) - limit
	if over <= 0 {
		return alerts
	}
	kept := make([]telemetry.Alert, 0, len(alerts))
	for _, a := range alerts {
		if over > 0 && a.IsAcknowledged {
			over--
			continue
		}
		kept = append(kept, a)
	}
	return kept[over:]
}

// DrainAlerts returns alerts queued since the last call, oldest first.
func (e *Engine) DrainAlerts() []telemetry.Alert {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := e.pending
	e.pending = nil
	return out
}

// Snapshot returns the current drone set without advancing time.
func (e *Engine) Snapshot() telemetry.Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshotLocked(e.now())
}

func (e *Engine) snapshotLocked(now time.Time) telemetry.Snapshot {
	drones := make([]telemetry.Drone, 0, len(e.order))
	for _, id := range e.order {
		drones = append(drones, e.drones[id].drone.Clone())
	}
	return telemetry.Snapshot{Tick: e.tick, Timestamp: now, Region: e.settings.Region, Drones: drones}
}

// Drone returns one drone by id.
func (e *Engine) Drone(id string) (telemetry.Drone, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	t, ok := e.drones[id]
	if !ok {
		return telemetry.Drone{}, &NotFoundError{Kind: "drone", ID: id}
	}
	return t.drone.Clone(), nil
}

// DroneFilter narrows Drones. Zero values match everything.
type DroneFilter struct {
	MinThreat threat.Level
	Type      telemetry.DroneType
	// ActiveWithin keeps drones updated no longer than this ago.
	ActiveWithin time.Duration
}

// Drones lists drones in insertion order.
func (e *Engine) Drones(f DroneFilter) []telemetry.Drone {
	e.mu.Lock()
	defer e.mu.Unlock()
	now := e.now()
	out := make([]telemetry.Drone, 0, len(e.order))
	for _, id := range e.order {
		d := e.drones[id].drone
		if f.MinThreat != "" && !d.ThreatLevel.AtLeast(f.MinThreat) {
			continue
		}
		if f.Type != "" && d.Type != f.Type {
			continue
		}
		if f.ActiveWithin > 0 && now.Sub(d.LastUpdated) > f.ActiveWithin {
			continue
		}
		out = append(out, d.Clone())
	}
	return out
}

// AlertFilter narrows Alerts. A zero Limit returns everything.
type AlertFilter struct {
	Limit        int
	Acknowledged *bool
}

// Alerts lists alerts newest first.
func (e *Engine) Alerts(f AlertFilter) []telemetry.Alert {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []telemetry.Alert
	for i := len(e.alerts) - 1; i >= 0; i-- {
		a := e.alerts[i]
		if f.Acknowledged != nil && a.IsAcknowledged != *f.Acknowledged {
			continue
		}
		out = append(out, a)
		if f.Limit > 0 && len(out) >= f.Limit {
			break
		}
	}
	return out
}

// Stats summarizes the current state.
func (e *Engine) Stats() telemetry.Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	st := telemetry.Stats{
		Tick:          e.tick,
		TotalDrones:   len(e.drones),
		ByType:        make(map[telemetry.DroneType]int),
		ByThreat:      make(map[threat.Level]int),
		HighestThreat: threat.None,
		TotalAlerts:   len(e.alerts),
		Timestamp:     e.now(),
	}
	var signal float64
	for _, t := range e.drones {
		d := t.drone
		st.ByType[d.Type]++
		st.ByThreat[d.ThreatLevel]++
		signal += d.SignalStrength
		if d.Status.Jammed {
			st.JammedDrones++
		}
		st.HighestThreat = threat.Max(st.HighestThreat, d.ThreatLevel)
	}
	if len(e.drones) > 0 {
		st.AverageSignal = signal / float64(len(e.drones))
	}
	for _, a := range e.alerts {
		if !a.IsAcknowledged {
			st.UnacknowledgedAlerts++
		}
	}
	return st
}

// HighestThreats returns up to n drones ordered by threat, highest first.
func (e *Engine) HighestThreats(n int) []telemetry.Drone {
	drones := e.Drones(DroneFilter{})
	sort.SliceStable(drones, func(i, j int) bool {
		return drones[i].ThreatLevel.Rank() > drones[j].ThreatLevel.Rank()
	})
	if n >= 0 && len(drones) > n {
		drones = drones[:n]
	}
	return drones
}

// Settings returns the active settings.
func (e *Engine) Settings() Settings {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.settings
}

// TickInterval returns the configured time step.
func (e *Engine) TickInterval() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.settings.TickInterval
}

// Initialized reports whether Initialize has succeeded at least once.
func (e *Engine) Initialized() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.initialized
}

// zonesLocked returns the region and its restricted zone.
func (e *Engine) zonesLocked() (geo.Region, geo.Region) {
	r := e.settings.Region
	return r, r.Restricted(e.settings.RestrictedFraction)
}
