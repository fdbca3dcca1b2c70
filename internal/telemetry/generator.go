package telemetry

import (
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"counterdrone-sim/internal/geo"
	"counterdrone-sim/internal/threat"
)

const (
	maxTurnDeg   = 15.0
	maxSpeedStep = 1.0
	driftFactor  = 0.2
	maxAltStep   = 10.0
	minAltitude  = 20.0
	maxAltitude  = 600.0
	signalNoise  = 5.0
	confNoise    = 0.02
)

// Range is an inclusive numeric interval.
type Range struct{ Min, Max float64 }

func (r Range) pick(rng *rand.Rand) float64 { return r.Min + rng.Float64()*(r.Max-r.Min) }

func (r Range) clamp(v float64) float64 { return math.Max(r.Min, math.Min(r.Max, v)) }

// Profile holds the attribute ranges drawn for a new drone of one type.
type Profile struct {
	Weight     float64
	Signal     Range
	Speed      Range
	Confidence Range
	Size       Range
	Threats    []threat.Level
	DrainRate  float64 // battery percent per second
}

// Profiles maps each drone type to its creation policy.
var Profiles = map[DroneType]Profile{
	TypeCommercial: {Weight: 0.70, Signal: Range{60, 90}, Speed: Range{5, 15}, Confidence: Range{0.7, 0.95}, Size: Range{0.3, 1.5}, Threats: []threat.Level{threat.None, threat.Low}, DrainRate: 0.02},
	TypeDIY:        {Weight: 0.20, Signal: Range{50, 85}, Speed: Range{3, 20}, Confidence: Range{0.6, 0.9}, Size: Range{0.2, 1.0}, Threats: []threat.Level{threat.Low, threat.Medium}, DrainRate: 0.04},
	TypeMilitary:   {Weight: 0.05, Signal: Range{30, 70}, Speed: Range{10, 40}, Confidence: Range{0.5, 0.8}, Size: Range{2, 5}, Threats: []threat.Level{threat.Medium, threat.High}, DrainRate: 0.01},
	TypeUnknown:    {Weight: 0.05, Signal: Range{20, 60}, Speed: Range{5, 25}, Confidence: Range{0.3, 0.7}, Size: Range{0.5, 3}, Threats: []threat.Level{threat.Low, threat.Medium, threat.High}, DrainRate: 0.03},
}

// Generator creates drones and advances their motion with a bounded random walk.
type Generator struct {
	rand *rand.Rand
	seq  uint64
}

// NewGenerator creates a generator drawing from rng.
func NewGenerator(rng *rand.Rand) *Generator {
	return &Generator{rand: rng}
}

// RandomType picks a drone type using the profile weights.
func (g *Generator) RandomType() DroneType {
	u := g.rand.Float64()
	var acc float64
	for _, t := range DroneTypes {
		acc += Profiles[t].Weight
		if u < acc {
			return t
		}
	}
	return TypeUnknown
}

func (g *Generator) nextID() string {
	g.seq++
	return fmt.Sprintf("drone-%d-%s", g.seq, uuid.New().String()[:8])
}

// NewDrone creates a randomized drone somewhere inside region.
func (g *Generator) NewDrone(region geo.Region, edgeBias float64, now time.Time) Drone {
	t := g.RandomType()
	p := Profiles[t]
	baseline := p.Threats[g.rand.Intn(len(p.Threats))]
	return Drone{
		ID:             g.nextID(),
		Type:           t,
		Location:       region.RandomPoint(g.rand, edgeBias),
		Speed:          p.Speed.pick(g.rand),
		Heading:        g.rand.Float64() * 360,
		SignalStrength: p.Signal.pick(g.rand),
		ThreatLevel:    baseline,
		BaselineThreat: baseline,
		Confidence:     p.Confidence.pick(g.rand),
		EstimatedSize:  p.Size.pick(g.rand),
		Metadata: Metadata{
			Battery:   30 + g.rand.Float64()*70,
			Model:     fmt.Sprintf("Drone-%03d", 100+g.rand.Intn(900)),
			Frequency: fmt.Sprintf("%.1f GHz", 2.4+g.rand.Float64()*3.4),
		},
		DetectedAt:  now,
		LastUpdated: now,
	}
}

// Move advances d by dt seconds: heading and speed take a small random step,
// the position moves along the heading with up to 20% lateral drift and the
// altitude wanders by a few meters.
func (g *Generator) Move(d *Drone, dt float64) {
	p, ok := Profiles[d.Type]
	if !ok {
		p = Profiles[TypeUnknown]
	}
	d.Heading = geo.NormalizeHeading(d.Heading + (g.rand.Float64()*2-1)*maxTurnDeg)
	d.Speed = p.Speed.clamp(d.Speed + (g.rand.Float64()*2-1)*maxSpeedStep)

	alt := d.Location.Altitude
	next := geo.Advance(d.Location, d.Heading, d.Speed, dt)
	dist := d.Speed * dt
	next = geo.Advance(next, 0, (g.rand.Float64()*2-1)*driftFactor*dist, 1)
	next = geo.Advance(next, 90, (g.rand.Float64()*2-1)*driftFactor*dist, 1)
	next.Altitude = Range{minAltitude, maxAltitude}.clamp(alt + (g.rand.Float64()*2-1)*maxAltStep)
	d.Location = next

	d.Metadata.Battery = math.Max(0, d.Metadata.Battery-p.DrainRate*dt)
}

// Fluctuate applies signal and confidence noise. extraDecay is subtracted
// from the signal on top of the noise, e.g. while jammed.
func (g *Generator) Fluctuate(d *Drone, extraDecay float64) {
	d.SignalStrength = Range{0, 100}.clamp(d.SignalStrength + (g.rand.Float64()*2-1)*signalNoise - extraDecay)
	d.Confidence = Range{0, 1}.clamp(d.Confidence + (g.rand.Float64()*2-1)*confNoise)
}
