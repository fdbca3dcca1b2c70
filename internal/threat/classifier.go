// Threat classification policy for simulated drones
package threat

import "math/rand"

// StrongSignal is the signal strength at which a drone is treated as close.
const StrongSignal = 90.0

// Factors are the inputs considered for one classification.
type Factors struct {
	Baseline           Level
	InRestricted       bool
	OutsideRegion      bool
	SignalStrength     float64
	ControlCompromised bool
}

// Classifier combines zone membership, signal strength and a small random
// jitter. Every factor proposes a level and the highest proposal wins.
type Classifier struct {
	// JitterProbability is the chance per classification to raise the baseline by one.
	JitterProbability float64
	rand              *rand.Rand
}

// NewClassifier creates a classifier drawing jitter from rng.
func NewClassifier(rng *rand.Rand, jitter float64) *Classifier {
	return &Classifier{JitterProbability: jitter, rand: rng}
}

// Assess returns the level implied by f alone, without jitter.
func Assess(f Factors) Level {
	baseline := f.Baseline
	if !baseline.Valid() {
		baseline = None
	}
	proposals := []Level{baseline}
	if f.InRestricted {
		proposals = append(proposals, Max(Medium, baseline.Raise(1)))
	}
	if f.OutsideRegion {
		proposals = append(proposals, High)
	}
	if f.ControlCompromised {
		proposals = append(proposals, High)
	}
	if f.SignalStrength >= StrongSignal {
		proposals = append(proposals, Low)
	}
	return Max(proposals...)
}

// Classify returns the threat level for f.
func (c *Classifier) Classify(f Factors) Level {
	level := Assess(f)
	if c.JitterProbability > 0 && c.rand != nil && c.rand.Float64() < c.JitterProbability {
		baseline := f.Baseline
		if !baseline.Valid() {
			baseline = None
		}
		level = Max(level, baseline.Raise(1))
	}
	return level
}
