package threat

import (
	"fmt"
	"strings"
)

// Level is the threat classification of a tracked drone.
type Level string

const (
	None     Level = "none"
	Low      Level = "low"
	Medium   Level = "medium"
	High     Level = "high"
	Critical Level = "critical"
)

// Levels lists every level ordered from lowest to highest.
var Levels = []Level{None, Low, Medium, High, Critical}

// Rank returns the position of l in Levels, or -1 if l is unknown.
func (l Level) Rank() int {
	for i, v := range Levels {
		if v == l {
			return i
		}
	}
	return -1
}

// Valid reports whether l is one of the enumerated levels.
func (l Level) Valid() bool { return l.Rank() >= 0 }

// AtLeast reports whether l is ranked at or above o.
func (l Level) AtLeast(o Level) bool { return l.Rank() >= o.Rank() }

// Raise returns the level n steps above l, capped at Critical.
func (l Level) Raise(n int) Level {
	r := l.Rank()
	if r < 0 {
		r = 0
	}
	r += n
	if r >= len(Levels) {
		r = len(Levels) - 1
	}
	if r < 0 {
		r = 0
	}
	return Levels[r]
}

// Max returns the highest of the given levels. Unknown levels count as None.
func Max(levels ...Level) Level {
	best := None
	for _, l := range levels {
		if l.Rank() > best.Rank() {
			best = l
		}
	}
	return best
}

// Parse converts a case-insensitive name into a Level.
func Parse(s string) (Level, error) {
	l := Level(strings.ToLower(strings.TrimSpace(s)))
	if !l.Valid() {
		return "", fmt.Errorf("unknown threat level %q", s)
	}
	return l, nil
}
