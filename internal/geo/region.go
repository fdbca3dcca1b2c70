// Region geometry for the monitored border area
package geo

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
)

// ErrInvalidRegion is returned by Region.Validate.
var ErrInvalidRegion = errors.New("invalid region")

// DefaultRestrictedFraction is the side ratio between the restricted zone and its region.
const DefaultRestrictedFraction = 1.0 / 3.0

// Point is a geographic position. Altitude is in meters.
type Point struct {
	Latitude  float64 `json:"latitude" yaml:"latitude"`
	Longitude float64 `json:"longitude" yaml:"longitude"`
	Altitude  float64 `json:"altitude" yaml:"altitude"`
}

// Region is a rectangle in degrees, rotated clockwise around its center.
type Region struct {
	Center   Point   `json:"center" yaml:"center"`
	Width    float64 `json:"width" yaml:"width"`
	Height   float64 `json:"height" yaml:"height"`
	Rotation float64 `json:"rotation" yaml:"rotation"`
}

// Validate reports whether the region can be simulated.
func (r Region) Validate() error {
	switch {
	case !finite(r.Width) || r.Width <= 0:
		return fmt.Errorf("%w: width must be positive, got %v", ErrInvalidRegion, r.Width)
	case !finite(r.Height) || r.Height <= 0:
		return fmt.Errorf("%w: height must be positive, got %v", ErrInvalidRegion, r.Height)
	case !finite(r.Center.Latitude) || r.Center.Latitude < -90 || r.Center.Latitude > 90:
		return fmt.Errorf("%w: center latitude out of range: %v", ErrInvalidRegion, r.Center.Latitude)
	case !finite(r.Center.Longitude) || r.Center.Longitude < -180 || r.Center.Longitude > 180:
		return fmt.Errorf("%w: center longitude out of range: %v", ErrInvalidRegion, r.Center.Longitude)
	case !finite(r.Rotation):
		return fmt.Errorf("%w: rotation must be finite", ErrInvalidRegion)
	}
	return nil
}

// Restricted returns the nested zone sharing center and rotation.
func (r Region) Restricted(fraction float64) Region {
	if fraction <= 0 || fraction >= 1 {
		fraction = DefaultRestrictedFraction
	}
	return Region{
		Center:   r.Center,
		Width:    r.Width * fraction,
		Height:   r.Height * fraction,
		Rotation: r.Rotation,
	}
}

// HalfExtents returns half the width and height in degrees.
func (r Region) HalfExtents() (float64, float64) {
	return r.Width / 2, r.Height / 2
}

// local converts p into the region's unrotated frame relative to the center.
func (r Region) local(p Point) (float64, float64) {
	dx := p.Longitude - r.Center.Longitude
	dy := p.Latitude - r.Center.Latitude
	if r.Rotation != 0 {
		rad := r.Rotation * math.Pi / 180
		dx, dy = dx*math.Cos(rad)+dy*math.Sin(rad), -dx*math.Sin(rad)+dy*math.Cos(rad)
	}
	return dx, dy
}

// Contains reports whether p lies inside the region, edges included.
func (r Region) Contains(p Point) bool {
	dx, dy := r.local(p)
	hw, hh := r.HalfExtents()
	return math.Abs(dx) <= hw && math.Abs(dy) <= hh
}

// Overshoot returns how far p lies outside the region as a fraction of the
// larger half extent. Points inside return 0.
func (r Region) Overshoot(p Point) float64 {
	dx, dy := r.local(p)
	hw, hh := r.HalfExtents()
	ox := math.Max(0, math.Abs(dx)-hw)
	oy := math.Max(0, math.Abs(dy)-hh)
	return math.Hypot(ox, oy) / math.Max(hw, hh)
}

// RandomPoint picks a point inside the ellipse inscribed in the region.
// edgeBias in [0,1) pushes points toward the rim. Altitude is 50-500 m.
func (r Region) RandomPoint(rng *rand.Rand, edgeBias float64) Point {
	edgeBias = math.Max(0, math.Min(0.95, edgeBias))
	u := rng.Float64()
	dist := u
	if edgeBias > 0 {
		dist = 1 - math.Pow(1-u, 1/(1-edgeBias))
	}
	angle := rng.Float64() * 2 * math.Pi
	hw, hh := r.HalfExtents()
	dx := dist * hw * math.Cos(angle)
	dy := dist * hh * math.Sin(angle)
	if r.Rotation != 0 {
		rad := r.Rotation * math.Pi / 180
		dx, dy = dx*math.Cos(rad)-dy*math.Sin(rad), dx*math.Sin(rad)+dy*math.Cos(rad)
	}
	return Point{
		Latitude:  r.Center.Latitude + dy,
		Longitude: r.Center.Longitude + dx,
		Altitude:  50 + rng.Float64()*450,
	}
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
