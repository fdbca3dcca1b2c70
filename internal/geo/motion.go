package geo

import "math"

const (
	earthRadiusM    = 6371000.0
	metersPerDegree = 111320.0
)

// DistanceMeters calculates the haversine distance between two points.
func DistanceMeters(a, b Point) float64 {
	dLat := (b.Latitude - a.Latitude) * math.Pi / 180
	dLon := (b.Longitude - a.Longitude) * math.Pi / 180
	h := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(a.Latitude*math.Pi/180)*math.Cos(b.Latitude*math.Pi/180)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
	return earthRadiusM * c
}

// Bearing returns the initial bearing from a to b in degrees, 0 = north.
func Bearing(a, b Point) float64 {
	lat1 := a.Latitude * math.Pi / 180
	lat2 := b.Latitude * math.Pi / 180
	dLon := (b.Longitude - a.Longitude) * math.Pi / 180
	y := math.Sin(dLon) * math.Cos(lat2)
	x := math.Cos(lat1)*math.Sin(lat2) - math.Sin(lat1)*math.Cos(lat2)*math.Cos(dLon)
	return NormalizeHeading(math.Atan2(y, x) * 180 / math.Pi)
}

// NormalizeHeading maps any angle into [0,360).
func NormalizeHeading(h float64) float64 {
	h = math.Mod(h, 360)
	if h < 0 {
		h += 360
	}
	return h
}

// Advance moves p along heading (degrees clockwise from north) at speed m/s for dt seconds.
// Altitude is left untouched.
func Advance(p Point, heading, speed, dt float64) Point {
	d := speed * dt
	rad := heading * math.Pi / 180
	dLat := d * math.Cos(rad) / metersPerDegree
	cosLat := math.Cos(p.Latitude * math.Pi / 180)
	if math.Abs(cosLat) < 1e-9 {
		cosLat = 1e-9
	}
	dLon := d * math.Sin(rad) / (metersPerDegree * cosLat)
	return Point{
		Latitude:  p.Latitude + dLat,
		Longitude: p.Longitude + dLon,
		Altitude:  p.Altitude,
	}
}
