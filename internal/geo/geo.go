// Package geo holds the single distance formula used for every radius
// check in the service, plus the flat-earth helpers the member simulator
// uses to place and move people around a start point.
package geo

import (
	"math"

	"github.com/golang/geo/s1"
	"github.com/golang/geo/s2"
)

// EarthRadiusMeters is the mean Earth radius used to turn central angles
// into meters.
const EarthRadiusMeters = 6371010.0

// metersPerDegree is the flat-earth constant for small offsets.
const metersPerDegree = 111000.0

// Point is a WGS84 coordinate in degrees.
type Point struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Valid reports whether p lies inside the latitude/longitude ranges.
func (p Point) Valid() bool {
	if math.IsNaN(p.Lat) || math.IsNaN(p.Lon) {
		return false
	}
	return p.Lat >= -90 && p.Lat <= 90 && p.Lon >= -180 && p.Lon <= 180
}

func (p Point) latLng() s2.LatLng {
	return s2.LatLngFromDegrees(p.Lat, p.Lon)
}

// Distance returns the great-circle distance between a and b in meters,
// rounded to the millimeter so threshold comparisons are stable.
func Distance(a, b Point) float64 {
	angle := a.latLng().Distance(b.latLng())
	m := angle.Radians() * EarthRadiusMeters
	return math.Round(m*1000) / 1000
}

// Within reports whether b is at most radius meters from a. The boundary
// is inclusive.
func Within(a, b Point, radius float64) bool {
	return Distance(a, b) <= radius
}

// North returns the point meters due north of p along its meridian.
// Distance(p, North(p, m)) == m up to the millimeter rounding.
func North(p Point, meters float64) Point {
	ll := p.latLng()
	ll.Lat += s1.Angle(meters / EarthRadiusMeters)
	return Point{Lat: ll.Lat.Degrees(), Lon: p.Lon}
}

// Offset moves p by meters along bearing (radians, 0 = north) using a
// flat-earth approximation. It is only meant for simulated placement and
// never for threshold checks.
func Offset(p Point, meters, bearing float64) Point {
	dLat := meters * math.Cos(bearing) / metersPerDegree
	dLon := meters * math.Sin(bearing) / (metersPerDegree * math.Cos(p.Lat*math.Pi/180))
	return Point{Lat: p.Lat + dLat, Lon: p.Lon + dLon}
}

// Toward moves from a fraction of the way to to, interpolating the
// coordinates linearly.
func Toward(from, to Point, fraction float64) Point {
	if fraction >= 1 {
		return to
	}
	if fraction <= 0 {
		return from
	}
	return Point{
		Lat: from.Lat + (to.Lat-from.Lat)*fraction,
		Lon: from.Lon + (to.Lon-from.Lon)*fraction,
	}
}
