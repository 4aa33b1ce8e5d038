// Package geo implements the planar/geodetic primitives the rest of
// the navigation core builds on: validated LatLon values, WGS-84 ECEF
// conversion, and haversine distance.
package geo

import (
	"fmt"
	"math"

	"github.com/ruvnet/quantum-magnetic-navigation/internal/qerr"
)

// WGS-84 ellipsoid parameters.
const (
	wgs84A = 6378137.0          // semi-major axis, metres
	wgs84F = 1.0 / 298.257223563 // flattening
	earthR = 6371008.8          // mean radius used for haversine, metres

	bowringTol  = 1e-12 // rad
	bowringIter = 5
)

// LatLon is an immutable geodetic coordinate. Construct with New to
// get validation; the zero value (0,0) is a valid coordinate, not a
// "missing value" sentinel.
type LatLon struct {
	lat, lon float64
}

// New validates and constructs a LatLon. Latitude must be in
// [-90,90], longitude in [-180,180], both finite.
func New(lat, lon float64) (LatLon, error) {
	if math.IsNaN(lat) || math.IsInf(lat, 0) || math.IsNaN(lon) || math.IsInf(lon, 0) {
		return LatLon{}, fmt.Errorf("%w: non-finite coordinate (%v, %v)", qerr.ErrDomain, lat, lon)
	}
	if lat < -90 || lat > 90 {
		return LatLon{}, fmt.Errorf("%w: latitude %v out of [-90,90]", qerr.ErrDomain, lat)
	}
	if lon < -180 || lon > 180 {
		return LatLon{}, fmt.Errorf("%w: longitude %v out of [-180,180]", qerr.ErrDomain, lon)
	}
	return LatLon{lat: lat, lon: lon}, nil
}

// Lat returns the latitude in degrees.
func (l LatLon) Lat() float64 { return l.lat }

// Lon returns the longitude in degrees.
func (l LatLon) Lon() float64 { return l.lon }

// Equal is exact equality, not a "near" comparison; use DistanceM for
// that.
func (l LatLon) Equal(o LatLon) bool { return l.lat == o.lat && l.lon == o.lon }

// ECEF is a point in Earth-Centered, Earth-Fixed Cartesian metres on
// the WGS-84 ellipsoid.
type ECEF struct {
	X, Y, Z float64
}

// ToECEF converts a LatLon (height assumed 0, on the ellipsoid surface)
// to ECEF using the standard closed-form WGS-84 transform.
func ToECEF(l LatLon) ECEF {
	latRad := l.lat * math.Pi / 180
	lonRad := l.lon * math.Pi / 180

	e2 := wgs84F * (2 - wgs84F) // first eccentricity squared
	sinLat := math.Sin(latRad)
	cosLat := math.Cos(latRad)

	n := wgs84A / math.Sqrt(1-e2*sinLat*sinLat)

	return ECEF{
		X: n * cosLat * math.Cos(lonRad),
		Y: n * cosLat * math.Sin(lonRad),
		Z: n * (1 - e2) * sinLat,
	}
}

// FromECEF inverts ToECEF using Bowring's iterative method, converging
// to bowringTol radians within bowringIter iterations for any
// non-polar latitude.
func FromECEF(p ECEF) (LatLon, error) {
	if math.IsNaN(p.X) || math.IsNaN(p.Y) || math.IsNaN(p.Z) ||
		math.IsInf(p.X, 0) || math.IsInf(p.Y, 0) || math.IsInf(p.Z, 0) {
		return LatLon{}, fmt.Errorf("%w: non-finite ECEF point", qerr.ErrDomain)
	}

	e2 := wgs84F * (2 - wgs84F)

	lon := math.Atan2(p.Y, p.X)
	pr := math.Hypot(p.X, p.Y)

	// Initial latitude guess.
	lat := math.Atan2(p.Z, pr*(1-e2))

	for i := 0; i < bowringIter; i++ {
		sinLat := math.Sin(lat)
		n := wgs84A / math.Sqrt(1-e2*sinLat*sinLat)
		next := math.Atan2(p.Z+e2*n*sinLat, pr)
		if math.Abs(next-lat) < bowringTol {
			lat = next
			break
		}
		lat = next
	}

	latDeg := lat * 180 / math.Pi
	lonDeg := lon * 180 / math.Pi

	// Clamp tiny floating-point overshoot at the poles/antimeridian
	// back into the valid range before validating.
	if latDeg > 90 && latDeg < 90+1e-9 {
		latDeg = 90
	}
	if latDeg < -90 && latDeg > -90-1e-9 {
		latDeg = -90
	}

	return New(latDeg, lonDeg)
}

// DistanceM returns the haversine great-circle distance between a and
// b in metres, using mean Earth radius 6371008.8 m.
func DistanceM(a, b LatLon) float64 {
	lat1 := a.lat * math.Pi / 180
	lat2 := b.lat * math.Pi / 180
	dLat := (b.lat - a.lat) * math.Pi / 180
	dLon := (b.lon - a.lon) * math.Pi / 180

	sinDLat := math.Sin(dLat / 2)
	sinDLon := math.Sin(dLon / 2)

	h := sinDLat*sinDLat + math.Cos(lat1)*math.Cos(lat2)*sinDLon*sinDLon
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))

	return earthR * c
}
