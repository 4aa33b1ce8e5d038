// Package simulate generates deterministic synthetic trajectories and
// noisy magnetic observations along them, for tests and demos that
// need ground truth without a real magnetometer or map file.
package simulate

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/ruvnet/quantum-magnetic-navigation/internal/qerr"
)

// PathType selects the trajectory shape.
type PathType string

const (
	Straight PathType = "straight"
	Curved   PathType = "curved"
	Random   PathType = "random"
)

// FieldFunc evaluates the true (noise-free) field at a position; in
// production this is a MagneticMap.Interpolate closure, in tests it is
// typically a closed-form plane or sinusoid.
type FieldFunc func(lat, lon float64) float64

// Sample is one point along a simulated trajectory.
type Sample struct {
	T        float64
	Lat, Lon float64
	BTrue    float64
	BNoisy   float64
}

// Params configures one simulation run. Seed makes the run
// reproducible: the same Params always yields the same Samples.
type Params struct {
	StartLat, StartLon float64
	EndLat, EndLon     float64
	SpeedMPS           float64
	SampleRateHz       float64
	NoiseStdDev        float64
	Path               PathType
	Seed               int64
}

// Run generates the sample sequence described by p against field.
func Run(p Params, field FieldFunc) ([]Sample, error) {
	if p.SampleRateHz <= 0 {
		return nil, fmt.Errorf("%w: sample_rate_hz must be positive, got %v", qerr.ErrConfig, p.SampleRateHz)
	}
	if p.SpeedMPS < 0 {
		return nil, fmt.Errorf("%w: speed must be non-negative, got %v", qerr.ErrConfig, p.SpeedMPS)
	}

	totalDistM := haversineApprox(p.StartLat, p.StartLon, p.EndLat, p.EndLon)
	var durationS float64
	if p.SpeedMPS > 0 {
		durationS = totalDistM / p.SpeedMPS
	}
	nSteps := int(math.Ceil(durationS*p.SampleRateHz)) + 1
	if nSteps < 1 {
		nSteps = 1
	}

	rng := rand.New(rand.NewSource(p.Seed))
	samples := make([]Sample, 0, nSteps)

	for i := 0; i < nSteps; i++ {
		frac := 0.0
		if nSteps > 1 {
			frac = float64(i) / float64(nSteps-1)
		}
		lat, lon := pathPoint(p, frac)
		t := float64(i) / p.SampleRateHz
		bTrue := field(lat, lon)
		noise := 0.0
		if p.NoiseStdDev > 0 {
			noise = rng.NormFloat64() * p.NoiseStdDev
		}
		samples = append(samples, Sample{
			T: t, Lat: lat, Lon: lon,
			BTrue:  bTrue,
			BNoisy: bTrue + noise,
		})
	}
	return samples, nil
}

// pathPoint evaluates the trajectory shape at fraction frac in [0,1]
// between start and end.
func pathPoint(p Params, frac float64) (lat, lon float64) {
	switch p.Path {
	case Curved:
		// Bow the straight-line path outward by a sine-shaped
		// perpendicular offset, peaking at the midpoint.
		lat0, lon0 := lerp(p.StartLat, p.EndLat, frac), lerp(p.StartLon, p.EndLon, frac)
		dlat := p.EndLat - p.StartLat
		dlon := p.EndLon - p.StartLon
		norm := math.Hypot(dlat, dlon)
		if norm == 0 {
			return lat0, lon0
		}
		perpLat := -dlon / norm
		perpLon := dlat / norm
		bow := 0.15 * norm * math.Sin(math.Pi*frac)
		return lat0 + perpLat*bow, lon0 + perpLon*bow

	case Random:
		rng := rand.New(rand.NewSource(int64(frac*1e9) ^ p.Seed))
		lat0, lon0 := lerp(p.StartLat, p.EndLat, frac), lerp(p.StartLon, p.EndLon, frac)
		jitter := 0.02 * math.Hypot(p.EndLat-p.StartLat, p.EndLon-p.StartLon)
		return lat0 + rng.NormFloat64()*jitter, lon0 + rng.NormFloat64()*jitter

	default: // Straight
		return lerp(p.StartLat, p.EndLat, frac), lerp(p.StartLon, p.EndLon, frac)
	}
}

func lerp(a, b, frac float64) float64 { return a + (b-a)*frac }

// haversineApprox avoids importing the geo package's validated LatLon
// constructor here; the simulator intentionally accepts any finite
// coordinate pair, including ones a caller is mid-way through
// constructing a demo scenario with.
func haversineApprox(lat1, lon1, lat2, lon2 float64) float64 {
	const r = 6371008.8
	const deg2rad = math.Pi / 180
	phi1 := lat1 * deg2rad
	phi2 := lat2 * deg2rad
	dphi := (lat2 - lat1) * deg2rad
	dlambda := (lon2 - lon1) * deg2rad
	a := math.Sin(dphi/2)*math.Sin(dphi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(dlambda/2)*math.Sin(dlambda/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return r * c
}
