// Package fusion implements the Extended Kalman Filter that turns
// successive magnetic-field observations into a refined geographic
// position estimate.
package fusion

import (
	"fmt"
	"math"
	"sync"

	"gonum.org/v1/gonum/mat"

	"github.com/ruvnet/quantum-magnetic-navigation/internal/mapengine"
	"github.com/ruvnet/quantum-magnetic-navigation/internal/qerr"
)

// FieldMap is the measurement model's dependency: anything that can
// answer an interpolated lookup, so the filter never imports the
// concrete raster machinery.
type FieldMap interface {
	Interpolate(lat, lon float64, method mapengine.InterpMethod) (float64, error)
}

// Config tunes the filter's process and measurement noise. Qp/Qv are
// physical: position jitter in deg²/s and velocity random-walk in
// deg²/s³, each scaled by dt at predict time.
type Config struct {
	Qp, Qv         float64
	P0Pos, P0Vel   float64
	MeasurementVar float64 // R, the observation variance in nT²
	HStep          float64 // finite-difference step, degrees
	MinS           float64 // numerical floor below which S is ill-conditioned
	InterpMethod   mapengine.InterpMethod
}

// DefaultConfig mirrors the documented defaults: loose enough to
// converge from a few hundred metres off, tight enough not to wander.
func DefaultConfig() Config {
	return Config{
		Qp:             1e-10,
		Qv:             1e-12,
		P0Pos:          1e-2,
		P0Vel:          1e-6,
		MeasurementVar: 1.0,
		HStep:          1e-5,
		MinS:           1e-12,
		InterpMethod:   mapengine.Bilinear,
	}
}

// State is an immutable snapshot of the filter's estimate, safe to
// hand to a caller outside the lock.
type State struct {
	Lat, Lon, VLat, VLon float64
	P                    [4][4]float64
	Quality              float64
}

// NavEKF is the single shared mutable resource the navigation service
// drives: one exclusive lock around every state mutation, read
// snapshots taken under the same lock.
type NavEKF struct {
	mu  sync.Mutex
	cfg Config
	x   *mat.VecDense
	p   *mat.SymDense
}

// New constructs a filter reset to (lat0,lon0).
func New(cfg Config, lat0, lon0 float64) (*NavEKF, error) {
	e := &NavEKF{cfg: cfg}
	if err := e.resetLocked(lat0, lon0); err != nil {
		return nil, err
	}
	return e, nil
}

// Reset re-initializes state to (lat0,lon0) with zero velocity and
// the configured initial covariance.
func (e *NavEKF) Reset(lat0, lon0 float64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.resetLocked(lat0, lon0)
}

func (e *NavEKF) resetLocked(lat0, lon0 float64) error {
	if !finite(lat0) || !finite(lon0) {
		return fmt.Errorf("%w: non-finite reset position (%v, %v)", qerr.ErrDomain, lat0, lon0)
	}
	e.x = mat.NewVecDense(4, []float64{lat0, lon0, 0, 0})
	e.p = mat.NewSymDense(4, nil)
	e.p.SetSym(0, 0, e.cfg.P0Pos)
	e.p.SetSym(1, 1, e.cfg.P0Pos)
	e.p.SetSym(2, 2, e.cfg.P0Vel)
	e.p.SetSym(3, 3, e.cfg.P0Vel)
	return nil
}

// State returns a snapshot of the current estimate. Quality is not
// meaningful outside an Update call and is reported as 1.
func (e *NavEKF) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshotLocked(1)
}

func (e *NavEKF) snapshotLocked(quality float64) State {
	var s State
	s.Lat = e.x.AtVec(0)
	s.Lon = e.x.AtVec(1)
	s.VLat = e.x.AtVec(2)
	s.VLon = e.x.AtVec(3)
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			s.P[i][j] = e.p.At(i, j)
		}
	}
	s.Quality = quality
	return s
}

// Predict advances the constant-velocity model by dt seconds. dt=0 is
// a bit-for-bit no-op; dt<0 is a domain error.
func (e *NavEKF) Predict(dt float64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.predictLocked(dt)
}

func (e *NavEKF) predictLocked(dt float64) error {
	if !finite(dt) || dt < 0 {
		return fmt.Errorf("%w: negative or non-finite dt %v", qerr.ErrDomain, dt)
	}
	if dt == 0 {
		return nil
	}

	f := mat.NewDense(4, 4, []float64{
		1, 0, dt, 0,
		0, 1, 0, dt,
		0, 0, 1, 0,
		0, 0, 0, 1,
	})

	var xNext mat.VecDense
	xNext.MulVec(f, e.x)
	e.x = &xNext

	var fp mat.Dense
	fp.Mul(f, e.p)
	var fpft mat.Dense
	fpft.Mul(&fp, f.T())

	q := [4]float64{e.cfg.Qp * dt, e.cfg.Qp * dt, e.cfg.Qv * dt, e.cfg.Qv * dt}

	sym := mat.NewSymDense(4, nil)
	for i := 0; i < 4; i++ {
		for j := i; j < 4; j++ {
			v := fpft.At(i, j)
			if i == j {
				v += q[i]
			}
			sym.SetSym(i, j, v)
		}
	}
	e.p = sym
	return nil
}

// Update folds one scalar total-field observation into the estimate.
// A map miss, a NaN stencil, or an ill-conditioned innovation
// covariance degrades gracefully: the predict-step state is kept and
// quality is reported as 0, never returned as an error.
func (e *NavEKF) Update(zObs float64, field FieldMap) (State, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !finite(zObs) {
		return State{}, fmt.Errorf("%w: non-finite observation %v", qerr.ErrDomain, zObs)
	}

	lat := e.x.AtVec(0)
	lon := e.x.AtVec(1)

	h0, errH0 := field.Interpolate(lat, lon, e.cfg.InterpMethod)
	if errH0 != nil || math.IsNaN(h0) {
		return e.snapshotLocked(0), nil
	}

	hLat, okLat := partial(field, lat, lon, e.cfg.HStep, true, e.cfg.InterpMethod)
	hLon, okLon := partial(field, lat, lon, e.cfg.HStep, false, e.cfg.InterpMethod)
	if !okLat || !okLon {
		return e.snapshotLocked(0), nil
	}

	hRow := mat.NewDense(1, 4, []float64{hLat, hLon, 0, 0})

	var hp mat.Dense
	hp.Mul(hRow, e.p)
	var hpht mat.Dense
	hpht.Mul(&hp, hRow.T())
	s := hpht.At(0, 0) + e.cfg.MeasurementVar

	if s < e.cfg.MinS || math.IsNaN(s) {
		return e.snapshotLocked(0), nil
	}

	y := zObs - h0

	var pht mat.Dense
	pht.Mul(e.p, hRow.T())
	k := mat.NewVecDense(4, nil)
	for i := 0; i < 4; i++ {
		k.SetVec(i, pht.At(i, 0)/s)
	}

	var xNext mat.VecDense
	xNext.AddScaledVec(e.x, y, k)
	e.x = &xNext

	ident := mat.NewDense(4, 4, nil)
	for i := 0; i < 4; i++ {
		ident.Set(i, i, 1)
	}
	var kh mat.Dense
	kh.Mul(k, hRow)
	var imkh mat.Dense
	imkh.Sub(ident, &kh)

	var imkhP mat.Dense
	imkhP.Mul(&imkh, e.p)
	var joseph mat.Dense
	joseph.Mul(&imkhP, imkh.T())

	// Joseph form: P = (I-KH)P(I-KH)^T + K*R*K^T.
	sym := mat.NewSymDense(4, nil)
	for i := 0; i < 4; i++ {
		for j := i; j < 4; j++ {
			v := joseph.At(i, j) + k.AtVec(i)*e.cfg.MeasurementVar*k.AtVec(j)
			if i != j {
				// re-symmetrize against the mirrored element to absorb
				// the roundoff asymmetry a non-symmetric product leaves.
				vMirror := joseph.At(j, i) + k.AtVec(j)*e.cfg.MeasurementVar*k.AtVec(i)
				v = (v + vMirror) / 2
			} else if v < 0 {
				v = 0
			}
			sym.SetSym(i, j, v)
		}
	}
	e.p = sym

	quality := math.Exp(-(y * y) / (2 * s))
	return e.snapshotLocked(quality), nil
}

// partial computes one central finite-difference component of the
// measurement Jacobian. ok is false if either side of the difference
// is out-of-map or NaN, signalling the caller to skip the update.
func partial(field FieldMap, lat, lon, step float64, wrtLat bool, method mapengine.InterpMethod) (float64, bool) {
	var plus, minus float64
	var errP, errM error
	if wrtLat {
		plus, errP = field.Interpolate(lat+step, lon, method)
		minus, errM = field.Interpolate(lat-step, lon, method)
	} else {
		plus, errP = field.Interpolate(lat, lon+step, method)
		minus, errM = field.Interpolate(lat, lon-step, method)
	}
	if errP != nil || errM != nil || math.IsNaN(plus) || math.IsNaN(minus) {
		return 0, false
	}
	return (plus - minus) / (2 * step), true
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
