// Package sensors implements the conditioning layer between a raw
// three-axis magnetometer and the scalar observation the navigation
// service feeds to the EKF: hard/soft-iron calibration followed by a
// fixed-window moving average.
package sensors

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/ruvnet/quantum-magnetic-navigation/internal/qerr"
)

// MagneticVector is a three-axis magnetometer reading in nanoteslas.
type MagneticVector struct {
	Bx, By, Bz float64
}

// Total returns the scalar total field |B|.
func (v MagneticVector) Total() float64 {
	return math.Sqrt(v.Bx*v.Bx + v.By*v.By + v.Bz*v.Bz)
}

// CalibrationParams holds a hard-iron offset and a soft-iron scale
// matrix: apply(v) = scale . (v - offset).
type CalibrationParams struct {
	Offset [3]float64
	Scale  [3][3]float64
}

// Identity returns calibration parameters that leave a reading
// unchanged (zero offset, identity scale).
func Identity() CalibrationParams {
	c := CalibrationParams{}
	c.Scale[0][0], c.Scale[1][1], c.Scale[2][2] = 1, 1, 1
	return c
}

// Apply computes scale . (v - offset).
func (c CalibrationParams) Apply(v MagneticVector) MagneticVector {
	d := [3]float64{v.Bx - c.Offset[0], v.By - c.Offset[1], v.Bz - c.Offset[2]}
	return MagneticVector{
		Bx: c.Scale[0][0]*d[0] + c.Scale[0][1]*d[1] + c.Scale[0][2]*d[2],
		By: c.Scale[1][0]*d[0] + c.Scale[1][1]*d[1] + c.Scale[1][2]*d[2],
		Bz: c.Scale[2][0]*d[0] + c.Scale[2][1]*d[1] + c.Scale[2][2]*d[2],
	}
}

// Inverse returns calibration parameters C' such that
// C'.Apply(C.Apply(v)) ≈ v for well-conditioned scales: invert the
// scale matrix and negate the offset through it.
func (c CalibrationParams) Inverse() (CalibrationParams, error) {
	inv, det, err := invert3x3(c.Scale)
	if err != nil {
		return CalibrationParams{}, err
	}
	if math.Abs(det) < 1e-12 {
		return CalibrationParams{}, fmt.Errorf("%w: calibration scale matrix is singular", qerr.ErrConfig)
	}
	// C'.Apply(w) = inv.(w - o') must equal inv.w + offset, so
	// o' = -scale.offset.
	s, o := c.Scale, c.Offset
	return CalibrationParams{
		Offset: [3]float64{
			-(s[0][0]*o[0] + s[0][1]*o[1] + s[0][2]*o[2]),
			-(s[1][0]*o[0] + s[1][1]*o[1] + s[1][2]*o[2]),
			-(s[2][0]*o[0] + s[2][1]*o[1] + s[2][2]*o[2]),
		},
		Scale: inv,
	}, nil
}

// ApplyInverse undoes Apply: it returns v such that c.Apply(result) ==
// input, i.e. result = scale^-1 . input + offset.
func (c CalibrationParams) ApplyInverse(v MagneticVector) (MagneticVector, error) {
	inv, det, err := invert3x3(c.Scale)
	if err != nil {
		return MagneticVector{}, err
	}
	if math.Abs(det) < 1e-12 {
		return MagneticVector{}, fmt.Errorf("%w: calibration scale matrix is singular", qerr.ErrConfig)
	}
	d := [3]float64{
		inv[0][0]*v.Bx + inv[0][1]*v.By + inv[0][2]*v.Bz,
		inv[1][0]*v.Bx + inv[1][1]*v.By + inv[1][2]*v.Bz,
		inv[2][0]*v.Bx + inv[2][1]*v.By + inv[2][2]*v.Bz,
	}
	return MagneticVector{
		Bx: d[0] + c.Offset[0],
		By: d[1] + c.Offset[1],
		Bz: d[2] + c.Offset[2],
	}, nil
}

// invert3x3 inverts m via gonum's LU-based Dense.Inverse, returning
// the determinant alongside so callers can apply their own
// near-singular threshold.
func invert3x3(m [3][3]float64) (inv [3][3]float64, det float64, err error) {
	a := mat.NewDense(3, 3, []float64{
		m[0][0], m[0][1], m[0][2],
		m[1][0], m[1][1], m[1][2],
		m[2][0], m[2][1], m[2][2],
	})
	det = mat.Det(a)
	if det == 0 {
		return inv, 0, fmt.Errorf("%w: non-invertible calibration matrix", qerr.ErrConfig)
	}

	var ia mat.Dense
	if err := ia.Inverse(a); err != nil {
		return inv, det, fmt.Errorf("%w: non-invertible calibration matrix: %v", qerr.ErrConfig, err)
	}
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			inv[i][j] = ia.At(i, j)
		}
	}
	return inv, det, nil
}

// EllipsoidFit computes calibration parameters from the given samples.
// method "ellipsoid" fits a sphere |v-o| = r by linear least squares
// and returns its centre o as the offset with an identity scale; no
// soft-iron scale matrix (the A of (v-o)^T A (v-o) = 1) is estimated.
// method "simple" does per-axis mean-centring with unit scale.
func EllipsoidFit(samples []MagneticVector, method string) (CalibrationParams, error) {
	if len(samples) == 0 {
		return CalibrationParams{}, fmt.Errorf("%w: no calibration samples", qerr.ErrConfig)
	}

	switch method {
	case "simple", "":
		return simpleCalibration(samples), nil
	case "ellipsoid":
		return ellipsoidCalibration(samples)
	default:
		return CalibrationParams{}, fmt.Errorf("%w: unknown calibration method %q", qerr.ErrConfig, method)
	}
}

func simpleCalibration(samples []MagneticVector) CalibrationParams {
	var mx, my, mz float64
	for _, s := range samples {
		mx += s.Bx
		my += s.By
		mz += s.Bz
	}
	n := float64(len(samples))
	c := Identity()
	c.Offset = [3]float64{mx / n, my / n, mz / n}
	return c
}

// ellipsoidCalibration fits a sphere (axis-aligned ellipsoid with unit
// scale factors) to the samples by solving the linear system obtained
// from expanding |v-o|^2 = r^2 for the centre o in a least-squares
// sense — the standard closed-form used for hard-iron-only
// calibration. The returned scale is always the identity.
func ellipsoidCalibration(samples []MagneticVector) (CalibrationParams, error) {
	if len(samples) < 4 {
		return CalibrationParams{}, fmt.Errorf("%w: ellipsoid fit needs at least 4 samples, got %d", qerr.ErrConfig, len(samples))
	}

	// Normal equations for minimizing sum (|v|^2 - 2 o.v - (r^2-|o|^2))^2
	// over o (and the combined constant), i.e. solve A^T A x = A^T b
	// where each row is [2*Bx, 2*By, 2*Bz, 1] and b is |v|^2.
	var ata [4][4]float64
	var atb [4]float64

	for _, s := range samples {
		row := [4]float64{2 * s.Bx, 2 * s.By, 2 * s.Bz, 1}
		b := s.Bx*s.Bx + s.By*s.By + s.Bz*s.Bz
		for i := 0; i < 4; i++ {
			atb[i] += row[i] * b
			for j := 0; j < 4; j++ {
				ata[i][j] += row[i] * row[j]
			}
		}
	}

	x, err := solve4x4(ata, atb)
	if err != nil {
		return CalibrationParams{}, fmt.Errorf("%w: ellipsoid fit is ill-conditioned: %v", qerr.ErrConfig, err)
	}

	c := Identity()
	c.Offset = [3]float64{x[0], x[1], x[2]}
	return c, nil
}

// solve4x4 solves Ax=b via gonum's VecDense.SolveVec (LU with partial
// pivoting under the hood).
func solve4x4(a [4][4]float64, b [4]float64) ([4]float64, error) {
	flat := make([]float64, 16)
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			flat[i*4+j] = a[i][j]
		}
	}
	A := mat.NewDense(4, 4, flat)
	bv := mat.NewVecDense(4, b[:])

	var x mat.VecDense
	if err := x.SolveVec(A, bv); err != nil {
		return [4]float64{}, fmt.Errorf("singular matrix: %w", err)
	}

	var out [4]float64
	for i := 0; i < 4; i++ {
		out[i] = x.AtVec(i)
	}
	return out, nil
}
