package mapengine

import (
	"math"

	"github.com/ruvnet/quantum-magnetic-navigation/internal/qerr"
)

// gridValue is the minimal surface an interpolator needs from a tile:
// random access to a cell value by (row,col), already NaN for nodata.
type gridValue interface {
	at(row, col int) float32
}

// blockGrid adapts a flat row-major block, as returned by
// RasterSource.ReadBlock, into a gridValue addressed by absolute
// (row,col) coordinates.
type blockGrid struct {
	row0, col0   int
	nrows, ncols int
	data         []float32
}

func (b blockGrid) at(row, col int) float32 {
	r := row - b.row0
	c := col - b.col0
	if r < 0 || r >= b.nrows || c < 0 || c >= b.ncols {
		return float32(math.NaN())
	}
	return b.data[r*b.ncols+c]
}

// bilinearAt interpolates the value at fractional indices (r,c) from
// the four surrounding cells. The caller must have already checked
// Header.InBoundsForBilinear.
func bilinearAt(g gridValue, r, c float64) (float64, error) {
	r0 := math.Floor(r)
	c0 := math.Floor(c)
	fr := r - r0
	fc := c - c0
	ri, ci := int(r0), int(c0)

	v00 := g.at(ri, ci)
	v01 := g.at(ri, ci+1)
	v10 := g.at(ri+1, ci)
	v11 := g.at(ri+1, ci+1)

	if isNaN32(v00) || isNaN32(v01) || isNaN32(v10) || isNaN32(v11) {
		return math.NaN(), nil
	}

	top := float64(v00)*(1-fc) + float64(v01)*fc
	bot := float64(v10)*(1-fc) + float64(v11)*fc
	val := top*(1-fr) + bot*fr

	if math.IsNaN(val) || math.IsInf(val, 0) {
		return 0, qerr.ErrNumeric
	}
	return val, nil
}

// bicubicAt interpolates via Catmull-Rom splines over the 4x4 stencil
// centred between (r0,c0) and (r0+1,c0+1). The caller must have
// already checked Header.InBoundsForBicubic; any nodata cell in the
// stencil falls back to bilinear rather than propagating NaN, since a
// single missing corner cell should not blank out an otherwise valid
// neighbourhood.
func bicubicAt(g gridValue, r, c float64) (float64, error) {
	r0 := math.Floor(r)
	c0 := math.Floor(c)
	fr := r - r0
	fc := c - c0
	ri, ci := int(r0), int(c0)

	var rows [4]float64
	degraded := false
	for i := -1; i <= 2; i++ {
		var cols [4]float64
		for j := -1; j <= 2; j++ {
			v := g.at(ri+i, ci+j)
			if isNaN32(v) {
				degraded = true
				v = 0
			}
			cols[j+1] = float64(v)
		}
		rows[i+1] = catmullRom(cols[0], cols[1], cols[2], cols[3], fc)
	}

	if degraded {
		return bilinearAt(g, r, c)
	}

	val := catmullRom(rows[0], rows[1], rows[2], rows[3], fr)
	if math.IsNaN(val) || math.IsInf(val, 0) {
		return 0, qerr.ErrNumeric
	}
	return val, nil
}

// catmullRom evaluates the uniform Catmull-Rom spline through
// (p0,p1,p2,p3) at parameter t in [0,1], with p1 and p2 as endpoints.
func catmullRom(p0, p1, p2, p3, t float64) float64 {
	a0 := -0.5*p0 + 1.5*p1 - 1.5*p2 + 0.5*p3
	a1 := p0 - 2.5*p1 + 2*p2 - 0.5*p3
	a2 := -0.5*p0 + 0.5*p2
	a3 := p1
	return ((a0*t+a1)*t+a2)*t + a3
}

func isNaN32(v float32) bool { return v != v }
