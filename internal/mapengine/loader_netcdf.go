package mapengine

import (
	"fmt"
	"math"
	"sync"

	"github.com/fhs/go-netcdf/netcdf"
	"github.com/ruvnet/quantum-magnetic-navigation/internal/qerr"
)

// NetCDFLoader opens gridded magnetic anomaly products distributed as
// NetCDF classic files: a lat dimension, a lon dimension, and a 2-D
// data variable indexed by some permutation of the two.
type NetCDFLoader struct {
	LatVar, LonVar, DataVar string
}

// NewNetCDFLoader returns a loader using the conventional variable
// names; override the fields for products that name them differently.
func NewNetCDFLoader() *NetCDFLoader {
	return &NetCDFLoader{LatVar: "lat", LonVar: "lon", DataVar: "z"}
}

func (l *NetCDFLoader) Load(path string) (RasterSource, error) {
	nc, err := netcdf.OpenFile(path, netcdf.NOWRITE)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", qerr.ErrMapIO, path, err)
	}

	lat, err := readCoordVar(nc, l.LatVar)
	if err != nil {
		nc.Close()
		return nil, err
	}
	lon, err := readCoordVar(nc, l.LonVar)
	if err != nil {
		nc.Close()
		return nil, err
	}

	dlat, err := monotonicStep(lat)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("%w: lat dimension: %v", qerr.ErrMapFormat, err)
	}
	dlon, err := monotonicStep(lon)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("%w: lon dimension: %v", qerr.ErrMapFormat, err)
	}

	v, err := nc.Var(l.DataVar)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("%w: variable %s: %v", qerr.ErrMapFormat, l.DataVar, err)
	}
	dims, err := v.Dims()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("%w: %v", qerr.ErrMapFormat, err)
	}
	if len(dims) != 2 {
		nc.Close()
		return nil, fmt.Errorf("%w: %s is %d-dimensional, want 2", qerr.ErrMapFormat, l.DataVar, len(dims))
	}

	latFirst, err := dimOrderIsLatLon(dims, len(lat), len(lon))
	if err != nil {
		nc.Close()
		return nil, err
	}

	h := Header{
		NRows:          len(lat),
		NCols:          len(lon),
		Lat0:           lat[0],
		Lon0:           lon[0],
		DLat:           dlat,
		DLon:           dlon,
		NodataSentinel: float32(math.NaN()),
	}

	return &NetCDFSource{nc: nc, v: v, header: h, latFirst: latFirst}, nil
}

func readCoordVar(nc netcdf.Dataset, name string) ([]float64, error) {
	v, err := nc.Var(name)
	if err != nil {
		return nil, fmt.Errorf("%w: coordinate %s: %v", qerr.ErrMapFormat, name, err)
	}
	dims, err := v.Dims()
	if err != nil || len(dims) != 1 {
		return nil, fmt.Errorf("%w: coordinate %s is not 1-dimensional", qerr.ErrMapFormat, name)
	}
	n, err := dims[0].Len()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", qerr.ErrMapFormat, err)
	}
	vals := make([]float64, n)
	if err := v.ReadFloat64s(vals); err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", qerr.ErrMapIO, name, err)
	}
	return vals, nil
}

// monotonicStep validates that coord is strictly monotonic with a
// uniform step (within 1e-9 relative tolerance) and returns that step,
// signed to match the coordinate's direction.
func monotonicStep(coord []float64) (float64, error) {
	if len(coord) < 2 {
		return 0, fmt.Errorf("need at least 2 samples, got %d", len(coord))
	}
	step := coord[1] - coord[0]
	if step == 0 {
		return 0, fmt.Errorf("zero step between samples")
	}
	for i := 2; i < len(coord); i++ {
		d := coord[i] - coord[i-1]
		tol := 1e-9 * math.Abs(step)
		if math.Abs(d-step) > tol {
			return 0, fmt.Errorf("non-uniform step at index %d: %v vs %v", i, d, step)
		}
	}
	return step, nil
}

// dimOrderIsLatLon reports whether the data variable's first axis
// matches the lat dimension's length (lat-major), as opposed to a
// lon-major layout; products disagree on this and the loader must not
// assume one way.
func dimOrderIsLatLon(dims []netcdf.Dim, nlat, nlon int) (bool, error) {
	d0, err := dims[0].Len()
	if err != nil {
		return false, fmt.Errorf("%w: %v", qerr.ErrMapFormat, err)
	}
	d1, err := dims[1].Len()
	if err != nil {
		return false, fmt.Errorf("%w: %v", qerr.ErrMapFormat, err)
	}
	switch {
	case int(d0) == nlat && int(d1) == nlon:
		return true, nil
	case int(d0) == nlon && int(d1) == nlat:
		return false, nil
	default:
		return false, fmt.Errorf("%w: data shape (%d,%d) matches neither (lat=%d,lon=%d) nor its transpose",
			qerr.ErrMapFormat, d0, d1, nlat, nlon)
	}
}

// NetCDFSource reads blocks from the open dataset one cell at a time,
// swapping the (row,col) index order when the file stores
// lon-major-first.
type NetCDFSource struct {
	mu       sync.Mutex
	nc       netcdf.Dataset
	v        netcdf.Var
	header   Header
	latFirst bool
}

func (s *NetCDFSource) Header() Header { return s.header }

func (s *NetCDFSource) ReadBlock(row0, col0, nrows, ncols int) ([]float32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]float32, nrows*ncols)
	for i := 0; i < nrows; i++ {
		row := row0 + i
		if row < 0 || row >= s.header.NRows {
			for j := 0; j < ncols; j++ {
				out[i*ncols+j] = float32(math.NaN())
			}
			continue
		}
		for j := 0; j < ncols; j++ {
			col := col0 + j
			if col < 0 || col >= s.header.NCols {
				out[i*ncols+j] = float32(math.NaN())
				continue
			}
			v, err := s.readCell(row, col)
			if err != nil {
				return nil, err
			}
			out[i*ncols+j] = v
		}
	}
	return out, nil
}

func (s *NetCDFSource) readCell(row, col int) (float32, error) {
	var buf [1]float64
	var start, count []uint64
	if s.latFirst {
		start = []uint64{uint64(row), uint64(col)}
	} else {
		start = []uint64{uint64(col), uint64(row)}
	}
	count = []uint64{1, 1}

	if err := s.v.ReadFloat64Slice(buf[:], start, count); err != nil {
		return 0, fmt.Errorf("%w: read cell (%d,%d): %v", qerr.ErrMapIO, row, col, err)
	}
	if math.IsNaN(buf[0]) {
		return float32(math.NaN()), nil
	}
	return float32(buf[0]), nil
}

func (s *NetCDFSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nc.Close()
}
