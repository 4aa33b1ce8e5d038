package mapengine

import (
	"fmt"
	"math"
	"sync"

	"github.com/airbusgeo/godal"
	"github.com/ruvnet/quantum-magnetic-navigation/internal/qerr"
)

var godalInit sync.Once

// GeoTIFFLoader opens single-band GeoTIFF magnetic anomaly rasters via
// the GDAL bindings, the same path the corpus uses for elevation
// grids: a geotransform plus one readable band.
type GeoTIFFLoader struct{}

func NewGeoTIFFLoader() *GeoTIFFLoader {
	godalInit.Do(func() { godal.RegisterAll() })
	return &GeoTIFFLoader{}
}

func (l *GeoTIFFLoader) Load(path string) (RasterSource, error) {
	ds, err := godal.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", qerr.ErrMapIO, path, err)
	}

	bands := ds.Bands()
	if len(bands) == 0 {
		ds.Close()
		return nil, fmt.Errorf("%w: %s has no raster bands", qerr.ErrMapFormat, path)
	}

	gt := ds.GeoTransform()
	// GDAL geotransform: [0]=originX [1]=pxWidth [3]=originY [5]=pxHeight(neg for north-up)
	dlon := gt[1]
	dlat := gt[5]
	if dlon == 0 || dlat == 0 {
		ds.Close()
		return nil, fmt.Errorf("%w: %s has a degenerate geotransform", qerr.ErrMapFormat, path)
	}

	structure := ds.Structure()
	ncols := structure.SizeX
	nrows := structure.SizeY

	// GDAL's origin is the corner of cell (0,0); Header wants the
	// centre, so shift by half a pixel.
	lat0 := gt[3] + dlat/2
	lon0 := gt[0] + dlon/2

	h := Header{
		NRows:          nrows,
		NCols:          ncols,
		Lat0:           lat0,
		Lon0:           lon0,
		DLat:           dlat,
		DLon:           dlon,
		NodataSentinel: nodataOf(bands[0]),
	}

	return &GeoTIFFSource{ds: ds, band: bands[0], header: h}, nil
}

func nodataOf(b godal.Band) float32 {
	nd, ok := b.NoData()
	if !ok {
		return float32(math.NaN())
	}
	return float32(nd)
}

// GeoTIFFSource reads blocks directly off the open GDAL dataset. GDAL
// datasets are not safe for concurrent reads from multiple goroutines
// without external synchronization, so callers must serialize access
// per source (the tile cache does this by construction: one load in
// flight per key via single-flight).
type GeoTIFFSource struct {
	mu     sync.Mutex
	ds     *godal.Dataset
	band   godal.Band
	header Header
}

func (s *GeoTIFFSource) Header() Header { return s.header }

func (s *GeoTIFFSource) ReadBlock(row0, col0, nrows, ncols int) ([]float32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]float32, nrows*ncols)
	for i := range out {
		out[i] = float32(math.NaN())
	}

	// GDAL bands reject out-of-raster offsets, but tile reads
	// routinely request a one-cell margin past the grid edge for the
	// bicubic stencil; clip to the valid window and leave the rest NaN.
	readRow0 := row0
	readCol0 := col0
	readRows := nrows
	readCols := ncols
	destRowOff := 0
	destColOff := 0

	if readRow0 < 0 {
		readRows += readRow0
		destRowOff = -readRow0
		readRow0 = 0
	}
	if readCol0 < 0 {
		readCols += readCol0
		destColOff = -readCol0
		readCol0 = 0
	}
	if readRow0+readRows > s.header.NRows {
		readRows = s.header.NRows - readRow0
	}
	if readCol0+readCols > s.header.NCols {
		readCols = s.header.NCols - readCol0
	}
	if readRows <= 0 || readCols <= 0 {
		return out, nil
	}

	buf := make([]float32, readRows*readCols)
	if err := s.band.Read(readCol0, readRow0, buf, readCols, readRows); err != nil {
		return nil, fmt.Errorf("%w: read block at (%d,%d): %v", qerr.ErrMapIO, row0, col0, err)
	}

	nodata := s.header.NodataSentinel
	for i := 0; i < readRows; i++ {
		for j := 0; j < readCols; j++ {
			v := buf[i*readCols+j]
			if !math.IsNaN(float64(nodata)) && v == nodata {
				v = float32(math.NaN())
			}
			out[(destRowOff+i)*ncols+(destColOff+j)] = v
		}
	}
	return out, nil
}

func (s *GeoTIFFSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ds.Close()
}
