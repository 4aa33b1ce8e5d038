package mapengine

import (
	"fmt"

	"github.com/ruvnet/quantum-magnetic-navigation/internal/qerr"
)

// InterpMethod selects the interpolation kernel used by MagneticMap.
type InterpMethod string

const (
	Bilinear InterpMethod = "bilinear"
	Bicubic  InterpMethod = "bicubic"
)

// MagneticMap is the single entry point the rest of the service uses
// to query the magnetic anomaly field: open once, then call
// Interpolate as often as observations arrive. It owns no filter
// state and never blocks on the fusion lock.
type MagneticMap struct {
	source RasterSource
	header Header
	tiles  *TileCache
}

// Open loads path with loader and wraps it in a bounded tile cache.
// tileCacheSize is the number of tiles (not cells) retained; pass 0
// for the default.
func Open(loader Loader, path string, tileCacheSize int) (*MagneticMap, error) {
	src, err := loader.Load(path)
	if err != nil {
		return nil, err
	}
	tc, err := NewTileCache(src, tileCacheSize)
	if err != nil {
		src.Close()
		return nil, err
	}
	return &MagneticMap{source: src, header: src.Header(), tiles: tc}, nil
}

// OpenMemory wraps an already-resident grid, bypassing any loader; it
// is what tests and the trajectory simulator use to avoid touching
// disk.
func OpenMemory(h Header, data []float32, tileCacheSize int) (*MagneticMap, error) {
	src := NewMemoryRaster(h, data)
	tc, err := NewTileCache(src, tileCacheSize)
	if err != nil {
		return nil, err
	}
	return &MagneticMap{source: src, header: h, tiles: tc}, nil
}

// Header exposes the grid geometry, e.g. for a caller deciding where
// to seed a simulated trajectory.
func (m *MagneticMap) Header() Header { return m.header }

// Interpolate returns the magnetic anomaly value at (lat,lon) using
// method. A query outside the grid, or too close to its edge for the
// bilinear stencil, returns *qerr.OutOfMapError. Bicubic falls back
// to bilinear at cells too close to the grid edge for a full 4x4
// stencil, rather than failing a query the bilinear kernel could
// answer.
func (m *MagneticMap) Interpolate(lat, lon float64, method InterpMethod) (float64, error) {
	r, c := m.header.FractionalIndex(lat, lon)

	if !m.header.InBoundsForBilinear(r, c) {
		return 0, &qerr.OutOfMapError{Lat: lat, Lon: lon}
	}

	tile, err := m.tiles.tileFor(r, c)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", qerr.ErrMapIO, err)
	}

	switch method {
	case Bicubic:
		if m.header.InBoundsForBicubic(r, c) {
			return bicubicAt(tile.grid, r, c)
		}
		return bilinearAt(tile.grid, r, c)
	case Bilinear, "":
		return bilinearAt(tile.grid, r, c)
	default:
		return 0, fmt.Errorf("%w: unknown interpolation method %q", qerr.ErrConfig, method)
	}
}

// Close releases the underlying raster source.
func (m *MagneticMap) Close() error {
	return m.source.Close()
}

// Loader opens a raster file and returns the uniform-grid view of it.
type Loader interface {
	Load(path string) (RasterSource, error)
}
