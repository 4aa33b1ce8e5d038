// Package mapengine loads a gridded magnetic anomaly raster, caches
// sub-grid tiles, and answers interpolated lookups with well-defined
// out-of-bounds semantics. It combines a loader (GeoTIFF or NetCDF), a
// bilinear/bicubic interpolator, and a bounded single-flight tile
// cache behind one Interpolate call.
package mapengine

import "math"

// Header describes a regular lat/lon grid whose cell (i,j) is centred
// at (lat0 + i*dlat, lon0 + j*dlon). dlat/dlon may be negative for
// north-up rasters.
type Header struct {
	NRows, NCols   int
	Lat0, Lon0     float64
	DLat, DLon     float64
	NodataSentinel float32
}

// FractionalIndex maps a lat/lon to fractional grid indices (r, c).
func (h Header) FractionalIndex(lat, lon float64) (r, c float64) {
	return (lat - h.Lat0) / h.DLat, (lon - h.Lon0) / h.DLon
}

// CellCenter returns the lat/lon at the centre of cell (i,j).
func (h Header) CellCenter(i, j int) (lat, lon float64) {
	return h.Lat0 + float64(i)*h.DLat, h.Lon0 + float64(j)*h.DLon
}

// InBoundsForBilinear reports whether the bilinear stencil around
// fractional indices (r,c) fits strictly inside the grid.
func (h Header) InBoundsForBilinear(r, c float64) bool {
	r0 := math.Floor(r)
	c0 := math.Floor(c)
	return r0 >= 0 && r0+1 < float64(h.NRows) && c0 >= 0 && c0+1 < float64(h.NCols)
}

// InBoundsForBicubic reports whether the 4x4 Catmull-Rom stencil
// around fractional indices (r,c) fits strictly inside the grid.
func (h Header) InBoundsForBicubic(r, c float64) bool {
	r0 := math.Floor(r)
	c0 := math.Floor(c)
	return r0-1 >= 0 && r0+2 < float64(h.NRows) && c0-1 >= 0 && c0+2 < float64(h.NCols)
}

// TileMetadata is a sub-rectangle of a Header.
type TileMetadata struct {
	Row0, Col0   int
	NRows, NCols int
}

// Contains reports whether the bilinear interpolation stencil for
// (lat,lon) fits strictly inside this tile.
func (t TileMetadata) Contains(h Header, lat, lon float64) bool {
	r, c := h.FractionalIndex(lat, lon)
	r0 := int(math.Floor(r))
	c0 := int(math.Floor(c))
	return r0 >= t.Row0 && r0+1 < t.Row0+t.NRows &&
		c0 >= t.Col0 && c0+1 < t.Col0+t.NCols
}
