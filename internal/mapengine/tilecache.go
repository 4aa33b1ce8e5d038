package mapengine

import (
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"
)

// tileSpan is the fixed side length, in grid cells, of a cached tile.
// A tile must be large enough to hold the bicubic stencil (4 cells)
// plus margin for a query that falls near its edge.
const tileSpan = 64

// tileKey identifies a tile by its origin; two lookups whose fractional
// indices floor to the same tile origin share one cache entry.
type tileKey struct {
	row0, col0 int
}

// TileCache wraps a RasterSource with a bounded LRU of decoded tiles
// and single-flight coalescing so that N concurrent misses on the
// same cold tile trigger exactly one ReadBlock call. A load failure is
// never cached: the next query retries rather than being pinned to a
// transient I/O error.
type TileCache struct {
	source RasterSource
	header Header

	cache *lru.Cache[tileKey, *cachedTile]
	group singleflight.Group
}

type cachedTile struct {
	meta TileMetadata
	grid blockGrid
}

// NewTileCache wraps source with an LRU of at most capacity tiles.
func NewTileCache(source RasterSource, capacity int) (*TileCache, error) {
	if capacity <= 0 {
		capacity = 16
	}
	c, err := lru.New[tileKey, *cachedTile](capacity)
	if err != nil {
		return nil, fmt.Errorf("create tile cache: %w", err)
	}
	return &TileCache{source: source, header: source.Header(), cache: c}, nil
}

// tileFor returns the cached tile covering fractional indices (r,c),
// loading and inserting it on a miss. Concurrent misses for the same
// tile key share one ReadBlock call via single-flight.
func (tc *TileCache) tileFor(r, c float64) (*cachedTile, error) {
	ri := int(r)
	ci := int(c)
	row0 := (ri / tileSpan) * tileSpan
	col0 := (ci / tileSpan) * tileSpan
	if r < 0 {
		row0 -= tileSpan
	}
	if c < 0 {
		col0 -= tileSpan
	}
	key := tileKey{row0: row0, col0: col0}

	if t, ok := tc.cache.Get(key); ok {
		return t, nil
	}

	keyStr := fmt.Sprintf("%d:%d", key.row0, key.col0)
	v, err, _ := tc.group.Do(keyStr, func() (interface{}, error) {
		if t, ok := tc.cache.Get(key); ok {
			return t, nil
		}
		nrows := clampTileExtent(row0, tc.header.NRows)
		ncols := clampTileExtent(col0, tc.header.NCols)
		// Margin for the bicubic stencil: 1 row/col before the tile and
		// 2 after it. Origins may be negative (or the block may run past
		// the grid); ReadBlock returns NaN for cells outside the grid.
		origin0 := row0 - 1
		origin1 := col0 - 1
		extra := 3
		data, err := tc.source.ReadBlock(origin0, origin1, nrows+extra, ncols+extra)
		if err != nil {
			return nil, err
		}
		t := &cachedTile{
			meta: TileMetadata{Row0: row0, Col0: col0, NRows: nrows, NCols: ncols},
			grid: blockGrid{row0: origin0, col0: origin1, nrows: nrows + extra, ncols: ncols + extra, data: data},
		}
		tc.cache.Add(key, t)
		return t, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*cachedTile), nil
}

func clampTileExtent(origin, total int) int {
	if origin+tileSpan > total {
		n := total - origin
		if n < 0 {
			return 0
		}
		return n
	}
	return tileSpan
}

// Len reports the number of tiles currently resident, for tests and
// diagnostics.
func (tc *TileCache) Len() int { return tc.cache.Len() }
