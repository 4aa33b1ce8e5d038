package mapengine

import (
	"errors"
	"sync"
	"testing"

	"github.com/ruvnet/quantum-magnetic-navigation/internal/qerr"
)

// grid5x5 builds a 5x5 raster where cell (i,j) = 10*i+j, so the value
// at row 2 col 3 is 23 and the block is easy to reason about by hand.
func grid5x5() (Header, []float32) {
	h := Header{
		NRows: 5, NCols: 5,
		Lat0: 0, Lon0: 0,
		DLat: 1, DLon: 1,
		NodataSentinel: -9999,
	}
	data := make([]float32, 25)
	for i := 0; i < 5; i++ {
		for j := 0; j < 5; j++ {
			data[i*5+j] = float32(10*i + j)
		}
	}
	return h, data
}

func TestInterpolateCellCentre(t *testing.T) {
	h, data := grid5x5()
	m, err := OpenMemory(h, data, 0)
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	defer m.Close()

	got, err := m.Interpolate(2.0, 3.0, Bilinear)
	if err != nil {
		t.Fatalf("Interpolate: %v", err)
	}
	if got != 23.0 {
		t.Errorf("cell-centre lookup: got %v want 23.0", got)
	}
}

func TestInterpolateMidpoint(t *testing.T) {
	h, data := grid5x5()
	m, err := OpenMemory(h, data, 0)
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	defer m.Close()

	// Midpoint between cell (2,3)=23 and cell (3,3)=33.
	got, err := m.Interpolate(2.5, 3.0, Bilinear)
	if err != nil {
		t.Fatalf("Interpolate: %v", err)
	}
	if got != 28.0 {
		t.Errorf("row midpoint: got %v want 28.0", got)
	}

	got, err = m.Interpolate(2.5, 3.5, Bilinear)
	if err != nil {
		t.Fatalf("Interpolate: %v", err)
	}
	if got != 28.5 {
		t.Errorf("diagonal midpoint: got %v want 28.5", got)
	}
}

func TestInterpolateOutOfMap(t *testing.T) {
	h, data := grid5x5()
	m, err := OpenMemory(h, data, 0)
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	defer m.Close()

	_, err = m.Interpolate(-0.1, 0, Bilinear)
	if err == nil {
		t.Fatal("expected out-of-map error just past the border")
	}
	var oob *qerr.OutOfMapError
	if !errors.As(err, &oob) {
		t.Errorf("expected *qerr.OutOfMapError, got %T: %v", err, err)
	}
	if !errors.Is(err, qerr.ErrOutOfMap) {
		t.Error("expected errors.Is to match qerr.ErrOutOfMap")
	}
}

func TestInterpolateBicubicFallsBackAtEdge(t *testing.T) {
	h, data := grid5x5()
	m, err := OpenMemory(h, data, 0)
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	defer m.Close()

	// (0.5, 0.5) has a valid bilinear stencil but no room for a 4x4
	// Catmull-Rom stencil; bicubic must degrade to bilinear instead of
	// erroring.
	got, err := m.Interpolate(0.5, 0.5, Bicubic)
	if err != nil {
		t.Fatalf("Interpolate bicubic near edge: %v", err)
	}
	want, err := m.Interpolate(0.5, 0.5, Bilinear)
	if err != nil {
		t.Fatalf("Interpolate bilinear: %v", err)
	}
	if got != want {
		t.Errorf("edge bicubic fallback: got %v want %v (bilinear)", got, want)
	}
}

func TestInterpolateBicubicInterior(t *testing.T) {
	h, data := grid5x5()
	m, err := OpenMemory(h, data, 0)
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	defer m.Close()

	// The surface is an exact plane (10i + j), so bicubic and
	// bilinear must agree at an interior point.
	bc, err := m.Interpolate(2.0, 2.0, Bicubic)
	if err != nil {
		t.Fatalf("bicubic: %v", err)
	}
	bl, err := m.Interpolate(2.0, 2.0, Bilinear)
	if err != nil {
		t.Fatalf("bilinear: %v", err)
	}
	if diff := bc - bl; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("bicubic vs bilinear on a plane: got %v vs %v", bc, bl)
	}
}

// countingRaster wraps a RasterSource and counts ReadBlock calls, to
// verify single-flight coalescing of concurrent cold-tile misses.
type countingRaster struct {
	RasterSource
	mu    sync.Mutex
	calls int
}

func (c *countingRaster) ReadBlock(row0, col0, nrows, ncols int) ([]float32, error) {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
	return c.RasterSource.ReadBlock(row0, col0, nrows, ncols)
}

func TestTileCacheSingleFlight(t *testing.T) {
	h := Header{NRows: 200, NCols: 200, Lat0: 0, Lon0: 0, DLat: 1, DLon: 1, NodataSentinel: -9999}
	data := make([]float32, 200*200)
	for i := range data {
		data[i] = float32(i)
	}
	underlying := &countingRaster{RasterSource: NewMemoryRaster(h, data)}

	tc, err := NewTileCache(underlying, 8)
	if err != nil {
		t.Fatalf("NewTileCache: %v", err)
	}

	const n = 32
	var wg sync.WaitGroup
	wg.Add(n)
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			if _, err := tc.tileFor(10.0, 10.0); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("tileFor: %v", err)
	}

	underlying.mu.Lock()
	calls := underlying.calls
	underlying.mu.Unlock()
	if calls != 1 {
		t.Errorf("expected exactly 1 ReadBlock call for a shared cold tile, got %d", calls)
	}
}
