package navservice

import (
	"errors"
	"sync"
	"testing"

	"github.com/ruvnet/quantum-magnetic-navigation/internal/fusion"
	"github.com/ruvnet/quantum-magnetic-navigation/internal/mapengine"
	"github.com/ruvnet/quantum-magnetic-navigation/internal/qerr"
	"github.com/ruvnet/quantum-magnetic-navigation/internal/sensors"
)

func planeGrid() (mapengine.Header, []float32) {
	h := mapengine.Header{
		NRows: 50, NCols: 50,
		Lat0: 0, Lon0: 0,
		DLat: 0.05, DLon: 0.05,
		NodataSentinel: -9999,
	}
	data := make([]float32, 50*50)
	for i := 0; i < 50; i++ {
		for j := 0; j < 50; j++ {
			lat := float64(i) * 0.05
			lon := float64(j) * 0.05
			data[i*50+j] = float32(1000 + 500*lat + 300*lon)
		}
	}
	return h, data
}

func newTestService(t *testing.T) *Service {
	t.Helper()
	h, data := planeGrid()
	m, err := mapengine.OpenMemory(h, data, 4)
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	ekf, err := fusion.New(fusion.DefaultConfig(), 1.0, 1.0)
	if err != nil {
		t.Fatalf("fusion.New: %v", err)
	}
	cond, err := sensors.NewConditioner(4, sensors.Identity())
	if err != nil {
		t.Fatalf("NewConditioner: %v", err)
	}
	return New(ekf, m, cond, mapengine.Bilinear, nil)
}

func TestObserveReturnsEstimate(t *testing.T) {
	svc := newTestService(t)
	est, err := svc.Observe(sensors.MagneticVector{Bx: 1000 + 500*1 + 300*1, By: 0, Bz: 0}, 1)
	if err != nil {
		t.Fatalf("Observe: %v", err)
	}
	if est.Lat == 0 && est.Lon == 0 {
		t.Error("expected a non-trivial estimate")
	}
}

func TestObserveWithoutMapFails(t *testing.T) {
	ekf, _ := fusion.New(fusion.DefaultConfig(), 0, 0)
	cond, _ := sensors.NewConditioner(1, sensors.Identity())
	svc := New(ekf, nil, cond, mapengine.Bilinear, nil)
	_, err := svc.Observe(sensors.MagneticVector{}, 1)
	if !errors.Is(err, qerr.ErrMapIO) {
		t.Errorf("expected ErrMapIO, got %v", err)
	}
}

func TestResetThenState(t *testing.T) {
	svc := newTestService(t)
	if err := svc.Reset(2, 3); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	st := svc.State()
	if st.Lat != 2 || st.Lon != 3 {
		t.Errorf("expected reset state, got %+v", st)
	}
}

func TestRecenterSeedsExactPosition(t *testing.T) {
	svc := newTestService(t)
	est, err := svc.Recenter(5, 6)
	if err != nil {
		t.Fatalf("Recenter: %v", err)
	}
	if est.Lat != 5 || est.Lon != 6 || est.VLat != 0 || est.VLon != 0 {
		t.Errorf("expected exact re-center with zero velocity, got %+v", est)
	}
	st := svc.State()
	if st.Lat != 5 || st.Lon != 6 {
		t.Errorf("Recenter did not persist into filter state, got %+v", st)
	}
}

func TestQueryFieldDoesNotBlockOnConcurrentObserve(t *testing.T) {
	svc := newTestService(t)
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		for i := 0; i < 20; i++ {
			svc.Observe(sensors.MagneticVector{Bx: 1400}, 0.1)
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 20; i++ {
			if _, err := svc.QueryField(1.0, 1.0, mapengine.Bilinear); err != nil {
				t.Errorf("QueryField: %v", err)
			}
		}
	}()
	wg.Wait()
}
