package toolserver

import (
	"encoding/json"
	"testing"

	"github.com/ruvnet/quantum-magnetic-navigation/internal/fusion"
	"github.com/ruvnet/quantum-magnetic-navigation/internal/mapengine"
	"github.com/ruvnet/quantum-magnetic-navigation/internal/navservice"
	"github.com/ruvnet/quantum-magnetic-navigation/internal/sensors"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	h := mapengine.Header{NRows: 10, NCols: 10, Lat0: 0, Lon0: 0, DLat: 1, DLon: 1, NodataSentinel: -9999}
	data := make([]float32, 100)
	for i := range data {
		data[i] = float32(i)
	}
	m, err := mapengine.OpenMemory(h, data, 4)
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	ekf, err := fusion.New(fusion.DefaultConfig(), 2, 2)
	if err != nil {
		t.Fatalf("fusion.New: %v", err)
	}
	cond, _ := sensors.NewConditioner(4, sensors.Identity())
	svc := navservice.New(ekf, m, cond, mapengine.Bilinear, nil)
	return New(svc)
}

func args(t *testing.T, v interface{}) json.RawMessage {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal args: %v", err)
	}
	return b
}

func TestQueryMagneticField(t *testing.T) {
	s := newTestServer(t)
	result, errPayload := s.Dispatch(Envelope{
		Operation: "query_magnetic_field",
		Args:      args(t, queryFieldArgs{Latitude: 2, Longitude: 2, InterpolationMethod: "bilinear"}),
	})
	if errPayload != nil {
		t.Fatalf("unexpected error: %+v", errPayload)
	}
	if result == nil {
		t.Fatal("expected a result")
	}
}

func TestQueryMagneticFieldOutOfMap(t *testing.T) {
	s := newTestServer(t)
	_, errPayload := s.Dispatch(Envelope{
		Operation: "query_magnetic_field",
		Args:      args(t, queryFieldArgs{Latitude: 999, Longitude: 999}),
	})
	if errPayload == nil {
		t.Fatal("expected an out-of-map error")
	}
	if errPayload.Kind != "OutOfMapError" {
		t.Errorf("expected OutOfMapError, got %s", errPayload.Kind)
	}
}

func TestEstimatePosition(t *testing.T) {
	s := newTestServer(t)
	_, errPayload := s.Dispatch(Envelope{
		Operation: "estimate_position",
		Args:      args(t, estimatePositionArgs{MagneticField: 5}),
	})
	if errPayload != nil {
		t.Fatalf("unexpected error: %+v", errPayload)
	}
}

func TestCalibrateSensor(t *testing.T) {
	s := newTestServer(t)
	result, errPayload := s.Dispatch(Envelope{
		Operation: "calibrate_sensor",
		Args: args(t, calibrateSensorArgs{
			Samples: [][3]float64{{10, 10, 10}, {20, 0, 20}, {30, -10, 0}},
			Method:  "simple",
		}),
	})
	if errPayload != nil {
		t.Fatalf("unexpected error: %+v", errPayload)
	}
	if result == nil {
		t.Fatal("expected a result")
	}
}

func TestUnknownOperation(t *testing.T) {
	s := newTestServer(t)
	_, errPayload := s.Dispatch(Envelope{Operation: "bogus"})
	if errPayload == nil {
		t.Fatal("expected error for unknown operation")
	}
}

func TestSimulateTrajectory(t *testing.T) {
	s := newTestServer(t)
	result, errPayload := s.Dispatch(Envelope{
		Operation: "simulate_trajectory",
		Args: args(t, simulateTrajectoryArgs{
			Start: [2]float64{1, 1}, End: [2]float64{3, 3},
			Speed: 5, SampleRate: 1, NoiseLevel: 0.5, PathType: "straight",
		}),
	})
	if errPayload != nil {
		t.Fatalf("unexpected error: %+v", errPayload)
	}
	if result == nil {
		t.Fatal("expected a result")
	}
}
