package sensors

import (
	"math"
	"testing"
)

func TestIdentityApplyIsNoop(t *testing.T) {
	c := Identity()
	v := MagneticVector{Bx: 10, By: -5, Bz: 3}
	got := c.Apply(v)
	if got != v {
		t.Errorf("identity apply changed value: %+v", got)
	}
}

func TestApplyInverseRoundTrip(t *testing.T) {
	c := CalibrationParams{
		Offset: [3]float64{5, -3, 2},
		Scale: [3][3]float64{
			{1.1, 0.02, 0},
			{0.01, 0.9, 0.01},
			{0, 0.02, 1.05},
		},
	}
	v := MagneticVector{Bx: 120, By: -45, Bz: 88}
	applied := c.Apply(v)
	back, err := c.ApplyInverse(applied)
	if err != nil {
		t.Fatalf("ApplyInverse: %v", err)
	}
	if math.Abs(back.Bx-v.Bx) > 1e-6*math.Abs(v.Bx)+1e-9 {
		t.Errorf("Bx round trip: got %v want %v", back.Bx, v.Bx)
	}
	if math.Abs(back.By-v.By) > 1e-6*math.Abs(v.By)+1e-9 {
		t.Errorf("By round trip: got %v want %v", back.By, v.By)
	}
	if math.Abs(back.Bz-v.Bz) > 1e-6*math.Abs(v.Bz)+1e-9 {
		t.Errorf("Bz round trip: got %v want %v", back.Bz, v.Bz)
	}
}

func TestSimpleCalibration(t *testing.T) {
	samples := []MagneticVector{
		{Bx: 10, By: 10, Bz: 10},
		{Bx: 20, By: 0, Bz: 20},
		{Bx: 30, By: -10, Bz: 0},
	}
	c, err := EllipsoidFit(samples, "simple")
	if err != nil {
		t.Fatalf("EllipsoidFit: %v", err)
	}
	if c.Offset[0] != 20 || c.Offset[1] != 0 {
		t.Errorf("unexpected offset: %+v", c.Offset)
	}
}

func TestEllipsoidFitNeedsSamples(t *testing.T) {
	if _, err := EllipsoidFit([]MagneticVector{{Bx: 1}}, "ellipsoid"); err == nil {
		t.Fatal("expected config error for too few samples")
	}
}

func TestUnknownMethod(t *testing.T) {
	if _, err := EllipsoidFit([]MagneticVector{{Bx: 1}}, "bogus"); err == nil {
		t.Fatal("expected config error for unknown method")
	}
}

func TestTotal(t *testing.T) {
	v := MagneticVector{Bx: 3, By: 4, Bz: 0}
	if v.Total() != 5 {
		t.Errorf("expected |B|=5, got %v", v.Total())
	}
}
