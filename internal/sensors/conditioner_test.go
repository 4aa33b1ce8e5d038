package sensors

import "testing"

func TestConditionerInvalidWindow(t *testing.T) {
	if _, err := NewConditioner(0, Identity()); err == nil {
		t.Fatal("expected config error for window size 0")
	}
	if _, err := NewConditioner(-1, Identity()); err == nil {
		t.Fatal("expected config error for negative window size")
	}
}

func TestConditionerMeanOverPartialWindow(t *testing.T) {
	c, err := NewConditioner(4, Identity())
	if err != nil {
		t.Fatalf("NewConditioner: %v", err)
	}

	got := c.Push(MagneticVector{Bx: 10, By: 0, Bz: 0})
	if got.Bx != 10 {
		t.Errorf("first push mean should equal the sample, got %v", got.Bx)
	}

	got = c.Push(MagneticVector{Bx: 20, By: 0, Bz: 0})
	if got.Bx != 15 {
		t.Errorf("mean over 2 samples: got %v want 15", got.Bx)
	}
}

func TestConditionerSlidesWindow(t *testing.T) {
	c, _ := NewConditioner(2, Identity())
	c.Push(MagneticVector{Bx: 10})
	c.Push(MagneticVector{Bx: 20})
	got := c.Push(MagneticVector{Bx: 30})
	// Window of 2: should average the last two pushes (20, 30).
	if got.Bx != 25 {
		t.Errorf("sliding mean: got %v want 25", got.Bx)
	}
	if c.Len() != 2 {
		t.Errorf("expected window full at 2, got %d", c.Len())
	}
}

func TestConditionerReset(t *testing.T) {
	c, _ := NewConditioner(3, Identity())
	c.Push(MagneticVector{Bx: 1})
	c.Push(MagneticVector{Bx: 2})
	c.Reset()
	if c.Len() != 0 {
		t.Errorf("expected empty ring after reset, got len %d", c.Len())
	}
	got := c.Push(MagneticVector{Bx: 99})
	if got.Bx != 99 {
		t.Errorf("first push after reset should equal sample, got %v", got.Bx)
	}
}

func TestConditionerAppliesCalibration(t *testing.T) {
	cal := Identity()
	cal.Offset = [3]float64{5, 0, 0}
	c, _ := NewConditioner(1, cal)
	got := c.Push(MagneticVector{Bx: 15, By: 0, Bz: 0})
	if got.Bx != 10 {
		t.Errorf("calibration offset not applied: got %v want 10", got.Bx)
	}
}
