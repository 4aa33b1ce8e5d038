package geo

import (
	"math"
	"testing"
)

func TestNewValidation(t *testing.T) {
	if _, err := New(91, 0); err == nil {
		t.Fatal("expected domain error for lat>90")
	}
	if _, err := New(0, 181); err == nil {
		t.Fatal("expected domain error for lon>180")
	}
	if _, err := New(math.NaN(), 0); err == nil {
		t.Fatal("expected domain error for NaN")
	}
	if _, err := New(45, 45); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestECEFRoundTrip(t *testing.T) {
	cases := []struct{ lat, lon float64 }{
		{0, 0}, {45, 45}, {-45, -120}, {60, 170}, {-60, -170}, {89, 0}, {-89.5, 179},
	}
	for _, c := range cases {
		in, err := New(c.lat, c.lon)
		if err != nil {
			t.Fatalf("New(%v,%v): %v", c.lat, c.lon, err)
		}
		p := ToECEF(in)
		out, err := FromECEF(p)
		if err != nil {
			t.Fatalf("FromECEF: %v", err)
		}
		if math.Abs(out.Lat()-in.Lat()) > 1e-6 {
			t.Errorf("lat round trip: got %v want %v", out.Lat(), in.Lat())
		}
		if math.Abs(out.Lon()-in.Lon()) > 1e-6 {
			t.Errorf("lon round trip: got %v want %v", out.Lon(), in.Lon())
		}
	}
}

func TestDistanceMZero(t *testing.T) {
	a, _ := New(10, 10)
	if d := DistanceM(a, a); d != 0 {
		t.Errorf("distance to self should be 0, got %v", d)
	}
}

func TestDistanceMKnown(t *testing.T) {
	// One degree of latitude is roughly 111 km.
	a, _ := New(0, 0)
	b, _ := New(1, 0)
	d := DistanceM(a, b)
	if d < 110000 || d > 112000 {
		t.Errorf("expected ~111km, got %v", d)
	}
}

func TestEqual(t *testing.T) {
	a, _ := New(1, 2)
	b, _ := New(1, 2)
	c, _ := New(1, 3)
	if !a.Equal(b) {
		t.Error("expected equal")
	}
	if a.Equal(c) {
		t.Error("expected not equal")
	}
}
