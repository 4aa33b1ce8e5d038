package simulate

import "testing"

func planeField(lat, lon float64) float64 {
	return 1000 + 500*lat + 300*lon
}

func TestRunDeterministicForSameSeed(t *testing.T) {
	p := Params{
		StartLat: 0, StartLon: 0,
		EndLat: 1, EndLon: 1,
		SpeedMPS: 10, SampleRateHz: 1,
		NoiseStdDev: 2, Path: Straight, Seed: 7,
	}
	a, err := Run(p, planeField)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	b, err := Run(p, planeField)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(a) != len(b) {
		t.Fatalf("length mismatch: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("sample %d differs between runs with same seed: %+v vs %+v", i, a[i], b[i])
		}
	}
}

func TestRunDifferentSeedsDiverge(t *testing.T) {
	base := Params{
		StartLat: 0, StartLon: 0,
		EndLat: 1, EndLon: 1,
		SpeedMPS: 10, SampleRateHz: 1,
		NoiseStdDev: 5, Path: Straight,
	}
	p1, p2 := base, base
	p1.Seed, p2.Seed = 1, 2

	a, _ := Run(p1, planeField)
	b, _ := Run(p2, planeField)
	same := true
	for i := range a {
		if a[i].BNoisy != b[i].BNoisy {
			same = false
			break
		}
	}
	if same {
		t.Error("expected different seeds to produce different noise sequences")
	}
}

func TestRunStraightEndpointsMatch(t *testing.T) {
	p := Params{
		StartLat: 1, StartLon: 2,
		EndLat: 3, EndLon: 4,
		SpeedMPS: 5, SampleRateHz: 1,
		Path: Straight, Seed: 1,
	}
	samples, err := Run(p, planeField)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(samples) < 2 {
		t.Fatalf("expected at least 2 samples, got %d", len(samples))
	}
	first := samples[0]
	last := samples[len(samples)-1]
	if first.Lat != p.StartLat || first.Lon != p.StartLon {
		t.Errorf("first sample not at start: %+v", first)
	}
	if last.Lat != p.EndLat || last.Lon != p.EndLon {
		t.Errorf("last sample not at end: %+v", last)
	}
}

func TestRunRejectsInvalidConfig(t *testing.T) {
	p := Params{SampleRateHz: 0}
	if _, err := Run(p, planeField); err == nil {
		t.Error("expected config error for zero sample rate")
	}
	p2 := Params{SampleRateHz: 1, SpeedMPS: -1}
	if _, err := Run(p2, planeField); err == nil {
		t.Error("expected config error for negative speed")
	}
}

func TestRunNoiseFreeMatchesTruth(t *testing.T) {
	p := Params{
		StartLat: 0, StartLon: 0,
		EndLat: 1, EndLon: 0,
		SpeedMPS: 10, SampleRateHz: 2,
		Path: Straight, Seed: 3,
	}
	samples, err := Run(p, planeField)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	for _, s := range samples {
		if s.BNoisy != s.BTrue {
			t.Errorf("expected noiseless samples to match truth exactly, got %v vs %v", s.BNoisy, s.BTrue)
		}
	}
}
