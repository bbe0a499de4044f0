package geo

import "testing"

func TestHaversineIdentical(t *testing.T) {
	if d := HaversineKM(40.0, -105.0, 40.0, -105.0); d != 0 {
		t.Fatalf("expected 0 distance for identical points, got %f", d)
	}
	if b := InitialBearing(40.0, -105.0, 40.0, -105.0); b != 0 {
		t.Fatalf("expected 0 bearing for identical points, got %f", b)
	}
}

func TestHaversineOneDegreeEast(t *testing.T) {
	d := HaversineKM(0, 0, 0, 1)
	if d < 111.0 || d > 111.3 {
		t.Fatalf("expected ~111.19km, got %f", d)
	}
	b := InitialBearing(0, 0, 0, 1)
	if b != 90.0 {
		t.Fatalf("expected bearing 90.0, got %f", b)
	}
}

func TestBearingRange(t *testing.T) {
	b := InitialBearing(40, -105, 39, -106)
	if b < 0 || b >= 360 {
		t.Fatalf("bearing out of range: %f", b)
	}
}

func TestKMToMiles(t *testing.T) {
	if m := KMToMiles(1.609344); m < 0.99 || m > 1.01 {
		t.Fatalf("expected ~1 mile, got %f", m)
	}
}
