package firmware

import (
	"testing"
	"time"
)

func TestVersionToOrder(t *testing.T) {
	order, ok := VersionToOrder("3.25.5.0")
	if !ok || order != 3_250_500 {
		t.Fatalf("got order=%d ok=%v, want 3250500 true", order, ok)
	}

	short, ok := VersionToOrder("3.25.5")
	if !ok || short != order {
		t.Fatalf("3.25.5 = %d, want %d (same as 3.25.5.0)", short, order)
	}

	if _, ok := VersionToOrder("garbage"); ok {
		t.Fatalf("expected garbage to be malformed")
	}

	if _, ok := VersionToOrder(""); ok {
		t.Fatalf("expected empty string to be malformed")
	}
}

func TestNightlyToOrder(t *testing.T) {
	order, ok := NightlyToOrder("20250601-abcdef1")
	if !ok || order != 20250601 {
		t.Fatalf("got order=%d ok=%v, want 20250601 true", order, ok)
	}
	if _, ok := NightlyToOrder("not-a-date"); ok {
		t.Fatalf("expected malformed nightly to fail")
	}
}

func TestClassify(t *testing.T) {
	cutoff := 3_250_500

	if !Classify("babel-20250601-abcdef1", "babel", cutoff, 20250507) {
		t.Fatalf("expected babel version to classify as babel")
	}

	if Classify("3.25.5.0", "olsr", cutoff, 20250507) {
		t.Fatalf("expected 3.25.5.0 to NOT be olsr (not strictly below cutoff)")
	}

	if !Classify("3.25.4.0", "olsr", cutoff, 20250507) {
		t.Fatalf("expected 3.25.4.0 to be olsr (strictly below cutoff)")
	}

	if !Classify("3.25.5.0", "combo", cutoff, 20250507) {
		t.Fatalf("expected 3.25.5.0 to be combo (>= cutoff)")
	}

	if Classify("babel-20250601-abcdef1", "combo", cutoff, 20250507) {
		t.Fatalf("babel versions must never classify as combo")
	}

	if Classify("not.a.version", "olsr", cutoff, 20250507) {
		t.Fatalf("malformed version must not classify")
	}
}

func TestDetermineProtocol(t *testing.T) {
	now := time.Now()
	weekAgo := now.Add(-8 * 24 * time.Hour)

	if p := DetermineProtocol("3.25.5.0", &weekAgo, 7*24*time.Hour, 3_250_500, 20250507); p != Unknown {
		t.Fatalf("expected Unknown for stale node, got %s", p)
	}

	if p := DetermineProtocol("3.25.5.0", nil, 7*24*time.Hour, 3_250_500, 20250507); p != Unknown {
		t.Fatalf("expected Unknown for absent last_seen, got %s", p)
	}

	recent := now.Add(-time.Minute)
	if p := DetermineProtocol("3.25.5.0", &recent, 7*24*time.Hour, 3_250_500, 20250507); p != Combo {
		t.Fatalf("expected Combo for recent >=cutoff version, got %s", p)
	}

	if p := DetermineProtocol("babel-20250601-abcdef1", &recent, 7*24*time.Hour, 3_250_500, 20250507); p != Babel {
		t.Fatalf("expected Babel, got %s", p)
	}
}
