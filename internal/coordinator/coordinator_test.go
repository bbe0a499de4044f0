package coordinator

import (
	"testing"
	"time"

	"github.com/kg6wxc/aredn-meshpoller/internal/discovery"
	"github.com/kg6wxc/aredn-meshpoller/internal/meshnode"
)

func hops(n int) *int { return &n }

func TestFilterPollableSkipsUnknownHops(t *testing.T) {
	candidates := []discovery.Candidate{
		{IP: "10.0.0.1", Hops: hops(1)},
		{IP: "10.0.0.2", Hops: nil},
		{IP: "10.0.0.3", Hops: hops(2)},
	}
	got := filterPollable(candidates)
	if len(got) != 2 {
		t.Fatalf("expected 2 pollable candidates, got %d", len(got))
	}
	if got[0].IP != "10.0.0.1" || got[1].IP != "10.0.0.3" {
		t.Fatalf("unexpected pollable set: %+v", got)
	}
}

func TestCycleSecondsForFloorsAtOne(t *testing.T) {
	if got := cycleSecondsFor(0); got != 1 {
		t.Fatalf("expected floor of 1, got %v", got)
	}
	if got := cycleSecondsFor(-5 * time.Second); got != 1 {
		t.Fatalf("expected floor of 1 for negative duration, got %v", got)
	}
	if got := cycleSecondsFor(30 * time.Minute); got != 1800 {
		t.Fatalf("expected 1800 seconds, got %v", got)
	}
}

func TestStartDelaySpreadsEvenlyAcrossCycle(t *testing.T) {
	n := 10
	cycleSeconds := 100.0

	first := startDelay(0, n, cycleSeconds)
	if first != 0 {
		t.Fatalf("expected task 0 to start immediately, got %v", first)
	}

	last := startDelay(n-1, n, cycleSeconds)
	want := 90 * time.Second
	if last != want {
		t.Fatalf("expected last task delay %v, got %v", want, last)
	}
}

func TestStartDelayZeroTasksDoesNotPanic(t *testing.T) {
	if got := startDelay(0, 0, 60); got != 0 {
		t.Fatalf("expected zero delay for an empty pool, got %v", got)
	}
}

func TestArednRowsForProjectsKnownFields(t *testing.T) {
	nodes := map[string]meshnode.NodeRecord{
		"10.0.0.1": {
			WlanIP: "10.0.0.1", NodeName: "K1ABC-1", Lat: 37.1, Lon: -122.1,
			GridSquare: "CM87", Model: "mikrotik", FirmwareVersion: "3.25.5.0",
			HopsAway: hops(2),
		},
		"10.0.0.2": {
			WlanIP: "10.0.0.2", NodeName: "K1ABC-2", HopsAway: nil,
		},
	}

	rows := arednRowsFor(nodes)
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}

	byName := map[string]int{}
	for _, r := range rows {
		byName[r.NodeName] = r.HopsAway
	}
	if byName["K1ABC-1"] != 2 {
		t.Fatalf("expected hops_away 2 for K1ABC-1, got %d", byName["K1ABC-1"])
	}
	if byName["K1ABC-2"] != 0 {
		t.Fatalf("expected hops_away 0 for nil HopsAway, got %d", byName["K1ABC-2"])
	}
}

func TestShutdownSetsFlag(t *testing.T) {
	c := &Coordinator{}
	if c.shutdown.Load() {
		t.Fatal("expected shutdown flag to start false")
	}
	c.Shutdown()
	if !c.shutdown.Load() {
		t.Fatal("expected Shutdown to set the flag")
	}
}
