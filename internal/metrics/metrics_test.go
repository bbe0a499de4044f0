package metrics

import (
	"testing"

	dto "github.com/prometheus/client_model/go"

	"github.com/kg6wxc/aredn-meshpoller/internal/meshnode"
)

func gaugeValue(t *testing.T, g interface{ Write(*dto.Metric) error }) float64 {
	t.Helper()
	var m dto.Metric
	if err := g.Write(&m); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if m.Gauge != nil {
		return m.Gauge.GetValue()
	}
	if m.Counter != nil {
		return m.Counter.GetValue()
	}
	return 0
}

func TestObserveCycleUpdatesGauges(t *testing.T) {
	m := New()
	m.ObserveCycle(meshnode.CycleStats{
		CandidateCount: 10, MappableNodes: 8, MappableLinks: 20,
		CycleDurationSeconds: 5.5, BabelCount: 2, OLSRCount: 3, ComboCount: 1,
	})

	if got := gaugeValue(t, m.Candidates); got != 10 {
		t.Fatalf("candidates = %v, want 10", got)
	}
	if got := gaugeValue(t, m.MappableLinks); got != 20 {
		t.Fatalf("mappable links = %v, want 20", got)
	}
}

func TestObservePollIncrementsCounters(t *testing.T) {
	m := New()
	m.ObservePoll(true, 42.0)
	m.ObservePoll(false, 0)

	if got := gaugeValue(t, m.PolledTotal); got != 1 {
		t.Fatalf("polled total = %v, want 1", got)
	}
	if got := gaugeValue(t, m.ErrorsTotal); got != 1 {
		t.Fatalf("errors total = %v, want 1", got)
	}
}
