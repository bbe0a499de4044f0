// Package metrics exposes a read-only Prometheus projection of
// CycleStats plus finer per-poll data the aggregate row discards, per
// SPEC_FULL.md §4.10.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/kg6wxc/aredn-meshpoller/internal/firmware"
	"github.com/kg6wxc/aredn-meshpoller/internal/meshnode"
)

// Metrics bundles every gauge/counter the daemon exposes, registered on
// a private registry rather than the global default one.
type Metrics struct {
	Registry *prometheus.Registry

	Candidates      prometheus.Gauge
	PolledTotal     prometheus.Counter
	ErrorsTotal     prometheus.Counter
	MappableNodes   prometheus.Gauge
	MappableLinks   prometheus.Gauge
	CycleSeconds    prometheus.Gauge
	ProtocolCount   *prometheus.GaugeVec
	ResponseTimeMS  prometheus.Histogram
}

// New constructs and registers every metric.
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),

		Candidates: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "meshpoller_candidates",
			Help: "Number of candidate nodes discovered in the most recent cycle.",
		}),
		PolledTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "meshpoller_polled_total",
			Help: "Cumulative count of successfully polled nodes across all cycles.",
		}),
		ErrorsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "meshpoller_errors_total",
			Help: "Cumulative count of failed node polls across all cycles.",
		}),
		MappableNodes: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "meshpoller_mappable_nodes",
			Help: "Number of nodes with a known location in the most recent cycle.",
		}),
		MappableLinks: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "meshpoller_mappable_links",
			Help: "Number of links enriched with distance/bearing in the most recent cycle.",
		}),
		CycleSeconds: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "meshpoller_cycle_seconds",
			Help: "Wall-clock duration of the most recent cycle, in seconds.",
		}),
		ProtocolCount: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "meshpoller_protocol_count",
			Help: "Number of nodes classified under each routing protocol in the most recent cycle.",
		}, []string{"protocol"}),
		ResponseTimeMS: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "meshpoller_response_time_ms",
			Help:    "Per-poll HTTP response time, in milliseconds.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 14),
		}),
	}

	m.Registry.MustRegister(
		m.Candidates, m.PolledTotal, m.ErrorsTotal, m.MappableNodes,
		m.MappableLinks, m.CycleSeconds, m.ProtocolCount, m.ResponseTimeMS,
	)

	return m
}

// ObserveCycle updates the gauge projection of stats and resets the
// per-protocol gauge vector to the cycle's fresh counts.
func (m *Metrics) ObserveCycle(stats meshnode.CycleStats) {
	m.Candidates.Set(float64(stats.CandidateCount))
	m.MappableNodes.Set(float64(stats.MappableNodes))
	m.MappableLinks.Set(float64(stats.MappableLinks))
	m.CycleSeconds.Set(stats.CycleDurationSeconds)

	m.ProtocolCount.Reset()
	m.ProtocolCount.WithLabelValues(string(firmware.Babel)).Set(float64(stats.BabelCount))
	m.ProtocolCount.WithLabelValues(string(firmware.OLSR)).Set(float64(stats.OLSRCount))
	m.ProtocolCount.WithLabelValues(string(firmware.Combo)).Set(float64(stats.ComboCount))
}

// ObservePoll records one poll's outcome, called immediately from the
// fan-out task rather than batched with the cycle-level gauges above.
func (m *Metrics) ObservePoll(ok bool, responseTimeMS float64) {
	if ok {
		m.PolledTotal.Inc()
		m.ResponseTimeMS.Observe(responseTimeMS)
		return
	}
	m.ErrorsTotal.Inc()
}
