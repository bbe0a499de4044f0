// Package coordinator drives one cycle end-to-end: discover, fan out
// polls with cycle-spread rate limiting, enrich the link graph,
// persist, and emit artifacts, per spec.md §4.6/§5.
package coordinator

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"

	"github.com/kg6wxc/aredn-meshpoller/internal/artifact"
	"github.com/kg6wxc/aredn-meshpoller/internal/config"
	"github.com/kg6wxc/aredn-meshpoller/internal/discovery"
	"github.com/kg6wxc/aredn-meshpoller/internal/enrich"
	"github.com/kg6wxc/aredn-meshpoller/internal/firmware"
	"github.com/kg6wxc/aredn-meshpoller/internal/httpfetch"
	"github.com/kg6wxc/aredn-meshpoller/internal/meshnode"
	"github.com/kg6wxc/aredn-meshpoller/internal/metrics"
	"github.com/kg6wxc/aredn-meshpoller/internal/notify"
	"github.com/kg6wxc/aredn-meshpoller/internal/poller"
	"github.com/kg6wxc/aredn-meshpoller/internal/storage"
	"github.com/kg6wxc/aredn-meshpoller/internal/sysinfo"
)

// FirstCycleBurst is the elevated first-cycle concurrency budget; exported
// so callers sizing shared resources (the HTTP connection pool) can size
// for the daemon's peak rather than its steady-state budget.
const FirstCycleBurst = 600

const pollRetries = 1

// Coordinator owns the process-wide shared resources a cycle needs:
// the fetcher, the store, and the optional ops-facing sinks (metrics,
// notify). Only the coordinator mutates the cycle counter; only the
// store mutates DB state.
type Coordinator struct {
	cfg      config.Config
	fetcher  *httpfetch.Fetcher
	store    *storage.Store
	nodeRepo *storage.NodeRepo
	statsRepo *storage.StatsRepo
	arednRepo *storage.ArednRepo
	logger   *zap.Logger
	metrics  *metrics.Metrics
	notifier *notify.Hub

	cycleCount int
	shutdown   atomic.Bool
}

// New builds a Coordinator. metrics and notifier may be nil (either is
// a purely optional sink; a cycle proceeds identically without them).
func New(cfg config.Config, fetcher *httpfetch.Fetcher, store *storage.Store, logger *zap.Logger, m *metrics.Metrics, notifier *notify.Hub) *Coordinator {
	return &Coordinator{
		cfg:       cfg,
		fetcher:   fetcher,
		store:     store,
		nodeRepo:  storage.NewNodeRepo(store.SQL),
		statsRepo: storage.NewStatsRepo(store.SQL),
		arednRepo: storage.NewArednRepo(store.GORM),
		logger:    logger,
		metrics:   m,
		notifier:  notifier,
	}
}

// Shutdown requests every in-flight and pending task short-circuit to a
// no-op at its next check point.
func (c *Coordinator) Shutdown() { c.shutdown.Store(true) }

// RunCycle executes exactly one discover→fan-out→enrich→persist→emit
// cycle.
func (c *Coordinator) RunCycle(ctx context.Context) error {
	start := time.Now()
	c.cycleCount++
	cycleID := uuid.New()
	logger := c.logger.With(zap.String("cycle_id", cycleID.String()), zap.Int("cycle", c.cycleCount))

	budget := c.cfg.NumParallelThreads
	if c.cycleCount == 1 {
		budget = FirstCycleBurst
	}

	bundle, err := discovery.Discover(ctx, c.fetcher, c.cfg.NodelistNode, pollRetries)
	if err != nil {
		return fmt.Errorf("coordinator: discovery failed: %w", err)
	}

	pollable := filterPollable(bundle.Nodes)
	n := len(pollable)

	cycleSeconds := cycleSecondsFor(c.cfg.PollerCycleTime)

	stats := meshnode.CycleStats{
		ConfiguredConcurrency: budget,
		CandidateCount:        len(bundle.Nodes),
	}

	logger.Info("cycle starting",
		zap.Int("candidates", len(bundle.Nodes)),
		zap.Int("pollable", n),
		zap.Int("budget", budget),
	)

	var mu sync.Mutex
	nodes := map[string]meshnode.NodeRecord{}
	seenIPs := map[string]bool{}
	completed := 0
	maxHops := 0
	var minRT, maxRT float64
	haveRT := false

	p := pool.New().WithMaxGoroutines(budget)
	for i, cand := range pollable {
		i, cand := i, cand
		delay := startDelay(i, n, cycleSeconds)

		p.Go(func() {
			defer func() {
				if r := recover(); r != nil {
					logger.Error("poll task panicked", zap.String("ip", cand.IP), zap.Any("panic", r))
					mu.Lock()
					stats.CountFailed++
					mu.Unlock()
				}
			}()

			if c.shutdown.Load() {
				return
			}
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return
			}
			if c.shutdown.Load() {
				return
			}

			rec, ok := poller.Poll(ctx, c.fetcher, cand.IP, cand.Hops, pollRetries)

			mu.Lock()
			defer mu.Unlock()
			completed++

			if !ok {
				stats.CountFailed++
				if c.metrics != nil {
					c.metrics.ObservePoll(false, 0)
				}
			} else {
				if len(rec.LinkInfo) == 0 {
					if seedLinks, has := bundle.Links[rec.WlanIP]; has {
						rec.LinkInfo = seedLinks
					}
				}
				if !sysinfo.ValidLat(rec.Lat) || !sysinfo.ValidLon(rec.Lon) {
					logger.Warn("coordinates outside valid interval, storing as given",
						zap.String("ip", rec.WlanIP), zap.Float64("lat", rec.Lat), zap.Float64("lon", rec.Lon))
				}
				nodes[rec.WlanIP] = rec
				seenIPs[rec.WlanIP] = true
				stats.CountPolled++
				if rec.Lat == 0 && rec.Lon == 0 {
					stats.CountNoLocation++
				}
				if cand.Hops != nil && *cand.Hops > maxHops {
					maxHops = *cand.Hops
				}
				if !haveRT {
					minRT, maxRT = rec.ResponseTimeMS, rec.ResponseTimeMS
					haveRT = true
				} else {
					if rec.ResponseTimeMS < minRT {
						minRT = rec.ResponseTimeMS
					}
					if rec.ResponseTimeMS > maxRT {
						maxRT = rec.ResponseTimeMS
					}
				}
				if err := c.nodeRepo.Upsert(ctx, rec); err != nil {
					logger.Warn("upsert failed", zap.String("ip", rec.WlanIP), zap.Error(err))
				}
				if c.metrics != nil {
					c.metrics.ObservePoll(true, rec.ResponseTimeMS)
				}
			}

			if completed%10 == 0 || completed == n {
				logger.Info("cycle progress", zap.Int("completed", completed), zap.Int("total", n))
			}
		})
	}
	p.Wait()

	stats.MaxHopsObserved = maxHops
	stats.MinResponseTimeMS = minRT
	stats.MaxResponseTimeMS = maxRT

	enrich.Links(nodes)

	mappableLinks := 0
	for ip, rec := range nodes {
		if err := c.nodeRepo.UpdateLinkInfo(ctx, ip, rec.LinkInfo); err != nil {
			logger.Warn("update link_info failed", zap.String("ip", ip), zap.Error(err))
		}
		for _, link := range rec.LinkInfo {
			if link.DistanceKM != nil {
				mappableLinks++
			}
		}
	}
	stats.MappableLinks = mappableLinks
	stats.MappableNodes = stats.CountPolled - stats.CountNoLocation

	for _, rec := range nodes {
		proto := firmware.DetermineProtocol(rec.FirmwareVersion, lastSeenPtr(rec), c.cfg.ProtocolThreshold,
			mustOrder(c.cfg.ProtocolVersionCutoff), mustNightlyOrder(c.cfg.ProtocolNightlyCutoff))
		switch proto {
		case firmware.Babel:
			stats.BabelCount++
		case firmware.OLSR:
			stats.OLSRCount++
		case firmware.Combo:
			stats.ComboCount++
		}
	}

	if err := c.nodeRepo.MarkInactive(ctx, seenIPs); err != nil {
		logger.Warn("mark inactive failed", zap.Error(err))
	}

	allNodes, err := c.nodeRepo.GetAll(ctx)
	if err != nil {
		return fmt.Errorf("coordinator: read back nodes: %w", err)
	}

	if err := c.arednRepo.BulkUpsert(ctx, arednRowsFor(allNodes)); err != nil {
		logger.Warn("aredn_info bulk upsert failed", zap.Error(err))
	}

	mapData := artifact.BuildMapData(c.cfg, allNodes, stats)
	report := artifact.BuildNodeReport(allNodes)
	if err := artifact.Write(c.cfg.WebpageDataDir, mapData, report, logger); err != nil {
		logger.Warn("artifact write failed", zap.Error(err))
	}

	stats.CycleDurationSeconds = time.Since(start).Seconds()
	if err := c.statsRepo.Save(ctx, stats); err != nil {
		logger.Warn("save stats failed", zap.Error(err))
	}

	if c.metrics != nil {
		c.metrics.ObserveCycle(stats)
	}
	if c.notifier != nil {
		c.notifier.BroadcastCycleComplete(c.cycleCount, time.Now())
	}

	logger.Info("cycle complete",
		zap.Int("polled", stats.CountPolled),
		zap.Int("failed", stats.CountFailed),
		zap.Float64("duration_seconds", stats.CycleDurationSeconds),
	)

	return nil
}

// filterPollable keeps only candidates discovery assigned a known hop
// count to; a nil Hops means discovery could not place the node in the
// graph, and it must never be polled.
func filterPollable(candidates []discovery.Candidate) []discovery.Candidate {
	out := make([]discovery.Candidate, 0, len(candidates))
	for _, cand := range candidates {
		if cand.Hops != nil {
			out = append(out, cand)
		}
	}
	return out
}

// cycleSecondsFor converts the configured cycle period to seconds,
// floored at 1 so a zero or negative configuration never collapses the
// spread-rate delay to zero for every task.
func cycleSecondsFor(d time.Duration) float64 {
	s := d.Seconds()
	if s < 1 {
		return 1
	}
	return s
}

// startDelay computes task i's stagger within a cycle of n tasks spread
// evenly across cycleSeconds, per spec.md §4.6.
func startDelay(i, n int, cycleSeconds float64) time.Duration {
	if n == 0 {
		return 0
	}
	return time.Duration(float64(i) * (cycleSeconds / float64(n)) * float64(time.Second))
}

// arednRowsFor projects the live node set into the ecosystem-compatible
// aredn_info shape, one row per node; a node without a known hop count
// still gets a row, with hops_away 0.
func arednRowsFor(nodes map[string]meshnode.NodeRecord) []storage.ArednInfoRow {
	rows := make([]storage.ArednInfoRow, 0, len(nodes))
	for _, rec := range nodes {
		hops := 0
		if rec.HopsAway != nil {
			hops = *rec.HopsAway
		}
		rows = append(rows, storage.ArednInfoRow{
			NodeName:   rec.NodeName,
			WlanIP:     rec.WlanIP,
			Lat:        rec.Lat,
			Lon:        rec.Lon,
			GridSquare: rec.GridSquare,
			Model:      rec.Model,
			Firmware:   rec.FirmwareVersion,
			HopsAway:   hops,
			UpdatedAt:  rec.LastSeen,
		})
	}
	return rows
}

func lastSeenPtr(rec meshnode.NodeRecord) *time.Time {
	if rec.LastSeen.IsZero() {
		return nil
	}
	t := rec.LastSeen
	return &t
}

func mustOrder(version string) int {
	order, ok := firmware.VersionToOrder(version)
	if !ok {
		return 0
	}
	return order
}

func mustNightlyOrder(nightly string) int {
	order, ok := firmware.NightlyToOrder(nightly)
	if !ok {
		return 0
	}
	return order
}
