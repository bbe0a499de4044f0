// Command meshpoller polls an AREDN mesh from a seed node on a fixed
// cycle, persists per-node state, and emits the map_data.json and
// node_report_data.json artifacts consumed by the web dashboard.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/kg6wxc/aredn-meshpoller/internal/config"
	"github.com/kg6wxc/aredn-meshpoller/internal/coordinator"
	"github.com/kg6wxc/aredn-meshpoller/internal/httpfetch"
	"github.com/kg6wxc/aredn-meshpoller/internal/metrics"
	"github.com/kg6wxc/aredn-meshpoller/internal/notify"
	"github.com/kg6wxc/aredn-meshpoller/internal/opsserver"
	"github.com/kg6wxc/aredn-meshpoller/internal/storage"
)

// backoff is how long the daemon waits before retrying a cycle that
// returned an error, per spec.md §7.
const backoff = 60 * time.Second

func main() {
	os.Exit(run())
}

func run() int {
	configFile := flag.String("config", "../settings.ini", "path to the INI configuration file")
	once := flag.Bool("once", false, "run a single cycle and exit")
	flush := flag.Bool("flush", false, "drop and recreate all tables, then exit")
	flag.Parse()

	logger, err := zap.NewProduction()
	if err != nil {
		log.Printf("failed to init logger: %v", err)
		return 1
	}
	defer logger.Sync()

	cfg, err := config.Load(*configFile)
	if err != nil {
		logger.Error("config load failed", zap.Error(err))
		return 1
	}

	store, err := storage.Open(cfg.SQLDB)
	if err != nil {
		logger.Error("store open failed", zap.Error(err))
		return 1
	}
	defer store.CloseSafe()

	if *flush {
		if err := store.Flush(); err != nil {
			logger.Error("store flush failed", zap.Error(err))
			return 1
		}
		logger.Info("store flushed")
		return 0
	}

	if err := store.Migrate(); err != nil {
		logger.Error("store migrate failed", zap.Error(err))
		return 1
	}

	fetcher := httpfetch.New(coordinator.FirstCycleBurst, 10, httpfetch.WithLogger(logger))
	defer fetcher.Close()

	m := metrics.New()
	notifier := notify.NewHub(logger)
	ops := opsserver.New(cfg.OpsListenAddr, m.Registry, logger, notifier.HandleWS())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opsErrCh := make(chan error, 1)
	go func() {
		if err := ops.Serve(ctx, logger); err != nil {
			opsErrCh <- err
		}
	}()

	coord := coordinator.New(cfg, fetcher, store, logger, m, notifier)
	go func() {
		<-ctx.Done()
		coord.Shutdown()
	}()

	if *once {
		if err := coord.RunCycle(ctx); err != nil {
			logger.Error("cycle failed", zap.Error(err))
			return 1
		}
		ops.MarkHealthy()
		return 0
	}

	logger.Info("meshpoller starting", zap.Duration("cycle_time", cfg.PollerCycleTime))

	for {
		if ctx.Err() != nil {
			logger.Info("shutdown signal received, exiting")
			return 0
		}

		if err := coord.RunCycle(ctx); err != nil {
			logger.Error("cycle failed, backing off", zap.Error(err), zap.Duration("backoff", backoff))
			select {
			case <-ctx.Done():
				return 0
			case <-time.After(backoff):
			}
			continue
		}
		ops.MarkHealthy()

		select {
		case <-ctx.Done():
			logger.Info("shutdown signal received, exiting")
			return 0
		case err := <-opsErrCh:
			logger.Error("ops server failed", zap.Error(err))
			return 1
		case <-time.After(cfg.PollerCycleTime):
		}
	}
}
