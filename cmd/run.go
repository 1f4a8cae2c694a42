package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"stock-tracker-alerts/internal/admin"
	"stock-tracker-alerts/internal/scheduler"

	"github.com/google/subcommands"
	log "github.com/sirupsen/logrus"
)

const metricsSaveInterval = 5 * time.Minute

type runCmd struct {
	grace time.Duration
}

func (*runCmd) Name() string     { return "run" }
func (*runCmd) Synopsis() string { return "run the price check daemon" }
func (*runCmd) Usage() string {
	return `run [-grace <duration>]

  Checks every active target on the configured interval, sends alerts and
  serves /metrics, /health, /status, /run and /alerts on metrics_port.
  SIGINT or SIGTERM stops it after the running cycle finishes.
`
}

func (c *runCmd) SetFlags(f *flag.FlagSet) {
	f.DurationVar(&c.grace, "grace", 30*time.Second, "How long to wait for a running cycle on shutdown")
}

func (c *runCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}

	a, err := newApp(cfg)
	if err != nil {
		log.Errorf("Failed to initialize: %v", err)
		return subcommands.ExitFailure
	}
	defer a.Close()

	a.metrics.LoadMetricsFromDB(ctx, a.store)

	sched := scheduler.New(a.manager, scheduler.Options{
		Interval:    cfg.CheckInterval,
		MarketHours: cfg.MarketHours,
		PIDFile:     cfg.PIDFile,
		Recover:     a.recoverAbandoned,
		RunOnStart:  cfg.RunOnStart,
	})

	log.Infof("🚀 Stock tracker starting, provider %s, %d channel(s)", a.batcher.ProviderName(), len(a.dispatcher.Channels()))
	if err := sched.Start(ctx); err != nil {
		log.Errorf("Failed to start scheduler: %v", err)
		return subcommands.ExitFailure
	}

	saverCtx, stopSaver := context.WithCancel(ctx)
	defer stopSaver()
	a.metrics.StartSaver(saverCtx, a.store, metricsSaveInterval)

	server := admin.NewServer(cfg.MetricsPort, sched, a.store, a.batcher, a.registry)
	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.ListenAndServe()
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sig)

	status := subcommands.ExitSuccess
	select {
	case s := <-sig:
		log.Infof("Received %s, shutting down...", s)
	case err := <-serverErr:
		log.Errorf("Failed to serve metrics and health endpoint: %v", err)
		status = subcommands.ExitFailure
	}

	stopSaver()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), c.grace)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warnf("Admin server shutdown: %v", err)
	}
	if err := sched.Stop(shutdownCtx); err != nil {
		log.Warnf("Scheduler shutdown: %v", err)
	}

	a.metrics.SaveMetricsToDB(context.Background(), a.store)
	log.Info("Metrics saved, shutting down...")
	return status
}
