package main

import (
	"context"
	"time"

	"stock-tracker-alerts/config"
	"stock-tracker-alerts/internal/alert"
	"stock-tracker-alerts/internal/database"
	"stock-tracker-alerts/internal/metrics"
	"stock-tracker-alerts/internal/notify"
	"stock-tracker-alerts/internal/price"
	"stock-tracker-alerts/lib/translation"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	log "github.com/sirupsen/logrus"
)

// app holds everything a cycle needs, built once per command.
type app struct {
	cfg        config.Config
	store      *database.Store
	batcher    *price.Batcher
	dispatcher *notify.Dispatcher
	registry   *prometheus.Registry
	metrics    *metrics.Metrics
	manager    *alert.Manager
}

// loadConfig reads the configuration and sets up logging and translations.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return cfg, errors.Wrap(err, "invalid configuration")
	}
	setupLogging(cfg.Debug)
	translation.Configure(cfg.LocalesDir, cfg.Lang)
	log.WithField("language", translation.GetLanguage()).Debug("Translations configured")
	return cfg, nil
}

func newApp(cfg config.Config) (*app, error) {
	provider, err := newProvider(cfg)
	if err != nil {
		return nil, err
	}

	store, err := database.InitDB(cfg.DBPath)
	if err != nil {
		return nil, err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	batcher := price.NewBatcher(provider)
	dispatcher := notify.NewDispatcher(notify.NewChannels(cfg), cfg.ChannelTimeout)

	return &app{
		cfg:        cfg,
		store:      store,
		batcher:    batcher,
		dispatcher: dispatcher,
		registry:   registry,
		metrics:    m,
		manager:    alert.NewManager(store, batcher, dispatcher, cfg.RearmPolicy, m),
	}, nil
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		log.Errorf("Failed to close database: %v", err)
	}
}

// recoverAbandoned marks records a previous process left mid-dispatch.
func (a *app) recoverAbandoned(ctx context.Context) error {
	n, err := a.store.MarkAbandonedDeliveries(ctx, time.Now())
	if err != nil {
		return err
	}
	if n > 0 {
		log.Warnf("⚠️ %d alert(s) from an interrupted run have an unknown delivery status", n)
	}
	return nil
}

func newProvider(cfg config.Config) (price.Provider, error) {
	switch cfg.Provider {
	case "eodhd":
		if cfg.EODHD.APIKey == "" {
			return nil, errors.New("eodhd_api_key is required for the eodhd provider")
		}
		return price.NewEODHDProvider(cfg.EODHD.APIKey, cfg.EODHD.Exchange, cfg.EODHD.BaseURL, cfg.ProviderTimeout), nil
	case "coinpaprika":
		return price.NewCoinpaprikaProvider(cfg.APIProKey, cfg.ProviderTimeout), nil
	}
	return nil, errors.Errorf("unknown provider %q", cfg.Provider)
}
