// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"context"
	"errors"
	"log/slog"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/sigil-dev/recall/internal/cache"
	"github.com/sigil-dev/recall/internal/config"
	"github.com/sigil-dev/recall/internal/coordinator"
	"github.com/sigil-dev/recall/internal/embedding"
	"github.com/sigil-dev/recall/internal/memory"
	"github.com/sigil-dev/recall/internal/server"
	"github.com/sigil-dev/recall/internal/store"
	_ "github.com/sigil-dev/recall/internal/store/sqlite" // register sqlite backend
	"github.com/sigil-dev/recall/internal/tools"
	recallerr "github.com/sigil-dev/recall/pkg/errors"
)

// App holds all wired subsystems and manages their lifecycle.
type App struct {
	Config      *config.Config
	Registry    *prometheus.Registry
	Cache       *cache.Cache
	Coordinator *coordinator.Coordinator
	Embeddings  *embedding.Factory
	Dispatcher  *tools.Dispatcher
	Memories    *tools.MemoryTools
	Server      *server.Server

	logger *slog.Logger
}

// Wire constructs every subsystem from cfg without opening the store or
// contacting any embedding provider. Run does both.
func Wire(cfg *config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
		return nil, recallerr.Wrapf(err, recallerr.CodeCLISetupFailure, "creating data directory %s", cfg.DataDir)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewBuildInfoCollector(),
	)

	c, err := cache.New(cache.Config{
		Enabled:       cfg.Cache.Enabled,
		TTL:           cfg.Cache.TTL,
		MaxEntries:    cfg.Cache.MaxEntries,
		SweepInterval: cfg.Cache.SweepInterval,
	}, cache.WithLogger(logger.With("component", "cache")), cache.WithMetrics(reg))
	if err != nil {
		return nil, err
	}

	coord, err := coordinator.New(coordinator.Options{
		Storage: store.StorageConfig{
			Backend: cfg.Storage.Backend,
			Path:    cfg.Storage.Path,
		},
		MarkerPath:        cfg.Coordinator.MarkerPath,
		PollInterval:      cfg.Coordinator.PollInterval,
		ScanCooldown:      cfg.Coordinator.ScanCooldown,
		ReadyPollInterval: cfg.Coordinator.ReadyPollInterval,
		Logger:            logger.With("component", "coordinator"),
	})
	if err != nil {
		return nil, err
	}
	registerCoordinatorMetrics(reg, coord)

	d, err := tools.NewDispatcher(tools.DispatcherConfig{
		Coordinator: coord,
		Cache:       c,
		Logger:      logger.With("component", "tools"),
	})
	if err != nil {
		return nil, err
	}
	memories := tools.NewMemoryTools(d, tools.DefaultReadyTimeout)

	factory, err := embedding.NewFactory(embeddingConfig(cfg.Embeddings),
		embedding.WithLogger(logger.With("component", "embedding")))
	if err != nil {
		return nil, err
	}

	srv, err := server.New(server.Config{
		ListenAddr: cfg.Server.Listen,
		Version:    version,
		Gatherer:   reg,
		Logger:     logger.With("component", "server"),
	})
	if err != nil {
		return nil, err
	}
	services, err := server.NewServices(c, coord, factory, memories)
	if err != nil {
		return nil, err
	}
	srv.RegisterServices(services)

	return &App{
		Config:      cfg,
		Registry:    reg,
		Cache:       c,
		Coordinator: coord,
		Embeddings:  factory,
		Dispatcher:  d,
		Memories:    memories,
		Server:      srv,
		logger:      logger,
	}, nil
}

// embeddingConfig converts the config blocks. Zero fields are filled in
// from the stock provider defaults by the factory.
func embeddingConfig(ec config.EmbeddingsConfig) embedding.Config {
	providers := make(map[string]embedding.ProviderConfig, len(ec.Providers))
	for name, p := range ec.Providers {
		providers[name] = embedding.ProviderConfig{
			APIKey:     p.APIKey,
			Model:      p.Model,
			Dimensions: p.Dimensions,
			BaseURL:    p.BaseURL,
		}
	}
	return embedding.Config{
		Provider:       ec.Provider,
		WarmupTimeout:  ec.WarmupTimeout,
		HealthCooldown: ec.HealthCooldown,
		Providers:      providers,
	}
}

func registerCoordinatorMetrics(reg prometheus.Registerer, coord *coordinator.Coordinator) {
	reg.MustRegister(
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: "recall",
			Subsystem: "coordinator",
			Name:      "reinitializations_total",
			Help:      "Store reconnections triggered by external updates",
		}, func() float64 { return float64(coord.Reinitializations()) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "recall",
			Subsystem: "coordinator",
			Name:      "reinitializing",
			Help:      "1 while a reconnection is in progress",
		}, func() float64 {
			if coord.State() == coordinator.StateInProgress {
				return 1
			}
			return 0
		}),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "recall",
			Subsystem: "embedding",
			Name:      "ready",
			Help:      "1 once the embedding provider has warmed up",
		}, func() float64 {
			if coord.IsEmbeddingReady() {
				return 1
			}
			return 0
		}),
	)
}

// Run opens the store and starts the background loops, warms the
// embedding provider up in the background and serves HTTP until ctx is
// cancelled.
func (a *App) Run(ctx context.Context) error {
	if err := a.Coordinator.Init(ctx); err != nil {
		return err
	}
	a.Coordinator.Start(ctx)
	a.Cache.Start(ctx)

	go func() {
		if err := a.startEmbeddings(ctx); err != nil && !errors.Is(err, context.Canceled) {
			a.logger.Error("embedding provider unavailable; memory tools disabled", "error", err)
		}
	}()

	return a.Server.Start(ctx)
}

// startEmbeddings warms up the selected provider, binds the memory index to
// the store under the provider's profile and flips the readiness flag.
func (a *App) startEmbeddings(ctx context.Context) error {
	res, err := a.Embeddings.Create(ctx)
	if err != nil {
		return err
	}

	ix, err := memory.NewIndex(res.Provider, res.Profile,
		memory.WithLogger(a.logger.With("component", "memory")))
	if err != nil {
		return err
	}
	a.Coordinator.OnReset("memory_index", ix.Reset)
	if err := a.Coordinator.Attach(ctx, "memory_index", ix); err != nil {
		return err
	}

	a.Memories.Bind(ix)
	a.Coordinator.SetEmbeddingReady(true)

	a.logger.Info("embedding provider ready",
		"provider", res.Profile.Provider(),
		"model", res.Profile.Model(),
		"namespace", res.Profile.Namespace(),
		"fell_back", res.FellBack,
	)
	return nil
}

// Close releases resources in reverse order of creation. The active
// provider is closed here even when binding the index failed.
func (a *App) Close() error {
	var errs []error
	if err := a.Server.Close(); err != nil {
		errs = append(errs, err)
	}
	a.Coordinator.SetEmbeddingReady(false)
	if err := a.Coordinator.Shutdown(); err != nil {
		errs = append(errs, err)
	}
	a.Cache.Close()
	if res := a.Embeddings.Active(); res != nil {
		if err := res.Provider.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
