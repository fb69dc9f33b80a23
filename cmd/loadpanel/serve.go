package main

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/observastack/loadpanel/internal/catalog"
	"github.com/observastack/loadpanel/internal/config"
	"github.com/observastack/loadpanel/internal/driver"
	"github.com/observastack/loadpanel/internal/promsink"
	"github.com/observastack/loadpanel/internal/server"
	"github.com/observastack/loadpanel/internal/tracing"
)

func serveCommand(cmd *cobra.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := cfg.ValidateServe(); err != nil {
		return err
	}
	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx := cmd.Context()
	provider, err := tracing.Init(ctx, cfg.Tracing)
	if err != nil {
		return err
	}
	defer shutdownTracing(provider, logger)

	srv := newServer(ctx, cfg, provider, logger, prometheus.NewRegistry())
	return srv.ListenAndServe(ctx, cfg.Listen)
}

// newServer wires a driver to the control server. The hub and the
// Prometheus sink both observe the driver, and reg backs /metrics.
func newServer(ctx context.Context, cfg *config.Config, provider *tracing.Provider, logger *zap.Logger, reg *prometheus.Registry) *server.Server {
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	hub := server.NewHub(logger)
	drv := driver.New(newIssuer(cfg, provider, logger),
		driver.WithLogger(logger),
		driver.WithPolicy(cfg.DriverPolicy()),
		driver.WithSink(driver.MultiSink{hub, promsink.New(reg)}),
	)

	opts := []server.Option{
		server.WithHub(hub),
		server.WithLogger(logger),
		server.WithGatherer(reg),
	}
	if endpoints := loadCatalog(ctx, cfg, logger); len(endpoints) > 0 || cfg.BaseURL != "" {
		opts = append(opts, server.WithCatalog(endpoints, cfg.BaseURL))
	}
	if cfg.LockFile != "" {
		opts = append(opts, server.WithRunLock(cfg.LockFile))
	}
	return server.New(drv, opts...)
}

// loadCatalog reads the configured schemas. A schema that fails to load is
// logged and skipped.
func loadCatalog(ctx context.Context, cfg *config.Config, logger *zap.Logger) []catalog.Endpoint {
	if len(cfg.Catalog) == 0 {
		return nil
	}
	sources := make([]catalog.Source, 0, len(cfg.Catalog))
	for _, src := range cfg.Catalog {
		sources = append(sources, catalog.Source{Service: src.Service, Schema: src.Schema})
	}
	endpoints, err := catalog.Load(ctx, nil, sources)
	if err != nil {
		logger.Warn("catalog partially loaded", zap.Int("endpoints", len(endpoints)), zap.Error(err))
	}
	return endpoints
}
