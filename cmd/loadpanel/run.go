package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/observastack/loadpanel/internal/config"
	"github.com/observastack/loadpanel/internal/dashboard"
	"github.com/observastack/loadpanel/internal/driver"
	"github.com/observastack/loadpanel/internal/output"
	"github.com/observastack/loadpanel/internal/runlock"
	"github.com/observastack/loadpanel/internal/threshold"
	"github.com/observastack/loadpanel/internal/tracing"
)

const (
	progressInterval    = time.Second
	tracingFlushTimeout = 5 * time.Second
)

func runCommand(cmd *cobra.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := zap.NewNop()
	if !cfg.Dashboard {
		if logger, err = newLogger(cfg.LogLevel); err != nil {
			return err
		}
	}
	defer func() { _ = logger.Sync() }()

	return runLoad(cmd.Context(), cfg, logger, cmd.OutOrStdout())
}

// runLoad drives one run to completion and writes the report to out. It
// fails when any threshold fails. Failed requests alone never fail it.
func runLoad(ctx context.Context, cfg *config.Config, logger *zap.Logger, out io.Writer) error {
	thresholds, err := threshold.ParseMultiple(cfg.Thresholds)
	if err != nil {
		return err
	}

	if cfg.LockFile != "" {
		lock, err := runlock.Acquire(cfg.LockFile)
		if err != nil {
			return err
		}
		defer func() {
			if err := lock.Release(); err != nil {
				logger.Warn("release run lock", zap.Error(err))
			}
		}()
	}

	body, err := loadBody(cfg)
	if err != nil {
		return err
	}

	provider, err := tracing.Init(ctx, cfg.Tracing)
	if err != nil {
		return err
	}
	defer shutdownTracing(provider, logger)

	drv := driver.New(newIssuer(cfg, provider, logger),
		driver.WithLogger(logger),
		driver.WithPolicy(cfg.DriverPolicy()),
	)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var dash *dashboard.Dashboard
	if cfg.Dashboard {
		dash, err = dashboard.New(drv, dashboard.TestConfig{
			TargetURL:   cfg.TargetURL,
			Method:      cfg.Method,
			Total:       cfg.Total,
			Concurrency: cfg.Concurrency,
			Delay:       cfg.Delay,
			Adaptive:    cfg.Adaptive,
			Timeout:     cfg.Timeout,
			ConfigFile:  cfg.ConfigFile,
		}, cancel)
		if err != nil {
			return err
		}
		dash.Start()
	}

	var progress *output.ProgressReporter
	if cfg.Output == config.OutputText && !cfg.Dashboard {
		progress = output.NewProgressReporter(drv, progressInterval, out)
		progress.Start()
	}

	logger.Info("run starting",
		zap.String("target", cfg.TargetURL),
		zap.Int("total", cfg.Total),
		zap.Int("concurrency", cfg.Concurrency),
		zap.Bool("adaptive", cfg.Adaptive),
	)
	summary, runErr := drv.Run(ctx, cfg.RunConfig(body))

	if progress != nil {
		progress.Stop()
		fmt.Fprintln(out)
	}
	if dash != nil {
		dash.Stop()
	}
	if runErr != nil {
		return runErr
	}

	stats := drv.Stats()
	results := threshold.NewEvaluator(thresholds).Evaluate(summary, stats)
	report := output.NewReport(summary, stats, drv.ChartPoints(), results)
	if err := output.Write(out, cfg.Output, report); err != nil {
		return err
	}

	if !threshold.AllPassed(results) {
		failed := 0
		for _, r := range results {
			if !r.Pass {
				failed++
			}
		}
		return fmt.Errorf("%d of %d thresholds failed", failed, len(results))
	}
	return nil
}
